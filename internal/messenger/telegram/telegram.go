// Package telegram sends messages through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quipubot/quipu/internal/messenger"
)

const defaultBaseURL = "https://api.telegram.org"

var _ messenger.Messenger = (*Sender)(nil)

// Sender posts messages to the Bot API with a plain http.Client. The user id
// is the Telegram chat id as a string.
type Sender struct {
	client  *http.Client
	baseURL string
	token   string
}

func New(token string) *Sender {
	return &Sender{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBaseURL,
		token:   token,
	}
}

// WithBaseURL points the sender at a different API host. Test hook.
func (s *Sender) WithBaseURL(baseURL string) *Sender {
	s.baseURL = baseURL
	return s
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (s *Sender) Send(ctx context.Context, userID, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: userID, Text: text})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var api apiResponse
	if err := json.Unmarshal(raw, &api); err != nil {
		return fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}

	if !api.OK {
		return fmt.Errorf("telegram api: status %d: %s", resp.StatusCode, api.Description)
	}

	return nil
}
