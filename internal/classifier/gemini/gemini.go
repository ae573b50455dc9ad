// Package gemini implements the movement classifier on top of the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"google.golang.org/genai"

	"github.com/quipubot/quipu/internal/classifier"
	"github.com/quipubot/quipu/internal/parse"
)

const systemPrompt = `Eres un asistente financiero. Extrae datos estructurados de UN mensaje de usuario.
Responde SOLO JSON válido, sin markdown ni backticks.

Reglas:
- Moneda por defecto: COP.
- type: 'expense' | 'income' | 'loan' | 'transfer'.
- "me pagaron", "recibí", "reembolso" => income. "compré", "pagué", "gasté" => expense.
- "le presté", "me prestaron", "le pagué a" => loan (counterparty = la persona).
- "pasé a mi cuenta", "traspaso entre cuentas" => transfer.
- amount: número absoluto. Jerga: k/lucas=1.000, m/palos=1.000.000.
- category: food_home|food_out|transport|housing|utilities|health|shopping|entertainment|education|subscriptions|debt|travel|misc.
- is_recurring: true si el texto indica pago periódico (mensual, suscripción, cada mes).
- recurrence: weekly|monthly cuando is_recurring=true.
- confidence: número 0..1; usa valores bajos si falta el monto o es ambiguo.

Campos de salida: type, amount, currency, category, merchant, counterparty, date, is_recurring, recurrence, confidence.`

type Client struct {
	genai   *genai.Client
	model   string
	timeout time.Duration
	cache   *gocache.Cache
}

// New builds a Gemini-backed classifier. Identical texts within cacheTTL are
// served from memory so retried webhook deliveries skip the remote call.
func New(ctx context.Context, apiKey, model string, timeout, cacheTTL time.Duration) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("initializing genai client: %w", err)
	}

	return &Client{
		genai:   gc,
		model:   model,
		timeout: timeout,
		cache:   gocache.New(cacheTTL, 2*cacheTTL),
	}, nil
}

func (c *Client) Classify(ctx context.Context, text string) (*classifier.Result, error) {
	key := parse.Fold(text)
	if cached, ok := c.cache.Get(key); ok {
		result := cached.(classifier.Result)
		return &result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := systemPrompt + "\n\nMensaje:\n" + text

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, classifier.ErrTimeout
		}

		return nil, fmt.Errorf("%w: %v", classifier.ErrUnavailable, err)
	}

	raw := flattenResponse(resp)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", classifier.ErrUnavailable)
	}

	var result classifier.Result
	if err := json.Unmarshal([]byte(stripFences(raw)), &result); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", classifier.ErrUnavailable, err)
	}

	c.cache.Set(key, result, gocache.DefaultExpiration)

	return &result, nil
}

func flattenResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder

	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}

	return strings.TrimSpace(b.String())
}

// stripFences removes the markdown code fences the model likes to add despite
// being told not to.
func stripFences(raw string) string {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")

	return strings.TrimSpace(clean)
}
