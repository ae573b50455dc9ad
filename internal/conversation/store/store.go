package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quipubot/quipu/internal/conversation"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// SavePending upserts the user's single pending action. The unique key on
// user_id makes the newest question replace any older one.
func (s *Store) SavePending(ctx context.Context, action *conversation.PendingAction) error {
	query := `
		INSERT INTO pending_actions (user_id, action_type, payload, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET action_type = EXCLUDED.action_type,
		    payload = EXCLUDED.payload,
		    expires_at = EXCLUDED.expires_at,
		    created_at = NOW()
		RETURNING id, created_at
	`

	payload := action.Payload
	if payload == nil {
		payload = []byte("null")
	}

	err := s.db.QueryRowContext(ctx, query,
		action.UserID, action.Type, payload, action.ExpiresAt,
	).Scan(&action.ID, &action.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving pending action: %w", err)
	}

	return nil
}

func (s *Store) GetPending(ctx context.Context, userID string) (*conversation.PendingAction, error) {
	query := `
		SELECT id, user_id, action_type, payload, expires_at, created_at
		FROM pending_actions
		WHERE user_id = $1
	`

	var action conversation.PendingAction

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&action.ID, &action.UserID, &action.Type, &action.Payload,
		&action.ExpiresAt, &action.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, conversation.ErrNoPending
		}

		return nil, fmt.Errorf("loading pending action: %w", err)
	}

	return &action, nil
}

func (s *Store) DeletePending(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting pending action: %w", err)
	}

	return nil
}
