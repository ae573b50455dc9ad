package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quipubot/quipu/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectEntryColumns = `
	id, user_id, kind, amount, currency, category, merchant, counterparty,
	entry_date, raw_text, confidence, created_at, deleted_at
`

func scanEntry(s scanner) (*ledger.Entry, error) {
	var e ledger.Entry

	var kind string

	var merchant, counterparty, rawText sql.NullString

	if err := s.Scan(
		&e.ID, &e.UserID, &kind, &e.Amount, &e.Currency, &e.Category,
		&merchant, &counterparty, &e.Date, &rawText, &e.Confidence,
		&e.CreatedAt, &e.DeletedAt,
	); err != nil {
		return nil, err
	}

	e.Kind = ledger.Kind(kind)
	e.Merchant = merchant.String
	e.Counterparty = counterparty.String
	e.RawText = rawText.String

	return &e, nil
}

const insertEntryQuery = `
	INSERT INTO ledger_entries (user_id, kind, amount, currency, category, merchant, counterparty, entry_date, raw_text, confidence, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	RETURNING id, created_at
`

func (s *Store) CreateEntry(ctx context.Context, entry *ledger.Entry) error {
	err := s.db.QueryRowContext(ctx, insertEntryQuery,
		entry.UserID, entry.Kind, entry.Amount, entry.Currency, entry.Category,
		entry.Merchant, entry.Counterparty, entry.Date, entry.RawText, entry.Confidence,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating ledger entry: %w", err)
	}

	return nil
}

func (s *Store) CreateEntries(ctx context.Context, entries []*ledger.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch insert: %w", err)
	}
	defer tx.Rollback()

	for _, entry := range entries {
		err := tx.QueryRowContext(ctx, insertEntryQuery,
			entry.UserID, entry.Kind, entry.Amount, entry.Currency, entry.Category,
			entry.Merchant, entry.Counterparty, entry.Date, entry.RawText, entry.Confidence,
		).Scan(&entry.ID, &entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("creating ledger entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch insert: %w", err)
	}

	return nil
}

func (s *Store) ListEntries(ctx context.Context, userID string, limit int) ([]*ledger.Entry, error) {
	query := `SELECT ` + selectEntryColumns + `
		FROM ledger_entries
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (s *Store) SummarizeMonth(ctx context.Context, userID string, year int, month time.Month) ([]ledger.CategoryTotal, error) {
	query := `
		SELECT category, kind, SUM(amount), COUNT(*)
		FROM ledger_entries
		WHERE user_id = $1 AND deleted_at IS NULL
		  AND EXTRACT(YEAR FROM entry_date) = $2
		  AND EXTRACT(MONTH FROM entry_date) = $3
		GROUP BY category, kind
		ORDER BY SUM(amount) DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, year, int(month))
	if err != nil {
		return nil, fmt.Errorf("summarizing month: %w", err)
	}
	defer rows.Close()

	var totals []ledger.CategoryTotal

	for rows.Next() {
		var t ledger.CategoryTotal

		var kind string

		if err := rows.Scan(&t.Category, &kind, &t.Total, &t.Count); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}

		t.Kind = ledger.Kind(kind)
		totals = append(totals, t)
	}

	return totals, rows.Err()
}

func (s *Store) SoftDeleteLast(ctx context.Context, userID string) (*ledger.Entry, error) {
	query := `
		UPDATE ledger_entries
		SET deleted_at = NOW()
		WHERE id = (
			SELECT id FROM ledger_entries
			WHERE user_id = $1 AND deleted_at IS NULL
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING ` + selectEntryColumns

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}

		return nil, fmt.Errorf("soft-deleting last entry: %w", err)
	}

	return entry, nil
}

func (s *Store) SoftDeleteAll(ctx context.Context, userID string) (int, error) {
	query := `
		UPDATE ledger_entries
		SET deleted_at = NOW()
		WHERE user_id = $1 AND deleted_at IS NULL
	`

	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("soft-deleting entries: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted entries: %w", err)
	}

	return int(affected), nil
}
