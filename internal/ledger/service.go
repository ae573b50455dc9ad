package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=ledger
type Repository interface {
	CreateEntry(ctx context.Context, entry *Entry) error
	CreateEntries(ctx context.Context, entries []*Entry) error
	ListEntries(ctx context.Context, userID string, limit int) ([]*Entry, error)
	SummarizeMonth(ctx context.Context, userID string, year int, month time.Month) ([]CategoryTotal, error)
	SoftDeleteLast(ctx context.Context, userID string) (*Entry, error)
	SoftDeleteAll(ctx context.Context, userID string) (int, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type RecordParams struct {
	UserID       string
	Kind         Kind
	Amount       decimal.Decimal
	Currency     string
	Category     string
	Merchant     string
	Counterparty string
	Date         time.Time
	RawText      string
	Confidence   float64
}

func (p RecordParams) validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user id is required")
	}

	if !p.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", p.Amount)
	}

	if !p.Kind.Valid() {
		return fmt.Errorf("unknown entry kind %q", p.Kind)
	}

	return nil
}

func entryFromParams(p RecordParams) *Entry {
	category := p.Category
	if category == "" {
		category = "misc"
	}

	return &Entry{
		UserID:       p.UserID,
		Kind:         p.Kind,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Category:     category,
		Merchant:     p.Merchant,
		Counterparty: p.Counterparty,
		Date:         p.Date,
		RawText:      p.RawText,
		Confidence:   p.Confidence,
	}
}

// Record commits a single entry.
func (s *Service) Record(ctx context.Context, params RecordParams) (*Entry, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	entry := entryFromParams(params)
	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("creating entry: %w", err)
	}

	return entry, nil
}

// RecordBatch commits several entries at once, e.g. a confirmed multi-amount
// message. All params are validated before anything is written.
func (s *Service) RecordBatch(ctx context.Context, params []RecordParams) ([]*Entry, error) {
	if len(params) == 0 {
		return nil, nil
	}

	entries := make([]*Entry, len(params))

	for i, p := range params {
		if err := p.validate(); err != nil {
			return nil, err
		}

		entries[i] = entryFromParams(p)
	}

	if err := s.repo.CreateEntries(ctx, entries); err != nil {
		return nil, fmt.Errorf("creating entries: %w", err)
	}

	return entries, nil
}

// List returns the user's most recent active entries, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	return s.repo.ListEntries(ctx, userID, limit)
}

// Summary aggregates a month's active entries by category.
func (s *Service) Summary(ctx context.Context, userID string, year int, month time.Month) ([]CategoryTotal, error) {
	return s.repo.SummarizeMonth(ctx, userID, year, month)
}

// UndoLast soft-deletes the user's most recent active entry and returns it.
// Returns ErrNotFound when the user has no active entries.
func (s *Service) UndoLast(ctx context.Context, userID string) (*Entry, error) {
	entry, err := s.repo.SoftDeleteLast(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("undoing last entry: %w", err)
	}

	return entry, nil
}

// ClearAll soft-deletes every active entry for the user and returns the count.
func (s *Service) ClearAll(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.SoftDeleteAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clearing entries: %w", err)
	}

	return count, nil
}
