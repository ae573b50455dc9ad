package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quipubot/quipu/internal/recurring"
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

const selectRuleColumns = `
	id, user_id, service_name, category, amount, currency,
	cadence_kind, billing_day, billing_weekday, interval_days,
	anchor_date, timezone, reminder_offsets, reminder_hour,
	payment_link, payment_reference, status, next_due, canceled_at,
	created_at, updated_at
`

func scanRule(s scanner) (*recurring.Rule, error) {
	var r recurring.Rule

	var (
		kind                  string
		day, weekday, days    sql.NullInt64
		anchor, nextDue       sql.NullTime
		link, reference       sql.NullString
		offsets               []byte
	)

	if err := s.Scan(
		&r.ID, &r.UserID, &r.ServiceName, &r.Category, &r.Amount, &r.Currency,
		&kind, &day, &weekday, &days,
		&anchor, &r.Timezone, &offsets, &r.ReminderHour,
		&link, &reference, &r.Status, &nextDue, &r.CanceledAt,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	r.Cadence = recurring.Cadence{
		Kind:         recurring.CadenceKind(kind),
		Day:          int(day.Int64),
		Weekday:      time.Weekday(weekday.Int64),
		IntervalDays: int(days.Int64),
	}
	r.AnchorDate = anchor.Time
	r.NextDue = nextDue.Time
	r.PaymentLink = link.String
	r.PaymentReference = reference.String

	if len(offsets) > 0 {
		if err := json.Unmarshal(offsets, &r.ReminderOffsets); err != nil {
			return nil, fmt.Errorf("decoding reminder offsets: %w", err)
		}
	}

	return &r, nil
}

func encodeOffsets(offsets []int) ([]byte, error) {
	if offsets == nil {
		offsets = []int{0}
	}

	return json.Marshal(offsets)
}

func (s *Store) CreateRule(ctx context.Context, rule *recurring.Rule) error {
	offsets, err := encodeOffsets(rule.ReminderOffsets)
	if err != nil {
		return fmt.Errorf("encoding reminder offsets: %w", err)
	}

	query := `
		INSERT INTO recurring_rules (
			user_id, service_name, category, amount, currency,
			cadence_kind, billing_day, billing_weekday, interval_days,
			anchor_date, timezone, reminder_offsets, reminder_hour,
			payment_link, payment_reference, status, next_due,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err = s.db.QueryRowContext(ctx, query,
		rule.UserID, rule.ServiceName, rule.Category, rule.Amount, rule.Currency,
		rule.Cadence.Kind, nullableInt(rule.Cadence.Day), nullableWeekday(rule.Cadence), nullableInt(rule.Cadence.IntervalDays),
		nullableTime(rule.AnchorDate), rule.Timezone, offsets, rule.ReminderHour,
		nullableString(rule.PaymentLink), nullableString(rule.PaymentReference), rule.Status, nullableTime(rule.NextDue),
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating recurring rule: %w", err)
	}

	return nil
}

func (s *Store) GetRule(ctx context.Context, id int64) (*recurring.Rule, error) {
	query := `SELECT ` + selectRuleColumns + ` FROM recurring_rules WHERE id = $1`

	rule, err := scanRule(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recurring.ErrNotFound
		}

		return nil, fmt.Errorf("getting recurring rule: %w", err)
	}

	return rule, nil
}

func (s *Store) FindByService(ctx context.Context, userID, serviceName string) (*recurring.Rule, error) {
	query := `SELECT ` + selectRuleColumns + `
		FROM recurring_rules
		WHERE user_id = $1 AND LOWER(service_name) = LOWER($2) AND status != 'canceled'
		ORDER BY created_at DESC
		LIMIT 1`

	rule, err := scanRule(s.db.QueryRowContext(ctx, query, userID, serviceName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recurring.ErrNotFound
		}

		return nil, fmt.Errorf("finding recurring rule by service: %w", err)
	}

	return rule, nil
}

func (s *Store) ListRules(ctx context.Context, userID string) ([]*recurring.Rule, error) {
	query := `SELECT ` + selectRuleColumns + `
		FROM recurring_rules
		WHERE user_id = $1 AND status != 'canceled'
		ORDER BY id`

	return s.queryRules(ctx, query, userID)
}

func (s *Store) ListActiveRules(ctx context.Context) ([]*recurring.Rule, error) {
	query := `SELECT ` + selectRuleColumns + `
		FROM recurring_rules
		WHERE status = 'active'
		ORDER BY id`

	return s.queryRules(ctx, query)
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]*recurring.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing recurring rules: %w", err)
	}
	defer rows.Close()

	var rules []*recurring.Rule

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recurring rule: %w", err)
		}

		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

func (s *Store) UpdateRule(ctx context.Context, rule *recurring.Rule) error {
	offsets, err := encodeOffsets(rule.ReminderOffsets)
	if err != nil {
		return fmt.Errorf("encoding reminder offsets: %w", err)
	}

	query := `
		UPDATE recurring_rules SET
			service_name = $2, category = $3, amount = $4, currency = $5,
			cadence_kind = $6, billing_day = $7, billing_weekday = $8, interval_days = $9,
			anchor_date = $10, timezone = $11, reminder_offsets = $12, reminder_hour = $13,
			payment_link = $14, payment_reference = $15, status = $16, next_due = $17,
			canceled_at = $18, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = s.db.QueryRowContext(ctx, query,
		rule.ID,
		rule.ServiceName, rule.Category, rule.Amount, rule.Currency,
		rule.Cadence.Kind, nullableInt(rule.Cadence.Day), nullableWeekday(rule.Cadence), nullableInt(rule.Cadence.IntervalDays),
		nullableTime(rule.AnchorDate), rule.Timezone, offsets, rule.ReminderHour,
		nullableString(rule.PaymentLink), nullableString(rule.PaymentReference), rule.Status, nullableTime(rule.NextDue),
		rule.CanceledAt,
	).Scan(&rule.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return recurring.ErrNotFound
		}

		return fmt.Errorf("updating recurring rule: %w", err)
	}

	return nil
}

func (s *Store) CancelAll(ctx context.Context, userID string) (int, error) {
	query := `
		UPDATE recurring_rules
		SET status = 'canceled', canceled_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND status != 'canceled'
	`

	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("canceling recurring rules: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting canceled rules: %w", err)
	}

	return int(affected), nil
}

func nullableInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

// nullableWeekday keys validity on the cadence kind, not the value: Sunday is
// weekday 0 and must round-trip as a real column value for weekly rules.
func nullableWeekday(c recurring.Cadence) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(c.Weekday), Valid: c.Kind == recurring.CadenceWeekly}
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
