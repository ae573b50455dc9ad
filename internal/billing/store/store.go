package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quipubot/quipu/internal/billing"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertInstance inserts the instance or, when the rule already has one for
// the period, loads the existing row into it. Returns whether a new row was
// created.
func (s *Store) UpsertInstance(ctx context.Context, instance *billing.Instance) (bool, error) {
	insert := `
		INSERT INTO bill_instances (recurring_id, user_id, period_key, due_date, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT ON CONSTRAINT uq_bill_instance_period DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, insert,
		instance.RecurringID, instance.UserID, instance.PeriodKey,
		instance.DueDate, instance.Amount, instance.Currency, instance.Status,
	).Scan(&instance.ID, &instance.CreatedAt, &instance.UpdatedAt)
	if err == nil {
		return true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("inserting bill instance: %w", err)
	}

	// Conflict: the period already has its instance; adopt it.
	query := `
		SELECT id, status, paid_at, created_at, updated_at
		FROM bill_instances
		WHERE recurring_id = $1 AND period_key = $2
	`

	err = s.db.QueryRowContext(ctx, query, instance.RecurringID, instance.PeriodKey).
		Scan(&instance.ID, &instance.Status, &instance.PaidAt, &instance.CreatedAt, &instance.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("loading existing bill instance: %w", err)
	}

	return false, nil
}

func (s *Store) FindOpenInstanceByRule(ctx context.Context, recurringID int64) (*billing.Instance, error) {
	query := `
		SELECT id, recurring_id, user_id, period_key, due_date, amount, currency, status, paid_at, created_at, updated_at
		FROM bill_instances
		WHERE recurring_id = $1 AND status IN ('pending', 'reminded')
		ORDER BY due_date
		LIMIT 1
	`

	var i billing.Instance

	err := s.db.QueryRowContext(ctx, query, recurringID).Scan(
		&i.ID, &i.RecurringID, &i.UserID, &i.PeriodKey, &i.DueDate,
		&i.Amount, &i.Currency, &i.Status, &i.PaidAt, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, billing.ErrNotFound
		}

		return nil, fmt.Errorf("finding open bill instance: %w", err)
	}

	return &i, nil
}

func (s *Store) MarkInstancePaid(ctx context.Context, id int64, paidAt time.Time) error {
	return s.setInstanceStatus(ctx, id, billing.InstancePaid, &paidAt)
}

func (s *Store) MarkInstanceSkipped(ctx context.Context, id int64) error {
	return s.setInstanceStatus(ctx, id, billing.InstanceSkipped, nil)
}

// MarkInstanceReminded only moves pending instances forward; paid or skipped
// bills keep their terminal status even when a late reminder lands.
func (s *Store) MarkInstanceReminded(ctx context.Context, id int64) error {
	query := `
		UPDATE bill_instances
		SET status = 'reminded', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("marking instance reminded: %w", err)
	}

	return nil
}

func (s *Store) setInstanceStatus(ctx context.Context, id int64, status billing.InstanceStatus, paidAt *time.Time) error {
	query := `
		UPDATE bill_instances
		SET status = $2, paid_at = $3, updated_at = NOW()
		WHERE id = $1
	`

	res, err := s.db.ExecContext(ctx, query, id, status, paidAt)
	if err != nil {
		return fmt.Errorf("updating bill instance status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("counting updated instances: %w", err)
	}

	if affected == 0 {
		return billing.ErrNotFound
	}

	return nil
}

// CreateReminderEvents inserts the batch, silently skipping events that were
// already scheduled by an earlier run. Returns how many were new.
func (s *Store) CreateReminderEvents(ctx context.Context, events []*billing.ReminderEvent) (int, error) {
	insert := `
		INSERT INTO bill_reminder_events (bill_instance_id, recurring_id, user_id, reminder_offset, scheduled_for, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT ON CONSTRAINT uq_bill_reminder_once DO NOTHING
		RETURNING id
	`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning reminder batch: %w", err)
	}
	defer tx.Rollback()

	created := 0

	for _, event := range events {
		err := tx.QueryRowContext(ctx, insert,
			event.BillInstanceID, event.RecurringID, event.UserID,
			event.Offset, event.ScheduledFor, event.Status,
		).Scan(&event.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}

			return 0, fmt.Errorf("inserting reminder event: %w", err)
		}

		created++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing reminder batch: %w", err)
	}

	return created, nil
}

// ClaimDueReminders atomically flips due pending events to sent and returns
// them joined with the bill and rule fields the dispatcher formats with.
// SKIP LOCKED lets concurrent dispatchers drain disjoint batches.
func (s *Store) ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]*billing.DueReminder, error) {
	query := `
		WITH claimed AS (
			UPDATE bill_reminder_events
			SET status = 'sent', sent_at = NOW()
			WHERE id IN (
				SELECT id FROM bill_reminder_events
				WHERE status = 'pending' AND scheduled_for <= $1
				ORDER BY scheduled_for
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, bill_instance_id, recurring_id, user_id, reminder_offset, scheduled_for, sent_at
		)
		SELECT c.id, c.bill_instance_id, c.recurring_id, c.user_id, c.reminder_offset, c.scheduled_for, c.sent_at,
		       r.service_name, b.amount, b.currency, b.due_date, r.payment_link, r.payment_reference
		FROM claimed c
		JOIN bill_instances b ON b.id = c.bill_instance_id
		JOIN recurring_rules r ON r.id = c.recurring_id
		ORDER BY c.scheduled_for
	`

	rows, err := s.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming due reminders: %w", err)
	}
	defer rows.Close()

	var due []*billing.DueReminder

	for rows.Next() {
		var (
			d               billing.DueReminder
			link, reference sql.NullString
		)

		if err := rows.Scan(
			&d.Event.ID, &d.Event.BillInstanceID, &d.Event.RecurringID, &d.Event.UserID,
			&d.Event.Offset, &d.Event.ScheduledFor, &d.Event.SentAt,
			&d.ServiceName, &d.Amount, &d.Currency, &d.DueDate, &link, &reference,
		); err != nil {
			return nil, fmt.Errorf("scanning due reminder: %w", err)
		}

		d.Event.Status = billing.EventSent
		d.PaymentLink = link.String
		d.PaymentReference = reference.String
		due = append(due, &d)
	}

	return due, rows.Err()
}

func (s *Store) ReleaseReminder(ctx context.Context, id int64) error {
	query := `
		UPDATE bill_reminder_events
		SET status = 'pending', sent_at = NULL
		WHERE id = $1 AND status = 'sent'
	`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("releasing reminder: %w", err)
	}

	return nil
}

func (s *Store) ObsoleteReminders(ctx context.Context, instanceID int64) (int, error) {
	query := `
		UPDATE bill_reminder_events
		SET status = 'obsolete'
		WHERE bill_instance_id = $1 AND status = 'pending'
	`

	return s.obsolete(ctx, query, instanceID)
}

func (s *Store) ObsoleteRemindersForRule(ctx context.Context, recurringID int64) (int, error) {
	query := `
		UPDATE bill_reminder_events
		SET status = 'obsolete'
		WHERE recurring_id = $1 AND status = 'pending'
	`

	return s.obsolete(ctx, query, recurringID)
}

func (s *Store) obsolete(ctx context.Context, query string, id int64) (int, error) {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("obsoleting reminders: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting obsoleted reminders: %w", err)
	}

	return int(affected), nil
}
