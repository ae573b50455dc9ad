// Package billing materializes recurring rules into concrete bill instances
// and the reminder events that announce them.
package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quipubot/quipu/internal/recurring"
)

var ErrNotFound = errors.New("bill instance not found")

// InstanceStatus tracks a bill through its life: pending until the first
// reminder goes out, reminded until the user settles or skips it.
type InstanceStatus string

const (
	InstancePending  InstanceStatus = "pending"
	InstanceReminded InstanceStatus = "reminded"
	InstancePaid     InstanceStatus = "paid"
	InstanceSkipped  InstanceStatus = "skipped"
)

// Settled reports whether the bill reached a terminal state.
func (s InstanceStatus) Settled() bool {
	return s == InstancePaid || s == InstanceSkipped
}

// EventStatus tracks a single reminder. Obsolete events belong to bills that
// were paid, skipped or canceled before the reminder fired.
type EventStatus string

const (
	EventPending  EventStatus = "pending"
	EventSent     EventStatus = "sent"
	EventObsolete EventStatus = "obsolete"
)

// Instance is one concrete occurrence of a recurring rule. At most one
// instance exists per rule and billing period; the store enforces this with a
// unique key so concurrent generator runs collapse into a single row.
type Instance struct {
	ID          int64
	RecurringID int64
	UserID      string
	PeriodKey   string
	DueDate     time.Time
	Amount      decimal.Decimal
	Currency    string
	Status      InstanceStatus
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PeriodKey identifies the billing period an instance belongs to. Monthly
// rules collapse to one instance per calendar month; weekly and custom
// cadences key on the due date itself.
func PeriodKey(cadence recurring.CadenceKind, dueDate time.Time) string {
	if cadence == recurring.CadenceMonthly {
		return fmt.Sprintf("%04d-%02d", dueDate.Year(), int(dueDate.Month()))
	}

	return dueDate.Format(time.DateOnly)
}

// ReminderEvent is a single scheduled notification for a bill instance.
// ScheduledFor is stored in UTC; the unique key on
// (instance, offset, scheduled_for) makes event creation idempotent.
type ReminderEvent struct {
	ID             int64
	BillInstanceID int64
	RecurringID    int64
	UserID         string
	Offset         int
	ScheduledFor   time.Time
	Status         EventStatus
	SentAt         *time.Time
	CreatedAt      time.Time
}

// DueReminder is a claimed reminder event joined with the bill and rule
// fields the dispatcher needs to compose the message.
type DueReminder struct {
	Event            ReminderEvent
	ServiceName      string
	Amount           decimal.Decimal
	Currency         string
	DueDate          time.Time
	PaymentLink      string
	PaymentReference string
}

// ScheduleFor computes the UTC instant a reminder fires: offset days before
// the due date, at the rule's reminder hour in the rule's timezone.
func ScheduleFor(rule *recurring.Rule, dueDate time.Time, offset int) time.Time {
	loc := rule.Location()
	day := dueDate.In(loc).AddDate(0, 0, -offset)

	return time.Date(day.Year(), day.Month(), day.Day(), rule.ReminderHour, 0, 0, 0, loc).UTC()
}
