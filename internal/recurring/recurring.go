// Package recurring holds the durable definitions of periodic obligations and
// the cadence math that rolls them forward.
package recurring

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("recurring rule not found")

	// ErrInvalidField is a user-facing validation error on management commands.
	ErrInvalidField = errors.New("invalid recurring field")
)

// Status is the lifecycle state of a rule. Pending rules are half-configured
// (still collecting billing day / reminders) and are skipped by the generator.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusCanceled Status = "canceled"
)

// CadenceKind selects which schedule the rule follows.
type CadenceKind string

const (
	CadenceMonthly CadenceKind = "monthly"
	CadenceWeekly  CadenceKind = "weekly"
	CadenceCustom  CadenceKind = "custom"
)

// Cadence is a tagged variant: exactly the fields for its kind are meaningful,
// so there is no "one of three nullable columns" invariant to re-check at
// runtime. Monthly uses Day, weekly uses Weekday, custom uses IntervalDays
// from the rule's anchor date.
type Cadence struct {
	Kind         CadenceKind
	Day          int
	Weekday      time.Weekday
	IntervalDays int
}

func (c Cadence) Validate() error {
	switch c.Kind {
	case CadenceMonthly:
		if c.Day < 1 || c.Day > 31 {
			return fmt.Errorf("%w: billing day %d out of range", ErrInvalidField, c.Day)
		}
	case CadenceWeekly:
		if c.Weekday < time.Sunday || c.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidField, c.Weekday)
		}
	case CadenceCustom:
		if c.IntervalDays < 1 {
			return fmt.Errorf("%w: interval must be at least one day", ErrInvalidField)
		}
	default:
		return fmt.Errorf("%w: unknown cadence %q", ErrInvalidField, c.Kind)
	}

	return nil
}

// Rule is a durable recurring obligation.
type Rule struct {
	ID               int64
	UserID           string
	ServiceName      string
	Category         string
	Amount           decimal.Decimal
	Currency         string
	Cadence          Cadence
	AnchorDate       time.Time
	Timezone         string
	ReminderOffsets  []int
	ReminderHour     int
	PaymentLink      string
	PaymentReference string
	Status           Status
	NextDue          time.Time
	CanceledAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Location resolves the rule's IANA timezone, falling back to UTC when the
// stored name no longer loads.
func (r *Rule) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}

// NormalizeOffsets deduplicates, drops negatives and sorts descending. The
// zero offset (remind on the due day itself) is always present.
func NormalizeOffsets(offsets []int) []int {
	seen := map[int]struct{}{0: {}}
	out := []int{0}

	for _, o := range offsets {
		if o < 0 {
			continue
		}

		if _, dup := seen[o]; dup {
			continue
		}

		seen[o] = struct{}{}
		out = append(out, o)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(out)))

	return out
}
