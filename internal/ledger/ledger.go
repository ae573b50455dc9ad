package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("ledger entry not found")

// Kind classifies the financial movement an entry records.
type Kind string

const (
	KindExpense  Kind = "expense"
	KindIncome   Kind = "income"
	KindLoan     Kind = "loan"
	KindTransfer Kind = "transfer"
)

// Valid reports whether the kind is one of the known movement kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindExpense, KindIncome, KindLoan, KindTransfer:
		return true
	}

	return false
}

// Entry is a committed ledger record. Entries are immutable once created
// except for soft deletion.
type Entry struct {
	ID           uuid.UUID
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
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// Deleted reports whether the entry has been soft-deleted.
func (e *Entry) Deleted() bool {
	return e.DeletedAt != nil
}

// CategoryTotal is one row of a monthly summary.
type CategoryTotal struct {
	Category string
	Kind     Kind
	Total    decimal.Decimal
	Count    int
}
