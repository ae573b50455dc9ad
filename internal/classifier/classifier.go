// Package classifier defines the natural-language movement classifier the
// extractor falls back to when its rule layer has no confident read.
package classifier

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable means the classifier backend could not be reached or
	// returned garbage. Callers fall back to asking the user to rephrase.
	ErrUnavailable = errors.New("classifier unavailable")

	// ErrTimeout means the classifier call exceeded its deadline. The message
	// is treated as unparsed, never defaulted to a guessed draft.
	ErrTimeout = errors.New("classifier timed out")
)

// Result is the classifier's structured read of one message segment.
type Result struct {
	Kind         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Category     string          `json:"category"`
	Merchant     string          `json:"merchant"`
	Counterparty string          `json:"counterparty"`
	Date         string          `json:"date"`
	IsRecurring  bool            `json:"is_recurring"`
	Recurrence   string          `json:"recurrence"`
	Confidence   float64         `json:"confidence"`
}

//go:generate mockgen -source=classifier.go -destination=classifier_mock.go -package=classifier
type Classifier interface {
	Classify(ctx context.Context, text string) (*Result, error)
}
