// Package conversation drives the chat loop: it routes each incoming message
// through commands, the pending-action state machine and the extractor, and
// produces the bot's reply.
package conversation

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNoPending is returned when a user has no live pending action. An expired
// action is treated as absent.
var ErrNoPending = errors.New("no pending action")

// ActionType discriminates what a pending action is waiting for.
type ActionType string

const (
	// ActionConfirmTransaction waits for yes/no on one or more drafts.
	ActionConfirmTransaction ActionType = "confirm_transaction"

	// ActionConfirmClear waits for yes/no on wiping the ledger.
	ActionConfirmClear ActionType = "confirm_clear"

	// ActionConfirmClearRecurring waits for yes/no on canceling every rule.
	ActionConfirmClearRecurring ActionType = "confirm_clear_recurring"

	// ActionRecurringSetup collects the missing fields of a half-configured
	// rule, one question at a time.
	ActionRecurringSetup ActionType = "recurring_setup"
)

// SetupStage is the field the recurring setup flow is currently asking for.
type SetupStage string

const (
	StageBillingDay SetupStage = "billing_day"
	StageOffsets    SetupStage = "offsets"
	StageHour       SetupStage = "hour"
)

// PendingAction is the single open question a user may have. The store keys
// it by user, so writing a new one supersedes whatever was pending before.
type PendingAction struct {
	ID        int64
	UserID    string
	Type      ActionType
	Payload   json.RawMessage
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the action's TTL has passed.
func (p *PendingAction) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// setupPayload is the recurring_setup action payload.
type setupPayload struct {
	RuleID int64      `json:"rule_id"`
	Stage  SetupStage `json:"stage"`
	Weekly bool       `json:"weekly"`
}
