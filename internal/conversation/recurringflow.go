package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quipubot/quipu/internal/extractor"
	"github.com/quipubot/quipu/internal/parse"
	"github.com/quipubot/quipu/internal/recurring"
)

// startRecurringSetup creates a half-configured rule from a draft that looked
// recurring and opens the question flow that completes it.
func (e *Engine) startRecurringSetup(ctx context.Context, userID string, draft extractor.Draft) (string, error) {
	serviceName := draft.Concept
	if serviceName == "" {
		serviceName = draft.Category
	}

	category := draft.Category
	if category == "" {
		category = "subscriptions"
	}

	weekly := draft.Recurrence == "weekly"

	cadence := recurring.Cadence{Kind: recurring.CadenceMonthly}
	if weekly {
		cadence.Kind = recurring.CadenceWeekly
	}

	rule, err := e.rules.Create(ctx, recurring.CreateParams{
		UserID:      userID,
		ServiceName: serviceName,
		Category:    category,
		Amount:      draft.Amount,
		Currency:    draft.Currency,
		Cadence:     cadence,
		AnchorDate:  draft.Date,
		Status:      recurring.StatusPending,
	})
	if err != nil {
		return "", fmt.Errorf("creating recurring rule: %w", err)
	}

	payload, err := json.Marshal(setupPayload{RuleID: rule.ID, Stage: StageBillingDay, Weekly: weekly})
	if err != nil {
		return "", fmt.Errorf("encoding setup payload: %w", err)
	}

	action := &PendingAction{
		UserID:    userID,
		Type:      ActionRecurringSetup,
		Payload:   payload,
		ExpiresAt: e.now().Add(e.cfg.PendingTTL),
	}

	if err := e.pending.SavePending(ctx, action); err != nil {
		return "", fmt.Errorf("saving setup action: %w", err)
	}

	if weekly {
		return fmt.Sprintf("Veo que %s se repite. ¿Qué día de la semana te cobran?", rule.ServiceName), nil
	}

	return fmt.Sprintf("Veo que %s se repite. ¿Qué día del mes te cobran? (1 al 31)", rule.ServiceName), nil
}

func (e *Engine) resolveRecurringSetup(ctx context.Context, userID string, pending *PendingAction, text string) (string, bool, error) {
	var payload setupPayload
	if err := json.Unmarshal(pending.Payload, &payload); err != nil {
		return "", false, fmt.Errorf("decoding setup payload: %w", err)
	}

	if parse.IsNegative(text) {
		if err := e.pending.DeletePending(ctx, userID); err != nil {
			return "", false, fmt.Errorf("clearing setup action: %w", err)
		}

		return "Listo, lo dejo guardado sin recordatorios. Actívalo cuando quieras desde /recurrings.", true, nil
	}

	switch payload.Stage {
	case StageBillingDay:
		return e.setupBillingDay(ctx, userID, payload, text)
	case StageOffsets:
		return e.setupOffsets(ctx, userID, payload, text)
	case StageHour:
		return e.setupHour(ctx, userID, payload, text)
	default:
		return "", false, fmt.Errorf("unknown setup stage %q", payload.Stage)
	}
}

func (e *Engine) setupBillingDay(ctx context.Context, userID string, payload setupPayload, text string) (string, bool, error) {
	var cadence recurring.Cadence

	if payload.Weekly {
		weekday, ok := parse.ParseWeekday(text)
		if !ok {
			return "No entendí el día. Dime uno como \"viernes\".", true, nil
		}

		cadence = recurring.Cadence{Kind: recurring.CadenceWeekly, Weekday: weekday}
	} else {
		day, ok := parse.ParseBillingDay(text)
		if !ok {
			return "No entendí el día. Dime un número del 1 al 31.", true, nil
		}

		cadence = recurring.Cadence{Kind: recurring.CadenceMonthly, Day: day}
	}

	if _, err := e.rules.SetCadence(ctx, userID, payload.RuleID, cadence); err != nil {
		return "", false, err
	}

	if err := e.advanceSetup(ctx, userID, payload, StageOffsets); err != nil {
		return "", false, err
	}

	return "¿Cuántos días antes te aviso? (ej: \"3 y 1\"; el mismo día siempre te aviso)", true, nil
}

func (e *Engine) setupOffsets(ctx context.Context, userID string, payload setupPayload, text string) (string, bool, error) {
	offsets := parse.ParseReminderOffsets(text)
	if len(offsets) == 0 {
		return "No entendí los días. Prueba algo como \"3 y 1\".", true, nil
	}

	if _, err := e.rules.SetOffsets(ctx, userID, payload.RuleID, offsets); err != nil {
		return "", false, err
	}

	if err := e.advanceSetup(ctx, userID, payload, StageHour); err != nil {
		return "", false, err
	}

	return "¿A qué hora te aviso? (ej: \"9 am\")", true, nil
}

func (e *Engine) setupHour(ctx context.Context, userID string, payload setupPayload, text string) (string, bool, error) {
	hour, ok := parse.ParseReminderHour(text)
	if !ok {
		return "No entendí la hora. Prueba algo como \"9 am\" o \"20:00\".", true, nil
	}

	if _, err := e.rules.SetReminderHour(ctx, userID, payload.RuleID, hour); err != nil {
		return "", false, err
	}

	rule, err := e.rules.Activate(ctx, userID, payload.RuleID)
	if err != nil {
		return "", false, err
	}

	if err := e.pending.DeletePending(ctx, userID); err != nil {
		return "", false, fmt.Errorf("clearing setup action: %w", err)
	}

	reply := fmt.Sprintf(
		"Quedó configurado: %s de $%s %s, te aviso %s a las %s. Próximo cobro: %s. ✅",
		rule.ServiceName, rule.Amount.StringFixed(0), rule.Currency,
		describeOffsets(rule.ReminderOffsets), formatHour(rule.ReminderHour),
		rule.NextDue.Format("02/01"),
	)

	return reply, true, nil
}

// advanceSetup rewrites the pending action at the next stage with a fresh TTL.
func (e *Engine) advanceSetup(ctx context.Context, userID string, payload setupPayload, stage SetupStage) error {
	payload.Stage = stage

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding setup payload: %w", err)
	}

	action := &PendingAction{
		UserID:    userID,
		Type:      ActionRecurringSetup,
		Payload:   raw,
		ExpiresAt: e.now().Add(e.cfg.PendingTTL),
	}

	if err := e.pending.SavePending(ctx, action); err != nil {
		return fmt.Errorf("saving setup action: %w", err)
	}

	return nil
}

func (e *Engine) setupQuestion(pending *PendingAction) string {
	var payload setupPayload
	if err := json.Unmarshal(pending.Payload, &payload); err != nil {
		return "¿Seguimos? Responde la última pregunta."
	}

	switch payload.Stage {
	case StageBillingDay:
		if payload.Weekly {
			return "¿Qué día de la semana te cobran?"
		}

		return "¿Qué día del mes te cobran? (1 al 31)"
	case StageOffsets:
		return "¿Cuántos días antes te aviso? (ej: \"3 y 1\")"
	case StageHour:
		return "¿A qué hora te aviso? (ej: \"9 am\")"
	default:
		return "¿Seguimos? Responde la última pregunta."
	}
}

func formatHour(hour int) string {
	t := time.Date(2000, 1, 1, hour, 0, 0, 0, time.UTC)

	return t.Format("3 pm")
}
