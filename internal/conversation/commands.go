package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/quipubot/quipu/internal/billing"
	"github.com/quipubot/quipu/internal/ledger"
	"github.com/quipubot/quipu/internal/parse"
	"github.com/quipubot/quipu/internal/recurring"
)

func (e *Engine) handleCommand(ctx context.Context, userID, text string) (string, error) {
	command := strings.ToLower(strings.Fields(text)[0])

	// Telegram suffixes group commands with the bot name: /list@quipubot.
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}

	switch command {
	case "/start", "/help":
		return replyWelcome, nil

	case "/list":
		return e.commandList(ctx, userID)

	case "/summary":
		return e.commandSummary(ctx, userID)

	case "/recurrings":
		return e.commandRecurrings(ctx, userID)

	case "/undo":
		entry, err := e.ledger.UndoLast(ctx, userID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return "No tienes movimientos que borrar.", nil
			}

			return "", err
		}

		return fmt.Sprintf("Borré el último: $%s %s en %s.", entry.Amount.StringFixed(0), entry.Currency, entry.Category), nil

	case "/clear":
		action := &PendingAction{
			UserID:    userID,
			Type:      ActionConfirmClear,
			ExpiresAt: e.now().Add(e.cfg.PendingTTL),
		}
		if err := e.pending.SavePending(ctx, action); err != nil {
			return "", fmt.Errorf("saving pending action: %w", err)
		}

		return "⚠️ Esto borra TODOS tus movimientos. ¿Seguro? Responde sí o no.", nil

	case "/clear_recurrings":
		action := &PendingAction{
			UserID:    userID,
			Type:      ActionConfirmClearRecurring,
			ExpiresAt: e.now().Add(e.cfg.PendingTTL),
		}
		if err := e.pending.SavePending(ctx, action); err != nil {
			return "", fmt.Errorf("saving pending action: %w", err)
		}

		return "⚠️ Esto cancela todos tus pagos recurrentes y sus recordatorios. ¿Seguro? Responde sí o no.", nil

	case "/cancel":
		pending, err := e.livePending(ctx, userID)
		if err != nil {
			return "", err
		}

		if pending == nil {
			return "No hay nada pendiente que cancelar.", nil
		}

		if err := e.pending.DeletePending(ctx, userID); err != nil {
			return "", fmt.Errorf("clearing pending action: %w", err)
		}

		return "Listo, descarté lo que estaba pendiente.", nil

	default:
		return "No conozco ese comando. Usa /help para ver lo que puedo hacer.", nil
	}
}

func (e *Engine) commandList(ctx context.Context, userID string) (string, error) {
	entries, err := e.ledger.List(ctx, userID, e.cfg.ListLimit)
	if err != nil {
		return "", err
	}

	if len(entries) == 0 {
		return "Todavía no tienes movimientos. Cuéntame un gasto como \"5k en comida\".", nil
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Tus últimos %d movimientos:\n", len(entries))

	for _, entry := range entries {
		label := entry.Merchant
		if label == "" {
			label = entry.Category
		}

		fmt.Fprintf(&b, "• %s $%s %s — %s\n", entry.Date.Format("02/01"), entry.Amount.StringFixed(0), entry.Currency, label)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func (e *Engine) commandSummary(ctx context.Context, userID string) (string, error) {
	now := e.now()

	totals, err := e.ledger.Summary(ctx, userID, now.Year(), now.Month())
	if err != nil {
		return "", err
	}

	if len(totals) == 0 {
		return "Este mes no tienes movimientos todavía.", nil
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Resumen de %s:\n", now.Format("01/2006"))

	for _, t := range totals {
		fmt.Fprintf(&b, "• %s (%s): $%s en %d movimientos\n", t.Category, t.Kind, t.Total.StringFixed(0), t.Count)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func (e *Engine) commandRecurrings(ctx context.Context, userID string) (string, error) {
	rules, err := e.rules.List(ctx, userID)
	if err != nil {
		return "", err
	}

	if len(rules) == 0 {
		return "No tienes pagos recurrentes. Dime algo como \"pago 26900 de netflix cada mes\" para crear uno.", nil
	}

	var b strings.Builder

	b.WriteString("Tus pagos recurrentes:\n")

	for _, rule := range rules {
		fmt.Fprintf(&b, "• #%d %s — $%s %s [%s]", rule.ID, rule.ServiceName, rule.Amount.StringFixed(0), rule.Currency, rule.Status)

		if rule.Status == recurring.StatusActive && !rule.NextDue.IsZero() {
			fmt.Fprintf(&b, " próximo: %s", rule.NextDue.Format("02/01"))
		}

		b.WriteString("\n")
	}

	b.WriteString("Puedes decir: pausar #1, activar #1, cancelar #1, monto #1 30000, recordatorios #1 3 y 1.")

	return b.String(), nil
}

var payPhrase = regexp.MustCompile(`^(?:ya\s+)?(?:pague|pagamos)\s+(?:el\s+|la\s+)?(.+)$`)

// handlePayment settles an open bill from phrases like "ya pagué netflix".
// Messages that carry an amount are ordinary transactions, not settlements.
func (e *Engine) handlePayment(ctx context.Context, userID, text string) (string, bool, error) {
	if parse.AmountCount(text) > 0 {
		return "", false, nil
	}

	m := payPhrase.FindStringSubmatch(parse.Fold(text))
	if m == nil {
		return "", false, nil
	}

	serviceName := strings.TrimSpace(m[1])

	rule, err := e.rules.FindByService(ctx, userID, serviceName)
	if err != nil {
		if errors.Is(err, recurring.ErrNotFound) {
			return fmt.Sprintf("No tengo un pago recurrente llamado %q. Si quieres registrarlo como gasto, dime el monto.", serviceName), true, nil
		}

		return "", false, err
	}

	instance, err := e.bills.PayRule(ctx, rule)
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return fmt.Sprintf("No tienes una factura abierta de %s ahora mismo.", rule.ServiceName), true, nil
		}

		return "", false, err
	}

	category := rule.Category
	if category == "" {
		category = "subscriptions"
	}

	_, err = e.ledger.Record(ctx, ledger.RecordParams{
		UserID:     userID,
		Kind:       ledger.KindExpense,
		Amount:     instance.Amount,
		Currency:   instance.Currency,
		Category:   category,
		Merchant:   rule.ServiceName,
		Date:       e.now(),
		RawText:    text,
		Confidence: 1,
	})
	if err != nil {
		return "", false, fmt.Errorf("mirroring payment to ledger: %w", err)
	}

	reply := fmt.Sprintf("💸 Registrado el pago de %s: $%s %s.", rule.ServiceName, instance.Amount.StringFixed(0), instance.Currency)
	if !rule.NextDue.IsZero() {
		reply += fmt.Sprintf(" Próximo cobro: %s.", rule.NextDue.Format("02/01"))
	}

	return reply, true, nil
}

var (
	pausePhrase     = regexp.MustCompile(`^pausar\s+#?(\S+)$`)
	activatePhrase  = regexp.MustCompile(`^activar\s+#?(\S+)$`)
	cancelPhrase    = regexp.MustCompile(`^cancelar\s+#?(\S+)$`)
	amountPhrase    = regexp.MustCompile(`^monto\s+#?(\S+)\s+(.+)$`)
	remindersPhrase = regexp.MustCompile(`^recordatorios\s+#?(\S+)\s+(.+)$`)
)

// handleRulePhrase covers the rule management phrases. Rules can be addressed
// by their number from /recurrings or by service name.
func (e *Engine) handleRulePhrase(ctx context.Context, userID, text string) (string, bool, error) {
	folded := parse.Fold(text)

	if m := pausePhrase.FindStringSubmatch(folded); m != nil {
		rule, reply, err := e.ruleFromToken(ctx, userID, m[1])
		if rule == nil {
			return reply, true, err
		}

		if _, err := e.rules.Pause(ctx, userID, rule.ID); err != nil {
			return "", false, err
		}

		return fmt.Sprintf("Pausé %s. No te llegarán recordatorios nuevos hasta que digas \"activar #%d\".", rule.ServiceName, rule.ID), true, nil
	}

	if m := activatePhrase.FindStringSubmatch(folded); m != nil {
		rule, reply, err := e.ruleFromToken(ctx, userID, m[1])
		if rule == nil {
			return reply, true, err
		}

		updated, err := e.rules.Activate(ctx, userID, rule.ID)
		if err != nil {
			if errors.Is(err, recurring.ErrInvalidField) {
				return fmt.Sprintf("A %s le falta configuración. Dime \"pago %s %s cada mes\" para completarla.", rule.ServiceName, rule.Amount.StringFixed(0), rule.ServiceName), true, nil
			}

			return "", false, err
		}

		return fmt.Sprintf("Activé %s. Próximo cobro: %s.", updated.ServiceName, updated.NextDue.Format("02/01")), true, nil
	}

	if m := cancelPhrase.FindStringSubmatch(folded); m != nil {
		rule, reply, err := e.ruleFromToken(ctx, userID, m[1])
		if rule == nil {
			return reply, true, err
		}

		if _, err := e.rules.Cancel(ctx, userID, rule.ID); err != nil {
			return "", false, err
		}

		if _, err := e.bills.RetireRule(ctx, rule.ID); err != nil {
			return "", false, fmt.Errorf("retiring reminders: %w", err)
		}

		return fmt.Sprintf("Cancelé %s y sus recordatorios pendientes.", rule.ServiceName), true, nil
	}

	if m := amountPhrase.FindStringSubmatch(folded); m != nil {
		rule, reply, err := e.ruleFromToken(ctx, userID, m[1])
		if rule == nil {
			return reply, true, err
		}

		amount, ok := parse.ParseAmount(m[2])
		if !ok {
			return "No entendí el monto. Prueba algo como \"monto #1 30000\".", true, nil
		}

		updated, err := e.rules.SetAmount(ctx, userID, rule.ID, amount)
		if err != nil {
			return "", false, err
		}

		return fmt.Sprintf("Listo, %s queda en $%s %s.", updated.ServiceName, updated.Amount.StringFixed(0), updated.Currency), true, nil
	}

	if m := remindersPhrase.FindStringSubmatch(folded); m != nil {
		rule, reply, err := e.ruleFromToken(ctx, userID, m[1])
		if rule == nil {
			return reply, true, err
		}

		offsets := parse.ParseReminderOffsets(m[2])
		if len(offsets) == 0 {
			return "No entendí los días. Prueba algo como \"recordatorios #1 3 y 1\".", true, nil
		}

		updated, err := e.rules.SetOffsets(ctx, userID, rule.ID, offsets)
		if err != nil {
			return "", false, err
		}

		return fmt.Sprintf("Listo, te aviso de %s %s antes.", updated.ServiceName, describeOffsets(updated.ReminderOffsets)), true, nil
	}

	return "", false, nil
}

// ruleFromToken resolves "#3", "3" or a service name to a rule. A nil rule
// with a non-empty reply means "answered, nothing to do".
func (e *Engine) ruleFromToken(ctx context.Context, userID, token string) (*recurring.Rule, string, error) {
	if id, err := strconv.ParseInt(token, 10, 64); err == nil {
		rule, err := e.rules.Get(ctx, userID, id)
		if err != nil {
			if errors.Is(err, recurring.ErrNotFound) {
				return nil, fmt.Sprintf("No encontré el pago recurrente #%d. Mira /recurrings.", id), nil
			}

			return nil, "", err
		}

		return rule, "", nil
	}

	rule, err := e.rules.FindByService(ctx, userID, token)
	if err != nil {
		if errors.Is(err, recurring.ErrNotFound) {
			return nil, fmt.Sprintf("No encontré un pago recurrente llamado %q. Mira /recurrings.", token), nil
		}

		return nil, "", err
	}

	return rule, "", nil
}

func describeOffsets(offsets []int) string {
	parts := make([]string, 0, len(offsets))

	for _, o := range offsets {
		switch o {
		case 0:
			parts = append(parts, "el mismo día")
		case 1:
			parts = append(parts, "1 día")
		default:
			parts = append(parts, fmt.Sprintf("%d días", o))
		}
	}

	return strings.Join(parts, ", ")
}

const replyWelcome = `¡Hola! Soy Quipu, tu contador de bolsillo 🪢
Cuéntame tus gastos en lenguaje normal: "5k en comida", "me pagaron 2 palos", "pago 26900 de netflix cada mes".

Comandos:
/list — últimos movimientos
/summary — resumen del mes
/recurrings — tus pagos recurrentes
/undo — borrar el último movimiento
/clear — borrar todo
/cancel — descartar lo pendiente`
