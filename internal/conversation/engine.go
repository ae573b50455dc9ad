package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quipubot/quipu/internal/billing"
	"github.com/quipubot/quipu/internal/classifier"
	"github.com/quipubot/quipu/internal/extractor"
	"github.com/quipubot/quipu/internal/ledger"
	"github.com/quipubot/quipu/internal/parse"
	"github.com/quipubot/quipu/internal/recurring"
)

//go:generate mockgen -source=engine.go -destination=repository_mock.go -package=conversation
type Repository interface {
	SavePending(ctx context.Context, action *PendingAction) error
	GetPending(ctx context.Context, userID string) (*PendingAction, error)
	DeletePending(ctx context.Context, userID string) error
}

type Config struct {
	// ConfirmThreshold is the minimum confidence at which a draft commits
	// without asking.
	ConfirmThreshold float64

	// PendingTTL is how long an open question stays answerable.
	PendingTTL time.Duration

	// ListLimit caps the entries shown by the list command.
	ListLimit int
}

// Engine routes one user message to a reply. Messages from the same user are
// serialized with a per-user lock, so at most one pending action exists per
// user at any point.
type Engine struct {
	ledger  *ledger.Service
	rules   *recurring.Service
	bills   *billing.Service
	extract *extractor.Extractor
	pending Repository
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(
	ledgerSvc *ledger.Service,
	rulesSvc *recurring.Service,
	billsSvc *billing.Service,
	extract *extractor.Extractor,
	pending Repository,
	logger *slog.Logger,
	cfg Config,
) *Engine {
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 10
	}

	return &Engine{
		ledger:  ledgerSvc,
		rules:   rulesSvc,
		bills:   billsSvc,
		extract: extract,
		pending: pending,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the engine's clock. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[userID] = lock
	}

	return lock
}

// HandleMessage processes one incoming message and returns the reply text.
func (e *Engine) HandleMessage(ctx context.Context, userID, text string) (string, error) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return replyHelp, nil
	}

	if strings.HasPrefix(text, "/") {
		return e.handleCommand(ctx, userID, text)
	}

	pending, err := e.livePending(ctx, userID)
	if err != nil {
		return "", err
	}

	if pending != nil {
		reply, handled, err := e.resolvePending(ctx, userID, pending, text)
		if err != nil {
			return "", err
		}

		if handled {
			return reply, nil
		}
	}

	return e.handleFreeText(ctx, userID, text, pending)
}

// livePending loads the user's pending action, deleting and hiding it when
// expired.
func (e *Engine) livePending(ctx context.Context, userID string) (*PendingAction, error) {
	pending, err := e.pending.GetPending(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoPending) {
			return nil, nil
		}

		return nil, fmt.Errorf("loading pending action: %w", err)
	}

	if pending.Expired(e.now()) {
		if err := e.pending.DeletePending(ctx, userID); err != nil {
			return nil, fmt.Errorf("deleting expired action: %w", err)
		}

		return nil, nil
	}

	return pending, nil
}

// resolvePending tries to answer the open question with this message. When
// the message is neither a yes nor a no (nor a setup answer), handled is
// false and the message flows on as free text, superseding the question only
// if it produces something new.
func (e *Engine) resolvePending(ctx context.Context, userID string, pending *PendingAction, text string) (string, bool, error) {
	switch pending.Type {
	case ActionConfirmTransaction:
		return e.resolveConfirmTransaction(ctx, userID, pending, text)
	case ActionConfirmClear:
		return e.resolveConfirmClear(ctx, userID, text)
	case ActionConfirmClearRecurring:
		return e.resolveConfirmClearRecurring(ctx, userID, text)
	case ActionRecurringSetup:
		return e.resolveRecurringSetup(ctx, userID, pending, text)
	default:
		return "", false, nil
	}
}

func (e *Engine) resolveConfirmTransaction(ctx context.Context, userID string, pending *PendingAction, text string) (string, bool, error) {
	switch {
	case parse.IsAffirmative(text):
		var drafts []extractor.Draft
		if err := json.Unmarshal(pending.Payload, &drafts); err != nil {
			return "", false, fmt.Errorf("decoding pending drafts: %w", err)
		}

		// Commit first: a failed write keeps the question open so the user
		// can answer again instead of losing the confirmed drafts.
		reply, err := e.commitDrafts(ctx, userID, drafts)
		if err != nil {
			return "", false, err
		}

		if err := e.pending.DeletePending(ctx, userID); err != nil {
			e.logger.Error("clearing confirmed action",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
		}

		return reply, true, nil

	case parse.IsNegative(text):
		if err := e.pending.DeletePending(ctx, userID); err != nil {
			return "", false, fmt.Errorf("clearing pending action: %w", err)
		}

		return "Listo, lo descarté. No registré nada.", true, nil

	default:
		return "", false, nil
	}
}

func (e *Engine) resolveConfirmClear(ctx context.Context, userID, text string) (string, bool, error) {
	switch {
	case parse.IsAffirmative(text):
		if err := e.pending.DeletePending(ctx, userID); err != nil {
			return "", false, fmt.Errorf("clearing pending action: %w", err)
		}

		count, err := e.ledger.ClearAll(ctx, userID)
		if err != nil {
			return "", false, err
		}

		return fmt.Sprintf("Borré %d movimientos. Empezamos de cero. 🧹", count), true, nil

	case parse.IsNegative(text):
		if err := e.pending.DeletePending(ctx, userID); err != nil {
			return "", false, fmt.Errorf("clearing pending action: %w", err)
		}

		return "Tranqui, no borré nada.", true, nil

	default:
		return "", false, nil
	}
}

func (e *Engine) resolveConfirmClearRecurring(ctx context.Context, userID, text string) (string, bool, error) {
	switch {
	case parse.IsAffirmative(text):
		if err := e.pending.DeletePending(ctx, userID); err != nil {
			return "", false, fmt.Errorf("clearing pending action: %w", err)
		}

		rules, err := e.rules.List(ctx, userID)
		if err != nil {
			return "", false, err
		}

		count, err := e.rules.CancelAll(ctx, userID)
		if err != nil {
			return "", false, err
		}

		for _, rule := range rules {
			if _, err := e.bills.RetireRule(ctx, rule.ID); err != nil {
				e.logger.Error("retiring reminders for canceled rule",
					slog.Int64("rule_id", rule.ID),
					slog.String("error", err.Error()))
			}
		}

		return fmt.Sprintf("Cancelé %d pagos recurrentes con sus recordatorios.", count), true, nil

	case parse.IsNegative(text):
		if err := e.pending.DeletePending(ctx, userID); err != nil {
			return "", false, fmt.Errorf("clearing pending action: %w", err)
		}

		return "Tranqui, tus pagos recurrentes siguen igual.", true, nil

	default:
		return "", false, nil
	}
}

// handleFreeText runs payment phrases, rule management phrases and finally
// the extractor over an ordinary message.
func (e *Engine) handleFreeText(ctx context.Context, userID, text string, pending *PendingAction) (string, error) {
	if reply, ok, err := e.handlePayment(ctx, userID, text); err != nil || ok {
		return reply, err
	}

	if reply, ok, err := e.handleRulePhrase(ctx, userID, text); err != nil || ok {
		return reply, err
	}

	drafts, err := e.extract.Extract(ctx, text)
	if err != nil {
		switch {
		case errors.Is(err, extractor.ErrInputTooLong):
			return "Ese mensaje está muy largo. Mándame los gastos en mensajes más cortos.", nil
		case errors.Is(err, classifier.ErrTimeout), errors.Is(err, classifier.ErrUnavailable):
			e.logger.Warn("classifier unavailable", slog.String("error", err.Error()))
			return "Ahora mismo no pude procesar eso. Inténtalo de nuevo en un momento.", nil
		default:
			return "", fmt.Errorf("extracting drafts: %w", err)
		}
	}

	if len(drafts) == 0 {
		if pending != nil {
			return e.repromptPending(pending), nil
		}

		return replyHelp, nil
	}

	if minConfidence(drafts) >= e.cfg.ConfirmThreshold {
		// Committing also supersedes whatever question was open.
		if pending != nil {
			if err := e.pending.DeletePending(ctx, userID); err != nil {
				return "", fmt.Errorf("clearing pending action: %w", err)
			}
		}

		return e.commitDrafts(ctx, userID, drafts)
	}

	return e.askConfirmation(ctx, userID, drafts)
}

// askConfirmation stores the drafts as the user's single open question.
// Writing it replaces any previous pending action: last question wins.
func (e *Engine) askConfirmation(ctx context.Context, userID string, drafts []extractor.Draft) (string, error) {
	payload, err := json.Marshal(drafts)
	if err != nil {
		return "", fmt.Errorf("encoding drafts: %w", err)
	}

	action := &PendingAction{
		UserID:    userID,
		Type:      ActionConfirmTransaction,
		Payload:   payload,
		ExpiresAt: e.now().Add(e.cfg.PendingTTL),
	}

	if err := e.pending.SavePending(ctx, action); err != nil {
		return "", fmt.Errorf("saving pending action: %w", err)
	}

	var b strings.Builder

	b.WriteString("¿Registro esto?\n")

	for _, d := range drafts {
		fmt.Fprintf(&b, "• %s\n", describeDraft(d))
	}

	b.WriteString("Responde sí o no.")

	return b.String(), nil
}

// commitDrafts writes the drafts to the ledger and, when one of them looks
// recurring, opens the setup flow for it.
func (e *Engine) commitDrafts(ctx context.Context, userID string, drafts []extractor.Draft) (string, error) {
	params := make([]ledger.RecordParams, len(drafts))
	for i, d := range drafts {
		params[i] = ledger.RecordParams{
			UserID:       userID,
			Kind:         d.Kind,
			Amount:       d.Amount,
			Currency:     d.Currency,
			Category:     d.Category,
			Merchant:     d.Concept,
			Counterparty: d.Counterparty,
			Date:         d.Date,
			RawText:      d.RawText,
			Confidence:   d.Confidence,
		}
	}

	entries, err := e.ledger.RecordBatch(ctx, params)
	if err != nil {
		return "", fmt.Errorf("recording entries: %w", err)
	}

	var b strings.Builder

	if len(entries) == 1 {
		fmt.Fprintf(&b, "Anotado: %s ✅", describeDraft(drafts[0]))
	} else {
		fmt.Fprintf(&b, "Anoté %d movimientos ✅\n", len(entries))

		for _, d := range drafts {
			fmt.Fprintf(&b, "• %s\n", describeDraft(d))
		}
	}

	for _, d := range drafts {
		if !d.IsRecurring {
			continue
		}

		followUp, err := e.startRecurringSetup(ctx, userID, d)
		if err != nil {
			return "", err
		}

		b.WriteString("\n\n")
		b.WriteString(followUp)

		break
	}

	return b.String(), nil
}

func (e *Engine) repromptPending(pending *PendingAction) string {
	switch pending.Type {
	case ActionConfirmTransaction:
		return "Sigo esperando tu sí o no para registrar lo anterior."
	case ActionConfirmClear:
		return "¿Borro todos tus movimientos? Responde sí o no."
	case ActionConfirmClearRecurring:
		return "¿Cancelo todos tus pagos recurrentes? Responde sí o no."
	case ActionRecurringSetup:
		return "Seguimos configurando tu pago recurrente. " + e.setupQuestion(pending)
	default:
		return replyHelp
	}
}

func minConfidence(drafts []extractor.Draft) float64 {
	min := 1.0
	for _, d := range drafts {
		if d.Confidence < min {
			min = d.Confidence
		}
	}

	return min
}

func describeDraft(d extractor.Draft) string {
	label := d.Concept
	if label == "" {
		label = d.Category
	}

	verb := map[ledger.Kind]string{
		ledger.KindExpense:  "gasto",
		ledger.KindIncome:   "ingreso",
		ledger.KindLoan:     "préstamo",
		ledger.KindTransfer: "traspaso",
	}[d.Kind]

	return fmt.Sprintf("%s de $%s %s en %s (%s)", verb, d.Amount.StringFixed(0), d.Currency, label, d.Date.Format("02/01"))
}

const replyHelp = `No encontré montos en tu mensaje. Cuéntame tus gastos como "5k en comida" o usa:
/list — últimos movimientos
/summary — resumen del mes
/recurrings — tus pagos recurrentes
/undo — borrar el último
/cancel — descartar lo pendiente`
