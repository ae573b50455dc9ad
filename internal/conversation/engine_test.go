package conversation_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/quipubot/quipu/internal/billing"
	"github.com/quipubot/quipu/internal/classifier"
	"github.com/quipubot/quipu/internal/conversation"
	"github.com/quipubot/quipu/internal/extractor"
	"github.com/quipubot/quipu/internal/ledger"
	"github.com/quipubot/quipu/internal/recurring"
)

// The engine tests run real services over in-memory repositories so the
// state machine is exercised end to end, with only the classifier mocked.

type fakeLedgerRepo struct {
	entries  []*ledger.Entry
	failNext error
}

func (f *fakeLedgerRepo) CreateEntry(_ context.Context, entry *ledger.Entry) error {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	f.entries = append(f.entries, entry)

	return nil
}

func (f *fakeLedgerRepo) CreateEntries(ctx context.Context, entries []*ledger.Entry) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil

		return err
	}

	for _, entry := range entries {
		if err := f.CreateEntry(ctx, entry); err != nil {
			return err
		}
	}

	return nil
}

func (f *fakeLedgerRepo) ListEntries(_ context.Context, userID string, limit int) ([]*ledger.Entry, error) {
	var out []*ledger.Entry

	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].UserID == userID && !f.entries[i].Deleted() {
			out = append(out, f.entries[i])
		}
	}

	return out, nil
}

func (f *fakeLedgerRepo) SummarizeMonth(_ context.Context, userID string, year int, month time.Month) ([]ledger.CategoryTotal, error) {
	totals := map[string]*ledger.CategoryTotal{}

	for _, entry := range f.entries {
		if entry.UserID != userID || entry.Deleted() ||
			entry.Date.Year() != year || entry.Date.Month() != month {
			continue
		}

		key := entry.Category + "/" + string(entry.Kind)
		if totals[key] == nil {
			totals[key] = &ledger.CategoryTotal{Category: entry.Category, Kind: entry.Kind}
		}

		totals[key].Total = totals[key].Total.Add(entry.Amount)
		totals[key].Count++
	}

	var out []ledger.CategoryTotal
	for _, t := range totals {
		out = append(out, *t)
	}

	return out, nil
}

func (f *fakeLedgerRepo) SoftDeleteLast(_ context.Context, userID string) (*ledger.Entry, error) {
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].UserID == userID && !f.entries[i].Deleted() {
			now := time.Now()
			f.entries[i].DeletedAt = &now

			return f.entries[i], nil
		}
	}

	return nil, ledger.ErrNotFound
}

func (f *fakeLedgerRepo) SoftDeleteAll(_ context.Context, userID string) (int, error) {
	count := 0
	now := time.Now()

	for _, entry := range f.entries {
		if entry.UserID == userID && !entry.Deleted() {
			entry.DeletedAt = &now
			count++
		}
	}

	return count, nil
}

func (f *fakeLedgerRepo) active(userID string) []*ledger.Entry {
	var out []*ledger.Entry

	for _, entry := range f.entries {
		if entry.UserID == userID && !entry.Deleted() {
			out = append(out, entry)
		}
	}

	return out
}

type fakeRecurringRepo struct {
	rules  []*recurring.Rule
	nextID int64
}

func (f *fakeRecurringRepo) CreateRule(_ context.Context, rule *recurring.Rule) error {
	f.nextID++
	rule.ID = f.nextID
	rule.CreatedAt = time.Now()
	f.rules = append(f.rules, rule)

	return nil
}

func (f *fakeRecurringRepo) GetRule(_ context.Context, id int64) (*recurring.Rule, error) {
	for _, rule := range f.rules {
		if rule.ID == id {
			return rule, nil
		}
	}

	return nil, recurring.ErrNotFound
}

func (f *fakeRecurringRepo) FindByService(_ context.Context, userID, serviceName string) (*recurring.Rule, error) {
	for _, rule := range f.rules {
		if rule.UserID == userID && rule.Status != recurring.StatusCanceled &&
			strings.EqualFold(rule.ServiceName, serviceName) {
			return rule, nil
		}
	}

	return nil, recurring.ErrNotFound
}

func (f *fakeRecurringRepo) ListRules(_ context.Context, userID string) ([]*recurring.Rule, error) {
	var out []*recurring.Rule

	for _, rule := range f.rules {
		if rule.UserID == userID && rule.Status != recurring.StatusCanceled {
			out = append(out, rule)
		}
	}

	return out, nil
}

func (f *fakeRecurringRepo) ListActiveRules(_ context.Context) ([]*recurring.Rule, error) {
	var out []*recurring.Rule

	for _, rule := range f.rules {
		if rule.Status == recurring.StatusActive {
			out = append(out, rule)
		}
	}

	return out, nil
}

func (f *fakeRecurringRepo) UpdateRule(_ context.Context, rule *recurring.Rule) error {
	for i, existing := range f.rules {
		if existing.ID == rule.ID {
			f.rules[i] = rule
			return nil
		}
	}

	return recurring.ErrNotFound
}

func (f *fakeRecurringRepo) CancelAll(_ context.Context, userID string) (int, error) {
	count := 0
	now := time.Now()

	for _, rule := range f.rules {
		if rule.UserID == userID && rule.Status != recurring.StatusCanceled {
			rule.Status = recurring.StatusCanceled
			rule.CanceledAt = &now
			count++
		}
	}

	return count, nil
}

type fakeBillingRepo struct {
	instances []*billing.Instance
	events    []*billing.ReminderEvent
}

func (f *fakeBillingRepo) UpsertInstance(_ context.Context, instance *billing.Instance) (bool, error) {
	f.instances = append(f.instances, instance)
	return true, nil
}

func (f *fakeBillingRepo) FindOpenInstanceByRule(_ context.Context, recurringID int64) (*billing.Instance, error) {
	for _, i := range f.instances {
		if i.RecurringID == recurringID && (i.Status == billing.InstancePending || i.Status == billing.InstanceReminded) {
			return i, nil
		}
	}

	return nil, billing.ErrNotFound
}

func (f *fakeBillingRepo) MarkInstancePaid(_ context.Context, id int64, paidAt time.Time) error {
	for _, i := range f.instances {
		if i.ID == id {
			i.Status = billing.InstancePaid
			i.PaidAt = &paidAt
		}
	}

	return nil
}

func (f *fakeBillingRepo) MarkInstanceSkipped(_ context.Context, id int64) error {
	for _, i := range f.instances {
		if i.ID == id {
			i.Status = billing.InstanceSkipped
		}
	}

	return nil
}

func (f *fakeBillingRepo) MarkInstanceReminded(_ context.Context, id int64) error { return nil }

func (f *fakeBillingRepo) CreateReminderEvents(_ context.Context, events []*billing.ReminderEvent) (int, error) {
	f.events = append(f.events, events...)
	return len(events), nil
}

func (f *fakeBillingRepo) ClaimDueReminders(_ context.Context, _ time.Time, _ int) ([]*billing.DueReminder, error) {
	return nil, nil
}

func (f *fakeBillingRepo) ReleaseReminder(_ context.Context, _ int64) error { return nil }

func (f *fakeBillingRepo) ObsoleteReminders(_ context.Context, instanceID int64) (int, error) {
	count := 0

	for _, event := range f.events {
		if event.BillInstanceID == instanceID && event.Status == billing.EventPending {
			event.Status = billing.EventObsolete
			count++
		}
	}

	return count, nil
}

func (f *fakeBillingRepo) ObsoleteRemindersForRule(_ context.Context, recurringID int64) (int, error) {
	count := 0

	for _, event := range f.events {
		if event.RecurringID == recurringID && event.Status == billing.EventPending {
			event.Status = billing.EventObsolete
			count++
		}
	}

	return count, nil
}

type fakePendingRepo struct {
	actions map[string]*conversation.PendingAction
}

func newFakePendingRepo() *fakePendingRepo {
	return &fakePendingRepo{actions: map[string]*conversation.PendingAction{}}
}

func (f *fakePendingRepo) SavePending(_ context.Context, action *conversation.PendingAction) error {
	stored := *action
	f.actions[action.UserID] = &stored

	return nil
}

func (f *fakePendingRepo) GetPending(_ context.Context, userID string) (*conversation.PendingAction, error) {
	action, ok := f.actions[userID]
	if !ok {
		return nil, conversation.ErrNoPending
	}

	return action, nil
}

func (f *fakePendingRepo) DeletePending(_ context.Context, userID string) error {
	delete(f.actions, userID)
	return nil
}

type testBot struct {
	engine    *conversation.Engine
	ledger    *fakeLedgerRepo
	rules     *fakeRecurringRepo
	bills     *fakeBillingRepo
	pending   *fakePendingRepo
	clock     *time.Time
	loc       *time.Location
}

func newTestBot(t *testing.T, cls classifier.Classifier) *testBot {
	t.Helper()

	loc, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)

	start := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)

	bot := &testBot{
		ledger:  &fakeLedgerRepo{},
		rules:   &fakeRecurringRepo{},
		bills:   &fakeBillingRepo{},
		pending: newFakePendingRepo(),
		clock:   &start,
		loc:     loc,
	}

	now := func() time.Time { return *bot.clock }

	ledgerSvc := ledger.NewService(bot.ledger)
	rulesSvc := recurring.NewService(bot.rules, "America/Bogota", "COP").WithClock(now)
	billsSvc := billing.NewService(bot.bills)
	extract := extractor.New(cls, "COP", 500, loc).WithClock(now)

	bot.engine = conversation.NewEngine(
		ledgerSvc, rulesSvc, billsSvc, extract, bot.pending,
		slog.New(slog.DiscardHandler),
		conversation.Config{ConfirmThreshold: 0.55, PendingTTL: 20 * time.Minute, ListLimit: 10},
	).WithClock(now)

	return bot
}

func (b *testBot) say(t *testing.T, text string) string {
	t.Helper()

	reply, err := b.engine.HandleMessage(context.Background(), "u1", text)
	require.NoError(t, err)

	return reply
}

func lowConfidenceResult(amount int64) *classifier.Result {
	return &classifier.Result{
		Kind:       "expense",
		Amount:     decimal.NewFromInt(amount),
		Category:   "misc",
		Confidence: 0.4,
	}
}

func TestHandleMessage_HighConfidenceAutoCommits(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No classifier expectation: the lexicon covers this message.
	bot := newTestBot(t, classifier.NewMockClassifier(ctrl))

	reply := bot.say(t, "me gasté 5k en comida")
	assert.Contains(t, reply, "Anotado")

	entries := bot.ledger.active("u1")
	require.Len(t, entries, 1)
	assert.Equal(t, int64(5000), entries[0].Amount.IntPart())
	assert.Empty(t, bot.pending.actions, "confident drafts must not leave a pending action")
}

func TestHandleMessage_LowConfidenceAsksThenCommitsOnYes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cls := classifier.NewMockClassifier(ctrl)
	cls.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(lowConfidenceResult(9000), nil)

	bot := newTestBot(t, cls)

	reply := bot.say(t, "9000 del asunto ese")
	assert.Contains(t, reply, "¿Registro esto?")
	assert.Empty(t, bot.ledger.active("u1"), "nothing commits before confirmation")
	assert.Len(t, bot.pending.actions, 1)

	reply = bot.say(t, "sí")
	assert.Contains(t, reply, "Anotado")

	entries := bot.ledger.active("u1")
	require.Len(t, entries, 1)
	assert.Equal(t, int64(9000), entries[0].Amount.IntPart())
	assert.Empty(t, bot.pending.actions)
}

// A ledger failure during the confirmed write must not consume the question:
// the drafts stay pending so the user can answer again once the store is back.
func TestHandleMessage_FailedCommitKeepsQuestionOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cls := classifier.NewMockClassifier(ctrl)
	cls.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(lowConfidenceResult(9000), nil)

	bot := newTestBot(t, cls)

	bot.say(t, "9000 del asunto ese")
	require.Len(t, bot.pending.actions, 1)

	bot.ledger.failNext = errors.New("db down")

	_, err := bot.engine.HandleMessage(context.Background(), "u1", "sí")
	require.Error(t, err)
	assert.Empty(t, bot.ledger.active("u1"))
	assert.Len(t, bot.pending.actions, 1, "the unanswered question survives the failure")

	// The store recovers and the same yes commits the original drafts.
	reply := bot.say(t, "sí")
	assert.Contains(t, reply, "Anotado")

	entries := bot.ledger.active("u1")
	require.Len(t, entries, 1)
	assert.Equal(t, int64(9000), entries[0].Amount.IntPart())
	assert.Empty(t, bot.pending.actions)
}

func TestHandleMessage_NoDiscardsWithoutWriting(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cls := classifier.NewMockClassifier(ctrl)
	cls.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(lowConfidenceResult(9000), nil)

	bot := newTestBot(t, cls)

	bot.say(t, "9000 del asunto ese")
	reply := bot.say(t, "no")

	assert.Contains(t, reply, "descarté")
	assert.Empty(t, bot.ledger.active("u1"))
	assert.Empty(t, bot.pending.actions)
}

func TestHandleMessage_NewDraftsSupersedePending(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cls := classifier.NewMockClassifier(ctrl)
	cls.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(lowConfidenceResult(9000), nil)
	cls.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(lowConfidenceResult(7000), nil)

	bot := newTestBot(t, cls)

	bot.say(t, "9000 del asunto ese")
	bot.say(t, "7000 de la vaina esa")

	// Exactly one question is open, and answering it commits only the newer
	// drafts.
	assert.Len(t, bot.pending.actions, 1)

	bot.say(t, "si")

	entries := bot.ledger.active("u1")
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7000), entries[0].Amount.IntPart())
}

func TestHandleMessage_ExpiredPendingIsGone(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cls := classifier.NewMockClassifier(ctrl)
	cls.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(lowConfidenceResult(9000), nil)

	bot := newTestBot(t, cls)

	bot.say(t, "9000 del asunto ese")

	// 21 minutes later the question has lapsed; a yes no longer commits.
	*bot.clock = bot.clock.Add(21 * time.Minute)

	reply := bot.say(t, "sí")
	assert.NotContains(t, reply, "Anotado")
	assert.Empty(t, bot.ledger.active("u1"))
	assert.Empty(t, bot.pending.actions)
}

func TestHandleMessage_ClearNeedsConfirmation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bot := newTestBot(t, classifier.NewMockClassifier(ctrl))

	bot.say(t, "almuerzo 15000")
	reply := bot.say(t, "/clear")
	assert.Contains(t, reply, "¿Seguro?")

	reply = bot.say(t, "no")
	assert.Contains(t, reply, "no borré nada")
	assert.Len(t, bot.ledger.active("u1"), 1)

	bot.say(t, "/clear")
	bot.say(t, "sí")
	assert.Empty(t, bot.ledger.active("u1"))
}

func TestHandleMessage_RecurringSetupFlow(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bot := newTestBot(t, classifier.NewMockClassifier(ctrl))

	reply := bot.say(t, "pago 26900 de netflix cada mes")
	assert.Contains(t, reply, "Anotado")
	assert.Contains(t, reply, "¿Qué día del mes te cobran?")

	// The ledger entry committed and the rule exists half-configured.
	require.Len(t, bot.ledger.active("u1"), 1)
	require.Len(t, bot.rules.rules, 1)
	assert.Equal(t, recurring.StatusPending, bot.rules.rules[0].Status)

	reply = bot.say(t, "el 15")
	assert.Contains(t, reply, "¿Cuántos días antes")

	reply = bot.say(t, "3 y 1")
	assert.Contains(t, reply, "¿A qué hora")

	reply = bot.say(t, "9 am")
	assert.Contains(t, reply, "Quedó configurado")
	assert.Contains(t, reply, "15/03")

	rule := bot.rules.rules[0]
	assert.Equal(t, recurring.StatusActive, rule.Status)
	assert.Equal(t, "netflix", rule.ServiceName)
	assert.Equal(t, recurring.CadenceMonthly, rule.Cadence.Kind)
	assert.Equal(t, 15, rule.Cadence.Day)
	assert.Equal(t, []int{3, 1, 0}, rule.ReminderOffsets)
	assert.Equal(t, 9, rule.ReminderHour)
	assert.Equal(t, 15, rule.NextDue.Day())
	assert.Empty(t, bot.pending.actions)
}

func TestHandleMessage_PayRecurringSettlesAndMirrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bot := newTestBot(t, classifier.NewMockClassifier(ctrl))

	rule := &recurring.Rule{
		ID:          1,
		UserID:      "u1",
		ServiceName: "netflix",
		Category:    "subscriptions",
		Amount:      decimal.NewFromInt(26900),
		Currency:    "COP",
		Timezone:    "America/Bogota",
		Status:      recurring.StatusActive,
		NextDue:     time.Date(2026, 4, 15, 0, 0, 0, 0, bot.loc),
	}
	bot.rules.rules = append(bot.rules.rules, rule)
	bot.rules.nextID = 1

	bot.bills.instances = append(bot.bills.instances, &billing.Instance{
		ID:          1,
		RecurringID: 1,
		UserID:      "u1",
		Amount:      decimal.NewFromInt(26900),
		Currency:    "COP",
		Status:      billing.InstancePending,
	})
	bot.bills.events = append(bot.bills.events, &billing.ReminderEvent{
		ID: 1, BillInstanceID: 1, RecurringID: 1, UserID: "u1",
		Offset: 0, Status: billing.EventPending,
	})

	reply := bot.say(t, "ya pagué netflix")
	assert.Contains(t, reply, "Registrado el pago de netflix")

	assert.Equal(t, billing.InstancePaid, bot.bills.instances[0].Status)
	assert.Equal(t, billing.EventObsolete, bot.bills.events[0].Status)

	entries := bot.ledger.active("u1")
	require.Len(t, entries, 1)
	assert.Equal(t, int64(26900), entries[0].Amount.IntPart())
	assert.Equal(t, "subscriptions", entries[0].Category)
}

func TestHandleMessage_PayWithoutOpenBill(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bot := newTestBot(t, classifier.NewMockClassifier(ctrl))

	bot.rules.rules = append(bot.rules.rules, &recurring.Rule{
		ID: 1, UserID: "u1", ServiceName: "netflix", Status: recurring.StatusActive,
		Amount: decimal.NewFromInt(26900), Currency: "COP",
	})

	reply := bot.say(t, "ya pagué netflix")
	assert.Contains(t, reply, "No tienes una factura abierta")
	assert.Empty(t, bot.ledger.active("u1"))
}

func TestHandleMessage_UndoCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bot := newTestBot(t, classifier.NewMockClassifier(ctrl))

	bot.say(t, "almuerzo 15000")
	reply := bot.say(t, "/undo")
	assert.Contains(t, reply, "Borré el último")
	assert.Empty(t, bot.ledger.active("u1"))

	reply = bot.say(t, "/undo")
	assert.Contains(t, reply, "No tienes movimientos")
}

func TestHandleMessage_CancelRulePhrase(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bot := newTestBot(t, classifier.NewMockClassifier(ctrl))

	bot.rules.rules = append(bot.rules.rules, &recurring.Rule{
		ID: 1, UserID: "u1", ServiceName: "netflix", Status: recurring.StatusActive,
		Amount: decimal.NewFromInt(26900), Currency: "COP",
	})
	bot.bills.events = append(bot.bills.events, &billing.ReminderEvent{
		ID: 1, BillInstanceID: 1, RecurringID: 1, UserID: "u1",
		Offset: 3, Status: billing.EventPending,
	})

	reply := bot.say(t, "cancelar #1")
	assert.Contains(t, reply, "Cancelé netflix")
	assert.Equal(t, recurring.StatusCanceled, bot.rules.rules[0].Status)
	assert.Equal(t, billing.EventObsolete, bot.bills.events[0].Status)
}

func TestHandleMessage_HelpOnPlainChatter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bot := newTestBot(t, classifier.NewMockClassifier(ctrl))

	reply := bot.say(t, "hola, ¿cómo vas?")
	assert.Contains(t, reply, "No encontré montos")
}
