package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/quipubot/quipu/internal/billing"
	"github.com/quipubot/quipu/internal/recurring"
)

type fakeNotifier struct {
	sent  []string
	calls int
	fail  error
}

func (f *fakeNotifier) Send(_ context.Context, userID, text string) error {
	f.calls++

	if f.fail != nil {
		return f.fail
	}

	f.sent = append(f.sent, text)

	return nil
}

// seeds a rule with one generated instance and its three reminders, clock at
// the day the offset-1 reminder is due.
func seedDispatch(t *testing.T) (*fakeRepo, *recurring.Rule, func() time.Time) {
	t.Helper()

	loc, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)

	rule := netflixRule(loc)
	repo := newFakeRepo(rule)
	rules := &fakeRules{rules: []*recurring.Rule{rule}}

	genClock := func() time.Time { return time.Date(2026, 3, 13, 8, 0, 0, 0, loc) }
	gen := billing.NewGenerator(rules, repo, testLogger()).WithClock(genClock)

	_, err = gen.GenerateDue(context.Background())
	require.NoError(t, err)

	// March 14, 09:30 Bogota: the offset-3 and offset-1 reminders are due.
	dispatchClock := func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, loc) }

	return repo, rule, dispatchClock
}

func TestDispatchDue_SendsAndMarksReminded(t *testing.T) {
	repo, _, clock := seedDispatch(t)
	notifier := &fakeNotifier{}

	d := billing.NewDispatcher(repo, notifier, testLogger(), 50).WithClock(clock)

	sent, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, notifier.sent, 2)
	assert.Contains(t, notifier.sent[1], "Mañana vence netflix")
	assert.Equal(t, billing.InstanceReminded, repo.instances[0].Status)

	// Nothing left due; a rerun sends nothing.
	sent, err = d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestDispatchDue_FailureLeavesReminderPending(t *testing.T) {
	repo, _, clock := seedDispatch(t)
	notifier := &fakeNotifier{fail: errors.New("telegram: 502")}

	d := billing.NewDispatcher(repo, notifier, testLogger(), 50).WithClock(clock)

	sent, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	pending := 0

	for _, event := range repo.events {
		if event.Status == billing.EventPending {
			pending++
		}
	}

	assert.Equal(t, 3, pending, "failed sends must release their events for retry")

	// Delivery recovers: the next run drains the released events.
	notifier.fail = nil

	sent, err = d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

// A batch-sized run of permanent failures (say a user who blocked the bot)
// releases the events right back into the due set; the run must hand them to
// the next tick instead of re-claiming them forever.
func TestDispatchDue_ReturnsWhenFullBatchFails(t *testing.T) {
	repo, _, clock := seedDispatch(t)
	notifier := &fakeNotifier{fail: errors.New("telegram: 403 bot was blocked")}

	d := billing.NewDispatcher(repo, notifier, testLogger(), 1).WithClock(clock)

	sent, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 1, notifier.calls, "each due event gets at most one attempt per run")

	pending := 0

	for _, event := range repo.events {
		if event.Status == billing.EventPending {
			pending++
		}
	}

	assert.Equal(t, 3, pending)
}

// A mixed batch keeps draining as long as something is delivered, then stops
// once an iteration makes no progress.
func TestDispatchDue_MixedBatchStopsAfterFailuresExhaust(t *testing.T) {
	repo, _, clock := seedDispatch(t)

	notifier := &fakeNotifier{}
	d := billing.NewDispatcher(repo, notifier, testLogger(), 1).WithClock(clock)

	sent, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent, "batch of one still drains every due event while sends succeed")
}

func TestDispatchDue_PaidBillRemindersNeverFire(t *testing.T) {
	repo, rule, clock := seedDispatch(t)
	notifier := &fakeNotifier{}

	svc := billing.NewService(repo)

	_, err := svc.PayRule(context.Background(), rule)
	require.NoError(t, err)

	d := billing.NewDispatcher(repo, notifier, testLogger(), 50).WithClock(clock)

	sent, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, notifier.sent)
}

func TestPayRule(t *testing.T) {
	repo, rule, _ := seedDispatch(t)
	svc := billing.NewService(repo)

	instance, err := svc.PayRule(context.Background(), rule)
	require.NoError(t, err)
	assert.Equal(t, billing.InstancePaid, instance.Status)
	require.NotNil(t, instance.PaidAt)

	for _, event := range repo.events {
		assert.Equal(t, billing.EventObsolete, event.Status)
	}

	// No open instance remains to pay.
	_, err = svc.PayRule(context.Background(), rule)
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestPayRule_RepoError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := billing.NewMockRepository(ctrl)
	repo.EXPECT().
		FindOpenInstanceByRule(gomock.Any(), int64(1)).
		Return(&billing.Instance{ID: 10, RecurringID: 1}, nil)
	repo.EXPECT().
		MarkInstancePaid(gomock.Any(), int64(10), gomock.Any()).
		Return(errors.New("db down"))

	svc := billing.NewService(repo)

	_, err := svc.PayRule(context.Background(), &recurring.Rule{ID: 1})
	assert.Error(t, err)
}
