package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quipubot/quipu/internal/recurring"
)

// RuleSource is the slice of the recurring repository the generator needs.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]*recurring.Rule, error)
	UpdateRule(ctx context.Context, rule *recurring.Rule) error
}

// Generator rolls active rules forward: when a rule's next due date falls
// inside the reminder horizon, it materializes the bill instance, schedules
// its reminder events and advances the rule. Every write is idempotent, so a
// crashed or concurrent run converges on the same rows.
type Generator struct {
	rules  RuleSource
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewGenerator(rules RuleSource, repo Repository, logger *slog.Logger) *Generator {
	return &Generator{rules: rules, repo: repo, logger: logger, now: time.Now}
}

// WithClock overrides the generator's clock. Test hook.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// GenerateDue processes every active rule once and returns how many bill
// instances were newly created. A failure on one rule is logged and skipped;
// the remaining rules still run.
func (g *Generator) GenerateDue(ctx context.Context) (int, error) {
	rules, err := g.rules.ListActiveRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active rules: %w", err)
	}

	created := 0

	for _, rule := range rules {
		n, err := g.generateRule(ctx, rule)
		if err != nil {
			g.logger.Error("generating bill instance",
				slog.Int64("rule_id", rule.ID),
				slog.String("service", rule.ServiceName),
				slog.String("error", err.Error()))

			continue
		}

		created += n
	}

	return created, nil
}

func (g *Generator) generateRule(ctx context.Context, rule *recurring.Rule) (int, error) {
	if rule.NextDue.IsZero() {
		return 0, nil
	}

	// The earliest reminder fires maxOffset days before the due date, so the
	// instance must exist once the due date enters that window.
	horizon := g.horizonEnd(rule)
	created := 0
	startDue := rule.NextDue

	// A rule that sat idle (paused, or the scheduler was down) can have
	// several periods inside the window; cap the catch-up so a misconfigured
	// rule cannot spin.
	for i := 0; i < 12 && !rule.NextDue.After(horizon); i++ {
		dueDate := rule.NextDue

		instance := &Instance{
			RecurringID: rule.ID,
			UserID:      rule.UserID,
			PeriodKey:   PeriodKey(rule.Cadence.Kind, dueDate),
			DueDate:     dueDate,
			Amount:      rule.Amount,
			Currency:    rule.Currency,
			Status:      InstancePending,
		}

		inserted, err := g.repo.UpsertInstance(ctx, instance)
		if err != nil {
			return created, fmt.Errorf("upserting instance: %w", err)
		}

		if inserted {
			created++
		}

		// The upsert can adopt an instance the user already settled, e.g. a
		// paid bill whose rule was re-activated into the same period. A
		// settled bill never gets new reminders, but the rule still advances
		// past it.
		if !instance.Status.Settled() {
			events := make([]*ReminderEvent, 0, len(rule.ReminderOffsets))
			for _, offset := range rule.ReminderOffsets {
				events = append(events, &ReminderEvent{
					BillInstanceID: instance.ID,
					RecurringID:    rule.ID,
					UserID:         rule.UserID,
					Offset:         offset,
					ScheduledFor:   ScheduleFor(rule, dueDate, offset),
					Status:         EventPending,
				})
			}

			if _, err := g.repo.CreateReminderEvents(ctx, events); err != nil {
				return created, fmt.Errorf("scheduling reminders: %w", err)
			}
		}

		rule.NextDue = rule.NextDueAfter(dueDate)
	}

	if !rule.NextDue.Equal(startDue) {
		if err := g.rules.UpdateRule(ctx, rule); err != nil {
			return created, fmt.Errorf("advancing rule: %w", err)
		}
	}

	return created, nil
}

func (g *Generator) horizonEnd(rule *recurring.Rule) time.Time {
	maxOffset := 0
	for _, o := range rule.ReminderOffsets {
		if o > maxOffset {
			maxOffset = o
		}
	}

	now := g.now().In(rule.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, rule.Location())

	return today.AddDate(0, 0, maxOffset)
}
