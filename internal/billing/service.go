package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/quipubot/quipu/internal/recurring"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=billing
type Repository interface {
	UpsertInstance(ctx context.Context, instance *Instance) (bool, error)
	FindOpenInstanceByRule(ctx context.Context, recurringID int64) (*Instance, error)
	MarkInstancePaid(ctx context.Context, id int64, paidAt time.Time) error
	MarkInstanceSkipped(ctx context.Context, id int64) error
	MarkInstanceReminded(ctx context.Context, id int64) error
	CreateReminderEvents(ctx context.Context, events []*ReminderEvent) (int, error)
	ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]*DueReminder, error)
	ReleaseReminder(ctx context.Context, id int64) error
	ObsoleteReminders(ctx context.Context, instanceID int64) (int, error)
	ObsoleteRemindersForRule(ctx context.Context, recurringID int64) (int, error)
}

// Service covers the user-driven side of billing: settling and skipping the
// open instance of a rule. The scheduler-driven side lives in Generator and
// Dispatcher.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// PayRule settles the rule's open instance and retires its pending reminders.
// Returns the paid instance so the caller can mirror it into the ledger.
func (s *Service) PayRule(ctx context.Context, rule *recurring.Rule) (*Instance, error) {
	instance, err := s.repo.FindOpenInstanceByRule(ctx, rule.ID)
	if err != nil {
		return nil, err
	}

	paidAt := time.Now().UTC()
	if err := s.repo.MarkInstancePaid(ctx, instance.ID, paidAt); err != nil {
		return nil, fmt.Errorf("marking instance paid: %w", err)
	}

	if _, err := s.repo.ObsoleteReminders(ctx, instance.ID); err != nil {
		return nil, fmt.Errorf("retiring reminders: %w", err)
	}

	instance.Status = InstancePaid
	instance.PaidAt = &paidAt

	return instance, nil
}

// SkipRule dismisses the rule's open instance without recording a payment.
func (s *Service) SkipRule(ctx context.Context, rule *recurring.Rule) (*Instance, error) {
	instance, err := s.repo.FindOpenInstanceByRule(ctx, rule.ID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.MarkInstanceSkipped(ctx, instance.ID); err != nil {
		return nil, fmt.Errorf("marking instance skipped: %w", err)
	}

	if _, err := s.repo.ObsoleteReminders(ctx, instance.ID); err != nil {
		return nil, fmt.Errorf("retiring reminders: %w", err)
	}

	instance.Status = InstanceSkipped

	return instance, nil
}

// RetireRule obsoletes every pending reminder of a canceled rule.
func (s *Service) RetireRule(ctx context.Context, recurringID int64) (int, error) {
	return s.repo.ObsoleteRemindersForRule(ctx, recurringID)
}
