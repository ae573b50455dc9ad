package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=recurring
type Repository interface {
	CreateRule(ctx context.Context, rule *Rule) error
	GetRule(ctx context.Context, id int64) (*Rule, error)
	FindByService(ctx context.Context, userID, serviceName string) (*Rule, error)
	ListRules(ctx context.Context, userID string) ([]*Rule, error)
	ListActiveRules(ctx context.Context) ([]*Rule, error)
	UpdateRule(ctx context.Context, rule *Rule) error
	CancelAll(ctx context.Context, userID string) (int, error)
}

type Service struct {
	repo            Repository
	defaultTimezone string
	defaultCurrency string
	now             func() time.Time
}

func NewService(repo Repository, defaultTimezone, defaultCurrency string) *Service {
	return &Service{repo: repo, defaultTimezone: defaultTimezone, defaultCurrency: defaultCurrency, now: time.Now}
}

// WithClock overrides the service's clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateParams struct {
	UserID           string
	ServiceName      string
	Category         string
	Amount           decimal.Decimal
	Currency         string
	Cadence          Cadence
	AnchorDate       time.Time
	Timezone         string
	ReminderOffsets  []int
	ReminderHour     int
	PaymentLink      string
	PaymentReference string
	Status           Status
}

// Create registers a rule. A rule created without a complete cadence stays
// pending until the setup conversation fills it in; pending rules never
// generate bill instances. Re-creating a rule for the same service name
// updates the existing one instead of duplicating it.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Rule, error) {
	if params.UserID == "" || params.ServiceName == "" {
		return nil, fmt.Errorf("%w: user and service name are required", ErrInvalidField)
	}

	if params.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidField)
	}

	status := params.Status
	if status == "" {
		status = StatusPending
	}

	if status == StatusActive {
		if err := params.Cadence.Validate(); err != nil {
			return nil, err
		}
	}

	timezone := params.Timezone
	if timezone == "" {
		timezone = s.defaultTimezone
	}

	currency := params.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	hour := params.ReminderHour
	if hour < 0 || hour > 23 {
		hour = 9
	}

	existing, err := s.repo.FindByService(ctx, params.UserID, params.ServiceName)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("looking up rule by service: %w", err)
	}

	rule := existing
	if rule == nil {
		rule = &Rule{UserID: params.UserID, ServiceName: params.ServiceName}
	}

	rule.Category = params.Category
	rule.Amount = params.Amount
	rule.Currency = currency
	rule.Cadence = params.Cadence
	rule.AnchorDate = params.AnchorDate
	rule.Timezone = timezone
	rule.ReminderOffsets = NormalizeOffsets(params.ReminderOffsets)
	rule.ReminderHour = hour
	rule.PaymentLink = params.PaymentLink
	rule.PaymentReference = params.PaymentReference
	rule.Status = status

	if status == StatusActive {
		rule.NextDue = rule.NextDueAfter(s.today(rule))
	}

	if existing != nil {
		if err := s.repo.UpdateRule(ctx, rule); err != nil {
			return nil, fmt.Errorf("updating rule: %w", err)
		}

		return rule, nil
	}

	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("creating rule: %w", err)
	}

	return rule, nil
}

func (s *Service) today(rule *Rule) time.Time {
	now := s.now().In(rule.Location())

	// Strictly-after semantics would skip a due date landing today, so step
	// back one day: a rule activated on its billing day bills today.
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, rule.Location()).AddDate(0, 0, -1)
}

// Get returns the rule only when it belongs to the user.
func (s *Service) Get(ctx context.Context, userID string, id int64) (*Rule, error) {
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	if rule.UserID != userID {
		return nil, ErrNotFound
	}

	return rule, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*Rule, error) {
	return s.repo.ListRules(ctx, userID)
}

// FindByService looks a rule up by its service name, case-insensitively.
func (s *Service) FindByService(ctx context.Context, userID, serviceName string) (*Rule, error) {
	return s.repo.FindByService(ctx, userID, serviceName)
}

// Pause stops instance generation for the rule without losing its setup.
func (s *Service) Pause(ctx context.Context, userID string, id int64) (*Rule, error) {
	return s.transition(ctx, userID, id, StatusPaused)
}

// Activate resumes a paused or pending rule; the cadence must be complete.
func (s *Service) Activate(ctx context.Context, userID string, id int64) (*Rule, error) {
	rule, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := rule.Cadence.Validate(); err != nil {
		return nil, err
	}

	rule.Status = StatusActive
	rule.NextDue = rule.NextDueAfter(s.today(rule))

	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("activating rule: %w", err)
	}

	return rule, nil
}

// Cancel is terminal. The caller is responsible for obsoleting the rule's
// still-pending reminder events.
func (s *Service) Cancel(ctx context.Context, userID string, id int64) (*Rule, error) {
	rule, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rule.Status = StatusCanceled
	rule.CanceledAt = &now

	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("canceling rule: %w", err)
	}

	return rule, nil
}

// CancelAll cancels every non-canceled rule for the user and returns the count.
func (s *Service) CancelAll(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CancelAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("canceling rules: %w", err)
	}

	return count, nil
}

func (s *Service) transition(ctx context.Context, userID string, id int64, status Status) (*Rule, error) {
	rule, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	rule.Status = status

	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("updating rule status: %w", err)
	}

	return rule, nil
}

// SetAmount updates the rule's default amount.
func (s *Service) SetAmount(ctx context.Context, userID string, id int64, amount decimal.Decimal) (*Rule, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidField)
	}

	rule, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	rule.Amount = amount

	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("updating rule amount: %w", err)
	}

	return rule, nil
}

// SetOffsets replaces the reminder offsets (normalized, zero always kept).
func (s *Service) SetOffsets(ctx context.Context, userID string, id int64, offsets []int) (*Rule, error) {
	if len(offsets) == 0 {
		return nil, fmt.Errorf("%w: at least one reminder offset is required", ErrInvalidField)
	}

	rule, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	rule.ReminderOffsets = NormalizeOffsets(offsets)

	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("updating rule offsets: %w", err)
	}

	return rule, nil
}

// SetReminderHour updates the hour of day reminders fire at, in the rule's
// timezone.
func (s *Service) SetReminderHour(ctx context.Context, userID string, id int64, hour int) (*Rule, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: hour %d out of range", ErrInvalidField, hour)
	}

	rule, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	rule.ReminderHour = hour

	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("updating reminder hour: %w", err)
	}

	return rule, nil
}

// SetCadence fills in or changes the schedule; used by the setup conversation.
func (s *Service) SetCadence(ctx context.Context, userID string, id int64, cadence Cadence) (*Rule, error) {
	if err := cadence.Validate(); err != nil {
		return nil, err
	}

	rule, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	rule.Cadence = cadence

	if rule.Status == StatusActive {
		rule.NextDue = rule.NextDueAfter(s.today(rule))
	}

	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("updating rule cadence: %w", err)
	}

	return rule, nil
}
