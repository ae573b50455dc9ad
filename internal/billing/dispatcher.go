package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quipubot/quipu/internal/messenger"
)

// Dispatcher drains due reminder events. Claiming flips the event to sent
// before delivery; a failed send releases it back to pending, so delivery is
// at-least-once and a crash between claim and send loses at most the claimed
// batch until the release.
type Dispatcher struct {
	repo     Repository
	notifier messenger.Messenger
	logger   *slog.Logger
	batch    int
	now      func() time.Time
}

func NewDispatcher(repo Repository, notifier messenger.Messenger, logger *slog.Logger, batch int) *Dispatcher {
	if batch <= 0 {
		batch = 50
	}

	return &Dispatcher{repo: repo, notifier: notifier, logger: logger, batch: batch, now: time.Now}
}

// WithClock overrides the dispatcher's clock. Test hook.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// DispatchDue claims and delivers every reminder scheduled at or before now.
// Returns how many were delivered.
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	sent := 0

	for {
		due, err := d.repo.ClaimDueReminders(ctx, d.now().UTC(), d.batch)
		if err != nil {
			return sent, fmt.Errorf("claiming due reminders: %w", err)
		}

		if len(due) == 0 {
			return sent, nil
		}

		delivered := 0

		for _, reminder := range due {
			if err := d.deliver(ctx, reminder); err != nil {
				d.logger.Error("delivering reminder",
					slog.Int64("event_id", reminder.Event.ID),
					slog.String("user_id", reminder.Event.UserID),
					slog.String("error", err.Error()))

				if relErr := d.repo.ReleaseReminder(ctx, reminder.Event.ID); relErr != nil {
					d.logger.Error("releasing reminder",
						slog.Int64("event_id", reminder.Event.ID),
						slog.String("error", relErr.Error()))
				}

				continue
			}

			sent++
			delivered++

			if err := d.repo.MarkInstanceReminded(ctx, reminder.Event.BillInstanceID); err != nil {
				d.logger.Error("marking instance reminded",
					slog.Int64("instance_id", reminder.Event.BillInstanceID),
					slog.String("error", err.Error()))
			}
		}

		// Released events are still due, so a full batch that delivered
		// nothing would be re-claimed verbatim on the next pass. Leave them
		// for the next run instead of spinning on a dead channel.
		if delivered == 0 || len(due) < d.batch {
			return sent, nil
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, reminder *DueReminder) error {
	return d.notifier.Send(ctx, reminder.Event.UserID, composeReminder(reminder))
}

func composeReminder(r *DueReminder) string {
	var b strings.Builder

	amount := r.Amount.StringFixed(0)
	due := r.DueDate.Format("02/01")

	switch {
	case r.Event.Offset == 0:
		fmt.Fprintf(&b, "📌 Hoy vence %s: $%s %s.", r.ServiceName, amount, r.Currency)
	case r.Event.Offset == 1:
		fmt.Fprintf(&b, "⏰ Mañana vence %s: $%s %s.", r.ServiceName, amount, r.Currency)
	default:
		fmt.Fprintf(&b, "⏰ %s vence en %d días (%s): $%s %s.", r.ServiceName, r.Event.Offset, due, amount, r.Currency)
	}

	if r.PaymentReference != "" {
		fmt.Fprintf(&b, "\nReferencia: %s", r.PaymentReference)
	}

	if r.PaymentLink != "" {
		fmt.Fprintf(&b, "\nPagar: %s", r.PaymentLink)
	}

	b.WriteString("\nResponde \"ya pagué " + r.ServiceName + "\" cuando lo pagues.")

	return b.String()
}
