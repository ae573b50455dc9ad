package recurring

import "time"

// NextDueAfter computes the first due date strictly after the given date,
// interpreted in the rule's timezone. Monthly cadences clamp the billing day
// to the length of the target month (day 31 in a 30-day month bills on the
// 30th). Weekly cadences land on the next occurrence of the weekday. Custom
// cadences step in whole-day intervals from the anchor date.
func (r *Rule) NextDueAfter(after time.Time) time.Time {
	loc := r.Location()
	day := dateOnly(after.In(loc))

	switch r.Cadence.Kind {
	case CadenceWeekly:
		candidate := day.AddDate(0, 0, 1)
		offset := (int(r.Cadence.Weekday) - int(candidate.Weekday()) + 7) % 7

		return candidate.AddDate(0, 0, offset)

	case CadenceCustom:
		anchor := dateOnly(r.AnchorDate.In(loc))
		interval := r.Cadence.IntervalDays

		candidate := anchor
		if day.After(anchor) || day.Equal(anchor) {
			elapsed := int(day.Sub(anchor).Hours() / 24)
			steps := elapsed/interval + 1
			candidate = anchor.AddDate(0, 0, steps*interval)
		}

		return candidate

	default: // monthly
		candidate := clampedMonthDay(day.Year(), day.Month(), r.Cadence.Day, loc)
		if !candidate.After(day) {
			next := day.AddDate(0, 0, -day.Day()+1).AddDate(0, 1, 0)
			candidate = clampedMonthDay(next.Year(), next.Month(), r.Cadence.Day, loc)
		}

		return candidate
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func clampedMonthDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		day = last
	}

	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}
