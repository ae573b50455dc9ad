package parse

import (
	"regexp"
	"strconv"
	"time"
)

var (
	relativeDay  = regexp.MustCompile(`(?i)\b(hoy|ayer|anteayer|anoche)\b`)
	slashDate    = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})(?:[/-](\d{4}))?\b`)
	monthNameDay = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:de\s*)?(ene|feb|mar|abr|may|jun|jul|ago|sep|oct|nov|dic)\w*\b`)
)

var spanishMonths = map[string]time.Month{
	"ene": time.January, "feb": time.February, "mar": time.March,
	"abr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "ago": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dic": time.December,
}

// ParseRelativeDate resolves colloquial and explicit date mentions against the
// given clock and location. "anoche" counts as yesterday. Returns false when
// the text carries no date mention at all.
func ParseRelativeDate(text string, loc *time.Location, now time.Time) (time.Time, bool) {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	if m := relativeDay.FindString(Fold(text)); m != "" {
		switch m {
		case "hoy":
			return today, true
		case "ayer", "anoche":
			return today.AddDate(0, 0, -1), true
		case "anteayer":
			return today.AddDate(0, 0, -2), true
		}
	}

	if m := slashDate.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])

		year := today.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}

		if month >= 1 && month <= 12 && day >= 1 && day <= daysInMonth(year, time.Month(month)) {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc), true
		}
	}

	if m := monthNameDay.FindStringSubmatch(Fold(text)); m != nil {
		day, _ := strconv.Atoi(m[1])

		month, ok := spanishMonths[m[2]]
		if !ok {
			return time.Time{}, false
		}

		if day >= 1 && day <= daysInMonth(today.Year(), month) {
			return time.Date(today.Year(), month, day, 0, 0, 0, 0, loc), true
		}
	}

	return time.Time{}, false
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
