package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases the text and strips diacritics so Spanish replies compare
// reliably ("sí" == "si", "miércoles" == "miercoles").
func Fold(text string) string {
	folded, _, err := transform.String(foldTransformer, strings.ToLower(strings.TrimSpace(text)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(text))
	}

	return folded
}

var (
	affirmativeWords = map[string]struct{}{
		"si": {}, "s": {}, "yes": {}, "ok": {}, "dale": {}, "claro": {}, "de una": {},
	}
	negativeWords = map[string]struct{}{
		"no": {}, "n": {}, "nah": {}, "na": {}, "ninguno": {}, "ninguna": {},
	}
	affirmativeToken = regexp.MustCompile(`\b(si|yes|ok)\b`)
	negativeToken    = regexp.MustCompile(`\bno\b`)
)

// IsAffirmative reports whether the text reads as a yes.
func IsAffirmative(text string) bool {
	t := Fold(text)
	if _, ok := affirmativeWords[t]; ok {
		return true
	}

	return affirmativeToken.MatchString(t)
}

// IsNegative reports whether the text reads as a no.
func IsNegative(text string) bool {
	t := Fold(text)
	if _, ok := negativeWords[t]; ok {
		return true
	}

	return negativeToken.MatchString(t)
}

var spanishWeekdays = map[string]time.Weekday{
	"lunes": time.Monday, "lun": time.Monday,
	"martes": time.Tuesday, "mar": time.Tuesday,
	"miercoles": time.Wednesday, "mie": time.Wednesday,
	"jueves": time.Thursday, "jue": time.Thursday,
	"viernes": time.Friday, "vie": time.Friday,
	"sabado": time.Saturday, "sab": time.Saturday,
	"domingo": time.Sunday, "dom": time.Sunday,
}

// ParseWeekday finds a Spanish weekday name in the text.
func ParseWeekday(text string) (time.Weekday, bool) {
	folded := Fold(text)
	for name, day := range spanishWeekdays {
		if regexp.MustCompile(`\b` + name + `\b`).MatchString(folded) {
			return day, true
		}
	}

	return time.Sunday, false
}

var smallInt = regexp.MustCompile(`\b(\d{1,2})\b`)

// ParseBillingDay extracts a day-of-month between 1 and 31.
func ParseBillingDay(text string) (int, bool) {
	m := smallInt.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}

	day, err := strconv.Atoi(m[1])
	if err != nil || day < 1 || day > 31 {
		return 0, false
	}

	return day, true
}

var sameDayPhrases = []*regexp.Regexp{
	regexp.MustCompile(`\bmismo\s+dia\b`),
	regexp.MustCompile(`\bdia\s+del?\s+cobro\b`),
	regexp.MustCompile(`\bdia\s+del?\s+vencimiento\b`),
	regexp.MustCompile(`\bel\s+dia\s+que\s+vence\b`),
	regexp.MustCompile(`\b0\s*dias?\b`),
}

// ParseReminderOffsets reads day offsets from text like "3,1,0" or natural
// phrases like "3 días antes y el mismo día". The result is deduplicated,
// non-negative and sorted descending.
func ParseReminderOffsets(text string) []int {
	folded := Fold(text)

	seen := make(map[int]struct{})

	var offsets []int

	for _, raw := range regexp.MustCompile(`-?\d{1,2}`).FindAllString(folded, -1) {
		value, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}

		if value < 0 {
			value = -value
		}

		if _, dup := seen[value]; dup {
			continue
		}

		seen[value] = struct{}{}
		offsets = append(offsets, value)
	}

	for _, re := range sameDayPhrases {
		if re.MatchString(folded) {
			if _, dup := seen[0]; !dup {
				offsets = append(offsets, 0)
			}

			break
		}
	}

	sort.Sort(sort.Reverse(sort.IntSlice(offsets)))

	return offsets
}

var (
	hourAMPM = regexp.MustCompile(`\b(\d{1,2})(?::\d{1,2})?\s*([ap])\.?m?\.?\b`)
	hour24   = regexp.MustCompile(`\b(\d{1,2})(?::\d{1,2})?\b`)
)

// ParseReminderHour reads an hour of day from "8 am", "20" or "20:30" forms.
func ParseReminderHour(text string) (int, bool) {
	folded := Fold(text)

	if m := hourAMPM.FindStringSubmatch(folded); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err != nil || hour < 1 || hour > 12 {
			return 0, false
		}

		if m[2] == "a" {
			if hour == 12 {
				return 0, true
			}

			return hour, true
		}

		if hour == 12 {
			return 12, true
		}

		return hour + 12, true
	}

	if m := hour24.FindStringSubmatch(folded); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err != nil || hour < 0 || hour > 23 {
			return 0, false
		}

		return hour, true
	}

	return 0, false
}
