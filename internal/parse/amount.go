package parse

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	slangThousands = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(k|lukas?|lucas?)\b`)
	slangMillions  = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(m|palos?)\b`)
	numberPattern  = regexp.MustCompile(`\d+(?:\.\d{3})*(?:,\d+)?|\d+(?:,\d+)?`)
)

// NormalizeAmountSlang rewrites colloquial quantity suffixes into plain numbers:
// "5k" and "5 lucas" become "5000", "2m" and "2 palos" become "2000000".
// Decimal commas are honored, so "1,5k" becomes "1500".
func NormalizeAmountSlang(text string) string {
	out := replaceSlang(text, slangThousands, 1000)
	out = replaceSlang(out, slangMillions, 1_000_000)

	return out
}

func replaceSlang(text string, re *regexp.Regexp, mult int64) string {
	return re.ReplaceAllStringFunc(text, func(match string) string {
		groups := re.FindStringSubmatch(match)

		raw := strings.ReplaceAll(groups[1], ",", ".")

		d, err := decimal.NewFromString(raw)
		if err != nil {
			return match
		}

		return d.Mul(decimal.NewFromInt(mult)).Round(0).String()
	})
}

// ParseAmount extracts the first amount in the text after slang expansion.
// Dot-separated digit groups are read as thousand separators ("12.000" -> 12000);
// a trailing comma group is the decimal part.
func ParseAmount(text string) (decimal.Decimal, bool) {
	normalized := NormalizeAmountSlang(text)

	match := numberPattern.FindString(normalized)
	if match == "" {
		return decimal.Zero, false
	}

	clean := strings.ReplaceAll(match, ".", "")
	clean = strings.ReplaceAll(clean, ",", ".")

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}

	return d, true
}

// AmountCount reports how many distinct amount tokens the text carries after
// slang expansion. Used by the extractor to decide whether to segment.
func AmountCount(text string) int {
	return len(numberPattern.FindAllString(NormalizeAmountSlang(text), -1))
}
