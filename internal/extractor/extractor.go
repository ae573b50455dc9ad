// Package extractor turns free-form Spanish messages into candidate ledger
// drafts, using a lexical rule layer with a classifier fallback.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quipubot/quipu/internal/classifier"
	"github.com/quipubot/quipu/internal/ledger"
	"github.com/quipubot/quipu/internal/parse"
)

// ErrInputTooLong rejects messages above the configured character limit.
var ErrInputTooLong = errors.New("input text too long")

// Draft is an unconfirmed candidate ledger entry extracted from one
// amount-bearing segment of a message.
type Draft struct {
	Kind         ledger.Kind
	Amount       decimal.Decimal
	Currency     string
	Category     string
	Concept      string
	Counterparty string
	Date         time.Time
	IsRecurring  bool
	Recurrence   string
	Confidence   float64
	RawText      string
}

// ruleConfidence is assigned when the lexicon matches a known category, high
// enough to clear any sane auto-commit threshold.
const ruleConfidence = 0.85

var categoryLexicon = []struct {
	category string
	pattern  *regexp.Regexp
}{
	{"food_home", regexp.MustCompile(`\b(comida|mercado|supermercado|pan|leche|huevos?|arroz|fruta|verdura|carne|pollo|d1|ara|exito|carulla|jumbo)\b`)},
	{"food_out", regexp.MustCompile(`\b(restaurante|almuerzo|cena|desayuno|hamburguesa|pizza|domicilio|rappi|corrientazo)\b`)},
	{"transport", regexp.MustCompile(`\b(uber|didi|taxi|bus|transmi|metro|gasolina|parqueadero|peaje)\b`)},
	{"housing", regexp.MustCompile(`\b(arriendo|hipoteca|administracion)\b`)},
	{"utilities", regexp.MustCompile(`\b(luz|agua|gas|internet|celular|energia)\b`)},
	{"health", regexp.MustCompile(`\b(medicina|doctor|farmacia|droguer[i]a|eps)\b`)},
	{"shopping", regexp.MustCompile(`\b(ropa|zapatos|compras|tenis)\b`)},
	{"entertainment", regexp.MustCompile(`\b(cine|juegos|concierto|fiesta)\b`)},
	{"education", regexp.MustCompile(`\b(curso|universidad|matricula|colegio)\b`)},
	{"subscriptions", regexp.MustCompile(`\b(netflix|spotify|suscripcion|disney|hbo|prime)\b`)},
}

var (
	incomeVerbs   = regexp.MustCompile(`\b(me pagaron|recibi|ingreso|gane|salario|sueldo|reembolso)\b`)
	loanVerbs     = regexp.MustCompile(`\b(le preste|me prestaron|presté|me presto|le pague a|me pago)\b`)
	transferVerbs = regexp.MustCompile(`\b(pase a mi cuenta|traspaso|transferi entre|entre cuentas)\b`)
	recurringCues = regexp.MustCompile(`\b(mensual|cada mes|todos los meses|semanal|cada semana|suscripcion|quincena)\b`)
	weeklyCues    = regexp.MustCompile(`\b(semanal|cada semana)\b`)
	conceptAfter  = regexp.MustCompile(`(?:\ben\b|\bde\b|\bpara\b)\s+([a-zñ]+(?:\s+[a-zñ]+)?)`)
	connector     = regexp.MustCompile(`\s+y\s+|[,;]`)
)

type Extractor struct {
	classifier    classifier.Classifier
	currency      string
	maxInputChars int
	loc           *time.Location
	now           func() time.Time
}

// New builds an extractor. cls may be exercised concurrently across users and
// must be safe for that.
func New(cls classifier.Classifier, currency string, maxInputChars int, loc *time.Location) *Extractor {
	return &Extractor{
		classifier:    cls,
		currency:      currency,
		maxInputChars: maxInputChars,
		loc:           loc,
		now:           time.Now,
	}
}

// WithClock overrides the extractor's clock. Test hook.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// Extract produces one draft per amount-bearing segment of the text. A text
// with no amounts yields an empty slice and no error; the caller decides how
// to prompt the user. Classifier failures propagate unchanged so the caller
// can distinguish timeouts from hard errors.
func (e *Extractor) Extract(ctx context.Context, rawText string) ([]Draft, error) {
	if len([]rune(rawText)) > e.maxInputChars {
		return nil, ErrInputTooLong
	}

	var drafts []Draft

	for _, segment := range segments(rawText) {
		draft, err := e.extractSegment(ctx, segment)
		if err != nil {
			return nil, err
		}

		if draft != nil {
			drafts = append(drafts, *draft)
		}
	}

	return drafts, nil
}

// segments splits the text at connectors ("y", commas, semicolons) but only
// where both sides carry an amount token; connector-separated fragments
// without amounts are glued back to their neighbor. This keeps "almuerzo con
// arroz y pollo 15000" as a single segment while splitting
// "5k en comida y 60k en ropa" in two.
func segments(text string) []string {
	if parse.AmountCount(text) < 2 {
		return []string{strings.TrimSpace(text)}
	}

	var (
		out    []string
		prefix string
	)

	for _, part := range connector.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if prefix != "" {
			part = prefix + " " + part
			prefix = ""
		}

		if parse.AmountCount(part) == 0 {
			if len(out) == 0 {
				prefix = part
			} else {
				out[len(out)-1] += " " + part
			}

			continue
		}

		out = append(out, part)
	}

	if prefix != "" {
		out = append(out, prefix)
	}

	return out
}

func (e *Extractor) extractSegment(ctx context.Context, segment string) (*Draft, error) {
	amount, ok := parse.ParseAmount(segment)
	if !ok || !amount.IsPositive() {
		return nil, nil
	}

	folded := parse.Fold(segment)

	if category, hit := matchLexicon(folded); hit {
		return e.ruleDraft(segment, folded, amount, category), nil
	}

	result, err := e.classifier.Classify(ctx, segment)
	if err != nil {
		return nil, fmt.Errorf("classifying segment: %w", err)
	}

	return e.classifierDraft(segment, amount, result), nil
}

func matchLexicon(folded string) (string, bool) {
	for _, entry := range categoryLexicon {
		if entry.pattern.MatchString(folded) {
			return entry.category, true
		}
	}

	return "", false
}

func (e *Extractor) ruleDraft(segment, folded string, amount decimal.Decimal, category string) *Draft {
	draft := &Draft{
		Kind:       inferKind(folded),
		Amount:     amount,
		Currency:   e.currency,
		Category:   category,
		Concept:    extractConcept(folded),
		Date:       e.segmentDate(segment),
		Confidence: ruleConfidence,
		RawText:    segment,
	}

	if recurringCues.MatchString(folded) {
		draft.IsRecurring = true
		draft.Recurrence = "monthly"

		if weeklyCues.MatchString(folded) {
			draft.Recurrence = "weekly"
		}
	}

	return draft
}

func (e *Extractor) classifierDraft(segment string, amount decimal.Decimal, result *classifier.Result) *Draft {
	kind := ledger.Kind(result.Kind)
	if !kind.Valid() {
		kind = inferKind(parse.Fold(segment))
	}

	// The locally parsed amount wins over the classifier's: the model
	// occasionally drops slang multipliers the normalizer already resolved.

	currency := result.Currency
	if currency == "" {
		currency = e.currency
	}

	date := e.segmentDate(segment)
	if result.Date != "" {
		if parsed, err := time.ParseInLocation(time.DateOnly, result.Date, e.loc); err == nil {
			date = parsed
		}
	}

	return &Draft{
		Kind:         kind,
		Amount:       amount,
		Currency:     currency,
		Category:     result.Category,
		Concept:      result.Merchant,
		Counterparty: result.Counterparty,
		Date:         date,
		IsRecurring:  result.IsRecurring,
		Recurrence:   result.Recurrence,
		Confidence:   clamp01(result.Confidence),
		RawText:      segment,
	}
}

// segmentDate resolves an explicit or relative date mention, defaulting to
// today in the extractor's location.
func (e *Extractor) segmentDate(segment string) time.Time {
	now := e.now()
	if d, ok := parse.ParseRelativeDate(segment, e.loc, now); ok {
		return d
	}

	local := now.In(e.loc)

	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
}

func inferKind(folded string) ledger.Kind {
	switch {
	case loanVerbs.MatchString(folded):
		return ledger.KindLoan
	case transferVerbs.MatchString(folded):
		return ledger.KindTransfer
	case incomeVerbs.MatchString(folded):
		return ledger.KindIncome
	default:
		return ledger.KindExpense
	}
}

// cueWords are recurrence and filler tokens that should not leak into the
// concept ("de netflix cada mes" names "netflix", not "netflix cada").
var cueWords = map[string]struct{}{
	"cada": {}, "mensual": {}, "semanal": {}, "mes": {}, "semana": {},
	"todos": {}, "todas": {}, "quincena": {}, "al": {}, "los": {}, "las": {},
}

// extractConcept pulls the noun phrase nearest to the amount, e.g. "comida"
// out of "5k en comida".
func extractConcept(folded string) string {
	normalized := parse.NormalizeAmountSlang(folded)

	m := conceptAfter.FindStringSubmatch(normalized)
	if m == nil {
		return ""
	}

	var kept []string

	for _, word := range strings.Fields(m[1]) {
		if _, cue := cueWords[word]; cue {
			break
		}

		kept = append(kept, word)
	}

	return strings.Join(kept, " ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
