// Package intents maps free text to a structured Intent.
// Clean Architecture: Pure domain logic - no I/O, no dependencies beyond entities.
// Detection is an ordered cascade of rules; the first rule that matches wins.
package intents

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
)

// Sample bounds and chart defaults.
const (
	DefaultSampleN  = 10
	MinSampleN      = 1
	MaxSampleN      = 50
	DefaultHistBins = 30
)

// Rule is one step of the cascade: a predicate and extractor in one.
type Rule struct {
	Name  string
	Match func(text string) (entities.Intent, bool)
}

var rules = []Rule{
	{Name: "summarize", Match: keywordRule(entities.IntentSummarize, `summarize|summary|t[oó]m t[aắ]t`)},
	{Name: "stats", Match: keywordRule(entities.IntentStats, `stats|statistics|describe|th[oố]ng k[eê]`)},
	{Name: "missing", Match: keywordRule(entities.IntentMissing, `missing|null|nan|thi[eế]u|gi[aá] tr[ịi] thi[eế]u`)},
	{Name: "schema", Match: keywordRule(entities.IntentSchema, `schema|columns|dtypes|d[aạ]ng li[eệ]u|c[oộ]t|c[oộ]t n[aà]o`)},
	{Name: "sample", Match: matchSample},
	{Name: "histogram", Match: matchHistogram},
	{Name: "bar", Match: matchBar},
	{Name: "line", Match: matchLine},
	{Name: "scatter", Match: matchScatter},
	{Name: "box", Match: matchBox},
}

// Rules returns the cascade in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Detect returns the first matching intent. A false result means the text
// should go to the language model.
func Detect(text string) (entities.Intent, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return entities.Intent{}, false
	}
	for _, r := range rules {
		if intent, ok := r.Match(text); ok {
			return intent, true
		}
	}
	return entities.Intent{}, false
}

// word wraps alternatives in Unicode-aware boundaries; RE2's \b only knows ASCII.
func word(alternatives string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(?:` + alternatives + `)(?:$|[^\p{L}\p{N}_])`)
}

func keywordRule(name entities.IntentName, alternatives string) func(string) (entities.Intent, bool) {
	re := word(alternatives)
	return func(text string) (entities.Intent, bool) {
		if !re.MatchString(text) {
			return entities.Intent{}, false
		}
		return entities.Intent{Name: name}, true
	}
}

var (
	sampleRe = word(`sample|preview|xem|m[aẫ]u`)
	numberRe = regexp.MustCompile(`\b(\d+)\b`)
)

func matchSample(text string) (entities.Intent, bool) {
	if !sampleRe.MatchString(text) {
		return entities.Intent{}, false
	}
	n := DefaultSampleN
	if m := numberRe.FindStringSubmatch(text); m != nil {
		n = atoiOr(m[1], MaxSampleN)
	}
	return entities.Intent{Name: entities.IntentSample, Args: entities.IntentArgs{N: ClampSample(n)}}, true
}

// ClampSample bounds a requested sample size to [MinSampleN, MaxSampleN].
func ClampSample(n int) int {
	return max(MinSampleN, min(MaxSampleN, n))
}

// name captures a column reference: letters, digits, underscores and spaces.
const name = `([\p{L}\p{N}_][\p{L}\p{N}_ \t]*)`

var (
	histRe    = regexp.MustCompile(`(?i)\bhist(?:ogram)?\s+of\s+` + name)
	binsRe    = regexp.MustCompile(`(?i)bins?\s*=\s*(\d+)`)
	barRe     = regexp.MustCompile(`(?i)\bbar\s+chart\s+of\s+` + name)
	topRe     = regexp.MustCompile(`(?i)top\s*=\s*(\d+)`)
	lineRe    = regexp.MustCompile(`(?i)\bline\s+chart\s+of\s+` + name + `\s+by\s+` + name)
	scatterRe = regexp.MustCompile(`(?i)\bscatter\s+(?:plot\s+)?(?:of\s+)?` + name + `\s+vs\.?\s+` + name)
	boxRe     = regexp.MustCompile(`(?i)\bbox\s+plot\s+of\s+` + name + `\s+by\s+` + name)

	// unitClauseRe matches a trailing "by month" style grouping clause.
	unitClauseRe = regexp.MustCompile(`(?i)\s+(?:by|per)\s+(?:day|daily|week(?:ly)?|month(?:ly)?|quarter(?:ly)?|year(?:ly)?)\W*$`)
)

var timeUnits = []struct {
	unit entities.TimeUnit
	re   *regexp.Regexp
}{
	{entities.UnitMonth, regexp.MustCompile(`(?i)\bmonth(?:ly)?\b`)},
	{entities.UnitWeek, regexp.MustCompile(`(?i)\bweek(?:ly)?\b`)},
	{entities.UnitDay, regexp.MustCompile(`(?i)\b(?:day|daily)\b`)},
	{entities.UnitYear, regexp.MustCompile(`(?i)\byear(?:ly)?\b`)},
	{entities.UnitQuarter, regexp.MustCompile(`(?i)\bquarter(?:ly)?\b`)},
}

func chart(spec entities.ChartSpec) entities.Intent {
	return entities.Intent{Name: entities.IntentChart, Args: entities.IntentArgs{Spec: &spec}}
}

func matchHistogram(text string) (entities.Intent, bool) {
	m := histRe.FindStringSubmatch(text)
	if m == nil {
		return entities.Intent{}, false
	}
	col := column(m[1], "bin", "bins")
	if col == "" {
		return entities.Intent{}, false
	}
	bins := DefaultHistBins
	if b := binsRe.FindStringSubmatch(text); b != nil {
		bins = atoiOr(b[1], DefaultHistBins)
	}
	return chart(entities.ChartSpec{
		Mark: entities.MarkHistogram,
		X:    entities.FieldSpec{Name: col, Kind: entities.KindQuantitative},
		Bins: bins,
	}), true
}

func matchBar(text string) (entities.Intent, bool) {
	m := barRe.FindStringSubmatch(text)
	if m == nil {
		return entities.Intent{}, false
	}
	col := column(m[1], "top")
	if col == "" {
		return entities.Intent{}, false
	}
	x := entities.FieldSpec{Name: col, Kind: entities.KindCategorical}
	if t := topRe.FindStringSubmatch(text); t != nil {
		x.TopK = atoiOr(t[1], 0)
	}
	return chart(entities.ChartSpec{Mark: entities.MarkBar, X: x}), true
}

func matchLine(text string) (entities.Intent, bool) {
	m := lineRe.FindStringSubmatch(unitClauseRe.ReplaceAllString(text, ""))
	if m == nil {
		m = lineRe.FindStringSubmatch(text)
	}
	if m == nil {
		return entities.Intent{}, false
	}
	y := column(m[1])
	x := column(m[2], "day", "daily", "week", "weekly", "month", "monthly", "quarter", "quarterly", "year", "yearly")
	if x == "" || y == "" {
		return entities.Intent{}, false
	}
	xf := entities.FieldSpec{Name: x, Kind: entities.KindTemporal}
	for _, tu := range timeUnits {
		if tu.re.MatchString(text) {
			xf.TimeUnit = tu.unit
			break
		}
	}
	return chart(entities.ChartSpec{
		Mark: entities.MarkLine,
		X:    xf,
		Y:    &entities.FieldSpec{Name: y, Kind: entities.KindQuantitative},
	}), true
}

func matchScatter(text string) (entities.Intent, bool) {
	m := scatterRe.FindStringSubmatch(text)
	if m == nil {
		return entities.Intent{}, false
	}
	x, y := column(m[1]), column(m[2])
	if x == "" || y == "" {
		return entities.Intent{}, false
	}
	return chart(entities.ChartSpec{
		Mark: entities.MarkScatter,
		X:    entities.FieldSpec{Name: x, Kind: entities.KindQuantitative},
		Y:    &entities.FieldSpec{Name: y, Kind: entities.KindQuantitative},
	}), true
}

func matchBox(text string) (entities.Intent, bool) {
	m := boxRe.FindStringSubmatch(text)
	if m == nil {
		return entities.Intent{}, false
	}
	value, category := column(m[1]), column(m[2])
	if value == "" || category == "" {
		return entities.Intent{}, false
	}
	return chart(entities.ChartSpec{
		Mark: entities.MarkBox,
		X:    entities.FieldSpec{Name: category, Kind: entities.KindCategorical},
		Y:    &entities.FieldSpec{Name: value, Kind: entities.KindQuantitative},
	}), true
}

// column normalises a captured name: whitespace collapsed, and trailing
// option words (as in "price bins=20") dropped while at least one word remains.
func column(raw string, trailing ...string) string {
	fields := strings.Fields(raw)
	for len(fields) > 1 && containsFold(trailing, fields[len(fields)-1]) {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

func containsFold(set []string, s string) bool {
	for _, v := range set {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
