package usecases

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
)

const maxHistogramBins = 1000

// summary holds descriptive statistics of one numeric column.
type summary struct {
	Count                                 int
	Mean, Std, Min, Q25, Median, Q75, Max float64
}

// describe computes summary statistics over values. NaN marks undefined
// results (empty input, or std of a single value).
func describe(values []float64) summary {
	s := summary{Count: len(values)}
	if len(values) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.Q25, s.Median, s.Q75, s.Max = nan, nan, nan, nan, nan, nan, nan
		return s
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s.Mean = stat.Mean(sorted, nil)
	s.Std = math.NaN()
	if len(sorted) > 1 {
		s.Std = stat.StdDev(sorted, nil)
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Q25 = quantile(sorted, 0.25)
	s.Median = quantile(sorted, 0.5)
	s.Q75 = quantile(sorted, 0.75)
	return s
}

// quantile uses linear interpolation between closest ranks, the default in
// dataframe tooling. sorted must be ascending and non-empty.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return quantile(sorted, 0.5)
}

// fixed formats v with prec decimals. NaN is "N/A"; infinities keep their sign.
func fixed(v float64, prec int) string {
	if math.IsNaN(v) {
		return "N/A"
	}
	if math.IsInf(v, 0) {
		return entities.FormatFloat(v)
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// binValues counts values into equal-width, right-closed bins over
// [min, max]. The first bin also includes min.
func binValues(values []float64, bins int) []entities.HistBin {
	if len(values) == 0 {
		return nil
	}
	if bins <= 0 {
		bins = 30
	}
	bins = min(bins, maxHistogramBins)

	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)

	out := make([]entities.HistBin, bins)
	for i := range out {
		out[i].Lo = lo + float64(i)*width
		out[i].Hi = lo + float64(i+1)*width
	}
	out[bins-1].Hi = hi

	for _, v := range values {
		idx := int(math.Ceil((v-lo)/width)) - 1
		idx = max(0, min(bins-1, idx))
		out[idx].Count++
	}
	return out
}

// binLabel renders a bin as "(lo, hi]".
func binLabel(b entities.HistBin) string {
	return fmt.Sprintf("(%s, %s]", edge(b.Lo), edge(b.Hi))
}

func edge(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		s = "0"
	}
	return s
}

// valueCount is one distinct value and its frequency.
type valueCount struct {
	Label string
	Row   int // first row holding the value
	Count int
}

// valueCounts tallies non-null cells of c by display label, ordered by
// count descending. Ties keep first-appearance order.
func valueCounts(c *entities.Column) []valueCount {
	index := make(map[string]int)
	var out []valueCount
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			continue
		}
		label := c.Label(i)
		if j, ok := index[label]; ok {
			out[j].Count++
			continue
		}
		index[label] = len(out)
		out = append(out, valueCount{Label: label, Row: i, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// compareCells orders two non-null cells of c.
func compareCells(c *entities.Column, i, j int) int {
	switch {
	case c.IsNumeric():
		return cmpFloat(c.Floats[i], c.Floats[j])
	case c.IsTemporal():
		return c.Times[i].Compare(c.Times[j])
	case c.DType == entities.DTypeBool:
		a, b := c.Bools[i], c.Bools[j]
		if a == b {
			return 0
		}
		if !a {
			return -1
		}
		return 1
	}
	return strings.Compare(c.Strings[i], c.Strings[j])
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
