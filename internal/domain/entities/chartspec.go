package entities

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mark is the visualization kind requested by a chart specification.
type Mark string

const (
	MarkHistogram Mark = "histogram"
	MarkBar       Mark = "bar"
	MarkLine      Mark = "line"
	MarkScatter   Mark = "scatter"
	MarkBox       Mark = "box"
)

// Valid reports whether m is a known mark.
func (m Mark) Valid() bool {
	switch m {
	case MarkHistogram, MarkBar, MarkLine, MarkScatter, MarkBox:
		return true
	}
	return false
}

// NeedsY reports whether the mark plots a second field.
func (m Mark) NeedsY() bool {
	return m == MarkLine || m == MarkScatter || m == MarkBox
}

// Label is the capitalised mark name used in default titles.
func (m Mark) Label() string {
	if m == "" {
		return ""
	}
	return strings.ToUpper(string(m[:1])) + string(m[1:])
}

// Agg is the aggregation applied when grouping.
type Agg string

const (
	AggCount  Agg = "count"
	AggSum    Agg = "sum"
	AggMean   Agg = "mean"
	AggMin    Agg = "min"
	AggMax    Agg = "max"
	AggMedian Agg = "median"
)

// Valid reports whether a is a known aggregation.
func (a Agg) Valid() bool {
	switch a {
	case AggCount, AggSum, AggMean, AggMin, AggMax, AggMedian:
		return true
	}
	return false
}

// Kind is the measurement kind of a field.
type Kind string

const (
	KindQuantitative Kind = "quantitative"
	KindCategorical  Kind = "categorical"
	KindTemporal     Kind = "temporal"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindQuantitative || k == KindCategorical || k == KindTemporal
}

// TimeUnit is the granularity for temporal regrouping.
type TimeUnit string

const (
	UnitDay     TimeUnit = "day"
	UnitWeek    TimeUnit = "week"
	UnitMonth   TimeUnit = "month"
	UnitQuarter TimeUnit = "quarter"
	UnitYear    TimeUnit = "year"
)

// Valid reports whether u is a known unit.
func (u TimeUnit) Valid() bool {
	switch u {
	case UnitDay, UnitWeek, UnitMonth, UnitQuarter, UnitYear:
		return true
	}
	return false
}

// SortDir orders categories.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// FilterOp is a filter comparison operator.
type FilterOp string

const (
	OpEq    FilterOp = "=="
	OpNe    FilterOp = "!="
	OpIn    FilterOp = "in"
	OpNotIn FilterOp = "notin"
	OpGt    FilterOp = ">"
	OpGe    FilterOp = ">="
	OpLt    FilterOp = "<"
	OpLe    FilterOp = "<="
)

// Valid reports whether op is a known operator.
func (op FilterOp) Valid() bool {
	switch op {
	case OpEq, OpNe, OpIn, OpNotIn, OpGt, OpGe, OpLt, OpLe:
		return true
	}
	return false
}

// UnmarshalJSON accepts "not-in" and "not in" as spellings of notin.
func (op *FilterOp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "not-in", "not in", "not_in":
		s = string(OpNotIn)
	}
	*op = FilterOp(s)
	return nil
}

// FieldSpec describes one chart axis.
type FieldSpec struct {
	Name     string   `json:"name"`
	Kind     Kind     `json:"type"`
	Bin      int      `json:"bin,omitempty"`
	TimeUnit TimeUnit `json:"time_unit,omitempty"`
	TopK     int      `json:"topk,omitempty"`
	Sort     SortDir  `json:"sort,omitempty"`
}

// FilterSpec is one row predicate. Filters apply conjunctively in order.
type FilterSpec struct {
	Column string   `json:"column"`
	Op     FilterOp `json:"op"`
	Value  any      `json:"value"`
}

// ChartSpec is the declarative description of a requested chart.
type ChartSpec struct {
	Mark    Mark         `json:"mark"`
	X       FieldSpec    `json:"x"`
	Y       *FieldSpec   `json:"y,omitempty"`
	Agg     Agg          `json:"agg,omitempty"`
	Filters []FilterSpec `json:"filters,omitempty"`
	Title   string       `json:"title,omitempty"`
	Bins    int          `json:"bins,omitempty"`
	Width   int          `json:"width,omitempty"`
	Height  int          `json:"height,omitempty"`
}

// Default rendering size in pixels.
const (
	DefaultChartWidth  = 800
	DefaultChartHeight = 450
)

// WithDefaults returns a copy with agg, width and height filled in.
func (s ChartSpec) WithDefaults() ChartSpec {
	if s.Agg == "" {
		s.Agg = AggCount
	}
	if s.Width <= 0 {
		s.Width = DefaultChartWidth
	}
	if s.Height <= 0 {
		s.Height = DefaultChartHeight
	}
	if s.X.Sort == "" {
		s.X.Sort = SortDesc
	}
	return s
}

// Validate checks enum values and the presence of required fields.
// Mark/kind compatibility is checked later against the data's inferred kinds.
func (s ChartSpec) Validate() error {
	if !s.Mark.Valid() {
		return &InvalidSpecError{Reason: fmt.Sprintf("unknown mark %q", s.Mark)}
	}
	if strings.TrimSpace(s.X.Name) == "" {
		return &InvalidSpecError{Reason: "x.name is required"}
	}
	if err := s.X.validate("x"); err != nil {
		return err
	}
	if s.Y != nil {
		if strings.TrimSpace(s.Y.Name) == "" {
			return &InvalidSpecError{Reason: "y.name is required"}
		}
		if err := s.Y.validate("y"); err != nil {
			return err
		}
	} else if s.Mark.NeedsY() {
		return &InvalidSpecError{Reason: fmt.Sprintf("%s chart requires a y field", s.Mark)}
	}
	if s.Agg != "" && !s.Agg.Valid() {
		return &InvalidSpecError{Reason: fmt.Sprintf("unknown aggregation %q", s.Agg)}
	}
	if s.Bins < 0 {
		return &InvalidSpecError{Reason: "bins must be positive"}
	}
	for i, f := range s.Filters {
		if !f.Op.Valid() {
			return &InvalidSpecError{Reason: fmt.Sprintf("filter %d: unknown operator %q", i, f.Op)}
		}
		if f.Column == "" {
			return &InvalidSpecError{Reason: fmt.Sprintf("filter %d: column is required", i)}
		}
	}
	return nil
}

func (f FieldSpec) validate(axis string) error {
	if f.Kind != "" && !f.Kind.Valid() {
		return &InvalidSpecError{Reason: fmt.Sprintf("%s: unknown type %q", axis, f.Kind)}
	}
	if f.TimeUnit != "" && !f.TimeUnit.Valid() {
		return &InvalidSpecError{Reason: fmt.Sprintf("%s: unknown time_unit %q", axis, f.TimeUnit)}
	}
	if f.Sort != "" && f.Sort != SortAsc && f.Sort != SortDesc {
		return &InvalidSpecError{Reason: fmt.Sprintf("%s: unknown sort %q", axis, f.Sort)}
	}
	if f.Bin < 0 || f.TopK < 0 {
		return &InvalidSpecError{Reason: fmt.Sprintf("%s: bin and topk must be positive", axis)}
	}
	return nil
}
