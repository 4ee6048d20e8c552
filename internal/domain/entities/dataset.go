package entities

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Column type strings, spelled the way dataframe tooling reports them so the
// LLM context and schema tables read naturally.
const (
	DTypeInt64    = "int64"
	DTypeFloat64  = "float64"
	DTypeBool     = "bool"
	DTypeObject   = "object"
	DTypeDatetime = "datetime64[ns]"
)

// TimeLayout is the display layout for temporal cells.
const TimeLayout = "2006-01-02 15:04:05"

// Column is one named, typed column. Exactly one value slice is populated,
// chosen by DType; Null marks missing cells in every case.
type Column struct {
	Name    string
	DType   string
	Floats  []float64   // int64, float64
	Strings []string    // object
	Times   []time.Time // datetime64[ns]
	Bools   []bool      // bool
	Null    []bool
}

// Len returns the number of cells.
func (c *Column) Len() int { return len(c.Null) }

// IsNull reports whether cell i is missing.
func (c *Column) IsNull(i int) bool { return c.Null[i] }

// NullCount returns the number of missing cells.
func (c *Column) NullCount() int {
	n := 0
	for _, null := range c.Null {
		if null {
			n++
		}
	}
	return n
}

// IsNumeric reports whether the column holds int64 or float64 values.
func (c *Column) IsNumeric() bool {
	return c.DType == DTypeInt64 || c.DType == DTypeFloat64
}

// IsTemporal reports whether the column holds timestamps.
func (c *Column) IsTemporal() bool { return c.DType == DTypeDatetime }

// Float returns the numeric value of cell i. Temporal cells convert to Unix
// seconds; anything else reports false.
func (c *Column) Float(i int) (float64, bool) {
	if c.Null[i] {
		return 0, false
	}
	switch {
	case c.IsNumeric():
		return c.Floats[i], true
	case c.IsTemporal():
		return float64(c.Times[i].Unix()), true
	}
	return 0, false
}

// NumericValues returns the non-null numeric values in row order.
func (c *Column) NumericValues() []float64 {
	if !c.IsNumeric() {
		return nil
	}
	out := make([]float64, 0, len(c.Floats))
	for i, v := range c.Floats {
		if !c.Null[i] {
			out = append(out, v)
		}
	}
	return out
}

// Label renders cell i as display text. Missing cells render as "nan".
func (c *Column) Label(i int) string {
	if c.Null[i] {
		return "nan"
	}
	switch c.DType {
	case DTypeInt64:
		return strconv.FormatInt(int64(c.Floats[i]), 10)
	case DTypeFloat64:
		return FormatFloat(c.Floats[i])
	case DTypeBool:
		if c.Bools[i] {
			return "True"
		}
		return "False"
	case DTypeDatetime:
		return c.Times[i].Format(TimeLayout)
	}
	return c.Strings[i]
}

// Value returns cell i as a JSON-friendly value; missing cells are nil.
// Non-finite floats have no JSON number form and come back as their label.
func (c *Column) Value(i int) any {
	if c.Null[i] {
		return nil
	}
	switch c.DType {
	case DTypeInt64:
		return int64(c.Floats[i])
	case DTypeFloat64:
		if f := c.Floats[i]; math.IsNaN(f) || math.IsInf(f, 0) {
			return FormatFloat(f)
		}
		return c.Floats[i]
	case DTypeBool:
		return c.Bools[i]
	case DTypeDatetime:
		return c.Times[i].Format(TimeLayout)
	}
	return c.Strings[i]
}

func (c *Column) take(indices []int) *Column {
	out := &Column{Name: c.Name, DType: c.DType, Null: make([]bool, len(indices))}
	switch c.DType {
	case DTypeInt64, DTypeFloat64:
		out.Floats = make([]float64, len(indices))
	case DTypeBool:
		out.Bools = make([]bool, len(indices))
	case DTypeDatetime:
		out.Times = make([]time.Time, len(indices))
	default:
		out.Strings = make([]string, len(indices))
	}
	for j, i := range indices {
		out.Null[j] = c.Null[i]
		switch {
		case out.Floats != nil:
			out.Floats[j] = c.Floats[i]
		case out.Bools != nil:
			out.Bools[j] = c.Bools[i]
		case out.Times != nil:
			out.Times[j] = c.Times[i]
		default:
			out.Strings[j] = c.Strings[i]
		}
	}
	return out
}

func (c *Column) validate() error {
	n := len(c.Null)
	var got int
	switch c.DType {
	case DTypeInt64, DTypeFloat64:
		got = len(c.Floats)
	case DTypeBool:
		got = len(c.Bools)
	case DTypeDatetime:
		got = len(c.Times)
	case DTypeObject:
		got = len(c.Strings)
	default:
		return fmt.Errorf("column %q: unsupported dtype %q", c.Name, c.DType)
	}
	if got != n {
		return fmt.Errorf("column %q: %d values for %d cells", c.Name, got, n)
	}
	return nil
}

// Dataset is an immutable in-memory table. It is treated as read-only once
// constructed; filtering produces a new Dataset.
type Dataset struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// NewDataset builds a dataset from columns of equal length and unique names.
func NewDataset(columns []*Column) (*Dataset, error) {
	d := &Dataset{columns: columns, index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if err := c.validate(); err != nil {
			return nil, err
		}
		if _, dup := d.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		if i == 0 {
			d.rows = c.Len()
		} else if c.Len() != d.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.Name, c.Len(), d.rows)
		}
		d.index[c.Name] = i
	}
	return d, nil
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int { return d.rows }

// NumColumns returns the column count.
func (d *Dataset) NumColumns() int { return len(d.columns) }

// Columns returns the columns in order. Callers must not modify them.
func (d *Dataset) Columns() []*Column { return d.columns }

// ColumnNames returns column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// DTypes returns the column → dtype mapping.
func (d *Dataset) DTypes() map[string]string {
	out := make(map[string]string, len(d.columns))
	for _, c := range d.columns {
		out[c.Name] = c.DType
	}
	return out
}

// Column looks a column up by exact name.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.columns[i], true
}

// Resolve looks a column up by exact name, then by a unique case-insensitive match.
func (d *Dataset) Resolve(name string) (*Column, bool) {
	if c, ok := d.Column(name); ok {
		return c, true
	}
	var found *Column
	for _, c := range d.columns {
		if strings.EqualFold(c.Name, name) {
			if found != nil {
				return nil, false
			}
			found = c
		}
	}
	return found, found != nil
}

// Take returns a new dataset holding the given rows in the given order.
func (d *Dataset) Take(indices []int) *Dataset {
	out := &Dataset{columns: make([]*Column, len(d.columns)), index: d.index, rows: len(indices)}
	for i, c := range d.columns {
		out.columns[i] = c.take(indices)
	}
	return out
}

// MemoryUsage estimates the in-memory footprint in bytes.
func (d *Dataset) MemoryUsage() int64 {
	var total int64
	for _, c := range d.columns {
		if c.DType != DTypeObject {
			total += int64(c.Len()) * 8
			continue
		}
		for i, s := range c.Strings {
			if c.Null[i] {
				total += 24
				continue
			}
			total += 49 + int64(len(s))
		}
	}
	return total
}

// DatasetMeta describes a loaded dataset.
type DatasetMeta struct {
	Origin   string            `json:"csv_path"`
	Columns  []string          `json:"columns"`
	DTypes   map[string]string `json:"dtypes"`
	Rows     int               `json:"rows"`
	LoadedAt time.Time         `json:"loaded_at"`
}

// FormatFloat renders f the way a Python float prints: shortest form,
// always with a fractional part.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if math.Abs(f) >= 1e16 {
		s = strconv.FormatFloat(f, 'e', -1, 64)
	}
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// timeLayouts are tried in order when parsing date-like text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"01/02/2006 15:04",
	"2006-01",
}

// ParseTime parses s against the supported date layouts.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
