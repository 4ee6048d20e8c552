package usecases

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
)

// applyFilters keeps the rows that satisfy every filter, in order. Filters
// naming a column absent from the dataset are skipped.
func applyFilters(ds *entities.Dataset, filters []entities.FilterSpec) (*entities.Dataset, error) {
	for _, f := range filters {
		col, ok := ds.Resolve(f.Column)
		if !ok {
			continue
		}
		keep, err := predicate(col, f)
		if err != nil {
			return nil, err
		}
		var idx []int
		for i := 0; i < ds.NumRows(); i++ {
			if keep(i) {
				idx = append(idx, i)
			}
		}
		if len(idx) != ds.NumRows() {
			ds = ds.Take(idx)
		}
	}
	return ds, nil
}

// predicate compiles one filter against a column. Null cells satisfy only
// the negative operators.
func predicate(col *entities.Column, f entities.FilterSpec) (func(int) bool, error) {
	if !f.Op.Valid() {
		return nil, &entities.InvalidSpecError{Reason: fmt.Sprintf("unknown filter operator %q", f.Op)}
	}
	negative := f.Op == entities.OpNe || f.Op == entities.OpNotIn

	if f.Op == entities.OpIn || f.Op == entities.OpNotIn {
		list, ok := asList(f.Value)
		if !ok {
			return nil, &entities.InvalidSpecError{Reason: fmt.Sprintf("filter on '%s': %s needs a list value", f.Column, f.Op)}
		}
		keys := make([]cell, len(list))
		for i, v := range list {
			k, err := coerce(col, v)
			if err != nil {
				return nil, filterError(f, err)
			}
			keys[i] = k
		}
		return func(i int) bool {
			if col.IsNull(i) {
				return negative
			}
			found := false
			for _, k := range keys {
				if k.compare(col, i) == 0 {
					found = true
					break
				}
			}
			return found != negative
		}, nil
	}

	key, err := coerce(col, f.Value)
	if err != nil {
		return nil, filterError(f, err)
	}
	return func(i int) bool {
		if col.IsNull(i) {
			return negative
		}
		c := key.compare(col, i)
		switch f.Op {
		case entities.OpEq:
			return c == 0
		case entities.OpNe:
			return c != 0
		case entities.OpGt:
			return c > 0
		case entities.OpGe:
			return c >= 0
		case entities.OpLt:
			return c < 0
		case entities.OpLe:
			return c <= 0
		}
		return false
	}, nil
}

func filterError(f entities.FilterSpec, err error) error {
	return &entities.InvalidSpecError{Reason: fmt.Sprintf("filter on '%s': %v", f.Column, err)}
}

// cell is a filter operand coerced to a column's type.
type cell struct {
	num  float64
	str  string
	when time.Time
	flag bool
}

// compare orders row i of col against the operand.
func (k cell) compare(col *entities.Column, i int) int {
	switch {
	case col.IsNumeric():
		return cmpFloat(col.Floats[i], k.num)
	case col.IsTemporal():
		return col.Times[i].Compare(k.when)
	case col.DType == entities.DTypeBool:
		if col.Bools[i] == k.flag {
			return 0
		}
		if !col.Bools[i] {
			return -1
		}
		return 1
	}
	return strings.Compare(col.Strings[i], k.str)
}

func coerce(col *entities.Column, v any) (cell, error) {
	switch {
	case col.IsNumeric():
		f, ok := asFloat(v)
		if !ok {
			return cell{}, fmt.Errorf("%v is not a number", v)
		}
		return cell{num: f}, nil
	case col.IsTemporal():
		s, ok := v.(string)
		if !ok {
			return cell{}, fmt.Errorf("%v is not a date", v)
		}
		t, ok := entities.ParseTime(s)
		if !ok {
			return cell{}, fmt.Errorf("%q is not a date", s)
		}
		return cell{when: t}, nil
	case col.DType == entities.DTypeBool:
		switch b := v.(type) {
		case bool:
			return cell{flag: b}, nil
		case string:
			parsed, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(b)))
			if err != nil {
				return cell{}, fmt.Errorf("%q is not a boolean", b)
			}
			return cell{flag: parsed}, nil
		}
		return cell{}, fmt.Errorf("%v is not a boolean", v)
	}
	switch s := v.(type) {
	case string:
		return cell{str: s}, nil
	case nil:
		return cell{}, fmt.Errorf("null is not comparable")
	}
	if f, ok := asFloat(v); ok {
		return cell{str: strconv.FormatFloat(f, 'f', -1, 64)}, nil
	}
	return cell{str: fmt.Sprint(v)}, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(l))
		for i, f := range l {
			out[i] = f
		}
		return out, true
	}
	return nil, false
}
