package main

import (
	"cmp"
	"fmt"
	"regexp"
	"strings"

	"github.com/NerdMeNot/rframe"
)

// aggSpec is one "out=fn:col" statement. The output name defaults to
// fn_col, or fn when there is no input column.
type aggSpec struct {
	out, fn, in string
}

func parseAggSpec(s string) (aggSpec, error) {
	s = strings.TrimSpace(s)
	lhs, rhs, named := strings.Cut(s, "=")
	if !named {
		rhs = lhs
	}
	fn, in, _ := strings.Cut(rhs, ":")
	a := aggSpec{fn: strings.ToLower(strings.TrimSpace(fn)), in: strings.TrimSpace(in)}
	switch {
	case named:
		a.out = strings.TrimSpace(lhs)
	case a.in != "":
		a.out = a.fn + "_" + a.in
	default:
		a.out = a.fn
	}
	if a.fn == "" || a.out == "" {
		return aggSpec{}, fmt.Errorf("invalid aggregation %q, want out=fn:col", s)
	}
	return a, nil
}

func (a aggSpec) String() string {
	return fmt.Sprintf("%s=%s:%s", a.out, a.fn, a.in)
}

func inputType(df *rframe.DataFrame, name string) (rframe.DType, error) {
	c := df.Column(name)
	if c == nil {
		return 0, fmt.Errorf("column %s not found", name)
	}
	return c.DType(), nil
}

// ============================================================================
// Aggregations
// ============================================================================

func cellAgg[T rframe.Cell](a aggSpec) (rframe.Aggregation, bool) {
	switch a.fn {
	case "first":
		return rframe.First[T](a.out, a.in), true
	case "last":
		return rframe.Last[T](a.out, a.in), true
	}
	return rframe.Aggregation{}, false
}

func orderedAgg[T rframe.Ordered](a aggSpec) (rframe.Aggregation, bool) {
	switch a.fn {
	case "min":
		return rframe.Min[T](a.out, a.in), true
	case "max":
		return rframe.Max[T](a.out, a.in), true
	}
	return cellAgg[T](a)
}

func numberAgg[T rframe.Number](a aggSpec) (rframe.Aggregation, bool) {
	switch a.fn {
	case "sum":
		return rframe.Sum[T](a.out, a.in), true
	case "sumwide":
		return rframe.SumWide[T](a.out, a.in), true
	case "mean":
		return rframe.Mean[T](a.out, a.in), true
	}
	return orderedAgg[T](a)
}

func boolAgg(a aggSpec) (rframe.Aggregation, bool) {
	switch a.fn {
	case "truecount":
		return rframe.TrueCount(a.out, a.in), true
	case "truefreq":
		return rframe.TrueFreq(a.out, a.in), true
	}
	return cellAgg[bool](a)
}

// aggregation resolves a to a typed aggregation over its input column.
func (a aggSpec) aggregation(df *rframe.DataFrame) (rframe.Aggregation, error) {
	if a.in == "" {
		return rframe.Aggregation{}, fmt.Errorf("aggregation %s needs an input column", a)
	}
	dt, err := inputType(df, a.in)
	if err != nil {
		return rframe.Aggregation{}, err
	}
	switch a.fn {
	case "count":
		return rframe.Count(a.out, a.in), nil
	case "hasdata":
		return rframe.HasData(a.out, a.in), nil
	}
	var agg rframe.Aggregation
	var ok bool
	switch dt {
	case rframe.Int32:
		agg, ok = numberAgg[int32](a)
	case rframe.Float64:
		agg, ok = numberAgg[float64](a)
	case rframe.UInt64:
		agg, ok = numberAgg[uint64](a)
	case rframe.Factor:
		agg, ok = orderedAgg[uint16](a)
	case rframe.String:
		agg, ok = orderedAgg[string](a)
	case rframe.Bool:
		agg, ok = boolAgg(a)
	}
	if !ok {
		return rframe.Aggregation{}, fmt.Errorf("aggregation %q does not apply to %s column %s", a.fn, dt, a.in)
	}
	return agg, nil
}

// ============================================================================
// Running aggregates
// ============================================================================

func numberRunning[T rframe.Number](a aggSpec) (rframe.RunningAgg, bool) {
	switch a.fn {
	case "cumsum":
		return rframe.CumSum[T](a.out, a.in), true
	case "freq":
		return rframe.FreqOfTotal[T](a.out, a.in), true
	}
	return rframe.RunningAgg{}, false
}

func (a aggSpec) running(df *rframe.DataFrame) (rframe.RunningAgg, error) {
	if a.fn == "rownum" {
		return rframe.RowNumber(a.out), nil
	}
	dt, err := inputType(df, a.in)
	if err != nil {
		return rframe.RunningAgg{}, err
	}
	var r rframe.RunningAgg
	var ok bool
	switch dt {
	case rframe.Int32:
		r, ok = numberRunning[int32](a)
	case rframe.Float64:
		r, ok = numberRunning[float64](a)
	case rframe.UInt64:
		r, ok = numberRunning[uint64](a)
	}
	if !ok {
		return rframe.RunningAgg{}, fmt.Errorf("running aggregate %q does not apply to %s column %s", a.fn, dt, a.in)
	}
	return r, nil
}

// ============================================================================
// Pivot fills
// ============================================================================

func numberFill[T rframe.Number](fn, pivot, fill string) (rframe.PivotSpec, bool) {
	switch fn {
	case "sum":
		return rframe.PivotWith(pivot, fill, func(vals []T) T {
			var s T
			for _, v := range vals {
				s += v
			}
			return s
		}), true
	case "mean":
		return rframe.PivotWith(pivot, fill, func(vals []T) float64 {
			var s float64
			for _, v := range vals {
				s += float64(v)
			}
			return s / float64(len(vals))
		}), true
	case "min":
		return rframe.PivotWith(pivot, fill, func(vals []T) T { return minOf(vals) }), true
	case "max":
		return rframe.PivotWith(pivot, fill, func(vals []T) T { return maxOf(vals) }), true
	}
	return cellFill[T](fn, pivot, fill)
}

func cellFill[T rframe.Cell](fn, pivot, fill string) (rframe.PivotSpec, bool) {
	switch fn {
	case "first":
		return rframe.PivotWith(pivot, fill, func(vals []T) T { return vals[0] }), true
	case "last":
		return rframe.PivotWith(pivot, fill, func(vals []T) T { return vals[len(vals)-1] }), true
	case "count":
		return rframe.PivotWith(pivot, fill, func(vals []T) uint64 { return uint64(len(vals)) }, 0), true
	}
	return rframe.PivotSpec{}, false
}

func minOf[T rframe.Number](vals []T) T {
	m := vals[0]
	for _, v := range vals[1:] {
		if cmp.Less(v, m) {
			m = v
		}
	}
	return m
}

func maxOf[T rframe.Number](vals []T) T {
	m := vals[0]
	for _, v := range vals[1:] {
		if cmp.Less(m, v) {
			m = v
		}
	}
	return m
}

// pivotSpec builds the spec for --pivot/--fill/--fn. Without a fill column
// the cells count rows ("count") or flag their presence ("any").
func pivotSpec(df *rframe.DataFrame, fn, pivot, fill string) (rframe.PivotSpec, error) {
	if fill == "" {
		switch fn {
		case "", "count":
			return rframe.PivotCount(pivot), nil
		case "any":
			return rframe.PivotBool(pivot), nil
		}
		return rframe.PivotSpec{}, fmt.Errorf("pivot function %q needs --fill", fn)
	}
	if fn == "" {
		fn = "sum"
	}
	dt, err := inputType(df, fill)
	if err != nil {
		return rframe.PivotSpec{}, err
	}
	var spec rframe.PivotSpec
	var ok bool
	switch dt {
	case rframe.Int32:
		spec, ok = numberFill[int32](fn, pivot, fill)
	case rframe.Float64:
		spec, ok = numberFill[float64](fn, pivot, fill)
	case rframe.UInt64:
		spec, ok = numberFill[uint64](fn, pivot, fill)
	case rframe.Bool:
		spec, ok = cellFill[bool](fn, pivot, fill)
	case rframe.Factor:
		spec, ok = cellFill[uint16](fn, pivot, fill)
	case rframe.String:
		spec, ok = cellFill[string](fn, pivot, fill)
	}
	if !ok {
		return rframe.PivotSpec{}, fmt.Errorf("pivot function %q does not apply to %s column %s", fn, dt, fill)
	}
	return spec, nil
}

// ============================================================================
// Filters
// ============================================================================

var whereRe = regexp.MustCompile(`^\s*([^!<>=\s]+)\s*(!=|>=|<=|==|=|<|>)\s*(.*?)\s*$`)

// parseValue parses raw with the parser of a dt column.
func parseValue[T rframe.Cell](dt rframe.DType, raw string) (T, error) {
	var zero T
	c := rframe.NewEmptyColumn(dt)
	if err := c.AppendStrings(raw); err != nil {
		return zero, err
	}
	o, err := rframe.Get[T](c, 0)
	if err != nil {
		return zero, err
	}
	if !o.Valid {
		return zero, fmt.Errorf("%q is not a comparable value", raw)
	}
	return o.Value, nil
}

func compareWhere[T rframe.Ordered](col, op string, v T) rframe.Predicate {
	return rframe.Where(col, func(o rframe.Opt[T]) bool {
		if !o.Valid {
			return false
		}
		c := cmp.Compare(o.Value, v)
		switch op {
		case "=", "==":
			return c == 0
		case "!=":
			return c != 0
		case "<":
			return c < 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		default:
			return c >= 0
		}
	})
}

func typedWhere[T rframe.Ordered](dt rframe.DType, col, op, raw string) (rframe.Predicate, error) {
	v, err := parseValue[T](dt, raw)
	if err != nil {
		return rframe.Predicate{}, err
	}
	return compareWhere(col, op, v), nil
}

// parseWhere turns "col<op>value" into a predicate typed by the column.
// "col=NA" and "col!=NA" test for absent cells; factor cells compare by
// label.
func parseWhere(expr string, df *rframe.DataFrame) (rframe.Predicate, error) {
	m := whereRe.FindStringSubmatch(expr)
	if m == nil {
		return rframe.Predicate{}, fmt.Errorf("invalid filter %q, want col<op>value", expr)
	}
	col, op, raw := m[1], m[2], m[3]
	dt, err := inputType(df, col)
	if err != nil {
		return rframe.Predicate{}, err
	}
	if strings.EqualFold(raw, "NA") {
		switch op {
		case "=", "==":
			return rframe.IsNA(col), nil
		case "!=":
			return rframe.NotNA(col), nil
		}
		return rframe.Predicate{}, fmt.Errorf("filter %q: NA only supports = and !=", expr)
	}
	switch dt {
	case rframe.Int32:
		return typedWhere[int32](dt, col, op, raw)
	case rframe.Float64:
		return typedWhere[float64](dt, col, op, raw)
	case rframe.UInt64:
		return typedWhere[uint64](dt, col, op, raw)
	case rframe.Factor, rframe.String:
		return typedWhere[string](rframe.String, col, op, raw)
	case rframe.Bool:
		v, err := parseValue[bool](dt, raw)
		if err != nil {
			return rframe.Predicate{}, err
		}
		switch op {
		case "=", "==":
			return rframe.Eq(col, v), nil
		case "!=":
			return rframe.Where(col, func(o rframe.Opt[bool]) bool { return o.Valid && o.Value != v }), nil
		}
		return rframe.Predicate{}, fmt.Errorf("filter %q: Bool only supports = and !=", expr)
	}
	return rframe.Predicate{}, fmt.Errorf("filter %q: unsupported column type %s", expr, dt)
}
