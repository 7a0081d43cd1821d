package rframe

import (
	"cmp"
	"slices"
	"time"

	"go.uber.org/zap"
)

// ============================================================================
// Aggregations
// ============================================================================

// Aggregation reduces one input column to one output cell per group.
type Aggregation struct {
	out, in string
	build   func(op string, src *Column, p *partition) (*Column, error)
}

// Name returns the output column name.
func (a Aggregation) Name() string { return a.out }

// Input returns the input column name.
func (a Aggregation) Input() string { return a.in }

// Agg reduces the present cells of each group with fn. A group without
// present cells yields na[0] if given and an absent cell otherwise. fn
// receives a scratch slice it must not retain and must be safe for
// concurrent use.
func Agg[T Cell, R Cell](out, in string, fn func(vals []T) R, na ...R) Aggregation {
	return Aggregation{out: out, in: in, build: func(op string, src *Column, p *partition) (*Column, error) {
		read, err := readerOf[T](op, in, src)
		if err != nil {
			return nil, err
		}
		ng := len(p.spans)
		vals := make([]R, ng)
		valid := make([]bool, ng)
		parallelForOp(OpGroupAgg, len(p.rows), ng, func(start, end int) {
			buf := make([]T, 0, 64)
			for g := start; g < end; g++ {
				s := p.spans[g]
				buf = buf[:0]
				for _, row := range p.rows[s.start : s.start+s.n] {
					if v, ok := read(row); ok {
						buf = append(buf, v)
					}
				}
				switch {
				case len(buf) > 0:
					vals[g], valid[g] = fn(buf), true
				case len(na) > 0:
					vals[g], valid[g] = na[0], true
				}
			}
		})
		return resultColumn(op, vals, valid, src)
	}}
}

// Count counts present cells; an all-absent group counts 0.
func Count(out, in string) Aggregation {
	return Aggregation{out: out, in: in, build: func(op string, src *Column, p *partition) (*Column, error) {
		counts := make([]uint64, len(p.spans))
		parallelForOp(OpGroupAgg, len(p.rows), len(p.spans), func(start, end int) {
			for g := start; g < end; g++ {
				s := p.spans[g]
				for _, row := range p.rows[s.start : s.start+s.n] {
					if src.valid[row] {
						counts[g]++
					}
				}
			}
		})
		return newColumn(counts, allValid(len(counts)), nil), nil
	}}
}

// HasData reports whether a group has any present cell.
func HasData(out, in string) Aggregation {
	return Aggregation{out: out, in: in, build: func(op string, src *Column, p *partition) (*Column, error) {
		has := make([]bool, len(p.spans))
		for g, s := range p.spans {
			has[g] = slices.ContainsFunc(p.rows[s.start:s.start+s.n], func(row int) bool { return src.valid[row] })
		}
		return newColumn(has, allValid(len(has)), nil), nil
	}}
}

// Sum adds the present cells in the input type.
func Sum[T Number](out, in string, na ...T) Aggregation {
	return Agg(out, in, func(vals []T) T {
		var s T
		for _, v := range vals {
			s += v
		}
		return s
	}, na...)
}

// SumWide adds the present cells in float64, so integer sums cannot
// overflow.
func SumWide[T Number](out, in string, na ...float64) Aggregation {
	return Agg(out, in, func(vals []T) float64 {
		var s float64
		for _, v := range vals {
			s += float64(v)
		}
		return s
	}, na...)
}

// Mean averages the present cells.
func Mean[T Number](out, in string, na ...float64) Aggregation {
	return Agg(out, in, func(vals []T) float64 {
		var s float64
		for _, v := range vals {
			s += float64(v)
		}
		return s / float64(len(vals))
	}, na...)
}

// First takes the first present cell in group order.
func First[T Cell](out, in string, na ...T) Aggregation {
	return Agg(out, in, func(vals []T) T { return vals[0] }, na...)
}

// Last takes the last present cell in group order.
func Last[T Cell](out, in string, na ...T) Aggregation {
	return Agg(out, in, func(vals []T) T { return vals[len(vals)-1] }, na...)
}

// Min takes the smallest present cell. NaN sorts below every number.
func Min[T Ordered](out, in string, na ...T) Aggregation {
	return Agg(out, in, func(vals []T) T {
		m := vals[0]
		for _, v := range vals[1:] {
			if cmp.Less(v, m) {
				m = v
			}
		}
		return m
	}, na...)
}

// Max takes the largest present cell.
func Max[T Ordered](out, in string, na ...T) Aggregation {
	return Agg(out, in, func(vals []T) T {
		m := vals[0]
		for _, v := range vals[1:] {
			if cmp.Less(m, v) {
				m = v
			}
		}
		return m
	}, na...)
}

// TrueCount counts true cells of a Bool column.
func TrueCount(out, in string) Aggregation {
	return Agg(out, in, func(vals []bool) uint64 {
		var n uint64
		for _, v := range vals {
			if v {
				n++
			}
		}
		return n
	}, 0)
}

// TrueFreq is the share of true cells among present cells.
func TrueFreq(out, in string, na ...float64) Aggregation {
	return Agg(out, in, func(vals []bool) float64 {
		n := 0
		for _, v := range vals {
			if v {
				n++
			}
		}
		return float64(n) / float64(len(vals))
	}, na...)
}

// checkOutputs validates output names against each other and the keys.
func checkOutputs(op string, keys, outs []string) error {
	for i, o := range outs {
		if slices.Contains(keys, o) || slices.Contains(outs[:i], o) {
			return newError(op, ErrNameCollision, "output column %s is defined twice", o)
		}
	}
	return nil
}

// Aggregate emits one row per group: the group columns followed by one
// column per aggregation. With no aggregations it returns the distinct
// group keys. Every aggregation input must be an aggregate column.
func (q *Query) Aggregate(aggs ...Aggregation) (*DataFrame, error) {
	const op = "aggregate"
	start := time.Now()
	p, err := q.prepare(op)
	if err != nil {
		return nil, err
	}
	outs := make([]string, len(aggs))
	srcs := make([]*Column, len(aggs))
	for i, a := range aggs {
		if !slices.Contains(p.aggCols, a.in) {
			if _, err := q.df.col(op, a.in); err != nil {
				return nil, err
			}
			return nil, newError(op, ErrColumnNotFound, "%s is not an aggregate column", a.in)
		}
		outs[i] = a.out
		srcs[i] = q.df.columns[a.in]
	}
	if err := checkOutputs(op, q.groupCols, outs); err != nil {
		return nil, err
	}
	part, err := p.partition()
	if err != nil {
		return nil, err
	}

	out := q.df.gatherRows(q.groupCols, part.firstRows())
	for i, a := range aggs {
		c, err := a.build(op, srcs[i], part)
		if err != nil {
			return nil, err
		}
		out.columns[a.out] = c
		out.colOrder = append(out.colOrder, a.out)
	}
	out.status = p.groupStatus(true, outs).restrict(out.colOrder)
	Logger().Debug("aggregated", zap.Int("groups", out.height), zap.Strings("outputs", outs))
	finish(op, start, out)
	return out, nil
}

// ============================================================================
// Running aggregates
// ============================================================================

// RunningAgg produces one output cell per row, accumulated within each
// group in group order.
type RunningAgg struct {
	out, in string
	build   func(op string, src *Column, p *partition) (*Column, error)
}

// CumSum is the running total of present cells; an absent cell yields an
// absent output and leaves the total unchanged.
func CumSum[T Number](out, in string) RunningAgg {
	return RunningAgg{out: out, in: in, build: func(op string, src *Column, p *partition) (*Column, error) {
		read, err := readerOf[T](op, in, src)
		if err != nil {
			return nil, err
		}
		vals := make([]T, len(p.rows))
		valid := make([]bool, len(p.rows))
		for _, s := range p.spans {
			var total T
			for i := s.start; i < s.start+s.n; i++ {
				if v, ok := read(p.rows[i]); ok {
					total += v
					vals[i], valid[i] = total, true
				}
			}
		}
		return newColumn(vals, valid, nil), nil
	}}
}

// FreqOfTotal divides each present cell by its group's total.
func FreqOfTotal[T Number](out, in string) RunningAgg {
	return RunningAgg{out: out, in: in, build: func(op string, src *Column, p *partition) (*Column, error) {
		read, err := readerOf[T](op, in, src)
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(p.rows))
		valid := make([]bool, len(p.rows))
		for _, s := range p.spans {
			var total float64
			for i := s.start; i < s.start+s.n; i++ {
				if v, ok := read(p.rows[i]); ok {
					total += float64(v)
				}
			}
			for i := s.start; i < s.start+s.n; i++ {
				if v, ok := read(p.rows[i]); ok && total != 0 {
					vals[i], valid[i] = float64(v)/total, true
				}
			}
		}
		return newColumn(vals, valid, nil), nil
	}}
}

// RowNumber numbers the rows of each group from 1.
func RowNumber(out string) RunningAgg {
	return RunningAgg{out: out, build: func(op string, _ *Column, p *partition) (*Column, error) {
		vals := make([]uint64, len(p.rows))
		for _, s := range p.spans {
			for i := 0; i < s.n; i++ {
				vals[s.start+i] = uint64(i + 1)
			}
		}
		return newColumn(vals, allValid(len(vals)), nil), nil
	}}
}

// Running emits every kept row in group order: the group columns, the
// aggregate columns, then one column per running aggregate.
func (q *Query) Running(stmts ...RunningAgg) (*DataFrame, error) {
	const op = "running"
	start := time.Now()
	p, err := q.prepare(op)
	if err != nil {
		return nil, err
	}
	outs := make([]string, len(stmts))
	srcs := make([]*Column, len(stmts))
	for i, s := range stmts {
		outs[i] = s.out
		if s.in == "" {
			continue
		}
		if !slices.Contains(p.aggCols, s.in) {
			if _, err := q.df.col(op, s.in); err != nil {
				return nil, err
			}
			return nil, newError(op, ErrColumnNotFound, "%s is not an aggregate column", s.in)
		}
		srcs[i] = q.df.columns[s.in]
	}
	names := append(slices.Clone(q.groupCols), p.aggCols...)
	if err := checkOutputs(op, names, outs); err != nil {
		return nil, err
	}
	part, err := p.partition()
	if err != nil {
		return nil, err
	}

	out := q.df.gatherRows(names, part.rows)
	for i, s := range stmts {
		c, err := s.build(op, srcs[i], part)
		if err != nil {
			return nil, err
		}
		out.columns[s.out] = c
		out.colOrder = append(out.colOrder, s.out)
	}
	out.status = p.groupStatus(false, nil).restrict(out.colOrder)
	finish(op, start, out)
	return out, nil
}

// ============================================================================
// Callbacks
// ============================================================================

// DoFunc receives a group's index, a one-row table of its key values, and
// the group's rows of the aggregate columns.
type DoFunc func(group int, key *DataFrame, rows Slice) (*DataFrame, error)

// groupTables materializes the key table and the group-ordered aggregate
// table for callbacks.
func (q *Query) groupTables(op string) (*plan, *partition, *DataFrame, *DataFrame, error) {
	p, err := q.prepare(op)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	part, err := p.partition()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	keys := q.df.gatherRows(q.groupCols, part.firstRows())
	rows := q.df.gatherRows(p.aggCols, part.rows)
	return p, part, keys, rows, nil
}

// Do calls fn once per group, in group order, and concatenates the returned
// tables by row. A nil table contributes nothing. All returned tables must
// share column names and types.
func (q *Query) Do(fn DoFunc) (*DataFrame, error) {
	const op = "do"
	start := time.Now()
	p, part, keys, rows, err := q.groupTables(op)
	if err != nil {
		return nil, err
	}
	var out *DataFrame
	for g, s := range part.spans {
		res, err := fn(g, keys.slice(g, 1).ToDataFrame(), rows.slice(s.start, s.n))
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		if out == nil {
			out = res.Clone()
			continue
		}
		if err := out.RBind(res); err != nil {
			return nil, err
		}
	}
	if out == nil {
		return NewDataFrame(), nil
	}
	if len(q.groupCols) > 0 && containsAll(out.colOrder, q.groupCols) {
		out.status = p.groupStatus(false, nil).restrict(out.colOrder)
	} else {
		out.status = Status{}
	}
	finish(op, start, out)
	return out, nil
}

// DoCollect calls fn once per group, in group order, and flattens the
// returned vectors.
func DoCollect[T any](q *Query, fn func(group int, key *DataFrame, rows Slice) ([]T, error)) ([]T, error) {
	const op = "do"
	start := time.Now()
	_, part, keys, rows, err := q.groupTables(op)
	if err != nil {
		return nil, err
	}
	var out []T
	for g, s := range part.spans {
		res, err := fn(g, keys.slice(g, 1).ToDataFrame(), rows.slice(s.start, s.n))
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	observeOp(op, len(out), time.Since(start).Seconds())
	return out, nil
}

func containsAll(names, want []string) bool {
	for _, w := range want {
		if !slices.Contains(names, w) {
			return false
		}
	}
	return true
}
