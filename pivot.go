package rframe

import (
	"slices"
	"time"
)

// PivotSpec turns the levels of a pivot column into output columns, one
// cell per group and level.
type PivotSpec struct {
	pivot, fill string
	build       func(op string, fill *Column, codes []uint16, valid []bool, nlevels int, p *partition) ([]*Column, error)
}

// PivotWith reduces the present fill cells of each (group, level) pair
// with fn. Pairs without present cells yield na[0] if given, otherwise an
// absent cell.
func PivotWith[T Cell, R Cell](pivot, fill string, fn func(vals []T) R, na ...R) PivotSpec {
	return PivotSpec{pivot: pivot, fill: fill, build: func(op string, fcol *Column, codes []uint16, pvalid []bool, nlevels int, p *partition) ([]*Column, error) {
		if fcol == nil {
			return nil, newError(op, ErrColumnNotFound, "pivot on %s needs a fill column", pivot)
		}
		read, err := readerOf[T](op, fill, fcol)
		if err != nil {
			return nil, err
		}
		ng := len(p.spans)
		vals := make([][]R, nlevels)
		valid := make([][]bool, nlevels)
		for l := range vals {
			vals[l] = make([]R, ng)
			valid[l] = make([]bool, ng)
		}
		parallelForOp(OpGroupAgg, len(p.rows), ng, func(start, end int) {
			buckets := make([][]T, nlevels)
			for g := start; g < end; g++ {
				for l := range buckets {
					buckets[l] = buckets[l][:0]
				}
				s := p.spans[g]
				for _, row := range p.rows[s.start : s.start+s.n] {
					if !pvalid[row] {
						continue
					}
					if v, ok := read(row); ok {
						buckets[codes[row]] = append(buckets[codes[row]], v)
					}
				}
				for l, b := range buckets {
					switch {
					case len(b) > 0:
						vals[l][g], valid[l][g] = fn(b), true
					case len(na) > 0:
						vals[l][g], valid[l][g] = na[0], true
					}
				}
			}
		})
		out := make([]*Column, nlevels)
		for l := range out {
			if out[l], err = resultColumn(op, vals[l], valid[l], fcol); err != nil {
				return nil, err
			}
		}
		return out, nil
	}}
}

func pivotTally[R Cell](pivot string, fn func(n uint64) R) PivotSpec {
	return PivotSpec{pivot: pivot, build: func(op string, _ *Column, codes []uint16, pvalid []bool, nlevels int, p *partition) ([]*Column, error) {
		ng := len(p.spans)
		counts := make([][]uint64, nlevels)
		for l := range counts {
			counts[l] = make([]uint64, ng)
		}
		parallelForOp(OpGroupAgg, len(p.rows), ng, func(start, end int) {
			for g := start; g < end; g++ {
				s := p.spans[g]
				for _, row := range p.rows[s.start : s.start+s.n] {
					if pvalid[row] {
						counts[codes[row]][g]++
					}
				}
			}
		})
		out := make([]*Column, nlevels)
		for l := range out {
			vals := make([]R, ng)
			for g, n := range counts[l] {
				vals[g] = fn(n)
			}
			out[l] = newColumn(vals, allValid(ng), nil)
		}
		return out, nil
	}}
}

// PivotCount counts the rows of each (group, level) pair.
func PivotCount(pivot string) PivotSpec {
	return pivotTally(pivot, func(n uint64) uint64 { return n })
}

// PivotBool marks whether a (group, level) pair has any row.
func PivotBool(pivot string) PivotSpec {
	return pivotTally(pivot, func(n uint64) bool { return n > 0 })
}

// Pivot emits one row per group: the group columns, then one column per
// level of the pivot column, named by label in code order. A non-factor
// pivot column is factorized first.
func (q *Query) Pivot(spec PivotSpec) (*DataFrame, error) {
	const op = "pivot"
	start := time.Now()
	p, err := q.prepare(op)
	if err != nil {
		return nil, err
	}
	if spec.pivot == "" || spec.build == nil {
		return nil, newError(op, ErrColumnNotFound, "pivot needs a pivot column")
	}
	for _, name := range []string{spec.pivot, spec.fill} {
		if name == "" {
			continue
		}
		if !slices.Contains(p.aggCols, name) {
			if _, err := q.df.col(op, name); err != nil {
				return nil, err
			}
			return nil, newError(op, ErrColumnNotFound, "%s is not an aggregate column", name)
		}
	}
	pcol := q.df.columns[spec.pivot]
	if pcol.dtype != Factor {
		if pcol, err = Factorize(pcol); err != nil {
			return nil, err
		}
	}
	labels := pcol.levels.Labels()
	if err := checkOutputs(op, q.groupCols, labels); err != nil {
		return nil, err
	}
	part, err := p.partition()
	if err != nil {
		return nil, err
	}

	cols, err := spec.build(op, q.df.columns[spec.fill], pcol.codes, pcol.valid, len(labels), part)
	if err != nil {
		return nil, err
	}
	out := q.df.gatherRows(q.groupCols, part.firstRows())
	for l, label := range labels {
		out.columns[label] = cols[l]
		out.colOrder = append(out.colOrder, label)
	}
	out.status = p.groupStatus(true, labels).restrict(out.colOrder)
	finish(op, start, out)
	return out, nil
}
