package rframe

import (
	"slices"
	"time"

	"go.uber.org/zap"
)

// JoinType represents the type of join operation
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	OuterJoin
)

func (t JoinType) String() string {
	switch t {
	case InnerJoin:
		return "inner"
	case LeftJoin:
		return "left"
	case OuterJoin:
		return "outer"
	default:
		return "unknown"
	}
}

// ParseJoinType maps "inner", "left" or "outer" to a JoinType.
func ParseJoinType(s string) (JoinType, error) {
	for _, t := range []JoinType{InnerJoin, LeftJoin, OuterJoin} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, newError("join", ErrParse, "unknown join type %q", s)
}

type joinInput struct {
	df   *DataFrame
	cols []string
}

// Join is a pending equi-join of two or more tables on shared key columns.
// Inputs are folded left to right: ((t0 ⋈ t1) ⋈ t2) ...
type Join struct {
	how    JoinType
	keys   []string
	inputs []joinInput
	preds  []Predicate
	sorted bool
}

// NewJoin starts a join on the given key columns.
func NewJoin(how JoinType, keys ...string) *Join {
	return &Join{how: how, keys: keys}
}

// With adds an input. cols names the non-key columns it contributes; when
// no input names any, every non-key column of every input is kept.
func (j *Join) With(df *DataFrame, cols ...string) *Join {
	j.inputs = append(j.inputs, joinInput{df: df, cols: cols})
	return j
}

// Filter adds predicates applied to every input before joining.
func (j *Join) Filter(preds ...Predicate) *Join {
	j.preds = append(j.preds, preds...)
	return j
}

// Sorted selects the sort-merge strategy. Inputs already sorted by the keys
// are not re-sorted, and the result is sorted by the keys. Without it the
// join hashes the right input and keeps left row order; outer joins need
// Sorted.
func (j *Join) Sorted() *Join {
	j.sorted = true
	return j
}

// Join joins df with other on keys using the sort-merge strategy.
func (df *DataFrame) Join(other *DataFrame, how JoinType, keys ...string) (*DataFrame, error) {
	return NewJoin(how, keys...).With(df).With(other).Sorted().Collect()
}

// selections resolves the contributed columns of each input.
func (j *Join) selections() ([][]string, error) {
	const op = "join"
	wildcard := true
	for _, in := range j.inputs {
		if len(in.cols) > 0 {
			wildcard = false
		}
	}
	sel := make([][]string, len(j.inputs))
	for i, in := range j.inputs {
		if wildcard {
			for _, name := range in.df.colOrder {
				if !slices.Contains(j.keys, name) {
					sel[i] = append(sel[i], name)
				}
			}
			continue
		}
		for _, name := range in.cols {
			if _, err := in.df.col(op, name); err != nil {
				return nil, err
			}
			if slices.Contains(j.keys, name) {
				return nil, newError(op, ErrNameCollision, "key column %s can't be selected", name)
			}
		}
		sel[i] = slices.Clone(in.cols)
	}
	for i, names := range sel {
		for _, name := range names {
			for k, other := range j.inputs {
				if k != i && other.df.columns[name] != nil {
					return nil, newError(op, ErrNameCollision, "column %s exists in more than one input", name)
				}
			}
		}
	}
	return sel, nil
}

func (j *Join) validate() error {
	const op = "join"
	if len(j.inputs) < 2 {
		return newError(op, ErrUnsupported, "join needs at least two inputs, got %d", len(j.inputs))
	}
	if len(j.keys) == 0 {
		return newError(op, ErrUnsupported, "join needs at least one key column")
	}
	if len(j.keys) > maxKeyCols {
		return newError(op, ErrTooManyKeys, "join on %d columns, at most %d allowed", len(j.keys), maxKeyCols)
	}
	if err := checkDistinct(op, "key", j.keys); err != nil {
		return err
	}
	if j.how == OuterJoin && !j.sorted {
		return newError(op, ErrUnsupported, "outer join requires the sorted strategy")
	}
	first, err := j.inputs[0].df.cols(op, j.keys)
	if err != nil {
		return err
	}
	for _, in := range j.inputs[1:] {
		cols, err := in.df.cols(op, j.keys)
		if err != nil {
			return err
		}
		for k, c := range cols {
			if c.dtype != first[k].dtype {
				return newError(op, ErrTypeMismatch, "key %s is %s in one input and %s in another", j.keys[k], first[k].dtype, c.dtype)
			}
		}
	}
	for _, p := range j.preds {
		for _, in := range j.inputs {
			if _, err := in.df.cols(op, p.cols); err != nil {
				return err
			}
		}
	}
	return nil
}

// joinSide is one operand of a pairwise join.
type joinSide struct {
	df      *DataFrame
	refs    []rowRef
	keyCols []*Column
	// inKeyOrder is set when refs already follow the key order.
	inKeyOrder bool
}

func (j *Join) side(df *DataFrame, filter bool) (*joinSide, error) {
	const op = "join"
	s := &joinSide{df: df, inKeyOrder: df.status.IsSortedBy(j.keys, nil)}
	rows := []int(nil)
	if filter && len(j.preds) > 0 {
		var err error
		if rows, err = df.keptRows(op, j.preds); err != nil {
			return nil, err
		}
	}
	n := df.height
	if rows != nil {
		n = len(rows)
	}
	s.refs = make([]rowRef, n)
	for i := range s.refs {
		src := i
		if rows != nil {
			src = rows[i]
		}
		s.refs[i] = rowRef{src: src, flt: i, fss: i}
	}
	s.keyCols, _ = df.cols(op, j.keys)
	return s, nil
}

// unifyFactorKeys rewrites factor key columns of both sides onto one
// dictionary. The left codes never change; recoded right columns lose their
// key order.
func unifyFactorKeys(l, r *joinSide) error {
	for k, lc := range l.keyCols {
		rc := r.keyCols[k]
		if lc.dtype != Factor || lc.levels.equal(rc.levels) {
			continue
		}
		merged := lc.levels.clone()
		codes, err := merged.recode(rc.codes, rc.valid, rc.levels)
		if err != nil {
			return err
		}
		nl := *lc
		nl.levels = merged
		l.keyCols[k] = &nl
		r.keyCols[k] = &Column{dtype: Factor, valid: rc.valid, codes: codes, levels: merged}
		r.inKeyOrder = false
	}
	return nil
}

func copyCell(dst *Column, i int, src *Column, j int) {
	dst.valid[i] = src.valid[j]
	switch dst.dtype {
	case Int32:
		dst.ints[i] = src.ints[j]
	case Float64:
		dst.floats[i] = src.floats[j]
	case Bool:
		dst.bools[i] = src.bools[j]
	case UInt64:
		dst.sizes[i] = src.sizes[j]
	case Factor:
		dst.codes[i] = src.codes[j]
	default:
		dst.strs[i] = src.strs[j]
	}
}

// coalesce takes key cells from the left row, or from the right row when
// there is no left row.
func coalesce(l, r *Column, pairs joinPairs) *Column {
	out := l.gather(pairs.left)
	fill := r.gather(pairs.right)
	for i, li := range pairs.left {
		if li < 0 {
			copyCell(out, i, fill, i)
		}
	}
	return out
}

func (j *Join) pair(l, r *joinSide, lsel, rsel []string) (*DataFrame, error) {
	const op = "join"
	if err := unifyFactorKeys(l, r); err != nil {
		return nil, err
	}
	desc := make([]bool, len(j.keys))
	lkeys, err := buildKeys(op, j.keys, l.keyCols, desc, len(l.refs), func(i int) int { return l.refs[i].src })
	if err != nil {
		return nil, err
	}
	rkeys, err := buildKeys(op, j.keys, r.keyCols, desc, len(r.refs), func(i int) int { return r.refs[i].src })
	if err != nil {
		return nil, err
	}

	var pairs joinPairs
	if j.sorted {
		for _, s := range []struct {
			side *joinSide
			keys rowKeyVec
		}{{l, lkeys}, {r, rkeys}} {
			if s.side.inKeyOrder {
				plannerReuseTotal.WithLabelValues("join_sort").Inc()
				continue
			}
			s.keys.sortRefs(s.side.refs)
		}
		pairs = lkeys.mergeJoin(rkeys, l.refs, r.refs, j.how)
	} else {
		pairs = lkeys.hashJoin(rkeys, l.refs, r.refs, j.how)
	}
	Logger().Debug("join pair", zap.Stringer("how", j.how), zap.Bool("sorted", j.sorted),
		zap.Int("left", len(l.refs)), zap.Int("right", len(r.refs)), zap.Int("out", len(pairs.left)))

	out := NewDataFrame()
	out.height = len(pairs.left)
	for k, name := range j.keys {
		out.columns[name] = coalesce(l.keyCols[k], r.keyCols[k], pairs)
		out.colOrder = append(out.colOrder, name)
	}
	build := func(df *DataFrame, names []string, rows []int) {
		cols := ParallelBuildColumns(len(names), func(i int) *Column {
			return df.columns[names[i]].gather(rows)
		})
		for i, name := range names {
			out.columns[name] = cols[i]
			out.colOrder = append(out.colOrder, name)
		}
	}
	build(l.df, lsel, pairs.left)
	build(r.df, rsel, pairs.right)
	if j.sorted {
		out.status = Status{Sorted: true, SortCols: slices.Clone(j.keys), SortDesc: desc}
	}
	return out, nil
}

// Collect executes the join. The output holds the key columns followed by
// the contributed columns of each input in input order.
func (j *Join) Collect() (*DataFrame, error) {
	const op = "join"
	start := time.Now()
	if err := j.validate(); err != nil {
		return nil, err
	}
	sel, err := j.selections()
	if err != nil {
		return nil, err
	}

	acc, err := j.side(j.inputs[0].df, true)
	if err != nil {
		return nil, err
	}
	accSel := sel[0]
	var out *DataFrame
	for i := 1; i < len(j.inputs); i++ {
		right, err := j.side(j.inputs[i].df, true)
		if err != nil {
			return nil, err
		}
		if out, err = j.pair(acc, right, accSel, sel[i]); err != nil {
			return nil, err
		}
		// the accumulated table is already filtered
		if acc, err = j.side(out, false); err != nil {
			return nil, err
		}
		accSel = append(slices.Clone(accSel), sel[i]...)
	}
	finish(op, start, out)
	return out, nil
}
