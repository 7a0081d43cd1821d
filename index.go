package rframe

import (
	"slices"

	"go.uber.org/zap"
)

// IndexKind tells how an index answers lookups.
type IndexKind int

const (
	// IndexNone means the table has no index.
	IndexNone IndexKind = iota
	// IndexSorted binary-searches a table sorted and aggregated by the keys.
	IndexSorted
	// IndexHashed maps each key to its run of rows in a grouped table.
	IndexHashed
)

func (k IndexKind) String() string {
	switch k {
	case IndexSorted:
		return "sorted"
	case IndexHashed:
		return "hashed"
	default:
		return "none"
	}
}

type rowIndex struct {
	kind   IndexKind
	cols   []string
	desc   []bool
	keys   rowKeyVec
	lookup func(probe rowKeyVec) (span, bool)
}

// IndexKind returns the kind of the current index.
func (df *DataFrame) IndexKind() IndexKind {
	if df.index == nil {
		return IndexNone
	}
	return df.index.kind
}

// IndexColumns returns the key columns of the current index.
func (df *DataFrame) IndexColumns() []string {
	if df.index == nil {
		return nil
	}
	return slices.Clone(df.index.cols)
}

// ClearIndex drops the index.
func (df *DataFrame) ClearIndex() { df.index = nil }

// SetIndex builds a lookup index on cols. A table sorted and aggregated by
// cols gets a binary-search index, a table grouped by cols a hash of row
// runs. Any other table is first sorted by cols in place.
func (df *DataFrame) SetIndex(cols ...string) error {
	const op = "set_index"
	if len(cols) == 0 {
		return newError(op, ErrUnsupported, "index needs at least one column")
	}
	if len(cols) > maxKeyCols {
		return newError(op, ErrTooManyKeys, "index on %d columns, at most %d allowed", len(cols), maxKeyCols)
	}
	if err := checkDistinct(op, "index", cols); err != nil {
		return err
	}
	keyCols, err := df.cols(op, cols)
	if err != nil {
		return err
	}
	st := df.status
	k := len(cols)

	if st.Sorted && len(st.SortCols) >= k && slices.Equal(st.SortCols[:k], cols) && st.IsAggregatedBy(cols) {
		desc := slices.Clone(st.SortDesc[:k])
		keys, err := buildKeys(op, cols, keyCols, desc, df.height, identityRow)
		if err != nil {
			return err
		}
		df.index = &rowIndex{kind: IndexSorted, cols: slices.Clone(cols), desc: desc, keys: keys}
		Logger().Debug("index built", zap.Stringer("kind", IndexSorted), zap.Strings("cols", cols))
		return nil
	}
	if st.IsGroupedBy(cols) {
		desc := make([]bool, k)
		keys, err := buildKeys(op, cols, keyCols, desc, df.height, identityRow)
		if err != nil {
			return err
		}
		df.index = &rowIndex{kind: IndexHashed, cols: slices.Clone(cols), desc: desc, lookup: keys.runIndex()}
		Logger().Debug("index built", zap.Stringer("kind", IndexHashed), zap.Strings("cols", cols))
		return nil
	}

	sorted, err := df.Query().Sort(cols...).Collect()
	if err != nil {
		return err
	}
	df.columns, df.colOrder, df.status = sorted.columns, sorted.colOrder, sorted.status
	return df.SetIndex(cols...)
}

// GetIndexed returns the rows whose index columns equal the single row of
// key. A key that is not present yields an empty slice.
func (df *DataFrame) GetIndexed(key *DataFrame) (Slice, error) {
	const op = "get_indexed"
	idx := df.index
	if idx == nil {
		return Slice{}, newError(op, ErrUnsupported, "table has no index")
	}
	if key.height != 1 {
		return Slice{}, newError(op, ErrLengthMismatch, "key table must have one row, has %d", key.height)
	}
	probeCols := make([]*Column, len(idx.cols))
	for i, name := range idx.cols {
		pc, err := key.col(op, name)
		if err != nil {
			return Slice{}, err
		}
		tc := df.columns[name]
		if pc.dtype != tc.dtype {
			return Slice{}, newError(op, ErrTypeMismatch, "key %s is %s, index has %s", name, pc.dtype, tc.dtype)
		}
		if pc.dtype == Factor && pc.valid[0] && !pc.levels.equal(tc.levels) {
			label, _ := pc.levels.Label(pc.codes[0])
			code, ok := tc.levels.Code(label)
			if !ok {
				return df.slice(0, 0), nil
			}
			pc = &Column{dtype: Factor, valid: []bool{true}, codes: []uint16{code}, levels: tc.levels}
		}
		probeCols[i] = pc
	}
	probe, err := buildKeys(op, idx.cols, probeCols, idx.desc, 1, identityRow)
	if err != nil {
		return Slice{}, err
	}

	switch idx.kind {
	case IndexSorted:
		if pos, ok := idx.keys.search(probe); ok {
			return df.slice(pos, 1), nil
		}
	case IndexHashed:
		if s, ok := idx.lookup(probe); ok {
			return df.slice(s.start, s.n), nil
		}
	}
	return df.slice(0, 0), nil
}
