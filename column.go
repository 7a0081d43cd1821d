package rframe

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ============================================================================
// Cells
// ============================================================================

// Opt is a possibly-absent cell value.
type Opt[T any] struct {
	Value T
	Valid bool
}

// Some wraps a present value.
func Some[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Valid: true}
}

// NA returns the absent value of T.
func NA[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it is present.
func (o Opt[T]) Get() (T, bool) {
	return o.Value, o.Valid
}

// Or returns the value, or def when absent.
func (o Opt[T]) Or(def T) T {
	if o.Valid {
		return o.Value
	}
	return def
}

func (o Opt[T]) String() string {
	if !o.Valid {
		return "NA"
	}
	return fmt.Sprint(o.Value)
}

// Cell lists the Go types that back a column. uint16 is a factor code; string
// is a String cell, or a factor label wherever cells are only read.
type Cell interface {
	int32 | float64 | bool | uint64 | uint16 | string
}

// Number is the set of summable cell types.
type Number interface {
	int32 | float64 | uint64
}

// Ordered is the set of cell types with a natural order.
type Ordered interface {
	int32 | float64 | uint64 | uint16 | string
}

func dtypeOf[T Cell]() DType {
	var z T
	switch any(z).(type) {
	case int32:
		return Int32
	case float64:
		return Float64
	case bool:
		return Bool
	case uint64:
		return UInt64
	case uint16:
		return Factor
	default:
		return String
	}
}

// ============================================================================
// Column
// ============================================================================

// Column is a typed vector of cells plus a validity mask. Exactly one of the
// typed slices is in use, selected by dtype. Columns carry no name; a
// DataFrame owns names and order.
type Column struct {
	dtype  DType
	valid  []bool
	ints   []int32
	floats []float64
	bools  []bool
	sizes  []uint64
	codes  []uint16
	strs   []string
	levels *Levels
}

func newColumn[T Cell](data []T, valid []bool, levels *Levels) *Column {
	c := &Column{dtype: dtypeOf[T](), valid: valid, levels: levels}
	switch d := any(data).(type) {
	case []int32:
		c.ints = d
	case []float64:
		c.floats = d
	case []bool:
		c.bools = d
	case []uint64:
		c.sizes = d
	case []uint16:
		c.codes = d
		if c.levels == nil {
			c.levels = newExtendableLevels()
		}
	case []string:
		c.strs = d
	}
	return c
}

func allValid(n int) []bool {
	v := make([]bool, n)
	for i := range v {
		v[i] = true
	}
	return v
}

func withMask[T Cell](data []T, valid []bool) *Column {
	if valid == nil {
		return newColumn(slices.Clone(data), allValid(len(data)), nil)
	}
	if len(valid) != len(data) {
		return nil
	}
	return newColumn(slices.Clone(data), slices.Clone(valid), nil)
}

// NewInt32Column creates a column with every cell present
func NewInt32Column(data []int32) *Column { return withMask(data, nil) }

// NewInt32ColumnNA creates a column where valid[i] == false marks an absent
// cell. Returns nil if the lengths differ.
func NewInt32ColumnNA(data []int32, valid []bool) *Column { return withMask(data, valid) }

// NewFloat64Column creates a column with every cell present
func NewFloat64Column(data []float64) *Column { return withMask(data, nil) }

// NewFloat64ColumnNA creates a column with an explicit validity mask
func NewFloat64ColumnNA(data []float64, valid []bool) *Column { return withMask(data, valid) }

// NewBoolColumn creates a column with every cell present
func NewBoolColumn(data []bool) *Column { return withMask(data, nil) }

// NewBoolColumnNA creates a column with an explicit validity mask
func NewBoolColumnNA(data []bool, valid []bool) *Column { return withMask(data, valid) }

// NewUInt64Column creates a column with every cell present
func NewUInt64Column(data []uint64) *Column { return withMask(data, nil) }

// NewUInt64ColumnNA creates a column with an explicit validity mask
func NewUInt64ColumnNA(data []uint64, valid []bool) *Column { return withMask(data, valid) }

// NewStringColumn creates a column with every cell present
func NewStringColumn(data []string) *Column { return withMask(data, nil) }

// NewStringColumnNA creates a column with an explicit validity mask
func NewStringColumnNA(data []string, valid []bool) *Column { return withMask(data, valid) }

// NewFactorColumn dictionary-encodes labels in first-seen order. valid may
// be nil; otherwise it must match labels in length and absent labels are
// not added to the dictionary. The resulting dictionary auto-extends.
func NewFactorColumn(labels []string, valid []bool) *Column {
	if valid != nil && len(valid) != len(labels) {
		return nil
	}
	if valid == nil {
		valid = allValid(len(labels))
	} else {
		valid = slices.Clone(valid)
	}
	levels := newExtendableLevels()
	codes := make([]uint16, len(labels))
	for i, label := range labels {
		if !valid[i] {
			continue
		}
		code, err := levels.intern("factor", label)
		if err != nil {
			return nil
		}
		codes[i] = code
	}
	return newColumn(codes, valid, levels)
}

// NewFactorColumnFromCodes wraps codes over an existing dictionary.
func NewFactorColumnFromCodes(codes []uint16, valid []bool, levels *Levels) (*Column, error) {
	if valid == nil {
		valid = allValid(len(codes))
	}
	if len(valid) != len(codes) {
		return nil, newError("factor", ErrLengthMismatch, "%d codes but %d validity flags", len(codes), len(valid))
	}
	if levels == nil {
		return nil, newError("factor", ErrUnsupported, "factor column needs levels")
	}
	for i, c := range codes {
		if valid[i] && int(c) >= levels.Len() {
			return nil, newError("factor", ErrOutOfBounds, "code %d at row %d exceeds %d levels", c, i, levels.Len())
		}
	}
	return newColumn(slices.Clone(codes), slices.Clone(valid), levels), nil
}

// NewEmptyColumn creates a zero-length column of the given type. Factor
// columns start with an empty auto-extending dictionary.
func NewEmptyColumn(dtype DType) *Column {
	switch dtype {
	case Int32:
		return newColumn([]int32{}, []bool{}, nil)
	case Float64:
		return newColumn([]float64{}, []bool{}, nil)
	case Bool:
		return newColumn([]bool{}, []bool{}, nil)
	case UInt64:
		return newColumn([]uint64{}, []bool{}, nil)
	case Factor:
		return newColumn([]uint16{}, []bool{}, newExtendableLevels())
	default:
		return newColumn([]string{}, []bool{}, nil)
	}
}

// Len returns the number of cells
func (c *Column) Len() int { return len(c.valid) }

// DType returns the column type
func (c *Column) DType() DType { return c.dtype }

// Levels returns the factor dictionary, or nil for other types.
func (c *Column) Levels() *Levels { return c.levels }

// IsNA reports whether cell i is absent
func (c *Column) IsNA(i int) bool { return !c.valid[i] }

// NullCount returns the number of absent cells
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.valid {
		if !v {
			n++
		}
	}
	return n
}

// ============================================================================
// Typed access
// ============================================================================

// dataOf returns the typed backing slice when T is the column's storage type.
func dataOf[T Cell](c *Column) ([]T, bool) {
	var s any
	switch c.dtype {
	case Int32:
		s = c.ints
	case Float64:
		s = c.floats
	case Bool:
		s = c.bools
	case UInt64:
		s = c.sizes
	case Factor:
		s = c.codes
	default:
		s = c.strs
	}
	d, ok := s.([]T)
	return d, ok
}

// readerOf binds a cell reader for T. Factor columns read as string yield
// their labels.
func readerOf[T Cell](op, name string, c *Column) (func(i int) (T, bool), error) {
	valid := c.valid
	if d, ok := dataOf[T](c); ok {
		return func(i int) (T, bool) { return d[i], valid[i] }, nil
	}
	if c.dtype == Factor {
		if labels, ok := any(c.levels.labels).([]T); ok {
			codes := c.codes
			return func(i int) (T, bool) {
				if !valid[i] {
					var z T
					return z, false
				}
				return labels[codes[i]], true
			}, nil
		}
	}
	return nil, newError(op, ErrTypeMismatch, "column %s is %s, not %s", name, c.dtype, dtypeOf[T]())
}

// Values returns the column's backing data and validity mask. The slices are
// shared with the column and must not be modified.
func Values[T Cell](c *Column) ([]T, []bool, error) {
	d, ok := dataOf[T](c)
	if !ok {
		return nil, nil, newError("values", ErrTypeMismatch, "column is %s, not %s", c.dtype, dtypeOf[T]())
	}
	return d, c.valid, nil
}

// Get returns cell i.
func Get[T Cell](c *Column, i int) (Opt[T], error) {
	if i < 0 || i >= c.Len() {
		return Opt[T]{}, newError("get", ErrOutOfBounds, "row %d of %d", i, c.Len())
	}
	read, err := readerOf[T]("get", "", c)
	if err != nil {
		return Opt[T]{}, err
	}
	v, ok := read(i)
	return Opt[T]{Value: v, Valid: ok}, nil
}

// Set overwrites cell i. On a factor column a string value is resolved
// through the dictionary.
func Set[T Cell](c *Column, i int, v Opt[T]) error {
	if i < 0 || i >= c.Len() {
		return newError("set", ErrOutOfBounds, "row %d of %d", i, c.Len())
	}
	if d, ok := dataOf[T](c); ok {
		if c.dtype == Factor && v.Valid && int(any(v.Value).(uint16)) >= c.levels.Len() {
			return newError("set", ErrOutOfBounds, "code %v exceeds %d levels", v.Value, c.levels.Len())
		}
		var z T
		d[i] = z
		if v.Valid {
			d[i] = v.Value
		}
		c.valid[i] = v.Valid
		return nil
	}
	if label, ok := any(v.Value).(string); ok && c.dtype == Factor {
		var code uint16
		if v.Valid {
			var err error
			if code, err = c.levels.intern("set", label); err != nil {
				return err
			}
		}
		c.codes[i], c.valid[i] = code, v.Valid
		return nil
	}
	return newError("set", ErrTypeMismatch, "column is %s, not %s", c.dtype, dtypeOf[T]())
}

// ============================================================================
// Growth
// ============================================================================

// Reserve grows capacity for n more cells
func (c *Column) Reserve(n int) {
	c.valid = slices.Grow(c.valid, n)
	switch c.dtype {
	case Int32:
		c.ints = slices.Grow(c.ints, n)
	case Float64:
		c.floats = slices.Grow(c.floats, n)
	case Bool:
		c.bools = slices.Grow(c.bools, n)
	case UInt64:
		c.sizes = slices.Grow(c.sizes, n)
	case Factor:
		c.codes = slices.Grow(c.codes, n)
	default:
		c.strs = slices.Grow(c.strs, n)
	}
}

// Extend appends every cell of o. Factor dictionaries are merged; codes of
// o are rewritten into c's dictionary.
func (c *Column) Extend(o *Column) error {
	if o.dtype != c.dtype {
		return newError("extend", ErrTypeMismatch, "cannot append %s to %s", o.dtype, c.dtype)
	}
	switch c.dtype {
	case Int32:
		c.ints = append(c.ints, o.ints...)
	case Float64:
		c.floats = append(c.floats, o.floats...)
	case Bool:
		c.bools = append(c.bools, o.bools...)
	case UInt64:
		c.sizes = append(c.sizes, o.sizes...)
	case Factor:
		codes, err := c.levels.recode(o.codes, o.valid, o.levels)
		if err != nil {
			return err
		}
		c.codes = append(c.codes, codes...)
	default:
		c.strs = append(c.strs, o.strs...)
	}
	c.valid = append(c.valid, o.valid...)
	return nil
}

func recycleSlice[T any](s []T, from, to int) []T {
	out := make([]T, to)
	if from == 0 {
		return out
	}
	for i := range out {
		out[i] = s[i%from]
	}
	return out
}

// Recycle grows a column of from cells to to cells. A single cell is
// repeated; an empty column is filled with absent cells. Only from 0 or 1
// and to > from are accepted.
func (c *Column) Recycle(from, to int) error {
	if from != c.Len() || from > 1 || to <= from {
		return newError("recycle", ErrOutOfBounds, "cannot recycle %d of %d cells to %d", from, c.Len(), to)
	}
	c.valid = recycleSlice(c.valid, from, to)
	switch c.dtype {
	case Int32:
		c.ints = recycleSlice(c.ints, from, to)
	case Float64:
		c.floats = recycleSlice(c.floats, from, to)
	case Bool:
		c.bools = recycleSlice(c.bools, from, to)
	case UInt64:
		c.sizes = recycleSlice(c.sizes, from, to)
	case Factor:
		c.codes = recycleSlice(c.codes, from, to)
	default:
		c.strs = recycleSlice(c.strs, from, to)
	}
	return nil
}

func (c *Column) appendNA() {
	c.valid = append(c.valid, false)
	switch c.dtype {
	case Int32:
		c.ints = append(c.ints, 0)
	case Float64:
		c.floats = append(c.floats, 0)
	case Bool:
		c.bools = append(c.bools, false)
	case UInt64:
		c.sizes = append(c.sizes, 0)
	case Factor:
		c.codes = append(c.codes, 0)
	default:
		c.strs = append(c.strs, "")
	}
}

// isNAString reports whether a text field denotes an absent cell.
func isNAString(s string) bool {
	return strings.EqualFold(s, "NA")
}

// AppendStrings parses each field with the column's type and appends it.
// "NA" (any case) is absent; an empty field is absent for non-String types.
func (c *Column) AppendStrings(fields ...string) error {
	for _, f := range fields {
		if err := c.appendString(f); err != nil {
			return err
		}
	}
	return nil
}

func (c *Column) appendString(s string) error {
	if isNAString(s) || (s == "" && c.dtype != String) {
		c.appendNA()
		return nil
	}
	t := strings.TrimSpace(s)
	switch c.dtype {
	case Int32:
		v, err := strconv.ParseInt(t, 10, 32)
		if err != nil {
			return parseError(s, c.dtype, err)
		}
		c.ints = append(c.ints, int32(v))
	case Float64:
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return parseError(s, c.dtype, err)
		}
		c.floats = append(c.floats, v)
	case Bool:
		switch strings.ToLower(t) {
		case "t", "true":
			c.bools = append(c.bools, true)
		case "f", "false":
			c.bools = append(c.bools, false)
		default:
			return parseError(s, c.dtype, nil)
		}
	case UInt64:
		v, err := strconv.ParseUint(t, 10, 64)
		if err != nil {
			return parseError(s, c.dtype, err)
		}
		c.sizes = append(c.sizes, v)
	case Factor:
		code, err := c.levels.intern("deserialize", s)
		if err != nil {
			return err
		}
		c.codes = append(c.codes, code)
	default:
		c.strs = append(c.strs, s)
	}
	c.valid = append(c.valid, true)
	return nil
}

func parseError(s string, dt DType, cause error) *Error {
	e := newError("deserialize", ErrParse, "cannot parse %q as %s", s, dt)
	e.Err = cause
	return e
}

// ============================================================================
// Rendering
// ============================================================================

// CellString renders cell i for display. Factors render as
// "<code> (<label>)", absent cells as "NA".
func (c *Column) CellString(i int) string {
	if c.dtype == Factor && c.valid[i] {
		label, _ := c.levels.Label(c.codes[i])
		return fmt.Sprintf("%d (%s)", c.codes[i], label)
	}
	return c.cellText(i)
}

// cellText renders cell i in the form AppendStrings parses back.
func (c *Column) cellText(i int) string {
	if !c.valid[i] {
		return "NA"
	}
	switch c.dtype {
	case Int32:
		return strconv.FormatInt(int64(c.ints[i]), 10)
	case Float64:
		return strconv.FormatFloat(c.floats[i], 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(c.bools[i])
	case UInt64:
		return strconv.FormatUint(c.sizes[i], 10)
	case Factor:
		label, _ := c.levels.Label(c.codes[i])
		return label
	default:
		return c.strs[i]
	}
}

// ============================================================================
// Copies and views
// ============================================================================

// Clone returns a deep copy
func (c *Column) Clone() *Column {
	return &Column{
		dtype:  c.dtype,
		valid:  slices.Clone(c.valid),
		ints:   slices.Clone(c.ints),
		floats: slices.Clone(c.floats),
		bools:  slices.Clone(c.bools),
		sizes:  slices.Clone(c.sizes),
		codes:  slices.Clone(c.codes),
		strs:   slices.Clone(c.strs),
		levels: c.levels.clone(),
	}
}

func window[T any](s []T, start, n int) []T {
	if s == nil {
		return nil
	}
	return s[start : start+n : start+n]
}

// view shares storage with c for rows [start, start+n). Capacity is clipped
// so appends to the view never write into c.
func (c *Column) view(start, n int) *Column {
	return &Column{
		dtype:  c.dtype,
		valid:  window(c.valid, start, n),
		ints:   window(c.ints, start, n),
		floats: window(c.floats, start, n),
		bools:  window(c.bools, start, n),
		sizes:  window(c.sizes, start, n),
		codes:  window(c.codes, start, n),
		strs:   window(c.strs, start, n),
		levels: c.levels,
	}
}

// gatherSlice picks src[idx[i]]; a negative index yields the zero value.
func gatherSlice[T any](src []T, idx []int) []T {
	out := make([]T, len(idx))
	parallelForOp(OpGather, len(idx), len(idx), func(start, end int) {
		for i := start; i < end; i++ {
			if j := idx[i]; j >= 0 {
				out[i] = src[j]
			}
		}
	})
	return out
}

// gather builds a new column from the given source rows. A negative row
// produces an absent cell.
func (c *Column) gather(idx []int) *Column {
	out := &Column{dtype: c.dtype, valid: gatherSlice(c.valid, idx), levels: c.levels.clone()}
	switch c.dtype {
	case Int32:
		out.ints = gatherSlice(c.ints, idx)
	case Float64:
		out.floats = gatherSlice(c.floats, idx)
	case Bool:
		out.bools = gatherSlice(c.bools, idx)
	case UInt64:
		out.sizes = gatherSlice(c.sizes, idx)
	case Factor:
		out.codes = gatherSlice(c.codes, idx)
	default:
		out.strs = gatherSlice(c.strs, idx)
	}
	return out
}

// ============================================================================
// Comparison
// ============================================================================

func equalCells[T comparable](a, b []T, av, bv []bool) bool {
	for i := range av {
		if av[i] != bv[i] {
			return false
		}
		if av[i] && a[i] != b[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both columns have the same type and cells. Factor
// cells compare by label; NaN equals NaN.
func (c *Column) Equal(o *Column) bool {
	if c.dtype != o.dtype || c.Len() != o.Len() {
		return false
	}
	switch c.dtype {
	case Int32:
		return equalCells(c.ints, o.ints, c.valid, o.valid)
	case Float64:
		for i := range c.valid {
			if c.valid[i] != o.valid[i] {
				return false
			}
			a, b := c.floats[i], o.floats[i]
			if c.valid[i] && a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
				return false
			}
		}
		return true
	case Bool:
		return equalCells(c.bools, o.bools, c.valid, o.valid)
	case UInt64:
		return equalCells(c.sizes, o.sizes, c.valid, o.valid)
	case Factor:
		for i := range c.valid {
			if c.valid[i] != o.valid[i] {
				return false
			}
			if c.valid[i] && c.cellText(i) != o.cellText(i) {
				return false
			}
		}
		return true
	default:
		return equalCells(c.strs, o.strs, c.valid, o.valid)
	}
}

// ============================================================================
// Factorization
// ============================================================================

func factorize[T comparable](vals []T, valid []bool, format func(T) string) *Column {
	levels := newExtendableLevels()
	lookup := make(map[T]uint16)
	codes := make([]uint16, len(vals))
	for i, v := range vals {
		if !valid[i] {
			continue
		}
		code, ok := lookup[v]
		if !ok {
			if len(lookup) == maxLevels {
				return nil
			}
			code, _ = levels.add(format(v))
			lookup[v] = code
		}
		codes[i] = code
	}
	return newColumn(codes, slices.Clone(valid), levels)
}

// Factorize converts an Int32, Bool, UInt64 or String column into a Factor
// column whose levels are the distinct present values in first-seen order.
// Absent cells stay absent.
func Factorize(c *Column) (*Column, error) {
	var out *Column
	switch c.dtype {
	case Factor:
		return c.Clone(), nil
	case Int32:
		out = factorize(c.ints, c.valid, func(v int32) string { return strconv.FormatInt(int64(v), 10) })
	case Bool:
		out = factorize(c.bools, c.valid, strconv.FormatBool)
	case UInt64:
		out = factorize(c.sizes, c.valid, func(v uint64) string { return strconv.FormatUint(v, 10) })
	case String:
		out = factorize(c.strs, c.valid, func(v string) string { return v })
	default:
		return nil, newError("factorize", ErrUnsupported, "cannot factorize a %s column", c.dtype)
	}
	if out == nil {
		return nil, newError("factorize", ErrOutOfBounds, "more than %d distinct values", maxLevels)
	}
	return out, nil
}
