package rframe

import (
	"slices"
)

// DataFrame is an ordered set of equal-length named columns together with
// the row-order facts (Status) known to hold for them.
type DataFrame struct {
	columns  map[string]*Column
	colOrder []string
	height   int
	status   Status
	index    *rowIndex
}

// Series pairs a column with its name for table construction.
type Series struct {
	Name   string
	Column *Column
}

// NewSeries names a column.
func NewSeries(name string, c *Column) Series {
	return Series{Name: name, Column: c}
}

// ============================================================================
// Creation
// ============================================================================

// NewDataFrame creates an empty DataFrame.
func NewDataFrame() *DataFrame {
	return &DataFrame{
		columns:  make(map[string]*Column),
		colOrder: make([]string, 0),
	}
}

// FromColumns creates a DataFrame from named columns. The columns are
// owned by the table afterwards.
func FromColumns(series ...Series) (*DataFrame, error) {
	df := NewDataFrame()
	for _, s := range series {
		if err := df.AddColumn(s.Name, s.Column); err != nil {
			return nil, err
		}
	}
	return df, nil
}

// FromSchema creates an empty DataFrame with one column per schema entry.
// Factor columns with declared levels reject unknown labels; without
// declared levels they grow as labels are read.
func FromSchema(schema *Schema) *DataFrame {
	df := NewDataFrame()
	for i, name := range schema.names {
		c := NewEmptyColumn(schema.dtypes[i])
		if labels := schema.Levels(name); len(labels) > 0 {
			if levels, err := NewLevels(labels...); err == nil {
				c.levels = levels
			}
		}
		df.columns[name] = c
		df.colOrder = append(df.colOrder, name)
	}
	return df
}

// ============================================================================
// Shape and lookup
// ============================================================================

// Height returns the number of rows
func (df *DataFrame) Height() int { return df.height }

// Width returns the number of columns
func (df *DataFrame) Width() int { return len(df.colOrder) }

// Names returns the column names in order
func (df *DataFrame) Names() []string { return slices.Clone(df.colOrder) }

// Column returns the named column, or nil if it does not exist. The column
// is shared with the table.
func (df *DataFrame) Column(name string) *Column { return df.columns[name] }

// Types returns the column types in column order
func (df *DataFrame) Types() []DType {
	types := make([]DType, len(df.colOrder))
	for i, name := range df.colOrder {
		types[i] = df.columns[name].dtype
	}
	return types
}

// Schema returns the table's schema, including factor levels.
func (df *DataFrame) Schema() *Schema {
	s, _ := NewSchema(df.colOrder, df.Types())
	for _, name := range df.colOrder {
		if c := df.columns[name]; c.dtype == Factor && c.levels.Len() > 0 {
			_ = s.SetLevels(name, c.levels.labels)
		}
	}
	return s
}

// Status returns a copy of the table's status block.
func (df *DataFrame) Status() Status { return df.status.clone() }

func (df *DataFrame) col(op, name string) (*Column, error) {
	c, ok := df.columns[name]
	if !ok {
		return nil, newError(op, ErrColumnNotFound, "no column named %s", name)
	}
	return c, nil
}

func (df *DataFrame) cols(op string, names []string) ([]*Column, error) {
	out := make([]*Column, len(names))
	for i, name := range names {
		c, err := df.col(op, name)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// invalidate forgets every row-order fact and the index.
func (df *DataFrame) invalidate() {
	df.status = Status{}
	df.index = nil
}

// touch invalidates the status if it depends on the named column.
func (df *DataFrame) touch(name string) {
	if df.status.mentions(name) {
		df.status = Status{}
	}
	if df.index != nil && slices.Contains(df.index.cols, name) {
		df.index = nil
	}
}

// ============================================================================
// Column management
// ============================================================================

// AddColumn appends a named column. The first column fixes the height.
func (df *DataFrame) AddColumn(name string, c *Column) error {
	if c == nil {
		return newError("add_column", ErrLengthMismatch, "column %s is nil", name)
	}
	if _, exists := df.columns[name]; exists {
		return newError("add_column", ErrNameCollision, "column %s already exists", name)
	}
	if len(df.colOrder) > 0 && c.Len() != df.height {
		return newError("add_column", ErrLengthMismatch, "column %s has %d rows, table has %d", name, c.Len(), df.height)
	}
	if len(df.colOrder) == 0 {
		df.height = c.Len()
	}
	df.columns[name] = c
	df.colOrder = append(df.colOrder, name)
	return nil
}

// SetColumn replaces a column (adding it if missing). Replacing a column the
// status depends on clears the status.
func (df *DataFrame) SetColumn(name string, c *Column) error {
	if _, exists := df.columns[name]; !exists {
		return df.AddColumn(name, c)
	}
	if c == nil || c.Len() != df.height {
		return newError("set_column", ErrLengthMismatch, "replacement for %s must have %d rows", name, df.height)
	}
	df.touch(name)
	df.columns[name] = c
	return nil
}

// DropColumn removes a column.
func (df *DataFrame) DropColumn(name string) error {
	if _, err := df.col("drop_column", name); err != nil {
		return err
	}
	df.touch(name)
	delete(df.columns, name)
	df.colOrder = slices.DeleteFunc(df.colOrder, func(n string) bool { return n == name })
	if len(df.colOrder) == 0 {
		df.height = 0
	}
	return nil
}

// RetainColumns keeps only the named columns, in the given order.
func (df *DataFrame) RetainColumns(names ...string) error {
	kept := make(map[string]*Column, len(names))
	for _, name := range names {
		c, err := df.col("retain_columns", name)
		if err != nil {
			return err
		}
		if _, dup := kept[name]; dup {
			return newError("retain_columns", ErrNameCollision, "column %s listed twice", name)
		}
		kept[name] = c
	}
	for _, name := range df.colOrder {
		if _, ok := kept[name]; !ok {
			df.touch(name)
		}
	}
	df.columns = kept
	df.colOrder = slices.Clone(names)
	return nil
}

// RenameColumn renames a column in place, carrying the status with it.
func (df *DataFrame) RenameColumn(oldName, newName string) error {
	c, err := df.col("rename_column", oldName)
	if err != nil {
		return err
	}
	if oldName == newName {
		return nil
	}
	if _, exists := df.columns[newName]; exists {
		return newError("rename_column", ErrNameCollision, "column %s already exists", newName)
	}
	delete(df.columns, oldName)
	df.columns[newName] = c
	df.colOrder[slices.Index(df.colOrder, oldName)] = newName
	for _, list := range [][]string{df.status.SortCols, df.status.GroupCols, df.status.AggCols} {
		if i := slices.Index(list, oldName); i >= 0 {
			list[i] = newName
		}
	}
	if df.index != nil {
		if i := slices.Index(df.index.cols, oldName); i >= 0 {
			df.index.cols[i] = newName
		}
	}
	return nil
}

// Reserve grows every column's capacity for n more rows.
func (df *DataFrame) Reserve(n int) {
	for _, c := range df.columns {
		c.Reserve(n)
	}
}

// resultColumn wraps computed cells. Factor results borrow the dictionary of
// the factor column they were derived from.
func resultColumn[R Cell](op string, vals []R, valid []bool, src *Column) (*Column, error) {
	if dtypeOf[R]() == Factor {
		if src == nil || src.dtype != Factor {
			return nil, newError(op, ErrTypeMismatch, "factor codes need a factor input column")
		}
		return newColumn(vals, valid, src.levels.clone()), nil
	}
	return newColumn(vals, valid, nil), nil
}

// SetColumnFrom computes column out cell by cell from column in. The result
// replaces out, or is appended if out does not exist.
func SetColumnFrom[A Cell, R Cell](df *DataFrame, out, in string, fn func(Opt[A]) Opt[R]) error {
	src, err := df.col("set_column", in)
	if err != nil {
		return err
	}
	read, err := readerOf[A]("set_column", in, src)
	if err != nil {
		return err
	}
	vals := make([]R, df.height)
	valid := make([]bool, df.height)
	ParallelFor(df.height, func(start, end int) {
		for i := start; i < end; i++ {
			v, ok := read(i)
			r := fn(Opt[A]{Value: v, Valid: ok})
			vals[i], valid[i] = r.Value, r.Valid
		}
	})
	c, err := resultColumn("set_column", vals, valid, src)
	if err != nil {
		return err
	}
	return df.SetColumn(out, c)
}

// SetCell overwrites one cell. Writing to a column the status depends on
// clears the status.
func SetCell[T Cell](df *DataFrame, name string, row int, v Opt[T]) error {
	c, err := df.col("set_cell", name)
	if err != nil {
		return err
	}
	if err := Set(c, row, v); err != nil {
		return err
	}
	df.touch(name)
	return nil
}

// ============================================================================
// Copies
// ============================================================================

// Clone returns a deep copy, status and index included.
func (df *DataFrame) Clone() *DataFrame {
	cols := ParallelBuildColumns(len(df.colOrder), func(i int) *Column {
		return df.columns[df.colOrder[i]].Clone()
	})
	out := NewDataFrame()
	for i, name := range df.colOrder {
		out.columns[name] = cols[i]
	}
	out.colOrder = slices.Clone(df.colOrder)
	out.height = df.height
	out.status = df.status.clone()
	if df.index != nil {
		idx := *df.index
		idx.cols, idx.desc = slices.Clone(idx.cols), slices.Clone(idx.desc)
		out.index = &idx
	}
	return out
}

// Head returns a copy of the first n rows
func (df *DataFrame) Head(n int) *DataFrame {
	n = max(0, min(n, df.height))
	return df.slice(0, n).ToDataFrame()
}

// Tail returns a copy of the last n rows
func (df *DataFrame) Tail(n int) *DataFrame {
	n = max(0, min(n, df.height))
	return df.slice(df.height-n, n).ToDataFrame()
}

// Equal reports whether both tables have the same column names, order,
// types and cells.
func (df *DataFrame) Equal(o *DataFrame) bool {
	if df.height != o.height || !slices.Equal(df.colOrder, o.colOrder) {
		return false
	}
	for _, name := range df.colOrder {
		if !df.columns[name].Equal(o.columns[name]) {
			return false
		}
	}
	return true
}

// gatherRows builds a new table of the named columns from the given source
// rows, one column per task.
func (df *DataFrame) gatherRows(names []string, rows []int) *DataFrame {
	cols := ParallelBuildColumns(len(names), func(i int) *Column {
		return df.columns[names[i]].gather(rows)
	})
	out := NewDataFrame()
	for i, name := range names {
		out.columns[name] = cols[i]
	}
	out.colOrder = slices.Clone(names)
	out.height = len(rows)
	return out
}
