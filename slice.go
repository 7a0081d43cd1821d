package rframe

import (
	"slices"
)

// Slice is a read-only window of contiguous rows of a DataFrame. Columns
// obtained from it share storage with the table.
type Slice struct {
	df    *DataFrame
	start int
	n     int
}

// Slice returns rows [start, start+n).
func (df *DataFrame) Slice(start, n int) (Slice, error) {
	if start < 0 || n < 0 || start+n > df.height {
		return Slice{}, newError("slice", ErrOutOfBounds, "rows [%d, %d) of %d", start, start+n, df.height)
	}
	return df.slice(start, n), nil
}

func (df *DataFrame) slice(start, n int) Slice {
	return Slice{df: df, start: start, n: n}
}

// Height returns the number of rows in the slice
func (s Slice) Height() int { return s.n }

// Start returns the first table row covered by the slice
func (s Slice) Start() int { return s.start }

// Width returns the number of columns
func (s Slice) Width() int {
	if s.df == nil {
		return 0
	}
	return s.df.Width()
}

// Names returns the column names
func (s Slice) Names() []string {
	if s.df == nil {
		return nil
	}
	return s.df.Names()
}

// Column returns a zero-copy view of the named column, or nil.
func (s Slice) Column(name string) *Column {
	if s.df == nil {
		return nil
	}
	c := s.df.columns[name]
	if c == nil {
		return nil
	}
	return c.view(s.start, s.n)
}

// ToDataFrame copies the slice into a new table. A window of contiguous rows
// keeps the source status.
func (s Slice) ToDataFrame() *DataFrame {
	out := NewDataFrame()
	if s.df == nil {
		return out
	}
	for _, name := range s.df.colOrder {
		out.columns[name] = s.df.columns[name].view(s.start, s.n).Clone()
	}
	out.colOrder = slices.Clone(s.df.colOrder)
	out.height = s.n
	out.status = s.df.status.clone()
	return out
}

func (s Slice) String() string {
	return s.ToDataFrame().String()
}
