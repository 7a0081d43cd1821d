package rframe

import (
	"slices"
)

// CBind returns a new table with the columns of a followed by those of b.
// Neither input is modified. See CBindInto for the recycling rules.
func CBind(a, b *DataFrame) (*DataFrame, error) {
	out := a.Clone()
	if err := out.CBindInto(b.Clone()); err != nil {
		return nil, err
	}
	return out, nil
}

// CBindInto moves the columns of b into df. Heights must match, except that
// a side with zero rows is filled with absent cells, and a side with one row
// is repeated, up to the other side's height. b is left empty.
func (df *DataFrame) CBindInto(b *DataFrame) error {
	const op = "cbind"
	for _, name := range b.colOrder {
		if _, exists := df.columns[name]; exists {
			return newError(op, ErrNameCollision, "column %s exists in both tables", name)
		}
	}
	if df.Width() == 0 {
		df.height = b.height
	}
	ha, hb := df.height, b.height
	target := ha
	switch {
	case ha == hb:
	case ha == 0:
		target = hb
	case hb == 0:
	case ha == 1:
		target = hb
	case hb == 1:
	default:
		return newError(op, ErrLengthMismatch, "cannot bind %d rows to %d rows", hb, ha)
	}

	if ha != target {
		for _, name := range df.colOrder {
			if err := df.columns[name].Recycle(ha, target); err != nil {
				return err
			}
		}
		df.invalidate()
	}
	for _, name := range b.colOrder {
		c := b.columns[name]
		if hb != target {
			if err := c.Recycle(hb, target); err != nil {
				return err
			}
		}
		df.columns[name] = c
		df.colOrder = append(df.colOrder, name)
	}
	df.height = target

	b.columns = make(map[string]*Column)
	b.colOrder = nil
	b.height = 0
	b.invalidate()
	return nil
}

// RBind appends the rows of o to df. Both tables must have the same column
// names in the same order with the same types; factor dictionaries are
// merged. The status and index of df are cleared.
func (df *DataFrame) RBind(o *DataFrame) error {
	const op = "rbind"
	if !slices.Equal(df.colOrder, o.colOrder) {
		return newError(op, ErrColumnNotFound, "columns %v do not match %v", o.colOrder, df.colOrder)
	}
	for _, name := range df.colOrder {
		if a, b := df.columns[name].dtype, o.columns[name].dtype; a != b {
			return newError(op, ErrTypeMismatch, "column %s is %s in one table and %s in the other", name, a, b)
		}
	}
	for _, name := range df.colOrder {
		if err := df.columns[name].Extend(o.columns[name]); err != nil {
			return err
		}
	}
	df.height += o.height
	df.invalidate()
	return nil
}
