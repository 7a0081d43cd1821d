package rframe

import (
	"slices"
)

// Predicate is a row filter over one or more typed columns. Predicates in a
// query or join are combined with AND.
type Predicate struct {
	cols []string
	bind func(op string, df *DataFrame) (func(row int) bool, error)
}

// Columns returns the columns the predicate reads.
func (p Predicate) Columns() []string { return slices.Clone(p.cols) }

func bindReader[T Cell](op string, df *DataFrame, name string) (func(int) (T, bool), error) {
	c, err := df.col(op, name)
	if err != nil {
		return nil, err
	}
	return readerOf[T](op, name, c)
}

// Where keeps rows for which fn returns true. fn must be safe for
// concurrent use.
func Where[A Cell](col string, fn func(Opt[A]) bool) Predicate {
	return Predicate{
		cols: []string{col},
		bind: func(op string, df *DataFrame) (func(int) bool, error) {
			read, err := bindReader[A](op, df, col)
			if err != nil {
				return nil, err
			}
			return func(i int) bool {
				v, ok := read(i)
				return fn(Opt[A]{Value: v, Valid: ok})
			}, nil
		},
	}
}

// Where2 filters on two columns.
func Where2[A, B Cell](a, b string, fn func(Opt[A], Opt[B]) bool) Predicate {
	return Predicate{
		cols: []string{a, b},
		bind: func(op string, df *DataFrame) (func(int) bool, error) {
			ra, err := bindReader[A](op, df, a)
			if err != nil {
				return nil, err
			}
			rb, err := bindReader[B](op, df, b)
			if err != nil {
				return nil, err
			}
			return func(i int) bool {
				va, oka := ra(i)
				vb, okb := rb(i)
				return fn(Opt[A]{Value: va, Valid: oka}, Opt[B]{Value: vb, Valid: okb})
			}, nil
		},
	}
}

// Where3 filters on three columns.
func Where3[A, B, C Cell](a, b, c string, fn func(Opt[A], Opt[B], Opt[C]) bool) Predicate {
	return Predicate{
		cols: []string{a, b, c},
		bind: func(op string, df *DataFrame) (func(int) bool, error) {
			ra, err := bindReader[A](op, df, a)
			if err != nil {
				return nil, err
			}
			rb, err := bindReader[B](op, df, b)
			if err != nil {
				return nil, err
			}
			rc, err := bindReader[C](op, df, c)
			if err != nil {
				return nil, err
			}
			return func(i int) bool {
				va, oka := ra(i)
				vb, okb := rb(i)
				vc, okc := rc(i)
				return fn(Opt[A]{Value: va, Valid: oka}, Opt[B]{Value: vb, Valid: okb}, Opt[C]{Value: vc, Valid: okc})
			}, nil
		},
	}
}

// NotNA keeps rows where col is present, whatever its type.
func NotNA(col string) Predicate {
	return Predicate{
		cols: []string{col},
		bind: func(op string, df *DataFrame) (func(int) bool, error) {
			c, err := df.col(op, col)
			if err != nil {
				return nil, err
			}
			valid := c.valid
			return func(i int) bool { return valid[i] }, nil
		},
	}
}

// IsNA keeps rows where col is absent, whatever its type.
func IsNA(col string) Predicate {
	return Predicate{
		cols: []string{col},
		bind: func(op string, df *DataFrame) (func(int) bool, error) {
			c, err := df.col(op, col)
			if err != nil {
				return nil, err
			}
			valid := c.valid
			return func(i int) bool { return !valid[i] }, nil
		},
	}
}

// Eq keeps rows where col is present and equal to v. On a factor column a
// string v matches the label.
func Eq[T Cell](col string, v T) Predicate {
	return Where(col, func(o Opt[T]) bool { return o.Valid && o.Value == v })
}

// keptRows applies preds to every row and returns the surviving row indices
// in table order.
func (df *DataFrame) keptRows(op string, preds []Predicate) ([]int, error) {
	bound := make([]func(int) bool, len(preds))
	for i, p := range preds {
		fn, err := p.bind(op, df)
		if err != nil {
			return nil, err
		}
		bound[i] = fn
	}

	mask := getBoolMask(df.height, true)
	defer mask.Release()
	keep := mask.Data
	parallelForOp(OpFilter, df.height*len(bound), df.height, func(start, end int) {
		for i := start; i < end; i++ {
			for _, fn := range bound {
				if !fn(i) {
					keep[i] = false
					break
				}
			}
		}
	})

	parts := ParallelForWithResult(df.height, func(start, end int) []int {
		var rows []int
		for i := start; i < end; i++ {
			if keep[i] {
				rows = append(rows, i)
			}
		}
		return rows
	})
	rows := make([]int, 0, df.height)
	for _, p := range parts {
		rows = append(rows, p...)
	}
	return rows, nil
}
