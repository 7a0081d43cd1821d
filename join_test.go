package rframe

import (
	"fmt"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyTables(t *testing.T) (*DataFrame, *DataFrame) {
	t.Helper()
	left, err := FromColumns(
		NewSeries("key", NewInt32Column([]int32{1, 2, 3, 11})),
		NewSeries("col2", NewInt32Column([]int32{4, 5, 6, 12})),
	)
	require.NoError(t, err)
	right, err := FromColumns(
		NewSeries("key", NewInt32Column([]int32{1, 2, 3, 13})),
		NewSeries("col3", NewInt32Column([]int32{7, 8, 9, 14})),
	)
	require.NoError(t, err)
	return left, right
}

func TestSortedOuterJoin(t *testing.T) {
	left, right := keyTables(t)
	out, err := left.Join(right, OuterJoin, "key")
	require.NoError(t, err)

	assert.Equal(t, []string{"key", "col2", "col3"}, out.Names())
	assert.Equal(t, anys[int32](1, 2, 3, 11, 13), cells[int32](t, out, "key"))
	assert.Equal(t, []any{int32(4), int32(5), int32(6), int32(12), nil}, cells[int32](t, out, "col2"))
	assert.Equal(t, []any{int32(7), int32(8), int32(9), nil, int32(14)}, cells[int32](t, out, "col3"))
	assert.True(t, out.Status().IsSortedBy([]string{"key"}, nil))
}

func TestSortedJoinKinds(t *testing.T) {
	left, right := keyTables(t)

	inner, err := left.Join(right, InnerJoin, "key")
	require.NoError(t, err)
	assert.Equal(t, anys[int32](1, 2, 3), cells[int32](t, inner, "key"))

	lj, err := left.Join(right, LeftJoin, "key")
	require.NoError(t, err)
	assert.Equal(t, anys[int32](1, 2, 3, 11), cells[int32](t, lj, "key"))
	assert.Equal(t, []any{int32(7), int32(8), int32(9), nil}, cells[int32](t, lj, "col3"))
}

func TestJoinDuplicateKeys(t *testing.T) {
	left, err := FromColumns(
		NewSeries("k", NewInt32ColumnNA([]int32{2, 1, 2, 0}, []bool{true, true, true, false})),
		NewSeries("l", NewStringColumn([]string{"a", "b", "c", "d"})),
	)
	require.NoError(t, err)
	right, err := FromColumns(
		NewSeries("k", NewInt32ColumnNA([]int32{2, 0, 2, 5}, []bool{true, false, true, true})),
		NewSeries("r", NewStringColumn([]string{"x", "y", "z", "w"})),
	)
	require.NoError(t, err)

	pairs := func(df *DataFrame) []string {
		var out []string
		ls, rs := cells[string](t, df, "l"), cells[string](t, df, "r")
		for i := range ls {
			out = append(out, fmt.Sprintf("%v/%v", ls[i], rs[i]))
		}
		return out
	}

	sorted, err := NewJoin(InnerJoin, "k").With(left).With(right).Sorted().Collect()
	require.NoError(t, err)
	hashed, err := NewJoin(InnerJoin, "k").With(left).With(right).Collect()
	require.NoError(t, err)

	// absent keys match each other
	assert.Equal(t, []string{"d/y", "a/x", "a/z", "c/x", "c/z"}, pairs(sorted))
	// the hash strategy keeps the left order
	assert.Equal(t, []string{"a/x", "a/z", "c/x", "c/z", "d/y"}, pairs(hashed))

	s, h := pairs(sorted), pairs(hashed)
	slices.Sort(s)
	slices.Sort(h)
	assert.Equal(t, s, h)
	assert.False(t, hashed.Status().Sorted)

	lj, err := NewJoin(LeftJoin, "k").With(left).With(right).Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"a/x", "a/z", "b/<nil>", "c/x", "c/z", "d/y"}, pairs(lj))
}

func TestMultiInputJoin(t *testing.T) {
	left, right := keyTables(t)
	third, err := FromColumns(
		NewSeries("key", NewInt32Column([]int32{3, 1, 1})),
		NewSeries("col4", NewFloat64Column([]float64{0.3, 0.1, 0.15})),
		NewSeries("extra", NewBoolColumn([]bool{true, true, false})),
	)
	require.NoError(t, err)

	out, err := NewJoin(InnerJoin, "key").
		With(left, "col2").
		With(right).
		With(third, "col4").
		Filter(Where("key", func(v Opt[int32]) bool { return v.Value < 3 })).
		Sorted().
		Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "col2", "col4"}, out.Names())
	assert.Equal(t, anys[int32](1, 1), cells[int32](t, out, "key"))
	assert.Equal(t, anys(0.1, 0.15), cells[float64](t, out, "col4"))

	all, err := NewJoin(LeftJoin, "key").With(left).With(right).With(third).Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "col2", "col3", "col4", "extra"}, all.Names())
	assert.Equal(t, 5, all.Height())
}

func TestJoinFactorKeys(t *testing.T) {
	left, err := FromColumns(
		NewSeries("city", NewFactorColumn([]string{"oslo", "lima", "pune"}, nil)),
		NewSeries("pop", NewInt32Column([]int32{1, 10, 3})),
	)
	require.NoError(t, err)
	right, err := FromColumns(
		NewSeries("city", NewFactorColumn([]string{"pune", "rome", "oslo"}, nil)),
		NewSeries("temp", NewFloat64Column([]float64{31, 20, -3})),
	)
	require.NoError(t, err)

	out, err := left.Join(right, OuterJoin, "city")
	require.NoError(t, err)
	assert.Equal(t, []any{"oslo", "lima", "pune", "rome"}, cells[string](t, out, "city"))
	assert.Equal(t, []any{-3.0, nil, 31.0, 20.0}, cells[float64](t, out, "temp"))
	assert.Equal(t, []string{"oslo", "lima", "pune", "rome"}, out.Column("city").Levels().Labels())

	// the inputs keep their own dictionaries
	assert.Equal(t, []string{"pune", "rome", "oslo"}, right.Column("city").Levels().Labels())
}

func TestJoinReusesSortedInputs(t *testing.T) {
	left, right := keyTables(t)
	ls, err := left.Query().Sort("key").Collect()
	require.NoError(t, err)

	before := testutil.ToFloat64(plannerReuseTotal.WithLabelValues("join_sort"))
	_, err = ls.Join(right, InnerJoin, "key")
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(plannerReuseTotal.WithLabelValues("join_sort")))
}

func TestJoinErrors(t *testing.T) {
	left, right := keyTables(t)

	_, err := NewJoin(InnerJoin, "key").With(left).Collect()
	assert.True(t, IsKind(err, ErrUnsupported))

	_, err = NewJoin(InnerJoin).With(left).With(right).Collect()
	assert.True(t, IsKind(err, ErrUnsupported))

	_, err = NewJoin(OuterJoin, "key").With(left).With(right).Collect()
	assert.True(t, IsKind(err, ErrUnsupported))

	_, err = NewJoin(InnerJoin, "key", "key").With(left).With(right).Collect()
	assert.True(t, IsKind(err, ErrNameCollision))

	_, err = left.Join(right, InnerJoin, "col2")
	assert.True(t, IsKind(err, ErrColumnNotFound))

	_, err = NewJoin(InnerJoin, "key").With(left, "key").With(right).Collect()
	assert.True(t, IsKind(err, ErrNameCollision))

	dup := right.Clone()
	require.NoError(t, dup.RenameColumn("col3", "col2"))
	_, err = left.Join(dup, InnerJoin, "key")
	assert.True(t, IsKind(err, ErrNameCollision))

	floatKey, err := FromColumns(NewSeries("key", NewFloat64Column([]float64{1})))
	require.NoError(t, err)
	_, err = left.Join(floatKey, InnerJoin, "key")
	assert.True(t, IsKind(err, ErrTypeMismatch))

	how, err := ParseJoinType("left")
	require.NoError(t, err)
	assert.Equal(t, LeftJoin, how)
	_, err = ParseJoinType("cross")
	assert.True(t, IsKind(err, ErrParse))
}
