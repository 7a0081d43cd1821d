package rframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBind(t *testing.T) {
	a := recordTable(t)
	b, err := FromColumns(
		NewSeries("label", NewFactorColumn([]string{"p", "q", "p", "q", "p", "q", "p", "q", "p", "q"}, nil)),
	)
	require.NoError(t, err)

	out, err := CBind(a, b)
	require.NoError(t, err)
	assert.Equal(t, a.Height(), out.Height())
	assert.Equal(t, []string{"record_i", "int_col", "num_col", "label"}, out.Names())
	// inputs are untouched
	assert.Equal(t, 1, b.Width())
	assert.Equal(t, 3, a.Width())
}

func TestCBindRecycles(t *testing.T) {
	a := recordTable(t)
	one, err := FromColumns(NewSeries("c", NewStringColumn([]string{"k"})))
	require.NoError(t, err)
	out, err := CBind(a, one)
	require.NoError(t, err)
	assert.Equal(t, 10, out.Height())
	assert.Equal(t, anys("k", "k", "k", "k", "k", "k", "k", "k", "k", "k"), cells[string](t, out, "c"))

	// a zero-row side recycles into absent cells
	none, err := FromColumns(NewSeries("z", NewEmptyColumn(Bool)))
	require.NoError(t, err)
	out, err = CBind(none, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "record_i", "int_col", "num_col"}, out.Names())
	assert.Equal(t, 10, out.Column("z").NullCount())

	// a zero-row side fills up to a one-row side
	single, err := FromColumns(NewSeries("x", NewInt32Column([]int32{7})))
	require.NoError(t, err)
	out, err = CBind(single, none)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Height())
	assert.Equal(t, anys[int32](7), cells[int32](t, out, "x"))
	assert.Equal(t, []any{nil}, cells[bool](t, out, "z"))

	out, err = CBind(none, single)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "x"}, out.Names())
	assert.Equal(t, 1, out.Height())

	// binding into an empty table adopts the other height
	empty := NewDataFrame()
	require.NoError(t, empty.CBindInto(a.Clone()))
	assert.True(t, empty.Equal(a))
}

func TestCBindInto(t *testing.T) {
	a := recordTable(t)
	b, err := FromColumns(NewSeries("x", NewInt32Column(make([]int32, 10))))
	require.NoError(t, err)
	require.NoError(t, a.CBindInto(b))
	assert.Equal(t, 4, a.Width())
	assert.Zero(t, b.Width())
	assert.Zero(t, b.Height())
}

func TestCBindErrors(t *testing.T) {
	a := recordTable(t)
	clash, err := FromColumns(NewSeries("int_col", NewInt32Column(make([]int32, 10))))
	require.NoError(t, err)
	_, err = CBind(a, clash)
	assert.True(t, IsKind(err, ErrNameCollision))

	short, err := FromColumns(NewSeries("s", NewInt32Column([]int32{1, 2, 3})))
	require.NoError(t, err)
	_, err = CBind(a, short)
	assert.True(t, IsKind(err, ErrLengthMismatch))
}

func TestRBind(t *testing.T) {
	a := storeTable(t)
	b, err := FromColumns(
		NewSeries("store", NewFactorColumn([]string{"d", "a"}, nil)),
		NewSeries("sales", NewInt32Column([]int32{3, 4})),
		NewSeries("price", NewFloat64Column([]float64{1, 2})),
		NewSeries("promo", NewBoolColumn([]bool{true, true})),
		NewSeries("clerk", NewStringColumn([]string{"mo", "jo"})),
	)
	require.NoError(t, err)

	sorted, err := a.Query().Sort("store").Collect()
	require.NoError(t, err)
	require.NoError(t, sorted.RBind(b))
	assert.Equal(t, 8, sorted.Height())
	assert.Equal(t, []any{"a", "a", "a", "b", "b", "c", "d", "a"}, cells[string](t, sorted, "store"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, sorted.Column("store").Levels().Labels())
	assert.Equal(t, "unordered", sorted.Status().String())
}

func TestRBindErrors(t *testing.T) {
	a := storeTable(t)
	reordered := a.Clone()
	require.NoError(t, reordered.RetainColumns("sales", "store", "price", "promo", "clerk"))
	assert.True(t, IsKind(a.RBind(reordered), ErrColumnNotFound))

	retyped := a.Clone()
	require.NoError(t, retyped.SetColumn("sales", NewFloat64Column(make([]float64, 6))))
	assert.True(t, IsKind(a.RBind(retyped), ErrTypeMismatch))
	assert.Equal(t, 6, a.Height())
}
