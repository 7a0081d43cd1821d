package rframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromColumns(t *testing.T) {
	df := storeTable(t)
	assert.Equal(t, 6, df.Height())
	assert.Equal(t, 5, df.Width())
	assert.Equal(t, []DType{Factor, Int32, Float64, Bool, String}, df.Types())
	for _, name := range df.Names() {
		assert.Equal(t, df.Height(), df.Column(name).Len(), name)
	}
	assert.Nil(t, df.Column("missing"))

	_, err := FromColumns(
		NewSeries("a", NewInt32Column([]int32{1, 2})),
		NewSeries("b", NewInt32Column([]int32{1})),
	)
	assert.True(t, IsKind(err, ErrLengthMismatch))

	_, err = FromColumns(
		NewSeries("a", NewInt32Column([]int32{1})),
		NewSeries("a", NewInt32Column([]int32{1})),
	)
	assert.True(t, IsKind(err, ErrNameCollision))

	_, err = FromColumns(NewSeries("bad", NewInt32ColumnNA([]int32{1}, []bool{})))
	assert.True(t, IsKind(err, ErrLengthMismatch))
}

func TestFromSchema(t *testing.T) {
	schema, err := NewSchema([]string{"k", "v"}, []DType{Factor, Float64})
	require.NoError(t, err)
	require.NoError(t, schema.SetLevels("k", []string{"lo", "hi"}))

	df := FromSchema(schema)
	assert.Zero(t, df.Height())
	assert.Equal(t, []string{"k", "v"}, df.Names())
	assert.Equal(t, []string{"lo", "hi"}, df.Column("k").Levels().Labels())
	assert.False(t, df.Column("k").Levels().AutoExtend())
	assert.Equal(t, schema.String(), df.Schema().String())
}

func TestColumnManagement(t *testing.T) {
	df, err := recordTable(t).Query().Sort("int_col", "num_col").Collect()
	require.NoError(t, err)

	// renaming carries the status along
	require.NoError(t, df.RenameColumn("int_col", "code"))
	assert.Equal(t, []string{"record_i", "code", "num_col"}, df.Names())
	assert.True(t, df.Status().IsSortedBy([]string{"code", "num_col"}, nil))
	assert.True(t, IsKind(df.RenameColumn("code", "num_col"), ErrNameCollision))
	assert.True(t, IsKind(df.RenameColumn("nope", "x"), ErrColumnNotFound))

	require.NoError(t, df.SetColumn("record_i", NewInt32Column(make([]int32, 10))))
	assert.True(t, df.Status().Sorted)
	assert.True(t, IsKind(df.SetColumn("record_i", NewInt32Column(nil)), ErrLengthMismatch))

	require.NoError(t, df.RetainColumns("num_col", "record_i"))
	assert.Equal(t, []string{"num_col", "record_i"}, df.Names())
	assert.False(t, df.Status().Sorted)

	require.NoError(t, df.DropColumn("num_col"))
	require.NoError(t, df.DropColumn("record_i"))
	assert.Zero(t, df.Height())
	assert.True(t, IsKind(df.DropColumn("record_i"), ErrColumnNotFound))
}

func TestSetColumnFrom(t *testing.T) {
	df := recordTable(t)
	err := SetColumnFrom(df, "doubled", "num_col", func(v Opt[float64]) Opt[float64] {
		if !v.Valid {
			return NA[float64]()
		}
		return Some(v.Value * 2)
	})
	require.NoError(t, err)
	assert.Equal(t, []any{0.0, 2.2, nil}, cells[float64](t, df, "doubled")[:3])

	err = SetColumnFrom(df, "big", "int_col", func(v Opt[int32]) Opt[bool] { return Some(v.Value > 50) })
	require.NoError(t, err)
	assert.Equal(t, 2, df.Height()-int(trueCount(t, df, "big")))

	err = SetColumnFrom(df, "x", "int_col", func(v Opt[string]) Opt[string] { return v })
	assert.True(t, IsKind(err, ErrTypeMismatch))
}

func trueCount(t *testing.T, df *DataFrame, name string) uint64 {
	out, err := df.Query().Aggregate(TrueCount("n", name))
	require.NoError(t, err)
	return cells[uint64](t, out, "n")[0].(uint64)
}

func TestCloneHeadTail(t *testing.T) {
	df := recordTable(t)
	c := df.Clone()
	assert.True(t, df.Equal(c))
	require.NoError(t, SetCell(c, "record_i", 0, Some(int32(-1))))
	assert.False(t, df.Equal(c))

	assert.Equal(t, anys[int32](10, 11), cells[int32](t, df.Head(2), "record_i"))
	assert.Equal(t, anys[int32](18, 19), cells[int32](t, df.Tail(2), "record_i"))
	assert.Equal(t, 10, df.Head(50).Height())
	assert.Zero(t, df.Tail(-1).Height())
}

func TestSlice(t *testing.T) {
	df := recordTable(t)
	s, err := df.Slice(3, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Height())
	assert.Equal(t, 3, s.Start())
	assert.Equal(t, 3, s.Width())
	assert.Equal(t, df.Names(), s.Names())
	assert.Nil(t, s.Column("missing"))

	v, err := Get[int32](s.Column("record_i"), 1)
	require.NoError(t, err)
	assert.Equal(t, Some(int32(14)), v)

	_, err = df.Slice(9, 2)
	assert.True(t, IsKind(err, ErrOutOfBounds))

	var zero Slice
	assert.Zero(t, zero.Width())
	assert.Zero(t, zero.ToDataFrame().Width())
}

func TestMust(t *testing.T) {
	assert.Equal(t, 3, Must(3, nil))
	assert.Panics(t, func() { Must(NewDataFrame().Query().Select("x").Collect()) })
}

func TestErrorFormat(t *testing.T) {
	_, err := recordTable(t).Query().Sort("nope").Collect()
	require.Error(t, err)
	assert.Equal(t, "DataFrame::collect error: no column named nope", err.Error())
	assert.ErrorIs(t, err, ErrColumnNotFound)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "collect", e.Op)
}
