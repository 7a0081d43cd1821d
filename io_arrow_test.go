package rframe

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrowRoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	df := mixedTable(t)
	record, err := df.ToArrow(mem)
	require.NoError(t, err)
	assert.Equal(t, int64(4), record.NumRows())
	assert.Equal(t, int64(6), record.NumCols())
	assert.Equal(t, arrow.DICTIONARY, record.Schema().Field(1).Type.ID())

	dict := record.Column(1).(*array.Dictionary)
	assert.Equal(t, 4, dict.Dictionary().Len())
	assert.Equal(t, 2, dict.GetValueIndex(0))
	assert.True(t, dict.IsNull(2))

	back, err := NewDataFrameFromArrow(record)
	record.Release()
	require.NoError(t, err)
	assert.Equal(t, df.Names(), back.Names())
	assert.Equal(t, []string{"low", "mid", "high", "unused"}, back.Column("grade").Levels().Labels())
	assert.True(t, df.Equal(back))
}

func TestArrowTableRoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	df := storeTable(t)
	table, err := df.ToArrowTable(mem)
	require.NoError(t, err)
	back, err := NewDataFrameFromArrowTable(table)
	table.Release()
	require.NoError(t, err)
	assert.True(t, df.Equal(back))

	empty, err := df.Head(0).ToArrowTable(mem)
	require.NoError(t, err)
	back, err = NewDataFrameFromArrowTable(empty)
	empty.Release()
	require.NoError(t, err)
	assert.Equal(t, df.Names(), back.Names())
	assert.Equal(t, df.Types(), back.Types())
	assert.Zero(t, back.Height())
}

func TestArrowUnsupported(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := array.NewInt64Builder(mem)
	b.AppendValues([]int64{1, 2}, nil)
	arr := b.NewArray()
	b.Release()
	schema := arrow.NewSchema([]arrow.Field{{Name: "wide", Type: arrow.PrimitiveTypes.Int64}}, nil)
	record := array.NewRecord(schema, []arrow.Array{arr}, 2)
	arr.Release()
	defer record.Release()

	_, err := NewDataFrameFromArrow(record)
	assert.True(t, IsKind(err, ErrUnsupported))
	_, err = NewDataFrameFromArrow(nil)
	assert.True(t, IsKind(err, ErrUnsupported))
}
