package rframe

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ============================================================================
// Arrow Export
// ============================================================================

// ToArrow exports a DataFrame to an Arrow Record. Factor columns become
// dictionary arrays whose dictionary is the factor's label list.
// The caller is responsible for calling Release() on the returned Record.
func (df *DataFrame) ToArrow(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	fields := make([]arrow.Field, df.Width())
	arrays := make([]arrow.Array, df.Width())
	release := func() {
		for _, a := range arrays {
			if a != nil {
				a.Release()
			}
		}
	}
	for i, name := range df.colOrder {
		c := df.columns[name]
		fields[i] = arrow.Field{Name: name, Type: dtypeToArrowType(c.dtype), Nullable: true}
		arr, err := columnToArrowArray(c, mem)
		if err != nil {
			release()
			return nil, err
		}
		arrays[i] = arr
	}
	record := array.NewRecord(arrow.NewSchema(fields, nil), arrays, int64(df.height))
	release()
	return record, nil
}

// ToArrowTable exports a DataFrame to an Arrow Table.
// The caller is responsible for calling Release() on the returned Table.
func (df *DataFrame) ToArrowTable(mem memory.Allocator) (arrow.Table, error) {
	record, err := df.ToArrow(mem)
	if err != nil {
		return nil, err
	}
	defer record.Release()
	return array.NewTableFromRecords(record.Schema(), []arrow.Record{record}), nil
}

func factorArrowType() *arrow.DictionaryType {
	return &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}
}

func dtypeToArrowType(dtype DType) arrow.DataType {
	switch dtype {
	case Int32:
		return arrow.PrimitiveTypes.Int32
	case Float64:
		return arrow.PrimitiveTypes.Float64
	case Bool:
		return arrow.FixedWidthTypes.Boolean
	case UInt64:
		return arrow.PrimitiveTypes.Uint64
	case Factor:
		return factorArrowType()
	default:
		return arrow.BinaryTypes.String
	}
}

func columnToArrowArray(c *Column, mem memory.Allocator) (arrow.Array, error) {
	switch c.dtype {
	case Int32:
		b := array.NewInt32Builder(mem)
		defer b.Release()
		b.AppendValues(c.ints, c.valid)
		return b.NewArray(), nil
	case Float64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		b.AppendValues(c.floats, c.valid)
		return b.NewArray(), nil
	case Bool:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.AppendValues(c.bools, c.valid)
		return b.NewArray(), nil
	case UInt64:
		b := array.NewUint64Builder(mem)
		defer b.Release()
		b.AppendValues(c.sizes, c.valid)
		return b.NewArray(), nil
	case Factor:
		labels := array.NewStringBuilder(mem)
		defer labels.Release()
		labels.AppendValues(c.levels.labels, nil)
		dict := labels.NewStringArray()
		defer dict.Release()

		b := array.NewDictionaryBuilder(mem, factorArrowType()).(*array.BinaryDictionaryBuilder)
		defer b.Release()
		// seed the memo table so dictionary indices equal factor codes
		if err := b.InsertStringDictValues(dict); err != nil {
			return nil, wrapError("serialize", ErrUnsupported, err)
		}
		for i, code := range c.codes {
			if !c.valid[i] {
				b.AppendNull()
				continue
			}
			if err := b.AppendString(c.levels.labels[code]); err != nil {
				return nil, wrapError("serialize", ErrUnsupported, err)
			}
		}
		return b.NewArray(), nil
	default:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.AppendValues(c.strs, c.valid)
		return b.NewArray(), nil
	}
}

// ============================================================================
// Arrow Import
// ============================================================================

// NewDataFrameFromArrow creates a DataFrame from an Arrow Record.
func NewDataFrameFromArrow(record arrow.Record) (*DataFrame, error) {
	if record == nil {
		return nil, newError("deserialize", ErrUnsupported, "record is nil")
	}
	schema := record.Schema()
	df := NewDataFrame()
	for i := 0; i < int(record.NumCols()); i++ {
		name := schema.Field(i).Name
		c, err := arrowArrayToColumn(name, record.Column(i))
		if err != nil {
			return nil, err
		}
		if err := df.AddColumn(name, c); err != nil {
			return nil, err
		}
	}
	return df, nil
}

// NewDataFrameFromArrowTable creates a DataFrame from an Arrow Table,
// concatenating its record batches.
func NewDataFrameFromArrowTable(table arrow.Table) (*DataFrame, error) {
	if table == nil {
		return nil, newError("deserialize", ErrUnsupported, "table is nil")
	}
	reader := array.NewTableReader(table, -1)
	defer reader.Release()
	var out *DataFrame
	for reader.Next() {
		part, err := NewDataFrameFromArrow(reader.Record())
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = part
			continue
		}
		if err := out.RBind(part); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = NewDataFrame()
		for _, f := range table.Schema().Fields() {
			dt, err := arrowTypeToDType(f.Name, f.Type)
			if err != nil {
				return nil, err
			}
			_ = out.AddColumn(f.Name, NewEmptyColumn(dt))
		}
	}
	return out, nil
}

func arrowTypeToDType(name string, t arrow.DataType) (DType, error) {
	switch t.ID() {
	case arrow.INT32:
		return Int32, nil
	case arrow.FLOAT64:
		return Float64, nil
	case arrow.BOOL:
		return Bool, nil
	case arrow.UINT64:
		return UInt64, nil
	case arrow.DICTIONARY:
		return Factor, nil
	case arrow.STRING:
		return String, nil
	}
	return 0, newError("deserialize", ErrUnsupported, "column %s has unsupported arrow type %s", name, t)
}

func validity(arr arrow.Array) []bool {
	valid := make([]bool, arr.Len())
	for i := range valid {
		valid[i] = arr.IsValid(i)
	}
	return valid
}

// arrowArrayToColumn converts an Arrow Array to a Column
func arrowArrayToColumn(name string, arr arrow.Array) (*Column, error) {
	valid := validity(arr)
	switch a := arr.(type) {
	case *array.Int32:
		return newColumn(append([]int32(nil), a.Int32Values()...), valid, nil), nil
	case *array.Float64:
		return newColumn(append([]float64(nil), a.Float64Values()...), valid, nil), nil
	case *array.Uint64:
		return newColumn(append([]uint64(nil), a.Uint64Values()...), valid, nil), nil
	case *array.Boolean:
		data := make([]bool, a.Len())
		for i := range data {
			data[i] = a.Value(i)
		}
		return newColumn(data, valid, nil), nil
	case *array.String:
		data := make([]string, a.Len())
		for i := range data {
			if valid[i] {
				data[i] = a.Value(i)
			}
		}
		return newColumn(data, valid, nil), nil
	case *array.Dictionary:
		dict, ok := a.Dictionary().(*array.String)
		if !ok {
			return nil, newError("deserialize", ErrUnsupported, "column %s: dictionary values must be strings", name)
		}
		labels := make([]string, dict.Len())
		for i := range labels {
			labels[i] = dict.Value(i)
		}
		levels, err := NewLevels(labels...)
		if err != nil {
			return nil, err
		}
		levels.SetAutoExtend(true)
		codes := make([]uint16, a.Len())
		for i := range codes {
			if valid[i] {
				codes[i] = uint16(a.GetValueIndex(i))
			}
		}
		return newColumn(codes, valid, levels), nil
	}
	return nil, newError("deserialize", ErrUnsupported, "column %s has unsupported arrow type %s", name, arr.DataType())
}
