package rframe

import (
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"
)

// Parquet files written by this package carry the column order and factor
// dictionaries as key/value metadata; the parquet schema itself orders
// fields by name and has no factor type.
const (
	parquetColumnsKey = "rframe.columns"
	parquetLevelsKey  = "rframe.levels."
)

// ParquetReadOptions configures Parquet reading
type ParquetReadOptions struct {
	Columns []string // Only read these columns (nil = all)
	MaxRows int      // Max rows to read (0 = unlimited)
}

// DefaultParquetReadOptions returns default reading options
func DefaultParquetReadOptions() ParquetReadOptions {
	return ParquetReadOptions{}
}

// ParquetWriteOptions configures Parquet writing
type ParquetWriteOptions struct {
	Compression  string // "snappy", "gzip", "zstd", "none" (default "snappy")
	RowGroupSize int64  // Rows per row group (default 1000000)
}

// DefaultParquetWriteOptions returns default writing options
func DefaultParquetWriteOptions() ParquetWriteOptions {
	return ParquetWriteOptions{Compression: "snappy", RowGroupSize: 1000000}
}

// ============================================================================
// Writing
// ============================================================================

// WriteParquet writes df to a Parquet file.
func (df *DataFrame) WriteParquet(path string, opts ...ParquetWriteOptions) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return wrapError("serialize", ErrParse, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = wrapError("serialize", ErrParse, cerr)
		}
	}()
	if err = df.WriteParquetToWriter(f, opts...); err != nil {
		return err
	}
	Logger().Info("wrote parquet", zap.String("path", path), zap.Int("rows", df.height))
	return nil
}

func dtypeToParquetNode(dtype DType) parquet.Node {
	switch dtype {
	case Int32:
		return parquet.Optional(parquet.Int(32))
	case Float64:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case Bool:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	case UInt64:
		return parquet.Optional(parquet.Uint(64))
	default:
		return parquet.Optional(parquet.String())
	}
}

func parquetCodec(name string) (parquet.WriterOption, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return parquet.Compression(&parquet.Snappy), nil
	case "gzip":
		return parquet.Compression(&parquet.Gzip), nil
	case "zstd":
		return parquet.Compression(&parquet.Zstd), nil
	case "none":
		return parquet.Compression(&parquet.Uncompressed), nil
	}
	return nil, newError("serialize", ErrUnsupported, "unknown parquet compression %q", name)
}

// parquetValue encodes cell i of c for leaf column idx.
func parquetValue(c *Column, i, idx int) parquet.Value {
	if !c.valid[i] {
		return parquet.Value{}.Level(0, 0, idx)
	}
	var v parquet.Value
	switch c.dtype {
	case Int32:
		v = parquet.Int32Value(c.ints[i])
	case Float64:
		v = parquet.DoubleValue(c.floats[i])
	case Bool:
		v = parquet.BooleanValue(c.bools[i])
	case UInt64:
		v = parquet.Int64Value(int64(c.sizes[i]))
	case Factor:
		v = parquet.ByteArrayValue([]byte(c.levels.labels[c.codes[i]]))
	default:
		v = parquet.ByteArrayValue([]byte(c.strs[i]))
	}
	return v.Level(0, 1, idx)
}

// WriteParquetToWriter writes df in Parquet format. Every column is
// optional; factors are written as strings with their dictionary kept in
// the file metadata.
func (df *DataFrame) WriteParquetToWriter(w io.Writer, opts ...ParquetWriteOptions) error {
	const op = "serialize"
	opt := DefaultParquetWriteOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	if df.Width() == 0 {
		return newError(op, ErrUnsupported, "cannot write a table with no columns")
	}
	codec, err := parquetCodec(opt.Compression)
	if err != nil {
		return err
	}

	group := make(parquet.Group, df.Width())
	for _, name := range df.colOrder {
		group[name] = dtypeToParquetNode(df.columns[name].dtype)
	}
	schema := parquet.NewSchema("rframe", group)

	writerOpts := []parquet.WriterOption{schema, codec,
		parquet.KeyValueMetadata(parquetColumnsKey, strings.Join(df.colOrder, "\t"))}
	if opt.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.MaxRowsPerRowGroup(opt.RowGroupSize))
	}
	for _, name := range df.colOrder {
		if c := df.columns[name]; c.dtype == Factor {
			labels, err := json.Marshal(c.levels.labels)
			if err != nil {
				return wrapError(op, ErrParse, err)
			}
			writerOpts = append(writerOpts, parquet.KeyValueMetadata(parquetLevelsKey+name, string(labels)))
		}
	}

	// leaf index -> column, in the schema's field order
	fields := schema.Fields()
	leaves := make([]*Column, len(fields))
	for k, f := range fields {
		leaves[k] = df.columns[f.Name()]
	}

	pw := parquet.NewWriter(w, writerOpts...)
	const batchSize = 1000
	rows := make([]parquet.Row, 0, batchSize)
	for i := 0; i < df.height; i++ {
		row := make(parquet.Row, len(leaves))
		for k, c := range leaves {
			row[k] = parquetValue(c, i, k)
		}
		rows = append(rows, row)
		if len(rows) == batchSize {
			if _, err := pw.WriteRows(rows); err != nil {
				pw.Close()
				return newError(op, ErrParse, "failed to write rows at %d: %v", i-len(rows)+1, err)
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if _, err := pw.WriteRows(rows); err != nil {
			pw.Close()
			return wrapError(op, ErrParse, err)
		}
	}
	if err := pw.Close(); err != nil {
		return wrapError(op, ErrParse, err)
	}
	return nil
}

// ============================================================================
// Reading
// ============================================================================

// ReadParquet reads a Parquet file into a DataFrame
func ReadParquet(path string, opts ...ParquetReadOptions) (*DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapError("deserialize", ErrParse, err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, wrapError("deserialize", ErrParse, err)
	}
	df, err := ReadParquetFromReader(f, stat.Size(), opts...)
	if err != nil {
		return nil, err
	}
	Logger().Info("read parquet", zap.String("path", path), zap.Int("rows", df.height), zap.Int("cols", df.Width()))
	return df, nil
}

// parquetLeafType maps a leaf to a column type. Signed 64-bit integers and
// 32-bit floats widen to Float64.
func parquetLeafType(t parquet.Type, factor bool) DType {
	switch t.Kind() {
	case parquet.Boolean:
		return Bool
	case parquet.Int32:
		return Int32
	case parquet.Int64:
		if lt := t.LogicalType(); lt != nil && lt.Integer != nil && !lt.Integer.IsSigned {
			return UInt64
		}
		return Float64
	case parquet.Float, parquet.Double:
		return Float64
	}
	if factor {
		return Factor
	}
	return String
}

type parquetLeaf struct {
	name   string
	index  int
	dtype  DType
	levels []string
}

func (l parquetLeaf) newColumn() (*Column, error) {
	c := NewEmptyColumn(l.dtype)
	if l.dtype == Factor && len(l.levels) > 0 {
		levels, err := NewLevels(l.levels...)
		if err != nil {
			return nil, err
		}
		levels.SetAutoExtend(true)
		c.levels = levels
	}
	return c, nil
}

func appendParquetValue(c *Column, v parquet.Value) error {
	if v.IsNull() {
		c.appendNA()
		return nil
	}
	switch c.dtype {
	case Int32:
		c.ints = append(c.ints, v.Int32())
	case Float64:
		if v.Kind() == parquet.Float {
			c.floats = append(c.floats, float64(v.Float()))
		} else if v.Kind() == parquet.Int64 {
			c.floats = append(c.floats, float64(v.Int64()))
		} else {
			c.floats = append(c.floats, v.Double())
		}
	case Bool:
		c.bools = append(c.bools, v.Boolean())
	case UInt64:
		c.sizes = append(c.sizes, v.Uint64())
	case Factor:
		code, err := c.levels.intern("deserialize", string(v.ByteArray()))
		if err != nil {
			return err
		}
		c.codes = append(c.codes, code)
	default:
		c.strs = append(c.strs, string(v.ByteArray()))
	}
	c.valid = append(c.valid, true)
	return nil
}

// readRowGroup decodes the selected leaves of one row group, stopping after
// limit rows when limit > 0.
func readRowGroup(rg parquet.RowGroup, leaves []parquetLeaf, limit int) ([]*Column, error) {
	cols := make([]*Column, len(leaves))
	byIndex := make(map[int]int, len(leaves))
	for j, l := range leaves {
		c, err := l.newColumn()
		if err != nil {
			return nil, err
		}
		c.Reserve(int(rg.NumRows()))
		cols[j] = c
		byIndex[l.index] = j
	}
	rows := rg.Rows()
	defer rows.Close()
	buf := make([]parquet.Row, 1000)
	read := 0
	for limit <= 0 || read < limit {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			if limit > 0 && read >= limit {
				break
			}
			for _, v := range row {
				if j, ok := byIndex[v.Column()]; ok {
					if err := appendParquetValue(cols[j], v); err != nil {
						return nil, err
					}
				}
			}
			read++
		}
		if err == io.EOF || n == 0 {
			break
		}
		if err != nil {
			return nil, wrapError("deserialize", ErrParse, err)
		}
	}
	return cols, nil
}

// ReadParquetFromReader reads Parquet data. Row groups are decoded in
// parallel and concatenated in file order.
func ReadParquetFromReader(r io.ReaderAt, size int64, opts ...ParquetReadOptions) (*DataFrame, error) {
	const op = "deserialize"
	opt := DefaultParquetReadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, wrapError(op, ErrParse, err)
	}

	fields := pf.Schema().Fields()
	leafOf := make(map[string]parquetLeaf, len(fields))
	var fileOrder []string
	for k, f := range fields {
		name := f.Name()
		var levels []string
		raw, isFactor := pf.Lookup(parquetLevelsKey + name)
		if isFactor {
			if err := json.Unmarshal([]byte(raw), &levels); err != nil {
				return nil, wrapError(op, ErrParse, err)
			}
		}
		leafOf[name] = parquetLeaf{name: name, index: k, dtype: parquetLeafType(f.Type(), isFactor), levels: levels}
		fileOrder = append(fileOrder, name)
	}
	if saved, ok := pf.Lookup(parquetColumnsKey); ok {
		fileOrder = strings.Split(saved, "\t")
	}
	names := fileOrder
	if len(opt.Columns) > 0 {
		names = opt.Columns
	}
	leaves := make([]parquetLeaf, len(names))
	for j, name := range names {
		l, ok := leafOf[name]
		if !ok {
			return nil, newError(op, ErrColumnNotFound, "column %s not found in parquet file", name)
		}
		leaves[j] = l
	}

	rowGroups := pf.RowGroups()
	parts := make([][]*Column, len(rowGroups))
	errs := make([]error, len(rowGroups))
	forEachTask(len(rowGroups), func(g int) {
		parts[g], errs[g] = readRowGroup(rowGroups[g], leaves, opt.MaxRows)
	})

	cols := make([]*Column, len(leaves))
	for j, l := range leaves {
		if cols[j], err = l.newColumn(); err != nil {
			return nil, err
		}
	}
	height := 0
	for g, part := range parts {
		if errs[g] != nil {
			return nil, errs[g]
		}
		if len(part) == 0 || (opt.MaxRows > 0 && height >= opt.MaxRows) {
			break
		}
		take := part[0].Len()
		if opt.MaxRows > 0 {
			take = min(take, opt.MaxRows-height)
		}
		for j := range cols {
			if err := cols[j].Extend(part[j].view(0, take)); err != nil {
				return nil, err
			}
		}
		height += take
	}

	df := NewDataFrame()
	for j, name := range names {
		if err := df.AddColumn(name, cols[j]); err != nil {
			return nil, err
		}
	}
	return df, nil
}
