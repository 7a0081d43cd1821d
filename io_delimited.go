package rframe

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DelimitedReadOptions configures reading of tab- (or otherwise-) delimited
// text.
type DelimitedReadOptions struct {
	Delimiter   rune             // Field delimiter (default '\t')
	HasHeader   bool             // First row is header (default true)
	ColumnNames []string         // Override column names
	ColumnTypes map[string]DType // Force column types
	Schema      *Schema          // Force every column's type and factor levels
	InferTypes  bool             // Auto-detect types (default true)
	Factors     bool             // Infer text columns as Factor instead of String
	SkipRows    int              // Skip first N rows
	MaxRows     int              // Max rows to read (0 = unlimited)
	Comment     rune             // Skip lines starting with this
}

// DefaultDelimitedReadOptions returns default reading options
func DefaultDelimitedReadOptions() DelimitedReadOptions {
	return DelimitedReadOptions{
		Delimiter:  '\t',
		HasHeader:  true,
		InferTypes: true,
	}
}

// ReadDelimited reads a delimited file; .gz, .zst and .lz4 files are
// decompressed on the fly.
func ReadDelimited(path string, opts ...DelimitedReadOptions) (*DataFrame, error) {
	r, err := openCompressed(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	df, err := ReadDelimitedFromReader(r, opts...)
	if err != nil {
		return nil, err
	}
	Logger().Info("read delimited", zap.String("path", path), zap.Int("rows", df.height), zap.Int("cols", df.Width()))
	return df, nil
}

func newRecordReader(r io.Reader, opt DelimitedReadOptions) *csv.Reader {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.Comma = opt.Delimiter
	if opt.Comment != 0 {
		reader.Comment = opt.Comment
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	return reader
}

// readRecords returns the header (if any) and the data records.
func readRecords(reader *csv.Reader, opt DelimitedReadOptions) (headers []string, records [][]string, err error) {
	const op = "deserialize"
	for i := 0; i < opt.SkipRows; i++ {
		if _, err := reader.Read(); err != nil {
			return nil, nil, wrapError(op, ErrParse, err)
		}
	}
	if opt.HasHeader {
		if headers, err = reader.Read(); err != nil {
			if err == io.EOF {
				return nil, nil, nil
			}
			return nil, nil, wrapError(op, ErrParse, err)
		}
	}
	if len(opt.ColumnNames) > 0 {
		headers = opt.ColumnNames
	}
	for opt.MaxRows <= 0 || len(records) < opt.MaxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, wrapError(op, ErrParse, err)
		}
		if headers == nil {
			headers = make([]string, len(record))
			for i := range record {
				headers[i] = fmt.Sprintf("V%d", i+1)
			}
		}
		if len(record) != len(headers) {
			line, _ := reader.FieldPos(0)
			return nil, nil, newError(op, ErrLengthMismatch, "line %d has %d fields, expected %d", line, len(record), len(headers))
		}
		records = append(records, record)
	}
	return headers, records, nil
}

// ReadDelimitedFromReader reads delimited text into a new DataFrame.
func ReadDelimitedFromReader(r io.Reader, opts ...DelimitedReadOptions) (*DataFrame, error) {
	opt := DefaultDelimitedReadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	headers, records, err := readRecords(newRecordReader(r, opt), opt)
	if err != nil {
		return nil, err
	}
	if headers == nil {
		return NewDataFrame(), nil
	}

	colTypes := make([]DType, len(headers))
	for i := range colTypes {
		colTypes[i] = String
	}
	if opt.InferTypes {
		forEachTask(len(headers), func(i int) {
			colTypes[i] = inferColumnType(records, i, opt.Factors)
		})
	}
	for i, h := range headers {
		if dt, ok := opt.ColumnTypes[h]; ok {
			colTypes[i] = dt
		}
		if opt.Schema != nil {
			if dt, ok := opt.Schema.GetDType(h); ok {
				colTypes[i] = dt
			}
		}
	}

	cols := make([]*Column, len(headers))
	for i := range headers {
		cols[i] = NewEmptyColumn(colTypes[i])
		if opt.Schema != nil && colTypes[i] == Factor {
			if labels := opt.Schema.Levels(headers[i]); len(labels) > 0 {
				if cols[i].levels, err = NewLevels(labels...); err != nil {
					return nil, err
				}
			}
		}
	}
	firstLine := 1 + opt.SkipRows
	if opt.HasHeader {
		firstLine++
	}
	if err := fillColumns(cols, headers, records, firstLine); err != nil {
		return nil, err
	}
	df := NewDataFrame()
	for i, h := range headers {
		if err := df.AddColumn(h, cols[i]); err != nil {
			return nil, err
		}
	}
	return df, nil
}

// fillColumns parses records into cols, one column per task. Errors name the
// input line and column.
func fillColumns(cols []*Column, headers []string, records [][]string, firstLine int) error {
	errs := make([]error, len(cols))
	forEachTask(len(cols), func(j int) {
		c := cols[j]
		c.Reserve(len(records))
		for i, record := range records {
			if err := c.appendString(record[j]); err != nil {
				e := newError("deserialize", ErrParse, "line %d, column %s: cannot parse %q as %s", firstLine+i, headers[j], record[j], c.dtype)
				e.Err = err
				errs[j] = e
				return
			}
		}
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadRows appends delimited rows to df, parsing each field with the type of
// its column. With a header, its names must match df's. Nothing is appended
// if any field fails to parse.
func (df *DataFrame) ReadRows(r io.Reader, opts ...DelimitedReadOptions) error {
	const op = "deserialize"
	opt := DefaultDelimitedReadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	opt.ColumnNames = nil
	wasHeader := opt.HasHeader
	headers, records, err := readRecords(newRecordReader(r, opt), opt)
	if err != nil {
		return err
	}
	if wasHeader && headers != nil && !slices.Equal(headers, df.colOrder) {
		return newError(op, ErrColumnNotFound, "header %v does not match columns %v", headers, df.colOrder)
	}
	if len(records) > 0 && len(records[0]) != df.Width() {
		return newError(op, ErrLengthMismatch, "rows have %d fields, table has %d columns", len(records[0]), df.Width())
	}

	cols := make([]*Column, df.Width())
	for j, name := range df.colOrder {
		src := df.columns[name]
		cols[j] = NewEmptyColumn(src.dtype)
		if src.dtype == Factor {
			cols[j].levels = src.levels.clone()
		}
	}
	firstLine := 1 + opt.SkipRows
	if wasHeader {
		firstLine++
	}
	if err := fillColumns(cols, df.colOrder, records, firstLine); err != nil {
		return err
	}
	for j, name := range df.colOrder {
		if err := df.columns[name].Extend(cols[j]); err != nil {
			return err
		}
	}
	if len(df.colOrder) > 0 {
		df.height += len(records)
	}
	df.invalidate()
	return nil
}

func inferColumnType(records [][]string, colIdx int, factors bool) DType {
	hasInt, hasBig, hasNeg, hasFloat, hasBool, hasText := false, false, false, false, false, false
	for _, record := range records {
		val := strings.TrimSpace(record[colIdx])
		if val == "" || isNAString(val) {
			continue
		}
		lower := strings.ToLower(val)
		if lower == "true" || lower == "false" {
			hasBool = true
			continue
		}
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			hasInt = true
			if v < math.MinInt32 || v > math.MaxInt32 {
				hasBig = true
			}
			if v < 0 {
				hasNeg = true
			}
			continue
		}
		if _, err := strconv.ParseUint(val, 10, 64); err == nil {
			hasInt, hasBig = true, true
			continue
		}
		if _, err := strconv.ParseFloat(val, 64); err == nil {
			hasFloat = true
			continue
		}
		hasText = true
	}
	switch {
	case hasText || (hasBool && (hasInt || hasFloat)):
		if factors {
			return Factor
		}
		return String
	case hasFloat:
		return Float64
	case hasBig && !hasNeg:
		return UInt64
	case hasBig:
		return Float64
	case hasInt:
		return Int32
	case hasBool:
		return Bool
	}
	return String
}

// ============================================================================
// Writing
// ============================================================================

// DelimitedWriteOptions configures writing of delimited text.
type DelimitedWriteOptions struct {
	Delimiter   rune // Field delimiter (default '\t')
	WriteHeader bool // Write header row (default true)
}

// DefaultDelimitedWriteOptions returns default writing options
func DefaultDelimitedWriteOptions() DelimitedWriteOptions {
	return DelimitedWriteOptions{Delimiter: '\t', WriteHeader: true}
}

// WriteDelimited writes df to path, compressing by extension.
func (df *DataFrame) WriteDelimited(path string, opts ...DelimitedWriteOptions) (err error) {
	w, err := createCompressed(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = wrapError("serialize", ErrParse, cerr)
		}
	}()
	return df.WriteDelimitedToWriter(w, opts...)
}

// WriteDelimitedToWriter writes df as delimited text. Absent cells are
// written as NA and factor cells as their label.
func (df *DataFrame) WriteDelimitedToWriter(w io.Writer, opts ...DelimitedWriteOptions) error {
	opt := DefaultDelimitedWriteOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	writer := csv.NewWriter(w)
	writer.Comma = opt.Delimiter
	if opt.WriteHeader {
		if err := writer.Write(df.colOrder); err != nil {
			return wrapError("serialize", ErrParse, err)
		}
	}
	cols := make([]*Column, len(df.colOrder))
	for j, name := range df.colOrder {
		cols[j] = df.columns[name]
	}
	record := make([]string, len(cols))
	for i := 0; i < df.height; i++ {
		for j, c := range cols {
			record[j] = c.cellText(i)
		}
		if err := writer.Write(record); err != nil {
			return wrapError("serialize", ErrParse, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return wrapError("serialize", ErrParse, err)
	}
	return nil
}
