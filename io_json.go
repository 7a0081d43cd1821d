package rframe

import (
	"bufio"
	"bytes"
	"io"
	"slices"
	"strconv"

	"github.com/goccy/go-json"
)

// JSONFormat specifies the JSON layout
type JSONFormat int

const (
	// JSONRecords is an array of objects: [{"a":1,"b":"x"}, ...]
	JSONRecords JSONFormat = iota
	// JSONColumns is an object of arrays: {"a":[1,2],"b":["x","y"]}
	JSONColumns
)

// ParseJSONFormat parses "records" or "columns".
func ParseJSONFormat(s string) (JSONFormat, error) {
	switch s {
	case "records", "":
		return JSONRecords, nil
	case "columns":
		return JSONColumns, nil
	}
	return 0, newError("json", ErrUnsupported, "unknown JSON format %q", s)
}

// JSONReadOptions configures JSON reading
type JSONReadOptions struct {
	Format      JSONFormat       // Expected format
	Columns     []string         // Column order (default: sorted key order)
	ColumnTypes map[string]DType // Force column types
	Factors     bool             // Infer text columns as Factor instead of String
}

// DefaultJSONReadOptions returns default reading options
func DefaultJSONReadOptions() JSONReadOptions {
	return JSONReadOptions{Format: JSONRecords}
}

// JSONWriteOptions configures JSON writing
type JSONWriteOptions struct {
	Format JSONFormat // Output format
}

// DefaultJSONWriteOptions returns default writing options
func DefaultJSONWriteOptions() JSONWriteOptions {
	return JSONWriteOptions{Format: JSONRecords}
}

// ============================================================================
// Writing
// ============================================================================

// WriteJSON writes df to path, compressing by extension.
func (df *DataFrame) WriteJSON(path string, opts ...JSONWriteOptions) (err error) {
	w, err := createCompressed(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = wrapError("serialize", ErrParse, cerr)
		}
	}()
	return df.WriteJSONToWriter(w, opts...)
}

// jsonCell encodes cell i of c. Absent cells are null and factor cells their
// label.
func jsonCell(c *Column, i int) ([]byte, error) {
	if !c.valid[i] {
		return []byte("null"), nil
	}
	switch c.dtype {
	case Int32:
		return strconv.AppendInt(nil, int64(c.ints[i]), 10), nil
	case UInt64:
		return strconv.AppendUint(nil, c.sizes[i], 10), nil
	case Bool:
		return strconv.AppendBool(nil, c.bools[i]), nil
	case Float64:
		return json.Marshal(c.floats[i])
	case Factor:
		return json.Marshal(c.levels.labels[c.codes[i]])
	default:
		return json.Marshal(c.strs[i])
	}
}

// WriteJSONToWriter writes df as JSON in column order.
func (df *DataFrame) WriteJSONToWriter(w io.Writer, opts ...JSONWriteOptions) error {
	opt := DefaultJSONWriteOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	bw := bufio.NewWriter(w)
	keys := make([][]byte, len(df.colOrder))
	for j, name := range df.colOrder {
		k, err := json.Marshal(name)
		if err != nil {
			return wrapError("serialize", ErrParse, err)
		}
		keys[j] = k
	}
	cell := func(j, i int) error {
		b, err := jsonCell(df.columns[df.colOrder[j]], i)
		if err != nil {
			return wrapError("serialize", ErrParse, err)
		}
		_, err = bw.Write(b)
		return err
	}

	switch opt.Format {
	case JSONColumns:
		bw.WriteByte('{')
		for j := range df.colOrder {
			if j > 0 {
				bw.WriteByte(',')
			}
			bw.Write(keys[j])
			bw.WriteString(":[")
			for i := 0; i < df.height; i++ {
				if i > 0 {
					bw.WriteByte(',')
				}
				if err := cell(j, i); err != nil {
					return err
				}
			}
			bw.WriteByte(']')
		}
		bw.WriteString("}\n")
	default:
		bw.WriteByte('[')
		for i := 0; i < df.height; i++ {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteByte('{')
			for j := range df.colOrder {
				if j > 0 {
					bw.WriteByte(',')
				}
				bw.Write(keys[j])
				bw.WriteByte(':')
				if err := cell(j, i); err != nil {
					return err
				}
			}
			bw.WriteByte('}')
		}
		bw.WriteString("]\n")
	}
	if err := bw.Flush(); err != nil {
		return wrapError("serialize", ErrParse, err)
	}
	return nil
}

// ============================================================================
// Reading
// ============================================================================

// ReadJSON reads a JSON file; .gz, .zst and .lz4 files are decompressed on
// the fly.
func ReadJSON(path string, opts ...JSONReadOptions) (*DataFrame, error) {
	r, err := openCompressed(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ReadJSONFromReader(r, opts...)
}

// jsonText turns a decoded value into the text form used by the delimited
// parser. null becomes NA.
func jsonText(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NA", nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case string:
		return x, nil
	}
	return "", newError("deserialize", ErrUnsupported, "nested JSON value %v", v)
}

// ReadJSONFromReader reads JSON data. Types are inferred the same way as
// for delimited text; null and "NA" are read as absent cells.
func ReadJSONFromReader(r io.Reader, opts ...JSONReadOptions) (*DataFrame, error) {
	const op = "deserialize"
	opt := DefaultJSONReadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, wrapError(op, ErrParse, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var names []string
	var records [][]string
	switch opt.Format {
	case JSONColumns:
		var cols map[string][]any
		if err := dec.Decode(&cols); err != nil {
			return nil, wrapError(op, ErrParse, err)
		}
		names = jsonColumnOrder(opt.Columns, func(yield func(string)) {
			for k := range cols {
				yield(k)
			}
		})
		height := -1
		for _, name := range names {
			vals, ok := cols[name]
			if !ok {
				return nil, newError(op, ErrColumnNotFound, "column %s not found in JSON input", name)
			}
			if height >= 0 && len(vals) != height {
				return nil, newError(op, ErrLengthMismatch, "column %s has %d values, expected %d", name, len(vals), height)
			}
			height = len(vals)
		}
		records = make([][]string, max(height, 0))
		for i := range records {
			records[i] = make([]string, len(names))
			for j, name := range names {
				if records[i][j], err = jsonText(cols[name][i]); err != nil {
					return nil, err
				}
			}
		}
	default:
		var objs []map[string]any
		if err := dec.Decode(&objs); err != nil {
			return nil, wrapError(op, ErrParse, err)
		}
		names = jsonColumnOrder(opt.Columns, func(yield func(string)) {
			for _, o := range objs {
				for k := range o {
					yield(k)
				}
			}
		})
		records = make([][]string, len(objs))
		for i, o := range objs {
			records[i] = make([]string, len(names))
			for j, name := range names {
				if records[i][j], err = jsonText(o[name]); err != nil {
					return nil, err
				}
			}
		}
	}

	cols := make([]*Column, len(names))
	forEachTask(len(names), func(j int) {
		dt, ok := opt.ColumnTypes[names[j]]
		if !ok {
			dt = inferColumnType(records, j, opt.Factors)
		}
		cols[j] = NewEmptyColumn(dt)
	})
	if err := fillColumns(cols, names, records, 1); err != nil {
		return nil, err
	}
	df := NewDataFrame()
	for j, name := range names {
		if err := df.AddColumn(name, cols[j]); err != nil {
			return nil, err
		}
	}
	return df, nil
}

// jsonColumnOrder returns the explicit order if given, otherwise every key
// seen in sorted order.
func jsonColumnOrder(explicit []string, keys func(yield func(string))) []string {
	if len(explicit) > 0 {
		return explicit
	}
	seen := make(map[string]struct{})
	var names []string
	keys(func(k string) {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			names = append(names, k)
		}
	})
	slices.Sort(names)
	return names
}
