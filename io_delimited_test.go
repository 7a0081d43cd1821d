package rframe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const salesTSV = "region\tunits\tprice\tbig\tcount\tnote\n" +
	"north\t3\t1.5\ttrue\t18446744073709551615\tok\n" +
	"south\tNA\t2\tfalse\t7\t\n" +
	"north\t-4\tNA\tNA\t0\tNA\n"

func TestReadDelimitedInference(t *testing.T) {
	df, err := ReadDelimitedFromReader(strings.NewReader(salesTSV))
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "units", "price", "big", "count", "note"}, df.Names())
	assert.Equal(t, []DType{String, Int32, Float64, Bool, UInt64, String}, df.Types())
	assert.Equal(t, []any{int32(3), nil, int32(-4)}, cells[int32](t, df, "units"))
	assert.Equal(t, []any{1.5, 2.0, nil}, cells[float64](t, df, "price"))
	assert.Equal(t, []any{uint64(18446744073709551615), uint64(7), uint64(0)}, cells[uint64](t, df, "count"))
	// an empty String field is present, NA is not
	assert.Equal(t, []any{"ok", "", nil}, cells[string](t, df, "note"))

	opt := DefaultDelimitedReadOptions()
	opt.Factors = true
	df, err = ReadDelimitedFromReader(strings.NewReader(salesTSV), opt)
	require.NoError(t, err)
	assert.Equal(t, Factor, df.Column("region").DType())
	assert.Equal(t, []string{"north", "south"}, df.Column("region").Levels().Labels())
}

func TestInferColumnType(t *testing.T) {
	for _, tc := range []struct {
		vals []string
		want DType
	}{
		{[]string{"1", "-2"}, Int32},
		{[]string{"1", "3000000000"}, UInt64},
		{[]string{"-1", "3000000000"}, Float64},
		{[]string{"1", "2.5"}, Float64},
		{[]string{"TRUE", "NA", "false"}, Bool},
		{[]string{"true", "1"}, String},
		{[]string{"", "NA"}, String},
	} {
		records := make([][]string, len(tc.vals))
		for i, v := range tc.vals {
			records[i] = []string{v}
		}
		assert.Equal(t, tc.want, inferColumnType(records, 0, false), "%v", tc.vals)
	}
}

func TestReadDelimitedOptions(t *testing.T) {
	in := "# a comment\nskip me\n1,x\n2,y\n3,z\n"
	opt := DefaultDelimitedReadOptions()
	opt.Delimiter = ','
	opt.Comment = '#'
	opt.SkipRows = 1
	opt.HasHeader = false
	opt.MaxRows = 2
	opt.ColumnTypes = map[string]DType{"V1": Float64}
	df, err := ReadDelimitedFromReader(strings.NewReader(in), opt)
	require.NoError(t, err)
	assert.Equal(t, []string{"V1", "V2"}, df.Names())
	assert.Equal(t, anys(1.0, 2.0), cells[float64](t, df, "V1"))

	opt.ColumnNames = []string{"n", "s"}
	opt.ColumnTypes = nil
	opt.InferTypes = false
	df, err = ReadDelimitedFromReader(strings.NewReader(in), opt)
	require.NoError(t, err)
	assert.Equal(t, []string{"n", "s"}, df.Names())
	assert.Equal(t, String, df.Column("n").DType())

	empty, err := ReadDelimitedFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, empty.Width())
}

func TestReadDelimitedSchema(t *testing.T) {
	schema, err := ReadSchemaYAML(strings.NewReader("columns:\n  - name: region\n    type: factor\n    levels: [south, north]\n  - name: units\n    type: double\n"))
	require.NoError(t, err)
	opt := DefaultDelimitedReadOptions()
	opt.Schema = schema
	df, err := ReadDelimitedFromReader(strings.NewReader(salesTSV), opt)
	require.NoError(t, err)
	assert.Equal(t, []string{"south", "north"}, df.Column("region").Levels().Labels())
	assert.Equal(t, Float64, df.Column("units").DType())

	bad := "region\tunits\nwest\t1\n"
	_, err = ReadDelimitedFromReader(strings.NewReader(bad), opt)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrParse))
	assert.Contains(t, err.Error(), "line 2, column region")
}

func TestReadDelimitedErrors(t *testing.T) {
	opt := DefaultDelimitedReadOptions()
	opt.ColumnTypes = map[string]DType{"a": Int32}
	_, err := ReadDelimitedFromReader(strings.NewReader("a\tb\n1\tx\nq\ty\n"), opt)
	assert.True(t, IsKind(err, ErrParse))
	assert.Contains(t, err.Error(), "line 3, column a")

	_, err = ReadDelimitedFromReader(strings.NewReader("a\tb\n1\n"))
	assert.True(t, IsKind(err, ErrLengthMismatch))

	_, err = ReadDelimited(filepath.Join(t.TempDir(), "missing.tsv"))
	assert.Error(t, err)
}

func TestWriteDelimited(t *testing.T) {
	df, err := FromColumns(
		NewSeries("k", NewFactorColumn([]string{"a", "b"}, []bool{true, false})),
		NewSeries("v", NewFloat64Column([]float64{0.25, 3})),
		NewSeries("s", NewStringColumn([]string{"has,comma", "x"})),
	)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, df.WriteDelimitedToWriter(&sb))
	assert.Equal(t, "k\tv\ts\na\t0.25\thas,comma\nNA\t3\tx\n", sb.String())

	sb.Reset()
	require.NoError(t, df.WriteDelimitedToWriter(&sb, DelimitedWriteOptions{Delimiter: ',', WriteHeader: false}))
	assert.Equal(t, "a,0.25,\"has,comma\"\nNA,3,x\n", sb.String())
}

func TestDelimitedCompressedRoundTrip(t *testing.T) {
	df, err := ReadDelimitedFromReader(strings.NewReader(salesTSV))
	require.NoError(t, err)
	dir := t.TempDir()

	for _, name := range []string{"plain.tsv", "sales.tsv.gz", "sales.tsv.zst", "sales.tsv.lz4"} {
		path := filepath.Join(dir, name)
		require.NoError(t, df.WriteDelimited(path), name)
		back, err := ReadDelimited(path)
		require.NoError(t, err, name)
		assert.True(t, df.Equal(back), name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "sales.tsv.gz"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, raw[:2])

	assert.Equal(t, Gzip, CompressionFromPath("x.TSV.GZ"))
	assert.Equal(t, Zstd, CompressionFromPath("x.zstd"))
	assert.Equal(t, LZ4, CompressionFromPath("x.lz4"))
	assert.Equal(t, NoCompression, CompressionFromPath("x.csv"))
	assert.Equal(t, "zstd", Zstd.String())
}

func TestReadRows(t *testing.T) {
	schema, err := NewSchema([]string{"k", "n"}, []DType{Factor, Int32})
	require.NoError(t, err)
	df := FromSchema(schema)

	require.NoError(t, df.ReadRows(strings.NewReader("k\tn\nx\t1\ny\tNA\n")))
	require.NoError(t, df.ReadRows(strings.NewReader("x\t3\n"), DelimitedReadOptions{Delimiter: '\t'}))
	assert.Equal(t, 3, df.Height())
	assert.Equal(t, []any{"x", "y", "x"}, cells[string](t, df, "k"))
	assert.Equal(t, []any{int32(1), nil, int32(3)}, cells[int32](t, df, "n"))

	// a failing row leaves the table unchanged
	err = df.ReadRows(strings.NewReader("k\tn\nz\t4\nw\tfour\n"))
	assert.True(t, IsKind(err, ErrParse))
	assert.Equal(t, 3, df.Height())
	assert.Equal(t, []string{"x", "y"}, df.Column("k").Levels().Labels())

	err = df.ReadRows(strings.NewReader("n\tk\n1\tx\n"))
	assert.True(t, IsKind(err, ErrColumnNotFound))
	err = df.ReadRows(strings.NewReader("1\n"), DelimitedReadOptions{Delimiter: '\t'})
	assert.True(t, IsKind(err, ErrLengthMismatch))
}
