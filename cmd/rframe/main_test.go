package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NerdMeNot/rframe"
)

const salesTSV = "region\tproduct\tamount\n" +
	"north\tpen\t3\n" +
	"south\tpen\t5\n" +
	"north\tink\t7\n" +
	"south\tink\tNA\n" +
	"north\tpen\t1\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestShowCommand(t *testing.T) {
	path := writeFile(t, "sales.tsv", salesTSV)

	out, err := run(t, "show", path, "--head", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "DataFrame: 2 rows × 3 columns")
	assert.Contains(t, out, "amount <Int32>")

	out, err = run(t, "show", path, "--schema", "--factors")
	require.NoError(t, err)
	schema, err := rframe.ReadSchemaYAML(strings.NewReader(out))
	require.NoError(t, err)
	dt, ok := schema.GetDType("region")
	require.True(t, ok)
	assert.Equal(t, rframe.Factor, dt)
}

func TestQueryAggregateCommand(t *testing.T) {
	path := writeFile(t, "sales.tsv", salesTSV)
	dst := filepath.Join(t.TempDir(), "out.tsv")

	_, err := run(t, "query", path, "-g", "region", "--agg", "n=count:amount,total=sum:amount", "-o", dst)
	require.NoError(t, err)

	res, err := rframe.ReadDelimited(dst)
	require.NoError(t, err)
	require.Equal(t, []string{"region", "n", "total"}, res.Names())
	total, valid, err := rframe.Values[int32](res.Column("total"))
	require.NoError(t, err)
	assert.Equal(t, []int32{11, 5}, total)
	assert.Equal(t, []bool{true, true}, valid)
}

func TestQueryExplainCommand(t *testing.T) {
	path := writeFile(t, "sales.tsv", salesTSV)
	out, err := run(t, "query", path, "-s", "region,_amount", "-w", "amount!=NA", "--explain")
	require.NoError(t, err)
	assert.Contains(t, out, "filter: 1 predicate(s)")
	assert.Contains(t, out, "sort: region, -amount -> sort")
}

func TestQueryRunningCommand(t *testing.T) {
	path := writeFile(t, "sales.tsv", salesTSV)
	dst := filepath.Join(t.TempDir(), "out.json")
	_, err := run(t, "query", path, "-g", "region", "-s", "region", "--agg-cols", "amount", "--running", "cum=cumsum:amount", "-o", dst)
	require.NoError(t, err)

	res, err := rframe.ReadJSON(dst, rframe.JSONReadOptions{Columns: []string{"region", "amount", "cum"}})
	require.NoError(t, err)
	cum, valid, err := rframe.Values[int32](res.Column("cum"))
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 10, 11, 5, 0}, cum)
	assert.Equal(t, []bool{true, true, true, true, false}, valid)
}

func TestPivotCommand(t *testing.T) {
	path := writeFile(t, "sales.tsv", salesTSV)
	out, err := run(t, "pivot", path, "-g", "region", "--pivot", "product", "--fill", "amount", "--fn", "sum")
	require.NoError(t, err)
	assert.Contains(t, out, "DataFrame: 2 rows × 3 columns")
	assert.Contains(t, out, "pen <Int32>")
	assert.Contains(t, out, "ink <Int32>")
}

func TestJoinCommand(t *testing.T) {
	left := writeFile(t, "left.tsv", "id\tname\n1\tann\n2\tbob\n3\tcy\n")
	right := writeFile(t, "right.csv", "id,score\n3,9.5\n1,7\n4,1\n")
	dst := filepath.Join(t.TempDir(), "joined.parquet")

	_, err := run(t, "join", left, right, "--on", "id", "--how", "left", "-o", dst)
	require.NoError(t, err)

	res, err := rframe.ReadParquet(dst)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name", "score"}, res.Names())
	ids, _, err := rframe.Values[int32](res.Column("id"))
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, ids)
	_, valid, err := rframe.Values[float64](res.Column("score"))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, valid)
}

func TestLookupCommand(t *testing.T) {
	path := writeFile(t, "sales.tsv", salesTSV)
	out, err := run(t, "lookup", path, "--factors", "--index", "region,product", "--key", "region=north", "--key", "product=pen")
	require.NoError(t, err)
	assert.Contains(t, out, "DataFrame: 2 rows × 3 columns")

	_, err = run(t, "lookup", path, "--index", "region", "--key", "product=pen")
	assert.Error(t, err)
}

func TestConvertCommand(t *testing.T) {
	path := writeFile(t, "sales.tsv", salesTSV)
	dst := filepath.Join(t.TempDir(), "sales.csv.zst")
	_, err := run(t, "convert", path, dst)
	require.NoError(t, err)

	orig, err := rframe.ReadDelimited(path)
	require.NoError(t, err)
	back, err := rframe.ReadDelimited(dst, rframe.DelimitedReadOptions{Delimiter: ',', HasHeader: true, InferTypes: true})
	require.NoError(t, err)
	assert.True(t, orig.Equal(back))
}

func TestMetricsFile(t *testing.T) {
	path := writeFile(t, "sales.tsv", salesTSV)
	metrics := filepath.Join(t.TempDir(), "rframe.prom")
	_, err := run(t, "query", path, "-s", "amount", "--metrics-file", metrics)
	require.NoError(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `rframe_queries_total{op="collect"}`)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("RFRAME_DISPLAY_MAX_ROWS", "1")
	path := writeFile(t, "sales.tsv", salesTSV)
	out, err := run(t, "show", path)
	require.NoError(t, err)
	assert.Contains(t, out, "…")
}

func TestBadInput(t *testing.T) {
	_, err := run(t, "query", filepath.Join(t.TempDir(), "missing.tsv"))
	assert.Error(t, err)

	path := writeFile(t, "sales.tsv", salesTSV)
	_, err = run(t, "query", path, "-g", "region", "--agg", "sum:product")
	assert.Error(t, err)
}
