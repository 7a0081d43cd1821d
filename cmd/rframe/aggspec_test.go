package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NerdMeNot/rframe"
)

func sampleTable(t *testing.T) *rframe.DataFrame {
	t.Helper()
	df, err := rframe.FromColumns(
		rframe.NewSeries("g", rframe.NewFactorColumn([]string{"a", "b", "a", "b"}, nil)),
		rframe.NewSeries("x", rframe.NewInt32ColumnNA([]int32{1, 2, 3, 0}, []bool{true, true, true, false})),
		rframe.NewSeries("y", rframe.NewFloat64Column([]float64{0.5, 1.5, 2.5, 3.5})),
		rframe.NewSeries("ok", rframe.NewBoolColumn([]bool{true, false, true, true})),
		rframe.NewSeries("name", rframe.NewStringColumn([]string{"ann", "bob", "cy", "dee"})),
	)
	require.NoError(t, err)
	return df
}

func TestParseAggSpec(t *testing.T) {
	tests := []struct {
		in   string
		want aggSpec
	}{
		{"total=sum:x", aggSpec{out: "total", fn: "sum", in: "x"}},
		{"sum:x", aggSpec{out: "sum_x", fn: "sum", in: "x"}},
		{" n = COUNT : x ", aggSpec{out: "n", fn: "count", in: "x"}},
		{"rownum", aggSpec{out: "rownum", fn: "rownum"}},
		{"i=rownum", aggSpec{out: "i", fn: "rownum"}},
	}
	for _, tt := range tests {
		got, err := parseAggSpec(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseAggSpec("=sum:x")
	assert.Error(t, err)
	_, err = parseAggSpec("")
	assert.Error(t, err)
}

func TestAggregationDispatch(t *testing.T) {
	df := sampleTable(t)

	for _, s := range []string{"sum:x", "mean:y", "min:name", "max:g", "first:ok", "truefreq:ok", "count:name", "hasdata:x"} {
		spec, err := parseAggSpec(s)
		require.NoError(t, err)
		_, err = spec.aggregation(df)
		assert.NoError(t, err, s)
	}
	for _, s := range []string{"sum:name", "truecount:x", "min:ok", "sum:missing", "sum"} {
		spec, err := parseAggSpec(s)
		require.NoError(t, err)
		_, err = spec.aggregation(df)
		assert.Error(t, err, s)
	}
}

func TestAggregateThroughSpecs(t *testing.T) {
	df := sampleTable(t)
	var aggs []rframe.Aggregation
	for _, s := range []string{"n=count:x", "total=sum:x"} {
		spec, err := parseAggSpec(s)
		require.NoError(t, err)
		agg, err := spec.aggregation(df)
		require.NoError(t, err)
		aggs = append(aggs, agg)
	}
	res, err := df.Query().GroupBy("g").Aggregate(aggs...)
	require.NoError(t, err)
	require.Equal(t, 2, res.Height())

	n, _, err := rframe.Values[uint64](res.Column("n"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1}, n)
	total, _, err := rframe.Values[int32](res.Column("total"))
	require.NoError(t, err)
	assert.Equal(t, []int32{4, 2}, total)
}

func TestRunningDispatch(t *testing.T) {
	df := sampleTable(t)
	for _, s := range []string{"cumsum:x", "freq:y", "i=rownum"} {
		spec, err := parseAggSpec(s)
		require.NoError(t, err)
		_, err = spec.running(df)
		assert.NoError(t, err, s)
	}
	spec, err := parseAggSpec("cumsum:name")
	require.NoError(t, err)
	_, err = spec.running(df)
	assert.Error(t, err)
}

func TestPivotSpec(t *testing.T) {
	df := sampleTable(t)
	for _, tc := range []struct{ fn, fill string }{
		{"", ""}, {"count", ""}, {"any", ""}, {"", "x"}, {"mean", "y"}, {"first", "name"}, {"count", "ok"},
	} {
		_, err := pivotSpec(df, tc.fn, "g", tc.fill)
		assert.NoError(t, err, "%s/%s", tc.fn, tc.fill)
	}
	_, err := pivotSpec(df, "sum", "g", "")
	assert.Error(t, err)
	_, err = pivotSpec(df, "sum", "g", "name")
	assert.Error(t, err)
}

func TestParseWhere(t *testing.T) {
	df := sampleTable(t)
	count := func(expr string) int {
		t.Helper()
		p, err := parseWhere(expr, df)
		require.NoError(t, err, expr)
		res, err := df.Query().Filter(p).Collect()
		require.NoError(t, err, expr)
		return res.Height()
	}

	assert.Equal(t, 2, count("x>=2"))
	assert.Equal(t, 1, count("x = NA"))
	assert.Equal(t, 3, count("x!=NA"))
	assert.Equal(t, 2, count("g=a"))
	assert.Equal(t, 2, count("g!=a"))
	assert.Equal(t, 1, count("y<1"))
	assert.Equal(t, 3, count("ok==true"))
	assert.Equal(t, 1, count("name>cy"))

	for _, bad := range []string{"x", "x>>2", "missing=1", "x=abc", "ok<true", "x<NA"} {
		_, err := parseWhere(bad, df)
		assert.Error(t, err, bad)
	}
}
