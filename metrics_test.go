package rframe

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg))

	_, err := recordTable(t).Query().Collect()
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "rframe_queries_total")
	assert.Contains(t, names, "rframe_rows_out_total")
	assert.Contains(t, names, "rframe_op_duration_seconds")
}

func TestTerminalMetrics(t *testing.T) {
	collects := testutil.ToFloat64(queriesTotal.WithLabelValues("collect"))
	rows := testutil.ToFloat64(rowsOutTotal.WithLabelValues("collect"))

	df := recordTable(t)
	_, err := df.Query().Filter(Eq("int_col", int32(99))).Collect()
	require.NoError(t, err)
	_, err = df.Query().Collect()
	require.NoError(t, err)

	assert.Equal(t, collects+2, testutil.ToFloat64(queriesTotal.WithLabelValues("collect")))
	assert.Equal(t, rows+18, testutil.ToFloat64(rowsOutTotal.WithLabelValues("collect")))
}

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	df := recordTable(t)
	sorted, err := df.Query().Sort("int_col").Collect()
	require.NoError(t, err)
	_, err = sorted.Query().Sort("int_col").Collect()
	require.NoError(t, err)

	assert.NotZero(t, logs.Len())
	for _, e := range logs.All() {
		assert.Equal(t, "rframe", e.LoggerName)
	}
}
