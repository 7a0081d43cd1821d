package rframe

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// ParallelConfig Tests
// ============================================================================

func withParallelConfig(t *testing.T, cfg *ParallelConfig) {
	t.Helper()
	original := GetParallelConfig()
	t.Cleanup(func() { SetParallelConfig(original) })
	SetParallelConfig(cfg)
}

func TestDefaultParallelConfig(t *testing.T) {
	cfg := DefaultParallelConfig()
	require.NotNil(t, cfg)
	assert.Positive(t, cfg.MinRowsForParallel)
	assert.Positive(t, cfg.MorselSize)
	assert.True(t, cfg.Enabled)
}

func TestSetGetParallelConfig(t *testing.T) {
	custom := &ParallelConfig{MinRowsForParallel: 1000, MorselSize: 512, MaxWorkers: 2}
	withParallelConfig(t, custom)
	assert.Same(t, custom, GetParallelConfig())

	SetParallelConfig(nil)
	assert.Same(t, custom, GetParallelConfig())
}

func TestParallelConfigDecisions(t *testing.T) {
	cfg := &ParallelConfig{MinRowsForParallel: 1000, MaxWorkers: 4, Enabled: true}
	assert.Equal(t, 4, cfg.numWorkers())
	assert.False(t, cfg.shouldParallelize(500))
	assert.True(t, cfg.shouldParallelize(2000))
	assert.Equal(t, 4096, cfg.morselSize())

	cfg.MaxWorkers = 1
	assert.False(t, cfg.shouldParallelize(2000))
	cfg.MaxWorkers = 0
	assert.Positive(t, cfg.numWorkers())
	cfg.Enabled = false
	assert.False(t, cfg.shouldParallelize(2000))

	assert.Greater(t, EstimatedCostPerRow(OpSort), EstimatedCostPerRow(OpFilter))
	withParallelConfig(t, &ParallelConfig{Enabled: true, MaxWorkers: 4})
	assert.False(t, ShouldParallelizeOp(OpFilter, 100))
	assert.True(t, ShouldParallelizeOp(OpSort, 1_000_000))
}

// ============================================================================
// Morsel Iterator Tests
// ============================================================================

func TestMorselIterator(t *testing.T) {
	mi := NewMorselIterator(25, 10)
	assert.Equal(t, &Morsel{Start: 0, End: 10}, mi.Next())
	assert.Equal(t, &Morsel{Start: 10, End: 20}, mi.Next())
	assert.Equal(t, &Morsel{Start: 20, End: 25}, mi.Next())
	assert.Nil(t, mi.Next())

	assert.Nil(t, NewMorselIterator(0, 10).Next())
	assert.Positive(t, NewMorselIterator(100, 0).morselSize)
}

// ============================================================================
// Parallel Helper Tests
// ============================================================================

func TestParallelFor(t *testing.T) {
	withParallelConfig(t, &ParallelConfig{MinRowsForParallel: 100, MorselSize: 64, MaxWorkers: 4, Enabled: true})

	const n = 10_000
	seen := make([]int32, n)
	var total int64
	ParallelFor(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
		atomic.AddInt64(&total, int64(end-start))
	})
	assert.Equal(t, int64(n), total)
	for i, c := range seen {
		require.Equal(t, int32(1), c, "row %d", i)
	}

	// below the threshold the caller runs one chunk
	var calls int
	ParallelFor(50, func(start, end int) { calls++ })
	assert.Equal(t, 1, calls)
}

func TestParallelForWithResultKeepsOrder(t *testing.T) {
	withParallelConfig(t, &ParallelConfig{MinRowsForParallel: 10, MorselSize: 7, MaxWorkers: 3, Enabled: true})

	parts := ParallelForWithResult(100, func(start, end int) []int {
		out := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			out = append(out, i)
		}
		return out
	})
	var flat []int
	for _, p := range parts {
		flat = append(flat, p...)
	}
	require.Len(t, flat, 100)
	for i, v := range flat {
		assert.Equal(t, i, v)
	}
}

func TestParallelForOp(t *testing.T) {
	withParallelConfig(t, &ParallelConfig{MinRowsForParallel: 10, MorselSize: 16, MaxWorkers: 4, Enabled: true})

	// too little work runs as one call
	var calls atomic.Int32
	parallelForOp(OpFilter, 100, 100, func(start, end int) {
		calls.Add(1)
		assert.Equal(t, 0, start)
		assert.Equal(t, 100, end)
	})
	assert.Equal(t, int32(1), calls.Load())

	seen := make([]int32, 1000)
	parallelForOp(OpSort, 1_000_000, len(seen), func(start, end int) {
		for i := start; i < end; i++ {
			seen[i]++
		}
	})
	for i, n := range seen {
		require.Equal(t, int32(1), n, "row %d", i)
	}
}

func TestParallelBuildColumns(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		withParallelConfig(t, &ParallelConfig{MaxWorkers: 3, Enabled: enabled})
		cols := ParallelBuildColumns(5, func(i int) *Column {
			return NewInt32Column([]int32{int32(i)})
		})
		require.Len(t, cols, 5)
		for i, c := range cols {
			v, err := Get[int32](c, 0)
			require.NoError(t, err)
			assert.Equal(t, Some(int32(i)), v)
		}
	}
}

func TestForEachTask(t *testing.T) {
	withParallelConfig(t, &ParallelConfig{MaxWorkers: 4, Enabled: true})
	var hits [32]int32
	forEachTask(len(hits), func(i int) { atomic.AddInt32(&hits[i], 1) })
	for i, h := range hits {
		assert.Equal(t, int32(1), h, "task %d", i)
	}
}

func TestBoolMaskPool(t *testing.T) {
	assert.Equal(t, 0, getBucket(1))
	assert.Equal(t, 3, getBucket(8))
	assert.Equal(t, 4, getBucket(9))

	m := getBoolMask(9, true)
	require.Len(t, m.Data, 9)
	for _, b := range m.Data {
		assert.True(t, b)
	}
	m.Release()
	m = getBoolMask(12, false)
	assert.Len(t, m.Data, 12)
	for _, b := range m.Data {
		assert.False(t, b)
	}
	m.Release()
}
