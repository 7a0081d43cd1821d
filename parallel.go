package rframe

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// ============================================================================
// Parallel Execution Configuration
// ============================================================================

// ParallelConfig controls parallelization behavior
type ParallelConfig struct {
	// MinRowsForParallel is the minimum rows to justify parallel overhead
	MinRowsForParallel int `mapstructure:"min_rows" yaml:"min_rows"`

	// MorselSize is the number of rows per work unit (default 4096)
	MorselSize int `mapstructure:"morsel_size" yaml:"morsel_size"`

	// MaxWorkers limits the number of pool workers (0 = GOMAXPROCS)
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers"`

	// Enabled controls whether parallelism is used at all
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultParallelConfig returns sensible defaults
func DefaultParallelConfig() *ParallelConfig {
	return &ParallelConfig{
		MinRowsForParallel: 8192,
		MorselSize:         4096,
		MaxWorkers:         0,
		Enabled:            true,
	}
}

var (
	configMu     sync.RWMutex
	globalConfig = DefaultParallelConfig()

	poolMu     sync.Mutex
	workerPool *ants.Pool
)

// SetParallelConfig sets the global parallelization configuration. The worker
// pool is rebuilt lazily with the new size.
func SetParallelConfig(cfg *ParallelConfig) {
	if cfg == nil {
		return
	}
	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()

	poolMu.Lock()
	if workerPool != nil {
		workerPool.Release()
		workerPool = nil
	}
	poolMu.Unlock()
}

// GetParallelConfig returns the current configuration
func GetParallelConfig() *ParallelConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// numWorkers returns the number of workers to use
func (cfg *ParallelConfig) numWorkers() int {
	if cfg.MaxWorkers > 0 {
		return cfg.MaxWorkers
	}
	return runtime.GOMAXPROCS(0)
}

// shouldParallelize determines if an operation should be parallelized
func (cfg *ParallelConfig) shouldParallelize(rows int) bool {
	return cfg.Enabled && rows >= cfg.MinRowsForParallel && cfg.numWorkers() > 1
}

func (cfg *ParallelConfig) morselSize() int {
	if cfg.MorselSize > 0 {
		return cfg.MorselSize
	}
	return 4096
}

// sharedPool returns the ants pool backing all parallel helpers. Submission is
// non-blocking: when every worker is busy the caller does the work itself, so
// nested parallel sections can't starve each other.
func sharedPool(cfg *ParallelConfig) *ants.Pool {
	poolMu.Lock()
	defer poolMu.Unlock()
	if workerPool != nil {
		return workerPool
	}
	p, err := ants.NewPool(cfg.numWorkers(),
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			Logger().Error("worker panic", zap.Any("panic", v))
		}),
	)
	if err != nil {
		Logger().Warn("worker pool unavailable, running sequentially", zap.Error(err))
		return nil
	}
	workerPool = p
	return workerPool
}

// ============================================================================
// Morsel-Based Work Distribution
// ============================================================================

// Morsel represents a range of rows to process
type Morsel struct {
	Start int
	End   int
}

// MorselIterator provides work-stealing morsel distribution
type MorselIterator struct {
	totalRows  int
	morselSize int
	nextStart  int64
}

// NewMorselIterator creates a new morsel iterator
func NewMorselIterator(totalRows, morselSize int) *MorselIterator {
	if morselSize <= 0 {
		morselSize = GetParallelConfig().morselSize()
	}
	return &MorselIterator{totalRows: totalRows, morselSize: morselSize}
}

// Next returns the next morsel, or nil if exhausted.
// Safe for concurrent use.
func (mi *MorselIterator) Next() *Morsel {
	for {
		start := atomic.LoadInt64(&mi.nextStart)
		if int(start) >= mi.totalRows {
			return nil
		}
		end := min(int(start)+mi.morselSize, mi.totalRows)
		if atomic.CompareAndSwapInt64(&mi.nextStart, start, int64(end)) {
			return &Morsel{Start: int(start), End: end}
		}
	}
}

// ============================================================================
// Parallel Execution Helpers
// ============================================================================

// runWorkers calls work on the current goroutine and on up to n-1 pool
// workers, returning once all of them are done.
func runWorkers(cfg *ParallelConfig, n int, work func()) {
	pool := sharedPool(cfg)
	var wg sync.WaitGroup
	if pool != nil {
		for w := 1; w < n; w++ {
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()
				work()
			}); err != nil {
				wg.Done()
				break
			}
		}
	}
	work()
	wg.Wait()
}

// ParallelFor executes fn for each morsel in parallel using work-stealing
func ParallelFor(totalRows int, fn func(start, end int)) {
	cfg := GetParallelConfig()
	if !cfg.shouldParallelize(totalRows) {
		fn(0, totalRows)
		return
	}
	iter := NewMorselIterator(totalRows, cfg.morselSize())
	runWorkers(cfg, cfg.numWorkers(), func() {
		for m := iter.Next(); m != nil; m = iter.Next() {
			fn(m.Start, m.End)
		}
	})
}

// ParallelForWithResult executes fn for each morsel and returns the results
// in morsel order, so concatenating them preserves row order.
func ParallelForWithResult[T any](totalRows int, fn func(start, end int) T) []T {
	cfg := GetParallelConfig()
	if !cfg.shouldParallelize(totalRows) {
		return []T{fn(0, totalRows)}
	}
	size := cfg.morselSize()
	results := make([]T, (totalRows+size-1)/size)
	iter := NewMorselIterator(totalRows, size)
	runWorkers(cfg, cfg.numWorkers(), func() {
		for m := iter.Next(); m != nil; m = iter.Next() {
			results[m.Start/size] = fn(m.Start, m.End)
		}
	})
	return results
}

// ParallelBuildColumns builds multiple columns in parallel, one task per
// column.
func ParallelBuildColumns(n int, builder func(colIdx int) *Column) []*Column {
	cols := make([]*Column, n)
	cfg := GetParallelConfig()
	if !cfg.Enabled || n <= 1 {
		for i := 0; i < n; i++ {
			cols[i] = builder(i)
		}
		return cols
	}
	var next int64 = -1
	runWorkers(cfg, min(n, cfg.numWorkers()), func() {
		for {
			i := int(atomic.AddInt64(&next, 1))
			if i >= n {
				return
			}
			cols[i] = builder(i)
		}
	})
	return cols
}

// ============================================================================
// Cost-Based Parallelization Decisions
// ============================================================================

// OperationType represents different operation types for cost estimation
type OperationType int

const (
	OpFilter OperationType = iota
	OpSort
	OpKeyPack
	OpJoinProbe
	OpGroupAgg
	OpGather
)

// EstimatedCostPerRow returns nanoseconds per row for an operation
func EstimatedCostPerRow(op OperationType) int {
	switch op {
	case OpFilter:
		return 4
	case OpSort:
		return 50
	case OpKeyPack:
		return 8
	case OpJoinProbe:
		return 30
	case OpGroupAgg:
		return 5
	case OpGather:
		return 3
	default:
		return 10
	}
}

// parallelForOp runs fn over [0, n) through ParallelFor when work rows of op
// are worth spreading, and in a single call otherwise.
func parallelForOp(op OperationType, work, n int, fn func(start, end int)) {
	if !ShouldParallelizeOp(op, work) {
		fn(0, n)
		return
	}
	ParallelFor(n, fn)
}

// ShouldParallelizeOp decides based on operation type and data size
func ShouldParallelizeOp(op OperationType, rows int) bool {
	cfg := GetParallelConfig()
	if !cfg.Enabled || cfg.numWorkers() <= 1 {
		return false
	}
	totalWorkNs := rows * EstimatedCostPerRow(op)
	// ~5us of scheduling overhead per worker
	overheadNs := 5000 * cfg.numWorkers()
	return totalWorkNs > overheadNs*10
}
