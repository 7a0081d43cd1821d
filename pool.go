package rframe

import (
	"sync"
)

// BoolMask is a pooled boolean slice used as the kept-rows mask of a filter.
// Call Release() when done to return it to the pool.
type BoolMask struct {
	Data []bool
	pool *sync.Pool
}

// Release returns the mask to the pool for reuse
func (m *BoolMask) Release() {
	if m.pool != nil && m.Data != nil {
		m.pool.Put(m)
	}
}

// power-of-2 buckets, 2^0 to 2^31
var (
	boolPools [32]*sync.Pool
	poolInit  sync.Once
)

func initPools() {
	poolInit.Do(func() {
		for i := range boolPools {
			size := 1 << i
			boolPools[i] = &sync.Pool{
				New: func() any {
					return &BoolMask{Data: make([]bool, size)}
				},
			}
		}
	})
}

// getBucket returns the pool bucket index for a given size
func getBucket(size int) int {
	if size <= 0 {
		return 0
	}
	bucket := 0
	for n := size - 1; n > 0; n >>= 1 {
		bucket++
	}
	return min(bucket, 31)
}

// getBoolMask gets a mask of exactly size elements, all set to fill.
func getBoolMask(size int, fill bool) *BoolMask {
	initPools()
	pool := boolPools[getBucket(size)]
	mask := pool.Get().(*BoolMask)
	mask.pool = pool
	if cap(mask.Data) < size {
		mask.Data = make([]bool, size)
	}
	mask.Data = mask.Data[:size]
	ParallelFor(size, func(start, end int) {
		for i := start; i < end; i++ {
			mask.Data[i] = fill
		}
	})
	return mask
}
