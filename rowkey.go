package rframe

import (
	"bytes"
	"encoding/binary"
	"math"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// ============================================================================
// Cell keys
// ============================================================================

// cellKeyLen is the width of one encoded cell: a presence byte followed by
// an 8-byte big-endian payload. Encoded cells compare with bytes.Compare in
// the natural order of their type, absent first.
const cellKeyLen = 9

// maxKeyCols bounds the number of columns in a sort, group, join or index key.
const maxKeyCols = 8

func putInt32(dst []byte, v int32) {
	dst[0] = 1
	clear(dst[1:5])
	binary.BigEndian.PutUint32(dst[5:], uint32(v)^(1<<31))
}

func putUint64(dst []byte, v uint64) {
	dst[0] = 1
	binary.BigEndian.PutUint64(dst[1:], v)
}

func putFloat64(dst []byte, v float64) {
	bits := math.Float64bits(v)
	if bits>>63 == 1 {
		bits ^= math.MaxInt64
	}
	putUint64(dst, bits^(1<<63))
}

func putBool(dst []byte, v bool) {
	dst[0] = 1
	clear(dst[1:])
	if v {
		dst[8] = 1
	}
}

func putCode(dst []byte, v uint16) {
	dst[0] = 1
	clear(dst[1:7])
	binary.BigEndian.PutUint16(dst[7:], v)
}

// invertPayload flips bytes 1..8 so a present cell sorts descending.
func invertPayload(dst []byte) {
	for j := 1; j < cellKeyLen; j++ {
		dst[j] ^= 0xFF
	}
}

// cellEncoder writes the key of one row into a cellKeyLen window.
type cellEncoder func(dst []byte, row int)

// keyEncoder binds an encoder for c. The type switch happens once here, not
// per row.
func (c *Column) keyEncoder(desc bool) cellEncoder {
	valid := c.valid
	var put func(dst []byte, i int)
	switch c.dtype {
	case Int32:
		d := c.ints
		put = func(dst []byte, i int) { putInt32(dst, d[i]) }
	case Float64:
		d := c.floats
		put = func(dst []byte, i int) { putFloat64(dst, d[i]) }
	case Bool:
		d := c.bools
		put = func(dst []byte, i int) { putBool(dst, d[i]) }
	case UInt64:
		d := c.sizes
		put = func(dst []byte, i int) { putUint64(dst, d[i]) }
	case Factor:
		d := c.codes
		put = func(dst []byte, i int) { putCode(dst, d[i]) }
	default:
		return nil
	}
	return func(dst []byte, i int) {
		if !valid[i] {
			clear(dst)
			return
		}
		put(dst, i)
		if desc {
			invertPayload(dst)
		}
	}
}

// ============================================================================
// Row keys
// ============================================================================

// RowKey1 holds the key of a single-column key.
type RowKey1 [cellKeyLen]byte

// RowKey2 holds up to two encoded cells.
type RowKey2 [2 * cellKeyLen]byte

// RowKey4 holds up to four encoded cells.
type RowKey4 [4 * cellKeyLen]byte

// RowKey8 holds up to eight encoded cells.
type RowKey8 [8 * cellKeyLen]byte

func (k *RowKey1) bytes() []byte { return k[:] }
func (k *RowKey2) bytes() []byte { return k[:] }
func (k *RowKey4) bytes() []byte { return k[:] }
func (k *RowKey8) bytes() []byte { return k[:] }

type rowKey[K comparable] interface {
	*K
	bytes() []byte
}

func compareRowKeys[K comparable, P rowKey[K]](a, b *K) int {
	return bytes.Compare(P(a).bytes(), P(b).bytes())
}

// keyWidth returns the number of cell slots used for k key columns.
func keyWidth(k int) int {
	switch {
	case k <= 1:
		return 1
	case k == 2:
		return 2
	case k <= 4:
		return 4
	default:
		return 8
	}
}

// strKey is the key of a single String column. The zero value is absent.
type strKey struct {
	present bool
	s       string
}

func compareStrKeys(a, b *strKey) int {
	if a.present != b.present {
		if !a.present {
			return -1
		}
		return 1
	}
	return strings.Compare(a.s, b.s)
}

// ============================================================================
// Key vectors
// ============================================================================

// rowRef is one entry of a query's index map: src is the row in the source
// table, flt the row's position after filtering, fss its position after
// filter, sort and select.
type rowRef struct {
	src, flt, fss int
}

// span is a [start, start+n) range of rows.
type span struct {
	start, n int
}

// joinPairs are matched source rows; -1 marks the side with no match.
type joinPairs struct {
	left, right []int
}

func (p *joinPairs) emit(l, r int) {
	p.left = append(p.left, l)
	p.right = append(p.right, r)
}

// rowKeyVec is a vector of packed row keys. Implementations are instantiated
// once per key width so the hot loops below never switch on it.
type rowKeyVec interface {
	Len() int
	// sortRefs stably sorts refs by the key at each ref's flt position.
	sortRefs(refs []rowRef)
	// runs splits refs whose equal keys are already adjacent.
	runs(refs []rowRef) []span
	// hashGroups reorders refs into contiguous groups in first-seen order.
	hashGroups(refs []rowRef) ([]rowRef, []span)
	mergeJoin(right rowKeyVec, l, r []rowRef, how JoinType) joinPairs
	hashJoin(right rowKeyVec, l, r []rowRef, how JoinType) joinPairs
	// search binary-searches key 0 of probe in this (sorted) vector.
	search(probe rowKeyVec) (int, bool)
	// runIndex maps each distinct key to the run of positions holding it.
	runIndex() func(probe rowKeyVec) (span, bool)
}

type keyVec[K comparable] struct {
	keys []K
	cmp  func(a, b *K) int
}

func (v *keyVec[K]) Len() int { return len(v.keys) }

func (v *keyVec[K]) sortRefs(refs []rowRef) {
	keys, cmp := v.keys, v.cmp
	parallelStableSort(refs, func(a, b rowRef) int {
		return cmp(&keys[a.flt], &keys[b.flt])
	})
}

func (v *keyVec[K]) runs(refs []rowRef) []span {
	var out []span
	start := 0
	for i := 1; i <= len(refs); i++ {
		if i == len(refs) || v.keys[refs[i].flt] != v.keys[refs[start].flt] {
			out = append(out, span{start: start, n: i - start})
			start = i
		}
	}
	return out
}

func (v *keyVec[K]) hashGroups(refs []rowRef) ([]rowRef, []span) {
	ids := make(map[K]int)
	groupOf := make([]int, len(refs))
	var counts []int
	for i, r := range refs {
		g, ok := ids[v.keys[r.flt]]
		if !ok {
			g = len(counts)
			ids[v.keys[r.flt]] = g
			counts = append(counts, 0)
		}
		groupOf[i] = g
		counts[g]++
	}
	spans := make([]span, len(counts))
	next := make([]int, len(counts))
	off := 0
	for g, n := range counts {
		spans[g] = span{start: off, n: n}
		next[g] = off
		off += n
	}
	out := make([]rowRef, len(refs))
	for i, r := range refs {
		g := groupOf[i]
		out[next[g]] = r
		next[g]++
	}
	return out, spans
}

// mergeJoin walks two key-sorted inputs with one cursor each.
func (v *keyVec[K]) mergeJoin(right rowKeyVec, l, r []rowRef, how JoinType) joinPairs {
	o := right.(*keyVec[K])
	lk := func(i int) *K { return &v.keys[l[i].flt] }
	rk := func(j int) *K { return &o.keys[r[j].flt] }

	out := joinPairs{left: make([]int, 0, len(l)), right: make([]int, 0, len(l))}
	j := 0
	matchStart, matchEnd := 0, 0
	for i := range l {
		if i > 0 && *lk(i) == *lk(i - 1) {
			if matchEnd > matchStart {
				for m := matchStart; m < matchEnd; m++ {
					out.emit(l[i].src, r[m].src)
				}
			} else if how != InnerJoin {
				out.emit(l[i].src, -1)
			}
			continue
		}
		for j < len(r) && v.cmp(lk(i), rk(j)) > 0 {
			if how == OuterJoin {
				out.emit(-1, r[j].src)
			}
			j++
		}
		matchStart = j
		for j < len(r) && *lk(i) == *rk(j) {
			out.emit(l[i].src, r[j].src)
			j++
		}
		matchEnd = j
		if matchEnd == matchStart && how != InnerJoin {
			out.emit(l[i].src, -1)
		}
	}
	if how == OuterJoin {
		for ; j < len(r); j++ {
			out.emit(-1, r[j].src)
		}
	}
	return out
}

// hashJoin builds on the right input and probes with the left, keeping left
// order.
func (v *keyVec[K]) hashJoin(right rowKeyVec, l, r []rowRef, how JoinType) joinPairs {
	o := right.(*keyVec[K])
	build := make(map[K][]int, len(r))
	for _, ref := range r {
		k := o.keys[ref.flt]
		build[k] = append(build[k], ref.src)
	}
	Logger().Debug("hash join build", zap.Int("rows", len(r)), zap.Int("keys", len(build)))

	probe := func(start, end int) joinPairs {
		var out joinPairs
		for i := start; i < end; i++ {
			matches := build[v.keys[l[i].flt]]
			for _, m := range matches {
				out.emit(l[i].src, m)
			}
			if len(matches) == 0 && how == LeftJoin {
				out.emit(l[i].src, -1)
			}
		}
		return out
	}
	if !ShouldParallelizeOp(OpJoinProbe, len(l)) {
		return probe(0, len(l))
	}
	parts := ParallelForWithResult(len(l), probe)
	total := 0
	for _, p := range parts {
		total += len(p.left)
	}
	out := joinPairs{left: make([]int, 0, total), right: make([]int, 0, total)}
	for _, p := range parts {
		out.left = append(out.left, p.left...)
		out.right = append(out.right, p.right...)
	}
	return out
}

func (v *keyVec[K]) search(probe rowKeyVec) (int, bool) {
	p := probe.(*keyVec[K])
	return slices.BinarySearchFunc(v.keys, &p.keys[0], func(k K, target *K) int {
		return v.cmp(&k, target)
	})
}

func (v *keyVec[K]) runIndex() func(probe rowKeyVec) (span, bool) {
	idx := make(map[K]span)
	start := 0
	for i := 1; i <= len(v.keys); i++ {
		if i == len(v.keys) || v.keys[i] != v.keys[start] {
			if _, seen := idx[v.keys[start]]; !seen {
				idx[v.keys[start]] = span{start: start, n: i - start}
			}
			start = i
		}
	}
	return func(probe rowKeyVec) (span, bool) {
		p := probe.(*keyVec[K])
		s, ok := idx[p.keys[0]]
		return s, ok
	}
}

// ============================================================================
// Packing
// ============================================================================

func packRowKeys[K comparable, P rowKey[K]](n int, rowAt func(int) int, encs []cellEncoder) rowKeyVec {
	keys := make([]K, n)
	pack := func(start, end int) {
		for i := start; i < end; i++ {
			b := P(&keys[i]).bytes()
			row := rowAt(i)
			for j, enc := range encs {
				enc(b[j*cellKeyLen:(j+1)*cellKeyLen], row)
			}
		}
	}
	if ShouldParallelizeOp(OpKeyPack, n) {
		ParallelFor(n, pack)
	} else {
		pack(0, n)
	}
	return &keyVec[K]{keys: keys, cmp: compareRowKeys[K, P]}
}

func packStringKeys(c *Column, desc bool, n int, rowAt func(int) int) rowKeyVec {
	keys := make([]strKey, n)
	for i := range keys {
		row := rowAt(i)
		if c.valid[row] {
			keys[i] = strKey{present: true, s: c.strs[row]}
		}
	}
	cmp := compareStrKeys
	if desc {
		cmp = func(a, b *strKey) int {
			if a.present != b.present {
				return compareStrKeys(a, b)
			}
			return -compareStrKeys(a, b)
		}
	}
	return &keyVec[strKey]{keys: keys, cmp: cmp}
}

// buildKeys packs the key of rowAt(i) for i in [0, n). A String column may
// only appear as the sole key column.
func buildKeys(op string, names []string, cols []*Column, desc []bool, n int, rowAt func(int) int) (rowKeyVec, error) {
	if len(cols) > maxKeyCols {
		return nil, newError(op, ErrTooManyKeys, "%d key columns, at most %d allowed", len(cols), maxKeyCols)
	}
	for i, c := range cols {
		if c.dtype == String && len(cols) > 1 {
			return nil, newError(op, ErrUnsupported, "string column %s can't be part of a multi-column key", names[i])
		}
	}
	if len(cols) == 1 && cols[0].dtype == String {
		return packStringKeys(cols[0], desc[0], n, rowAt), nil
	}
	encs := make([]cellEncoder, len(cols))
	for i, c := range cols {
		encs[i] = c.keyEncoder(desc[i])
	}
	switch keyWidth(len(cols)) {
	case 1:
		return packRowKeys[RowKey1](n, rowAt, encs), nil
	case 2:
		return packRowKeys[RowKey2](n, rowAt, encs), nil
	case 4:
		return packRowKeys[RowKey4](n, rowAt, encs), nil
	default:
		return packRowKeys[RowKey8](n, rowAt, encs), nil
	}
}

func identityRow(i int) int { return i }
