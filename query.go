package rframe

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ============================================================================
// Query builder
// ============================================================================

// Query is a pending filter / sort / group / select over one table. Builder
// methods record statements; terminals (Collect, Aggregate, Running, Pivot,
// Do) execute them. The first builder error is reported by the terminal.
type Query struct {
	df        *DataFrame
	preds     []Predicate
	sortSet   bool
	sortKeys  []string
	groupCols []string
	aggCols   []string
	aggSet    bool
	selCols   []string
	dropCols  []string
	err       error
}

// Query starts a query over df. The table is not modified.
func (df *DataFrame) Query() *Query {
	return &Query{df: df}
}

// Desc marks a sort column as descending.
func Desc(col string) string { return "_" + col }

// Filter adds predicates; rows must satisfy all of them.
func (q *Query) Filter(preds ...Predicate) *Query {
	q.preds = append(q.preds, preds...)
	return q
}

// Sort orders rows by cols. A leading "_" (see Desc) sorts that column
// descending. With no columns the query sorts by its group columns.
func (q *Query) Sort(cols ...string) *Query {
	q.sortSet = true
	q.sortKeys = append(q.sortKeys, cols...)
	return q
}

// GroupBy partitions rows by cols for Aggregate, Running, Pivot and Do.
func (q *Query) GroupBy(cols ...string) *Query {
	q.groupCols = append(q.groupCols, cols...)
	return q
}

// AggCols restricts the non-key columns visible to aggregations and
// callbacks. By default every non-key column is.
func (q *Query) AggCols(cols ...string) *Query {
	q.aggSet = true
	q.aggCols = append(q.aggCols, cols...)
	return q
}

// Select keeps only the named columns in the output, in the given order.
func (q *Query) Select(cols ...string) *Query {
	q.selCols = append(q.selCols, cols...)
	return q
}

// Drop removes the named columns from the output.
func (q *Query) Drop(cols ...string) *Query {
	q.dropCols = append(q.dropCols, cols...)
	return q
}

// ============================================================================
// Planning
// ============================================================================

type groupMode int

const (
	groupNone groupMode = iota
	groupSortedRuns
	groupReuse
	groupHashed
)

func (m groupMode) String() string {
	switch m {
	case groupSortedRuns:
		return "sorted runs"
	case groupReuse:
		return "existing grouping"
	case groupHashed:
		return "hashed, first-seen order"
	default:
		return "none"
	}
}

// plan is a validated query plus the decisions taken for it.
type plan struct {
	q        *Query
	op       string
	sortCols []string
	sortDesc []bool
	// sortReuse is set when the table already satisfies the sort.
	sortReuse bool
	group     groupMode
	selected  []string
	aggCols   []string

	refs      []rowRef
	filtered  bool
	reordered bool
	keys      rowKeyVec
}

func (q *Query) resolveSortKey(key string) (string, bool) {
	if _, ok := q.df.columns[key]; ok {
		return key, false
	}
	if name, ok := strings.CutPrefix(key, "_"); ok {
		return name, true
	}
	return key, false
}

func checkDistinct(op, what string, names []string) error {
	for i, n := range names {
		if slices.Contains(names[:i], n) {
			return newError(op, ErrNameCollision, "%s column %s listed twice", what, n)
		}
	}
	return nil
}

// decide validates the query and picks the sort and grouping strategies
// without touching any rows.
func (q *Query) decide(op string) (*plan, error) {
	if q.err != nil {
		return nil, q.err
	}
	df := q.df
	p := &plan{q: q, op: op}

	for _, key := range q.sortKeys {
		name, desc := q.resolveSortKey(key)
		if _, err := df.col(op, name); err != nil {
			return nil, err
		}
		p.sortCols = append(p.sortCols, name)
		p.sortDesc = append(p.sortDesc, desc)
	}
	if q.sortSet && len(p.sortCols) == 0 {
		p.sortCols = slices.Clone(q.groupCols)
		p.sortDesc = make([]bool, len(q.groupCols))
	}
	if len(p.sortCols) > maxKeyCols {
		return nil, newError(op, ErrTooManyKeys, "sort on %d columns, at most %d allowed", len(p.sortCols), maxKeyCols)
	}
	if len(q.groupCols) > maxKeyCols {
		return nil, newError(op, ErrTooManyKeys, "group on %d columns, at most %d allowed", len(q.groupCols), maxKeyCols)
	}
	if err := checkDistinct(op, "sort", p.sortCols); err != nil {
		return nil, err
	}
	if err := checkDistinct(op, "group", q.groupCols); err != nil {
		return nil, err
	}
	if _, err := df.cols(op, q.groupCols); err != nil {
		return nil, err
	}
	for _, pred := range q.preds {
		if _, err := df.cols(op, pred.cols); err != nil {
			return nil, err
		}
	}

	// output projection
	if len(q.selCols) > 0 {
		if _, err := df.cols(op, q.selCols); err != nil {
			return nil, err
		}
		if err := checkDistinct(op, "select", q.selCols); err != nil {
			return nil, err
		}
		p.selected = slices.Clone(q.selCols)
	} else {
		p.selected = df.Names()
	}
	if _, err := df.cols(op, q.dropCols); err != nil {
		return nil, err
	}
	p.selected = slices.DeleteFunc(p.selected, func(n string) bool { return slices.Contains(q.dropCols, n) })

	if q.aggSet {
		if _, err := df.cols(op, q.aggCols); err != nil {
			return nil, err
		}
		p.aggCols = slices.Clone(q.aggCols)
	} else {
		p.aggCols = slices.Clone(p.selected)
	}
	for _, g := range q.groupCols {
		if q.aggSet && slices.Contains(p.aggCols, g) {
			return nil, newError(op, ErrNameCollision, "group column %s can't also be an aggregate column", g)
		}
	}
	p.aggCols = slices.DeleteFunc(p.aggCols, func(n string) bool { return slices.Contains(q.groupCols, n) })

	if len(p.sortCols) > 0 {
		p.sortReuse = df.status.IsSortedBy(p.sortCols, p.sortDesc)
	}
	if len(q.groupCols) > 0 {
		switch {
		case len(p.sortCols) > 0:
			if len(q.groupCols) > len(p.sortCols) || !sameSet(p.sortCols[:len(q.groupCols)], q.groupCols) {
				return nil, newError(op, ErrUnsupported, "group columns %v must lead the sort columns %v", q.groupCols, p.sortCols)
			}
			p.group = groupSortedRuns
		case df.status.IsGroupedBy(q.groupCols):
			p.group = groupReuse
		default:
			p.group = groupHashed
		}
	}
	return p, nil
}

// prepare runs the filter and the sort.
func (q *Query) prepare(op string) (*plan, error) {
	p, err := q.decide(op)
	if err != nil {
		return nil, err
	}
	df := q.df
	log := Logger().With(zap.String("op", op))

	n := df.height
	rowAt := identityRow
	if len(q.preds) > 0 {
		rows, err := df.keptRows(op, q.preds)
		if err != nil {
			return nil, err
		}
		p.filtered = len(rows) != df.height
		n = len(rows)
		rowAt = func(i int) int { return rows[i] }
		log.Debug("filter", zap.Int("kept", n), zap.Int("rows", df.height))
	}
	p.refs = make([]rowRef, n)
	for i := range p.refs {
		p.refs[i] = rowRef{src: rowAt(i), flt: i, fss: i}
	}

	if len(p.sortCols) == 0 {
		return p, nil
	}
	if p.sortReuse {
		plannerReuseTotal.WithLabelValues("sort").Inc()
		log.Debug("sort skipped, table already sorted", zap.Strings("cols", p.sortCols))
		return p, nil
	}
	cols, _ := df.cols(op, p.sortCols)
	keys, err := buildKeys(op, p.sortCols, cols, p.sortDesc, n, func(i int) int { return p.refs[i].src })
	if err != nil {
		return nil, err
	}
	keys.sortRefs(p.refs)
	for i := range p.refs {
		p.refs[i].fss = i
	}
	p.keys = keys
	p.reordered = true
	log.Debug("sorted", zap.Strings("cols", p.sortCols), zap.Int("rows", n))
	return p, nil
}

// srcRows returns the source rows in output order.
func (p *plan) srcRows() []int {
	rows := make([]int, len(p.refs))
	for i, r := range p.refs {
		rows[i] = r.src
	}
	return rows
}

// sortStatus derives the sort facts of a result whose rows keep the plan's
// order.
func (p *plan) sortStatus() Status {
	var st Status
	in := p.q.df.status
	switch {
	case len(p.sortCols) > 0:
		st.Sorted = true
		st.SortCols = slices.Clone(p.sortCols)
		st.SortDesc = slices.Clone(p.sortDesc)
	case !p.reordered && in.Sorted:
		st.Sorted = true
		st.SortCols = slices.Clone(in.SortCols)
		st.SortDesc = slices.Clone(in.SortDesc)
	}
	return st
}

// restrict drops facts about columns the result does not carry.
func (st Status) restrict(names []string) Status {
	if st.covered(names) {
		return st
	}
	if st.Sorted {
		k := 0
		for k < len(st.SortCols) && slices.Contains(names, st.SortCols[k]) {
			k++
		}
		st.SortCols, st.SortDesc = st.SortCols[:k], st.SortDesc[:k]
		if k == 0 {
			st.Sorted = false
			st.SortCols, st.SortDesc = nil, nil
		}
	}
	for _, g := range st.GroupCols {
		if !slices.Contains(names, g) {
			st.Grouped, st.Aggregated = false, false
			st.GroupCols, st.AggCols = nil, nil
			break
		}
	}
	return st
}

// ============================================================================
// Partitioning
// ============================================================================

// partition lists the rows of each group contiguously.
type partition struct {
	// rows are source rows in group order.
	rows  []int
	spans []span
}

func (p *partition) firstRows() []int {
	out := make([]int, len(p.spans))
	for g, s := range p.spans {
		out[g] = -1
		if s.n > 0 {
			out[g] = p.rows[s.start]
		}
	}
	return out
}

// partition splits the prepared rows by the group columns. Without group
// columns every row falls into a single group.
func (p *plan) partition() (*partition, error) {
	q := p.q
	if len(q.groupCols) == 0 {
		return &partition{rows: p.srcRows(), spans: []span{{start: 0, n: len(p.refs)}}}, nil
	}

	var keys rowKeyVec
	if p.keys != nil && len(p.sortCols) == len(q.groupCols) {
		keys = p.keys
	} else {
		cols, _ := q.df.cols(p.op, q.groupCols)
		var err error
		keys, err = buildKeys(p.op, q.groupCols, cols, make([]bool, len(cols)), len(p.refs), func(i int) int { return p.refs[i].src })
		if err != nil {
			return nil, err
		}
		// group keys are packed in current ref order
		for i := range p.refs {
			p.refs[i].flt = i
		}
	}

	var spans []span
	switch p.group {
	case groupHashed:
		p.refs, spans = keys.hashGroups(p.refs)
		p.reordered = true
	default:
		if p.group == groupReuse {
			plannerReuseTotal.WithLabelValues("group").Inc()
		}
		spans = keys.runs(p.refs)
	}
	for i := range p.refs {
		p.refs[i].fss = i
	}
	Logger().Debug("grouped", zap.String("op", p.op), zap.Strings("cols", q.groupCols),
		zap.Stringer("mode", p.group), zap.Int("groups", len(spans)))
	return &partition{rows: p.srcRows(), spans: spans}, nil
}

// groupStatus is the status of a result with one row per group.
func (p *plan) groupStatus(aggregated bool, aggNames []string) Status {
	st := Status{}
	if len(p.q.groupCols) == 0 {
		if aggregated {
			return st
		}
		return p.sortStatus()
	}
	if p.group != groupHashed {
		st = p.sortStatus()
	}
	st.Grouped = true
	st.GroupCols = slices.Clone(p.q.groupCols)
	st.Aggregated = aggregated
	st.AggCols = slices.Clone(aggNames)
	return st
}

// ============================================================================
// Terminals
// ============================================================================

func finish(op string, start time.Time, out *DataFrame) {
	observeOp(op, out.height, time.Since(start).Seconds())
}

// Collect materializes the filtered, sorted and projected rows. With group
// columns the rows are arranged so each group is contiguous.
func (q *Query) Collect() (*DataFrame, error) {
	start := time.Now()
	p, err := q.prepare("collect")
	if err != nil {
		return nil, err
	}
	if len(q.groupCols) > 0 {
		if _, err := p.partition(); err != nil {
			return nil, err
		}
	}

	var out *DataFrame
	if !p.filtered && !p.reordered {
		out = NewDataFrame()
		cols := ParallelBuildColumns(len(p.selected), func(i int) *Column {
			return q.df.columns[p.selected[i]].Clone()
		})
		for i, name := range p.selected {
			out.columns[name] = cols[i]
		}
		out.colOrder = slices.Clone(p.selected)
		out.height = q.df.height
	} else {
		out = q.df.gatherRows(p.selected, p.srcRows())
	}

	st := Status{}
	if p.group != groupHashed {
		st = p.sortStatus()
	}
	in := q.df.status
	switch {
	case len(q.groupCols) > 0:
		st.Grouped = true
		st.GroupCols = slices.Clone(q.groupCols)
		st.Aggregated = in.IsAggregatedBy(q.groupCols)
	case !p.reordered && in.Grouped:
		st.Grouped, st.GroupCols, st.Aggregated = true, slices.Clone(in.GroupCols), in.Aggregated
	case in.Aggregated:
		// one row per key survives any filter or reordering
		st.Grouped, st.GroupCols, st.Aggregated = true, slices.Clone(in.GroupCols), true
	}
	if st.Aggregated {
		st.AggCols = slices.Clone(in.AggCols)
	}
	out.status = st.restrict(out.colOrder)
	finish("collect", start, out)
	return out, nil
}

// Explain describes how the query would run, including which steps the
// table's status lets it skip. Nothing is executed.
func (q *Query) Explain() string {
	p, err := q.decide("explain")
	if err != nil {
		return err.Error()
	}
	df := q.df
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query on %d rows × %d columns [%s]\n", df.height, df.Width(), df.status)
	if len(q.preds) > 0 {
		fmt.Fprintf(&sb, "  filter: %d predicate(s)\n", len(q.preds))
	}
	if len(p.sortCols) > 0 {
		keys := make([]string, len(p.sortCols))
		for i, c := range p.sortCols {
			keys[i] = c
			if p.sortDesc[i] {
				keys[i] = "-" + c
			}
		}
		action := "sort"
		if p.sortReuse {
			action = "skip (already sorted)"
		}
		fmt.Fprintf(&sb, "  sort: %s -> %s\n", strings.Join(keys, ", "), action)
	}
	if len(q.groupCols) > 0 {
		fmt.Fprintf(&sb, "  group: %s -> %s\n", strings.Join(q.groupCols, ", "), p.group)
		fmt.Fprintf(&sb, "  aggregate columns: %s\n", strings.Join(p.aggCols, ", "))
	}
	fmt.Fprintf(&sb, "  select: %s\n", strings.Join(p.selected, ", "))
	return sb.String()
}
