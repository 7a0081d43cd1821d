package rframe

import (
	"fmt"
	"slices"
	"strings"
)

// Status records the row-order facts a table is known to satisfy. The
// planner consults it to skip sorts and regrouping, and it is rewritten by
// every operation that could invalidate it.
type Status struct {
	// SortCols and SortDesc describe the current sort order, if Sorted.
	SortCols []string
	SortDesc []bool
	// GroupCols are the columns whose equal values sit in contiguous runs,
	// if Grouped.
	GroupCols []string
	// AggCols are the value columns of the last aggregation.
	AggCols []string

	Sorted     bool
	Grouped    bool
	Aggregated bool
}

func (s Status) clone() Status {
	return Status{
		SortCols:   slices.Clone(s.SortCols),
		SortDesc:   slices.Clone(s.SortDesc),
		GroupCols:  slices.Clone(s.GroupCols),
		AggCols:    slices.Clone(s.AggCols),
		Sorted:     s.Sorted,
		Grouped:    s.Grouped,
		Aggregated: s.Aggregated,
	}
}

// IsSortedBy reports whether the table is sorted by cols with the given
// directions as a prefix of its sort key. A nil desc means all ascending.
func (s Status) IsSortedBy(cols []string, desc []bool) bool {
	if !s.Sorted || len(cols) > len(s.SortCols) {
		return false
	}
	for i, c := range cols {
		if s.SortCols[i] != c {
			return false
		}
		want := false
		if desc != nil {
			want = desc[i]
		}
		if s.SortDesc[i] != want {
			return false
		}
	}
	return true
}

// IsGroupedBy reports whether rows with equal values of cols are contiguous.
// A sort on any ordering of cols as a prefix implies it.
func (s Status) IsGroupedBy(cols []string) bool {
	if len(cols) == 0 {
		return false
	}
	if s.Grouped && sameSet(s.GroupCols, cols) {
		return true
	}
	return s.Sorted && len(cols) <= len(s.SortCols) && sameSet(s.SortCols[:len(cols)], cols)
}

// IsAggregatedBy reports whether the table holds one row per distinct value
// of cols.
func (s Status) IsAggregatedBy(cols []string) bool {
	return s.Aggregated && sameSet(s.GroupCols, cols)
}

// mentions reports whether any recorded fact depends on column name.
func (s Status) mentions(name string) bool {
	return slices.Contains(s.SortCols, name) || slices.Contains(s.GroupCols, name)
}

// covered reports whether every column the status depends on is in names.
func (s Status) covered(names []string) bool {
	for _, c := range s.SortCols {
		if !slices.Contains(names, c) {
			return false
		}
	}
	for _, c := range s.GroupCols {
		if !slices.Contains(names, c) {
			return false
		}
	}
	return true
}

func (s Status) String() string {
	var parts []string
	if s.Sorted {
		keys := make([]string, len(s.SortCols))
		for i, c := range s.SortCols {
			keys[i] = c
			if s.SortDesc[i] {
				keys[i] = "-" + c
			}
		}
		parts = append(parts, fmt.Sprintf("sorted(%s)", strings.Join(keys, ",")))
	}
	if s.Grouped {
		parts = append(parts, fmt.Sprintf("grouped(%s)", strings.Join(s.GroupCols, ",")))
	}
	if s.Aggregated {
		parts = append(parts, fmt.Sprintf("aggregated(%s)", strings.Join(s.AggCols, ",")))
	}
	if len(parts) == 0 {
		return "unordered"
	}
	return strings.Join(parts, " ")
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		if !slices.Contains(b, x) {
			return false
		}
	}
	return true
}
