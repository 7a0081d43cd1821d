package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NerdMeNot/rframe"
)

// queryFlags are the flags shared by commands that build a Query.
type queryFlags struct {
	where   []string
	sort    []string
	groupBy []string
	aggCols []string
	sel     []string
	drop    []string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.where, "where", "w", nil, "Filter rows, e.g. 'age>=18' or 'city!=NA' (repeatable, combined with AND)")
	cmd.Flags().StringSliceVarP(&f.sort, "sort", "s", nil, "Sort columns; prefix with _ for descending")
	cmd.Flags().StringSliceVarP(&f.groupBy, "group-by", "g", nil, "Group columns")
	cmd.Flags().StringSliceVar(&f.aggCols, "agg-cols", nil, "Aggregate columns (default: selection minus group columns)")
	cmd.Flags().StringSliceVar(&f.sel, "select", nil, "Columns to keep")
	cmd.Flags().StringSliceVar(&f.drop, "drop", nil, "Columns to drop")
}

func predicates(exprs []string, df *rframe.DataFrame) ([]rframe.Predicate, error) {
	preds := make([]rframe.Predicate, 0, len(exprs))
	for _, e := range exprs {
		p, err := parseWhere(e, df)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func (f *queryFlags) build(df *rframe.DataFrame) (*rframe.Query, error) {
	preds, err := predicates(f.where, df)
	if err != nil {
		return nil, err
	}
	q := df.Query().Filter(preds...)
	if len(f.sort) > 0 {
		q = q.Sort(f.sort...)
	}
	if len(f.groupBy) > 0 {
		q = q.GroupBy(f.groupBy...)
	}
	if len(f.aggCols) > 0 {
		q = q.AggCols(f.aggCols...)
	}
	if len(f.sel) > 0 {
		q = q.Select(f.sel...)
	}
	if len(f.drop) > 0 {
		q = q.Drop(f.drop...)
	}
	return q, nil
}

// ============================================================================
// show
// ============================================================================

func newShowCmd(a *app) *cobra.Command {
	var head, tail int
	var schema bool
	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Print a table or its schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			df, err := readTable(args[0], cmd.InOrStdin(), a.cfg)
			if err != nil {
				return err
			}
			if schema {
				return df.Schema().WriteYAML(cmd.OutOrStdout())
			}
			switch {
			case head > 0:
				df = df.Head(head)
			case tail > 0:
				df = df.Tail(tail)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), df.String())
			return err
		},
	}
	cmd.Flags().IntVar(&head, "head", 0, "Show only the first N rows")
	cmd.Flags().IntVar(&tail, "tail", 0, "Show only the last N rows")
	cmd.Flags().BoolVar(&schema, "schema", false, "Print the inferred schema as YAML")
	return cmd
}

// ============================================================================
// convert
// ============================================================================

func newConvertCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Convert a table between delimited, JSON and Parquet formats",
		Long: `Convert reads IN and writes OUT, choosing formats by extension
(.tsv, .csv, .json, .parquet, optionally followed by .gz, .zst or .lz4).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			df, err := readTable(args[0], cmd.InOrStdin(), a.cfg)
			if err != nil {
				return err
			}
			a.log.Info("converting", zap.String("from", args[0]), zap.String("to", args[1]), zap.Int("rows", df.Height()))
			return writeTable(df, args[1], cmd.OutOrStdout(), a.cfg)
		},
	}
}

// ============================================================================
// query
// ============================================================================

func newQueryCmd(a *app) *cobra.Command {
	var qf queryFlags
	var aggs, running []string
	var explain, distinct bool
	var out string
	cmd := &cobra.Command{
		Use:   "query FILE",
		Short: "Filter, sort, group and aggregate a table",
		Long: `Query runs a filter/sort/group pipeline over FILE.

With --agg each group becomes one row holding the group columns and one
column per aggregation. Aggregations are written out=fn:col with fn one of
count, hasdata, sum, sumwide, mean, min, max, first, last, truecount, truefreq.

With --running every kept row is emitted with running aggregates added:
cumsum:col, freq:col (share of the group total) or rownum.

Example:
  rframe query sales.tsv -g region --agg n=count:id,total=sum:amount -s _total`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			df, err := readTable(args[0], cmd.InOrStdin(), a.cfg)
			if err != nil {
				return err
			}
			q, err := qf.build(df)
			if err != nil {
				return err
			}
			if explain {
				_, err := fmt.Fprint(cmd.OutOrStdout(), q.Explain())
				return err
			}

			var res *rframe.DataFrame
			switch {
			case len(aggs) > 0 || distinct:
				stmts := make([]rframe.Aggregation, 0, len(aggs))
				for _, s := range aggs {
					spec, err := parseAggSpec(s)
					if err != nil {
						return err
					}
					agg, err := spec.aggregation(df)
					if err != nil {
						return err
					}
					stmts = append(stmts, agg)
				}
				res, err = q.Aggregate(stmts...)
			case len(running) > 0:
				stmts := make([]rframe.RunningAgg, 0, len(running))
				for _, s := range running {
					spec, err := parseAggSpec(s)
					if err != nil {
						return err
					}
					r, err := spec.running(df)
					if err != nil {
						return err
					}
					stmts = append(stmts, r)
				}
				res, err = q.Running(stmts...)
			default:
				res, err = q.Collect()
			}
			if err != nil {
				return err
			}
			a.log.Debug("query done", zap.Int("rows", res.Height()), zap.Stringer("status", res.Status()))
			return writeTable(res, out, cmd.OutOrStdout(), a.cfg)
		},
	}
	qf.register(cmd)
	cmd.Flags().StringSliceVarP(&aggs, "agg", "a", nil, "Aggregations out=fn:col")
	cmd.Flags().StringSliceVar(&running, "running", nil, "Running aggregates out=fn:col")
	cmd.Flags().BoolVar(&distinct, "distinct", false, "Emit the distinct group keys")
	cmd.Flags().BoolVar(&explain, "explain", false, "Print the query plan instead of running it")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the result to this file instead of stdout")
	return cmd
}

// ============================================================================
// pivot
// ============================================================================

func newPivotCmd(a *app) *cobra.Command {
	var qf queryFlags
	var pivot, fill, fn, out string
	cmd := &cobra.Command{
		Use:   "pivot FILE",
		Short: "Spread the levels of a column into one column each",
		Long: `Pivot groups FILE and emits one row per group and one column per level of
the --pivot column. Cells count the group's rows per level, or with --fill
reduce the fill column with --fn (sum, mean, min, max, first, last, count).

Example:
  rframe pivot visits.tsv -g user --pivot page --fill secs --fn sum`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			df, err := readTable(args[0], cmd.InOrStdin(), a.cfg)
			if err != nil {
				return err
			}
			if len(qf.aggCols) == 0 {
				qf.aggCols = []string{pivot}
				if fill != "" {
					qf.aggCols = append(qf.aggCols, fill)
				}
			}
			q, err := qf.build(df)
			if err != nil {
				return err
			}
			spec, err := pivotSpec(df, strings.ToLower(fn), pivot, fill)
			if err != nil {
				return err
			}
			res, err := q.Pivot(spec)
			if err != nil {
				return err
			}
			return writeTable(res, out, cmd.OutOrStdout(), a.cfg)
		},
	}
	qf.register(cmd)
	cmd.Flags().StringVar(&pivot, "pivot", "", "Column whose levels become output columns")
	cmd.Flags().StringVar(&fill, "fill", "", "Column reduced into each cell")
	cmd.Flags().StringVar(&fn, "fn", "", "Reduction for --fill (default sum), or count/any without it")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the result to this file instead of stdout")
	_ = cmd.MarkFlagRequired("pivot")
	return cmd
}

// ============================================================================
// join
// ============================================================================

func newJoinCmd(a *app) *cobra.Command {
	var on, where []string
	var how, out string
	var hash bool
	cmd := &cobra.Command{
		Use:   "join LEFT RIGHT [MORE...]",
		Short: "Join two or more tables on key columns",
		Long: `Join folds the inputs left to right on the --on keys. The default strategy
sorts and merges; --hash builds a hash table on the right side instead and
keeps the left side's row order. Outer joins need the sorted strategy.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jt, err := rframe.ParseJoinType(how)
			if err != nil {
				return err
			}
			j := rframe.NewJoin(jt, on...)
			var first *rframe.DataFrame
			for _, path := range args {
				df, err := readTable(path, cmd.InOrStdin(), a.cfg)
				if err != nil {
					return err
				}
				if first == nil {
					first = df
				}
				j = j.With(df)
			}
			preds, err := predicates(where, first)
			if err != nil {
				return err
			}
			j = j.Filter(preds...)
			if !hash {
				j = j.Sorted()
			}
			res, err := j.Collect()
			if err != nil {
				return err
			}
			return writeTable(res, out, cmd.OutOrStdout(), a.cfg)
		},
	}
	cmd.Flags().StringSliceVar(&on, "on", nil, "Key columns")
	cmd.Flags().StringVar(&how, "how", "inner", "Join type: inner, left or outer")
	cmd.Flags().BoolVar(&hash, "hash", false, "Use a hash join instead of sort-merge")
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Filter every input before joining")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the result to this file instead of stdout")
	_ = cmd.MarkFlagRequired("on")
	return cmd
}

// ============================================================================
// lookup
// ============================================================================

// keyTable builds the one-row probe table for --key col=value pairs.
func keyTable(df *rframe.DataFrame, cols, pairs []string) (*rframe.DataFrame, error) {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid key %q, want col=value", p)
		}
		values[strings.TrimSpace(k)] = v
	}
	key := rframe.NewDataFrame()
	for _, name := range cols {
		raw, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("missing --key for index column %s", name)
		}
		dt, err := inputType(df, name)
		if err != nil {
			return nil, err
		}
		c := rframe.NewEmptyColumn(dt)
		if err := c.AppendStrings(raw); err != nil {
			return nil, err
		}
		if err := key.AddColumn(name, c); err != nil {
			return nil, err
		}
	}
	return key, nil
}

func newLookupCmd(a *app) *cobra.Command {
	var index, keys []string
	cmd := &cobra.Command{
		Use:   "lookup FILE",
		Short: "Print the rows matching a key through an index",
		Example: `  rframe lookup people.tsv --index last,first --key last=Smith --key first=Ann`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			df, err := readTable(args[0], cmd.InOrStdin(), a.cfg)
			if err != nil {
				return err
			}
			if err := df.SetIndex(index...); err != nil {
				return err
			}
			a.log.Debug("index built", zap.Stringer("kind", df.IndexKind()), zap.Strings("cols", df.IndexColumns()))
			key, err := keyTable(df, index, keys)
			if err != nil {
				return err
			}
			rows, err := df.GetIndexed(key)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), rows.ToDataFrame().String())
			return err
		},
	}
	cmd.Flags().StringSliceVar(&index, "index", nil, "Index columns")
	cmd.Flags().StringArrayVar(&keys, "key", nil, "Key value col=value (one per index column)")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

// ============================================================================
// version
// ============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "rframe v%s\n", version)
			fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
