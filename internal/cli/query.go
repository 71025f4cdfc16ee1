package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/qnwis/qnwis/internal/engine"
	"github.com/qnwis/qnwis/internal/query"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	engineOptions

	TTL     time.Duration
	NoStore bool
	Bypass  bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <specs-dir> <query-id>",
		Short: "Execute one query end to end",
		Long: `Execute a registered query through dispatch, postprocess,
verification, and cache.

The cache lives for the duration of the invocation unless --cache sqlite
points it at a file. Without --ttl entries store without expiry;
--no-store and --bypass follow the engine's cache semantics.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], cmd)
		},
	}

	addDataFlags(cmd, &opts.engineOptions)
	addCacheFlags(cmd, &opts.engineOptions)
	cmd.Flags().StringVar(&opts.Database, "db", "", "sqlite database for sql-sourced queries")
	cmd.Flags().BoolVar(&opts.Degraded, "degraded-fallback", false, "route sources with no connector through the csv connector")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "cache ttl override (e.g. 15m, 24h)")
	cmd.Flags().BoolVar(&opts.NoStore, "no-store", false, "do not store the result")
	cmd.Flags().BoolVar(&opts.Bypass, "bypass", false, "skip the cache read, still store")

	return cmd
}

func runQuery(opts *QueryOptions, specsDir, queryID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	reg, err := loadRegistry(formatter, specsDir)
	if err != nil {
		return err
	}

	eng, cleanup, err := buildEngine(formatter, reg, &opts.engineOptions)
	if err != nil {
		return err
	}
	defer cleanup()

	var execOpts []engine.ExecOption
	if cmd.Flags().Changed("ttl") {
		execOpts = append(execOpts, engine.WithTTL(opts.TTL))
	}
	if opts.NoStore {
		execOpts = append(execOpts, engine.WithNoStore())
	}
	if opts.Bypass {
		execOpts = append(execOpts, engine.WithBypass())
	}

	result, err := eng.Execute(cmd.Context(), queryID, execOpts...)
	if err != nil {
		return runError(formatter, "executing query", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	renderResult(formatter, result)
	return nil
}

// renderResult prints a result for humans: a provenance header, warnings,
// then the rows as an aligned table.
func renderResult(formatter *OutputFormatter, result *query.Result) {
	w := formatter.Writer

	fmt.Fprintf(w, "query: %s\n", result.QueryID)
	fmt.Fprintf(w, "source: %s\n", result.Source)
	fmt.Fprintf(w, "unit: %s\n", result.Unit)
	if result.Provenance.DatasetID != "" {
		fmt.Fprintf(w, "dataset: %s\n", result.Provenance.DatasetID)
	}
	if result.Provenance.License != "" {
		fmt.Fprintf(w, "license: %s\n", result.Provenance.License)
	}
	if result.Freshness.AsOfDate != "" {
		line := "asof: " + result.Freshness.AsOfDate
		if result.Freshness.AgeDays != nil {
			line += fmt.Sprintf(" (age %dd)", *result.Freshness.AgeDays)
		}
		fmt.Fprintln(w, line)
	}
	if len(result.Trace) > 0 {
		fmt.Fprintf(w, "trace: %s\n", strings.Join(result.Trace, ", "))
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	fmt.Fprintf(w, "rows: %d\n", len(result.Rows))

	if len(result.Rows) == 0 {
		return
	}
	fmt.Fprintln(w)
	renderRows(w, result.Rows)
}

func renderRows(out io.Writer, rows []query.Row) {
	columns := columnOrder(rows)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = formatCell(row[col])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

// columnOrder is the sorted union of keys across rows. Transform steps can
// add columns mid-run, so later rows may be wider than the first.
func columnOrder(rows []query.Row) []string {
	seen := map[string]bool{}
	var columns []string
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

func formatCell(v interface{}) string {
	switch cell := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(cell, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(cell), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", cell)
	}
}
