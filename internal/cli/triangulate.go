package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/qnwis/qnwis/internal/triangulate"
)

// TriangulateOptions holds flags for the triangulate command.
type TriangulateOptions struct {
	*RootOptions
	engineOptions

	TTL time.Duration
}

// NewTriangulateCommand creates the triangulate command.
func NewTriangulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TriangulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "triangulate <specs-dir>",
		Short: "Run the cross-source consistency battery",
		Long: `Run every registered consistency check against CSV-backed queries.

Checks whose specs are missing or whose queries fail are skipped with a
warning. Issues are findings, not failures: the command exits 0 unless the
run itself aborts.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTriangulate(opts, args[0], cmd)
		},
	}

	addDataFlags(cmd, &opts.engineOptions)
	addCacheFlags(cmd, &opts.engineOptions)
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "cache ttl override for every check query")

	return cmd
}

func runTriangulate(opts *TriangulateOptions, specsDir string, cmd *cobra.Command) error {
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

	var ttl *time.Duration
	if cmd.Flags().Changed("ttl") {
		ttl = &opts.TTL
	}

	bundle, err := triangulate.Run(cmd.Context(), eng, ttl)
	if err != nil {
		return runError(formatter, "running triangulation", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(bundle)
	}
	renderBundle(formatter, bundle)
	return nil
}

// renderBundle prints a battery run for humans, one check per block.
func renderBundle(formatter *OutputFormatter, bundle *triangulate.Bundle) {
	w := formatter.Writer

	fmt.Fprintf(w, "run: %s\n", bundle.RunID)
	fmt.Fprintf(w, "generated: %s\n", bundle.GeneratedAt.Format(time.RFC3339))
	if len(bundle.Licenses) > 0 {
		fmt.Fprintf(w, "licenses: %s\n", strings.Join(bundle.Licenses, ", "))
	}
	fmt.Fprintln(w)

	for _, result := range bundle.Results {
		if len(result.Issues) == 0 {
			fmt.Fprintf(w, "✓ %s\n", result.CheckID)
			continue
		}
		fmt.Fprintf(w, "✗ %s: %d issue(s)\n", result.CheckID, len(result.Issues))
		for _, issue := range result.Issues {
			fmt.Fprintf(w, "    %s\n", issue.Detail)
		}
	}

	for _, warning := range bundle.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
