package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/qnwis/qnwis/internal/registry"
)

// SpecSummary is one registered query in a listing.
type SpecSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Source string `json:"source"`
	Unit   string `json:"unit,omitempty"`
	Steps  int    `json:"postprocess_steps,omitempty"`
	File   string `json:"file,omitempty"`
}

// SpecsResult is the specs command payload.
type SpecsResult struct {
	Count int           `json:"count"`
	Specs []SpecSummary `json:"specs"`
}

// NewSpecsCommand creates the specs command.
func NewSpecsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "specs <specs-dir>",
		Short:         "List registered queries",
		Long:          "List every query spec under the directory with its source and unit.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpecs(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSpecs(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	reg, err := loadRegistry(formatter, specsDir)
	if err != nil {
		return err
	}

	summaries := summarize(reg)
	if formatter.Format == "json" {
		return formatter.Success(SpecsResult{Count: len(summaries), Specs: summaries})
	}

	for _, s := range summaries {
		line := fmt.Sprintf("%-36s %-11s %s", s.ID, s.Source, s.Unit)
		if s.Title != "" {
			line += "  " + s.Title
		}
		fmt.Fprintln(formatter.Writer, line)
	}
	noun := "queries"
	if len(summaries) == 1 {
		noun = "query"
	}
	fmt.Fprintf(formatter.Writer, "\n%d %s\n", len(summaries), noun)
	return nil
}

// summarize flattens the registry in registration order.
func summarize(reg *registry.Registry) []SpecSummary {
	ids := reg.IDs()
	summaries := make([]SpecSummary, 0, len(ids))
	for _, id := range ids {
		spec, err := reg.Get(id)
		if err != nil {
			continue
		}
		summaries = append(summaries, SpecSummary{
			ID:     spec.ID,
			Title:  spec.Title,
			Source: string(spec.Source),
			Unit:   spec.ExpectedUnit,
			Steps:  len(spec.Postprocess),
			File:   filepath.Base(reg.File(id)),
		})
	}
	return summaries
}
