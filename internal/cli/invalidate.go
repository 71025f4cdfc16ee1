package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qnwis/qnwis/internal/cache"
	"github.com/qnwis/qnwis/internal/catalog"
	"github.com/qnwis/qnwis/internal/connector"
	"github.com/qnwis/qnwis/internal/engine"
)

// InvalidateResult is the invalidate command payload.
type InvalidateResult struct {
	QueryID string `json:"query_id"`
	Deleted int    `json:"deleted"`
}

// InvalidateOptions holds flags for the invalidate command.
type InvalidateOptions struct {
	*RootOptions
	engineOptions
}

// NewInvalidateCommand creates the invalidate command.
func NewInvalidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvalidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invalidate <specs-dir> <query-id>",
		Short: "Drop cached entries for a query",
		Long: `Drop every cached entry for a query id, all param variants included.

Only useful with --cache sqlite; a memory cache does not outlive the
invocation that filled it.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvalidate(opts, args[0], args[1], cmd)
		},
	}

	addCacheFlags(cmd, &opts.engineOptions)

	return cmd
}

func runInvalidate(opts *InvalidateOptions, specsDir, queryID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	reg, err := loadRegistry(formatter, specsDir)
	if err != nil {
		return err
	}

	stats := cache.NewStats()
	var backend cache.Backend
	var closeBackend func() error
	switch opts.Cache {
	case "memory":
		backend = cache.NewMemory(cache.WithMemoryStats(stats))
	case "sqlite":
		sqliteBackend, err := cache.OpenSQLite(opts.CacheDB, cache.WithSQLiteStats(stats))
		if err != nil {
			_ = formatter.Error(ErrCodeCache, err.Error(), nil)
			return WrapExitError(ExitCommandError, "opening cache", err)
		}
		backend = sqliteBackend
		closeBackend = sqliteBackend.Close
	default:
		_ = formatter.Error(ErrCodeCache, "invalid cache backend "+opts.Cache+": must be memory or sqlite", nil)
		return NewExitError(ExitCommandError, "invalid cache backend")
	}
	if closeBackend != nil {
		defer closeBackend()
	}

	// No query runs here, so an empty dispatcher suffices.
	eng := engine.New(reg, connector.NewDispatcher(nil), backend, catalog.Empty(), engine.WithStats(stats))

	deleted, err := eng.Invalidate(cmd.Context(), queryID)
	if err != nil {
		return runError(formatter, "invalidating cache", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(InvalidateResult{QueryID: queryID, Deleted: deleted})
	}
	if deleted == 0 {
		fmt.Fprintf(formatter.Writer, "no cache entries for %s\n", queryID)
		return nil
	}
	noun := "entries"
	if deleted == 1 {
		noun = "entry"
	}
	fmt.Fprintf(formatter.Writer, "✓ dropped %d cache %s for %s\n", deleted, noun, queryID)
	return nil
}
