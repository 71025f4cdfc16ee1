package cli

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/qnwis/qnwis/internal/cache"
	"github.com/qnwis/qnwis/internal/catalog"
	"github.com/qnwis/qnwis/internal/connector"
	"github.com/qnwis/qnwis/internal/engine"
	"github.com/qnwis/qnwis/internal/query"
	"github.com/qnwis/qnwis/internal/registry"
	"github.com/qnwis/qnwis/internal/store"
	"github.com/qnwis/qnwis/internal/transform"
	"github.com/qnwis/qnwis/internal/triangulate"
)

// loadRegistry loads and compiles the spec root for a command, writing the
// failure through the formatter when it cannot. Compile and duplicate
// errors are content failures (exit 1); a missing or empty root is a
// command error (exit 2).
func loadRegistry(formatter *OutputFormatter, specsDir string) (*registry.Registry, error) {
	reg, err := registry.Load(specsDir)
	if err != nil {
		code, exit, details := classifyRegistryError(err)
		_ = formatter.Error(code, err.Error(), details)
		return nil, WrapExitError(exit, "loading specs", err)
	}
	formatter.VerboseLog("Loaded %d query spec(s) from %s", reg.Len(), specsDir)
	return reg, nil
}

func classifyRegistryError(err error) (code string, exit int, details interface{}) {
	var (
		rootErr    *registry.RootNotFoundError
		noSpecs    *registry.NoSpecsError
		dupErr     *registry.DuplicateSpecError
		compileErr *registry.CompileError
	)
	switch {
	case errors.As(err, &rootErr):
		return ErrCodeNotFound, ExitCommandError, nil
	case errors.As(err, &noSpecs):
		return ErrCodeNoSpecs, ExitCommandError, nil
	case errors.As(err, &dupErr):
		return ErrCodeDuplicate, ExitFailure, map[string]interface{}{
			"id": dupErr.ID, "file": dupErr.File, "first_file": dupErr.PrevFile,
		}
	case errors.As(err, &compileErr):
		details := map[string]interface{}{"file": compileErr.File, "field": compileErr.Field}
		if compileErr.Pos.IsValid() {
			details["line"] = compileErr.Pos.Line()
		}
		return ErrCodeCompile, ExitFailure, details
	default:
		return ErrCodeGeneric, ExitCommandError, nil
	}
}

// classifyRunError maps an execution error onto an envelope code and exit
// code. An unknown query id or a rejected ttl is a command error; failures
// past dispatch are content failures.
func classifyRunError(err error) (code string, exit int) {
	var (
		specNotFound *registry.SpecNotFoundError
		ttlErr       *cache.TTLError
		nonCSV       *triangulate.NonCSVSourceError
		paramErr     *connector.ParamError
		notFound     *connector.NotFoundError
		timeoutErr   *connector.TimeoutError
		unavailable  *connector.UnavailableError
		noRows       *connector.NoRowsError
		unknownStep  *transform.UnknownTransformError
		stepErr      *transform.StepError
	)
	switch {
	case errors.As(err, &specNotFound):
		return ErrCodeNotFound, ExitCommandError
	case errors.As(err, &ttlErr):
		return ErrCodeCache, ExitCommandError
	case errors.As(err, &nonCSV):
		return ErrCodeTriangulate, ExitFailure
	case errors.As(err, &paramErr),
		errors.As(err, &notFound),
		errors.As(err, &timeoutErr),
		errors.As(err, &unavailable),
		errors.As(err, &noRows):
		return ErrCodeConnector, ExitFailure
	case errors.As(err, &unknownStep), errors.As(err, &stepErr):
		return ErrCodeTransform, ExitFailure
	default:
		return ErrCodeGeneric, ExitFailure
	}
}

// runError writes err through the formatter and wraps it with its exit
// code.
func runError(formatter *OutputFormatter, message string, err error) error {
	code, exit := classifyRunError(err)
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(exit, message, err)
}

// engineOptions holds the per-command flags that wire an engine.
type engineOptions struct {
	Data     string // CSV data root
	Catalog  string // dataset catalog path, empty for no licenses
	Cache    string // "memory" | "sqlite"
	CacheDB  string // sqlite cache path when Cache is "sqlite"
	Database string // sql connector source database, empty disables
	Degraded bool   // route unserved sources through the CSV connector
}

func addDataFlags(cmd *cobra.Command, o *engineOptions) {
	cmd.Flags().StringVar(&o.Data, "data", "data", "root directory for csv sources")
	cmd.Flags().StringVar(&o.Catalog, "catalog", "", "dataset catalog YAML for license enrichment")
}

func addCacheFlags(cmd *cobra.Command, o *engineOptions) {
	cmd.Flags().StringVar(&o.Cache, "cache", "memory", "cache backend (memory|sqlite)")
	cmd.Flags().StringVar(&o.CacheDB, "cache-db", "qnwis-cache.db", "sqlite cache path (with --cache sqlite)")
}

// buildEngine assembles the engine a command executes through and returns
// a cleanup that closes whatever was opened. Wiring failures are written
// through the formatter and come back as command errors.
func buildEngine(formatter *OutputFormatter, reg *registry.Registry, o *engineOptions) (*engine.Engine, func(), error) {
	stats := cache.NewStats()

	var (
		backend cache.Backend
		closers []func() error
	)
	switch o.Cache {
	case "memory":
		backend = cache.NewMemory(cache.WithMemoryStats(stats))
	case "sqlite":
		sqliteBackend, err := cache.OpenSQLite(o.CacheDB, cache.WithSQLiteStats(stats))
		if err != nil {
			_ = formatter.Error(ErrCodeCache, err.Error(), nil)
			return nil, nil, WrapExitError(ExitCommandError, "opening cache", err)
		}
		backend = sqliteBackend
		closers = append(closers, sqliteBackend.Close)
	default:
		_ = formatter.Error(ErrCodeCache, "invalid cache backend "+o.Cache+": must be memory or sqlite", nil)
		return nil, nil, NewExitError(ExitCommandError, "invalid cache backend")
	}

	cleanup := func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}

	connectors := map[query.Source]connector.Connector{
		query.SourceCSV:       connector.NewCSV(o.Data),
		query.SourceWorldBank: connector.NewWorldBank(),
		query.SourceQatarAPI:  connector.NewQatarAPI(),
	}
	if o.Database != "" {
		db, err := store.Open(o.Database)
		if err != nil {
			cleanup()
			code := ErrCodeGeneric
			if errors.Is(err, fs.ErrNotExist) {
				code = ErrCodeNotFound
			}
			_ = formatter.Error(code, err.Error(), nil)
			return nil, nil, WrapExitError(ExitCommandError, "opening source database", err)
		}
		connectors[query.SourceSQL] = connector.NewSQL(db)
		closers = append(closers, db.Close)
	}

	dispatcher := connector.NewDispatcher(connectors, connector.WithDegradedFallback(o.Degraded))

	cat := catalog.Empty()
	if o.Catalog != "" {
		cat = catalog.Load(o.Catalog)
	}

	eng := engine.New(reg, dispatcher, backend, cat, engine.WithStats(stats))
	return eng, cleanup, nil
}
