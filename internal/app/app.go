// Package app assembles the pipeline and its collaborators from configuration.
// Both the HTTP server and the nlsql CLI are built on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seanankenbruck/analytics-sql-ai/internal/clarification"
	"github.com/seanankenbruck/analytics-sql-ai/internal/config"
	"github.com/seanankenbruck/analytics-sql-ai/internal/executor"
	"github.com/seanankenbruck/analytics-sql-ai/internal/guardrail"
	"github.com/seanankenbruck/analytics-sql-ai/internal/history"
	"github.com/seanankenbruck/analytics-sql-ai/internal/llm"
	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
	"github.com/seanankenbruck/analytics-sql-ai/internal/pipeline"
	"github.com/seanankenbruck/analytics-sql-ai/internal/quality"
	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
)

// lockLease outlives a clarifier call including its retries
const lockLease = 2 * time.Minute

// App is a fully wired pipeline together with the resources it owns
type App struct {
	Config   *config.Config
	Pipeline *pipeline.Orchestrator
	Registry *schema.Registry
	Health   *observability.HealthChecker
	Executor executor.Executor

	db        *sql.DB
	pool      *pgxpool.Pool
	schemaDB  *sql.DB
	historyDB *history.PostgresStore
	redis     *redis.Client
	watcher   *schema.Watcher
	refresher *schema.Refresher
	logger    *observability.Logger
}

// Build connects every collaborator named in cfg. The returned App must be
// closed by the caller; on error everything opened so far is released.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	SetLogLevel(cfg.Log.Level)

	a := &App{
		Config: cfg,
		Health: observability.NewHealthChecker(),
		logger: observability.NewLogger("app"),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err = a.openExecutor(ctx); err != nil {
		return nil, err
	}
	if err = a.loadSchema(ctx); err != nil {
		return nil, err
	}

	claude, err := llm.NewClaudeClient(cfg.Claude.APIKey, cfg.Claude.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	if cfg.Claude.BaseURL != "" {
		claude.WithBaseURL(cfg.Claude.BaseURL)
	}
	if cfg.Claude.Timeout > 0 {
		claude.WithTimeout(cfg.Claude.Timeout)
	}
	client := llm.NewCircuitBreakerClient(claude, "claude", llm.DefaultCircuitBreakerConfig())
	a.Health.Register("llm_service", observability.LLMHealthCheck(claude.Ping))

	deps := pipeline.Dependencies{
		Catalogs:  a.Registry,
		Generator: llm.NewSQLGenerator(client, cfg.Dialect()),
		Executor:  a.Executor,
		Explainer: llm.NewLLMExplainer(client),
		Machine:   clarification.NewMachine(cfg.Pipeline.StrictMode),
		Validator: guardrail.NewValidator(),
		Gate:      quality.NewGate(),
	}
	if cfg.Pipeline.UseClarifier {
		deps.Clarifier = llm.NewLLMClarifier(client)
	}

	deps.History, err = a.openHistory()
	if err != nil {
		return nil, err
	}
	deps.Store, deps.Locker, err = a.openSessions(ctx)
	if err != nil {
		return nil, err
	}

	a.Pipeline, err = pipeline.New(deps, pipeline.Config{
		Strict:               cfg.Pipeline.StrictMode,
		DefaultLimit:         cfg.Pipeline.DefaultLimit,
		CarryContext:         cfg.Pipeline.CarryContext,
		Examples:             history.DefaultExamples,
		AllowedFilterColumns: cfg.Pipeline.AllowedFilterColumns,
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info(ctx, "Pipeline assembled", map[string]interface{}{
		"driver":         cfg.Database.Driver,
		"schema_source":  cfg.Schema.Source,
		"schema_version": a.Registry.Current().Version(),
		"strict":         cfg.Pipeline.StrictMode,
		"history":        cfg.History.Enabled,
		"redis":          cfg.Redis.Enabled,
	})
	return a, nil
}

func (a *App) openExecutor(ctx context.Context) error {
	cfg := a.Config.Database
	opts := executor.Options{MaxRows: cfg.MaxRows, Timeout: cfg.QueryTimeout}

	var (
		next executor.Executor
		ping func(context.Context) error
	)
	switch cfg.Driver {
	case config.DriverPgx:
		pool, err := executor.NewPgxPool(ctx, cfg.DSN)
		if err != nil {
			return err
		}
		a.pool = pool
		exec := executor.NewPgxExecutor(pool, opts)
		next, ping = exec, exec.Ping
	default:
		db, err := executor.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return err
		}
		a.db = db
		exec := executor.NewSQLExecutor(db, opts)
		next, ping = exec, exec.Ping
	}

	a.Executor = executor.NewCircuitBreakerExecutor(next, "analytics-db")
	a.Health.Register("database", observability.DatabaseHealthCheck(ping))
	return nil
}

func (a *App) loadSchema(ctx context.Context) error {
	cfg := a.Config

	var source schema.Source
	switch cfg.Schema.Source {
	case config.SchemaSourcePostgres:
		db := a.db
		if db == nil {
			// pgx pools are not database/sql handles
			var err error
			if db, err = executor.Open(config.DriverPostgres, cfg.Database.DSN); err != nil {
				return err
			}
			a.schemaDB = db
		}
		dialect, name := cfg.Dialect(), cfg.Schema.DBName
		source = func(ctx context.Context) (*schema.Catalog, error) {
			return schema.Introspect(ctx, db, dialect, name)
		}
		var err error
		if source, err = schema.ExcludeTables(source, cfg.Schema.ExcludeTables); err != nil {
			return err
		}
	default:
		source = schema.FileSource(cfg.Schema.Path)
	}

	catalog, err := source(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	a.Registry = schema.NewRegistry(catalog, source)
	a.Health.Register("schema", observability.SchemaHealthCheck(func() (string, int) {
		current := a.Registry.Current()
		if current == nil {
			return "", 0
		}
		return current.Version(), len(current.TableNames())
	}))

	if cfg.Schema.Watch && cfg.Schema.Source == config.SchemaSourceFile {
		w, err := schema.NewWatcher(cfg.Schema.Path, a.Registry)
		if err != nil {
			return fmt.Errorf("failed to watch schema: %w", err)
		}
		a.watcher = w
		w.Start()
	}
	if cfg.Schema.RefreshInterval > 0 {
		a.refresher = schema.NewRefresher(a.Registry, cfg.Schema.RefreshInterval)
		if err := a.refresher.Start(context.Background()); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) openHistory() (pipeline.HistoryStore, error) {
	cfg := a.Config.History
	embedder := llm.NewSimpleEmbedder()
	if !cfg.Enabled {
		return history.NewMemoryStore(embedder).WithMinSimilarity(cfg.MinSimilarity), nil
	}

	db, err := history.Open(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	a.historyDB = history.NewPostgresStore(db, embedder).WithMinSimilarity(cfg.MinSimilarity)
	a.Health.Register("history", observability.HistoryHealthCheck(a.historyDB.Ping))
	return a.historyDB, nil
}

func (a *App) openSessions(ctx context.Context) (clarification.Store, clarification.Locker, error) {
	cfg := a.Config
	if !cfg.Redis.Enabled {
		return clarification.NewMemoryStore(cfg.Pipeline.SessionTTL), clarification.NewLocalLocker(), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.redis = rdb
	a.Health.Register("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))

	return clarification.NewRedisStore(rdb, cfg.Pipeline.SessionTTL),
		clarification.NewRedisLocker(rdb, lockLease), nil
}

// Close releases every connection the App opened
func (a *App) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.refresher != nil {
		a.refresher.Stop()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.historyDB != nil {
		a.historyDB.Close()
	}
	if a.schemaDB != nil {
		a.schemaDB.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// SetLogLevel applies a LOG_LEVEL value to loggers created afterwards
func SetLogLevel(level string) {
	observability.SetDefaultLevel(observability.ParseLevel(level))
}
