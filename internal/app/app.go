// Package app assembles a running agent from a config.Config: database,
// discovery providers, registry, query pipeline, snapshots and metrics.
package app

import (
	"context"
	"sync"

	"github.com/koustreak/dataagent/internal/agent"
	"github.com/koustreak/dataagent/internal/config"
	"github.com/koustreak/dataagent/internal/database"
	_ "github.com/koustreak/dataagent/internal/database/mysql"
	_ "github.com/koustreak/dataagent/internal/database/postgres"
	_ "github.com/koustreak/dataagent/internal/database/sqlite"
	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/executor"
	"github.com/koustreak/dataagent/internal/filestore"
	"github.com/koustreak/dataagent/internal/filestore/memstore"
	"github.com/koustreak/dataagent/internal/filestore/minio"
	"github.com/koustreak/dataagent/internal/introspect"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/metric"
	"github.com/koustreak/dataagent/internal/registry"
	"github.com/koustreak/dataagent/internal/schema"
	"github.com/koustreak/dataagent/internal/server"
	"github.com/koustreak/dataagent/internal/snapshot"
	"github.com/koustreak/dataagent/internal/translate"
	"github.com/koustreak/dataagent/internal/validate"
)

// App is a wired agent. Close releases the database.
type App struct {
	Config       *config.Config
	Log          *logger.Logger
	DB           database.DB
	Metrics      *metric.Registry
	Catalog      *introspect.Catalog
	Service      *agent.Service
	Orchestrator *agent.Orchestrator

	// Snapshots is nil unless snapshot.enabled is set.
	Snapshots *snapshot.Store

	files filestore.Store

	mu    sync.Mutex
	saved bool
	// savedAt is the registry version of the last snapshot written or restored.
	savedAt uint64
}

type Option func(*options)

type options struct {
	types      []any
	translator translate.Translator
}

// WithTypes registers compiled entity types with the catalog provider.
func WithTypes(samples ...any) Option {
	return func(o *options) { o.types = append(o.types, samples...) }
}

// WithTranslator replaces the configured translator.
func WithTranslator(t translate.Translator) Option {
	return func(o *options) { o.translator = t }
}

// New connects to the database and builds every component. Nothing is
// discovered yet; see Restore and StartupRunner.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	catalog := introspect.NewCatalog()
	if err := catalog.Register(o.types...); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, DB: db, Catalog: catalog, Metrics: metric.NewRegistry()}

	provider, err := a.providers()
	if err != nil {
		db.Close()
		return nil, err
	}
	discoverer := introspect.New(provider, log, introspect.Options{MaxEntities: cfg.Discovery.MaxEntities})

	reg := registry.New(registry.WithLogger(log), registry.WithObserver(a.Metrics))
	a.Service = agent.NewService(reg, discoverer, log, agent.ServiceOptions{
		CacheSchemas: cfg.Discovery.CacheSchemas,
		CacheTTL:     cfg.Discovery.CacheTTL(),
		Observer:     a.Metrics,
	})

	tr := o.translator
	if tr == nil {
		tr = newTranslator(cfg.Translator, log)
	}
	dialect := cfg.Translator.Dialect
	if dialect == "" {
		dialect = db.Dialect().String()
	}
	a.Orchestrator = agent.NewOrchestrator(a.Service, tr,
		validate.NewRuleValidator(cfg.Validator.MinScore, cfg.Validator.ReadOnly, db.Dialect(), log),
		executor.New(db, log, cfg.Database.QueryTimeout),
		agent.WithOrchestratorLogger(log),
		agent.WithRecorder(a.Metrics),
		agent.WithDialect(dialect),
	)

	if cfg.Snapshot.Enabled {
		if err := a.openSnapshots(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return a, nil
}

// providers chains the compiled catalog, an optional manifest file and
// the live database catalog.
func (a *App) providers() (introspect.Provider, error) {
	chain := introspect.Multi{a.Catalog}
	if path := a.Config.Discovery.Manifest; path != "" {
		chain = append(chain, introspect.ManifestFile{Path: path})
	}
	reader, err := schema.NewReader(a.DB)
	if err != nil {
		return nil, err
	}
	return append(chain, schema.NewProvider(reader, a.Log)), nil
}

func newTranslator(cfg config.TranslatorConfig, log *logger.Logger) translate.Translator {
	if cfg.Kind == config.TranslatorHTTP {
		return translate.NewHTTPTranslator(cfg.Endpoint, cfg.Model, cfg.Timeout, log)
	}
	return translate.NewRuleTranslator(cfg.DefaultLimit, log)
}

// openSnapshots uses MinIO when an endpoint is configured and an
// in-memory store otherwise.
func (a *App) openSnapshots(ctx context.Context) error {
	sc := a.Config.Snapshot
	if sc.Store.Endpoint != "" {
		fs, err := minio.New(ctx, &sc.Store)
		if err != nil {
			return err
		}
		a.files = fs
	} else {
		a.Log.Warn("snapshot endpoint not set, keeping snapshots in memory")
		a.files = memstore.New()
	}
	a.Snapshots = snapshot.New(a.files, sc.Store.Bucket, sc.Prefix, a.Log)
	return nil
}

// Restore registers the latest snapshot, if any, and returns how many
// descriptors it held.
func (a *App) Restore(ctx context.Context) (int, error) {
	if a.Snapshots == nil {
		return 0, nil
	}
	ds, info, err := a.Snapshots.Load(ctx)
	if err != nil {
		if errs.IsNotFound(err) {
			a.Log.Info("no schema snapshot to restore")
			return 0, nil
		}
		return 0, err
	}
	a.Service.Register(ds...)
	a.mu.Lock()
	a.saved, a.savedAt = true, a.Service.Version()
	a.mu.Unlock()
	a.Log.InfoWith("restored schema snapshot", map[string]any{"id": info.ID, "entities": len(ds)})
	return len(ds), nil
}

// Save stores the registry contents when snapshots are enabled. Nothing
// is written when the registry has not changed since the last snapshot.
func (a *App) Save(ctx context.Context) error {
	if a.Snapshots == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	version := a.Service.Version()
	if a.saved && version == a.savedAt {
		a.Log.Debug("registry unchanged, snapshot skipped")
		return nil
	}
	if _, err := a.Snapshots.Save(ctx, a.Service.Schemas()); err != nil {
		return err
	}
	a.saved, a.savedAt = true, version
	return nil
}

// StartupRunner returns the boot-time discovery runner for the config.
func (a *App) StartupRunner() *agent.StartupRunner {
	d := a.Config.Discovery
	return agent.NewStartupRunner(a.Service, agent.StartupConfig{
		AutoDiscover: d.AutoDiscover,
		ScanPackages: d.ScanPackages,
		Delay:        d.StartupDelay(),
	}, a.Log)
}

// Server returns the HTTP surface over the app.
func (a *App) Server() *server.Server {
	opts := []server.Option{server.WithLogger(a.Log)}
	if a.Snapshots != nil {
		opts = append(opts, server.WithSnapshots(a.Snapshots))
	}
	if a.Config.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(a.Config.Metrics.Path, a.Metrics.Handler()))
	}
	return server.New(a.Service, a.Orchestrator, opts...)
}

func (a *App) Close() error {
	var err error
	if a.files != nil {
		err = a.files.Close()
	}
	a.DB.Close()
	return err
}
