// Package engine assembles the investigation engine from configuration.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sequela02/ehrlich-sub001/config"
	"github.com/Sequela02/ehrlich-sub001/internal/budget"
	"github.com/Sequela02/ehrlich-sub001/internal/capability"
	"github.com/Sequela02/ehrlich-sub001/internal/dispatch"
	"github.com/Sequela02/ehrlich-sub001/internal/domain"
	"github.com/Sequela02/ehrlich-sub001/internal/events"
	"github.com/Sequela02/ehrlich-sub001/internal/findings"
	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
	"github.com/Sequela02/ehrlich-sub001/internal/orchestrator"
	"github.com/Sequela02/ehrlich-sub001/internal/research"
	"github.com/Sequela02/ehrlich-sub001/internal/runner"
	"github.com/Sequela02/ehrlich-sub001/internal/store"
	"github.com/Sequela02/ehrlich-sub001/internal/telemetry"
	"github.com/Sequela02/ehrlich-sub001/internal/toolcache"
	"github.com/Sequela02/ehrlich-sub001/internal/uploads"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the collaborators the engine cannot build from configuration.
type Deps struct {
	Client  research.Client
	Planner orchestrator.Planner
	Tools   []capability.Tool

	// Optional; built from configuration when nil.
	Registerer prometheus.Registerer
	Redis      redis.UniversalClient
	Store      *store.Store
}

type Engine struct {
	Config       *config.Config
	Domains      *domain.Registry
	Tools        *capability.Registry
	Uploads      *uploads.Store
	Broker       *events.Broker
	Dispatcher   *dispatch.Dispatcher
	Orchestrator *orchestrator.Orchestrator

	index   *findings.Index
	store   *store.Store
	sinks   []events.Sink
	logger  *zap.Logger
	closers []func() error
}

// New wires every component selected by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, deps Deps) (*Engine, error) {
	if deps.Client == nil || deps.Planner == nil {
		return nil, errors.New("engine requires a model client and a planner")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{Config: cfg, Uploads: uploads.NewStore(), Broker: events.NewBroker(), logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = e.Close()
		}
	}()

	var err error
	if e.Domains, err = domain.NewDefaultRegistry(cfg.Domains.Dir); err != nil {
		return nil, fmt.Errorf("load domains: %w", err)
	}

	e.Tools = capability.NewRegistry(cfg.Capability.SigningSecret)
	for _, tool := range deps.Tools {
		if err := e.Tools.Register(tool); err != nil {
			return nil, fmt.Errorf("register tool %s: %w", tool.Card.Name, err)
		}
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		reg := deps.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		metrics = telemetry.NewMetrics(reg, cfg.Telemetry.Namespace)
	}

	rdb := deps.Redis
	if rdb == nil && cfg.UsesRedis() {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:       []string{cfg.Storage.Redis.Addr()},
			Password:    cfg.Storage.Redis.Password,
			DB:          cfg.Storage.Redis.DB,
			DialTimeout: cfg.Storage.Redis.Timeout,
		})
		e.closers = append(e.closers, rdb.Close)
	}

	e.store = deps.Store
	if e.store == nil && cfg.UsesPostgres() {
		if e.store, err = store.Open(ctx, cfg.Storage.Postgres); err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		e.closers = append(e.closers, e.store.Close)
	}

	var cache toolcache.Cache
	if cfg.Cache.Backend == "redis" {
		cache = toolcache.NewRedisCache(rdb, cfg.Cache.KeyPrefix, logger)
	} else {
		cache = toolcache.NewMemoryCache()
	}

	var searcher findings.Searcher
	if cfg.Findings.Backend == "postgres" {
		searcher = e.store
	} else {
		if e.index, err = findings.NewIndex(); err != nil {
			return nil, fmt.Errorf("findings index: %w", err)
		}
		e.closers = append(e.closers, e.index.Close)
		searcher = e.index
	}

	e.sinks = []events.Sink{e.Broker}
	switch cfg.Events.Sink {
	case "redis":
		e.sinks = append(e.sinks, events.NewStreamSink(rdb, cfg.Events.StreamPrefix, cfg.Events.MaxLen))
	case "postgres":
		e.sinks = append(e.sinks, e.store)
	}

	e.Dispatcher = dispatch.New(e.Tools,
		dispatch.WithCache(cache, toolcache.NewTTLTable(cfg.Cache.TTLOverrides)),
		dispatch.WithUploads(e.Uploads),
		dispatch.WithFindings(searcher),
		dispatch.WithMetrics(metrics),
		dispatch.WithLogger(logger),
	)

	researcher := research.New(deps.Client, e.Dispatcher, e.Tools, research.Config{
		Model:         cfg.LLM.ResearcherModel,
		MaxIterations: cfg.Researcher.MaxIterations,
		MaxTokens:     cfg.Researcher.MaxTokens,
	}, research.WithLogger(logger), research.WithMetrics(metrics))

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithBatchRunner(runner.New(runner.WithLogger(logger), runner.WithMetrics(metrics))),
	}
	if e.store != nil {
		opts = append(opts, orchestrator.WithRepository(e.store))
	}
	e.Orchestrator = orchestrator.New(deps.Planner, researcher, e.Domains, orchestrator.Config{
		MaxDepth:    cfg.Scheduler.MaxDepth,
		MaxRounds:   cfg.Scheduler.MaxRounds,
		BatchSize:   cfg.Scheduler.BatchSize,
		MinControls: cfg.Assay.MinControls,
		Limits:      cfg.Budget.Limits(),
		Prices:      budget.NewPriceTable(cfg.LLM.Pricing),
	}, opts...)

	ok = true
	return e, nil
}

// Run executes inv, publishing its events to every configured sink. Files
// uploaded for inv are released afterwards and its findings become
// searchable by later investigations.
func (e *Engine) Run(ctx context.Context, inv *investigation.Investigation) error {
	log := e.logger.With(zap.String("investigation_id", inv.ID))
	if e.store != nil {
		if err := e.store.SaveInvestigation(ctx, inv); err != nil && !errors.Is(err, store.ErrExists) {
			return fmt.Errorf("save investigation: %w", err)
		}
	}
	defer e.Uploads.Drop(inv.ID)

	emit := events.Forwarder(ctx, inv.ID, e.logger, e.sinks...)
	runErr := e.Orchestrator.Run(ctx, inv, emit)
	if e.index != nil {
		if err := e.index.AddAll(inv); err != nil {
			log.Warn("index findings failed", zap.Error(err))
		}
	}
	return runErr
}

// Close releases connections in reverse order of creation.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
