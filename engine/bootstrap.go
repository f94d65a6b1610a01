// Package engine wires the process's components into one running instance:
// capability registration, pattern loading, and the orchestrator, in a
// deterministic init order: Capability Registry (empty) -> Agents register
// -> Freeze -> Pattern Loader.
package engine

import (
	"context"
	"fmt"

	"github.com/kestrelfi/patternrunner/agentruntime"
	"github.com/kestrelfi/patternrunner/agents/alerts"
	"github.com/kestrelfi/patternrunner/agents/charts"
	"github.com/kestrelfi/patternrunner/agents/claudeagent"
	"github.com/kestrelfi/patternrunner/agents/financialanalyst"
	"github.com/kestrelfi/patternrunner/agents/macrohound"
	"github.com/kestrelfi/patternrunner/agents/optimizer"
	"github.com/kestrelfi/patternrunner/agents/ratingsagent"
	"github.com/kestrelfi/patternrunner/agents/reports"
	"github.com/kestrelfi/patternrunner/capability"
	"github.com/kestrelfi/patternrunner/core"
	"github.com/kestrelfi/patternrunner/execcache"
	"github.com/kestrelfi/patternrunner/orchestrator"
	"github.com/kestrelfi/patternrunner/pattern"
	"github.com/kestrelfi/patternrunner/pricingpack"
	"github.com/kestrelfi/patternrunner/router"
	"github.com/kestrelfi/patternrunner/telemetry"
)

// Engine bundles every constructed component a transport needs to serve
// the Request API.
type Engine struct {
	Config       *core.Config
	Registry     *capability.Registry
	PricingPacks pricingpack.Store
	Cache        execcache.Cache
	Loader       *pattern.Loader
	Runtime      *agentruntime.Runtime
	Orchestrator *orchestrator.Orchestrator
	Router       *router.KeywordMatcher
	Reconciler   *pricingpack.Reconciler
	Logger       core.Logger

	telemetry *telemetry.OTelProvider
}

// Shutdown flushes and releases process-wide resources started by Build,
// currently only the telemetry exporter. Safe to call when telemetry was
// never enabled.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.telemetry == nil {
		return nil
	}
	return e.telemetry.Shutdown(ctx)
}

// Build constructs an Engine from cfg, registering every concrete agent,
// loading patterns from cfg.Execution.PatternDir, and wiring the cache per
// cfg.Store.
func Build(ctx context.Context, cfg *core.Config) (*Engine, error) {
	logger := cfg.Logger()

	packs, err := buildPricingPackStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("engine.Build: pricing pack store: %w", err)
	}

	cache, err := buildCache(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("engine.Build: execution cache: %w", err)
	}

	registry := capability.New(logger)
	for _, agent := range []capability.Agent{
		financialanalyst.New(),
		macrohound.New(packs),
		ratingsagent.New(),
		claudeagent.New(""),
		optimizer.New(),
		charts.New(),
		reports.New(),
		alerts.New(),
	} {
		if err := registry.Register(agent); err != nil {
			return nil, fmt.Errorf("engine.Build: registering %s: %w", agent.Name(), err)
		}
	}
	registry.Freeze()

	loader := pattern.NewLoader(cfg.Execution.PatternDir, registry, logger)
	if err := loader.Load(); err != nil {
		return nil, fmt.Errorf("engine.Build: loading patterns: %w", err)
	}

	telem, err := buildTelemetry(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("engine.Build: telemetry: %w", err)
	}

	runtime := agentruntime.New(registry, cfg.Resilience.CircuitBreaker, cfg.Resilience.Retry, logger)
	var coreTelemetry core.Telemetry
	if telem != nil {
		coreTelemetry = telem
	}
	orch := orchestrator.New(runtime, cache, nil, logger, coreTelemetry)
	keywordRouter := router.NewKeywordMatcher(loader, logger)
	reconciler := pricingpack.NewReconciler(packs, pricingpack.NoopPackSource{}, nil, logger)

	return &Engine{
		Config:       cfg,
		Registry:     registry,
		PricingPacks: packs,
		Cache:        cache,
		Loader:       loader,
		Runtime:      runtime,
		Orchestrator: orch,
		Router:       keywordRouter,
		Reconciler:   reconciler,
		Logger:       logger,
		telemetry:    telem,
	}, nil
}

// buildTelemetry constructs the OpenTelemetry provider when tracing is
// enabled, returning nil (not an error) when it is off so Orchestrator
// falls back to core.NoOpTelemetry.
func buildTelemetry(ctx context.Context, cfg *core.Config, logger core.Logger) (*telemetry.OTelProvider, error) {
	if !cfg.Telemetry.Enabled {
		return nil, nil
	}
	provider, err := telemetry.NewOTelProvider(ctx, cfg.Name, cfg.Telemetry.Endpoint)
	if err != nil {
		return nil, err
	}
	logger.Info("telemetry enabled", map[string]interface{}{"endpoint": cfg.Telemetry.Endpoint})
	return provider, nil
}

func buildPricingPackStore(ctx context.Context, cfg *core.Config, logger core.Logger) (pricingpack.Store, error) {
	if cfg.Store.PostgresURL == "" {
		logger.Warn("no postgres url configured, using in-memory pricing pack store", nil)
		return pricingpack.NewInMemoryStore(), nil
	}
	return pricingpack.OpenPostgresStore(ctx, cfg.Store.PostgresURL, logger)
}

func buildCache(cfg *core.Config, logger core.Logger) (execcache.Cache, error) {
	if cfg.Store.RedisURL == "" {
		return execcache.NewInMemoryCache(cfg.Store.CacheMaxKeys), nil
	}
	cache, err := execcache.NewRedisCache(cfg.Store.RedisURL, cfg.Namespace, logger)
	if err != nil {
		logger.Warn("redis cache unavailable, falling back to in-memory cache", map[string]interface{}{"error": err.Error()})
		return execcache.NewInMemoryCache(cfg.Store.CacheMaxKeys), nil
	}
	return cache, nil
}
