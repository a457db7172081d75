package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/smartsave/gateway/internal/domain"
	"github.com/smartsave/gateway/internal/infrastructure/cache"
	"github.com/smartsave/gateway/internal/infrastructure/metrics"
	"github.com/smartsave/gateway/internal/infrastructure/worker"
)

// Operation labels used for logs and metrics
const (
	OperationSearch = "search"
	OperationRecent = "new_products"
	OperationDetail = "product_detail"
)

// GatewayState is the lifecycle state of a QueryGateway
type GatewayState int32

const (
	StateConstructing GatewayState = iota
	StateHealthChecking
	StateReady
	StateDegraded
	StateClosed
)

func (s GatewayState) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateHealthChecking:
		return "health_checking"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// GatewayConfig holds configuration for the query gateway
type GatewayConfig struct {
	Region              string // default postcode scoping every query
	SearchLimit         int
	RecentLimit         int
	HealthMaxAttempts   int
	HealthInterval      time.Duration
	ResultCacheTTL      time.Duration
	ResultCacheCapacity int
	SweepInterval       time.Duration // result cache sweep period
	CoalesceQueries     bool          // share one fetch between concurrent identical misses
	Pool                worker.Config
}

// DefaultGatewayConfig returns the production defaults
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Region:              "14010",
		SearchLimit:         25,
		RecentLimit:         30,
		HealthMaxAttempts:   15,
		HealthInterval:      300 * time.Millisecond,
		ResultCacheTTL:      15 * time.Minute,
		ResultCacheCapacity: 100,
		SweepInterval:       10 * time.Minute,
		CoalesceQueries:     true,
		Pool:                worker.DefaultConfig(),
	}
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	d := DefaultGatewayConfig()
	if strings.TrimSpace(c.Region) == "" {
		c.Region = d.Region
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = d.SearchLimit
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = d.RecentLimit
	}
	if c.HealthMaxAttempts <= 0 {
		c.HealthMaxAttempts = d.HealthMaxAttempts
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = d.HealthInterval
	}
	if c.ResultCacheTTL <= 0 {
		c.ResultCacheTTL = d.ResultCacheTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.Pool.Workers <= 0 {
		c.Pool.Workers = d.Pool.Workers
	}
	if c.Pool.QueueSize <= 0 {
		c.Pool.QueueSize = d.Pool.QueueSize
	}
	if c.Pool.DrainTimeout <= 0 {
		c.Pool.DrainTimeout = d.Pool.DrainTimeout
	}
	return c
}

// GatewayDeps are the collaborators of a QueryGateway. Supervisor and Source
// are required; the rest fall back to defaults.
type GatewayDeps struct {
	Supervisor domain.BackendSupervisor
	Source     domain.ProductSource
	Normalizer *ProductNormalizer
	Terms      *TermNormalizer
	Metrics    *metrics.GatewayMetrics
	Logger     *zap.Logger
	Clock      cache.Clock // result cache clock
}

type fetchFunc func(ctx context.Context) (*domain.BridgeEnvelope, error)

// QueryGateway answers product queries asynchronously against the supervised
// bridge, caching normalized results. It never surfaces query failures; a
// failed query resolves to an empty result.
type QueryGateway struct {
	config     GatewayConfig
	supervisor domain.BackendSupervisor
	source     domain.ProductSource
	normalizer *ProductNormalizer
	terms      *TermNormalizer
	metrics    *metrics.GatewayMetrics
	logger     *zap.Logger

	pool    *worker.Pool
	results *cache.TimedCache[string, []domain.Product]
	flight  singleflight.Group

	state          atomic.Int32
	available      atomic.Bool
	degradedLogged atomic.Bool

	regionMu sync.RWMutex
	region   string

	stopSweep chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewQueryGateway launches the bridge and blocks until it is healthy or the
// health check budget is spent. An unhealthy bridge leaves the gateway
// degraded; only a missing bridge resource is returned as an error.
func NewQueryGateway(ctx context.Context, deps GatewayDeps, cfg GatewayConfig) (*QueryGateway, error) {
	if deps.Supervisor == nil || deps.Source == nil {
		return nil, fmt.Errorf("%w: supervisor and source are required", domain.ErrInvalidRequest)
	}
	cfg = cfg.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = NewProductNormalizer(DefaultNormalizerConfig(), nil, logger)
	}
	if deps.Terms == nil {
		deps.Terms = NewTermNormalizer(0)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewGatewayMetrics(prometheus.NewRegistry())
	}

	pool, err := worker.NewPool(cfg.Pool, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	g := &QueryGateway{
		config:     cfg,
		supervisor: deps.Supervisor,
		source:     deps.Source,
		normalizer: deps.Normalizer,
		terms:      deps.Terms,
		metrics:    deps.Metrics,
		logger:     logger.With(zap.String("component", "query_gateway")),
		pool:       pool,
		results: cache.NewTimedCache[string, []domain.Product](cache.Options[[]domain.Product]{
			TTL:      cfg.ResultCacheTTL,
			Capacity: cfg.ResultCacheCapacity,
			Copy:     slices.Clone[[]domain.Product],
			Clock:    deps.Clock,
		}),
		region:    strings.TrimSpace(cfg.Region),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	g.setState(StateConstructing)

	if err := g.supervisor.Start(ctx); err != nil {
		g.logger.Error("bridge initialization failed", zap.Error(err))
		g.setState(StateClosed)
		_ = pool.Shutdown(ctx)
		_ = g.supervisor.Shutdown(ctx)
		return nil, err
	}

	g.setState(StateHealthChecking)
	if g.supervisor.WaitUntilHealthy(ctx, cfg.HealthMaxAttempts, cfg.HealthInterval) {
		g.available.Store(true)
		g.metrics.BackendAvailable.Set(1)
		g.setState(StateReady)
		g.logger.Info("query gateway ready", zap.String("region", g.region))
	} else {
		g.metrics.BackendAvailable.Set(0)
		g.setState(StateDegraded)
		g.logger.Warn("bridge unavailable, query gateway degraded",
			zap.Int("attempts", cfg.HealthMaxAttempts),
			zap.Duration("interval", cfg.HealthInterval))
	}

	go g.sweepLoop()
	return g, nil
}

// State returns the current lifecycle state
func (g *QueryGateway) State() GatewayState {
	return GatewayState(g.state.Load())
}

func (g *QueryGateway) setState(s GatewayState) {
	g.state.Store(int32(s))
}

// Available reports whether queries reach the bridge
func (g *QueryGateway) Available() bool {
	return g.available.Load() && g.State() != StateClosed
}

// Region returns the postcode that scopes queries
func (g *QueryGateway) Region() string {
	g.regionMu.RLock()
	defer g.regionMu.RUnlock()
	return g.region
}

// SetRegion changes the postcode used by later queries. A blank code restores
// the configured default.
func (g *QueryGateway) SetRegion(code string) {
	code = strings.TrimSpace(code)
	if code == "" {
		code = g.config.Region
	}

	g.regionMu.Lock()
	previous := g.region
	g.region = code
	g.regionMu.Unlock()

	if previous != code {
		g.logger.Info("region changed", zap.String("from", previous), zap.String("to", code))
	}
}

// SearchAsync looks up products matching term in the current region
func (g *QueryGateway) SearchAsync(term string) *worker.Future[[]domain.Product] {
	normalized := g.terms.Normalize(term)
	if normalized == "" {
		return worker.Resolved([]domain.Product{})
	}

	region := g.Region()
	key := "search:" + normalized + ":" + region
	return g.list(OperationSearch, key, func(ctx context.Context) (*domain.BridgeEnvelope, error) {
		return g.source.Search(ctx, normalized, region, g.config.SearchLimit)
	})
}

// RecentItemsAsync lists newly added products. A blank region means the current one.
func (g *QueryGateway) RecentItemsAsync(region string) *worker.Future[[]domain.Product] {
	region = strings.TrimSpace(region)
	if region == "" {
		region = g.Region()
	}

	key := "new_products:" + region
	return g.list(OperationRecent, key, func(ctx context.Context) (*domain.BridgeEnvelope, error) {
		return g.source.NewArrivals(ctx, region, g.config.RecentLimit)
	})
}

// ProductDetailAsync fetches a single product by external id. The future
// resolves to nil when the product cannot be retrieved.
func (g *QueryGateway) ProductDetailAsync(id string) *worker.Future[*domain.Product] {
	id = strings.TrimSpace(id)
	if id == "" || g.State() == StateClosed {
		return worker.Resolved[*domain.Product](nil)
	}
	if cached, ok := g.normalizer.Cached(id); ok {
		g.metrics.CacheHits.WithLabelValues(OperationDetail).Inc()
		return worker.Resolved(&cached)
	}
	g.metrics.CacheMisses.WithLabelValues(OperationDetail).Inc()

	region := g.Region()
	f, err := worker.TrySubmit(g.pool, (*domain.Product)(nil), func(ctx context.Context) *domain.Product {
		if !g.backendReady(OperationDetail) {
			return nil
		}

		env, ok := g.call(ctx, OperationDetail, func(ctx context.Context) (*domain.BridgeEnvelope, error) {
			return g.source.ProductDetail(ctx, id, region)
		})
		if !ok {
			return nil
		}

		var rec domain.RawRecord
		if err := decodeSingle(env.Data, &rec); err != nil {
			g.recordOutcome(OperationDetail, metrics.OutcomeMalformed)
			g.logger.Warn("malformed product detail payload", zap.String("id", id), zap.Error(err))
			return nil
		}
		g.recordOutcome(OperationDetail, metrics.OutcomeSuccess)

		product, err := g.normalizer.Normalize(&rec)
		if err != nil {
			g.metrics.RecordsRejected.Inc()
			g.logger.Warn("product detail rejected", zap.String("id", id), zap.Error(err))
			return nil
		}
		return &product
	})
	g.observeRejection(OperationDetail, err)
	return f
}

// ClearCache drops cached query results and normalized products
func (g *QueryGateway) ClearCache() {
	g.results.Clear()
	g.normalizer.ClearCache()
}

// Close stops the sweeper, drains the worker pool and shuts down the bridge.
// Later queries resolve to empty results. Calling it again is a no-op.
func (g *QueryGateway) Close(ctx context.Context) error {
	g.closeOnce.Do(func() {
		previous := GatewayState(g.state.Swap(int32(StateClosed)))

		close(g.stopSweep)
		<-g.sweepDone

		var errs []error
		if err := g.pool.Shutdown(ctx); err != nil {
			g.logger.Warn("worker pool did not drain cleanly", zap.Error(err))
			errs = append(errs, err)
		}
		if err := g.supervisor.Shutdown(ctx); err != nil {
			g.logger.Warn("bridge shutdown failed", zap.Error(err))
			errs = append(errs, err)
		}
		g.available.Store(false)
		g.metrics.BackendAvailable.Set(0)
		g.closeErr = errors.Join(errs...)

		g.logger.Info("query gateway closed", zap.Stringer("previous_state", previous))
	})
	return g.closeErr
}

// list serves a listing from the result cache, or schedules a fetch on the pool
func (g *QueryGateway) list(op, key string, fetch fetchFunc) *worker.Future[[]domain.Product] {
	if g.State() == StateClosed {
		return worker.Resolved([]domain.Product{})
	}
	if cached, ok := g.results.Get(key); ok {
		g.metrics.CacheHits.WithLabelValues(op).Inc()
		return worker.Resolved(cached)
	}
	g.metrics.CacheMisses.WithLabelValues(op).Inc()

	f, err := worker.TrySubmit(g.pool, []domain.Product{}, func(ctx context.Context) []domain.Product {
		if !g.backendReady(op) {
			return []domain.Product{}
		}
		// Filled by a task that ran while this one was queued
		if cached, ok := g.results.Get(key); ok {
			return cached
		}
		if !g.config.CoalesceQueries {
			return g.fetchList(ctx, op, key, fetch)
		}

		v, _, _ := g.flight.Do(key, func() (any, error) {
			return g.fetchList(ctx, op, key, fetch), nil
		})
		return slices.Clone(v.([]domain.Product))
	})
	g.observeRejection(op, err)
	return f
}

func (g *QueryGateway) fetchList(ctx context.Context, op, key string, fetch fetchFunc) []domain.Product {
	env, ok := g.call(ctx, op, fetch)
	if !ok {
		return []domain.Product{}
	}

	records, err := env.Records()
	if err != nil {
		g.recordOutcome(op, metrics.OutcomeMalformed)
		g.logger.Warn("malformed bridge payload", zap.String("operation", op), zap.Error(err))
		return []domain.Product{}
	}
	g.recordOutcome(op, metrics.OutcomeSuccess)

	products, rejected := g.normalizer.NormalizeAll(records)
	if rejected > 0 {
		g.metrics.RecordsRejected.Add(float64(rejected))
	}

	g.results.Put(key, products)
	g.logger.Debug("query completed",
		zap.String("operation", op),
		zap.String("key", key),
		zap.Int("products", len(products)),
		zap.Int("rejected", rejected))
	return products
}

// call issues one bridge request. It reports false, after logging and
// counting the outcome, when the request failed or the bridge reported a failure.
func (g *QueryGateway) call(ctx context.Context, op string, fetch fetchFunc) (*domain.BridgeEnvelope, bool) {
	start := time.Now()
	env, err := fetch(ctx)
	g.metrics.BridgeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, domain.ErrMalformedPayload):
		g.recordOutcome(op, metrics.OutcomeMalformed)
		g.logger.Warn("malformed bridge response", zap.String("operation", op), zap.Error(err))
		return nil, false
	case err != nil:
		g.recordOutcome(op, metrics.OutcomeTransportErr)
		g.logger.Warn("bridge request failed", zap.String("operation", op), zap.Error(err))
		return nil, false
	case env == nil:
		g.recordOutcome(op, metrics.OutcomeMalformed)
		g.logger.Warn("empty bridge response", zap.String("operation", op))
		return nil, false
	case !env.Success:
		g.recordOutcome(op, metrics.OutcomeBridgeFailure)
		g.logger.Warn("bridge reported failure",
			zap.String("operation", op),
			zap.Error(fmt.Errorf("%w: %s", domain.ErrBridgeReportedFailure, env.Error)))
		return nil, false
	}
	return env, true
}

// backendReady reports whether a queued task may talk to the bridge. In
// degraded mode the first short-circuit is logged as a warning.
func (g *QueryGateway) backendReady(op string) bool {
	if g.available.Load() {
		return true
	}
	if g.State() == StateClosed {
		return false
	}

	g.metrics.DegradedQueries.WithLabelValues(op).Inc()
	if g.degradedLogged.CompareAndSwap(false, true) {
		g.logger.Warn("bridge unavailable, returning empty results", zap.String("operation", op))
	} else {
		g.logger.Debug("bridge unavailable, returning empty results", zap.String("operation", op))
	}
	return false
}

// observeRejection logs and counts a query the pool refused. The future is
// already resolved to its empty fallback.
func (g *QueryGateway) observeRejection(op string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, worker.ErrQueueFull):
		g.metrics.QueriesRejected.WithLabelValues(op).Inc()
		g.logger.Warn("worker queue full, query dropped", zap.String("operation", op))
	default:
		g.logger.Debug("query not scheduled", zap.String("operation", op), zap.Error(err))
	}
}

func (g *QueryGateway) recordOutcome(op, outcome string) {
	g.metrics.BridgeRequests.WithLabelValues(op, outcome).Inc()
}

func (g *QueryGateway) sweepLoop() {
	defer close(g.sweepDone)

	ticker := time.NewTicker(g.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := g.results.Sweep(); removed > 0 {
				g.logger.Debug("swept expired query results", zap.Int("removed", removed))
			}
		case <-g.stopSweep:
			return
		}
	}
}

func decodeSingle(data json.RawMessage, rec *domain.RawRecord) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: missing data", domain.ErrMalformedPayload)
	}
	if err := json.Unmarshal(trimmed, rec); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return nil
}
