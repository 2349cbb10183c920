// Package orchestrator runs monitoring cycles: every category keyword is fanned out
// to all collectors, new products are classified and price errors become alerts.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/price-error-watch/internal/alert"
	"github.com/JakeFAU/price-error-watch/internal/catalog"
	"github.com/JakeFAU/price-error-watch/internal/metrics"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
	"github.com/JakeFAU/price-error-watch/internal/seen"
	"github.com/JakeFAU/price-error-watch/internal/telemetry"
)

// ErrCycleInProgress is returned when RunCycle is called while a cycle is running.
var ErrCycleInProgress = errors.New("cycle already in progress")

// Status placeholders used before the first cycle.
const (
	NeverScanned = "never"
	ScanPending  = "pending"
)

// Classifier decides whether a product observation is a price error.
type Classifier interface {
	Classify(ctx context.Context, p monitor.Product, categoryKey string) monitor.Classification
}

// FormatFunc renders one alert.
type FormatFunc func(p monitor.Product, c catalog.Category, reason monitor.Reason, discountPercent float64) string

// Config controls cycle pacing and the seen-set bounds.
type Config struct {
	// RequestDelay plus a uniform jitter in [JitterMin, JitterMax) is waited
	// between consecutive keywords.
	RequestDelay time.Duration
	JitterMin    time.Duration
	JitterMax    time.Duration
	// MaxParallelCollectors bounds the per-keyword fan-out; 0 means all at once.
	MaxParallelCollectors int
	SeenCap               int
	SeenRetain            int
	// Interval is only used to estimate the next scan in Status.
	Interval time.Duration
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithPauser replaces the timer-based politeness pause.
func WithPauser(p Pauser) Option {
	return func(o *Orchestrator) { o.pauser = p }
}

// WithFormatter replaces alert.Format.
func WithFormatter(f FormatFunc) Option {
	return func(o *Orchestrator) { o.format = f }
}

// Orchestrator owns the cycle counters and the seen set. Only one cycle runs at a time.
type Orchestrator struct {
	registry   *catalog.Registry
	collectors []monitor.Collector
	classifier Classifier
	clock      monitor.Clock
	ids        monitor.IDGenerator
	pauser     Pauser
	format     FormatFunc
	seen       *seen.Set
	cfg        Config
	logger     *zap.Logger

	running atomic.Bool

	mu          sync.Mutex
	cyclesRun   int
	totalErrors int
	lastScan    time.Time
}

// New constructs an Orchestrator.
func New(
	registry *catalog.Registry,
	collectors []monitor.Collector,
	classifier Classifier,
	clock monitor.Clock,
	ids monitor.IDGenerator,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("category registry is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SeenCap <= 0 {
		cfg.SeenCap = seen.DefaultCap
	}
	if cfg.SeenRetain <= 0 || cfg.SeenRetain > cfg.SeenCap {
		cfg.SeenRetain = min(seen.DefaultRetain, cfg.SeenCap)
	}
	if cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMax = cfg.JitterMin
	}
	o := &Orchestrator{
		registry:   registry,
		collectors: collectors,
		classifier: classifier,
		clock:      clock,
		ids:        ids,
		pauser:     &timerPauser{},
		format:     alert.Format,
		seen:       seen.New(),
		cfg:        cfg,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type fetchResult struct {
	collector string
	products  []monitor.Product
	err       error
}

// RunCycle executes one full pass over the catalog and returns the alerts in
// discovery order. Collector failures are logged and skipped. A cancelled context
// stops the cycle early; the alerts gathered so far are returned with ctx.Err().
func (o *Orchestrator) RunCycle(ctx context.Context) ([]string, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer o.running.Store(false)

	start := o.clock.Now()
	o.mu.Lock()
	o.cyclesRun++
	cycle := o.cyclesRun
	o.lastScan = start
	o.mu.Unlock()

	cycleID := o.cycleID()
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.RunCycle", trace.WithAttributes(
		attribute.Int("cycle", cycle),
		attribute.String("cycle_id", cycleID),
	))
	defer span.End()

	logger := o.logger.With(zap.Int("cycle", cycle), zap.String("cycle_id", cycleID))
	logger.Info("cycle started", zap.Int("collectors", len(o.collectors)))

	var alerts []string
	err := o.scan(ctx, logger, &alerts)
	span.SetAttributes(attribute.Int("alerts", len(alerts)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cycle interrupted")
	}

	if evicted := o.seen.Trim(o.cfg.SeenCap, o.cfg.SeenRetain); evicted > 0 {
		logger.Info("seen set trimmed", zap.Int("evicted", evicted), zap.Int("retained", o.seen.Len()))
	}
	metrics.SetSeenProducts(o.seen.Len())

	outcome := "ok"
	if err != nil {
		outcome = "canceled"
	}
	metrics.ObserveCycle(outcome, o.clock.Now().Sub(start))
	logger.Info("cycle finished", zap.Int("alerts", len(alerts)), zap.String("outcome", outcome))
	return alerts, err
}

func (o *Orchestrator) scan(ctx context.Context, logger *zap.Logger, alerts *[]string) error {
	first := true
	for _, cat := range o.registry.All() {
		for _, keyword := range cat.Keywords {
			if !first {
				o.pauser.Pause(ctx, o.politenessDelay())
			}
			first = false
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("cycle interrupted: %w", err)
			}

			kwLogger := logger.With(zap.String("category", cat.Key), zap.String("keyword", keyword))
			kwLogger.Debug("searching")
			for _, res := range o.fetchAll(ctx, keyword, cat.MaxPrice) {
				metrics.ObserveCollector(res.collector, len(res.products), res.err)
				if res.err != nil {
					kwLogger.Warn("collector failed", zap.String("collector", res.collector), zap.Error(res.err))
					continue
				}
				for _, p := range res.products {
					if msg, ok := o.process(ctx, kwLogger, cat, keyword, p); ok {
						*alerts = append(*alerts, msg)
					}
				}
			}
		}
	}
	return nil
}

// fetchAll queries every collector concurrently. Results keep collector order.
func (o *Orchestrator) fetchAll(ctx context.Context, keyword string, maxPrice float64) []fetchResult {
	results := make([]fetchResult, len(o.collectors))
	var g errgroup.Group
	if o.cfg.MaxParallelCollectors > 0 {
		g.SetLimit(o.cfg.MaxParallelCollectors)
	}
	for i, c := range o.collectors {
		g.Go(func() error {
			results[i] = fetchOne(ctx, c, keyword, maxPrice)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func fetchOne(ctx context.Context, c monitor.Collector, keyword string, maxPrice float64) (res fetchResult) {
	res.collector = c.Name()
	defer func() {
		if r := recover(); r != nil {
			res.products = nil
			res.err = fmt.Errorf("collector panic: %v", r)
		}
	}()
	res.products, res.err = c.Fetch(ctx, keyword, maxPrice)
	return res
}

func (o *Orchestrator) process(
	ctx context.Context,
	logger *zap.Logger,
	cat catalog.Category,
	keyword string,
	p monitor.Product,
) (string, bool) {
	if err := p.Validate(); err != nil {
		logger.Debug("skipping product", zap.String("product_id", p.ID), zap.Error(err))
		return "", false
	}
	if o.seen.Contains(p.ID) {
		return "", false
	}
	if p.CategoryKey == "" {
		p.CategoryKey = cat.Key
	}
	if p.Keyword == "" {
		p.Keyword = keyword
	}

	verdict := o.classifier.Classify(ctx, p, cat.Key)
	if !verdict.IsError {
		return "", false
	}
	o.seen.Add(p.ID)
	o.mu.Lock()
	o.totalErrors++
	o.mu.Unlock()
	metrics.ObserveAlert(cat.Key, string(verdict.Reason))

	logger.Info("price error found",
		zap.String("product_id", p.ID),
		zap.String("source", p.Source),
		zap.String("reason", string(verdict.Reason)),
		zap.Float64("discount_pct", verdict.DiscountPercent),
		zap.Float64("price", p.Price),
	)
	return o.format(p, cat, verdict.Reason, verdict.DiscountPercent), true
}

// Status returns a snapshot of the cycle counters.
func (o *Orchestrator) Status() monitor.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := monitor.Status{
		CyclesRun:         o.cyclesRun,
		TotalErrorsFound:  o.totalErrors,
		LastScanTimestamp: NeverScanned,
		NextScanEstimate:  ScanPending,
		SeenProducts:      o.seen.Len(),
		Collectors:        len(o.collectors),
	}
	if !o.lastScan.IsZero() {
		st.LastScanTimestamp = o.lastScan.UTC().Format(time.RFC3339)
		if o.cfg.Interval > 0 {
			st.NextScanEstimate = o.lastScan.Add(o.cfg.Interval).UTC().Format(time.RFC3339)
		}
	}
	return st
}

func (o *Orchestrator) cycleID() string {
	if o.ids == nil {
		return ""
	}
	id, err := o.ids.NewID()
	if err != nil {
		o.logger.Warn("cycle id generation failed", zap.Error(err))
		return ""
	}
	return id
}

func (o *Orchestrator) politenessDelay() time.Duration {
	return o.cfg.RequestDelay + o.cfg.JitterMin + randomJitter(o.cfg.JitterMax-o.cfg.JitterMin)
}
