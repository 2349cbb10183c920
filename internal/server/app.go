// Package server builds the monitor's dependencies from configuration and runs them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/price-error-watch/internal/api"
	"github.com/JakeFAU/price-error-watch/internal/bot"
	"github.com/JakeFAU/price-error-watch/internal/catalog"
	"github.com/JakeFAU/price-error-watch/internal/clock/system"
	"github.com/JakeFAU/price-error-watch/internal/collector"
	"github.com/JakeFAU/price-error-watch/internal/collector/amazon"
	"github.com/JakeFAU/price-error-watch/internal/collector/casasbahia"
	"github.com/JakeFAU/price-error-watch/internal/collector/mercadolivre"
	"github.com/JakeFAU/price-error-watch/internal/config"
	"github.com/JakeFAU/price-error-watch/internal/detector"
	"github.com/JakeFAU/price-error-watch/internal/hash/sha256"
	"github.com/JakeFAU/price-error-watch/internal/id/uuid"
	"github.com/JakeFAU/price-error-watch/internal/ledger"
	filestore "github.com/JakeFAU/price-error-watch/internal/ledger/file"
	gcsstore "github.com/JakeFAU/price-error-watch/internal/ledger/gcs"
	pgstore "github.com/JakeFAU/price-error-watch/internal/ledger/postgres"
	"github.com/JakeFAU/price-error-watch/internal/metrics"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
	"github.com/JakeFAU/price-error-watch/internal/orchestrator"
	"github.com/JakeFAU/price-error-watch/internal/scheduler"
	"github.com/JakeFAU/price-error-watch/internal/sink"
	"github.com/JakeFAU/price-error-watch/internal/sink/logsink"
	pubsubsink "github.com/JakeFAU/price-error-watch/internal/sink/pubsub"
	"github.com/JakeFAU/price-error-watch/internal/sink/telegram"
	"github.com/JakeFAU/price-error-watch/internal/telemetry"
)

// ServiceName identifies the process in logs and on the banner route.
const ServiceName = "price-error-watch"

// newPostgresStore opens the Postgres ledger store. Tests swap it for a mock pool.
var newPostgresStore = func(ctx context.Context, cfg pgstore.Config) (*pgstore.Store, error) {
	return pgstore.New(ctx, cfg)
}

// storeNames maps collector names to the store names shown in chat replies.
var storeNames = map[string]string{
	config.CollectorMercadoLivre: mercadolivre.Source,
	config.CollectorAmazon:       amazon.Source,
	config.CollectorCasasBahia:   casasbahia.Source,
}

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	clock        monitor.Clock
	registry     *catalog.Registry
	ledger       *ledger.Ledger
	orchestrator *orchestrator.Orchestrator
	scheduler    *scheduler.Scheduler
	sink         monitor.Sink
	apiServer    *api.Server
	telegram     *telegram.Sink
	bot          *bot.Bot

	pgStore      *pgstore.Store
	gcsClient    *storage.Client
	pubsubClient *pubsub.Client
	pubsubSink   *pubsubsink.Sink
	tracer       *sdktrace.TracerProvider
}

// Build creates the application's dependencies. logger may be nil, in which case
// one is built from cfg.Logging.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	app := &App{
		cfg:      cfg,
		logger:   logger,
		clock:    system.New(),
		registry: catalog.Default(cfg.Catalog.MaxPrices),
	}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("ledger", cfg.Ledger.Backend),
		zap.Strings("collectors", cfg.Collectors.Enabled),
		zap.Strings("sinks", cfg.Sink.Backends),
	)

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: ServiceName,
			Version:     cfg.Telemetry.Version,
			ProjectID:   cfg.Telemetry.ProjectID,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracer = tp
	}

	store, err := app.setupLedgerStore(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	app.ledger = ledger.Open(ctx, store, app.clock, ledger.Config{
		HistoryLimit: cfg.Ledger.HistoryLimit,
	}, logger.Named("ledger"))

	collectors, err := app.setupCollectors()
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	classifier := detector.New(app.ledger, app.registry, detector.Config{
		MinDiscountPercent:    cfg.Monitor.MinDiscountPercent,
		HistoricalDropPercent: cfg.Monitor.HistoricalDropPercent,
	}, logger.Named("detector"))

	ids := uuid.New()
	app.orchestrator, err = orchestrator.New(app.registry, collectors, classifier, app.clock, ids, orchestrator.Config{
		RequestDelay:          cfg.Monitor.RequestDelay,
		JitterMin:             cfg.Monitor.JitterMin,
		JitterMax:             cfg.Monitor.JitterMax,
		MaxParallelCollectors: cfg.Monitor.MaxParallelCollectors,
		SeenCap:               cfg.Monitor.SeenCap,
		SeenRetain:            cfg.Monitor.SeenRetain,
		Interval:              cfg.Monitor.Interval,
	}, logger.Named("orchestrator"))
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	app.sink, err = app.setupSinks(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.scheduler = scheduler.New(app.orchestrator, app.sink, scheduler.Config{
		Interval:      cfg.Monitor.Interval,
		FirstRunDelay: cfg.Monitor.FirstRunDelay,
	}, logger.Named("scheduler"))

	app.apiServer = api.NewServer(
		app.orchestrator,
		app.registry,
		app.ledger,
		app.scheduler,
		ids,
		app.clock,
		api.Config{ServiceName: ServiceName, APIKey: cfg.Server.APIKey},
		logger.Named("api"),
	)
	return app, nil
}

func (a *App) setupLedgerStore(ctx context.Context) (ledger.Store, error) {
	lc := a.cfg.Ledger
	switch lc.Backend {
	case config.LedgerPostgres:
		store, err := newPostgresStore(ctx, pgstore.Config{DSN: lc.DSN, Table: lc.Table})
		if err != nil {
			return nil, fmt.Errorf("postgres ledger init failed: %w", err)
		}
		a.pgStore = store
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres ledger schema failed: %w", err)
		}
		a.logger.Info("using postgres ledger", zap.String("table", lc.Table))
		return store, nil
	case config.LedgerGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: lc.Bucket, Object: lc.Object})
		if err != nil {
			return nil, fmt.Errorf("gcs ledger init failed: %w", err)
		}
		a.logger.Info("using gcs ledger", zap.String("uri", store.URI()))
		return store, nil
	default:
		store, err := filestore.New(filestore.Config{Path: lc.Path})
		if err != nil {
			return nil, fmt.Errorf("file ledger init failed: %w", err)
		}
		a.logger.Info("using file ledger", zap.String("path", store.Path()))
		return store, nil
	}
}

func (a *App) setupCollectors() ([]monitor.Collector, error) {
	cc := a.cfg.Collectors
	httpCfg := collector.HTTPConfig{Timeout: cc.Timeout, UserAgents: cc.UserAgents}
	hasher := sha256.New()

	collectors := make([]monitor.Collector, 0, len(cc.Enabled))
	for _, name := range cc.Enabled {
		var c monitor.Collector
		logger := a.logger.Named("collector." + name)
		switch name {
		case config.CollectorMercadoLivre:
			c = mercadolivre.New(mercadolivre.Config{BaseURL: cc.MercadoLivreURL, HTTP: httpCfg}, hasher, logger)
		case config.CollectorAmazon:
			amz, err := amazon.New(amazon.Config{BaseURL: cc.AmazonURL, HTTP: httpCfg}, hasher, logger)
			if err != nil {
				return nil, fmt.Errorf("amazon collector init failed: %w", err)
			}
			c = amz
		case config.CollectorCasasBahia:
			c = casasbahia.New(casasbahia.Config{BaseURL: cc.CasasBahiaURL, HTTP: httpCfg}, hasher, logger)
		default:
			return nil, fmt.Errorf("unknown collector %q", name)
		}
		// Throttle inside the retry loop so every attempt spends a token.
		c = collector.NewThrottled(c, cc.RatePerSecond, cc.RateBurst)
		if cc.MaxRetries > 0 {
			c = collector.NewRetrying(c, collector.NewExponentialRetryPolicy(cc.MaxRetries+1), logger)
		}
		collectors = append(collectors, c)
	}
	return collectors, nil
}

func (a *App) setupSinks(ctx context.Context) (monitor.Sink, error) {
	sc := a.cfg.Sink
	var sinks sink.Multi
	for _, name := range sc.Backends {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, logsink.New(a.logger.Named("sink.log")))
		case config.SinkTelegram:
			tg, err := a.setupTelegram()
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, tg)
		case config.SinkPubSub:
			client, err := pubsub.NewClient(ctx, sc.PubSub.ProjectID)
			if err != nil {
				return nil, fmt.Errorf("pubsub client init failed: %w", err)
			}
			a.pubsubClient = client
			ps, err := pubsubsink.New(client.Topic(sc.PubSub.Topic), a.clock, a.logger.Named("sink.pubsub"))
			if err != nil {
				return nil, fmt.Errorf("pubsub sink init failed: %w", err)
			}
			a.pubsubSink = ps
			sinks = append(sinks, ps)
			a.logger.Info("pubsub sink initialized",
				zap.String("project", sc.PubSub.ProjectID),
				zap.String("topic", sc.PubSub.Topic),
			)
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

// setupTelegram builds the Bot API client shared by the alert sink and the
// command bot.
func (a *App) setupTelegram() (*telegram.Sink, error) {
	tc := a.cfg.Sink.Telegram
	client, err := telegram.NewClient(telegram.Config{
		Token:   tc.Token,
		APIURL:  tc.APIURL,
		Timeout: max(telegram.DefaultTimeout, tc.PollTimeout+10*time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram client init failed: %w", err)
	}
	a.telegram, err = telegram.New(client, telegram.Config{
		ChatID: tc.ChatID,
		Pace:   tc.Pace,
	}, a.logger.Named("sink.telegram"))
	if err != nil {
		return nil, fmt.Errorf("telegram sink init failed: %w", err)
	}
	a.logger.Info("telegram sink initialized", zap.String("bot", client.Self.UserName))

	if tc.Commands {
		stores := make([]string, 0, len(a.cfg.Collectors.Enabled))
		for _, name := range a.cfg.Collectors.Enabled {
			if display, ok := storeNames[name]; ok {
				stores = append(stores, display)
			}
		}
		a.bot = bot.New(client, a.orchestrator, a.registry, bot.Config{
			PollTimeout: tc.PollTimeout,
			Stores:      stores,
		}, a.logger.Named("bot"))
	}
	return a.telegram, nil
}

// Handler exposes the HTTP surface.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Scan runs one cycle and returns its alerts. With deliver set the batch also
// goes to the configured sinks.
func (a *App) Scan(ctx context.Context, deliver bool) ([]string, error) {
	alerts, err := a.orchestrator.RunCycle(ctx)
	if err != nil {
		return alerts, fmt.Errorf("run cycle: %w", err)
	}
	if deliver && len(alerts) > 0 {
		if err := a.sink.Deliver(ctx, alerts); err != nil {
			return alerts, fmt.Errorf("deliver alerts: %w", err)
		}
	}
	return alerts, nil
}

// Run starts the scheduler, the command bot when configured and the HTTP server,
// and blocks until the context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.telegram != nil && a.cfg.Sink.Telegram.StartupNotice {
		notice := fmt.Sprintf("🚀 <b>Monitor de erros de preço iniciado</b>\nScan a cada <code>%s</code>.",
			a.cfg.Monitor.Interval)
		if err := a.telegram.Notify(ctx, notice); err != nil {
			a.logger.Warn("startup notice failed", zap.Error(err))
		}
	}

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		a.logger.Info("scheduler started",
			zap.Duration("interval", a.cfg.Monitor.Interval),
			zap.Duration("first_run_delay", a.cfg.Monitor.FirstRunDelay),
		)
		a.scheduler.Run(ctx)
	}()

	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if a.bot != nil {
			a.bot.Run(ctx)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("scheduler did not stop before shutdown deadline")
	}
	select {
	case <-botDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("command bot did not stop before shutdown deadline")
	}

	return a.Close()
}

// Close releases clients and flushes the logger.
func (a *App) Close() error {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubSink != nil {
		a.pubsubSink.Close()
		a.pubsubSink = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcsClient = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracer = nil
	}
}
