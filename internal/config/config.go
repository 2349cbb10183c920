// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PRICEWATCH_SERVER_PORT.
const EnvPrefix = "PRICEWATCH"

// Known backend and collector names.
const (
	LedgerFile     = "file"
	LedgerPostgres = "postgres"
	LedgerGCS      = "gcs"

	SinkLog      = "log"
	SinkTelegram = "telegram"
	SinkPubSub   = "pubsub"

	CollectorMercadoLivre = "mercadolivre"
	CollectorAmazon       = "amazon"
	CollectorCasasBahia   = "casasbahia"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Collectors CollectorsConfig `mapstructure:"collectors"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig selects the zap preset.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MonitorConfig controls cycle cadence and detection thresholds.
type MonitorConfig struct {
	Interval              time.Duration `mapstructure:"interval"`
	FirstRunDelay         time.Duration `mapstructure:"first_run_delay"`
	MinDiscountPercent    float64       `mapstructure:"min_discount_percent"`
	HistoricalDropPercent float64       `mapstructure:"historical_drop_percent"`
	RequestDelay          time.Duration `mapstructure:"request_delay"`
	JitterMin             time.Duration `mapstructure:"jitter_min"`
	JitterMax             time.Duration `mapstructure:"jitter_max"`
	MaxParallelCollectors int           `mapstructure:"max_parallel_collectors"`
	SeenCap               int           `mapstructure:"seen_cap"`
	SeenRetain            int           `mapstructure:"seen_retain"`
}

// CatalogConfig overrides per-category collector price ceilings.
type CatalogConfig struct {
	MaxPrices map[string]float64 `mapstructure:"max_prices"`
}

// CollectorsConfig selects and tunes the retail collectors.
type CollectorsConfig struct {
	Enabled         []string      `mapstructure:"enabled"`
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgents      []string      `mapstructure:"user_agents"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	RateBurst       int           `mapstructure:"rate_burst"`
	MercadoLivreURL string        `mapstructure:"mercadolivre_url"`
	AmazonURL       string        `mapstructure:"amazon_url"`
	CasasBahiaURL   string        `mapstructure:"casasbahia_url"`
}

// LedgerConfig selects the price history store.
type LedgerConfig struct {
	Backend      string `mapstructure:"backend"`
	Path         string `mapstructure:"path"`
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	Bucket       string `mapstructure:"bucket"`
	Object       string `mapstructure:"object"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

// SinkConfig selects where alert batches are delivered.
type SinkConfig struct {
	Backends []string       `mapstructure:"backends"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// TelegramConfig configures the Bot API sink and the command bot.
type TelegramConfig struct {
	Token         string        `mapstructure:"token"`
	ChatID        string        `mapstructure:"chat_id"`
	APIURL        string        `mapstructure:"api_url"`
	Pace          time.Duration `mapstructure:"pace"`
	Commands      bool          `mapstructure:"commands"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	StartupNotice bool          `mapstructure:"startup_notice"`
}

// PubSubConfig configures the Pub/Sub sink.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ProjectID   string  `mapstructure:"project_id"`
	Version     string  `mapstructure:"version"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// DefaultMaxPrices are the built-in collector ceilings per category, in BRL.
var DefaultMaxPrices = map[string]float64{
	"iphone":     6000,
	"applewatch": 3000,
	"garmin":     2500,
	"perfume":    800,
	"maquiagem":  500,
	"polo":       300,
	"roupa":      500,
}

// Load reads configuration from defaults, an optional file at path and the
// environment, then validates it.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if err := applyLegacyEnv(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 10000)
	v.SetDefault("logging.development", true)

	v.SetDefault("monitor.interval", 5*time.Minute)
	v.SetDefault("monitor.first_run_delay", 30*time.Second)
	v.SetDefault("monitor.min_discount_percent", 40)
	v.SetDefault("monitor.historical_drop_percent", 40)
	v.SetDefault("monitor.request_delay", 2*time.Second)
	v.SetDefault("monitor.jitter_min", 500*time.Millisecond)
	v.SetDefault("monitor.jitter_max", 1500*time.Millisecond)
	v.SetDefault("monitor.max_parallel_collectors", 0)
	v.SetDefault("monitor.seen_cap", 2000)
	v.SetDefault("monitor.seen_retain", 1000)

	for key, price := range DefaultMaxPrices {
		v.SetDefault("catalog.max_prices."+key, price)
	}

	v.SetDefault("collectors.enabled", []string{CollectorMercadoLivre, CollectorAmazon})
	v.SetDefault("collectors.timeout", 12*time.Second)
	v.SetDefault("collectors.user_agents", []string{})
	v.SetDefault("collectors.max_retries", 2)
	v.SetDefault("collectors.rate_per_second", 1.0)
	v.SetDefault("collectors.rate_burst", 2)
	v.SetDefault("collectors.mercadolivre_url", "")
	v.SetDefault("collectors.amazon_url", "")
	v.SetDefault("collectors.casasbahia_url", "")

	v.SetDefault("ledger.backend", LedgerFile)
	v.SetDefault("ledger.path", "data/price_history.json")
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("ledger.table", "price_history")
	v.SetDefault("ledger.bucket", "")
	v.SetDefault("ledger.object", "ledger/price_history.json")
	v.SetDefault("ledger.history_limit", 60)

	v.SetDefault("sink.backends", []string{SinkLog})
	v.SetDefault("sink.telegram.token", "")
	v.SetDefault("sink.telegram.chat_id", "")
	v.SetDefault("sink.telegram.api_url", "https://api.telegram.org")
	v.SetDefault("sink.telegram.pace", 1500*time.Millisecond)
	v.SetDefault("sink.telegram.commands", true)
	v.SetDefault("sink.telegram.poll_timeout", 25*time.Second)
	v.SetDefault("sink.telegram.startup_notice", true)
	v.SetDefault("sink.pubsub.project_id", "")
	v.SetDefault("sink.pubsub.topic", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.version", "dev")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// bindLegacyEnv accepts the unprefixed variables common on hosting platforms
// alongside the prefixed ones.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":                  {EnvPrefix + "_SERVER_PORT", "PORT"},
		"sink.telegram.token":          {EnvPrefix + "_SINK_TELEGRAM_TOKEN", "TELEGRAM_TOKEN"},
		"sink.telegram.chat_id":        {EnvPrefix + "_SINK_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"},
		"monitor.min_discount_percent": {EnvPrefix + "_MONITOR_MIN_DISCOUNT_PERCENT", "DESCONTO_MINIMO_PORCENTO"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// legacyUnits maps unprefixed numeric variables onto duration keys. The
// values are plain numbers in the given unit.
var legacyUnits = []struct {
	key  string
	env  string
	unit time.Duration
}{
	{"monitor.interval", "SCAN_INTERVAL_MINUTES", time.Minute},
	{"monitor.request_delay", "REQUEST_DELAY", time.Second},
	{"collectors.timeout", "REQUEST_TIMEOUT", time.Second},
}

// applyLegacyEnv converts the unprefixed numeric variables (durations in
// minutes or seconds, PRECO_MAX_<CATEGORY> ceilings) that viper cannot bind
// directly. A prefixed variable for the same key wins.
func applyLegacyEnv(v *viper.Viper) error {
	for _, l := range legacyUnits {
		n, ok, err := legacyNumber(l.key, l.env)
		if err != nil {
			return err
		}
		if ok {
			v.Set(l.key, time.Duration(n*float64(l.unit)))
		}
	}
	for category := range DefaultMaxPrices {
		key := "catalog.max_prices." + category
		n, ok, err := legacyNumber(key, "PRECO_MAX_"+strings.ToUpper(category))
		if err != nil {
			return err
		}
		if ok {
			v.Set(key, n)
		}
	}
	return nil
}

func legacyNumber(key, env string) (float64, bool, error) {
	prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if _, set := os.LookupEnv(prefixed); set {
		return 0, false, nil
	}
	raw, set := os.LookupEnv(env)
	if !set || strings.TrimSpace(raw) == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", env, err)
	}
	return n, true, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	errs = append(errs, c.Monitor.validate()...)
	for key, price := range c.Catalog.MaxPrices {
		if price < 0 {
			errs = append(errs, fmt.Errorf("catalog.max_prices.%s must be >= 0", key))
		}
	}
	errs = append(errs, c.Collectors.validate()...)
	errs = append(errs, c.Ledger.validate()...)
	errs = append(errs, c.Sink.validate()...)
	if c.Telemetry.Enabled && (c.Telemetry.SampleRatio <= 0 || c.Telemetry.SampleRatio > 1) {
		errs = append(errs, errors.New("telemetry.sample_ratio must be in (0, 1]"))
	}
	return errors.Join(errs...)
}

func (m MonitorConfig) validate() []error {
	var errs []error
	if m.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be > 0"))
	}
	if m.FirstRunDelay < 0 {
		errs = append(errs, errors.New("monitor.first_run_delay must be >= 0"))
	}
	if m.MinDiscountPercent <= 0 || m.MinDiscountPercent > 100 {
		errs = append(errs, errors.New("monitor.min_discount_percent must be in (0, 100]"))
	}
	if m.HistoricalDropPercent <= 0 || m.HistoricalDropPercent > 100 {
		errs = append(errs, errors.New("monitor.historical_drop_percent must be in (0, 100]"))
	}
	if m.RequestDelay < 0 || m.JitterMin < 0 {
		errs = append(errs, errors.New("monitor.request_delay and monitor.jitter_min must be >= 0"))
	}
	if m.JitterMax < m.JitterMin {
		errs = append(errs, errors.New("monitor.jitter_max must be >= monitor.jitter_min"))
	}
	if m.MaxParallelCollectors < 0 {
		errs = append(errs, errors.New("monitor.max_parallel_collectors must be >= 0"))
	}
	if m.SeenCap <= 0 || m.SeenRetain <= 0 || m.SeenRetain > m.SeenCap {
		errs = append(errs, errors.New("monitor.seen_retain must be in (0, seen_cap]"))
	}
	return errs
}

func (c CollectorsConfig) validate() []error {
	var errs []error
	if len(c.Enabled) == 0 {
		errs = append(errs, errors.New("collectors.enabled must list at least one collector"))
	}
	known := []string{CollectorMercadoLivre, CollectorAmazon, CollectorCasasBahia}
	for _, name := range c.Enabled {
		if !slices.Contains(known, name) {
			errs = append(errs, fmt.Errorf("collectors.enabled: unknown collector %q", name))
		}
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("collectors.timeout must be > 0"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("collectors.max_retries must be >= 0"))
	}
	if c.RatePerSecond < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("collectors.rate_per_second and collectors.rate_burst must be >= 0"))
	}
	return errs
}

func (l LedgerConfig) validate() []error {
	var errs []error
	switch l.Backend {
	case LedgerFile:
		if l.Path == "" {
			errs = append(errs, errors.New("ledger.path is required for the file backend"))
		}
	case LedgerPostgres:
		if l.DSN == "" {
			errs = append(errs, errors.New("ledger.dsn is required for the postgres backend"))
		}
	case LedgerGCS:
		if l.Bucket == "" {
			errs = append(errs, errors.New("ledger.bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.backend: unknown backend %q", l.Backend))
	}
	if l.HistoryLimit <= 0 {
		errs = append(errs, errors.New("ledger.history_limit must be > 0"))
	}
	return errs
}

func (s SinkConfig) validate() []error {
	var errs []error
	if len(s.Backends) == 0 {
		errs = append(errs, errors.New("sink.backends must list at least one sink"))
	}
	for _, name := range s.Backends {
		switch name {
		case SinkLog:
		case SinkTelegram:
			if s.Telegram.Token == "" || s.Telegram.ChatID == "" {
				errs = append(errs, errors.New("sink.telegram.token and sink.telegram.chat_id are required for the telegram sink"))
			}
		case SinkPubSub:
			if s.PubSub.ProjectID == "" || s.PubSub.Topic == "" {
				errs = append(errs, errors.New("sink.pubsub.project_id and sink.pubsub.topic are required for the pubsub sink"))
			}
		default:
			errs = append(errs, fmt.Errorf("sink.backends: unknown sink %q", name))
		}
	}
	return errs
}

// HasSink reports whether name is among the configured sink backends.
func (c Config) HasSink(name string) bool {
	return slices.Contains(c.Sink.Backends, name)
}
