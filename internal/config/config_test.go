package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.Interval)
	assert.Equal(t, 30*time.Second, cfg.Monitor.FirstRunDelay)
	assert.InDelta(t, 40.0, cfg.Monitor.MinDiscountPercent, 1e-9)
	assert.InDelta(t, 40.0, cfg.Monitor.HistoricalDropPercent, 1e-9)
	assert.Equal(t, 2000, cfg.Monitor.SeenCap)
	assert.Equal(t, 1000, cfg.Monitor.SeenRetain)
	assert.Equal(t, []string{CollectorMercadoLivre, CollectorAmazon}, cfg.Collectors.Enabled)
	assert.Equal(t, 12*time.Second, cfg.Collectors.Timeout)
	assert.Equal(t, LedgerFile, cfg.Ledger.Backend)
	assert.Equal(t, 60, cfg.Ledger.HistoryLimit)
	assert.Equal(t, []string{SinkLog}, cfg.Sink.Backends)
	assert.Equal(t, 1500*time.Millisecond, cfg.Sink.Telegram.Pace)
	assert.True(t, cfg.Sink.Telegram.Commands)
	assert.Equal(t, 25*time.Second, cfg.Sink.Telegram.PollTimeout)
	assert.True(t, cfg.Sink.Telegram.StartupNotice)
	assert.InDelta(t, 6000.0, cfg.Catalog.MaxPrices["iphone"], 1e-9)
	assert.Len(t, cfg.Catalog.MaxPrices, len(DefaultMaxPrices))
	assert.False(t, cfg.Telemetry.Enabled)
	assert.InDelta(t, 1.0, cfg.Telemetry.SampleRatio, 1e-9)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  api_key: secret
logging:
  development: false
monitor:
  interval: 10m
  min_discount_percent: 50
  jitter_min: 1s
  jitter_max: 2s
  max_parallel_collectors: 2
catalog:
  max_prices:
    iphone: 4500
collectors:
  enabled: [mercadolivre, casasbahia]
  timeout: 5s
  max_retries: 0
ledger:
  backend: postgres
  dsn: postgres://localhost/prices
sink:
  backends: [log, telegram]
  telegram:
    token: abc
    chat_id: "42"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, 10*time.Minute, cfg.Monitor.Interval)
	assert.InDelta(t, 50.0, cfg.Monitor.MinDiscountPercent, 1e-9)
	assert.Equal(t, 2, cfg.Monitor.MaxParallelCollectors)
	assert.InDelta(t, 4500.0, cfg.Catalog.MaxPrices["iphone"], 1e-9)
	assert.InDelta(t, 3000.0, cfg.Catalog.MaxPrices["applewatch"], 1e-9)
	assert.Equal(t, []string{CollectorMercadoLivre, CollectorCasasBahia}, cfg.Collectors.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Collectors.Timeout)
	assert.Equal(t, LedgerPostgres, cfg.Ledger.Backend)
	assert.Equal(t, "price_history", cfg.Ledger.Table)
	assert.True(t, cfg.HasSink(SinkTelegram))
	assert.False(t, cfg.HasSink(SinkPubSub))
	assert.Equal(t, "42", cfg.Sink.Telegram.ChatID)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PRICEWATCH_MONITOR_HISTORICAL_DROP_PERCENT", "55")
	t.Setenv("PRICEWATCH_CATALOG_MAX_PRICES_POLO", "250")
	t.Setenv("PORT", "8081")
	t.Setenv("TELEGRAM_TOKEN", "from-env")
	t.Setenv("TELEGRAM_CHAT_ID", "7")
	t.Setenv("PRICEWATCH_SINK_BACKENDS", "telegram")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.InDelta(t, 55.0, cfg.Monitor.HistoricalDropPercent, 1e-9)
	assert.InDelta(t, 250.0, cfg.Catalog.MaxPrices["polo"], 1e-9)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Sink.Telegram.Token)
	assert.Equal(t, "7", cfg.Sink.Telegram.ChatID)
	assert.Equal(t, []string{SinkTelegram}, cfg.Sink.Backends)
}

func TestLoadLegacyNumericEnv(t *testing.T) {
	t.Setenv("SCAN_INTERVAL_MINUTES", "10")
	t.Setenv("REQUEST_DELAY", "2.5")
	t.Setenv("REQUEST_TIMEOUT", "12")
	t.Setenv("PRECO_MAX_IPHONE", "5500")
	t.Setenv("PRECO_MAX_ROUPA", "450")
	t.Setenv("PRECO_MAX_POLO", "999")
	t.Setenv("PRICEWATCH_CATALOG_MAX_PRICES_POLO", "250")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Monitor.Interval)
	assert.Equal(t, 2500*time.Millisecond, cfg.Monitor.RequestDelay)
	assert.Equal(t, 12*time.Second, cfg.Collectors.Timeout)
	assert.InDelta(t, 5500.0, cfg.Catalog.MaxPrices["iphone"], 1e-9)
	assert.InDelta(t, 450.0, cfg.Catalog.MaxPrices["roupa"], 1e-9)
	assert.InDelta(t, 250.0, cfg.Catalog.MaxPrices["polo"], 1e-9, "prefixed variable wins")
	assert.InDelta(t, 3000.0, cfg.Catalog.MaxPrices["applewatch"], 1e-9)
}

func TestLoadRejectsMalformedLegacyEnv(t *testing.T) {
	t.Setenv("SCAN_INTERVAL_MINUTES", "five")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCAN_INTERVAL_MINUTES")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadRejectsTelegramWithoutCredentials(t *testing.T) {
	path := writeConfig(t, `
sink:
  backends: [telegram]
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink.telegram.token")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 10000},
			Monitor: MonitorConfig{
				Interval:              time.Minute,
				MinDiscountPercent:    40,
				HistoricalDropPercent: 40,
				JitterMin:             time.Second,
				JitterMax:             2 * time.Second,
				SeenCap:               2000,
				SeenRetain:            1000,
			},
			Collectors: CollectorsConfig{Enabled: []string{CollectorAmazon}, Timeout: time.Second},
			Ledger:     LedgerConfig{Backend: LedgerFile, Path: "x.json", HistoryLimit: 60},
			Sink:       SinkConfig{Backends: []string{SinkLog}},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"discount range", func(c *Config) { c.Monitor.MinDiscountPercent = 120 }, "min_discount_percent"},
		{"jitter order", func(c *Config) { c.Monitor.JitterMax = 0 }, "jitter_max"},
		{"seen retain", func(c *Config) { c.Monitor.SeenRetain = 3000 }, "seen_retain"},
		{"negative max price", func(c *Config) { c.Catalog.MaxPrices = map[string]float64{"polo": -1} }, "catalog.max_prices.polo"},
		{"unknown collector", func(c *Config) { c.Collectors.Enabled = []string{"shopee"} }, "unknown collector"},
		{"no collectors", func(c *Config) { c.Collectors.Enabled = nil }, "at least one collector"},
		{"unknown ledger", func(c *Config) { c.Ledger.Backend = "redis" }, "unknown backend"},
		{"postgres dsn", func(c *Config) { c.Ledger.Backend = LedgerPostgres }, "ledger.dsn"},
		{"gcs bucket", func(c *Config) { c.Ledger.Backend = LedgerGCS }, "ledger.bucket"},
		{"pubsub topic", func(c *Config) { c.Sink.Backends = []string{SinkPubSub} }, "sink.pubsub.project_id"},
		{"unknown sink", func(c *Config) { c.Sink.Backends = []string{"email"} }, "unknown sink"},
		{"sample ratio", func(c *Config) { c.Telemetry = TelemetryConfig{Enabled: true} }, "telemetry.sample_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
