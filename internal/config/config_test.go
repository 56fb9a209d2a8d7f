package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlkit/internal/crawler"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, "utf-8", cfg.HTTP.Encoding)
	require.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	require.Equal(t, 3, cfg.HTTP.Retry)
	require.Zero(t, cfg.HTTP.RetryBackoff)
	require.Equal(t, "chrome", cfg.Browser.Engine)
	require.True(t, cfg.Browser.Headless)
	require.Equal(t, 500*time.Millisecond, cfg.Browser.PollInterval)
	require.Equal(t, 10000, cfg.Queue.Capacity)
	require.True(t, cfg.Text.Enabled)
	require.False(t, cfg.Database.Enabled)
	require.False(t, cfg.Mail.Enabled)
	require.Equal(t, "console", cfg.Logging.Format)
	require.Empty(t, cfg.Metrics.ListenAddr)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "crawlkit.yaml")
	configYAML := `
data_dir: /var/lib/crawlkit
http:
  headers:
    referer: https://example.com/
  encoding: gbk
  timeout: 8s
  retry: 5
  retry_backoff: 250ms
  rate_limit: 2.5
browser:
  render: true
  engine: chromium
  path: /usr/bin/chromium
  headless: false
  nav_timeout: 1m
  poll_interval: 250ms
queue:
  capacity: 500
database:
  enabled: true
  url: mysql://crawler:secret@db:3306/p2p
  max_conns: 8
kafka:
  enabled: true
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  topic: crawl-records
mail:
  enabled: true
  receivers: ["ops@example.com"]
  smtp:
    host: smtp.example.com
    ssl: true
    username: bot@example.com
    password: hunter2
logging:
  development: true
  format: json
metrics:
  listen_addr: ":9102"
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/crawlkit", cfg.DataDir)
	require.Equal(t, map[string]string{"referer": "https://example.com/"}, cfg.HTTP.Headers)
	require.Equal(t, 8*time.Second, cfg.HTTP.Timeout)
	require.Equal(t, 250*time.Millisecond, cfg.HTTP.RetryBackoff)
	require.InDelta(t, 2.5, cfg.HTTP.RateLimit, 0.001)
	require.True(t, cfg.Browser.Render)
	require.Equal(t, "chromium", cfg.Browser.Engine)
	require.False(t, cfg.Browser.Headless)
	require.Equal(t, time.Minute, cfg.Browser.NavTimeout)
	require.Equal(t, 500, cfg.Queue.Capacity)
	require.Equal(t, 8, cfg.Database.MaxConns)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	require.True(t, cfg.Mail.SMTP.SSL)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, ":9102", cfg.Metrics.ListenAddr)

	settings := cfg.Settings("/tmp/run")
	require.Equal(t, "https://example.com/", settings.Headers.Get("Referer"))
	require.NotEmpty(t, settings.Headers.Get("User-Agent"))
	require.Equal(t, "gbk", settings.Encoding)
	require.Equal(t, 5, settings.Retry)
	require.True(t, settings.Render)
	require.Equal(t, 500, settings.QueueCapacity)
	require.Equal(t, []string{"ops@example.com"}, settings.MailReceivers)
	require.NoError(t, settings.Validate())
}

func TestValidateAcceptsEveryBrowserEngine(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)
	for _, engine := range []string{"chrome", "Chromium", "headless", "firefox"} {
		cfg := base
		cfg.Browser.Engine = engine
		require.NoError(t, cfg.Validate(), engine)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = " " }},
		{"zero timeout", func(c *Config) { c.HTTP.Timeout = 0 }},
		{"zero retry", func(c *Config) { c.HTTP.Retry = 0 }},
		{"negative backoff", func(c *Config) { c.HTTP.RetryBackoff = -time.Second }},
		{"bad method", func(c *Config) { c.HTTP.Method = "PUT" }},
		{"unknown engine", func(c *Config) { c.Browser.Engine = "lynx" }},
		{"zero poll interval", func(c *Config) { c.Browser.PollInterval = 0 }},
		{"zero queue", func(c *Config) { c.Queue.Capacity = 0 }},
		{"database without url", func(c *Config) { c.Database.Enabled = true }},
		{"kafka without topic", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = []string{"k:9092"}
		}},
		{"mail without host", func(c *Config) { c.Mail.Enabled = true }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), crawler.ErrConfiguration)
		})
	}
}

func TestRunDir(t *testing.T) {
	t.Parallel()

	cfg := Config{DataDir: "/data"}
	got := cfg.RunDir(time.Date(2024, 2, 9, 23, 0, 0, 0, time.UTC))
	require.Equal(t, filepath.Join("/data", "20240209"), got)
}
