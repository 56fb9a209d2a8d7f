// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/crawlkit/internal/crawler"
)

// EnvPrefix prefixes every environment override, e.g. CRAWLKIT_HTTP_TIMEOUT=10s.
const EnvPrefix = "CRAWLKIT"

// Config captures all run configuration knobs loaded via Viper.
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Text     TextConfig     `mapstructure:"text"`
	Database DatabaseConfig `mapstructure:"database"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Mail     MailConfig     `mapstructure:"mail"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// HTTPConfig configures static requests.
type HTTPConfig struct {
	Headers      map[string]string `mapstructure:"headers"`
	UserAgent    string            `mapstructure:"user_agent"`
	Encoding     string            `mapstructure:"encoding"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	Retry        int               `mapstructure:"retry"`
	RetryBackoff time.Duration     `mapstructure:"retry_backoff"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	// Method is the default static method, GET or POST.
	Method string `mapstructure:"method"`
}

// BrowserConfig configures the rendering browser.
type BrowserConfig struct {
	// Render makes bare URLs go through the browser unless a spider overrides it.
	Render       bool          `mapstructure:"render"`
	Engine       string        `mapstructure:"engine"`
	Path         string        `mapstructure:"path"`
	Headless     bool          `mapstructure:"headless"`
	NavTimeout   time.Duration `mapstructure:"nav_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// QueueConfig sizes the per-sink queues.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// TextConfig toggles the delimited text sink.
type TextConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DatabaseConfig controls the relational sink.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

// KafkaConfig controls the message topic sink.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MailConfig controls failure notifications.
type MailConfig struct {
	Enabled   bool       `mapstructure:"enabled"`
	Receivers []string   `mapstructure:"receivers"`
	SMTP      SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig describes the outgoing mail account.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSL      bool   `mapstructure:"ssl"`
	From     string `mapstructure:"from"`
}

// LoggingConfig toggles zap development features and output format.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Format      string `mapstructure:"format"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig enables the Prometheus endpoint when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
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
	v.SetDefault("data_dir", "./data")
	v.SetDefault("http.headers", map[string]string{})
	v.SetDefault("http.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("http.encoding", "utf-8")
	v.SetDefault("http.timeout", "5s")
	v.SetDefault("http.retry", 3)
	v.SetDefault("http.retry_backoff", "0s")
	v.SetDefault("http.rate_limit", 0)
	v.SetDefault("http.method", crawler.MethodGet)
	v.SetDefault("browser.render", false)
	v.SetDefault("browser.engine", "chrome")
	v.SetDefault("browser.path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout", "30s")
	v.SetDefault("browser.poll_interval", "500ms")
	v.SetDefault("queue.capacity", 10000)
	v.SetDefault("text.enabled", true)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "")
	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.receivers", []string{})
	v.SetDefault("mail.smtp.host", "")
	v.SetDefault("mail.smtp.port", 0)
	v.SetDefault("mail.smtp.username", "")
	v.SetDefault("mail.smtp.password", "")
	v.SetDefault("mail.smtp.ssl", false)
	v.SetDefault("mail.smtp.from", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.listen_addr", "")
}

var browserEngines = map[string]bool{"chrome": true, "chromium": true, "headless": true, "firefox": true}

// Validate enforces required values and reasonable limits. Every failure wraps
// crawler.ErrConfiguration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return invalid("data_dir must be set")
	}
	if c.HTTP.Timeout <= 0 {
		return invalid("http.timeout must be > 0")
	}
	if c.HTTP.Retry < 1 {
		return invalid("http.retry must be >= 1")
	}
	if c.HTTP.RetryBackoff < 0 {
		return invalid("http.retry_backoff must be >= 0")
	}
	if c.HTTP.RateLimit < 0 {
		return invalid("http.rate_limit must be >= 0")
	}
	if _, err := crawler.NormalizeMethod(c.HTTP.Method); err != nil {
		return err
	}
	engine := strings.ToLower(c.Browser.Engine)
	if !browserEngines[engine] {
		return invalid(fmt.Sprintf("browser.engine %q is not one of chrome, chromium, headless, firefox", c.Browser.Engine))
	}
	if c.Browser.NavTimeout <= 0 {
		return invalid("browser.nav_timeout must be > 0")
	}
	if c.Browser.PollInterval <= 0 {
		return invalid("browser.poll_interval must be > 0")
	}
	if c.Queue.Capacity < 1 {
		return invalid("queue.capacity must be >= 1")
	}
	if c.Database.Enabled && strings.TrimSpace(c.Database.URL) == "" {
		return invalid("database.url must be set when the database sink is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return invalid("kafka.brokers and kafka.topic must be set when the kafka sink is enabled")
	}
	if c.Mail.Enabled && c.Mail.SMTP.Host == "" {
		return invalid("mail.smtp.host must be set when mail is enabled")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return invalid(fmt.Sprintf("logging.format %q is not console or json", c.Logging.Format))
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", crawler.ErrConfiguration, msg)
}

// RunDir returns the dated output directory for a run started at t.
func (c Config) RunDir(t time.Time) string {
	return filepath.Join(c.DataDir, t.Format("20060102"))
}

// Settings converts the run-wide configuration into engine settings. Per-spider overrides
// are applied later by the engine.
func (c Config) Settings(runDir string) crawler.Settings {
	s := crawler.DefaultSettings()
	s.RunDir = runDir
	s.Headers = http.Header{}
	for k, v := range c.HTTP.Headers {
		s.Headers.Set(k, v)
	}
	if c.HTTP.UserAgent != "" && s.Headers.Get("User-Agent") == "" {
		s.Headers.Set("User-Agent", c.HTTP.UserAgent)
	}
	s.Encoding = c.HTTP.Encoding
	s.Timeout = c.HTTP.Timeout
	s.Retry = c.HTTP.Retry
	s.RetryBackoff = c.HTTP.RetryBackoff
	s.Method = strings.ToUpper(c.HTTP.Method)
	s.Render = c.Browser.Render
	s.PollInterval = c.Browser.PollInterval
	s.QueueCapacity = c.Queue.Capacity
	s.MailEnabled = c.Mail.Enabled
	s.MailReceivers = append([]string(nil), c.Mail.Receivers...)
	return s
}
