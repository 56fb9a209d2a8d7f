// Package app holds the long-lived services for a crawl run and wires a spider and the
// loaded configuration into a dispatcher.Engine.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/config"
	"github.com/JakeFAU/crawlkit/internal/crawler"
	"github.com/JakeFAU/crawlkit/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/crawlkit/internal/fetcher/colly"
	"github.com/JakeFAU/crawlkit/internal/fetcher/headless"
	"github.com/JakeFAU/crawlkit/internal/metrics"
	"github.com/JakeFAU/crawlkit/internal/notify/mail"
	"github.com/JakeFAU/crawlkit/internal/publisher/kafka"
	"github.com/JakeFAU/crawlkit/internal/storage"
	"github.com/JakeFAU/crawlkit/internal/storage/textfile"
)

// Sink names, in declaration order.
const (
	SinkText     = "text"
	SinkKafka    = "kafka"
	SinkDatabase = "database"
)

// App holds the configuration, logger and optional metrics server shared by every run.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Server
	now     func() time.Time
}

// New creates an App and starts the metrics endpoint when one is configured.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, now: time.Now}
	if cfg.Metrics.ListenAddr != "" {
		a.metrics = metrics.Start(cfg.Metrics.ListenAddr, logger.Named("metrics"))
	}
	return a
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Run builds an engine for spider and runs it to completion.
func (a *App) Run(ctx context.Context, spider crawler.Spider) error {
	engine, err := a.BuildEngine(spider)
	if err != nil {
		return err
	}
	return engine.Run(ctx)
}

// BuildEngine creates the dated run directory and an engine whose factories open the
// configured sinks, the HTTP session and the browser.
func (a *App) BuildEngine(spider crawler.Spider) (*dispatcher.Engine, error) {
	runDir := a.cfg.RunDir(a.now())
	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create run directory: %v", crawler.ErrConfiguration, err)
	}
	settings := a.cfg.Settings(runDir)

	opts := dispatcher.Options{
		Spider:      spider,
		Settings:    settings,
		Sinks:       a.sinkFactories(spider, runDir),
		OpenSession: a.openSession,
		OpenBrowser: a.browserFactory(spider, settings.WithSpider(spider).Headers),
		Logger:      a.logger,
	}
	if a.cfg.Mail.Enabled {
		notifier, err := mail.New(mail.Config{
			Host:     a.cfg.Mail.SMTP.Host,
			Port:     a.cfg.Mail.SMTP.Port,
			Username: a.cfg.Mail.SMTP.Username,
			Password: a.cfg.Mail.SMTP.Password,
			SSL:      a.cfg.Mail.SMTP.SSL,
			From:     a.cfg.Mail.SMTP.From,
		}, a.logger.Named("mail"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", crawler.ErrConfiguration, err)
		}
		opts.Notifier = notifier
	}
	return dispatcher.New(opts), nil
}

func (a *App) sinkFactories(spider crawler.Spider, runDir string) []dispatcher.SinkFactory {
	var sinks []dispatcher.SinkFactory
	if a.cfg.Text.Enabled {
		path := filepath.Join(runDir, spider.Name+".txt")
		sinks = append(sinks, dispatcher.SinkFactory{
			Name: SinkText,
			Open: func(context.Context) (crawler.Sink, error) {
				return textfile.Open(path)
			},
		})
	}
	if a.cfg.Kafka.Enabled {
		sinks = append(sinks, dispatcher.SinkFactory{
			Name: SinkKafka,
			Open: func(context.Context) (crawler.Sink, error) {
				return kafka.NewSink(kafka.Config{
					Brokers: a.cfg.Kafka.Brokers,
					Topic:   a.cfg.Kafka.Topic,
					Spider:  spider.Name,
				})
			},
		})
	}
	if a.cfg.Database.Enabled {
		sinks = append(sinks, dispatcher.SinkFactory{
			Name: SinkDatabase,
			Open: func(ctx context.Context) (crawler.Sink, error) {
				return storage.OpenTable(ctx, storage.DatabaseConfig{
					URL:      a.cfg.Database.URL,
					Table:    spider.Table,
					MaxConns: a.cfg.Database.MaxConns,
				})
			},
		})
	}
	return sinks
}

func (a *App) openSession(context.Context) (crawler.HTTPSession, error) {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		RateLimit: a.cfg.HTTP.RateLimit,
	}, a.logger.Named("http")), nil
}

func (a *App) browserFactory(spider crawler.Spider, headers http.Header) func(context.Context) (crawler.Browser, error) {
	cfg := headless.Config{
		Engine:            a.cfg.Browser.Engine,
		ExecPath:          a.cfg.Browser.Path,
		Headless:          a.cfg.Browser.Headless,
		UserAgent:         headers.Get("User-Agent"),
		Headers:           headers,
		NavigationTimeout: a.cfg.Browser.NavTimeout,
	}
	if spider.Headless != nil {
		cfg.Headless = *spider.Headless
	}
	return func(ctx context.Context) (crawler.Browser, error) {
		b, err := headless.New(cfg, a.logger.Named("browser"))
		if err != nil {
			return nil, err
		}
		if err := b.Start(ctx); err != nil {
			_ = b.Close()
			return nil, err
		}
		return b, nil
	}
}

// Close stops the metrics endpoint and flushes the logger.
func (a *App) Close(ctx context.Context) {
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("error stopping metrics server", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
