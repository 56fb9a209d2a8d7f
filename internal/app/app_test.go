package app

import (
	"context"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlkit/internal/config"
	"github.com/JakeFAU/crawlkit/internal/crawler"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	cfg.HTTP.Timeout = 2 * time.Second
	return cfg
}

func echoSpider(seed string) crawler.Spider {
	return crawler.Spider{
		Name:  "echo",
		Seeds: crawler.URLs(seed),
		Table: "echo_pages",
		Parse: func(_ context.Context, r crawler.FetchResult) iter.Seq2[*crawler.Record, error] {
			return func(yield func(*crawler.Record, error) bool) {
				yield(crawler.NewRecord("url", r.URL, "body", r.PageSource), nil)
			}
		},
	}
}

func TestRunWritesTextOutput(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	a := New(cfg, nil)
	fixed := time.Date(2024, 4, 1, 9, 0, 0, 0, time.Local)
	a.now = func() time.Time { return fixed }
	defer a.Close(context.Background())

	require.NoError(t, a.Run(context.Background(), echoSpider(srv.URL)))

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, "20240401", "echo.txt"))
	require.NoError(t, err)
	require.Equal(t, srv.URL+"\x01hello\n", string(data))
}

func TestBuildEngineSinkOrder(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topic = "records"
	cfg.Database.Enabled = true
	cfg.Database.URL = "mysql://u:p@localhost:3306/db"

	a := New(cfg, nil)
	sinks := a.sinkFactories(echoSpider("http://example.invalid"), cfg.DataDir)
	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{SinkText, SinkKafka, SinkDatabase}, names)
}

func TestRunFailsOnBadDatabaseScheme(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Database.Enabled = true
	cfg.Database.URL = "sqlite:///tmp/crawl.db"

	a := New(cfg, nil)
	err := a.Run(context.Background(), echoSpider("http://example.invalid"))
	require.ErrorIs(t, err, crawler.ErrConfiguration)
}

func TestBuildEngineMailRequiresSender(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Mail.Enabled = true
	cfg.Mail.Receivers = []string{"ops@example.com"}
	cfg.Mail.SMTP.Host = "smtp.example.com"

	_, err := New(cfg, nil).BuildEngine(echoSpider("http://example.invalid"))
	require.ErrorIs(t, err, crawler.ErrConfiguration)

	cfg.Mail.SMTP.From = "bot@example.com"
	engine, err := New(cfg, nil).BuildEngine(echoSpider("http://example.invalid"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(engine.Settings().RunDir, cfg.DataDir))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Metrics.ListenAddr = "127.0.0.1:0"
	a := New(cfg, nil)
	require.NotNil(t, a.metrics)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a.Close(ctx)
}
