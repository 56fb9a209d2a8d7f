package crawler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validSettings() Settings {
	s := DefaultSettings()
	s.RunDir = "/tmp/run"
	return s
}

func TestSettingsWithSpider(t *testing.T) {
	t.Parallel()

	base := validSettings()
	base.Headers.Set("User-Agent", "crawlkit")
	probe := MustProbe("regex", "ready")

	got := base.WithSpider(Spider{
		Name:          "s",
		Render:        Bool(true),
		Method:        "post",
		Headers:       http.Header{"Referer": {"http://r"}},
		Encoding:      "gbk",
		Timeout:       9 * time.Second,
		Probe:         probe,
		MailReceivers: []string{"ops@example.com"},
	})

	require.True(t, got.Render)
	require.Equal(t, "post", got.Method)
	require.Equal(t, "gbk", got.Encoding)
	require.Equal(t, 9*time.Second, got.Timeout)
	require.Same(t, probe, got.Probe)
	require.Equal(t, "crawlkit", got.Headers.Get("User-Agent"))
	require.Equal(t, "http://r", got.Headers.Get("Referer"))
	require.Equal(t, []string{"ops@example.com"}, got.MailReceivers)
	require.Empty(t, base.Headers.Get("Referer"), "base headers must not be mutated")
	require.NoError(t, got.Validate())
}

func TestSettingsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"run dir", func(s *Settings) { s.RunDir = "" }},
		{"method", func(s *Settings) { s.Method = "PUT" }},
		{"encoding", func(s *Settings) { s.Encoding = "not-a-charset" }},
		{"timeout", func(s *Settings) { s.Timeout = 0 }},
		{"retry", func(s *Settings) { s.Retry = 0 }},
		{"backoff", func(s *Settings) { s.RetryBackoff = -time.Second }},
		{"poll interval", func(s *Settings) { s.Render = true; s.PollInterval = 0 }},
		{"queue", func(s *Settings) { s.QueueCapacity = 0 }},
		{"mail receivers", func(s *Settings) { s.MailEnabled = true }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tc.mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("Validate() error = %v, want ErrConfiguration", err)
			}
		})
	}
}
