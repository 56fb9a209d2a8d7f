package crawler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// Settings is the resolved, validated run configuration for one spider.
type Settings struct {
	// RunDir receives the text output and recovery dumps.
	RunDir   string
	Headers  http.Header
	Encoding string
	Timeout  time.Duration

	Retry        int
	RetryBackoff time.Duration

	PollInterval time.Duration
	Render       bool
	Method       string
	Probe        *Probe

	QueueCapacity int

	MailEnabled   bool
	MailReceivers []string
}

// DefaultSettings mirrors the documented configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		Headers:       http.Header{},
		Encoding:      "utf-8",
		Timeout:       5 * time.Second,
		Retry:         3,
		PollInterval:  500 * time.Millisecond,
		Method:        MethodGet,
		QueueCapacity: 10000,
	}
}

// WithSpider layers the spider's overrides on top of s.
func (s Settings) WithSpider(sp Spider) Settings {
	out := s
	out.Headers = s.Headers.Clone()
	if out.Headers == nil {
		out.Headers = http.Header{}
	}
	for k, vs := range sp.Headers {
		out.Headers[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if sp.Encoding != "" {
		out.Encoding = sp.Encoding
	}
	if sp.Timeout > 0 {
		out.Timeout = sp.Timeout
	}
	if sp.Render != nil {
		out.Render = *sp.Render
	}
	if sp.Method != "" {
		out.Method = sp.Method
	}
	if sp.Probe != nil {
		out.Probe = sp.Probe
	}
	if len(sp.MailReceivers) > 0 {
		out.MailReceivers = append([]string(nil), sp.MailReceivers...)
	}
	return out
}

// Validate reports the first invalid setting as an ErrConfiguration.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.RunDir) == "" {
		return fmt.Errorf("%w: run directory must be set", ErrConfiguration)
	}
	if _, err := NormalizeMethod(s.Method); err != nil {
		return err
	}
	if e, _ := charset.Lookup(s.Encoding); e == nil {
		return fmt.Errorf("%w: unknown encoding %q", ErrConfiguration, s.Encoding)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrConfiguration)
	}
	if s.Retry < 1 {
		return fmt.Errorf("%w: retry must be at least 1", ErrConfiguration)
	}
	if s.RetryBackoff < 0 {
		return fmt.Errorf("%w: retry backoff must not be negative", ErrConfiguration)
	}
	if s.Render && s.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrConfiguration)
	}
	if s.QueueCapacity < 1 {
		return fmt.Errorf("%w: queue capacity must be at least 1", ErrConfiguration)
	}
	if s.MailEnabled && len(s.MailReceivers) == 0 {
		return fmt.Errorf("%w: mail enabled without receivers", ErrConfiguration)
	}
	return nil
}

// NormalizeMethod upper-cases method and rejects anything but GET and POST.
func NormalizeMethod(method string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	switch m {
	case MethodGet, MethodPost:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unsupported request method %q", ErrConfiguration, method)
	}
}
