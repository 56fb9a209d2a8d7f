// Package collyfetcher implements the crawl HTTP session using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/crawlkit/internal/crawler"
	"github.com/JakeFAU/crawlkit/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// RateLimit caps requests per second across the session. Zero disables the limit.
	RateLimit float64
}

// Session performs single-attempt requests. Every request runs on a clone of one base
// collector, so the cookie jar and connection pool are shared for the whole run.
type Session struct {
	cfg           Config
	transport     *http.Transport
	baseCollector *colly.Collector
	limiter       *rate.Limiter
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Session.
func New(cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(0),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	transport := newHTTPTransport()
	c.WithTransport(transport)

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Session{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		limiter:       limiter,
		logger:        logger,
	}
}

// Do executes one request. Non-200 responses are returned, not treated as errors.
func (s *Session) Do(ctx context.Context, request crawler.HTTPRequest) (crawler.HTTPResponse, error) {
	target, err := buildURL(request.URL, request.Query)
	if err != nil {
		return crawler.HTTPResponse{}, err
	}
	if err := s.wait(ctx, target); err != nil {
		return crawler.HTTPResponse{}, err
	}

	var (
		result   crawler.HTTPResponse
		fetchErr error
	)
	collector := s.buildCollector(ctx, request, &result, &fetchErr)
	if err := s.runCollector(ctx, collector, request, target, &fetchErr); err != nil {
		return crawler.HTTPResponse{}, err
	}
	return result, nil
}

func (s *Session) wait(ctx context.Context, target string) error {
	if s.limiter == nil {
		return nil
	}
	start := time.Now()
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(target, waited)
	}
	return nil
}

func (s *Session) buildCollector(
	ctx context.Context,
	request crawler.HTTPRequest,
	result *crawler.HTTPResponse,
	fetchErr *error,
) *colly.Collector {
	collector := s.baseCollector.Clone()
	collector.Context = ctx
	timeout := request.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	s.configureCollectorHooks(collector, request, result, fetchErr)
	return collector
}

func (s *Session) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.HTTPRequest,
	result *crawler.HTTPResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.ResponseCharacterEncoding = request.Encoding
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = crawler.HTTPResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       strings.ToValidUTF8(string(r.Body), ""),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (s *Session) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	request crawler.HTTPRequest,
	target string,
	fetchErr *error,
) error {
	method := request.Method
	if method == "" {
		method = crawler.MethodGet
	}
	var body *strings.Reader
	if request.Body != "" {
		body = strings.NewReader(request.Body)
	}
	hdr := request.Headers.Clone()
	if hdr == nil {
		hdr = http.Header{}
	}

	done := make(chan error, 1)
	go func() {
		if body == nil {
			done <- collector.Request(method, target, nil, nil, hdr)
			return
		}
		done <- collector.Request(method, target, body, nil, hdr)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly request failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

// SetCookies loads cookies into the shared jar, scoped by each cookie's domain and path.
func (s *Session) SetCookies(cookies []*http.Cookie) error {
	byURL := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		u := scheme + "://" + host + path
		byURL[u] = append(byURL[u], c)
	}
	for u, cs := range byURL {
		if err := s.baseCollector.SetCookies(u, cs); err != nil {
			return fmt.Errorf("set cookies for %s: %w", u, err)
		}
	}
	s.logger.Debug("cookies imported", zap.Int("count", len(cookies)))
	return nil
}

// Cookies returns the cookies the session would send to rawURL.
func (s *Session) Cookies(rawURL string) []*http.Cookie {
	return s.baseCollector.Cookies(rawURL)
}

// Close releases idle connections. It is safe to call more than once.
func (s *Session) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}

func buildURL(raw string, query url.Values) (string, error) {
	if len(query) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
