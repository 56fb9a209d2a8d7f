package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/metrics"
)

// Fetch modes used as metric labels.
const (
	ModeStatic = "static"
	ModeRender = "render"
)

// Fetcher turns work items into page source. It owns the retry and escalation policy for
// static requests and the readiness polling for rendered pages. Only the final failed
// attempt of a fetch is recorded in the error log.
type Fetcher struct {
	spider   string
	session  HTTPSession
	browser  Browser
	settings Settings
	retry    *ExponentialRetryPolicy
	errs     *ErrorLog
	logger   *zap.Logger

	mu     sync.Mutex
	render bool
	method string

	sleep func(ctx context.Context, d time.Duration)
}

// NewFetcher builds a fetcher. browser may be nil when rendering is disabled.
func NewFetcher(
	spider string,
	session HTTPSession,
	browser Browser,
	settings Settings,
	errs *ErrorLog,
	logger *zap.Logger,
) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errs == nil {
		errs = &ErrorLog{}
	}
	method, err := NormalizeMethod(settings.Method)
	if err != nil {
		method = MethodGet
	}
	return &Fetcher{
		spider:   spider,
		session:  session,
		browser:  browser,
		settings: settings,
		retry:    NewExponentialRetryPolicy(settings.Retry, settings.RetryBackoff),
		errs:     errs,
		logger:   logger,
		render:   settings.Render,
		method:   method,
		sleep:    sleepContext,
	}
}

// Render reports whether bare URLs are currently fetched with the browser.
func (f *Fetcher) Render() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.render
}

// SetRender switches bare-URL fetches between the browser and the HTTP session.
func (f *Fetcher) SetRender(enabled bool) error {
	if enabled && f.browser == nil {
		return fmt.Errorf("%w: no browser session is open", ErrRendererDisabled)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.render = enabled
	return nil
}

// Method returns the current default static method.
func (f *Fetcher) Method() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.method
}

// SetMethod changes the default static method.
func (f *Fetcher) SetMethod(method string) error {
	m, err := NormalizeMethod(method)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.method = m
	return nil
}

// Fetch selects the mode for item and returns its page. ok is false when the item
// produced no page.
func (f *Fetcher) Fetch(ctx context.Context, item WorkItem) (FetchResult, bool) {
	var (
		page string
		ok   bool
	)
	switch {
	case item.HasPayload():
		page, ok = f.GetPage(ctx, f.newRequest(item.URL, MethodPost, WithBody(*item.Payload)))
	case f.Render():
		page, ok = f.GetJSPage(ctx, item.URL)
	default:
		page, ok = f.GetPage(ctx, f.newRequest(item.URL, f.Method()))
	}
	if !ok {
		return FetchResult{}, false
	}
	return FetchResult{Item: item, URL: item.URL, PageSource: page}, true
}

// Request fetches rawURL with the current mode, applying opts to static requests.
// A body option always forces a static request.
func (f *Fetcher) Request(ctx context.Context, rawURL string, opts ...RequestOption) (string, bool) {
	req := f.newRequest(rawURL, f.Method(), opts...)
	if f.Render() && req.Body == "" && req.Query == nil {
		return f.GetJSPage(ctx, rawURL)
	}
	return f.GetPage(ctx, req)
}

func (f *Fetcher) newRequest(rawURL, method string, opts ...RequestOption) HTTPRequest {
	req := HTTPRequest{
		Method:   method,
		URL:      rawURL,
		Headers:  f.settings.Headers.Clone(),
		Timeout:  f.settings.Timeout,
		Encoding: f.settings.Encoding,
	}
	for _, opt := range opts {
		opt(&req)
	}
	if req.Body != "" {
		if req.Headers == nil {
			req.Headers = http.Header{}
		}
		if req.Headers.Get("Content-Type") == "" {
			req.Headers.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	return req
}

// GetPage issues req up to the retry limit and returns the decoded body of the first
// 200 response.
func (f *Fetcher) GetPage(ctx context.Context, req HTTPRequest) (string, bool) {
	logger := f.logger.With(zap.String("method", req.Method), zap.String("url", req.URL))
	attempts := f.retry.MaxAttempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		resp, err := f.session.Do(ctx, req)
		elapsed := time.Since(start)
		if err == nil && resp.StatusCode == http.StatusOK {
			metrics.ObserveFetch(f.spider, ModeStatic, "ok", elapsed)
			logger.Debug("page fetched", zap.Int("attempt", attempt), zap.Int("bytes", len(resp.Body)))
			return resp.Body, true
		}

		var cause error
		switch {
		case err != nil && isTimeout(err):
			metrics.ObserveFetch(f.spider, ModeStatic, "timeout", elapsed)
			logger.Error("request timed out", zap.Int("attempt", attempt), zap.Duration("timeout", req.Timeout))
			cause = fmt.Errorf("%w: timed out after %s: %w", ErrTransientFetch, req.Timeout, err)
		case err != nil:
			metrics.ObserveFetch(f.spider, ModeStatic, "error", elapsed)
			logger.Error("request failed", zap.Int("attempt", attempt), zap.Error(err))
			cause = fmt.Errorf("%w: %w", ErrTransientFetch, err)
		default:
			metrics.ObserveFetch(f.spider, ModeStatic, "status", elapsed)
			logger.Error("unexpected status", zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))
			cause = fmt.Errorf("%w: status %d", ErrTransientFetch, resp.StatusCode)
		}

		if !f.retry.ShouldRetry(cause, attempt) {
			if attempt < attempts {
				logger.Warn("retries abandoned", zap.Error(ctx.Err()))
			}
			f.escalate(fmt.Sprintf("%s %s failed on attempt %d/%d: %v", req.Method, req.URL, attempt, attempts, cause))
			break
		}
		if d := f.retry.Backoff(attempt); d > 0 {
			f.sleep(ctx, d)
		}
	}
	logger.Info("retry limit reached", zap.Int("attempts", attempts))
	return "", false
}

// GetJSPage loads rawURL in the browser. Without a probe it waits the full timeout; with one
// it polls until the probe matches or the polling budget is spent, then returns the last
// render.
func (f *Fetcher) GetJSPage(ctx context.Context, rawURL string) (string, bool) {
	logger := f.logger.With(zap.String("url", rawURL))
	if f.browser == nil {
		f.escalate(fmt.Sprintf("render %s: %v", rawURL, ErrRendererDisabled))
		return "", false
	}
	start := time.Now()
	if err := f.browser.Navigate(ctx, rawURL); err != nil {
		metrics.ObserveFetch(f.spider, ModeRender, "error", time.Since(start))
		logger.Error("page load failed", zap.Error(err))
		f.escalate(fmt.Sprintf("render %s: %v", rawURL, err))
		return "", false
	}
	logger.Info("loading page")

	probe := f.settings.Probe
	if probe == nil {
		logger.Info("no readiness probe, waiting full timeout", zap.Duration("timeout", f.settings.Timeout))
		f.sleep(ctx, f.settings.Timeout)
		return f.pageSource(ctx, rawURL, start, logger)
	}

	polls := 0
	if f.settings.PollInterval > 0 {
		polls = int(f.settings.Timeout / f.settings.PollInterval)
	}
	for i := 0; i < polls; i++ {
		src, err := f.browser.PageSource(ctx)
		if err == nil {
			ready, perr := probe.Ready(src)
			if perr != nil {
				logger.Debug("probe evaluation failed", zap.Error(perr))
			}
			if ready {
				metrics.ObserveFetch(f.spider, ModeRender, "ok", time.Since(start))
				logger.Info("page ready", zap.Stringer("probe", probe), zap.Int("polls", i+1))
				return src, true
			}
		}
		f.sleep(ctx, f.settings.PollInterval)
	}
	logger.Warn("page load timed out, returning current render", zap.Stringer("probe", probe))
	return f.pageSource(ctx, rawURL, start, logger)
}

func (f *Fetcher) pageSource(ctx context.Context, rawURL string, start time.Time, logger *zap.Logger) (string, bool) {
	src, err := f.browser.PageSource(ctx)
	if err != nil {
		metrics.ObserveFetch(f.spider, ModeRender, "error", time.Since(start))
		logger.Error("reading page source failed", zap.Error(err))
		f.escalate(fmt.Sprintf("render %s: %v", rawURL, err))
		return "", false
	}
	metrics.ObserveFetch(f.spider, ModeRender, "ok", time.Since(start))
	return src, true
}

func (f *Fetcher) escalate(entry string) {
	f.errs.Add(entry)
	metrics.ObserveErrorRecorded(f.spider)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
