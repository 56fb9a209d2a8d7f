package headless

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/crawler"
)

// Browser implements crawler.Browser with one chromedp tab reused for every page.
type Browser struct {
	cfg         Config
	allocCancel context.CancelFunc
	tab         context.Context
	tabCancel   context.CancelFunc
	meta        *responseMeta
	logger      *zap.Logger

	closeOnce sync.Once
}

// NewChromedp validates cfg and prepares the allocator. The browser process starts on Start.
func NewChromedp(cfg Config, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := normalizeEngine(cfg.Engine)
	switch engine {
	case "", EngineChrome, EngineChromium:
	case EngineHeadless:
		cfg.Headless = true
	default:
		return nil, fmt.Errorf("%w: unsupported browser engine %q", crawler.ErrConfiguration, cfg.Engine)
	}
	cfg.Engine = engine
	cfg.NavigationTimeout = navigationTimeout(cfg.NavigationTimeout)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	tab, tabCancel := chromedp.NewContext(allocCtx)
	b := &Browser{
		cfg:         cfg,
		allocCancel: allocCancel,
		tab:         tab,
		tabCancel:   tabCancel,
		meta:        newResponseMeta(),
		logger:      logger,
	}
	chromedp.ListenTarget(tab, b.meta.captureEvent)
	return b, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 3000),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("incognito", true),
		chromedp.Flag("no-proxy-server", true),
		chromedp.Flag("disable-plugins", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// Start launches the browser and applies the session headers. The first run happens on
// the tab context itself so the browser process outlives any per-call deadline.
func (b *Browser) Start(ctx context.Context) error {
	if err := chromedp.Run(b.tab); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	runCtx, cancel := b.runContext(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, b.networkSetupAction()); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	b.logger.Info("browser started", zap.String("engine", b.cfg.Engine), zap.Bool("headless", b.cfg.Headless))
	return nil
}

// Navigate loads rawURL and waits for the load event.
func (b *Browser) Navigate(ctx context.Context, rawURL string) error {
	runCtx, cancel := b.runContext(ctx)
	defer cancel()
	b.meta.reset()
	if err := chromedp.Run(runCtx, chromedp.Navigate(rawURL)); err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	status, finalURL := b.meta.snapshot(rawURL)
	logDocumentStatus(b.logger, finalURL, status)
	return nil
}

// PageSource returns the current serialized DOM.
func (b *Browser) PageSource(ctx context.Context) (string, error) {
	runCtx, cancel := b.runContext(ctx)
	defer cancel()
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page source: %w", err)
	}
	return html, nil
}

// Cookies returns the cookies visible to the current page.
func (b *Browser) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	runCtx, cancel := b.runContext(ctx)
	defer cancel()
	var cookies []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return toHTTPCookies(cookies), nil
}

// Close shuts the tab and the browser process. Later calls are no-ops.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		b.tabCancel()
		b.allocCancel()
	})
	return nil
}

// runContext bounds a chromedp run on the shared tab by the navigation timeout and ctx.
func (b *Browser) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(b.tab, b.cfg.NavigationTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(b.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(b.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// responseMeta keeps the status and URL of the last document response on the tab.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status = 0
	m.url = ""
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	event, ok := ev.(*network.EventResponseReceived)
	if !ok || event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

// snapshot returns the captured status and URL. A page with no captured document
// response (cache, about:blank) reports 200 at requestURL.
func (m *responseMeta) snapshot(requestURL string) (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, url := m.status, m.url
	if url == "" {
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

// logDocumentStatus warns about error documents. The render is still used, since the
// readiness probe decides whether the page is usable.
func logDocumentStatus(logger *zap.Logger, url string, status int) {
	if status < 200 || status >= 300 {
		logger.Warn("document returned non-success status", zap.String("url", url), zap.Int("status", status))
		return
	}
	logger.Debug("navigated", zap.String("url", url), zap.Int("status", status))
}

func toHTTPCookies(src []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(src))
	for _, c := range src {
		if c == nil {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			hc.Expires = time.Unix(int64(sec), int64(frac*1e9))
		}
		switch c.SameSite {
		case network.CookieSameSiteStrict:
			hc.SameSite = http.SameSiteStrictMode
		case network.CookieSameSiteLax:
			hc.SameSite = http.SameSiteLaxMode
		case network.CookieSameSiteNone:
			hc.SameSite = http.SameSiteNoneMode
		}
		out = append(out, hc)
	}
	return out
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
