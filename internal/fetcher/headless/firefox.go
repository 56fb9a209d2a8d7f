package headless

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/crawler"
)

// Firefox implements crawler.Browser with one playwright Firefox page reused for every
// navigation. The playwright driver and the firefox build must be installed beforehand.
type Firefox struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	closeOnce sync.Once
	closeErr  error
}

// NewFirefox validates cfg. The driver and browser start on Start.
func NewFirefox(cfg Config, logger *zap.Logger) (*Firefox, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine := normalizeEngine(cfg.Engine); engine != EngineFirefox {
		return nil, fmt.Errorf("%w: firefox session cannot run engine %q", crawler.ErrConfiguration, cfg.Engine)
	}
	cfg.Engine = EngineFirefox
	cfg.NavigationTimeout = navigationTimeout(cfg.NavigationTimeout)
	return &Firefox{cfg: cfg, logger: logger}, nil
}

// Start launches the playwright driver and Firefox, then opens the page used for the run.
func (f *Firefox) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("start firefox: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	pw, err := playwright.Run(&playwright.RunOptions{Browsers: []string{EngineFirefox}})
	if err != nil {
		return fmt.Errorf("start playwright driver: %w", err)
	}
	f.pw = pw

	launch := playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(f.cfg.Headless)}
	if f.cfg.ExecPath != "" {
		launch.ExecutablePath = playwright.String(f.cfg.ExecPath)
	}
	if f.browser, err = pw.Firefox.Launch(launch); err != nil {
		return fmt.Errorf("launch firefox: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{ExtraHttpHeaders: flattenHeaders(f.cfg.Headers)}
	if f.cfg.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(f.cfg.UserAgent)
	}
	if f.context, err = f.browser.NewContext(contextOpts); err != nil {
		return fmt.Errorf("open firefox context: %w", err)
	}
	if f.page, err = f.context.NewPage(); err != nil {
		return fmt.Errorf("open firefox page: %w", err)
	}
	f.page.SetDefaultNavigationTimeout(milliseconds(f.cfg.NavigationTimeout))
	f.logger.Info("browser started", zap.String("engine", f.cfg.Engine), zap.Bool("headless", f.cfg.Headless))
	return nil
}

// Navigate loads rawURL and waits for the load event.
func (f *Firefox) Navigate(ctx context.Context, rawURL string) error {
	page, err := f.currentPage(ctx)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	resp, err := page.Goto(rawURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(milliseconds(f.cfg.NavigationTimeout)),
	})
	if err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	status := http.StatusOK
	if resp != nil {
		status = resp.Status()
	}
	logDocumentStatus(f.logger, page.URL(), status)
	return nil
}

// PageSource returns the current serialized DOM.
func (f *Firefox) PageSource(ctx context.Context) (string, error) {
	page, err := f.currentPage(ctx)
	if err != nil {
		return "", fmt.Errorf("read page source: %w", err)
	}
	html, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("read page source: %w", err)
	}
	return html, nil
}

// Cookies returns every cookie held by the browser context.
func (f *Firefox) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	f.mu.Lock()
	bctx := f.context
	f.mu.Unlock()
	if bctx == nil {
		return nil, errors.New("read cookies: firefox is not started")
	}
	cookies, err := bctx.Cookies()
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return fromPlaywrightCookies(cookies), nil
}

// Close shuts Firefox and the driver. Later calls return the first result.
func (f *Firefox) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		var errs []error
		if f.browser != nil {
			if err := f.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close firefox: %w", err))
			}
		}
		if f.pw != nil {
			if err := f.pw.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("stop playwright driver: %w", err))
			}
		}
		f.closeErr = errors.Join(errs...)
	})
	return f.closeErr
}

func (f *Firefox) currentPage(ctx context.Context) (playwright.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.page == nil {
		return nil, errors.New("firefox is not started")
	}
	return f.page, nil
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// flattenHeaders joins repeated values with ", ", which is how playwright expects them.
func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}

func fromPlaywrightCookies(src []playwright.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(src))
	for _, c := range src {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		// playwright reports -1 for session cookies.
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			hc.Expires = time.Unix(int64(sec), int64(frac*1e9))
		}
		if c.SameSite != nil {
			switch string(*c.SameSite) {
			case "Strict":
				hc.SameSite = http.SameSiteStrictMode
			case "Lax":
				hc.SameSite = http.SameSiteLaxMode
			case "None":
				hc.SameSite = http.SameSiteNoneMode
			}
		}
		out = append(out, hc)
	}
	return out
}
