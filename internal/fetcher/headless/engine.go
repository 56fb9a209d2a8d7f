// Package headless drives a long-lived browser session for pages that need JavaScript.
// Chrome and Chromium run on chromedp; Firefox runs on playwright.
package headless

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/crawler"
)

// Supported browser engines.
const (
	EngineChrome   = "chrome"
	EngineChromium = "chromium"
	// EngineHeadless is chrome with headless mode forced on.
	EngineHeadless = "headless"
	EngineFirefox  = "firefox"
)

const defaultNavigationTimeout = 45 * time.Second

// Config controls the browser session.
type Config struct {
	Engine            string
	ExecPath          string
	Headless          bool
	UserAgent         string
	Headers           http.Header
	NavigationTimeout time.Duration
}

// Session is a browser that has to be started before its first navigation.
type Session interface {
	crawler.Browser
	Start(ctx context.Context) error
}

// New returns the session for cfg.Engine without launching it.
func New(cfg Config, logger *zap.Logger) (Session, error) {
	if normalizeEngine(cfg.Engine) == EngineFirefox {
		return NewFirefox(cfg, logger)
	}
	return NewChromedp(cfg, logger)
}

func normalizeEngine(engine string) string {
	return strings.ToLower(strings.TrimSpace(engine))
}

func navigationTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultNavigationTimeout
	}
	return d
}
