package browser

import (
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"go-lead-radar/internal/logging"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

type Options struct {
	Headless  bool
	UserAgent string
}

// PlaywrightManager owns one Chromium instance. The browser is started on
// first use so deployments without browser sources never launch it.
type PlaywrightManager struct {
	mu      sync.Mutex
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  logging.Logger
}

func NewPlaywright(opts Options, logger logging.Logger) *PlaywrightManager {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &PlaywrightManager{opts: opts, logger: logger}
}

func (pm *PlaywrightManager) start() error {
	if pm.browser != nil {
		return nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("could not start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(pm.opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("could not launch chromium: %w", err)
	}
	pm.pw = pw
	pm.browser = browser
	pm.logger.WithField("headless", pm.opts.Headless).Info("🌐 Chromium launched")
	return nil
}

// NewContext opens an isolated browser context carrying the given cookies.
func (pm *PlaywrightManager) NewContext(cookies []playwright.OptionalCookie) (playwright.BrowserContext, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err := pm.start(); err != nil {
		return nil, err
	}
	bctx, err := pm.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(pm.opts.UserAgent),
		Viewport:  &playwright.Size{Width: 1366, Height: 900},
		Locale:    playwright.String("en-US"),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	if len(cookies) > 0 {
		if err := bctx.AddCookies(cookies); err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("could not add cookies: %w", err)
		}
	}
	return bctx, nil
}

func (pm *PlaywrightManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var firstErr error
	if pm.browser != nil {
		if err := pm.browser.Close(); err != nil {
			firstErr = err
		}
		pm.browser = nil
	}
	if pm.pw != nil {
		if err := pm.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		pm.pw = nil
	}
	return firstErr
}
