package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// ErrWaitTimeout is returned when a WaitFor deadline elapses before any
// element matches the selector.
var ErrWaitTimeout = errors.New("browser: timed out waiting for selector")

const (
	defaultOpTimeout = 30 * time.Second
	snapshotInterval = 500 * time.Millisecond
)

// Factory creates chromedp-backed sessions. All sessions it creates share
// one navigation limiter, so total page-load pressure on the site stays
// below the configured rate however many sessions are in flight.
type Factory struct {
	config  common.BrowserConfig
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewFactory creates a session factory for the given browser configuration
func NewFactory(config common.BrowserConfig, logger arbor.ILogger) *Factory {
	var limiter *rate.Limiter
	if config.NavRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.NavRate), 1)
	}
	return &Factory{
		config:  config,
		limiter: limiter,
		logger:  logger,
	}
}

// NewSession creates a pooled session honoring the configured headless mode
func (f *Factory) NewSession(ctx context.Context) (interfaces.Session, error) {
	return f.newSession(ctx, f.config.Headless)
}

// NewInteractiveSession creates a visible session for manual recovery,
// regardless of the configured headless mode.
func (f *Factory) NewInteractiveSession(ctx context.Context) (interfaces.Session, error) {
	return f.newSession(ctx, false)
}

func (f *Factory) newSession(ctx context.Context, headless bool) (interfaces.Session, error) {
	startTime := time.Now()

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(f.config.UserAgent),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", f.config.DisableGPU),
		chromedp.Flag("no-sandbox", f.config.NoSandbox),
		chromedp.Flag("incognito", true),
		chromedp.WindowSize(1920, 1080),
	)
	if headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	s := &session{
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		limiter:         f.limiter,
		logger:          f.logger,
	}

	// Startup test: a session that cannot reach about:blank is unusable
	testCtx, testCancel := context.WithTimeout(browserCtx, defaultOpTimeout)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank"), network.Enable()); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser session failed startup test: %w", err)
	}

	f.logger.Debug().
		Bool("headless", headless).
		Str("startup_time", time.Since(startTime).String()).
		Msg("Browser session created")

	return s, nil
}

// session is a chromedp-backed browsing context
type session struct {
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	limiter         *rate.Limiter
	logger          arbor.ILogger
}

// run executes chromedp actions against the session, carrying the caller's
// deadline onto the browser context.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx := s.browserCtx
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
	} else {
		runCtx, cancel = context.WithTimeout(runCtx, defaultOpTimeout)
	}
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (s *session) Navigate(ctx context.Context, url string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("navigation pacing interrupted: %w", err)
		}
	}
	s.logger.Debug().Str("url", url).Msg("Navigating")
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (s *session) Location(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return location, nil
}

func (s *session) Reload(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// snapshot captures the current document and parses it for querying
func (s *session) snapshot(ctx context.Context) (*goquery.Document, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("capture document: %w", err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (s *session) WaitFor(ctx context.Context, selector string, timeout time.Duration) ([]interfaces.Element, error) {
	deadline := time.Now().Add(timeout)

	for {
		doc, err := s.snapshot(ctx)
		if err == nil {
			if elements := elementsFrom(doc, selector); len(elements) > 0 {
				return elements, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrWaitTimeout, selector, timeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(snapshotInterval):
		}
	}
}

func (s *session) Find(ctx context.Context, selector string) (interfaces.Element, bool, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return nil, false, nil
	}
	return newPageElement(sel), true, nil
}

func (s *session) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (s *session) Cookies(ctx context.Context) ([]models.CookieRecord, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	records := make([]models.CookieRecord, 0, len(cookies))
	for _, c := range cookies {
		records = append(records, models.CookieRecord{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: strings.ToLower(string(c.SameSite)),
		})
	}
	return records, nil
}

func (s *session) AddCookie(ctx context.Context, cookie models.CookieRecord) error {
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		path := cookie.Path
		if path == "" {
			path = "/"
		}

		params := network.SetCookie(cookie.Name, cookie.Value).
			WithDomain(cookie.Domain).
			WithPath(path).
			WithSecure(cookie.Secure).
			WithHTTPOnly(cookie.HTTPOnly)

		if cookie.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(cookie.Expires), 0))
			params = params.WithExpires(&expires)
		}

		switch strings.ToLower(cookie.SameSite) {
		case "strict":
			params = params.WithSameSite(network.CookieSameSiteStrict)
		case "lax":
			params = params.WithSameSite(network.CookieSameSiteLax)
		case "none":
			params = params.WithSameSite(network.CookieSameSiteNone)
		}

		return params.Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("add cookie %s: %w", cookie.Name, err)
	}
	return nil
}

func (s *session) ClearCookies(ctx context.Context) error {
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.ClearBrowserCookies().Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	return nil
}

func (s *session) CaptureViewport(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture viewport: %w", err)
	}
	return buf, nil
}

func (s *session) Close() error {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocatorCancel != nil {
		s.allocatorCancel()
	}
	return nil
}
