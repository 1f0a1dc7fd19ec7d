package ebay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
)

// Classification is the guard's reading of a session's current location
type Classification int

const (
	ClassNormal Classification = iota
	ClassCaptchaOrLogin
	ClassPasskeyPrompt
	ClassLimitExceeded
)

func (c Classification) String() string {
	switch c {
	case ClassNormal:
		return "normal"
	case ClassCaptchaOrLogin:
		return "captcha_or_login"
	case ClassPasskeyPrompt:
		return "passkey_prompt"
	case ClassLimitExceeded:
		return "limit_exceeded"
	default:
		return "unknown"
	}
}

// Classify derives the classification purely from the current URL.
// Stateless; recomputed on every check.
func Classify(location string) Classification {
	switch {
	case strings.Contains(location, "www.ebay.com/splashui/captcha"),
		strings.Contains(location, "signin.ebay.com"):
		return ClassCaptchaOrLogin
	case strings.Contains(location, "accounts.ebay.com/acctsec/authn-register"):
		return ClassPasskeyPrompt
	case strings.Contains(location, "pages.ebay.com/limitexceeded"):
		return ClassLimitExceeded
	default:
		return ClassNormal
	}
}

const passkeySkipSelector = "#passkeys-cancel-btn"

// GuardConfig bounds the guard's automated recovery
type GuardConfig struct {
	// RecoveryAttempts is the number of automated cookie-reload attempts
	// before falling back to interactive login
	RecoveryAttempts int

	// PollInterval paces reclassification and the manual-login wait loop
	PollInterval time.Duration

	// CookieKey names the persisted session in the cookie store
	CookieKey string
}

// Guard is the anti-bot classification and recovery state machine. It is
// invoked before a page is read and either passes through or recovers the
// session.
type Guard struct {
	store   *CookieStore
	factory interfaces.SessionFactory
	coord   *RecoveryCoordinator
	config  GuardConfig
	logger  arbor.ILogger
}

// NewGuard creates a guard sharing one recovery coordinator across all
// tasks.
func NewGuard(store *CookieStore, factory interfaces.SessionFactory, coord *RecoveryCoordinator, config GuardConfig, logger arbor.ILogger) *Guard {
	return &Guard{
		store:   store,
		factory: factory,
		coord:   coord,
		config:  config,
		logger:  logger,
	}
}

// Ensure loops until the session classifies as normal, attempting bounded
// automated recovery and unbounded manual recovery along the way. A
// limit-exceeded page returns an AntiBotFault, which ends only the
// calling task.
func (g *Guard) Ensure(ctx context.Context, sess interfaces.Session, destination string) error {
	attemptedBypass := false

	for {
		location, err := sess.Location(ctx)
		if err != nil {
			return fmt.Errorf("guard could not read session location: %w", err)
		}

		class := Classify(location)
		g.logger.Debug().
			Str("location", location).
			Str("classification", class.String()).
			Msg("Guard check")

		switch class {
		case ClassNormal:
			return nil

		case ClassCaptchaOrLogin:
			if !attemptedBypass {
				attemptedBypass = true
				if g.attemptCookieBypass(ctx, sess, destination) {
					continue
				}
			}
			g.logger.Warn().Msg("Automated bypass exhausted, proceeding with manual login")
			if err := g.manualRecovery(ctx, sess, destination); err != nil {
				return err
			}
			continue

		case ClassPasskeyPrompt:
			if err := sess.Click(ctx, passkeySkipSelector); err != nil {
				g.logger.Warn().
					Err(err).
					Msg("Skip control not found on passkey page, waiting")
			} else {
				g.logger.Info().Msg("Dismissed passkey registration prompt")
			}

		case ClassLimitExceeded:
			g.logger.Error().
				Str("location", location).
				Msg("Limit exceeded page detected, stopping task")
			return &AntiBotFault{Location: location}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.config.PollInterval):
		}
	}
}

// attemptCookieBypass runs the bounded automated recovery: clear the
// session's cookies, re-apply persisted cookies, navigate back to the
// destination and reclassify. Returns true once the session classifies
// normal.
func (g *Guard) attemptCookieBypass(ctx context.Context, sess interfaces.Session, destination string) bool {
	policy := common.RetryPolicy{MaxAttempts: g.config.RecoveryAttempts}

	err := policy.Do(ctx, g.logger, func(attempt int) error {
		g.logger.Warn().
			Int("attempt", attempt).
			Int("max_attempts", g.config.RecoveryAttempts).
			Msg("CAPTCHA or login detected, reloading cookies")

		if err := sess.ClearCookies(ctx); err != nil {
			return err
		}

		records, err := g.store.Load(g.config.CookieKey)
		if err != nil {
			// Missing or corrupt cookie state: nothing to reload, the
			// attempt fails and recovery degrades to manual login.
			return err
		}
		if err := g.store.Apply(ctx, sess, records); err != nil {
			return err
		}
		if err := sess.Navigate(ctx, destination); err != nil {
			return err
		}

		location, err := sess.Location(ctx)
		if err != nil {
			return err
		}
		if Classify(location) != ClassNormal {
			return fmt.Errorf("still blocked at %s", location)
		}
		return nil
	})

	if err == nil {
		g.logger.Info().Msg("CAPTCHA bypassed by reloading cookies")
		return true
	}
	return false
}

// manualRecovery performs (or waits out) interactive login, then applies
// the refreshed cookies to the pooled session and re-navigates. The outer
// Ensure loop reclassifies afterwards.
func (g *Guard) manualRecovery(ctx context.Context, sess interfaces.Session, destination string) error {
	if g.coord.TryBecomeRecoverer() {
		err := g.interactiveLogin(ctx)
		g.coord.Finish()
		if err != nil {
			return err
		}
	} else {
		g.logger.Info().Msg("Another task is performing interactive recovery, waiting")
		if err := g.coord.Wait(ctx); err != nil {
			return err
		}
	}

	if records, err := g.store.Load(g.config.CookieKey); err == nil {
		if err := g.store.Apply(ctx, sess, records); err != nil {
			g.logger.Warn().Err(err).Msg("Error applying refreshed cookies")
		}
	} else {
		g.logger.Warn().Err(err).Msg("No refreshed cookies available after recovery")
	}

	if err := sess.Navigate(ctx, destination); err != nil {
		return fmt.Errorf("failed to return to destination after recovery: %w", err)
	}
	return nil
}

// interactiveLogin opens a visible session at the login entry point and
// polls until sign-in completes. A closed browser window is reinitialized
// and retried, not abandoned. On success the interactive session's
// cookies are persisted.
func (g *Guard) interactiveLogin(ctx context.Context) error {
	g.logger.Warn().Msg("Manual sign-in required, opening visible browser")

	for {
		login, err := g.factory.NewInteractiveSession(ctx)
		if err != nil {
			g.logger.Error().Err(err).Msg("Error opening interactive session")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.config.PollInterval):
			}
			continue
		}

		if err := login.Navigate(ctx, LoginURL); err != nil {
			g.logger.Error().Err(err).Msg("Error opening login page")
			login.Close()
			continue
		}

		saved, err := g.pollForLogin(ctx, login)
		if err != nil {
			login.Close()
			return err
		}
		login.Close()
		if saved {
			return nil
		}
		// Browser was closed before login completed; reinitialize
		g.logger.Error().Msg("Login browser was closed, reinitializing")
	}
}

// pollForLogin waits for the interactive session to leave the sign-in
// flow. Returns false when the browser disappeared and should be
// reopened.
func (g *Guard) pollForLogin(ctx context.Context, login interfaces.Session) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(g.config.PollInterval):
		}

		location, err := login.Location(ctx)
		if err != nil {
			return false, nil
		}

		if !strings.Contains(location, "signin") {
			g.logger.Info().Msg("User login detected, saving session cookies")
			if err := g.store.Save(ctx, login, g.config.CookieKey); err != nil {
				g.logger.Error().Err(err).Msg("Error saving cookies after login")
				return false, nil
			}
			return true, nil
		}

		g.logger.Info().Msg("Waiting for user to sign in...")
	}
}
