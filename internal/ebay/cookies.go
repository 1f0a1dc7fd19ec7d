package ebay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

const applyReadyTimeout = 30 * time.Second

// CookieStore persists a named session's cookies as an ordered JSON array
// on disk. Only cookies on the canonical domain are ever applied to a
// session.
type CookieStore struct {
	dir    string
	domain string
	mu     sync.Mutex
	logger arbor.ILogger
}

// NewCookieStore creates a store rooted at dir
func NewCookieStore(dir string, logger arbor.ILogger) *CookieStore {
	return &CookieStore{
		dir:    dir,
		domain: CanonicalCookieDomain,
		logger: logger,
	}
}

func (s *CookieStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load returns the persisted cookies for key in stored order.
// ErrCookiesNotFound when nothing has been saved; DecodeFault when the
// file exists but cannot be parsed.
func (s *CookieStore) Load(key string) ([]models.CookieRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCookiesNotFound, path)
		}
		return nil, fmt.Errorf("failed to read cookie file %s: %w", path, err)
	}

	var records []models.CookieRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &DecodeFault{Path: path, Err: err}
	}

	s.logger.Debug().
		Str("path", path).
		Int("cookie_count", len(records)).
		Msg("Cookies loaded from store")

	return records, nil
}

// Apply navigates the session to the site root, injects the records whose
// domain matches the canonical domain (others are logged and skipped),
// then forces a reload and waits for basic page readiness.
func (s *CookieStore) Apply(ctx context.Context, sess interfaces.Session, records []models.CookieRecord) error {
	if err := sess.Navigate(ctx, SiteRootURL); err != nil {
		return fmt.Errorf("failed to open site root before applying cookies: %w", err)
	}

	applied := 0
	for _, rec := range records {
		if rec.Domain != s.domain {
			s.logger.Debug().
				Str("name", rec.Name).
				Str("domain", rec.Domain).
				Msg("Skipping cookie outside canonical domain")
			continue
		}
		if err := sess.AddCookie(ctx, rec); err != nil {
			s.logger.Warn().
				Err(err).
				Str("name", rec.Name).
				Msg("Error adding cookie")
			continue
		}
		applied++
	}

	if err := sess.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload after applying cookies: %w", err)
	}
	if _, err := sess.WaitFor(ctx, "body", applyReadyTimeout); err != nil {
		return fmt.Errorf("page not ready after applying cookies: %w", err)
	}

	s.logger.Info().
		Int("applied", applied).
		Int("total", len(records)).
		Msg("Cookies applied to session")

	return nil
}

// Save persists the session's current cookies under key, replacing any
// prior content.
func (s *CookieStore) Save(ctx context.Context, sess interfaces.Session, key string) error {
	records, err := sess.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("failed to read session cookies: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookie file %s: %w", path, err)
	}

	s.logger.Info().
		Str("path", path).
		Int("cookie_count", len(records)).
		Msg("Cookies saved")

	return nil
}
