package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vendo/internal/browser"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/ebay"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// Outcome classifies how a crawl task ended
type Outcome int

const (
	// OutcomeComplete means every available row was collected
	OutcomeComplete Outcome = iota

	// OutcomeCapped means the row cap was reached with more rows available
	OutcomeCapped

	// OutcomeError means the task stopped on a fault; collected rows are
	// still emitted
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeCapped:
		return "capped"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// TaskResult is the finalized output of one (keyword, range) crawl.
// Listings are sorted by average sold price, highest first; the relative
// order of equal prices is preserved.
type TaskResult struct {
	Key       models.CrawlKey
	Outcome   Outcome
	Listings  []models.SoldListing
	TotalSold int
	Pages     int
	Err       error
}

// TaskConfig bounds one crawl task
type TaskConfig struct {
	MaxRows       int
	FetchAttempts int
	RenderTimeout time.Duration
	Screenshots   bool
}

// CrawlTask crawls the sold-listings table for one (keyword, range) pair:
// paginate, extract, validate, and finalize. Results accumulate across
// pages; whatever has been collected when the task stops is emitted.
type CrawlTask struct {
	key            models.CrawlKey
	urls           *ebay.URLBuilder
	guard          *ebay.Guard
	images         *ImageService
	screenshotsDir string
	config         TaskConfig
	logger         arbor.ILogger

	listings []models.SoldListing
	pages    int
}

// NewCrawlTask creates a task for one (keyword, range) pair. images may be
// nil to disable thumbnail downloads; screenshotsDir may be empty to
// disable per-page captures.
func NewCrawlTask(key models.CrawlKey, urls *ebay.URLBuilder, guard *ebay.Guard, images *ImageService, screenshotsDir string, config TaskConfig, logger arbor.ILogger) *CrawlTask {
	return &CrawlTask{
		key:            key,
		urls:           urls,
		guard:          guard,
		images:         images,
		screenshotsDir: screenshotsDir,
		config:         config,
		logger:         logger,
	}
}

// Run executes the crawl on the given session and returns the finalized
// result. The session is borrowed; Run never closes it.
func (t *CrawlTask) Run(ctx context.Context, sess interfaces.Session) TaskResult {
	t.logger.Info().
		Str("keyword", t.key.Keyword).
		Str("range", t.key.Range.String()).
		Msg("Starting crawl task")

	target, err := t.urls.BuildListingURL(t.key.Keyword, t.key.Range, 0)
	if err != nil {
		return t.finish(OutcomeError, err)
	}
	if err := sess.Navigate(ctx, target); err != nil {
		return t.finish(OutcomeError, fmt.Errorf("failed to open results page: %w", err))
	}

	for len(t.listings) < t.config.MaxRows {
		if err := ctx.Err(); err != nil {
			return t.finish(OutcomeError, err)
		}
		t.pages++

		rows, empty, err := t.fetchRows(ctx, sess, target)
		t.screenshot(ctx, sess)
		if err != nil {
			return t.finish(OutcomeError, err)
		}
		if empty {
			t.logger.Info().
				Str("keyword", t.key.Keyword).
				Int("page", t.pages).
				Msg("No more rows found")
			break
		}

		if err := t.collectRows(ctx, rows); err != nil {
			// A schema violation ends the task; rows collected before the
			// bad one stay in the result.
			return t.finish(OutcomeError, err)
		}

		if len(t.listings) >= t.config.MaxRows {
			t.logger.Info().
				Str("keyword", t.key.Keyword).
				Int("max_rows", t.config.MaxRows).
				Msg("Row cap reached, stopping pagination")
			return t.finish(OutcomeCapped, nil)
		}

		if !t.nextPageAvailable(ctx, sess) {
			break
		}

		// The site paginates by result offset, which equals the number of
		// rows processed so far.
		target, err = t.urls.BuildListingURL(t.key.Keyword, t.key.Range, len(t.listings))
		if err != nil {
			return t.finish(OutcomeError, err)
		}
		if err := sess.Navigate(ctx, target); err != nil {
			return t.finish(OutcomeError, fmt.Errorf("failed to open next page: %w", err))
		}
	}

	return t.finish(OutcomeComplete, nil)
}

// fetchRows waits for the results table to render, retrying with a fresh
// navigation between attempts. empty=true reports a terminal empty page:
// either an explicit no-results notice or the site bouncing the session to
// the active-listings tab.
func (t *CrawlTask) fetchRows(ctx context.Context, sess interfaces.Session, target string) ([]interfaces.Element, bool, error) {
	if err := t.guard.Ensure(ctx, sess, target); err != nil {
		return nil, false, err
	}

	var rows []interfaces.Element
	empty := false
	var guardErr error

	policy := common.RetryPolicy{MaxAttempts: t.config.FetchAttempts}
	err := policy.Do(ctx, t.logger, func(attempt int) error {
		if attempt > 1 {
			if err := sess.Navigate(ctx, target); err != nil {
				t.logger.Warn().Err(err).Msg("Error refreshing page before retry")
			}
			// A guard failure here (a rate-limit page, a dead session) is
			// not going to render rows on further attempts. Stop the loop
			// and surface the guard's own fault.
			if err := t.guard.Ensure(ctx, sess, target); err != nil {
				guardErr = err
				return nil
			}
		}

		location, err := sess.Location(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(location, activeTabFragment) {
			// The site redirected to the active-listings tab; there are no
			// sold results for this query.
			empty = true
			return nil
		}

		elems, err := sess.WaitFor(ctx, rowSelector, t.config.RenderTimeout)
		if err == nil {
			rows = elems
			return nil
		}
		if !errors.Is(err, browser.ErrWaitTimeout) {
			return err
		}

		if t.hasNoResultsNotice(ctx, sess) {
			empty = true
			return nil
		}
		return err
	})

	if guardErr != nil {
		return nil, false, guardErr
	}
	if err != nil {
		return nil, false, &ExtractionFault{Key: t.key, Page: t.pages, Err: err}
	}
	return rows, empty, nil
}

func (t *CrawlTask) hasNoResultsNotice(ctx context.Context, sess interfaces.Session) bool {
	notice, ok, err := sess.Find(ctx, noResultsSel)
	if err != nil || !ok {
		return false
	}
	text, ok := notice.Text()
	return ok && strings.Contains(text, noResultsNotice)
}

// collectRows parses and validates rows up to the cap. A row missing a
// required field stops the task with a SchemaViolation; rows accepted
// before it are kept.
func (t *CrawlTask) collectRows(ctx context.Context, rows []interfaces.Element) error {
	for _, row := range rows {
		if len(t.listings) >= t.config.MaxRows {
			return nil
		}

		listing := parseRow(row, t.key.Keyword)
		if !listing.Valid() {
			return &SchemaViolation{
				Key:     t.key,
				Page:    t.pages,
				Row:     len(t.listings) + 1,
				Missing: listing.MissingRequired(),
			}
		}

		if t.images != nil && listing.ImageURL != "" {
			baseName := fmt.Sprintf("%s_%d", t.key.String(), len(t.listings)+1)
			if path, ok := t.images.DownloadAndStore(ctx, listing.ImageURL, baseName); ok {
				listing.ImagePath = path
			}
		}

		t.listings = append(t.listings, listing)
	}
	return nil
}

// nextPageAvailable checks the pagination control. A missing or disabled
// next button means the current page was the last one.
func (t *CrawlTask) nextPageAvailable(ctx context.Context, sess interfaces.Session) bool {
	button, ok, err := sess.Find(ctx, nextButtonSel)
	if err != nil || !ok {
		t.logger.Debug().
			Str("keyword", t.key.Keyword).
			Msg("No pagination control found")
		return false
	}
	if _, disabled := button.Attr("disabled"); disabled {
		return false
	}
	if v, ok := button.Attr("aria-disabled"); ok && v == "true" {
		return false
	}
	return true
}

// screenshot captures the current viewport into the screenshots folder.
// Best-effort; failures are logged and the crawl continues.
func (t *CrawlTask) screenshot(ctx context.Context, sess interfaces.Session) {
	if !t.config.Screenshots || t.screenshotsDir == "" {
		return
	}

	data, err := sess.CaptureViewport(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Error capturing screenshot")
		return
	}

	name := sanitizeFileName(fmt.Sprintf("%s Page %d", t.key.String(), t.pages)) + ".png"
	dest := filepath.Join(t.screenshotsDir, name)
	if err := os.WriteFile(dest, data, 0644); err != nil {
		t.logger.Warn().Err(err).Str("path", dest).Msg("Error writing screenshot")
	}
}

// finish sorts the collected listings by average sold price descending,
// sums total-sold, and assembles the result. Always runs, whatever path
// ended the task.
func (t *CrawlTask) finish(outcome Outcome, err error) TaskResult {
	sort.SliceStable(t.listings, func(i, j int) bool {
		return t.listings[i].Price() > t.listings[j].Price()
	})

	totalSold := 0
	for i := range t.listings {
		totalSold += t.listings[i].SoldCount()
	}

	if err != nil {
		t.logger.Error().
			Str("keyword", t.key.Keyword).
			Str("range", t.key.Range.String()).
			Int("rows", len(t.listings)).
			Err(err).
			Msg("Crawl task ended with error")
	} else {
		t.logger.Info().
			Str("keyword", t.key.Keyword).
			Str("range", t.key.Range.String()).
			Str("outcome", outcome.String()).
			Int("rows", len(t.listings)).
			Int("pages", t.pages).
			Msg("Crawl task finished")
	}

	return TaskResult{
		Key:       t.key,
		Outcome:   outcome,
		Listings:  t.listings,
		TotalSold: totalSold,
		Pages:     t.pages,
		Err:       err,
	}
}
