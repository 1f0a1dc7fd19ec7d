package scraper

import (
	"fmt"
	"strings"

	"github.com/ternarybob/vendo/internal/models"
)

// SchemaViolation reports a row missing a required field. It aborts the
// owning task immediately; records collected before the bad row are
// retained and still emitted.
//
// Stopping the whole task on one bad row mirrors the upstream data-quality
// gate; flagged for product review before softening to skip-and-continue.
type SchemaViolation struct {
	Key     models.CrawlKey
	Page    int
	Row     int
	Missing []string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("invalid row data for %s (page %d, row %d): missing %s",
		e.Key, e.Page, e.Row, strings.Join(e.Missing, ", "))
}

// ExtractionFault reports a page that rendered neither rows nor a
// recognized no-results notice after all fetch attempts.
type ExtractionFault struct {
	Key  models.CrawlKey
	Page int
	Err  error
}

func (e *ExtractionFault) Error() string {
	return fmt.Sprintf("no rows and no results notice for %s (page %d): %v", e.Key, e.Page, e.Err)
}

func (e *ExtractionFault) Unwrap() error {
	return e.Err
}
