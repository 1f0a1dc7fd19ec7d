package interfaces

import (
	"github.com/ternarybob/vendo/internal/models"
)

// ResultSink receives finalized crawl output. Per-keyword sinks are flushed
// once both ranges for the keyword complete; the aggregate sink is flushed
// after every task has completed. WriteRow on the shared aggregate sink is
// serialized by the orchestrator.
type ResultSink interface {
	// WriteRow appends one listing to the sheet for the given range
	WriteRow(r models.DaysRange, listing models.SoldListing) error

	// WriteTotalSold records the sum of total-sold across a range's rows
	WriteTotalSold(r models.DaysRange, sum int) error

	// Flush persists the sink's output. Exactly once per sink.
	Flush() error
}
