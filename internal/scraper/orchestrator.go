package scraper

import (
	"context"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vendo/internal/browser"
	"github.com/ternarybob/vendo/internal/ebay"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// CompletionTracker decides when a keyword's per-keyword sink may be
// flushed: exactly once, after both of its range tasks have finished in
// any order.
type CompletionTracker struct {
	mu      sync.Mutex
	entries map[string]*rangePair
}

type rangePair struct {
	thirty    bool
	ninety    bool
	finalized bool
}

// NewCompletionTracker creates an empty tracker
func NewCompletionTracker() *CompletionTracker {
	return &CompletionTracker{entries: make(map[string]*rangePair)}
}

// Register creates the keyword's entry ahead of task submission
func (t *CompletionTracker) Register(keyword string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[keyword]; !ok {
		t.entries[keyword] = &rangePair{}
	}
}

// MarkDone records one finished range for the keyword. Returns true on
// the call that completes the pair, and false on every other call.
func (t *CompletionTracker) MarkDone(keyword string, r models.DaysRange) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[keyword]
	if !ok {
		entry = &rangePair{}
		t.entries[keyword] = entry
	}

	if r == models.RangeThirty {
		entry.thirty = true
	} else {
		entry.ninety = true
	}

	if entry.thirty && entry.ninety && !entry.finalized {
		entry.finalized = true
		return true
	}
	return false
}

// RunReport summarizes one engine run
type RunReport struct {
	Rows     map[models.CrawlKey]int
	Outcomes map[models.CrawlKey]Outcome
	Errors   int
}

// SinkFactory creates the per-keyword sink for one keyword
type SinkFactory func(keyword string) (interfaces.ResultSink, error)

// Orchestrator fans every keyword out into two range tasks, runs them on
// a fixed worker pool sized to the session pool, and routes finalized
// results into the per-keyword and aggregate sinks.
type Orchestrator struct {
	pool           *browser.SessionPool
	urls           *ebay.URLBuilder
	guard          *ebay.Guard
	images         *ImageService
	screenshotsDir string
	taskConfig     TaskConfig
	newSink        SinkFactory
	aggregate      interfaces.ResultSink
	aggregateMu    sync.Mutex
	tracker        *CompletionTracker
	logger         arbor.ILogger
}

// NewOrchestrator wires the orchestrator. aggregate receives every row
// from every task; newSink is invoked once per keyword.
func NewOrchestrator(pool *browser.SessionPool, urls *ebay.URLBuilder, guard *ebay.Guard, images *ImageService, screenshotsDir string, taskConfig TaskConfig, newSink SinkFactory, aggregate interfaces.ResultSink, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		pool:           pool,
		urls:           urls,
		guard:          guard,
		images:         images,
		screenshotsDir: screenshotsDir,
		taskConfig:     taskConfig,
		newSink:        newSink,
		aggregate:      aggregate,
		tracker:        NewCompletionTracker(),
		logger:         logger,
	}
}

type submission struct {
	key  models.CrawlKey
	sink interfaces.ResultSink
}

type completion struct {
	sub    submission
	result TaskResult
}

// Run crawls every keyword for both ranges and returns a summary. The
// session pool is cleaned up exactly once before Run returns, whatever
// the task outcomes were.
func (o *Orchestrator) Run(ctx context.Context, keywords []string) *RunReport {
	defer o.pool.Cleanup()

	report := &RunReport{
		Rows:     make(map[models.CrawlKey]int),
		Outcomes: make(map[models.CrawlKey]Outcome),
	}

	subs := o.buildSubmissions(keywords, report)
	if len(subs) == 0 {
		o.logger.Warn().Msg("No keywords to crawl")
		return report
	}

	o.logger.Info().
		Int("keywords", len(subs)/len(models.Ranges)).
		Int("tasks", len(subs)).
		Int("workers", o.pool.Size()).
		Msg("Starting crawl run")

	tasks := make(chan submission)
	results := make(chan completion)

	var workers sync.WaitGroup
	for i := 0; i < o.pool.Size(); i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for sub := range tasks {
				results <- completion{sub: sub, result: o.runOne(ctx, sub)}
			}
		}()
	}

	go func() {
		for _, sub := range subs {
			tasks <- sub
		}
		close(tasks)
	}()

	go func() {
		workers.Wait()
		close(results)
	}()

	// Single collector: completion tracking and keyword-sink flushes all
	// happen here, so each flush fires exactly once.
	for comp := range results {
		key := comp.sub.key
		report.Rows[key] = len(comp.result.Listings)
		report.Outcomes[key] = comp.result.Outcome
		if comp.result.Err != nil {
			report.Errors++
		}

		if o.tracker.MarkDone(key.Keyword, key.Range) {
			if err := comp.sub.sink.Flush(); err != nil {
				o.logger.Error().
					Err(err).
					Str("keyword", key.Keyword).
					Msg("Error flushing keyword output")
				report.Errors++
			} else {
				o.logger.Info().
					Str("keyword", key.Keyword).
					Msg("Keyword output written")
			}
		}
	}

	if err := o.aggregate.Flush(); err != nil {
		o.logger.Error().Err(err).Msg("Error flushing aggregate output")
		report.Errors++
	}

	o.logger.Info().
		Int("tasks", len(subs)).
		Int("errors", report.Errors).
		Msg("Crawl run finished")

	return report
}

// buildSubmissions expands keywords into (keyword, range) tasks sharing
// one sink per keyword. A keyword whose sink cannot be created is skipped
// and counted as an error.
func (o *Orchestrator) buildSubmissions(keywords []string, report *RunReport) []submission {
	var subs []submission
	seen := make(map[string]bool)

	for _, raw := range keywords {
		keyword := strings.TrimSpace(raw)
		if keyword == "" || seen[keyword] {
			continue
		}
		seen[keyword] = true

		sink, err := o.newSink(keyword)
		if err != nil {
			o.logger.Error().
				Err(err).
				Str("keyword", keyword).
				Msg("Error creating keyword output, skipping keyword")
			report.Errors++
			continue
		}

		o.tracker.Register(keyword)
		for _, r := range models.Ranges {
			subs = append(subs, submission{
				key:  models.CrawlKey{Keyword: keyword, Range: r},
				sink: sink,
			})
		}
	}
	return subs
}

// runOne borrows a session, runs the task, and routes its finalized rows
// to both sinks. Aggregate writes are serialized here; the per-keyword
// sink guards itself.
func (o *Orchestrator) runOne(ctx context.Context, sub submission) TaskResult {
	sess, err := o.pool.Acquire(ctx)
	if err != nil {
		return TaskResult{Key: sub.key, Outcome: OutcomeError, Err: err}
	}
	defer o.pool.Release(sess)

	task := NewCrawlTask(sub.key, o.urls, o.guard, o.images, o.screenshotsDir, o.taskConfig, o.logger)
	result := task.Run(ctx, sess)

	for i := range result.Listings {
		if err := sub.sink.WriteRow(sub.key.Range, result.Listings[i]); err != nil {
			o.logger.Error().Err(err).Str("keyword", sub.key.Keyword).Msg("Error writing row to keyword output")
			break
		}
	}
	if err := sub.sink.WriteTotalSold(sub.key.Range, result.TotalSold); err != nil {
		o.logger.Error().Err(err).Str("keyword", sub.key.Keyword).Msg("Error writing total sold to keyword output")
	}

	o.aggregateMu.Lock()
	for i := range result.Listings {
		if err := o.aggregate.WriteRow(sub.key.Range, result.Listings[i]); err != nil {
			o.logger.Error().Err(err).Str("keyword", sub.key.Keyword).Msg("Error writing row to aggregate output")
			break
		}
	}
	o.aggregateMu.Unlock()

	return result
}
