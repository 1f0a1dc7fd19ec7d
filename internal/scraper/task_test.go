package scraper

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/vendo/internal/browser"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/ebay"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// noFactory fails any session creation; guard recovery is not under test
// here.
type noFactory struct{}

func (noFactory) NewSession(context.Context) (interfaces.Session, error) {
	return nil, errors.New("no sessions in this test")
}

func (noFactory) NewInteractiveSession(context.Context) (interfaces.Session, error) {
	return nil, errors.New("no interactive sessions in this test")
}

func newTestGuard(t *testing.T) *ebay.Guard {
	t.Helper()
	store := ebay.NewCookieStore(t.TempDir(), common.GetLogger())
	return ebay.NewGuard(store, noFactory{}, ebay.NewRecoveryCoordinator(), ebay.GuardConfig{
		RecoveryAttempts: 1,
		PollInterval:     time.Millisecond,
		CookieKey:        "cookies",
	}, common.GetLogger())
}

func testTaskConfig() TaskConfig {
	return TaskConfig{
		MaxRows:       500,
		FetchAttempts: 5,
		RenderTimeout: 20 * time.Millisecond,
	}
}

func newTask(t *testing.T, key models.CrawlKey, config TaskConfig) *CrawlTask {
	t.Helper()
	return NewCrawlTask(key, ebay.NewURLBuilder(nil), newTestGuard(t), nil, "", config, common.GetLogger())
}

func offsetOf(t *testing.T, raw string) int {
	t.Helper()
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	offset, err := strconv.Atoi(parsed.Query().Get("offset"))
	require.NoError(t, err)
	return offset
}

func titles(listings []models.SoldListing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.Title
	}
	return out
}

func TestCrawlTask_PaginatesAndSortsByPrice(t *testing.T) {
	pageOne := []interfaces.Element{
		soldRow("p5", "$5.00", "", "1", "", ""),
		soldRow("p120", "$120.00", "", "2", "", ""),
		soldRow("thirty-a", "$30.00", "", "3", "", ""),
		soldRow("thirty-b", "$30.00", "", "4", "", ""),
		soldRow("p99", "$99.00", "", "5", "", ""),
	}
	pageTwo := []interfaces.Element{
		soldRow("p200", "$200.00", "", "6", "", ""),
		soldRow("thirty-c", "$30.00", "", "7", "", ""),
		soldRow("p2", "$2.00", "", "8", "", ""),
	}
	pages := map[int][]interfaces.Element{0: pageOne, 5: pageTwo}

	sess := &stubSession{}
	sess.waitFor = func(s *stubSession) ([]interfaces.Element, error) {
		rows, ok := pages[s.currentOffset()]
		if !ok {
			return nil, browser.ErrWaitTimeout
		}
		return rows, nil
	}
	sess.find = func(s *stubSession, selector string) (interfaces.Element, bool, error) {
		if selector != nextButtonSel {
			return nil, false, nil
		}
		if s.currentOffset() == 0 {
			return &fakeElement{}, true, nil
		}
		return &fakeElement{attrs: map[string]string{"disabled": "true"}}, true, nil
	}

	key := models.CrawlKey{Keyword: "camera lens", Range: models.RangeThirty}
	result := newTask(t, key, testTaskConfig()).Run(context.Background(), sess)

	require.NoError(t, result.Err)
	assert.Equal(t, OutcomeComplete, result.Outcome)
	require.Len(t, result.Listings, 8)

	// Sorted by price descending; equal prices keep their crawl order
	assert.Equal(t,
		[]string{"p200", "p120", "p99", "thirty-a", "thirty-b", "thirty-c", "p5", "p2"},
		titles(result.Listings))

	assert.Equal(t, 36, result.TotalSold)
	assert.Equal(t, 2, result.Pages)

	// The second page was requested at an offset equal to the rows
	// already processed.
	require.Len(t, sess.navigated, 2)
	assert.Equal(t, 0, offsetOf(t, sess.navigated[0]))
	assert.Equal(t, 5, offsetOf(t, sess.navigated[1]))
}

func TestCrawlTask_RowCapStopsPagination(t *testing.T) {
	rows := make([]interfaces.Element, 10)
	for i := range rows {
		rows[i] = soldRow("item", "$10.00", "", "1", "", "")
	}

	sess := &stubSession{}
	sess.waitFor = func(*stubSession) ([]interfaces.Element, error) {
		return rows, nil
	}

	config := testTaskConfig()
	config.MaxRows = 8

	key := models.CrawlKey{Keyword: "capped", Range: models.RangeThirty}
	result := newTask(t, key, config).Run(context.Background(), sess)

	require.NoError(t, result.Err)
	assert.Equal(t, OutcomeCapped, result.Outcome)
	assert.Len(t, result.Listings, 8)
	assert.Equal(t, 1, sess.waitCalls, "the cap was hit on the first page")
}

func TestCrawlTask_FetchRetriesExactlyBounded(t *testing.T) {
	sess := &stubSession{} // WaitFor always times out, no notice appears

	key := models.CrawlKey{Keyword: "flaky", Range: models.RangeNinety}
	result := newTask(t, key, testTaskConfig()).Run(context.Background(), sess)

	assert.Equal(t, OutcomeError, result.Outcome)
	assert.Empty(t, result.Listings)
	assert.Equal(t, 5, sess.waitCalls, "exactly the configured number of attempts")

	var fault *ExtractionFault
	require.ErrorAs(t, result.Err, &fault)
	assert.ErrorIs(t, result.Err, browser.ErrWaitTimeout)
}

func TestCrawlTask_GuardFaultDuringRetryEndsPromptly(t *testing.T) {
	sess := &stubSession{} // rows never render
	sess.onNavigate = func(u string) {
		// The refresh before the second attempt lands on the rate-limit
		// page.
		if len(sess.navigated) >= 2 {
			sess.location = "https://pages.ebay.com/limitexceeded/"
		} else {
			sess.location = u
		}
	}

	key := models.CrawlKey{Keyword: "paced out", Range: models.RangeThirty}
	result := newTask(t, key, testTaskConfig()).Run(context.Background(), sess)

	assert.Equal(t, OutcomeError, result.Outcome)

	var fault *ebay.AntiBotFault
	require.ErrorAs(t, result.Err, &fault, "the rate-limit fault surfaces directly")
	assert.Equal(t, 1, sess.waitCalls, "remaining render waits are not burned once the guard fails")
}

func TestCrawlTask_NoResultsNoticeIsTerminalEmpty(t *testing.T) {
	sess := &stubSession{}
	sess.find = func(_ *stubSession, selector string) (interfaces.Element, bool, error) {
		if selector == noResultsSel {
			return &fakeElement{text: "No sold results found for this search"}, true, nil
		}
		return nil, false, nil
	}

	key := models.CrawlKey{Keyword: "obscure thing", Range: models.RangeThirty}
	result := newTask(t, key, testTaskConfig()).Run(context.Background(), sess)

	require.NoError(t, result.Err)
	assert.Equal(t, OutcomeComplete, result.Outcome)
	assert.Empty(t, result.Listings)
	assert.Equal(t, 1, sess.waitCalls, "the notice short-circuits further attempts")
}

func TestCrawlTask_ActiveTabRedirectIsEmpty(t *testing.T) {
	sess := &stubSession{}
	sess.onNavigate = func(u string) {
		// The site bounces queries with no sold results onto the active
		// listings tab.
		sess.location = "https://www.ebay.com/sh/research?keywords=foo&tabName=ACTIVE"
	}

	key := models.CrawlKey{Keyword: "foo", Range: models.RangeThirty}
	result := newTask(t, key, testTaskConfig()).Run(context.Background(), sess)

	require.NoError(t, result.Err)
	assert.Equal(t, OutcomeComplete, result.Outcome)
	assert.Empty(t, result.Listings)
	assert.Zero(t, sess.waitCalls, "the redirect is detected before waiting for rows")
}

func TestCrawlTask_SchemaViolationKeepsPriorRows(t *testing.T) {
	rows := []interfaces.Element{
		soldRow("good-1", "$10.00", "", "1", "", ""),
		soldRow("good-2", "$20.00", "", "2", "", ""),
		soldRow("good-3", "$30.00", "", "3", "", ""),
		soldRow("bad", "", "", "4", "", ""), // no price
		soldRow("never-reached", "$50.00", "", "5", "", ""),
	}

	sess := &stubSession{}
	sess.waitFor = func(*stubSession) ([]interfaces.Element, error) {
		return rows, nil
	}

	key := models.CrawlKey{Keyword: "mixed", Range: models.RangeThirty}
	result := newTask(t, key, testTaskConfig()).Run(context.Background(), sess)

	assert.Equal(t, OutcomeError, result.Outcome)

	var violation *SchemaViolation
	require.ErrorAs(t, result.Err, &violation)
	assert.Equal(t, []string{"avg_sold_price"}, violation.Missing)
	assert.Equal(t, 4, violation.Row)

	assert.Equal(t, []string{"good-3", "good-2", "good-1"}, titles(result.Listings),
		"rows before the violation are kept and sorted")
	assert.Equal(t, 6, result.TotalSold)
}

func TestCrawlTask_LimitExceededKeepsCollectedRows(t *testing.T) {
	rows := []interfaces.Element{
		soldRow("a", "$10.00", "", "3", "", ""),
		soldRow("b", "$20.00", "", "4", "", ""),
	}

	sess := &stubSession{}
	sess.onNavigate = func(u string) {
		if offset, _ := strconv.Atoi(mustQuery(u, "offset")); offset > 0 {
			sess.location = "https://pages.ebay.com/limitexceeded/"
		} else {
			sess.location = u
		}
	}
	sess.waitFor = func(*stubSession) ([]interfaces.Element, error) {
		return rows, nil
	}
	sess.find = func(_ *stubSession, selector string) (interfaces.Element, bool, error) {
		if selector == nextButtonSel {
			return &fakeElement{}, true, nil
		}
		return nil, false, nil
	}

	key := models.CrawlKey{Keyword: "blocked", Range: models.RangeNinety}
	result := newTask(t, key, testTaskConfig()).Run(context.Background(), sess)

	assert.Equal(t, OutcomeError, result.Outcome)

	var fault *ebay.AntiBotFault
	require.ErrorAs(t, result.Err, &fault)

	assert.Len(t, result.Listings, 2, "rows collected before the block are emitted")
	assert.Equal(t, 7, result.TotalSold)
}

func mustQuery(raw, key string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Query().Get(key)
}
