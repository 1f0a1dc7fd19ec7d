package ebay

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/vendo/internal/models"
)

const (
	// ResearchURL is the sold-listings research page
	ResearchURL = "https://www.ebay.com/sh/research"

	// LoginURL is the entry point for manual sign-in
	LoginURL = "https://www.ebay.com/signin/"

	// SiteRootURL is navigated to before cookies are applied
	SiteRootURL = "https://www.ebay.com"

	// CanonicalCookieDomain is the only domain whose cookies are ever
	// applied to a session
	CanonicalCookieDomain = ".ebay.com"
)

// URLBuilder constructs research and login URLs. Deterministic for
// identical inputs given a fixed clock.
type URLBuilder struct {
	now func() time.Time
}

// NewURLBuilder creates a builder using the given clock; nil means
// time.Now.
func NewURLBuilder(now func() time.Time) *URLBuilder {
	if now == nil {
		now = time.Now
	}
	return &URLBuilder{now: now}
}

// BuildListingURL returns the research URL for a keyword, day range and
// result offset. Start and end dates are millisecond epoch values derived
// from the range.
func (b *URLBuilder) BuildListingURL(keyword string, r models.DaysRange, offset int) (string, error) {
	if keyword == "" {
		return "", fmt.Errorf("keyword must be provided for the search")
	}

	end := b.now()
	start := end.AddDate(0, 0, -int(r))

	params := url.Values{}
	params.Set("marketplace", "EBAY-US")
	params.Set("keywords", strings.ReplaceAll(keyword, " ", "+"))
	params.Set("dayRange", strconv.Itoa(int(r)))
	params.Set("endDate", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("startDate", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("conditionId", "1000")
	params.Set("buyerCountry", "BuyerLocation:::US")
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", "50")
	params.Set("tabName", "SOLD")

	return ResearchURL + "?" + params.Encode(), nil
}

// BuildLoginURL returns the sign-in entry point
func (b *URLBuilder) BuildLoginURL() string {
	return LoginURL
}

// CleanProductURL strips the query string from a product link
func CleanProductURL(raw string) string {
	if i := strings.Index(raw, "?"); i >= 0 {
		return raw[:i]
	}
	return raw
}
