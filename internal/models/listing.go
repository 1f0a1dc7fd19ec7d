package models

import (
	"fmt"
	"time"
)

// DaysRange is the time window a crawl task covers
type DaysRange int

const (
	RangeThirty DaysRange = 30
	RangeNinety DaysRange = 90
)

// Ranges lists the fixed pair of windows every keyword is crawled for
var Ranges = []DaysRange{RangeThirty, RangeNinety}

func (r DaysRange) String() string {
	return fmt.Sprintf("%d days", int(r))
}

// SheetName returns the worksheet a range's rows are written to
func (r DaysRange) SheetName() string {
	if r == RangeThirty {
		return "Last 30 days"
	}
	return "Last 90 days"
}

// CrawlKey identifies one (keyword, range) unit of work. Immutable once
// the task is created.
type CrawlKey struct {
	Keyword string
	Range   DaysRange
}

func (k CrawlKey) String() string {
	return fmt.Sprintf("%s Last %d days", k.Keyword, int(k.Range))
}

// SoldListing is one extracted row from the sold-listings research table.
// Optional fields are pointers; absent means the field could not be read,
// which is not an error by itself. AvgSoldPrice and TotalSold are required
// for a listing to be valid.
type SoldListing struct {
	Keyword         string     `json:"keyword"`
	Title           string     `json:"title"`
	TitleURL        string     `json:"title_url,omitempty"`
	AvgSoldPrice    *float64   `json:"avg_sold_price,omitempty"`
	AvgShippingCost *float64   `json:"avg_shipping_cost,omitempty"`
	TotalSold       *int       `json:"total_sold,omitempty"`
	TotalSales      *float64   `json:"total_sales,omitempty"`
	DateLastSold    *time.Time `json:"date_last_sold,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	ImagePath       string     `json:"image_path,omitempty"`
}

// Valid reports whether the listing carries both required fields
func (l *SoldListing) Valid() bool {
	return l.AvgSoldPrice != nil && l.TotalSold != nil
}

// MissingRequired names the required fields the listing lacks
func (l *SoldListing) MissingRequired() []string {
	var missing []string
	if l.AvgSoldPrice == nil {
		missing = append(missing, "avg_sold_price")
	}
	if l.TotalSold == nil {
		missing = append(missing, "total_sold")
	}
	return missing
}

// Price returns the average sold price, treating absent as zero. Used for
// ordering only; validation has already rejected listings without a price.
func (l *SoldListing) Price() float64 {
	if l.AvgSoldPrice == nil {
		return 0
	}
	return *l.AvgSoldPrice
}

// SoldCount returns the total-sold count, treating absent as zero
func (l *SoldListing) SoldCount() int {
	if l.TotalSold == nil {
		return 0
	}
	return *l.TotalSold
}

// FieldID identifies one output column
type FieldID int

const (
	FieldImage FieldID = iota
	FieldKeyword
	FieldTitle
	FieldAvgSoldPrice
	FieldAvgShippingCost
	FieldTotalSold
	FieldTotalSales
	FieldDateLastSold
)

// FieldDescriptor maps a field to its display header and column index.
// Sinks consume this table; the engine only references FieldID.
type FieldDescriptor struct {
	ID     FieldID
	Header string
	Column int
}

// Schema is the ordered output column layout
var Schema = []FieldDescriptor{
	{ID: FieldImage, Header: "Image", Column: 0},
	{ID: FieldKeyword, Header: "Keyword", Column: 1},
	{ID: FieldTitle, Header: "Title", Column: 2},
	{ID: FieldAvgSoldPrice, Header: "Avg Sold Price", Column: 3},
	{ID: FieldAvgShippingCost, Header: "Avg Shipping Cost", Column: 4},
	{ID: FieldTotalSold, Header: "Total Sold", Column: 5},
	{ID: FieldTotalSales, Header: "Total Sale", Column: 6},
	{ID: FieldDateLastSold, Header: "Last Sold Date", Column: 7},
}
