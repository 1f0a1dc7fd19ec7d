package scraper

import (
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/vendo/internal/ebay"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// Selectors for the research table. Kept together so a site markup change
// is a one-file fix.
const (
	rowSelector       = "tr.research-table-row"
	titleLinkTextSel  = "div.research-table-row__product-info-name a span"
	titleTextSel      = "div.research-table-row__product-info-name"
	titleLinkSel      = "div.research-table-row__product-info-name a"
	thumbnailSel      = "div.__zoomable-thumbnail-inner img"
	avgSoldPriceSel   = "td.research-table-row__avgSoldPrice>div:first-child>div:first-child"
	avgShippingSel    = "td.research-table-row__avgShippingCost>div:first-child>div:first-child"
	totalSoldSel      = "td.research-table-row__totalSoldCount>div:first-child>div:first-child"
	totalSalesSel     = "td.research-table-row__totalSalesValue>div:first-child>div:first-child"
	dateLastSoldSel   = "td.research-table-row__dateLastSold>div:first-child>div:first-child"
	noResultsSel      = "div.research__generic-error .page-notice__title"
	nextButtonSel     = "button.pagination__next"
	noResultsNotice   = "No sold results found"
	activeTabFragment = "tabName=ACTIVE"
)

// parseRow extracts a candidate listing from one table row. Every field
// read is best-effort: a missing optional field is recorded as absent.
// Required-field validation happens in the task, not here.
func parseRow(row interfaces.Element, keyword string) models.SoldListing {
	listing := models.SoldListing{Keyword: keyword}

	if title, ok := textOf(row, titleLinkTextSel); ok && title != "" {
		listing.Title = title
		if href, ok := attrOf(row, titleLinkSel, "href"); ok {
			listing.TitleURL = ebay.CleanProductURL(href)
		}
		if src, ok := attrOf(row, thumbnailSel, "src"); ok {
			listing.ImageURL = src
		}
	} else if title, ok := textOf(row, titleTextSel); ok {
		listing.Title = title
	}

	listing.AvgSoldPrice = moneyOf(row, avgSoldPriceSel)
	listing.AvgShippingCost = moneyOf(row, avgShippingSel)
	listing.TotalSold = countOf(row, totalSoldSel)
	listing.TotalSales = moneyOf(row, totalSalesSel)
	listing.DateLastSold = dateOf(row, dateLastSoldSel)

	return listing
}

func textOf(el interfaces.Element, selector string) (string, bool) {
	sub, ok := el.Find(selector)
	if !ok {
		return "", false
	}
	return sub.Text()
}

func attrOf(el interfaces.Element, selector, name string) (string, bool) {
	sub, ok := el.Find(selector)
	if !ok {
		return "", false
	}
	return sub.Attr(name)
}

func moneyOf(el interfaces.Element, selector string) *float64 {
	text, ok := textOf(el, selector)
	if !ok {
		return nil
	}
	return parseMoney(text)
}

func countOf(el interfaces.Element, selector string) *int {
	text, ok := textOf(el, selector)
	if !ok {
		return nil
	}
	return parseCount(text)
}

func dateOf(el interfaces.Element, selector string) *time.Time {
	text, ok := textOf(el, selector)
	if !ok {
		return nil
	}
	return parseDate(text)
}

func parseMoney(text string) *float64 {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(text))
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

func parseCount(text string) *int {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if cleaned == "" {
		return nil
	}
	v, err := strconv.Atoi(cleaned)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// dateLayouts covers the formats the last-sold column has been observed
// to use.
var dateLayouts = []string{
	"Jan 2, 2006",
	"Jan 2 2006",
	"01/02/2006",
	"01/02/06",
	"2006-01-02",
}

func parseDate(text string) *time.Time {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return &t
		}
	}
	return nil
}
