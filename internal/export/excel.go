package export

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/vendo/internal/models"
)

const (
	imageColumnWidth = 20
	imageRowHeight   = 100
	currencyFormat   = "$#,##0.00"
	dateFormat       = "2006-01-02"
)

// Workbook writes crawl results into one spreadsheet with a worksheet per
// day range. It implements interfaces.ResultSink. All methods are safe for
// concurrent use; the file is written once, on Flush.
type Workbook struct {
	mu       sync.Mutex
	file     *excelize.File
	path     string
	logger   arbor.ILogger
	nextRow  map[models.DaysRange]int
	currency int
	bold     int
	saved    bool
}

// NewWorkbook creates a workbook targeting path, with headers written to
// both range sheets up front.
func NewWorkbook(path string, logger arbor.ILogger) (*Workbook, error) {
	f := excelize.NewFile()

	w := &Workbook{
		file:    f,
		path:    path,
		logger:  logger,
		nextRow: make(map[models.DaysRange]int),
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	w.bold = bold

	numFmt := currencyFormat
	currency, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return nil, fmt.Errorf("failed to create currency style: %w", err)
	}
	w.currency = currency

	for i, r := range models.Ranges {
		sheet := r.SheetName()
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return nil, fmt.Errorf("failed to name sheet %s: %w", sheet, err)
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, fmt.Errorf("failed to create sheet %s: %w", sheet, err)
			}
		}
		if err := w.writeHeaders(sheet); err != nil {
			return nil, err
		}
		w.nextRow[r] = 2
	}

	return w, nil
}

func (w *Workbook) writeHeaders(sheet string) error {
	for _, field := range models.Schema {
		cell, err := excelize.CoordinatesToCellName(field.Column+1, 1)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(sheet, cell, field.Header); err != nil {
			return fmt.Errorf("failed to write header %s: %w", field.Header, err)
		}
		if err := w.file.SetCellStyle(sheet, cell, cell, w.bold); err != nil {
			return err
		}
	}

	imageCol, err := excelize.ColumnNumberToName(columnFor(models.FieldImage) + 1)
	if err != nil {
		return err
	}
	return w.file.SetColWidth(sheet, imageCol, imageCol, imageColumnWidth)
}

// WriteRow appends one listing to the sheet for the given range
func (w *Workbook) WriteRow(r models.DaysRange, listing models.SoldListing) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sheet := r.SheetName()
	row := w.nextRow[r]
	w.nextRow[r] = row + 1

	if err := w.setCell(sheet, models.FieldKeyword, row, listing.Keyword); err != nil {
		return err
	}
	if err := w.setCell(sheet, models.FieldTitle, row, listing.Title); err != nil {
		return err
	}
	if listing.TitleURL != "" {
		cell, err := excelize.CoordinatesToCellName(columnFor(models.FieldTitle)+1, row)
		if err != nil {
			return err
		}
		if err := w.file.SetCellHyperLink(sheet, cell, listing.TitleURL, "External"); err != nil {
			w.logger.Warn().Err(err).Str("url", listing.TitleURL).Msg("Error setting title hyperlink")
		}
	}

	if err := w.setCurrency(sheet, models.FieldAvgSoldPrice, row, listing.AvgSoldPrice); err != nil {
		return err
	}
	if err := w.setCurrency(sheet, models.FieldAvgShippingCost, row, listing.AvgShippingCost); err != nil {
		return err
	}
	if listing.TotalSold != nil {
		if err := w.setCell(sheet, models.FieldTotalSold, row, *listing.TotalSold); err != nil {
			return err
		}
	}
	if err := w.setCurrency(sheet, models.FieldTotalSales, row, listing.TotalSales); err != nil {
		return err
	}
	if listing.DateLastSold != nil {
		if err := w.setCell(sheet, models.FieldDateLastSold, row, listing.DateLastSold.Format(dateFormat)); err != nil {
			return err
		}
	}

	if listing.ImagePath != "" {
		w.embedImage(sheet, row, listing.ImagePath)
	}

	return nil
}

// WriteTotalSold appends a summary row with the sum of total-sold for the
// range.
func (w *Workbook) WriteTotalSold(r models.DaysRange, sum int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sheet := r.SheetName()
	row := w.nextRow[r]
	w.nextRow[r] = row + 1

	if err := w.setCell(sheet, models.FieldTitle, row, "Total Sold"); err != nil {
		return err
	}
	if err := w.setCell(sheet, models.FieldTotalSold, row, sum); err != nil {
		return err
	}

	labelCell, err := excelize.CoordinatesToCellName(columnFor(models.FieldTitle)+1, row)
	if err != nil {
		return err
	}
	sumCell, err := excelize.CoordinatesToCellName(columnFor(models.FieldTotalSold)+1, row)
	if err != nil {
		return err
	}
	if err := w.file.SetCellStyle(sheet, labelCell, labelCell, w.bold); err != nil {
		return err
	}
	return w.file.SetCellStyle(sheet, sumCell, sumCell, w.bold)
}

// Flush writes the workbook to disk. The first call saves; later calls
// are no-ops.
func (w *Workbook) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.saved {
		return nil
	}
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", w.path, err)
	}
	w.saved = true

	w.logger.Info().Str("path", w.path).Msg("Workbook saved")
	return nil
}

func (w *Workbook) setCell(sheet string, field models.FieldID, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(columnFor(field)+1, row)
	if err != nil {
		return err
	}
	if err := w.file.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to write cell %s!%s: %w", sheet, cell, err)
	}
	return nil
}

func (w *Workbook) setCurrency(sheet string, field models.FieldID, row int, value *float64) error {
	if value == nil {
		return nil
	}
	if err := w.setCell(sheet, field, row, *value); err != nil {
		return err
	}
	cell, err := excelize.CoordinatesToCellName(columnFor(field)+1, row)
	if err != nil {
		return err
	}
	return w.file.SetCellStyle(sheet, cell, cell, w.currency)
}

// embedImage anchors the downloaded thumbnail in the image column and
// tall-sizes the row. Best-effort; a bad image file does not fail the row.
func (w *Workbook) embedImage(sheet string, row int, path string) {
	cell, err := excelize.CoordinatesToCellName(columnFor(models.FieldImage)+1, row)
	if err != nil {
		return
	}
	if err := w.file.AddPicture(sheet, cell, path, &excelize.GraphicOptions{AutoFit: true}); err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("Error embedding image")
		return
	}
	if err := w.file.SetRowHeight(sheet, row, imageRowHeight); err != nil {
		w.logger.Warn().Err(err).Msg("Error setting row height")
	}
}

func columnFor(field models.FieldID) int {
	for _, f := range models.Schema {
		if f.ID == field {
			return f.Column
		}
	}
	return 0
}
