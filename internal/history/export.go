package history

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cermatapp/cermat/internal/models"
)

// ExportFilename builds the export artifact name:
// cermat-<context>-<ISO timestamp with ':' and '.' replaced by '-'>.<ext>.
func ExportFilename(context, ext string, now time.Time) string {
	ts := now.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("cermat-%s-%s.%s", context, ts, ext)
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, recs []*models.ClassificationRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// topResult returns the first (highest-ranked) result label and confidence.
func topResult(rec *models.ClassificationRecord) (string, float64) {
	if len(rec.Predictions) > 0 {
		return rec.Predictions[0].SDG, rec.Predictions[0].Confidence
	}
	if len(rec.Matches) > 0 {
		return rec.Matches[0].SDG, rec.Matches[0].Confidence
	}
	return "", 0
}

// WriteXLSX writes records as a spreadsheet, one row per record with the
// top-ranked result broken out into its own columns.
func WriteXLSX(w io.Writer, recs []*models.ClassificationRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "History"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"ID", "Type", "Title", "Abstract", "Keywords", "Top SDG", "Confidence", "Results", "Timestamp"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for row, rec := range recs {
		top, confidence := topResult(rec)
		resultsJSON, err := json.Marshal(recordResults{Predictions: rec.Predictions, Matches: rec.Matches})
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		values := []interface{}{
			rec.ID,
			string(rec.Type),
			rec.Title,
			rec.Abstract,
			rec.Keywords,
			top,
			confidence,
			string(resultsJSON),
			rec.Timestamp.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}
