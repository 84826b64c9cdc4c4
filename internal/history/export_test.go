package history

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cermatapp/cermat/internal/models"
)

func TestExportFilename(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 34, 56, 789000000, time.UTC)
	got := ExportFilename("history", "json", now)
	want := "cermat-history-2026-08-28T12-34-56-789Z.json"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if strings.ContainsAny(got, ":.") && !strings.HasSuffix(got, ".json") {
		t.Errorf("filename should not contain ':' or '.' outside the extension: %q", got)
	}
}

func TestWriteJSON(t *testing.T) {
	recs := []*models.ClassificationRecord{
		{
			ID:    1756380000000,
			Type:  models.RecordRule,
			Title: "Water Study",
			Matches: []models.RuleMatch{
				{SDG: "SDG 6: Clean Water and Sanitation", MatchCount: 3, Confidence: 45,
					MatchedRules: []string{"water", "sanitation", "clean water"}},
			},
			Timestamp: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		},
	}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, recs); err != nil {
		t.Fatal(err)
	}
	var decoded []*models.ClassificationRecord
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 1 || decoded[0].Title != "Water Study" {
		t.Errorf("decoded: %+v", decoded)
	}
	if decoded[0].Matches[0].MatchCount != 3 {
		t.Errorf("matches: %+v", decoded[0].Matches)
	}
}

func TestWriteXLSX(t *testing.T) {
	recs := []*models.ClassificationRecord{
		{
			ID:    42,
			Type:  models.RecordModel,
			Title: "Energy Paper",
			Predictions: []models.PredictionResult{
				{SDG: "SDG 7: Affordable and Clean Energy", Confidence: 91.2, Source: "ml_model"},
			},
			Timestamp: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		},
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, recs); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	title, err := f.GetCellValue("History", "C2")
	if err != nil {
		t.Fatal(err)
	}
	if title != "Energy Paper" {
		t.Errorf("title cell: %q", title)
	}
	top, _ := f.GetCellValue("History", "F2")
	if top != "SDG 7: Affordable and Clean Energy" {
		t.Errorf("top sdg cell: %q", top)
	}
}
