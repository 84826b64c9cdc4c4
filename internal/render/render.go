// Package render turns analysis responses into display view models. Every
// function here is a pure transform: no I/O, no state, results kept in the
// order the backend ranked them.
package render

import (
	"github.com/cermatapp/cermat/internal/models"
)

// Band is a display grouping for a confidence value.
type Band string

const (
	// BandHigh is confidence strictly above 80.
	BandHigh Band = "high"
	// BandMedium is confidence strictly above 60, up to and including 80.
	BandMedium Band = "medium"
	// BandLow is everything else.
	BandLow Band = "low"
)

// ConfidenceBand assigns c to a band. Boundary values 80 and 60 fall to the
// lower band.
func ConfidenceBand(c float64) Band {
	switch {
	case c > 80:
		return BandHigh
	case c > 60:
		return BandMedium
	default:
		return BandLow
	}
}

// PredictionRow is one rendered model prediction.
type PredictionRow struct {
	SDG        string  `json:"sdg"`
	Confidence float64 `json:"confidence"`
	Band       Band    `json:"band"`
	Source     string  `json:"source"`
}

// ModelResultView is the rendered model analysis panel.
type ModelResultView struct {
	Rows           []PredictionRow `json:"rows"`
	KeywordMatches []string        `json:"keyword_matches,omitempty"`
	ModelName      string          `json:"model_name,omitempty"`
	TextPreview    string          `json:"text_preview,omitempty"`
	CharCount      int             `json:"char_count,omitempty"`
}

// BuildModelView renders a successful model analysis. Row order is the
// backend's ranking; nothing is re-sorted client-side.
func BuildModelView(a *models.ModelAnalysis) *ModelResultView {
	rows := make([]PredictionRow, 0, len(a.Predictions))
	for _, p := range a.Predictions {
		rows = append(rows, PredictionRow{
			SDG:        p.SDG,
			Confidence: p.Confidence,
			Band:       ConfidenceBand(p.Confidence),
			Source:     p.Source,
		})
	}
	return &ModelResultView{
		Rows:           rows,
		KeywordMatches: a.KeywordMatches,
		ModelName:      a.ModelName,
		TextPreview:    a.TextPreview,
		CharCount:      a.CharCount,
	}
}

// RuleRow is one rendered rule match.
type RuleRow struct {
	SDG          string   `json:"sdg"`
	MatchCount   int      `json:"match_count"`
	Confidence   float64  `json:"confidence"`
	Band         Band     `json:"band"`
	MatchedRules []string `json:"matched_rules"`
}

// RuleResultView is the rendered rule analysis panel.
type RuleResultView struct {
	Rows         []RuleRow `json:"rows"`
	TotalMatches int       `json:"total_matches"`
}

// BuildRuleView renders a successful rule analysis, preserving order.
func BuildRuleView(matches []models.RuleMatch, totalMatches int) *RuleResultView {
	rows := make([]RuleRow, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, RuleRow{
			SDG:          m.SDG,
			MatchCount:   m.MatchCount,
			Confidence:   m.Confidence,
			Band:         ConfidenceBand(m.Confidence),
			MatchedRules: m.MatchedRules,
		})
	}
	return &RuleResultView{Rows: rows, TotalMatches: totalMatches}
}

// Failure panel kinds. A logical failure carries the backend's reason; a
// network failure is rendered as its own distinct state.
const (
	FailureKindLogical = "failure"
	FailureKindNetwork = "network_error"
)

// Fallback messages for failures with no usable reason.
const (
	GenericFailureMessage = "Analysis failed. Please try again."
	NetworkErrorMessage   = "Could not reach the analysis service. Please check your connection and try again."
)

// FailurePanel is the rendered failure state for a panel.
type FailurePanel struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// BuildFailurePanel renders a logical failure, falling back to the generic
// message when the backend supplied no reason.
func BuildFailurePanel(reason string) *FailurePanel {
	if reason == "" {
		reason = GenericFailureMessage
	}
	return &FailurePanel{Kind: FailureKindLogical, Message: reason}
}

// BuildNetworkErrorPanel renders the transport-failure state.
func BuildNetworkErrorPanel() *FailurePanel {
	return &FailurePanel{Kind: FailureKindNetwork, Message: NetworkErrorMessage}
}

// HistoryRow is one rendered history table row.
type HistoryRow struct {
	ID        int64             `json:"id"`
	Type      models.RecordType `json:"type"`
	Title     string            `json:"title"`
	TopSDG    string            `json:"top_sdg,omitempty"`
	Band      Band              `json:"band"`
	Timestamp string            `json:"timestamp"`
}

// HistoryView is the rendered history table: at most limit rows, with
// aggregate counts computed over the FULL sequence.
type HistoryView struct {
	Rows  []HistoryRow        `json:"rows"`
	Stats models.HistoryStats `json:"stats"`
}

// BuildHistoryView renders records (already filtered and newest-first) into
// at most limit rows. stats must be the full-sequence counts.
func BuildHistoryView(recs []*models.ClassificationRecord, stats models.HistoryStats, limit int) *HistoryView {
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	rows := make([]HistoryRow, 0, len(recs))
	for _, rec := range recs {
		row := HistoryRow{
			ID:        rec.ID,
			Type:      rec.Type,
			Title:     rec.Title,
			Timestamp: rec.Timestamp.Format("2006-01-02 15:04"),
		}
		switch {
		case len(rec.Predictions) > 0:
			row.TopSDG = rec.Predictions[0].SDG
			row.Band = ConfidenceBand(rec.Predictions[0].Confidence)
		case len(rec.Matches) > 0:
			row.TopSDG = rec.Matches[0].SDG
			row.Band = ConfidenceBand(rec.Matches[0].Confidence)
		default:
			row.Band = BandLow
		}
		rows = append(rows, row)
	}
	return &HistoryView{Rows: rows, Stats: stats}
}
