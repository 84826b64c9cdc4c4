// Package models defines core data structures for classification records,
// analysis results, and backend payloads.
package models

import "time"

// RecordType distinguishes how a classification was produced.
type RecordType string

const (
	// RecordModel marks results from the ML analysis endpoint.
	RecordModel RecordType = "model"
	// RecordRule marks results from keyword-rule matching.
	RecordRule RecordType = "rule"
)

// Valid reports whether t is one of the known record types.
func (t RecordType) Valid() bool {
	return t == RecordModel || t == RecordRule
}

// ClassificationRecord is one saved classification. Records are created only
// by an explicit save after a successful analysis; they are never mutated
// afterwards, only removed.
type ClassificationRecord struct {
	ID          int64              `json:"id"`
	Type        RecordType         `json:"type"`
	Title       string             `json:"title"`
	Abstract    string             `json:"abstract"`
	Keywords    string             `json:"keywords"`
	Predictions []PredictionResult `json:"predictions,omitempty"`
	Matches     []RuleMatch        `json:"matches,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// PredictionResult is one ranked SDG prediction from the model endpoint.
type PredictionResult struct {
	SDG        string  `json:"sdg"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// RuleMatch is one SDG hit from keyword-rule matching. MatchedRules preserves
// the rule table's keyword order.
type RuleMatch struct {
	SDG          string   `json:"sdg"`
	MatchCount   int      `json:"match_count"`
	Confidence   float64  `json:"confidence"`
	MatchedRules []string `json:"matched_rules"`
	Source       string   `json:"source,omitempty"`
}

// HistoryFilter narrows a history listing. Zero values mean "no constraint".
// Search matches title, abstract and keywords; Date matches the record's
// local calendar day in YYYY-MM-DD form.
type HistoryFilter struct {
	Search string     `json:"search,omitempty"`
	Type   RecordType `json:"type,omitempty"`
	SDG    int        `json:"sdg,omitempty"`
	Date   string     `json:"date,omitempty"`
}

// IsZero reports whether the filter constrains nothing.
func (f HistoryFilter) IsZero() bool {
	return f.Search == "" && f.Type == "" && f.SDG == 0 && f.Date == ""
}

// HistoryStats are aggregate counts over the full stored sequence, not just
// the displayed slice.
type HistoryStats struct {
	Total int64 `json:"total"`
	Model int64 `json:"model"`
	Rule  int64 `json:"rule"`
}
