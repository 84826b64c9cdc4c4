// Package rules implements keyword-rule SDG matching against a static table.
package rules

import (
	"sort"
	"strings"

	"github.com/cermatapp/cermat/internal/models"
	"github.com/cermatapp/cermat/internal/sdg"
)

// confidencePerMatch is the score contributed by each matched keyword,
// capped at 100.
const confidencePerMatch = 15

// Rule holds the ordered keyword list for one goal.
type Rule struct {
	SDG      int      `yaml:"sdg" json:"sdg"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Table is an immutable ordered rule set, one entry per goal.
type Table struct {
	rules []Rule
}

// NewTable builds a table from rules, preserving order.
func NewTable(rules []Rule) *Table {
	return &Table{rules: rules}
}

// Default returns the built-in table: five keywords per goal.
func Default() *Table {
	return NewTable([]Rule{
		{SDG: 1, Keywords: []string{"poverty", "poor", "inequality", "social protection", "basic income"}},
		{SDG: 2, Keywords: []string{"hunger", "food security", "nutrition", "agriculture", "malnutrition"}},
		{SDG: 3, Keywords: []string{"health", "well-being", "disease", "healthcare", "vaccine"}},
		{SDG: 4, Keywords: []string{"education", "school", "learning", "literacy", "teacher"}},
		{SDG: 5, Keywords: []string{"gender", "women", "equality", "empowerment", "feminism"}},
		{SDG: 6, Keywords: []string{"water", "sanitation", "hygiene", "clean water", "wastewater"}},
		{SDG: 7, Keywords: []string{"energy", "renewable", "solar", "wind", "electricity"}},
		{SDG: 8, Keywords: []string{"work", "employment", "economic", "job", "growth"}},
		{SDG: 9, Keywords: []string{"industry", "innovation", "infrastructure", "technology", "research"}},
		{SDG: 10, Keywords: []string{"inequality", "discrimination", "inclusion", "equality", "social justice"}},
		{SDG: 11, Keywords: []string{"city", "urban", "community", "sustainable", "housing"}},
		{SDG: 12, Keywords: []string{"consumption", "production", "waste", "recycle", "circular economy"}},
		{SDG: 13, Keywords: []string{"climate", "global warming", "carbon", "emission", "greenhouse"}},
		{SDG: 14, Keywords: []string{"ocean", "marine", "sea", "fish", "coral"}},
		{SDG: 15, Keywords: []string{"forest", "biodiversity", "land", "ecosystem", "wildlife"}},
		{SDG: 16, Keywords: []string{"peace", "justice", "institution", "law", "corruption"}},
		{SDG: 17, Keywords: []string{"partnership", "collaboration", "cooperation", "global", "multilateral"}},
	})
}

// Len returns the number of goals in the table.
func (t *Table) Len() int {
	return len(t.rules)
}

// Rules returns a copy of the rule list.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Keywords returns the keyword list for goal n, or nil when absent.
func (t *Table) Keywords(n int) []string {
	for _, r := range t.rules {
		if r.SDG == n {
			return append([]string(nil), r.Keywords...)
		}
	}
	return nil
}

// Match checks text against every rule by case-insensitive substring
// containment. Matched keywords keep the table's order; results are sorted by
// confidence descending (ties keep goal order). Confidence is 15 points per
// matched keyword, capped at 100.
func (t *Table) Match(text string) []models.RuleMatch {
	lower := strings.ToLower(text)
	var out []models.RuleMatch
	for _, r := range t.rules {
		var matched []string
		for _, kw := range r.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 {
			continue
		}
		confidence := float64(len(matched) * confidencePerMatch)
		if confidence > 100 {
			confidence = 100
		}
		out = append(out, models.RuleMatch{
			SDG:          sdg.FormatLabel(r.SDG),
			MatchCount:   len(matched),
			Confidence:   confidence,
			MatchedRules: matched,
			Source:       "rule_based",
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// MaxResults is how many top-ranked goals a rule analysis reports. The match
// counts of goals past the cutoff still count toward the total.
const MaxResults = 5

// Top returns the highest-ranked matches, at most MaxResults. Callers must
// compute TotalMatches before capping.
func Top(matches []models.RuleMatch) []models.RuleMatch {
	if len(matches) > MaxResults {
		return matches[:MaxResults]
	}
	return matches
}

// TotalMatches sums per-goal match counts, the value reported alongside a
// rule analysis.
func TotalMatches(matches []models.RuleMatch) int {
	total := 0
	for _, m := range matches {
		total += m.MatchCount
	}
	return total
}
