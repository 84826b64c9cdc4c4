package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleFile is the YAML rule-file shape.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadFile reads a rule table from a YAML file. Each entry must name a goal
// in 1-17 and carry at least one keyword; duplicate goals are rejected.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s contains no rules", path)
	}
	seen := make(map[int]bool, len(rf.Rules))
	for _, r := range rf.Rules {
		if r.SDG < 1 || r.SDG > 17 {
			return nil, fmt.Errorf("invalid sdg number %d in %s", r.SDG, path)
		}
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("sdg %d has no keywords in %s", r.SDG, path)
		}
		if seen[r.SDG] {
			return nil, fmt.Errorf("duplicate sdg %d in %s", r.SDG, path)
		}
		seen[r.SDG] = true
	}
	return NewTable(rf.Rules), nil
}
