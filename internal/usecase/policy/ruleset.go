package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleSet — наборы ключевых слов для жёсткого правила.
type RuleSet struct {
	Locations      []string `yaml:"locations"`
	WorkActivities []string `yaml:"work_activities"`
}

// DefaultRuleSet возвращает встроенные наборы ключевых слов.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Locations: []string{"bali", "indonesia", "ubud", "canggu", "jakarta", "seminyak"},
		WorkActivities: []string{
			"working", "shipping", "building", "crafting", "presenting",
			"posting", "coding", "developing", "launching",
		},
	}
}

// LoadRuleSet читает наборы из YAML. Пустой путь означает встроенные наборы,
// отсутствующий в файле набор также берётся из встроенных.
func LoadRuleSet(path string) (RuleSet, error) {
	def := DefaultRuleSet()
	if path == "" {
		return def, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rules file: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if rs.Locations == nil {
		rs.Locations = def.Locations
	}
	if rs.WorkActivities == nil {
		rs.WorkActivities = def.WorkActivities
	}
	return rs, nil
}
