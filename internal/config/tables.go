package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// QuizTables is the optional operator-editable tuning file for quiz
// generation. Any section left empty keeps the built-in tables.
type QuizTables struct {
	MinStatementRunes int                        `yaml:"min_statement_runes"`
	VaguenessMarkers  []string                   `yaml:"vagueness_markers"`
	Tiers             map[string][]KeywordWeight `yaml:"tiers"`
}

type KeywordWeight struct {
	Word   string  `yaml:"word"`
	Weight float64 `yaml:"weight"`
}

// LoadQuizTables reads the yaml tuning file. An empty path means no
// overrides and returns nil without error.
func LoadQuizTables(path string) (*QuizTables, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz tables: %w", err)
	}
	var tables QuizTables
	if err := yaml.Unmarshal(raw, &tables); err != nil {
		return nil, fmt.Errorf("parse quiz tables: %w", err)
	}
	return &tables, nil
}
