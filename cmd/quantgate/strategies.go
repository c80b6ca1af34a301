package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quantgate/internal/scheduler"
)

// StrategySpec describes one strategy under governance: where its return
// series lives, the parameter grid to search and the schema bounds.
type StrategySpec struct {
	ID          string           `yaml:"id"`
	ReturnsFile string           `yaml:"returns_file"`
	Grid        scheduler.Grid   `yaml:"grid"`
	Schema      scheduler.Schema `yaml:"schema"`
	SpanDays    int              `yaml:"span_days"` // evaluation window length, default 1095
}

// StrategiesFile is the on-disk strategies manifest
type StrategiesFile struct {
	BenchmarkFile string          `yaml:"benchmark_file"`
	Strategies    []*StrategySpec `yaml:"strategies"`
}

// loadStrategies reads and validates the strategies manifest
func loadStrategies(path string) (*StrategiesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategies file: %w", err)
	}

	var manifest StrategiesFile
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse strategies file: %w", err)
	}

	for _, s := range manifest.Strategies {
		if s.ID == "" {
			return nil, fmt.Errorf("strategies file %s: strategy without id", path)
		}
		if s.ReturnsFile == "" {
			return nil, fmt.Errorf("strategy %s: returns_file is required", s.ID)
		}
		if len(s.Grid) == 0 {
			return nil, fmt.Errorf("strategy %s: grid is required", s.ID)
		}
		if s.SpanDays <= 0 {
			s.SpanDays = 1095
		}
	}
	return &manifest, nil
}
