package scheduler

import (
	"fmt"
	"sort"
)

// ParamRange represents the valid numeric range for one strategy
// parameter
type ParamRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Schema maps parameter names to their valid ranges so candidate sets
// can be checked generically
type Schema map[string]ParamRange

// Validate checks that every parameter is known and in range
func (s Schema) Validate(params map[string]float64) error {
	for name, value := range params {
		r, ok := s[name]
		if !ok {
			return fmt.Errorf("unknown parameter: %s", name)
		}
		if value < r.Min || value > r.Max {
			return fmt.Errorf("parameter %s=%g out of range [%g, %g]", name, value, r.Min, r.Max)
		}
	}
	return nil
}

// Grid maps parameter names to the candidate values to enumerate
type Grid map[string][]float64

// Combinations expands the grid into every parameter combination, in a
// deterministic order
func (g Grid) Combinations() []map[string]float64 {
	if len(g) == 0 {
		return nil
	}

	names := make([]string, 0, len(g))
	for name := range g {
		if len(g[name]) == 0 {
			return nil
		}
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []map[string]float64{{}}
	for _, name := range names {
		var next []map[string]float64
		for _, combo := range combos {
			for _, value := range g[name] {
				expanded := make(map[string]float64, len(combo)+1)
				for k, v := range combo {
					expanded[k] = v
				}
				expanded[name] = value
				next = append(next, expanded)
			}
		}
		combos = next
	}
	return combos
}
