package model

import (
	"fmt"
	"sort"
	"strings"
)

// Nutrient names as they appear in the dataset header and index metadata.
const (
	Calories = "calories"
	Protein  = "protein"
	Carbs    = "carbs"
	Fats     = "fats"
	Sugar    = "sugar"
	Sodium   = "sodium"
	Fiber    = "fiber"
)

// RequiredNutrients must be present on every ingested row.
var RequiredNutrients = []string{Calories, Protein, Carbs, Fats}

// OptionalNutrients are read when the dataset carries the column.
var OptionalNutrients = []string{Sugar, Sodium, Fiber}

// Nutrition maps a nutrient name to its per-serving value. A nutrient missing
// from the map is unknown, not zero.
type Nutrition map[string]float64

// Get returns the value and whether the nutrient is known.
func (n Nutrition) Get(nutrient string) (float64, bool) {
	v, ok := n[nutrient]
	return v, ok
}

// Summary renders the nutrition facts the way they are embedded and displayed.
func (n Nutrition) Summary() string {
	parts := make([]string, 0, len(n))
	for _, k := range n.keys() {
		switch k {
		case Calories:
			parts = append(parts, trimFloat(n[k])+" calories")
		case Sodium:
			parts = append(parts, fmt.Sprintf("%smg %s", trimFloat(n[k]), k))
		default:
			parts = append(parts, fmt.Sprintf("%sg %s", trimFloat(n[k]), k))
		}
	}
	return strings.Join(parts, ", ")
}

// keys returns required nutrients first, then the rest alphabetically.
func (n Nutrition) keys() []string {
	var out []string
	seen := make(map[string]bool)
	for _, k := range RequiredNutrients {
		if _, ok := n[k]; ok {
			out = append(out, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range n {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}
