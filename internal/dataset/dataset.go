// Package dataset reads the tabular recipe dataset used for ingestion.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pageza/alchemorsel-recommender/internal/model"
	"github.com/pageza/alchemorsel-recommender/internal/rules"
)

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("dataset: missing required column")

// Row is one parsed data row. Err is set when the row failed validation and
// must be skipped; Recipe then holds whatever could be read.
type Row struct {
	Recipe model.Recipe
	Err    error
}

var requiredColumns = []string{"name", "ingredients"}

// Load parses a CSV dataset. Row numbers are zero-based positions of data
// rows. Only an unreadable file or header is fatal; bad rows come back with
// Err set.
func Load(r io.Reader, source string) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	var rows []Row
	for n := 0; ; n++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rows = append(rows, Row{Recipe: model.Recipe{Source: source, Row: n}, Err: err})
				continue
			}
			return nil, fmt.Errorf("failed to read row %d: %w", n, err)
		}
		rows = append(rows, parseRow(record, cols, source, n))
	}
	return rows, nil
}

func parseRow(record []string, cols map[string]int, source string, n int) Row {
	field := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	rec := model.Recipe{Source: source, Row: n, Nutrition: model.Nutrition{}}
	rec.Name, _ = field("name")
	ingredients, _ := field("ingredients")
	for _, ing := range strings.Split(ingredients, ",") {
		if ing = strings.TrimSpace(ing); ing != "" {
			rec.Ingredients = append(rec.Ingredients, ing)
		}
	}
	rec.Instructions, _ = field("instructions")
	cuisine, _ := field("cuisine")
	rec.Cuisine = strings.ToLower(cuisine)
	tags, _ := field("tags")
	rec.Tags = rules.SplitList(tags)

	if rec.Name == "" {
		return Row{Recipe: rec, Err: errors.New("missing required field: name")}
	}
	if len(rec.Ingredients) == 0 {
		return Row{Recipe: rec, Err: errors.New("missing required field: ingredients")}
	}

	for _, nutrient := range model.RequiredNutrients {
		raw, present := field(nutrient)
		if !present {
			continue
		}
		if raw == "" {
			return Row{Recipe: rec, Err: fmt.Errorf("missing required field: %s", nutrient)}
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Row{Recipe: rec, Err: fmt.Errorf("invalid %s %q", nutrient, raw)}
		}
		rec.Nutrition[nutrient] = v
	}
	for _, nutrient := range model.OptionalNutrients {
		raw, _ := field(nutrient)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Row{Recipe: rec, Err: fmt.Errorf("invalid %s %q", nutrient, raw)}
		}
		rec.Nutrition[nutrient] = v
	}

	return Row{Recipe: rec, Err: Validate(&rec)}
}

// Validate checks that a recipe's name and dietary tags agree with its
// ingredient list.
func Validate(r *model.Recipe) error {
	name := strings.ToLower(r.Name)
	ingredients := strings.ToLower(strings.Join(r.Ingredients, ", "))

	if strings.Contains(name, "curry") && !strings.Contains(ingredients, "curry") {
		return fmt.Errorf("recipe %s claims to be curry but missing curry ingredients", r.Name)
	}
	if strings.Contains(name, "chocolate") &&
		!strings.Contains(ingredients, "cocoa") && !strings.Contains(ingredients, "chocolate") {
		return fmt.Errorf("recipe %s claims to be chocolate but missing cocoa/chocolate", r.Name)
	}

	rs := rules.Default()
	for _, diet := range []string{"vegan", "gluten-free"} {
		if !r.HasTag(diet) {
			continue
		}
		if ok, reason := rs.DietCompatible(r, diet); !ok {
			return fmt.Errorf("recipe %s claims to be %s but %s", r.Name, diet, reason)
		}
	}
	return nil
}
