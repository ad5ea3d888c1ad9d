package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// entryNamespace scopes index entry IDs so the same (source, row) pair always
// maps to the same ID and re-ingestion replaces instead of duplicating.
var entryNamespace = uuid.MustParse("6f1c9a52-3d0e-4b8e-9a57-2f4a1c7e8d10")

// Recipe is one dataset row after parsing. It is immutable once loaded.
type Recipe struct {
	Name         string    `json:"name"`
	Ingredients  []string  `json:"ingredients"`
	Instructions string    `json:"instructions"`
	Cuisine      string    `json:"cuisine"`
	Tags         []string  `json:"tags"`
	Nutrition    Nutrition `json:"nutrition"`
	Source       string    `json:"source"`
	Row          int       `json:"row"`
}

// HasTag reports whether the recipe carries tag (case-insensitive).
func (r *Recipe) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// EntryID returns the deterministic index identifier of the recipe's row.
func (r *Recipe) EntryID() string {
	return EntryID(r.Source, r.Row)
}

// EntryID derives the index identifier for a dataset row.
func EntryID(source string, row int) string {
	return uuid.NewSHA1(entryNamespace, []byte(source+"#"+strconv.Itoa(row))).String()
}

// Text builds the document that is embedded for the recipe. Ingestion and
// round-trip lookups must use the same builder.
func (r *Recipe) Text() string {
	cuisine := r.Cuisine
	if cuisine == "" {
		cuisine = "unknown"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Recipe: %s\n", r.Name)
	fmt.Fprintf(&b, "Cuisine: %s\n", cuisine)
	fmt.Fprintf(&b, "Ingredients: %s\n", strings.Join(r.Ingredients, ", "))
	fmt.Fprintf(&b, "Instructions: %s\n", r.Instructions)
	fmt.Fprintf(&b, "Nutrition: %s\n", r.Nutrition.Summary())
	fmt.Fprintf(&b, "Dietary Tags: %s\n", strings.Join(r.Tags, ", "))
	return b.String()
}

// IndexEntry pairs an embedding with the metadata of the row it came from.
type IndexEntry struct {
	ID     string
	Vector []float32
	Recipe Recipe
}

// Match is a single nearest-neighbour hit returned by a vector index.
type Match struct {
	ID     string
	Score  float32
	Recipe Recipe
}

// JSONBStringArray is a custom type for handling string arrays in JSONB
type JSONBStringArray []string

// Value implements the driver.Valuer interface
func (a JSONBStringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (a *JSONBStringArray) Scan(value interface{}) error {
	if value == nil {
		*a = JSONBStringArray{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, a)
}

// JSONBNutrition stores Nutrition as a JSON object column.
type JSONBNutrition Nutrition

// Value implements the driver.Valuer interface
func (n JSONBNutrition) Value() (driver.Value, error) {
	if len(n) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]float64(n))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (n *JSONBNutrition) Scan(value interface{}) error {
	if value == nil {
		*n = JSONBNutrition{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, n)
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", value)
	}
}
