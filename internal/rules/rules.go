// Package rules holds the static dietary data used to filter and annotate
// recommendations: allergen triggers, ingredient substitutions, diet
// compatibility, health-condition limits and cuisine adaptations.
package rules

import (
	"sort"
	"strings"

	"github.com/pageza/alchemorsel-recommender/internal/model"
)

// maxSuggestions caps the substitution options shown per ingredient.
const maxSuggestions = 3

// AllergenRule lists the ingredient terms that signal an allergen. Exempt
// phrases are ignored before matching (coconut milk is not dairy).
type AllergenRule struct {
	Terms  []string
	Exempt []string
}

// DietRule describes what a diet declaration requires of a recipe.
type DietRule struct {
	// ImpliedBy lists tags that satisfy the diet; the diet's own name is
	// always included.
	ImpliedBy []string
	Forbidden []string
	Exempt    []string
}

// ConditionRule is the guidance attached to a health condition.
type ConditionRule struct {
	NutrientLimits map[string]float64
	PreferredTags  []string
	AvoidTags      []string
}

// Ruleset is the full set of lookup tables. The zero value is empty; use
// Default for the built-in data.
type Ruleset struct {
	Allergens    map[string]AllergenRule
	Replacements map[string][]string
	Diets        map[string]DietRule
	Conditions   map[string]ConditionRule
	Cuisines     map[string][]string
}

var meatTerms = []string{"beef", "chicken", "pork", "fish", "shrimp", "meat", "turkey", "bacon", "lamb", "ham"}

var dairyTerms = []string{"milk", "cheese", "butter", "cream", "yogurt", "ghee", "whey"}

var glutenTerms = []string{"wheat", "barley", "rye", "bread", "pasta", "flour"}

var plantBased = []string{
	"coconut milk", "almond milk", "soy milk", "oat milk", "rice milk", "cashew milk",
	"coconut cream", "cashew cream", "peanut butter", "almond butter", "nut butter",
	"cocoa butter", "vegan butter", "vegan cheese", "cashew cheese", "coconut yogurt",
	"soy yogurt", "cream of tartar",
}

var glutenFree = []string{
	"rice flour", "almond flour", "coconut flour", "chickpea flour",
	"gluten-free bread", "gluten-free pasta", "gluten-free flour", "rice pasta",
}

// Default returns the built-in rules.
func Default() *Ruleset {
	return &Ruleset{
		Allergens: map[string]AllergenRule{
			"dairy":     {Terms: dairyTerms, Exempt: plantBased},
			"egg":       {Terms: []string{"egg", "eggs", "mayonnaise"}},
			"nuts":      {Terms: []string{"nut", "nuts", "almond", "almonds", "cashew", "cashews", "walnut", "walnuts", "pecan", "pecans", "peanut", "peanuts", "hazelnut", "hazelnuts", "pistachio", "pistachios"}},
			"gluten":    {Terms: glutenTerms, Exempt: glutenFree},
			"soy":       {Terms: []string{"soy", "soy sauce", "tofu", "tempeh", "edamame", "miso"}},
			"shellfish": {Terms: []string{"shrimp", "prawn", "prawns", "crab", "lobster", "mussels", "clams", "scallops"}},
			"fish":      {Terms: []string{"fish", "salmon", "tuna", "cod", "anchovy", "anchovies"}},
			"sesame":    {Terms: []string{"sesame", "tahini"}},
		},
		Replacements: map[string][]string{
			"milk":      {"almond milk", "soy milk", "oat milk", "coconut milk"},
			"butter":    {"coconut oil", "olive oil", "avocado"},
			"cheese":    {"nutritional yeast", "cashew cheese", "tofu"},
			"cream":     {"coconut cream", "cashew cream"},
			"yogurt":    {"coconut yogurt", "soy yogurt"},
			"egg":       {"flaxseed meal + water", "chia seeds + water", "applesauce"},
			"eggs":      {"flaxseed meal + water", "chia seeds + water", "applesauce"},
			"meat":      {"tofu", "tempeh", "jackfruit", "mushrooms"},
			"flour":     {"rice flour", "oat flour", "chickpea flour"},
			"pasta":     {"rice noodles", "zucchini noodles"},
			"bread":     {"gluten-free bread", "lettuce wraps"},
			"soy sauce": {"coconut aminos"},
			"peanuts":   {"sunflower seeds", "pumpkin seeds"},
			"peanut":    {"sunflower seeds", "pumpkin seeds"},
			"almonds":   {"sunflower seeds", "pumpkin seeds"},
			"shrimp":    {"king oyster mushrooms", "hearts of palm"},
		},
		Diets: map[string]DietRule{
			"vegan": {
				Forbidden: append(append([]string{"egg", "eggs", "honey", "gelatin"}, meatTerms...), dairyTerms...),
				Exempt:    plantBased,
			},
			"vegetarian":  {ImpliedBy: []string{"vegan"}, Forbidden: append([]string{"gelatin"}, meatTerms...)},
			"pescatarian": {ImpliedBy: []string{"vegetarian", "vegan"}, Forbidden: []string{"beef", "chicken", "pork", "meat", "turkey", "bacon", "lamb", "ham"}},
			"gluten-free": {Forbidden: glutenTerms, Exempt: glutenFree},
			"dairy-free":  {ImpliedBy: []string{"vegan"}, Forbidden: dairyTerms, Exempt: plantBased},
			"keto":        {Forbidden: []string{"sugar", "bread", "pasta", "rice", "potato", "potatoes"}},
			"low-carb":    {ImpliedBy: []string{"keto"}},
		},
		Conditions: map[string]ConditionRule{
			"diabetes": {
				NutrientLimits: map[string]float64{model.Carbs: 30, model.Sugar: 10},
				PreferredTags:  []string{"low-carb", "diabetic-friendly"},
				AvoidTags:      []string{"high-sugar"},
			},
			"heart health": {
				NutrientLimits: map[string]float64{model.Fats: 15, model.Sodium: 500},
				PreferredTags:  []string{"low-fat", "heart-healthy"},
				AvoidTags:      []string{"high-fat"},
			},
			"weight loss": {
				NutrientLimits: map[string]float64{model.Calories: 400},
				PreferredTags:  []string{"low-calorie"},
				AvoidTags:      []string{"high-calorie"},
			},
		},
		Cuisines: map[string][]string{
			"italian": {"tomato", "basil", "olive oil", "garlic"},
			"mexican": {"beans", "corn", "avocado", "chili"},
			"indian":  {"curry", "spices", "lentils", "yogurt"},
			"asian":   {"soy sauce", "ginger", "sesame", "tofu"},
		},
	}
}

// Allergen returns the rule for an allergen name. Unknown allergens match on
// the words of their own name.
func (rs *Ruleset) Allergen(name string) AllergenRule {
	name = normalize(name)
	if rule, ok := rs.Allergens[name]; ok {
		return rule
	}
	return AllergenRule{Terms: strings.Fields(name)}
}

// AllergenInIngredient reports whether ingredient triggers the allergen.
func (rs *Ruleset) AllergenInIngredient(allergen, ingredient string) bool {
	rule := rs.Allergen(allergen)
	_, ok := ContainsAny(ingredient, rule.Terms, rule.Exempt)
	return ok
}

// AllergenTagged reports whether the recipe is tagged with the allergen.
func AllergenTagged(r *model.Recipe, allergen string) bool {
	allergen = normalize(allergen)
	return r.HasTag(allergen) || r.HasTag("contains-"+allergen)
}

// DietCompatible reports whether the recipe satisfies the diet. When it does
// not, the returned string names the reason.
func (rs *Ruleset) DietCompatible(r *model.Recipe, diet string) (bool, string) {
	diet = normalize(diet)
	rule, known := rs.Diets[diet]
	tagged := r.HasTag(diet)
	for _, t := range rule.ImpliedBy {
		if r.HasTag(t) {
			tagged = true
		}
	}
	if !tagged {
		return false, "not tagged " + diet
	}
	if !known {
		return true, ""
	}
	for _, ing := range r.Ingredients {
		if term, ok := ContainsAny(ing, rule.Forbidden, rule.Exempt); ok {
			return false, "contains " + term
		}
	}
	return true, ""
}

// Condition looks up a health condition by name.
func (rs *Ruleset) Condition(name string) (ConditionRule, bool) {
	rule, ok := rs.Conditions[normalize(name)]
	return rule, ok
}

// Substitutions suggests replacements for an ingredient, skipping any option
// that itself triggers one of the declared allergies. Cuisine adaptations are
// appended when a cuisine is given. At most three unique options are returned.
func (rs *Ruleset) Substitutions(ingredient string, allergies []string, cuisine string) []string {
	var candidates []string
	for _, key := range sortedKeys(rs.Replacements) {
		if ContainsTerm(ingredient, key) {
			candidates = append(candidates, rs.Replacements[key]...)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	candidates = append(candidates, rs.Cuisines[normalize(cuisine)]...)

	var out []string
	seen := make(map[string]bool)
	for _, option := range candidates {
		if seen[option] || rs.triggersAny(option, allergies) {
			continue
		}
		seen[option] = true
		out = append(out, option)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

func (rs *Ruleset) triggersAny(option string, allergies []string) bool {
	for _, a := range allergies {
		a = normalize(a)
		if a == "" {
			continue
		}
		if strings.Contains(strings.ToLower(option), a) || rs.AllergenInIngredient(a, option) {
			return true
		}
	}
	return false
}

// ConditionNames lists the known health conditions, sorted.
func (rs *Ruleset) ConditionNames() []string { return sortedKeys(rs.Conditions) }

// CuisineNames lists the known cuisines, sorted.
func (rs *Ruleset) CuisineNames() []string { return sortedKeys(rs.Cuisines) }

// DietNames lists the known diets, sorted.
func (rs *Ruleset) DietNames() []string { return sortedKeys(rs.Diets) }

// AllergenNames lists the known allergens, sorted.
func (rs *Ruleset) AllergenNames() []string { return sortedKeys(rs.Allergens) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
