package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pageza/alchemorsel-recommender/internal/model"
)

func TestContainsTerm(t *testing.T) {
	cases := []struct {
		text, term string
		want       bool
	}{
		{"2 eggs, beaten", "eggs", true},
		{"eggplant", "egg", false},
		{"Coconut", "nut", false},
		{"pine nut", "nut", true},
		{"Soy Sauce (low sodium)", "soy sauce", true},
		{"soybeans", "soy", false},
		{"", "milk", false},
		{"milk", "", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ContainsTerm(tc.text, tc.term), "%q in %q", tc.term, tc.text)
	}
}

func TestContainsAnyHonoursExemptPhrases(t *testing.T) {
	_, ok := ContainsAny("1 can coconut milk", dairyTerms, plantBased)
	assert.False(t, ok)

	term, ok := ContainsAny("coconut milk and whole milk", dairyTerms, plantBased)
	assert.True(t, ok)
	assert.Equal(t, "milk", term)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"nuts", "dairy"}, SplitList(" Nuts, ,dairy ,"))
	assert.Nil(t, SplitList(""))
}

func TestDietCompatible(t *testing.T) {
	rs := Default()
	curry := &model.Recipe{
		Name:        "Vegan Curry",
		Ingredients: []string{"chickpeas", "coconut milk", "curry paste"},
		Tags:        []string{"vegan", "gluten-free"},
	}

	for _, diet := range []string{"vegan", "vegetarian", "dairy-free", "gluten-free", "pescatarian"} {
		ok, reason := rs.DietCompatible(curry, diet)
		assert.True(t, ok, "%s: %s", diet, reason)
	}

	ok, reason := rs.DietCompatible(curry, "keto")
	assert.False(t, ok)
	assert.Equal(t, "not tagged keto", reason)

	mislabeled := &model.Recipe{Ingredients: []string{"chicken thighs"}, Tags: []string{"vegetarian"}}
	ok, reason = rs.DietCompatible(mislabeled, "vegetarian")
	assert.False(t, ok)
	assert.Equal(t, "contains chicken", reason)

	custom := &model.Recipe{Tags: []string{"halal"}}
	ok, _ = rs.DietCompatible(custom, "Halal")
	assert.True(t, ok)
}

func TestAllergenMatching(t *testing.T) {
	rs := Default()

	assert.True(t, rs.AllergenInIngredient("dairy", "grated parmesan cheese"))
	assert.False(t, rs.AllergenInIngredient("dairy", "coconut milk"))
	assert.True(t, rs.AllergenInIngredient("nuts", "almond milk"))
	assert.True(t, rs.AllergenInIngredient("kiwi fruit", "sliced kiwi"))

	r := &model.Recipe{Tags: []string{"contains-nuts"}}
	assert.True(t, AllergenTagged(r, "Nuts"))
	assert.False(t, AllergenTagged(r, "dairy"))
}

func TestSubstitutions(t *testing.T) {
	rs := Default()

	subs := rs.Substitutions("whole milk", nil, "")
	assert.Equal(t, []string{"almond milk", "soy milk", "oat milk"}, subs)

	subs = rs.Substitutions("whole milk", []string{"dairy", "nuts", "soy"}, "")
	assert.Equal(t, []string{"oat milk", "coconut milk"}, subs)

	subs = rs.Substitutions("butter", []string{"dairy"}, "italian")
	assert.Equal(t, []string{"coconut oil", "olive oil", "avocado"}, subs)

	subs = rs.Substitutions("unsalted cream", []string{"dairy", "nuts"}, "Mexican")
	assert.Equal(t, []string{"coconut cream", "beans", "corn"}, subs)

	assert.Nil(t, rs.Substitutions("chickpeas", []string{"dairy"}, "italian"))
}

func TestSubstitutionsUseReplacementTable(t *testing.T) {
	rs := &Ruleset{
		Replacements: map[string][]string{"rice": {"cauliflower rice", "quinoa"}},
		Cuisines:     map[string][]string{"asian": {"ginger"}},
	}
	assert.Equal(t, []string{"cauliflower rice", "quinoa", "ginger"}, rs.Substitutions("brown rice", nil, "Asian"))
	assert.Nil(t, rs.Substitutions("milk", nil, ""))
}

func TestConditionLookup(t *testing.T) {
	rs := Default()
	rule, ok := rs.Condition(" Diabetes ")
	assert.True(t, ok)
	assert.Equal(t, 30.0, rule.NutrientLimits[model.Carbs])

	_, ok = rs.Condition("none")
	assert.False(t, ok)

	assert.Equal(t, []string{"diabetes", "heart health", "weight loss"}, rs.ConditionNames())
	assert.Equal(t, []string{"asian", "indian", "italian", "mexican"}, rs.CuisineNames())
}
