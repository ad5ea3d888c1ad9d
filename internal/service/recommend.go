package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/pageza/alchemorsel-recommender/internal/embedding"
	"github.com/pageza/alchemorsel-recommender/internal/index"
	"github.com/pageza/alchemorsel-recommender/internal/logging"
	"github.com/pageza/alchemorsel-recommender/internal/metrics"
	"github.com/pageza/alchemorsel-recommender/internal/model"
	"github.com/pageza/alchemorsel-recommender/internal/rules"
)

var (
	ErrEmptyQuery           = errors.New("enter a search term or at least one preference")
	ErrInvalidRequest       = errors.New("invalid recommendation request")
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
)

// EmptyResultMessage is shown when every candidate was filtered out.
const EmptyResultMessage = "No recipes match your preferences. Try removing a filter or broadening your search."

const (
	similarityWeight = 0.6
	nutritionWeight  = 0.3
	tagWeight        = 0.1

	stableTop    = 3
	maxDiversity = 5
)

// RecommendConfig holds the pipeline limits.
type RecommendConfig struct {
	TopK         int
	DisplayCount int
}

// Request describes one search from the form or the JSON API.
type Request struct {
	Query     string   `json:"query"`
	Diets     []string `json:"diets"`
	Allergies []string `json:"allergies"`
	Condition string   `json:"health_condition"`
	Cuisine   string   `json:"cuisine"`
	Diversity int      `json:"diversity"`
}

// Substitution lists replacement options for one ingredient. Allergen is
// empty when the suggestion comes from a declared health condition.
type Substitution struct {
	Ingredient string   `json:"ingredient"`
	Allergen   string   `json:"allergen,omitempty"`
	Options    []string `json:"options"`
}

// Recommendation is a recipe that survived filtering, with its scores and
// any allergen annotations.
type Recommendation struct {
	ID               string         `json:"id"`
	Recipe           model.Recipe   `json:"recipe"`
	Similarity       float64        `json:"similarity"`
	NutritionScore   float64        `json:"nutrition_score"`
	Score            float64        `json:"score"`
	AllergenWarnings []string       `json:"allergen_warnings,omitempty"`
	Substitutions    []Substitution `json:"substitutions,omitempty"`
}

// Result is the outcome of a search. An empty result is not an error.
type Result struct {
	QueryText       string           `json:"query_text"`
	Recommendations []Recommendation `json:"recommendations"`
	Total           int              `json:"total"`
	Empty           bool             `json:"empty"`
	Message         string           `json:"message,omitempty"`
}

// RecommendationService runs the search pipeline: embed the query, fetch
// nearest neighbours, apply the dietary rules, rank and cut.
type RecommendationService struct {
	embedder embedding.Embedder
	index    index.Index
	rules    *rules.Ruleset
	cfg      RecommendConfig
}

// NewRecommendationService creates a RecommendationService. A nil ruleset
// uses rules.Default.
func NewRecommendationService(e embedding.Embedder, idx index.Index, rs *rules.Ruleset, cfg RecommendConfig) *RecommendationService {
	if rs == nil {
		rs = rules.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 30
	}
	if cfg.DisplayCount <= 0 {
		cfg.DisplayCount = 5
	}
	return &RecommendationService{embedder: e, index: idx, rules: rs, cfg: cfg}
}

// Rules returns the ruleset used for filtering.
func (s *RecommendationService) Rules() *rules.Ruleset {
	return s.rules
}

// CheckCompatibility verifies that the index exists and was built for
// vectors of the embedder's dimension.
func (s *RecommendationService) CheckCompatibility(ctx context.Context) error {
	return CheckCompatibility(ctx, s.embedder, s.index)
}

// CheckCompatibility compares the embedder dimension with the index.
func CheckCompatibility(ctx context.Context, e embedding.Embedder, idx index.Index) error {
	dim, err := idx.Dimension(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index dimension: %w", err)
	}
	if dim != e.Dimension() {
		return fmt.Errorf("%w: index has %d, embedder %s produces %d",
			index.ErrDimensionMismatch, dim, e.Model(), e.Dimension())
	}
	return nil
}

// Recommend runs the full pipeline for req.
func (s *RecommendationService) Recommend(ctx context.Context, req Request) (*Result, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	text := s.queryText(req)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	log := logging.Ctx(ctx)

	start := time.Now()
	vector, err := embedding.EmbedOne(ctx, s.embedder, text)
	metrics.ObserveStage("embed", start)
	if err != nil {
		metrics.IndexErrors.WithLabelValues("embed").Inc()
		if errors.Is(err, embedding.ErrDimensionMismatch) {
			return nil, fmt.Errorf("%w: %w", index.ErrDimensionMismatch, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	start = time.Now()
	matches, err := s.index.Query(ctx, vector, s.cfg.TopK)
	metrics.ObserveStage("query", start)
	if err != nil {
		metrics.IndexErrors.WithLabelValues("query").Inc()
		if errors.Is(err, index.ErrDimensionMismatch) || errors.Is(err, index.ErrIndexUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", index.ErrIndexUnavailable, err)
	}

	start = time.Now()
	candidates := s.filter(matches, req)
	metrics.RecommendationCandidates.Observe(float64(len(candidates)))
	s.rank(candidates, req)
	candidates = diversify(candidates, req.Diversity)
	metrics.ObserveStage("rank", start)

	result := &Result{QueryText: text, Total: len(candidates)}
	if len(candidates) == 0 {
		metrics.RecommendationsEmpty.Inc()
		result.Empty = true
		result.Message = EmptyResultMessage
		result.Recommendations = []Recommendation{}
	} else {
		if len(candidates) > s.cfg.DisplayCount {
			candidates = candidates[:s.cfg.DisplayCount]
		}
		result.Recommendations = candidates
	}

	log.Debug().
		Str("query", text).
		Int("retrieved", len(matches)).
		Int("kept", result.Total).
		Msg("recommendation served")
	return result, nil
}

func (s *RecommendationService) normalize(req Request) (Request, error) {
	req.Query = strings.TrimSpace(req.Query)
	req.Diets = normalizeList(req.Diets)
	req.Allergies = normalizeList(req.Allergies)

	req.Cuisine = strings.ToLower(strings.TrimSpace(req.Cuisine))
	if req.Cuisine == "any" {
		req.Cuisine = ""
	}
	req.Condition = strings.ToLower(strings.TrimSpace(req.Condition))
	if req.Condition == "none" {
		req.Condition = ""
	}
	if req.Condition != "" {
		if _, ok := s.rules.Condition(req.Condition); !ok {
			return req, fmt.Errorf("%w: unknown health condition %q", ErrInvalidRequest, req.Condition)
		}
	}

	switch {
	case req.Diversity == 0:
		req.Diversity = 1
	case req.Diversity < 1 || req.Diversity > maxDiversity:
		return req, fmt.Errorf("%w: diversity must be between 1 and %d", ErrInvalidRequest, maxDiversity)
	}
	return req, nil
}

func normalizeList(items []string) []string {
	var out []string
	for _, item := range items {
		out = append(out, rules.SplitList(item)...)
	}
	return out
}

// QueryText builds the text that is embedded for a request: the free text
// plus the cuisine, or the declared preferences when no text was given.
func QueryText(req Request) string {
	parts := []string{strings.TrimSpace(req.Query)}
	if req.Query == "" {
		parts = append(parts, req.Diets...)
	}
	if req.Cuisine != "" && !strings.EqualFold(req.Cuisine, "any") {
		parts = append(parts, req.Cuisine)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// queryText falls back to the health condition and its preferred tags when
// the request carries no text, diet or cuisine.
func (s *RecommendationService) queryText(req Request) string {
	if text := QueryText(req); text != "" {
		return text
	}
	if req.Condition == "" {
		return ""
	}
	c, _ := s.rules.Condition(req.Condition)
	return strings.Join(append([]string{req.Condition}, c.PreferredTags...), " ")
}

func (s *RecommendationService) filter(matches []model.Match, req Request) []Recommendation {
	var condition *rules.ConditionRule
	if req.Condition != "" {
		c, _ := s.rules.Condition(req.Condition)
		condition = &c
	}

	out := make([]Recommendation, 0, len(matches))
	for _, m := range matches {
		rec := Recommendation{ID: m.ID, Recipe: m.Recipe, Similarity: float64(m.Score)}
		r := &rec.Recipe

		if req.Cuisine != "" && !strings.Contains(strings.ToLower(r.Cuisine), req.Cuisine) {
			metrics.FilteredOut.WithLabelValues("cuisine").Inc()
			continue
		}
		if !s.dietsAllow(r, req.Diets) {
			metrics.FilteredOut.WithLabelValues("diet").Inc()
			continue
		}
		if condition != nil && !conditionAllows(r, condition) {
			metrics.FilteredOut.WithLabelValues("condition").Inc()
			continue
		}
		if !s.annotateAllergies(&rec, req.Allergies) {
			metrics.FilteredOut.WithLabelValues("allergy").Inc()
			continue
		}
		if condition != nil {
			s.suggestSubstitutions(&rec, req.Allergies)
		}
		out = append(out, rec)
	}
	return out
}

func (s *RecommendationService) dietsAllow(r *model.Recipe, diets []string) bool {
	for _, d := range diets {
		if ok, _ := s.rules.DietCompatible(r, d); !ok {
			return false
		}
	}
	return true
}

func conditionAllows(r *model.Recipe, c *rules.ConditionRule) bool {
	for _, tag := range c.AvoidTags {
		if r.HasTag(tag) {
			return false
		}
	}
	for nutrient, limit := range c.NutrientLimits {
		if v, ok := r.Nutrition.Get(nutrient); ok && v > limit {
			return false
		}
	}
	return true
}

// annotateAllergies attaches warnings and substitutions for every declared
// allergy the recipe contains. It reports false when some offending
// ingredient has no safe substitution, or the allergen is only known from a
// tag.
func (s *RecommendationService) annotateAllergies(rec *Recommendation, allergies []string) bool {
	r := &rec.Recipe
	for _, allergy := range allergies {
		var offending []string
		for _, ing := range r.Ingredients {
			if s.rules.AllergenInIngredient(allergy, ing) {
				offending = append(offending, ing)
			}
		}
		if len(offending) == 0 {
			if rules.AllergenTagged(r, allergy) {
				return false
			}
			continue
		}
		for _, ing := range offending {
			options := s.rules.Substitutions(ing, allergies, r.Cuisine)
			if len(options) == 0 {
				return false
			}
			rec.Substitutions = append(rec.Substitutions, Substitution{Ingredient: ing, Allergen: allergy, Options: options})
		}
		rec.AllergenWarnings = append(rec.AllergenWarnings,
			fmt.Sprintf("Contains %s (%s)", allergy, strings.Join(offending, ", ")))
	}
	return true
}

// suggestSubstitutions adds options for every remaining ingredient found in
// the substitution table.
func (s *RecommendationService) suggestSubstitutions(rec *Recommendation, allergies []string) {
	covered := make(map[string]bool, len(rec.Substitutions))
	for _, sub := range rec.Substitutions {
		covered[sub.Ingredient] = true
	}
	for _, ing := range rec.Recipe.Ingredients {
		if covered[ing] {
			continue
		}
		if options := s.rules.Substitutions(ing, allergies, rec.Recipe.Cuisine); len(options) > 0 {
			rec.Substitutions = append(rec.Substitutions, Substitution{Ingredient: ing, Options: options})
			covered[ing] = true
		}
	}
}

func (s *RecommendationService) rank(recs []Recommendation, req Request) {
	var condition rules.ConditionRule
	if req.Condition != "" {
		condition, _ = s.rules.Condition(req.Condition)
	}
	for i := range recs {
		r := &recs[i]
		r.NutritionScore = NutritionScore(r.Recipe.Nutrition, condition.NutrientLimits)
		r.Score = similarityWeight*r.Similarity +
			nutritionWeight*r.NutritionScore +
			tagWeight*preferredTagShare(&r.Recipe, condition.PreferredTags)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
}

// NutritionScore rates how well nutrition fits the limits, from 0 to 1.
// Calories only lose points above the target; other nutrients lose points
// the further they are from it. Nutrients missing from the recipe are
// ignored and no applicable limit scores 1.
func NutritionScore(n model.Nutrition, limits map[string]float64) float64 {
	var score float64
	var count int
	for nutrient, target := range limits {
		actual, ok := n.Get(nutrient)
		if !ok {
			continue
		}
		if nutrient == model.Calories {
			score += math.Max(0, 1-math.Max(0, actual-target)/(target+0.1))
		} else {
			score += math.Max(0, 1-math.Abs(actual-target)/(target+0.1))
		}
		count++
	}
	if count == 0 {
		return 1
	}
	return score / float64(count)
}

func preferredTagShare(r *model.Recipe, preferred []string) float64 {
	if len(preferred) == 0 {
		return 0
	}
	var hits int
	for _, tag := range preferred {
		if r.HasTag(tag) {
			hits++
		}
	}
	return float64(hits) / float64(len(preferred))
}

// diversify keeps the top results in place and replaces the tail with a
// seeded random sample that shrinks as diversity grows. Diversity 1 is a
// no-op.
func diversify(recs []Recommendation, diversity int) []Recommendation {
	if diversity <= 1 || len(recs) <= stableTop {
		return recs
	}
	tail := make([]Recommendation, len(recs)-stableTop)
	copy(tail, recs[stableTop:])

	rng := rand.New(rand.NewSource(int64(diversity)))
	rng.Shuffle(len(tail), func(i, j int) { tail[i], tail[j] = tail[j], tail[i] })

	factor := math.Min(0.9, float64(diversity-1)/4)
	keep := int(math.Round(float64(len(tail)) * (1 - factor)))

	out := make([]Recommendation, 0, stableTop+keep)
	out = append(out, recs[:stableTop]...)
	return append(out, tail[:keep]...)
}
