package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pageza/alchemorsel-recommender/internal/service"
)

// SearchForm mirrors the fields of the search form. It is rendered back so
// the user's input survives errors.
type SearchForm struct {
	Query     string `form:"q"`
	Diets     string `form:"diets"`
	Allergies string `form:"allergies"`
	Condition string `form:"condition"`
	Cuisine   string `form:"cuisine"`
	Diversity int    `form:"diversity"`
}

func (f SearchForm) request() service.Request {
	return service.Request{
		Query:     f.Query,
		Diets:     []string{f.Diets},
		Allergies: []string{f.Allergies},
		Condition: f.Condition,
		Cuisine:   f.Cuisine,
		Diversity: f.Diversity,
	}
}

type formOptions struct {
	Conditions []string
	Cuisines   []string
	Diets      []string
	Allergens  []string
}

type pageData struct {
	Form     SearchForm
	Options  formOptions
	Searched bool
	Result   *service.Result
	Error    string
}

type PageHandler struct {
	recommender Recommender
}

func NewPageHandler(recommender Recommender) *PageHandler {
	return &PageHandler{recommender: recommender}
}

func (h *PageHandler) page(form SearchForm) pageData {
	rs := h.recommender.Rules()
	if form.Diversity == 0 {
		form.Diversity = 1
	}
	return pageData{
		Form: form,
		Options: formOptions{
			Conditions: rs.ConditionNames(),
			Cuisines:   rs.CuisineNames(),
			Diets:      rs.DietNames(),
			Allergens:  rs.AllergenNames(),
		},
	}
}

// Form handles GET /.
func (h *PageHandler) Form(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", h.page(SearchForm{}))
}

// Results handles GET /recipes: it runs the search and renders the results
// below the filled-in form.
func (h *PageHandler) Results(c *gin.Context) {
	var form SearchForm
	if err := c.ShouldBindQuery(&form); err != nil {
		data := h.page(form)
		data.Searched = true
		data.Error = "Please check the form: diversity must be a number between 1 and 5."
		c.HTML(http.StatusBadRequest, "index.html", data)
		return
	}

	data := h.page(form)
	data.Searched = true
	result, err := h.recommender.Recommend(c.Request.Context(), form.request())
	if err != nil {
		status := statusFor(err)
		logError(c, status, err)
		data.Error = userMessage(err)
		c.HTML(status, "index.html", data)
		return
	}
	data.Result = result
	c.HTML(http.StatusOK, "index.html", data)
}
