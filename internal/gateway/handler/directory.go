package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"contactdir/internal/dataset"
	"contactdir/internal/gateway/entity"
	"contactdir/internal/search"
)

// DirectoryHandler serves the read-only dataset and search endpoints.
type DirectoryHandler struct {
	catalog *dataset.Catalog
	engine  *search.Engine
}

func NewDirectoryHandler(catalog *dataset.Catalog, engine *search.Engine) *DirectoryHandler {
	return &DirectoryHandler{catalog: catalog, engine: engine}
}

type searchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

type companiesResponse struct {
	Companies []entity.Company `json:"companies"`
}

func (h *DirectoryHandler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"companies": h.catalog.Stats().Companies,
	})
}

func (h *DirectoryHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	writeJSON(w, http.StatusOK, searchResponse{Query: strings.TrimSpace(q), Results: h.engine.Search(q)})
}

func (h *DirectoryHandler) HandleCompanies(w http.ResponseWriter, _ *http.Request) {
	companies := h.catalog.All()
	if companies == nil {
		companies = []entity.Company{}
	}
	writeJSON(w, http.StatusOK, companiesResponse{Companies: companies})
}

func (h *DirectoryHandler) HandleCompany(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	c, ok := h.catalog.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "company " + id + " not found", Code: "NOT_FOUND"})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *DirectoryHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Stats())
}
