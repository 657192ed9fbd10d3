package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mirandol/shoptalk/internal/catalog"
)

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.Filter{
		Category:    q.Get("category"),
		Brand:       q.Get("brand"),
		InStockOnly: q.Get("in_stock") == "true",
		Limit:       20,
	}
	if v := q.Get("min_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid min_price"})
			return
		}
		f.PriceMin = p
	}
	if v := q.Get("max_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid max_price"})
			return
		}
		f.PriceMax = p
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		f.Limit = n
	}

	products, err := s.catalog.FilterSearch(r.Context(), f)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"products": products})
}
