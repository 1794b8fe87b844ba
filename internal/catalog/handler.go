package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/storefront/internal/platform/httpx"
)

// Handler serves the catalog JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   func(http.Handler) http.Handler
}

// NewHandler builds Handler. guard protects the admin writes.
func NewHandler(logger *slog.Logger, service *Service, guard func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers product and category routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/slug/{slug}", h.getProductBySlug)
		r.Get("/{id}", h.getProduct)
		r.Group(func(r chi.Router) {
			r.Use(h.guard)
			r.Post("/", h.createProduct)
			r.Put("/{id}", h.updateProduct)
			r.Delete("/{id}", h.deleteProduct)
		})
	})
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.listCategories)
		r.Get("/{id}", h.getCategory)
		r.Group(func(r chi.Router) {
			r.Use(h.guard)
			r.Post("/", h.createCategory)
			r.Put("/{id}", h.updateCategory)
			r.Delete("/{id}", h.deleteCategory)
		})
	})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	query, err := parseProductQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.service.ListProducts(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func parseProductQuery(r *http.Request) (ProductQuery, error) {
	values := r.URL.Query()
	q := ProductQuery{
		Search:    values.Get("search"),
		SortBy:    values.Get("sort_by"),
		SortOrder: values.Get("sort_order"),
	}
	if raw := values.Get("category_id"); raw != "" {
		id, err := httpx.PathInt64(raw)
		if err != nil {
			return q, err
		}
		q.CategoryID = &id
	}
	for name, dest := range map[string]*int{"page": &q.Page, "take": &q.Take} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, &httpx.ValidationError{Fields: map[string]string{name: "integer"}}
		}
		*dest = n
	}
	return q, nil
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) getProductBySlug(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProductBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req ProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cats)
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cat, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cat)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	cat, err := h.service.CreateCategory(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cat)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req CategoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	cat, err := h.service.UpdateCategory(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cat)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *httpx.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.RespondValidation(w, verr)
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidReference):
		httpx.Problem(w, http.StatusConflict, "Invalid Reference", err.Error())
	case errors.Is(err, ErrCategoryCycle), errors.Is(err, ErrInvalidSlug), errors.Is(err, ErrInvalidPrice):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, httpx.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("catalog request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
