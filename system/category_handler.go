package system

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"taskflow/entity"
	"taskflow/storage"
)

type createCategoryRequest struct {
	Name        string `json:"name" validate:"required,min=3,max=100"`
	Description string `json:"description" validate:"max=500"`
	Icon        string `json:"icon" validate:"max=50"`
}

func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Categories.List(r.Context())
	if err != nil {
		h.Log.Error("listing categories", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	c := entity.Category{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Icon:        req.Icon,
		CreatedAt:   h.now(),
	}
	if err := h.Categories.Create(r.Context(), &c); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			http.Error(w, "Category name already exists", http.StatusConflict)
			return
		}
		h.Log.Error("creating category", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
