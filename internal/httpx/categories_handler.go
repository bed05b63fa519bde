package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/catalog"
)

type CategoriesHandler struct {
	Categories *catalog.Categories
	Log        *zap.Logger
}

type categoryReq struct {
	Name string `json:"name"`
}

func (h *CategoriesHandler) RegisterPublic(r chi.Router) {
	r.Get("/categories", h.list)
	r.Get("/categories/{id}", h.get)
}

func (h *CategoriesHandler) RegisterAdmin(r chi.Router) {
	r.Post("/categories", h.create)
	r.Patch("/categories/{id}", h.rename)
	r.Delete("/categories/{id}", h.delete)
}

func (h *CategoriesHandler) list(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Categories.List(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if cs == nil {
		cs = []catalog.Category{}
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *CategoriesHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	c, err := h.Categories.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CategoriesHandler) create(w http.ResponseWriter, r *http.Request) {
	var req categoryReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	c, err := h.Categories.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CategoriesHandler) rename(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req categoryReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	c, err := h.Categories.Rename(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CategoriesHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.Categories.Delete(r.Context(), id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
