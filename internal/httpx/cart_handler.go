package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/cart"
	"github.com/ariefcatur/go-stock-ledger/internal/checkout"
)

type CartHandler struct {
	Carts    *cart.Service
	Checkout *checkout.Service
	Log      *zap.Logger
}

type upsertItemReq struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type checkoutResp struct {
	OrderID    int64  `json:"orderId"`
	Status     string `json:"status"`
	TotalCents int    `json:"totalCents"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.get)
	r.Post("/cart/items", h.upsertItem)
	r.Put("/cart/items/{itemId}", h.updateItem)
	r.Delete("/cart/items/{itemId}", h.removeItem)
	r.Post("/cart/checkout", h.checkout)
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Get(r.Context(), principal(r.Context()))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) upsertItem(w http.ResponseWriter, r *http.Request) {
	var req upsertItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	it, err := h.Carts.UpsertItem(r.Context(), principal(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemId")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req quantityReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	it, err := h.Carts.UpdateItem(r.Context(), principal(r.Context()), itemID, req.Quantity)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemId")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.Carts.RemoveItem(r.Context(), principal(r.Context()), itemID); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) checkout(w http.ResponseWriter, r *http.Request) {
	o, err := h.Checkout.CheckoutOnce(r.Context(), principal(r.Context()), r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResp{OrderID: o.ID, Status: string(o.Status), TotalCents: o.TotalCents})
}
