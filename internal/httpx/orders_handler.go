package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/checkout"
	"github.com/ariefcatur/go-stock-ledger/internal/identity"
	"github.com/ariefcatur/go-stock-ledger/internal/orders"
)

type OrdersHandler struct {
	Orders   *orders.Service
	Checkout *checkout.Service
	Log      *zap.Logger
}

type createOrderReq struct {
	CartID int64 `json:"cartId"`
}

type statusResp struct {
	OrderID int64         `json:"orderId"`
	Status  orders.Status `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.list)
	r.Post("/orders", h.create)
	r.Get("/orders/{id}", h.get)
	r.Get("/orders/{id}/status", h.status)
	r.Post("/orders/{id}/pay", h.pay)
	r.Post("/orders/{id}/cancel", h.cancel)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	st, err := orders.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	f := orders.Filter{Status: st, Page: queryInt(r, "page"), Limit: queryInt(r, "limit")}
	out, err := h.Orders.List(r.Context(), principal(r.Context()), f)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	o, err := h.Checkout.CreateOrder(r.Context(), principal(r.Context()), req.CartID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	o, err := h.Orders.Get(r.Context(), principal(r.Context()), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	st, err := h.Orders.Status(r.Context(), principal(r.Context()), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResp{OrderID: id, Status: st})
}

func (h *OrdersHandler) pay(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Orders.Pay)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Orders.Cancel)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor identity.Principal, orderID int64) (orders.Order, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	o, err := op(r.Context(), principal(r.Context()), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
