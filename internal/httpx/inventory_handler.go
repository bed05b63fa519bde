package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/inventory"
)

type InventoryHandler struct {
	Ledger *inventory.Ledger
	Log    *zap.Logger
}

type setLevelsReq struct {
	Available *int `json:"available"`
	Reserved  *int `json:"reserved"`
}

type quantityReq struct {
	Quantity int `json:"quantity"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/inventory/{productId}", h.get)
	r.Put("/inventory/{productId}", h.setLevels)
	r.Post("/inventory/{productId}/reserve", h.move(h.Ledger.Reserve))
	r.Post("/inventory/{productId}/release", h.move(h.Ledger.Release))
	r.Post("/inventory/{productId}/commit", h.move(h.Ledger.Commit))
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	pid, err := pathID(r, "productId")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	inv, err := h.Ledger.Get(r.Context(), pid)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InventoryHandler) setLevels(w http.ResponseWriter, r *http.Request) {
	pid, err := pathID(r, "productId")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req setLevelsReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if req.Available == nil || req.Reserved == nil {
		writeError(w, h.Log, apperr.Validation("available and reserved are required"))
		return
	}
	inv, err := h.Ledger.SetLevels(r.Context(), pid, inventory.Levels{Available: *req.Available, Reserved: *req.Reserved})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type ledgerOp func(ctx context.Context, productID int64, qty int) (inventory.Inventory, error)

func (h *InventoryHandler) move(op ledgerOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, err := pathID(r, "productId")
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		var req quantityReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.Log, err)
			return
		}
		inv, err := op(r.Context(), pid, req.Quantity)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	}
}
