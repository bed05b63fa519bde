package httpx

import (
	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-stock-ledger/internal/identity"
)

type Handlers struct {
	Products   *ProductsHandler
	Categories *CategoriesHandler
	Inventory  *InventoryHandler
	Cart       *CartHandler
	Orders     *OrdersHandler
}

// Mount wires the API under /api. Product and category reads are public; /api/admin needs
// the admin role and /api/user accepts users and admins.
func Mount(r chi.Router, auth *Authenticator, h Handlers) {
	r.Route("/api", func(r chi.Router) {
		h.Products.RegisterPublic(r)
		h.Categories.RegisterPublic(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Middleware, RequireRole(identity.RoleAdmin))
			h.Products.RegisterAdmin(r)
			h.Categories.RegisterAdmin(r)
			h.Inventory.Register(r)
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(auth.Middleware, RequireRole(identity.RoleUser, identity.RoleAdmin))
			h.Cart.Register(r)
			h.Orders.Register(r)
		})
	})
}
