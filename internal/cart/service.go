// Package cart is the per-principal cart aggregate. Cart edits never touch
// stock; stock is only checked at checkout.
package cart

import (
	"context"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/catalog"
	"github.com/ariefcatur/go-stock-ledger/internal/identity"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

type Service struct {
	tx       postgres.Transactor
	carts    Store
	products catalog.Store
}

func NewService(tx postgres.Transactor, carts Store, products catalog.Store) *Service {
	return &Service{tx: tx, carts: carts, products: products}
}

// Get returns the principal's cart, creating an empty one on first access.
func (s *Service) Get(ctx context.Context, p identity.Principal) (c Cart, err error) {
	err = s.tx.InTx(ctx, func(q postgres.Querier) error {
		c, err = s.carts.GetOrCreate(ctx, q, p.ID)
		return err
	})
	return c, err
}

// UpsertItem sets the quantity of productID in the principal's cart. A new
// line snapshots the product's current price; an existing line keeps its
// snapshot and only has its quantity replaced.
func (s *Service) UpsertItem(ctx context.Context, p identity.Principal, productID int64, qty int) (it Item, err error) {
	if productID <= 0 {
		return Item{}, apperr.Validation("productId and quantity > 0 is required")
	}
	if err := checkQty(qty); err != nil {
		return Item{}, err
	}
	err = s.tx.InTx(ctx, func(q postgres.Querier) error {
		prod, err := s.products.Get(ctx, q, productID)
		if err != nil {
			return err
		}
		c, err := s.carts.GetOrCreate(ctx, q, p.ID)
		if err != nil {
			return err
		}
		it, err = s.carts.UpsertItem(ctx, q, c.ID, productID, qty, prod.PriceCents)
		return err
	})
	return it, err
}

func (s *Service) UpdateItem(ctx context.Context, p identity.Principal, itemID int64, qty int) (it Item, err error) {
	if itemID <= 0 {
		return Item{}, apperr.NotFound("item not found")
	}
	if err := checkQty(qty); err != nil {
		return Item{}, err
	}
	err = s.tx.InTx(ctx, func(q postgres.Querier) error {
		it, err = s.carts.UpdateItem(ctx, q, p.ID, itemID, qty)
		return err
	})
	return it, err
}

func (s *Service) RemoveItem(ctx context.Context, p identity.Principal, itemID int64) error {
	if itemID <= 0 {
		return apperr.NotFound("item not found")
	}
	return s.tx.InTx(ctx, func(q postgres.Querier) error {
		return s.carts.DeleteItem(ctx, q, p.ID, itemID)
	})
}

func checkQty(qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity > 0 required")
	}
	return nil
}
