package catalog

import (
	"context"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/inventory"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Service administers products. Every product is created together with its
// 0/0 inventory row.
type Service struct {
	tx        postgres.Transactor
	products  Store
	inventory inventory.Store
	log       *zap.Logger
}

func NewService(tx postgres.Transactor, products Store, inv inventory.Store, log *zap.Logger) *Service {
	return &Service{tx: tx, products: products, inventory: inv, log: log}
}

func (s *Service) Create(ctx context.Context, in NewProduct) (p Product, err error) {
	if err := in.Validate(); err != nil {
		return Product{}, err
	}
	err = s.tx.InTx(ctx, func(q postgres.Querier) error {
		p, err = s.products.Insert(ctx, q, in)
		if err != nil {
			return err
		}
		return s.inventory.Create(ctx, q, p.ID)
	})
	if err != nil {
		return Product{}, err
	}
	s.log.Info("product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, apperr.Validation("invalid product id")
	}
	return s.products.Get(ctx, s.tx.Conn(), id)
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (Product, error) {
	if slug == "" {
		return Product{}, apperr.Validation("slug is required")
	}
	return s.products.GetBySlug(ctx, s.tx.Conn(), slug)
}

// List pages through products ordered by id. page starts at 1.
func (s *Service) List(ctx context.Context, page, limit int) ([]Product, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	return s.products.List(ctx, s.tx.Conn(), (page-1)*limit, limit)
}

func (s *Service) Update(ctx context.Context, id int64, patch Patch) (p Product, err error) {
	if id <= 0 {
		return Product{}, apperr.Validation("invalid product id")
	}
	if err := patch.Validate(); err != nil {
		return Product{}, err
	}
	err = s.tx.InTx(ctx, func(q postgres.Querier) error {
		cur, err := s.products.Get(ctx, q, id)
		if err != nil {
			return err
		}
		p, err = s.products.Save(ctx, q, patch.Apply(cur))
		return err
	})
	return p, err
}

// Delete removes a product whose stock is fully drained. Products still
// holding stock, or referenced by carts or orders, are a Conflict.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperr.Validation("invalid product id")
	}
	return s.tx.InTx(ctx, func(q postgres.Querier) error {
		inv, err := s.inventory.GetForUpdate(ctx, q, id)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return apperr.NotFound("product not found")
			}
			return err
		}
		if inv.Available > 0 || inv.Reserved > 0 {
			return apperr.Conflict("product has live inventory")
		}
		if err := s.inventory.Delete(ctx, q, id); err != nil {
			return err
		}
		return s.products.Delete(ctx, q, id)
	})
}
