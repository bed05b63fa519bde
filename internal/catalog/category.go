package catalog

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type CategoryStore interface {
	Insert(ctx context.Context, q postgres.Querier, name string) (Category, error)
	Get(ctx context.Context, q postgres.Querier, id int64) (Category, error)
	List(ctx context.Context, q postgres.Querier) ([]Category, error)
	Rename(ctx context.Context, q postgres.Querier, id int64, name string) (Category, error)
	// Delete fails with Conflict while products still reference the category.
	Delete(ctx context.Context, q postgres.Querier, id int64) error
}

// Categories administers product categories. Names are unique.
type Categories struct {
	tx    postgres.Transactor
	store CategoryStore
	log   *zap.Logger
}

func NewCategories(tx postgres.Transactor, store CategoryStore, log *zap.Logger) *Categories {
	return &Categories{tx: tx, store: store, log: log}
}

func categoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name is required")
	}
	return name, nil
}

func (c *Categories) Create(ctx context.Context, name string) (Category, error) {
	name, err := categoryName(name)
	if err != nil {
		return Category{}, err
	}
	cat, err := c.store.Insert(ctx, c.tx.Conn(), name)
	if err != nil {
		return Category{}, err
	}
	c.log.Info("category created", zap.Int64("category_id", cat.ID), zap.String("name", cat.Name))
	return cat, nil
}

func (c *Categories) Get(ctx context.Context, id int64) (Category, error) {
	if id <= 0 {
		return Category{}, apperr.Validation("invalid category id")
	}
	return c.store.Get(ctx, c.tx.Conn(), id)
}

// List returns every category ordered by name.
func (c *Categories) List(ctx context.Context) ([]Category, error) {
	return c.store.List(ctx, c.tx.Conn())
}

func (c *Categories) Rename(ctx context.Context, id int64, name string) (Category, error) {
	if id <= 0 {
		return Category{}, apperr.Validation("invalid category id")
	}
	name, err := categoryName(name)
	if err != nil {
		return Category{}, err
	}
	return c.store.Rename(ctx, c.tx.Conn(), id, name)
}

func (c *Categories) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperr.Validation("invalid category id")
	}
	if err := c.store.Delete(ctx, c.tx.Conn(), id); err != nil {
		return err
	}
	c.log.Info("category deleted", zap.Int64("category_id", id))
	return nil
}
