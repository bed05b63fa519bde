// Package inventory is the stock ledger: the only writer of a product's
// available and reserved counters.
//
// Every mutation locks the product's inventory row, applies one Levels
// transition and writes the result back inside a single transaction. The
// *In variants run inside a caller's transaction so checkout and the order
// lifecycle can compose several single-product operations atomically.
package inventory

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

type Ledger struct {
	tx     postgres.Transactor
	store  Store
	log    *zap.Logger
	tracer trace.Tracer
}

func NewLedger(tx postgres.Transactor, store Store, log *zap.Logger) *Ledger {
	return &Ledger{tx: tx, store: store, log: log, tracer: otel.Tracer("inventory-ledger")}
}

func (l *Ledger) Get(ctx context.Context, productID int64) (Inventory, error) {
	if err := checkProductID(productID); err != nil {
		return Inventory{}, err
	}
	return l.store.Get(ctx, l.tx.Conn(), productID)
}

func (l *Ledger) Reserve(ctx context.Context, productID int64, qty int) (inv Inventory, err error) {
	err = l.tx.InTx(ctx, func(q postgres.Querier) error {
		inv, err = l.ReserveIn(ctx, q, productID, qty)
		return err
	})
	return inv, err
}

func (l *Ledger) Release(ctx context.Context, productID int64, qty int) (inv Inventory, err error) {
	err = l.tx.InTx(ctx, func(q postgres.Querier) error {
		inv, err = l.ReleaseIn(ctx, q, productID, qty)
		return err
	})
	return inv, err
}

func (l *Ledger) Commit(ctx context.Context, productID int64, qty int) (inv Inventory, err error) {
	err = l.tx.InTx(ctx, func(q postgres.Querier) error {
		inv, err = l.CommitIn(ctx, q, productID, qty)
		return err
	})
	return inv, err
}

func (l *Ledger) ReserveIn(ctx context.Context, q postgres.Querier, productID int64, qty int) (Inventory, error) {
	return l.apply(ctx, q, "reserve", productID, qty, Levels.Reserve)
}

func (l *Ledger) ReleaseIn(ctx context.Context, q postgres.Querier, productID int64, qty int) (Inventory, error) {
	return l.apply(ctx, q, "release", productID, qty, Levels.Release)
}

func (l *Ledger) CommitIn(ctx context.Context, q postgres.Querier, productID int64, qty int) (Inventory, error) {
	return l.apply(ctx, q, "commit", productID, qty, Levels.Commit)
}

// SetLevels overwrites both counters. Idempotent.
func (l *Ledger) SetLevels(ctx context.Context, productID int64, lv Levels) (inv Inventory, err error) {
	if err := checkProductID(productID); err != nil {
		return Inventory{}, err
	}
	if err := lv.Validate(); err != nil {
		return Inventory{}, err
	}
	err = l.tx.InTx(ctx, func(q postgres.Querier) error {
		inv, err = l.store.Upsert(ctx, q, productID, lv)
		return err
	})
	if err == nil {
		l.log.Info("inventory levels set",
			zap.Int64("product_id", productID),
			zap.Int("available", inv.Available),
			zap.Int("reserved", inv.Reserved))
	}
	return inv, err
}

func (l *Ledger) apply(ctx context.Context, q postgres.Querier, op string, productID int64, qty int,
	transition func(Levels, int) (Levels, error)) (Inventory, error) {
	ctx, span := l.tracer.Start(ctx, "inventory."+op, trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("inventory.quantity", qty),
	))
	defer span.End()

	if err := checkProductID(productID); err != nil {
		return Inventory{}, err
	}
	if err := checkQty(qty); err != nil {
		return Inventory{}, err
	}

	cur, err := l.store.GetForUpdate(ctx, q, productID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Inventory{}, err
	}
	next, err := transition(cur.Levels(), qty)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		l.log.Info("inventory "+op+" rejected",
			zap.Int64("product_id", productID),
			zap.Int("quantity", qty),
			zap.Int("available", cur.Available),
			zap.Int("reserved", cur.Reserved),
			zap.Error(err))
		return Inventory{}, err
	}
	inv, err := l.store.Update(ctx, q, productID, next)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Inventory{}, err
	}
	span.SetAttributes(
		attribute.Int("inventory.available", inv.Available),
		attribute.Int("inventory.reserved", inv.Reserved),
	)
	return inv, nil
}

func checkProductID(id int64) error {
	if id <= 0 {
		return apperr.Validation("invalid productId")
	}
	return nil
}
