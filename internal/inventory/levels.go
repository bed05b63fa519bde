package inventory

import (
	"time"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
)

// Levels are a product's stock counters. Every value produced by the methods
// below satisfies 0 <= Reserved <= Available.
type Levels struct {
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
}

// Free is the quantity still open to new reservations.
func (l Levels) Free() int { return l.Available - l.Reserved }

// Validate rejects counters that break the invariant.
func (l Levels) Validate() error {
	if l.Available < 0 || l.Reserved < 0 {
		return apperr.Validation("available and reserved must be non-negative")
	}
	if l.Reserved > l.Available {
		return apperr.Validation("reserved cannot exceed available")
	}
	return nil
}

func (l Levels) Reserve(qty int) (Levels, error) {
	if err := checkQty(qty); err != nil {
		return l, err
	}
	if free := l.Free(); free < qty {
		return l, apperr.InsufficientStock(free)
	}
	l.Reserved += qty
	return l, nil
}

// Release floors reserved at zero; over-release is a caller bug but must not
// push the counter negative.
func (l Levels) Release(qty int) (Levels, error) {
	if err := checkQty(qty); err != nil {
		return l, err
	}
	l.Reserved = max(0, l.Reserved-qty)
	return l, nil
}

// Commit turns qty reserved units into a permanent deduction. Free stock is
// unchanged.
func (l Levels) Commit(qty int) (Levels, error) {
	if err := checkQty(qty); err != nil {
		return l, err
	}
	if l.Reserved < qty {
		return l, apperr.InsufficientReserved(l.Reserved)
	}
	if l.Available < qty {
		return l, apperr.InsufficientAvailable(l.Available)
	}
	l.Available -= qty
	l.Reserved -= qty
	return l, nil
}

func checkQty(qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be integer > 0")
	}
	return nil
}

// Inventory is the stored row for one product.
type Inventory struct {
	ProductID int64     `json:"productId"`
	Available int       `json:"available"`
	Reserved  int       `json:"reserved"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (i Inventory) Levels() Levels {
	return Levels{Available: i.Available, Reserved: i.Reserved}
}
