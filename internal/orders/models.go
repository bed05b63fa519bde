package orders

import (
	"sort"
	"time"
)

type Order struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	Status     Status    `json:"status"`
	TotalCents int       `json:"totalCents"`
	Items      []Item    `json:"items"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Item is a priced snapshot taken at checkout; it never changes afterwards.
type Item struct {
	ID             int64 `json:"id"`
	OrderID        int64 `json:"orderId"`
	ProductID      int64 `json:"productId"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int   `json:"unitPriceCents"`
}

func Total(items []Item) int {
	total := 0
	for _, it := range items {
		total += it.Quantity * it.UnitPriceCents
	}
	return total
}

// ByProduct returns a copy of items in ascending product id, the lock order
// shared by checkout, pay and cancel.
func ByProduct(items []Item) []Item {
	out := append([]Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

type Filter struct {
	Status Status
	Page   int
	Limit  int
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

func (f Filter) normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	f.Limit = min(f.Limit, MaxLimit)
	return f
}

func (f Filter) Offset() int { return (f.Page - 1) * f.Limit }
