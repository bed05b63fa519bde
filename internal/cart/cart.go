package cart

import "time"

type Cart struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Item is one cart line. UnitPriceCents is the product price when the line
// was first added.
type Item struct {
	ID             int64 `json:"id"`
	CartID         int64 `json:"cartId"`
	ProductID      int64 `json:"productId"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int   `json:"unitPriceCents"`
}

func (c Cart) Empty() bool { return len(c.Items) == 0 }
