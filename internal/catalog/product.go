package catalog

import (
	"strings"
	"time"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
)

type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	SKU         *string   `json:"sku,omitempty"`
	Slug        *string   `json:"slug,omitempty"`
	PriceCents  int       `json:"priceCents"`
	CategoryID  *int64    `json:"categoryId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type NewProduct struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	SKU         *string `json:"sku"`
	Slug        *string `json:"slug"`
	PriceCents  int     `json:"priceCents"`
	CategoryID  *int64  `json:"categoryId"`
}

func (n NewProduct) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return apperr.Validation("name is required")
	}
	if n.PriceCents < 0 {
		return apperr.Validation("priceCents must be a non-negative integer")
	}
	if n.CategoryID != nil && *n.CategoryID <= 0 {
		return apperr.Validation("categoryId must be a positive integer")
	}
	return nil
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	SKU         *string `json:"sku"`
	Slug        *string `json:"slug"`
	PriceCents  *int    `json:"priceCents"`
	CategoryID  *int64  `json:"categoryId"`
}

func (p Patch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return apperr.Validation("invalid name")
	}
	if p.PriceCents != nil && *p.PriceCents < 0 {
		return apperr.Validation("priceCents must be a non-negative integer")
	}
	if p.CategoryID != nil && *p.CategoryID <= 0 {
		return apperr.Validation("categoryId must be a positive integer")
	}
	return nil
}

// Apply returns p merged over cur.
func (p Patch) Apply(cur Product) Product {
	if p.Name != nil {
		cur.Name = *p.Name
	}
	if p.Description != nil {
		cur.Description = p.Description
	}
	if p.SKU != nil {
		cur.SKU = p.SKU
	}
	if p.Slug != nil {
		cur.Slug = p.Slug
	}
	if p.PriceCents != nil {
		cur.PriceCents = *p.PriceCents
	}
	if p.CategoryID != nil {
		cur.CategoryID = p.CategoryID
	}
	return cur
}
