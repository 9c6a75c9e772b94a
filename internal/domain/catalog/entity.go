// internal/domain/catalog/entity.go
package catalog

import "time"

// Variant is the catalog snapshot kept in sync with the storefront by the
// catalog sync job. This service only reads it.
type Variant struct {
	UserID            int64     `json:"user_id" db:"user_id"`
	ProductID         string    `json:"product_id" db:"product_id"`
	VariantID         string    `json:"variant_id" db:"variant_id"`
	Title             string    `json:"title" db:"title"`
	Price             float64   `json:"price" db:"price"`
	InventoryQuantity int       `json:"inventory_quantity" db:"inventory_quantity"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}
