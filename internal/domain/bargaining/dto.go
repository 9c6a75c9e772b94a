// internal/domain/bargaining/dto.go
package bargaining

type EnableRequest struct {
	ProductID     string       `json:"product_id" binding:"required"`
	VariantID     string       `json:"variant_id" binding:"required"`
	MinPriceType  MinPriceType `json:"min_price_type"`
	MinPriceValue float64      `json:"min_price_value"`
	Behavior      string       `json:"behavior"`
}

type DisableRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	VariantID string `json:"variant_id" binding:"required"`
}

// EnableInput is an enable request joined with the catalog values observed
// at the moment of the mutation.
type EnableInput struct {
	ProductID     string
	VariantID     string
	MinPrice      MinPriceSpec
	Behavior      Behavior
	OriginalPrice float64
	InventoryQty  int
}

// SettingsConfig is the typed settings block applied to every variant of a
// bulk selection.
type SettingsConfig struct {
	Enabled       bool         `json:"enabled"`
	MinPriceType  MinPriceType `json:"min_price_type"`
	MinPriceValue float64      `json:"min_price_value"`
	Behavior      string       `json:"behavior"`
}

// Selection targets one product. An empty VariantIDs selects every variant.
type Selection struct {
	ProductID  string         `json:"product_id" binding:"required"`
	VariantIDs []string       `json:"variant_ids"`
	Settings   SettingsConfig `json:"settings"`
}

type BulkUpdateRequest struct {
	Selections []Selection `json:"selections" binding:"required,min=1,dive"`
}

type SkippedVariant struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Reason    string `json:"reason"`
}

type BulkUpdateResult struct {
	Updated []Setting        `json:"updated"`
	Skipped []SkippedVariant `json:"skipped"`
	Limits  Limits           `json:"limits"`
}

type SettingResult struct {
	Setting *Setting `json:"setting"`
	Limits  Limits   `json:"limits"`
}
