// internal/domain/bargaining/entity.go
package bargaining

import (
	"fmt"
	"time"
)

type Behavior string

const (
	BehaviorLow    Behavior = "low"
	BehaviorNormal Behavior = "normal"
	BehaviorHigh   Behavior = "high"
)

// ParseBehavior maps an empty value to BehaviorNormal.
func ParseBehavior(s string) (Behavior, error) {
	switch Behavior(s) {
	case "":
		return BehaviorNormal, nil
	case BehaviorLow, BehaviorNormal, BehaviorHigh:
		return Behavior(s), nil
	default:
		return "", fmt.Errorf("unknown bargaining behavior %q", s)
	}
}

type MinPriceType string

const (
	MinPriceFixed      MinPriceType = "fixed"
	MinPricePercentage MinPriceType = "percentage"
)

// MinPriceSpec is how the merchant expresses the price floor: either an
// absolute amount or a percentage of the variant's original price.
type MinPriceSpec struct {
	Type  MinPriceType `json:"min_price_type"`
	Value float64      `json:"min_price_value"`
}

type Setting struct {
	ID            int64     `json:"id" db:"id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	ProductID     string    `json:"product_id" db:"product_id"`
	VariantID     string    `json:"variant_id" db:"variant_id"`
	Enabled       bool      `json:"enabled" db:"enabled"`
	MinPrice      float64   `json:"min_price" db:"min_price"`
	OriginalPrice float64   `json:"original_price" db:"original_price"`
	Behavior      Behavior  `json:"behavior" db:"behavior"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Limits is the quota picture for one user at one moment.
type Limits struct {
	MaxProducts      int    `json:"max_products"`
	CurrentlyEnabled int    `json:"currently_enabled"`
	PlanSlug         string `json:"plan_slug"`
	PlanName         string `json:"plan_name"`
	Unlimited        bool   `json:"unlimited"`
	Remaining        int    `json:"remaining"`
}

// NewLimits fills the derived fields. Remaining is -1 for unlimited plans.
func NewLimits(maxProducts, currentlyEnabled int, planSlug, planName string) Limits {
	l := Limits{
		MaxProducts:      maxProducts,
		CurrentlyEnabled: currentlyEnabled,
		PlanSlug:         planSlug,
		PlanName:         planName,
		Unlimited:        maxProducts == 0,
		Remaining:        -1,
	}
	if !l.Unlimited {
		l.Remaining = maxProducts - currentlyEnabled
		if l.Remaining < 0 {
			l.Remaining = 0
		}
	}
	return l
}

// Allows reports whether additional distinct products may be enabled.
func (l Limits) Allows(additional int) bool {
	if l.Unlimited || additional <= 0 {
		return true
	}
	return l.CurrentlyEnabled+additional <= l.MaxProducts
}

// WithEnabled returns a copy reflecting a new enabled count.
func (l Limits) WithEnabled(currentlyEnabled int) Limits {
	return NewLimits(l.MaxProducts, currentlyEnabled, l.PlanSlug, l.PlanName)
}
