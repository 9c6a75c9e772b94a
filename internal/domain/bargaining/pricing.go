package bargaining

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidPrice = errors.New("invalid price")

// ClampMinPrice resolves a price floor against the variant's original price.
// The result is never negative, never above originalPrice and rounded to cents.
func ClampMinPrice(spec MinPriceSpec, originalPrice float64) (float64, error) {
	if math.IsNaN(originalPrice) || math.IsInf(originalPrice, 0) || originalPrice <= 0 {
		return 0, fmt.Errorf("%w: original price must be positive, got %v", ErrInvalidPrice, originalPrice)
	}
	if math.IsNaN(spec.Value) || math.IsInf(spec.Value, 0) {
		return 0, fmt.Errorf("%w: min price value is not a number", ErrInvalidPrice)
	}

	var minPrice float64
	switch spec.Type {
	case MinPricePercentage:
		minPrice = originalPrice * (spec.Value / 100)
	case MinPriceFixed, "":
		minPrice = spec.Value
	default:
		return 0, fmt.Errorf("%w: unknown min price type %q", ErrInvalidPrice, spec.Type)
	}

	minPrice = math.Max(0, math.Min(minPrice, originalPrice))
	minPrice = math.Round(minPrice*100) / 100
	// rounding up can cross an original price with sub-cent precision
	if minPrice > originalPrice {
		minPrice = originalPrice
	}
	return minPrice, nil
}
