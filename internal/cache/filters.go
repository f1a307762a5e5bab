package cache

import (
	"time"

	"github.com/hyperengineering/stockroom/internal/types"
)

// EffectiveThreshold returns the product's own low-stock threshold when set,
// else the settings-wide one.
func EffectiveThreshold(p types.Product, s types.Settings) int {
	if p.MinQuantity > 0 {
		return p.MinQuantity
	}
	return s.LowStockThreshold
}

// IsLowStock reports whether p is at or below its effective threshold.
func IsLowStock(p types.Product, s types.Settings) bool {
	return p.Quantity <= EffectiveThreshold(p, s)
}

// LowStock returns the products whose quantity is at or below threshold.
func LowStock(products []types.Product, threshold int) []types.Product {
	out := make([]types.Product, 0)
	for _, p := range products {
		if p.Quantity <= threshold {
			out = append(out, p)
		}
	}
	return out
}

// LowStockBySettings applies each product's effective threshold.
func LowStockBySettings(products []types.Product, s types.Settings) []types.Product {
	out := make([]types.Product, 0)
	for _, p := range products {
		if IsLowStock(p, s) {
			out = append(out, p)
		}
	}
	return out
}

// IsExpiring reports whether p expires between today and days from now,
// inclusive. Already expired products and products without an expiry date
// are not expiring.
func IsExpiring(p types.Product, days int, now time.Time) bool {
	if p.ExpiryDate.IsZero() {
		return false
	}
	d := p.ExpiryDate.DaysUntil(now)
	return d >= 0 && d <= days
}

// ExpiringWithin returns the products that are expiring within days.
func ExpiringWithin(products []types.Product, days int, now time.Time) []types.Product {
	out := make([]types.Product, 0)
	for _, p := range products {
		if IsExpiring(p, days, now) {
			out = append(out, p)
		}
	}
	return out
}
