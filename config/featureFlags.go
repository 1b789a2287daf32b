package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// EventOutboxEnabled controls whether state changes write production events to the outbox.
//
// Set via env:
// - EVENT_OUTBOX_ENABLED=false (default true)
func EventOutboxEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("EVENT_OUTBOX_ENABLED")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// SeedDefaultsOnStart seeds the default machines and paints after migration.
//
// Set via env:
// - SEED_DEFAULTS=true
func SeedDefaultsOnStart() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SEED_DEFAULTS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// LowStockThresholdKg is the default threshold of GET /paints/low-stock.
//
// Set via env:
// - LOW_STOCK_THRESHOLD_KG=10
func LowStockThresholdKg() decimal.Decimal {
	def := decimal.NewFromInt(10)
	raw := strings.TrimSpace(os.Getenv("LOW_STOCK_THRESHOLD_KG"))
	if raw == "" {
		return def
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || v.IsNegative() {
		return def
	}
	return v
}
