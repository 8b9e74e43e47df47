// Package types - Pricing types
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceUnit is the canonical billing unit
type PriceUnit string

const (
	UnitHour           PriceUnit = "HOUR"
	UnitGBMonth        PriceUnit = "GB_MONTH"
	UnitGB             PriceUnit = "GB"
	UnitRequest        PriceUnit = "REQUEST"
	UnitLCUHour        PriceUnit = "LCU_HOUR"
	UnitConnectionHour PriceUnit = "CONNECTION_HOUR"
)

// String returns the string representation
func (u PriceUnit) String() string {
	return string(u)
}

// PriceRecord is one canonical unit price resolved from the catalog
type PriceRecord struct {
	// Service is the catalog service code (e.g. "AmazonEC2")
	Service string `json:"service"`

	// ResourceType is the product family matched
	ResourceType string `json:"resource_type"`

	// UsageType is the catalog usage type string
	UsageType string `json:"usage_type"`

	// Region is the normalized catalog region
	Region string `json:"region"`

	// Unit is the canonical billing unit
	Unit PriceUnit `json:"unit"`

	// UnitPrice is the exact decimal price per unit
	UnitPrice decimal.Decimal `json:"unit_price"`

	// Currency is the price currency
	Currency Currency `json:"currency"`

	// Attributes are the matched product attributes
	Attributes map[string]string `json:"attributes,omitempty"`

	// SKU is the catalog product key
	SKU string `json:"sku"`

	// EffectiveDate is when the price became effective
	EffectiveDate time.Time `json:"effective_date"`
}

// PricingLookup is a pricing resolution request
type PricingLookup struct {
	// Service is the catalog service code
	Service string `json:"service"`

	// Region is the provider region code (e.g. "us-east-1")
	Region string `json:"region"`

	// ResourceType is the product family to match
	ResourceType string `json:"resource_type"`

	// Attributes are the request attributes to score against
	Attributes map[string]string `json:"attributes,omitempty"`
}

// PricingResult is a pricing resolution response
type PricingResult struct {
	// ResourceID links the result to a graph node when set
	ResourceID string `json:"resource_id,omitempty"`

	// Prices are the matched price dimensions
	Prices []PriceRecord `json:"prices"`

	// Confidence reflects match quality per the catalog scoring rule
	Confidence Confidence `json:"confidence"`

	// SnapshotID identifies the catalog document version used
	SnapshotID string `json:"snapshot_id"`

	// FallbackUsed indicates the type-only fallback set was returned
	FallbackUsed bool `json:"fallback_used,omitempty"`
}
