// Package types - Final cost model types
package types

import "github.com/shopspring/decimal"

// CostDiff breaks down the spread of a cost scenario
type CostDiff struct {
	// ExpectedMinusMin is expected - min
	ExpectedMinusMin decimal.Decimal `json:"expected_minus_min"`

	// MaxMinusExpected is max - expected
	MaxMinusExpected decimal.Decimal `json:"max_minus_expected"`

	// MaxMinusMin is max - min
	MaxMinusMin decimal.Decimal `json:"max_minus_min"`

	// DownsidePct is (expected - min) / min * 100; zero when min is zero
	DownsidePct decimal.Decimal `json:"downside_pct"`

	// UpsidePct is (max - expected) / expected * 100; zero when expected is zero
	UpsidePct decimal.Decimal `json:"upside_pct"`

	// SpreadRatio is (max - min) / expected; zero when expected is zero
	SpreadRatio decimal.Decimal `json:"spread_ratio"`
}

// DimensionCost is the cost of one usage dimension of a resource
type DimensionCost struct {
	// Dimension is the usage dimension name
	Dimension string `json:"dimension"`

	// Unit is the billing unit applied
	Unit string `json:"unit"`

	// UnitPrice is the resolved unit price
	UnitPrice decimal.Decimal `json:"unit_price"`

	// Scenario is the monthly cost triple for this dimension
	Scenario Scenario `json:"scenario"`
}

// ResourceCost is the per-resource cost model
type ResourceCost struct {
	// ResourceID links back to the graph node
	ResourceID string `json:"resource_id"`

	// Address is the resource address for display
	Address ResourceAddress `json:"address,omitempty"`

	// Service is the billing service
	Service string `json:"service,omitempty"`

	// Region is the billing region
	Region string `json:"region,omitempty"`

	// Dimensions are the per-dimension cost breakdowns
	Dimensions []DimensionCost `json:"dimensions"`

	// Scenario is the summed monthly cost triple
	Scenario Scenario `json:"scenario"`

	// Currency is the cost currency
	Currency Currency `json:"currency"`

	// Diff is the scenario spread breakdown
	Diff CostDiff `json:"diff"`

	// Confidence is the minimum across input sources
	Confidence Confidence `json:"confidence"`

	// ConfidenceSources records each input's contribution
	ConfidenceSources map[string]Confidence `json:"confidence_sources,omitempty"`
}

// AggregatedCost sums resource scenarios along one grouping
type AggregatedCost struct {
	// GroupBy is the grouping dimension (service, region)
	GroupBy string `json:"group_by"`

	// GroupValue is the group key
	GroupValue string `json:"group_value"`

	// Scenario is the componentwise scenario sum of the members
	Scenario Scenario `json:"scenario"`

	// Diff is the spread breakdown of the summed scenario
	Diff CostDiff `json:"diff"`

	// ResourceCount is the number of member resources
	ResourceCount int `json:"resource_count"`

	// Confidence is the minimum member confidence
	Confidence Confidence `json:"confidence"`
}

// TotalCost is the overall scenario with its spread
type TotalCost struct {
	// Scenario is the componentwise total
	Scenario Scenario `json:"scenario"`

	// Diff is the spread breakdown of the total
	Diff CostDiff `json:"diff"`
}

// FCM is the Final Cost Model for one job
type FCM struct {
	// ResourceCosts are per-resource scenarios, sorted by resource id
	ResourceCosts []ResourceCost `json:"resource_costs"`

	// AggregatedByService sums scenarios per billing service
	AggregatedByService []AggregatedCost `json:"aggregated_by_service"`

	// AggregatedByRegion sums scenarios per region
	AggregatedByRegion []AggregatedCost `json:"aggregated_by_region"`

	// Total is the overall scenario and spread
	Total TotalCost `json:"total"`

	// Currency is the model currency
	Currency Currency `json:"currency"`

	// OverallConfidence is the minimum per-resource confidence
	OverallConfidence Confidence `json:"overall_confidence"`

	// DeterminismHash is the stable hash over sorted per-resource scenarios
	DeterminismHash string `json:"determinism_hash"`
}
