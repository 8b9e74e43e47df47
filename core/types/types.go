// Package types defines core domain types shared across all layers.
// This package contains NO business logic - only type definitions.
package types

// Provider represents a cloud provider
type Provider string

const (
	ProviderAWS     Provider = "aws"
	ProviderUnknown Provider = "unknown"
)

// String returns the string representation of the provider
func (p Provider) String() string {
	return string(p)
}

// ResourceAddress is a full Terraform-style resource address, including
// the multiplicity index (name[0], name["key"]) when expanded.
type ResourceAddress string

// String returns the string representation
func (r ResourceAddress) String() string {
	return string(r)
}

// Confidence is the ordered estimation confidence level
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Rank orders confidence levels: LOW < MEDIUM < HIGH
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// String returns the string representation
func (c Confidence) String() string {
	return string(c)
}

// MinConfidence returns the lowest of the given levels; propagation across
// sources always takes the minimum.
func MinConfidence(levels ...Confidence) Confidence {
	if len(levels) == 0 {
		return ConfidenceLow
	}
	min := levels[0]
	for _, l := range levels[1:] {
		if l.Rank() < min.Rank() {
			min = l
		}
	}
	return min
}

// Currency represents a currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// String returns the string representation
func (c Currency) String() string {
	return string(c)
}
