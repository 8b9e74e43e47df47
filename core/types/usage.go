// Package types - Usage modeling types
package types

import "github.com/shopspring/decimal"

// Scenario is a (min, expected, max) usage or cost triple in a shared unit
type Scenario struct {
	// Min is the low estimate
	Min decimal.Decimal `json:"min"`

	// Expected is the central estimate
	Expected decimal.Decimal `json:"expected"`

	// Max is the high estimate
	Max decimal.Decimal `json:"max"`

	// Unit is the shared unit of the three values
	Unit string `json:"unit,omitempty"`
}

// IsMonotonic reports whether max >= expected >= min
func (s Scenario) IsMonotonic() bool {
	return s.Max.GreaterThanOrEqual(s.Expected) && s.Expected.GreaterThanOrEqual(s.Min)
}

// Normalized returns the scenario with the three values sorted ascending
// into min, expected, max. Violations are repaired, never rejected.
func (s Scenario) Normalized() Scenario {
	vals := []decimal.Decimal{s.Min, s.Expected, s.Max}
	for i := 0; i < len(vals); i++ {
		for j := i + 1; j < len(vals); j++ {
			if vals[j].LessThan(vals[i]) {
				vals[i], vals[j] = vals[j], vals[i]
			}
		}
	}
	return Scenario{Min: vals[0], Expected: vals[1], Max: vals[2], Unit: s.Unit}
}

// IsDeterministic reports whether min == expected == max
func (s Scenario) IsDeterministic() bool {
	return s.Min.Equal(s.Expected) && s.Expected.Equal(s.Max)
}

// Add returns the componentwise sum of two scenarios
func (s Scenario) Add(other Scenario) Scenario {
	return Scenario{
		Min:      s.Min.Add(other.Min),
		Expected: s.Expected.Add(other.Expected),
		Max:      s.Max.Add(other.Max),
		Unit:     s.Unit,
	}
}

// UsageAnnotation holds the modeled usage for one resource
type UsageAnnotation struct {
	// ResourceID links the annotation to a graph node
	ResourceID string `json:"resource_id"`

	// Scenarios maps usage dimension name to its scenario triple
	Scenarios map[string]Scenario `json:"scenarios"`

	// ProfileName is the source profile
	ProfileName string `json:"profile_name"`

	// ProfileVersion is the source profile version
	ProfileVersion string `json:"profile_version"`

	// Confidence reflects override/deterministic/profile provenance
	Confidence Confidence `json:"confidence"`

	// Assumptions are human-readable notes carried from the profile
	Assumptions []string `json:"assumptions,omitempty"`

	// OverridesApplied lists overrides that replaced profile values
	OverridesApplied []string `json:"overrides_applied,omitempty"`
}

// UsageOverride replaces a profile scenario with a fixed value
type UsageOverride struct {
	// Scope is the override precedence tier
	Scope OverrideScope `json:"scope"`

	// ResourceID targets one resource (resource scope only)
	ResourceID string `json:"resource_id,omitempty"`

	// Service targets a service (service scope only)
	Service string `json:"service,omitempty"`

	// Dimension is the usage dimension to override
	Dimension string `json:"dimension"`

	// Value replaces min, expected, and max
	Value decimal.Decimal `json:"value"`
}

// OverrideScope is the precedence tier: resource > service > global
type OverrideScope string

const (
	OverrideScopeResource OverrideScope = "resource"
	OverrideScopeService  OverrideScope = "service"
	OverrideScopeGlobal   OverrideScope = "global"
)
