package store

import (
	"fmt"

	"github.com/shopspring/decimal"

	"costplan/core/types"
)

// Severity grades a failed gate rule
type Severity string

const (
	// SeverityWarning reports without blocking
	SeverityWarning Severity = "warning"

	// SeverityBlock fails the gate
	SeverityBlock Severity = "block"
)

// GatePolicy is a set of cost guardrails evaluated against a result
type GatePolicy struct {
	// MaxMonthlyCost caps the expected monthly total; nil disables the rule
	MaxMonthlyCost *decimal.Decimal `json:"max_monthly_cost,omitempty"`

	// MinConfidence is the lowest acceptable overall confidence; empty
	// disables the rule
	MinConfidence types.Confidence `json:"min_confidence,omitempty"`

	// MaxIncreasePct caps the expected total increase against the
	// baseline result, in percent; nil disables the rule
	MaxIncreasePct *decimal.Decimal `json:"max_increase_pct,omitempty"`

	// BaselineResultID is the comparison baseline for MaxIncreasePct
	BaselineResultID string `json:"baseline_result_id,omitempty"`
}

// RuleResult is the outcome of one gate rule
type RuleResult struct {
	// RuleName identifies the rule
	RuleName string `json:"rule_name"`

	// Passed reports whether the rule held
	Passed bool `json:"passed"`

	// Severity grades the rule when it fails
	Severity Severity `json:"severity"`

	// Message is the human-readable outcome
	Message string `json:"message"`
}

// GateResult is the overall gate verdict
type GateResult struct {
	// ResultID is the evaluated result
	ResultID string `json:"result_id"`

	// Passed reports whether every blocking rule held
	Passed bool `json:"passed"`

	// ExitCode is 0 on pass and 1 on fail, for CI consumption
	ExitCode int `json:"exit_code"`

	// Results are the individual rule outcomes
	Results []RuleResult `json:"results"`
}

// evaluateGate runs the policy rules against a result. The baseline is
// nil unless the policy names one.
func evaluateGate(result *types.Result, baseline *types.Result, policy GatePolicy) *GateResult {
	gate := &GateResult{ResultID: result.ID, Passed: true}
	expected := result.Model.Total.Scenario.Expected

	if policy.MaxMonthlyCost != nil {
		rule := RuleResult{RuleName: "max_monthly_cost", Severity: SeverityBlock, Passed: true}
		if expected.GreaterThan(*policy.MaxMonthlyCost) {
			rule.Passed = false
			rule.Message = fmt.Sprintf("expected monthly cost %s exceeds the ceiling %s",
				expected.StringFixed(2), policy.MaxMonthlyCost.StringFixed(2))
		} else {
			rule.Message = fmt.Sprintf("expected monthly cost %s is within the ceiling %s",
				expected.StringFixed(2), policy.MaxMonthlyCost.StringFixed(2))
		}
		gate.Results = append(gate.Results, rule)
	}

	if policy.MinConfidence != "" {
		rule := RuleResult{RuleName: "min_confidence", Severity: SeverityBlock, Passed: true}
		if result.Model.OverallConfidence.Rank() < policy.MinConfidence.Rank() {
			rule.Passed = false
			rule.Message = fmt.Sprintf("overall confidence %s is below the required %s",
				result.Model.OverallConfidence, policy.MinConfidence)
		} else {
			rule.Message = fmt.Sprintf("overall confidence %s meets the required %s",
				result.Model.OverallConfidence, policy.MinConfidence)
		}
		gate.Results = append(gate.Results, rule)
	}

	if policy.MaxIncreasePct != nil && baseline != nil {
		rule := RuleResult{RuleName: "max_increase_pct", Severity: SeverityBlock, Passed: true}
		before := baseline.Model.Total.Scenario.Expected
		switch {
		case before.IsZero() && expected.IsZero():
			rule.Message = "no baseline cost and no new cost"
		case before.IsZero():
			rule.Passed = false
			rule.Message = fmt.Sprintf("baseline cost is zero, new cost is %s", expected.StringFixed(2))
		default:
			increase := expected.Sub(before).Div(before).Mul(decimal.NewFromInt(100)).Round(2)
			if increase.GreaterThan(*policy.MaxIncreasePct) {
				rule.Passed = false
				rule.Message = fmt.Sprintf("expected cost increase %s%% exceeds the allowed %s%%",
					increase, policy.MaxIncreasePct)
			} else {
				rule.Message = fmt.Sprintf("expected cost change %s%% is within the allowed %s%%",
					increase, policy.MaxIncreasePct)
			}
		}
		gate.Results = append(gate.Results, rule)
	}

	for _, rule := range gate.Results {
		if !rule.Passed && rule.Severity == SeverityBlock {
			gate.Passed = false
		}
	}
	if !gate.Passed {
		gate.ExitCode = 1
	}
	return gate
}
