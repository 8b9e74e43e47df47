package store

import (
	"sort"

	"github.com/shopspring/decimal"

	"costplan/core/types"
)

// ChangeType indicates how a resource moved between two results
type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeRemoved   ChangeType = "removed"
	ChangeModified  ChangeType = "modified"
	ChangeUnchanged ChangeType = "unchanged"
)

// ResourceDiff describes the change of one resource between two results
type ResourceDiff struct {
	// ResourceID is the stable resource identity
	ResourceID string `json:"resource_id"`

	// Address is the resource address, taken from whichever side has it
	Address types.ResourceAddress `json:"address"`

	// ChangeType classifies the change
	ChangeType ChangeType `json:"change_type"`

	// Before is the expected monthly cost in the base result
	Before decimal.Decimal `json:"before"`

	// After is the expected monthly cost in the head result
	After decimal.Decimal `json:"after"`

	// Delta is After minus Before
	Delta decimal.Decimal `json:"delta"`
}

// Comparison is the full diff between two persisted results
type Comparison struct {
	// BaseResultID is the comparison baseline
	BaseResultID string `json:"base_result_id"`

	// HeadResultID is the compared result
	HeadResultID string `json:"head_result_id"`

	// TotalBefore is the baseline expected monthly total
	TotalBefore decimal.Decimal `json:"total_before"`

	// TotalAfter is the head expected monthly total
	TotalAfter decimal.Decimal `json:"total_after"`

	// TotalDelta is TotalAfter minus TotalBefore
	TotalDelta decimal.Decimal `json:"total_delta"`

	// DeltaPercent is the relative change of the total, in percent
	DeltaPercent decimal.Decimal `json:"delta_percent"`

	// Resources lists per-resource changes sorted by resource id
	Resources []ResourceDiff `json:"resources"`

	// AddedCount counts resources present only in head
	AddedCount int `json:"added_count"`

	// RemovedCount counts resources present only in base
	RemovedCount int `json:"removed_count"`

	// ChangedCount counts resources whose expected cost moved
	ChangedCount int `json:"changed_count"`

	// UnchangedCount counts resources with identical expected cost
	UnchangedCount int `json:"unchanged_count"`

	// ConfidenceBefore is the baseline overall confidence
	ConfidenceBefore types.Confidence `json:"confidence_before"`

	// ConfidenceAfter is the head overall confidence
	ConfidenceAfter types.Confidence `json:"confidence_after"`
}

// compareModels diffs two cost models resource by resource. Identity is
// the resource id, so renames show up as a remove plus an add.
func compareModels(base, head *types.Result) *Comparison {
	cmp := &Comparison{
		BaseResultID:     base.ID,
		HeadResultID:     head.ID,
		TotalBefore:      base.Model.Total.Scenario.Expected,
		TotalAfter:       head.Model.Total.Scenario.Expected,
		ConfidenceBefore: base.Model.OverallConfidence,
		ConfidenceAfter:  head.Model.OverallConfidence,
	}
	cmp.TotalDelta = cmp.TotalAfter.Sub(cmp.TotalBefore)
	if !cmp.TotalBefore.IsZero() {
		cmp.DeltaPercent = cmp.TotalDelta.Div(cmp.TotalBefore).Mul(decimal.NewFromInt(100)).Round(2)
	}

	baseByID := costsByID(base.Model.ResourceCosts)
	headByID := costsByID(head.Model.ResourceCosts)

	seen := make(map[string]bool, len(baseByID)+len(headByID))
	for id := range baseByID {
		seen[id] = true
	}
	for id := range headByID {
		seen[id] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		before, inBase := baseByID[id]
		after, inHead := headByID[id]

		diff := ResourceDiff{ResourceID: id}
		switch {
		case inBase && inHead:
			diff.Address = after.Address
			diff.Before = before.Scenario.Expected
			diff.After = after.Scenario.Expected
			diff.Delta = diff.After.Sub(diff.Before)
			if diff.Delta.IsZero() {
				diff.ChangeType = ChangeUnchanged
				cmp.UnchangedCount++
			} else {
				diff.ChangeType = ChangeModified
				cmp.ChangedCount++
			}
		case inHead:
			diff.Address = after.Address
			diff.After = after.Scenario.Expected
			diff.Delta = diff.After
			diff.ChangeType = ChangeAdded
			cmp.AddedCount++
		default:
			diff.Address = before.Address
			diff.Before = before.Scenario.Expected
			diff.Delta = diff.Before.Neg()
			diff.ChangeType = ChangeRemoved
			cmp.RemovedCount++
		}
		cmp.Resources = append(cmp.Resources, diff)
	}
	return cmp
}

func costsByID(costs []types.ResourceCost) map[string]types.ResourceCost {
	out := make(map[string]types.ResourceCost, len(costs))
	for _, c := range costs {
		out[c.ResourceID] = c
	}
	return out
}
