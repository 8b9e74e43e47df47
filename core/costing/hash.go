package costing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"costplan/core/types"
)

// scenarioDigest is the canonical per-resource shape hashed into the
// determinism hash. Field order is fixed and values are rendered as
// strings so the JSON form is stable.
type scenarioDigest struct {
	ResourceID string `json:"resource_id"`
	Min        string `json:"min"`
	Expected   string `json:"expected"`
	Max        string `json:"max"`
}

// DeterminismHash digests the sorted per-resource scenarios. Two cost
// models with identical inputs hash identically.
func DeterminismHash(costs []types.ResourceCost) string {
	digests := make([]scenarioDigest, 0, len(costs))
	for _, rc := range costs {
		digests = append(digests, scenarioDigest{
			ResourceID: rc.ResourceID,
			Min:        rc.Scenario.Min.String(),
			Expected:   rc.Scenario.Expected.String(),
			Max:        rc.Scenario.Max.String(),
		})
	}
	sort.Slice(digests, func(i, j int) bool { return digests[i].ResourceID < digests[j].ResourceID })

	canonical, err := json.Marshal(digests)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16]
}
