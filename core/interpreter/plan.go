// Package interpreter transforms a planned-change document into the
// Normalized Resource Graph.
//
// Interpretation is a pure function: no I/O, no clock beyond the metadata
// timestamp, and identical input bytes always produce identical node ids
// and plan hash.
package interpreter

import (
	"encoding/json"
	"fmt"
)

// PlanDocument is the JSON plan emitted by the IaC tool's show step.
// Only the sections interpretation needs are modeled.
type PlanDocument struct {
	FormatVersion   string           `json:"format_version"`
	PlannedValues   PlannedValues    `json:"planned_values"`
	ResourceChanges []ResourceChange `json:"resource_changes"`
}

// PlannedValues holds the planned state tree
type PlannedValues struct {
	RootModule ModuleValues `json:"root_module"`
}

// ModuleValues is one module's resources plus nested child modules
type ModuleValues struct {
	Address      string             `json:"address,omitempty"`
	Resources    []ResourceInstance `json:"resources,omitempty"`
	ChildModules []ModuleValues     `json:"child_modules,omitempty"`
}

// ResourceInstance is one planned resource instance. Index carries the
// count index or for_each key for expanded resources.
type ResourceInstance struct {
	Address      string                 `json:"address"`
	Mode         string                 `json:"mode"`
	Type         string                 `json:"type"`
	Name         string                 `json:"name"`
	Index        interface{}            `json:"index,omitempty"`
	ProviderName string                 `json:"provider_name"`
	Values       map[string]interface{} `json:"values"`
}

// ResourceChange is one entry of the resource-changes section
type ResourceChange struct {
	Address       string   `json:"address"`
	ModuleAddress string   `json:"module_address,omitempty"`
	Type          string   `json:"type"`
	DependsOn     []string `json:"depends_on,omitempty"`
	Change        Change   `json:"change"`
}

// Change holds the planned change detail for one resource
type Change struct {
	Actions      []string               `json:"actions"`
	After        map[string]interface{} `json:"after,omitempty"`
	AfterUnknown map[string]interface{} `json:"after_unknown,omitempty"`
}

// ParsePlan decodes a plan document, failing with a transform error shape
// on malformed input.
func ParsePlan(raw []byte) (*PlanDocument, error) {
	var doc PlanDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding plan document: %w", err)
	}
	return &doc, nil
}
