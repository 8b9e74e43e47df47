// Package types - Resource graph types
//
// The Normalized Resource Graph (NRG) is the provider-neutral,
// multiplicity-expanded representation of a planned change. The Enriched
// Resource Graph (ERG) adds provider-derived attributes and implicit
// billable sub-resources.
package types

import "time"

// Provenance records how an ERG node came to exist
type Provenance string

const (
	// ProvenanceDeclared means the node was present in the plan document
	ProvenanceDeclared Provenance = "DECLARED"

	// ProvenanceImplicit means the node was synthesized as a billable
	// sub-resource of a declared node
	ProvenanceImplicit Provenance = "IMPLICIT"

	// ProvenanceDerived means the node was computed from other nodes
	ProvenanceDerived Provenance = "DERIVED"
)

// NRGNode is one multiplicity-expanded resource instance
type NRGNode struct {
	// ResourceID is the deterministic hash of the full indexed address
	ResourceID string `json:"resource_id"`

	// Address is the full address with multiplicity index
	Address ResourceAddress `json:"address"`

	// Type is the resource type (e.g. "aws_instance")
	Type string `json:"type"`

	// Provider is the cloud provider
	Provider Provider `json:"provider"`

	// Region is the deployment region when known
	Region string `json:"region,omitempty"`

	// Attributes holds the known attribute values
	Attributes Attributes `json:"attributes"`

	// UnknownAttributes lists attribute names unresolved at plan time,
	// in stable sorted order
	UnknownAttributes []string `json:"unknown_attributes,omitempty"`

	// Quantity is always 1; multiplicity is expressed by expansion
	Quantity int `json:"quantity"`

	// ModulePath is the ordered module nesting of the resource
	ModulePath []string `json:"module_path,omitempty"`

	// Dependencies lists resource_ids this node depends on
	Dependencies []string `json:"dependencies,omitempty"`

	// Confidence reflects the known/unknown attribute ratio
	Confidence Confidence `json:"confidence"`
}

// NRG is the normalized resource graph
type NRG struct {
	// Nodes are the expanded resource instances, in deterministic order
	Nodes []NRGNode `json:"nodes"`

	// MissingReferences records dependency addresses that could not be
	// resolved to a node; informational, never fatal
	MissingReferences []string `json:"missing_references,omitempty"`
}

// Node returns the node with the given resource id
func (g *NRG) Node(resourceID string) (*NRGNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ResourceID == resourceID {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// InterpretationMetadata summarizes one interpretation run
type InterpretationMetadata struct {
	// PlanHash is the stable hash of the plan document
	PlanHash string `json:"plan_hash"`

	// TotalResources is the expanded node count
	TotalResources int `json:"total_resources"`

	// ByType counts nodes per resource type
	ByType map[string]int `json:"by_type"`

	// UnknownCount is the total unresolved attribute count
	UnknownCount int `json:"unknown_count"`

	// MaxModuleDepth is the deepest module nesting observed
	MaxModuleDepth int `json:"max_module_depth"`

	// Timestamp is when the interpretation ran
	Timestamp time.Time `json:"timestamp"`
}

// ERGNode is an NRG node plus provider enrichment
type ERGNode struct {
	NRGNode

	// EnrichedAttributes holds attributes learned from describe calls
	EnrichedAttributes Attributes `json:"enriched_attributes,omitempty"`

	// Provenance records whether the node was declared or synthesized
	Provenance Provenance `json:"provenance"`

	// ParentResourceID links an implicit node to its declared parent
	ParentResourceID string `json:"parent_resource_id,omitempty"`

	// AWSAccountID is the owning account when resolved
	AWSAccountID string `json:"aws_account_id,omitempty"`

	// AvailabilityZone is the placement zone when resolved
	AvailabilityZone string `json:"availability_zone,omitempty"`
}

// ERG is the enriched resource graph
type ERG struct {
	// Nodes are declared and implicit nodes, declared first
	Nodes []ERGNode `json:"nodes"`
}

// Declared returns only the declared nodes
func (g *ERG) Declared() []ERGNode {
	out := make([]ERGNode, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Provenance == ProvenanceDeclared {
			out = append(out, n)
		}
	}
	return out
}

// EnrichmentMetadata summarizes one enrichment run
type EnrichmentMetadata struct {
	Total         int     `json:"total"`
	Declared      int     `json:"declared"`
	Implicit      int     `json:"implicit"`
	EnrichedCount int     `json:"enriched_count"`
	FailedCount   int     `json:"failed_count"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
	APICalls      int     `json:"api_calls"`
	DurationMs    int64   `json:"duration_ms"`
}
