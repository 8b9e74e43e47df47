// Package metadata expands the normalized resource graph into the
// enriched graph by applying per-service adapters.
//
// An adapter declares the resource types it handles, enriches declared
// nodes with provider metadata from cached describe calls, and
// synthesizes the implicit billable sub-resources a declared resource
// brings with it. Enrichment failures downgrade a node's confidence but
// never fail the stage.
package metadata

import (
	"context"
	"strings"

	"costplan/core/types"
)

// Adapter is the per-service enrichment capability set.
type Adapter interface {
	// Name identifies the adapter in logs and metrics
	Name() string

	// Handles reports whether the adapter serves a resource type
	Handles(resourceType string) bool

	// Enrich fills EnrichedAttributes from provider metadata
	Enrich(ctx context.Context, node *types.ERGNode) error

	// DetectImplicit synthesizes billable sub-resources of the node
	DetectImplicit(ctx context.Context, node *types.ERGNode) ([]types.ERGNode, error)
}

// Registry dispatches resource types to adapters.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// AdapterFor returns the first adapter handling the resource type.
func (r *Registry) AdapterFor(resourceType string) (Adapter, bool) {
	for _, a := range r.adapters {
		if a.Handles(resourceType) {
			return a, true
		}
	}
	return nil, false
}

// Adapters returns the registered adapters.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

// ServiceOf maps a resource type to its billing service code.
func ServiceOf(resourceType string) string {
	switch {
	case strings.HasPrefix(resourceType, "aws_db_") || strings.HasPrefix(resourceType, "aws_rds_"):
		return "AmazonRDS"
	case strings.HasPrefix(resourceType, "aws_lb") || strings.HasPrefix(resourceType, "aws_alb") || strings.HasPrefix(resourceType, "aws_elb"):
		return "ElasticLoadBalancing"
	case strings.HasPrefix(resourceType, "aws_"):
		return "AmazonEC2"
	}
	return "unknown"
}
