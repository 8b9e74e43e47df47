package usage

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"costplan/core/types"
	"costplan/internal/logging"
)

// Modeler produces usage annotations from profiles and overrides.
type Modeler struct {
	store  *Store
	logger *zap.Logger
}

// NewModeler creates a modeler over a profile store.
func NewModeler(store *Store) *Modeler {
	return &Modeler{
		store:  store,
		logger: logging.Logger.With(zap.String("component", "usage_modeler")),
	}
}

// Request identifies one resource to annotate.
type Request struct {
	// ResourceID is the graph node id
	ResourceID string `json:"resource_id"`

	// Service is the billing service name
	Service string `json:"service"`

	// ResourceType selects the profile entry
	ResourceType string `json:"resource_type"`
}

// Annotate resolves usage for one resource against a named profile.
// Overrides apply in precedence order resource > service > global; an
// applied override collapses the scenario to a fixed value and is
// recorded. A missing profile entry yields an empty LOW annotation
// rather than an error.
func (m *Modeler) Annotate(profileName string, req Request, overrides []types.UsageOverride) (*types.UsageAnnotation, error) {
	profile, err := m.store.Get(profileName)
	if err != nil {
		return nil, err
	}

	ann := &types.UsageAnnotation{
		ResourceID:     req.ResourceID,
		Scenarios:      make(map[string]types.Scenario),
		ProfileName:    profile.Name,
		ProfileVersion: profile.Version,
	}

	entry, ok := profile.Entry(req.Service, req.ResourceType)
	if !ok {
		ann.Confidence = types.ConfidenceLow
		ann.Assumptions = []string{
			fmt.Sprintf("no usage entry for %s/%s in profile %q", req.Service, req.ResourceType, profile.Name),
		}
		return ann, nil
	}

	for name, dim := range entry.Dimensions {
		scenario := dim.Scenario()
		if !scenario.IsMonotonic() {
			m.logger.Warn("non-monotonic usage scenario normalized",
				zap.String("resource_id", req.ResourceID),
				zap.String("dimension", name))
			scenario = scenario.Normalized()
		}
		ann.Scenarios[name] = scenario
	}
	ann.Assumptions = append(ann.Assumptions, entry.Assumptions...)

	applyOverrides(ann, req, overrides)

	ann.Confidence = annotationConfidence(ann)
	return ann, nil
}

// applyOverrides walks the precedence tiers from weakest to strongest so
// a stronger tier always wins on the same dimension.
func applyOverrides(ann *types.UsageAnnotation, req Request, overrides []types.UsageOverride) {
	for _, scope := range []types.OverrideScope{
		types.OverrideScopeGlobal,
		types.OverrideScopeService,
		types.OverrideScopeResource,
	} {
		for _, o := range overrides {
			if o.Scope != scope || !overrideMatches(o, req) {
				continue
			}
			prev, ok := ann.Scenarios[o.Dimension]
			if !ok {
				continue
			}
			ann.Scenarios[o.Dimension] = types.Scenario{
				Min:      o.Value,
				Expected: o.Value,
				Max:      o.Value,
				Unit:     prev.Unit,
			}
			ann.OverridesApplied = append(ann.OverridesApplied,
				fmt.Sprintf("%s:%s=%s", scope, o.Dimension, o.Value.String()))
		}
	}
	sort.Strings(ann.OverridesApplied)
}

func overrideMatches(o types.UsageOverride, req Request) bool {
	switch o.Scope {
	case types.OverrideScopeResource:
		return o.ResourceID == req.ResourceID
	case types.OverrideScopeService:
		return o.Service == req.Service
	case types.OverrideScopeGlobal:
		return true
	}
	return false
}

// annotationConfidence is HIGH when an override was applied or every
// scenario is deterministic, otherwise MEDIUM.
func annotationConfidence(ann *types.UsageAnnotation) types.Confidence {
	if len(ann.OverridesApplied) > 0 {
		return types.ConfidenceHigh
	}
	deterministic := len(ann.Scenarios) > 0
	for _, s := range ann.Scenarios {
		if !s.IsDeterministic() {
			deterministic = false
			break
		}
	}
	if deterministic {
		return types.ConfidenceHigh
	}
	return types.ConfidenceMedium
}
