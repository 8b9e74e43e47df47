package interpreter

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"costplan/core/types"
	"costplan/internal/errors"
	"costplan/internal/logging"
)

// Confidence thresholds over the known-attribute ratio.
const (
	highConfidenceRatio   = 0.9
	mediumConfidenceRatio = 0.5
)

// Interpret transforms plan document bytes into the NRG plus metadata.
// Two runs over the same bytes produce identical resource ids, node order,
// and plan hash.
func Interpret(raw []byte) (*types.NRG, *types.InterpretationMetadata, error) {
	doc, err := ParsePlan(raw)
	if err != nil {
		return nil, nil, errors.Transform("malformed plan document", err)
	}

	unknownByAddress := make(map[string]map[string]interface{}, len(doc.ResourceChanges))
	for _, change := range doc.ResourceChanges {
		if len(change.Change.AfterUnknown) > 0 {
			unknownByAddress[change.Address] = change.Change.AfterUnknown
		}
	}

	nodes := collectNodes(doc.PlannedValues.RootModule, nil, unknownByAddress)

	// Deterministic node order: sort by full address.
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Address < nodes[j].Address })

	missing := resolveDependencies(doc.ResourceChanges, nodes)

	graph := &types.NRG{Nodes: nodes, MissingReferences: missing}
	meta := buildMetadata(raw, graph)
	return graph, meta, nil
}

// collectNodes walks the planned-values tree depth-first, emitting one
// node per declared instance.
func collectNodes(module ModuleValues, modulePath []string, unknownByAddress map[string]map[string]interface{}) []types.NRGNode {
	var nodes []types.NRGNode

	for _, inst := range module.Resources {
		if inst.Mode != "" && inst.Mode != "managed" {
			continue
		}
		nodes = append(nodes, buildNode(inst, modulePath, unknownByAddress[inst.Address]))
	}

	for _, child := range module.ChildModules {
		childPath := append(append([]string{}, modulePath...), moduleName(child.Address))
		nodes = append(nodes, collectNodes(child, childPath, unknownByAddress)...)
	}
	return nodes
}

func buildNode(inst ResourceInstance, modulePath []string, afterUnknown map[string]interface{}) types.NRGNode {
	attrs := make(types.Attributes, len(inst.Values))
	for k, v := range inst.Values {
		if v != nil {
			attrs[k] = v
		}
	}

	// Attribute names whose value was not resolvable at plan time: the
	// after_unknown entries marked true, plus any null planned value.
	// Sorted so the list is stable across runs.
	unknownSet := make(map[string]bool)
	for k, v := range afterUnknown {
		if flag, ok := v.(bool); ok && flag {
			unknownSet[k] = true
		}
	}
	for k, v := range inst.Values {
		if v == nil {
			unknownSet[k] = true
		}
	}
	unknown := make([]string, 0, len(unknownSet))
	for k := range unknownSet {
		delete(attrs, k)
		unknown = append(unknown, k)
	}
	sort.Strings(unknown)
	if len(unknown) == 0 {
		unknown = nil
	}

	return types.NRGNode{
		ResourceID:        ResourceID(inst.Address),
		Address:           types.ResourceAddress(inst.Address),
		Type:              inst.Type,
		Provider:          providerOf(inst.ProviderName, inst.Type),
		Region:            attrs.GetString("region"),
		Attributes:        attrs,
		UnknownAttributes: unknown,
		Quantity:          1,
		ModulePath:        modulePath,
		Confidence:        attributeConfidence(len(attrs), len(unknown)),
	}
}

// ResourceID is the stable hash of a full indexed address.
func ResourceID(address string) string {
	sum := sha256.Sum256([]byte(address))
	return hex.EncodeToString(sum[:])[:16]
}

// ImplicitResourceID derives a stable id for a synthesized sub-resource.
func ImplicitResourceID(parentID, kind string, index int) string {
	sum := sha256.Sum256([]byte(parentID + ":" + kind + ":" + itoa(index)))
	return hex.EncodeToString(sum[:])[:16]
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}

func attributeConfidence(known, unknown int) types.Confidence {
	total := known + unknown
	if total == 0 {
		return types.ConfidenceHigh
	}
	ratio := float64(known) / float64(total)
	switch {
	case ratio >= highConfidenceRatio:
		return types.ConfidenceHigh
	case ratio >= mediumConfidenceRatio:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

// providerOf maps "registry.terraform.io/hashicorp/aws" or a resource
// type prefix to the provider.
func providerOf(providerName, resourceType string) types.Provider {
	name := providerName
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		if i := strings.IndexByte(resourceType, '_'); i > 0 {
			name = resourceType[:i]
		}
	}
	if name == "aws" {
		return types.ProviderAWS
	}
	if name == "" {
		return types.ProviderUnknown
	}
	return types.Provider(name)
}

// moduleName extracts the trailing name from a module address like
// "module.network.module.subnets".
func moduleName(address string) string {
	parts := strings.Split(address, ".")
	if len(parts) == 0 {
		return address
	}
	return parts[len(parts)-1]
}

// resolveDependencies maps depends_on addresses from the resource-changes
// section onto node resource ids. A dependency on a base address that
// expanded into multiple indexed instances resolves to the first instance
// in address order. Unresolved references are recorded, never fatal.
func resolveDependencies(changes []ResourceChange, nodes []types.NRGNode) []string {
	byAddress := make(map[string]int, len(nodes))
	for i, n := range nodes {
		byAddress[string(n.Address)] = i
	}

	var missing []string
	for _, change := range changes {
		if len(change.DependsOn) == 0 {
			continue
		}
		targets := expandedTargets(change.Address, byAddress, nodes)
		if len(targets) == 0 {
			continue
		}

		var depIDs []string
		for _, dep := range change.DependsOn {
			depAddr := qualifyAddress(change.ModuleAddress, dep)
			if idx, ok := byAddress[depAddr]; ok {
				depIDs = append(depIDs, nodes[idx].ResourceID)
				continue
			}
			if id, ok := firstExpandedInstance(depAddr, nodes); ok {
				depIDs = append(depIDs, id)
				continue
			}
			missing = append(missing, depAddr)
			logging.Logger.Debug("unresolved dependency reference",
				zap.String("from", change.Address), zap.String("to", depAddr))
		}

		for _, idx := range targets {
			nodes[idx].Dependencies = append(nodes[idx].Dependencies, depIDs...)
		}
	}
	sort.Strings(missing)
	return dedupe(missing)
}

// expandedTargets finds the node indexes a change address refers to:
// the exact instance, or every indexed instance of a base address.
func expandedTargets(address string, byAddress map[string]int, nodes []types.NRGNode) []int {
	if idx, ok := byAddress[address]; ok {
		return []int{idx}
	}
	var out []int
	prefix := address + "["
	for i, n := range nodes {
		if strings.HasPrefix(string(n.Address), prefix) {
			out = append(out, i)
		}
	}
	return out
}

// firstExpandedInstance picks the first indexed instance of a base
// address in deterministic address order. Nodes arrive pre-sorted.
func firstExpandedInstance(baseAddr string, nodes []types.NRGNode) (string, bool) {
	prefix := baseAddr + "["
	for _, n := range nodes {
		if strings.HasPrefix(string(n.Address), prefix) {
			return n.ResourceID, true
		}
	}
	return "", false
}

func qualifyAddress(moduleAddress, dep string) string {
	if moduleAddress == "" || strings.HasPrefix(dep, "module.") {
		return dep
	}
	return moduleAddress + "." + dep
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	out := items[:1]
	for _, s := range items[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

func buildMetadata(raw []byte, graph *types.NRG) *types.InterpretationMetadata {
	byType := make(map[string]int)
	unknownCount := 0
	maxDepth := 0
	for _, n := range graph.Nodes {
		byType[n.Type]++
		unknownCount += len(n.UnknownAttributes)
		if len(n.ModulePath) > maxDepth {
			maxDepth = len(n.ModulePath)
		}
	}

	sum := sha256.Sum256(raw)
	return &types.InterpretationMetadata{
		PlanHash:       hex.EncodeToString(sum[:])[:16],
		TotalResources: len(graph.Nodes),
		ByType:         byType,
		UnknownCount:   unknownCount,
		MaxModuleDepth: maxDepth,
		Timestamp:      time.Now().UTC(),
	}
}
