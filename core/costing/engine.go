// Package costing turns enriched resources, unit prices, and usage
// scenarios into the final cost model.
//
// All money arithmetic runs on exact decimals at a configured precision.
// The model is deterministic: identical inputs produce an identical
// determinism hash.
package costing

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"costplan/core/metadata"
	"costplan/core/pricing"
	"costplan/core/types"
	"costplan/internal/config"
	"costplan/internal/logging"
)

// Engine computes final cost models.
type Engine struct {
	precision int32
	currency  types.Currency
	logger    *zap.Logger
}

// NewEngine creates an engine from costing configuration.
func NewEngine(cfg config.CostingConfig) *Engine {
	return &Engine{
		precision: int32(cfg.DecimalPrecision),
		currency:  types.Currency(cfg.DefaultCurrency),
		logger:    logging.Logger.With(zap.String("component", "cost_engine")),
	}
}

// Compute builds the final cost model by matching enrichment, prices,
// and usage by resource id. Resources with no usable price or usage
// appear as zero-cost LOW-confidence entries rather than vanishing.
func (e *Engine) Compute(ctx context.Context, erg *types.ERG, prices map[string]*types.PricingResult, usage map[string]*types.UsageAnnotation) (*types.FCM, error) {
	log := logging.FromContext(ctx)

	costs := make([]types.ResourceCost, 0, len(erg.Nodes))
	for i := range erg.Nodes {
		costs = append(costs, e.resourceCost(log, &erg.Nodes[i], prices[erg.Nodes[i].ResourceID], usage[erg.Nodes[i].ResourceID]))
	}
	sort.Slice(costs, func(i, j int) bool { return costs[i].ResourceID < costs[j].ResourceID })

	fcm := &types.FCM{
		ResourceCosts:       costs,
		AggregatedByService: e.aggregate(costs, "service"),
		AggregatedByRegion:  e.aggregate(costs, "region"),
		Currency:            e.currency,
		OverallConfidence:   overallConfidence(costs),
		DeterminismHash:     DeterminismHash(costs),
	}

	total := types.Scenario{}
	for _, rc := range costs {
		total = total.Add(rc.Scenario)
	}
	fcm.Total = types.TotalCost{Scenario: total, Diff: e.diff(total)}

	log.Info("cost model computed",
		zap.Int("resources", len(costs)),
		zap.String("expected_total", total.Expected.String()),
		zap.String("determinism_hash", fcm.DeterminismHash))
	return fcm, nil
}

func (e *Engine) resourceCost(log *zap.Logger, node *types.ERGNode, price *types.PricingResult, ann *types.UsageAnnotation) types.ResourceCost {
	rc := types.ResourceCost{
		ResourceID: node.ResourceID,
		Address:    node.Address,
		Service:    metadata.ServiceOf(node.Type),
		Region:     node.Region,
		Currency:   e.currency,
		ConfidenceSources: map[string]types.Confidence{
			"enrichment": node.Confidence,
		},
	}

	if price == nil || len(price.Prices) == 0 || ann == nil || len(ann.Scenarios) == 0 {
		rc.Confidence = types.ConfidenceLow
		rc.ConfidenceSources["pricing"] = types.ConfidenceLow
		rc.ConfidenceSources["usage"] = types.ConfidenceLow
		return rc
	}
	rc.ConfidenceSources["pricing"] = price.Confidence
	rc.ConfidenceSources["usage"] = ann.Confidence

	dimensions := make([]string, 0, len(ann.Scenarios))
	for d := range ann.Scenarios {
		dimensions = append(dimensions, d)
	}
	sort.Strings(dimensions)

	resourceScenario := types.Scenario{}
	for _, dim := range dimensions {
		scenario := ann.Scenarios[dim]
		if !scenario.IsMonotonic() {
			log.Warn("non-monotonic usage scenario normalized",
				zap.String("resource_id", node.ResourceID),
				zap.String("dimension", dim))
			scenario = scenario.Normalized()
		}

		record := matchPrice(price.Prices, scenario.Unit)
		if !unitsCompatible(string(record.Unit), scenario.Unit) {
			log.Warn("unit mismatch between usage and price",
				zap.String("resource_id", node.ResourceID),
				zap.String("dimension", dim),
				zap.String("usage_unit", scenario.Unit),
				zap.String("price_unit", string(record.Unit)))
		}

		dimCost := types.Scenario{
			Min:      scenario.Min.Mul(record.UnitPrice).Round(e.precision),
			Expected: scenario.Expected.Mul(record.UnitPrice).Round(e.precision),
			Max:      scenario.Max.Mul(record.UnitPrice).Round(e.precision),
		}
		rc.Dimensions = append(rc.Dimensions, types.DimensionCost{
			Dimension: dim,
			Unit:      string(record.Unit),
			UnitPrice: record.UnitPrice,
			Scenario:  dimCost,
		})
		resourceScenario = resourceScenario.Add(dimCost)
	}

	rc.Scenario = resourceScenario
	rc.Diff = e.diff(resourceScenario)
	rc.Confidence = types.MinConfidence(node.Confidence, price.Confidence, ann.Confidence)
	return rc
}

// matchPrice picks the price record whose unit matches the usage unit,
// falling back to the first record.
func matchPrice(records []types.PriceRecord, usageUnit string) types.PriceRecord {
	for _, r := range records {
		if unitsCompatible(string(r.Unit), usageUnit) {
			return r
		}
	}
	return records[0]
}

// unitsCompatible folds both units through the alias table.
func unitsCompatible(priceUnit, usageUnit string) bool {
	return pricing.CanonicalUnit(priceUnit) == pricing.CanonicalUnit(usageUnit)
}

// diff computes the spread breakdown of a scenario. Percentages against
// a zero base are reported as zero.
func (e *Engine) diff(s types.Scenario) types.CostDiff {
	hundred := decimal.NewFromInt(100)
	d := types.CostDiff{
		ExpectedMinusMin: s.Expected.Sub(s.Min),
		MaxMinusExpected: s.Max.Sub(s.Expected),
		MaxMinusMin:      s.Max.Sub(s.Min),
	}
	if !s.Min.IsZero() {
		d.DownsidePct = s.Expected.Sub(s.Min).Div(s.Min).Mul(hundred).Round(e.precision)
	}
	if !s.Expected.IsZero() {
		d.UpsidePct = s.Max.Sub(s.Expected).Div(s.Expected).Mul(hundred).Round(e.precision)
		d.SpreadRatio = s.Max.Sub(s.Min).Div(s.Expected).Round(e.precision)
	}
	return d
}

// aggregate groups resource costs by service or region, summing the
// scenarios componentwise and taking the minimum member confidence.
func (e *Engine) aggregate(costs []types.ResourceCost, groupBy string) []types.AggregatedCost {
	groups := make(map[string]*types.AggregatedCost)
	for _, rc := range costs {
		key := rc.Service
		if groupBy == "region" {
			key = rc.Region
		}
		if key == "" {
			key = "unknown"
		}

		g, ok := groups[key]
		if !ok {
			g = &types.AggregatedCost{
				GroupBy:    groupBy,
				GroupValue: key,
				Confidence: rc.Confidence,
			}
			groups[key] = g
		}
		g.Scenario = g.Scenario.Add(rc.Scenario)
		g.ResourceCount++
		g.Confidence = types.MinConfidence(g.Confidence, rc.Confidence)
	}

	out := make([]types.AggregatedCost, 0, len(groups))
	for _, g := range groups {
		g.Diff = e.diff(g.Scenario)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupValue < out[j].GroupValue })
	return out
}

func overallConfidence(costs []types.ResourceCost) types.Confidence {
	overall := types.ConfidenceHigh
	for _, rc := range costs {
		overall = types.MinConfidence(overall, rc.Confidence)
	}
	return overall
}
