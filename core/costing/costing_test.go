package costing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costplan/core/types"
	"costplan/internal/config"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testEngine() *Engine {
	return NewEngine(config.CostingConfig{DecimalPrecision: 10, DefaultCurrency: "USD"})
}

func instanceNode(id, address string) types.ERGNode {
	return types.ERGNode{
		NRGNode: types.NRGNode{
			ResourceID: id,
			Address:    types.ResourceAddress(address),
			Type:       "aws_instance",
			Provider:   types.ProviderAWS,
			Region:     "us-east-1",
			Quantity:   1,
			Confidence: types.ConfidenceHigh,
		},
		Provenance: types.ProvenanceDeclared,
	}
}

func hourlyPrice(unitPrice string) *types.PricingResult {
	return &types.PricingResult{
		Prices: []types.PriceRecord{{
			Service:   "AmazonEC2",
			Unit:      types.UnitHour,
			UnitPrice: dec(unitPrice),
			Currency:  types.CurrencyUSD,
			SKU:       "SKU1",
		}},
		Confidence: types.ConfidenceHigh,
		SnapshotID: "snap",
	}
}

func hoursUsage(min, expected, max string) *types.UsageAnnotation {
	return &types.UsageAnnotation{
		Scenarios: map[string]types.Scenario{
			"hours": {Min: dec(min), Expected: dec(expected), Max: dec(max), Unit: "hours"},
		},
		Confidence: types.ConfidenceHigh,
	}
}

func TestComputeSingleResource(t *testing.T) {
	erg := &types.ERG{Nodes: []types.ERGNode{instanceNode("r1", "aws_instance.web")}}
	prices := map[string]*types.PricingResult{"r1": hourlyPrice("0.0104")}
	usage := map[string]*types.UsageAnnotation{"r1": hoursUsage("500", "730", "744")}

	fcm, err := testEngine().Compute(context.Background(), erg, prices, usage)
	require.NoError(t, err)

	require.Len(t, fcm.ResourceCosts, 1)
	rc := fcm.ResourceCosts[0]
	assert.Equal(t, "5.2", rc.Scenario.Min.String())
	assert.Equal(t, "7.592", rc.Scenario.Expected.String())
	assert.Equal(t, "7.7376", rc.Scenario.Max.String())
	assert.Equal(t, types.ConfidenceHigh, rc.Confidence)
	assert.Equal(t, "AmazonEC2", rc.Service)

	assert.Equal(t, "7.592", fcm.Total.Scenario.Expected.String())
	assert.Equal(t, types.ConfidenceHigh, fcm.OverallConfidence)
	assert.Len(t, fcm.DeterminismHash, 16)
}

func TestComputeConfidenceTakesMinimum(t *testing.T) {
	node := instanceNode("r1", "aws_instance.web")
	node.Confidence = types.ConfidenceMedium
	erg := &types.ERG{Nodes: []types.ERGNode{node}}

	price := hourlyPrice("0.01")
	price.Confidence = types.ConfidenceLow

	fcm, err := testEngine().Compute(context.Background(), erg,
		map[string]*types.PricingResult{"r1": price},
		map[string]*types.UsageAnnotation{"r1": hoursUsage("1", "2", "3")})
	require.NoError(t, err)

	rc := fcm.ResourceCosts[0]
	assert.Equal(t, types.ConfidenceLow, rc.Confidence)
	assert.Equal(t, types.ConfidenceMedium, rc.ConfidenceSources["enrichment"])
	assert.Equal(t, types.ConfidenceLow, rc.ConfidenceSources["pricing"])
	assert.Equal(t, types.ConfidenceLow, fcm.OverallConfidence)
}

func TestComputeMissingInputsYieldZeroCostLow(t *testing.T) {
	erg := &types.ERG{Nodes: []types.ERGNode{instanceNode("r1", "aws_instance.web")}}

	fcm, err := testEngine().Compute(context.Background(), erg, nil, nil)
	require.NoError(t, err)

	rc := fcm.ResourceCosts[0]
	assert.True(t, rc.Scenario.Expected.IsZero())
	assert.Equal(t, types.ConfidenceLow, rc.Confidence)
	assert.Empty(t, rc.Dimensions)
}

func TestComputeNormalizesNonMonotonicUsage(t *testing.T) {
	erg := &types.ERG{Nodes: []types.ERGNode{instanceNode("r1", "aws_instance.web")}}
	usage := map[string]*types.UsageAnnotation{"r1": {
		Scenarios: map[string]types.Scenario{
			"hours": {Min: dec("744"), Expected: dec("100"), Max: dec("10"), Unit: "hours"},
		},
		Confidence: types.ConfidenceHigh,
	}}

	fcm, err := testEngine().Compute(context.Background(), erg,
		map[string]*types.PricingResult{"r1": hourlyPrice("1")}, usage)
	require.NoError(t, err)

	rc := fcm.ResourceCosts[0]
	assert.Equal(t, "10", rc.Scenario.Min.String())
	assert.Equal(t, "100", rc.Scenario.Expected.String())
	assert.Equal(t, "744", rc.Scenario.Max.String())
	assert.True(t, rc.Scenario.IsMonotonic())
}

func TestComputeDiffs(t *testing.T) {
	erg := &types.ERG{Nodes: []types.ERGNode{instanceNode("r1", "aws_instance.web")}}

	fcm, err := testEngine().Compute(context.Background(), erg,
		map[string]*types.PricingResult{"r1": hourlyPrice("1")},
		map[string]*types.UsageAnnotation{"r1": hoursUsage("100", "200", "300")})
	require.NoError(t, err)

	d := fcm.ResourceCosts[0].Diff
	assert.Equal(t, "100", d.ExpectedMinusMin.String())
	assert.Equal(t, "100", d.MaxMinusExpected.String())
	assert.Equal(t, "200", d.MaxMinusMin.String())
	assert.Equal(t, "100", d.DownsidePct.String())
	assert.Equal(t, "50", d.UpsidePct.String())
	assert.Equal(t, "1", d.SpreadRatio.String())
}

func TestComputeDiffZeroGuards(t *testing.T) {
	e := testEngine()
	d := e.diff(types.Scenario{Min: dec("0"), Expected: dec("0"), Max: dec("0")})
	assert.True(t, d.DownsidePct.IsZero())
	assert.True(t, d.UpsidePct.IsZero())
	assert.True(t, d.SpreadRatio.IsZero())
}

func TestComputeAggregations(t *testing.T) {
	db := types.ERGNode{
		NRGNode: types.NRGNode{
			ResourceID: "r2",
			Address:    "aws_db_instance.main",
			Type:       "aws_db_instance",
			Region:     "eu-west-1",
			Quantity:   1,
			Confidence: types.ConfidenceMedium,
		},
		Provenance: types.ProvenanceDeclared,
	}
	erg := &types.ERG{Nodes: []types.ERGNode{instanceNode("r1", "aws_instance.web"), db}}

	prices := map[string]*types.PricingResult{
		"r1": hourlyPrice("1"),
		"r2": hourlyPrice("2"),
	}
	usage := map[string]*types.UsageAnnotation{
		"r1": hoursUsage("10", "10", "10"),
		"r2": hoursUsage("10", "10", "10"),
	}

	fcm, err := testEngine().Compute(context.Background(), erg, prices, usage)
	require.NoError(t, err)

	require.Len(t, fcm.AggregatedByService, 2)
	assert.Equal(t, "AmazonEC2", fcm.AggregatedByService[0].GroupValue)
	assert.Equal(t, "AmazonRDS", fcm.AggregatedByService[1].GroupValue)
	assert.Equal(t, "20", fcm.AggregatedByService[1].Scenario.Expected.String())

	require.Len(t, fcm.AggregatedByRegion, 2)
	assert.Equal(t, "eu-west-1", fcm.AggregatedByRegion[0].GroupValue)
	assert.Equal(t, "us-east-1", fcm.AggregatedByRegion[1].GroupValue)

	assert.Equal(t, "30", fcm.Total.Scenario.Expected.String())
}

func TestDeterminismHashStable(t *testing.T) {
	costs := []types.ResourceCost{
		{ResourceID: "b", Scenario: types.Scenario{Min: dec("1"), Expected: dec("2"), Max: dec("3")}},
		{ResourceID: "a", Scenario: types.Scenario{Min: dec("4"), Expected: dec("5"), Max: dec("6")}},
	}
	reversed := []types.ResourceCost{costs[1], costs[0]}

	h1 := DeterminismHash(costs)
	h2 := DeterminismHash(reversed)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)

	changed := []types.ResourceCost{
		{ResourceID: "a", Scenario: types.Scenario{Min: dec("4"), Expected: dec("5"), Max: dec("7")}},
		costs[0],
	}
	assert.NotEqual(t, h1, DeterminismHash(changed))
}

func TestComputeIsDeterministic(t *testing.T) {
	erg := &types.ERG{Nodes: []types.ERGNode{instanceNode("r1", "aws_instance.web")}}
	prices := map[string]*types.PricingResult{"r1": hourlyPrice("0.0104")}
	usage := map[string]*types.UsageAnnotation{"r1": hoursUsage("500", "730", "744")}

	first, err := testEngine().Compute(context.Background(), erg, prices, usage)
	require.NoError(t, err)
	second, err := testEngine().Compute(context.Background(), erg, prices, usage)
	require.NoError(t, err)

	assert.Equal(t, first.DeterminismHash, second.DeterminismHash)
	assert.Equal(t, first.Total, second.Total)
}
