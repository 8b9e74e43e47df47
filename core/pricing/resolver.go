package pricing

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"costplan/core/types"
	"costplan/internal/errors"
	"costplan/internal/logging"
)

// unitAliases maps catalog unit spellings to canonical billing units.
var unitAliases = map[string]types.PriceUnit{
	"hrs":      types.UnitHour,
	"hour":     types.UnitHour,
	"hours":    types.UnitHour,
	"gb-mo":    types.UnitGBMonth,
	"gb-month": types.UnitGBMonth,
	"gb":       types.UnitGB,
	"requests": types.UnitRequest,
	"request":  types.UnitRequest,
	"lcu-hrs":  types.UnitLCUHour,
	"lcu-hour": types.UnitLCUHour,

	"connection-hrs":   types.UnitConnectionHour,
	"connection-hour":  types.UnitConnectionHour,
	"connection-hours": types.UnitConnectionHour,
}

// CanonicalUnit maps a catalog unit string to the canonical unit. Unknown
// units pass through unchanged so the cost engine can still warn on them.
func CanonicalUnit(raw string) types.PriceUnit {
	if u, ok := unitAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return u
	}
	return types.PriceUnit(raw)
}

// Resolver matches lookup requests against catalog products.
type Resolver struct {
	catalogs *CatalogClient
	logger   *zap.Logger
}

// NewResolver creates a pricing resolver over a catalog client.
func NewResolver(catalogs *CatalogClient) *Resolver {
	return &Resolver{
		catalogs: catalogs,
		logger:   logging.Logger.With(zap.String("component", "pricing_resolver")),
	}
}

// Lookup resolves a request to canonical unit prices. The result carries
// the catalog snapshot id and a confidence reflecting match quality:
// HIGH needs exactly one perfect attribute match with a usage type and a
// unit, MEDIUM covers ambiguous or partial matches, LOW means the
// type-only fallback set was returned.
func (r *Resolver) Lookup(ctx context.Context, lookup types.PricingLookup) (*types.PricingResult, error) {
	location, ok := NormalizeRegion(lookup.Region)
	if !ok {
		return nil, errors.Validation("unknown region: " + lookup.Region)
	}

	catalog, err := r.catalogs.Fetch(ctx, lookup.Service, lookup.Region)
	if err != nil {
		return nil, err
	}

	candidates := selectProducts(catalog.Document, location, lookup.ResourceType)
	if len(candidates) == 0 {
		return nil, errors.NotFound("pricing",
			lookup.Service+"/"+lookup.ResourceType+"@"+lookup.Region)
	}

	perfect, partial := scoreProducts(candidates, lookup.Attributes)

	matched := perfect
	fallback := false
	switch {
	case len(perfect) > 0:
	case len(partial) > 0:
		matched = partial
	default:
		matched = candidates
		fallback = true
	}

	records := priceRecords(catalog, matched, lookup)
	if len(records) == 0 {
		return nil, errors.NotFound("pricing",
			lookup.Service+"/"+lookup.ResourceType+"@"+lookup.Region)
	}

	confidence := types.ConfidenceMedium
	switch {
	case fallback:
		confidence = types.ConfidenceLow
	case len(perfect) == 1 && records[0].UsageType != "" && records[0].Unit != "":
		confidence = types.ConfidenceHigh
	}

	if fallback {
		r.logger.Warn("no attribute match, returning type-only fallback",
			zap.String("service", lookup.Service),
			zap.String("resource_type", lookup.ResourceType),
			zap.String("region", lookup.Region))
	}

	return &types.PricingResult{
		Prices:       records,
		Confidence:   confidence,
		SnapshotID:   catalog.SnapshotID,
		FallbackUsed: fallback,
	}, nil
}

// selectProducts filters catalog products by location and product family,
// in stable sku order.
func selectProducts(doc *OfferDocument, location, resourceType string) []Product {
	var out []Product
	for _, p := range doc.Products {
		if !strings.EqualFold(p.ProductFamily, resourceType) {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(p.Attributes["location"]), location) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

// scoreProducts splits candidates into perfect matches (every request
// attribute equal after case folding and trimming) and partial matches
// (more than half the request attributes equal).
func scoreProducts(candidates []Product, attrs map[string]string) (perfect, partial []Product) {
	if len(attrs) == 0 {
		return nil, nil
	}
	for _, p := range candidates {
		matchCount := 0
		for k, want := range attrs {
			got, ok := p.Attributes[k]
			if ok && strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want)) {
				matchCount++
			}
		}
		score := float64(matchCount) / float64(len(attrs))
		switch {
		case score == 1.0:
			perfect = append(perfect, p)
		case score > 0.5:
			partial = append(partial, p)
		}
	}
	return perfect, partial
}

// priceRecords expands matched products into one record per on-demand
// price dimension, in stable sku and usage-type order.
func priceRecords(catalog *Catalog, matched []Product, lookup types.PricingLookup) []types.PriceRecord {
	var records []types.PriceRecord

	for _, product := range matched {
		terms, ok := catalog.Document.Terms.OnDemand[product.SKU]
		if !ok {
			continue
		}

		for _, tk := range sortedTermKeys(terms) {
			term := terms[tk]
			effective := parseEffectiveDate(term.EffectiveDate)

			dimKeys := make([]string, 0, len(term.PriceDimensions))
			for dk := range term.PriceDimensions {
				dimKeys = append(dimKeys, dk)
			}
			sort.Strings(dimKeys)

			for _, dk := range dimKeys {
				dim := term.PriceDimensions[dk]
				usd, ok := dim.PricePerUnit["USD"]
				if !ok {
					continue
				}
				price, err := decimal.NewFromString(usd)
				if err != nil {
					continue
				}

				records = append(records, types.PriceRecord{
					Service:       lookup.Service,
					ResourceType:  product.ProductFamily,
					UsageType:     product.Attributes["usagetype"],
					Region:        lookup.Region,
					Unit:          CanonicalUnit(dim.Unit),
					UnitPrice:     price,
					Currency:      types.CurrencyUSD,
					Attributes:    product.Attributes,
					SKU:           product.SKU,
					EffectiveDate: effective,
				})
			}
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].SKU != records[j].SKU {
			return records[i].SKU < records[j].SKU
		}
		return records[i].UsageType < records[j].UsageType
	})
	return records
}

func sortedTermKeys(m map[string]Term) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseEffectiveDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
