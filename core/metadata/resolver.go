package metadata

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"costplan/core/types"
	"costplan/internal/cache"
	"costplan/internal/logging"
	"costplan/internal/metrics"
)

// apiCallCounterKey carries the per-enrichment describe-call counter so
// concurrent jobs do not share counts.
type apiCallCounterKey struct{}

func withAPICallCounter(ctx context.Context, counter *atomic.Int64) context.Context {
	return context.WithValue(ctx, apiCallCounterKey{}, counter)
}

// countDescribe records one provider describe call against the process
// metric and, when an enrichment is in flight, its call counter.
func countDescribe(ctx context.Context, service string) {
	metrics.DescribeCalls.WithLabelValues(service).Inc()
	if counter, ok := ctx.Value(apiCallCounterKey{}).(*atomic.Int64); ok {
		counter.Add(1)
	}
}

// Resolver runs the adapter set over a normalized graph.
type Resolver struct {
	registry    *Registry
	cache       cache.Cache
	accountID   string
	concurrency int
	logger      *zap.Logger
}

// NewResolver creates a resolver. concurrency bounds in-flight adapter
// work; values below 1 are treated as 1.
func NewResolver(registry *Registry, c cache.Cache, accountID string, concurrency int) *Resolver {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Resolver{
		registry:    registry,
		cache:       c,
		accountID:   accountID,
		concurrency: concurrency,
		logger:      logging.Logger.With(zap.String("component", "metadata_resolver")),
	}
}

// Enrich expands an NRG into an ERG. Declared nodes come first in input
// order, implicit nodes follow grouped under their parents. A failing
// adapter downgrades the node's confidence and moves on.
func (r *Resolver) Enrich(ctx context.Context, graph *types.NRG) (*types.ERG, *types.EnrichmentMetadata, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	var apiCalls atomic.Int64
	ctx = withAPICallCounter(ctx, &apiCalls)

	declared := make([]types.ERGNode, len(graph.Nodes))
	implicitPerNode := make([][]types.ERGNode, len(graph.Nodes))
	var enriched, failed int64
	var countMu sync.Mutex

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	for i := range graph.Nodes {
		declared[i] = types.ERGNode{
			NRGNode:    graph.Nodes[i],
			Provenance: types.ProvenanceDeclared,
			AWSAccountID: r.accountID,
		}

		adapter, ok := r.registry.AdapterFor(graph.Nodes[i].Type)
		if !ok {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, adapter Adapter) {
			defer wg.Done()
			defer func() { <-sem }()

			node := &declared[i]
			if err := adapter.Enrich(ctx, node); err != nil {
				node.Confidence = downgrade(node.Confidence)
				countMu.Lock()
				failed++
				countMu.Unlock()
				log.Warn("enrichment failed, confidence downgraded",
					zap.String("adapter", adapter.Name()),
					zap.String("address", string(node.Address)),
					zap.Error(err))
			} else {
				countMu.Lock()
				enriched++
				countMu.Unlock()
			}

			implicit, err := adapter.DetectImplicit(ctx, node)
			if err != nil {
				log.Warn("implicit detection failed",
					zap.String("adapter", adapter.Name()),
					zap.String("address", string(node.Address)),
					zap.Error(err))
				return
			}
			implicitPerNode[i] = implicit
		}(i, adapter)
	}
	wg.Wait()

	erg := &types.ERG{Nodes: declared}
	implicitCount := 0
	for i := range implicitPerNode {
		erg.Nodes = append(erg.Nodes, implicitPerNode[i]...)
		implicitCount += len(implicitPerNode[i])
	}

	meta := &types.EnrichmentMetadata{
		Total:         len(erg.Nodes),
		Declared:      len(declared),
		Implicit:      implicitCount,
		EnrichedCount: int(enriched),
		FailedCount:   int(failed),
		APICalls:      int(apiCalls.Load()),
		CacheHitRate:  r.cache.HitRate(),
		DurationMs:    time.Since(start).Milliseconds(),
	}

	log.Info("graph enriched",
		zap.Int("declared", meta.Declared),
		zap.Int("implicit", meta.Implicit),
		zap.Int("failed", meta.FailedCount))
	return erg, meta, nil
}

// downgrade lowers a confidence by one level, bottoming out at LOW.
func downgrade(c types.Confidence) types.Confidence {
	switch c {
	case types.ConfidenceHigh:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}
