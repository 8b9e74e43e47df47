package metadata

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"go.uber.org/zap"

	"costplan/core/interpreter"
	"costplan/core/types"
	"costplan/internal/cache"
	"costplan/internal/errors"
	"costplan/internal/logging"
)

// ELBV2API is the subset of the ELBv2 client the adapter needs.
type ELBV2API interface {
	DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error)
	DescribeListeners(ctx context.Context, params *elbv2.DescribeListenersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeListenersOutput, error)
}

// listenerInfo is the cached shape of a discovered listener
type listenerInfo struct {
	Port     int32  `json:"port"`
	Protocol string `json:"protocol"`
}

// LoadBalancerAdapter enriches load balancers and synthesizes listener
// nodes plus the capacity-unit tracker.
type LoadBalancerAdapter struct {
	client    ELBV2API
	cache     cache.Cache
	ttls      cache.TTLPolicy
	accountID string
	region    string
	logger    *zap.Logger
}

// NewLoadBalancerAdapter creates the ELBv2 adapter.
func NewLoadBalancerAdapter(client ELBV2API, c cache.Cache, ttls cache.TTLPolicy, accountID, region string) *LoadBalancerAdapter {
	return &LoadBalancerAdapter{
		client:    client,
		cache:     c,
		ttls:      ttls,
		accountID: accountID,
		region:    region,
		logger:    logging.Logger.With(zap.String("adapter", "loadbalancer")),
	}
}

// Name implements Adapter
func (a *LoadBalancerAdapter) Name() string { return "loadbalancer" }

// Handles implements Adapter
func (a *LoadBalancerAdapter) Handles(resourceType string) bool {
	return resourceType == "aws_lb" || resourceType == "aws_alb"
}

// Enrich records the balancer type and, when the balancer already
// exists, its discovered state.
func (a *LoadBalancerAdapter) Enrich(ctx context.Context, node *types.ERGNode) error {
	if node.EnrichedAttributes == nil {
		node.EnrichedAttributes = make(types.Attributes)
	}

	lbType := node.Attributes.GetString("load_balancer_type")
	if lbType == "" {
		lbType = "application"
	}
	node.EnrichedAttributes["load_balancer_type"] = lbType
	if node.Region == "" {
		node.Region = a.region
	}

	name := node.Attributes.GetString("name")
	if name == "" {
		return nil
	}

	listeners, err := a.discoverListeners(ctx, name)
	if err != nil {
		// Planned balancers do not exist yet; declared listener blocks
		// still drive implicit synthesis.
		a.logger.Debug("listener discovery skipped",
			zap.String("name", name), zap.Error(err))
		return nil
	}
	node.EnrichedAttributes["discovered_listener_count"] = len(listeners)
	return nil
}

// DetectImplicit synthesizes one listener node per discovered listener
// (falling back to declared listener blocks, then to a single default)
// plus a capacity-unit tracker node.
func (a *LoadBalancerAdapter) DetectImplicit(ctx context.Context, node *types.ERGNode) ([]types.ERGNode, error) {
	var out []types.ERGNode

	listeners := a.listenersFor(ctx, node)
	for i, l := range listeners {
		out = append(out, implicitFor(node, "listener", i, types.Attributes{
			"kind":     "listener",
			"port":     l.Port,
			"protocol": l.Protocol,
		}, "aws_lb_listener"))
	}

	out = append(out, implicitFor(node, "lcu_tracker", 0, types.Attributes{
		"kind": "lcu_tracker",
	}, "aws_lb_capacity_units"))
	return out, nil
}

func (a *LoadBalancerAdapter) listenersFor(ctx context.Context, node *types.ERGNode) []listenerInfo {
	if name := node.Attributes.GetString("name"); name != "" {
		if discovered, err := a.discoverListeners(ctx, name); err == nil && len(discovered) > 0 {
			return discovered
		}
	}

	declared := node.Attributes.GetMapList("listener")
	if len(declared) == 0 {
		return []listenerInfo{{Port: 443, Protocol: "HTTPS"}}
	}

	out := make([]listenerInfo, 0, len(declared))
	for _, block := range declared {
		out = append(out, listenerInfo{
			Port:     int32(block.GetInt("port")),
			Protocol: block.GetString("protocol"),
		})
	}
	return out
}

func (a *LoadBalancerAdapter) discoverListeners(ctx context.Context, name string) ([]listenerInfo, error) {
	key := cache.Key("metadata", a.accountID, a.region, "aws_lb", "listeners:"+name, nil)
	if raw, ok := a.cache.Get(ctx, key); ok {
		var cached []listenerInfo
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	countDescribe(ctx, "elbv2")
	lbs, err := a.client.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		Names: []string{name},
	})
	if err != nil {
		return nil, errors.Upstream("describing load balancer", err).
			WithContext("name", name)
	}
	if len(lbs.LoadBalancers) == 0 || lbs.LoadBalancers[0].LoadBalancerArn == nil {
		return nil, errors.NotFound("load balancer", name)
	}

	countDescribe(ctx, "elbv2")
	res, err := a.client.DescribeListeners(ctx, &elbv2.DescribeListenersInput{
		LoadBalancerArn: lbs.LoadBalancers[0].LoadBalancerArn,
	})
	if err != nil {
		return nil, errors.Upstream("describing listeners", err).
			WithContext("name", name)
	}

	listeners := make([]listenerInfo, 0, len(res.Listeners))
	for _, l := range res.Listeners {
		listeners = append(listeners, listenerInfo{
			Port:     aws.ToInt32(l.Port),
			Protocol: string(l.Protocol),
		})
	}

	if raw, err := json.Marshal(listeners); err == nil {
		if err := a.cache.Set(ctx, key, raw, a.ttls.For("load_balancer")); err != nil {
			a.logger.Warn("listener cache write failed", zap.Error(err))
		}
	}
	return listeners, nil
}

// implicitFor builds an implicit child node of a declared parent.
func implicitFor(parent *types.ERGNode, kind string, index int, attrs types.Attributes, resourceType string) types.ERGNode {
	return types.ERGNode{
		NRGNode: types.NRGNode{
			ResourceID: interpreter.ImplicitResourceID(parent.ResourceID, kind, index),
			Address:    parent.Address,
			Type:       resourceType,
			Provider:   parent.Provider,
			Region:     parent.Region,
			Attributes: attrs,
			Quantity:   1,
			ModulePath: parent.ModulePath,
			Confidence: parent.Confidence,
		},
		Provenance:       types.ProvenanceImplicit,
		ParentResourceID: parent.ResourceID,
		AWSAccountID:     parent.AWSAccountID,
		AvailabilityZone: parent.AvailabilityZone,
	}
}
