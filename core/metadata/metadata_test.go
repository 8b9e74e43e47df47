package metadata

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costplan/core/interpreter"
	"costplan/core/types"
	"costplan/internal/cache"
	"costplan/internal/errors"
)

var testTTLs = cache.NewTTLPolicy(time.Hour, nil)

type fakeEC2 struct {
	describeTypeCalls int
	typeErr           error
}

func (f *fakeEC2) DescribeInstanceTypes(ctx context.Context, params *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error) {
	f.describeTypeCalls++
	if f.typeErr != nil {
		return nil, f.typeErr
	}
	return &ec2.DescribeInstanceTypesOutput{
		InstanceTypes: []ec2types.InstanceTypeInfo{{
			InstanceType: params.InstanceTypes[0],
			VCpuInfo:     &ec2types.VCpuInfo{DefaultVCpus: aws.Int32(2)},
			MemoryInfo:   &ec2types.MemoryInfo{SizeInMiB: aws.Int64(1024)},
			ProcessorInfo: &ec2types.ProcessorInfo{
				SupportedArchitectures: []ec2types.ArchitectureType{ec2types.ArchitectureTypeX8664},
			},
		}},
	}, nil
}

func (f *fakeEC2) DescribeAvailabilityZones(ctx context.Context, params *ec2.DescribeAvailabilityZonesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error) {
	return &ec2.DescribeAvailabilityZonesOutput{
		AvailabilityZones: []ec2types.AvailabilityZone{
			{ZoneName: aws.String("us-east-1a")},
			{ZoneName: aws.String("us-east-1b")},
		},
	}, nil
}

type fakeELBV2 struct {
	lbErr error
}

func (f *fakeELBV2) DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error) {
	if f.lbErr != nil {
		return nil, f.lbErr
	}
	return &elbv2.DescribeLoadBalancersOutput{
		LoadBalancers: []elbv2types.LoadBalancer{{
			LoadBalancerArn: aws.String("arn:aws:elasticloadbalancing:us-east-1:123:loadbalancer/app/web/abc"),
			Type:            elbv2types.LoadBalancerTypeEnumApplication,
		}},
	}, nil
}

func (f *fakeELBV2) DescribeListeners(ctx context.Context, params *elbv2.DescribeListenersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeListenersOutput, error) {
	return &elbv2.DescribeListenersOutput{
		Listeners: []elbv2types.Listener{
			{Port: aws.Int32(80), Protocol: elbv2types.ProtocolEnumHttp},
			{Port: aws.Int32(443), Protocol: elbv2types.ProtocolEnumHttps},
		},
	}, nil
}

type fakeRDS struct{}

func (f *fakeRDS) DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	return &rds.DescribeDBInstancesOutput{
		DBInstances: []rdstypes.DBInstance{{
			DBInstanceIdentifier: params.DBInstanceIdentifier,
			AllocatedStorage:     aws.Int32(100),
			MultiAZ:              aws.Bool(true),
			StorageType:          aws.String("gp3"),
			EngineVersion:        aws.String("16.2"),
		}},
	}, nil
}

func (f *fakeRDS) DescribeDBSnapshots(ctx context.Context, params *rds.DescribeDBSnapshotsInput, optFns ...func(*rds.Options)) (*rds.DescribeDBSnapshotsOutput, error) {
	return &rds.DescribeDBSnapshotsOutput{
		DBSnapshots: []rdstypes.DBSnapshot{
			{DBSnapshotIdentifier: aws.String("snap-1"), AllocatedStorage: aws.Int32(100)},
		},
	}, nil
}

func declaredNode(resourceType, address string, attrs types.Attributes) types.NRGNode {
	return types.NRGNode{
		ResourceID: interpreter.ResourceID(address),
		Address:    types.ResourceAddress(address),
		Type:       resourceType,
		Provider:   types.ProviderAWS,
		Attributes: attrs,
		Quantity:   1,
		Confidence: types.ConfidenceHigh,
	}
}

func TestComputeAdapterEnrich(t *testing.T) {
	ec2api := &fakeEC2{}
	a := NewComputeAdapter(ec2api, cache.NewMemoryCache(16), testTTLs, "123456789012", "us-east-1")

	node := types.ERGNode{NRGNode: declaredNode("aws_instance", "aws_instance.web", types.Attributes{
		"instance_type":     "t3.micro",
		"availability_zone": "us-east-1a",
	})}

	require.NoError(t, a.Enrich(context.Background(), &node))
	assert.Equal(t, int32(2), node.EnrichedAttributes["vcpus"])
	assert.Equal(t, int64(1024), node.EnrichedAttributes["memory_mib"])
	assert.Equal(t, "x86_64", node.EnrichedAttributes["architecture"])
	assert.Equal(t, "us-east-1a", node.AvailabilityZone)
	assert.Equal(t, "us-east-1", node.Region)

	// Second enrichment of the same type hits the cache.
	other := types.ERGNode{NRGNode: declaredNode("aws_instance", "aws_instance.api", types.Attributes{
		"instance_type": "t3.micro",
	})}
	require.NoError(t, a.Enrich(context.Background(), &other))
	assert.Equal(t, 1, ec2api.describeTypeCalls)
}

func TestComputeAdapterMissingInstanceType(t *testing.T) {
	a := NewComputeAdapter(&fakeEC2{}, cache.NewMemoryCache(16), testTTLs, "123", "us-east-1")
	node := types.ERGNode{NRGNode: declaredNode("aws_instance", "aws_instance.web", types.Attributes{})}

	err := a.Enrich(context.Background(), &node)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeValidation))
}

func TestComputeAdapterImplicitNodes(t *testing.T) {
	a := NewComputeAdapter(&fakeEC2{}, cache.NewMemoryCache(16), testTTLs, "123", "us-east-1")

	node := types.ERGNode{NRGNode: declaredNode("aws_instance", "aws_instance.web", types.Attributes{
		"instance_type":               "t3.micro",
		"associate_public_ip_address": true,
		"ebs_block_device": []interface{}{
			map[string]interface{}{"volume_size": 50, "volume_type": "gp3"},
		},
	})}

	implicit, err := a.DetectImplicit(context.Background(), &node)
	require.NoError(t, err)

	kinds := make([]string, 0, len(implicit))
	for _, n := range implicit {
		kinds = append(kinds, n.Attributes.GetString("kind"))
		assert.Equal(t, types.ProvenanceImplicit, n.Provenance)
		assert.Equal(t, node.ResourceID, n.ParentResourceID)
		assert.Len(t, n.ResourceID, 16)
	}
	assert.Equal(t, []string{"root_volume", "block_device", "network_interface", "public_ip"}, kinds)
}

func TestComputeAdapterDeclaredRootVolumeNotDuplicated(t *testing.T) {
	a := NewComputeAdapter(&fakeEC2{}, cache.NewMemoryCache(16), testTTLs, "123", "us-east-1")

	node := types.ERGNode{NRGNode: declaredNode("aws_instance", "aws_instance.web", types.Attributes{
		"instance_type": "t3.micro",
		"root_block_device": []interface{}{
			map[string]interface{}{"volume_size": 100, "volume_type": "io2"},
		},
	})}

	implicit, err := a.DetectImplicit(context.Background(), &node)
	require.NoError(t, err)

	var rootVolumes []types.ERGNode
	for _, n := range implicit {
		if n.Attributes.GetString("kind") == "root_volume" {
			rootVolumes = append(rootVolumes, n)
		}
	}
	require.Len(t, rootVolumes, 1)
	assert.Equal(t, 100, rootVolumes[0].Attributes.GetInt("volume_size"))
}

func TestLoadBalancerAdapterDiscoveredListeners(t *testing.T) {
	a := NewLoadBalancerAdapter(&fakeELBV2{}, cache.NewMemoryCache(16), testTTLs, "123", "us-east-1")

	node := types.ERGNode{NRGNode: declaredNode("aws_lb", "aws_lb.app", types.Attributes{
		"name":               "web",
		"load_balancer_type": "application",
	})}

	implicit, err := a.DetectImplicit(context.Background(), &node)
	require.NoError(t, err)

	require.Len(t, implicit, 3)
	assert.Equal(t, "aws_lb_listener", implicit[0].Type)
	assert.Equal(t, int32(80), implicit[0].Attributes["port"])
	assert.Equal(t, "aws_lb_listener", implicit[1].Type)
	assert.Equal(t, "aws_lb_capacity_units", implicit[2].Type)
}

func TestLoadBalancerAdapterFallsBackWhenNotCreated(t *testing.T) {
	a := NewLoadBalancerAdapter(&fakeELBV2{lbErr: errors.New(errors.TypeUpstream, "down")},
		cache.NewMemoryCache(16), testTTLs, "123", "us-east-1")

	node := types.ERGNode{NRGNode: declaredNode("aws_lb", "aws_lb.app", types.Attributes{
		"name": "planned",
	})}

	require.NoError(t, a.Enrich(context.Background(), &node))

	implicit, err := a.DetectImplicit(context.Background(), &node)
	require.NoError(t, err)

	// One default listener plus the capacity tracker.
	require.Len(t, implicit, 2)
	assert.Equal(t, int32(443), implicit[0].Attributes["port"])
	assert.Equal(t, "aws_lb_capacity_units", implicit[1].Type)
}

func TestDatabaseAdapterImplicitNodes(t *testing.T) {
	a := NewDatabaseAdapter(&fakeRDS{}, cache.NewMemoryCache(16), testTTLs, "123", "us-east-1")

	node := types.ERGNode{NRGNode: declaredNode("aws_db_instance", "aws_db_instance.main", types.Attributes{
		"identifier":              "main-db",
		"instance_class":          "db.t3.medium",
		"engine":                  "postgres",
		"allocated_storage":       100,
		"backup_retention_period": 7,
		"multi_az":                true,
	})}

	require.NoError(t, a.Enrich(context.Background(), &node))
	assert.Equal(t, "16.2", node.EnrichedAttributes["live_engine_version"])

	implicit, err := a.DetectImplicit(context.Background(), &node)
	require.NoError(t, err)

	kinds := make([]string, 0, len(implicit))
	for _, n := range implicit {
		kinds = append(kinds, n.Attributes.GetString("kind"))
	}
	assert.Equal(t, []string{"storage", "backup_storage", "multi_az_replica", "snapshot"}, kinds)
}

func TestDatabaseAdapterNoBackupWhenRetentionZero(t *testing.T) {
	a := NewDatabaseAdapter(&fakeRDS{}, cache.NewMemoryCache(16), testTTLs, "123", "us-east-1")

	node := types.ERGNode{NRGNode: declaredNode("aws_db_instance", "aws_db_instance.main", types.Attributes{
		"instance_class":          "db.t3.medium",
		"allocated_storage":       20,
		"backup_retention_period": 0,
	})}

	implicit, err := a.DetectImplicit(context.Background(), &node)
	require.NoError(t, err)

	for _, n := range implicit {
		assert.NotEqual(t, "backup_storage", n.Attributes.GetString("kind"))
	}
}

func TestResolverEnrichGraph(t *testing.T) {
	mem := cache.NewMemoryCache(64)
	registry := NewRegistry(
		NewComputeAdapter(&fakeEC2{}, mem, testTTLs, "123", "us-east-1"),
		NewLoadBalancerAdapter(&fakeELBV2{}, mem, testTTLs, "123", "us-east-1"),
		NewDatabaseAdapter(&fakeRDS{}, mem, testTTLs, "123", "us-east-1"),
	)
	resolver := NewResolver(registry, mem, "123", 4)

	graph := &types.NRG{Nodes: []types.NRGNode{
		declaredNode("aws_instance", "aws_instance.web[0]", types.Attributes{"instance_type": "t3.micro"}),
		declaredNode("aws_lb", "aws_lb.app", types.Attributes{"name": "web"}),
		declaredNode("aws_s3_bucket", "aws_s3_bucket.assets", types.Attributes{"bucket": "assets"}),
	}}

	erg, meta, err := resolver.Enrich(context.Background(), graph)
	require.NoError(t, err)

	assert.Equal(t, 3, meta.Declared)
	assert.Greater(t, meta.Implicit, 0)
	assert.Equal(t, meta.Declared+meta.Implicit, meta.Total)
	// One instance-type describe plus the balancer and listener
	// describes; the listener rediscovery hits the cache.
	assert.Equal(t, 3, meta.APICalls)

	declared := erg.Declared()
	require.Len(t, declared, 3)
	for i, n := range declared {
		assert.Equal(t, graph.Nodes[i].ResourceID, n.ResourceID)
		assert.Equal(t, "123", n.AWSAccountID)
	}

	// Declared nodes come before implicit ones.
	for i, n := range erg.Nodes {
		if i < 3 {
			assert.Equal(t, types.ProvenanceDeclared, n.Provenance)
		} else {
			assert.Equal(t, types.ProvenanceImplicit, n.Provenance)
			assert.NotEmpty(t, n.ParentResourceID)
		}
	}
}

func TestResolverEnrichFailureDowngradesConfidence(t *testing.T) {
	mem := cache.NewMemoryCache(64)
	registry := NewRegistry(
		NewComputeAdapter(&fakeEC2{typeErr: errors.New(errors.TypeUpstream, "throttled")}, mem, testTTLs, "123", "us-east-1"),
	)
	resolver := NewResolver(registry, mem, "123", 2)

	graph := &types.NRG{Nodes: []types.NRGNode{
		declaredNode("aws_instance", "aws_instance.web", types.Attributes{"instance_type": "t3.micro"}),
	}}

	erg, meta, err := resolver.Enrich(context.Background(), graph)
	require.NoError(t, err)

	assert.Equal(t, 1, meta.FailedCount)
	assert.Equal(t, types.ConfidenceMedium, erg.Nodes[0].Confidence)
	// The stage survives and still synthesizes implicit nodes.
	assert.Greater(t, meta.Implicit, 0)
}

type recordingCache struct {
	cache.Cache
	mu   sync.Mutex
	ttls map[string]time.Duration
}

func (c *recordingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.ttls[key] = ttl
	c.mu.Unlock()
	return c.Cache.Set(ctx, key, value, ttl)
}

func (c *recordingCache) ttlFor(t *testing.T, substr string) time.Duration {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, ttl := range c.ttls {
		if strings.Contains(k, substr) {
			return ttl
		}
	}
	t.Fatalf("no cache write matching %q", substr)
	return 0
}

func TestAdapterCacheTTLsFollowPolicy(t *testing.T) {
	rec := &recordingCache{Cache: cache.NewMemoryCache(16), ttls: map[string]time.Duration{}}
	ttls := cache.NewTTLPolicy(time.Hour, map[string]time.Duration{"azs": 24 * time.Hour})
	a := NewComputeAdapter(&fakeEC2{}, rec, ttls, "123", "us-east-1")

	node := types.ERGNode{NRGNode: declaredNode("aws_instance", "aws_instance.web", types.Attributes{
		"instance_type": "t3.micro",
	})}
	require.NoError(t, a.Enrich(context.Background(), &node))

	_, err := a.AvailabilityZones(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Hour, rec.ttlFor(t, "instance-type:t3.micro"))
	assert.Equal(t, 24*time.Hour, rec.ttlFor(t, "availability-zones"))
}

func TestEnrichmentCountsDescribeCalls(t *testing.T) {
	mem := cache.NewMemoryCache(64)
	registry := NewRegistry(NewDatabaseAdapter(&fakeRDS{}, mem, testTTLs, "123", "us-east-1"))
	resolver := NewResolver(registry, mem, "123", 2)

	graph := &types.NRG{Nodes: []types.NRGNode{
		declaredNode("aws_db_instance", "aws_db_instance.main", types.Attributes{
			"identifier":        "main-db",
			"instance_class":    "db.t3.medium",
			"allocated_storage": 20,
		}),
	}}

	_, meta, err := resolver.Enrich(context.Background(), graph)
	require.NoError(t, err)
	// Instance describe plus snapshot discovery.
	assert.Equal(t, 2, meta.APICalls)

	// A warm cache means no further calls.
	_, meta, err = resolver.Enrich(context.Background(), graph)
	require.NoError(t, err)
	assert.Equal(t, 0, meta.APICalls)
}

func TestAvailabilityZonesCached(t *testing.T) {
	ec2api := &fakeEC2{}
	a := NewComputeAdapter(ec2api, cache.NewMemoryCache(16), testTTLs, "123", "us-east-1")

	zones, err := a.AvailabilityZones(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1a", "us-east-1b"}, zones)

	again, err := a.AvailabilityZones(context.Background())
	require.NoError(t, err)
	assert.Equal(t, zones, again)
}
