package metadata

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"costplan/core/types"
	"costplan/internal/cache"
	"costplan/internal/errors"
	"costplan/internal/logging"
)

// EC2API is the subset of the EC2 client the compute adapter needs.
type EC2API interface {
	DescribeInstanceTypes(ctx context.Context, params *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error)
	DescribeAvailabilityZones(ctx context.Context, params *ec2.DescribeAvailabilityZonesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error)
}

// instanceTypeInfo is the cached shape of a describe-instance-types hit
type instanceTypeInfo struct {
	VCPUs        int32  `json:"vcpus"`
	MemoryMiB    int64  `json:"memory_mib"`
	Architecture string `json:"architecture"`
}

// ComputeAdapter enriches compute instances and synthesizes their
// implicit volumes, network interface, and public address.
type ComputeAdapter struct {
	client    EC2API
	cache     cache.Cache
	ttls      cache.TTLPolicy
	accountID string
	region    string
	logger    *zap.Logger
}

// NewComputeAdapter creates the EC2 adapter.
func NewComputeAdapter(client EC2API, c cache.Cache, ttls cache.TTLPolicy, accountID, region string) *ComputeAdapter {
	return &ComputeAdapter{
		client:    client,
		cache:     c,
		ttls:      ttls,
		accountID: accountID,
		region:    region,
		logger:    logging.Logger.With(zap.String("adapter", "compute")),
	}
}

// Name implements Adapter
func (a *ComputeAdapter) Name() string { return "compute" }

// Handles implements Adapter
func (a *ComputeAdapter) Handles(resourceType string) bool {
	return resourceType == "aws_instance"
}

// Enrich looks up instance-type metadata through the cache and records
// vCPU, memory, and architecture on the node.
func (a *ComputeAdapter) Enrich(ctx context.Context, node *types.ERGNode) error {
	instanceType := node.Attributes.GetString("instance_type")
	if instanceType == "" {
		return errors.Validation("instance has no instance_type attribute")
	}

	info, err := a.instanceTypeInfo(ctx, instanceType)
	if err != nil {
		return err
	}

	if node.EnrichedAttributes == nil {
		node.EnrichedAttributes = make(types.Attributes)
	}
	node.EnrichedAttributes["vcpus"] = info.VCPUs
	node.EnrichedAttributes["memory_mib"] = info.MemoryMiB
	node.EnrichedAttributes["architecture"] = info.Architecture

	if az := node.Attributes.GetString("availability_zone"); az != "" {
		node.AvailabilityZone = az
	}
	if node.Region == "" {
		node.Region = a.region
	}
	return nil
}

// DetectImplicit synthesizes the billable sub-resources of an instance:
// a root volume unless a root block device is declared, one volume per
// extra block device, a network interface, and a public address when
// requested.
func (a *ComputeAdapter) DetectImplicit(ctx context.Context, node *types.ERGNode) ([]types.ERGNode, error) {
	var out []types.ERGNode

	rootDevices := node.Attributes.GetMapList("root_block_device")
	if len(rootDevices) == 0 {
		out = append(out, implicitFor(node, "root_volume", 0, types.Attributes{
			"kind":        "root_volume",
			"volume_type": "gp3",
			"volume_size": 8,
		}, "aws_ebs_volume"))
	} else {
		for i, dev := range rootDevices {
			attrs := dev.Clone()
			attrs["kind"] = "root_volume"
			out = append(out, implicitFor(node, "root_volume", i, attrs, "aws_ebs_volume"))
		}
	}

	for i, dev := range node.Attributes.GetMapList("ebs_block_device") {
		attrs := dev.Clone()
		attrs["kind"] = "block_device"
		out = append(out, implicitFor(node, "block_device", i, attrs, "aws_ebs_volume"))
	}

	out = append(out, implicitFor(node, "network_interface", 0, types.Attributes{
		"kind": "network_interface",
	}, "aws_network_interface"))

	if node.Attributes.GetBool("associate_public_ip_address") {
		out = append(out, implicitFor(node, "public_ip", 0, types.Attributes{
			"kind": "public_ip",
		}, "aws_eip"))
	}
	return out, nil
}

func (a *ComputeAdapter) instanceTypeInfo(ctx context.Context, instanceType string) (*instanceTypeInfo, error) {
	key := cache.Key("metadata", a.accountID, a.region, "aws_instance", "instance-type:"+instanceType, nil)
	if raw, ok := a.cache.Get(ctx, key); ok {
		var info instanceTypeInfo
		if err := json.Unmarshal(raw, &info); err == nil {
			return &info, nil
		}
	}

	countDescribe(ctx, "ec2")
	out, err := a.client.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{
		InstanceTypes: []ec2types.InstanceType{ec2types.InstanceType(instanceType)},
	})
	if err != nil {
		return nil, errors.Upstream("describing instance type", err).
			WithContext("instance_type", instanceType)
	}
	if len(out.InstanceTypes) == 0 {
		return nil, errors.NotFound("instance type", instanceType)
	}

	detail := out.InstanceTypes[0]
	info := instanceTypeInfo{}
	if detail.VCpuInfo != nil && detail.VCpuInfo.DefaultVCpus != nil {
		info.VCPUs = *detail.VCpuInfo.DefaultVCpus
	}
	if detail.MemoryInfo != nil && detail.MemoryInfo.SizeInMiB != nil {
		info.MemoryMiB = *detail.MemoryInfo.SizeInMiB
	}
	if detail.ProcessorInfo != nil && len(detail.ProcessorInfo.SupportedArchitectures) > 0 {
		info.Architecture = string(detail.ProcessorInfo.SupportedArchitectures[0])
	}

	if raw, err := json.Marshal(info); err == nil {
		if err := a.cache.Set(ctx, key, raw, a.ttls.For("instance_type")); err != nil {
			a.logger.Warn("instance type cache write failed", zap.Error(err))
		}
	}
	return &info, nil
}

// AvailabilityZones lists the zones of the adapter's region, cached
// under the "azs" TTL class.
func (a *ComputeAdapter) AvailabilityZones(ctx context.Context) ([]string, error) {
	key := cache.Key("metadata", a.accountID, a.region, "region", "availability-zones", nil)
	if raw, ok := a.cache.Get(ctx, key); ok {
		var zones []string
		if err := json.Unmarshal(raw, &zones); err == nil {
			return zones, nil
		}
	}

	countDescribe(ctx, "ec2")
	out, err := a.client.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{})
	if err != nil {
		return nil, errors.Upstream("describing availability zones", err)
	}

	zones := make([]string, 0, len(out.AvailabilityZones))
	for _, az := range out.AvailabilityZones {
		if az.ZoneName != nil {
			zones = append(zones, *az.ZoneName)
		}
	}

	if raw, err := json.Marshal(zones); err == nil {
		if err := a.cache.Set(ctx, key, raw, a.ttls.For("azs")); err != nil {
			a.logger.Warn("availability zone cache write failed", zap.Error(err))
		}
	}
	return zones, nil
}
