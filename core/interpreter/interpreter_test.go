package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costplan/core/types"
)

const fixturePlan = `{
  "format_version": "1.2",
  "planned_values": {
    "root_module": {
      "resources": [
        {
          "address": "aws_instance.web[0]",
          "mode": "managed",
          "type": "aws_instance",
          "name": "web",
          "index": 0,
          "provider_name": "registry.terraform.io/hashicorp/aws",
          "values": {"instance_type": "t3.micro", "ami": "ami-123", "tenancy": "default"}
        },
        {
          "address": "aws_instance.web[1]",
          "mode": "managed",
          "type": "aws_instance",
          "name": "web",
          "index": 1,
          "provider_name": "registry.terraform.io/hashicorp/aws",
          "values": {"instance_type": "t3.micro", "ami": "ami-123", "tenancy": "default"}
        },
        {
          "address": "aws_lb.app",
          "mode": "managed",
          "type": "aws_lb",
          "name": "app",
          "provider_name": "registry.terraform.io/hashicorp/aws",
          "values": {"load_balancer_type": "application", "internal": false}
        }
      ],
      "child_modules": [
        {
          "address": "module.db",
          "resources": [
            {
              "address": "module.db.aws_db_instance.main",
              "mode": "managed",
              "type": "aws_db_instance",
              "name": "main",
              "provider_name": "registry.terraform.io/hashicorp/aws",
              "values": {"instance_class": "db.t3.medium", "engine": "postgres", "allocated_storage": 100}
            }
          ]
        }
      ]
    }
  },
  "resource_changes": [
    {
      "address": "aws_lb.app",
      "type": "aws_lb",
      "depends_on": ["aws_instance.web"],
      "change": {
        "actions": ["create"],
        "after_unknown": {"arn": true, "dns_name": true}
      }
    }
  ]
}`

func TestInterpretExpandsMultiplicity(t *testing.T) {
	graph, meta, err := Interpret([]byte(fixturePlan))
	require.NoError(t, err)

	require.Len(t, graph.Nodes, 4)
	assert.Equal(t, 4, meta.TotalResources)
	assert.Equal(t, 2, meta.ByType["aws_instance"])

	// Indexed instances stay separate nodes with quantity 1.
	addresses := make([]string, 0, len(graph.Nodes))
	for _, n := range graph.Nodes {
		addresses = append(addresses, string(n.Address))
		assert.Equal(t, 1, n.Quantity)
	}
	assert.Contains(t, addresses, "aws_instance.web[0]")
	assert.Contains(t, addresses, "aws_instance.web[1]")
}

func TestInterpretDeterministic(t *testing.T) {
	first, firstMeta, err := Interpret([]byte(fixturePlan))
	require.NoError(t, err)
	second, secondMeta, err := Interpret([]byte(fixturePlan))
	require.NoError(t, err)

	assert.Equal(t, firstMeta.PlanHash, secondMeta.PlanHash)
	require.Equal(t, len(first.Nodes), len(second.Nodes))
	for i := range first.Nodes {
		assert.Equal(t, first.Nodes[i].ResourceID, second.Nodes[i].ResourceID)
		assert.Equal(t, first.Nodes[i].Address, second.Nodes[i].Address)
		assert.Equal(t, first.Nodes[i].UnknownAttributes, second.Nodes[i].UnknownAttributes)
	}
}

func TestInterpretUnknownAttributes(t *testing.T) {
	graph, meta, err := Interpret([]byte(fixturePlan))
	require.NoError(t, err)

	var lb *types.NRGNode
	for i := range graph.Nodes {
		if graph.Nodes[i].Type == "aws_lb" {
			lb = &graph.Nodes[i]
		}
	}
	require.NotNil(t, lb)
	assert.Equal(t, []string{"arn", "dns_name"}, lb.UnknownAttributes)
	assert.Equal(t, 2, meta.UnknownCount)
	assert.False(t, lb.Attributes.Has("arn"))
}

func TestInterpretDependencyPicksFirstExpandedInstance(t *testing.T) {
	graph, _, err := Interpret([]byte(fixturePlan))
	require.NoError(t, err)

	var lb *types.NRGNode
	for i := range graph.Nodes {
		if graph.Nodes[i].Type == "aws_lb" {
			lb = &graph.Nodes[i]
		}
	}
	require.NotNil(t, lb)
	require.Len(t, lb.Dependencies, 1)
	assert.Equal(t, ResourceID("aws_instance.web[0]"), lb.Dependencies[0])
	assert.Empty(t, graph.MissingReferences)
}

func TestInterpretRecordsMissingReference(t *testing.T) {
	plan := `{
  "planned_values": {"root_module": {"resources": [
    {"address": "aws_lb.app", "mode": "managed", "type": "aws_lb", "name": "app",
     "provider_name": "registry.terraform.io/hashicorp/aws", "values": {}}
  ]}},
  "resource_changes": [
    {"address": "aws_lb.app", "type": "aws_lb", "depends_on": ["aws_instance.gone"],
     "change": {"actions": ["create"]}}
  ]}`
	graph, _, err := Interpret([]byte(plan))
	require.NoError(t, err)
	assert.Equal(t, []string{"aws_instance.gone"}, graph.MissingReferences)
}

func TestInterpretModulePathAndDepth(t *testing.T) {
	graph, meta, err := Interpret([]byte(fixturePlan))
	require.NoError(t, err)

	var db *types.NRGNode
	for i := range graph.Nodes {
		if graph.Nodes[i].Type == "aws_db_instance" {
			db = &graph.Nodes[i]
		}
	}
	require.NotNil(t, db)
	assert.Equal(t, []string{"db"}, db.ModulePath)
	assert.Equal(t, 1, meta.MaxModuleDepth)
}

func TestInterpretConfidenceThresholds(t *testing.T) {
	assert.Equal(t, types.ConfidenceHigh, attributeConfidence(9, 1))
	assert.Equal(t, types.ConfidenceHigh, attributeConfidence(10, 0))
	assert.Equal(t, types.ConfidenceMedium, attributeConfidence(5, 5))
	assert.Equal(t, types.ConfidenceMedium, attributeConfidence(8, 2))
	assert.Equal(t, types.ConfidenceLow, attributeConfidence(4, 6))
	assert.Equal(t, types.ConfidenceHigh, attributeConfidence(0, 0))
}

func TestInterpretMalformedDocument(t *testing.T) {
	_, _, err := Interpret([]byte("{not json"))
	require.Error(t, err)
}

func TestInterpretSkipsDataSources(t *testing.T) {
	plan := `{
  "planned_values": {"root_module": {"resources": [
    {"address": "data.aws_ami.latest", "mode": "data", "type": "aws_ami", "name": "latest",
     "provider_name": "registry.terraform.io/hashicorp/aws", "values": {"id": "ami-1"}}
  ]}}}`
	graph, _, err := Interpret([]byte(plan))
	require.NoError(t, err)
	assert.Empty(t, graph.Nodes)
}

func TestImplicitResourceIDStable(t *testing.T) {
	a := ImplicitResourceID("abc123", "root_volume", 0)
	b := ImplicitResourceID("abc123", "root_volume", 0)
	c := ImplicitResourceID("abc123", "root_volume", 1)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
