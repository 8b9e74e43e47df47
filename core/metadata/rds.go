package metadata

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"go.uber.org/zap"

	"costplan/core/types"
	"costplan/internal/cache"
	"costplan/internal/errors"
	"costplan/internal/logging"
)

// RDSAPI is the subset of the RDS client the database adapter needs.
type RDSAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	DescribeDBSnapshots(ctx context.Context, params *rds.DescribeDBSnapshotsInput, optFns ...func(*rds.Options)) (*rds.DescribeDBSnapshotsOutput, error)
}

// snapshotInfo is the cached shape of a discovered snapshot
type snapshotInfo struct {
	Identifier  string `json:"identifier"`
	AllocatedGB int32  `json:"allocated_gb"`
}

// DatabaseAdapter enriches database instances and synthesizes their
// storage, backup, replica, and snapshot sub-resources.
type DatabaseAdapter struct {
	client    RDSAPI
	cache     cache.Cache
	ttls      cache.TTLPolicy
	accountID string
	region    string
	logger    *zap.Logger
}

// NewDatabaseAdapter creates the RDS adapter.
func NewDatabaseAdapter(client RDSAPI, c cache.Cache, ttls cache.TTLPolicy, accountID, region string) *DatabaseAdapter {
	return &DatabaseAdapter{
		client:    client,
		cache:     c,
		ttls:      ttls,
		accountID: accountID,
		region:    region,
		logger:    logging.Logger.With(zap.String("adapter", "database")),
	}
}

// Name implements Adapter
func (a *DatabaseAdapter) Name() string { return "database" }

// Handles implements Adapter
func (a *DatabaseAdapter) Handles(resourceType string) bool {
	return resourceType == "aws_db_instance"
}

// Enrich records engine and storage details, merging in live instance
// state when the database already exists.
func (a *DatabaseAdapter) Enrich(ctx context.Context, node *types.ERGNode) error {
	if node.EnrichedAttributes == nil {
		node.EnrichedAttributes = make(types.Attributes)
	}

	node.EnrichedAttributes["engine"] = node.Attributes.GetString("engine")
	node.EnrichedAttributes["instance_class"] = node.Attributes.GetString("instance_class")
	if node.Region == "" {
		node.Region = a.region
	}

	identifier := node.Attributes.GetString("identifier")
	if identifier == "" {
		return nil
	}

	live, err := a.describeInstance(ctx, identifier)
	if err != nil {
		a.logger.Debug("live database lookup skipped",
			zap.String("identifier", identifier), zap.Error(err))
		return nil
	}
	for k, v := range live {
		node.EnrichedAttributes[k] = v
	}
	return nil
}

// DetectImplicit synthesizes the billable sub-resources of a database:
// a storage node, a backup-storage node when retention is positive, a
// multi-AZ replica when enabled, and one node per discovered snapshot.
func (a *DatabaseAdapter) DetectImplicit(ctx context.Context, node *types.ERGNode) ([]types.ERGNode, error) {
	var out []types.ERGNode

	storageGB := node.Attributes.GetInt("allocated_storage")
	storageType := node.Attributes.GetString("storage_type")
	if storageType == "" {
		storageType = "gp3"
	}
	out = append(out, implicitFor(node, "storage", 0, types.Attributes{
		"kind":         "storage",
		"allocated_gb": storageGB,
		"storage_type": storageType,
	}, "aws_db_storage"))

	if retention := node.Attributes.GetInt("backup_retention_period"); retention > 0 {
		out = append(out, implicitFor(node, "backup_storage", 0, types.Attributes{
			"kind":           "backup_storage",
			"retention_days": retention,
			"allocated_gb":   storageGB,
		}, "aws_db_backup_storage"))
	}

	if node.Attributes.GetBool("multi_az") {
		out = append(out, implicitFor(node, "multi_az_replica", 0, types.Attributes{
			"kind":           "multi_az_replica",
			"instance_class": node.Attributes.GetString("instance_class"),
		}, "aws_db_replica"))
	}

	if identifier := node.Attributes.GetString("identifier"); identifier != "" {
		snapshots, err := a.discoverSnapshots(ctx, identifier)
		if err != nil {
			a.logger.Debug("snapshot discovery skipped",
				zap.String("identifier", identifier), zap.Error(err))
		}
		for i, snap := range snapshots {
			out = append(out, implicitFor(node, "snapshot", i, types.Attributes{
				"kind":         "snapshot",
				"identifier":   snap.Identifier,
				"allocated_gb": snap.AllocatedGB,
			}, "aws_db_snapshot"))
		}
	}
	return out, nil
}

func (a *DatabaseAdapter) describeInstance(ctx context.Context, identifier string) (map[string]interface{}, error) {
	key := cache.Key("metadata", a.accountID, a.region, "aws_db_instance", "instance:"+identifier, nil)
	if raw, ok := a.cache.Get(ctx, key); ok {
		var cached map[string]interface{}
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	countDescribe(ctx, "rds")
	out, err := a.client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(identifier),
	})
	if err != nil {
		return nil, errors.Upstream("describing database instance", err).
			WithContext("identifier", identifier)
	}
	if len(out.DBInstances) == 0 {
		return nil, errors.NotFound("database instance", identifier)
	}

	db := out.DBInstances[0]
	live := map[string]interface{}{
		"live_allocated_storage": aws.ToInt32(db.AllocatedStorage),
		"live_multi_az":          aws.ToBool(db.MultiAZ),
		"live_storage_type":      aws.ToString(db.StorageType),
		"live_engine_version":    aws.ToString(db.EngineVersion),
	}

	if raw, err := json.Marshal(live); err == nil {
		if err := a.cache.Set(ctx, key, raw, a.ttls.For("db_instance")); err != nil {
			a.logger.Warn("database cache write failed", zap.Error(err))
		}
	}
	return live, nil
}

func (a *DatabaseAdapter) discoverSnapshots(ctx context.Context, identifier string) ([]snapshotInfo, error) {
	key := cache.Key("metadata", a.accountID, a.region, "aws_db_instance", "snapshots:"+identifier, nil)
	if raw, ok := a.cache.Get(ctx, key); ok {
		var cached []snapshotInfo
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	countDescribe(ctx, "rds")
	out, err := a.client.DescribeDBSnapshots(ctx, &rds.DescribeDBSnapshotsInput{
		DBInstanceIdentifier: aws.String(identifier),
	})
	if err != nil {
		return nil, errors.Upstream("describing database snapshots", err).
			WithContext("identifier", identifier)
	}

	snapshots := make([]snapshotInfo, 0, len(out.DBSnapshots))
	for _, snap := range out.DBSnapshots {
		snapshots = append(snapshots, snapshotInfo{
			Identifier:  aws.ToString(snap.DBSnapshotIdentifier),
			AllocatedGB: aws.ToInt32(snap.AllocatedStorage),
		})
	}

	if raw, err := json.Marshal(snapshots); err == nil {
		if err := a.cache.Set(ctx, key, raw, a.ttls.For("db_instance")); err != nil {
			a.logger.Warn("snapshot cache write failed", zap.Error(err))
		}
	}
	return snapshots, nil
}
