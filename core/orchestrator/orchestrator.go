package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"costplan/core/interpreter"
	"costplan/core/metadata"
	"costplan/core/types"
	"costplan/core/usage"
	"costplan/internal/config"
	"costplan/internal/errors"
	"costplan/internal/logging"
	"costplan/internal/metrics"
	"costplan/internal/retry"
)

// JobStore is the persistence surface the orchestrator needs for jobs.
type JobStore interface {
	Create(ctx context.Context, job *types.Job) error
	Get(ctx context.Context, jobID string) (*types.Job, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*types.Job, error)
	Transition(ctx context.Context, jobID string, from, to types.JobState) error
	SetError(ctx context.Context, jobID, message string) error
	SetPlanReference(ctx context.Context, jobID, reference string) error
	SetResultReference(ctx context.Context, jobID, reference string) error
	IncrementRetries(ctx context.Context, jobID string) error
}

// StageLog records stage attempts append-only.
type StageLog interface {
	Begin(ctx context.Context, exec *types.StageExecution) (int64, error)
	Finish(ctx context.Context, id int64, status types.StageStatus, outputDigest, errorMessage string) error
}

// Enricher turns a normalized graph into an enriched one.
type Enricher interface {
	Enrich(ctx context.Context, graph *types.NRG) (*types.ERG, *types.EnrichmentMetadata, error)
}

// Pricer resolves catalog prices.
type Pricer interface {
	Lookup(ctx context.Context, lookup types.PricingLookup) (*types.PricingResult, error)
}

// UsageModeler annotates resources with usage scenarios.
type UsageModeler interface {
	Annotate(profileName string, req usage.Request, overrides []types.UsageOverride) (*types.UsageAnnotation, error)
}

// CostEngine computes the final cost model.
type CostEngine interface {
	Compute(ctx context.Context, erg *types.ERG, prices map[string]*types.PricingResult, usage map[string]*types.UsageAnnotation) (*types.FCM, error)
}

// ResultPersister persists the immutable result for a completed job.
type ResultPersister interface {
	Persist(ctx context.Context, job *types.Job, model *types.FCM, planHash, pricingSnapshot string) (*types.Result, error)
}

// SubmitRequest is one job submission.
type SubmitRequest struct {
	// UploadReference names the uploaded IaC bundle
	UploadReference string `json:"upload_reference"`

	// Region is the estimation region
	Region string `json:"region"`

	// UsageProfile names the usage profile; empty selects the default
	UsageProfile string `json:"usage_profile,omitempty"`

	// IdempotencyKey deduplicates submissions when set
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Orchestrator owns the job state machine and drives each job through
// the pipeline stages under a per-job leader lock.
type Orchestrator struct {
	cfg            config.OrchestratorConfig
	jobs           JobStore
	stageLog       StageLog
	locks          *LockManager
	planner        Planner
	enricher       Enricher
	pricer         Pricer
	usage          UsageModeler
	engine         CostEngine
	results        ResultPersister
	defaultProfile string
	logger         *zap.Logger
}

// New creates an orchestrator.
func New(cfg config.OrchestratorConfig, jobs JobStore, stageLog StageLog, locks *LockManager,
	planner Planner, enricher Enricher, pricer Pricer, usageModeler UsageModeler,
	engine CostEngine, results ResultPersister, defaultProfile string) *Orchestrator {
	return &Orchestrator{
		cfg:            cfg,
		jobs:           jobs,
		stageLog:       stageLog,
		locks:          locks,
		planner:        planner,
		enricher:       enricher,
		pricer:         pricer,
		usage:          usageModeler,
		engine:         engine,
		results:        results,
		defaultProfile: defaultProfile,
		logger:         logging.With(zap.String("component", "orchestrator")),
	}
}

// Submit creates a job, or returns the existing one when the
// idempotency key was seen before. The second return reports whether a
// new job was created.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*types.Job, bool, error) {
	if req.UploadReference == "" {
		return nil, false, errors.Validation("upload_reference is required")
	}
	if req.Region == "" {
		return nil, false, errors.Validation("region is required")
	}

	if req.IdempotencyKey != "" {
		existing, err := o.jobs.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.IsType(err, errors.TypeNotFound) {
			return nil, false, err
		}
	}

	profile := req.UsageProfile
	if profile == "" {
		profile = o.defaultProfile
	}
	now := time.Now().UTC()
	job := &types.Job{
		ID:              uuid.New().String(),
		UploadReference: req.UploadReference,
		Region:          req.Region,
		UsageProfile:    profile,
		IdempotencyKey:  req.IdempotencyKey,
		CorrelationID:   logging.CorrelationID(ctx),
		CurrentState:    types.StateUploaded,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := o.jobs.Create(ctx, job)
	if errors.IsType(err, errors.TypeConflict) && req.IdempotencyKey != "" {
		// Lost a race on the idempotency key; the winner's job is the answer.
		existing, getErr := o.jobs.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	metrics.JobsByState.WithLabelValues(string(types.StateUploaded)).Inc()
	o.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("region", job.Region),
		zap.String("usage_profile", job.UsageProfile))
	return job, true, nil
}

// Run drives one job from UPLOADED to a terminal state. The caller is
// expected to invoke it once per submission, typically on its own
// goroutine.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	lease, err := o.locks.Acquire(ctx, jobID)
	if err != nil {
		return err
	}
	defer lease.Release(context.WithoutCancel(ctx))

	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.CurrentState != types.StateUploaded {
		return errors.Newf(errors.TypeConflict,
			"job %s is in state %s, not %s", jobID, job.CurrentState, types.StateUploaded)
	}

	ctx = logging.WithCorrelation(ctx, job.CorrelationID)
	log := logging.FromContext(ctx).With(zap.String("job_id", jobID))

	// Renew the lease while the pipeline runs; losing it aborts the run.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go o.renewLoop(runCtx, lease, cancel, log)

	if err := o.pipeline(runCtx, job, log); err != nil {
		o.fail(ctx, job, err, log)
		return err
	}
	return nil
}

func (o *Orchestrator) renewLoop(ctx context.Context, lease *Lease, cancel context.CancelFunc, log *zap.Logger) {
	ticker := time.NewTicker(o.cfg.LockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lease.Renew(ctx); err != nil {
				log.Error("lost job lock, aborting pipeline", zap.Error(err))
				cancel()
				return
			}
		}
	}
}

func (o *Orchestrator) pipeline(ctx context.Context, job *types.Job, log *zap.Logger) error {
	var (
		plan     []byte
		planHash string
		graph    *types.NRG
		erg      *types.ERG
	)

	err := o.runStage(ctx, job, types.StateUploaded, types.StatePlanning, o.cfg.Planning,
		func(ctx context.Context) (string, error) {
			var err error
			plan, err = o.planner.Plan(ctx, job)
			if err != nil {
				return "", err
			}
			return "", o.jobs.SetPlanReference(ctx, job.ID, job.ID)
		})
	if err != nil {
		return err
	}

	err = o.runStage(ctx, job, types.StatePlanning, types.StateParsing, o.cfg.Parsing,
		func(ctx context.Context) (string, error) {
			nrg, meta, err := interpreter.Interpret(plan)
			if err != nil {
				return "", err
			}
			graph = nrg
			planHash = meta.PlanHash
			log.Info("plan interpreted",
				zap.Int("resources", meta.TotalResources),
				zap.String("plan_hash", meta.PlanHash))
			return meta.PlanHash, nil
		})
	if err != nil {
		return err
	}

	err = o.runStage(ctx, job, types.StateParsing, types.StateEnriching, o.cfg.Enriching,
		func(ctx context.Context) (string, error) {
			enriched, meta, err := o.enricher.Enrich(ctx, graph)
			if err != nil {
				return "", err
			}
			erg = enriched
			log.Info("graph enriched",
				zap.Int("declared", meta.Declared),
				zap.Int("implicit", meta.Implicit),
				zap.Int("failed", meta.FailedCount))
			return "", nil
		})
	if err != nil {
		return err
	}

	err = o.runStage(ctx, job, types.StateEnriching, types.StateCosting, o.cfg.Costing,
		func(ctx context.Context) (string, error) {
			model, snapshot, err := o.cost(ctx, job, erg)
			if err != nil {
				return "", err
			}
			result, err := o.results.Persist(ctx, job, model, planHash, snapshot)
			if err != nil {
				return "", err
			}
			if err := o.jobs.SetResultReference(ctx, job.ID, result.ID); err != nil {
				return "", err
			}
			return model.DeterminismHash, nil
		})
	if err != nil {
		return err
	}

	if err := o.transition(ctx, job, types.StateCosting, types.StateCompleted); err != nil {
		return err
	}
	log.Info("job completed", zap.String("job_id", job.ID))
	return nil
}

// cost resolves prices and usage for every node and computes the model.
func (o *Orchestrator) cost(ctx context.Context, job *types.Job, erg *types.ERG) (*types.FCM, string, error) {
	log := logging.FromContext(ctx)
	prices := make(map[string]*types.PricingResult, len(erg.Nodes))
	annotations := make(map[string]*types.UsageAnnotation, len(erg.Nodes))
	snapshot := ""

	for i := range erg.Nodes {
		node := &erg.Nodes[i]

		lookup, ok := lookupFor(node, job.Region)
		if ok {
			price, err := o.pricer.Lookup(ctx, lookup)
			switch {
			case err == nil:
				price.ResourceID = node.ResourceID
				prices[node.ResourceID] = price
				if snapshot == "" {
					snapshot = price.SnapshotID
				}
			case errors.IsType(err, errors.TypeNotFound):
				log.Debug("no catalog price for resource",
					zap.String("resource_id", node.ResourceID),
					zap.String("type", node.Type))
			default:
				return nil, "", err
			}
		}

		ann, err := o.usage.Annotate(job.UsageProfile, usage.Request{
			ResourceID:   node.ResourceID,
			Service:      metadata.ServiceOf(node.Type),
			ResourceType: node.Type,
		}, nil)
		if err != nil {
			return nil, "", err
		}
		annotations[node.ResourceID] = ann
	}

	model, err := o.engine.Compute(ctx, erg, prices, annotations)
	if err != nil {
		return nil, "", err
	}
	return model, snapshot, nil
}

// runStage transitions into the stage, runs fn with the stage policy's
// deadline and retry budget, records every attempt, and rolls the stage
// outcome into the job.
func (o *Orchestrator) runStage(ctx context.Context, job *types.Job, from, stage types.JobState,
	policy config.StagePolicy, fn func(ctx context.Context) (string, error)) error {

	if err := o.transition(ctx, job, from, stage); err != nil {
		return err
	}

	log := logging.FromContext(ctx).With(
		zap.String("job_id", job.ID),
		zap.String("stage", string(stage)))
	start := time.Now()
	attempt := 0

	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: policy.MaxRetries + 1,
		Base:        policy.BackoffBase,
		MaxDelay:    30 * time.Second,
	}, string(stage), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.StageRetries.WithLabelValues(string(stage)).Inc()
			if err := o.jobs.IncrementRetries(ctx, job.ID); err != nil {
				log.Warn("recording retry failed", zap.Error(err))
			}
		}

		rowID, err := o.stageLog.Begin(ctx, &types.StageExecution{
			JobID:         job.ID,
			StageName:     string(stage),
			AttemptNumber: attempt,
			StartedAt:     time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		stageCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		defer cancel()

		digest, runErr := fn(stageCtx)
		if runErr != nil {
			if stageCtx.Err() == context.DeadlineExceeded {
				runErr = errors.Timeout(string(stage) + " stage")
			}
			if err := o.stageLog.Finish(ctx, rowID, types.StageFailed, "", runErr.Error()); err != nil {
				log.Warn("finalizing stage record failed", zap.Error(err))
			}
			return runErr
		}
		if err := o.stageLog.Finish(ctx, rowID, types.StageSuccess, digest, ""); err != nil {
			log.Warn("finalizing stage record failed", zap.Error(err))
		}
		return nil
	})

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.StageDuration.WithLabelValues(string(stage), outcome).Observe(time.Since(start).Seconds())
	return err
}

func (o *Orchestrator) transition(ctx context.Context, job *types.Job, from, to types.JobState) error {
	if err := CheckTransition(from, to); err != nil {
		return err
	}
	if err := o.jobs.Transition(ctx, job.ID, from, to); err != nil {
		return err
	}
	metrics.JobsByState.WithLabelValues(string(from)).Dec()
	metrics.JobsByState.WithLabelValues(string(to)).Inc()
	job.PreviousState = from
	job.CurrentState = to
	return nil
}

// fail moves the job to FAILED from wherever it currently is.
func (o *Orchestrator) fail(ctx context.Context, job *types.Job, cause error, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	if err := o.jobs.SetError(ctx, job.ID, cause.Error()); err != nil {
		log.Error("recording job failure message failed", zap.Error(err))
	}
	if err := o.transition(ctx, job, job.CurrentState, types.StateFailed); err != nil {
		log.Error("transition to FAILED failed", zap.Error(err))
		return
	}
	log.Warn("job failed",
		zap.String("job_id", job.ID),
		zap.String("error_type", string(errors.TypeOf(cause))),
		zap.Error(cause))
}

// lookupFor maps a graph node to a catalog lookup. Nodes with no
// catalog representation are skipped and costed at zero.
func lookupFor(node *types.ERGNode, region string) (types.PricingLookup, bool) {
	if node.Region != "" {
		region = node.Region
	}
	service := metadata.ServiceOf(node.Type)

	switch node.Type {
	case "aws_instance":
		return types.PricingLookup{
			Service:      service,
			Region:       region,
			ResourceType: "Compute Instance",
			Attributes: map[string]string{
				"instanceType": node.Attributes.GetString("instance_type"),
				"tenancy":      "Shared",
			},
		}, true
	case "aws_ebs_volume":
		volumeType := node.Attributes.GetString("volume_type")
		if volumeType == "" {
			volumeType = node.Attributes.GetString("type")
		}
		return types.PricingLookup{
			Service:      "AmazonEC2",
			Region:       region,
			ResourceType: "Storage",
			Attributes: map[string]string{
				"volumeApiName": volumeType,
			},
		}, true
	case "aws_db_instance":
		return types.PricingLookup{
			Service:      service,
			Region:       region,
			ResourceType: "Database Instance",
			Attributes: map[string]string{
				"instanceType":   node.Attributes.GetString("instance_class"),
				"databaseEngine": node.Attributes.GetString("engine"),
			},
		}, true
	case "aws_db_storage", "aws_db_backup_storage":
		return types.PricingLookup{
			Service:      "AmazonRDS",
			Region:       region,
			ResourceType: "Database Storage",
			Attributes: map[string]string{
				"volumeType": node.Attributes.GetString("storage_type"),
			},
		}, true
	case "aws_db_replica":
		return types.PricingLookup{
			Service:      "AmazonRDS",
			Region:       region,
			ResourceType: "Database Instance",
			Attributes: map[string]string{
				"instanceType": node.Attributes.GetString("instance_class"),
			},
		}, true
	case "aws_lb", "aws_alb":
		return types.PricingLookup{
			Service:      service,
			Region:       region,
			ResourceType: "Load Balancer-Application",
			Attributes:   map[string]string{},
		}, true
	case "aws_lb_capacity_units":
		return types.PricingLookup{
			Service:      "ElasticLoadBalancing",
			Region:       region,
			ResourceType: "Load Balancer-Application",
			Attributes: map[string]string{
				"usagetype": "LCUUsage",
			},
		}, true
	case "aws_eip":
		return types.PricingLookup{
			Service:      "AmazonEC2",
			Region:       region,
			ResourceType: "IP Address",
			Attributes:   map[string]string{},
		}, true
	default:
		return types.PricingLookup{}, false
	}
}
