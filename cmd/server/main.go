// Package main is the entry point for the costplan server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"costplan/api"
	"costplan/core/costing"
	"costplan/core/executor"
	"costplan/core/metadata"
	"costplan/core/orchestrator"
	"costplan/core/pricing"
	"costplan/core/store"
	"costplan/core/usage"
	"costplan/db"
	"costplan/internal/cache"
	"costplan/internal/config"
	"costplan/internal/errors"
	"costplan/internal/logging"
)

const version = "1.0.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "costplan-server",
	Short: "Pre-apply cloud cost estimation service",
	Long: `costplan-server runs the cost estimation pipeline: it executes
uploaded IaC bundles in a sandbox, interprets the resulting plan,
enriches it with provider metadata, resolves catalog prices and usage
scenarios, and persists an immutable cost result per job.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and pipeline workers",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}
	defer logging.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(pool); err != nil {
		return err
	}
	logging.Info("migrations applied")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Cache.RedisURL == "" {
		return errors.Validation("cache.redis_url is required; the job lock needs Redis")
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(pool); err != nil {
		return err
	}

	redisOpts, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		return errors.Wrap(errors.TypeValidation, "parsing redis url", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	memCache := cache.NewMemoryCache(cfg.Cache.MaxSize)
	layered := cache.NewLayered(memCache, cache.NewRedisCache(redisClient))
	ttls := cache.NewTTLPolicy(cfg.Cache.DefaultTTL, cfg.Cache.TTLOverrides)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Metadata.Region))
	if err != nil {
		return errors.Wrap(errors.TypeUpstream, "loading AWS configuration", err)
	}
	stsClient := sts.NewFromConfig(awsCfg)
	accountID := resolveAccountID(ctx, stsClient)

	registry := metadata.NewRegistry(
		metadata.NewComputeAdapter(ec2.NewFromConfig(awsCfg), layered, ttls, accountID, cfg.Metadata.Region),
		metadata.NewLoadBalancerAdapter(elbv2.NewFromConfig(awsCfg), layered, ttls, accountID, cfg.Metadata.Region),
		metadata.NewDatabaseAdapter(rds.NewFromConfig(awsCfg), layered, ttls, accountID, cfg.Metadata.Region),
	)
	enricher := metadata.NewResolver(registry, layered, accountID, cfg.Metadata.AdapterConcurrency)

	pricer := pricing.NewResolver(pricing.NewCatalogClient(cfg.Pricing, layered))

	profiles, err := usage.NewStore(cfg.Usage.ProfileDir)
	if err != nil {
		return err
	}
	modeler := usage.NewModeler(profiles)

	engine := costing.NewEngine(cfg.Costing)

	planStore, err := executor.NewFilePlanStore(cfg.Executor.PlanStoreRoot)
	if err != nil {
		return err
	}
	exec := executor.New(cfg.Executor,
		executor.NewWorkspaceManager(cfg.Executor.WorkspaceRoot, cfg.Executor.MaxWorkspaceSizeMB),
		executor.NewValidator(cfg.Executor.AllowedProviders, cfg.Executor.BlockLocalExec, cfg.Executor.BlockExternalData),
		executor.NewCredentialBroker(stsClient, cfg.Executor.AssumeRoles),
		executor.NewStageRunner(executor.NewCommandRunner(), cfg.Executor.BinaryPath, cfg.Executor.PluginDir, cfg.Executor.StageTimeout),
		planStore)
	exec.Start(ctx)

	jobs := db.NewJobRepository(pool)
	stageLog := db.NewStageExecutionRepository(pool)
	results := store.NewService(db.NewResultRepository(pool), db.NewAuditRepository(pool))

	sources := orchestrator.NewFileSourceStore(cfg.Server.UploadRoot)
	planner := orchestrator.NewExecutorPlanner(exec, sources, time.Second)
	orch := orchestrator.New(cfg.Orchestrator, jobs, stageLog,
		orchestrator.NewLockManager(redisClient, cfg.Orchestrator.LockTTL),
		planner, enricher, pricer, modeler, engine, results, cfg.Usage.DefaultProfile)

	sweeper := orchestrator.NewSweeper(jobs, cfg.Orchestrator.JobTTL, cfg.Orchestrator.SweepInterval)
	go sweeper.Run(ctx)

	pipeline := api.NewPipelineHandler(enricher, pricer, profiles, modeler, engine)
	server := api.NewServer(version, orch, jobs, results, exec, pipeline)

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("server shutdown", zap.Error(err))
		}
	}()

	logging.Info("server listening",
		zap.String("addr", cfg.Server.ListenAddress),
		zap.String("version", version))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	exec.Wait()
	return nil
}

// resolveAccountID asks STS for the caller account; failure is not
// fatal, enrichment just tags nodes with an unknown owner.
func resolveAccountID(ctx context.Context, client *sts.Client) string {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil || out.Account == nil {
		logging.Warn("resolving caller identity failed", zap.Error(err))
		return "unknown"
	}
	return *out.Account
}
