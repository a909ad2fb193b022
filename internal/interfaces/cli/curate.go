package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/FoodSafety-MS-KB/internal/application/curation"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/database/postgres"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/database/redis"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/metrics"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/search/opensearch"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/storage/minio"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/types/common"
)

// assembly is the set of live infrastructure the pipeline was wired with.
type assembly struct {
	pipeline *curation.Pipeline
	archive  *minio.Archive
	closers  []func()
}

func (a *assembly) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildAssembly wires the pipeline with every enabled infrastructure
// component.  Anything disabled in the configuration is simply left out;
// the pipeline skips nil collaborators.
func buildAssembly(ctx context.Context, rt *runtime) (*assembly, error) {
	cfg, logger := rt.cfg, rt.logger
	a := &assembly{}
	opts := []curation.Option{}

	if cfg.Redis.Enabled && cfg.Enrichment.CacheTTL > 0 {
		client, err := redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		cache := redis.NewLookupCache(client, cfg.Redis.KeyPrefix, cfg.Enrichment.CacheTTL, logger)
		opts = append(opts, curation.WithLookupCache(cache))
	}

	if cfg.Database.Enabled {
		if cfg.Database.MigrationPath != "" {
			if err := postgres.RunMigrations(postgres.DSN(cfg.Database), cfg.Database.MigrationPath); err != nil {
				return nil, err
			}
		}
		pool, err := postgres.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		opts = append(opts, curation.WithDurableStore(
			repositories.NewCatalogRepository(pool.Raw(), logger),
			repositories.NewConflictRepository(pool.Raw(), logger),
		))
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = producer.Close() })
		opts = append(opts, curation.WithEvents(producer))
	}

	if cfg.OpenSearch.Enabled {
		osClient, err := opensearch.NewClient(ctx, cfg.OpenSearch, logger)
		if err != nil {
			return nil, err
		}
		indexer := opensearch.NewIndexer(osClient, cfg.OpenSearch.IndexPrefix, cfg.OpenSearch.BulkBatchSize, logger)
		opts = append(opts, curation.WithIndexer(indexer))
	}

	if cfg.MinIO.Enabled {
		archive, err := minio.NewArchive(ctx, cfg.MinIO, logger)
		if err != nil {
			return nil, err
		}
		a.archive = archive
	}

	m := metrics.NewPipelineMetrics()
	opts = append(opts, curation.WithMetrics(m))
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr, m, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("metrics endpoint failed", logging.Err(err))
			}
		}()
		a.closers = append(a.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	p, err := curation.NewPipeline(*cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	a.pipeline = p
	return a, nil
}

func newCurateCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curate",
		Short: "Run curation pipeline phases",
	}

	phase := func(use, short string, run func(p *curation.Pipeline, ctx context.Context) (*curation.PhaseResult, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := buildAssembly(cmd.Context(), rt)
				if err != nil {
					return err
				}
				defer a.close()
				res, err := run(a.pipeline, cmd.Context())
				if err != nil {
					return err
				}
				printPhaseResult(cmd, res)
				return nil
			},
		}
	}

	cmd.AddCommand(
		phase("index", "Build the identity index and impute recoverable identity fields",
			func(p *curation.Pipeline, ctx context.Context) (*curation.PhaseResult, error) { return p.RunIndex(ctx) }),
		phase("catalog", "Derive the first compound catalog version from the imputed corpus",
			func(p *curation.Pipeline, ctx context.Context) (*curation.PhaseResult, error) { return p.RunCatalog(ctx) }),
		phase("enrich", "Query the external chemical database for orphan candidates",
			func(p *curation.Pipeline, ctx context.Context) (*curation.PhaseResult, error) { return p.RunEnrich(ctx) }),
		phase("fuse", "Fuse candidate identities through the source waterfall",
			func(p *curation.Pipeline, ctx context.Context) (*curation.PhaseResult, error) { return p.RunFuse(ctx) }),
		phase("backfill", "Propagate verified identities back into the corpus",
			func(p *curation.Pipeline, ctx context.Context) (*curation.PhaseResult, error) { return p.RunBackfill(ctx) }),
		newCurateRunCmd(rt),
	)
	return cmd
}

func newCurateRunCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every curation phase in order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildAssembly(cmd.Context(), rt)
			if err != nil {
				return err
			}
			defer a.close()

			results, err := a.pipeline.RunAll(cmd.Context())
			for _, res := range results {
				printPhaseResult(cmd, res)
			}
			if err != nil {
				return err
			}

			if a.archive != nil {
				if err := archiveRunArtifacts(cmd.Context(), rt, a, results); err != nil {
					rt.logger.Warn("artifact archiving failed", logging.Err(err))
				}
			}
			return nil
		},
	}
}

// archiveRunArtifacts uploads the work directory artifacts of a finished
// batch under the run ID of its first phase.
func archiveRunArtifacts(ctx context.Context, rt *runtime, a *assembly, results []*curation.PhaseResult) error {
	if len(results) == 0 {
		return nil
	}
	run := common.RunInfo{RunID: results[0].Run.RunID, Phase: "batch"}

	names := []string{
		curation.ArtifactImputedCorpus,
		curation.ArtifactBackfilledCorpus,
		curation.ArtifactAPICandidates,
		"compound_catalog_" + curation.CatalogVersionBuilt + ".json",
		"compound_catalog_" + curation.CatalogVersionFused + ".json",
	}
	for _, res := range results {
		names = append(names, "run_"+res.Run.Phase+".json")
	}

	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, rt.cfg.Pipeline.WorkDir+"/"+name)
	}
	_, err := a.archive.ArchiveRun(ctx, run, paths)
	return err
}

func printPhaseResult(cmd *cobra.Command, res *curation.PhaseResult) {
	cmd.Printf("phase %-9s run %s  %dms\n", res.Run.Phase, res.Run.RunID, res.DurationMS)
	for _, c := range res.Counters {
		cmd.Printf("  %-24s %d\n", c.Name, c.Count)
	}
}
