// Package curation orchestrates the batch phases: index, catalog, enrich,
// fuse, backfill.  Every phase reads its input from and writes its output
// into the work directory, so a batch can be restarted at any phase
// boundary without redoing finished work.
package curation

import (
	"context"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/turtacn/FoodSafety-MS-KB/internal/application/backfill"
	"github.com/turtacn/FoodSafety-MS-KB/internal/application/catalog"
	"github.com/turtacn/FoodSafety-MS-KB/internal/application/enrichment"
	"github.com/turtacn/FoodSafety-MS-KB/internal/application/fusion"
	"github.com/turtacn/FoodSafety-MS-KB/internal/application/identity"
	"github.com/turtacn/FoodSafety-MS-KB/internal/application/validation"
	"github.com/turtacn/FoodSafety-MS-KB/internal/config"
	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/detection"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/metrics"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/report"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/search/opensearch"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/storage/filestore"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/types/common"
)

// Artifact names within the work directory.
const (
	ArtifactImputedCorpus    = "corpus_imputed.json"
	ArtifactBackfilledCorpus = "corpus_backfilled.json"
	ArtifactAPICandidates    = "candidates_api.csv"
	ArtifactConflictReport   = "conflict_report.csv"
	ArtifactValidationReport = "validation_report.csv"
)

// Catalog version labels at the two phase boundaries.
const (
	CatalogVersionBuilt = "v1"
	CatalogVersionFused = "v2"
)

// EventPublisher is the slice of the kafka producer the pipeline uses.
type EventPublisher interface {
	PublishCatalogSaved(ctx context.Context, payload kafka.CatalogSavedPayload) error
	PublishCompoundPromoted(ctx context.Context, payload kafka.CompoundPromotedPayload) error
	PublishConflictRaised(ctx context.Context, payload kafka.ConflictRaisedPayload) error
	PublishRunCompleted(ctx context.Context, payload kafka.RunCompletedPayload) error
}

// CatalogIndexer pushes a catalog version into the search cluster.
type CatalogIndexer interface {
	IndexCatalog(ctx context.Context, version string, entries []*compound.Record) (opensearch.IndexStats, error)
}

// PhaseResult is the durable run log of one finished phase.
type PhaseResult struct {
	Run        common.RunInfo   `json:"run"`
	FinishedAt time.Time        `json:"finished_at"`
	DurationMS int64            `json:"duration_ms"`
	Counters   []common.Counter `json:"counters"`
}

// Pipeline wires the application phases to the configured infrastructure.
// Only the file store is mandatory; the durable database, event producer,
// search indexer, lookup cache and metrics are optional and skipped when
// nil.
type Pipeline struct {
	cfg    config.Config
	store  *filestore.Store
	files  *filestore.CatalogRepository
	sink   *report.Sink
	logger logging.Logger

	lookup    enrichment.Lookup
	cache     enrichment.LookupCache
	db        compound.CatalogRepository
	conflicts compound.ConflictRepository
	events    EventPublisher
	indexer   CatalogIndexer
	metrics   *metrics.PipelineMetrics
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithLookup replaces the default HTTP enrichment client.
func WithLookup(l enrichment.Lookup) Option { return func(p *Pipeline) { p.lookup = l } }

// WithLookupCache plugs in the redis-backed lookup cache.
func WithLookupCache(c enrichment.LookupCache) Option { return func(p *Pipeline) { p.cache = c } }

// WithDurableStore plugs in the postgres catalog and conflict repositories.
func WithDurableStore(db compound.CatalogRepository, conflicts compound.ConflictRepository) Option {
	return func(p *Pipeline) { p.db = db; p.conflicts = conflicts }
}

// WithEvents plugs in the curation event producer.
func WithEvents(e EventPublisher) Option { return func(p *Pipeline) { p.events = e } }

// WithIndexer plugs in the search indexer for fused catalogs.
func WithIndexer(ix CatalogIndexer) Option { return func(p *Pipeline) { p.indexer = ix } }

// WithMetrics plugs in the prometheus instrumentation.
func WithMetrics(m *metrics.PipelineMetrics) Option { return func(p *Pipeline) { p.metrics = m } }

// NewPipeline builds a Pipeline rooted at the configured work directory.
func NewPipeline(cfg config.Config, logger logging.Logger, opts ...Option) (*Pipeline, error) {
	store, err := filestore.NewStore(cfg.Pipeline.WorkDir, logger)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:    cfg,
		store:  store,
		files:  filestore.NewCatalogRepository(store),
		sink:   report.NewSink(logger),
		logger: logger,
		lookup: enrichment.NewClient(cfg.Enrichment, logger),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RunIndex builds the bidirectional identity index from the input corpus,
// imputes recoverable identity fields, and writes the patched corpus.
func (p *Pipeline) RunIndex(ctx context.Context) (*PhaseResult, error) {
	run := common.NewRunInfo("index")

	corpus, err := p.loadInputCorpus()
	if err != nil {
		return p.finish(ctx, run, nil, err)
	}

	ix := identity.NewIndex(p.logger)
	stats := ix.Build(corpus)
	imputed := ix.Impute(corpus, &stats)

	if err := p.store.SaveJSON(ArtifactImputedCorpus, imputed); err != nil {
		return p.finish(ctx, run, nil, err)
	}

	counters := common.NewCounterSet()
	counters.Add("input_records", stats.InputRecords)
	counters.Add("paired_records", stats.PairedRecords)
	counters.Add("cas_only_records", stats.CASOnlyRecords)
	counters.Add("name_only_records", stats.NameOnlyRecords)
	counters.Add("unidentified_records", stats.UnidentifiedRecords)
	counters.Add("cas_filled", stats.CASFilled)
	counters.Add("names_filled", stats.NamesFilled)
	counters.Add("ambiguous_names", stats.AmbiguousNames)
	return p.finish(ctx, run, counters, nil)
}

// RunCatalog derives the first catalog version from the imputed corpus:
// Verified entries from checksum-valid pairings, Orphans from the rest.
func (p *Pipeline) RunCatalog(ctx context.Context) (*PhaseResult, error) {
	run := common.NewRunInfo("catalog")

	corpus, err := p.loadImputedCorpus()
	if err != nil {
		return p.finish(ctx, run, nil, err)
	}

	ix := identity.NewIndex(p.logger)
	ix.Build(corpus)

	entries, stats, err := catalog.NewBuilder(p.logger).Build(ix)
	if err != nil {
		return p.finish(ctx, run, nil, err)
	}

	if err := p.saveCatalog(ctx, CatalogVersionBuilt, entries, stats.Verified, stats.Orphans); err != nil {
		return p.finish(ctx, run, nil, err)
	}

	counters := common.NewCounterSet()
	counters.Add("verified", stats.Verified)
	counters.Add("orphans", stats.Orphans)
	counters.Add("invalid_cas_demoted", stats.InvalidCASDemoted)
	counters.Add("cas_only_rejected", stats.CASOnlyRejected)
	counters.Add("merged", stats.Merged)
	counters.Add("total", stats.Total)
	return p.finish(ctx, run, counters, nil)
}

// RunEnrich queries the external chemical database for every Orphan entry
// and writes the candidate CSV consumed by the fusion phase.
func (p *Pipeline) RunEnrich(ctx context.Context) (*PhaseResult, error) {
	run := common.NewRunInfo("enrich")

	entries, err := p.files.LoadVersion(ctx, CatalogVersionBuilt)
	if err != nil {
		return p.finish(ctx, run, nil, err)
	}

	limiter := rate.NewLimiter(rate.Every(p.cfg.Enrichment.RateLimitDelay), 1)
	adapter := enrichment.NewAdapter(p.lookup, p.cache, limiter, p.logger)

	rows, stats, err := adapter.SuggestCandidates(ctx, entries)
	if err != nil {
		return p.finish(ctx, run, nil, err)
	}

	if err := p.sink.WriteCandidates(p.store.Path(ArtifactAPICandidates), rows); err != nil {
		return p.finish(ctx, run, nil, err)
	}

	counters := common.NewCounterSet()
	counters.Add("orphans", stats.Orphans)
	counters.Add("cache_hits", stats.CacheHits)
	counters.Add("lookups", stats.Lookups)
	counters.Add("cas_suggested", stats.CASSuggested)
	counters.Add("name_only", stats.NameOnly)
	counters.Add("no_candidate", stats.NoCandidate)
	counters.Add("failures", stats.Failures)
	return p.finish(ctx, run, counters, nil)
}

// RunFuse merges candidate suggestions into the catalog through the source
// waterfall and emits the fused catalog version plus the conflict report.
func (p *Pipeline) RunFuse(ctx context.Context) (*PhaseResult, error) {
	run := common.NewRunInfo("fuse")

	entries, err := p.files.LoadVersion(ctx, CatalogVersionBuilt)
	if err != nil {
		return p.finish(ctx, run, nil, err)
	}

	candidates, skipped, err := p.loadCandidates()
	if err != nil {
		return p.finish(ctx, run, nil, err)
	}

	engine := fusion.NewEngine(ctypes.DefaultWaterfall, p.logger)
	fused, conflicts, stats, err := engine.Fuse(entries, candidates)
	if err != nil {
		return p.finish(ctx, run, nil, err)
	}

	verified, orphans := countByStatus(fused)
	if err := p.saveCatalog(ctx, CatalogVersionFused, fused, verified, orphans); err != nil {
		return p.finish(ctx, run, nil, err)
	}
	if err := p.recordConflicts(ctx, conflicts); err != nil {
		return p.finish(ctx, run, nil, err)
	}
	p.publishPromotions(ctx, fused)

	counters := common.NewCounterSet()
	counters.Add("candidates", stats.Candidates)
	counters.Add("candidate_rows_skipped", skipped)
	counters.Add("dropped_invalid_cas", stats.DroppedInvalidCAS)
	counters.Add("orphans_considered", stats.Orphans)
	counters.Add("promoted", stats.Promoted)
	counters.Add("conflicts", stats.Conflicts)
	counters.Add("no_candidate", stats.NoCandidate)
	counters.Add("merged_duplicates", stats.MergedDuplicates)
	return p.finish(ctx, run, counters, nil)
}

// RunBackfill propagates verified catalog identities back into the corpus,
// filling missing CAS numbers and names without ever overwriting.
func (p *Pipeline) RunBackfill(ctx context.Context) (*PhaseResult, error) {
	run := common.NewRunInfo("backfill")

	entries, err := p.files.LoadVersion(ctx, CatalogVersionFused)
	if errors.IsNotFound(err) {
		// Fusion has not run; backfill from the built catalog instead.
		entries, err = p.files.LoadVersion(ctx, CatalogVersionBuilt)
	}
	if err != nil {
		return p.finish(ctx, run, nil, err)
	}

	corpus, err := p.loadImputedCorpus()
	if err != nil {
		return p.finish(ctx, run, nil, err)
	}

	patched, stats := backfill.NewPropagator(entries, p.logger).Apply(corpus)
	if err := p.store.SaveJSON(ArtifactBackfilledCorpus, patched); err != nil {
		return p.finish(ctx, run, nil, err)
	}

	counters := common.NewCounterSet()
	counters.Add("records", stats.Records)
	counters.Add("cas_filled", stats.CASFilled)
	counters.Add("names_filled", stats.NamesFilled)
	counters.Add("orphan_references", stats.OrphanReferences)
	counters.Add("untouched", stats.Untouched)
	return p.finish(ctx, run, counters, nil)
}

// RunValidate checks the backfilled corpus (or, when absent, the imputed
// one) against the configured schema and writes the violation report.
func (p *Pipeline) RunValidate(ctx context.Context, recordType string) (*PhaseResult, *validation.Report, error) {
	run := common.NewRunInfo("validate")

	schema, err := validation.LoadSchema(p.cfg.Pipeline.SchemaPath)
	if err != nil {
		res, _ := p.finish(ctx, run, nil, err)
		return res, nil, err
	}

	name := ArtifactBackfilledCorpus
	if !p.store.Exists(name) {
		name = ArtifactImputedCorpus
	}
	raw, err := p.store.ReadRaw(name)
	if err != nil {
		res, _ := p.finish(ctx, run, nil, err)
		return res, nil, err
	}

	rep, err := validation.NewValidator(schema, p.logger).ValidateDataset(recordType, raw)
	if err != nil {
		res, _ := p.finish(ctx, run, nil, err)
		return res, nil, err
	}

	if err := p.sink.WriteValidationReport(p.store.Path(ArtifactValidationReport), rep); err != nil {
		res, _ := p.finish(ctx, run, nil, err)
		return res, nil, err
	}

	counters := common.NewCounterSet()
	counters.Add("records", rep.Records)
	counters.Add("violations", rep.Violations)
	res, err := p.finish(ctx, run, counters, nil)
	return res, rep, err
}

// RunAll executes every phase in order, stopping at the first failure.
func (p *Pipeline) RunAll(ctx context.Context) ([]*PhaseResult, error) {
	phases := []func(context.Context) (*PhaseResult, error){
		p.RunIndex,
		p.RunCatalog,
		p.RunEnrich,
		p.RunFuse,
		p.RunBackfill,
	}
	var results []*PhaseResult
	for _, phase := range phases {
		res, err := phase(ctx)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (p *Pipeline) loadInputCorpus() (detection.Corpus, error) {
	raw, err := os.ReadFile(p.cfg.Pipeline.InputCorpus)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigPathMissing,
			"failed to read input corpus "+p.cfg.Pipeline.InputCorpus)
	}
	return detection.DecodeCorpus(raw)
}

func (p *Pipeline) loadImputedCorpus() (detection.Corpus, error) {
	raw, err := p.store.ReadRaw(ArtifactImputedCorpus)
	if err != nil {
		return nil, err
	}
	return detection.DecodeCorpus(raw)
}

// loadCandidates gathers candidate rows from the enrichment output and,
// when configured, the LLM collaborator file.  A missing LLM file is an
// error only when explicitly configured; the waterfall works without it.
func (p *Pipeline) loadCandidates() ([]compound.Candidate, int, error) {
	var rows []compound.Candidate
	var skipped int

	haveAPI := p.store.Exists(ArtifactAPICandidates)
	if haveAPI {
		var err error
		rows, skipped, err = p.sink.ReadCandidates(p.store.Path(ArtifactAPICandidates), ctypes.SourceAPI)
		if err != nil {
			return nil, 0, err
		}
	}

	if path := p.cfg.Pipeline.LLMCandidates; path != "" {
		llmRows, llmSkipped, err := p.sink.ReadCandidates(path, ctypes.SourceLLM)
		if err != nil {
			return nil, 0, err
		}
		rows = append(rows, llmRows...)
		skipped += llmSkipped
	} else if !haveAPI {
		return nil, 0, errors.New(errors.ErrCodeArtifactRead,
			"no candidate input: run the enrich phase or configure an llm candidates file")
	}
	return rows, skipped, nil
}

// saveCatalog writes a catalog version to the file store and, when
// configured, the durable database, search index, events and metrics.
func (p *Pipeline) saveCatalog(ctx context.Context, version string, entries []*compound.Record, verified, orphans int) error {
	if err := p.files.SaveVersion(ctx, version, entries); err != nil {
		return err
	}
	if p.db != nil {
		if err := p.db.SaveVersion(ctx, version, entries); err != nil {
			return err
		}
	}
	if p.indexer != nil && version == CatalogVersionFused {
		if _, err := p.indexer.IndexCatalog(ctx, version, entries); err != nil {
			// Search is a downstream convenience; the catalog itself is safe.
			p.logger.Warn("catalog indexing failed", logging.String("version", version), logging.Err(err))
		}
	}
	if p.metrics != nil {
		p.metrics.SetCatalogCounts(verified, orphans)
	}
	if p.events != nil {
		err := p.events.PublishCatalogSaved(ctx, kafka.CatalogSavedPayload{
			Version:  version,
			Verified: verified,
			Orphans:  orphans,
			SavedAt:  time.Now().UTC(),
		})
		if err != nil {
			p.logger.Warn("catalog saved event not published", logging.Err(err))
		}
	}
	return nil
}

func (p *Pipeline) recordConflicts(ctx context.Context, conflicts []compound.Conflict) error {
	if err := p.sink.AppendConflicts(p.store.Path(ArtifactConflictReport), conflicts); err != nil {
		return err
	}
	if p.conflicts != nil {
		if err := p.conflicts.Append(ctx, conflicts); err != nil {
			return err
		}
	}
	if p.metrics != nil {
		p.metrics.ConflictsOpen.Add(float64(len(conflicts)))
	}
	if p.events != nil {
		for _, c := range conflicts {
			values := make([]string, 0, len(c.CompetingValues))
			for _, v := range c.CompetingValues {
				values = append(values, v.Value)
			}
			err := p.events.PublishConflictRaised(ctx, kafka.ConflictRaisedPayload{
				CompoundKey:     c.CompoundKey,
				Field:           c.Field,
				CompetingValues: values,
				RaisedAt:        time.Now().UTC(),
			})
			if err != nil {
				p.logger.Warn("conflict event not published", logging.Err(err))
			}
		}
	}
	return nil
}

// publishPromotions emits one event per entry whose accepted CAS came from
// an enrichment tier rather than the source documents.
func (p *Pipeline) publishPromotions(ctx context.Context, fused []*compound.Record) {
	if p.events == nil {
		return
	}
	for _, entry := range fused {
		if entry.Status != ctypes.StatusVerified || entry.CASSource == ctypes.SourceDocument || entry.CASSource == "" {
			continue
		}
		err := p.events.PublishCompoundPromoted(ctx, kafka.CompoundPromotedPayload{
			IdentityKey:   entry.IdentityKey,
			CASNumber:     entry.CASNumber,
			PreferredName: entry.PreferredName,
			Source:        string(entry.CASSource),
			PromotedAt:    time.Now().UTC(),
		})
		if err != nil {
			p.logger.Warn("promotion event not published", logging.Err(err))
		}
	}
}

// finish writes the durable run log, observability signals, and returns the
// phase result alongside the phase error unchanged.
func (p *Pipeline) finish(ctx context.Context, run common.RunInfo, counters *common.CounterSet, phaseErr error) (*PhaseResult, error) {
	now := time.Now().UTC()
	res := &PhaseResult{
		Run:        run,
		FinishedAt: now,
		DurationMS: now.Sub(run.StartedAt).Milliseconds(),
	}
	if counters != nil {
		res.Counters = counters.Snapshot()
	}

	if p.metrics != nil {
		p.metrics.ObservePhase(run.Phase, now.Sub(run.StartedAt), phaseErr)
	}

	if phaseErr == nil {
		if err := p.store.SaveJSON("run_"+run.Phase+".json", res); err != nil {
			return res, err
		}
		if p.events != nil {
			err := p.events.PublishRunCompleted(ctx, kafka.RunCompletedPayload{
				RunID:      run.RunID,
				Phase:      run.Phase,
				StartedAt:  run.StartedAt,
				FinishedAt: now,
				Counters:   res.Counters,
			})
			if err != nil {
				p.logger.Warn("run completed event not published", logging.Err(err))
			}
		}
		p.logger.Info("phase finished",
			logging.String("phase", run.Phase),
			logging.Int64("duration_ms", res.DurationMS))
		return res, nil
	}

	p.logger.Error("phase failed",
		logging.String("phase", run.Phase),
		logging.Err(phaseErr))
	return res, phaseErr
}

func countByStatus(entries []*compound.Record) (verified, orphans int) {
	for _, e := range entries {
		switch e.Status {
		case ctypes.StatusVerified:
			verified++
		case ctypes.StatusOrphan:
			orphans++
		}
	}
	return verified, orphans
}
