package enrichment

import (
	"context"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
)

// Lookup is the name-resolution contract the adapter drives.  Client
// implements it against the live service; tests substitute a stub.
type Lookup interface {
	LookupName(ctx context.Context, name string) (*LookupResult, error)
}

// LookupCache fronts Lookup with a persistent cache.  A hit with a nil
// result is a remembered no-match, which still counts as a hit: known
// misses are not re-queried.
type LookupCache interface {
	Get(ctx context.Context, name string) (result *LookupResult, hit bool, err error)
	Set(ctx context.Context, name string, result *LookupResult) error
}

// Stats summarizes one enrichment sweep across the orphan set.
type Stats struct {
	Orphans      int `json:"orphans"`
	CacheHits    int `json:"cache_hits"`
	Lookups      int `json:"lookups"`
	CASSuggested int `json:"cas_suggested"`
	NameOnly     int `json:"name_only"`
	NoCandidate  int `json:"no_candidate"`
	Failures     int `json:"failures"`
}

// Adapter walks the Orphan entries of a catalog and produces one candidate
// row per orphan.  The inter-request rate limit is honored before every
// network lookup, including ones that go on to fail; cache hits skip it.
type Adapter struct {
	lookup  Lookup
	cache   LookupCache
	limiter *rate.Limiter
	logger  logging.Logger
}

// NewAdapter builds an Adapter.  cache may be nil; limiter must not be.
func NewAdapter(lookup Lookup, cache LookupCache, limiter *rate.Limiter, logger logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Adapter{
		lookup:  lookup,
		cache:   cache,
		limiter: limiter,
		logger:  logger.Named("enrichment"),
	}
}

// SuggestCandidates queries every Orphan in the catalog by its preferred
// name and returns exactly one candidate row per orphan.  No-match and
// failure outcomes are emitted as empty-CAS rows so that the candidate
// artifact accounts for every orphan queried.  Returns early only on
// context cancellation.
func (a *Adapter) SuggestCandidates(ctx context.Context, entries []*compound.Record) ([]compound.Candidate, Stats, error) {
	var (
		out   []compound.Candidate
		stats Stats
	)

	for _, entry := range entries {
		if entry.Status != ctypes.StatusOrphan {
			continue
		}
		stats.Orphans++

		result, fromCache, err := a.resolve(ctx, entry.PreferredName)
		if err != nil {
			if ctx.Err() != nil {
				return out, stats, errors.Wrap(ctx.Err(), errors.ErrCodeLookupUnavailable, "enrichment sweep cancelled")
			}
			if errors.IsCode(err, errors.ErrCodeLookupNoMatch) {
				stats.NoCandidate++
				out = append(out, noCandidateRow(entry.IdentityKey, "Not Found"))
			} else {
				stats.Failures++
				a.logger.Warn("lookup failed",
					logging.String("compound", entry.IdentityKey), logging.Err(err))
				out = append(out, noCandidateRow(entry.IdentityKey, "Lookup failed: "+errors.GetCode(err).String()))
			}
			continue
		}
		if fromCache {
			stats.CacheHits++
		} else {
			stats.Lookups++
		}
		if result == nil {
			// Remembered no-match.
			stats.NoCandidate++
			out = append(out, noCandidateRow(entry.IdentityKey, "Not Found"))
			continue
		}

		rows := candidateRows(entry.IdentityKey, result)
		if rows[0].HasCAS() {
			stats.CASSuggested++
		} else {
			stats.NameOnly++
		}
		out = append(out, rows...)
	}

	a.logger.Info("enrichment sweep complete",
		logging.Int("orphans", stats.Orphans),
		logging.Int("cache_hits", stats.CacheHits),
		logging.Int("lookups", stats.Lookups),
		logging.Int("cas_suggested", stats.CASSuggested),
		logging.Int("no_candidate", stats.NoCandidate),
		logging.Int("failures", stats.Failures),
	)
	return out, stats, nil
}

// resolve consults the cache first, then the rate-limited live lookup.
// Both match and no-match outcomes are written back to the cache; other
// failures are not, so transient errors are retried on the next run.
func (a *Adapter) resolve(ctx context.Context, name string) (result *LookupResult, fromCache bool, err error) {
	if a.cache != nil {
		cached, hit, cerr := a.cache.Get(ctx, name)
		if cerr != nil {
			a.logger.Warn("cache read failed", logging.String("name", name), logging.Err(cerr))
		} else if hit {
			return cached, true, nil
		}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeLookupRateLimited, "waiting for rate limiter")
	}

	result, err = a.lookup.LookupName(ctx, name)
	switch {
	case err == nil:
		a.cacheSet(ctx, name, result)
		return result, false, nil
	case errors.IsCode(err, errors.ErrCodeLookupNoMatch):
		a.cacheSet(ctx, name, nil)
		return nil, false, err
	default:
		return nil, false, err
	}
}

func (a *Adapter) cacheSet(ctx context.Context, name string, result *LookupResult) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(ctx, name, result); err != nil {
		a.logger.Warn("cache write failed", logging.String("name", name), logging.Err(err))
	}
}

// candidateRows expands one lookup result into candidate rows: one row per
// valid registry number found among the synonyms, or a single CAS-less row
// when the match carried none.  Multiple rows for one compound are
// deliberate; whether they agree is decided downstream.
func candidateRows(key string, result *LookupResult) []compound.Candidate {
	base := compound.Candidate{
		CompoundKey:      key,
		Name:             result.IUPACName,
		Source:           ctypes.SourceAPI,
		MolecularFormula: result.MolecularFormula,
		MolecularWeight:  result.MolecularWeight,
		SMILES:           result.SMILES,
		Notes:            "Direct match from PubChem API.",
	}
	if result.CID > 0 {
		base.PubChemCID = strconv.FormatInt(result.CID, 10)
	}
	if len(result.CASNumbers) == 0 {
		base.Confidence = ctypes.ConfidenceMedium
		base.Notes = "CID matched; no registry number among synonyms."
		return []compound.Candidate{base}
	}
	rows := make([]compound.Candidate, 0, len(result.CASNumbers))
	for _, cas := range result.CASNumbers {
		row := base
		row.CAS = cas
		row.Confidence = ctypes.ConfidenceHigh
		rows = append(rows, row)
	}
	return rows
}

func noCandidateRow(key, note string) compound.Candidate {
	return compound.Candidate{
		CompoundKey: key,
		Source:      ctypes.SourceAPI,
		Confidence:  ctypes.ConfidenceNone,
		Notes:       note,
	}
}
