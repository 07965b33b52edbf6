package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rawblock/babel-engine/internal/babel"
	"github.com/rawblock/babel-engine/internal/cache"
	"github.com/rawblock/babel-engine/internal/coherence"
	"github.com/rawblock/babel-engine/internal/config"
	"github.com/rawblock/babel-engine/internal/telemetry"
	"github.com/rawblock/babel-engine/pkg/models"
)

// Search Pipeline
//
// One request flows through a fixed sequence:
//
//   fingerprint -> cache lookup -> enumerate (overfetched) -> materialize
//   and score per candidate (bounded pool) -> filter by min score ->
//   sort -> truncate -> cache write -> respond
//
// Candidates are overfetched by a configurable factor so score filtering
// does not under-return. Per-candidate work runs concurrently under the
// pipeline deadline; a candidate that cannot be materialized is logged and
// skipped, never fatal. Results only enter the cache when every candidate
// was processed before the deadline or a caller cancellation, so a cached
// entry always represents a complete run.
//
// Result order is decided by the final sort (overall score descending,
// address ascending on ties), never by goroutine arrival.

// Caller-visible pipeline errors. Invalid queries surface the enumerator's
// babel.ErrInvalidQuery unchanged.
var (
	ErrInvalidMode = errors.New("invalid search mode")
	ErrDeadline    = errors.New("deadline expired before any candidate was scored")
)

// RemoteSource materializes pages addressed elsewhere. remote.Client
// implements it; tests substitute fakes.
type RemoteSource interface {
	FetchPage(ctx context.Context, address string) (string, error)
}

// Request are the per-call search parameters. Zero MaxResults is honored
// literally (an empty result), not defaulted; callers own defaulting.
type Request struct {
	Query      string
	MaxResults int
	Mode       models.SearchMode // empty means the configured default
	MinScore   float64           // clamped to [0,100]
}

// Pipeline executes searches. Construct once and share; all state is
// read-only after New except the cache, which is safe for concurrent use.
type Pipeline struct {
	cfg           *config.Config
	scorer        *coherence.Scorer
	store         cache.Store
	remote        RemoteSource
	norm          Normalizer
	log           *zap.Logger
	now           func() time.Time
	version       string
	deadline      time.Duration
	remoteTimeout time.Duration
}

// New wires a pipeline. remoteSrc and norm may be nil: remote/hybrid
// searches then degrade per mode semantics, and normalization is skipped.
func New(cfg *config.Config, store cache.Store, remoteSrc RemoteSource, norm Normalizer, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:           cfg,
		scorer:        coherence.NewScorer(cfg.Weights),
		store:         store,
		remote:        remoteSrc,
		norm:          norm,
		log:           logger.Named("search"),
		now:           time.Now,
		version:       cfg.Version(),
		deadline:      cfg.Deadline(),
		remoteTimeout: cfg.RemoteTimeout(),
	}
}

// Search runs the full pipeline for one request.
func (p *Pipeline) Search(ctx context.Context, req Request) (*models.SearchResult, error) {
	start := p.now()

	mode := req.Mode
	if mode == "" {
		mode = models.SearchMode(p.cfg.ModeDefault)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, string(req.Mode))
	}

	normalized := babel.NormalizeQuery(req.Query)
	if normalized == "" {
		return nil, babel.ErrInvalidQuery
	}

	minScore := req.MinScore
	if minScore < 0 {
		minScore = 0
	}
	if minScore > 100 {
		minScore = 100
	}

	if req.MaxResults <= 0 {
		return p.emptyResult(req.Query, mode, start), nil
	}

	fp := fingerprint(normalized, req.MaxResults, mode, minScore, p.version)

	if entry, ok, err := p.store.Get(ctx, fp); err != nil {
		p.log.Warn("Cache get failed", zap.Error(err))
	} else if ok {
		elapsed := p.now().Sub(start)
		telemetry.ObserveSearch(string(mode), true, elapsed.Seconds(), false)
		return &models.SearchResult{
			Query:      req.Query,
			Results:    entry.Results,
			TotalFound: len(entry.Results),
			Mode:       mode,
			Cached:     true,
			ElapsedMs:  elapsed.Milliseconds(),
			Metadata: models.SearchMetadata{
				QueryTimeMs: elapsed.Milliseconds(),
				CacheHit:    true,
			},
		}, nil
	}

	params := p.cfg.EnumerateParams()
	params.MaxResults = req.MaxResults * p.cfg.Pipeline.OverfetchFactor

	candidates, err := babel.Enumerate(req.Query, params)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return p.emptyResult(req.Query, mode, start), nil
	}

	scored, partial := p.scoreCandidates(ctx, mode, req.Query, candidates)

	kept := make([]models.DecodedPage, 0, len(scored))
	scoredCount := 0
	for _, sp := range scored {
		if !sp.ok {
			continue
		}
		scoredCount++
		if sp.score.OverallScore < minScore {
			continue
		}
		kept = append(kept, assemblePage(sp.address, sp.text, req.Query, sp.source, sp.score, nil, p.now()))
	}

	if partial && scoredCount == 0 {
		return nil, ErrDeadline
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Coherence.OverallScore != kept[j].Coherence.OverallScore {
			return kept[i].Coherence.OverallScore > kept[j].Coherence.OverallScore
		}
		return kept[i].Address < kept[j].Address
	})

	totalFound := len(kept)
	if len(kept) > req.MaxResults {
		kept = kept[:req.MaxResults]
	}

	// Normalization is a readability pass for the winning page only; the
	// ranking is already fixed and the rest of the list stays raw.
	if p.norm != nil && len(kept) > 0 {
		kept[0].NormalizedText = p.norm.Normalize(kept[0].RawText, req.Query)
		kept[0].Provenance.Normalized = true
	}

	elapsed := p.now().Sub(start)
	result := &models.SearchResult{
		Query:      req.Query,
		Results:    kept,
		TotalFound: totalFound,
		Mode:       mode,
		ElapsedMs:  elapsed.Milliseconds(),
		Metadata: models.SearchMetadata{
			QueryTimeMs:         elapsed.Milliseconds(),
			AddressesEnumerated: len(candidates),
			Partial:             partial,
		},
	}

	// A partial run is never memoized: the next caller deserves a full one.
	if !partial {
		entry := models.CacheEntry{Fingerprint: fp, Results: kept, CreatedAt: p.now()}
		if err := p.store.Put(ctx, entry); err != nil {
			p.log.Warn("Cache put failed", zap.Error(err))
		}
	}

	telemetry.ObserveSearch(string(mode), false, elapsed.Seconds(), partial)
	return result, nil
}

type scoredPage struct {
	address string
	text    string
	source  string
	score   models.CoherenceScore
	ok      bool
}

// scoreCandidates materializes and scores every candidate under the
// pipeline deadline with a bounded worker pool. The returned flag reports
// whether the deadline cut the run short.
func (p *Pipeline) scoreCandidates(ctx context.Context, mode models.SearchMode, query string, candidates []models.Candidate) ([]scoredPage, bool) {
	dctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	scored := make([]scoredPage, len(candidates))

	g, gctx := errgroup.WithContext(dctx)
	g.SetLimit(min(len(candidates), p.cfg.Pipeline.ConcurrencyLimit))

	for i, c := range candidates {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			text, source, err := p.materialize(gctx, mode, c.Address)
			if err != nil {
				p.log.Warn("Candidate skipped",
					zap.String("address", c.Address),
					zap.Error(err))
				return nil
			}
			scored[i] = scoredPage{
				address: c.Address,
				text:    text,
				source:  source,
				score:   p.scorer.Score(text, query),
				ok:      true,
			}
			return nil
		})
	}
	_ = g.Wait()

	// Any context error leaves the run incomplete: workers skip their
	// remaining candidates whether the deadline expired or the caller
	// cancelled (a dropped request connection cancels the same way).
	return scored, dctx.Err() != nil
}

// materialize obtains the page text for one candidate according to mode.
func (p *Pipeline) materialize(ctx context.Context, mode models.SearchMode, address string) (string, string, error) {
	switch mode {
	case models.ModeLocal:
		telemetry.RecordPage("local")
		return babel.AddressToPage(address), "local", nil

	case models.ModeRemote:
		text, err := p.fetchRemote(ctx, address)
		if err != nil {
			return "", "", err
		}
		return text, "remote", nil

	case models.ModeHybrid:
		text, err := p.fetchRemote(ctx, address)
		if err != nil {
			p.log.Debug("Hybrid fetch failed, generating locally",
				zap.String("address", address),
				zap.Error(err))
			telemetry.RecordPage("local")
			return babel.AddressToPage(address), "local", nil
		}
		return text, "remote", nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidMode, mode)
}

func (p *Pipeline) fetchRemote(ctx context.Context, address string) (string, error) {
	if p.remote == nil {
		telemetry.RecordRemoteFailure()
		return "", errors.New("no remote source configured")
	}
	rctx, cancel := context.WithTimeout(ctx, p.remoteTimeout)
	defer cancel()

	text, err := p.remote.FetchPage(rctx, address)
	if err != nil {
		telemetry.RecordRemoteFailure()
		return "", err
	}
	telemetry.RecordPage("remote")
	return text, nil
}

func (p *Pipeline) emptyResult(query string, mode models.SearchMode, start time.Time) *models.SearchResult {
	elapsed := p.now().Sub(start)
	return &models.SearchResult{
		Query:     query,
		Results:   []models.DecodedPage{},
		Mode:      mode,
		ElapsedMs: elapsed.Milliseconds(),
		Metadata:  models.SearchMetadata{QueryTimeMs: elapsed.Milliseconds()},
	}
}

// fingerprint identifies a request for memoization. The config version
// keeps entries from one configuration invisible to another.
func fingerprint(normalizedQuery string, maxResults int, mode models.SearchMode, minScore float64, version string) string {
	key := fmt.Sprintf("%s|%d|%s|%.4f|%s", normalizedQuery, maxResults, mode, minScore, version)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
