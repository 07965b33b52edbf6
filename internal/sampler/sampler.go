package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rawblock/babel-engine/internal/babel"
	"github.com/rawblock/babel-engine/internal/coherence"
	"github.com/rawblock/babel-engine/internal/config"
	"github.com/rawblock/babel-engine/internal/telemetry"
	"github.com/rawblock/babel-engine/pkg/models"
)

const snippetLength = 200

// Broadcaster pushes a payload to every connected stream client.
// *api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Recorder persists page access statistics. *archive.Store satisfies it.
type Recorder interface {
	RecordGeneratedPage(ctx context.Context, address string, valid bool, genMs float64, score float64) error
}

// Sampler walks a deterministic seed sequence through the address space in
// the background, scoring each generated page query-free. Pages that clear
// the configured floor are broadcast as finds and recorded in the archive.
// The walk is reproducible: the same seed prefix always visits the same
// addresses in the same order.
type Sampler struct {
	interval   time.Duration
	batchSize  int
	seedPrefix string
	minOverall float64

	scorer  *coherence.Scorer
	hub     Broadcaster
	archive Recorder
	log     *zap.Logger

	seq       atomic.Int64
	sampled   atomic.Int64
	finds     atomic.Int64
	lastScore atomic.Uint64 // float64 bits
	running   atomic.Bool
}

// Find is the stream payload emitted when a sampled page clears the floor.
type Find struct {
	Type       string  `json:"type"`
	ID         string  `json:"id"`
	Address    string  `json:"address"`
	Snippet    string  `json:"snippet"`
	Overall    float64 `json:"overallScore"`
	Language   float64 `json:"languageScore"`
	Structure  float64 `json:"structureScore"`
	Confidence string  `json:"confidenceLevel"`
	Timestamp  string  `json:"timestamp"`
}

// Progress is a point-in-time snapshot of the sampler's counters.
type Progress struct {
	Running      bool    `json:"running"`
	PagesSampled int64   `json:"pagesSampled"`
	Finds        int64   `json:"finds"`
	LastScore    float64 `json:"lastScore"`
	ScoreFloor   float64 `json:"scoreFloor"`
	BatchSize    int     `json:"batchSize"`
}

func New(cfg *config.Config, hub Broadcaster, rec Recorder, logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{
		interval:   time.Duration(cfg.Sampler.IntervalSeconds) * time.Second,
		batchSize:  cfg.Sampler.BatchSize,
		seedPrefix: cfg.Sampler.SeedPrefix,
		minOverall: cfg.Sampler.MinOverall,
		scorer:     coherence.NewScorer(cfg.Weights),
		hub:        hub,
		archive:    rec,
		log:        logger.Named("sampler"),
	}
}

// Run samples one batch per tick until the context is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	s.log.Info("Starting background page sampler",
		zap.Duration("interval", s.interval),
		zap.Int("batchSize", s.batchSize),
		zap.Float64("scoreFloor", s.minOverall))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stopping page sampler",
				zap.Int64("pagesSampled", s.sampled.Load()),
				zap.Int64("finds", s.finds.Load()))
			return
		case <-ticker.C:
			s.sampleBatch(ctx)
		}
	}
}

func (s *Sampler) sampleBatch(ctx context.Context) {
	for i := 0; i < s.batchSize; i++ {
		if ctx.Err() != nil {
			return
		}

		seed := fmt.Sprintf("%s:%d", s.seedPrefix, s.seq.Add(1))
		address := babel.RandomAddress(seed)

		start := time.Now()
		page := babel.AddressToPage(address)
		genMs := float64(time.Since(start).Microseconds()) / 1000.0

		score := s.scorer.Score(page, "")
		total := s.sampled.Add(1)
		s.lastScore.Store(math.Float64bits(score.OverallScore))
		telemetry.RecordPage("sampler")

		if score.OverallScore >= s.minOverall {
			s.emitFind(ctx, address, page, genMs, score)
		}

		// Progress marker so long quiet stretches still show liveness.
		if total%1000 == 0 {
			s.log.Info("Sampler progress",
				zap.Int64("pagesSampled", total),
				zap.Int64("finds", s.finds.Load()))
		}
	}
}

func (s *Sampler) emitFind(ctx context.Context, address, page string, genMs float64, score models.CoherenceScore) {
	s.finds.Add(1)
	telemetry.RecordSamplerFind()

	find := Find{
		Type:       "sampler_find",
		ID:         uuid.NewString(),
		Address:    address,
		Snippet:    snippet(page),
		Overall:    score.OverallScore,
		Language:   score.LanguageScore,
		Structure:  score.StructureScore,
		Confidence: string(score.Confidence),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	if s.hub != nil {
		payload, _ := json.Marshal(find)
		s.hub.Broadcast(payload)
	}

	if s.archive != nil {
		if err := s.archive.RecordGeneratedPage(ctx, address, true, genMs, score.OverallScore); err != nil {
			s.log.Warn("Failed to persist sampler find", zap.Error(err))
		}
	}

	s.log.Info("Sampler find",
		zap.String("address", address),
		zap.Float64("overall", score.OverallScore),
		zap.String("confidence", string(score.Confidence)))
}

// Progress reports the sampler's counters without blocking the sample loop.
func (s *Sampler) Progress() Progress {
	return Progress{
		Running:      s.running.Load(),
		PagesSampled: s.sampled.Load(),
		Finds:        s.finds.Load(),
		LastScore:    math.Float64frombits(s.lastScore.Load()),
		ScoreFloor:   s.minOverall,
		BatchSize:    s.batchSize,
	}
}

func snippet(text string) string {
	if len(text) <= snippetLength {
		return text
	}
	return text[:snippetLength] + "..."
}
