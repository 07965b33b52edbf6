package archive

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rawblock/babel-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside runtime images that do not ship internal/archive/schema.sql.
//
//go:embed schema.sql
var schemaSQL string

// Store persists search history, page access statistics, and cache
// checkpoints to PostgreSQL. The engine treats it as optional: every
// caller nil-checks, and a write failure never fails the request.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// Connect initializes the connection pool and verifies it with a ping.
func Connect(ctx context.Context, connStr string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	logger.Info("Connected to PostgreSQL archive")
	return &Store{pool: pool, log: logger.Named("archive")}, nil
}

// Close gracefully closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	s.log.Info("Archive schema initialized")
	return nil
}

// SaveSearch persists one completed search: a query row plus one row per
// ranked result. Cache hits are recorded as query rows only, so replays
// do not duplicate result rows.
func (s *Store) SaveSearch(ctx context.Context, maxResults int, result *models.SearchResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	avg := 0.0
	for _, page := range result.Results {
		avg += page.Coherence.OverallScore
	}
	if len(result.Results) > 0 {
		avg /= float64(len(result.Results))
	}

	queryID := uuid.New()
	insertQuerySQL := `
		INSERT INTO queries
			(id, query_text, search_mode, max_results, results_count, avg_score, execution_time_ms, cached)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err = tx.Exec(ctx, insertQuerySQL,
		queryID,
		result.Query,
		string(result.Mode),
		maxResults,
		len(result.Results),
		avg,
		result.ElapsedMs,
		result.Cached,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query row: %v", err)
	}

	if !result.Cached {
		insertResultSQL := `
			INSERT INTO cached_results
				(query_id, address_hex, snippet, result_rank, coherence_score,
				 language_score, structure_score, ngram_score, exact_match_score,
				 confidence_level, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
		`
		for rank, page := range result.Results {
			_, err = tx.Exec(ctx, insertResultSQL,
				queryID,
				page.Address,
				page.Snippet,
				rank+1,
				page.Coherence.OverallScore,
				page.Coherence.LanguageScore,
				page.Coherence.StructureScore,
				page.Coherence.NgramScore,
				page.Coherence.ExactMatchScore,
				string(page.Coherence.Confidence),
				page.Source,
			)
			if err != nil {
				return fmt.Errorf("failed to insert result row: %v", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// RecordGeneratedPage upserts access statistics for one materialized page.
// Repeat accesses bump the counter and keep the best score seen so far.
func (s *Store) RecordGeneratedPage(ctx context.Context, address string, valid bool, genMs float64, score float64) error {
	status := "valid"
	if !valid {
		status = "invalid"
	}

	sql := `
		INSERT INTO generated_pages (address_hex, validation_status, generation_time_ms, best_score)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address_hex) DO UPDATE SET
			access_count = generated_pages.access_count + 1,
			best_score = GREATEST(generated_pages.best_score, EXCLUDED.best_score),
			last_accessed = NOW();
	`
	_, err := s.pool.Exec(ctx, sql, address, status, genMs, score)
	return err
}

// PageRecord is one row of the page access leaderboard.
type PageRecord struct {
	Address          string    `json:"address"`
	ValidationStatus string    `json:"validationStatus"`
	BestScore        float64   `json:"bestScore"`
	AccessCount      int64     `json:"accessCount"`
	LastAccessed     time.Time `json:"lastAccessed"`
}

// TopPages returns the most frequently materialized pages.
func (s *Store) TopPages(ctx context.Context, limit int) ([]PageRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	sql := `
		SELECT address_hex, validation_status, best_score, access_count, last_accessed
		FROM generated_pages
		ORDER BY access_count DESC, last_accessed DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pages := make([]PageRecord, 0)
	for rows.Next() {
		var p PageRecord
		if err := rows.Scan(&p.Address, &p.ValidationStatus, &p.BestScore, &p.AccessCount, &p.LastAccessed); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return pages, nil
}

// QueryRecord is one row of the search history listing.
type QueryRecord struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	Mode         string    `json:"mode"`
	MaxResults   int       `json:"maxResults"`
	ResultsCount int       `json:"resultsCount"`
	AvgScore     float64   `json:"avgScore"`
	ElapsedMs    int64     `json:"elapsedMs"`
	Cached       bool      `json:"cached"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RecentSearches returns the latest recorded searches, newest first.
func (s *Store) RecentSearches(ctx context.Context, limit int) ([]QueryRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	sql := `
		SELECT id, query_text, search_mode, max_results, results_count, avg_score, execution_time_ms, cached, created_at
		FROM queries
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	searches := make([]QueryRecord, 0)
	for rows.Next() {
		var q QueryRecord
		if err := rows.Scan(&q.ID, &q.Query, &q.Mode, &q.MaxResults, &q.ResultsCount, &q.AvgScore, &q.ElapsedMs, &q.Cached, &q.CreatedAt); err != nil {
			return nil, err
		}
		searches = append(searches, q)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return searches, nil
}

// CheckpointCache replaces the persisted cache snapshot with the given
// entries. Called on shutdown so a restart can warm the in-memory cache.
func (s *Store) CheckpointCache(ctx context.Context, entries []models.CacheEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM cache_checkpoint;`); err != nil {
		return fmt.Errorf("failed to clear cache checkpoint: %v", err)
	}

	insertSQL := `INSERT INTO cache_checkpoint (fingerprint, entry) VALUES ($1, $2);`
	for _, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal cache entry: %v", err)
		}
		if _, err := tx.Exec(ctx, insertSQL, entry.Fingerprint, payload); err != nil {
			return fmt.Errorf("failed to insert cache entry: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.log.Info("Cache checkpoint written", zap.Int("entries", len(entries)))
	return nil
}

// RestoreCache loads the persisted cache snapshot. Corrupt rows are
// skipped; TTL filtering is left to the cache that receives the entries.
func (s *Store) RestoreCache(ctx context.Context) ([]models.CacheEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT entry FROM cache_checkpoint ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.CacheEntry, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var entry models.CacheEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			s.log.Warn("Skipping corrupt cache checkpoint row", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}
