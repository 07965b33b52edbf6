package models

import "time"

// SearchMode selects where candidate pages are materialized from.
type SearchMode string

const (
	ModeLocal  SearchMode = "local"  // pure generator, no network
	ModeRemote SearchMode = "remote" // external page source only
	ModeHybrid SearchMode = "hybrid" // remote first, generator fallback
)

// Valid reports whether the mode is one of the three recognized values.
func (m SearchMode) Valid() bool {
	switch m {
	case ModeLocal, ModeRemote, ModeHybrid:
		return true
	}
	return false
}

// ConfidenceLevel buckets an overall coherence score into a coarse grade.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "high"    // overall >= 80
	ConfidenceMedium  ConfidenceLevel = "medium"  // 60 <= overall < 80
	ConfidenceSparse  ConfidenceLevel = "sparse"  // 40 <= overall < 60
	ConfidenceMinimal ConfidenceLevel = "minimal" // overall < 40
)

// Candidate is one enumerated address with its ranking signal.
type Candidate struct {
	Address string   `json:"address"` // lowercase hex, 64 chars
	Score   float64  `json:"score"`   // length-weighted n-gram signal, higher ranks first
	Ngrams  []string `json:"ngrams"`  // source n-grams that produced this address
	Depth   int      `json:"depth"`   // smallest variant index (1-based) among merged candidates
}

// CoherenceScore is the structured output of the scorer. All sub-scores and
// the overall score lie in [0,100]; overall is the configured weighted sum.
type CoherenceScore struct {
	LanguageScore   float64            `json:"languageScore"`   // English-like token density
	StructureScore  float64            `json:"structureScore"`  // sentence/punctuation structure
	NgramScore      float64            `json:"ngramScore"`      // bigram-entropy coherence
	ExactMatchScore float64            `json:"exactMatchScore"` // query substring coverage, 0 without query
	OverallScore    float64            `json:"overallScore"`
	Confidence      ConfidenceLevel    `json:"confidenceLevel"`
	Metrics         map[string]float64 `json:"metrics,omitempty"` // auxiliary diagnostics, known keys only
}

// Provenance records where and when a decoded page came from.
type Provenance struct {
	Address    string `json:"address"`
	Source     string `json:"source"`          // "local" or "remote"
	Query      string `json:"query,omitempty"` // original query, if any
	Timestamp  int64  `json:"timestamp"`       // unix milliseconds at decode time
	Normalized bool   `json:"normalized"`      // normalization hook was applied
}

// DecodedPage is a scored page with full provenance, the unit of a search result.
type DecodedPage struct {
	Address        string         `json:"address"`
	RawText        string         `json:"rawText"`
	Snippet        string         `json:"snippet,omitempty"` // first 200 chars for list views
	Query          string         `json:"query,omitempty"`
	Source         string         `json:"source"` // "local" or "remote"
	Coherence      CoherenceScore `json:"coherence"`
	NormalizedText string         `json:"normalizedText,omitempty"`
	Provenance     Provenance     `json:"provenance"`
}

// SearchMetadata carries per-request diagnostics alongside the results.
type SearchMetadata struct {
	QueryTimeMs         int64 `json:"queryTimeMs"`
	CacheHit            bool  `json:"cacheHit"`
	AddressesEnumerated int   `json:"addressesEnumerated"`
	Partial             bool  `json:"partial"` // deadline hit, results are what was scored in time
}

// SearchResult is the ranked output of one pipeline invocation.
type SearchResult struct {
	Query      string         `json:"query"`
	Results    []DecodedPage  `json:"results"`
	TotalFound int            `json:"totalFound"`
	Mode       SearchMode     `json:"mode"`
	Cached     bool           `json:"cached"`
	ElapsedMs  int64          `json:"elapsedMs"`
	Metadata   SearchMetadata `json:"metadata"`
}

// CacheEntry is the serialized form of one memoized search, used both by the
// in-process cache and by checkpoint persistence. Entries are immutable once
// created; expiry is wall-clock elapsed time against the configured TTL.
type CacheEntry struct {
	Fingerprint string        `json:"fingerprint"`
	Results     []DecodedPage `json:"results"`
	CreatedAt   time.Time     `json:"createdAt"`
}
