package search

import (
	"time"

	"github.com/rawblock/babel-engine/internal/babel"
	"github.com/rawblock/babel-engine/pkg/models"
)

// snippetLength is how much of a page list views show before truncation.
const snippetLength = 200

// assemblePage wraps a scored page into its result form with provenance.
func assemblePage(address, text, query, source string, score models.CoherenceScore, norm Normalizer, now time.Time) models.DecodedPage {
	page := models.DecodedPage{
		Address:   address,
		RawText:   text,
		Snippet:   snippet(text),
		Query:     query,
		Source:    source,
		Coherence: score,
		Provenance: models.Provenance{
			Address:   address,
			Source:    source,
			Query:     query,
			Timestamp: now.UnixMilli(),
		},
	}
	if norm != nil {
		page.NormalizedText = norm.Normalize(text, query)
		page.Provenance.Normalized = true
	}
	return page
}

// snippet returns the first 200 runes, with an ellipsis when truncated.
func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "..."
}

// Decode scores one page against an optional query and wraps it with
// provenance. Empty text means "materialize the page at address first";
// provided text is scored as-is, so callers can decode arbitrary drafts.
// The engine-wide normalizer applies; DecodeWith overrides it per call.
func (p *Pipeline) Decode(address, text, query string) models.DecodedPage {
	return p.DecodeWith(address, text, query, p.norm)
}

// DecodeWith is Decode with an explicit normalizer. Nil disables
// normalization for this call regardless of the engine configuration.
func (p *Pipeline) DecodeWith(address, text, query string, norm Normalizer) models.DecodedPage {
	source := "caller"
	if text == "" {
		text = babel.AddressToPage(address)
		source = "local"
	}
	score := p.scorer.Score(text, query)
	return assemblePage(address, text, query, source, score, norm, p.now())
}

// Score runs the coherence scorer directly, without materializing a page
// or attaching provenance.
func (p *Pipeline) Score(text, query string) models.CoherenceScore {
	return p.scorer.Score(text, query)
}
