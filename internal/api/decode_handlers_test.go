package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/babel-engine/internal/babel"
	"github.com/rawblock/babel-engine/pkg/models"
)

// prosePageText builds a full page of plain English in alphabet space.
func prosePageText(sentence string) string {
	return babel.NormalizeText(strings.Repeat(sentence+" ", 1+babel.PageLength/len(sentence)))
}

func TestDecodeGeneratesPageWhenTextEmpty(t *testing.T) {
	_, router := testEngine(t, nil)
	address := babel.RandomAddress("decode-test")

	w := doJSON(t, router, http.MethodPost, "/api/v1/decode", map[string]any{
		"address": address,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page models.DecodedPage
	decodeBody(t, w, &page)

	assert.Equal(t, address, page.Address)
	assert.Equal(t, "local", page.Source)
	assert.Equal(t, babel.AddressToPage(address), page.RawText)
	assert.Len(t, page.Snippet, 203, "200 runes plus ellipsis")
	assert.NotEmpty(t, page.Coherence.Confidence)
	assert.Empty(t, page.NormalizedText)
	assert.Equal(t, address, page.Provenance.Address)
	assert.False(t, page.Provenance.Normalized)
	assert.Positive(t, page.Provenance.Timestamp)
}

func TestDecodeScoresProvidedText(t *testing.T) {
	_, router := testEngine(t, nil)
	text := prosePageText("the people of the water will go to the water, and the people will see the way.")

	w := doJSON(t, router, http.MethodPost, "/api/v1/decode", map[string]any{
		"address": babel.RandomAddress("caller-text"),
		"text":    text,
		"query":   "people of the water",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var page models.DecodedPage
	decodeBody(t, w, &page)

	assert.Equal(t, "caller", page.Source)
	assert.Equal(t, text, page.RawText)
	assert.Greater(t, page.Coherence.LanguageScore, 60.0, "vocabulary-dense prose reads as language")
	assert.GreaterOrEqual(t, page.Coherence.ExactMatchScore, 70.0, "query occurs literally")
}

func TestDecodeRejectsInvalidPageText(t *testing.T) {
	_, router := testEngine(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/decode", map[string]any{
		"address": "abcd",
		"text":    "way too short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, "Invalid page text", body.Error)
	assert.Contains(t, body.Details, "length")
}

func TestDecodeNormalizationModes(t *testing.T) {
	_, router := testEngine(t, nil)
	address := babel.RandomAddress("normalize")

	w := doJSON(t, router, http.MethodPost, "/api/v1/decode", map[string]any{
		"address": address, "normalization": "heuristic",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var page models.DecodedPage
	decodeBody(t, w, &page)
	assert.NotEmpty(t, page.NormalizedText)
	assert.True(t, page.Provenance.Normalized)

	w = doJSON(t, router, http.MethodPost, "/api/v1/decode", map[string]any{
		"address": address, "normalization": "none",
	})
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &page)
	assert.Empty(t, page.NormalizedText)

	w = doJSON(t, router, http.MethodPost, "/api/v1/decode", map[string]any{
		"address": address, "normalization": "llm",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "llm mode is reserved")

	w = doJSON(t, router, http.MethodPost, "/api/v1/decode", map[string]any{
		"address": address, "normalization": "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecodeBatchMixedResults(t *testing.T) {
	_, router := testEngine(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/decode/batch", map[string]any{
		"items": []map[string]any{
			{"address": babel.RandomAddress("batch-one")},
			{"address": "NOT HEX"},
			{"address": babel.RandomAddress("batch-two"), "query": "hello"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Results []struct {
			Address         string  `json:"address"`
			Snippet         string  `json:"snippet"`
			OverallScore    float64 `json:"overallScore"`
			ConfidenceLevel string  `json:"confidenceLevel"`
			Success         bool    `json:"success"`
		} `json:"results"`
		Total      int `json:"total"`
		Successful int `json:"successful"`
		Failed     int `json:"failed"`
	}
	decodeBody(t, w, &body)

	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 2, body.Successful)
	assert.Equal(t, 1, body.Failed)
	require.Len(t, body.Results, 3)
	assert.True(t, body.Results[0].Success)
	assert.NotEmpty(t, body.Results[0].Snippet)
	assert.NotEmpty(t, body.Results[0].ConfidenceLevel)
	assert.False(t, body.Results[1].Success)
}

func TestDecodeBatchSizeLimit(t *testing.T) {
	_, router := testEngine(t, nil)

	items := make([]map[string]any, maxBatchSize+1)
	for i := range items {
		items[i] = map[string]any{"address": "abcd"}
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/decode/batch", map[string]any{
		"items": items,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScoreTextEndpoint(t *testing.T) {
	_, router := testEngine(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/decode/score", map[string]any{
		"text":  "the quick brown fox jumps over the lazy dog. it was a good day for running.",
		"query": "quick brown",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var score models.CoherenceScore
	decodeBody(t, w, &score)

	assert.Greater(t, score.OverallScore, 0.0)
	assert.LessOrEqual(t, score.OverallScore, 100.0)
	assert.GreaterOrEqual(t, score.ExactMatchScore, 70.0)
	assert.NotEmpty(t, score.Confidence)
	assert.NotEmpty(t, score.Metrics)

	w = doJSON(t, router, http.MethodPost, "/api/v1/decode/score", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "text is required")
}
