package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rawblock/babel-engine/internal/babel"
	"github.com/rawblock/babel-engine/internal/remote"
)

func TestGenerateByAddress(t *testing.T) {
	_, router := testEngine(t, nil)
	address := babel.RandomAddress("generate-test")

	w := doJSON(t, router, http.MethodPost, "/api/v1/generate", map[string]any{
		"address": address,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Address          string  `json:"address"`
		Text             string  `json:"text"`
		Length           int     `json:"length"`
		GenerationTimeMs float64 `json:"generationTimeMs"`
	}
	decodeBody(t, w, &body)

	assert.Equal(t, address, body.Address)
	assert.Equal(t, babel.AddressToPage(address), body.Text)
	assert.Equal(t, babel.PageLength, body.Length)
	assert.GreaterOrEqual(t, body.GenerationTimeMs, 0.0)
}

func TestGenerateByQueryEmbedsText(t *testing.T) {
	_, router := testEngine(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/generate", map[string]any{
		"query":    "hello babel",
		"validate": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Address string `json:"address"`
		Query   string `json:"query"`
		Text    string `json:"text"`
		Valid   bool   `json:"valid"`
	}
	decodeBody(t, w, &body)

	address := babel.TextToAddress("hello babel")
	assert.Equal(t, address, body.Address, "query maps to its embedding address")
	assert.Equal(t, "hello babel", body.Query)
	assert.Equal(t, babel.AddressToPage(address), body.Text)
	assert.True(t, body.Valid)
}

func TestGenerateEmptyAddressIsCanonicalPage(t *testing.T) {
	_, router := testEngine(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/generate", map[string]any{
		"address": "",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Text string `json:"text"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, babel.AddressToPage(""), body.Text)
}

func TestGenerateRequiresExactlyOneInput(t *testing.T) {
	_, router := testEngine(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/generate", map[string]any{
		"address": "abcd", "query": "hello",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/generate", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateRejectsNonHexAddress(t *testing.T) {
	_, router := testEngine(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/generate", map[string]any{
		"address": "not-hex-at-all",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateBatchMixedResults(t *testing.T) {
	_, router := testEngine(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/generate/batch", map[string]any{
		"addresses": []string{
			babel.RandomAddress("one"),
			"definitely not hex",
			babel.RandomAddress("two"),
		},
		"validate": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Results []struct {
			Address string `json:"address"`
			Success bool   `json:"success"`
			Valid   bool   `json:"valid"`
			Error   string `json:"error"`
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
	assert.True(t, body.Results[0].Valid)
	assert.False(t, body.Results[1].Success)
	assert.NotEmpty(t, body.Results[1].Error)
	assert.True(t, body.Results[2].Success)
}

func TestGenerateBatchSizeLimit(t *testing.T) {
	_, router := testEngine(t, nil)

	addresses := make([]string, maxBatchSize+1)
	for i := range addresses {
		addresses[i] = "abcd"
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/generate/batch", map[string]any{
		"addresses": addresses,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRandomPageSeedIsDeterministic(t *testing.T) {
	_, router := testEngine(t, nil)

	w := doJSON(t, router, http.MethodGet, "/api/v1/generate/random?seed=abc", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Seed    string `json:"seed"`
		Address string `json:"address"`
		Text    string `json:"text"`
		Length  int    `json:"length"`
	}
	decodeBody(t, w, &body)

	assert.Equal(t, "abc", body.Seed)
	assert.Equal(t, babel.RandomAddress("abc"), body.Address)
	assert.Equal(t, babel.AddressToPage(body.Address), body.Text)
	assert.Equal(t, babel.PageLength, body.Length)
}

func TestRandomPageMintsSeedWhenAbsent(t *testing.T) {
	_, router := testEngine(t, nil)

	w := doJSON(t, router, http.MethodGet, "/api/v1/generate/random", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Seed    string `json:"seed"`
		Address string `json:"address"`
	}
	decodeBody(t, w, &body)
	assert.NotEmpty(t, body.Seed)
	assert.Len(t, body.Address, 64)
}

func TestValidatePageEndpoint(t *testing.T) {
	_, router := testEngine(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/generate/validate", map[string]any{
		"text": babel.AddressToPage("feed"),
	})
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Valid          bool   `json:"valid"`
		Length         int    `json:"length"`
		ExpectedLength int    `json:"expectedLength"`
		Reason         string `json:"reason"`
	}
	decodeBody(t, w, &body)
	assert.True(t, body.Valid)
	assert.Equal(t, babel.PageLength, body.Length)
	assert.Equal(t, babel.PageLength, body.ExpectedLength)
	assert.Empty(t, body.Reason)

	w = doJSON(t, router, http.MethodPost, "/api/v1/generate/validate", map[string]any{
		"text": "too short",
	})
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &body)
	assert.False(t, body.Valid)
	assert.Contains(t, body.Reason, "length")
}

func TestGetPageEndpoint(t *testing.T) {
	_, router := testEngine(t, nil)
	address := babel.RandomAddress("page-protocol")

	w := doJSON(t, router, http.MethodGet, "/api/v1/pages/"+address, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Address string `json:"address"`
		Text    string `json:"text"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, address, body.Address)
	assert.Equal(t, babel.AddressToPage(address), body.Text)

	w = doJSON(t, router, http.MethodGet, "/api/v1/pages/not-hex", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// The pages route is the protocol remote.Client speaks; drive the real
// client against the real router to keep the two in lockstep.
func TestRemoteClientSpeaksPageProtocol(t *testing.T) {
	_, router := testEngine(t, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	client, err := remote.NewClient(server.URL, 5*time.Second, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx))

	address := babel.RandomAddress("lockstep")
	text, err := client.FetchPage(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, babel.AddressToPage(address), text)
}
