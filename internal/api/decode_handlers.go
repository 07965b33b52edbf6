package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/babel-engine/internal/babel"
	"github.com/rawblock/babel-engine/internal/search"
	"github.com/rawblock/babel-engine/internal/telemetry"
)

// resolveNormalizer maps a request normalization mode onto a Normalizer.
// Decode requests default to none regardless of the engine configuration;
// normalization is opt-in per call. A non-zero status means rejection.
func resolveNormalizer(mode string) (search.Normalizer, int, string) {
	switch mode {
	case "", "none":
		return nil, 0, ""
	case "heuristic":
		return search.NewHeuristic(), 0, ""
	case "llm":
		return nil, http.StatusUnprocessableEntity, "Normalization mode 'llm' is reserved and not yet available"
	default:
		return nil, http.StatusBadRequest, fmt.Sprintf("Unknown normalization mode %q", mode)
	}
}

// handleDecode scores one page against an optional query. Empty text means
// "materialize the page at address first"; provided text must satisfy the
// page contract.
// POST /api/v1/decode { "address": "...", "text"?, "query"?, "normalization"? }
func (h *Handler) handleDecode(c *gin.Context) {
	var req struct {
		Address       string `json:"address" binding:"required"`
		Text          string `json:"text"`
		Query         string `json:"query"`
		Normalization string `json:"normalization"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {address, text?, query?, normalization?}"})
		return
	}

	address := strings.ToLower(req.Address)
	if !babel.ValidAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address: expected lowercase hex"})
		return
	}
	if req.Text != "" {
		if ok, reason := babel.ValidatePage(req.Text); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page text", "details": reason})
			return
		}
	}

	norm, status, msg := resolveNormalizer(req.Normalization)
	if status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	page := h.pipeline.DecodeWith(address, req.Text, req.Query, norm)
	if page.Source == "local" {
		telemetry.RecordPage("local")
	}
	c.JSON(http.StatusOK, page)
}

// handleDecodeBatch scores up to maxBatchSize pages, returning scores
// without the full page text.
// POST /api/v1/decode/batch { "items": [{address, text?, query?}], "normalization"? }
func (h *Handler) handleDecodeBatch(c *gin.Context) {
	var req struct {
		Items []struct {
			Address string `json:"address"`
			Text    string `json:"text"`
			Query   string `json:"query"`
		} `json:"items" binding:"required"`
		Normalization string `json:"normalization"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {items: [{address, text?, query?}]}"})
		return
	}
	if len(req.Items) > maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Batch exceeds limit of %d items", maxBatchSize)})
		return
	}

	norm, status, msg := resolveNormalizer(req.Normalization)
	if status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	results := make([]gin.H, 0, len(req.Items))
	succeeded := 0
	for _, item := range req.Items {
		address := strings.ToLower(item.Address)
		if !babel.ValidAddress(address) {
			results = append(results, gin.H{
				"address": item.Address,
				"success": false,
				"error":   "invalid address: expected lowercase hex",
			})
			continue
		}
		if item.Text != "" {
			if ok, reason := babel.ValidatePage(item.Text); !ok {
				results = append(results, gin.H{"address": address, "success": false, "error": reason})
				continue
			}
		}

		page := h.pipeline.DecodeWith(address, item.Text, item.Query, norm)
		if page.Source == "local" {
			telemetry.RecordPage("local")
		}
		results = append(results, gin.H{
			"address":         page.Address,
			"snippet":         page.Snippet,
			"overallScore":    page.Coherence.OverallScore,
			"confidenceLevel": page.Coherence.Confidence,
			"success":         true,
		})
		succeeded++
	}

	c.JSON(http.StatusOK, gin.H{
		"results":    results,
		"total":      len(results),
		"successful": succeeded,
		"failed":     len(results) - succeeded,
	})
}

// handleScoreText runs the coherence scorer on arbitrary text.
// POST /api/v1/decode/score { "text": "...", "query"? }
func (h *Handler) handleScoreText(c *gin.Context) {
	var req struct {
		Text  string `json:"text" binding:"required"`
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {text, query?}"})
		return
	}

	c.JSON(http.StatusOK, h.pipeline.Score(req.Text, req.Query))
}
