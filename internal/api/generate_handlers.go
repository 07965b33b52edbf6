package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rawblock/babel-engine/internal/babel"
	"github.com/rawblock/babel-engine/internal/telemetry"
)

// handleGenerate materializes the page at an address, or at the address
// that embeds a text. Exactly one of the two inputs must be present; an
// explicit empty address names the canonical empty-key page.
// POST /api/v1/generate { "address": "deadbeef" } or { "query": "...", "validate": true }
func (h *Handler) handleGenerate(c *gin.Context) {
	var req struct {
		Address  *string `json:"address"`
		Query    string  `json:"query"`
		Validate bool    `json:"validate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {address} or {query}"})
		return
	}
	if (req.Address == nil) == (req.Query == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provide exactly one of address or query"})
		return
	}

	var address string
	if req.Query != "" {
		address = babel.TextToAddress(req.Query)
	} else {
		address = strings.ToLower(*req.Address)
		if !babel.ValidAddress(address) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address: expected lowercase hex"})
			return
		}
	}

	start := time.Now()
	page := babel.AddressToPage(address)
	genMs := float64(time.Since(start).Microseconds()) / 1000.0
	telemetry.RecordPage("local")

	resp := gin.H{
		"address":          address,
		"text":             page,
		"length":           len(page),
		"generationTimeMs": genMs,
	}
	if req.Query != "" {
		resp["query"] = req.Query
	}
	if req.Validate {
		valid, reason := babel.ValidatePage(page)
		resp["valid"] = valid
		if !valid {
			resp["reason"] = reason
		}
	}

	h.recordPageAccess(c, address, genMs)
	c.JSON(http.StatusOK, resp)
}

// handleGenerateBatch materializes up to maxBatchSize pages in one call.
// POST /api/v1/generate/batch { "addresses": ["...", "..."], "validate": false }
func (h *Handler) handleGenerateBatch(c *gin.Context) {
	var req struct {
		Addresses []string `json:"addresses" binding:"required"`
		Validate  bool     `json:"validate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {addresses: [...]}"})
		return
	}
	if len(req.Addresses) > maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Batch exceeds limit of %d addresses", maxBatchSize)})
		return
	}

	results := make([]gin.H, 0, len(req.Addresses))
	succeeded := 0
	for _, raw := range req.Addresses {
		address := strings.ToLower(raw)
		if !babel.ValidAddress(address) {
			results = append(results, gin.H{
				"address": raw,
				"success": false,
				"error":   "invalid address: expected lowercase hex",
			})
			continue
		}

		page := babel.AddressToPage(address)
		telemetry.RecordPage("local")
		item := gin.H{"address": address, "text": page, "success": true}
		if req.Validate {
			valid, _ := babel.ValidatePage(page)
			item["valid"] = valid
		}
		results = append(results, item)
		succeeded++
	}

	c.JSON(http.StatusOK, gin.H{
		"results":    results,
		"total":      len(results),
		"successful": succeeded,
		"failed":     len(results) - succeeded,
	})
}

// handleRandomPage draws a page from a seed, minting one when absent.
// GET /api/v1/generate/random?seed=abc
func (h *Handler) handleRandomPage(c *gin.Context) {
	seed := c.Query("seed")
	if seed == "" {
		seed = uuid.NewString()
	}

	address := babel.RandomAddress(seed)
	page := babel.AddressToPage(address)
	telemetry.RecordPage("local")

	c.JSON(http.StatusOK, gin.H{
		"seed":    seed,
		"address": address,
		"text":    page,
		"length":  len(page),
	})
}

// handleValidatePage checks arbitrary text against the page contract.
// POST /api/v1/generate/validate { "text": "..." }
func (h *Handler) handleValidatePage(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {text}"})
		return
	}

	valid, reason := babel.ValidatePage(req.Text)
	resp := gin.H{
		"valid":          valid,
		"length":         utf8.RuneCountInString(req.Text),
		"expectedLength": babel.PageLength,
	}
	if !valid {
		resp["reason"] = reason
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetPage serves the page protocol consumed by remote/hybrid peers.
// The response shape stays in lockstep with remote.Client.
// GET /api/v1/pages/:address
func (h *Handler) handleGetPage(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))
	if !babel.ValidAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address: expected lowercase hex"})
		return
	}

	start := time.Now()
	page := babel.AddressToPage(address)
	genMs := float64(time.Since(start).Microseconds()) / 1000.0
	telemetry.RecordPage("local")
	h.recordPageAccess(c, address, genMs)

	c.JSON(http.StatusOK, gin.H{
		"address": address,
		"text":    page,
	})
}

// handleTopPages lists the most frequently materialized pages.
// GET /api/v1/archive/pages?limit=50
func (h *Handler) handleTopPages(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Archive not connected"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	pages, err := h.archive.TopPages(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch page statistics", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  pages,
		"count": len(pages),
	})
}

// recordPageAccess bumps archive statistics without failing the request.
func (h *Handler) recordPageAccess(c *gin.Context, address string, genMs float64) {
	if h.archive == nil {
		return
	}
	if err := h.archive.RecordGeneratedPage(c.Request.Context(), address, true, genMs, 0); err != nil {
		h.log.Warn("Failed to record page access", zap.String("address", address), zap.Error(err))
	}
}
