package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/babel-engine/internal/babel"
)

// enumerateParams merges request overrides onto the configured defaults.
// Zero values keep the defaults; the enumerator validates the result.
func (h *Handler) enumerateParams(maxResults, depth, minNgram, maxNgram int) babel.EnumerateParams {
	params := h.cfg.EnumerateParams()
	if maxResults > 0 {
		params.MaxResults = maxResults
	}
	if depth > 0 {
		params.Depth = depth
	}
	if minNgram > 0 {
		params.MinNgram = minNgram
	}
	if maxNgram > 0 {
		params.MaxNgram = maxNgram
	}
	return params
}

// handleEnumerate derives ranked candidate addresses for a query.
// POST /api/v1/enumerate { "query": "...", maxResults?, depth?, minNgram?, maxNgram? }
func (h *Handler) handleEnumerate(c *gin.Context) {
	var req struct {
		Query      string `json:"query" binding:"required"`
		MaxResults int    `json:"maxResults"`
		Depth      int    `json:"depth"`
		MinNgram   int    `json:"minNgram"`
		MaxNgram   int    `json:"maxNgram"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {query, maxResults?, depth?, minNgram?, maxNgram?}"})
		return
	}

	params := h.enumerateParams(req.MaxResults, req.Depth, req.MinNgram, req.MaxNgram)
	start := time.Now()
	candidates, err := babel.Enumerate(req.Query, params)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	avg := 0.0
	for _, cand := range candidates {
		avg += cand.Score
	}
	if len(candidates) > 0 {
		avg /= float64(len(candidates))
	}

	c.JSON(http.StatusOK, gin.H{
		"query":             req.Query,
		"normalizedQuery":   babel.NormalizeQuery(req.Query),
		"candidates":        candidates,
		"count":             len(candidates),
		"avgScore":          avg,
		"enumerationTimeMs": float64(time.Since(start).Microseconds()) / 1000.0,
	})
}

// handleEnumerateAddresses is the address-only variant for callers that
// materialize pages themselves.
// GET /api/v1/enumerate/addresses?query=...&maxResults=10
func (h *Handler) handleEnumerateAddresses(c *gin.Context) {
	query := c.Query("query")
	maxResults, _ := strconv.Atoi(c.DefaultQuery("maxResults", "0"))

	candidates, err := babel.Enumerate(query, h.enumerateParams(maxResults, 0, 0, 0))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	addresses := make([]string, len(candidates))
	for i, cand := range candidates {
		addresses[i] = cand.Address
	}

	c.JSON(http.StatusOK, gin.H{
		"query":     query,
		"addresses": addresses,
		"count":     len(addresses),
	})
}

// handleCommonAddresses intersects the candidate sets of two queries.
// POST /api/v1/enumerate/common { "query1": "...", "query2": "...", maxResults? }
func (h *Handler) handleCommonAddresses(c *gin.Context) {
	var req struct {
		Query1     string `json:"query1" binding:"required"`
		Query2     string `json:"query2" binding:"required"`
		MaxResults int    `json:"maxResults"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {query1, query2, maxResults?}"})
		return
	}

	common, err := babel.CommonAddresses(req.Query1, req.Query2, h.enumerateParams(req.MaxResults, 0, 0, 0))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query1":    req.Query1,
		"query2":    req.Query2,
		"addresses": common,
		"count":     len(common),
	})
}

// handleEnumerateSubstrings enumerates every fixed-length window of a text.
// POST /api/v1/enumerate/substrings { "text": "...", "length": 5, maxResults? }
func (h *Handler) handleEnumerateSubstrings(c *gin.Context) {
	var req struct {
		Text       string `json:"text" binding:"required"`
		Length     int    `json:"length" binding:"required"`
		MaxResults int    `json:"maxResults"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {text, length, maxResults?}"})
		return
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = h.cfg.EnumMaxResults
	}

	candidates, err := babel.EnumerateSubstrings(req.Text, req.Length, maxResults)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"text":       req.Text,
		"length":     req.Length,
		"candidates": candidates,
		"count":      len(candidates),
	})
}
