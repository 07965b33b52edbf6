package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rawblock/babel-engine/internal/coherence"
	"github.com/rawblock/babel-engine/internal/search"
	"github.com/rawblock/babel-engine/internal/telemetry"
	"github.com/rawblock/babel-engine/pkg/models"
)

// handleSearch runs the full coherence pipeline for one query.
// POST /api/v1/search { "query": "...", "maxResults": 10, "mode": "local", "minScore": 0 }
func (h *Handler) handleSearch(c *gin.Context) {
	var req struct {
		Query      string  `json:"query" binding:"required"`
		MaxResults int     `json:"maxResults"`
		Mode       string  `json:"mode"`
		MinScore   float64 `json:"minScore"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {query, maxResults?, mode?, minScore?}"})
		return
	}

	if req.MaxResults <= 0 {
		req.MaxResults = h.cfg.EnumMaxResults
	}
	if req.MaxResults > maxSearchResults {
		req.MaxResults = maxSearchResults
	}

	result, err := h.pipeline.Search(c.Request.Context(), search.Request{
		Query:      req.Query,
		MaxResults: req.MaxResults,
		Mode:       models.SearchMode(req.Mode),
		MinScore:   req.MinScore,
	})
	if err != nil {
		h.renderSearchError(c, err)
		return
	}

	if h.archive != nil {
		if err := h.archive.SaveSearch(c.Request.Context(), req.MaxResults, result); err != nil {
			h.log.Warn("Failed to archive search", zap.String("query", result.Query), zap.Error(err))
		}
	}
	if !result.Cached {
		h.broadcastSearchEvent(result)
	}

	c.JSON(http.StatusOK, result)
}

// handleSuggestions completes the last query token against the scorer's
// vocabulary. GET /api/v1/search/suggestions?q=th
func (h *Handler) handleSuggestions(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	suggestions := make([]string, 0, 5)

	fields := strings.Fields(strings.ToLower(query))
	if len(query) >= 2 && len(fields) > 0 {
		last := fields[len(fields)-1]
		stem := strings.Join(fields[:len(fields)-1], " ")
		for _, word := range coherence.CommonWordsWithPrefix(last, 5) {
			if word == last {
				continue
			}
			if stem != "" {
				suggestions = append(suggestions, stem+" "+word)
			} else {
				suggestions = append(suggestions, word)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"query":       query,
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

// handleCacheStats reports the memoization backend's counters.
// GET /api/v1/search/cache/stats
func (h *Handler) handleCacheStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read cache stats", "details": err.Error()})
		return
	}
	telemetry.SetCacheEntries(stats.Entries)

	c.JSON(http.StatusOK, gin.H{
		"stats":      stats,
		"ttlSeconds": h.cfg.Cache.TTLSeconds,
	})
}

// handleCacheFlush drops every memoized search.
// DELETE /api/v1/search/cache
func (h *Handler) handleCacheFlush(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read cache stats", "details": err.Error()})
		return
	}
	if err := h.store.Flush(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to flush cache", "details": err.Error()})
		return
	}
	telemetry.SetCacheEntries(0)
	h.log.Info("Search cache flushed", zap.Int("entriesCleared", stats.Entries))

	c.JSON(http.StatusOK, gin.H{
		"message":        "Cache flushed",
		"entriesCleared": stats.Entries,
	})
}

// handleSearchHistory lists recent searches from the archive, newest first.
// GET /api/v1/archive/searches?limit=50
func (h *Handler) handleSearchHistory(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Archive not connected"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	searches, err := h.archive.RecentSearches(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch search history", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  searches,
		"count": len(searches),
	})
}
