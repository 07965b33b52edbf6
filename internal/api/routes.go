package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rawblock/babel-engine/internal/archive"
	"github.com/rawblock/babel-engine/internal/babel"
	"github.com/rawblock/babel-engine/internal/cache"
	"github.com/rawblock/babel-engine/internal/config"
	"github.com/rawblock/babel-engine/internal/sampler"
	"github.com/rawblock/babel-engine/internal/search"
	"github.com/rawblock/babel-engine/pkg/models"
)

const engineName = "RawBlock Babel Engine v1.0"

// Request caps, echoed in the 400 bodies.
const (
	maxSearchResults = 50
	maxBatchSize     = 100
)

// Handler carries the wired subsystems into the route handlers. Pipeline,
// store, and hub are required; sampler and archive are optional and
// nil-checked per route.
type Handler struct {
	cfg      *config.Config
	pipeline *search.Pipeline
	store    cache.Store
	hub      *Hub
	sampler  *sampler.Sampler
	archive  *archive.Store
	limiter  *RateLimiter
	log      *zap.Logger
	started  time.Time
}

func NewHandler(cfg *config.Config, pipeline *search.Pipeline, store cache.Store, hub *Hub, smp *sampler.Sampler, arc *archive.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		cfg:      cfg,
		pipeline: pipeline,
		store:    store,
		hub:      hub,
		sampler:  smp,
		archive:  arc,
		log:      logger.Named("api"),
		started:  time.Now(),
	}
	if cfg.Server.RateLimitPerMinute > 0 {
		burst := cfg.Server.RateLimitPerMinute / 4
		if burst < 5 {
			burst = 5
		}
		h.limiter = NewRateLimiter(cfg.Server.RateLimitPerMinute, burst)
	}
	return h
}

// Close releases handler-owned background state.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://rawblock.net,https://www.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Tag every request so responses, logs, and stream events correlate.
	r.Use(func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	})

	api := r.Group("/api/v1")
	if h.limiter != nil {
		api.Use(h.limiter.Middleware())
	}
	{
		api.POST("/search", h.handleSearch)
		api.GET("/search/suggestions", h.handleSuggestions)
		api.GET("/search/cache/stats", h.handleCacheStats)
		api.DELETE("/search/cache", h.handleCacheFlush)

		api.POST("/generate", h.handleGenerate)
		api.POST("/generate/batch", h.handleGenerateBatch)
		api.GET("/generate/random", h.handleRandomPage)
		api.POST("/generate/validate", h.handleValidatePage)

		api.POST("/decode", h.handleDecode)
		api.POST("/decode/batch", h.handleDecodeBatch)
		api.POST("/decode/score", h.handleScoreText)

		api.POST("/enumerate", h.handleEnumerate)
		api.GET("/enumerate/addresses", h.handleEnumerateAddresses)
		api.POST("/enumerate/common", h.handleCommonAddresses)
		api.POST("/enumerate/substrings", h.handleEnumerateSubstrings)

		// Page protocol consumed by remote/hybrid peers.
		api.GET("/pages/:address", h.handleGetPage)

		api.GET("/archive/pages", h.handleTopPages)
		api.GET("/archive/searches", h.handleSearchHistory)

		api.GET("/sampler/progress", h.handleSamplerProgress)
		api.GET("/health", h.handleHealth)
		api.GET("/stream", h.hub.Subscribe)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// handleHealth returns engine status and capabilities for service discovery
// and peer pings.
func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "operational",
		"engine":        engineName,
		"configVersion": h.cfg.Version(),
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
		"capabilities": gin.H{
			"local_mode":    true,
			"remote_mode":   h.cfg.Remote.BaseURL != "",
			"hybrid_mode":   h.cfg.Remote.BaseURL != "",
			"normalization": h.cfg.Normalization.Enabled,
			"sampler":       h.sampler != nil,
			"stream":        true,
		},
		"cacheBackend": h.cfg.Cache.Backend,
		"dbConnected":  h.archive != nil,
	})
}

// handleSamplerProgress returns the background sampler's counters.
func (h *Handler) handleSamplerProgress(c *gin.Context) {
	if h.sampler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sampler not enabled"})
		return
	}
	c.JSON(http.StatusOK, h.sampler.Progress())
}

// renderSearchError maps pipeline errors onto HTTP statuses.
func (h *Handler) renderSearchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, babel.ErrInvalidQuery),
		errors.Is(err, babel.ErrInvalidConfig),
		errors.Is(err, search.ErrInvalidMode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, search.ErrDeadline):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed", "details": err.Error()})
	}
}

// broadcastSearchEvent pushes a search completion onto the stream so
// dashboards can tail engine activity live.
func (h *Handler) broadcastSearchEvent(result *models.SearchResult) {
	topScore := 0.0
	if len(result.Results) > 0 {
		topScore = result.Results[0].Coherence.OverallScore
	}
	payload := gin.H{
		"type":       "search_completed",
		"query":      result.Query,
		"mode":       result.Mode,
		"totalFound": result.TotalFound,
		"returned":   len(result.Results),
		"topScore":   topScore,
		"elapsedMs":  result.ElapsedMs,
		"partial":    result.Metadata.Partial,
	}
	payloadBytes, _ := json.Marshal(payload)
	h.hub.Broadcast(payloadBytes)
}
