package api

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exsmiley/langread/bulkops"
	"github.com/exsmiley/langread/cache"
	"github.com/exsmiley/langread/config"
	"github.com/exsmiley/langread/store"
	"github.com/exsmiley/langread/types"
)

// ArticleService serves interactive article queries.
type ArticleService interface {
	GetArticles(ctx context.Context, query, language string, difficulty types.Difficulty, forceRefresh bool) ([]*types.SynthesizedArticle, bool, error)
}

// BulkService starts background bulk operations.
type BulkService interface {
	Start(ctx context.Context, languages, phases []string, fetchOnly bool) *bulkops.Operation
}

// ArticleLibrary administers the stored generated articles.
type ArticleLibrary interface {
	DeleteSynthesized(ctx context.Context, filter store.SynthesizedFilter) (int64, error)
}

// TagService exposes the tag review operations.
type TagService interface {
	List(ctx context.Context, activeOnly bool) ([]*types.Tag, error)
	SetActive(ctx context.Context, tagID string, active bool) error
	RecalculateCounts(ctx context.Context) (int, error)
}

// Server wires the HTTP surface.
type Server struct {
	articles ArticleService
	bulk     BulkService
	ops      bulkops.Store
	tags     TagService
	cache    *cache.Cache
	library  ArticleLibrary
}

// NewServer builds a Server. tags, cache and library may be nil; their
// endpoints then report 503.
func NewServer(articles ArticleService, bulk BulkService, ops bulkops.Store, tagSvc TagService, resultCache *cache.Cache, library ArticleLibrary) *Server {
	return &Server{
		articles: articles,
		bulk:     bulk,
		ops:      ops,
		tags:     tagSvc,
		cache:    resultCache,
		library:  library,
	}
}

// Router returns the configured gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.POST("/articles", s.handleGetArticles)
	router.DELETE("/articles", s.handleDeleteArticles)

	router.POST("/bulk-fetch", s.handleBulkFetch)
	router.GET("/bulk-fetch-status/:id", s.handleBulkFetchStatus)
	router.GET("/bulk-fetch-info", s.handleBulkFetchInfo)

	router.GET("/cache/stats", s.handleCacheStats)
	router.DELETE("/cache", s.handleCacheClear)

	router.GET("/tags", s.handleListTags)
	router.POST("/tags/:id/activate", s.handleSetTagActive(true))
	router.POST("/tags/:id/deactivate", s.handleSetTagActive(false))
	router.POST("/tags/recalculate", s.handleRecalculateTags)

	return router
}

// Run starts the server on the given address.
func (s *Server) Run(addr string) error {
	log.Printf("API server listening on %s", addr)
	return s.Router().Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type articlesRequest struct {
	Query        string `json:"query" binding:"required"`
	Language     string `json:"language"`
	Difficulty   string `json:"difficulty"`
	ForceRefresh bool   `json:"force_refresh"`
}

func (s *Server) handleGetArticles(c *gin.Context) {
	var req articlesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}
	difficulty, ok := types.ParseDifficulty(req.Difficulty)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid difficulty: " + req.Difficulty})
		return
	}

	articles, fromCache, err := s.articles.GetArticles(c.Request.Context(), req.Query, req.Language, difficulty, req.ForceRefresh)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"articles":   articles,
		"from_cache": fromCache,
	})
}

func (s *Server) handleDeleteArticles(c *gin.Context) {
	if s.library == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "article store not configured"})
		return
	}

	filter := store.SynthesizedFilter{
		Language: c.Query("language"),
		Topic:    c.Query("topic"),
	}
	if raw := c.Query("difficulty"); raw != "" {
		difficulty, ok := types.ParseDifficulty(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid difficulty: " + raw})
			return
		}
		filter.Difficulty = difficulty
	}

	removed, err := s.library.DeleteSynthesized(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

type bulkFetchRequest struct {
	Languages []string `json:"languages"`
	// Phases selects which pipeline phases to run; empty means all.
	Phases    []string `json:"phases"`
	FetchOnly bool     `json:"fetch_only"`
}

func (s *Server) handleBulkFetch(c *gin.Context) {
	var req bulkFetchRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	languages := req.Languages
	if len(languages) == 0 {
		languages = config.BulkLanguages()
	}
	for _, phase := range req.Phases {
		if !bulkops.ValidPhase(phase) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid phase: " + phase})
			return
		}
	}

	// The operation outlives this request.
	op := s.bulk.Start(context.Background(), languages, req.Phases, req.FetchOnly)
	c.JSON(http.StatusAccepted, gin.H{
		"operation_id": op.ID(),
		"languages":    languages,
		"phases":       op.RequestedPhases(),
		"fetch_only":   req.FetchOnly,
	})
}

func (s *Server) handleBulkFetchStatus(c *gin.Context) {
	op, ok := s.ops.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "operation not found"})
		return
	}
	c.JSON(http.StatusOK, op.Snapshot())
}

func (s *Server) handleBulkFetchInfo(c *gin.Context) {
	ops := s.ops.List()
	snapshots := make([]bulkops.Snapshot, 0, len(ops))
	for _, op := range ops {
		snapshots = append(snapshots, op.Snapshot())
	}
	c.JSON(http.StatusOK, gin.H{"operations": snapshots})
}

func (s *Server) handleCacheStats(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache not configured"})
		return
	}
	stats, err := s.cache.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleCacheClear(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache not configured"})
		return
	}
	removed, err := s.cache.Clear()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) handleListTags(c *gin.Context) {
	if s.tags == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tags not configured"})
		return
	}
	activeOnly := c.Query("active_only") == "true"
	tags, err := s.tags.List(c.Request.Context(), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (s *Server) handleSetTagActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.tags == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tags not configured"})
			return
		}
		if err := s.tags.SetActive(c.Request.Context(), c.Param("id"), active); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "active": active})
	}
}

func (s *Server) handleRecalculateTags(c *gin.Context) {
	if s.tags == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tags not configured"})
		return
	}
	corrected, err := s.tags.RecalculateCounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"corrected": corrected})
}
