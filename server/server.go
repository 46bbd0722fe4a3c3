// Package server exposes the query pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prepwise/glance/catalog"
	"github.com/prepwise/glance/execution"
	"github.com/prepwise/glance/graph"
	"github.com/prepwise/glance/model"
	"github.com/prepwise/glance/planner"
	"github.com/prepwise/glance/storage"
	"github.com/prepwise/glance/strategy"
)

// Server holds the handler dependencies.
type Server struct {
	pipeline *execution.Pipeline
	sessions storage.ConversationStorage
	queries  graph.QueryService
	worker   *catalog.Worker
	store    *execution.Store
	logger   *slog.Logger
}

// New creates a server. worker may be nil when cataloging is not exposed.
func New(
	pipeline *execution.Pipeline,
	sessions storage.ConversationStorage,
	queries graph.QueryService,
	worker *catalog.Worker,
	store *execution.Store,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pipeline: pipeline,
		sessions: sessions,
		queries:  queries,
		worker:   worker,
		store:    store,
		logger:   logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/tools", s.handleTools)
	router.GET("/stats", s.handleStats)
	router.POST("/query", s.handleQuery)
	router.POST("/test-tool", s.handleTestTool)
	router.POST("/catalog", s.handleCatalog)

	return router
}

type queryRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Email     string `json:"email"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request: " + err.Error(),
		})
		return
	}

	user := model.UserContext{UserID: req.UserID, Email: req.Email}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	history, err := s.sessions.Load(c.Request.Context(), sessionID)
	if err != nil {
		s.logger.Warn("failed to load session history", "sessionId", sessionID, "error", err)
		history = nil
	}

	result, err := s.pipeline.Run(c.Request.Context(), req.Query, user, history)
	if err != nil {
		var validationErr *execution.ValidationError
		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"error":   "strategy failed validation",
				"details": validationErr.Errors,
			})
		case errors.Is(err, planner.ErrPlanningExhausted):
			c.JSON(http.StatusBadGateway, gin.H{
				"success": false,
				"error":   "no strategy could be produced for this query",
			})
		default:
			s.logger.Error("query failed", "sessionId", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "query execution failed",
			})
		}
		return
	}

	history = append(history, model.ConversationTurn{
		Query:     req.Query,
		Response:  result.Response,
		Timestamp: time.Now(),
	})
	if err := s.sessions.Save(c.Request.Context(), sessionID, history); err != nil {
		s.logger.Warn("failed to save session history", "sessionId", sessionID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": sessionID,
		"response":  result.Response,
		"metadata":  result.Metadata,
	})
}

type testToolRequest struct {
	Tool       string         `json:"tool" binding:"required"`
	Parameters map[string]any `json:"parameters"`
	UserID     string         `json:"userId"`
	Email      string         `json:"email"`
}

func (s *Server) handleTestTool(c *gin.Context) {
	var req testToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request: " + err.Error(),
		})
		return
	}

	queryType, ok := strategy.ParseQueryType(req.Tool)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "unknown tool: " + req.Tool,
		})
		return
	}
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}

	user := model.UserContext{UserID: req.UserID, Email: req.Email}
	results, err := s.queries.ExecuteQuery(c.Request.Context(), queryType, req.Parameters, user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  results.Results,
		"count":   len(results.Results),
	})
}

func (s *Server) handleTools(c *gin.Context) {
	tools := graph.Tools()
	c.JSON(http.StatusOK, gin.H{
		"tools": tools,
		"count": len(tools),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if pinger, ok := s.queries.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"graph":  "unreachable",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"executions": s.store.GetStatistics()})
}

type catalogRequest struct {
	UserID      string `json:"userId"`
	Email       string `json:"email" binding:"required"`
	AccessToken string `json:"accessToken" binding:"required"`
	MonthsBack  int    `json:"monthsBack"`
	BatchSize   int    `json:"batchSize"`
}

func (s *Server) handleCatalog(c *gin.Context) {
	if s.worker == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"success": false,
			"error":   "cataloging is not enabled",
		})
		return
	}

	var req catalogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request: " + err.Error(),
		})
		return
	}

	opts := catalog.DefaultFetchOptions()
	if req.MonthsBack > 0 {
		opts.MonthsBack = req.MonthsBack
	}
	if req.BatchSize > 0 {
		opts.BatchSize = req.BatchSize
	}

	user := model.UserContext{UserID: req.UserID, Email: req.Email}
	tokens := model.UserTokens{AccessToken: req.AccessToken}

	report, err := s.worker.ProcessCalendarData(c.Request.Context(), user, tokens, opts)
	if err != nil {
		if errors.Is(err, catalog.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"status":  "already_running",
			})
			return
		}
		s.logger.Error("catalog run failed", "user", req.Email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"report":  report,
	})
}
