// Package server exposes the NL to SQL pipeline over HTTP
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/guardrail"
	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
	"github.com/seanankenbruck/analytics-sql-ai/internal/pipeline"
	"github.com/seanankenbruck/analytics-sql-ai/internal/quality"
	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
)

// Pipeline answers questions and forgets sessions
type Pipeline interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
	Reset(ctx context.Context, sessionID string) error
}

// SchemaRegistry serves and reloads the catalog
type SchemaRegistry interface {
	Current() *schema.Catalog
	Reload(ctx context.Context) (*schema.Catalog, error)
}

// Server holds the HTTP handlers
type Server struct {
	pipeline      Pipeline
	registry      SchemaRegistry
	validator     *guardrail.Validator
	gate          *quality.Gate
	defaultLimit  int
	healthChecker *observability.HealthChecker
	rateLimiter   *RateLimiter
	metrics       *observability.MetricsCollector
	logger        *observability.Logger
}

// NewServer creates a server
func NewServer(p Pipeline, registry SchemaRegistry) *Server {
	return &Server{
		pipeline:     p,
		registry:     registry,
		validator:    guardrail.NewValidator(),
		gate:         quality.NewGate(),
		defaultLimit: quality.DefaultLimit,
		metrics:      observability.GetGlobalMetrics(),
		logger:       observability.NewLogger("server"),
	}
}

// SetHealthChecker sets the health checker for the server
func (s *Server) SetHealthChecker(healthChecker *observability.HealthChecker) {
	s.healthChecker = healthChecker
}

// SetDefaultLimit sets the LIMIT the validate endpoint proposes as a repair
func (s *Server) SetDefaultLimit(n int) {
	if n > 0 {
		s.defaultLimit = n
	}
}

// SetRateLimiter limits requests to the API routes
func (s *Server) SetRateLimiter(rl *RateLimiter) {
	s.rateLimiter = rl
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() *gin.Engine {
	r := gin.New()
	r.Use(observability.RecoveryMiddleware(s.logger))
	r.Use(observability.RequestLoggingMiddleware(s.logger))
	r.Use(observability.CORSWithLogging(s.logger))
	r.Use(observability.MetricsMiddleware())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)

	api := r.Group("/api/v1")
	if s.rateLimiter != nil {
		api.Use(RateLimitMiddleware(s.rateLimiter, s.logger))
	}
	{
		api.POST("/query", s.handleQuery)
		api.DELETE("/sessions/:id", s.handleResetSession)

		api.GET("/schema", s.handleGetSchema)
		api.POST("/schema/reload", s.handleReloadSchema)

		api.POST("/validate", s.handleValidate)
	}

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.healthChecker == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
			"service": "analytics-sql-ai",
		})
		return
	}

	response := s.healthChecker.GetHealthResponse(c.Request.Context())
	statusCode := http.StatusOK
	if response.Status == observability.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":   s.metrics.GetAll(),
		"timestamp": time.Now(),
	})
}

// handleQuery runs one conversation turn. The session comes from the
// X-Session-ID header, then the body; a new one is issued when both are empty
// and returned in the response header.
func (s *Server) handleQuery(c *gin.Context) {
	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		enhancedErr := errors.NewInvalidInputError("request body", err.Error())
		c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
		return
	}

	if header := c.GetHeader(observability.SessionIDHeader); header != "" {
		req.SessionID = header
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	c.Header(observability.SessionIDHeader, req.SessionID)

	response, err := s.pipeline.Process(c.Request.Context(), req)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleResetSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := s.pipeline.Reset(c.Request.Context(), sessionID); err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"reset":      true,
	})
}

func (s *Server) handleGetSchema(c *gin.Context) {
	catalog := s.registry.Current()
	if catalog == nil {
		err := errors.NewSchemaError("no schema catalog is loaded")
		c.JSON(http.StatusServiceUnavailable, formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version": catalog.Version(),
		"tables":  catalog,
	})
}

func (s *Server) handleReloadSchema(c *gin.Context) {
	catalog, err := s.registry.Reload(c.Request.Context())
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	if catalog == nil {
		err := errors.NewSchemaError("no schema catalog is loaded")
		c.JSON(http.StatusServiceUnavailable, formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version": catalog.Version(),
		"tables":  len(catalog.TableNames()),
	})
}

// ValidateRequest is the body of POST /api/v1/validate
type ValidateRequest struct {
	SQL      string `json:"sql" binding:"required"`
	Question string `json:"question,omitempty"`
}

// ValidateResponse reports the guardrail verdict and, for valid statements,
// the quality repair the pipeline would apply.
type ValidateResponse struct {
	Valid       bool           `json:"valid"`
	Violation   string         `json:"violation,omitempty"`
	Message     string         `json:"message,omitempty"`
	Identifier  string         `json:"identifier,omitempty"`
	Suggestion  string         `json:"suggestion,omitempty"`
	RepairedSQL string         `json:"repaired_sql,omitempty"`
	Quality     *quality.Issue `json:"quality_issue,omitempty"`
}

func (s *Server) handleValidate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		enhancedErr := errors.NewInvalidInputError("request body", err.Error())
		c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
		return
	}

	catalog := s.registry.Current()
	if catalog == nil {
		err := errors.NewSchemaError("no schema catalog is loaded")
		c.JSON(http.StatusServiceUnavailable, formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, ValidateStatement(s.validator, s.gate, catalog, req.SQL, req.Question, s.defaultLimit))
}

// ValidateStatement runs the guardrail on sql and, when it passes, the LIMIT
// repair and quality gate the pipeline would apply
func ValidateStatement(v *guardrail.Validator, gate *quality.Gate, catalog *schema.Catalog, sql, question string, limit int) ValidateResponse {
	outcome := v.Validate(sql, catalog)
	if !outcome.Valid() {
		return ValidateResponse{
			Violation:  outcome.Kind.String(),
			Message:    outcome.Message,
			Identifier: outcome.Identifier,
			Suggestion: outcome.Suggestion,
		}
	}

	resp := ValidateResponse{Valid: true}
	repaired, changed := quality.EnsureLimit(sql, limit)
	if changed {
		resp.RepairedSQL = repaired
	}
	var issue *quality.Issue
	if err := gate.Check(repaired, question); errors.As(err, &issue) {
		resp.Quality = issue
	}
	return resp
}

// formatErrorResponse formats an error into a user-friendly response
func formatErrorResponse(err error) gin.H {
	var enhancedErr *errors.EnhancedError
	if errors.As(err, &enhancedErr) {
		response := gin.H{
			"error": gin.H{
				"code":    enhancedErr.Code,
				"message": enhancedErr.Message,
			},
		}

		if enhancedErr.Details != "" {
			response["error"].(gin.H)["details"] = enhancedErr.Details
		}

		if enhancedErr.Suggestion != "" {
			response["error"].(gin.H)["suggestion"] = enhancedErr.Suggestion
		}

		if len(enhancedErr.Metadata) > 0 {
			response["error"].(gin.H)["metadata"] = enhancedErr.Metadata
		}

		return response
	}

	// Fallback for regular errors
	return gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	}
}

// getErrorStatusCode returns the appropriate HTTP status code for an error
func getErrorStatusCode(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeMissingRequired:
		return http.StatusBadRequest
	case errors.ErrCodeSchemaInvalid:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeQueryGeneration, errors.ErrCodeClarification, errors.ErrCodeExplanation:
		return http.StatusBadGateway
	case errors.ErrCodeSessionStore, errors.ErrCodeDatabaseConnection:
		return http.StatusServiceUnavailable
	case errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
