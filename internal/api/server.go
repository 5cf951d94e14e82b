package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"go-lead-radar/internal/health"
	"go-lead-radar/internal/jobs"
	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
)

const (
	defaultHeartbeatLimit = 50
	maxHeartbeatLimit     = 500
)

type Triggerer interface {
	Trigger(ctx context.Context, job string, limit int) (string, error)
	Running(job string) (string, bool)
	Last(job string) (jobs.Result, bool)
}

type HealthEvaluator interface {
	Evaluate(ctx context.Context) (health.Report, error)
}

type HeartbeatLister interface {
	ListHeartbeats(ctx context.Context, job string, limit int) ([]models.Heartbeat, error)
}

type Server struct {
	// runs triggered over HTTP outlive the request, so they get this context
	baseCtx    context.Context
	jobs       Triggerer
	health     HealthEvaluator
	heartbeats HeartbeatLister
	metrics    gin.HandlerFunc
	logger     logging.Logger
}

func NewServer(baseCtx context.Context, triggerer Triggerer, evaluator HealthEvaluator, heartbeats HeartbeatLister, metrics gin.HandlerFunc, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		baseCtx:    baseCtx,
		jobs:       triggerer,
		health:     evaluator,
		heartbeats: heartbeats,
		metrics:    metrics,
		logger:     logger,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Lead Radar API is running!",
			"status":  "healthy",
		})
	})
	r.GET("/health", s.getHealth)
	r.GET("/heartbeats", s.listHeartbeats)
	r.POST("/jobs/:name", s.triggerJob)
	r.GET("/jobs/:name", s.jobStatus)
	if s.metrics != nil {
		r.GET("/metrics", s.metrics)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.WithFields(logging.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		}).Debug("http request")
	}
}

func (s *Server) getHealth(c *gin.Context) {
	report, err := s.health.Evaluate(c.Request.Context())
	if err != nil {
		s.logger.WithError(err).Error("❌ Health evaluation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "health evaluation failed"})
		return
	}
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (s *Server) listHeartbeats(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultHeartbeatLimit)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	limit = min(limit, maxHeartbeatLimit)

	hbs, err := s.heartbeats.ListHeartbeats(c.Request.Context(), c.Query("job"), limit)
	if err != nil {
		s.logger.WithError(err).Error("❌ Listing heartbeats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list heartbeats"})
		return
	}
	if hbs == nil {
		hbs = []models.Heartbeat{}
	}
	c.JSON(http.StatusOK, gin.H{"heartbeats": hbs})
}

func (s *Server) triggerJob(c *gin.Context) {
	name := c.Param("name")
	limit, err := queryInt(c, "limit", 0)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}

	runID, err := s.jobs.Trigger(s.baseCtx, name, limit)
	switch {
	case errors.Is(err, jobs.ErrUnknownJob):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, jobs.ErrAlreadyRunning):
		running, _ := s.jobs.Running(name)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "run_id": running})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		s.logger.WithFields(logging.Fields{"job": name, "run_id": runID}).Info("📨 Job triggered over HTTP")
		c.JSON(http.StatusAccepted, gin.H{"job": name, "run_id": runID})
	}
}

func (s *Server) jobStatus(c *gin.Context) {
	name := c.Param("name")
	resp := gin.H{"job": name, "running": false}
	if id, ok := s.jobs.Running(name); ok {
		resp["running"] = true
		resp["run_id"] = id
	}
	if last, ok := s.jobs.Last(name); ok {
		resp["last"] = last
	}
	c.JSON(http.StatusOK, resp)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
