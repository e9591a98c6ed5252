// Package server exposes the document pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/finovo/creditocr/internal/async"
	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/dms"
	"github.com/finovo/creditocr/internal/export"
)

type Server struct {
	dms    *dms.Service
	export *export.Service
	logger *slog.Logger
	engine *gin.Engine
}

func New(dmsSvc *dms.Service, exportSvc *export.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{dms: dmsSvc, export: exportSvc, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.MaxMultipartMemory = 32 << 20

	api := engine.Group("/api")
	{
		docs := api.Group("/documents")
		{
			docs.POST("", s.uploadDocument)
			docs.GET("", s.listDocuments)
			docs.GET("/:id/status", s.documentStatus)
			docs.GET("/:id/results", s.documentResults)
			docs.GET("/:id/jobs", s.documentJobs)
			docs.GET("/:id/export", s.exportDocument)
			docs.POST("/:id/process", s.processDocument)
		}
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	s.engine = engine
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, cfg common.ServerConfig) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.MaxUploadBytes > 0 {
		s.engine.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server.stopped")
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := uuid.NewString()
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), reqID))
		c.Header("X-Request-ID", reqID)

		c.Next()
		logger.Info("http.request",
			"req_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, common.ErrDocumentNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "document is not ready for extraction"})
	case errors.Is(err, common.ErrActiveJobExists):
		c.JSON(http.StatusConflict, gin.H{"error": "an extraction is already running for this document"})
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, async.ErrQueueClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is shutting down"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
