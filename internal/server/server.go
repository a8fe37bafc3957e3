// Package server exposes merged calendars over HTTP. Every request reads
// the current configuration snapshot, so a config reload applies to the
// next request without restarting the process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"icalmerge/internal/config"
	"icalmerge/internal/ics"
	appLog "icalmerge/internal/log"
	"icalmerge/internal/merge"
)

const shutdownTimeout = 10 * time.Second

// Server routes calendar requests to the merge engine.
type Server struct {
	store  *config.Store
	merger *merge.Merger
	engine *gin.Engine
}

// New builds the gin engine and registers the routes.
func New(store *config.Store, merger *merge.Merger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:  store,
		merger: merger,
	}

	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())

	// Avoid gin's "trusted all proxies" warning.
	_ = engine.SetTrustedProxies([]string{"127.0.0.1"})

	engine.GET("/health", s.handleHealth)
	engine.GET("/ical/:calendar", s.handleCalendar)

	s.engine = engine
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout before returning.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLog.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	cfg := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"calendars": len(cfg.Calendars),
	})
}

// handleCalendar resolves one virtual calendar and returns it as a
// serialized VCALENDAR document. Failing sources degrade the response
// instead of failing it; only an unknown calendar id is a client error.
func (s *Server) handleCalendar(c *gin.Context) {
	id := c.Param("calendar")
	cfg := s.store.Snapshot()

	result, err := s.merger.Merge(c.Request.Context(), cfg, id)
	if err != nil {
		if errors.Is(err, merge.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("calendar %q not found", id)})
			return
		}
		appLog.Error("merge failed", err, "calendar", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "merge failed"})
		return
	}

	// Per-source failures are logged with redacted URLs by the merge
	// engine; here we only note that the response is degraded.
	if len(result.Errors) > 0 {
		appLog.Info("calendar served degraded",
			"calendar", id,
			"failed_sources", len(result.Errors),
		)
	}

	cal := ics.BuildCalendar(id, result.Events)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(cal.Serialize()))
}

// requestLogger tags every request with a uuid and writes one access-log
// line after the handler chain completes.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := uuid.NewString()
		c.Header("X-Request-Id", reqID)
		start := time.Now()

		c.Next()

		appLog.Info("http request",
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
