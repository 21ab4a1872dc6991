package main

import (
	"context"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/radargun/stressor"
)

// newStatusRouter builds the run's status surface: a small gin HTTP API
// exposing live operation statistics and a health probe, in the same
// router-per-process style as the teacher's restapi/main.go. It skips that
// server's multi-store registration, Swagger docs, and Okta-gated bearer
// auth: a single stress run has one fixed set of routes and no external
// tenants to authenticate, so none of those have a home here.
func newStatusRouter(runID string, stats *stressor.Statistics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "runId": runID})
	})
	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, stats.SnapshotStats(false, time.Now().UnixNano()))
	})
	return router
}

// serveStatus runs the status router until ctx is canceled, logging instead
// of failing the run if the listener can't bind (the port may already be
// taken by another worker process on the same host).
func serveStatus(ctx context.Context, addr, runID string, stats *stressor.Statistics) {
	srv := &http.Server{Addr: addr, Handler: newStatusRouter(runID, stats)}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("status server stopped", "addr", addr, "error", err)
	}
}
