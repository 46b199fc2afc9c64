// Package dashboard serves a small JSON status API for a running tally
// daemon: live intake sessions, today's counters and recent SQL rows.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/tally/internal/intake"
	"github.com/zulandar/tally/internal/models"
	"github.com/zulandar/tally/internal/report"
)

// SessionLister exposes the live intake sessions.
type SessionLister interface {
	Snapshot() []intake.SessionInfo
}

// StatsProvider exposes today's persisted-record counters.
type StatsProvider interface {
	Today() report.Summary
}

// RecordLister lists the newest persisted rows. Only the SQL backend has one.
type RecordLister interface {
	Recent(ctx context.Context, limit int) ([]models.ReportRow, error)
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Sessions SessionLister
	Stats    StatsProvider
	Records  RecordLister // optional
	Port     int
	Out      io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Sessions == nil {
		return fmt.Errorf("dashboard: sessions is required")
	}
	if opts.Stats == nil {
		return fmt.Errorf("dashboard: stats is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
