// Package status serves a read-only HTTP view of a running chat session and
// prints scheduled status reports.
package status

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/diagnostics"
	"github.com/zulandar/switchboard/internal/session"
	"github.com/zulandar/switchboard/internal/transcript"
)

// Session is the part of a session controller the status surface reads.
type Session interface {
	State() session.State
	Username() string
	Transcript() *transcript.Store
}

// DiagnosticsSource lists persisted diagnostic records, newest first.
type DiagnosticsSource interface {
	Recent(limit int) ([]diagnostics.Record, error)
}

// StartOpts holds configuration for the status server.
type StartOpts struct {
	Session     Session
	Diagnostics DiagnosticsSource // optional
	Port        int
	Out         io.Writer
}

// Start launches the status HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Session == nil {
		return fmt.Errorf("status: session is required")
	}
	if opts.Port <= 0 {
		return fmt.Errorf("status: port is required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(opts.Session, opts.Diagnostics)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Status server running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine serving the status routes. diag may be nil.
func NewRouter(sess Session, diag DiagnosticsSource) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, sess, diag)
	return router
}
