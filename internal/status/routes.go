package status

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/diagnostics"
)

const (
	defaultDiagnosticsLimit = 50
	maxDiagnosticsLimit     = 500
)

// registerRoutes sets up all status routes on the Gin router.
func registerRoutes(router *gin.Engine, sess Session, diag DiagnosticsSource) {
	router.GET("/healthz", handleHealth())
	router.GET("/status", handleStatus(sess))
	router.GET("/transcript", handleTranscript(sess))
	router.GET("/diagnostics", handleDiagnostics(diag))
	router.GET("/events", handleEvents(sess))
}

type statusResponse struct {
	State    string `json:"state"`
	Username string `json:"username"`
	Messages int    `json:"messages"`
}

type diagnosticResponse struct {
	Kind     diagnostics.Kind `json:"kind"`
	Username string           `json:"username,omitempty"`
	Message  string           `json:"message"`
	At       time.Time        `json:"at"`
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func handleStatus(sess Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, statusResponse{
			State:    sess.State().String(),
			Username: sess.Username(),
			Messages: sess.Transcript().Len(),
		})
	}
}

func handleTranscript(sess Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, sess.Transcript().Snapshot())
	}
}

func handleDiagnostics(diag DiagnosticsSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		if diag == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "diagnostics store not configured"})
			return
		}
		limit := defaultDiagnosticsLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxDiagnosticsLimit)
		}
		records, err := diag.Recent(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]diagnosticResponse, 0, len(records))
		for _, r := range records {
			out = append(out, diagnosticResponse{Kind: r.Kind, Username: r.Username, Message: r.Message, At: r.At})
		}
		c.JSON(http.StatusOK, out)
	}
}
