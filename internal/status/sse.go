package status

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/transcript"
)

// eventBuffer bounds the events queued for one slow stream client.
const eventBuffer = 64

type seededEvent struct {
	Messages int `json:"messages"`
}

// handleEvents streams transcript changes as server-sent events: "message"
// for each appended message and "seeded" when a history snapshot replaces
// the transcript.
func handleEvents(sess Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		events := make(chan transcript.Event, eventBuffer)
		cancel := sess.Transcript().Subscribe(func(ev transcript.Event) {
			select {
			case events <- ev:
			default:
				// Client is too slow; it can resync from /transcript.
			}
		})
		defer cancel()

		writeSSE(c.Writer, "connected", gin.H{"state": sess.State().String()})
		c.Writer.Flush()

		ctx := c.Request.Context()
		heartbeat := time.NewTicker(15 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case ev := <-events:
				if ev.Seeded {
					writeSSE(c.Writer, "seeded", seededEvent{Messages: ev.Len})
				} else {
					writeSSE(c.Writer, "message", ev.Message)
				}
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
