package status

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/chat"
	"github.com/zulandar/switchboard/internal/diagnostics"
	"github.com/zulandar/switchboard/internal/session"
	"github.com/zulandar/switchboard/internal/transcript"
)

type fakeSession struct {
	state session.State
	user  string
	store *transcript.Store
}

func (f *fakeSession) State() session.State          { return f.state }
func (f *fakeSession) Username() string              { return f.user }
func (f *fakeSession) Transcript() *transcript.Store { return f.store }

func newFakeSession() *fakeSession {
	store := transcript.NewStore()
	store.Seed([]chat.Message{chat.NewJoin("alice"), chat.NewChat("alice", "hello")})
	return &fakeSession{state: session.Connected, user: "bob", store: store}
}

type fakeDiagnostics struct {
	records []diagnostics.Record
	err     error
	limit   int
}

func (f *fakeDiagnostics) Recent(limit int) ([]diagnostics.Record, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStart_NilSession(t *testing.T) {
	err := Start(context.Background(), StartOpts{Port: 9999})
	if err == nil || !strings.Contains(err.Error(), "session is required") {
		t.Errorf("err = %v, want session is required", err)
	}
}

func TestStart_NoPort(t *testing.T) {
	err := Start(context.Background(), StartOpts{Session: newFakeSession()})
	if err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Errorf("err = %v, want port is required", err)
	}
}

func TestHealthz(t *testing.T) {
	w := get(t, NewRouter(newFakeSession(), nil), "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `{"ok":true}` {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestStatus(t *testing.T) {
	w := get(t, NewRouter(newFakeSession(), nil), "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := statusResponse{State: "connected", Username: "bob", Messages: 2}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestTranscript(t *testing.T) {
	w := get(t, NewRouter(newFakeSession(), nil), "/transcript")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got []chat.Message
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Type != chat.Join || got[1].Content != "hello" {
		t.Errorf("transcript = %+v", got)
	}
}

func TestTranscript_Empty(t *testing.T) {
	sess := &fakeSession{state: session.Idle, store: transcript.NewStore()}
	w := get(t, NewRouter(sess, nil), "/transcript")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %s, want []", w.Body.String())
	}
}

func TestDiagnostics_NotConfigured(t *testing.T) {
	w := get(t, NewRouter(newFakeSession(), nil), "/diagnostics")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDiagnostics_Limit(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	diag := &fakeDiagnostics{records: []diagnostics.Record{
		{Kind: diagnostics.KindProtocol, Username: "bob", Message: "broker error: bad", At: at},
	}}
	router := NewRouter(newFakeSession(), diag)

	tests := []struct {
		query     string
		wantCode  int
		wantLimit int
	}{
		{"", http.StatusOK, defaultDiagnosticsLimit},
		{"?limit=5", http.StatusOK, 5},
		{"?limit=100000", http.StatusOK, maxDiagnosticsLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			diag.limit = 0
			w := get(t, router, "/diagnostics"+tt.query)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if diag.limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", diag.limit, tt.wantLimit)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var got []diagnosticResponse
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != 1 || got[0].Kind != diagnostics.KindProtocol || !got[0].At.Equal(at) {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestDiagnostics_StoreError(t *testing.T) {
	diag := &fakeDiagnostics{err: errors.New("db down")}
	w := get(t, NewRouter(newFakeSession(), diag), "/diagnostics")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "db down") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	w := get(t, NewRouter(newFakeSession(), nil), "/nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestEvents_StreamsTranscriptChanges(t *testing.T) {
	sess := newFakeSession()
	srv := httptest.NewServer(NewRouter(sess, nil))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := make(chan string, 32)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	expect := func(prefix string) string {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed waiting for %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	expect("event: connected")
	sess.store.Append(chat.NewChat("carol", "hey"))
	expect("event: message")
	data := expect("data: ")
	if !strings.Contains(data, `"sender":"carol"`) {
		t.Errorf("data = %s", data)
	}

	sess.store.Seed(nil)
	expect("event: seeded")
	if data := expect("data: "); data != `data: {"messages":0}` {
		t.Errorf("seeded data = %s", data)
	}
}
