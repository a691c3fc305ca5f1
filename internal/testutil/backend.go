// Package testutil provides a scriptable fake of the scraping job API for
// package tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StartCall records one POST /api/scrape body.
type StartCall struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
	MaxPages  int    `json:"max_pages"`
}

// Backend is an httptest server speaking the job API. Zero status fields
// mean 200. Frames queued with Send are delivered once the session's
// progress stream connects.
type Backend struct {
	Server *httptest.Server

	mu           sync.Mutex
	healthStatus int
	startStatus  int
	startBody    string
	streamStatus int
	starts       []StartCall
	streams      map[string]*sessionStream
	onStart      func(StartCall)

	closing chan struct{}
	once    sync.Once
}

type sessionStream struct {
	frames    chan string
	connected chan struct{}
	connOnce  sync.Once
}

// NewBackend starts a fake backend that is closed with t's cleanup.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{
		streams: make(map[string]*sessionStream),
		closing: make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/api/health", b.handleHealth)
	r.Post("/api/scrape", b.handleStart)
	r.Get("/api/scrape-progress/{sessionID}", b.handleProgress)

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Close)
	return b
}

// URL is the base URL of the fake.
func (b *Backend) URL() string { return b.Server.URL }

// Close ends all open streams and stops the server.
func (b *Backend) Close() {
	b.once.Do(func() {
		close(b.closing)
		b.Server.CloseClientConnections()
		b.Server.Close()
	})
}

// SetHealthStatus sets the status returned by the liveness probe.
func (b *Backend) SetHealthStatus(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthStatus = code
}

// SetStartResponse sets the status and raw body returned by the start command.
func (b *Backend) SetStartResponse(code int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startStatus = code
	b.startBody = body
}

// SetStreamStatus makes the progress endpoint answer with code instead of a stream.
func (b *Backend) SetStreamStatus(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamStatus = code
}

// OnStart runs fn in its own goroutine after each accepted start command.
func (b *Backend) OnStart(fn func(StartCall)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStart = fn
}

// Starts returns the start commands received so far.
func (b *Backend) Starts() []StartCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]StartCall, len(b.starts))
	copy(out, b.starts)
	return out
}

// Send queues a raw SSE chunk for the session. The chunk is written verbatim.
func (b *Backend) Send(sessionID, chunk string) {
	b.stream(sessionID).frames <- chunk
}

// SendEvent queues a `data:` frame carrying {"type": typ, "data": data}.
func (b *Backend) SendEvent(sessionID, typ string, data any) {
	frame := map[string]any{"type": typ}
	if data != nil {
		frame["data"] = data
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		panic(err)
	}
	b.Send(sessionID, fmt.Sprintf("data: %s\n\n", raw))
}

// End closes the session's stream after queued frames are written.
func (b *Backend) End(sessionID string) {
	close(b.stream(sessionID).frames)
}

// WaitConnected blocks until the session's progress stream is open.
func (b *Backend) WaitConnected(t *testing.T, sessionID string) {
	t.Helper()
	select {
	case <-b.stream(sessionID).connected:
	case <-time.After(5 * time.Second):
		t.Fatalf("progress stream for %s never connected", sessionID)
	}
}

func (b *Backend) stream(sessionID string) *sessionStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[sessionID]
	if !ok {
		s = &sessionStream{
			frames:    make(chan string, 128),
			connected: make(chan struct{}),
		}
		b.streams[sessionID] = s
	}
	return s
}

func (b *Backend) handleHealth(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	code := b.healthStatus
	b.mu.Unlock()
	if code == 0 {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]string{"status": "healthy"})
}

func (b *Backend) handleStart(w http.ResponseWriter, r *http.Request) {
	var call StartCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "bad request"})
		return
	}

	b.mu.Lock()
	b.starts = append(b.starts, call)
	code, body, hook := b.startStatus, b.startBody, b.onStart
	b.mu.Unlock()

	if code == 0 {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if body == "" {
		body = `{"success":true,"message":"Scraping started"}`
	}
	_, _ = w.Write([]byte(body))

	if hook != nil && code < 300 {
		go hook(call)
	}
}

func (b *Backend) handleProgress(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	code := b.streamStatus
	b.mu.Unlock()
	if code != 0 && code != http.StatusOK {
		http.Error(w, "no stream", code)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	s := b.stream(chi.URLParam(r, "sessionID"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	s.connOnce.Do(func() { close(s.connected) })

	for {
		select {
		case <-r.Context().Done():
			return
		case <-b.closing:
			return
		case chunk, ok := <-s.frames:
			if !ok {
				return
			}
			if _, err := fmt.Fprint(w, chunk); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
