// Package api serves a running simulation over HTTP for observation.
// Every endpoint is read-only; the server receives snapshots as a renderer
// and never touches the engine itself.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/episim/internal/agents"
	"github.com/talgya/episim/internal/engine"
	"github.com/talgya/episim/internal/persistence"
	"github.com/talgya/episim/internal/render"
)

const maxSSEConns = 4

// StepEvent is what the stream endpoint sends after each step.
type StepEvent struct {
	Step int  `json:"step"`
	Over bool `json:"over"`
	agents.Counts
}

// Server serves the latest snapshot and the run archive over HTTP.
type Server struct {
	Config engine.Config
	RunID  string
	DB     *persistence.DB // Optional; archive endpoints return 404 without it
	Port   int

	mu     sync.RWMutex
	latest *engine.Snapshot

	subMu   sync.Mutex
	subs    map[int]chan StepEvent
	nextSub int
	closed  bool // No more steps; subscriber channels are closed

	// Active SSE connection count (atomic).
	sseConns int32

	httpServer *http.Server
}

// Render records the snapshot and notifies stream subscribers. Slow subscribers
// miss intermediate steps rather than holding up the simulation. Once the
// outbreak is over the subscriber channels are closed, and each stream sends
// the final state from Latest before ending.
func (s *Server) Render(snap *engine.Snapshot) error {
	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()

	if snap.Done() {
		s.closeSubscribers()
		return nil
	}

	ev := stepEvent(snap)
	s.subMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.subMu.Unlock()
	return nil
}

// Close ends every open stream. Used when a run stops before the outbreak is over.
func (s *Server) Close() error {
	s.closeSubscribers()
	return nil
}

func (s *Server) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

func stepEvent(snap *engine.Snapshot) StepEvent {
	return StepEvent{Step: snap.Step, Over: snap.Done(), Counts: snap.Counts()}
}

// Latest returns the most recent snapshot, or nil before the first step.
func (s *Server) Latest() *engine.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *Server) subscribe() (int, <-chan StepEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]chan StepEvent)
	}
	s.nextSub++
	ch := make(chan StepEvent, 64)
	if s.closed {
		close(ch)
		return s.nextSub, ch
	}
	s.subs[s.nextSub] = ch
	return s.nextSub, ch
}

func (s *Server) unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.subs, id)
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	runsLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Archive endpoints hit the database, so they are rate limited.
	mux.HandleFunc("/api/v1/runs", RateLimitMiddleware(runsLimiter, s.handleRuns))
	mux.HandleFunc("/api/v1/run/", RateLimitMiddleware(runsLimiter, s.handleRunDetail))

	return corsMiddleware(getOnly(mux))
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}
	slog.Info("HTTP API starting", "addr", addr, "archive", s.DB != nil)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func getOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodOptions {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set EPISIM_CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("EPISIM_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) latestOr503(w http.ResponseWriter) *engine.Snapshot {
	snap := s.Latest()
	if snap == nil {
		http.Error(w, "simulation has not started", http.StatusServiceUnavailable)
	}
	return snap
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.latestOr503(w)
	if snap == nil {
		return
	}
	c := snap.Counts()
	status := map[string]any{
		"run_id":     s.RunID,
		"step":       snap.Step,
		"population": len(snap.Agents),
		"healthy":    c.Healthy,
		"sick":       c.Sick,
		"immune":     c.Immune,
		"over":       snap.Done(),
		"localised":  s.Config.Localised,
		"restricted": s.Config.RestrictMotion,
		"quarantine": s.Config.Quarantine,
		"seed":       s.Config.Seed,
	}
	writeJSON(w, status)
}

// handleHistory returns the count history. ?since=N trims entries before step N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	snap := s.latestOr503(w)
	if snap == nil {
		return
	}
	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "since must be a non-negative integer", http.StatusBadRequest)
			return
		}
		since = n
	}
	hist := snap.History
	if since > len(hist) {
		since = len(hist)
	}
	writeJSON(w, map[string]any{
		"since":   since,
		"history": hist[since:],
	})
}

// handleAgents returns agent positions and states. ?format=geojson returns a FeatureCollection.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	snap := s.latestOr503(w)
	if snap == nil {
		return
	}
	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, map[string]any{
			"step":   snap.Step,
			"agents": snap.Agents,
		})
	case "geojson":
		writeGeoJSON(w, snap, s.Config)
	default:
		http.Error(w, "format must be json or geojson", http.StatusBadRequest)
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "no run archive", http.StatusNotFound)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.DB.Runs(limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "archive error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

// runDetail is a run row with its decoded configuration.
type runDetail struct {
	*persistence.Run
	Config engine.Config `json:"config"`
}

// handleRunDetail serves /api/v1/run/:id, /api/v1/run/:id/history and
// /api/v1/run/:id/agents (JSON, or GeoJSON with ?format=geojson).
func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "no run archive", http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/run/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	run, err := s.DB.GetRun(id)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	cfg, err := run.Config()
	if err != nil {
		slog.Error("decode run config failed", "run_id", run.ID, "error", err)
		http.Error(w, "archive error", http.StatusInternalServerError)
		return
	}

	if len(parts) == 1 {
		writeJSON(w, runDetail{Run: run, Config: cfg})
		return
	}
	switch parts[1] {
	case "history":
		s.writeRunHistory(w, run)
	case "agents":
		s.writeRunAgents(w, r, run, cfg)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) writeRunHistory(w http.ResponseWriter, run *persistence.Run) {
	hist, err := s.DB.History(run.ID)
	if err != nil {
		slog.Error("load history failed", "run_id", run.ID, "error", err)
		http.Error(w, "archive error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"run_id": run.ID, "history": hist})
}

// writeRunAgents serves the population recorded when the run finished.
func (s *Server) writeRunAgents(w http.ResponseWriter, r *http.Request, run *persistence.Run, cfg engine.Config) {
	if run.FinishedAt == nil {
		http.Error(w, "run has not finished", http.StatusNotFound)
		return
	}
	views, err := s.DB.FinalAgents(run.ID)
	if err != nil {
		slog.Error("load agents failed", "run_id", run.ID, "error", err)
		http.Error(w, "archive error", http.StatusInternalServerError)
		return
	}
	snap := &engine.Snapshot{Step: run.Steps, Agents: views}
	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, map[string]any{
			"run_id": run.ID,
			"step":   snap.Step,
			"agents": snap.Agents,
		})
	case "geojson":
		writeGeoJSON(w, snap, cfg)
	default:
		http.Error(w, "format must be json or geojson", http.StatusBadRequest)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Connection limit.
	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.subscribe()
	defer s.unsubscribe(subID)

	// Catch-up: the current state.
	sent := -1
	if snap := s.Latest(); snap != nil {
		writeSSEEvent(w, stepEvent(snap))
		sent = snap.Step
		if snap.Done() {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	slog.Debug("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				if snap := s.Latest(); snap != nil && snap.Step != sent {
					writeSSEEvent(w, stepEvent(snap))
					flusher.Flush()
				}
				return
			}
			writeSSEEvent(w, ev)
			sent = ev.Step
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Debug("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

func writeGeoJSON(w http.ResponseWriter, snap *engine.Snapshot, cfg engine.Config) {
	data, err := render.FeatureCollection(snap, render.Zones(cfg)).MarshalJSON()
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}

func writeSSEEvent(w http.ResponseWriter, ev StepEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: step\ndata: %s\n\n", data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
