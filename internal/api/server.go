// Package api provides the HTTP API for observing a running evacuation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/engine"
	"github.com/talgya/evacsim/internal/persistence"
)

// Server serves the simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // optional
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// AgentsPerMinute limits bulk agent listings per client. 0 = unlimited.
	AgentsPerMinute int
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	agentsHandler := s.handleAgents
	if s.AgentsPerMinute > 0 {
		agentsHandler = RateLimitMiddleware(NewRateLimiter(s.AgentsPerMinute, time.Minute), s.handleAgents)
	}

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/agents", agentsHandler)
	mux.HandleFunc("/api/v1/agent/", s.handleAgentDetail)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunDetail)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/stop", s.adminOnly(s.handleStop))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, s.Handler()); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
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
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require a POST with bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no EVACSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tick := s.Sim.CurrentTick()
	stats := s.Sim.Stats()
	status := map[string]any{
		"name":      "evacsim",
		"tick":      tick,
		"sim_time":  engine.SimTime(tick, s.Sim.TickDuration),
		"running":   s.Eng != nil && s.Eng.Running(),
		"agents":    len(s.Sim.Agents),
		"evacuated": stats.Evacuated,
		"stranded":  stats.Stranded,
		"done":      s.Sim.Done(),
		"nodes":     s.Sim.Graph.Len(),
		"targets":   len(s.Sim.Graph.Targets()),
	}
	if s.DB != nil && s.DB.RunID() != uuid.Nil {
		status["run"] = s.DB.RunID()
	}
	writeJSON(w, status)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Stats())
}

// handleStatsHistory serves per-tick stats after ?from (default 0). With
// ?run=<uuid> it reads a stored run instead of the live one.
func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if run := r.URL.Query().Get("run"); run != "" {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		id, err := uuid.Parse(run)
		if err != nil {
			http.Error(w, "invalid run id", http.StatusBadRequest)
			return
		}
		rows, err := s.DB.TickHistory(id)
		if err != nil {
			slog.Error("stats history query failed", "error", err)
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		if rows == nil {
			rows = []engine.TickStats{}
		}
		writeJSON(w, rows)
		return
	}

	from := uint64(0)
	if f := r.URL.Query().Get("from"); f != "" {
		if v, err := strconv.ParseUint(f, 10, 64); err == nil {
			from = v
		}
	}
	rows := s.Sim.HistorySince(from)
	if rows == nil {
		rows = []engine.TickStats{}
	}
	writeJSON(w, rows)
}

// agentSummary is the list view of an agent.
type agentSummary struct {
	ID        agents.AgentID `json:"id"`
	Category  string         `json:"category"`
	Lon       float64        `json:"lon"`
	Lat       float64        `json:"lat"`
	InCar     bool           `json:"in_car"`
	Evacuated bool           `json:"evacuated"`
	Remaining int            `json:"remaining_nodes"`
}

// handleAgents lists agents, optionally filtered by ?status=evacuated|moving
// and capped by ?limit.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	all := s.Sim.AgentSnapshot()
	filtered := lo.Filter(all, func(a agents.Agent, _ int) bool {
		switch status {
		case "evacuated":
			return a.Evacuated
		case "moving":
			return !a.Evacuated && !a.Stranded
		default:
			return true
		}
	})
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}

	result := lo.Map(filtered, func(a agents.Agent, _ int) agentSummary {
		return agentSummary{
			ID:        a.ID,
			Category:  a.Category.String(),
			Lon:       a.Point.Lon(),
			Lat:       a.Point.Lat(),
			InCar:     a.InCar,
			Evacuated: a.Evacuated,
			Remaining: max(0, len(a.Route)-1-a.RouteIndex),
		}
	})
	writeJSON(w, result)
}

// handleAgentDetail serves GET /api/v1/agent/:id and
// GET /api/v1/agent/:id/track.
func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 || parts[4] == "" {
		http.Error(w, "missing agent id", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(parts[4], 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	if len(parts) > 5 {
		if parts[5] != "track" {
			http.NotFound(w, r)
			return
		}
		s.handleAgentTrack(w, r, agents.AgentID(id))
		return
	}

	agent, ok := s.Sim.Agent(agents.AgentID(id))
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, agent)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.DB.Runs()
	if err != nil {
		slog.Error("runs query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

// handleAgentTrack serves the stored positions of one agent, from the run
// named by ?run=<uuid> or the active run.
func (s *Server) handleAgentTrack(w http.ResponseWriter, r *http.Request, agent agents.AgentID) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	run := s.DB.RunID()
	if q := r.URL.Query().Get("run"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			http.Error(w, "invalid run id", http.StatusBadRequest)
			return
		}
		run = id
	}
	if run == uuid.Nil {
		http.Error(w, "no run given and none active", http.StatusBadRequest)
		return
	}

	track, err := s.DB.AgentTrack(run, agent)
	if err != nil {
		slog.Error("agent track query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if track == nil {
		track = []engine.AgentState{}
	}
	writeJSON(w, track)
}

// handleRunDetail serves GET /api/v1/runs/:id with the run's metadata.
func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"))
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}

	run, err := s.DB.GetRun(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("run query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	meta, err := s.DB.Meta(id, persistence.MetaKeys...)
	if err != nil {
		slog.Error("run meta query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"run": run, "meta": meta})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	s.Eng.Stop()
	slog.Info("engine stop requested via API", "tick", s.Sim.CurrentTick())
	writeJSON(w, map[string]any{"stopping": true, "tick": s.Sim.CurrentTick()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
