package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/engine"
	"github.com/talgya/evacsim/internal/network"
	"github.com/talgya/evacsim/internal/persistence"
)

func newTestServer(t *testing.T) (*Server, *engine.Simulation) {
	t.Helper()
	g := network.NewGraph()
	for i := 1; i <= 3; i++ {
		require.NoError(t, g.AddNode(network.Node{ID: network.NodeID(i), Point: orb.Point{0.001 * float64(i-1), 0}}))
	}
	require.NoError(t, g.AddEdge(network.Edge{From: 1, To: 2, Length: 100}))
	require.NoError(t, g.AddEdge(network.Edge{From: 2, To: 3, Length: 100}))
	require.NoError(t, g.MarkTarget(3))

	ag := []*agents.Agent{
		{ID: 1, Position: 1, Route: []network.NodeID{1, 2, 3}, SpeedKPH: 5},
		{ID: 2, Position: 2, Route: []network.NodeID{2, 3}, DistanceAlongEdge: 95, SpeedKPH: 5},
	}
	sim := engine.NewSimulation(g, ag, 10*time.Second)
	_, err := sim.Step(1)
	require.NoError(t, err)

	return &Server{Sim: sim, Eng: engine.NewEngine(), AdminKey: "secret"}, sim
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["tick"])
	assert.Equal(t, "T+00:00:10", body["sim_time"])
	assert.Equal(t, float64(2), body["agents"])
	assert.Equal(t, float64(1), body["evacuated"])
	assert.Equal(t, false, body["done"])
}

func TestStatsAndHistory(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	var stats engine.TickStats
	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/stats").Body.Bytes(), &stats))
	assert.Equal(t, uint64(1), stats.Tick)
	assert.Equal(t, 1, stats.Evacuated)

	var history []engine.TickStats
	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/stats/history?from=1").Body.Bytes(), &history))
	assert.Empty(t, history)

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/v1/stats/history?run=abc").Code)
}

func TestAgents(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	var list []agentSummary
	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/agents").Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].Remaining)

	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/agents?status=evacuated").Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, agents.AgentID(2), list[0].ID)

	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/agents?limit=1").Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestAgentDetail(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := get(t, h, "/api/v1/agent/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var a agents.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, agents.AgentID(1), a.ID)
	assert.InDelta(t, 13.89, a.DistanceAlongEdge, 0.01)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/agent/99").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/agent/x").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/agent/").Code)
}

func TestRunsWithoutDB(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/api/v1/runs").Code)
}

// withStore attaches a fresh run store to s and records the next tick of
// every agent into it.
func withStore(t *testing.T, s *Server) uuid.UUID {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	id, err := db.BeginRun(persistence.Run{Seed: 5, Agents: 2, AlertAt: "08:30"})
	require.NoError(t, err)
	require.NoError(t, db.SaveMeta(persistence.MetaLattice, "3x1@100m"))

	s.DB = db
	s.Sim.Recorder = db
	s.Sim.RecordAgentsEvery = 1
	_, err = s.Sim.Step(2)
	require.NoError(t, err)
	return id
}

func TestAgentTrack(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/v1/agent/1/track").Code)

	id := withStore(t, s)

	rec := get(t, h, "/api/v1/agent/1/track")
	require.Equal(t, http.StatusOK, rec.Code)
	var track []engine.AgentState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &track))
	require.Len(t, track, 1)
	assert.Equal(t, uint64(2), track[0].Tick)
	assert.InDelta(t, 27.78, track[0].DistanceAlongEdge, 0.01)

	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/agent/1/track?run="+id.String()).Body.Bytes(), &track))
	assert.Len(t, track, 1)
	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/agent/1/track?run="+uuid.NewString()).Body.Bytes(), &track))
	assert.Empty(t, track)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/agent/1/track?run=zzz").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/agent/1/path").Code)
}

func TestRunDetail(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	id := withStore(t, s)

	rec := get(t, h, "/api/v1/runs/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run  persistence.Run   `json:"run"`
		Meta map[string]string `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id, body.Run.ID)
	assert.Equal(t, uint64(2), body.Run.LastTick)
	assert.Equal(t, map[string]string{persistence.MetaLattice: "3x1@100m"}, body.Meta)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/runs/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/runs/nope").Code)
}

func TestStopRequiresToken(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	assert.Equal(t, http.StatusMethodNotAllowed, get(t, h, "/api/v1/stop").Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/stop", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stop", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, s.Eng.Running())
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAgentsRateLimited(t *testing.T) {
	s, _ := newTestServer(t)
	s.AgentsPerMinute = 2
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/agents").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/agents").Code)
	rec := get(t, h, "/api/v1/agents")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.Equal(t, 61, rl.RetryAfter("a"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"))
}
