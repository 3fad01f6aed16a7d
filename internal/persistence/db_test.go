package persistence

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/evacsim/internal/engine"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordWithoutRun(t *testing.T) {
	db := openTemp(t)
	assert.ErrorIs(t, db.Record(engine.TickStats{Tick: 1}, nil), ErrNoRun)
	assert.ErrorIs(t, db.FinishRun(), ErrNoRun)
	assert.ErrorIs(t, db.SaveMeta("k", "v"), ErrNoRun)
}

func TestRunRoundTrip(t *testing.T) {
	db := openTemp(t)

	id, err := db.BeginRun(Run{Seed: 42, Agents: 3, Nodes: 25, Targets: 6, TickSeconds: 10, AlertAt: "08:30"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, id, db.RunID())

	ticks := []engine.TickStats{
		{Tick: 1, Moving: 3, Travelled: 41.6},
		{Tick: 2, Evacuated: 1, Moving: 1, Blocked: 1, Lanes: 2, Travelled: 20},
	}
	states := []engine.AgentState{
		{Tick: 2, AgentID: 1, Position: 4, RouteIndex: 1, DistanceAlongEdge: 12.5, Lon: -1.6, Lat: 54.9, RoadTag: "residential", Stranded: true},
		{Tick: 2, AgentID: 2, Position: 7, RoadTag: "primary", Evacuated: true, InCar: true, RerouteCount: 2},
	}
	require.NoError(t, db.Record(ticks[0], nil))
	require.NoError(t, db.Record(ticks[1], states))
	require.NoError(t, db.SaveMeta("hazard", "circle"))

	got, err := db.TickHistory(id)
	require.NoError(t, err)
	assert.Equal(t, ticks, got)

	track, err := db.AgentTrack(id, 2)
	require.NoError(t, err)
	require.Len(t, track, 1)
	assert.Equal(t, states[1], track[0])
	assert.Equal(t, "primary", track[0].RoadTag)
	assert.Equal(t, 2, track[0].RerouteCount)

	track, err = db.AgentTrack(id, 1)
	require.NoError(t, err)
	require.Len(t, track, 1)
	assert.Equal(t, states[0], track[0])
	assert.True(t, track[0].Stranded)

	v, err := db.GetMeta(id, "hazard")
	require.NoError(t, err)
	assert.Equal(t, "circle", v)

	meta, err := db.Meta(id, "hazard", MetaLattice)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"hazard": "circle"}, meta)

	require.NoError(t, db.FinishRun())
	assert.Equal(t, uuid.Nil, db.RunID())

	run, err := db.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, int64(42), run.Seed)
	assert.Equal(t, "08:30", run.AlertAt)
	assert.Equal(t, uint64(2), run.LastTick)
	assert.Equal(t, 1, run.Evacuated)
	assert.NotNil(t, run.FinishedAt)

	runs, err := db.Runs()
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunIDConcurrentWithFinish(t *testing.T) {
	db := openTemp(t)
	_, err := db.BeginRun(Run{Seed: 3})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = db.RunID()
		}
	}()
	require.NoError(t, db.FinishRun())
	wg.Wait()
	assert.Equal(t, uuid.Nil, db.RunID())
}

func TestRecordRejectsDuplicateTick(t *testing.T) {
	db := openTemp(t)
	_, err := db.BeginRun(Run{Seed: 1})
	require.NoError(t, err)
	require.NoError(t, db.Record(engine.TickStats{Tick: 1}, nil))
	assert.Error(t, db.Record(engine.TickStats{Tick: 1}, nil))
}

func TestSimulationRecordsIntoStore(t *testing.T) {
	db := openTemp(t)
	id, err := db.BeginRun(Run{Seed: 7})
	require.NoError(t, err)

	var rec engine.Recorder = db
	for tick := uint64(1); tick <= 3; tick++ {
		require.NoError(t, rec.Record(engine.TickStats{Tick: tick, Moving: 1}, nil))
	}
	got, err := db.TickHistory(id)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
