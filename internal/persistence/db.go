// Package persistence provides SQLite-based storage of evacuation runs: the
// run parameters, per-tick statistics and sampled agent positions.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/engine"
)

// ErrNoRun is returned by Record when no run has been started.
var ErrNoRun = errors.New("persistence: no active run")

// Run metadata keys.
const (
	MetaHazardRadius = "hazard_radius_m"
	MetaLattice      = "lattice"
)

// MetaKeys lists the metadata stored with every run.
var MetaKeys = []string{MetaHazardRadius, MetaLattice}

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB

	mu  sync.RWMutex
	run uuid.UUID // active run, uuid.Nil when none
}

// Run describes one stored evacuation run.
type Run struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Seed        int64     `db:"seed" json:"seed"`
	Agents      int       `db:"agents" json:"agents"`
	Nodes       int       `db:"nodes" json:"nodes"`
	Targets     int       `db:"targets" json:"targets"`
	TickSeconds float64   `db:"tick_seconds" json:"tick_seconds"`
	AlertAt     string    `db:"alert_at" json:"alert_at"` // time of day, e.g. "08:30"
	StartedAt   int64     `db:"started_at" json:"started_at"`
	FinishedAt  *int64    `db:"finished_at" json:"finished_at,omitempty"`
	LastTick    uint64    `db:"last_tick" json:"last_tick"`
	Evacuated   int       `db:"evacuated" json:"evacuated"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		nodes INTEGER NOT NULL,
		targets INTEGER NOT NULL,
		tick_seconds REAL NOT NULL,
		alert_at TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		last_tick INTEGER NOT NULL DEFAULT 0,
		evacuated INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tick_stats (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		evacuated INTEGER NOT NULL,
		stranded INTEGER NOT NULL,
		moving INTEGER NOT NULL,
		blocked INTEGER NOT NULL,
		lanes INTEGER NOT NULL DEFAULT 0,
		travelled REAL NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS agent_states (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		route_index INTEGER NOT NULL,
		distance_along_edge REAL NOT NULL,
		lon REAL NOT NULL,
		lat REAL NOT NULL,
		road_tag TEXT NOT NULL DEFAULT '',
		in_car INTEGER NOT NULL,
		evacuated INTEGER NOT NULL,
		stranded INTEGER NOT NULL DEFAULT 0,
		reroute_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, tick, agent_id)
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_agent_states_agent ON agent_states(run_id, agent_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// BeginRun stores a new run and makes it the target of Record. The ID and
// StartedAt fields of r are filled in.
func (db *DB) BeginRun(r Run) (uuid.UUID, error) {
	r.ID = uuid.New()
	r.StartedAt = time.Now().Unix()
	_, err := db.conn.NamedExec(`INSERT INTO runs
		(id, seed, agents, nodes, targets, tick_seconds, alert_at, started_at)
		VALUES (:id, :seed, :agents, :nodes, :targets, :tick_seconds, :alert_at, :started_at)`, r)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}
	db.mu.Lock()
	db.run = r.ID
	db.mu.Unlock()
	slog.Info("run started", "run", r.ID, "agents", r.Agents, "seed", r.Seed)
	return r.ID, nil
}

// RunID returns the active run, or uuid.Nil.
func (db *DB) RunID() uuid.UUID {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.run
}

// Record stores one tick of the active run.
func (db *DB) Record(stats engine.TickStats, states []engine.AgentState) error {
	id := db.RunID()
	if id == uuid.Nil {
		return ErrNoRun
	}
	run := id.String()

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO tick_stats
		(run_id, tick, evacuated, stranded, moving, blocked, lanes, travelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run, stats.Tick, stats.Evacuated, stats.Stranded, stats.Moving, stats.Blocked, stats.Lanes, stats.Travelled,
	)
	if err != nil {
		return fmt.Errorf("insert tick %d: %w", stats.Tick, err)
	}

	if len(states) > 0 {
		stmt, err := tx.Preparex(`INSERT INTO agent_states
			(run_id, tick, agent_id, position, route_index, distance_along_edge,
			 lon, lat, road_tag, in_car, evacuated, stranded, reroute_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range states {
			_, err := stmt.Exec(
				run, s.Tick, s.AgentID, s.Position, s.RouteIndex,
				s.DistanceAlongEdge, s.Lon, s.Lat, s.RoadTag,
				s.InCar, s.Evacuated, s.Stranded, s.RerouteCount,
			)
			if err != nil {
				return fmt.Errorf("insert agent %d: %w", s.AgentID, err)
			}
		}
	}

	if _, err := tx.Exec("UPDATE runs SET last_tick = ?, evacuated = ? WHERE id = ?",
		stats.Tick, stats.Evacuated, run); err != nil {
		return err
	}

	return tx.Commit()
}

// FinishRun marks the active run as finished.
func (db *DB) FinishRun() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.run == uuid.Nil {
		return ErrNoRun
	}
	_, err := db.conn.Exec("UPDATE runs SET finished_at = ? WHERE id = ?", time.Now().Unix(), db.run.String())
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	slog.Info("run finished", "run", db.run)
	db.run = uuid.Nil
	return nil
}

// GetRun returns a stored run.
func (db *DB) GetRun(id uuid.UUID) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT * FROM runs WHERE id = ?", id.String())
	return r, err
}

// Runs returns every stored run, newest first.
func (db *DB) Runs() ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY started_at DESC, id")
	return runs, err
}

// TickHistory returns the per-tick statistics of a run in tick order.
func (db *DB) TickHistory(id uuid.UUID) ([]engine.TickStats, error) {
	var stats []engine.TickStats
	err := db.conn.Select(&stats,
		"SELECT tick, evacuated, stranded, moving, blocked, lanes, travelled FROM tick_stats WHERE run_id = ? ORDER BY tick",
		id.String(),
	)
	return stats, err
}

// AgentTrack returns the recorded positions of one agent in tick order.
func (db *DB) AgentTrack(id uuid.UUID, agent agents.AgentID) ([]engine.AgentState, error) {
	var track []engine.AgentState
	err := db.conn.Select(&track,
		`SELECT tick, agent_id, position, route_index, distance_along_edge,
			lon, lat, road_tag, in_car, evacuated, stranded, reroute_count
		FROM agent_states WHERE run_id = ? AND agent_id = ? ORDER BY tick`,
		id.String(), agent,
	)
	return track, err
}

// SaveMeta stores a key-value pair against the active run.
func (db *DB) SaveMeta(key, value string) error {
	id := db.RunID()
	if id == uuid.Nil {
		return ErrNoRun
	}
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (run_id, key, value) VALUES (?, ?, ?)",
		id.String(), key, value,
	)
	return err
}

// GetMeta retrieves a metadata value of a run.
func (db *DB) GetMeta(id uuid.UUID, key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE run_id = ? AND key = ?", id.String(), key)
	return value, err
}

// Meta returns every stored value of keys for a run. Missing keys are left
// out.
func (db *DB) Meta(id uuid.UUID, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := db.GetMeta(id, k)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("meta %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
