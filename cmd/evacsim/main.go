// Command evacsim runs an evacuation of a synthetic neighbourhood: people are
// placed where their daily routine has them at the time of the alert, then
// walk or drive to the nearest safe point outside the hazard zone.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb"
	"github.com/samber/lo"

	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/api"
	"github.com/talgya/evacsim/internal/engine"
	"github.com/talgya/evacsim/internal/entropy"
	"github.com/talgya/evacsim/internal/network"
	"github.com/talgya/evacsim/internal/persistence"
	"github.com/talgya/evacsim/internal/routing"
	"github.com/talgya/evacsim/internal/schedule"
)

func main() {
	cfg := DefaultConfig()
	if err := cfg.FromEnv(os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	cfg.Flags(flag.CommandLine)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	alertAt, _ := cfg.AlertTime()
	seed := entropy.Seed(cfg.Seed)
	slog.Info("evacsim starting", "seed", seed, "alert_at", cfg.AlertAt, "agents", cfg.Agents)

	// ── Street Network (deterministic from seed) ─────────────────────
	gen := network.DefaultGenConfig()
	gen.Rows, gen.Cols, gen.Spacing = cfg.Rows, cfg.Cols, cfg.Spacing
	gen.Seed = seed + int64(entropy.StreamNetwork)
	graph, buildings := network.Generate(gen)

	slog.Info("street network generated",
		"nodes", graph.Len(),
		"edges", graph.EdgeCount(),
		"components", len(graph.Components()),
	)
	for z := network.Zone(0); z < network.NumZones; z++ {
		slog.Info("buildings", "zone", network.ZoneName(z), "count", buildings.Count(z))
	}

	// ── Hazard Zone ──────────────────────────────────────────────────
	points := lo.Map(graph.Nodes(), func(id network.NodeID, _ int) orb.Point { return graph.Point(id) })
	center := orb.MultiPoint(points).Bound().Center()
	zone := network.CircleZone(center, cfg.HazardRadius, 64)
	targets := graph.MarkTargetsOutside(zone)
	if err := graph.Validate(); err != nil {
		slog.Error("network not usable", "error", err, "hint", "hazard radius may cover the whole lattice")
		os.Exit(1)
	}
	slog.Info("hazard zone set", "center", center, "radius_m", cfg.HazardRadius, "targets", targets)

	router := routing.NewRouter(graph)
	if hub, err := graph.NearestNode(center); err == nil {
		cut := lo.Filter(graph.Targets(), func(t network.NodeID, _ int) bool { return !graph.Reachable(hub, t) })
		if len(cut) > 0 {
			slog.Warn("safe points cut off from the zone centre", "count", len(cut), "first", cut[0])
		}
		if dist, err := router.Distances(hub); err == nil {
			nearest := lo.Min(lo.FilterMap(graph.Targets(), func(t network.NodeID, _ int) (float64, bool) {
				d, ok := dist[t]
				return d, ok
			}))
			slog.Info("closest safe point to zone centre", "node", hub, "distance_m", humanize.FtoaWithDigits(nearest, 1))
		}
	}

	// ── Population ───────────────────────────────────────────────────
	planner := schedule.NewPlanner(graph, router)
	spawner := agents.NewSpawner(graph, router, entropy.New(seed, entropy.StreamSpawn))

	seeds, err := spawner.Population(cfg.Agents, alertAt, planner, buildings, entropy.New(seed, entropy.StreamSchedule))
	if err != nil {
		slog.Error("population failed", "error", err)
		os.Exit(1)
	}
	inside := lo.Filter(seeds, func(s agents.Seed, _ int) bool {
		return network.InZone(zone, s.Placement.Point)
	})
	inTransit := lo.CountBy(inside, func(s agents.Seed) bool { return s.Placement.InTransit })
	slog.Info("population placed by schedule",
		"drawn", len(seeds),
		"in_zone", len(inside),
		"in_transit", inTransit,
	)

	allAgents, err := spawner.PlaceAll(inside, cfg.ExcludeUnroutable)
	if err != nil {
		slog.Error("agent placement failed", "error", err)
		os.Exit(1)
	}
	inCar := lo.CountBy(allAgents, func(a *agents.Agent) bool { return a.InCar })
	slog.Info("agents routed", "agents", len(allAgents), "in_car", inCar)

	// ── Simulation ───────────────────────────────────────────────────
	sim := engine.NewSimulation(graph, allAgents, cfg.TickDuration())
	sim.RecordAgentsEvery = cfg.RecordAgentsEvery

	// ── Database ─────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.DBPath != "" {
		os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
		db, err = persistence.Open(cfg.DBPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.DBPath)

		_, err = db.BeginRun(persistence.Run{
			Seed:        seed,
			Agents:      len(allAgents),
			Nodes:       graph.Len(),
			Targets:     len(graph.Targets()),
			TickSeconds: cfg.TickSeconds,
			AlertAt:     cfg.AlertAt,
		})
		if err != nil {
			slog.Error("failed to start run", "error", err)
			os.Exit(1)
		}
		meta := map[string]string{
			persistence.MetaHazardRadius: strconv.FormatFloat(cfg.HazardRadius, 'f', -1, 64),
			persistence.MetaLattice:      fmt.Sprintf("%dx%d@%gm", cfg.Rows, cfg.Cols, cfg.Spacing),
		}
		for k, v := range meta {
			if err := db.SaveMeta(k, v); err != nil {
				slog.Warn("failed to save run metadata", "key", k, "error", err)
			}
		}
		sim.Recorder = db
	}

	eng := engine.NewEngine()
	eng.MaxTicks = cfg.MaxTicks
	eng.Interval = cfg.Interval
	eng.ReportEvery = cfg.ReportEvery
	eng.Done = sim.Done
	eng.OnTick = func(tick uint64) {
		if _, err := sim.Step(tick); err != nil {
			slog.Error("tick failed", "error", err)
			eng.Stop()
		}
	}
	eng.OnReport = func(tick uint64) {
		st := sim.Stats()
		slog.Info("progress",
			"tick", tick,
			"time", engine.SimTime(tick, sim.TickDuration),
			"evacuated", humanize.Comma(int64(st.Evacuated)),
			"moving", humanize.Comma(int64(st.Moving)),
			"blocked", humanize.Comma(int64(st.Blocked)),
		)
	}

	// ── HTTP API ─────────────────────────────────────────────────────
	var apiServer *api.Server
	if cfg.APIPort > 0 {
		if cfg.AdminKey == "" {
			slog.Warn("EVACSIM_ADMIN_KEY not set; admin POST endpoints will be disabled")
		}
		apiServer = &api.Server{
			Sim:             sim,
			Eng:             eng,
			DB:              db,
			Port:            cfg.APIPort,
			AdminKey:        cfg.AdminKey,
			AgentsPerMinute: 60,
		}
		apiServer.Start()
	}

	// ── Start ────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	interrupted := make(chan struct{})
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		close(interrupted)
		eng.Stop()
	}()

	fmt.Printf("\nEvacuating %s people from a %s m hazard zone (%s safe points).\n",
		humanize.Comma(int64(len(allAgents))), humanize.Comma(int64(cfg.HazardRadius)), humanize.Comma(int64(targets)))
	if apiServer != nil {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	}

	eng.Run()

	if db != nil {
		if err := db.FinishRun(); err != nil {
			slog.Error("finishing run failed", "error", err)
		}
	}

	st := sim.Stats()
	travelled := lo.SumBy(sim.History, func(t engine.TickStats) float64 { return t.Travelled })
	pct := 100.0
	if len(allAgents) > 0 {
		pct = 100 * float64(st.Evacuated) / float64(len(allAgents))
	}
	fmt.Printf("Evacuated %s of %s (%s%%) after %s; %s still moving, %s travelled in total.\n",
		humanize.Comma(int64(st.Evacuated)),
		humanize.Comma(int64(len(allAgents))),
		humanize.FtoaWithDigits(pct, 1),
		engine.SimTime(sim.CurrentTick(), sim.TickDuration),
		humanize.Comma(int64(st.Moving+st.Blocked)),
		humanize.SIWithDigits(travelled, 1, "m"),
	)

	if apiServer != nil {
		select {
		case <-interrupted:
		default:
			fmt.Println("Run finished; API still serving (Ctrl+C to exit).")
			<-interrupted
		}
	}
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
