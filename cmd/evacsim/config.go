package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds the run parameters. Defaults are overridden by EVACSIM_*
// environment variables, which are overridden by command-line flags.
type Config struct {
	Seed         int64   // 0 = random
	Agents       int     // population drawn before filtering to the hazard zone
	Rows, Cols   int     // street lattice size
	Spacing      float64 // metres between intersections
	HazardRadius float64 // metres
	AlertAt      string  // time of day the evacuation starts, "HH:MM"

	TickSeconds       float64
	MaxTicks          uint64
	Interval          time.Duration // wall-clock pause per tick
	ReportEvery       uint64
	RecordAgentsEvery uint64
	ExcludeUnroutable bool

	DBPath   string // "" = no persistence
	APIPort  int    // 0 = no HTTP API
	AdminKey string
	LogLevel string
}

// DefaultConfig returns a small neighbourhood evacuation.
func DefaultConfig() Config {
	return Config{
		Agents:            2000,
		Rows:              20,
		Cols:              20,
		Spacing:           80,
		HazardRadius:      500,
		AlertAt:           "08:30",
		TickSeconds:       10,
		MaxTicks:          2160, // six simulated hours
		ReportEvery:       30,
		RecordAgentsEvery: 6,
		ExcludeUnroutable: true,
		DBPath:            "data/evacsim.db",
		LogLevel:          "info",
	}
}

// FromEnv applies EVACSIM_* variables read through getenv.
func (c *Config) FromEnv(getenv func(string) string) error {
	var err error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, parse func(string) error) {
		if v := getenv(key); v != "" && err == nil {
			if perr := parse(v); perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
			}
		}
	}

	num("EVACSIM_SEED", func(v string) (e error) { c.Seed, e = strconv.ParseInt(v, 10, 64); return })
	num("EVACSIM_AGENTS", func(v string) (e error) { c.Agents, e = strconv.Atoi(v); return })
	num("EVACSIM_HAZARD_RADIUS", func(v string) (e error) { c.HazardRadius, e = strconv.ParseFloat(v, 64); return })
	num("EVACSIM_TICK_SECONDS", func(v string) (e error) { c.TickSeconds, e = strconv.ParseFloat(v, 64); return })
	num("EVACSIM_MAX_TICKS", func(v string) (e error) { c.MaxTicks, e = strconv.ParseUint(v, 10, 64); return })
	num("EVACSIM_API_PORT", func(v string) (e error) { c.APIPort, e = strconv.Atoi(v); return })
	num("EVACSIM_EXCLUDE_UNROUTABLE", func(v string) (e error) { c.ExcludeUnroutable, e = strconv.ParseBool(v); return })
	str("EVACSIM_ALERT_AT", &c.AlertAt)
	str("EVACSIM_DB", &c.DBPath)
	str("EVACSIM_ADMIN_KEY", &c.AdminKey)
	str("EVACSIM_LOG_LEVEL", &c.LogLevel)
	return err
}

// Flags registers command-line flags on fs, defaulting to the current values.
func (c *Config) Flags(fs *flag.FlagSet) {
	fs.Int64Var(&c.Seed, "seed", c.Seed, "run seed (0 = random)")
	fs.IntVar(&c.Agents, "agents", c.Agents, "population size before hazard filtering")
	fs.IntVar(&c.Rows, "rows", c.Rows, "street lattice rows")
	fs.IntVar(&c.Cols, "cols", c.Cols, "street lattice columns")
	fs.Float64Var(&c.Spacing, "spacing", c.Spacing, "metres between intersections")
	fs.Float64Var(&c.HazardRadius, "hazard-radius", c.HazardRadius, "hazard zone radius in metres")
	fs.StringVar(&c.AlertAt, "alert-at", c.AlertAt, "time of day of the alert (HH:MM)")
	fs.Float64Var(&c.TickSeconds, "tick", c.TickSeconds, "simulated seconds per tick")
	fs.Uint64Var(&c.MaxTicks, "max-ticks", c.MaxTicks, "stop after this many ticks")
	fs.DurationVar(&c.Interval, "interval", c.Interval, "wall-clock pause per tick (0 = as fast as possible)")
	fs.Uint64Var(&c.ReportEvery, "report-every", c.ReportEvery, "ticks between progress logs")
	fs.Uint64Var(&c.RecordAgentsEvery, "record-agents-every", c.RecordAgentsEvery, "ticks between stored agent positions (0 = never)")
	fs.BoolVar(&c.ExcludeUnroutable, "exclude-unroutable", c.ExcludeUnroutable, "drop agents with no path to safety instead of aborting")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite run store (empty = none)")
	fs.IntVar(&c.APIPort, "port", c.APIPort, "HTTP API port (0 = disabled)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
}

// AlertTime parses AlertAt as a time of day.
func (c Config) AlertTime() (time.Duration, error) {
	h, m, ok := strings.Cut(c.AlertAt, ":")
	if !ok {
		return 0, fmt.Errorf("alert time %q: want HH:MM", c.AlertAt)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("alert time %q: bad hour", c.AlertAt)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("alert time %q: bad minute", c.AlertAt)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

// TickDuration returns the simulated length of one tick.
func (c Config) TickDuration() time.Duration {
	return time.Duration(c.TickSeconds * float64(time.Second))
}

// Validate checks the configuration for values the run cannot use.
func (c Config) Validate() error {
	switch {
	case c.Agents <= 0:
		return fmt.Errorf("agents must be positive, got %d", c.Agents)
	case c.Rows < 2 || c.Cols < 2:
		return fmt.Errorf("lattice must be at least 2x2, got %dx%d", c.Rows, c.Cols)
	case !(c.Spacing > 0):
		return fmt.Errorf("spacing must be positive, got %v", c.Spacing)
	case !(c.HazardRadius > 0):
		return fmt.Errorf("hazard radius must be positive, got %v", c.HazardRadius)
	case !(c.TickSeconds > 0):
		return fmt.Errorf("tick must be positive, got %v", c.TickSeconds)
	}
	_, err := c.AlertTime()
	return err
}
