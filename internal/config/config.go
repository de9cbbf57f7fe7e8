// Package config provides centralized configuration management.
//
// Every setting has a default in its struct tag and can be overridden by a
// SNIPER_* environment variable (a .env file is loaded by cmd/server first).
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP command API settings.
type ServerConfig struct {
	Port        int      `env:"SNIPER_PORT" envDefault:"3000"`
	CORSOrigins []string `env:"SNIPER_CORS_ORIGINS" envSeparator:","`
	RateLimit   float64  `env:"SNIPER_API_RATE" envDefault:"20"` // requests per second per IP
	RateBurst   int      `env:"SNIPER_API_BURST" envDefault:"40"`
}

// DebugConfig holds the metrics/pprof server and debug overlay settings.
type DebugConfig struct {
	Enabled     bool   `env:"SNIPER_DEBUG_SERVER" envDefault:"true"`
	ListenAddr  string `env:"SNIPER_DEBUG_ADDR" envDefault:"127.0.0.1:6060"`
	ShowOrphans bool   `env:"SNIPER_SHOW_ORPHANS" envDefault:"false"` // raise markers at orphaned spawners
}

// =============================================================================
// SCHEDULER CONFIGURATION
// =============================================================================

// SchedulerConfig controls the per-tick budget and timers.
type SchedulerConfig struct {
	TickRate          int           `env:"SNIPER_TICK_RATE" envDefault:"20"`        // logic ticks per second
	AllowedUpdates    int           `env:"SNIPER_ALLOWED_UPDATES" envDefault:"8"`   // parent searches per tick
	BackoffTime       time.Duration `env:"SNIPER_BACKOFF" envDefault:"250ms"`       // pause after an exhausted tick
	MaxUpdateTime     time.Duration `env:"SNIPER_MAX_UPDATE_TIME" envDefault:"25ms"` // wall clock budget per tick
	SpawnerUpdateRate time.Duration `env:"SNIPER_SPAWNER_RATE" envDefault:"5s"`     // min gap between searches per spawner
	AutosaveInterval  time.Duration `env:"SNIPER_AUTOSAVE" envDefault:"60s"`
	UndoSteps         int           `env:"SNIPER_UNDO_STEPS" envDefault:"64"`
	Seed              int64         `env:"SNIPER_SEED" envDefault:"0"` // 0 seeds from the clock
}

// CullingConfig holds distance culling thresholds. The inhibit numbers were
// tuned against a 60 fps host and are exposed for retuning.
type CullingConfig struct {
	Radius      float64       `env:"SNIPER_CULL_RADIUS" envDefault:"500"`
	FadeStart   float64       `env:"SNIPER_CULL_FADE_START" envDefault:"0.9"`
	InhibitNear float64       `env:"SNIPER_CULL_INHIBIT_NEAR" envDefault:"1.2"`
	InhibitFar  float64       `env:"SNIPER_CULL_INHIBIT_FAR" envDefault:"1.4"`
	InhibitMin  time.Duration `env:"SNIPER_CULL_INHIBIT_MIN" envDefault:"230ms"`
	InhibitMax  time.Duration `env:"SNIPER_CULL_INHIBIT_MAX" envDefault:"270ms"`
}

// =============================================================================
// STORAGE CONFIGURATION
// =============================================================================

// StorageConfig locates group documents, packs and the journal.
type StorageConfig struct {
	Root        string `env:"SNIPER_DATA_DIR" envDefault:"data/groups"`
	Bundle      string `env:"SNIPER_BUNDLE"`
	PacksDir    string `env:"SNIPER_PACKS_DIR" envDefault:"data/packs"`
	JournalPath string `env:"SNIPER_JOURNAL" envDefault:"data/journal.jsonl"`
}

// TelemetryConfig enables OTLP trace export when an endpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string `env:"SNIPER_OTEL_ENDPOINT"`
	ServiceName  string `env:"SNIPER_OTEL_SERVICE" envDefault:"lightsniper"`
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server    ServerConfig
	Debug     DebugConfig
	Scheduler SchedulerConfig
	Culling   CullingConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig

	// Stations are "yard@x,y,z@anchor/path" entries separated by ';'.
	Stations []string `env:"SNIPER_STATIONS" envSeparator:";" envDefault:"HB@2048,0,2048@Stations/HB;SM@9216,0,5120@Stations/SM"`
}

// Station is a circular region centred on a named yard.
type Station struct {
	Yard   string
	X, Y   float64
	Z      float64
	Anchor string
}

// Load returns the complete configuration with environment overrides.
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate rejects settings the scheduler cannot run with.
func (c AppConfig) Validate() error {
	if c.Scheduler.TickRate <= 0 {
		return fmt.Errorf("config: tick rate must be positive, got %d", c.Scheduler.TickRate)
	}
	if c.Scheduler.AllowedUpdates < 0 {
		return fmt.Errorf("config: allowed updates must not be negative, got %d", c.Scheduler.AllowedUpdates)
	}
	if c.Culling.InhibitMax < c.Culling.InhibitMin {
		return fmt.Errorf("config: cull inhibit max %v below min %v", c.Culling.InhibitMax, c.Culling.InhibitMin)
	}
	if _, err := c.ParseStations(); err != nil {
		return err
	}
	return nil
}

// ParseStations decodes the Stations entries.
func (c AppConfig) ParseStations() ([]Station, error) {
	out := make([]Station, 0, len(c.Stations))
	for _, raw := range c.Stations {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, "@")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("config: station %q: want yard@x,y,z[@anchor]", raw)
		}
		coords := strings.Split(parts[1], ",")
		if len(coords) != 3 {
			return nil, fmt.Errorf("config: station %q: want 3 coordinates", raw)
		}
		var v [3]float64
		for i, c := range coords {
			f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
			if err != nil {
				return nil, fmt.Errorf("config: station %q: %w", raw, err)
			}
			v[i] = f
		}
		st := Station{Yard: strings.TrimSpace(parts[0]), X: v[0], Y: v[1], Z: v[2]}
		if len(parts) == 3 {
			st.Anchor = strings.TrimSpace(parts[2])
		}
		if st.Yard == "" {
			return nil, fmt.Errorf("config: station %q: empty yard id", raw)
		}
		out = append(out, st)
	}
	return out, nil
}
