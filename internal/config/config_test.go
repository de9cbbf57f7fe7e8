package config

import (
	"testing"
	"time"
)

// TestLoadDefaults verifies struct tag defaults
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Scheduler.MaxUpdateTime != 25*time.Millisecond {
		t.Errorf("MaxUpdateTime = %v, want 25ms", cfg.Scheduler.MaxUpdateTime)
	}
	if cfg.Scheduler.SpawnerUpdateRate != 5*time.Second {
		t.Errorf("SpawnerUpdateRate = %v, want 5s", cfg.Scheduler.SpawnerUpdateRate)
	}
	if cfg.Scheduler.AutosaveInterval != time.Minute {
		t.Errorf("AutosaveInterval = %v, want 60s", cfg.Scheduler.AutosaveInterval)
	}
	if cfg.Culling.InhibitMin != 230*time.Millisecond || cfg.Culling.InhibitMax != 270*time.Millisecond {
		t.Errorf("inhibit window = [%v,%v]", cfg.Culling.InhibitMin, cfg.Culling.InhibitMax)
	}
}

// TestLoadEnvOverride verifies environment variables win over defaults
func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SNIPER_TICK_RATE", "50")
	t.Setenv("SNIPER_CULL_RADIUS", "750.5")
	t.Setenv("SNIPER_BACKOFF", "1s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scheduler.TickRate != 50 {
		t.Errorf("TickRate = %d, want 50", cfg.Scheduler.TickRate)
	}
	if cfg.Culling.Radius != 750.5 {
		t.Errorf("Radius = %v, want 750.5", cfg.Culling.Radius)
	}
	if cfg.Scheduler.BackoffTime != time.Second {
		t.Errorf("BackoffTime = %v, want 1s", cfg.Scheduler.BackoffTime)
	}
}

// TestLoadRejectsInvalid verifies validation errors surface from Load
func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("SNIPER_TICK_RATE", "0")
	if _, err := Load(); err == nil {
		t.Error("expected error for zero tick rate")
	}
}

// TestParseStations covers the yard@x,y,z@anchor format
func TestParseStations(t *testing.T) {
	cfg := AppConfig{Stations: []string{"HB@10,2,30@Stations/HB", " GF@1,2,3 ", ""}}
	st, err := cfg.ParseStations()
	if err != nil {
		t.Fatalf("ParseStations failed: %v", err)
	}
	if len(st) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(st))
	}
	if st[0].Yard != "HB" || st[0].X != 10 || st[0].Z != 30 || st[0].Anchor != "Stations/HB" {
		t.Errorf("unexpected first station %+v", st[0])
	}
	if st[1].Anchor != "" {
		t.Errorf("second station should have no anchor, got %q", st[1].Anchor)
	}

	for _, bad := range []string{"HB", "HB@1,2", "HB@a,b,c", "@1,2,3"} {
		if _, err := (AppConfig{Stations: []string{bad}}).ParseStations(); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
