package world

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// DefaultGroupName is the group every region creates eagerly.
	DefaultGroupName = "user"

	// RegionRadius is the core radius of a station region.
	RegionRadius = 1024.0
	// RegionTickRadius is the radius within which a region ticks fully.
	RegionTickRadius = 1536.0
	RegionRadiusSq   = RegionRadius * RegionRadius
	TickRadiusSq     = RegionTickRadius * RegionTickRadius

	// TileSize and TileCount define the wilderness grid covering the map.
	TileSize  = 1024.0
	TileCount = 16

	// BuildVersion is the current group document schema.
	BuildVersion = 3

	// GroupToken in a parent path is replaced by the owning group's prefix.
	GroupToken = "$GROUP$"

	// UpdateRate is the minimum gap between parent searches of one spawner.
	UpdateRate = 5 * time.Second
	// MaxUpdateTime caps the wall clock spent on searches per tick.
	MaxUpdateTime = 25 * time.Millisecond
	// AutosaveInterval is how often dirty groups are written.
	AutosaveInterval = 60 * time.Second

	// MaxResourceAttempts bounds asset load retries of one spawner.
	MaxResourceAttempts = 5
)

// CullConfig holds distance culling thresholds.
type CullConfig struct {
	Radius      float64 // soft cull radius; 0 disables soft culling
	FadeStart   float64 // fraction of Radius where the fade begins
	InhibitNear float64 // fraction of Radius beyond which re-checks are inhibited
	InhibitFar  float64 // fraction of Radius beyond which the window doubles
	InhibitMin  time.Duration
	InhibitMax  time.Duration
}

// Station seeds a circular region.
type Station struct {
	Yard     string
	Location mgl64.Vec3 // map space
	Anchor   string     // scene path of the station root, may be empty
}

// Config is everything the controller needs besides its collaborators.
type Config struct {
	TickRate          int
	AllowedUpdates    int
	BackoffTime       time.Duration
	MaxUpdateTime     time.Duration
	SpawnerUpdateRate time.Duration
	AutosaveInterval  time.Duration
	UndoSteps         int
	Seed              int64

	Culling CullConfig

	// ShowOrphans raises a debug marker where an orphan was last seen.
	ShowOrphans bool
	// ExcludedCategories are host categories never used as anchors.
	ExcludedCategories []string

	JournalPath string
	Stations    []Station
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TickRate:          20,
		AllowedUpdates:    8,
		BackoffTime:       250 * time.Millisecond,
		MaxUpdateTime:     MaxUpdateTime,
		SpawnerUpdateRate: UpdateRate,
		AutosaveInterval:  AutosaveInterval,
		UndoSteps:         64,
		Culling: CullConfig{
			Radius:      500,
			FadeStart:   0.9,
			InhibitNear: 1.2,
			InhibitFar:  1.4,
			InhibitMin:  230 * time.Millisecond,
			InhibitMax:  270 * time.Millisecond,
		},
		ExcludedCategories: []string{"player", "item", "loose"},
	}
}
