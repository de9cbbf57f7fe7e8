package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/joho/godotenv"

	"lightsniper/internal/api"
	"lightsniper/internal/config"
	"lightsniper/internal/scene/memscene"
	"lightsniper/internal/store"
	"lightsniper/internal/telemetry"
	"lightsniper/internal/world"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("💡 ================================")
	log.Println("💡  LIGHTSNIPER - SPAWNER HOST")
	log.Println("💡 ================================")

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	stations, err := appConfig.ParseStations()
	if err != nil {
		log.Fatalf("❌ Invalid stations: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    appConfig.Telemetry.OTLPEndpoint,
		ServiceName: appConfig.Telemetry.ServiceName,
	})
	if err != nil {
		log.Printf("⚠️ Tracing disabled: %v", err)
	} else if appConfig.Telemetry.OTLPEndpoint != "" {
		log.Printf("🔭 Exporting traces to %s", appConfig.Telemetry.OTLPEndpoint)
	}

	// Start debug server
	if err := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:    appConfig.Debug.Enabled,
		ListenAddr: appConfig.Debug.ListenAddr,
	}); err != nil {
		log.Printf("⚠️ Debug server disabled: %v", err)
	}

	host := buildDemoScene(stations)
	go followWallClock(host)

	disk := store.NewDisk(appConfig.Storage.Root, appConfig.Storage.Bundle)
	packs, err := store.MountDir(appConfig.Storage.PacksDir)
	if err != nil {
		log.Fatalf("❌ Content packs: %v", err)
	}
	log.Printf("💾 Groups: %s (bundle %q), packs: %s", appConfig.Storage.Root, appConfig.Storage.Bundle, appConfig.Storage.PacksDir)

	ctrl, err := world.New(worldConfig(appConfig, stations), host.Host(), disk, packs)
	if err != nil {
		log.Fatalf("❌ Controller: %v", err)
	}
	ctrl.Start()

	api.AllowedOrigins = append(api.AllowedOrigins, appConfig.Server.CORSOrigins...)
	server := api.NewServerWithConfig(ctrl, api.ServerConfig{
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: appConfig.Server.RateLimit,
			Burst:             appConfig.Server.RateBurst,
			CleanupInterval:   api.DefaultRateLimitConfig.CleanupInterval,
		},
		CORSOrigins: appConfig.Server.CORSOrigins,
	})

	go func() {
		addr := fmt.Sprintf(":%d", appConfig.Server.Port)
		log.Printf("🎮 Editor: http://localhost%s/editor", addr)
		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("⚠️ API shutdown: %v", err)
	}
	if err := ctrl.Close(shutdownCtx); err != nil {
		log.Printf("⚠️ Final save failed: %v", err)
	}
	if err := packs.Close(); err != nil {
		log.Printf("⚠️ Closing packs: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("⚠️ Trace flush: %v", err)
	}
	log.Println("👋 Goodbye!")
}

// worldConfig maps the environment configuration onto the controller's.
func worldConfig(app config.AppConfig, stations []config.Station) world.Config {
	cfg := world.DefaultConfig()
	cfg.TickRate = app.Scheduler.TickRate
	cfg.AllowedUpdates = app.Scheduler.AllowedUpdates
	cfg.BackoffTime = app.Scheduler.BackoffTime
	cfg.MaxUpdateTime = app.Scheduler.MaxUpdateTime
	cfg.SpawnerUpdateRate = app.Scheduler.SpawnerUpdateRate
	cfg.AutosaveInterval = app.Scheduler.AutosaveInterval
	cfg.UndoSteps = app.Scheduler.UndoSteps
	cfg.Seed = app.Scheduler.Seed
	cfg.Culling = world.CullConfig{
		Radius:      app.Culling.Radius,
		FadeStart:   app.Culling.FadeStart,
		InhibitNear: app.Culling.InhibitNear,
		InhibitFar:  app.Culling.InhibitFar,
		InhibitMin:  app.Culling.InhibitMin,
		InhibitMax:  app.Culling.InhibitMax,
	}
	cfg.ShowOrphans = app.Debug.ShowOrphans
	cfg.JournalPath = app.Storage.JournalPath
	for _, st := range stations {
		cfg.Stations = append(cfg.Stations, world.Station{
			Yard:     st.Yard,
			Location: mgl64.Vec3{st.X, st.Y, st.Z},
			Anchor:   st.Anchor,
		})
	}
	return cfg
}

// buildDemoScene stands in for a game host: every station gets its anchor
// path and a ring of lamp posts to snipe at, and the player starts at the
// first station.
func buildDemoScene(stations []config.Station) *memscene.Scene {
	sc := memscene.New()
	for _, st := range stations {
		center := mgl64.Vec3{st.X, st.Y, st.Z}
		root := ensurePath(sc, st.Anchor, center)
		for i := 0; i < 8; i++ {
			angle := float64(i) * mgl64.DegToRad(45)
			offset := mgl64.Vec3{30 * math.Cos(angle), 0, 30 * math.Sin(angle)}
			post := sc.Add(root, fmt.Sprintf("Post_%d", i), offset, "")
			post.SetCollider(0.5)
		}
	}
	if len(stations) > 0 {
		sc.SetPlayer(mgl64.Vec3{stations[0].X, stations[0].Y, stations[0].Z})
	}
	log.Printf("🗺️ Demo scene with %d stations", len(stations))
	return sc
}

// ensurePath creates the nodes of a slash path, the last one at pos.
func ensurePath(sc *memscene.Scene, path string, pos mgl64.Vec3) *memscene.Node {
	var parent *memscene.Node
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if path == "" {
		parts = []string{fmt.Sprintf("Station_%.0f_%.0f", pos.X(), pos.Z())}
	}
	walked := ""
	for i, name := range parts {
		if walked != "" {
			walked += "/"
		}
		walked += name
		if n, ok := sc.Find(walked).(*memscene.Node); ok && n != nil {
			parent = n
			continue
		}
		local := mgl64.Vec3{}
		if i == len(parts)-1 {
			local = pos
			if parent != nil {
				local = pos.Sub(parent.Position())
			}
		}
		parent = sc.Add(parent, name, local, "")
	}
	return parent
}

// followWallClock drives the scene hour for dusk-till-dawn duty cycles.
func followWallClock(sc *memscene.Scene) {
	for {
		now := time.Now()
		sc.SetHour(float64(now.Hour()) + float64(now.Minute())/60)
		time.Sleep(time.Minute)
	}
}
