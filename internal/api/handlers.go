package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-gl/mathgl/mgl64"

	"lightsniper/internal/overlay"
	"lightsniper/internal/world"
)

const (
	// DefaultOrphanWindow is used when an orphan command names no duration.
	DefaultOrphanWindow = 30 * time.Second
	// MaxOrphanWindow caps kill/free orphan windows.
	MaxOrphanWindow = 10 * time.Minute
	// DefaultNearestRange is the search radius of /api/nearest.
	DefaultNearestRange = 50.0
	// DefaultJournalLimit is how many events /api/journal returns.
	DefaultJournalLimit = 100
	// MaxMapSize caps the minimap edge in pixels.
	MaxMapSize = 2048
)

// Handler methods for routerHandlers

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.ctrl.Stats())
}

func (h *routerHandlers) handleGetRegions(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	writeJSON(w, h.ctrl.Regions(!all))
}

func (h *routerHandlers) handleGetSpawner(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, "Invalid spawner id", http.StatusBadRequest)
		return
	}
	info, err := h.ctrl.Spawner(world.SpawnerID(id))
	if errors.Is(err, world.ErrNotFound) {
		writeError(w, "Spawner not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, info)
}

func (h *routerHandlers) handleGetNearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, ok := world.ParseKind(q.Get("kind"))
	if !ok {
		writeError(w, "kind must be light, mesh or decoration", http.StatusBadRequest)
		return
	}
	var p mgl64.Vec3
	for i, key := range []string{"x", "y", "z"} {
		v, err := strconv.ParseFloat(q.Get(key), 64)
		if err != nil {
			writeError(w, "x, y and z are required", http.StatusBadRequest)
			return
		}
		p[i] = v
	}
	maxRange := DefaultNearestRange
	if raw := q.Get("range"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, "range must be a positive number", http.StatusBadRequest)
			return
		}
		maxRange = v
	}

	info, found := h.ctrl.Nearest(kind, p, maxRange)
	if !found {
		writeError(w, "No spawner in range", http.StatusNotFound)
		return
	}
	writeJSON(w, info)
}

func (h *routerHandlers) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	limit := DefaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, world.JournalBufferSize)
	}
	j := h.ctrl.Journal()
	writeJSON(w, map[string]interface{}{
		"events": j.Recent(limit),
		"stats":  j.Stats(),
	})
}

func (h *routerHandlers) handleSnipe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Origin    [3]float64     `json:"origin"`
		Direction [3]float64     `json:"direction"`
		Template  world.Template `json:"template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	dir := mgl64.Vec3(req.Direction)
	if dir.Len() == 0 {
		writeError(w, "direction is required", http.StatusBadRequest)
		return
	}

	writeJSON(w, h.ctrl.Snipe(r.Context(), mgl64.Vec3(req.Origin), dir.Normalize(), req.Template))
}

func (h *routerHandlers) handlePaint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID    world.SpawnerID       `json:"id"`
		Light world.LightProperties `json:"light"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.ctrl.Paint(r.Context(), req.ID, req.Light))
}

func (h *routerHandlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID world.SpawnerID `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.ctrl.Delete(r.Context(), req.ID))
}

func (h *routerHandlers) handleUndo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.ctrl.Undo(r.Context()))
}

func (h *routerHandlers) handleGroupBegin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeError(w, "Name is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.ctrl.BeginGroup(req.Name))
}

func (h *routerHandlers) handleGroupEnd(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.ctrl.EndGroup())
}

func (h *routerHandlers) handleGroupEnable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Pattern == "" || req.Enabled == nil {
		writeError(w, "pattern and enabled are required", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.ctrl.EnableGroups(req.Pattern, *req.Enabled))
}

func (h *routerHandlers) handleKillOrphans(w http.ResponseWriter, r *http.Request) {
	d, ok := decodeWindow(w, r)
	if !ok {
		return
	}
	log.Printf("🧹 Kill orphans requested for %v", d)
	writeJSON(w, h.ctrl.KillOrphans(d))
}

func (h *routerHandlers) handleFreeOrphans(w http.ResponseWriter, r *http.Request) {
	d, ok := decodeWindow(w, r)
	if !ok {
		return
	}
	log.Printf("🧹 Free orphans requested for %v", d)
	writeJSON(w, h.ctrl.FreeOrphans(d))
}

func (h *routerHandlers) handleRescan(w http.ResponseWriter, r *http.Request) {
	n := h.ctrl.Rescan()
	writeJSON(w, map[string]interface{}{
		"success": true,
		"loaded":  n,
	})
}

func (h *routerHandlers) handleMapImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := overlay.DefaultOptions()
	if raw := q.Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxMapSize {
			writeError(w, "size must be between 1 and 2048", http.StatusBadRequest)
			return
		}
		opts.Size = n
	}
	if raw := q.Get("span"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, "span must be a positive number", http.StatusBadRequest)
			return
		}
		opts.Span = v
	}
	opts.Center = q.Get("center") == "true"

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := overlay.Render(w, h.ctrl.Snapshot(), opts); err != nil {
		log.Printf("⚠️ Minimap render failed: %v", err)
	}
}

// decodeWindow reads an optional {"duration": "30s"} body. An empty body
// means DefaultOrphanWindow.
func decodeWindow(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	var req struct {
		Duration string `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return 0, false
	}
	if req.Duration == "" {
		return DefaultOrphanWindow, true
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil || d <= 0 {
		writeError(w, "duration must be a positive Go duration like 30s", http.StatusBadRequest)
		return 0, false
	}
	return min(d, MaxOrphanWindow), true
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
