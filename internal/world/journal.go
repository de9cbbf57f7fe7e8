package world

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	JournalBufferSize     = 1024                   // Circular buffer size
	MaxJournalPerSec      = 200                    // Global rate limit
	MaxJournalPerSpawner  = 1                      // Per-spawner events per second
	JournalFlushSize      = 64                     // Events per batch write
	JournalFlushInterval  = 250 * time.Millisecond // How often to flush
	SpawnerLimiterCleanup = 5 * time.Minute        // Cleanup interval for per-spawner limiters
)

// JournalKind classifies a journal entry.
type JournalKind string

const (
	JournalOrphan          JournalKind = "orphan"
	JournalAnomaly         JournalKind = "anomaly"
	JournalAdopted         JournalKind = "adopted"
	JournalErrored         JournalKind = "errored"
	JournalMissingResource JournalKind = "missing_resource"
	JournalUpgrade         JournalKind = "upgrade"
	JournalCommand         JournalKind = "command"
	JournalSave            JournalKind = "save"
	JournalKilled          JournalKind = "killed"
)

// JournalEvent is one diagnostic record.
type JournalEvent struct {
	Sequence uint64      `json:"seq"`
	Time     time.Time   `json:"time"`
	Kind     JournalKind `json:"kind"`
	Spawner  string      `json:"spawner,omitempty"`
	Region   string      `json:"region,omitempty"`
	Message  string      `json:"message"`
}

// JournalStats is reported by /api/stats.
type JournalStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending uint64 `json:"pending"`
	Running bool   `json:"running"`
}

// Journal is a bounded, rate-limited diagnostic log. Orphan and anomaly
// events repeat every search interval, so both a global and a per-spawner
// limiter guard the ring. A background writer appends JSONL to disk.
type Journal struct {
	mu        sync.Mutex
	buffer    [JournalBufferSize]JournalEvent
	writeHead uint64 // next sequence
	readHead  uint64 // flushed up to

	globalLimiter   *rate.Limiter
	spawnerLimiters sync.Map // map[string]*spawnerLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file    *os.File
	fileMu  sync.Mutex
	flushMu sync.Mutex // keeps batches in order between the writer and Flush

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

type spawnerLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// NewJournal creates an in-memory journal. Call Start to persist it.
func NewJournal() *Journal {
	return &Journal{
		globalLimiter: rate.NewLimiter(MaxJournalPerSec, MaxJournalPerSec/4),
		stopChan:      make(chan struct{}),
	}
}

// Start opens path for append and launches the writer. An empty path keeps
// the journal in memory only.
func (j *Journal) Start(path string) error {
	if j.running.Load() {
		return nil
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		j.file = file
	}

	j.running.Store(true)
	j.writerWg.Add(2)
	go j.writerLoop()
	go j.cleanupLoop()
	return nil
}

// Stop flushes pending events and closes the file.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		wasRunning := j.running.Swap(false)
		close(j.stopChan)
		if wasRunning {
			j.writerWg.Wait()
		}

		j.fileMu.Lock()
		if j.file != nil {
			j.file.Close()
			j.file = nil
		}
		j.fileMu.Unlock()
	})
}

// Emit records an event at now. Returns false when rate limited.
func (j *Journal) Emit(now time.Time, kind JournalKind, spawner, region, msg string) bool {
	if !j.globalLimiter.AllowN(now, 1) {
		atomic.AddUint64(&j.droppedCount, 1)
		return false
	}
	if spawner != "" && !j.spawnerLimiter(spawner, now).AllowN(now, 1) {
		atomic.AddUint64(&j.droppedCount, 1)
		return false
	}

	j.mu.Lock()
	j.writeHead++
	if j.writeHead-j.readHead > JournalBufferSize {
		// Oldest unflushed entry is overwritten.
		j.readHead++
		atomic.AddUint64(&j.droppedCount, 1)
	}
	j.buffer[j.writeHead%JournalBufferSize] = JournalEvent{
		Sequence: j.writeHead,
		Time:     now,
		Kind:     kind,
		Spawner:  spawner,
		Region:   region,
		Message:  msg,
	}
	j.mu.Unlock()

	atomic.AddUint64(&j.totalCount, 1)
	return true
}

func (j *Journal) spawnerLimiter(name string, now time.Time) *rate.Limiter {
	if entry, ok := j.spawnerLimiters.Load(name); ok {
		e := entry.(*spawnerLimiterEntry)
		e.lastUsed.Store(now.UnixNano())
		return e.limiter
	}
	entry := &spawnerLimiterEntry{limiter: rate.NewLimiter(MaxJournalPerSpawner, 1)}
	entry.lastUsed.Store(now.UnixNano())
	actual, _ := j.spawnerLimiters.LoadOrStore(name, entry)
	return actual.(*spawnerLimiterEntry).limiter
}

// Recent returns up to n of the newest events, oldest first.
func (j *Journal) Recent(n int) []JournalEvent {
	j.mu.Lock()
	defer j.mu.Unlock()

	avail := j.writeHead
	if avail > JournalBufferSize {
		avail = JournalBufferSize
	}
	if n <= 0 || uint64(n) > avail {
		n = int(avail)
	}
	out := make([]JournalEvent, 0, n)
	for seq := j.writeHead - uint64(n) + 1; seq <= j.writeHead; seq++ {
		out = append(out, j.buffer[seq%JournalBufferSize])
	}
	return out
}

// Flush writes every pending event now.
func (j *Journal) Flush() {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()
	for {
		batch := j.collectBatch(make([]JournalEvent, 0, JournalFlushSize))
		if len(batch) == 0 {
			return
		}
		j.flushBatch(batch)
	}
}

func (j *Journal) writerLoop() {
	defer j.writerWg.Done()

	ticker := time.NewTicker(JournalFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			j.Flush()
			return
		case <-ticker.C:
			j.Flush()
		}
	}
}

func (j *Journal) cleanupLoop() {
	defer j.writerWg.Done()

	ticker := time.NewTicker(SpawnerLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case now := <-ticker.C:
			j.cleanupLimiters(now)
		}
	}
}

func (j *Journal) cleanupLimiters(now time.Time) {
	cutoff := now.Add(-SpawnerLimiterCleanup).UnixNano()
	j.spawnerLimiters.Range(func(key, value any) bool {
		if value.(*spawnerLimiterEntry).lastUsed.Load() < cutoff {
			j.spawnerLimiters.Delete(key)
		}
		return true
	})
}

func (j *Journal) collectBatch(batch []JournalEvent) []JournalEvent {
	j.mu.Lock()
	defer j.mu.Unlock()

	for seq := j.readHead + 1; seq <= j.writeHead && len(batch) < JournalFlushSize; seq++ {
		batch = append(batch, j.buffer[seq%JournalBufferSize])
	}
	j.readHead += uint64(len(batch))
	return batch
}

// flushBatch appends events as newline-delimited JSON.
func (j *Journal) flushBatch(batch []JournalEvent) {
	j.fileMu.Lock()
	defer j.fileMu.Unlock()

	if j.file == nil {
		return
	}
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		j.file.Write(append(data, '\n'))
	}
}

// Stats returns counters for monitoring.
func (j *Journal) Stats() JournalStats {
	j.mu.Lock()
	pending := j.writeHead - j.readHead
	j.mu.Unlock()
	return JournalStats{
		Total:   atomic.LoadUint64(&j.totalCount),
		Dropped: atomic.LoadUint64(&j.droppedCount),
		Pending: pending,
		Running: j.running.Load(),
	}
}
