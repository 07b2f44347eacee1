// Package progress implements the progress store: an in-memory,
// thread-safe event log keyed by (project, branch), bridging the
// generator's long-running background supervisor tasks and a polling
// caller. Records are held for the process lifetime and aged out under a
// size cap when the store grows beyond it.
package progress

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

// Key identifies one progress record.
type Key struct {
	ProjectID string
	Branch    string
}

// Record is one (project, branch)'s current status plus its bounded
// event history.
type Record struct {
	Key         Key
	Stage       domain.ProgressStage
	Message     string
	Attempt     int
	MaxAttempts int
	Completed   bool
	Events      []domain.ProgressEvent
}

// snapshot returns a copy of r safe for a caller to retain: its Events
// slice shares no backing array with the store's own copy.
func (r *Record) snapshot() Record {
	out := *r
	out.Events = make([]domain.ProgressEvent, len(r.Events))
	copy(out.Events, r.Events)
	return out
}

// Store holds every in-flight and recently-completed record behind a
// least-recently-updated cache: once the number of distinct keys
// exceeds maxRecords, the key that was touched longest ago is dropped
// first. A single mutex guards the cache, since lookups and appends are
// cheap pointer operations never held across a network call.
type Store struct {
	mu        sync.Mutex
	maxEvents int
	cache     *lru.Cache[Key, *Record]
}

const (
	defaultMaxEvents  = 200
	defaultMaxRecords = 10000
)

// New builds a Store. maxEvents bounds the per-key event log (oldest
// events are dropped first); maxRecords bounds the number of distinct
// keys retained (least-recently-updated key is evicted first). Either
// left at zero falls back to a sane default.
func New(maxEvents, maxRecords int) *Store {
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}
	cache, err := lru.New[Key, *Record](maxRecords)
	if err != nil {
		// Only returned for a non-positive size, which defaultMaxRecords
		// never is; guard defensively rather than propagate a
		// constructor error for an input the caller didn't control.
		cache, _ = lru.New[Key, *Record](defaultMaxRecords)
	}
	return &Store{maxEvents: maxEvents, cache: cache}
}

// Create starts a new record for key, already carrying its first
// "monitoring" event, and returns it. A pre-existing record for the same
// key is replaced: a new commit to the same branch starts a fresh
// progress history rather than appending to the old one.
func (s *Store) Create(key Key, maxAttempts int) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &Record{Key: key, Stage: domain.StageMonitoring, MaxAttempts: maxAttempts}
	rec.Message = "monitoring: waiting for a build to start"
	rec.Events = append(rec.Events, domain.ProgressEvent{
		Timestamp:   time.Now(),
		Stage:       domain.StageMonitoring,
		Message:     rec.Message,
		MaxAttempts: maxAttempts,
	})
	s.cache.Add(key, rec)
	return rec.snapshot()
}

// Append adds one event to key's record and updates its current status,
// trimming the event log to maxEvents. It is a no-op if key has no
// record (the caller committed without first calling Create, or the
// record aged out).
func (s *Store) Append(key Key, event domain.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cache.Get(key)
	if !ok {
		return
	}

	rec.Stage = event.Stage
	rec.Message = event.Message
	rec.Attempt = event.Attempt
	if event.MaxAttempts > 0 {
		rec.MaxAttempts = event.MaxAttempts
	}
	rec.Events = append(rec.Events, event)
	if over := len(rec.Events) - s.maxEvents; over > 0 {
		rec.Events = append([]domain.ProgressEvent{}, rec.Events[over:]...)
	}
	if event.Stage == domain.StageSuccess || event.Stage == domain.StageFailure {
		rec.Completed = true
	}
}

// Get returns a snapshot of key's record, or false if none exists. The
// lookup itself counts as a touch, keeping actively-polled keys warm in
// the eviction order.
func (s *Store) Get(key Key) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cache.Get(key)
	if !ok {
		return Record{}, false
	}
	return rec.snapshot(), true
}
