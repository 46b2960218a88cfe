// Package activity keeps a bounded, in-memory log of recent ingest events:
// files indexed by a directory run or the watcher, uploads, failures,
// user deletions and files skipped because their document was deleted.
//
// A nil *Log is valid and records nothing.
package activity

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of events kept
const DefaultCapacity = 50

// Status is the state of one event
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked" // Source deleted by a user, not re-ingested
	StatusDeleted    Status = "deleted" // Document deleted by a user
	StatusRemoved    Status = "removed" // Source file disappeared
)

// Event is one ingest or removal
type Event struct {
	ID          string     `json:"event_id"`
	Filename    string     `json:"filename"`
	SourcePath  string     `json:"source_path,omitempty"`
	SizeBytes   int64      `json:"file_size"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DocumentID  string     `json:"document_id,omitempty"`
	NumChunks   int        `json:"num_chunks"`
	Error       string     `json:"error_message,omitempty"`
}

// Counts summarizes the events currently held
type Counts struct {
	Events         int  `json:"events"`
	TotalProcessed int  `json:"total_processed"`
	TotalFailed    int  `json:"total_failed"`
	IsActive       bool `json:"is_active"`
}

// Summary is Counts plus the events, newest first
type Summary struct {
	Counts
	Recent []Event `json:"recent_activities"`
}

// Log holds the most recent events. Events are never promoted, so the
// oldest one is evicted first.
type Log struct {
	mu     sync.Mutex
	events *lru.Cache[string, *Event]
	now    func() time.Time
}

// New creates a log holding up to capacity events; zero or less selects
// DefaultCapacity
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	events, err := lru.New[string, *Event](capacity)
	if err != nil {
		panic(err) // Only fails for a non-positive size
	}
	return &Log{events: events, now: time.Now}
}

// Start records an event in the processing state and returns its ID
func (l *Log) Start(filename, sourcePath string, size int64) string {
	if l == nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := &Event{
		ID:         uuid.NewString(),
		Filename:   filename,
		SourcePath: sourcePath,
		SizeBytes:  size,
		Status:     StatusProcessing,
		StartedAt:  l.now(),
	}
	l.events.Add(ev.ID, ev)
	return ev.ID
}

// Complete marks a started event completed
func (l *Log) Complete(id, documentID string, chunks int) {
	l.finish(id, func(ev *Event) {
		ev.Status = StatusCompleted
		ev.DocumentID = documentID
		ev.NumChunks = chunks
	})
}

// Fail marks a started event failed
func (l *Log) Fail(id string, cause error) {
	l.finish(id, func(ev *Event) {
		ev.Status = StatusFailed
		if cause != nil {
			ev.Error = cause.Error()
		}
	})
}

// finish applies fn to a held event. Events dropped by eviction or Clear
// are ignored.
func (l *Log) finish(id string, fn func(*Event)) {
	if l == nil || id == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, ok := l.events.Peek(id)
	if !ok {
		return
	}
	fn(ev)
	done := l.now()
	ev.CompletedAt = &done
}

// Record adds an event that is already finished
func (l *Log) Record(ev Event) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.StartedAt.IsZero() {
		ev.StartedAt = now
	}
	if ev.CompletedAt == nil {
		ev.CompletedAt = &now
	}
	l.events.Add(ev.ID, &ev)
}

// Snapshot copies the held events, newest first, with their counts
func (l *Log) Snapshot() Summary {
	sum := Summary{Recent: []Event{}}
	if l == nil {
		return sum
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := l.events.Keys() // Oldest first
	slices.Reverse(keys)
	for _, k := range keys {
		ev, ok := l.events.Peek(k)
		if !ok {
			continue
		}
		cp := *ev
		sum.Recent = append(sum.Recent, cp)
		sum.Counts.add(cp.Status)
	}
	return sum
}

// Counts returns the counts without copying the events
func (l *Log) Counts() Counts {
	var c Counts
	if l == nil {
		return c
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ev := range l.events.Values() {
		c.add(ev.Status)
	}
	return c
}

func (c *Counts) add(s Status) {
	c.Events++
	switch s {
	case StatusCompleted:
		c.TotalProcessed++
	case StatusFailed:
		c.TotalFailed++
	case StatusProcessing:
		c.IsActive = true
	}
}

// Clear drops every event
func (l *Log) Clear() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events.Purge()
}
