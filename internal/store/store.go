package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/linesight/linesight/internal/event"
)

// Entry is one line's visit snapshot together with the time it last
// received data.
type Entry struct {
	Line      string
	Visits    []event.Visit
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory visit store, keyed by line. A background
// goroutine (Run) periodically evicts lines that have not been updated
// within the configured TTL.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Append adds visits to the line's snapshot, creating it if needed, and
// refreshes the line's update time. It returns the line's visit count.
func (s *Store) Append(line string, visits []event.Visit) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[line]
	if !ok {
		e = &Entry{Line: line}
		s.data[line] = e
	}
	e.Visits = append(e.Visits, visits...)
	e.UpdatedAt = s.now()
	return len(e.Visits)
}

// Replace swaps the line's snapshot wholesale. Callers must not modify
// visits after calling Replace.
func (s *Store) Replace(line string, visits []event.Visit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[line] = &Entry{
		Line:      line,
		Visits:    visits,
		UpdatedAt: s.now(),
	}
}

// Get returns a copy of the line's visits and whether the line is known.
// The copy keeps analyzers independent of concurrent ingest.
func (s *Store) Get(line string) ([]event.Visit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[line]
	if !ok {
		return nil, false
	}
	out := make([]event.Visit, len(e.Visits))
	copy(out, e.Visits)
	return out, true
}

// Lines returns the line names whose UpdatedAt is within the TTL. Stale
// lines that have not yet been evicted are excluded.
func (s *Store) Lines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]string, 0, len(s.data))
	for line, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, line)
		}
	}
	return out
}

// Count returns the total number of lines currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes lines whose UpdatedAt is older than now minus TTL.
// It returns the number of lines removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for line, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, line)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// interval (minimum 1 second) so stale lines are dropped promptly. Run
// blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale lines", "count", n)
			}
		}
	}
}
