package alerts

import (
	"sync"
	"time"

	"patrolwatch/internal/model"
)

// Store is the alert feed, newest first, holding at most limit entries.
type Store struct {
	mu    sync.RWMutex
	buf   []model.Alert
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 20
	}
	return &Store{limit: limit}
}

func (s *Store) Limit() int {
	return s.limit
}

// Prepend puts alerts in front of the feed in the given order and drops
// whatever falls past the limit.
func (s *Store) Prepend(alerts ...model.Alert) {
	if len(alerts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]model.Alert, 0, len(alerts)+len(s.buf))
	next = append(next, alerts...)
	next = append(next, s.buf...)
	if len(next) > s.limit {
		next = next[:s.limit]
	}
	s.buf = next
}

// Replace swaps the whole feed, truncating to the limit.
func (s *Store) Replace(alerts []model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(alerts) > s.limit {
		alerts = alerts[:s.limit]
	}
	s.buf = model.CloneAlerts(alerts)
}

// Acknowledge flags the alert with id. It reports whether the flag changed;
// unknown ids and already acknowledged alerts are left alone.
func (s *Store) Acknowledge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.buf {
		if s.buf[i].ID != id {
			continue
		}
		if s.buf[i].Acknowledged {
			return false
		}
		next := make([]model.Alert, len(s.buf))
		copy(next, s.buf)
		next[i].Acknowledged = true
		s.buf = next
		return true
	}
	return false
}

func (s *Store) Get(id string) (model.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.buf {
		if a.ID == id {
			return a, true
		}
	}
	return model.Alert{}, false
}

func (s *Store) List(limit int) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.Alert, limit)
	copy(out, s.buf[:limit])
	return out
}

func (s *Store) Since(ts time.Time) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0)
	for _, a := range s.buf {
		if !a.Timestamp.Before(ts) {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Unacknowledged() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.buf {
		if !a.Acknowledged {
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buf)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
