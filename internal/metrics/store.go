package metrics

import (
	"sync"
	"time"
)

// Stats is a point-in-time copy of the scheduler counters.
type Stats struct {
	StartedAt        time.Time     `json:"started_at"`
	Ticks            uint64        `json:"ticks"`
	LastTickAt       time.Time     `json:"last_tick_at,omitempty"`
	LastTickDuration time.Duration `json:"last_tick_duration_ns"`
	MaxTickDuration  time.Duration `json:"max_tick_duration_ns"`
	AlertsRaised     uint64        `json:"alerts_raised"`
	AlertsDropped    uint64        `json:"alerts_dropped"`
	Acknowledged     uint64        `json:"acknowledged"`
	Resets           uint64        `json:"resets"`
	SnapshotsDropped uint64        `json:"snapshots_dropped"`
}

type Store struct {
	mu    sync.RWMutex
	stats Stats
}

func NewStore(startedAt time.Time) *Store {
	return &Store{stats: Stats{StartedAt: startedAt}}
}

// RecordTick accounts for one scheduler pass. raised is the number of alerts
// that entered the feed and dropped the number pushed out past its limit.
func (s *Store) RecordTick(at time.Time, took time.Duration, raised, dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Ticks++
	s.stats.LastTickAt = at
	s.stats.LastTickDuration = took
	if took > s.stats.MaxTickDuration {
		s.stats.MaxTickDuration = took
	}
	s.stats.AlertsRaised += uint64(raised)
	s.stats.AlertsDropped += uint64(dropped)
}

func (s *Store) RecordAcknowledge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Acknowledged++
}

func (s *Store) RecordReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Resets++
}

func (s *Store) RecordSnapshotDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.SnapshotsDropped++
}

func (s *Store) Get() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Clear zeroes the counters but keeps the start time.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{StartedAt: s.stats.StartedAt}
}
