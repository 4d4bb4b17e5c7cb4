package store

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/always-on-dashboard/internal/weather"
)

var (
	// ErrNotFound is returned when no refresh has been recorded in the requested window.
	ErrNotFound = errors.New("no weather data recorded")
)

// MemoryStore is a concurrency-safe, process-memory history of successful
// refreshes. Nothing survives a restart.
type MemoryStore struct {
	mu sync.RWMutex

	records []weather.Record
	clock   clockwork.Clock

	// retention configuration
	maxHistory int           // max number of records kept
	maxAge     time.Duration // optional max age of records
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration, clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:      clock,
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// Save appends a record and enforces retention. Records are kept ordered by
// UpdatedAt; an out-of-order record is inserted in place.
func (s *MemoryStore) Save(rec weather.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.records)
	for i > 0 && s.records[i-1].UpdatedAt.After(rec.UpdatedAt) {
		i--
	}
	s.records = append(s.records, weather.Record{})
	copy(s.records[i+1:], s.records[i:])
	s.records[i] = rec

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.records) > s.maxHistory {
		over := len(s.records) - s.maxHistory
		s.records = append([]weather.Record(nil), s.records[over:]...)
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.clock.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.records); i++ {
			if !s.records[i].UpdatedAt.Before(cutoff) {
				break
			}
		}
		if i > 0 {
			s.records = append([]weather.Record(nil), s.records[i:]...)
		}
	}
}

// Len returns the number of records held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// GetLatest returns the most recent record.
func (s *MemoryStore) GetLatest() (weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return weather.Record{}, ErrNotFound
	}
	return s.records[len(s.records)-1], nil
}

// GetRange returns all records between from and to (inclusive).
func (s *MemoryStore) GetRange(from, to time.Time) ([]weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Record
	for _, rec := range s.records {
		if !rec.UpdatedAt.Before(from) && !rec.UpdatedAt.After(to) {
			result = append(result, rec)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}
