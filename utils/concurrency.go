package utils

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum interval between successive calls to Wait.
type Throttle struct {
	interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

// NewThrottle creates a Throttle. The first Wait never blocks.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Wait blocks until at least interval has passed since the previous Wait.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() {
		if elapsed := time.Since(t.last); elapsed < t.interval {
			if err := Sleep(ctx, t.interval-elapsed); err != nil {
				return err
			}
		}
	}
	t.last = time.Now()
	return nil
}

// IDSet is a thread-safe set of product identifiers.
type IDSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewIDSet creates a set holding ids.
func NewIDSet(ids ...string) *IDSet {
	s := &IDSet{seen: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.seen[id] = struct{}{}
	}
	return s
}

// Add returns true if the id was newly added, false if already present.
func (s *IDSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[id]; exists {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// Contains returns true if the id is in the set.
func (s *IDSet) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[id]
	return exists
}

// Size returns the number of unique ids tracked.
func (s *IDSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
