// Package idle derives an idle boolean from the last user interaction and
// drives pause/resume batches on idle-edge transitions.
package idle

import (
	"sync"
	"time"
)

// DefaultThreshold is how long without interaction counts as idle.
const DefaultThreshold = 3 * time.Minute

// State tracks the last user interaction. It owns no timers: Idle is a live
// clock read at evaluation time, so the boolean flips organically on the
// next observation rather than via a scheduled callback.
type State struct {
	mu        sync.Mutex
	threshold time.Duration
	last      time.Time
	nowFn     func() time.Time
}

// NewState creates an idle state with the given threshold. A non-positive
// threshold falls back to DefaultThreshold.
func NewState(threshold time.Duration) *State {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	s := &State{
		threshold: threshold,
		nowFn:     time.Now,
	}
	s.last = s.nowFn()
	return s
}

// Ping records a user interaction now. It is the only mutator.
func (s *State) Ping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = s.nowFn()
}

// Idle reports whether the threshold has elapsed since the last interaction.
func (s *State) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowFn().Sub(s.last) >= s.threshold
}

// LastInteraction returns the timestamp of the last interaction.
func (s *State) LastInteraction() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Threshold returns the configured idle threshold.
func (s *State) Threshold() time.Duration {
	return s.threshold
}
