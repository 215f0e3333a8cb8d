// Package retry implements the backoff and provider-rotation state
// machine the supervisor loop consults after an agent session fails.
package retry

import "time"

// State tracks retry attempts and, beyond the original backoff scheme,
// which configured provider is currently active.
type State struct {
	Attempt       uint32
	MaxRetries    uint32
	ProviderIndex uint32
	ProviderCount uint32
}

// New returns a State with zero attempts.
func New(maxRetries, providerCount uint32) State {
	return State{MaxRetries: maxRetries, ProviderCount: providerCount}
}

// NextBackoff returns the delay before the next retry: 5s, 15s, then 60s
// for every attempt after that. ok is false once MaxRetries is reached.
func (s State) NextBackoff() (time.Duration, bool) {
	if s.Attempt >= s.MaxRetries {
		return 0, false
	}
	switch s.Attempt {
	case 0:
		return 5 * time.Second, true
	case 1:
		return 15 * time.Second, true
	default:
		return 60 * time.Second, true
	}
}

// RecordFailure increments the attempt counter.
func (s *State) RecordFailure() {
	s.Attempt++
}

// Reset zeros both the attempt counter and the active provider index after
// a successful session.
func (s *State) Reset() {
	s.Attempt = 0
	s.ProviderIndex = 0
}

// Exhausted reports whether retries have run out.
func (s State) Exhausted() bool {
	return s.Attempt >= s.MaxRetries
}

// RotateProvider advances provider_index modulo provider_count, reporting
// wrapped=true when the advance lands back on zero (one full cycle
// completed). With zero providers configured there is nothing to advance
// to, so rotation immediately reports wrapped. Rotating also zeros
// attempt.
func (s *State) RotateProvider() (wrapped bool) {
	s.Attempt = 0
	if s.ProviderCount == 0 {
		return true
	}
	s.ProviderIndex = (s.ProviderIndex + 1) % s.ProviderCount
	return s.ProviderIndex == 0
}
