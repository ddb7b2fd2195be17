// Package killswitch implements the single process-wide "kill" flag
// observed by every Agent Loop between steps (spec.md §5, §4.11). The
// Dispatcher does not read it.
package killswitch

import "sync"

// Switch is a process-wide cooperative cancellation flag. Setting it does
// not force-kill anything in flight; running Agent Loops observe it at their
// next step boundary and terminate with a stuck result.
type Switch struct {
	mu     sync.Mutex
	killed bool
	reason string
}

// New creates a cleared Switch.
func New() *Switch {
	return &Switch{}
}

// Set trips the flag with reason, if not already set.
func (s *Switch) Set(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.killed {
		s.killed = true
		s.reason = reason
	}
}

// Clear resets the flag, allowing subsequent tasks to proceed. Called after
// a short grace period once the kill has propagated to running loops.
func (s *Switch) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killed = false
	s.reason = ""
}

// IsSet reports whether the flag is currently tripped, and why.
func (s *Switch) IsSet() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed, s.reason
}
