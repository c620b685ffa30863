// Package secret holds credential material that must not outlive its use.
package secret

import "sync"

// Secret owns a byte buffer that Zero overwrites in place. Callers defer
// Zero so the password is wiped on every exit path once authentication
// has completed.
type Secret struct {
	mu sync.Mutex
	b  []byte
}

// FromBytes takes ownership of b. The caller must not reuse b.
func FromBytes(b []byte) *Secret {
	return &Secret{b: b}
}

// FromString copies s into an owned buffer. The original string cannot be
// wiped; prefer FromBytes when the source is already a byte slice.
func FromString(s string) *Secret {
	return &Secret{b: []byte(s)}
}

// Bytes returns the backing buffer. Valid until Zero is called.
func (s *Secret) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b
}

// Empty reports whether no material is held.
func (s *Secret) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.b) == 0
}

// Zero overwrites the buffer and drops it. Safe to call more than once.
func (s *Secret) Zero() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = nil
}
