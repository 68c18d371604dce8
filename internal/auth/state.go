package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

const stateTTL = 5 * time.Minute

// states issues single-use CSRF states for the authorization redirect.
type states struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

func newStates() *states {
	return &states{expires: make(map[string]time.Time)}
}

func (s *states) issue(now time.Time) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read failed: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()

	for st, exp := range s.expires {
		if exp.Before(now) {
			delete(s.expires, st)
		}
	}
	s.expires[state] = now.Add(stateTTL)

	return state, nil
}

// consume reports whether state was issued and has not expired. A state is accepted at most once.
func (s *states) consume(state string, now time.Time) bool {
	if state == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.expires[state]
	if !ok {
		return false
	}
	delete(s.expires, state)

	return !now.After(exp)
}
