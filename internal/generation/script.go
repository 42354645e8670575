package generation

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned when a Script runs out of canned responses.
var ErrScriptExhausted = errors.New("generation: script exhausted")

// Script replays canned responses in order. It stands in for the real
// generation service in tests and local dry runs, and records every prompt
// it receives.
type Script struct {
	mu        sync.Mutex
	responses []string
	next      int
	calls     []Prompt
	failures  int
}

// NewScript builds a script that answers with the given responses in order.
func NewScript(responses ...string) *Script {
	return &Script{responses: responses}
}

// FailNext makes the next n calls return an error before the script resumes
// its canned responses. Used to exercise retry paths.
func (s *Script) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

// Complete returns the next canned response.
func (s *Script) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, prompt)
	if s.failures > 0 {
		s.failures--
		return "", errors.New("generation: scripted failure")
	}
	if s.next >= len(s.responses) {
		return "", ErrScriptExhausted
	}
	response := s.responses[s.next]
	s.next++
	return response, nil
}

// Calls returns a copy of every prompt the script has seen.
func (s *Script) Calls() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Prompt, len(s.calls))
	copy(out, s.calls)
	return out
}
