// Package llmtest provides an in-memory llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/headcheck/internal/llm"
)

// ErrScriptExhausted is returned when a Scripted provider runs out of replies
var ErrScriptExhausted = errors.New("llmtest: no scripted replies left")

// Scripted replays canned replies in order and records every request
type Scripted struct {
	// Replies are returned in order; once exhausted, Repeat (if set) is returned forever
	Replies []string
	Repeat  string
	// Err, when set, is returned from every Complete call
	Err error

	ProviderName string
	Kind         llm.Backend

	mu       sync.Mutex
	requests []llm.ChatRequest
}

// Name returns the provider name, "scripted" by default
func (s *Scripted) Name() string {
	if s.ProviderName == "" {
		return "scripted"
	}
	return s.ProviderName
}

// Backend returns Kind, defaulting to BackendLocalServed
func (s *Scripted) Backend() llm.Backend {
	if s.Kind == 0 {
		return llm.BackendLocalServed
	}
	return s.Kind
}

// IsAvailable always reports true
func (s *Scripted) IsAvailable(ctx context.Context) bool {
	return true
}

// Complete returns the next scripted reply
func (s *Scripted) Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.Err != nil {
		return nil, s.Err
	}

	var reply string
	switch {
	case len(s.Replies) > 0:
		reply, s.Replies = s.Replies[0], s.Replies[1:]
	case s.Repeat != "":
		reply = s.Repeat
	default:
		return nil, ErrScriptExhausted
	}

	return &llm.ChatResponse{Content: reply, Model: s.Name()}, nil
}

// Requests returns a copy of the requests seen so far
func (s *Scripted) Requests() []llm.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.ChatRequest(nil), s.requests...)
}

// Calls returns how many times Complete was called
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
