// Package mock provides a test double for the llm.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/dictaflow/pkg/provider/llm"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider is a mock implementation of llm.Provider. It returns scripted
// responses and records every request for inspection.
type Provider struct {
	mu sync.Mutex

	// Responses are returned in order, one per call. When exhausted, calls
	// return Default.
	Responses []string

	// Err, if non-nil, is returned by every call.
	Err error

	// Default is returned once Responses is exhausted.
	Default string

	// Requests records every request passed to Complete.
	Requests []llm.CompletionRequest

	calls int
}

// Complete records the request and returns the next scripted response.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	content := p.Default
	if p.calls < len(p.Responses) {
		content = p.Responses[p.calls]
	}
	p.calls++
	return &llm.CompletionResponse{Content: content}, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
