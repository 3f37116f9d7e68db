// Package mock provides a deterministic embeddings.Provider for tests.
package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/MrWong99/dictaflow/pkg/provider/embeddings"
)

// Provider is a mock embeddings provider producing deterministic vectors
// derived from the input text, so equal texts always embed identically.
type Provider struct {
	// Dim is the dimensionality of produced vectors. Defaults to 8 if zero.
	Dim int

	// Err, if set, is returned by every call.
	Err error

	mu    sync.Mutex
	calls []string
}

var _ embeddings.Provider = (*Provider)(nil)

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.calls = append(p.calls, text)
	p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vector(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.Dim <= 0 {
		return 8
	}
	return p.Dim
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return "mock-embed"
}

// Calls returns the texts embedded so far, in order.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *Provider) vector(text string) []float32 {
	dim := p.Dimensions()
	out := make([]float32, dim)
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	for i := range out {
		seed = seed*1664525 + 1013904223
		out[i] = float32(seed%1000)/1000 - 0.5
	}
	return out
}
