// Package mock provides in-memory store implementations for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/dictaflow/internal/store"
	"github.com/MrWong99/dictaflow/pkg/types"
)

// ProjectStore is an in-memory store.ProjectStore that records every call.
type ProjectStore struct {
	// AppendErr, SaveErr and ManifestErr, if set, are returned by the
	// corresponding operations without recording anything.
	AppendErr   error
	SaveErr     error
	ManifestErr error

	mu        sync.Mutex
	segments  map[string][]types.Segment
	blobs     map[string]map[int][]byte
	manifests map[string][]types.Segment
	appends   int
	writes    int
}

var _ store.ProjectStore = (*ProjectStore)(nil)

// AppendSegments implements store.ProjectStore.
func (m *ProjectStore) AppendSegments(ctx context.Context, projectID string, segments []types.Segment) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.segments == nil {
		m.segments = make(map[string][]types.Segment)
	}
	m.segments[projectID] = append(m.segments[projectID], segments...)
	m.appends++
	return nil
}

// SaveAudioBlob implements store.ProjectStore.
func (m *ProjectStore) SaveAudioBlob(ctx context.Context, projectID string, segmentID int, wav []byte) (string, error) {
	if m.SaveErr != nil {
		return "", m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blobs == nil {
		m.blobs = make(map[string]map[int][]byte)
	}
	if m.blobs[projectID] == nil {
		m.blobs[projectID] = make(map[int][]byte)
	}
	m.blobs[projectID][segmentID] = append([]byte(nil), wav...)
	return fmt.Sprintf("audio/seg_%d.wav", segmentID), nil
}

// WriteManifest implements store.ProjectStore.
func (m *ProjectStore) WriteManifest(ctx context.Context, projectID string, segments []types.Segment) error {
	if m.ManifestErr != nil {
		return m.ManifestErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manifests == nil {
		m.manifests = make(map[string][]types.Segment)
	}
	m.manifests[projectID] = append([]types.Segment(nil), segments...)
	m.writes++
	return nil
}

// LoadSegments implements store.ProjectStore.
func (m *ProjectStore) LoadSegments(ctx context.Context, projectID string) ([]types.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	segs, ok := m.manifests[projectID]
	if !ok {
		segs, ok = m.segments[projectID]
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]types.Segment(nil), segs...), nil
}

// Segments returns the appended segments for a project, in append order.
func (m *ProjectStore) Segments(projectID string) []types.Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Segment(nil), m.segments[projectID]...)
}

// Manifest returns the last manifest written for a project.
func (m *ProjectStore) Manifest(projectID string) []types.Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Segment(nil), m.manifests[projectID]...)
}

// Blob returns the saved audio blob for one segment, or nil.
func (m *ProjectStore) Blob(projectID string, segmentID int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blobs[projectID][segmentID]
}

// ManifestWrites returns how many times WriteManifest was called.
func (m *ProjectStore) ManifestWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// PromptStore is an in-memory store.PromptStore.
type PromptStore struct {
	mu      sync.Mutex
	prompts map[string]types.Prompt
}

var _ store.PromptStore = (*PromptStore)(nil)

// ListPrompts implements store.PromptStore.
func (m *PromptStore) ListPrompts(ctx context.Context) ([]types.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Prompt, 0, len(m.prompts))
	for _, p := range m.prompts {
		out = append(out, p)
	}
	return out, nil
}

// GetPrompt implements store.PromptStore.
func (m *PromptStore) GetPrompt(ctx context.Context, name string) (types.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[name]
	if !ok {
		return types.Prompt{}, store.ErrNotFound
	}
	return p, nil
}

// SavePrompt implements store.PromptStore.
func (m *PromptStore) SavePrompt(ctx context.Context, prompt types.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prompts == nil {
		m.prompts = make(map[string]types.Prompt)
	}
	m.prompts[prompt.Name] = prompt
	return nil
}

// DeletePrompt implements store.PromptStore.
func (m *PromptStore) DeletePrompt(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prompts[name]; !ok {
		return store.ErrNotFound
	}
	delete(m.prompts, name)
	return nil
}
