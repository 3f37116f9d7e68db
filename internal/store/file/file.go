// Package file implements the store contracts on the local filesystem.
//
// Layout under the configured root directory:
//
//	<root>/projects/<projectID>/project.json    — manifest with segment list
//	<root>/projects/<projectID>/audio/seg_N.wav — one blob per segment
//	<root>/prompts.json                         — the prompt library
//
// Manifest writes go through a temp-file-then-rename so a crash mid-write
// never leaves a truncated manifest behind. Writes to the same project are
// serialized through a per-project mutex.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/dictaflow/internal/store"
	"github.com/MrWong99/dictaflow/pkg/types"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._ -]*$`)

// Store is a filesystem-backed ProjectStore and PromptStore.
type Store struct {
	root string

	mu       sync.Mutex
	projects map[string]*sync.Mutex
	promptMu sync.Mutex
}

var (
	_ store.ProjectStore = (*Store)(nil)
	_ store.PromptStore  = (*Store)(nil)
)

// New creates a file store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store: root directory must not be empty")
	}
	if err := os.MkdirAll(filepath.Join(dir, "projects"), 0o755); err != nil {
		return nil, fmt.Errorf("file store: create root: %w", err)
	}
	return &Store{
		root:     dir,
		projects: make(map[string]*sync.Mutex),
	}, nil
}

// manifest is the on-disk project file shape.
type manifest struct {
	UpdatedAt time.Time       `json:"updatedAt"`
	Segments  []types.Segment `json:"segments"`
}

// AppendSegments implements store.ProjectStore.
func (s *Store) AppendSegments(ctx context.Context, projectID string, segments []types.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	lock, err := s.projectLock(projectID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	m, err := s.readManifest(projectID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	m.Segments = append(m.Segments, segments...)
	return s.writeManifest(projectID, m)
}

// WriteManifest implements store.ProjectStore.
func (s *Store) WriteManifest(ctx context.Context, projectID string, segments []types.Segment) error {
	lock, err := s.projectLock(projectID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	return s.writeManifest(projectID, manifest{Segments: segments})
}

// LoadSegments implements store.ProjectStore.
func (s *Store) LoadSegments(ctx context.Context, projectID string) ([]types.Segment, error) {
	lock, err := s.projectLock(projectID)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	m, err := s.readManifest(projectID)
	if err != nil {
		return nil, err
	}
	return m.Segments, nil
}

// SaveAudioBlob implements store.ProjectStore.
func (s *Store) SaveAudioBlob(ctx context.Context, projectID string, segmentID int, wav []byte) (string, error) {
	lock, err := s.projectLock(projectID)
	if err != nil {
		return "", err
	}
	lock.Lock()
	defer lock.Unlock()

	audioDir := filepath.Join(s.projectDir(projectID), "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return "", fmt.Errorf("file store: create audio dir: %w", err)
	}
	name := fmt.Sprintf("seg_%d.wav", segmentID)
	if err := os.WriteFile(filepath.Join(audioDir, name), wav, 0o644); err != nil {
		return "", fmt.Errorf("file store: write audio blob: %w", err)
	}
	return filepath.Join("audio", name), nil
}

// ListPrompts implements store.PromptStore.
func (s *Store) ListPrompts(ctx context.Context) ([]types.Prompt, error) {
	s.promptMu.Lock()
	defer s.promptMu.Unlock()

	prompts, err := s.readPrompts()
	if err != nil {
		return nil, err
	}
	out := make([]types.Prompt, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetPrompt implements store.PromptStore.
func (s *Store) GetPrompt(ctx context.Context, name string) (types.Prompt, error) {
	s.promptMu.Lock()
	defer s.promptMu.Unlock()

	prompts, err := s.readPrompts()
	if err != nil {
		return types.Prompt{}, err
	}
	p, ok := prompts[name]
	if !ok {
		return types.Prompt{}, fmt.Errorf("file store: prompt %q: %w", name, store.ErrNotFound)
	}
	return p, nil
}

// SavePrompt implements store.PromptStore.
func (s *Store) SavePrompt(ctx context.Context, prompt types.Prompt) error {
	if prompt.Name == "" {
		return fmt.Errorf("file store: prompt name must not be empty")
	}
	s.promptMu.Lock()
	defer s.promptMu.Unlock()

	prompts, err := s.readPrompts()
	if err != nil {
		return err
	}
	prompt.UpdatedAt = time.Now().UTC()
	prompts[prompt.Name] = prompt
	return s.writePrompts(prompts)
}

// DeletePrompt implements store.PromptStore.
func (s *Store) DeletePrompt(ctx context.Context, name string) error {
	s.promptMu.Lock()
	defer s.promptMu.Unlock()

	prompts, err := s.readPrompts()
	if err != nil {
		return err
	}
	if _, ok := prompts[name]; !ok {
		return fmt.Errorf("file store: prompt %q: %w", name, store.ErrNotFound)
	}
	delete(prompts, name)
	return s.writePrompts(prompts)
}

func (s *Store) projectLock(projectID string) (*sync.Mutex, error) {
	if !idPattern.MatchString(projectID) {
		return nil, fmt.Errorf("file store: invalid project id %q", projectID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.projects[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.projects[projectID] = lock
	}
	return lock, nil
}

func (s *Store) projectDir(projectID string) string {
	return filepath.Join(s.root, "projects", projectID)
}

func (s *Store) readManifest(projectID string) (manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.projectDir(projectID), "project.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return manifest{}, fmt.Errorf("file store: project %q: %w", projectID, store.ErrNotFound)
	}
	if err != nil {
		return manifest{}, fmt.Errorf("file store: read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("file store: parse manifest: %w", err)
	}
	return m, nil
}

func (s *Store) writeManifest(projectID string, m manifest) error {
	dir := s.projectDir(projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file store: create project dir: %w", err)
	}
	m.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: marshal manifest: %w", err)
	}
	return atomicWrite(filepath.Join(dir, "project.json"), data)
}

func (s *Store) readPrompts() (map[string]types.Prompt, error) {
	data, err := os.ReadFile(filepath.Join(s.root, "prompts.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]types.Prompt), nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read prompts: %w", err)
	}
	var prompts map[string]types.Prompt
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("file store: parse prompts: %w", err)
	}
	if prompts == nil {
		prompts = make(map[string]types.Prompt)
	}
	return prompts, nil
}

func (s *Store) writePrompts(prompts map[string]types.Prompt) error {
	data, err := json.MarshalIndent(prompts, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: marshal prompts: %w", err)
	}
	return atomicWrite(filepath.Join(s.root, "prompts.json"), data)
}

// atomicWrite writes data to a temp file in the target's directory and
// renames it into place, so readers never observe a partial file.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("file store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
