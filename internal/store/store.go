// Package store defines the persistence contracts for dictation projects
// and the user's prompt library.
//
// A project is the unit of persistence: it owns an ordered list of
// transcript segments plus one audio blob per segment. Stores must tolerate
// being unavailable mid-session — callers keep the in-memory session state
// authoritative and surface save failures as warnings, never as corruption
// of previously committed state.
package store

import (
	"context"
	"errors"

	"github.com/MrWong99/dictaflow/pkg/types"
)

// ErrNotFound is returned when a project or prompt does not exist.
var ErrNotFound = errors.New("store: not found")

// ProjectStore persists transcript segments and their audio for a project.
//
// Implementations must serialize writes per project: two concurrent writes
// to the same project must not interleave, and must be applied in
// submission order. Writes to different projects may proceed in parallel.
type ProjectStore interface {
	// AppendSegments appends segments to the project's stored segment list,
	// creating the project if it does not exist yet.
	AppendSegments(ctx context.Context, projectID string, segments []types.Segment) error

	// SaveAudioBlob stores the WAV-encoded audio for one segment and returns
	// a store-relative path usable in Segment.AudioFile. A failed save
	// returns an error and an empty path; the segment is still valid without
	// audio.
	SaveAudioBlob(ctx context.Context, projectID string, segmentID int, wav []byte) (string, error)

	// WriteManifest replaces the project's stored segment list with the
	// given complete, ordered list. Used for the consolidated write at the
	// end of a session and for user edits.
	WriteManifest(ctx context.Context, projectID string, segments []types.Segment) error

	// LoadSegments returns the project's stored segment list in order.
	// Returns ErrNotFound if the project does not exist.
	LoadSegments(ctx context.Context, projectID string) ([]types.Segment, error)
}

// PromptStore manages the user's library of named enrichment prompts.
type PromptStore interface {
	// ListPrompts returns all stored prompts sorted by name.
	ListPrompts(ctx context.Context) ([]types.Prompt, error)

	// GetPrompt returns the prompt with the given name, or ErrNotFound.
	GetPrompt(ctx context.Context, name string) (types.Prompt, error)

	// SavePrompt creates or replaces a prompt.
	SavePrompt(ctx context.Context, prompt types.Prompt) error

	// DeletePrompt removes a prompt. Deleting a missing prompt returns
	// ErrNotFound.
	DeletePrompt(ctx context.Context, name string) error
}
