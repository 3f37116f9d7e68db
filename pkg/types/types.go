// Package types defines the shared types used across all Dictaflow packages.
//
// These types form the lingua franca between the live pipeline, providers,
// stores, and the gateway. They are intentionally minimal — each package
// defines its own domain types, but cross-cutting data structures live here
// to avoid circular imports.
package types

import "time"

// Segment is one contiguous span of recorded speech, bounded by detected
// silence and transcribed independently. Segments are append-only during a
// session; the only permitted mutation after creation is an explicit user
// edit of the text.
type Segment struct {
	// ID is monotonically increasing within a session and stable once
	// assigned. It doubles as the audio blob filename suffix.
	ID int `json:"id"`

	// Text is the recognized (and possibly corrected) text, may be empty.
	Text string `json:"text"`

	// Start and End are offsets relative to session start. End - Start
	// equals the decoded audio duration of the segment.
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`

	// AudioFile is the store-relative path of the persisted audio blob.
	// Empty when the persistence collaborator was unavailable.
	AudioFile string `json:"audioFile,omitempty"`

	// Uncertain flags a low-confidence transcription for human review.
	// See the uncertainty heuristic in internal/live.
	Uncertain bool `json:"uncertain,omitempty"`
}

// Duration returns the audio length of the segment.
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Prompt is a user-defined enrichment instruction applied to a finished
// transcript (e.g. "summarise", "fix punctuation", "translate to English").
type Prompt struct {
	// Name uniquely identifies the prompt in the prompt library.
	Name string `json:"name"`

	// Text is the instruction sent to the LLM together with the transcript.
	Text string `json:"text"`

	// UpdatedAt is when the prompt was last saved.
	UpdatedAt time.Time `json:"updatedAt"`
}
