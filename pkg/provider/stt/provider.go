// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// Dictaflow's live pipeline seals speech into discrete audio segments, so
// transcription is batch-oriented by design: each call submits one complete
// segment and blocks until the backend returns text. Serial ordering is the
// caller's responsibility (the transcription queue processes segments strictly
// FIFO); implementations only need to handle one segment per call.
//
// Implementations must be safe for concurrent use — the queue worker is the
// only caller during a session, but tests and fallback wrappers may overlap
// calls across sessions.
package stt

import (
	"context"
	"time"
)

// Request carries one sealed audio segment to a transcription backend.
type Request struct {
	// Audio is raw 16-bit signed little-endian PCM.
	Audio []byte

	// SampleRate is the PCM sample rate in Hz. Common values: 16000, 48000.
	SampleRate int

	// Channels is the number of interleaved channels. Most backends require
	// mono; implementations may downmix internally.
	Channels int

	// Language is a BCP-47 language hint (e.g. "en", "de"). Empty lets the
	// backend auto-detect, if supported.
	Language string
}

// Result is a completed transcription.
type Result struct {
	// Text is the recognized text, possibly empty for pure silence.
	Text string

	// Duration is the audio length of the transcribed segment. Backends that
	// do not report duration must derive it from the PCM input, because some
	// callers (cloud paths) cannot compute it independently.
	Duration time.Duration
}

// Transcriber is the abstraction over any STT backend.
type Transcriber interface {
	// Transcribe submits one sealed segment and blocks until the backend
	// returns a result or fails. Respects ctx cancellation. A non-nil error
	// means the segment could not be transcribed at all; callers decide
	// whether to skip or retry.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
