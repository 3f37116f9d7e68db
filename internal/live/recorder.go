package live

import (
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/dictaflow/pkg/audio"
)

// ErrNoActiveRecording is returned when Seal or Append is called without an
// active recording. This indicates a caller ordering bug, not a runtime
// condition to recover from.
var ErrNoActiveRecording = errors.New("live: no active recording")

// SegmentRecorder buffers raw PCM continuously and materializes discrete
// sealed segments on demand. Sealing flushes the buffer and restarts
// accumulation in the same step, so capture never has a gap: every frame
// appended lands either in the sealed blob or in the next segment's buffer,
// never in neither.
type SegmentRecorder struct {
	sampleRate int
	channels   int

	mu     sync.Mutex
	active bool
	buf    []byte
	chunks int
	pos    time.Duration // total audio appended since Start
	start  time.Duration // offset where the current buffer began
}

// NewSegmentRecorder creates a recorder for PCM with the given format.
func NewSegmentRecorder(sampleRate, channels int) *SegmentRecorder {
	return &SegmentRecorder{sampleRate: sampleRate, channels: channels}
}

// SampleRate returns the PCM sample rate the recorder expects.
func (r *SegmentRecorder) SampleRate() int { return r.sampleRate }

// Channels returns the PCM channel count the recorder expects.
func (r *SegmentRecorder) Channels() int { return r.channels }

// Start begins a fresh recording, discarding any previous state.
func (r *SegmentRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
	r.buf = nil
	r.chunks = 0
	r.pos = 0
	r.start = 0
}

// Stop deactivates the recorder. Subsequent Append and Seal calls fail with
// ErrNoActiveRecording until Start is called again.
func (r *SegmentRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.buf = nil
	r.chunks = 0
}

// Append adds one captured frame to the current segment buffer.
func (r *SegmentRecorder) Append(frame audio.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return ErrNoActiveRecording
	}
	r.buf = append(r.buf, frame.Data...)
	r.chunks++
	r.pos += audio.PCMDuration(len(frame.Data), r.sampleRate, r.channels)
	return nil
}

// Seal flushes the buffered audio into a single blob and immediately begins
// accumulating the next segment. It returns the blob and the session-relative
// offset at which the blob's audio started. Seal always produces a result
// while a recording is active, even if the buffer is empty or tiny; deciding
// whether a blob is worth keeping is the caller's policy.
func (r *SegmentRecorder) Seal() (blob []byte, start time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return nil, 0, ErrNoActiveRecording
	}
	blob = r.buf
	start = r.start
	r.buf = nil
	r.chunks = 0
	r.start = r.pos
	return blob, start, nil
}

// BufferedChunks returns how many frames have accumulated since the last
// seal. The detector uses this for its minimum-chunk gate.
func (r *SegmentRecorder) BufferedChunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks
}

// BufferedBytes returns the size of the current segment buffer.
func (r *SegmentRecorder) BufferedBytes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}
