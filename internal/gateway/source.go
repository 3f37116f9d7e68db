package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/dictaflow/pkg/audio"
)

// captureSource adapts the websocket's binary Opus stream to the pipeline's
// frame channel. One decoder per connection: Opus decoders carry state
// between consecutive packets.
type captureSource struct {
	dec    *audio.OpusDecoder
	frames chan audio.Frame

	mu      sync.Mutex
	elapsed time.Duration
	closed  bool
}

func newCaptureSource() (*captureSource, error) {
	dec, err := audio.NewOpusDecoder()
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	return &captureSource{
		dec:    dec,
		frames: make(chan audio.Frame, 64),
	}, nil
}

// Frames returns the decoded PCM frame stream.
func (s *captureSource) Frames() <-chan audio.Frame { return s.frames }

// Push decodes one Opus packet and forwards the PCM frame. Packets arriving
// after Close are dropped silently: the client may still have audio in
// flight when a stop lands.
func (s *captureSource) Push(ctx context.Context, packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	pcm, err := s.dec.Decode(packet)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	frame := audio.Frame{
		Data:       pcm,
		SampleRate: audio.OpusSampleRate,
		Channels:   audio.OpusChannels,
		Timestamp:  s.elapsed,
	}
	s.elapsed += frame.Duration()

	select {
	case s.frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the stream. The frame channel closes immediately; the pipeline
// pump drains whatever is still buffered.
func (s *captureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.frames)
	return nil
}
