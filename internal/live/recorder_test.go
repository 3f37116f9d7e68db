package live_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/dictaflow/internal/live"
	"github.com/MrWong99/dictaflow/pkg/audio"
)

func TestSealWithoutActiveRecording(t *testing.T) {
	r := live.NewSegmentRecorder(audio.OpusSampleRate, audio.OpusChannels)
	if _, _, err := r.Seal(); !errors.Is(err, live.ErrNoActiveRecording) {
		t.Fatalf("Seal() error = %v, want ErrNoActiveRecording", err)
	}
	if err := r.Append(loudFrame()); !errors.Is(err, live.ErrNoActiveRecording) {
		t.Fatalf("Append() error = %v, want ErrNoActiveRecording", err)
	}
}

func TestSealFlushesAndRestarts(t *testing.T) {
	r := live.NewSegmentRecorder(audio.OpusSampleRate, audio.OpusChannels)
	r.Start()

	frame := loudFrame()
	for i := 0; i < 3; i++ {
		if err := r.Append(frame); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if got := r.BufferedChunks(); got != 3 {
		t.Errorf("BufferedChunks() = %d, want 3", got)
	}

	blob, start, err := r.Seal()
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if start != 0 {
		t.Errorf("first seal start = %v, want 0", start)
	}
	want := bytes.Repeat(frame.Data, 3)
	if !bytes.Equal(blob, want) {
		t.Errorf("sealed blob has %d bytes, want %d", len(blob), len(want))
	}

	// Accumulation restarted with no gap: buffer empty, next start offset
	// equals the duration of everything sealed so far.
	if got := r.BufferedChunks(); got != 0 {
		t.Errorf("BufferedChunks() after seal = %d, want 0", got)
	}
	if err := r.Append(frame); err != nil {
		t.Fatalf("Append() after seal error = %v", err)
	}
	_, start2, err := r.Seal()
	if err != nil {
		t.Fatalf("second Seal() error = %v", err)
	}
	if want := 3 * 20 * time.Millisecond; start2 != want {
		t.Errorf("second seal start = %v, want %v", start2, want)
	}
}

func TestSealEmptyBufferProducesEmptyBlob(t *testing.T) {
	r := live.NewSegmentRecorder(audio.OpusSampleRate, audio.OpusChannels)
	r.Start()
	blob, start, err := r.Seal()
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if len(blob) != 0 || start != 0 {
		t.Errorf("Seal() = %d bytes at %v, want empty at 0", len(blob), start)
	}
}

func TestStopDeactivates(t *testing.T) {
	r := live.NewSegmentRecorder(audio.OpusSampleRate, audio.OpusChannels)
	r.Start()
	if err := r.Append(loudFrame()); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	r.Stop()
	if err := r.Append(loudFrame()); !errors.Is(err, live.ErrNoActiveRecording) {
		t.Fatalf("Append() after Stop error = %v, want ErrNoActiveRecording", err)
	}
}

func TestLevelMonitor(t *testing.T) {
	m := live.NewLevelMonitor()
	if got := m.Sample(); got != 0 {
		t.Errorf("initial Sample() = %v, want 0", got)
	}

	m.Observe(loudFrame())
	loud := m.Sample()
	if loud <= 0 {
		t.Fatalf("Sample() after loud frame = %v, want > 0", loud)
	}

	// Empty frames must not disturb the last reading.
	m.Observe(audio.Frame{})
	if got := m.Sample(); got != loud {
		t.Errorf("Sample() after empty frame = %v, want %v", got, loud)
	}

	m.Observe(quietFrame())
	if got := m.Sample(); got != 0 {
		t.Errorf("Sample() after quiet frame = %v, want 0", got)
	}
}
