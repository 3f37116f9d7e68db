package live_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/dictaflow/internal/live"
	"github.com/MrWong99/dictaflow/pkg/audio"
)

// stubSealer scripts TrySeal outcomes and counts the attempts.
type stubSealer struct {
	mu      sync.Mutex
	replies []bool // consumed in order; exhausted -> true
	calls   int
}

func (s *stubSealer) TrySeal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.replies) > 0 {
		r := s.replies[0]
		s.replies = s.replies[1:]
		return r
	}
	return true
}

func (s *stubSealer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type detectorHarness struct {
	clock    *fakeClock
	level    *live.LevelMonitor
	recorder *live.SegmentRecorder
	sealer   *stubSealer
	notifier *recordingNotifier
	cancel   context.CancelFunc
	done     chan struct{}
}

// newDetectorHarness starts a detector with a 500 ms tick, 3 s idle
// threshold, and a min-chunk gate of 3 frames.
func newDetectorHarness(t *testing.T, minChunks int) *detectorHarness {
	t.Helper()
	h := &detectorHarness{
		clock:    newFakeClock(),
		level:    live.NewLevelMonitor(),
		recorder: live.NewSegmentRecorder(audio.OpusSampleRate, audio.OpusChannels),
		sealer:   &stubSealer{},
		notifier: &recordingNotifier{},
		done:     make(chan struct{}),
	}
	h.recorder.Start()

	d := live.NewDetector(live.DetectorConfig{
		TickInterval:     500 * time.Millisecond,
		IdleThreshold:    3 * time.Second,
		SilenceThreshold: 100,
		MinChunks:        minChunks,
	}, h.level, h.recorder, h.sealer, h.clock, nil, h.notifier.Countdown)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

// buffer appends n frames so the recorder's chunk count passes the gate.
func (h *detectorHarness) buffer(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := h.recorder.Append(loudFrame()); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
}

// tick delivers one detector tick 500 ms after the previous one and waits
// until it was processed (the fake ticker channel is unbuffered, so a
// follow-up send only returns once the previous tick finished).
func (h *detectorHarness) tick() {
	h.clock.Tick(500 * time.Millisecond)
}

// settle flushes the loop so every prior tick is fully processed before an
// assertion. The flush ticks read a loud level, which only disarms the
// timer and never surfaces a countdown or trigger.
func (h *detectorHarness) settle() {
	h.level.Observe(loudFrame())
	h.clock.Tick(0)
	h.clock.Tick(0)
}

func TestMinChunkGatePreventsSilenceTimer(t *testing.T) {
	h := newDetectorHarness(t, 3)
	h.level.Observe(quietFrame())
	h.buffer(t, 2) // below the gate

	// Hold silence far past the idle threshold.
	for i := 0; i < 10; i++ {
		h.tick()
	}
	h.settle()

	if got := h.sealer.Calls(); got != 0 {
		t.Errorf("TrySeal called %d times, want 0", got)
	}
	if got := h.notifier.Countdowns(); len(got) != 0 {
		t.Errorf("countdown surfaced %v, want none while gated", got)
	}
}

func TestCountdownAccuracy(t *testing.T) {
	h := newDetectorHarness(t, 3)
	h.level.Observe(quietFrame())
	h.buffer(t, 5)

	// Silence begins at the first tick; each later tick is 500 ms apart.
	for i := 0; i < 7; i++ {
		h.tick()
	}
	h.settle()

	want := []time.Duration{
		3000 * time.Millisecond,
		2500 * time.Millisecond,
		2000 * time.Millisecond,
		1500 * time.Millisecond,
		1000 * time.Millisecond,
		500 * time.Millisecond,
		0,
	}
	got := h.notifier.Countdowns()
	if len(got) != len(want) {
		t.Fatalf("countdowns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("countdown[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if h.sealer.Calls() != 1 {
		t.Errorf("TrySeal called %d times, want exactly 1 at the threshold", h.sealer.Calls())
	}
}

func TestVoiceResetsSilenceTimer(t *testing.T) {
	h := newDetectorHarness(t, 3)
	h.buffer(t, 5)

	h.level.Observe(quietFrame())
	for i := 0; i < 4; i++ { // 1.5 s of silence accumulated
		h.tick()
	}

	h.level.Observe(loudFrame())
	h.tick() // voice clears the timer

	h.level.Observe(quietFrame())
	for i := 0; i < 4; i++ { // silence restarts from zero
		h.tick()
	}
	h.settle()

	if h.sealer.Calls() != 0 {
		t.Fatalf("TrySeal called %d times, want 0 (timer should have reset)", h.sealer.Calls())
	}
	got := h.notifier.Countdowns()
	// Two independent silence runs, both starting from the full threshold.
	if len(got) != 8 || got[0] != 3*time.Second || got[4] != 3*time.Second {
		t.Errorf("countdowns = %v, want two runs starting at 3s", got)
	}
}

func TestSealRetryWhileInFlight(t *testing.T) {
	h := newDetectorHarness(t, 3)
	h.sealer.replies = []bool{false, false} // busy for two attempts
	h.level.Observe(quietFrame())
	h.buffer(t, 5)

	for i := 0; i < 7; i++ { // reach the threshold: first attempt, rejected
		h.tick()
	}
	h.tick() // second attempt, rejected
	h.tick() // third attempt, accepted
	h.settle()

	if got := h.sealer.Calls(); got != 3 {
		t.Fatalf("TrySeal called %d times, want 3 (two rejected retries)", got)
	}
}
