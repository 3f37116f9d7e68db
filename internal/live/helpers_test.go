package live_test

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/dictaflow/internal/live"
	"github.com/MrWong99/dictaflow/pkg/audio"
	"github.com/MrWong99/dictaflow/pkg/types"
)

// fakeClock is a manually driven live.Clock. Call Tick to deliver one
// detector tick; the tick channel is unbuffered, so a second Tick completes
// only after the detector finished processing the previous one.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	ticks chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ticks: make(chan time.Time),
	}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) NewTicker(time.Duration) live.Ticker {
	return fakeTicker{ch: f.ticks}
}

// After never fires; stop-sequence timeouts do not elapse in tests.
func (f *fakeClock) After(time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

// Tick advances the clock by d and delivers one tick.
func (f *fakeClock) Tick(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	f.mu.Unlock()
	f.ticks <- now
}

type fakeTicker struct {
	ch chan time.Time
}

func (t fakeTicker) C() <-chan time.Time { return t.ch }
func (t fakeTicker) Stop()               {}

// chanSource is a live.Source fed by the test.
type chanSource struct {
	ch   chan audio.Frame
	once sync.Once
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan audio.Frame)}
}

func (s *chanSource) Frames() <-chan audio.Frame { return s.ch }

func (s *chanSource) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

// Feed sends n copies of frame followed by two empty sync frames. The
// second empty send only completes once the pump fully processed the first,
// which in turn means every real frame was appended. The empties carry no
// audio, so byte counts stay exact.
func (s *chanSource) Feed(t *testing.T, frame audio.Frame, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		s.send(t, frame)
	}
	s.send(t, audio.Frame{})
	s.send(t, audio.Frame{})
}

func (s *chanSource) send(t *testing.T, frame audio.Frame) {
	t.Helper()
	select {
	case s.ch <- frame:
	case <-time.After(2 * time.Second):
		t.Fatal("capture pump stopped accepting frames")
	}
}

// loudFrame returns a 20 ms mono frame of a loud sine wave.
func loudFrame() audio.Frame {
	pcm := make([]int16, audio.OpusFrameSize)
	for i := range pcm {
		pcm[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(audio.OpusSampleRate)))
	}
	return audio.Frame{Data: audio.Int16sToBytes(pcm), SampleRate: audio.OpusSampleRate, Channels: audio.OpusChannels}
}

// quietFrame returns a 20 ms mono frame of digital silence.
func quietFrame() audio.Frame {
	return audio.Frame{
		Data:       make([]byte, audio.OpusFrameSize*2),
		SampleRate: audio.OpusSampleRate,
		Channels:   audio.OpusChannels,
	}
}

// recordingNotifier captures every pipeline event.
type recordingNotifier struct {
	mu         sync.Mutex
	countdowns []time.Duration
	cleared    int
	statuses   []string
	segments   []types.Segment
	errors     []error
	draining   []int
	settled    int
}

var _ live.Notifier = (*recordingNotifier)(nil)

func (n *recordingNotifier) Countdown(remaining time.Duration, running bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if running {
		n.countdowns = append(n.countdowns, remaining)
	} else {
		n.cleared++
	}
}

func (n *recordingNotifier) Status(status string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, status)
}

func (n *recordingNotifier) Segment(seg types.Segment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.segments = append(n.segments, seg)
}

func (n *recordingNotifier) SessionError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, err)
}

func (n *recordingNotifier) Draining(depth int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.draining = append(n.draining, depth)
}

func (n *recordingNotifier) Settled() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settled++
}

func (n *recordingNotifier) Countdowns() []time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]time.Duration(nil), n.countdowns...)
}

func (n *recordingNotifier) Errors() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]error(nil), n.errors...)
}

func (n *recordingNotifier) SettledCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.settled
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// testConfig returns a pipeline config with the detector effectively
// disabled (huge chunk gate) so tests drive seals explicitly.
func testConfig() live.Config {
	cfg := live.DefaultConfig()
	cfg.MinChunks = 1 << 20
	cfg.MinBlobBytes = 1
	cfg.SealWait = 100 * time.Millisecond
	return cfg
}

// sealAndWait triggers a seal and waits until it completed.
func sealAndWait(t *testing.T, s *live.Session) {
	t.Helper()
	waitFor(t, "seal accepted", s.TrySeal)
	waitFor(t, "seal completion", func() bool { return !s.SealInFlight() })
}
