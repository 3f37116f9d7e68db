// Package live implements the dictation pipeline: level monitoring, silence
// detection, segment sealing, and background transcription.
//
// The moving parts are deliberately few. A capture pump feeds frames from a
// [Source] into the [LevelMonitor] and the [SegmentRecorder]. The [Detector]
// polls the monitor and asks the session to seal a segment when silence has
// lasted long enough. Sealed blobs flow through the [Queue] to the
// transcription worker, which appends finished segments to the session's
// list and to the project store. The [Controller] owns session lifecycle:
// start, resume, and the ordered stop sequence that guarantees no sealed
// segment is lost and no "settled" signal fires while transcriptions are
// still outstanding.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/dictaflow/internal/observe"
	"github.com/MrWong99/dictaflow/internal/store"
	"github.com/MrWong99/dictaflow/pkg/audio"
	"github.com/MrWong99/dictaflow/pkg/provider/stt"
	"github.com/MrWong99/dictaflow/pkg/types"
)

// Pipeline errors.
var (
	// ErrSessionActive is returned by Start while a session is running.
	ErrSessionActive = errors.New("live: session already active")

	// ErrSessionNotActive is returned by Stop when nothing is running.
	ErrSessionNotActive = errors.New("live: session not active")

	// ErrSegmentNotFound is returned when an edit names an unknown segment.
	ErrSegmentNotFound = errors.New("live: segment not found")
)

// Source provides captured audio frames. The gateway implements it on top
// of the websocket's Opus stream; tests implement it with a plain channel.
// Close releases the underlying capture; the Frames channel must close soon
// after.
type Source interface {
	Frames() <-chan audio.Frame
	Close() error
}

// Notifier receives pipeline events for the UI boundary. Methods are called
// from pipeline goroutines and must return quickly.
type Notifier interface {
	// Countdown surfaces the remaining silence time until the next trigger.
	// running is false when the silence timer is disarmed.
	Countdown(remaining time.Duration, running bool)

	// Status reports a session state change ("recording", "draining",
	// "settled").
	Status(status string)

	// Segment delivers a finished transcript segment.
	Segment(seg types.Segment)

	// SessionError surfaces a non-fatal pipeline error, such as a failed
	// transcription.
	SessionError(err error)

	// Draining reports the queue depth at the moment stop began draining.
	Draining(depth int)

	// Settled fires once per session, after the queue has drained and the
	// final manifest write finished.
	Settled()
}

// NopNotifier is a Notifier that ignores every event.
type NopNotifier struct{}

var _ Notifier = NopNotifier{}

func (NopNotifier) Countdown(time.Duration, bool) {}
func (NopNotifier) Status(string)                 {}
func (NopNotifier) Segment(types.Segment)         {}
func (NopNotifier) SessionError(error)            {}
func (NopNotifier) Draining(int)                  {}
func (NopNotifier) Settled()                      {}

// Config holds the per-session pipeline tunables.
type Config struct {
	// IdleThreshold is the continuous silence needed to close a segment.
	IdleThreshold time.Duration

	// SilenceThreshold is the RMS level below which audio counts as silent.
	SilenceThreshold float64

	// MinChunks gates the silence timer until this many frames accumulated
	// after a seal.
	MinChunks int

	// MinBlobBytes is the size under which a sealed blob is discarded as
	// noise instead of queued.
	MinBlobBytes int

	// TickInterval is the detector polling cadence.
	TickInterval time.Duration

	// SealWait bounds how long Stop waits for an in-flight seal before
	// proceeding regardless.
	SealWait time.Duration

	// Language is the hint passed to the transcriber.
	Language string
}

// DefaultConfig returns the tuning used when nothing is configured. The
// chunk and byte minimums are empirical small-positive thresholds against
// spurious triggers, not derived values.
func DefaultConfig() Config {
	return Config{
		IdleThreshold:    3000 * time.Millisecond,
		SilenceThreshold: 500,
		MinChunks:        15,
		MinBlobBytes:     1024,
		TickInterval:     33 * time.Millisecond,
		SealWait:         5 * time.Second,
		Language:         "en",
	}
}

// Controller creates and owns dictation sessions, one at a time.
type Controller struct {
	cfg         Config
	transcriber stt.Transcriber
	store       store.ProjectStore // nil tolerated: in-memory only
	correct     func(string) string
	notifier    Notifier
	clock       Clock
	logger      *slog.Logger
	metrics     *observe.Metrics

	mu      sync.Mutex
	session *Session
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithStore attaches a project store. Without one the session is in-memory
// only and no audio is persisted.
func WithStore(s store.ProjectStore) ControllerOption {
	return func(c *Controller) { c.store = s }
}

// WithNotifier attaches the UI boundary.
func WithNotifier(n Notifier) ControllerOption {
	return func(c *Controller) { c.notifier = n }
}

// WithClock overrides the clock, for deterministic tests.
func WithClock(clk Clock) ControllerOption {
	return func(c *Controller) { c.clock = clk }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithCorrector applies a text correction pass to every transcription
// before the uncertainty heuristic runs.
func WithCorrector(correct func(string) string) ControllerOption {
	return func(c *Controller) { c.correct = correct }
}

// WithMetrics attaches metric instruments.
func WithMetrics(m *observe.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a controller with the given pipeline config.
func NewController(cfg Config, transcriber stt.Transcriber, opts ...ControllerOption) *Controller {
	c := &Controller{
		cfg:         cfg,
		transcriber: transcriber,
		notifier:    NopNotifier{},
		clock:       SystemClock(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins a session on the given project, reading audio from source.
// When the project already has stored segments the session resumes: the
// existing list is preserved and the id counter continues past its maximum.
// Returns ErrSessionActive while another session is running.
func (c *Controller) Start(ctx context.Context, projectID string, source Source) (*Session, error) {
	if source == nil {
		return nil, fmt.Errorf("live: source must not be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.Active() {
		return nil, ErrSessionActive
	}

	var prior []types.Segment
	if c.store != nil {
		segs, err := c.store.LoadSegments(ctx, projectID)
		switch {
		case err == nil:
			prior = segs
		case errors.Is(err, store.ErrNotFound):
			// fresh project
		default:
			return nil, fmt.Errorf("live: loading project %q: %w", projectID, err)
		}
	}

	s := newSession(c, projectID, source, prior)
	s.start(ctx)
	c.session = s
	c.metrics.AddActiveSessions(ctx, 1)
	c.logger.Info("session started", "project", projectID, "resumed_segments", len(prior))
	return s, nil
}

// SetConfig replaces the pipeline tuning. The running session keeps its
// config; the change applies to sessions started afterwards.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// Session returns the current session, or nil if none was started.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Stop stops the current session. See [Session.Stop].
func (c *Controller) Stop(ctx context.Context) error {
	s := c.Session()
	if s == nil {
		return ErrSessionNotActive
	}
	return s.Stop(ctx)
}

// Session is one recording session: the pipeline state between a Start and
// the settled signal after Stop. The segment list has a single mutation
// path — the queue worker appends, user edits update in place — so the
// detector and recorder never touch it.
type Session struct {
	projectID   string
	cfg         Config
	transcriber stt.Transcriber
	store       store.ProjectStore
	correct     func(string) string
	notifier    Notifier
	clock       Clock
	logger      *slog.Logger
	metrics     *observe.Metrics

	level    *LevelMonitor
	recorder *SegmentRecorder
	queue    *Queue
	detector *Detector
	source   Source

	detectorCancel context.CancelFunc
	detectorDone   chan struct{}
	pumpDone       chan struct{}
	workerCtx      context.Context

	mu       sync.Mutex
	segments []types.Segment
	nextID   int
	active   bool
	draining bool
	settled  bool
	sealing  bool
	sealDone chan struct{}
}

var _ Sealer = (*Session)(nil)

func newSession(c *Controller, projectID string, source Source, prior []types.Segment) *Session {
	s := &Session{
		projectID:   projectID,
		cfg:         c.cfg,
		transcriber: c.transcriber,
		store:       c.store,
		correct:     c.correct,
		notifier:    c.notifier,
		clock:       c.clock,
		logger:      c.logger.With("project", projectID),
		metrics:     c.metrics,
		source:      source,
		segments:    append([]types.Segment(nil), prior...),
	}
	for _, seg := range prior {
		if seg.ID >= s.nextID {
			s.nextID = seg.ID + 1
		}
	}
	s.level = NewLevelMonitor()
	s.recorder = NewSegmentRecorder(audio.OpusSampleRate, audio.OpusChannels)
	s.queue = NewQueue(s.process, s.notifier.SessionError, s.logger)
	s.detector = NewDetector(DetectorConfig{
		TickInterval:     s.cfg.TickInterval,
		IdleThreshold:    s.cfg.IdleThreshold,
		SilenceThreshold: s.cfg.SilenceThreshold,
		MinChunks:        s.cfg.MinChunks,
	}, s.level, s.recorder, s, s.clock, s.logger, s.notifier.Countdown)
	return s
}

func (s *Session) start(ctx context.Context) {
	s.recorder.Start()
	s.active = true

	// Transcriptions queued before stop run to completion even after the
	// caller's context ends.
	s.workerCtx = context.WithoutCancel(ctx)

	detectorCtx, cancel := context.WithCancel(context.Background())
	s.detectorCancel = cancel
	s.detectorDone = make(chan struct{})
	go func() {
		defer close(s.detectorDone)
		s.detector.Run(detectorCtx)
	}()

	s.pumpDone = make(chan struct{})
	go s.pump()

	s.notifier.Status("recording")
}

// pump moves frames from the source into the level monitor and recorder.
func (s *Session) pump() {
	defer close(s.pumpDone)
	for frame := range s.source.Frames() {
		s.level.Observe(frame)
		if err := s.recorder.Append(frame); err != nil {
			// Frames arriving after the final seal are dropped on purpose.
			if !errors.Is(err, ErrNoActiveRecording) {
				s.logger.Warn("dropping frame", "error", err)
			}
		}
	}
}

// ProjectID returns the project this session records into.
func (s *Session) ProjectID() string { return s.projectID }

// Active reports whether the session accepts new audio and triggers.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Draining reports whether stop was requested but the queue has not yet
// emptied.
func (s *Session) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}

// Settled reports whether the session has fully stopped: queue drained,
// worker idle, final manifest written. Stays true once reached.
func (s *Session) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled && s.queue.Settled()
}

// SealInFlight reports whether a seal is currently running.
func (s *Session) SealInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealing
}

// QueueDepth returns the number of sealed segments waiting for
// transcription, not counting one in flight.
func (s *Session) QueueDepth() int {
	return s.queue.Depth()
}

// Segments returns a copy of the transcript so far, in speech order.
func (s *Session) Segments() []types.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Segment(nil), s.segments...)
}

// TrySeal implements [Sealer]. It starts a background seal unless one is
// already in flight or the session stopped accepting triggers.
func (s *Session) TrySeal() bool {
	s.mu.Lock()
	if !s.active || s.sealing {
		s.mu.Unlock()
		return false
	}
	s.sealing = true
	done := make(chan struct{})
	s.sealDone = done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.sealing = false
			s.mu.Unlock()
			close(done)
		}()
		s.sealAndEnqueue()
	}()
	return true
}

// sealAndEnqueue seals the recorder's buffer and routes the blob through the
// discard-or-enqueue policy. The segment id is consumed only when the blob
// is actually queued, so discarded blobs leave no gap in the transcript.
func (s *Session) sealAndEnqueue() {
	blob, start, err := s.recorder.Seal()
	if err != nil {
		// Ordering bug: seal without an active recording. Loud on purpose.
		s.logger.Error("seal failed", "error", err)
		s.notifier.SessionError(err)
		return
	}
	if len(blob) < s.cfg.MinBlobBytes {
		s.logger.Debug("discarding sealed blob", "bytes", len(blob))
		s.metrics.RecordSealed(s.workerCtx, "discarded")
		return
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	path := ""
	if s.store != nil {
		wav := audio.EncodeWAV(blob, s.recorder.SampleRate(), s.recorder.Channels())
		path, err = s.store.SaveAudioBlob(s.workerCtx, s.projectID, id, wav)
		if err != nil {
			s.logger.Warn("saving segment audio failed", "segment", id, "error", err)
			path = ""
		}
	}

	s.queue.Enqueue(s.workerCtx, QueueItem{
		SegmentID: id,
		Blob:      blob,
		Start:     start,
		AudioFile: path,
	})
	s.metrics.RecordSealed(s.workerCtx, "queued")
	s.metrics.AddQueueDepth(s.workerCtx, 1)
	s.logger.Debug("segment queued", "segment", id, "bytes", len(blob), "start", start)
}

// process is the queue handler: transcribe one sealed segment and append the
// result. Errors bubble to the queue, which absorbs them per item.
func (s *Session) process(ctx context.Context, item QueueItem) error {
	defer s.metrics.AddQueueDepth(ctx, -1)

	began := time.Now()
	res, err := s.transcriber.Transcribe(ctx, stt.Request{
		Audio:      item.Blob,
		SampleRate: s.recorder.SampleRate(),
		Channels:   s.recorder.Channels(),
		Language:   s.cfg.Language,
	})
	if err != nil {
		s.metrics.RecordTranscribed(ctx, "error", time.Since(began).Seconds())
		return fmt.Errorf("live: transcribing segment %d: %w", item.SegmentID, err)
	}

	text := res.Text
	if s.correct != nil {
		text = s.correct(text)
	}
	text = strings.TrimSpace(text)

	// Near-empty recognitions are silence or noise that slipped past the
	// byte-size filter; drop them without a transcript entry.
	if utf8.RuneCountInString(StripAnnotations(text)) < 2 {
		s.logger.Debug("discarding near-empty transcription", "segment", item.SegmentID)
		s.metrics.RecordTranscribed(ctx, "discarded", time.Since(began).Seconds())
		return nil
	}

	seg := types.Segment{
		ID:        item.SegmentID,
		Text:      text,
		Start:     item.Start,
		End:       item.Start + res.Duration,
		AudioFile: item.AudioFile,
		Uncertain: IsUncertain(text, res.Duration),
	}

	s.mu.Lock()
	s.segments = append(s.segments, seg)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.AppendSegments(ctx, s.projectID, []types.Segment{seg}); err != nil {
			// Non-fatal: the in-memory transcript stays authoritative.
			s.logger.Warn("persisting segment failed", "segment", seg.ID, "error", err)
		}
	}

	outcome := "kept"
	if seg.Uncertain {
		outcome = "uncertain"
	}
	s.metrics.RecordTranscribed(ctx, outcome, time.Since(began).Seconds())
	s.notifier.Segment(seg)
	return nil
}

// Stop shuts the session down in the order that guarantees no segment loss:
// stop intake first, then flush, then drain, then the final write.
//
//  1. Cancel the detector so no further trigger can fire.
//  2. Wait (bounded by SealWait) for an in-flight seal to finish.
//  3. Force one final seal to flush trailing speech, through the normal
//     discard-or-enqueue path.
//  4. Release the audio source.
//  5. Report draining and wait until the queue settles.
//  6. Write the consolidated manifest and signal settled.
//
// Queued transcriptions are never cancelled; Stop only waits for them. The
// bounded wait in step 2 trades a tiny data-loss window for guaranteed
// responsiveness when a seal hangs.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return ErrSessionNotActive
	}
	s.active = false
	s.draining = true
	sealing := s.sealing
	sealDone := s.sealDone
	s.mu.Unlock()

	s.detectorCancel()
	<-s.detectorDone

	if sealing {
		select {
		case <-sealDone:
		case <-s.clock.After(s.cfg.SealWait):
			s.logger.Warn("in-flight seal did not finish in time, proceeding")
		}
	}

	s.sealAndEnqueue()
	s.recorder.Stop()

	if err := s.source.Close(); err != nil {
		s.logger.Warn("closing audio source", "error", err)
	}
	<-s.pumpDone

	s.notifier.Status("draining")
	s.notifier.Draining(s.queue.Depth())
	if err := s.queue.WaitIdle(ctx); err != nil {
		return fmt.Errorf("live: waiting for queue drain: %w", err)
	}

	segs := s.Segments()
	if s.store != nil {
		if err := s.store.WriteManifest(ctx, s.projectID, segs); err != nil {
			s.logger.Warn("final manifest write failed", "error", err)
			s.notifier.SessionError(err)
		}
	}

	s.mu.Lock()
	s.draining = false
	s.settled = true
	s.mu.Unlock()

	s.metrics.AddActiveSessions(ctx, -1)
	s.notifier.Status("settled")
	s.notifier.Settled()
	s.logger.Info("session settled", "segments", len(segs))
	return nil
}

// EditSegment replaces the text of one segment by id and rewrites the
// project manifest. This is the only mutation path besides the worker's
// append.
func (s *Session) EditSegment(ctx context.Context, id int, text string) error {
	s.mu.Lock()
	found := false
	for i := range s.segments {
		if s.segments[i].ID == id {
			s.segments[i].Text = text
			found = true
			break
		}
	}
	segs := append([]types.Segment(nil), s.segments...)
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("live: editing segment %d: %w", id, ErrSegmentNotFound)
	}
	if s.store != nil {
		if err := s.store.WriteManifest(ctx, s.projectID, segs); err != nil {
			return fmt.Errorf("live: persisting edit of segment %d: %w", id, err)
		}
	}
	return nil
}
