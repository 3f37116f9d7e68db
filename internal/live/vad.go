package live

import (
	"context"
	"log/slog"
	"time"
)

// Sealer is asked by the detector to seal the current segment. TrySeal must
// return immediately: when a seal is already in flight (or the session is no
// longer accepting triggers) it returns false and the detector retries on a
// later tick; otherwise it starts the seal in the background and returns
// true.
type Sealer interface {
	TrySeal() bool
}

// DetectorConfig holds the tunables of the silence detector.
type DetectorConfig struct {
	// TickInterval is the polling cadence.
	TickInterval time.Duration

	// IdleThreshold is how long continuous silence must last before a
	// segment boundary is triggered.
	IdleThreshold time.Duration

	// SilenceThreshold is the RMS level below which a tick counts as silent.
	SilenceThreshold float64

	// MinChunks is the number of frames that must accumulate after a seal
	// before silence is considered at all. Right after a recorder restart
	// the stream briefly reads quiet because nothing has accumulated yet;
	// without this gate that gap would start the silence timer spuriously.
	MinChunks int
}

// Detector is the segmentation scheduler: a cooperative polling loop that
// samples the level monitor once per tick, tracks how long the level has
// stayed below the silence threshold, and asks the sealer for a segment
// boundary once the idle threshold is exceeded.
//
// The detector never blocks on I/O. Sealing is fire-and-forget through
// [Sealer.TrySeal] so slow downstream work (encoding, disk writes) cannot
// stall the sampling cadence.
type Detector struct {
	cfg      DetectorConfig
	level    *LevelMonitor
	recorder *SegmentRecorder
	sealer   Sealer
	clock    Clock
	logger   *slog.Logger

	// countdown, when set, surfaces the remaining time until trigger.
	// running is false when the silence timer is not armed.
	countdown func(remaining time.Duration, running bool)

	// loop-local state, only touched from Run's goroutine
	silenceStart time.Time
	silenceSet   bool
	surfaced     bool
}

// NewDetector creates a detector. countdown may be nil.
func NewDetector(cfg DetectorConfig, level *LevelMonitor, recorder *SegmentRecorder, sealer Sealer, clock Clock, logger *slog.Logger, countdown func(time.Duration, bool)) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		cfg:       cfg,
		level:     level,
		recorder:  recorder,
		sealer:    sealer,
		clock:     clock,
		logger:    logger,
		countdown: countdown,
	}
}

// Run polls until ctx is cancelled. Cancellation takes effect before the
// next tick, so no trigger can fire after Run returns.
func (d *Detector) Run(ctx context.Context) {
	ticker := d.clock.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			d.tick()
		}
	}
}

func (d *Detector) tick() {
	loudness := d.level.Sample()

	// Voice detected: disarm the timer.
	if loudness >= d.cfg.SilenceThreshold {
		d.clearTimer()
		return
	}

	// Candidate silence, but not enough audio accumulated since the last
	// seal to trust the reading.
	if d.recorder.BufferedChunks() < d.cfg.MinChunks {
		d.clearTimer()
		return
	}

	now := d.clock.Now()
	if !d.silenceSet {
		d.silenceStart = now
		d.silenceSet = true
	}

	elapsed := now.Sub(d.silenceStart)
	remaining := d.cfg.IdleThreshold - elapsed
	if remaining < 0 {
		remaining = 0
	}
	d.surface(remaining, true)

	if elapsed >= d.cfg.IdleThreshold {
		// Fire-and-forget: TrySeal returns false while a previous seal is
		// still in flight, in which case the timer stays armed and the
		// trigger is retried next tick.
		if d.sealer.TrySeal() {
			d.logger.Debug("silence trigger", "elapsed", elapsed)
			d.clearTimer()
		}
	}
}

func (d *Detector) clearTimer() {
	d.silenceSet = false
	if d.surfaced {
		d.surface(0, false)
	}
}

func (d *Detector) surface(remaining time.Duration, running bool) {
	d.surfaced = running
	if d.countdown != nil {
		d.countdown(remaining, running)
	}
}
