package live

import (
	"sync"

	"github.com/MrWong99/dictaflow/pkg/audio"
)

// LevelMonitor tracks the loudness of the most recent audio frame.
//
// The capture pump calls Observe for every frame; the detector calls Sample
// once per tick. Sample is a cheap in-memory read and never blocks on the
// audio path.
type LevelMonitor struct {
	mu    sync.Mutex
	level float64
}

// NewLevelMonitor creates a monitor with an initial level of zero.
func NewLevelMonitor() *LevelMonitor {
	return &LevelMonitor{}
}

// Observe records the RMS energy of the given frame as the current level.
// Empty frames are ignored so a stalled stream holds the last reading.
func (m *LevelMonitor) Observe(frame audio.Frame) {
	if len(frame.Data) == 0 {
		return
	}
	level := audio.RMS(frame.Data)
	m.mu.Lock()
	m.level = level
	m.mu.Unlock()
}

// Sample returns the most recently observed level.
func (m *LevelMonitor) Sample() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}
