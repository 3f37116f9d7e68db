// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber to script per-call results, inject per-call latency (to
// simulate slow backends while verifying FIFO ordering), and inspect which
// audio segments were submitted.
//
// Example:
//
//	tr := &mock.Transcriber{
//	    Results: []stt.Result{{Text: "hello"}, {Text: "world"}},
//	}
//	res, _ := tr.Transcribe(ctx, req)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/dictaflow/pkg/provider/stt"
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Call records a single invocation of Transcriber.Transcribe.
type Call struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe.
	Req stt.Request
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Results are returned in order, one per call. When exhausted (or empty),
	// calls return Default.
	Results []stt.Result

	// Errs mirror Results: a non-nil entry at index i makes call i fail with
	// that error instead of returning Results[i].
	Errs []error

	// Default is returned once Results is exhausted.
	Default stt.Result

	// Latency, when non-zero, delays every call before returning (still
	// respecting ctx cancellation).
	Latency time.Duration

	// LatencyFn, when non-nil, computes a per-call delay from the call index.
	// Takes precedence over Latency. Useful for simulating variable-latency
	// backends in ordering tests.
	LatencyFn func(call int) time.Duration

	// Calls records every invocation.
	Calls []Call

	calls int
}

// Transcribe records the call, applies scripted latency, and returns the next
// scripted result or error.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	t.mu.Lock()
	idx := t.calls
	t.calls++
	t.Calls = append(t.Calls, Call{Ctx: ctx, Req: req})

	delay := t.Latency
	if t.LatencyFn != nil {
		delay = t.LatencyFn(idx)
	}

	var (
		res stt.Result
		err error
	)
	if idx < len(t.Errs) && t.Errs[idx] != nil {
		err = t.Errs[idx]
	} else if idx < len(t.Results) {
		res = t.Results[idx]
	} else {
		res = t.Default
	}
	t.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}
	return res, err
}

// CallCount returns the number of recorded calls. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
	t.calls = 0
}
