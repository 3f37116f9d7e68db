package live

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// QueueItem is one sealed segment waiting for transcription. Items are
// created at seal time, consumed exactly once by the worker, and discarded.
type QueueItem struct {
	// SegmentID is assigned when the item is queued and becomes the
	// transcript segment's id. Ids are never reused.
	SegmentID int

	// Blob is the sealed raw PCM audio.
	Blob []byte

	// Start is the session-relative offset at which the blob's audio began.
	Start time.Duration

	// AudioFile is the store path of the persisted blob, or empty when the
	// save failed or no store is attached.
	AudioFile string
}

// Queue is an unbounded FIFO of sealed segments drained by a single
// background worker. The worker processes items strictly in arrival order
// and yields the scheduler before and after each item so the detector loop
// keeps getting time under sustained backlog. Handler errors are absorbed
// per item: a failed segment never stalls the rest of the queue.
//
// The worker starts lazily on Enqueue and exits when the queue runs empty;
// the next Enqueue restarts it.
type Queue struct {
	handler func(ctx context.Context, item QueueItem) error
	onError func(err error)
	logger  *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	items    []QueueItem
	running  bool
	inFlight bool
}

// NewQueue creates a queue draining into handler. onError receives handler
// failures and may be nil; logger may be nil.
func NewQueue(handler func(ctx context.Context, item QueueItem) error, onError func(error), logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{handler: handler, onError: onError, logger: logger}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends an item and starts the worker if it is not running. The
// worker uses ctx for handler calls; pass a context that outlives the
// session's stop sequence so queued transcriptions run to completion.
func (q *Queue) Enqueue(ctx context.Context, item QueueItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	start := !q.running
	if start {
		q.running = true
	}
	q.mu.Unlock()
	if start {
		go q.work(ctx)
	}
}

func (q *Queue) work(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.running = false
			q.cond.Broadcast()
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.inFlight = true
		q.mu.Unlock()

		// Yield before and after each item so the producer side gets
		// scheduler time even under sustained backlog.
		runtime.Gosched()
		if err := q.handler(ctx, item); err != nil {
			q.logger.Error("segment processing failed", "segment", item.SegmentID, "error", err)
			if q.onError != nil {
				q.onError(err)
			}
		}
		runtime.Gosched()

		q.mu.Lock()
		q.inFlight = false
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// Depth returns the number of items waiting (not counting one in flight).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Settled reports whether the queue is empty with no item in flight and the
// worker stopped. Once true it stays true until the next Enqueue.
func (q *Queue) Settled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.settledLocked()
}

func (q *Queue) settledLocked() bool {
	return len(q.items) == 0 && !q.inFlight && !q.running
}

// WaitIdle blocks until the queue settles or ctx is cancelled.
func (q *Queue) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.settledLocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}
