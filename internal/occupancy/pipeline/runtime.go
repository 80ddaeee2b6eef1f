package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/banshee-data/occupancy.report/internal/occupancy/detect"
)

// DefaultQueueSize is the runtime's input buffer in frames. At 10 fps this
// is a few seconds of slack before the producer blocks.
const DefaultQueueSize = 64

// ErrClosed is returned by Submit and SubmitGap after Close.
var ErrClosed = errors.New("pipeline: input closed")

// item is one unit of runtime input: a frame, or a gap announcement.
type item struct {
	frame detect.Frame
	gap   bool
}

// Runtime drives an Engine from a concurrent producer over a bounded queue.
// The producer blocks when the consumer falls behind; frames are never
// silently dropped.
type Runtime struct {
	engine *Engine
	in     chan item

	// closeMu serialises channel sends against Close: senders hold the
	// read side for the duration of the send so the channel can never be
	// closed underneath them.
	closeMu sync.RWMutex
	closed  bool

	errMu  sync.Mutex
	runErr error

	done chan struct{}
}

// NewRuntime wraps an engine with a bounded input queue. queueSize <= 0
// means DefaultQueueSize.
func NewRuntime(e *Engine, queueSize int) *Runtime {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Runtime{
		engine: e,
		in:     make(chan item, queueSize),
		done:   make(chan struct{}),
	}
}

// Submit enqueues one frame, blocking while the queue is full. Returns
// ErrClosed after Close, the context's error on cancellation, or the
// consumer's error once Run has failed.
func (r *Runtime) Submit(ctx context.Context, frame detect.Frame) error {
	return r.send(ctx, item{frame: frame})
}

// SubmitGap enqueues a gap announcement: frames through throughIndex were
// skipped, and the stream resumes at ts.
func (r *Runtime) SubmitGap(ctx context.Context, throughIndex int64, ts float64) error {
	return r.send(ctx, item{frame: detect.Frame{Index: throughIndex, Timestamp: ts}, gap: true})
}

func (r *Runtime) send(ctx context.Context, it item) error {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()

	if r.closed {
		return r.err()
	}
	select {
	case <-r.done:
		return r.err()
	default:
	}
	select {
	case r.in <- it:
		return nil
	case <-r.done:
		return r.err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals end of input. Run finalizes the engine and returns once the
// queue drains. Close is idempotent, and safe against concurrent Submit
// calls (it waits for in-flight sends to complete).
func (r *Runtime) Close() {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.in)
	}
}

// Run consumes the queue until Close or ctx cancellation, finalizing the
// engine on the way out. The first engine or sink error stops the run.
func (r *Runtime) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.engine.Finalize()

	for {
		select {
		case it, ok := <-r.in:
			if !ok {
				return nil
			}
			var err error
			if it.gap {
				err = r.engine.MarkGap(it.frame.Index, it.frame.Timestamp)
			} else {
				_, err = r.engine.ProcessFrame(it.frame)
			}
			if err != nil {
				r.setErr(err)
				return err
			}
		case <-ctx.Done():
			r.setErr(ctx.Err())
			return ctx.Err()
		}
	}
}

func (r *Runtime) setErr(err error) {
	r.errMu.Lock()
	r.runErr = err
	r.errMu.Unlock()
}

func (r *Runtime) err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.runErr != nil {
		return r.runErr
	}
	return ErrClosed
}
