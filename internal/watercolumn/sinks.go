package watercolumn

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/watercolumn/internal/adcp"
)

// PortSink writes the record line to an output port, usually the output
// serial port that feeds downstream loggers.
type PortSink struct {
	Port adcp.Commander
}

func (s PortSink) Emit(_ context.Context, snap *Snapshot) error {
	return s.Port.SendCommand(snap.Record)
}

// NewOnly wraps a sink so it only sees each snapshot once, skipping the
// repeats emitted when no ensemble arrived between ticks.
func NewOnly(s Sink) Sink {
	return &newOnlySink{next: s}
}

type newOnlySink struct {
	next Sink

	mu   sync.Mutex
	last uint64
}

func (s *newOnlySink) Emit(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	if snap.Seq == s.last {
		s.mu.Unlock()
		return nil
	}
	s.last = snap.Seq
	s.mu.Unlock()
	return s.next.Emit(ctx, snap)
}

// DefaultAsyncDepth is the queue depth used by Async when none is given.
const DefaultAsyncDepth = 16

// AsyncSink runs a sink on its own goroutine behind a bounded queue so that
// a slow network or disk sink cannot hold up the output tick. Snapshots that
// arrive while the queue is full are dropped.
type AsyncSink struct {
	next  Sink
	queue chan *Snapshot

	cancel  context.CancelFunc
	done    chan struct{}
	dropped atomic.Uint64
}

// Async starts the worker for s. Close must be called to stop it.
func Async(s Sink, depth int) *AsyncSink {
	if depth <= 0 {
		depth = DefaultAsyncDepth
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &AsyncSink{
		next:   s,
		queue:  make(chan *Snapshot, depth),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go a.run(ctx)
	return a
}

// Emit queues snap and returns immediately.
func (a *AsyncSink) Emit(_ context.Context, snap *Snapshot) error {
	select {
	case a.queue <- snap:
	default:
		n := a.dropped.Add(1)
		logf("sink %T busy, dropped ensemble %d (%d dropped)", a.next, snap.EnsembleNumber, n)
	}
	return nil
}

// Dropped returns how many snapshots were discarded because the queue was
// full.
func (a *AsyncSink) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops the worker, abandoning anything still queued, and waits for
// an in-flight Emit to return.
func (a *AsyncSink) Close() {
	a.cancel()
	<-a.done
}

func (a *AsyncSink) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-a.queue:
			if err := a.next.Emit(ctx, snap); err != nil {
				logf("sink %T failed for ensemble %d: %v", a.next, snap.EnsembleNumber, err)
			}
		}
	}
}
