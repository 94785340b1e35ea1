package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FlushFunc delivers one flush request to the ledger. It is expected to be
// the HTTP or store call behind the player.
type FlushFunc func(ctx context.Context, req FlushRequest) error

// DefaultFlushInterval is how often the flusher retries undelivered state.
const DefaultFlushInterval = 30 * time.Second

// Flusher delivers flush requests asynchronously. A failed delivery is not
// retried immediately; the pending request is merged with whatever arrives
// next and retried on the next cadence, so a flaky network costs at most one
// interval of staleness rather than a retry storm.
type Flusher struct {
	deliver  FlushFunc
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	pending *FlushRequest

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFlusher(deliver FlushFunc, interval time.Duration, log *zap.Logger) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &Flusher{
		deliver:  deliver,
		interval: interval,
		log:      log,
		wake:     make(chan struct{}, 1),
		cancel:   cancel,
	}
	f.wg.Add(1)
	go f.run(ctx)
	return f
}

// Enqueue accepts a flush request without blocking. If a previous request is
// still pending the two are merged: watch deltas add, position and client
// timestamp take the newest value.
func (f *Flusher) Enqueue(req FlushRequest) {
	f.mu.Lock()
	if f.pending != nil && f.pending.Ref == req.Ref {
		req.DeltaWatchSeconds += f.pending.DeltaWatchSeconds
		if req.ClientTsMs < f.pending.ClientTsMs {
			req.ClientTsMs = f.pending.ClientTsMs
			req.PositionSeconds = f.pending.PositionSeconds
		}
		req.Final = req.Final || f.pending.Final
	}
	f.pending = &req
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Flusher) run(ctx context.Context) {
	defer f.wg.Done()
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.wake:
			f.attempt(ctx)
		case <-ticker.C:
			f.attempt(ctx)
		}
	}
}

func (f *Flusher) attempt(ctx context.Context) {
	f.mu.Lock()
	req := f.pending
	f.pending = nil
	f.mu.Unlock()
	if req == nil {
		return
	}

	if err := f.deliver(ctx, *req); err != nil {
		f.log.Warn("progress flush failed, holding for next cadence",
			zap.String("course_id", req.Ref.CourseID),
			zap.String("lesson_id", req.Ref.LessonID),
			zap.Error(err))
		// Put it back; a newer request arriving meanwhile absorbs it.
		f.requeue(*req)
	}
}

// requeue puts a failed request back without waking the loop, avoiding a
// tight retry cycle.
func (f *Flusher) requeue(req FlushRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != nil && f.pending.Ref == req.Ref {
		f.pending.DeltaWatchSeconds += req.DeltaWatchSeconds
		if req.ClientTsMs > f.pending.ClientTsMs {
			f.pending.ClientTsMs = req.ClientTsMs
			f.pending.PositionSeconds = req.PositionSeconds
		}
		f.pending.Final = f.pending.Final || req.Final
		return
	}
	f.pending = &req
}

// Close stops the loop and makes one last best-effort delivery of anything
// still pending, bounded by timeout.
func (f *Flusher) Close(timeout time.Duration) {
	f.cancel()
	f.wg.Wait()

	f.mu.Lock()
	req := f.pending
	f.pending = nil
	f.mu.Unlock()
	if req == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := f.deliver(ctx, *req); err != nil {
		f.log.Warn("final progress flush lost",
			zap.String("course_id", req.Ref.CourseID),
			zap.String("lesson_id", req.Ref.LessonID),
			zap.Error(err))
	}
}
