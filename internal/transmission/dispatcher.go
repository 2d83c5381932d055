package transmission

import (
	"sync"
	"time"

	"github.com/productboard/libhoney-go/internal/metrics"
	"github.com/productboard/libhoney-go/pkg/errors"
	"github.com/productboard/libhoney-go/pkg/types"

	"github.com/sirupsen/logrus"
)

// dispatcher owns the pending queue and decides when to cut batches.
//
// All mutable state (queue, timer, in-flight count, flush waiters) is
// guarded by a single mutex; producers enter briefly on intake, workers
// enter briefly on completion. Up to maxConcurrent worker goroutines send
// concurrently, each owning the prefix it was handed until its outcomes
// have been emitted.
//
// A cut removes up to batchSize events from the queue front and occupies
// one in-flight slot, regardless of how many destination partitions the
// prefix fans out into.
type dispatcher struct {
	batchSize     int
	batchTimeout  time.Duration
	maxConcurrent int
	capacity      int
	blockOnSend   bool

	// send ships one cut's worth of events and emits their outcomes.
	// Runs on a worker goroutine; panics are recovered and the slot is
	// still released.
	send func(events []*types.Event)

	logger *logrus.Logger

	mu           sync.Mutex
	spaceFreed   *sync.Cond
	queue        []*types.Event
	inFlight     int
	timer        *time.Timer
	timerArmed   bool
	flushWaiters []chan struct{}
	stopped      bool
	workers      sync.WaitGroup
}

func newDispatcher(cfg types.Config, send func([]*types.Event), logger *logrus.Logger) *dispatcher {
	batchSize := cfg.BatchSizeTrigger
	if batchSize < 1 {
		batchSize = 1
	}
	d := &dispatcher{
		batchSize:     batchSize,
		batchTimeout:  cfg.BatchTimeTrigger,
		maxConcurrent: cfg.MaxConcurrentBatches,
		capacity:      cfg.PendingWorkCapacity,
		blockOnSend:   cfg.BlockOnSend,
		send:          send,
		logger:        logger,
		queue:         make([]*types.Event, 0, batchSize),
	}
	d.spaceFreed = sync.NewCond(&d.mu)
	return d
}

// Enqueue appends an event to the pending queue and applies the send
// triggers. It returns ErrOverflow when the queue is at capacity (unless
// blockOnSend is set) and ErrStopped after the dispatcher shut down. The
// caller translates errors into outcomes; Enqueue itself never emits one.
func (d *dispatcher) Enqueue(e *types.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return errors.ErrStopped
	}
	if len(d.queue) >= d.capacity {
		if !d.blockOnSend {
			return errors.ErrOverflow
		}
		for len(d.queue) >= d.capacity && !d.stopped {
			d.spaceFreed.Wait()
		}
		if d.stopped {
			return errors.ErrStopped
		}
	}

	d.queue = append(d.queue, e)
	metrics.EventsEnqueuedTotal.Inc()
	metrics.QueueDepth.Set(float64(len(d.queue)))

	if len(d.queue) >= d.batchSize {
		d.cutLocked()
	} else {
		d.armTimerLocked()
	}
	return nil
}

// cutLocked removes up to batchSize events from the queue front and hands
// them to a worker. No-op when every slot is occupied (a completion will
// re-attempt) or when the queue is empty. Caller holds d.mu.
func (d *dispatcher) cutLocked() {
	if d.inFlight >= d.maxConcurrent {
		return
	}
	if len(d.queue) == 0 {
		return
	}
	d.stopTimerLocked()

	n := d.batchSize
	if len(d.queue) < n {
		n = len(d.queue)
	}
	events := make([]*types.Event, n)
	copy(events, d.queue)
	d.queue = append(d.queue[:0], d.queue[n:]...)

	d.inFlight++
	metrics.BatchesInFlight.Set(float64(d.inFlight))
	metrics.QueueDepth.Set(float64(len(d.queue)))
	if d.blockOnSend {
		d.spaceFreed.Broadcast()
	}

	d.workers.Add(1)
	go d.runBatch(events)
}

// runBatch drives one cut on a worker goroutine. Every exit path, including
// a panic inside send or the response callback, funnels through
// onBatchDone so the slot is released and flush waiters cannot hang.
func (d *dispatcher) runBatch(events []*types.Event) {
	defer d.workers.Done()
	defer d.onBatchDone()
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("panic", r).Error("Batch worker panicked; batch accounted as done")
		}
	}()
	d.send(events)
}

// onBatchDone releases the worker's slot and keeps the queue draining:
// residual work is cut immediately when it fills a batch or when a flush is
// pending, otherwise the timer is re-armed. The (empty queue, zero
// in-flight) transition resolves all flush waiters.
func (d *dispatcher) onBatchDone() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.inFlight--
	metrics.BatchesInFlight.Set(float64(d.inFlight))

	if len(d.queue) > 0 {
		if len(d.queue) >= d.batchSize || len(d.flushWaiters) > 0 {
			d.cutLocked()
		} else {
			d.armTimerLocked()
		}
		return
	}
	if d.inFlight == 0 {
		for _, w := range d.flushWaiters {
			close(w)
		}
		d.flushWaiters = nil
	}
}

// Flush returns a channel that closes once the queue is empty and no batch
// is in flight. Events enqueued before that transition are included in the
// drain; intake is not frozen.
func (d *dispatcher) Flush() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch := make(chan struct{})
	if len(d.queue) == 0 && d.inFlight == 0 {
		close(ch)
		return ch
	}
	d.flushWaiters = append(d.flushWaiters, ch)
	d.cutLocked()
	return ch
}

// Stop drains pending work, then rejects further events and waits for the
// workers to exit.
func (d *dispatcher) Stop() {
	<-d.Flush()

	d.mu.Lock()
	d.stopped = true
	d.stopTimerLocked()
	d.spaceFreed.Broadcast()
	d.mu.Unlock()

	d.workers.Wait()
}

// armTimerLocked arms the single deferred timer; arming is idempotent.
// Caller holds d.mu.
func (d *dispatcher) armTimerLocked() {
	if d.timerArmed || d.stopped {
		return
	}
	d.timerArmed = true
	if d.timer == nil {
		d.timer = time.AfterFunc(d.batchTimeout, d.onTimer)
	} else {
		d.timer.Reset(d.batchTimeout)
	}
}

// stopTimerLocked clears the pending timer, if any. Caller holds d.mu.
func (d *dispatcher) stopTimerLocked() {
	if d.timerArmed {
		d.timer.Stop()
		d.timerArmed = false
	}
}

// onTimer is the time trigger. Firing while every slot is busy is a no-op
// cut; the backlog drains on the next completion.
func (d *dispatcher) onTimer() {
	d.mu.Lock()
	d.timerArmed = false
	d.cutLocked()
	d.mu.Unlock()
}

// depth reports the current queue length. Used by tests and stats.
func (d *dispatcher) depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
