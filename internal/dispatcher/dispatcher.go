// Package dispatcher implements the single-threaded event loop each proxy
// worker runs on. All pool, cluster, and filter-manager state owned by a
// worker is only ever touched from that worker's Dispatcher goroutine;
// cross-worker communication happens exclusively through Post.
package dispatcher

import (
	"container/heap"
	"sync"
	"time"
)

// Dispatcher runs posted work items and armed timers on a single
// goroutine. It is the single-threaded event loop every connection's
// filter chain runs on: nothing here ever blocks waiting on I/O directly, everything is
// driven by channel sends from elsewhere.
type Dispatcher struct {
	work    chan func()
	timers  timerHeap
	timerMu sync.Mutex
	nextID  uint64

	deferred   []func()
	deferredMu sync.Mutex

	stop chan struct{}
	done chan struct{}
}

// New creates a Dispatcher. Call Run in its own goroutine to start it.
func New() *Dispatcher {
	return &Dispatcher{
		work: make(chan func(), 256),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Post schedules fn to run on the dispatcher goroutine. Safe to call from
// any goroutine, including the dispatcher's own.
func (d *Dispatcher) Post(fn func()) {
	select {
	case d.work <- fn:
	case <-d.stop:
	}
}

// DeferredDelete schedules fn to run at the end of the current (or next)
// event-loop iteration, after any in-progress iteration over structures
// fn might mutate. This is a deferred-delete queue, used to destroy pool
// clients without invalidating an active iterator.
func (d *Dispatcher) DeferredDelete(fn func()) {
	d.deferredMu.Lock()
	d.deferred = append(d.deferred, fn)
	d.deferredMu.Unlock()
}

// Stop signals the dispatcher to exit after draining pending work and
// blocks until Run returns.
func (d *Dispatcher) Stop() {
	close(d.stop)
	<-d.done
}

// Run drives the event loop until Stop is called. It should be invoked in
// its own goroutine.
func (d *Dispatcher) Run() {
	defer close(d.done)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			d.drainWork()
			return
		case fn := <-d.work:
			d.runSafely(fn)
			d.flushDeferred()
		case <-ticker.C:
			d.fireExpiredTimers()
			d.flushDeferred()
		}
	}
}

func (d *Dispatcher) drainWork() {
	for {
		select {
		case fn := <-d.work:
			d.runSafely(fn)
		default:
			d.flushDeferred()
			return
		}
	}
}

func (d *Dispatcher) runSafely(fn func()) {
	if fn != nil {
		fn()
	}
}

func (d *Dispatcher) flushDeferred() {
	d.deferredMu.Lock()
	pending := d.deferred
	d.deferred = nil
	d.deferredMu.Unlock()
	for _, fn := range pending {
		d.runSafely(fn)
	}
}

// Timer is a cancelable handle returned by CreateTimer.
type Timer struct {
	id uint64
	d  *Dispatcher
}

// Disable cancels the timer if it has not yet fired.
func (t *Timer) Disable() {
	t.d.timerMu.Lock()
	defer t.d.timerMu.Unlock()
	for i, e := range t.d.timers {
		if e.id == t.id {
			heap.Remove(&t.d.timers, i)
			return
		}
	}
}

// CreateTimer arms a one-shot timer that calls fn on the dispatcher
// goroutine once the duration after has elapsed. The returned Timer may be disabled before it
// fires; disabling an already-fired timer is a no-op.
func (d *Dispatcher) CreateTimer(after time.Duration, fn func()) *Timer {
	d.timerMu.Lock()
	d.nextID++
	id := d.nextID
	entry := &timerEntry{id: id, at: time.Now().Add(after), fn: fn}
	heap.Push(&d.timers, entry)
	d.timerMu.Unlock()
	return &Timer{id: id, d: d}
}

func (d *Dispatcher) fireExpiredTimers() {
	now := time.Now()
	var ready []*timerEntry
	d.timerMu.Lock()
	for len(d.timers) > 0 && !d.timers[0].at.After(now) {
		e := heap.Pop(&d.timers).(*timerEntry)
		ready = append(ready, e)
	}
	d.timerMu.Unlock()
	for _, e := range ready {
		d.runSafely(e.fn)
	}
}

type timerEntry struct {
	id uint64
	at time.Time
	fn func()
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
