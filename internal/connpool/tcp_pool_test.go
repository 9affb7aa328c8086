package connpool

import (
	"sync"
	"testing"
	"time"

	"github.com/wayfinder/wayfinder/internal/upstream"
)

type recTCPCallbacks struct {
	mu      sync.Mutex
	ready   []*ConnectionData
	failure []FailureReason
	done    chan struct{}
}

func newRecTCPCallbacks() *recTCPCallbacks {
	return &recTCPCallbacks{done: make(chan struct{}, 64)}
}

func (r *recTCPCallbacks) OnPoolReady(conn *ConnectionData, host *upstream.Host) {
	r.mu.Lock()
	r.ready = append(r.ready, conn)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recTCPCallbacks) OnPoolFailure(reason FailureReason, details string, host *upstream.Host) {
	r.mu.Lock()
	r.failure = append(r.failure, reason)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func TestTCPPoolAccounting(t *testing.T) {
	host, info := testHost(t, 1, 1)
	dialer := newBlockingDialer()
	pool := NewTCPPool(host, info, upstream.PriorityDefault, dialer.dial)

	cb1 := newRecTCPCallbacks()
	pool.NewConnection(cb1)

	cb2 := newRecTCPCallbacks()
	pool.NewConnection(cb2)

	cb3 := newRecTCPCallbacks()
	pool.NewConnection(cb3)

	select {
	case <-cb3.done:
	case <-time.After(time.Second):
		t.Fatal("expected #3 to fail synchronously")
	}
	cb3.mu.Lock()
	if len(cb3.failure) != 1 || cb3.failure[0] != Overflow {
		t.Fatalf("expected overflow, got %+v", cb3.failure)
	}
	cb3.mu.Unlock()

	close(dialer.release)
	select {
	case <-cb1.done:
	case <-time.After(time.Second):
		t.Fatal("expected #1 ready")
	}

	idle, busy, connecting, pending := pool.Stats()
	if busy != 1 || idle != 0 || connecting != 0 || pending != 1 {
		t.Fatalf("unexpected stats: idle=%d busy=%d connecting=%d pending=%d", idle, busy, connecting, pending)
	}

	cb1.mu.Lock()
	conn := cb1.ready[0]
	cb1.mu.Unlock()
	conn.Close()

	select {
	case <-cb2.done:
	case <-time.After(time.Second):
		t.Fatal("expected pending #2 to be serviced after #1 released")
	}
}

func TestTCPPoolDrainExistingKeepsIdleAvailable(t *testing.T) {
	host, info := testHost(t, 4, 4)
	dialer := newBlockingDialer()
	close(dialer.release)
	pool := NewTCPPool(host, info, upstream.PriorityDefault, dialer.dial)

	cb := newRecTCPCallbacks()
	pool.NewConnection(cb)
	<-cb.done
	cb.mu.Lock()
	conn := cb.ready[0]
	cb.mu.Unlock()
	conn.Close()

	pool.DrainConnections(DrainExisting)

	cb2 := newRecTCPCallbacks()
	pool.NewConnection(cb2)
	<-cb2.done
	cb2.mu.Lock()
	defer cb2.mu.Unlock()
	if len(cb2.ready) != 1 {
		t.Fatalf("expected DrainExisting to still serve from idle, got ready=%v failure=%v", cb2.ready, cb2.failure)
	}
}
