package connpool

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wayfinder/wayfinder/internal/addr"
	"github.com/wayfinder/wayfinder/internal/codec"
	"github.com/wayfinder/wayfinder/internal/upstream"
)

func testHost(t *testing.T, maxPerHost, maxPending int) (*upstream.Host, *upstream.ClusterInfo) {
	t.Helper()
	limits := upstream.ResourceLimits{
		MaxConnectionsPerHost: maxPerHost,
		MaxPendingRequests:    maxPending,
		MaxConnections:        1024,
		MaxRequests:           1024,
	}
	info := upstream.NewClusterInfo(upstream.ClusterInfoConfig{
		Name:               "cluster",
		DiscoveryType:      upstream.DiscoveryStatic,
		LBPolicy:           upstream.LBRoundRobin,
		DefaultLimits:      limits,
		HighPriorityLimits: limits,
	})
	a, err := addr.FromHostPort("127.0.0.1:9")
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	host := upstream.NewHost("cluster", info, upstream.HostConfig{Address: a})
	return host, info
}

// recCallbacks captures OnPoolReady/OnPoolFailure invocations for assertions.
type recCallbacks struct {
	mu      sync.Mutex
	ready   int
	lastReq *PooledRequest
	failure []FailureReason
	done    chan struct{}
}

func newRecCallbacks() *recCallbacks {
	return &recCallbacks{done: make(chan struct{}, 64)}
}

func (r *recCallbacks) OnPoolReady(req *PooledRequest, host *upstream.Host) {
	r.mu.Lock()
	r.ready++
	r.lastReq = req
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recCallbacks) OnPoolFailure(reason FailureReason, details string, host *upstream.Host) {
	r.mu.Lock()
	r.failure = append(r.failure, reason)
	r.mu.Unlock()
	r.done <- struct{}{}
}

type nopDecoder struct{}

func (nopDecoder) DecodeHeaders(h *codec.Headers, endStream bool) {}
func (nopDecoder) DecodeData(data []byte, endStream bool)         {}
func (nopDecoder) DecodeTrailers(trailers *codec.Headers)         {}

// blockingDialer holds dial attempts open until released, to deterministically
// observe the connecting/pending state split.
type blockingDialer struct {
	mu       sync.Mutex
	release  chan struct{}
	attempts int
}

func newBlockingDialer() *blockingDialer {
	return &blockingDialer{release: make(chan struct{})}
}

func (d *blockingDialer) dial(ctx context.Context, host *upstream.Host) (net.Conn, error) {
	d.mu.Lock()
	d.attempts++
	d.mu.Unlock()
	select {
	case <-d.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c1, c2 := net.Pipe()
	go c2.Close()
	return c1, nil
}

// TestPoolAccounting covers testable property 1: active+connecting+idle
// never exceeds max_connections_per_host, and pending never exceeds
// max_pending_requests.
func TestPoolAccounting(t *testing.T) {
	host, info := testHost(t, 1, 1)
	dialer := newBlockingDialer()
	pool := NewHTTPPool(host, info, upstream.PriorityDefault, dialer.dial)

	cb1 := newRecCallbacks()
	pool.NewStream(nopDecoder{}, cb1) // #1: dials, becomes assigned-connecting

	cb2 := newRecCallbacks()
	pool.NewStream(nopDecoder{}, cb2) // #2: pool full, pends

	cb3 := newRecCallbacks()
	pool.NewStream(nopDecoder{}, cb3) // #3: pending also full -> synchronous overflow

	select {
	case <-cb3.done:
	case <-time.After(time.Second):
		t.Fatal("expected #3 to fail synchronously")
	}
	cb3.mu.Lock()
	if len(cb3.failure) != 1 || cb3.failure[0] != Overflow {
		t.Fatalf("expected overflow for #3, got %+v", cb3.failure)
	}
	cb3.mu.Unlock()

	idle, busy, connecting, pending := pool.Stats()
	if connecting != 1 || pending != 1 || idle != 0 || busy != 0 {
		t.Fatalf("unexpected stats after #1,#2,#3: idle=%d busy=%d connecting=%d pending=%d", idle, busy, connecting, pending)
	}

	close(dialer.release)
	select {
	case <-cb1.done:
	case <-time.After(time.Second):
		t.Fatal("expected #1 to become ready")
	}
	cb1.mu.Lock()
	if cb1.ready != 1 {
		t.Fatalf("expected #1 ready, got %+v", cb1)
	}
	cb1.mu.Unlock()

	if dialer.attempts != 1 {
		t.Fatalf("expected exactly one dial attempt while at capacity, got %d", dialer.attempts)
	}
}

// TestPendingFIFO covers testable property 2: pending streams are served
// in arrival order once capacity frees.
func TestPendingFIFO(t *testing.T) {
	host, info := testHost(t, 1, 4)
	dialer := newBlockingDialer()
	pool := NewHTTPPool(host, info, upstream.PriorityDefault, dialer.dial)

	first := newRecCallbacks()
	pool.NewStream(nopDecoder{}, first)

	var order []int
	var mu sync.Mutex
	makeCb := func(i int) *recCallbacks {
		cb := newRecCallbacks()
		return cb
	}
	cbs := make([]*recCallbacks, 3)
	for i := 0; i < 3; i++ {
		cbs[i] = makeCb(i)
		pool.NewStream(nopDecoder{}, cbs[i])
	}

	_, _, _, pending := pool.Stats()
	if pending != 3 {
		t.Fatalf("expected 3 pending, got %d", pending)
	}

	close(dialer.release)
	<-first.done

	// completeStream on the first client should hand it to pending[0] (cbs[0]).
	pool.mu.Lock()
	var client *httpClient
	for c := range pool.busy {
		client = c
	}
	pool.mu.Unlock()
	if client == nil {
		t.Fatal("expected a busy client after first connects")
	}

	for i := 0; i < 3; i++ {
		pool.completeStream(client, true)
		select {
		case <-cbs[i].done:
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		case <-time.After(time.Second):
			t.Fatalf("expected pending #%d to be serviced", i)
		}
	}

	for i, got := range order {
		if got != i {
			t.Fatalf("expected FIFO order 0,1,2; got %v", order)
		}
	}
}

// TestDrainAndDeleteRejectsNewStreams covers testable property 6.
func TestDrainAndDeleteRejectsNewStreams(t *testing.T) {
	host, info := testHost(t, 4, 4)
	dialer := newBlockingDialer()
	close(dialer.release)
	pool := NewHTTPPool(host, info, upstream.PriorityDefault, dialer.dial)

	cb := newRecCallbacks()
	pool.NewStream(nopDecoder{}, cb)
	<-cb.done

	pool.DrainConnections(DrainAndDelete)
	if !pool.IsDraining() {
		t.Fatal("expected pool to report draining")
	}

	cb2 := newRecCallbacks()
	pool.NewStream(nopDecoder{}, cb2)
	<-cb2.done
	cb2.mu.Lock()
	defer cb2.mu.Unlock()
	if len(cb2.failure) != 1 || cb2.failure[0] != Overflow {
		t.Fatalf("expected new stream to overflow while draining, got %+v", cb2.failure)
	}
}

// TestConcurrentStreamsToOneHostGetDistinctClients guards against
// OnPoolReady handing every waiting stream whichever client happens to be
// first in the busy set: with room for more than one connection to the
// same host, two concurrently admitted streams must each be bound to
// their own physical client.
func TestConcurrentStreamsToOneHostGetDistinctClients(t *testing.T) {
	host, info := testHost(t, 2, 2)
	dialer := newBlockingDialer()
	pool := NewHTTPPool(host, info, upstream.PriorityDefault, dialer.dial)

	cb1 := newRecCallbacks()
	pool.NewStream(nopDecoder{}, cb1)
	cb2 := newRecCallbacks()
	pool.NewStream(nopDecoder{}, cb2)

	close(dialer.release)
	<-cb1.done
	<-cb2.done

	cb1.mu.Lock()
	req1 := cb1.lastReq
	cb1.mu.Unlock()
	cb2.mu.Lock()
	req2 := cb2.lastReq
	cb2.mu.Unlock()

	if req1 == nil || req2 == nil {
		t.Fatalf("expected both streams to receive a PooledRequest: req1=%v req2=%v", req1, req2)
	}
	if req1.client == nil || req2.client == nil {
		t.Fatalf("expected both PooledRequests to carry a bound client: req1=%+v req2=%+v", req1, req2)
	}
	if req1.client == req2.client {
		t.Fatal("expected the two concurrent streams to be bound to distinct clients")
	}

	idle, busy, _, _ := pool.Stats()
	if idle != 0 || busy != 2 {
		t.Fatalf("expected both clients busy, got idle=%d busy=%d", idle, busy)
	}
}
