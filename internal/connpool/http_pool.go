package connpool

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/wayfinder/wayfinder/internal/codec"
	"github.com/wayfinder/wayfinder/internal/upstream"
	"golang.org/x/time/rate"
)

// Dialer opens a raw connection to a pool's host. In production this is
// net.Dialer.DialContext against host.Address; tests inject a fake.
type Dialer func(ctx context.Context, host *upstream.Host) (net.Conn, error)

// NetDialer is the production Dialer, using the standard library.
func NetDialer(timeout time.Duration) Dialer {
	d := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context, host *upstream.Host) (net.Conn, error) {
		return d.DialContext(ctx, host.Address().Network(), host.Address().String())
	}
}

type clientState int

const (
	stateConnecting clientState = iota
	stateReady
	stateBusy
	stateDraining
	stateClosed
)

// httpClient is one physical HTTP/1.1 connection to the pool's host.
type httpClient struct {
	conn         net.Conn
	reader       *bufio.Reader
	writer       *bufio.Writer
	state        clientState
	requestCount int

	// assigned is the single stream this client was dialed for, set only
	// while state == stateConnecting.
	assigned *streamRequest
}

type streamRequest struct {
	decoder   codec.Decoder
	callbacks StreamCallbacks
	canceled  bool
}

// HTTPPool is the per-host, per-priority HTTP/1.1 connection pool.
type HTTPPool struct {
	host     *upstream.Host
	info     *upstream.ClusterInfo
	priority upstream.Priority
	dial     Dialer

	// connectLimiter throttles new dial attempts when the cluster sets
	// MaxConnectAttemptsPerSecond; nil means unlimited.
	connectLimiter *rate.Limiter

	maxRequestsPerConnection int

	mu      sync.Mutex
	idle    []*httpClient
	busy    map[*httpClient]bool
	connect map[*httpClient]bool
	pending []*streamRequest

	drainMode   DrainBehavior
	draining    bool
	doNotDelete bool
}

// NewHTTPPool creates a pool bound to one host at one priority.
func NewHTTPPool(host *upstream.Host, info *upstream.ClusterInfo, priority upstream.Priority, dial Dialer) *HTTPPool {
	p := &HTTPPool{
		host:                     host,
		info:                     info,
		priority:                 priority,
		dial:                     dial,
		maxRequestsPerConnection: 0, // 0 = unlimited, matches Envoy's own default
		busy:                     make(map[*httpClient]bool),
		connect:                  make(map[*httpClient]bool),
	}
	if n := info.MaxConnectAttemptsPerSecond(); n > 0 {
		p.connectLimiter = rate.NewLimiter(rate.Limit(n), n)
	}
	return p
}

func (p *HTTPPool) rm() *upstream.ResourceManager { return p.info.ResourceManager(p.priority) }

// NumIdle implements loadbalancer.IdleCounter for the most_idle/
// first_available policies.
func (p *HTTPPool) NumIdle(host *upstream.Host) int {
	if host != p.host {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// totalLocked returns busy+idle+connecting, the "active+connecting" count
// for circuit-breaking purposes. Caller holds p.mu.
func (p *HTTPPool) totalLocked() int {
	return len(p.busy) + len(p.idle) + len(p.connect)
}

// NewStream implements new_stream.
func (p *HTTPPool) NewStream(decoder codec.Decoder, callbacks StreamCallbacks) Cancelable {
	p.mu.Lock()
	if p.draining && p.drainMode == DrainAndDelete {
		p.mu.Unlock()
		p.rm().IncOverflow()
		callbacks.OnPoolFailure(Overflow, "pool is draining", p.host)
		return noopCancelable{}
	}

	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		c.state = stateBusy
		p.busy[c] = true
		p.mu.Unlock()
		callbacks.OnPoolReady(&PooledRequest{pool: p, client: c}, p.host)
		return noopCancelable{}
	}

	limit := p.rm().Limits().MaxConnectionsPerHost
	if p.totalLocked() < limit {
		req := &streamRequest{decoder: decoder, callbacks: callbacks}
		p.dialForLocked(req)
		p.mu.Unlock()
		return &cancelStream{req: req}
	}

	if len(p.pending) >= p.rm().Limits().MaxPendingRequests {
		p.mu.Unlock()
		p.rm().IncOverflow()
		callbacks.OnPoolFailure(Overflow, "max pending requests reached", p.host)
		return noopCancelable{}
	}

	req := &streamRequest{decoder: decoder, callbacks: callbacks}
	p.pending = append(p.pending, req)
	p.rm().IncPending()
	p.mu.Unlock()
	return &cancelStream{req: req, pool: p}
}

// dialForLocked starts a new connection dedicated to req. Caller holds p.mu.
func (p *HTTPPool) dialForLocked(req *streamRequest) {
	c := &httpClient{state: stateConnecting, assigned: req}
	p.connect[c] = true
	p.rm().IncConnections()
	go p.runConnect(c)
}

func (p *HTTPPool) runConnect(c *httpClient) {
	ctx, cancel := context.WithTimeout(context.Background(), p.info.ConnectTimeout())
	defer cancel()

	if p.connectLimiter != nil {
		if err := p.connectLimiter.Wait(ctx); err != nil {
			p.mu.Lock()
			req := c.assigned
			delete(p.connect, c)
			p.rm().DecConnections()
			p.mu.Unlock()
			req.callbacks.OnPoolFailure(LocalConnectionFailure, "connect rate limit: "+err.Error(), p.host)
			p.tryDrainPendingAfterFree()
			return
		}
	}

	conn, err := p.dial(ctx, p.host)

	p.mu.Lock()
	if c.assigned != nil && c.assigned.canceled {
		delete(p.connect, c)
		p.rm().DecConnections()
		p.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		p.tryDrainPendingAfterFree()
		return
	}
	if err != nil {
		req := c.assigned
		delete(p.connect, c)
		p.rm().DecConnections()
		p.rm().IncConnectionFailures()
		p.mu.Unlock()
		req.callbacks.OnPoolFailure(LocalConnectionFailure, err.Error(), p.host)
		p.tryDrainPendingAfterFree()
		return
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.writer = bufio.NewWriter(conn)
	delete(p.connect, c)
	c.state = stateBusy
	p.busy[c] = true
	req := c.assigned
	c.assigned = nil
	p.mu.Unlock()

	req.callbacks.OnPoolReady(&PooledRequest{pool: p, client: c}, p.host)
}

// tryDrainPendingAfterFree is called whenever a connection slot frees up
// (connect failure, stream completion) to see if a queued pending stream
// can now start a new connection attempt.
func (p *HTTPPool) tryDrainPendingAfterFree() {
	p.mu.Lock()
	if len(p.pending) == 0 || p.totalLocked() >= p.rm().Limits().MaxConnectionsPerHost {
		p.mu.Unlock()
		return
	}
	req := p.pending[0]
	p.pending = p.pending[1:]
	p.rm().DecPending()
	if req.canceled {
		p.mu.Unlock()
		p.tryDrainPendingAfterFree()
		return
	}
	p.dialForLocked(req)
	p.mu.Unlock()
}

// PooledRequest is the live request/response cycle bound to one client.
// It is the HTTP-pool analogue of ConnectionData: the specific client
// OnPoolReady bound to the calling stream, not one recovered by scanning
// the pool's busy set.
type PooledRequest struct {
	pool   *HTTPPool
	client *httpClient
}

// RequestEncoder returns the encoder for writing the outbound request.
func (r *PooledRequest) RequestEncoder() codec.Encoder {
	return codec.NewRequestEncoder(r.client.writer)
}

// ReadResponse blocks reading the response off the client's connection
// and dispatches it to dec, then completes the stream (returning the
// client to idle or draining it).
func (r *PooledRequest) ReadResponse(forMethod string, dec codec.Decoder) error {
	var respDone responseTracker
	wrap := &trackingDecoder{Decoder: dec, tracker: &respDone}
	err := codec.ReadResponse(r.client.reader, forMethod, wrap)
	closeConn := err != nil || respDone.connectionClose
	r.pool.completeStream(r.client, !closeConn)
	return err
}

type responseTracker struct {
	connectionClose bool
}

type trackingDecoder struct {
	codec.Decoder
	tracker *responseTracker
}

func (t *trackingDecoder) DecodeHeaders(h *codec.Headers, endStream bool) {
	t.tracker.connectionClose = codec.ConnectionClose(h, 1)
	t.Decoder.DecodeHeaders(h, endStream)
}

// completeStream returns a client to idle (if reusable) or drains it.
func (p *HTTPPool) completeStream(c *httpClient, reusable bool) {
	p.mu.Lock()
	delete(p.busy, c)
	c.requestCount++
	if p.maxRequestsPerConnection > 0 && c.requestCount >= p.maxRequestsPerConnection {
		reusable = false
	}
	if !reusable || p.draining {
		c.state = stateDraining
		p.mu.Unlock()
		c.conn.Close()
		p.tryDrainPendingAfterFree()
		return
	}

	// Service the pending queue before going idle, preserving FIFO order.
	if len(p.pending) > 0 {
		req := p.pending[0]
		p.pending = p.pending[1:]
		p.rm().DecPending()
		if req.canceled {
			p.mu.Unlock()
			p.completeStream(c, true)
			return
		}
		c.state = stateBusy
		p.busy[c] = true
		p.mu.Unlock()
		req.callbacks.OnPoolReady(&PooledRequest{pool: p, client: c}, p.host)
		return
	}

	c.state = stateReady
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// DrainConnections implements drain semantics.
func (p *HTTPPool) DrainConnections(behavior DrainBehavior) {
	p.mu.Lock()
	p.draining = true
	p.drainMode = behavior
	var toClose []*httpClient
	if behavior == DrainAndDelete {
		toClose = append(toClose, p.idle...)
		p.idle = nil
		for _, req := range p.pending {
			req.canceled = true
			p.rm().DecPending()
			req.callbacks.OnPoolFailure(Overflow, "pool draining", p.host)
		}
		p.pending = nil
	}
	p.mu.Unlock()
	for _, c := range toClose {
		c.conn.Close()
	}
}

// IsDraining reports whether the pool has begun draining.
func (p *HTTPPool) IsDraining() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draining
}

// Stats returns a point-in-time snapshot of pool occupancy, for telemetry
// and tests.
func (p *HTTPPool) Stats() (idle, busy, connecting, pending int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), len(p.busy), len(p.connect), len(p.pending)
}

type cancelStream struct {
	req  *streamRequest
	pool *HTTPPool
}

func (c *cancelStream) Cancel() {
	if c.pool != nil {
		c.pool.mu.Lock()
		for i, r := range c.pool.pending {
			if r == c.req {
				c.pool.pending = append(c.pool.pending[:i], c.pool.pending[i+1:]...)
				c.pool.rm().DecPending()
				break
			}
		}
		c.pool.mu.Unlock()
	}
	c.req.canceled = true
}
