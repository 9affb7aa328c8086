package connpool

import (
	"context"
	"net"
	"sync"

	"github.com/wayfinder/wayfinder/internal/upstream"
)

// TCPCallbacks is the TCP-pool analogue of StreamCallbacks: on success the
// caller gets a bidirectional ConnectionData handle instead of a codec
// encoder.
type TCPCallbacks interface {
	OnPoolReady(conn *ConnectionData, host *upstream.Host)
	OnPoolFailure(reason FailureReason, details string, host *upstream.Host)
}

// ConnectionData is the bidirectional handle handed to a CONNECT tunnel or
// raw TCP route once a TCP pool client is bound.
type ConnectionData struct {
	Conn net.Conn
	pool *TCPPool
	c    *tcpClient
}

// Close returns the underlying client to the pool's idle list, or closes it
// outright if the pool is draining.
func (cd *ConnectionData) Close() {
	cd.pool.completeConn(cd.c)
}

type tcpClient struct {
	conn  net.Conn
	state clientState

	assigned *tcpRequest
}

type tcpRequest struct {
	callbacks TCPCallbacks
	canceled  bool
}

// TCPPool is the TCP connection pool: identical admission-control shape
// to HTTPPool, but without HTTP framing — a bound client is handed out as
// a raw ConnectionData rather than a codec encoder.
type TCPPool struct {
	host     *upstream.Host
	info     *upstream.ClusterInfo
	priority upstream.Priority
	dial     Dialer

	mu      sync.Mutex
	idle    []*tcpClient
	busy    map[*tcpClient]bool
	connect map[*tcpClient]bool
	pending []*tcpRequest

	drainMode DrainBehavior
	draining  bool
}

// NewTCPPool creates a pool bound to one host at one priority.
func NewTCPPool(host *upstream.Host, info *upstream.ClusterInfo, priority upstream.Priority, dial Dialer) *TCPPool {
	return &TCPPool{
		host:     host,
		info:     info,
		priority: priority,
		dial:     dial,
		busy:     make(map[*tcpClient]bool),
		connect:  make(map[*tcpClient]bool),
	}
}

func (p *TCPPool) rm() *upstream.ResourceManager { return p.info.ResourceManager(p.priority) }

func (p *TCPPool) totalLocked() int {
	return len(p.busy) + len(p.idle) + len(p.connect)
}

// NumIdle implements loadbalancer.IdleCounter.
func (p *TCPPool) NumIdle(host *upstream.Host) int {
	if host != p.host {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// NewConnection implements new_stream, mirroring HTTPPool's
// assigned-vs-pending admission split.
func (p *TCPPool) NewConnection(callbacks TCPCallbacks) Cancelable {
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
		callbacks.OnPoolReady(&ConnectionData{Conn: c.conn, pool: p, c: c}, p.host)
		return noopCancelable{}
	}

	limit := p.rm().Limits().MaxConnectionsPerHost
	if p.totalLocked() < limit {
		req := &tcpRequest{callbacks: callbacks}
		p.dialForLocked(req)
		p.mu.Unlock()
		return &cancelTCPStream{req: req}
	}

	if len(p.pending) >= p.rm().Limits().MaxPendingRequests {
		p.mu.Unlock()
		p.rm().IncOverflow()
		callbacks.OnPoolFailure(Overflow, "max pending requests reached", p.host)
		return noopCancelable{}
	}

	req := &tcpRequest{callbacks: callbacks}
	p.pending = append(p.pending, req)
	p.rm().IncPending()
	p.mu.Unlock()
	return &cancelTCPStream{req: req, pool: p}
}

func (p *TCPPool) dialForLocked(req *tcpRequest) {
	c := &tcpClient{state: stateConnecting, assigned: req}
	p.connect[c] = true
	p.rm().IncConnections()
	go p.runConnect(c)
}

func (p *TCPPool) runConnect(c *tcpClient) {
	ctx, cancel := context.WithTimeout(context.Background(), p.info.ConnectTimeout())
	defer cancel()
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
	delete(p.connect, c)
	c.state = stateBusy
	p.busy[c] = true
	req := c.assigned
	c.assigned = nil
	p.mu.Unlock()

	req.callbacks.OnPoolReady(&ConnectionData{Conn: conn, pool: p, c: c}, p.host)
}

func (p *TCPPool) tryDrainPendingAfterFree() {
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

func (p *TCPPool) completeConn(c *tcpClient) {
	p.mu.Lock()
	delete(p.busy, c)
	if p.draining {
		c.state = stateDraining
		p.mu.Unlock()
		c.conn.Close()
		p.tryDrainPendingAfterFree()
		return
	}

	if len(p.pending) > 0 {
		req := p.pending[0]
		p.pending = p.pending[1:]
		p.rm().DecPending()
		if req.canceled {
			p.mu.Unlock()
			p.completeConn(c)
			return
		}
		c.state = stateBusy
		p.busy[c] = true
		p.mu.Unlock()
		req.callbacks.OnPoolReady(&ConnectionData{Conn: c.conn, pool: p, c: c}, p.host)
		return
	}

	c.state = stateReady
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// DrainConnections implements drain semantics identical in shape to
// HTTPPool.DrainConnections.
func (p *TCPPool) DrainConnections(behavior DrainBehavior) {
	p.mu.Lock()
	p.draining = true
	p.drainMode = behavior
	var toClose []*tcpClient
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
func (p *TCPPool) IsDraining() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draining
}

// Stats returns a point-in-time snapshot of pool occupancy.
func (p *TCPPool) Stats() (idle, busy, connecting, pending int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), len(p.busy), len(p.connect), len(p.pending)
}

type cancelTCPStream struct {
	req  *tcpRequest
	pool *TCPPool
}

func (c *cancelTCPStream) Cancel() {
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
