// Package connection provides the framed byte-stream abstraction that
// sits between a raw socket and the HTTP/1.1 codec: read/write watermark
// callbacks, half-close, and a TransportSocket seam for TLS handshake
// delegation (an external collaborator — this package only calls into
// it, it never implements a handshake itself).
package connection

import (
	"io"
	"net"
	"sync"
)

// TransportSocket is the seam TLS termination plugs into. The raw-buffer
// implementation below is a pass-through; any TLS library binding can
// satisfy this interface without this package knowing about certificates.
type TransportSocket interface {
	io.ReadWriter
	Close() error
}

// rawTransportSocket wraps a net.Conn with no framing of its own.
type rawTransportSocket struct {
	net.Conn
}

// NewRawTransportSocket adapts a net.Conn to TransportSocket with no TLS.
func NewRawTransportSocket(c net.Conn) TransportSocket {
	return rawTransportSocket{c}
}

// WatermarkCallbacks is notified when buffered-but-unwritten data crosses
// the connection's high/low watermarks, used by the filter manager to
// drive downstream backpressure.
type WatermarkCallbacks interface {
	OnAboveWriteBufferHighWatermark()
	OnBelowWriteBufferLowWatermark()
}

// Connection wraps a TransportSocket with watermark-tracked write
// buffering and half-close bookkeeping.
type Connection struct {
	mu        sync.Mutex
	socket    TransportSocket
	highWater int
	lowWater  int
	buffered  int
	aboveHigh bool
	callbacks []WatermarkCallbacks

	readClosed  bool
	writeClosed bool
}

// New wraps a TransportSocket with the given buffer-limit watermarks. A
// limit of 0 disables watermark tracking (unlimited buffering).
func New(socket TransportSocket, bufferLimit int) *Connection {
	return &Connection{
		socket:    socket,
		highWater: bufferLimit,
		lowWater:  bufferLimit / 2,
	}
}

// AddWatermarkCallbacks registers cb. A late registrant must be caught up
// to the connection's current state — deliver an immediate high-watermark
// notice if the connection is already above it.
func (c *Connection) AddWatermarkCallbacks(cb WatermarkCallbacks) {
	c.mu.Lock()
	c.callbacks = append(c.callbacks, cb)
	above := c.aboveHigh
	c.mu.Unlock()
	if above {
		cb.OnAboveWriteBufferHighWatermark()
	}
}

// Write queues data for the underlying socket, tracking watermark state.
// It performs a real synchronous write (Go's net.Conn already buffers at
// the OS level); the accounting here models write-buffer watermark
// semantics on top of that.
func (c *Connection) Write(data []byte) (int, error) {
	c.mu.Lock()
	c.buffered += len(data)
	c.checkHighWatermarkLocked()
	c.mu.Unlock()

	n, err := c.socket.Write(data)

	c.mu.Lock()
	c.buffered -= len(data)
	c.checkLowWatermarkLocked()
	c.mu.Unlock()
	return n, err
}

func (c *Connection) checkHighWatermarkLocked() {
	if c.highWater <= 0 || c.aboveHigh || c.buffered < c.highWater {
		return
	}
	c.aboveHigh = true
	cbs := append([]WatermarkCallbacks(nil), c.callbacks...)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb.OnAboveWriteBufferHighWatermark()
	}
	c.mu.Lock()
}

func (c *Connection) checkLowWatermarkLocked() {
	if c.highWater <= 0 || !c.aboveHigh || c.buffered > c.lowWater {
		return
	}
	c.aboveHigh = false
	cbs := append([]WatermarkCallbacks(nil), c.callbacks...)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb.OnBelowWriteBufferLowWatermark()
	}
	c.mu.Lock()
}

// Read reads from the underlying socket.
func (c *Connection) Read(p []byte) (int, error) {
	return c.socket.Read(p)
}

// CloseWrite half-closes the write side, signaling no more data will be
// sent while reads continue. Sockets without half-close support
// (anything not a *net.TCPConn) fall back to a full Close.
func (c *Connection) CloseWrite() error {
	c.mu.Lock()
	c.writeClosed = true
	c.mu.Unlock()
	if hc, ok := c.socket.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}
	return c.socket.Close()
}

// Close closes the connection fully.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.readClosed, c.writeClosed = true, true
	c.mu.Unlock()
	return c.socket.Close()
}

// IsHalfClosed reports whether the write side has been closed while the
// read side has not.
func (c *Connection) IsHalfClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeClosed && !c.readClosed
}
