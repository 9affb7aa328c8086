// Package connpool implements the per-host HTTP/1.1 and TCP connection
// pools: a FIFO of pending streams, a LIFO of idle clients, drain
// semantics, and the PriorityConnPoolMap that multiplexes pools by
// (priority, key).
package connpool

import (
	"errors"

	"github.com/wayfinder/wayfinder/internal/upstream"
)

// FailureReason enumerates why a stream could not be served.
type FailureReason int

const (
	// Overflow: the pending queue or connection cap was exceeded.
	Overflow FailureReason = iota
	// LocalConnectionFailure: dialing or the handshake failed.
	LocalConnectionFailure
	// RemoteConnectionFailure: the upstream reset or refused the connection.
	RemoteConnectionFailure
	// ConnectionTimeout: the connect attempt exceeded ClusterInfo.ConnectTimeout.
	ConnectionTimeout
	// ConnectionTermination: the peer closed an established connection.
	ConnectionTermination
)

func (r FailureReason) String() string {
	switch r {
	case Overflow:
		return "overflow"
	case LocalConnectionFailure:
		return "local_connection_failure"
	case RemoteConnectionFailure:
		return "remote_connection_failure"
	case ConnectionTimeout:
		return "connection_timeout"
	case ConnectionTermination:
		return "connection_termination"
	default:
		return "unknown"
	}
}

// ErrOverflow is returned in failure descriptions when a pool rejects a
// stream synchronously because no capacity is left.
var ErrOverflow = errors.New("connpool: overflow")

// StreamCallbacks is supplied to NewStream by the caller (the router
// filter) and notified once a client is ready, or if the stream cannot
// be served. OnPoolReady carries the PooledRequest bound to this specific
// stream, mirroring TCPCallbacks.OnPoolReady's *ConnectionData handle —
// without it a caller sharing a pool across concurrent streams to the
// same host has no way to recover which physical client is its own.
type StreamCallbacks interface {
	OnPoolReady(req *PooledRequest, host *upstream.Host)
	OnPoolFailure(reason FailureReason, details string, host *upstream.Host)
}

// Cancelable is returned by NewStream; dropping interest in a still-
// pending stream calls Cancel so the pool removes its queue entry.
type Cancelable interface {
	Cancel()
}

type noopCancelable struct{}

func (noopCancelable) Cancel() {}

// DrainBehavior selects how aggressively a pool winds down.
type DrainBehavior int

const (
	// DrainExisting lets in-flight streams finish and closes each client
	// when its stream completes instead of returning it to idle; clients
	// that are already idle stay open and may still serve new streams.
	DrainExisting DrainBehavior = iota
	// DrainAndDelete additionally closes idle clients immediately and
	// rejects new streams with Overflow.
	DrainAndDelete
)
