package proxy

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/wayfinder/wayfinder/internal/codec"
	"github.com/wayfinder/wayfinder/internal/connection"
	"github.com/wayfinder/wayfinder/internal/dispatcher"
	"github.com/wayfinder/wayfinder/internal/filtermanager"
	"github.com/wayfinder/wayfinder/internal/filters/rewrite"
	routerfilter "github.com/wayfinder/wayfinder/internal/filters/router"
	"github.com/wayfinder/wayfinder/internal/filters/state"
	"github.com/wayfinder/wayfinder/internal/upstream"
)

// downstreamConn owns one accepted socket end to end: its dispatcher, the
// codec.Decoder that feeds that dispatcher, and the sequential loop that
// reads one request at a time off the wire. Requests on a connection are
// served one after another, never pipelined.
type downstreamConn struct {
	srv  *Server
	raw  net.Conn
	conn *connection.Connection
	disp *dispatcher.Dispatcher

	reader *bufio.Reader
	writer *bufio.Writer

	mu       sync.Mutex
	draining bool
	closed   bool
}

func (s *Server) newDownstreamConn(raw net.Conn) *downstreamConn {
	disp := dispatcher.New()
	c := connection.New(connection.NewRawTransportSocket(raw), s.cfg.DefaultBufferLimit)
	return &downstreamConn{
		srv:    s,
		raw:    raw,
		conn:   c,
		disp:   disp,
		reader: bufio.NewReader(c),
		writer: bufio.NewWriter(c),
	}
}

// serve runs the connection's dispatcher and its sequential request loop,
// returning once the connection is done (EOF, protocol error, or a reset
// stream). Grounded on routerfilter.responseRelay's already-established
// pattern of posting every codec callback onto the owning dispatcher
// instead of calling filtermanager.Manager directly from an I/O goroutine.
func (dc *downstreamConn) serve() {
	go dc.disp.Run()
	defer dc.disp.Stop()
	defer dc.conn.Close()

	for {
		if dc.isDraining() {
			return
		}
		st := &stream{dc: dc, done: make(chan struct{})}
		err := codec.ReadRequest(dc.reader, st)
		if err != nil {
			if err != io.EOF && dc.srv.log != nil {
				dc.srv.log.Debug("request read error", "error", err)
			}
			return
		}
		<-st.done
		if err := dc.writer.Flush(); err != nil {
			return
		}
		if st.reset {
			return
		}
	}
}

func (dc *downstreamConn) isDraining() bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.draining
}

// requestDrain marks the connection to stop accepting further requests
// once the current one (if any) completes. Server.ListenAndServe's drain
// timeout force-closes anything that doesn't finish in time on its own.
func (dc *downstreamConn) requestDrain() {
	dc.mu.Lock()
	dc.draining = true
	dc.mu.Unlock()
}

func (dc *downstreamConn) forceClose() {
	dc.mu.Lock()
	if dc.closed {
		dc.mu.Unlock()
		return
	}
	dc.closed = true
	dc.mu.Unlock()
	dc.raw.Close()
}

// stream is one request/response cycle on a connection. It implements
// codec.Decoder, posting every call onto the connection's dispatcher so
// the filter manager it drives is only ever touched from that one
// goroutine, and filtermanager.ResetCallbacks, so a filter aborting the
// stream (e.g. routerfilter.Filter.readResponse on a broken upstream
// connection) can unblock serve()'s wait on done.
type stream struct {
	dc   *downstreamConn
	once sync.Once
	done chan struct{}

	manager *filtermanager.Manager
	reset   bool
}

func (s *stream) DecodeHeaders(h *codec.Headers, endStream bool) {
	s.dc.disp.Post(func() { s.start(h, endStream) })
}

func (s *stream) DecodeData(data []byte, endStream bool) {
	s.dc.disp.Post(func() {
		if s.manager != nil {
			s.manager.DecodeData(data, endStream)
		}
	})
}

func (s *stream) DecodeTrailers(trailers *codec.Headers) {
	s.dc.disp.Post(func() {
		if s.manager != nil {
			s.manager.DecodeTrailers(trailers)
		}
	})
}

// start builds a fresh filter chain for this request and kicks it off.
// Runs on the connection's dispatcher goroutine.
func (s *stream) start(h *codec.Headers, endStream bool) {
	srv := s.dc.srv
	rc := srv.routeCfg.Load()
	route, vhost, matched := rc.Route(h, srv.rng)

	m := filtermanager.New(s.dc.disp, s)
	m.SetLocalReplyEncoder(codec.NewResponseEncoder(s.dc.writer))
	m.SetHalfCloseEnabled(true)
	m.SetOnComplete(s.finish)
	s.manager = m

	var repHost *upstream.Host
	if matched {
		m.SetRoute(route, vhost)
		if tlc, ok := srv.GetThreadLocalCluster(route.ClusterName); ok {
			repHost, _ = pickRepresentativeHost(tlc)
		}
	}

	m.AddDecoderFilter(state.New())
	m.AddDecoderFilter(rewrite.New(repHost, false))
	rf := routerfilter.New(srv, srv.pools, s.dc.disp.Post, srv.stats)
	m.AddDecoderFilter(rf)
	rf.SetEncoderChain(m)

	m.DecodeHeaders(h, endStream)
}

// OnStreamReset implements filtermanager.ResetCallbacks.
func (s *stream) OnStreamReset(reason filtermanager.StreamResetReason, details string) {
	if s.dc.srv.log != nil {
		s.dc.srv.log.Warn("stream reset", "reason", reason, "details", details)
	}
	s.reset = true
	s.finish()
}

func (s *stream) finish() {
	s.once.Do(func() { close(s.done) })
}
