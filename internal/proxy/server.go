// Package proxy is the composition root: it owns the downstream listener,
// spins up one dispatcher per accepted connection, and wires each
// connection's requests through the state/rewrite/router filter chain.
// The shutdown shape (context-cancellation-driven GracefulStop) is
// generalized from the admin gRPC server's own shutdown shape, adapted
// from a single gRPC listener to a plain TCP accept loop.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wayfinder/wayfinder/internal/clustermanager"
	"github.com/wayfinder/wayfinder/internal/config"
	"github.com/wayfinder/wayfinder/internal/connpool"
	routerfilter "github.com/wayfinder/wayfinder/internal/filters/router"
	"github.com/wayfinder/wayfinder/internal/router"
	"github.com/wayfinder/wayfinder/internal/telemetry"
	"github.com/wayfinder/wayfinder/internal/upstream"
)

// Server is the downstream-facing half of the proxy: it accepts
// connections and, for each one, drives requests through a fresh filter
// chain per stream.
type Server struct {
	cfg   *config.Config
	cm    *clustermanager.Manager
	slot  *clustermanager.Slot
	pools *routerfilter.Pools
	stats telemetry.StatSink
	log   *slog.Logger
	rng   func() float64

	routeCfg atomic.Pointer[router.RouteConfig]

	mu       sync.Mutex
	listener net.Listener
	conns    map[*downstreamConn]struct{}
}

// New builds a Server backed by cm. The server allocates one
// clustermanager.Slot, shared by every connection it accepts. stats may be
// nil, defaulting to telemetry.NoopSink.
func New(cfg *config.Config, cm *clustermanager.Manager, stats telemetry.StatSink, log *slog.Logger) *Server {
	if stats == nil {
		stats = telemetry.NoopSink
	}
	s := &Server{
		cfg:   cfg,
		cm:    cm,
		slot:  cm.NewSlot(),
		pools: routerfilter.NewPools(connpool.NetDialer(cfg.DefaultConnectTimeout)),
		stats: stats,
		log:   log,
		rng:   rand.Float64,
		conns: make(map[*downstreamConn]struct{}),
	}
	s.routeCfg.Store(router.New())
	return s
}

// SetRouteConfig installs rc as the routing table used by every new
// request from this point on. Safe to call concurrently with requests in
// flight, per internal/configwatch's OnChange contract.
func (s *Server) SetRouteConfig(rc *router.RouteConfig) {
	s.routeCfg.Store(rc)
}

// Pools returns the server's connection-pool multiplexer, for wiring into
// internal/admin.Server.SetPoolDrainer.
func (s *Server) Pools() *routerfilter.Pools { return s.pools }

// GetThreadLocalCluster implements routerfilter.ClusterProvider against
// this server's own Slot.
func (s *Server) GetThreadLocalCluster(name string) (*clustermanager.ThreadLocalCluster, bool) {
	return s.cm.GetThreadLocalCluster(s.slot, name)
}

// ListenAndServe binds cfg.ListenAddr and accepts connections until ctx is
// canceled, then drains: new connections stop being accepted, in-flight
// ones get up to cfg.DrainTimeout to finish before being closed outright.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("proxy: listening on %s: %w", s.cfg.ListenAddr, err)
	}
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	if s.log != nil {
		s.log.Info("proxy listening", "addr", s.cfg.ListenAddr)
	}

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	var wg sync.WaitGroup
	for {
		raw, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if s.log != nil {
				s.log.Warn("accept error", "error", err)
			}
			continue
		}
		dc := s.newDownstreamConn(raw)
		s.trackConn(dc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.untrackConn(dc)
			dc.serve()
		}()
	}

	s.drain()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(s.cfg.DrainTimeout):
		if s.log != nil {
			s.log.Warn("drain timeout exceeded, closing remaining connections")
		}
		s.closeAll()
		<-done
	}
	return nil
}

func (s *Server) trackConn(dc *downstreamConn) {
	s.mu.Lock()
	s.conns[dc] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(dc *downstreamConn) {
	s.mu.Lock()
	delete(s.conns, dc)
	s.mu.Unlock()
}

func (s *Server) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for dc := range s.conns {
		dc.requestDrain()
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for dc := range s.conns {
		dc.forceClose()
	}
}

// pickRepresentativeHost returns the first host of tlc's default priority
// tier (or of the high tier when the default one is empty) for
// internal/filters/rewrite's fallback rewrite target. This is a cosmetic
// choice only — it does not consult the load balancer, and the host the
// router filter actually connects to is selected independently, per
// request, by the cluster's load balancer.
func pickRepresentativeHost(tlc *clustermanager.ThreadLocalCluster) (*upstream.Host, bool) {
	for _, p := range [...]upstream.Priority{upstream.PriorityDefault, upstream.PriorityHigh} {
		hs := tlc.Priority.HostSetAt(p)
		if hs == nil {
			continue
		}
		if hosts := hs.Hosts(); len(hosts) > 0 {
			return hosts[0], true
		}
	}
	return nil, false
}
