// Package routerfilter implements the filter manager's terminal decoder
// filter: it reads the route the state filter (internal/filters/state)
// already resolved, picks a live upstream host through the cluster's
// load balancer, forwards the request over internal/connpool, and relays
// the response back through the encoder chain.
package routerfilter

import (
	"context"
	"net/http"
	"time"

	"github.com/wayfinder/wayfinder/internal/buffer"
	"github.com/wayfinder/wayfinder/internal/clustermanager"
	"github.com/wayfinder/wayfinder/internal/codec"
	"github.com/wayfinder/wayfinder/internal/connpool"
	"github.com/wayfinder/wayfinder/internal/filtermanager"
	"github.com/wayfinder/wayfinder/internal/telemetry"
	"github.com/wayfinder/wayfinder/internal/upstream"
	"go.opentelemetry.io/otel/trace"
)

// ClusterProvider looks up a cluster's thread-local view by name. It is
// the subset of clustermanager.Manager/Slot this filter needs, kept small
// so tests can fake it without standing up a whole cluster manager.
type ClusterProvider interface {
	GetThreadLocalCluster(name string) (*clustermanager.ThreadLocalCluster, bool)
}

// EncoderChain is the subset of *filtermanager.Manager the router filter
// needs to begin the encoder chain once an upstream response arrives.
// *filtermanager.Manager satisfies this interface as-is.
type EncoderChain interface {
	EncodeHeaders(headers *codec.Headers, endStream bool)
	EncodeData(data []byte, endStream bool)
	EncodeTrailers(trailers *codec.Headers)
}

// Filter is the terminal DecoderFilter: no other decoder filter runs
// after it, and it never calls ContinueDecoding itself — the request
// either ends in a local reply (no route, no healthy host, pool failure)
// or in a relayed upstream response.
type Filter struct {
	cb       filtermanager.DecoderFilterCallbacks
	encoders EncoderChain
	clusters ClusterProvider
	pools    *Pools
	stats    telemetry.StatSink
	post     func(func())

	headers  *codec.Headers
	body     *buffer.Buffer
	trailers *codec.Headers

	clusterName string
	host        *upstream.Host
	pool        *connpool.HTTPPool

	dialStart time.Time
	spanCtx   context.Context
	span      trace.Span
}

// New returns a router Filter. post schedules a function to run on the
// dispatcher goroutine that owns this stream's filter manager; pass
// (*dispatcher.Dispatcher).Post, or a synchronous func(fn){fn()} in tests
// that don't need cross-goroutine safety. stats may be nil, defaulting to
// telemetry.NoopSink.
func New(clusters ClusterProvider, pools *Pools, post func(func()), stats telemetry.StatSink) *Filter {
	if stats == nil {
		stats = telemetry.NoopSink
	}
	return &Filter{
		clusters: clusters,
		pools:    pools,
		post:     post,
		stats:    stats,
		body:     buffer.New(),
	}
}

// SetEncoderChain wires the filter manager the response should be
// encoded back through. Must be called before the stream's first
// DecodeHeaders.
func (f *Filter) SetEncoderChain(ec EncoderChain) { f.encoders = ec }

func (f *Filter) SetDecoderFilterCallbacks(cb filtermanager.DecoderFilterCallbacks) {
	f.cb = cb
}

// DecodeHeaders resolves the route into a host and starts acquiring an
// upstream connection. It always returns StopIteration: being the last
// filter in the chain this has no effect on iteration, but it documents
// that nothing downstream will run synchronously after this call.
func (f *Filter) DecodeHeaders(headers *codec.Headers, endStream bool) filtermanager.IterationState {
	f.headers = headers.Clone()
	f.spanCtx, f.span = telemetry.StartStreamSpan(context.Background(), f.cb.StreamInfo().ID)

	route := f.cb.Route()
	if route == nil {
		f.stats.IncRouteMiss()
		f.endSpan()
		f.cb.SendLocalReply(http.StatusNotFound, []byte("no route matched\n"), nil)
		return filtermanager.StopIteration
	}
	f.clusterName = route.ClusterName
	f.stats.IncRouteMatch(f.clusterName)

	tlc, ok := f.clusters.GetThreadLocalCluster(f.clusterName)
	if !ok {
		f.endSpan()
		f.cb.SendLocalReply(http.StatusServiceUnavailable, []byte("unknown cluster\n"), nil)
		return filtermanager.StopIteration
	}

	host, ok := pickHost(tlc)
	if !ok {
		f.stats.IncConnectionFailure(f.clusterName)
		f.endSpan()
		f.cb.SendLocalReply(http.StatusServiceUnavailable, []byte("no healthy upstream\n"), nil)
		return filtermanager.StopIteration
	}
	if !host.TryAcquireConnection() {
		f.stats.IncOverflow(f.clusterName)
		f.endSpan()
		f.cb.SendLocalReply(http.StatusServiceUnavailable, []byte("upstream connection limit reached\n"), nil)
		return filtermanager.StopIteration
	}
	f.host = host
	f.cb.StreamInfo().SetUpstreamHost(host)
	f.pool = f.pools.poolFor(host, tlc.Info)

	if endStream {
		f.startUpstreamRequest()
	}
	return filtermanager.StopIteration
}

// pickHost tries the default priority tier first, falling back to the
// high-priority tier only when the default tier has no hosts at all.
func pickHost(tlc *clustermanager.ThreadLocalCluster) (*upstream.Host, bool) {
	for _, p := range [...]upstream.Priority{upstream.PriorityDefault, upstream.PriorityHigh} {
		hs := tlc.Priority.HostSetAt(p)
		if hs == nil {
			continue
		}
		if host, ok := tlc.Selector.Pick(hs); ok {
			return host, true
		}
	}
	return nil, false
}

func (f *Filter) DecodeData(data []byte, endStream bool) filtermanager.IterationState {
	if f.host == nil {
		return filtermanager.Continue // local reply already sent
	}
	f.body.Append(data)
	if endStream {
		f.startUpstreamRequest()
	}
	return filtermanager.StopIteration
}

func (f *Filter) DecodeTrailers(trailers *codec.Headers) filtermanager.IterationState {
	if f.host == nil {
		return filtermanager.Continue
	}
	f.trailers = trailers
	f.startUpstreamRequest()
	return filtermanager.StopIteration
}

// startUpstreamRequest asks the pool for a client. OnPoolReady/
// OnPoolFailure below complete the cycle, possibly from the pool's own
// dial goroutine.
func (f *Filter) startUpstreamRequest() {
	f.dialStart = time.Now()
	f.pool.NewStream(noopDecoder{}, f)
}

// OnPoolReady implements connpool.StreamCallbacks. It may run on the
// pool's dial goroutine, so it defers the actual work onto the stream's
// owning dispatcher via post.
func (f *Filter) OnPoolReady(pr *connpool.PooledRequest, host *upstream.Host) {
	telemetry.RecordConnectDuration(f.spanCtx, f.clusterName, time.Since(f.dialStart))
	f.post(func() { f.sendRequest(pr, host) })
}

// OnPoolFailure implements connpool.StreamCallbacks.
func (f *Filter) OnPoolFailure(reason connpool.FailureReason, details string, host *upstream.Host) {
	f.post(func() { f.failUpstream(reason, details, host) })
}

func (f *Filter) sendRequest(pr *connpool.PooledRequest, host *upstream.Host) {
	hdrs := f.headers.Clone()
	if hdrs.Get("Host") == "" && hdrs.Authority != "" {
		hdrs.Set("Host", hdrs.Authority)
	}
	body := f.body.Bytes()
	hasBody := len(body) > 0
	hasTrailers := f.trailers != nil && len(f.trailers.Fields) > 0

	enc := pr.RequestEncoder()
	if err := enc.EncodeHeaders(hdrs, !hasBody && !hasTrailers); err != nil {
		f.failUpstream(connpool.LocalConnectionFailure, err.Error(), host)
		return
	}
	if hasBody {
		f.cb.StreamInfo().AddBytesSent(len(body))
		if err := enc.EncodeData(body, !hasTrailers); err != nil {
			f.failUpstream(connpool.LocalConnectionFailure, err.Error(), host)
			return
		}
	}
	if hasTrailers {
		if err := enc.EncodeTrailers(f.trailers); err != nil {
			f.failUpstream(connpool.LocalConnectionFailure, err.Error(), host)
			return
		}
	}

	go f.readResponse(pr, host)
}

// readResponse blocks on the upstream connection's response, so it runs
// off the dispatcher goroutine; every callback it drives posts back onto
// the dispatcher before touching filter-manager state.
func (f *Filter) readResponse(pr *connpool.PooledRequest, host *upstream.Host) {
	method := f.headers.Method
	relay := &responseRelay{f: f}
	err := pr.ReadResponse(method, relay)
	host.ReleaseConnection()
	if err != nil {
		f.post(func() {
			f.endSpan()
			f.cb.ResetStream(filtermanager.ResetConnectionTermination, err.Error())
		})
	}
}

func (f *Filter) failUpstream(reason connpool.FailureReason, details string, host *upstream.Host) {
	if host != nil {
		host.ReleaseConnection()
	}
	f.stats.IncConnectionFailure(f.clusterName)
	f.endSpan()
	status := http.StatusBadGateway
	if reason == connpool.Overflow {
		status = http.StatusServiceUnavailable
	}
	f.cb.SendLocalReply(status, []byte("upstream error: "+details+"\n"), nil)
}

func (f *Filter) endSpan() {
	if f.span != nil {
		f.span.End()
		f.span = nil
	}
}

// responseRelay adapts the upstream response codec's Decoder callbacks
// into the downstream encoder chain, crossing back onto the dispatcher
// goroutine for every call since it runs on readResponse's goroutine.
type responseRelay struct {
	f *Filter
}

func (r *responseRelay) DecodeHeaders(h *codec.Headers, endStream bool) {
	r.f.post(func() {
		r.f.cb.StreamInfo().SetResponseCode(h.Status)
		r.f.encoders.EncodeHeaders(h, endStream)
		if endStream {
			r.f.endSpan()
		}
	})
}

func (r *responseRelay) DecodeData(data []byte, endStream bool) {
	r.f.post(func() {
		r.f.cb.StreamInfo().AddBytesReceived(len(data))
		r.f.encoders.EncodeData(data, endStream)
		if endStream {
			r.f.endSpan()
		}
	})
}

func (r *responseRelay) DecodeTrailers(trailers *codec.Headers) {
	r.f.post(func() {
		r.f.encoders.EncodeTrailers(trailers)
		r.f.endSpan()
	})
}

// noopDecoder satisfies connpool.HTTPPool.NewStream's decoder parameter,
// which the pool only retains for a connecting client and never invokes
// itself — response bytes are read explicitly via PooledRequest.
// ReadResponse instead.
type noopDecoder struct{}

func (noopDecoder) DecodeHeaders(*codec.Headers, bool) {}
func (noopDecoder) DecodeData([]byte, bool)            {}
func (noopDecoder) DecodeTrailers(*codec.Headers)      {}
