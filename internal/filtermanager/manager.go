package filtermanager

import (
	"strconv"

	"github.com/wayfinder/wayfinder/internal/codec"
	"github.com/wayfinder/wayfinder/internal/dispatcher"
	"github.com/wayfinder/wayfinder/internal/router"
)

// ResetCallbacks is notified when a filter aborts the stream mid-flight,
// so whatever owns the codec/connection can propagate the reset.
type ResetCallbacks interface {
	OnStreamReset(reason StreamResetReason, details string)
}

// Manager runs the decoder/encoder filter chains for one stream. It is
// single-threaded: every method must be called from the
// stream's owning dispatcher goroutine. A ContinueDecoding/
// ContinueEncoding made while a filter callback is still executing is
// posted to the dispatcher (when one is set) instead of re-entering the
// iteration it was called from.
type Manager struct {
	dispatcher *dispatcher.Dispatcher
	reset      ResetCallbacks

	decoderFilters []*activeDecoderFilter
	encoderFilters []*activeEncoderFilter

	decoderFilterChainAborted  bool
	decoderFilterChainComplete bool
	encoderFilterChainComplete bool
	underOnLocalReply          bool
	halfCloseEnabled           bool

	// callState marks which filter callback is currently executing on this
	// goroutine. ContinueDecoding/ContinueEncoding consult it to tell a
	// same-stack reentrant call (callState != 0) from one arriving later
	// off some other goroutine or timer: the former must be deferred via
	// Post rather than recursing back into the iteration it was called from.
	callState FilterCallState

	// pausedDecoderAt/pausedEncoderAt hold the index iteration stopped at,
	// or -1 if the chain is not currently paused.
	pausedDecoderAt int
	pausedEncoderAt int

	highWatermarkCount int32
	watermarkCBs       []WatermarkCallbacks
	watermarkNotified  map[WatermarkCallbacks]int32

	localReplyEncoder codec.Encoder
	info              *StreamInfo
	onComplete        func()
	completeFired     bool

	// decoderHeaders/encoderHeaders hold the in-flight header block so a
	// resumed iteration (continueDecoding/continueEncoding) can hand later
	// filters the same object the earlier filters saw.
	decoderHeaders *codec.Headers
	encoderHeaders *codec.Headers

	// route/vhost hold the result of routing once the state filter (first
	// in the decoder chain) has resolved it, so filters running ahead of
	// the terminal router filter can still read it.
	route *router.Route
	vhost *router.VirtualHost

	// routeConfig/random back the lazy route resolution any decoder filter
	// can trigger by calling Route/VirtualHost before the state filter has
	// run, so the accessor resolves on first touch rather than requiring a
	// dedicated router pass first.
	routeConfig *router.RouteConfig
	random      func() float64
	routeTried  bool
}

// New builds an empty Manager. d may be nil, in which case
// ContinueDecoding/ContinueEncoding run synchronously instead of being
// posted (used by tests that don't need a live dispatcher).
func New(d *dispatcher.Dispatcher, reset ResetCallbacks) *Manager {
	return &Manager{
		dispatcher:        d,
		reset:             reset,
		pausedDecoderAt:   -1,
		pausedEncoderAt:   -1,
		watermarkNotified: make(map[WatermarkCallbacks]int32),
		info:              NewStreamInfo(),
	}
}

// StreamInfo returns the manager's accumulating per-request bookkeeping.
func (m *Manager) StreamInfo() *StreamInfo { return m.info }

// SetRoute records the route the state filter resolved, so later calls to
// Route/VirtualHost (from any filter, regardless of position) see it.
func (m *Manager) SetRoute(route *router.Route, vhost *router.VirtualHost) {
	m.route = route
	m.vhost = vhost
	m.routeTried = true
}

// SetRouteConfig installs the routing table and tie-break source used to
// resolve the route lazily on first access, for filters that read Route
// before the state filter runs.
func (m *Manager) SetRouteConfig(cfg *router.RouteConfig, random func() float64) {
	m.routeConfig = cfg
	m.random = random
}

func (m *Manager) resolveRouteIfNeeded() {
	if m.routeTried || m.routeConfig == nil || m.decoderHeaders == nil {
		return
	}
	m.routeTried = true
	route, vhost, _ := m.routeConfig.Route(m.decoderHeaders, m.random)
	m.route = route
	m.vhost = vhost
}

// Route returns the resolved route, resolving it lazily if needed and
// possible, or nil if routing hasn't run and can't yet.
func (m *Manager) Route() *router.Route {
	m.resolveRouteIfNeeded()
	return m.route
}

// VirtualHost returns the resolved route's virtual host, or nil.
func (m *Manager) VirtualHost() *router.VirtualHost {
	m.resolveRouteIfNeeded()
	return m.vhost
}

// SetHalfCloseEnabled toggles half-close behavior: when enabled, the
// stream is only considered fully complete once both the decoder and the
// encoder chain have ended, rather than as soon as either one does.
func (m *Manager) SetHalfCloseEnabled(v bool) { m.halfCloseEnabled = v }

// SetOnComplete installs fn to run once the stream is done: immediately
// when either chain completes if half-close is disabled, or once both
// chains have completed if it is enabled.
func (m *Manager) SetOnComplete(fn func()) { m.onComplete = fn }

// SetLocalReplyEncoder installs the encoder sendLocalReply writes through
// when no encoder filter has emitted response headers yet.
func (m *Manager) SetLocalReplyEncoder(enc codec.Encoder) { m.localReplyEncoder = enc }

// AddDecoderFilter appends f to the decoder chain.
func (m *Manager) AddDecoderFilter(f DecoderFilter) {
	af := &activeDecoderFilter{activeFilterBase: newActiveFilterBase(), filter: f, manager: m, index: len(m.decoderFilters)}
	m.decoderFilters = append(m.decoderFilters, af)
	f.SetDecoderFilterCallbacks(af)
}

// AddEncoderFilter appends f to the encoder chain.
func (m *Manager) AddEncoderFilter(f EncoderFilter) {
	af := &activeEncoderFilter{activeFilterBase: newActiveFilterBase(), filter: f, manager: m, index: len(m.encoderFilters)}
	m.encoderFilters = append(m.encoderFilters, af)
	f.SetEncoderFilterCallbacks(af)
}

// ---- decode path ----

// DecodeHeaders begins the decoder chain at entry 0. A call arriving
// after the chain has already completed or aborted is a no-op.
func (m *Manager) DecodeHeaders(headers *codec.Headers, endStream bool) {
	if m.decoderFilterChainAborted || m.decoderFilterChainComplete {
		return
	}
	m.decoderHeaders = headers
	m.runDecodeHeadersFrom(0, headers, endStream)
}

func (m *Manager) runDecodeHeadersFrom(start int, headers *codec.Headers, endStream bool) {
	if headers == nil {
		headers = m.decoderHeaders
	}
	for i := start; i < len(m.decoderFilters); i++ {
		f := m.decoderFilters[i]
		if f.decodeComplete {
			continue
		}
		f.endStream = endStream
		f.processedHeaders = true
		m.callState = CallStateDecodeHeaders
		state := f.filter.DecodeHeaders(headers, f.endStream)
		m.callState = 0

		if m.decoderFilterChainAborted {
			m.pausedDecoderAt = -1
			return
		}

		f.iterationState = state
		if state != ContinueAndDontEndStream && f.endStream {
			f.decodeComplete = true
		}

		if state.pauses() {
			if i != len(m.decoderFilters)-1 {
				m.pausedDecoderAt = i
				return
			}
		}
	}
	m.pausedDecoderAt = -1
	if endStream {
		m.maybeEndDecode(true)
	}
}

// DecodeData feeds a body chunk into the decoder chain, starting from
// whichever filter last paused iteration (or entry 0 if none has).
func (m *Manager) DecodeData(data []byte, endStream bool) {
	if m.decoderFilterChainAborted || m.decoderFilterChainComplete {
		return
	}
	start := 0
	if m.pausedDecoderAt >= 0 {
		start = m.pausedDecoderAt
	}
	m.runDecodeDataFrom(start, data, endStream)
}

func (m *Manager) runDecodeDataFrom(start int, data []byte, endStream bool) {
	for i := start; i < len(m.decoderFilters); i++ {
		f := m.decoderFilters[i]
		if f.decodeComplete {
			continue
		}
		if !f.canIterate() {
			f.bufferedData.Append(data)
			if f.iterationState == StopAllIterationAndWatermark {
				f.watermarkBuffered = true
				m.maybeCallHighWatermark(f.bufferedData.Len())
			}
			m.pausedDecoderAt = i
			return
		}

		m.callState = CallStateDecodeData
		state := f.filter.DecodeData(data, endStream)
		m.callState = 0
		if f.hasReplacementData {
			data = f.replacementData
			f.replacementData = nil
			f.hasReplacementData = false
		}
		if m.decoderFilterChainAborted {
			m.pausedDecoderAt = -1
			return
		}
		f.iterationState = state
		if endStream {
			f.decodeComplete = true
		}
		if state.pauses() {
			if i != len(m.decoderFilters)-1 {
				m.pausedDecoderAt = i
				return
			}
		}
	}
	m.pausedDecoderAt = -1
	if endStream {
		m.maybeEndDecode(true)
	}
}

// DecodeTrailers is the trailers-phase counterpart, symmetric with
// DecodeData but always end-of-stream.
func (m *Manager) DecodeTrailers(trailers *codec.Headers) {
	if m.decoderFilterChainAborted || m.decoderFilterChainComplete {
		return
	}
	start := 0
	if m.pausedDecoderAt >= 0 {
		start = m.pausedDecoderAt
	}
	for i := start; i < len(m.decoderFilters); i++ {
		f := m.decoderFilters[i]
		if f.decodeComplete || !f.canIterate() {
			continue
		}
		m.callState = CallStateDecodeTrailers
		state := f.filter.DecodeTrailers(trailers)
		m.callState = 0
		if m.decoderFilterChainAborted {
			return
		}
		f.iterationState = state
		f.decodeComplete = true
		if state.pauses() && i != len(m.decoderFilters)-1 {
			m.pausedDecoderAt = i
			return
		}
	}
	m.pausedDecoderAt = -1
	m.maybeEndDecode(true)
}

// maybeEndDecode is idempotent once the chain is already marked complete.
func (m *Manager) maybeEndDecode(endStream bool) {
	if !endStream || m.decoderFilterChainComplete {
		return
	}
	m.decoderFilterChainComplete = true
	m.maybeFireComplete()
}

// continueDecoding implements the filter-initiated resume: allow
// iteration; if stoppedAll was set, resume from this filter and feed it
// buffered data then trailers; else resume after this filter.
func (m *Manager) continueDecoding(idx int) {
	if m.dispatcher != nil && m.callState != 0 {
		m.dispatcher.Post(func() { m.doContinueDecoding(idx) })
		return
	}
	m.doContinueDecoding(idx)
}

func (m *Manager) doContinueDecoding(idx int) {
	if idx < 0 || idx >= len(m.decoderFilters) {
		return
	}
	f := m.decoderFilters[idx]
	wasStoppedAll := f.iterationState.stopsAll()
	f.iterationState = Continue

	if wasStoppedAll && f.bufferedData.Len() > 0 {
		buffered := f.bufferedData.Bytes()
		f.bufferedData.Reset()
		if f.watermarkBuffered {
			m.maybeCallLowWatermark(len(buffered))
			f.watermarkBuffered = false
		}
		m.runDecodeDataFrom(idx, buffered, f.endStream)
		return
	}

	m.runDecodeHeadersFrom(idx+1, nil, f.endStream)
}

// ---- encode path ----

// EncodeHeaders begins the encoder chain at entry 0.
func (m *Manager) EncodeHeaders(headers *codec.Headers, endStream bool) {
	if m.encoderFilterChainComplete {
		return
	}
	m.encoderHeaders = headers
	m.runEncodeHeadersFrom(0, headers, endStream)
}

func (m *Manager) runEncodeHeadersFrom(start int, headers *codec.Headers, endStream bool) {
	if headers == nil {
		headers = m.encoderHeaders
	}
	for i := start; i < len(m.encoderFilters); i++ {
		f := m.encoderFilters[i]
		if f.decodeComplete {
			continue
		}
		f.endStream = endStream
		f.processedHeaders = true
		m.callState = CallStateEncodeHeaders
		state := f.filter.EncodeHeaders(headers, f.endStream)
		m.callState = 0
		f.iterationState = state
		if f.endStream {
			f.decodeComplete = true
		}
		if state.pauses() && i != len(m.encoderFilters)-1 {
			m.pausedEncoderAt = i
			return
		}
	}
	m.pausedEncoderAt = -1
	if m.localReplyEncoder != nil {
		_ = m.localReplyEncoder.EncodeHeaders(headers, endStream)
	}
	if endStream {
		m.maybeEndEncode(true)
	}
}

// EncodeData feeds a response body chunk into the encoder chain.
func (m *Manager) EncodeData(data []byte, endStream bool) {
	if m.encoderFilterChainComplete {
		return
	}
	start := 0
	if m.pausedEncoderAt >= 0 {
		start = m.pausedEncoderAt
	}
	m.runEncodeDataFrom(start, data, endStream)
}

func (m *Manager) runEncodeDataFrom(start int, data []byte, endStream bool) {
	for i := start; i < len(m.encoderFilters); i++ {
		f := m.encoderFilters[i]
		if f.decodeComplete || !f.canIterate() {
			f.bufferedData.Append(data)
			m.pausedEncoderAt = i
			return
		}
		m.callState = CallStateEncodeData
		state := f.filter.EncodeData(data, endStream)
		m.callState = 0
		if f.hasReplacementData {
			data = f.replacementData
			f.replacementData = nil
			f.hasReplacementData = false
		}
		f.iterationState = state
		if endStream {
			f.decodeComplete = true
		}
		if state.pauses() && i != len(m.encoderFilters)-1 {
			m.pausedEncoderAt = i
			return
		}
	}
	m.pausedEncoderAt = -1
	if m.localReplyEncoder != nil {
		_ = m.localReplyEncoder.EncodeData(data, endStream)
	}
	if endStream {
		m.maybeEndEncode(true)
	}
}

// EncodeTrailers is the trailers-phase counterpart.
func (m *Manager) EncodeTrailers(trailers *codec.Headers) {
	if m.encoderFilterChainComplete {
		return
	}
	for _, f := range m.encoderFilters {
		if f.decodeComplete || !f.canIterate() {
			continue
		}
		m.callState = CallStateEncodeTrailers
		_ = f.filter.EncodeTrailers(trailers)
		m.callState = 0
		f.decodeComplete = true
	}
	if m.localReplyEncoder != nil {
		_ = m.localReplyEncoder.EncodeTrailers(trailers)
	}
	m.maybeEndEncode(true)
}

func (m *Manager) maybeEndEncode(endStream bool) {
	if !endStream || m.encoderFilterChainComplete {
		return
	}
	m.encoderFilterChainComplete = true
	m.maybeFireComplete()
}

// maybeFireComplete runs onComplete once the stream has finished both
// directions it needs to: with half-close enabled, both chains; without
// it, either one (the first to finish fires it).
func (m *Manager) maybeFireComplete() {
	if m.onComplete == nil || m.completeFired {
		return
	}
	if m.halfCloseEnabled && !(m.decoderFilterChainComplete && m.encoderFilterChainComplete) {
		return
	}
	m.completeFired = true
	m.onComplete()
}

func (m *Manager) continueEncoding(idx int) {
	if m.dispatcher != nil && m.callState != 0 {
		m.dispatcher.Post(func() { m.doContinueEncoding(idx) })
		return
	}
	m.doContinueEncoding(idx)
}

func (m *Manager) doContinueEncoding(idx int) {
	if idx < 0 || idx >= len(m.encoderFilters) {
		return
	}
	f := m.encoderFilters[idx]
	wasStoppedAll := f.iterationState.stopsAll()
	f.iterationState = Continue

	if wasStoppedAll && f.bufferedData.Len() > 0 {
		buffered := f.bufferedData.Bytes()
		f.bufferedData.Reset()
		m.runEncodeDataFrom(idx, buffered, f.endStream)
		return
	}

	m.runEncodeHeadersFrom(idx+1, nil, f.endStream)
}

// ---- sendLocalReply / reset / half-close ----

// SendLocalReply synthesizes a response locally, aborting the decoder
// chain once it has been sent.
func (m *Manager) SendLocalReply(status int, body []byte, headers *codec.Headers) {
	if m.decoderFilterChainAborted {
		return
	}
	if headers == nil {
		headers = codec.NewHeaders()
	}
	headers.Status = status
	if headers.Get("Content-Type") == "" && len(body) > 0 {
		headers.Set("Content-Type", "text/plain; charset=utf-8")
	}
	headers.Set("Content-Length", strconv.Itoa(len(body)))
	headers.Set("Server", "wayfinder")

	if m.encoderFilterChainComplete {
		m.ResetStream(ResetLocalReset, "local reply after headers already sent")
		return
	}

	m.underOnLocalReply = true
	m.info.SetResponseCode(status)
	m.EncodeHeaders(headers, len(body) == 0)
	if len(body) > 0 {
		m.EncodeData(body, true)
	}
	m.underOnLocalReply = false
	m.decoderFilterChainAborted = true
}

// ResetStream aborts the stream and notifies whatever owns the
// connection so it can tear down the underlying transport.
func (m *Manager) ResetStream(reason StreamResetReason, details string) {
	m.decoderFilterChainAborted = true
	if m.reset != nil {
		m.reset.OnStreamReset(reason, details)
	}
}

// ---- watermarks ----

// AddWatermarkCallbacks registers cb, immediately catching it up to the
// manager's current watermark count: late registrants are notified N
// times to catch up.
func (m *Manager) AddWatermarkCallbacks(cb WatermarkCallbacks) {
	m.watermarkCBs = append(m.watermarkCBs, cb)
	for n := int32(0); n < m.highWatermarkCount; n++ {
		cb.OnDecoderFilterAboveWriteBufferHighWatermark()
	}
	m.watermarkNotified[cb] = m.highWatermarkCount
}

// maybeCallHighWatermark increments the shared watermark counter and
// notifies every registered callback. The byte count itself only governs
// whether the caller crossed the threshold; the manager doesn't track a
// configurable limit, it mirrors whatever the caller already decided.
func (m *Manager) maybeCallHighWatermark(bufferedBytes int) {
	m.highWatermarkCount++
	for _, cb := range m.watermarkCBs {
		cb.OnDecoderFilterAboveWriteBufferHighWatermark()
	}
}

// maybeCallLowWatermark decrements the shared counter and notifies every
// registered callback once it drops.
func (m *Manager) maybeCallLowWatermark(drainedBytes int) {
	if m.highWatermarkCount == 0 {
		return
	}
	m.highWatermarkCount--
	for _, cb := range m.watermarkCBs {
		cb.OnDecoderFilterBelowWriteBufferLowWatermark()
	}
}
