// Package filtermanager implements the decoder/encoder filter chain
// iteration algorithm: ordered filter wrappers, pausable
// iteration, watermark-gated buffering, sendLocalReply, half-close, and
// stream reset.
package filtermanager

import (
	"github.com/wayfinder/wayfinder/internal/buffer"
	"github.com/wayfinder/wayfinder/internal/codec"
	"github.com/wayfinder/wayfinder/internal/router"
)

// IterationState is a decoder/encoder filter's return value, selecting how
// the manager proceeds to the next filter.
type IterationState int

const (
	// Continue lets iteration proceed to the next filter immediately.
	Continue IterationState = iota
	// StopIteration pauses iteration after this filter; a later
	// ContinueDecoding/ContinueEncoding call resumes at the next filter.
	StopIteration
	// StopAllIterationAndBuffer pauses iteration and buffers any
	// subsequent data/trailers on this filter until resumed.
	StopAllIterationAndBuffer
	// StopAllIterationAndWatermark is StopAllIterationAndBuffer plus
	// opting the buffered data into watermark accounting.
	StopAllIterationAndWatermark
	// ContinueAndDontEndStream continues iteration but suppresses the
	// end-of-stream flag from propagating to later filters.
	ContinueAndDontEndStream
)

func (s IterationState) stopsAll() bool {
	return s == StopAllIterationAndBuffer || s == StopAllIterationAndWatermark
}

func (s IterationState) pauses() bool {
	return s == StopIteration || s.stopsAll()
}

// FilterCallState is a bitset recording which callback is currently
// executing on a filter. ContinueDecoding/ContinueEncoding consult it to
// detect a reentrant call and defer it.
type FilterCallState uint32

const (
	CallStateDecodeHeaders FilterCallState = 1 << iota
	CallStateDecodeData
	CallStateDecodeTrailers
	CallStateEncodeHeaders
	CallStateEncodeData
	CallStateEncodeTrailers
	CallStateEndOfStream
)

// StreamResetReason identifies why a stream was aborted mid-flight.
type StreamResetReason int

const (
	ResetLocalReset StreamResetReason = iota
	ResetConnectionTermination
	ResetConnectionFailure
	ResetOverflow
)

// DecoderFilter processes the downstream request as it flows toward the
// upstream (router is the terminal decoder filter).
type DecoderFilter interface {
	DecodeHeaders(headers *codec.Headers, endStream bool) IterationState
	DecodeData(data []byte, endStream bool) IterationState
	DecodeTrailers(trailers *codec.Headers) IterationState
	SetDecoderFilterCallbacks(cb DecoderFilterCallbacks)
}

// EncoderFilter processes the upstream response as it flows back toward
// the downstream client.
type EncoderFilter interface {
	EncodeHeaders(headers *codec.Headers, endStream bool) IterationState
	EncodeData(data []byte, endStream bool) IterationState
	EncodeTrailers(trailers *codec.Headers) IterationState
	SetEncoderFilterCallbacks(cb EncoderFilterCallbacks)
}

// DecoderFilterCallbacks is the manager-provided handle a DecoderFilter
// uses to affect iteration from within or after its own callback.
type DecoderFilterCallbacks interface {
	ContinueDecoding()
	AddDecodedData(data []byte, streaming bool)
	InjectDecodedDataToFilterChain(data []byte, endStream bool)
	SendLocalReply(status int, body []byte, headers *codec.Headers)
	ResetStream(reason StreamResetReason, details string)
	StreamInfo() *StreamInfo

	// Route and VirtualHost return the route resolved by the state filter
	// (which runs first in the decoder chain and publishes the route
	// ahead of the terminal router filter), or nil if routing hasn't
	// happened yet.
	Route() *router.Route
	VirtualHost() *router.VirtualHost

	// ReplaceDecodedData substitutes data for the remainder of the current
	// DecodeData pass: later filters in this same call see the
	// replacement instead of the original bytes. Used by filters that
	// transform the body (e.g. request-rewrite) rather than just observe
	// it.
	ReplaceDecodedData(data []byte)
}

// EncoderFilterCallbacks is the encoder-side analogue of
// DecoderFilterCallbacks.
type EncoderFilterCallbacks interface {
	ContinueEncoding()
	AddEncodedData(data []byte, streaming bool)
	InjectEncodedDataToFilterChain(data []byte, endStream bool)
	StreamInfo() *StreamInfo

	// ReplaceEncodedData is the encoder-side analogue of
	// DecoderFilterCallbacks.ReplaceDecodedData.
	ReplaceEncodedData(data []byte)
}

// WatermarkCallbacks mirrors internal/connection's callback shape for
// filters that need to react to buffer pressure.
type WatermarkCallbacks interface {
	OnDecoderFilterAboveWriteBufferHighWatermark()
	OnDecoderFilterBelowWriteBufferLowWatermark()
}

// activeFilterBase holds the bookkeeping fields shared by every
// filter wrapper, shared between the decoder and encoder wrapper types.
type activeFilterBase struct {
	iterationState    IterationState
	endStream         bool
	processedHeaders  bool
	decodeComplete    bool
	bufferedData      *buffer.Buffer
	watermarkBuffered bool

	// replacementData/hasReplacementData implement ReplaceDecodedData/
	// ReplaceEncodedData: set during a filter's own Decode/EncodeData
	// call, consumed by the manager's loop immediately after that call
	// returns so later filters in the same pass see the replacement.
	replacementData    []byte
	hasReplacementData bool
}

func newActiveFilterBase() activeFilterBase {
	return activeFilterBase{bufferedData: buffer.New()}
}

// canIterate reports whether later phases (decodeData/decodeTrailers) may
// still reach this filter directly. Only the StopAllIteration* outcomes
// suppress that and redirect arriving data into bufferedData — a plain
// StopIteration only paused the headers pass and doesn't block data from
// reaching this same filter.
func (b *activeFilterBase) canIterate() bool {
	return !b.iterationState.stopsAll()
}
