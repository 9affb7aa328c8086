package filtermanager

import (
	"github.com/wayfinder/wayfinder/internal/codec"
	"github.com/wayfinder/wayfinder/internal/router"
)

// activeDecoderFilter wraps one DecoderFilter with the manager-facing
// bookkeeping from activeFilterBase and implements DecoderFilterCallbacks
// so the wrapped filter can drive iteration, buffer data, or abort the
// stream from within its own callback (or later, asynchronously).
type activeDecoderFilter struct {
	activeFilterBase
	filter  DecoderFilter
	manager *Manager
	index   int
}

func (f *activeDecoderFilter) ContinueDecoding() {
	f.manager.continueDecoding(f.index)
}

func (f *activeDecoderFilter) AddDecodedData(data []byte, streaming bool) {
	f.bufferedData.Append(data)
}

func (f *activeDecoderFilter) InjectDecodedDataToFilterChain(data []byte, endStream bool) {
	f.manager.runDecodeDataFrom(f.index, data, endStream)
}

func (f *activeDecoderFilter) SendLocalReply(status int, body []byte, headers *codec.Headers) {
	f.manager.SendLocalReply(status, body, headers)
}

func (f *activeDecoderFilter) ResetStream(reason StreamResetReason, details string) {
	f.manager.ResetStream(reason, details)
}

func (f *activeDecoderFilter) StreamInfo() *StreamInfo {
	return f.manager.info
}

func (f *activeDecoderFilter) Route() *router.Route {
	f.manager.resolveRouteIfNeeded()
	return f.manager.route
}

func (f *activeDecoderFilter) VirtualHost() *router.VirtualHost {
	f.manager.resolveRouteIfNeeded()
	return f.manager.vhost
}

func (f *activeDecoderFilter) ReplaceDecodedData(data []byte) {
	f.replacementData = data
	f.hasReplacementData = true
}

// activeEncoderFilter is the encoder-side counterpart of
// activeDecoderFilter.
type activeEncoderFilter struct {
	activeFilterBase
	filter  EncoderFilter
	manager *Manager
	index   int
}

func (f *activeEncoderFilter) ContinueEncoding() {
	f.manager.continueEncoding(f.index)
}

func (f *activeEncoderFilter) AddEncodedData(data []byte, streaming bool) {
	f.bufferedData.Append(data)
}

func (f *activeEncoderFilter) InjectEncodedDataToFilterChain(data []byte, endStream bool) {
	f.manager.runEncodeDataFrom(f.index, data, endStream)
}

func (f *activeEncoderFilter) StreamInfo() *StreamInfo {
	return f.manager.info
}

func (f *activeEncoderFilter) ReplaceEncodedData(data []byte) {
	f.replacementData = data
	f.hasReplacementData = true
}
