package codec

import "errors"

// Decoder is the callback sink a codec dispatches parsed message events
// to, mirroring the decoder-side filter contract at the filter manager
// boundary (the filter manager's first decoder filter implements this).
type Decoder interface {
	DecodeHeaders(h *Headers, endStream bool)
	DecodeData(data []byte, endStream bool)
	DecodeTrailers(trailers *Headers)
}

// Encoder emits a message (headers, body, optional trailers) onto the
// wire. Both the downstream server codec (writing a response) and the
// upstream client codec (writing a request) implement it.
type Encoder interface {
	EncodeHeaders(h *Headers, endStream bool) error
	EncodeData(data []byte, endStream bool) error
	EncodeTrailers(trailers *Headers) error
}

// Error kinds in the codec's error taxonomy.
var (
	// ErrProtocol is CodecProtocolError: malformed HTTP, terminal for the
	// stream.
	ErrProtocol = errors.New("codec: protocol error")
	// ErrPrematureResponse is PrematureResponseError: the body ended
	// before Content-Length was satisfied.
	ErrPrematureResponse = errors.New("codec: premature response")
	// ErrOutOfOrder is CodecClientError: a codec call arrived out of
	// order (e.g. data before headers).
	ErrOutOfOrder = errors.New("codec: out-of-order call")
)
