package codec

import (
	"bufio"
	"fmt"
	"sort"
)

// framing decides, once at EncodeHeaders time, how the body will be
// framed on the wire: by Content-Length if the caller already set one;
// otherwise a message that ends with its headers gets Content-Length: 0
// and any other is chunked (matching the framing rule "Content-Length: N -> exactly N
// bytes", "Transfer-Encoding: chunked -> read chunks until 0-length").
type framing int

const (
	framingNone framing = iota
	framingContentLength
	framingChunked
)

// ResponseEncoder writes an HTTP/1.1 response (status line, headers,
// body, optional trailers) onto a bufio.Writer incrementally, so the
// filter manager can stream data through as it is produced rather than
// buffering a whole response first.
type ResponseEncoder struct {
	w           *bufio.Writer
	wroteHeader bool
	framing     framing
	closed      bool
}

// NewResponseEncoder wraps w.
func NewResponseEncoder(w *bufio.Writer) *ResponseEncoder {
	return &ResponseEncoder{w: w}
}

// EncodeHeaders writes the status line and header block.
func (e *ResponseEncoder) EncodeHeaders(h *Headers, endStream bool) error {
	if e.wroteHeader {
		return fmt.Errorf("%w: headers already written", ErrOutOfOrder)
	}
	e.wroteHeader = true

	status := h.Status
	if status == 0 {
		status = 200
	}
	if _, err := fmt.Fprintf(e.w, "HTTP/1.1 %d %s\r\n", status, statusText(status)); err != nil {
		return err
	}

	if h.Get("Content-Length") != "" {
		e.framing = framingContentLength
	} else if !endStream {
		e.framing = framingChunked
		h.Set("Transfer-Encoding", "chunked")
	} else {
		h.Set("Content-Length", "0")
		e.framing = framingContentLength
	}

	if err := writeHeaderBlock(e.w, h.Fields); err != nil {
		return err
	}
	if endStream {
		e.closed = true
		return e.w.Flush()
	}
	return e.w.Flush()
}

// EncodeData writes a body chunk, framing it per the mode chosen in
// EncodeHeaders.
func (e *ResponseEncoder) EncodeData(data []byte, endStream bool) error {
	if e.closed {
		return nil
	}
	if err := writeBodyChunk(e.w, e.framing, data); err != nil {
		return err
	}
	if endStream {
		if e.framing == framingChunked {
			if _, err := e.w.WriteString("0\r\n\r\n"); err != nil {
				return err
			}
		}
		e.closed = true
	}
	return e.w.Flush()
}

// EncodeTrailers writes trailers. Only meaningful when chunked framing
// was used; for content-length framing trailers are dropped, matching
// HTTP/1.1's own constraint that trailers require chunked transfer.
func (e *ResponseEncoder) EncodeTrailers(trailers *Headers) error {
	if e.framing != framingChunked || trailers == nil {
		return nil
	}
	if err := writeHeaderBlock(e.w, trailers.Fields); err != nil {
		return err
	}
	return e.w.Flush()
}

// RequestEncoder writes an HTTP/1.1 request line, headers, body, and
// optional trailers — the upstream-facing counterpart of ResponseEncoder.
type RequestEncoder struct {
	w           *bufio.Writer
	wroteHeader bool
	framing     framing
	closed      bool
}

// NewRequestEncoder wraps w.
func NewRequestEncoder(w *bufio.Writer) *RequestEncoder {
	return &RequestEncoder{w: w}
}

// EncodeHeaders writes the request line and header block.
func (e *RequestEncoder) EncodeHeaders(h *Headers, endStream bool) error {
	if e.wroteHeader {
		return fmt.Errorf("%w: headers already written", ErrOutOfOrder)
	}
	e.wroteHeader = true

	path := h.Path
	if path == "" {
		path = "/"
	}
	if _, err := fmt.Fprintf(e.w, "%s %s HTTP/1.1\r\n", h.Method, path); err != nil {
		return err
	}
	if h.Authority != "" && h.Get("Host") == "" {
		h.Set("Host", h.Authority)
	}

	if h.Get("Content-Length") != "" {
		e.framing = framingContentLength
	} else if !endStream {
		e.framing = framingChunked
		h.Set("Transfer-Encoding", "chunked")
	} else if RequestBodyExpected(h.Method) {
		h.Set("Content-Length", "0")
		e.framing = framingContentLength
	}

	if err := writeHeaderBlock(e.w, h.Fields); err != nil {
		return err
	}
	if endStream {
		e.closed = true
	}
	return e.w.Flush()
}

// EncodeData writes a body chunk.
func (e *RequestEncoder) EncodeData(data []byte, endStream bool) error {
	if e.closed {
		return nil
	}
	if err := writeBodyChunk(e.w, e.framing, data); err != nil {
		return err
	}
	if endStream {
		if e.framing == framingChunked {
			if _, err := e.w.WriteString("0\r\n\r\n"); err != nil {
				return err
			}
		}
		e.closed = true
	}
	return e.w.Flush()
}

// EncodeTrailers writes request trailers (rare, but legal for chunked
// requests).
func (e *RequestEncoder) EncodeTrailers(trailers *Headers) error {
	if e.framing != framingChunked || trailers == nil {
		return nil
	}
	if err := writeHeaderBlock(e.w, trailers.Fields); err != nil {
		return err
	}
	return e.w.Flush()
}

func writeHeaderBlock(w *bufio.Writer, fields map[string][]string) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range fields[k] {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

func writeBodyChunk(w *bufio.Writer, f framing, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if f == framingChunked {
		if _, err := fmt.Fprintf(w, "%x\r\n", len(data)); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		_, err := w.WriteString("\r\n")
		return err
	}
	_, err := w.Write(data)
	return err
}

func statusText(code int) string {
	if t := httpStatusText[code]; t != "" {
		return t
	}
	return "Status"
}

var httpStatusText = map[int]string{
	100: "Continue",
	200: "OK",
	204: "No Content",
	400: "Bad Request",
	404: "Not Found",
	413: "Payload Too Large",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}
