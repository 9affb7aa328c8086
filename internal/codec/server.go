package codec

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
)

// chunkSize is the read granularity used to turn a body io.Reader into
// the DecodeData callback stream; it does not correspond to wire chunk
// boundaries (those are net/http's concern), only to how much buffering
// this layer holds before handing data onward.
const chunkSize = 32 * 1024

// ReadRequest parses one HTTP/1.1 request off r and dispatches it to dec
// as DecodeHeaders, zero or more DecodeData, and (if any trailers were
// declared) one DecodeTrailers call. It returns when the request (body
// included) has been fully consumed, or a wrapped ErrProtocol if parsing
// fails.
func ReadRequest(r *bufio.Reader, dec Decoder) error {
	req, err := http.ReadRequest(r)
	if err != nil {
		if err == io.EOF {
			return err
		}
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	h := &Headers{
		Method:    req.Method,
		Path:      req.URL.RequestURI(),
		Authority: req.Host,
		Scheme:    "http",
		Fields:    req.Header.Clone(),
	}
	if h.Path == "" {
		h.Path = "/" // CONNECT requests carry no path; default to root.
	}

	hasBody := RequestBodyExpected(req.Method) && req.ContentLength != 0
	if !hasBody {
		dec.DecodeHeaders(h, true)
		return nil
	}
	dec.DecodeHeaders(h, false)

	if err := streamBody(req.Body, dec); err != nil {
		return err
	}
	if len(req.Trailer) > 0 {
		dec.DecodeTrailers(&Headers{Fields: req.Trailer})
	}
	return nil
}

func streamBody(body io.ReadCloser, dec Decoder) error {
	defer body.Close()
	buf := make([]byte, chunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			dec.DecodeData(buf[:n], false)
		}
		if err == io.EOF {
			dec.DecodeData(nil, true)
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProtocol, err)
		}
	}
}
