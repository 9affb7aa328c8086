package codec

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
)

// ReadResponse parses one HTTP/1.1 response off r (matching it against
// forMethod, since HEAD responses carry headers implying a body that is
// never actually sent) and dispatches it to dec the same way ReadRequest
// does for requests.
func ReadResponse(r *bufio.Reader, forMethod string, dec Decoder) error {
	resp, err := http.ReadResponse(r, &http.Request{Method: forMethod})
	if err != nil {
		if err == io.EOF {
			return err
		}
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	h := &Headers{
		Status: resp.StatusCode,
		Fields: resp.Header.Clone(),
	}

	hasBody := forMethod != http.MethodHead && resp.ContentLength != 0
	if !hasBody {
		dec.DecodeHeaders(h, true)
		return nil
	}
	dec.DecodeHeaders(h, false)

	if err := streamBodyResponse(resp.Body, resp.ContentLength, dec); err != nil {
		return err
	}
	if len(resp.Trailer) > 0 {
		dec.DecodeTrailers(&Headers{Fields: resp.Trailer})
	}
	return nil
}

func streamBodyResponse(body io.ReadCloser, declaredLength int64, dec Decoder) error {
	defer body.Close()
	buf := make([]byte, chunkSize)
	var read int64
	for {
		n, err := body.Read(buf)
		if n > 0 {
			read += int64(n)
			dec.DecodeData(buf[:n], false)
		}
		if err == io.EOF {
			if declaredLength > 0 && read < declaredLength {
				return fmt.Errorf("%w: got %d of %d declared bytes", ErrPrematureResponse, read, declaredLength)
			}
			dec.DecodeData(nil, true)
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProtocol, err)
		}
	}
}
