package filtermanager

import (
	"time"

	"github.com/google/uuid"
	"github.com/wayfinder/wayfinder/internal/filterstate"
	"github.com/wayfinder/wayfinder/internal/upstream"
)

// StreamInfo accumulates per-request bookkeeping for logging and
// access-log style reporting: start time, eventual response code, which
// upstream host served the request, and byte counters.
type StreamInfo struct {
	ID        string
	StartTime time.Time

	ResponseCode  int
	UpstreamHost  *upstream.Host
	BytesSent     int64
	BytesReceived int64

	filterState *filterstate.FilterState
}

// NewStreamInfo starts a StreamInfo with a fresh correlation ID.
func NewStreamInfo() *StreamInfo {
	return &StreamInfo{
		ID:          uuid.NewString(),
		StartTime:   time.Now(),
		filterState: filterstate.New(),
	}
}

// FilterState returns the per-request scratch map filters use to publish
// data for later filters in the chain to consume.
func (s *StreamInfo) FilterState() *filterstate.FilterState { return s.filterState }

// Duration returns elapsed time since the stream started.
func (s *StreamInfo) Duration() time.Duration { return time.Since(s.StartTime) }

// SetResponseCode records the final status code sent downstream.
func (s *StreamInfo) SetResponseCode(code int) { s.ResponseCode = code }

// SetUpstreamHost records which host ultimately served the request.
func (s *StreamInfo) SetUpstreamHost(h *upstream.Host) { s.UpstreamHost = h }

// AddBytesSent/AddBytesReceived accumulate body byte counters as data
// flows through the codec.
func (s *StreamInfo) AddBytesSent(n int)     { s.BytesSent += int64(n) }
func (s *StreamInfo) AddBytesReceived(n int) { s.BytesReceived += int64(n) }
