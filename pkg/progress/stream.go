package progress

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrStreamClosed is returned for events emitted after the terminal event.
var ErrStreamClosed = errors.New("progress stream already terminated")

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ashby_progress_events_total",
	Help: "Total progress events emitted by type",
}, []string{"type"})

// Stream guards a sink so that exactly one terminal event is delivered and
// nothing follows it. Safe for concurrent use.
type Stream struct {
	mu     sync.Mutex
	sink   Sink
	closed bool
}

// NewStream wraps sink. A nil sink discards events.
func NewStream(sink Sink) *Stream {
	if sink == nil {
		sink = Discard
	}
	return &Stream{sink: sink}
}

// Emit forwards e. After a terminal event every call returns ErrStreamClosed.
// A failed sink write still counts a terminal event as delivered.
func (s *Stream) Emit(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if e.Terminal() {
		s.closed = true
	}

	eventsTotal.WithLabelValues(string(e.Type)).Inc()
	return s.sink.Emit(e)
}

// Status emits a status event.
func (s *Stream) Status(message string) error {
	return s.Emit(Status(message))
}

// Fail terminates the stream with an error event.
func (s *Stream) Fail(message string) error {
	return s.Emit(Error(message))
}

// Complete terminates the stream with payload under key.
func (s *Stream) Complete(key string, payload any) error {
	return s.Emit(Complete(key, payload))
}

// Closed reports whether the terminal event was emitted.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
