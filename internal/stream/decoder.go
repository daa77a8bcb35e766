package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxLineSize bounds one SSE line.
const MaxLineSize = 8 * 1024 * 1024

// ErrStreamInterrupted reports a transport failure before the stream ended.
var ErrStreamInterrupted = errors.New("stream: ended unexpectedly")

// DecodeError reports one event whose payload is not valid JSON. The
// stream can continue after it.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("stream: decode event: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder reads events from an SSE body.
type Decoder struct {
	s *bufio.Scanner
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Decoder{s: s}
}

// Next returns the next event. It returns io.EOF at the clean end of the
// stream, a *DecodeError for a malformed event, and an error wrapping
// ErrStreamInterrupted when the transport fails.
func (d *Decoder) Next() (Event, error) {
	for d.s.Scan() {
		line := strings.TrimSpace(d.s.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return Event{}, &DecodeError{Payload: payload, Err: err}
		}
		return ev, nil
	}
	if err := d.s.Err(); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
	}
	return Event{}, io.EOF
}
