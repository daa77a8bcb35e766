package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"plebchat/internal/stream"
)

// ErrRunFailed is returned by Play when the run reported an error event.
var ErrRunFailed = errors.New("form: run failed")

// Transcript renders one run's events: step banners, streamed tokens,
// step details in verbose mode and the final reply.
type Transcript struct {
	out     io.Writer
	verbose bool
	styles  Styles

	text     strings.Builder
	midLine  bool
	final    bool
	output   map[string]any
	failures []string
}

// NewTranscript writes to out. verbose adds the data of every visible end
// event.
func NewTranscript(out io.Writer, verbose bool) *Transcript {
	return &Transcript{out: out, verbose: verbose, styles: NewStyles(DefaultTheme)}
}

// Handle renders one event.
func (t *Transcript) Handle(ev stream.Event) {
	d := stream.Classify(ev)
	if d.Token != "" {
		t.text.WriteString(d.Token)
		fmt.Fprint(t.out, d.Token)
		t.midLine = true
	}
	if d.Final {
		t.final = true
		t.output = d.Output
	}
	if d.Error != "" {
		if len(t.failures) == 0 || !stream.Hidden(ev.Name) {
			t.line(t.styles.Error.Render(fmt.Sprintf("✗ %s: %s", ev.Name, d.Error)))
		}
		t.failures = append(t.failures, d.Error)
	}
	if d.Banner {
		t.line(t.styles.Banner.Render(fmt.Sprintf("▸ %s %s", ev.Event, ev.Name)))
	}
	if d.Details && t.verbose {
		raw, err := json.MarshalIndent(ev.Data, "  ", "  ")
		if err == nil {
			t.line(t.styles.Details.Render("  " + string(raw)))
		}
	}
}

// line writes s on a line of its own.
func (t *Transcript) line(s string) {
	if t.midLine {
		fmt.Fprintln(t.out)
		t.midLine = false
	}
	fmt.Fprintln(t.out, s)
}

// Streamed returns the tokens received so far.
func (t *Transcript) Streamed() string { return t.text.String() }

// Reply returns the final reply, or the streamed text when the run did not
// finish.
func (t *Transcript) Reply() string {
	if t.final {
		if r := stream.FinalReply(t.output); r != "" {
			return r
		}
	}
	return t.text.String()
}

// Finished reports whether the graph's final event arrived.
func (t *Transcript) Finished() bool { return t.final }

// Play drains next until the stream ends and prints the final reply. On a
// transport failure it warns, keeps the partial text and returns the
// error. Malformed events are reported and skipped.
func (t *Transcript) Play(next func() (stream.Event, error)) (string, error) {
	for {
		ev, err := next()
		if err == nil {
			t.Handle(ev)
			continue
		}
		var derr *stream.DecodeError
		switch {
		case errors.As(err, &derr):
			t.line(t.styles.Warn.Render("Failed to parse event data: " + derr.Err.Error()))
			continue
		case errors.Is(err, io.EOF):
			return t.finish()
		default:
			t.line(t.styles.Warn.Render("Stream ended unexpectedly."))
			return t.Reply(), err
		}
	}
}

func (t *Transcript) finish() (string, error) {
	if len(t.failures) > 0 {
		return t.Reply(), fmt.Errorf("%w: %s", ErrRunFailed, t.failures[len(t.failures)-1])
	}
	if !t.final {
		t.line(t.styles.Warn.Render("Stream ended unexpectedly."))
		return t.Reply(), stream.ErrStreamInterrupted
	}
	reply := t.Reply()
	if t.text.Len() > 0 && t.text.String() == reply {
		if t.midLine {
			fmt.Fprintln(t.out)
			t.midLine = false
		}
		return reply, nil
	}
	t.line(t.styles.Reply.Render(reply))
	return reply, nil
}
