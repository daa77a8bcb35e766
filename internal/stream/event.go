// Package stream defines how clients read the relay's event stream: which
// events become step banners, which carry tokens and where the final reply
// lives.
package stream

import (
	"fmt"
	"strings"

	"plebchat/internal/graph"
)

// Event is the wire form of one streamed event.
type Event = graph.Event

// Disposition tells a renderer what to do with an event.
type Disposition struct {
	// Banner is set for visible step lifecycle events.
	Banner bool
	// Token holds a streamed model fragment.
	Token string
	// Details is set for visible _end events whose data may be shown.
	Details bool
	// Final is set on the graph's own end event; Output then holds the
	// final state.
	Final  bool
	Output map[string]any
	// Error holds the message of an on_chain_error event.
	Error string
}

// Hidden reports names that never produce a banner: the graph itself, its
// start pseudo-state, state writes and routers.
func Hidden(name string) bool {
	return name == graph.Start || name == graph.WriteName || name == graph.DefaultName || strings.HasPrefix(name, "_")
}

// Classify decides how an event is rendered.
func Classify(ev Event) Disposition {
	var d Disposition

	isModel := strings.HasPrefix(ev.Event, "on_chat_model")
	isStream := strings.HasSuffix(ev.Event, "_stream")
	isEnd := strings.HasSuffix(ev.Event, "_end")

	if isModel && isStream {
		d.Token = chunkContent(ev.Data)
	}
	if ev.Name == graph.DefaultName && isEnd {
		d.Final = true
		d.Output, _ = ev.Data["output"].(map[string]any)
	}
	if ev.Event == graph.OnChainError {
		d.Error = fmt.Sprint(ev.Data["error"])
	}
	if Hidden(ev.Name) {
		return d
	}
	d.Banner = !isStream && !isModel
	d.Details = isEnd
	return d
}

func chunkContent(data map[string]any) string {
	chunk, ok := data["chunk"].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := chunk["content"].(string)
	return s
}

// FinalReply extracts the reply from a final output: the content of the
// last message, or else the running summary.
func FinalReply(output map[string]any) string {
	if msgs, ok := output["messages"].([]any); ok && len(msgs) > 0 {
		if m, ok := msgs[len(msgs)-1].(map[string]any); ok {
			if s, ok := m["content"].(string); ok {
				return s
			}
		}
	}
	s, _ := output["running_summary"].(string)
	return s
}
