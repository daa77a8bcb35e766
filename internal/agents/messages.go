package agents

import (
	"fmt"

	"plebchat/internal/graph"
	appmodel "plebchat/internal/model"
)

// State keys shared by the chat agents.
const (
	MessagesKey = "messages"
	QueryKey    = "query"
)

// NormalizeMessages turns a request's messages value into a list. A bare
// string is one human message.
func NormalizeMessages(v any) []any {
	switch m := v.(type) {
	case nil:
		return []any{}
	case string:
		return []any{map[string]any{"content": m, "type": "human"}}
	case []any:
		return m
	case []map[string]any:
		out := make([]any, len(m))
		for i, x := range m {
			out[i] = x
		}
		return out
	default:
		return []any{m}
	}
}

// assistantReply is the patch that appends one assistant message.
func assistantReply(content string) graph.State {
	return graph.State{MessagesKey: []any{map[string]any{"role": "assistant", "content": content}}}
}

// history converts the state's messages to chat turns. Entries carry
// their role under "role" or "type".
func history(state graph.State) []appmodel.Message {
	raw, _ := state[MessagesKey].([]any)
	out := make([]appmodel.Message, 0, len(raw))
	for _, entry := range raw {
		switch m := entry.(type) {
		case map[string]any:
			role, _ := m["role"].(string)
			if role == "" {
				role, _ = m["type"].(string)
			}
			out = append(out, appmodel.Message{Role: appmodel.NormalizeRole(role), Content: fmt.Sprint(m["content"])})
		case string:
			out = append(out, appmodel.Message{Role: "user", Content: m})
		}
	}
	return out
}

func stringOf(state graph.State, key string) string {
	s, _ := state[key].(string)
	return s
}
