package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
	"trpc.group/trpc-go/trpc-agent-go/model"
)

// ChatModel is the part of model.Model the agents call.
type ChatModel interface {
	GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error)
}

// ErrEmptyResponse is returned when a generation yields no text.
var ErrEmptyResponse = errors.New("model: empty response")

// Message is one chat turn in the plain form agents keep in their state.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// jsonInstruction is appended to the system prompt for JSON-mode calls.
const jsonInstruction = "\n\nRespond with a single JSON object and nothing else."

// Stream runs one generation, calling onDelta for every streamed chunk,
// and returns the full text.
func Stream(ctx context.Context, m ChatModel, gen model.GenerationConfig, msgs []Message, onDelta func(string)) (string, error) {
	gen.Stream = true
	return generate(ctx, m, gen, msgs, onDelta)
}

// Invoke runs one generation without streaming and returns its text.
func Invoke(ctx context.Context, m ChatModel, gen model.GenerationConfig, msgs []Message) (string, error) {
	gen.Stream = false
	return generate(ctx, m, gen, msgs, nil)
}

// InvokeJSON asks for a JSON object and returns it parsed. Output that is
// not valid JSON is repaired before parsing.
func InvokeJSON(ctx context.Context, m ChatModel, gen model.GenerationConfig, msgs []Message) (gjson.Result, error) {
	msgs = withJSONInstruction(msgs)
	text, err := Invoke(ctx, m, gen, msgs)
	if err != nil {
		return gjson.Result{}, err
	}
	doc := extractObject(text)
	if !gjson.Valid(doc) {
		fixed, rerr := jsonrepair.JSONRepair(doc)
		if rerr != nil {
			return gjson.Result{}, fmt.Errorf("model: repair json output: %w", rerr)
		}
		doc = fixed
	}
	res := gjson.Parse(doc)
	if !res.IsObject() {
		return gjson.Result{}, fmt.Errorf("model: json output is not an object: %q", text)
	}
	return res, nil
}

func generate(ctx context.Context, m ChatModel, gen model.GenerationConfig, msgs []Message, onDelta func(string)) (string, error) {
	req := &model.Request{
		Messages:         toMessages(msgs),
		GenerationConfig: gen,
	}
	ch, err := m.GenerateContent(ctx, req)
	if err != nil {
		return "", fmt.Errorf("model: generate: %w", err)
	}

	var (
		sb       strings.Builder
		streamed bool
	)
	for resp := range ch {
		if resp == nil {
			continue
		}
		if resp.Error != nil {
			return sb.String(), fmt.Errorf("model: %s", resp.Error.Message)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if resp.IsPartial {
			if choice.Delta.Content == "" {
				continue
			}
			streamed = true
			sb.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
			continue
		}
		// The closing response repeats the whole message after a stream.
		if !streamed && choice.Message.Content != "" {
			sb.WriteString(choice.Message.Content)
			if onDelta != nil && gen.Stream {
				onDelta(choice.Message.Content)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return sb.String(), err
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

func toMessages(msgs []Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		switch NormalizeRole(m.Role) {
		case "system":
			out = append(out, model.NewSystemMessage(m.Content))
		case "assistant":
			out = append(out, model.NewAssistantMessage(m.Content))
		default:
			out = append(out, model.NewUserMessage(m.Content))
		}
	}
	return out
}

// NormalizeRole maps the role spellings found in chat histories onto
// system, user and assistant.
func NormalizeRole(role string) string {
	switch strings.ToLower(role) {
	case "system":
		return "system"
	case "assistant", "ai":
		return "assistant"
	default:
		return "user"
	}
}

func withJSONInstruction(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if out[i].Role == "system" {
			out[i].Content += jsonInstruction
			return out
		}
	}
	return append([]Message{{Role: "system", Content: strings.TrimSpace(jsonInstruction)}}, out...)
}

// extractObject trims chatter around the outermost JSON object.
func extractObject(text string) string {
	text = strings.TrimSpace(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
