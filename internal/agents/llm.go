package agents

import (
	"context"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"trpc.group/trpc-go/trpc-agent-go/model"

	"plebchat/internal/graph"
	appmodel "plebchat/internal/model"
)

// ChatModelName names the model events of every agent step.
const ChatModelName = "ChatOllama"

// streamChat runs a streamed generation and reports it as chat model
// events on behalf of the calling step.
func streamChat(ctx context.Context, cfg graph.Config, m appmodel.ChatModel, gen model.GenerationConfig, msgs []appmodel.Message) (string, error) {
	runID := uuid.NewString()
	cfg.Emit(graph.Event{
		Event: graph.OnChatModelStart,
		Name:  ChatModelName,
		RunID: runID,
		Data:  map[string]any{"input": map[string]any{"messages": msgs}},
	})
	text, err := appmodel.Stream(ctx, m, gen, msgs, func(delta string) {
		cfg.Emit(graph.Event{
			Event: graph.OnChatModelStream,
			Name:  ChatModelName,
			RunID: runID,
			Data:  map[string]any{"chunk": map[string]any{"content": delta}},
		})
	})
	if err != nil {
		return "", err
	}
	cfg.Emit(graph.Event{
		Event: graph.OnChatModelEnd,
		Name:  ChatModelName,
		RunID: runID,
		Data:  map[string]any{"output": map[string]any{"content": text, "role": "assistant"}},
	})
	return text, nil
}

// invokeJSON runs a JSON-mode generation. Its output is not streamed to
// the client.
func invokeJSON(ctx context.Context, cfg graph.Config, m appmodel.ChatModel, gen model.GenerationConfig, msgs []appmodel.Message) (gjson.Result, error) {
	runID := uuid.NewString()
	cfg.Emit(graph.Event{
		Event: graph.OnChatModelStart,
		Name:  ChatModelName,
		RunID: runID,
		Data:  map[string]any{"input": map[string]any{"messages": msgs}},
	})
	res, err := appmodel.InvokeJSON(ctx, m, gen, msgs)
	if err != nil {
		return gjson.Result{}, err
	}
	cfg.Emit(graph.Event{
		Event: graph.OnChatModelEnd,
		Name:  ChatModelName,
		RunID: runID,
		Data:  map[string]any{"output": map[string]any{"content": res.Raw, "role": "assistant"}},
	})
	return res, nil
}
