package agents

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"trpc.group/trpc-go/trpc-agent-go/model"

	"plebchat/internal/graph"
	appmodel "plebchat/internal/model"
	"plebchat/internal/schema"
	"plebchat/internal/search"
)

// scriptedModel answers each call with the next scripted reply, streamed
// word by word.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	calls   []*model.Request
	configs []appmodel.Config
}

func (m *scriptedModel) factory(cfg appmodel.Config) (appmodel.ChatModel, model.GenerationConfig, error) {
	m.mu.Lock()
	m.configs = append(m.configs, cfg)
	m.mu.Unlock()
	return m, model.GenerationConfig{Temperature: cfg.Temperature}, nil
}

func (m *scriptedModel) GenerateContent(_ context.Context, req *model.Request) (<-chan *model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]

	ch := make(chan *model.Response, 16)
	go func() {
		defer close(ch)
		if req.Stream {
			for _, w := range strings.SplitAfter(reply, " ") {
				ch <- &model.Response{IsPartial: true, Choices: []model.Choice{{Delta: model.Message{Content: w}}}}
			}
		}
		ch <- &model.Response{Choices: []model.Choice{{Message: model.Message{Role: model.RoleAssistant, Content: reply}}}}
	}()
	return ch, nil
}

type fakeSearcher struct {
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, req search.Request) (*search.Response, error) {
	f.queries = append(f.queries, req.Query)
	n := len(f.queries)
	return &search.Response{Results: []search.Result{{
		Title:   "Result " + string(rune('A'+n-1)),
		URL:     "https://example.com/" + string(rune('a'+n-1)),
		Content: "content",
	}}}, nil
}

func lastMessage(t *testing.T, state graph.State) string {
	t.Helper()
	msgs, ok := state[MessagesKey].([]any)
	require.True(t, ok, "messages: %#v", state[MessagesKey])
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1].(map[string]any)["content"].(string)
}

func noEnv(string) (string, bool) { return "", false }

func runAgent(t *testing.T, a *ServedGraph, input, config map[string]any, emit func(graph.Event)) graph.State {
	t.Helper()
	out, err := a.Run(context.Background(), input, config, noEnv, emit)
	require.NoError(t, err)
	return out
}

func TestEchobotRepliesWithQuery(t *testing.T) {
	a, err := NewEchobot()
	require.NoError(t, err)

	out := runAgent(t, a, map[string]any{"query": "hello there", "messages": []any{}}, nil, nil)
	assert.Equal(t, "hello there", lastMessage(t, out))

	out = runAgent(t, a, map[string]any{"query": "abc"}, map[string]any{"repeat_direction": "reverse"}, nil)
	assert.Equal(t, "cba", lastMessage(t, out))
}

func TestRunIgnoresProcessEnvironment(t *testing.T) {
	t.Setenv("REPEAT_DIRECTION", Reverse)
	a, err := NewEchobot()
	require.NoError(t, err)

	out := runAgent(t, a, map[string]any{"query": "abc"}, nil, nil)
	assert.Equal(t, "abc", lastMessage(t, out))

	env := func(k string) (string, bool) { return Reverse, k == "REPEAT_DIRECTION" }
	out, err = a.Run(context.Background(), map[string]any{"query": "abc"}, nil, env, nil)
	require.NoError(t, err)
	assert.Equal(t, "cba", lastMessage(t, out))
}

func TestEchobotDefaultsQuery(t *testing.T) {
	a, err := NewEchobot()
	require.NoError(t, err)

	out := runAgent(t, a, nil, nil, nil)
	assert.Equal(t, "what is 17 * 17?", lastMessage(t, out))
	assert.Equal(t, int64(1), out["lucky_number"])
}

func TestCommandRouting(t *testing.T) {
	a, err := NewEchobot()
	require.NoError(t, err)

	var nodes []string
	emit := func(ev graph.Event) {
		if ev.Event == graph.OnChainStart {
			nodes = append(nodes, ev.Name)
		}
	}
	out := runAgent(t, a, map[string]any{"query": "/help"}, nil, emit)
	assert.Contains(t, lastMessage(t, out), "Available commands:\n```\n/version")
	assert.Contains(t, nodes, "handle_command")
	assert.NotContains(t, nodes, "echobot")

	nodes = nil
	out = runAgent(t, a, map[string]any{"query": "/help"}, map[string]any{"disable_commands": true}, emit)
	assert.Equal(t, "/help", lastMessage(t, out))
	assert.Contains(t, nodes, "echobot")
	assert.NotContains(t, nodes, "handle_command")
}

func TestCommands(t *testing.T) {
	cmds := newCommandSet("1.2.3", "about me", rand.New(rand.NewPCG(1, 2)))
	ctx := context.Background()

	tests := []struct {
		query string
		check func(t *testing.T, reply string)
	}{
		{"/version", func(t *testing.T, r string) { assert.Equal(t, "Version `1.2.3`", r) }},
		{"/VERSION extra", func(t *testing.T, r string) { assert.Equal(t, "Version `1.2.3`", r) }},
		{"/info", func(t *testing.T, r string) { assert.Equal(t, "about me", r) }},
		{"/about", func(t *testing.T, r string) { assert.Equal(t, "about me", r) }},
		{"/usage", func(t *testing.T, r string) { assert.True(t, strings.HasPrefix(r, "Available commands:")) }},
		{"/nope", func(t *testing.T, r string) { assert.True(t, strings.HasPrefix(r, "Command not found.\nAvailable commands:")) }},
		{"/", func(t *testing.T, r string) { assert.True(t, strings.HasPrefix(r, "Command not found.")) }},
		{"/random x", func(t *testing.T, r string) { assert.Equal(t, invalidDigits, r) }},
		{"/random", func(t *testing.T, r string) {
			n := gjson.Parse(strings.Trim(r, "`")).Int()
			assert.True(t, n >= 1 && n <= 100, r)
		}},
		{"/random 2", func(t *testing.T, r string) {
			n := gjson.Parse(strings.Trim(r, "`")).Int()
			assert.True(t, n >= 1 && n <= 100, r)
		}},
		{"/random 0", func(t *testing.T, r string) { assert.Equal(t, "`1`", r) }},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			reply, err := cmds.Run(ctx, tt.query)
			require.NoError(t, err)
			tt.check(t, reply)
		})
	}
}

func TestOllamaStreamsTokens(t *testing.T) {
	sm := &scriptedModel{replies: []string{"2 + 2 is 4"}}
	a, err := NewOllama(sm.factory)
	require.NoError(t, err)

	var (
		tokens strings.Builder
		kinds  []string
	)
	emit := func(ev graph.Event) {
		if strings.HasPrefix(ev.Event, "on_chat_model") {
			kinds = append(kinds, ev.Event)
			assert.Equal(t, ChatModelName, ev.Name)
			assert.Equal(t, "ollama", ev.Metadata[graph.MetaNode])
		}
		if ev.Event == graph.OnChatModelStream {
			tokens.WriteString(ev.Data["chunk"].(map[string]any)["content"].(string))
		}
	}
	out := runAgent(t, a, map[string]any{"query": "2+2", "messages": []any{}}, map[string]any{"temperature": 20, "model": "llama3.1"}, emit)

	assert.Equal(t, "2 + 2 is 4", lastMessage(t, out))
	assert.Equal(t, tokens.String(), lastMessage(t, out))
	assert.Equal(t, graph.OnChatModelStart, kinds[0])
	assert.Equal(t, graph.OnChatModelEnd, kinds[len(kinds)-1])

	require.Len(t, sm.configs, 1)
	assert.Equal(t, "llama3.1", sm.configs[0].Model)
	assert.InDelta(t, 0.2, *sm.configs[0].Temperature, 1e-9)

	req := sm.calls[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, model.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, defaultSystemPrompt, req.Messages[0].Content)
	assert.Equal(t, "2+2", req.Messages[1].Content)
}

func TestOllamaUsesHistory(t *testing.T) {
	sm := &scriptedModel{replies: []string{"sure"}}
	a, err := NewOllama(sm.factory)
	require.NoError(t, err)

	out := runAgent(t, a, map[string]any{
		"query": "and again",
		"messages": []any{
			map[string]any{"role": "human", "content": "hi"},
			map[string]any{"role": "assistant", "content": "hello"},
			map[string]any{"role": "human", "content": "and again"},
		},
	}, map[string]any{"system_prompt": "be brief"}, nil)

	msgs := out[MessagesKey].([]any)
	assert.Len(t, msgs, 4)
	req := sm.calls[0]
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "be brief", req.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, req.Messages[2].Role)
}

func TestOllamaStringMessages(t *testing.T) {
	a, err := NewOllama((&scriptedModel{}).factory)
	require.NoError(t, err)

	state, err := a.PrepareInput(map[string]any{"messages": "hi"})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"content": "hi", "type": "human"}}, state[MessagesKey])
}

func TestOllamaModelFailureAbortsRun(t *testing.T) {
	a, err := NewOllama((&scriptedModel{}).factory)
	require.NoError(t, err)

	state, err := a.PrepareInput(map[string]any{"query": "hi"})
	require.NoError(t, err)
	var last graph.Event
	_, err = a.Graph.Run(context.Background(), state, graph.Config{}, func(ev graph.Event) { last = ev })
	require.Error(t, err)
	assert.Equal(t, graph.OnChainError, last.Event)
}

func TestResearchLoopTerminates(t *testing.T) {
	for _, loops := range []int{0, 1, 3} {
		t.Run(string(rune('0'+loops)), func(t *testing.T) {
			var replies []string
			replies = append(replies, `{"query": "q0", "aspect": "a", "rationale": "r"}`)
			for i := 0; i <= loops; i++ {
				replies = append(replies, "summary "+string(rune('0'+i)))
				replies = append(replies, `{"knowledge_gap": "g", "follow_up_query": "q`+string(rune('1'+i))+`"}`)
			}
			sm := &scriptedModel{replies: replies}
			fs := &fakeSearcher{}
			a, err := NewResearch(sm.factory, fs)
			require.NoError(t, err)

			out := runAgent(t, a, map[string]any{"query": "golang"}, map[string]any{"max_web_research_loops": loops}, nil)

			assert.Len(t, fs.queries, loops+1)
			assert.Equal(t, "q0", fs.queries[0])
			assert.Equal(t, loops+1, out[ResearchLoopCountKey])
			summary := out[RunningSummaryKey].(string)
			assert.True(t, strings.HasPrefix(summary, "## Summary\n\nsummary "+string(rune('0'+loops))+"\n\n ### Sources:\n* Result A : https://example.com/a"), summary)
			assert.Len(t, out[SourcesGatheredKey], loops+1)
		})
	}
}

func TestResolveConfigPrecedence(t *testing.T) {
	a, err := NewOllama((&scriptedModel{}).factory)
	require.NoError(t, err)

	env := map[string]string{"TEMPERATURE": "10", "MODEL": "llama3.1"}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg, err := a.PrepareConfig(map[string]any{"temperature": 90, "keep_alive": "", "system_prompt": nil}, lookup)
	require.NoError(t, err)
	assert.Equal(t, int64(90), cfg["temperature"])
	assert.Equal(t, "llama3.1", cfg["model"])
	assert.Equal(t, "5m", cfg["keep_alive"])
	assert.Equal(t, defaultSystemPrompt, cfg["system_prompt"])
	assert.Equal(t, false, cfg["disable_commands"])
}

func TestResolveConfigRejectsInvalid(t *testing.T) {
	a, err := NewOllama((&scriptedModel{}).factory)
	require.NoError(t, err)

	_, err = a.PrepareConfig(map[string]any{"temperature": 101}, noEnv)
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.For("temperature"))

	_, err = a.PrepareConfig(map[string]any{"model": "gpt-4"}, noEnv)
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.For("model"))
}

func TestPublishedSchemasCompile(t *testing.T) {
	reg, err := LoadRegistry(Deps{Models: (&scriptedModel{}).factory, Searcher: &fakeSearcher{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ollama", "echobot", "research"}, reg.ListAgentIDs())

	for _, a := range reg.List() {
		raw, err := json.Marshal(a.ConfigSchema)
		require.NoError(t, err)
		m, err := schema.Compile(a.ID+"_config", raw)
		require.NoError(t, err, string(raw))
		assert.Equal(t, a.ConfigModel().Names(), m.Names())

		raw, err = json.Marshal(a.InputSchema)
		require.NoError(t, err)
		in, err := schema.Compile(a.ID+"_input", raw)
		require.NoError(t, err, string(raw))
		assert.Equal(t, "query", in.Names()[0])
	}
}

func TestOllamaConfigSchemaShape(t *testing.T) {
	raw, err := json.Marshal(ollamaConfigSchema)
	require.NoError(t, err)
	doc := gjson.ParseBytes(raw)

	assert.Equal(t, "#/$defs/LLMModelsAvailable", doc.Get("properties.model.$ref").String())
	assert.Equal(t, "phi4", doc.Get("properties.model.default").String())
	assert.Equal(t, []any{"phi4", "llama3.1"}, doc.Get("$defs.LLMModelsAvailable.enum").Value())
	assert.Equal(t, float64(100), doc.Get("properties.temperature.maximum").Float())
	assert.Equal(t, "Keep Alive", doc.Get("properties.keep_alive.title").String())
	assert.False(t, doc.Get("required").Exists())
}

func TestEnumFieldsKeepTitle(t *testing.T) {
	a, err := NewEchobot()
	require.NoError(t, err)
	raw, err := json.Marshal(a.ConfigSchema)
	require.NoError(t, err)
	doc := gjson.ParseBytes(raw)
	assert.Equal(t, "#/$defs/RepeatDirection", doc.Get("properties.repeat_direction.$ref").String())
	assert.Equal(t, "Repeat Direction", doc.Get("properties.repeat_direction.title").String())

	m, err := schema.Compile("echobot_config", raw)
	require.NoError(t, err)
	f, ok := m.Field("repeat_direction")
	require.True(t, ok)
	assert.Equal(t, "Repeat Direction", f.Label())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	a, err := NewEchobot()
	require.NoError(t, err)
	_, err = NewRegistry(a, a)
	assert.Error(t, err)

	empty, err := NewRegistry()
	require.NoError(t, err)
	assert.Empty(t, empty.List())
	_, ok := empty.Get("echobot")
	assert.False(t, ok)
}
