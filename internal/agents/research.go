package agents

import (
	"context"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-agent-go/model"

	"plebchat/internal/graph"
	appmodel "plebchat/internal/model"
	"plebchat/internal/search"
)

// ResearchInput is the research agent's input record.
type ResearchInput struct {
	Query string `json:"query" jsonschema:"What do you want to research?"`
}

// ResearchConfig is the research agent's configuration record.
type ResearchConfig struct {
	MaxWebResearchLoops int    `json:"max_web_research_loops" jsonschema:"Follow-up searches after the first one"`
	LocalLLM            string `json:"local_llm" jsonschema:"Local model used for every step"`
}

// Research state keys.
const (
	SearchQueryKey        = "search_query"
	WebResearchResultsKey = "web_research_results"
	SourcesGatheredKey    = "sources_gathered"
	ResearchLoopCountKey  = "research_loop_count"
	RunningSummaryKey     = "running_summary"
)

const (
	researchVersion     = "0.1.0"
	maxResearchLoops    = 10
	maxTokensPerSource  = 1000
	researchRecursion   = 4*(maxResearchLoops+1) + 2
	searchResultsPerRun = 1
)

var (
	researchInputSchema = mustEmitSchema[ResearchInput]("SummaryState", map[string]Prop{
		"query": {Format: "multi-line"},
	})
	researchConfigSchema = mustEmitSchema[ResearchConfig]("Configuration", map[string]Prop{
		"max_web_research_loops": {Default: 3, Minimum: bound(0), Maximum: bound(maxResearchLoops)},
		"local_llm":              {Default: "phi4", Enum: localModels, EnumName: "LLMModelsAvailable"},
	})
)

const queryWriterInstructions = `Your goal is to generate targeted web search query.

The query will gather information related to a specific topic.

Topic:
%s

Return your query as a JSON object:
{
    "query": "string",
    "aspect": "string",
    "rationale": "string"
}
`

const summarizerInstructions = `Your goal is to generate a high-quality summary of the web search results.

When EXTENDING an existing summary:
1. Seamlessly integrate new information without repeating what's already covered
2. Maintain consistency with the existing content's style and depth
3. Only add new, non-redundant information
4. Ensure smooth transitions between existing and new content

When creating a NEW summary:
1. Highlight the most relevant information from each source
2. Provide a concise overview of the key points related to the report topic
3. Emphasize significant findings or insights
4. Ensure a coherent flow of information

In both cases:
- Focus on factual, objective information
- Maintain a consistent technical depth
- Avoid redundancy and repetition
- DO NOT use phrases like "based on the new results" or "according to additional sources"
- DO NOT add a preamble like "Here is an extended summary ..." Just directly output the summary.
- DO NOT add a References or Works Cited section.
`

const reflectionInstructions = `You are an expert research assistant analyzing a summary about %s.

Your tasks:
1. Identify knowledge gaps or areas that need deeper exploration
2. Generate a follow-up question that would help expand your understanding
3. Focus on technical details, implementation specifics, or emerging trends that weren't fully covered

Ensure the follow-up question is self-contained and includes necessary context for web search.

Return your analysis as a JSON object:
{
    "knowledge_gap": "string",
    "follow_up_query": "string"
}`

// researcher holds the steps of the research loop.
type researcher struct {
	models   ModelFactory
	searcher search.Searcher
	defaults ResearchConfig
}

// NewResearch builds the web research agent: it searches, summarizes and
// reflects in a loop bounded by max_web_research_loops, then publishes the
// summary with its sources.
func NewResearch(models ModelFactory, searcher search.Searcher) (*ServedGraph, error) {
	if models == nil || searcher == nil {
		return nil, fmt.Errorf("research: model factory and searcher are required")
	}
	a, err := newServedGraph(&ServedGraph{
		ID:           "research",
		Name:         "Researcher",
		Placeholder:  "What do you want to research?",
		Info:         "Searches the web and summarizes what it finds with a local model.",
		Version:      researchVersion,
		InputSchema:  researchInputSchema,
		ConfigSchema: researchConfigSchema,
	})
	if err != nil {
		return nil, err
	}
	r := &researcher{models: models, searcher: searcher, defaults: defaultsOf[ResearchConfig](a.config)}

	g, err := graph.NewBuilder(graph.Schema{
		WebResearchResultsKey: graph.Append,
		SourcesGatheredKey:    graph.Append,
	}).
		AddNode("generate_query", r.generateQuery).
		AddNode("web_research", r.webResearch).
		AddNode("summarize_sources", r.summarizeSources).
		AddNode("reflect_on_summary", r.reflectOnSummary).
		AddNode("finalize_summary", r.finalizeSummary).
		SetEntryPoint("generate_query").
		AddEdge("generate_query", "web_research").
		AddEdge("web_research", "summarize_sources").
		AddEdge("summarize_sources", "reflect_on_summary").
		AddConditionalEdges("reflect_on_summary", "_route_research", r.route, "web_research", "finalize_summary").
		SetFinishPoint("finalize_summary").
		Compile()
	if err != nil {
		return nil, err
	}
	a.Graph = g
	a.RecursionLimit = researchRecursion
	return a, nil
}

// model builds the configured local model at temperature zero.
func (r *researcher) model(cfg graph.Config) (appmodel.ChatModel, model.GenerationConfig, error) {
	c, err := configFrom(cfg, r.defaults)
	if err != nil {
		return nil, model.GenerationConfig{}, err
	}
	zero := 0.0
	return r.models(appmodel.Config{Provider: appmodel.ProviderOllama, Model: c.LocalLLM, Temperature: &zero})
}

func (r *researcher) generateQuery(ctx context.Context, s graph.State, cfg graph.Config) (graph.State, error) {
	m, gen, err := r.model(cfg)
	if err != nil {
		return nil, err
	}
	res, err := invokeJSON(ctx, cfg, m, gen, []appmodel.Message{
		{Role: "system", Content: fmt.Sprintf(queryWriterInstructions, stringOf(s, QueryKey))},
		{Role: "user", Content: "Generate a query for web search:"},
	})
	if err != nil {
		return nil, err
	}
	q := res.Get("query").String()
	if q == "" {
		return nil, fmt.Errorf("generate_query: model output has no query field: %s", res.Raw)
	}
	return graph.State{SearchQueryKey: q}, nil
}

func (r *researcher) webResearch(ctx context.Context, s graph.State, _ graph.Config) (graph.State, error) {
	resp, err := r.searcher.Search(ctx, search.Request{
		Query:             stringOf(s, SearchQueryKey),
		MaxResults:        searchResultsPerRun,
		IncludeRawContent: true,
	})
	if err != nil {
		return nil, err
	}
	return graph.State{
		SourcesGatheredKey:    []any{search.FormatSources(resp.Results)},
		ResearchLoopCountKey:  intOf(s[ResearchLoopCountKey]) + 1,
		WebResearchResultsKey: []any{search.FormatForPrompt(resp.Results, maxTokensPerSource)},
	}, nil
}

func (r *researcher) summarizeSources(ctx context.Context, s graph.State, cfg graph.Config) (graph.State, error) {
	m, gen, err := r.model(cfg)
	if err != nil {
		return nil, err
	}
	var recent string
	if results, _ := s[WebResearchResultsKey].([]any); len(results) > 0 {
		recent = fmt.Sprint(results[len(results)-1])
	}
	query := stringOf(s, QueryKey)

	var human string
	if existing := stringOf(s, RunningSummaryKey); existing != "" {
		human = fmt.Sprintf("Extend the existing summary: %s\n\nInclude new search results: %s That addresses the following topic: %s", existing, recent, query)
	} else {
		human = fmt.Sprintf("Generate a summary of these search results: %s That addresses the following topic: %s", recent, query)
	}

	summary, err := streamChat(ctx, cfg, m, gen, []appmodel.Message{
		{Role: "system", Content: summarizerInstructions},
		{Role: "user", Content: human},
	})
	if err != nil {
		return nil, err
	}
	return graph.State{RunningSummaryKey: summary}, nil
}

func (r *researcher) reflectOnSummary(ctx context.Context, s graph.State, cfg graph.Config) (graph.State, error) {
	m, gen, err := r.model(cfg)
	if err != nil {
		return nil, err
	}
	res, err := invokeJSON(ctx, cfg, m, gen, []appmodel.Message{
		{Role: "system", Content: fmt.Sprintf(reflectionInstructions, stringOf(s, QueryKey))},
		{Role: "user", Content: "Identify a knowledge gap and generate a follow-up web search query based on our existing knowledge: " + stringOf(s, RunningSummaryKey)},
	})
	if err != nil {
		return nil, err
	}
	q := res.Get("follow_up_query").String()
	if q == "" {
		return nil, fmt.Errorf("reflect_on_summary: model output has no follow_up_query field: %s", res.Raw)
	}
	return graph.State{SearchQueryKey: q}, nil
}

func (r *researcher) finalizeSummary(_ context.Context, s graph.State, _ graph.Config) (graph.State, error) {
	sources, _ := s[SourcesGatheredKey].([]any)
	lines := make([]string, len(sources))
	for i, src := range sources {
		lines[i] = fmt.Sprint(src)
	}
	summary := fmt.Sprintf("## Summary\n\n%s\n\n ### Sources:\n%s", stringOf(s, RunningSummaryKey), strings.Join(lines, "\n"))
	return graph.State{RunningSummaryKey: summary}, nil
}

// route continues searching while the loop count has not passed the
// configured maximum.
func (r *researcher) route(_ context.Context, s graph.State, cfg graph.Config) (string, error) {
	c, err := configFrom(cfg, r.defaults)
	if err != nil {
		return "", err
	}
	if intOf(s[ResearchLoopCountKey]) <= c.MaxWebResearchLoops {
		return "web_research", nil
	}
	return "finalize_summary", nil
}

func intOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
