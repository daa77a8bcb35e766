package model

import (
	"fmt"
	"os"
	"strings"

	"trpc.group/trpc-go/trpc-agent-go/model"
	"trpc.group/trpc-go/trpc-agent-go/model/openai"
)

// Providers understood by NewModelFromConfig.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// DefaultOllamaHost is used when neither the config nor OLLAMA_HOST names
// a server.
const DefaultOllamaHost = "http://host.docker.internal:11434"

// Config describes how to construct a Model instance.
type Config struct {
	Provider  string `json:"provider"`              // "ollama" or "openai"
	Model     string `json:"model"`                 // e.g. "phi4"
	BaseURL   string `json:"base_url,omitempty"`    // optional override
	APIKeyEnv string `json:"api_key_env,omitempty"` // env var name, or a direct key when it starts with sk-

	// Temperature is passed through unchanged when set.
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// OllamaHost resolves the Ollama server address from OLLAMA_HOST.
func OllamaHost() string {
	if h := strings.TrimSpace(os.Getenv("OLLAMA_HOST")); h != "" {
		return h
	}
	return DefaultOllamaHost
}

// NewModelFromConfig builds a model.Model and a basic GenerationConfig.
func NewModelFromConfig(cfg Config, stream bool) (model.Model, model.GenerationConfig, error) {
	gen := model.GenerationConfig{
		Stream:      stream,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	if cfg.Model == "" {
		return nil, model.GenerationConfig{}, fmt.Errorf("model name is required")
	}

	switch cfg.Provider {
	case ProviderOllama, "":
		// Ollama serves an OpenAI-compatible API under /v1 and ignores the key.
		host := cfg.BaseURL
		if host == "" {
			host = OllamaHost()
		}
		m := openai.New(cfg.Model,
			openai.WithBaseURL(strings.TrimRight(host, "/")+"/v1"),
			openai.WithAPIKey("ollama"),
		)
		return m, gen, nil

	case ProviderOpenAI:
		opts := []openai.Option{}

		// Base URL: config override > OPENAI_BASE_URL.
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}

		apiKey, apiKeyEnv := resolveAPIKey(cfg.APIKeyEnv)
		if apiKey == "" {
			if apiKeyEnv == "" {
				return nil, model.GenerationConfig{}, fmt.Errorf("missing OpenAI API key (no env and no direct key)")
			}
			return nil, model.GenerationConfig{}, fmt.Errorf("missing OpenAI API key, env %s is empty", apiKeyEnv)
		}
		opts = append(opts, openai.WithAPIKey(apiKey))

		return openai.New(cfg.Model, opts...), gen, nil

	default:
		return nil, model.GenerationConfig{}, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
}

// resolveAPIKey treats a value starting with sk- as the key itself and
// anything else as the name of the env var holding it.
func resolveAPIKey(ref string) (key, env string) {
	switch {
	case ref == "":
		env = "OPENAI_API_KEY"
	case strings.HasPrefix(ref, "sk-"):
		return ref, ""
	default:
		env = ref
	}
	return os.Getenv(env), env
}
