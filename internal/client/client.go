// Package client talks to the relay: it lists agents, checks health, reads
// run history and opens event streams.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"plebchat/internal/agents"
	"plebchat/internal/runner"
	"plebchat/internal/schema"
	"plebchat/internal/stream"
)

// DefaultBaseURL is used when BACKEND_URL is unset.
const DefaultBaseURL = "http://localhost:8000"

var (
	// ErrAgentNotFound is returned when the relay does not know the agent.
	ErrAgentNotFound = errors.New("client: agent not found")
	// ErrUnhealthy is returned when /health does not report ok.
	ErrUnhealthy = errors.New("client: backend unhealthy")
)

// APIError is a non-success answer from the relay.
type APIError struct {
	Status     int
	Message    string
	Violations []schema.Violation
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: backend answered %d", e.Status)
	}
	return fmt.Sprintf("client: backend answered %d: %s", e.Status, e.Message)
}

// Agent is one entry of GET /agents. Schemas are kept raw so their
// property order survives until compilation.
type Agent struct {
	Data   agents.Data `json:"data"`
	Schema Schemas     `json:"schema"`
}

// Schemas holds an agent's raw input and config documents.
type Schemas struct {
	Input  json.RawMessage `json:"input"`
	Config json.RawMessage `json:"config"`
}

// InputModel compiles the input schema minus messages, which the session
// supplies itself.
func (a Agent) InputModel(c *schema.Cache) (*schema.Model, error) {
	name := a.Data.ID + "_input_nomessages"
	return c.Get(name, func() (*schema.Model, error) {
		full, err := schema.Compile(a.Data.ID+"_input", a.Schema.Input)
		if err != nil {
			return nil, err
		}
		return full.Without(name, agents.MessagesKey)
	})
}

// ConfigModel compiles the config schema.
func (a Agent) ConfigModel(c *schema.Cache) (*schema.Model, error) {
	return c.CompileRaw(a.Data.ID+"_config", a.Schema.Config)
}

// StreamRequest is the body of POST /stream.
type StreamRequest struct {
	AgentID   string         `json:"agent_id"`
	InputData map[string]any `json:"input_data"`
	Config    map[string]any `json:"config"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client is a relay client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromEnv creates a client for BACKEND_URL.
func FromEnv(opts ...Option) *Client {
	return New(os.Getenv("BACKEND_URL"), opts...)
}

// BaseURL returns the relay address.
func (c *Client) BaseURL() string { return c.baseURL }

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/health", &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("%w: status %q", ErrUnhealthy, body.Status)
	}
	return nil
}

// Agents lists the served agents in relay order.
func (c *Client) Agents(ctx context.Context) ([]Agent, error) {
	var body struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.getJSON(ctx, "/agents", &body); err != nil {
		return nil, err
	}
	return body.Agents, nil
}

// Runs lists recorded runs, newest first.
func (c *Client) Runs(ctx context.Context, limit int) ([]runner.Record, error) {
	path := "/runs"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var body struct {
		Runs []runner.Record `json:"runs"`
	}
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}
	return body.Runs, nil
}

// Stream opens a run. The caller must Close the returned stream.
func (c *Client) Stream(ctx context.Context, req StreamRequest) (*Stream, error) {
	if req.InputData == nil {
		req.InputData = map[string]any{agents.MessagesKey: []any{}}
	}
	if req.Config == nil {
		req.Config = map[string]any{}
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("client: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stream", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("client: post /stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		err := decodeError(resp)
		if resp.StatusCode == http.StatusNotFound {
			return nil, errors.Join(ErrAgentNotFound, err)
		}
		return nil, err
	}
	return &Stream{body: resp.Body, dec: stream.NewDecoder(resp.Body)}, nil
}

// Stream is an open event stream.
type Stream struct {
	body io.ReadCloser
	dec  *stream.Decoder
}

// Next returns the next event; see stream.Decoder.Next.
func (s *Stream) Next() (stream.Event, error) { return s.dec.Next() }

// Close releases the connection.
func (s *Stream) Close() error { return s.body.Close() }

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("client: decode %s: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Message    string             `json:"message"`
		Violations []schema.Violation `json:"violations"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Message
		apiErr.Violations = body.Violations
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
