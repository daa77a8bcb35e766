package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"plebchat/internal/agents"
	"plebchat/internal/graph"
	"plebchat/internal/stream"
)

const (
	defaultRunnerName = "plebchat"
	defaultBuffer     = 64
	recordTimeout     = 5 * time.Second
)

var (
	// ErrAgentNotFound indicates that the requested agent is not registered.
	ErrAgentNotFound = errors.New("runner: agent not found")
	// ErrInvalidRequest indicates input or configuration that fails validation.
	ErrInvalidRequest = errors.New("runner: invalid request")
)

// Run statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Record is the history entry of one finished run.
type Record struct {
	ID         uuid.UUID `json:"id"`
	AgentID    string    `json:"agent_id"`
	Status     string    `json:"status"`
	Reply      string    `json:"reply,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunStore keeps run history.
type RunStore interface {
	Record(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// Request names the agent to run and its raw input and configuration.
type Request struct {
	AgentID string
	Input   map[string]any
	Config  map[string]any
}

// Service bundles all runner-related wiring so HTTP handlers only need to
// provide the request information.
type Service struct {
	registry   *agents.Registry
	store      RunStore
	logger     *zap.Logger
	lookup     agents.LookupEnv
	runnerName string
	buffer     int
}

// NewService creates a runner service over the registry.
func NewService(reg *agents.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:   reg,
		logger:     logger,
		runnerName: defaultRunnerName,
		buffer:     defaultBuffer,
	}
}

// WithRunStore enables run history.
func (s *Service) WithRunStore(store RunStore) {
	if store == nil {
		return
	}
	s.store = store
}

// WithRunnerName overrides the name used to tag run events.
func (s *Service) WithRunnerName(name string) {
	if name == "" {
		return
	}
	s.runnerName = name
}

// WithEnv replaces the environment lookup used for configuration.
func (s *Service) WithEnv(lookup agents.LookupEnv) {
	s.lookup = lookup
}

// Registry returns the served agents.
func (s *Service) Registry() *agents.Registry { return s.registry }

// Run validates the request and starts the agent's graph. Lookup and
// validation failures are returned before anything runs. Events are
// delivered on the returned channel, which is closed when the run ends.
func (s *Service) Run(ctx context.Context, req Request) (<-chan graph.Event, error) {
	if s == nil || s.registry == nil {
		return nil, fmt.Errorf("runner service is not initialized")
	}
	agt, ok := s.registry.Get(req.AgentID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAgentNotFound, req.AgentID)
	}

	state, err := agt.PrepareInput(req.Input)
	if err != nil {
		return nil, errors.Join(ErrInvalidRequest, fmt.Errorf("input for %q: %w", req.AgentID, err))
	}
	cfg, err := agt.PrepareConfig(req.Config, s.lookup)
	if err != nil {
		return nil, errors.Join(ErrInvalidRequest, fmt.Errorf("config for %q: %w", req.AgentID, err))
	}

	events := make(chan graph.Event, s.buffer)
	go s.execute(ctx, agt, state, graph.Config{
		Configurable:   cfg,
		Tags:           []string{s.runnerName},
		RecursionLimit: agt.RecursionLimit,
	}, events)
	return events, nil
}

func (s *Service) execute(ctx context.Context, agt *agents.ServedGraph, state graph.State, cfg graph.Config, events chan<- graph.Event) {
	defer close(events)

	rec := Record{ID: uuid.New(), AgentID: agt.ID, StartedAt: time.Now().UTC()}
	log := s.logger.With(zap.String("agent", agt.ID), zap.Stringer("run", rec.ID))
	log.Debug("run started")

	emit := func(ev graph.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	out, err := agt.Graph.Run(ctx, state, cfg, emit)

	rec.FinishedAt = time.Now().UTC()
	if err != nil {
		rec.Status = StatusError
		rec.Error = err.Error()
		log.Warn("run failed", zap.Error(err), zap.Duration("elapsed", rec.FinishedAt.Sub(rec.StartedAt)))
	} else {
		rec.Status = StatusOK
		rec.Reply = stream.FinalReply(out)
		log.Info("run finished", zap.Duration("elapsed", rec.FinishedAt.Sub(rec.StartedAt)))
	}
	s.record(ctx, rec)
}

func (s *Service) record(ctx context.Context, rec Record) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.store.Record(ctx, rec); err != nil {
		s.logger.Warn("record run failed", zap.Stringer("run", rec.ID), zap.Error(err))
	}
}

// Recent lists the latest runs, newest first. Without a store the list is
// empty.
func (s *Service) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s.store == nil {
		return []Record{}, nil
	}
	return s.store.Recent(ctx, limit)
}
