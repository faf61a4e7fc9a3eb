package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"agent-marketplace/internal/app/page"
	"agent-marketplace/internal/store"
	"agent-marketplace/internal/validation"

	"github.com/rs/zerolog/log"
)

const defaultReputation = 100

type Repository interface {
	CreateAgent(ctx context.Context, a *store.Agent) (*store.Agent, error)
	GetAgent(ctx context.Context, idOrAddress string) (*store.Agent, error)
	ListAgents(ctx context.Context, f store.AgentFilter) ([]store.Agent, int, error)
}

// ReputationSource reads the authoritative on-chain reputation.
type ReputationSource interface {
	AgentReputation(ctx context.Context, address string) (int64, error)
}

// ReputationSink stores a changed reputation and announces it.
type ReputationSink interface {
	UpdateReputation(ctx context.Context, address string, reputation int64) (*store.Agent, error)
}

type Service struct {
	repo    Repository
	source  ReputationSource
	sink    ReputationSink
	timeout time.Duration
}

// NewService wires the agent endpoints. source may be nil when no contract
// is configured; reputation then stays at its cached value.
func NewService(repo Repository, source ReputationSource, sink ReputationSink, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{repo: repo, source: source, sink: sink, timeout: timeout}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*AgentResponse, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	address := strings.ToLower(in.Address)
	reputation := int64(defaultReputation)
	if rep, ok := s.chainReputation(ctx, address); ok {
		reputation = rep
	}
	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	a, err := s.repo.CreateAgent(ctx, &store.Agent{
		AgentID:     in.AgentID,
		Address:     address,
		Name:        in.Name,
		Description: in.Description,
		Owner:       in.Owner,
		Reputation:  reputation,
		IsActive:    true,
		Metadata:    metadata,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrAgentExists
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("agent_id", a.AgentID).Str("name", a.Name).Int64("reputation", a.Reputation).Msg("agent_registered")
	return &AgentResponse{Success: true, Agent: a}, nil
}

func (s *Service) Get(ctx context.Context, idOrAddress string) (*AgentResponse, error) {
	a, err := s.lookup(ctx, idOrAddress)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{Success: true, Agent: a}, nil
}

// Reputation returns the agent's reputation after syncing it from chain.
// A failed chain read serves the cached value.
func (s *Service) Reputation(ctx context.Context, idOrAddress string) (*ReputationResponse, error) {
	a, err := s.lookup(ctx, idOrAddress)
	if err != nil {
		return nil, err
	}
	if rep, ok := s.chainReputation(ctx, a.Address); ok && rep != a.Reputation {
		updated, err := s.sink.UpdateReputation(ctx, a.Address, rep)
		if err != nil {
			return nil, err
		}
		if updated != nil {
			a = updated
		}
		log.Info().Str("agent_id", a.AgentID).Int64("reputation", rep).Msg("agent_reputation_synced")
	}
	return &ReputationResponse{Success: true, Agent: ReputationView{
		AgentID:          a.AgentID,
		Name:             a.Name,
		Address:          a.Address,
		Reputation:       a.Reputation,
		TotalSales:       a.TotalSales,
		TotalPurchases:   a.TotalPurchases,
		SuccessfulTrades: a.SuccessfulTrades,
		ScamReports:      a.ScamReports,
	}}, nil
}

// List pages through active agents, highest reputation first by default.
func (s *Service) List(ctx context.Context, q ListQuery) (*ListResponse, error) {
	p, perr := page.Parse(q.Page, q.Limit)
	if err := validation.Join(validation.Struct(q), perr); err != nil {
		return nil, err
	}
	items, total, err := s.repo.ListAgents(ctx, store.AgentFilter{SortBy: q.SortBy, Limit: p.Limit, Offset: p.Offset()})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []store.Agent{}
	}
	return &ListResponse{Success: true, Agents: items, Pagination: page.New(p, total)}, nil
}

func (s *Service) lookup(ctx context.Context, idOrAddress string) (*store.Agent, error) {
	id := strings.TrimSpace(idOrAddress)
	if id == "" {
		return nil, ErrAgentNotFound
	}
	a, err := s.repo.GetAgent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAgentNotFound
	}
	return a, err
}

func (s *Service) chainReputation(ctx context.Context, address string) (int64, bool) {
	if s.source == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rep, err := s.source.AgentReputation(ctx, address)
	if err != nil {
		log.Warn().Err(err).Str("address", address).Msg("agent_reputation_unavailable")
		return 0, false
	}
	return rep, true
}
