package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const agentColumns = `agent_id, address, name, description, owner, reputation, total_sales, total_purchases,
	successful_trades, scam_reports, is_active, metadata, created_at, updated_at`

func scanAgent(row pgx.Row) (*Agent, error) {
	var a Agent
	err := row.Scan(
		&a.AgentID, &a.Address, &a.Name, &a.Description, &a.Owner, &a.Reputation, &a.TotalSales,
		&a.TotalPurchases, &a.SuccessfulTrades, &a.ScamReports, &a.IsActive, &a.Metadata,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	a.Metadata = metadataParam(a.Metadata)
	return &a, nil
}

// CreateAgent returns ErrConflict when either the agent id or the address is
// already registered.
func (s *Store) CreateAgent(ctx context.Context, a *Agent) (*Agent, error) {
	row := s.db(ctx).QueryRow(ctx, `
INSERT INTO agents (agent_id, address, name, description, owner, reputation, is_active, metadata)
VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
RETURNING `+agentColumns,
		a.AgentID, lowerAddr(a.Address), a.Name, a.Description, a.Owner, a.Reputation, metadataParam(a.Metadata),
	)
	return scanAgent(row)
}

// GetAgent looks an agent up by agent id or, failing that, by address.
func (s *Store) GetAgent(ctx context.Context, idOrAddress string) (*Agent, error) {
	row := s.db(ctx).QueryRow(ctx, `
SELECT `+agentColumns+` FROM agents
WHERE agent_id = $1 OR address = $2
ORDER BY (agent_id = $1) DESC LIMIT 1`, idOrAddress, lowerAddr(idOrAddress))
	return scanAgent(row)
}

// IncrementAgentTrade bumps the counters for one side of a completed trade.
// It reports false when no agent has that id.
func (s *Store) IncrementAgentTrade(ctx context.Context, agentID string, role TradeRole) (bool, error) {
	col := "total_sales"
	if role == RoleBuyer {
		col = "total_purchases"
	}
	tag, err := s.db(ctx).Exec(ctx, `
UPDATE agents SET `+col+` = `+col+` + 1, successful_trades = successful_trades + 1, updated_at = now()
WHERE agent_id = $1`, agentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetAgentReputation overwrites the cached reputation of the agent registered
// under address.
func (s *Store) SetAgentReputation(ctx context.Context, address string, reputation int64) (*Agent, error) {
	row := s.db(ctx).QueryRow(ctx, `
UPDATE agents SET reputation = $2, updated_at = now()
WHERE address = $1
RETURNING `+agentColumns, lowerAddr(address), reputation)
	return scanAgent(row)
}

// ListAgents pages through active agents. SortBy is reputation (default),
// trades or created.
func (s *Store) ListAgents(ctx context.Context, f AgentFilter) ([]Agent, int, error) {
	limit, offset := pageParams(f.Limit, f.Offset)
	order := "reputation DESC"
	switch f.SortBy {
	case "trades":
		order = "successful_trades DESC"
	case "created":
		order = "created_at DESC"
	}

	var total int
	if err := s.db(ctx).QueryRow(ctx, `SELECT count(*) FROM agents WHERE is_active`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db(ctx).Query(ctx, `
SELECT `+agentColumns+` FROM agents WHERE is_active
ORDER BY `+order+`, agent_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Agent, 0, limit)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}
