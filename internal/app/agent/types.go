package agent

import (
	"agent-marketplace/internal/app/page"
	"agent-marketplace/internal/store"
)

type RegisterInput struct {
	AgentID     string         `json:"agentId" validate:"required"`
	Address     string         `json:"address" validate:"required,eth_addr"`
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description"`
	Owner       string         `json:"owner" validate:"required"`
	Metadata    map[string]any `json:"metadata"`
}

type ListQuery struct {
	SortBy string `json:"sortBy" validate:"omitempty,oneof=reputation trades created"`
	Page   string `json:"page"`
	Limit  string `json:"limit"`
}

type AgentResponse struct {
	Success bool         `json:"success"`
	Agent   *store.Agent `json:"agent"`
}

// ReputationView is the trimmed agent returned by the reputation endpoint.
type ReputationView struct {
	AgentID          string `json:"agentId"`
	Name             string `json:"name"`
	Address          string `json:"address"`
	Reputation       int64  `json:"reputation"`
	TotalSales       int64  `json:"totalSales"`
	TotalPurchases   int64  `json:"totalPurchases"`
	SuccessfulTrades int64  `json:"successfulTrades"`
	ScamReports      int64  `json:"scamReports"`
}

type ReputationResponse struct {
	Success bool           `json:"success"`
	Agent   ReputationView `json:"agent"`
}

type ListResponse struct {
	Success    bool            `json:"success"`
	Agents     []store.Agent   `json:"agents"`
	Pagination page.Pagination `json:"pagination"`
}
