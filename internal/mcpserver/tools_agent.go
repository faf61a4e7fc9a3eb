package mcpserver

import (
	"context"

	appagent "agent-marketplace/internal/app/agent"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerAgentTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"register_agent",
			mcp.WithDescription("Register a trading agent"),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("address", mcp.Required(), mcp.Description("Agent wallet address")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
			mcp.WithString("owner", mcp.Required(), mcp.Description("Owner address or id")),
			mcp.WithString("description", mcp.Description("Optional description")),
		),
		s.handleRegisterAgent,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_agent",
			mcp.WithDescription("Get an agent by id or address"),
			mcp.WithString("agent", mcp.Required(), mcp.Description("Agent id or address")),
		),
		s.handleGetAgent,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_agent_reputation",
			mcp.WithDescription("Get an agent's reputation and trade counters"),
			mcp.WithString("agent", mcp.Required(), mcp.Description("Agent id or address")),
		),
		s.handleGetAgentReputation,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_agents",
			mcp.WithDescription("List active agents"),
			mcp.WithString("sort_by", mcp.Description("reputation|trades|created, default reputation")),
			mcp.WithNumber("page", mcp.Description("Page number, default 1")),
			mcp.WithNumber("limit", mcp.Description("Page size, default 20, max 100")),
		),
		s.handleListAgents,
	)
}

func (s *Server) handleRegisterAgent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResp := requireStrings(request, "agent_id", "address", "name", "owner")
	if errResp != nil {
		return errResp, nil
	}
	resp, err := s.agents.Register(ctx, appagent.RegisterInput{
		AgentID:     args["agent_id"],
		Address:     args["address"],
		Name:        args["name"],
		Owner:       args["owner"],
		Description: request.GetString("description", ""),
	})
	if err != nil {
		return mapDomainError("register_agent", err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleGetAgent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("agent")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	resp, err := s.agents.Get(ctx, ref)
	if err != nil {
		return mapDomainError("get_agent", err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleGetAgentReputation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("agent")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	resp, err := s.agents.Reputation(ctx, ref)
	if err != nil {
		return mapDomainError("get_agent_reputation", err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleListAgents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageStr, limitStr := pageArgs(request)
	resp, err := s.agents.List(ctx, appagent.ListQuery{
		SortBy: request.GetString("sort_by", ""),
		Page:   pageStr,
		Limit:  limitStr,
	})
	if err != nil {
		return mapDomainError("list_agents", err), nil
	}
	return toolResult(resp), nil
}
