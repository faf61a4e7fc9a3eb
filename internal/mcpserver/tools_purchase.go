package mcpserver

import (
	"context"

	apppurchase "agent-marketplace/internal/app/purchase"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPurchaseTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"request_purchase",
			mcp.WithDescription("Record a purchase request for an active listing"),
			mcp.WithNumber("listing_id", mcp.Required(), mcp.Description("On-chain listing id")),
			mcp.WithString("buyer", mcp.Required(), mcp.Description("Buyer address")),
			mcp.WithString("buyer_agent", mcp.Required(), mcp.Description("Buyer agent id")),
			mcp.WithString("tx_hash", mcp.Required(), mcp.Description("Escrow request transaction hash")),
		),
		s.handleRequestPurchase,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"confirm_purchase",
			mcp.WithDescription("Seller confirms the requested purchase"),
			mcp.WithNumber("listing_id", mcp.Required(), mcp.Description("On-chain listing id")),
			mcp.WithString("tx_hash", mcp.Required(), mcp.Description("Confirmation transaction hash")),
		),
		s.handleConfirmPurchase,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"release_funds",
			mcp.WithDescription("Release escrowed funds and complete the trade"),
			mcp.WithNumber("listing_id", mcp.Required(), mcp.Description("On-chain listing id")),
			mcp.WithString("tx_hash", mcp.Required(), mcp.Description("Release transaction hash")),
		),
		s.handleReleaseFunds,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_transactions",
			mcp.WithDescription("List purchase transactions, newest first"),
			mcp.WithString("status", mcp.Description("requested|confirmed|completed|cancelled|disputed")),
			mcp.WithString("seller", mcp.Description("Seller address")),
			mcp.WithString("buyer", mcp.Description("Buyer address")),
			mcp.WithNumber("page", mcp.Description("Page number, default 1")),
			mcp.WithNumber("limit", mcp.Description("Page size, default 20, max 100")),
		),
		s.handleListTransactions,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_listing_transaction",
			mcp.WithDescription("Get the latest transaction for a listing"),
			mcp.WithNumber("listing_id", mcp.Required(), mcp.Description("On-chain listing id")),
		),
		s.handleGetListingTransaction,
	)
}

func (s *Server) handleRequestPurchase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResp := requireListingID(request)
	if errResp != nil {
		return errResp, nil
	}
	args, errResp := requireStrings(request, "buyer", "buyer_agent", "tx_hash")
	if errResp != nil {
		return errResp, nil
	}
	resp, err := s.purchases.Request(ctx, apppurchase.RequestInput{
		ListingID:  ptr(id),
		Buyer:      args["buyer"],
		BuyerAgent: args["buyer_agent"],
		TxHash:     args["tx_hash"],
	})
	if err != nil {
		return mapDomainError("request_purchase", err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleConfirmPurchase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, errResp := settleInput(request)
	if errResp != nil {
		return errResp, nil
	}
	resp, err := s.purchases.Confirm(ctx, in)
	if err != nil {
		return mapDomainError("confirm_purchase", err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleReleaseFunds(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, errResp := settleInput(request)
	if errResp != nil {
		return errResp, nil
	}
	resp, err := s.purchases.Release(ctx, in)
	if err != nil {
		return mapDomainError("release_funds", err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleListTransactions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageStr, limitStr := pageArgs(request)
	resp, err := s.purchases.History(ctx, apppurchase.HistoryQuery{
		Status: request.GetString("status", ""),
		Seller: request.GetString("seller", ""),
		Buyer:  request.GetString("buyer", ""),
		Page:   pageStr,
		Limit:  limitStr,
	})
	if err != nil {
		return mapDomainError("list_transactions", err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleGetListingTransaction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResp := requireListingID(request)
	if errResp != nil {
		return errResp, nil
	}
	resp, err := s.purchases.Latest(ctx, id)
	if err != nil {
		return mapDomainError("get_listing_transaction", err), nil
	}
	return toolResult(resp), nil
}

func settleInput(request mcp.CallToolRequest) (apppurchase.SettleInput, *mcp.CallToolResult) {
	id, errResp := requireListingID(request)
	if errResp != nil {
		return apppurchase.SettleInput{}, errResp
	}
	txHash, err := request.RequireString("tx_hash")
	if err != nil {
		return apppurchase.SettleInput{}, toolError("invalid_request", err.Error())
	}
	return apppurchase.SettleInput{ListingID: ptr(id), TxHash: txHash}, nil
}
