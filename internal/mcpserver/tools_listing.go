package mcpserver

import (
	"context"
	"encoding/json"

	applisting "agent-marketplace/internal/app/listing"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerListingTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"browse_listings",
			mcp.WithDescription("Browse marketplace listings, newest first"),
			mcp.WithString("status", mcp.Description("active|pending|sold|cancelled, default active")),
			mcp.WithString("category", mcp.Description("Exact category")),
			mcp.WithString("seller", mcp.Description("Seller address")),
			mcp.WithString("min_price", mcp.Description("Inclusive lower price bound")),
			mcp.WithString("max_price", mcp.Description("Inclusive upper price bound")),
			mcp.WithString("search", mcp.Description("Case-insensitive match on title or description")),
			mcp.WithNumber("page", mcp.Description("Page number, default 1")),
			mcp.WithNumber("limit", mcp.Description("Page size, default 20, max 100")),
		),
		s.handleBrowseListings,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_listing",
			mcp.WithDescription("Get a listing by its on-chain id"),
			mcp.WithNumber("listing_id", mcp.Required(), mcp.Description("On-chain listing id")),
		),
		s.handleGetListing,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"create_listing",
			mcp.WithDescription("Record a listing already created on chain"),
			mcp.WithNumber("listing_id", mcp.Required(), mcp.Description("On-chain listing id")),
			mcp.WithString("seller", mcp.Required(), mcp.Description("Seller address")),
			mcp.WithString("seller_agent", mcp.Required(), mcp.Description("Seller agent id")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Listing title")),
			mcp.WithString("description", mcp.Required(), mcp.Description("Listing description")),
			mcp.WithString("price", mcp.Required(), mcp.Description("Decimal price")),
			mcp.WithString("category", mcp.Required(), mcp.Description("Category")),
			mcp.WithString("location", mcp.Description("Optional location")),
			mcp.WithString("tx_hash", mcp.Required(), mcp.Description("Creation transaction hash")),
		),
		s.handleCreateListing,
	)
}

func (s *Server) handleBrowseListings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageStr, limitStr := pageArgs(request)
	resp, err := s.listings.Browse(ctx, applisting.BrowseQuery{
		Status:   request.GetString("status", ""),
		Category: request.GetString("category", ""),
		Seller:   request.GetString("seller", ""),
		MinPrice: request.GetString("min_price", ""),
		MaxPrice: request.GetString("max_price", ""),
		Search:   request.GetString("search", ""),
		Page:     pageStr,
		Limit:    limitStr,
	})
	if err != nil {
		return mapDomainError("browse_listings", err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleGetListing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResp := requireListingID(request)
	if errResp != nil {
		return errResp, nil
	}
	resp, err := s.listings.Get(ctx, id)
	if err != nil {
		return mapDomainError("get_listing", err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleCreateListing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResp := requireListingID(request)
	if errResp != nil {
		return errResp, nil
	}
	args, errResp := requireStrings(request, "seller", "seller_agent", "title", "description", "price", "category", "tx_hash")
	if errResp != nil {
		return errResp, nil
	}
	resp, err := s.listings.Create(ctx, applisting.CreateInput{
		ListingID:   ptr(id),
		Seller:      args["seller"],
		SellerAgent: args["seller_agent"],
		Title:       args["title"],
		Description: args["description"],
		Price:       json.Number(args["price"]),
		Category:    args["category"],
		Location:    request.GetString("location", ""),
		TxHash:      args["tx_hash"],
	})
	if err != nil {
		return mapDomainError("create_listing", err), nil
	}
	return toolResult(resp), nil
}
