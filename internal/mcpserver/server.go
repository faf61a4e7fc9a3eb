package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	appagent "agent-marketplace/internal/app/agent"
	applisting "agent-marketplace/internal/app/listing"
	apppurchase "agent-marketplace/internal/app/purchase"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName       = "agent-marketplace"
	listingURIPrefix = "listing://"
)

// Server exposes the marketplace services as MCP tools so agents can trade
// without speaking the REST surface.
type Server struct {
	listings  *applisting.Service
	purchases *apppurchase.Service
	agents    *appagent.Service

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

func New(listings *applisting.Service, purchases *apppurchase.Service, agents *appagent.Service, version string) *Server {
	mcpSrv := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithResourceRecovery(),
	)
	s := &Server{
		listings:   listings,
		purchases:  purchases,
		agents:     agents,
		mcpServer:  mcpSrv,
		httpServer: server.NewStreamableHTTPServer(mcpSrv, server.WithStateLess(true), server.WithDisableStreaming(true)),
	}
	s.registerListingTools()
	s.registerPurchaseTools()
	s.registerAgentTools()
	s.registerResources()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			listingURIPrefix+"{listing_id}",
			"listing",
			mcp.WithTemplateDescription("Listing with its latest transaction"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.readListingResource,
	)
}

func (s *Server) readListingResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	raw := string(request.Params.URI)
	if !strings.HasPrefix(raw, listingURIPrefix) {
		return nil, nil
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, listingURIPrefix), 10, 64)
	if err != nil || id < 0 {
		return nil, applisting.ErrInvalidListingID
	}
	listing, err := s.listings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{"listing": listing.Listing}
	// A listing that never had a purchase has no transaction yet.
	if tx, txErr := s.purchases.Latest(ctx, id); txErr == nil {
		payload["transaction"] = tx.Transaction
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      raw,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
