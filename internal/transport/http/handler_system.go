package httptransport

import (
	"context"
	"net/http"
	"time"

	"agent-marketplace/internal/notify"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type SystemHandlers struct {
	db      Pinger
	hub     *notify.Hub
	started time.Time
}

func NewSystemHandlers(db Pinger, hub *notify.Hub) *SystemHandlers {
	return &SystemHandlers{db: db, hub: hub, started: time.Now()}
}

func (h *SystemHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status":               "ok",
			"db":                   "up",
			"timestamp":            time.Now().UTC().Format(time.RFC3339Nano),
			"uptime":               time.Since(h.started).Seconds(),
			"websocketConnections": h.hub.Count(),
		}
		if err := h.db.Ping(r.Context()); err != nil {
			body["status"] = "degraded"
			body["db"] = "down"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// APIVersion is reported by GET / and the MCP handshake.
const APIVersion = "1.0.0"

var apiEndpoints = map[string]map[string]string{
	"listings": {
		"POST /listings":      "Create a new listing",
		"GET /listings":       "Browse/search listings",
		"GET /listings/:id":   "Get listing details",
		"PATCH /listings/:id": "Update listing status",
	},
	"agents": {
		"POST /agents/register":      "Register a new agent",
		"GET /agents/:id":            "Get agent details",
		"GET /agents/:id/reputation": "Get agent reputation",
		"GET /agents":                "List all agents",
	},
	"purchase": {
		"POST /purchase/request":                "Request a purchase",
		"POST /purchase/confirm":                "Confirm a purchase (seller)",
		"POST /purchase/release":                "Release funds (after delivery)",
		"GET /purchase/transactions":            "Get transaction history",
		"GET /purchase/transactions/:listingId": "Get transaction for listing",
	},
	"utility": {
		"GET /health": "Health check",
		"GET /":       "API information",
		"GET /ws":     "Notification stream",
		"GET /events": "Notification stream (server-sent events)",
		"POST /mcp":   "MCP tool endpoint",
	},
}

func (h *SystemHandlers) Info() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":        "Agent Marketplace API",
			"version":     APIVersion,
			"description": "Backend API for AI agent marketplace with blockchain escrow",
			"endpoints":   apiEndpoints,
		})
	}
}
