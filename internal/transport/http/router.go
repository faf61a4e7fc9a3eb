package httptransport

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"

	appagent "agent-marketplace/internal/app/agent"
	applisting "agent-marketplace/internal/app/listing"
	apppurchase "agent-marketplace/internal/app/purchase"
	"agent-marketplace/internal/config"
	"agent-marketplace/internal/market"
	"agent-marketplace/internal/mcpserver"
	"agent-marketplace/internal/notify"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Repository is the read side of the store the handlers need beyond the
// state machine. *store.Store and testutil.MemStore both satisfy it.
type Repository interface {
	Pinger
	applisting.Reader
	apppurchase.Reader
	appagent.Repository
}

// Deps groups what the router wires into its handlers. Reputation may be nil
// when no contract is configured.
type Deps struct {
	Repo       Repository
	Machine    *market.Machine
	Hub        *notify.Hub
	Reputation appagent.ReputationSource
	Config     config.ServerConfig
}

func NewRouter(d Deps) *chi.Mux {
	cfg := d.Config
	listingSvc := applisting.NewService(d.Machine, d.Repo)
	purchaseSvc := apppurchase.NewService(d.Machine, d.Repo)
	agentSvc := appagent.NewService(d.Repo, d.Reputation, d.Machine, cfg.ReputationTimeout)
	listings := NewListingHandlers(listingSvc)
	purchases := NewPurchaseHandlers(purchaseSvc)
	agents := NewAgentHandlers(agentSvc)
	system := NewSystemHandlers(d.Repo, d.Hub)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(CORSMiddleware(cfg.CORSOrigin))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteHTTPError(w, http.StatusNotFound, "endpoint_not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteHTTPError(w, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	streams := notify.NewServer(d.Hub, cfg.WSPingInterval)
	if cfg.WSEnabled {
		r.Get("/ws", streams.HandleWS)
	}
	if cfg.SSEEnabled {
		r.Get("/events", streams.HandleSSE)
	}

	r.Group(func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Get("/health", system.Health())
		r.Get("/", system.Info())

		r.Group(func(r chi.Router) {
			if cfg.StoreTimeout > 0 {
				r.Use(chimw.Timeout(cfg.StoreTimeout))
			}
			if cfg.MaxBodyBytes > 0 {
				r.Use(chimw.RequestSize(cfg.MaxBodyBytes))
			}

			r.Route("/listings", func(r chi.Router) {
				r.Post("/", listings.Create())
				r.Get("/", listings.Browse())
				r.Get("/{id}", listings.Get())
				r.Patch("/{id}", listings.Update())
			})
			r.Route("/agents", func(r chi.Router) {
				r.Post("/register", agents.Register())
				r.Get("/", agents.List())
				r.Get("/{id}", agents.Get())
				r.Get("/{id}/reputation", agents.Reputation())
			})
			r.Route("/purchase", func(r chi.Router) {
				r.Post("/request", purchases.Request())
				r.Post("/confirm", purchases.Confirm())
				r.Post("/release", purchases.Release())
				r.Get("/transactions", purchases.History())
				r.Get("/transactions/{listingId}", purchases.Latest())
			})
			if cfg.MCPEnabled {
				mcpHandler := mcpserver.New(listingSvc, purchaseSvc, agentSvc, APIVersion).Handler()
				r.Method(http.MethodPost, "/mcp", mcpHandler)
				r.Method(http.MethodGet, "/mcp", mcpHandler)
				r.Method(http.MethodDelete, "/mcp", mcpHandler)
			}
		})

		r.Route("/debug", func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
			r.Use(BodyCaptureMiddleware(4096))
			r.Get("/vars", expvar.Handler().ServeHTTP)
		})
	})
	return r
}

// LogRoutes prints the route table at debug level.
func LogRoutes(r chi.Router) {
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		return
	}
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 32)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("%-6s %s\n", rt.Method, rt.Path))
	}
	log.Debug().Int("count", len(routes)).Str("routes", b.String()).Msg("registered_routes")
}
