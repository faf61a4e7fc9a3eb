package httptransport

import (
	"net/http"

	appagent "agent-marketplace/internal/app/agent"

	"github.com/go-chi/chi/v5"
)

type AgentHandlers struct {
	svc *appagent.Service
}

func NewAgentHandlers(svc *appagent.Service) *AgentHandlers {
	return &AgentHandlers{svc: svc}
}

func (h *AgentHandlers) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body appagent.RegisterInput
		if !decodeJSON(w, r, &body) {
			return
		}
		resp, err := h.svc.Register(r.Context(), body)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func (h *AgentHandlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *AgentHandlers) Reputation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.svc.Reputation(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *AgentHandlers) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		resp, err := h.svc.List(r.Context(), appagent.ListQuery{
			SortBy: q.Get("sortBy"),
			Page:   q.Get("page"),
			Limit:  q.Get("limit"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
