package httptransport

import (
	"net/http"

	apppurchase "agent-marketplace/internal/app/purchase"

	"github.com/go-chi/chi/v5"
)

type PurchaseHandlers struct {
	svc *apppurchase.Service
}

func NewPurchaseHandlers(svc *apppurchase.Service) *PurchaseHandlers {
	return &PurchaseHandlers{svc: svc}
}

func (h *PurchaseHandlers) Request() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body apppurchase.RequestInput
		if !decodeJSON(w, r, &body) {
			return
		}
		resp, err := h.svc.Request(r.Context(), body)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		metricPurchaseRequests.Add(1)
		writeJSON(w, http.StatusCreated, resp)
	}
}

func (h *PurchaseHandlers) Confirm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body apppurchase.SettleInput
		if !decodeJSON(w, r, &body) {
			return
		}
		resp, err := h.svc.Confirm(r.Context(), body)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *PurchaseHandlers) Release() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body apppurchase.SettleInput
		if !decodeJSON(w, r, &body) {
			return
		}
		resp, err := h.svc.Release(r.Context(), body)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		metricFundsReleased.Add(1)
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *PurchaseHandlers) History() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		resp, err := h.svc.History(r.Context(), apppurchase.HistoryQuery{
			Status: q.Get("status"),
			Seller: q.Get("seller"),
			Buyer:  q.Get("buyer"),
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

func (h *PurchaseHandlers) Latest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseListingID(chi.URLParam(r, "listingId"))
		if !ok {
			WriteHTTPError(w, http.StatusBadRequest, apppurchase.ErrInvalidListingID.Error())
			return
		}
		resp, err := h.svc.Latest(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
