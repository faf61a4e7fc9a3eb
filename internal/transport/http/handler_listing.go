package httptransport

import (
	"net/http"

	applisting "agent-marketplace/internal/app/listing"

	"github.com/go-chi/chi/v5"
)

type ListingHandlers struct {
	svc *applisting.Service
}

func NewListingHandlers(svc *applisting.Service) *ListingHandlers {
	return &ListingHandlers{svc: svc}
}

func (h *ListingHandlers) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body applisting.CreateInput
		if !decodeJSON(w, r, &body) {
			return
		}
		resp, err := h.svc.Create(r.Context(), body)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		metricListingsCreated.Add(1)
		writeJSON(w, http.StatusCreated, resp)
	}
}

func (h *ListingHandlers) Browse() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		resp, err := h.svc.Browse(r.Context(), applisting.BrowseQuery{
			Status:   q.Get("status"),
			Category: q.Get("category"),
			Seller:   q.Get("seller"),
			MinPrice: q.Get("minPrice"),
			MaxPrice: q.Get("maxPrice"),
			Search:   q.Get("search"),
			Page:     q.Get("page"),
			Limit:    q.Get("limit"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *ListingHandlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseListingID(chi.URLParam(r, "id"))
		if !ok {
			WriteHTTPError(w, http.StatusBadRequest, applisting.ErrInvalidListingID.Error())
			return
		}
		resp, err := h.svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *ListingHandlers) Update() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseListingID(chi.URLParam(r, "id"))
		if !ok {
			WriteHTTPError(w, http.StatusBadRequest, applisting.ErrInvalidListingID.Error())
			return
		}
		var body applisting.UpdateInput
		if !decodeJSON(w, r, &body) {
			return
		}
		resp, err := h.svc.Update(r.Context(), id, body)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
