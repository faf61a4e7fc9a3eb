package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	appagent "agent-marketplace/internal/app/agent"
	applisting "agent-marketplace/internal/app/listing"
	apppurchase "agent-marketplace/internal/app/purchase"
	"agent-marketplace/internal/market"
	"agent-marketplace/internal/validation"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteHTTPError(w http.ResponseWriter, status int, code string) {
	metricErrorsByCode.Add(code, 1)
	writeJSON(w, status, map[string]any{"error": code})
}

var errorStatus = []struct {
	err    error
	status int
}{
	{market.ErrListingNotFound, http.StatusNotFound},
	{market.ErrNoRequestedPurchase, http.StatusNotFound},
	{market.ErrNoConfirmedPurchase, http.StatusNotFound},
	{appagent.ErrAgentNotFound, http.StatusNotFound},
	{apppurchase.ErrTransactionNotFound, http.StatusNotFound},

	{market.ErrListingExists, http.StatusConflict},
	{market.ErrListingNotActive, http.StatusConflict},
	{market.ErrPurchaseInProgress, http.StatusConflict},
	{market.ErrInvalidTransition, http.StatusConflict},
	{appagent.ErrAgentExists, http.StatusConflict},

	{market.ErrSelfPurchase, http.StatusBadRequest},
	{market.ErrInvalidStatus, http.StatusBadRequest},
	{applisting.ErrInvalidListingID, http.StatusBadRequest},
	{apppurchase.ErrInvalidListingID, http.StatusBadRequest},
}

// writeServiceError maps a service error onto its status code. Anything
// unrecognised is logged and reported as internal_error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		metricErrorsByCode.Add(validation.ErrInvalid.Error(), 1)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": validation.ErrInvalid.Error(), "fields": verr.Fields})
		return
	}
	var inProgress *market.InProgressError
	if errors.As(err, &inProgress) {
		metricErrorsByCode.Add(market.ErrPurchaseInProgress.Error(), 1)
		writeJSON(w, http.StatusConflict, map[string]any{"error": market.ErrPurchaseInProgress.Error(), "transaction": inProgress.Transaction})
		return
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			WriteHTTPError(w, e.status, e.err.Error())
			return
		}
	}
	log.Error().Err(err).
		Str("request_id", chimw.GetReqID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request_failed")
	WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
}

// decodeJSON reads the request body into dst and writes the error response
// itself when that fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteHTTPError(w, http.StatusRequestEntityTooLarge, "payload_too_large")
			return false
		}
		WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func parseListingID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
