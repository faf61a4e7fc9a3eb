package market

import (
	"errors"

	"agent-marketplace/internal/store"
)

var (
	ErrListingNotFound     = errors.New("listing_not_found")
	ErrListingExists       = errors.New("listing_exists")
	ErrListingNotActive    = errors.New("listing_not_active")
	ErrSelfPurchase        = errors.New("self_purchase")
	ErrPurchaseInProgress  = errors.New("purchase_in_progress")
	ErrNoRequestedPurchase = errors.New("no_requested_purchase")
	ErrNoConfirmedPurchase = errors.New("no_confirmed_purchase")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrInvalidStatus       = errors.New("invalid_status")
)

// InProgressError carries the open transaction that blocked a purchase request.
type InProgressError struct {
	Transaction *store.Transaction
}

func (e *InProgressError) Error() string {
	return ErrPurchaseInProgress.Error()
}

func (e *InProgressError) Unwrap() error {
	return ErrPurchaseInProgress
}
