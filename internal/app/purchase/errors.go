package purchase

import "errors"

var (
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrInvalidListingID    = errors.New("invalid_listing_id")
)
