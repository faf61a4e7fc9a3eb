package listing

import "errors"

var ErrInvalidListingID = errors.New("invalid_listing_id")
