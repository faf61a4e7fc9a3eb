package market

import "agent-marketplace/internal/store"

// NewListing is a seller-initiated listing.
type NewListing struct {
	ListingID   int64
	Seller      string
	SellerAgent string
	Title       string
	Description string
	Price       string
	Category    string
	Location    string
	Images      []string
	TxHash      string
	Metadata    map[string]any
}

type PurchaseRequest struct {
	ListingID  int64
	Buyer      string
	BuyerAgent string
	TxHash     string
}

// ListingUpdate is a manual status change. Empty fields are left as they are.
type ListingUpdate struct {
	Status     string
	Buyer      string
	BuyerAgent string
}

// ChainListing is a decoded ItemListed event.
type ChainListing struct {
	ListingID int64
	Seller    string
	Price     string
	ItemData  string
	TxHash    string
}

// ChainPurchase is a decoded PurchaseRequested event. Agent is the buyer
// agent address emitted by the contract.
type ChainPurchase struct {
	ListingID int64
	Buyer     string
	Agent     string
	TxHash    string
}

// ChainSettlement is a decoded PurchaseConfirmed or FundsReleased event.
type ChainSettlement struct {
	ListingID int64
	TxHash    string
}

// Release is the result of a completed trade.
type Release struct {
	Transaction *store.Transaction
	Listing     *store.Listing
}

// listingTransitions lists the allowed manual status changes. sold and
// cancelled have no way out.
var listingTransitions = map[string][]string{
	store.ListingActive:  {store.ListingPending, store.ListingCancelled},
	store.ListingPending: {store.ListingActive, store.ListingSold, store.ListingCancelled},
}

func canTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, s := range listingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
