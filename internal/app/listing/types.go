package listing

import (
	"encoding/json"

	"agent-marketplace/internal/app/page"
	"agent-marketplace/internal/store"
)

// CreateInput is the POST /listings body. Price accepts a JSON number or a
// numeric string and keeps its digits as sent.
type CreateInput struct {
	ListingID   *int64         `json:"listingId" validate:"required,gte=0"`
	Seller      string         `json:"seller" validate:"required,eth_addr"`
	SellerAgent string         `json:"sellerAgent" validate:"required"`
	Title       string         `json:"title" validate:"required"`
	Description string         `json:"description" validate:"required"`
	Price       json.Number    `json:"price" validate:"required,numeric"`
	Category    string         `json:"category" validate:"required"`
	Location    string         `json:"location"`
	Images      []string       `json:"images" validate:"omitempty,dive,required"`
	TxHash      string         `json:"txHash" validate:"required"`
	Metadata    map[string]any `json:"metadata"`
}

// UpdateInput is the PATCH /listings/{id} body.
type UpdateInput struct {
	Status     string `json:"status" validate:"omitempty,oneof=active pending sold cancelled"`
	Buyer      string `json:"buyer" validate:"omitempty,eth_addr"`
	BuyerAgent string `json:"buyerAgent"`
}

// BrowseQuery holds the raw GET /listings query parameters.
type BrowseQuery struct {
	Status   string `json:"status" validate:"omitempty,oneof=active pending sold cancelled"`
	Category string `json:"category"`
	Seller   string `json:"seller" validate:"omitempty,eth_addr"`
	MinPrice string `json:"minPrice" validate:"omitempty,numeric"`
	MaxPrice string `json:"maxPrice" validate:"omitempty,numeric"`
	Search   string `json:"search"`
	Page     string `json:"page"`
	Limit    string `json:"limit"`
}

type ListingResponse struct {
	Success bool           `json:"success"`
	Listing *store.Listing `json:"listing"`
}

type BrowseResponse struct {
	Success    bool            `json:"success"`
	Listings   []store.Listing `json:"listings"`
	Pagination page.Pagination `json:"pagination"`
}
