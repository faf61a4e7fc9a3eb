package purchase

import (
	"agent-marketplace/internal/app/page"
	"agent-marketplace/internal/store"
)

type RequestInput struct {
	ListingID  *int64 `json:"listingId" validate:"required,gte=0"`
	Buyer      string `json:"buyer" validate:"required,eth_addr"`
	BuyerAgent string `json:"buyerAgent" validate:"required"`
	TxHash     string `json:"txHash" validate:"required"`
}

// SettleInput is the body of both /purchase/confirm and /purchase/release.
type SettleInput struct {
	ListingID *int64 `json:"listingId" validate:"required,gte=0"`
	TxHash    string `json:"txHash" validate:"required"`
}

type HistoryQuery struct {
	Status string `json:"status" validate:"omitempty,oneof=requested confirmed completed cancelled disputed"`
	Seller string `json:"seller" validate:"omitempty,eth_addr"`
	Buyer  string `json:"buyer" validate:"omitempty,eth_addr"`
	Page   string `json:"page"`
	Limit  string `json:"limit"`
}

type TransactionResponse struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message,omitempty"`
	Transaction *store.Transaction `json:"transaction"`
}

type HistoryResponse struct {
	Success      bool                `json:"success"`
	Transactions []store.Transaction `json:"transactions"`
	Pagination   page.Pagination     `json:"pagination"`
}
