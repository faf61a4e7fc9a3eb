package store

import "time"

const (
	ListingActive    = "active"
	ListingPending   = "pending"
	ListingSold      = "sold"
	ListingCancelled = "cancelled"
)

const (
	TxRequested = "requested"
	TxConfirmed = "confirmed"
	TxCompleted = "completed"
	TxCancelled = "cancelled"
	TxDisputed  = "disputed"
)

// ValidListingStatus reports whether s is one of the four listing states.
func ValidListingStatus(s string) bool {
	switch s {
	case ListingActive, ListingPending, ListingSold, ListingCancelled:
		return true
	}
	return false
}

func ValidTxStatus(s string) bool {
	switch s {
	case TxRequested, TxConfirmed, TxCompleted, TxCancelled, TxDisputed:
		return true
	}
	return false
}

type Agent struct {
	AgentID          string         `json:"agentId"`
	Address          string         `json:"address"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	Owner            string         `json:"owner"`
	Reputation       int64          `json:"reputation"`
	TotalSales       int64          `json:"totalSales"`
	TotalPurchases   int64          `json:"totalPurchases"`
	SuccessfulTrades int64          `json:"successfulTrades"`
	ScamReports      int64          `json:"scamReports"`
	IsActive         bool           `json:"isActive"`
	Metadata         map[string]any `json:"metadata"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Listing prices are canonical decimal strings.
type Listing struct {
	ListingID   int64          `json:"listingId"`
	Seller      string         `json:"seller"`
	SellerAgent string         `json:"sellerAgent"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Price       string         `json:"price"`
	Category    string         `json:"category"`
	Location    string         `json:"location,omitempty"`
	Images      []string       `json:"images"`
	Status      string         `json:"status"`
	Buyer       string         `json:"buyer,omitempty"`
	BuyerAgent  string         `json:"buyerAgent,omitempty"`
	TxHash      string         `json:"txHash"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type Transaction struct {
	ID            string         `json:"id"`
	ListingID     int64          `json:"listingId"`
	Seller        string         `json:"seller"`
	Buyer         string         `json:"buyer"`
	SellerAgent   string         `json:"sellerAgent"`
	BuyerAgent    string         `json:"buyerAgent"`
	Price         string         `json:"price"`
	Status        string         `json:"status"`
	RequestTxHash string         `json:"requestTxHash"`
	ConfirmTxHash string         `json:"confirmTxHash,omitempty"`
	ReleaseTxHash string         `json:"releaseTxHash,omitempty"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Open reports whether the transaction still blocks new purchase requests.
func (t *Transaction) Open() bool {
	return t.Status == TxRequested || t.Status == TxConfirmed
}

// HashKind selects which chain hash column a lookup matches.
type HashKind int

const (
	HashRequest HashKind = iota
	HashConfirm
	HashRelease
)

// TradeRole selects which counters a completed trade increments.
type TradeRole int

const (
	RoleSeller TradeRole = iota
	RoleBuyer
)

type ListingFilter struct {
	Status   string
	Category string
	Seller   string
	MinPrice string
	MaxPrice string
	Search   string
	Limit    int
	Offset   int
}

type AgentFilter struct {
	SortBy string
	Limit  int
	Offset int
}

type TransactionFilter struct {
	Status string
	Seller string
	Buyer  string
	Limit  int
	Offset int
}
