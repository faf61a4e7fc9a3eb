package market

import (
	"context"

	"agent-marketplace/internal/notify"
	"agent-marketplace/internal/store"
)

// Repository is the slice of the record store the state machine mutates.
// Calls made with the ctx handed to RunInTx's callback share one transaction.
type Repository interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetListing(ctx context.Context, listingID int64) (*store.Listing, error)
	GetListingForUpdate(ctx context.Context, listingID int64) (*store.Listing, error)
	CreateListing(ctx context.Context, l *store.Listing) (*store.Listing, error)
	UpsertListing(ctx context.Context, l *store.Listing) (*store.Listing, error)
	UpdateListingState(ctx context.Context, listingID int64, status, buyer, buyerAgent string) (*store.Listing, error)

	GetOpenTransaction(ctx context.Context, listingID int64) (*store.Transaction, error)
	CreateTransaction(ctx context.Context, t *store.Transaction) (*store.Transaction, error)
	AdvanceTransaction(ctx context.Context, id, from, to, hash string) (*store.Transaction, error)
	FindTransactionByHash(ctx context.Context, kind store.HashKind, hash string) (*store.Transaction, error)

	IncrementAgentTrade(ctx context.Context, agentID string, role store.TradeRole) (bool, error)
	SetAgentReputation(ctx context.Context, address string, reputation int64) (*store.Agent, error)
}

// Notifier receives one call per completed transition, after commit.
type Notifier interface {
	Publish(kind notify.Kind, data any)
}

type nopNotifier struct{}

func (nopNotifier) Publish(notify.Kind, any) {}
