package indexer

import (
	"context"

	"agent-marketplace/internal/chain"
	"agent-marketplace/internal/market"
	"agent-marketplace/internal/store"
)

// Reader is the ledger side of the poller.
type Reader interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	QueryEvents(ctx context.Context, kind chain.Kind, from, to uint64) ([]chain.Event, error)
}

// CursorStore persists the watermark between restarts.
type CursorStore interface {
	GetCursor(ctx context.Context, name string) (uint64, error)
	SetCursor(ctx context.Context, name string, block uint64) error
}

// StateMachine applies chain events. *market.Machine implements it.
type StateMachine interface {
	ApplyListed(ctx context.Context, ev market.ChainListing) (*store.Listing, error)
	ApplyPurchaseRequested(ctx context.Context, ev market.ChainPurchase) (*store.Transaction, error)
	ApplyPurchaseConfirmed(ctx context.Context, ev market.ChainSettlement) (*store.Transaction, error)
	ApplyFundsReleased(ctx context.Context, ev market.ChainSettlement) (*market.Release, error)
	UpdateReputation(ctx context.Context, address string, reputation int64) (*store.Agent, error)
}
