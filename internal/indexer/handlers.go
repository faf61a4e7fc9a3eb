package indexer

import (
	"context"
	"fmt"

	"agent-marketplace/internal/chain"
	"agent-marketplace/internal/market"
)

// apply routes one decoded event to the state machine. Missing records are
// no-ops inside the machine, so an error here always means the store failed.
func (p *Poller) apply(ctx context.Context, ev chain.Event) error {
	var err error
	switch ev.Kind {
	case chain.ItemListed:
		_, err = p.machine.ApplyListed(ctx, market.ChainListing{
			ListingID: ev.ListingID,
			Seller:    ev.Seller,
			Price:     ev.Price,
			ItemData:  ev.ItemData,
			TxHash:    ev.TxHash,
		})
	case chain.PurchaseRequested:
		_, err = p.machine.ApplyPurchaseRequested(ctx, market.ChainPurchase{
			ListingID: ev.ListingID,
			Buyer:     ev.Buyer,
			Agent:     ev.Agent,
			TxHash:    ev.TxHash,
		})
	case chain.PurchaseConfirmed:
		_, err = p.machine.ApplyPurchaseConfirmed(ctx, market.ChainSettlement{ListingID: ev.ListingID, TxHash: ev.TxHash})
	case chain.FundsReleased:
		_, err = p.machine.ApplyFundsReleased(ctx, market.ChainSettlement{ListingID: ev.ListingID, TxHash: ev.TxHash})
	case chain.ReputationUpdated:
		_, err = p.machine.UpdateReputation(ctx, ev.Agent, ev.NewReputation)
	default:
		return fmt.Errorf("unhandled event kind %q", ev.Kind)
	}
	if err != nil {
		return fmt.Errorf("%s listing=%d tx=%s: %w", ev.Kind, ev.ListingID, ev.TxHash, err)
	}
	return nil
}
