package market

import (
	"context"
	"errors"
	"strings"

	"agent-marketplace/internal/notify"
	"agent-marketplace/internal/store"

	"github.com/rs/zerolog/log"
)

// ApplyListed upserts the listing named by an ItemListed event. Chain fields
// win over anything entered through HTTP. Re-applying the event that produced
// the stored row (same tx hash) refreshes its fields but keeps the status and
// buyer it has reached since.
func (m *Machine) ApplyListed(ctx context.Context, ev ChainListing) (*store.Listing, error) {
	defer m.locks.Lock(ev.ListingID)()

	item := parseItemData(ev.ItemData)
	next := &store.Listing{
		ListingID:   ev.ListingID,
		Seller:      strings.ToLower(ev.Seller),
		SellerAgent: item.AgentID,
		Title:       item.Title,
		Description: item.Description,
		Price:       ev.Price,
		Category:    item.Category,
		Location:    item.Location,
		Images:      item.Images,
		Status:      store.ListingActive,
		TxHash:      strings.ToLower(ev.TxHash),
		Metadata:    item.Metadata,
	}

	var (
		out    *store.Listing
		replay bool
	)
	err := m.repo.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := m.repo.GetListingForUpdate(ctx, ev.ListingID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if cur != nil && strings.EqualFold(cur.TxHash, ev.TxHash) {
			replay = true
			next.Status, next.Buyer, next.BuyerAgent = cur.Status, cur.Buyer, cur.BuyerAgent
		}
		out, err = m.repo.UpsertListing(ctx, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("listing_id", ev.ListingID).Str("tx_hash", ev.TxHash).Bool("replay", replay).Msg("chain_item_listed")
	if !replay {
		m.notifier.Publish(notify.ListingCreated, out)
	}
	return out, nil
}

// ApplyPurchaseRequested marks the listing pending and records a requested
// transaction. A missing listing, an already recorded request hash, or an
// open transaction from another request leave the store untouched.
func (m *Machine) ApplyPurchaseRequested(ctx context.Context, ev ChainPurchase) (*store.Transaction, error) {
	defer m.locks.Lock(ev.ListingID)()

	if seen, err := m.seen(ctx, store.HashRequest, ev.TxHash); seen || err != nil {
		return nil, err
	}
	buyer, agent := strings.ToLower(ev.Buyer), strings.ToLower(ev.Agent)

	var created *store.Transaction
	err := m.repo.RunInTx(ctx, func(ctx context.Context) error {
		l, err := m.repo.GetListingForUpdate(ctx, ev.ListingID)
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Int64("listing_id", ev.ListingID).Str("tx_hash", ev.TxHash).Msg("chain_purchase_listing_missing")
			return nil
		}
		if err != nil {
			return err
		}
		open, err := m.repo.GetOpenTransaction(ctx, ev.ListingID)
		if err == nil {
			log.Warn().Int64("listing_id", ev.ListingID).Str("open_tx", open.ID).Str("tx_hash", ev.TxHash).Msg("chain_purchase_already_open")
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if _, err := m.repo.UpdateListingState(ctx, ev.ListingID, store.ListingPending, buyer, agent); err != nil {
			return err
		}
		created, err = m.repo.CreateTransaction(ctx, &store.Transaction{
			ListingID:     ev.ListingID,
			Seller:        l.Seller,
			Buyer:         buyer,
			SellerAgent:   l.SellerAgent,
			BuyerAgent:    agent,
			Price:         l.Price,
			Status:        store.TxRequested,
			RequestTxHash: ev.TxHash,
		})
		return err
	})
	if err != nil || created == nil {
		return nil, err
	}
	log.Info().Int64("listing_id", ev.ListingID).Str("buyer", buyer).Str("tx_hash", ev.TxHash).Msg("chain_purchase_requested")
	m.notifier.Publish(notify.PurchaseRequested, created)
	return created, nil
}

// ApplyPurchaseConfirmed advances the requested transaction of the listing.
// Nothing to confirm is a no-op.
func (m *Machine) ApplyPurchaseConfirmed(ctx context.Context, ev ChainSettlement) (*store.Transaction, error) {
	defer m.locks.Lock(ev.ListingID)()

	if seen, err := m.seen(ctx, store.HashConfirm, ev.TxHash); seen || err != nil {
		return nil, err
	}
	open, err := m.repo.GetOpenTransaction(ctx, ev.ListingID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && open.Status != store.TxRequested) {
		log.Debug().Int64("listing_id", ev.ListingID).Str("tx_hash", ev.TxHash).Msg("chain_confirm_nothing_requested")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tx, err := m.repo.AdvanceTransaction(ctx, open.ID, store.TxRequested, store.TxConfirmed, ev.TxHash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	log.Info().Int64("listing_id", ev.ListingID).Str("tx_hash", ev.TxHash).Msg("chain_purchase_confirmed")
	m.notifier.Publish(notify.PurchaseConfirmed, tx)
	return tx, nil
}

// ApplyFundsReleased marks the listing sold and, when a confirmed
// transaction exists, completes it and credits both agents in the same
// store transaction. Without one only the listing changes.
func (m *Machine) ApplyFundsReleased(ctx context.Context, ev ChainSettlement) (*Release, error) {
	defer m.locks.Lock(ev.ListingID)()

	if seen, err := m.seen(ctx, store.HashRelease, ev.TxHash); seen || err != nil {
		return nil, err
	}
	var out *Release
	err := m.repo.RunInTx(ctx, func(ctx context.Context) error {
		open, err := m.repo.GetOpenTransaction(ctx, ev.ListingID)
		if err == nil && open.Status == store.TxConfirmed {
			out, err = m.settle(ctx, open, ev.TxHash)
			if errors.Is(err, ErrNoConfirmedPurchase) {
				out = nil
				return nil
			}
			return err
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		l, err := m.repo.GetListingForUpdate(ctx, ev.ListingID)
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Int64("listing_id", ev.ListingID).Str("tx_hash", ev.TxHash).Msg("chain_release_listing_missing")
			return nil
		}
		if err != nil {
			return err
		}
		sold, err := m.repo.UpdateListingState(ctx, ev.ListingID, store.ListingSold, l.Buyer, l.BuyerAgent)
		if err != nil {
			return err
		}
		log.Warn().Int64("listing_id", ev.ListingID).Str("tx_hash", ev.TxHash).Msg("chain_release_without_confirmed_purchase")
		out = &Release{Listing: sold}
		return nil
	})
	if err != nil || out == nil || out.Transaction == nil {
		return out, err
	}
	log.Info().Int64("listing_id", ev.ListingID).Str("tx_hash", ev.TxHash).Msg("chain_funds_released")
	m.notifier.Publish(notify.FundsReleased, out.Transaction)
	return out, nil
}

func (m *Machine) seen(ctx context.Context, kind store.HashKind, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	tx, err := m.repo.FindTransactionByHash(ctx, kind, hash)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	log.Debug().Str("tx_hash", hash).Str("transaction_id", tx.ID).Msg("chain_event_already_applied")
	return true, nil
}
