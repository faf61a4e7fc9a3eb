package market

import (
	"context"
	"errors"
	"strings"

	"agent-marketplace/internal/notify"
	"agent-marketplace/internal/store"

	"github.com/rs/zerolog/log"
)

// Machine owns every Listing and Transaction status change. HTTP handlers use
// the strict methods, which report guard failures as errors. The chain
// indexer uses the Apply methods, which treat missing records and failed
// guards as logged no-ops so a block range can be replayed safely.
type Machine struct {
	repo     Repository
	notifier Notifier
	locks    *keyedMutex
}

func NewMachine(repo Repository, notifier Notifier) *Machine {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Machine{repo: repo, notifier: notifier, locks: newKeyedMutex()}
}

func (m *Machine) CreateListing(ctx context.Context, in NewListing) (*store.Listing, error) {
	defer m.locks.Lock(in.ListingID)()

	l, err := m.repo.CreateListing(ctx, &store.Listing{
		ListingID:   in.ListingID,
		Seller:      strings.ToLower(in.Seller),
		SellerAgent: in.SellerAgent,
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Location:    in.Location,
		Images:      in.Images,
		Status:      store.ListingActive,
		TxHash:      strings.ToLower(in.TxHash),
		Metadata:    in.Metadata,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrListingExists
	}
	if err != nil {
		return nil, err
	}
	log.Info().Int64("listing_id", l.ListingID).Str("title", l.Title).Msg("listing_created")
	m.notifier.Publish(notify.ListingCreated, l)
	return l, nil
}

// RequestPurchase moves an active listing to pending and opens a requested
// transaction for it. Guards run in order: listing exists, listing is
// active, buyer is not the seller, no open transaction.
func (m *Machine) RequestPurchase(ctx context.Context, in PurchaseRequest) (*store.Transaction, error) {
	defer m.locks.Lock(in.ListingID)()

	buyer := strings.ToLower(in.Buyer)
	var created *store.Transaction
	err := m.repo.RunInTx(ctx, func(ctx context.Context) error {
		l, err := m.repo.GetListingForUpdate(ctx, in.ListingID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrListingNotFound
		}
		if err != nil {
			return err
		}
		if l.Status != store.ListingActive {
			return ErrListingNotActive
		}
		if strings.EqualFold(l.Seller, buyer) {
			return ErrSelfPurchase
		}
		open, err := m.repo.GetOpenTransaction(ctx, in.ListingID)
		if err == nil {
			return &InProgressError{Transaction: open}
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if _, err := m.repo.UpdateListingState(ctx, in.ListingID, store.ListingPending, buyer, in.BuyerAgent); err != nil {
			return err
		}
		created, err = m.repo.CreateTransaction(ctx, &store.Transaction{
			ListingID:     in.ListingID,
			Seller:        l.Seller,
			Buyer:         buyer,
			SellerAgent:   l.SellerAgent,
			BuyerAgent:    in.BuyerAgent,
			Price:         l.Price,
			Status:        store.TxRequested,
			RequestTxHash: in.TxHash,
		})
		if errors.Is(err, store.ErrConflict) {
			return ErrPurchaseInProgress
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("listing_id", in.ListingID).Str("buyer_agent", in.BuyerAgent).Str("tx_hash", in.TxHash).Msg("purchase_requested")
	m.notifier.Publish(notify.PurchaseRequested, created)
	return created, nil
}

func (m *Machine) ConfirmPurchase(ctx context.Context, listingID int64, txHash string) (*store.Transaction, error) {
	defer m.locks.Lock(listingID)()

	open, err := m.repo.GetOpenTransaction(ctx, listingID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && open.Status != store.TxRequested) {
		return nil, ErrNoRequestedPurchase
	}
	if err != nil {
		return nil, err
	}
	tx, err := m.repo.AdvanceTransaction(ctx, open.ID, store.TxRequested, store.TxConfirmed, txHash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoRequestedPurchase
	}
	if err != nil {
		return nil, err
	}
	log.Info().Int64("listing_id", listingID).Str("tx_hash", txHash).Msg("purchase_confirmed")
	m.notifier.Publish(notify.PurchaseConfirmed, tx)
	return tx, nil
}

// ReleaseFunds completes the confirmed transaction of a listing. The status
// change, the sold listing and both agents' counters commit together.
func (m *Machine) ReleaseFunds(ctx context.Context, listingID int64, txHash string) (*Release, error) {
	defer m.locks.Lock(listingID)()

	var out *Release
	err := m.repo.RunInTx(ctx, func(ctx context.Context) error {
		open, err := m.repo.GetOpenTransaction(ctx, listingID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && open.Status != store.TxConfirmed) {
			return ErrNoConfirmedPurchase
		}
		if err != nil {
			return err
		}
		out, err = m.settle(ctx, open, txHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("listing_id", listingID).Str("tx_hash", txHash).Msg("funds_released")
	m.notifier.Publish(notify.FundsReleased, out.Transaction)
	return out, nil
}

// settle must run inside RunInTx. A missing listing or agent is skipped.
func (m *Machine) settle(ctx context.Context, open *store.Transaction, txHash string) (*Release, error) {
	tx, err := m.repo.AdvanceTransaction(ctx, open.ID, store.TxConfirmed, store.TxCompleted, txHash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoConfirmedPurchase
	}
	if err != nil {
		return nil, err
	}
	out := &Release{Transaction: tx}
	l, err := m.repo.UpdateListingState(ctx, tx.ListingID, store.ListingSold, tx.Buyer, tx.BuyerAgent)
	switch {
	case err == nil:
		out.Listing = l
	case errors.Is(err, store.ErrNotFound):
		log.Warn().Int64("listing_id", tx.ListingID).Msg("release_listing_missing")
	default:
		return nil, err
	}
	for _, side := range []struct {
		agentID string
		role    store.TradeRole
	}{
		{tx.SellerAgent, store.RoleSeller},
		{tx.BuyerAgent, store.RoleBuyer},
	} {
		ok, err := m.repo.IncrementAgentTrade(ctx, side.agentID, side.role)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Debug().Str("agent_id", side.agentID).Msg("trade_counter_agent_missing")
		}
	}
	return out, nil
}

// UpdateListing applies a manual status change from the listing table of
// allowed transitions.
func (m *Machine) UpdateListing(ctx context.Context, listingID int64, upd ListingUpdate) (*store.Listing, error) {
	if upd.Status != "" && !store.ValidListingStatus(upd.Status) {
		return nil, ErrInvalidStatus
	}
	defer m.locks.Lock(listingID)()

	var out *store.Listing
	err := m.repo.RunInTx(ctx, func(ctx context.Context) error {
		l, err := m.repo.GetListingForUpdate(ctx, listingID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrListingNotFound
		}
		if err != nil {
			return err
		}
		target := l.Status
		if upd.Status != "" {
			target = upd.Status
		}
		if !canTransition(l.Status, target) {
			return ErrInvalidTransition
		}
		if l.Status == store.ListingPending && target != store.ListingPending {
			open, err := m.repo.GetOpenTransaction(ctx, listingID)
			if err == nil {
				return &InProgressError{Transaction: open}
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		buyer, buyerAgent := l.Buyer, l.BuyerAgent
		if upd.Buyer != "" {
			buyer = strings.ToLower(upd.Buyer)
		}
		if upd.BuyerAgent != "" {
			buyerAgent = upd.BuyerAgent
		}
		if target == store.ListingActive {
			if upd.Buyer != "" || upd.BuyerAgent != "" {
				return ErrInvalidTransition
			}
			buyer, buyerAgent = "", ""
		}
		out, err = m.repo.UpdateListingState(ctx, listingID, target, buyer, buyerAgent)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("listing_id", listingID).Str("status", out.Status).Msg("listing_updated")
	return out, nil
}

// UpdateReputation overwrites the cached reputation of the agent at address.
// An unknown address is a no-op and returns nil, nil.
func (m *Machine) UpdateReputation(ctx context.Context, address string, reputation int64) (*store.Agent, error) {
	a, err := m.repo.SetAgentReputation(ctx, strings.ToLower(address), reputation)
	if errors.Is(err, store.ErrNotFound) {
		log.Debug().Str("address", address).Int64("reputation", reputation).Msg("reputation_agent_missing")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("agent_id", a.AgentID).Int64("reputation", reputation).Msg("reputation_updated")
	m.notifier.Publish(notify.ReputationUpdated, a)
	return a, nil
}
