package market

import (
	"context"
	"errors"
	"sync"
	"testing"

	"agent-marketplace/internal/notify"
	"agent-marketplace/internal/store"
	"agent-marketplace/internal/testutil"
)

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []notify.Kind
}

func (r *recordingNotifier) Publish(kind notify.Kind, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *recordingNotifier) count(kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

const (
	sellerAddr = "0xaa00000000000000000000000000000000000001"
	buyerAddr  = "0xbb00000000000000000000000000000000000002"
)

func newMachine(t *testing.T) (*Machine, *testutil.MemStore, *recordingNotifier) {
	t.Helper()
	st := testutil.NewMemStore()
	n := &recordingNotifier{}
	return NewMachine(st, n), st, n
}

func seedAgents(t *testing.T, st *testutil.MemStore) {
	t.Helper()
	ctx := context.Background()
	for _, a := range []store.Agent{
		{AgentID: "seller-agent", Address: sellerAddr, Name: "S", Owner: "o", Reputation: 100},
		{AgentID: "buyer-agent", Address: buyerAddr, Name: "B", Owner: "o", Reputation: 100},
	} {
		a := a
		if _, err := st.CreateAgent(ctx, &a); err != nil {
			t.Fatalf("seed agent: %v", err)
		}
	}
}

func seedListing(t *testing.T, m *Machine, id int64) *store.Listing {
	t.Helper()
	l, err := m.CreateListing(context.Background(), NewListing{
		ListingID:   id,
		Seller:      "0xAA00000000000000000000000000000000000001",
		SellerAgent: "seller-agent",
		Title:       "GPU",
		Description: "RTX",
		Price:       "100",
		Category:    "electronics",
		TxHash:      "0xlist",
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

func TestCreateListingRejectsDuplicate(t *testing.T) {
	m, _, n := newMachine(t)
	l := seedListing(t, m, 7)
	if l.Status != store.ListingActive || l.Seller != sellerAddr {
		t.Fatalf("unexpected listing: %+v", l)
	}
	_, err := m.CreateListing(context.Background(), NewListing{ListingID: 7, Seller: sellerAddr, Price: "1"})
	if !errors.Is(err, ErrListingExists) {
		t.Fatalf("expected ErrListingExists, got %v", err)
	}
	if n.count(notify.ListingCreated) != 1 {
		t.Fatalf("expected one listing_created, got %d", n.count(notify.ListingCreated))
	}
}

func TestRequestPurchaseGuards(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newMachine(t)

	_, err := m.RequestPurchase(ctx, PurchaseRequest{ListingID: 1, Buyer: buyerAddr, BuyerAgent: "b", TxHash: "0x1"})
	if !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}

	seedListing(t, m, 1)
	_, err = m.RequestPurchase(ctx, PurchaseRequest{ListingID: 1, Buyer: "0xAA00000000000000000000000000000000000001", BuyerAgent: "b", TxHash: "0x1"})
	if !errors.Is(err, ErrSelfPurchase) {
		t.Fatalf("expected ErrSelfPurchase, got %v", err)
	}

	if _, err := st.UpdateListingState(ctx, 1, store.ListingCancelled, "", ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = m.RequestPurchase(ctx, PurchaseRequest{ListingID: 1, Buyer: buyerAddr, BuyerAgent: "b", TxHash: "0x1"})
	if !errors.Is(err, ErrListingNotActive) {
		t.Fatalf("expected ErrListingNotActive, got %v", err)
	}
	// The status check comes before the seller check.
	_, err = m.RequestPurchase(ctx, PurchaseRequest{ListingID: 1, Buyer: "0xAA00000000000000000000000000000000000001", BuyerAgent: "b", TxHash: "0x1"})
	if !errors.Is(err, ErrListingNotActive) {
		t.Fatalf("seller on cancelled listing: expected ErrListingNotActive, got %v", err)
	}
	if got := st.Transactions(1); len(got) != 0 {
		t.Fatalf("guards must not create transactions, got %d", len(got))
	}
}

func TestPurchaseHappyPath(t *testing.T) {
	ctx := context.Background()
	m, st, n := newMachine(t)
	seedAgents(t, st)
	seedListing(t, m, 7)

	tx, err := m.RequestPurchase(ctx, PurchaseRequest{ListingID: 7, Buyer: "0xBB00000000000000000000000000000000000002", BuyerAgent: "buyer-agent", TxHash: "0xreq"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if tx.Status != store.TxRequested || tx.Buyer != buyerAddr || tx.Price != "100" || tx.SellerAgent != "seller-agent" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	l, _ := st.GetListing(ctx, 7)
	if l.Status != store.ListingPending || l.Buyer != buyerAddr || l.BuyerAgent != "buyer-agent" {
		t.Fatalf("unexpected listing after request: %+v", l)
	}

	_, err = m.RequestPurchase(ctx, PurchaseRequest{ListingID: 7, Buyer: "0xcc", BuyerAgent: "other", TxHash: "0xreq2"})
	if !errors.Is(err, ErrListingNotActive) {
		t.Fatalf("expected ErrListingNotActive on pending listing, got %v", err)
	}

	if _, err := m.ReleaseFunds(ctx, 7, "0xrel"); !errors.Is(err, ErrNoConfirmedPurchase) {
		t.Fatalf("release before confirm: expected ErrNoConfirmedPurchase, got %v", err)
	}
	if _, err := m.ConfirmPurchase(ctx, 7, "0xconf"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := m.ConfirmPurchase(ctx, 7, "0xconf2"); !errors.Is(err, ErrNoRequestedPurchase) {
		t.Fatalf("second confirm: expected ErrNoRequestedPurchase, got %v", err)
	}

	rel, err := m.ReleaseFunds(ctx, 7, "0xrel")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	done := rel.Transaction
	if done.Status != store.TxCompleted {
		t.Fatalf("status = %s", done.Status)
	}
	if done.RequestTxHash == "" || done.ConfirmTxHash == "" || done.ReleaseTxHash == "" {
		t.Fatalf("completed transaction must carry all hashes: %+v", done)
	}
	if rel.Listing == nil || rel.Listing.Status != store.ListingSold {
		t.Fatalf("listing not sold: %+v", rel.Listing)
	}

	seller, _ := st.GetAgent(ctx, "seller-agent")
	buyer, _ := st.GetAgent(ctx, "buyer-agent")
	if seller.TotalSales != 1 || seller.SuccessfulTrades != 1 {
		t.Fatalf("seller counters: %+v", seller)
	}
	if buyer.TotalPurchases != 1 || buyer.SuccessfulTrades != 1 {
		t.Fatalf("buyer counters: %+v", buyer)
	}

	for _, k := range []notify.Kind{notify.PurchaseRequested, notify.PurchaseConfirmed, notify.FundsReleased} {
		if n.count(k) != 1 {
			t.Fatalf("expected one %s notification, got %d", k, n.count(k))
		}
	}
}

func TestRequestOnActiveListingWithOpenTransaction(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newMachine(t)
	seedListing(t, m, 4)

	tx, err := m.RequestPurchase(ctx, PurchaseRequest{ListingID: 4, Buyer: buyerAddr, BuyerAgent: "buyer-agent", TxHash: "0xreq"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	// A relist from the chain forces the listing active while the request
	// is still open.
	if _, err := m.ApplyListed(ctx, ChainListing{ListingID: 4, Seller: "0xaa00000000000000000000000000000000000001", Price: "100", ItemData: `{"title":"GPU"}`, TxHash: "0xrelist"}); err != nil {
		t.Fatalf("relist: %v", err)
	}

	_, err = m.RequestPurchase(ctx, PurchaseRequest{ListingID: 4, Buyer: "0xcc", BuyerAgent: "other", TxHash: "0xreq2"})
	var inProgress *InProgressError
	if !errors.As(err, &inProgress) || !errors.Is(err, ErrPurchaseInProgress) {
		t.Fatalf("expected InProgressError, got %v", err)
	}
	if inProgress.Transaction == nil || inProgress.Transaction.ID != tx.ID {
		t.Fatalf("in-progress error should carry the open transaction, got %+v", inProgress.Transaction)
	}
}

func TestConcurrentRequestsOpenOneTransaction(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	seedListing(t, NewMachine(st, nil), 7)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, inUse int
	)
	for i := 0; i < workers; i++ {
		// Separate machines do not share in-process locks, so only the
		// store can serialize them.
		m := NewMachine(st, nil)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.RequestPurchase(ctx, PurchaseRequest{
				ListingID:  7,
				Buyer:      buyerAddr,
				BuyerAgent: "buyer-agent",
				TxHash:     "0xreq" + string(rune('a'+i)),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrListingNotActive), errors.Is(err, ErrPurchaseInProgress):
				inUse++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 1 || inUse != workers-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", workers-1, ok, inUse)
	}
	open := 0
	for _, tx := range st.Transactions(7) {
		if tx.Open() {
			open++
		}
	}
	if open != 1 {
		t.Fatalf("expected exactly one open transaction, got %d", open)
	}
}

func TestReleaseRollsBackWhenCounterUpdateFails(t *testing.T) {
	ctx := context.Background()
	m, st, n := newMachine(t)
	seedAgents(t, st)
	seedListing(t, m, 3)
	if _, err := m.RequestPurchase(ctx, PurchaseRequest{ListingID: 3, Buyer: buyerAddr, BuyerAgent: "buyer-agent", TxHash: "0xr"}); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := m.ConfirmPurchase(ctx, 3, "0xc"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	boom := errors.New("store unavailable")
	st.FailNext("IncrementAgentTrade", boom)
	if _, err := m.ReleaseFunds(ctx, 3, "0xrel"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}

	open, err := st.GetOpenTransaction(ctx, 3)
	if err != nil || open.Status != store.TxConfirmed {
		t.Fatalf("transaction should still be confirmed: %v %+v", err, open)
	}
	l, _ := st.GetListing(ctx, 3)
	if l.Status != store.ListingPending {
		t.Fatalf("listing should still be pending, got %s", l.Status)
	}
	if n.count(notify.FundsReleased) != 0 {
		t.Fatal("failed release must not notify")
	}

	if _, err := m.ReleaseFunds(ctx, 3, "0xrel"); err != nil {
		t.Fatalf("retry release: %v", err)
	}
	seller, _ := st.GetAgent(ctx, "seller-agent")
	if seller.SuccessfulTrades != 1 {
		t.Fatalf("counters should be applied exactly once, got %d", seller.SuccessfulTrades)
	}
}

func TestUpdateListingTransitions(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newMachine(t)
	seedListing(t, m, 1)

	if _, err := m.UpdateListing(ctx, 1, ListingUpdate{Status: "archived"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := m.UpdateListing(ctx, 1, ListingUpdate{Status: store.ListingSold}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("active->sold should be refused, got %v", err)
	}
	if _, err := m.UpdateListing(ctx, 1, ListingUpdate{Buyer: buyerAddr}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("buyer on active listing should be refused, got %v", err)
	}

	l, err := m.UpdateListing(ctx, 1, ListingUpdate{Status: store.ListingPending, Buyer: "0xBB00000000000000000000000000000000000002", BuyerAgent: "b"})
	if err != nil {
		t.Fatalf("active->pending: %v", err)
	}
	if l.Buyer != buyerAddr || l.BuyerAgent != "b" {
		t.Fatalf("buyer not recorded: %+v", l)
	}

	l, err = m.UpdateListing(ctx, 1, ListingUpdate{Status: store.ListingActive})
	if err != nil {
		t.Fatalf("pending->active: %v", err)
	}
	if l.Buyer != "" || l.BuyerAgent != "" {
		t.Fatalf("buyer should be cleared on reactivation: %+v", l)
	}

	if _, err := m.UpdateListing(ctx, 1, ListingUpdate{Status: store.ListingCancelled}); err != nil {
		t.Fatalf("active->cancelled: %v", err)
	}
	if _, err := m.UpdateListing(ctx, 1, ListingUpdate{Status: store.ListingActive}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancelled is terminal, got %v", err)
	}
	if _, err := m.UpdateListing(ctx, 99, ListingUpdate{Status: store.ListingCancelled}); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
}

func TestUpdateListingRefusesToLeavePendingWithOpenPurchase(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newMachine(t)
	seedListing(t, m, 1)
	if _, err := m.RequestPurchase(ctx, PurchaseRequest{ListingID: 1, Buyer: buyerAddr, BuyerAgent: "b", TxHash: "0xr"}); err != nil {
		t.Fatalf("request: %v", err)
	}
	for _, to := range []string{store.ListingActive, store.ListingSold, store.ListingCancelled} {
		if _, err := m.UpdateListing(ctx, 1, ListingUpdate{Status: to}); !errors.Is(err, ErrPurchaseInProgress) {
			t.Fatalf("pending->%s with open purchase: expected ErrPurchaseInProgress, got %v", to, err)
		}
	}
}

func TestUpdateReputationMissingAgentIsNoop(t *testing.T) {
	ctx := context.Background()
	m, st, n := newMachine(t)

	a, err := m.UpdateReputation(ctx, "0xdead", 150)
	if err != nil || a != nil {
		t.Fatalf("expected nil, nil for unknown agent, got %+v %v", a, err)
	}
	if _, err := st.GetAgent(ctx, "0xdead"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("no agent should be created, got %v", err)
	}
	if n.count(notify.ReputationUpdated) != 0 {
		t.Fatal("no notification expected")
	}

	seedAgents(t, st)
	a, err = m.UpdateReputation(ctx, "0xBB00000000000000000000000000000000000002", 150)
	if err != nil || a == nil || a.Reputation != 150 {
		t.Fatalf("update: %+v %v", a, err)
	}
	if n.count(notify.ReputationUpdated) != 1 {
		t.Fatal("expected reputation_updated notification")
	}
}

func TestKeyedMutexForgetsReleasedKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock(1)
	unlock2 := k.Lock(2)
	if k.size() != 2 {
		t.Fatalf("size = %d", k.size())
	}
	unlock()
	unlock2()
	if k.size() != 0 {
		t.Fatalf("size after unlock = %d", k.size())
	}
}
