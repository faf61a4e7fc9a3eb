package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"agent-marketplace/internal/store"

	"github.com/shopspring/decimal"
)

// MemStore is an in-memory stand-in for *store.Store with the same error
// contract: ErrNotFound for missing rows, ErrConflict for duplicate keys and
// for a second open transaction on one listing. RunInTx calls are serialized
// and roll back on error.
type MemStore struct {
	txMu sync.Mutex

	mu       sync.Mutex
	clock    time.Time
	seq      int
	agents   map[string]store.Agent
	listings map[int64]store.Listing
	txs      map[string]store.Transaction
	cursors  map[string]uint64
	fail     map[string]error
}

type memTxKey struct{}

func NewMemStore() *MemStore {
	return &MemStore{
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		agents:   map[string]store.Agent{},
		listings: map[int64]store.Listing{},
		txs:      map[string]store.Transaction{},
		cursors:  map[string]uint64{},
		fail:     map[string]error{},
	}
}

// FailNext makes the next call of the named method return err.
func (s *MemStore) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

func (s *MemStore) injected(method string) error {
	if err, ok := s.fail[method]; ok {
		delete(s.fail, method)
		return err
	}
	return nil
}

func (s *MemStore) now() time.Time {
	s.seq++
	return s.clock.Add(time.Duration(s.seq) * time.Millisecond)
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	agents   map[string]store.Agent
	listings map[int64]store.Listing
	txs      map[string]store.Transaction
	cursors  map[string]uint64
}

func (s *MemStore) snapshot() memSnapshot {
	snap := memSnapshot{
		agents:   make(map[string]store.Agent, len(s.agents)),
		listings: make(map[int64]store.Listing, len(s.listings)),
		txs:      make(map[string]store.Transaction, len(s.txs)),
		cursors:  make(map[string]uint64, len(s.cursors)),
	}
	for k, v := range s.agents {
		snap.agents[k] = v
	}
	for k, v := range s.listings {
		snap.listings[k] = v
	}
	for k, v := range s.txs {
		snap.txs[k] = v
	}
	for k, v := range s.cursors {
		snap.cursors[k] = v
	}
	return snap
}

func (s *MemStore) restore(snap memSnapshot) {
	s.agents, s.listings, s.txs, s.cursors = snap.agents, snap.listings, snap.txs, snap.cursors
}

// Listings

func (s *MemStore) GetListing(_ context.Context, id int64) (*store.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("GetListing"); err != nil {
		return nil, err
	}
	l, ok := s.listings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneListing(l), nil
}

func (s *MemStore) GetListingForUpdate(ctx context.Context, id int64) (*store.Listing, error) {
	return s.GetListing(ctx, id)
}

func (s *MemStore) CreateListing(_ context.Context, l *store.Listing) (*store.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateListing"); err != nil {
		return nil, err
	}
	if _, ok := s.listings[l.ListingID]; ok {
		return nil, store.ErrConflict
	}
	row := normalizeListing(*l)
	row.CreatedAt = s.now()
	row.UpdatedAt = row.CreatedAt
	s.listings[row.ListingID] = row
	return cloneListing(row), nil
}

func (s *MemStore) UpsertListing(_ context.Context, l *store.Listing) (*store.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpsertListing"); err != nil {
		return nil, err
	}
	row := normalizeListing(*l)
	row.UpdatedAt = s.now()
	row.CreatedAt = row.UpdatedAt
	if cur, ok := s.listings[row.ListingID]; ok {
		row.CreatedAt = cur.CreatedAt
	}
	s.listings[row.ListingID] = row
	return cloneListing(row), nil
}

func (s *MemStore) UpdateListingState(_ context.Context, id int64, status, buyer, buyerAgent string) (*store.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpdateListingState"); err != nil {
		return nil, err
	}
	if !store.ValidListingStatus(status) {
		return nil, fmt.Errorf("listing status %q violates check constraint", status)
	}
	l, ok := s.listings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	l.Status, l.Buyer, l.BuyerAgent = status, strings.ToLower(buyer), buyerAgent
	l.UpdatedAt = s.now()
	s.listings[id] = l
	return cloneListing(l), nil
}

func (s *MemStore) ListListings(_ context.Context, f store.ListingFilter) ([]store.Listing, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("ListListings"); err != nil {
		return nil, 0, err
	}
	var matched []store.Listing
	for _, l := range s.listings {
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if f.Seller != "" && l.Seller != strings.ToLower(f.Seller) {
			continue
		}
		if !priceInRange(l.Price, f.MinPrice, f.MaxPrice) {
			continue
		}
		if f.Search != "" && !matchesSearch(l.Title+" "+l.Description, f.Search) {
			continue
		}
		matched = append(matched, l)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ListingID > matched[j].ListingID
	})
	page := paginate(len(matched), f.Limit, f.Offset)
	out := make([]store.Listing, 0, page.end-page.start)
	for _, l := range matched[page.start:page.end] {
		out = append(out, *cloneListing(l))
	}
	return out, len(matched), nil
}

// Transactions

func (s *MemStore) openTx(listingID int64) (store.Transaction, bool) {
	for _, t := range s.txs {
		if t.ListingID == listingID && t.Open() {
			return t, true
		}
	}
	return store.Transaction{}, false
}

func (s *MemStore) GetOpenTransaction(_ context.Context, listingID int64) (*store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("GetOpenTransaction"); err != nil {
		return nil, err
	}
	t, ok := s.openTx(listingID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTx(t), nil
}

func (s *MemStore) CreateTransaction(_ context.Context, t *store.Transaction) (*store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateTransaction"); err != nil {
		return nil, err
	}
	row := *t
	if row.ID == "" {
		row.ID = store.NewID()
	}
	if row.Status == "" {
		row.Status = store.TxRequested
	}
	if _, ok := s.txs[row.ID]; ok {
		return nil, store.ErrConflict
	}
	if _, ok := s.openTx(row.ListingID); ok && row.Open() {
		return nil, store.ErrConflict
	}
	row.Seller, row.Buyer = strings.ToLower(row.Seller), strings.ToLower(row.Buyer)
	if row.Metadata == nil {
		row.Metadata = map[string]any{}
	}
	row.CreatedAt = s.now()
	row.UpdatedAt = row.CreatedAt
	s.txs[row.ID] = row
	return cloneTx(row), nil
}

func (s *MemStore) AdvanceTransaction(_ context.Context, id, from, to, hash string) (*store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("AdvanceTransaction"); err != nil {
		return nil, err
	}
	t, ok := s.txs[id]
	if !ok || t.Status != from {
		return nil, store.ErrNotFound
	}
	switch to {
	case store.TxConfirmed:
		t.ConfirmTxHash = hash
	case store.TxCompleted:
		t.ReleaseTxHash = hash
	case store.TxCancelled, store.TxDisputed:
		t.Metadata = cloneMap(t.Metadata)
		t.Metadata["closeTxHash"] = hash
	default:
		return nil, fmt.Errorf("advance transaction to %q: unsupported status", to)
	}
	t.Status = to
	t.UpdatedAt = s.now()
	s.txs[id] = t
	return cloneTx(t), nil
}

func (s *MemStore) FindTransactionByHash(_ context.Context, kind store.HashKind, hash string) (*store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("FindTransactionByHash"); err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, store.ErrNotFound
	}
	for _, t := range s.txs {
		var h string
		switch kind {
		case store.HashRequest:
			h = t.RequestTxHash
		case store.HashConfirm:
			h = t.ConfirmTxHash
		case store.HashRelease:
			h = t.ReleaseTxHash
		}
		if h == hash {
			return cloneTx(t), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *MemStore) LatestTransaction(_ context.Context, listingID int64) (*store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  store.Transaction
		found bool
	)
	for _, t := range s.txs {
		if t.ListingID != listingID {
			continue
		}
		if !found || t.CreatedAt.After(best.CreatedAt) {
			best, found = t, true
		}
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return cloneTx(best), nil
}

func (s *MemStore) ListTransactions(_ context.Context, f store.TransactionFilter) ([]store.Transaction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []store.Transaction
	for _, t := range s.txs {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Seller != "" && t.Seller != strings.ToLower(f.Seller) {
			continue
		}
		if f.Buyer != "" && t.Buyer != strings.ToLower(f.Buyer) {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	page := paginate(len(matched), f.Limit, f.Offset)
	out := make([]store.Transaction, 0, page.end-page.start)
	for _, t := range matched[page.start:page.end] {
		out = append(out, *cloneTx(t))
	}
	return out, len(matched), nil
}

// Transactions returns every stored transaction of a listing, oldest first.
func (s *MemStore) Transactions(listingID int64) []store.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Transaction
	for _, t := range s.txs {
		if t.ListingID == listingID {
			out = append(out, *cloneTx(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Agents

func (s *MemStore) CreateAgent(_ context.Context, a *store.Agent) (*store.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateAgent"); err != nil {
		return nil, err
	}
	row := *a
	row.Address = strings.ToLower(row.Address)
	if _, ok := s.agents[row.AgentID]; ok {
		return nil, store.ErrConflict
	}
	for _, other := range s.agents {
		if other.Address == row.Address {
			return nil, store.ErrConflict
		}
	}
	row.IsActive = true
	if row.Metadata == nil {
		row.Metadata = map[string]any{}
	}
	row.CreatedAt = s.now()
	row.UpdatedAt = row.CreatedAt
	s.agents[row.AgentID] = row
	out := row
	return &out, nil
}

func (s *MemStore) GetAgent(_ context.Context, idOrAddress string) (*store.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("GetAgent"); err != nil {
		return nil, err
	}
	if a, ok := s.agents[idOrAddress]; ok {
		return &a, nil
	}
	addr := strings.ToLower(strings.TrimSpace(idOrAddress))
	for _, a := range s.agents {
		if a.Address == addr {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *MemStore) IncrementAgentTrade(_ context.Context, agentID string, role store.TradeRole) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("IncrementAgentTrade"); err != nil {
		return false, err
	}
	a, ok := s.agents[agentID]
	if !ok {
		return false, nil
	}
	if role == store.RoleBuyer {
		a.TotalPurchases++
	} else {
		a.TotalSales++
	}
	a.SuccessfulTrades++
	a.UpdatedAt = s.now()
	s.agents[agentID] = a
	return true, nil
}

func (s *MemStore) SetAgentReputation(_ context.Context, address string, reputation int64) (*store.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("SetAgentReputation"); err != nil {
		return nil, err
	}
	addr := strings.ToLower(address)
	for id, a := range s.agents {
		if a.Address == addr {
			a.Reputation = reputation
			a.UpdatedAt = s.now()
			s.agents[id] = a
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *MemStore) ListAgents(_ context.Context, f store.AgentFilter) ([]store.Agent, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []store.Agent
	for _, a := range s.agents {
		if a.IsActive {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch f.SortBy {
		case "trades":
			if a.SuccessfulTrades != b.SuccessfulTrades {
				return a.SuccessfulTrades > b.SuccessfulTrades
			}
		case "created":
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		default:
			if a.Reputation != b.Reputation {
				return a.Reputation > b.Reputation
			}
		}
		return a.AgentID < b.AgentID
	})
	page := paginate(len(matched), f.Limit, f.Offset)
	return append([]store.Agent(nil), matched[page.start:page.end]...), len(matched), nil
}

// Cursors

func (s *MemStore) GetCursor(_ context.Context, name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("GetCursor"); err != nil {
		return 0, err
	}
	v, ok := s.cursors[name]
	if !ok {
		return 0, store.ErrNotFound
	}
	return v, nil
}

func (s *MemStore) SetCursor(_ context.Context, name string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("SetCursor"); err != nil {
		return err
	}
	s.cursors[name] = block
	return nil
}

type pageBounds struct{ start, end int }

func paginate(n, limit, offset int) pageBounds {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	start := offset
	if start > n {
		start = n
	}
	end := start + limit
	if end > n {
		end = n
	}
	return pageBounds{start: start, end: end}
}

func priceInRange(price, min, max string) bool {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return false
	}
	if min != "" {
		if lo, err := decimal.NewFromString(min); err == nil && p.LessThan(lo) {
			return false
		}
	}
	if max != "" {
		if hi, err := decimal.NewFromString(max); err == nil && p.GreaterThan(hi) {
			return false
		}
	}
	return true
}

func matchesSearch(text, query string) bool {
	text = strings.ToLower(text)
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if !strings.Contains(text, word) {
			return false
		}
	}
	return true
}

func normalizeListing(l store.Listing) store.Listing {
	l.Seller = strings.ToLower(l.Seller)
	l.Buyer = strings.ToLower(l.Buyer)
	if l.Images == nil {
		l.Images = []string{}
	}
	if l.Metadata == nil {
		l.Metadata = map[string]any{}
	}
	return l
}

func cloneListing(l store.Listing) *store.Listing {
	l.Images = append([]string{}, l.Images...)
	l.Metadata = cloneMap(l.Metadata)
	return &l
}

func cloneTx(t store.Transaction) *store.Transaction {
	t.Metadata = cloneMap(t.Metadata)
	return &t
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
