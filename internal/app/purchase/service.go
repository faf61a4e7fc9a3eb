package purchase

import (
	"context"
	"errors"
	"strings"

	"agent-marketplace/internal/app/page"
	"agent-marketplace/internal/market"
	"agent-marketplace/internal/store"
	"agent-marketplace/internal/validation"
)

const (
	msgRequested = "Purchase request created. Waiting for seller confirmation."
	msgConfirmed = "Purchase confirmed. Funds are in escrow."
	msgReleased  = "Funds released successfully. Transaction complete."
)

// Reader is the read side of the transaction store.
type Reader interface {
	LatestTransaction(ctx context.Context, listingID int64) (*store.Transaction, error)
	ListTransactions(ctx context.Context, f store.TransactionFilter) ([]store.Transaction, int, error)
}

type Service struct {
	machine *market.Machine
	reader  Reader
}

func NewService(machine *market.Machine, reader Reader) *Service {
	return &Service{machine: machine, reader: reader}
}

func (s *Service) Request(ctx context.Context, in RequestInput) (*TransactionResponse, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	tx, err := s.machine.RequestPurchase(ctx, market.PurchaseRequest{
		ListingID:  *in.ListingID,
		Buyer:      in.Buyer,
		BuyerAgent: in.BuyerAgent,
		TxHash:     strings.ToLower(in.TxHash),
	})
	if err != nil {
		return nil, err
	}
	return &TransactionResponse{Success: true, Message: msgRequested, Transaction: tx}, nil
}

func (s *Service) Confirm(ctx context.Context, in SettleInput) (*TransactionResponse, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	tx, err := s.machine.ConfirmPurchase(ctx, *in.ListingID, strings.ToLower(in.TxHash))
	if err != nil {
		return nil, err
	}
	return &TransactionResponse{Success: true, Message: msgConfirmed, Transaction: tx}, nil
}

func (s *Service) Release(ctx context.Context, in SettleInput) (*TransactionResponse, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	rel, err := s.machine.ReleaseFunds(ctx, *in.ListingID, strings.ToLower(in.TxHash))
	if err != nil {
		return nil, err
	}
	return &TransactionResponse{Success: true, Message: msgReleased, Transaction: rel.Transaction}, nil
}

// History lists transactions newest first.
func (s *Service) History(ctx context.Context, q HistoryQuery) (*HistoryResponse, error) {
	p, perr := page.Parse(q.Page, q.Limit)
	if err := validation.Join(validation.Struct(q), perr); err != nil {
		return nil, err
	}
	items, total, err := s.reader.ListTransactions(ctx, store.TransactionFilter{
		Status: q.Status,
		Seller: strings.ToLower(q.Seller),
		Buyer:  strings.ToLower(q.Buyer),
		Limit:  p.Limit,
		Offset: p.Offset(),
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []store.Transaction{}
	}
	return &HistoryResponse{Success: true, Transactions: items, Pagination: page.New(p, total)}, nil
}

// Latest returns the most recent transaction of a listing, open or not.
func (s *Service) Latest(ctx context.Context, listingID int64) (*TransactionResponse, error) {
	if listingID < 0 {
		return nil, ErrInvalidListingID
	}
	tx, err := s.reader.LatestTransaction(ctx, listingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &TransactionResponse{Success: true, Transaction: tx}, nil
}
