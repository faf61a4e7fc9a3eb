package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, listing_id, seller, buyer, seller_agent, buyer_agent, price::text, status,
	request_tx_hash, confirm_tx_hash, release_tx_hash, metadata, created_at, updated_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(
		&t.ID, &t.ListingID, &t.Seller, &t.Buyer, &t.SellerAgent, &t.BuyerAgent, &t.Price, &t.Status,
		&t.RequestTxHash, &t.ConfirmTxHash, &t.ReleaseTxHash, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	t.Metadata = metadataParam(t.Metadata)
	return &t, nil
}

// CreateTransaction inserts t. A second open transaction for the same listing
// violates transactions_one_open_per_listing and returns ErrConflict.
func (s *Store) CreateTransaction(ctx context.Context, t *Transaction) (*Transaction, error) {
	id := t.ID
	if id == "" {
		id = NewID()
	}
	status := t.Status
	if status == "" {
		status = TxRequested
	}
	row := s.db(ctx).QueryRow(ctx, `
INSERT INTO transactions (id, listing_id, seller, buyer, seller_agent, buyer_agent, price, status,
	request_tx_hash, confirm_tx_hash, release_tx_hash, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12)
RETURNING `+transactionColumns,
		id, t.ListingID, lowerAddr(t.Seller), lowerAddr(t.Buyer), t.SellerAgent, t.BuyerAgent, t.Price,
		status, t.RequestTxHash, t.ConfirmTxHash, t.ReleaseTxHash, metadataParam(t.Metadata),
	)
	return scanTransaction(row)
}

// GetOpenTransaction returns the requested or confirmed transaction of a
// listing, if any.
func (s *Store) GetOpenTransaction(ctx context.Context, listingID int64) (*Transaction, error) {
	row := s.db(ctx).QueryRow(ctx, `
SELECT `+transactionColumns+` FROM transactions
WHERE listing_id = $1 AND status IN ('requested', 'confirmed')`, listingID)
	return scanTransaction(row)
}

// AdvanceTransaction moves a transaction from one status to the next and
// records hash in the column belonging to the target status. It returns
// ErrNotFound when the transaction is no longer in status from.
func (s *Store) AdvanceTransaction(ctx context.Context, id, from, to, hash string) (*Transaction, error) {
	var set string
	switch to {
	case TxConfirmed:
		set = ", confirm_tx_hash = $4"
	case TxCompleted:
		set = ", release_tx_hash = $4"
	case TxCancelled, TxDisputed:
		set = ", metadata = metadata || jsonb_build_object('closeTxHash', $4::text)"
	default:
		return nil, fmt.Errorf("advance transaction to %q: unsupported status", to)
	}
	row := s.db(ctx).QueryRow(ctx, `
UPDATE transactions SET status = $3`+set+`, updated_at = now()
WHERE id = $1 AND status = $2
RETURNING `+transactionColumns,
		id, from, to, hash,
	)
	return scanTransaction(row)
}

func (s *Store) FindTransactionByHash(ctx context.Context, kind HashKind, hash string) (*Transaction, error) {
	var col string
	switch kind {
	case HashRequest:
		col = "request_tx_hash"
	case HashConfirm:
		col = "confirm_tx_hash"
	case HashRelease:
		col = "release_tx_hash"
	default:
		return nil, fmt.Errorf("unknown hash kind %d", kind)
	}
	if hash == "" {
		return nil, ErrNotFound
	}
	row := s.db(ctx).QueryRow(ctx, `
SELECT `+transactionColumns+` FROM transactions WHERE `+col+` = $1
ORDER BY created_at DESC LIMIT 1`, hash)
	return scanTransaction(row)
}

// LatestTransaction returns the most recently created transaction of a listing.
func (s *Store) LatestTransaction(ctx context.Context, listingID int64) (*Transaction, error) {
	row := s.db(ctx).QueryRow(ctx, `
SELECT `+transactionColumns+` FROM transactions WHERE listing_id = $1
ORDER BY created_at DESC, id DESC LIMIT 1`, listingID)
	return scanTransaction(row)
}

func (s *Store) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, int, error) {
	limit, offset := pageParams(f.Limit, f.Offset)
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Seller != "" {
		w.add("seller = ?", lowerAddr(f.Seller))
	}
	if f.Buyer != "" {
		w.add("buyer = ?", lowerAddr(f.Buyer))
	}

	var total int
	if err := s.db(ctx).QueryRow(ctx, `SELECT count(*) FROM transactions`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args := append(w.args, limit, offset)
	rows, err := s.db(ctx).Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions`+w.sql()+
			` ORDER BY created_at DESC, id DESC LIMIT `+placeholder(len(args)-1)+` OFFSET `+placeholder(len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Transaction, 0, limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}
