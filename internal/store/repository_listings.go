package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const listingColumns = `listing_id, seller, seller_agent, title, description, price::text, category,
	location, images, status, buyer, buyer_agent, tx_hash, metadata, created_at, updated_at`

func scanListing(row pgx.Row) (*Listing, error) {
	var l Listing
	err := row.Scan(
		&l.ListingID, &l.Seller, &l.SellerAgent, &l.Title, &l.Description, &l.Price, &l.Category,
		&l.Location, &l.Images, &l.Status, &l.Buyer, &l.BuyerAgent, &l.TxHash, &l.Metadata,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	l.Images = imagesParam(l.Images)
	l.Metadata = metadataParam(l.Metadata)
	return &l, nil
}

func (s *Store) GetListing(ctx context.Context, listingID int64) (*Listing, error) {
	row := s.db(ctx).QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE listing_id = $1`, listingID)
	return scanListing(row)
}

// GetListingForUpdate locks the row for the rest of the surrounding transaction.
// Outside RunInTx it behaves like GetListing.
func (s *Store) GetListingForUpdate(ctx context.Context, listingID int64) (*Listing, error) {
	if !inTx(ctx) {
		return s.GetListing(ctx, listingID)
	}
	row := s.db(ctx).QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE listing_id = $1 FOR UPDATE`, listingID)
	return scanListing(row)
}

// CreateListing inserts a new listing and fails with ErrConflict when the
// listing id is taken.
func (s *Store) CreateListing(ctx context.Context, l *Listing) (*Listing, error) {
	row := s.db(ctx).QueryRow(ctx, `
INSERT INTO listings (listing_id, seller, seller_agent, title, description, price, category,
	location, images, status, buyer, buyer_agent, tx_hash, metadata)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING `+listingColumns,
		l.ListingID, lowerAddr(l.Seller), l.SellerAgent, l.Title, l.Description, l.Price, l.Category,
		l.Location, imagesParam(l.Images), l.Status, lowerAddr(l.Buyer), l.BuyerAgent, l.TxHash,
		metadataParam(l.Metadata),
	)
	return scanListing(row)
}

// UpsertListing writes every field of l, replacing any existing row with the
// same listing id. created_at of an existing row is kept.
func (s *Store) UpsertListing(ctx context.Context, l *Listing) (*Listing, error) {
	row := s.db(ctx).QueryRow(ctx, `
INSERT INTO listings (listing_id, seller, seller_agent, title, description, price, category,
	location, images, status, buyer, buyer_agent, tx_hash, metadata)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (listing_id) DO UPDATE SET
	seller = EXCLUDED.seller,
	seller_agent = EXCLUDED.seller_agent,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	price = EXCLUDED.price,
	category = EXCLUDED.category,
	location = EXCLUDED.location,
	images = EXCLUDED.images,
	status = EXCLUDED.status,
	buyer = EXCLUDED.buyer,
	buyer_agent = EXCLUDED.buyer_agent,
	tx_hash = EXCLUDED.tx_hash,
	metadata = EXCLUDED.metadata,
	updated_at = now()
RETURNING `+listingColumns,
		l.ListingID, lowerAddr(l.Seller), l.SellerAgent, l.Title, l.Description, l.Price, l.Category,
		l.Location, imagesParam(l.Images), l.Status, lowerAddr(l.Buyer), l.BuyerAgent, l.TxHash,
		metadataParam(l.Metadata),
	)
	return scanListing(row)
}

func (s *Store) UpdateListingState(ctx context.Context, listingID int64, status, buyer, buyerAgent string) (*Listing, error) {
	row := s.db(ctx).QueryRow(ctx, `
UPDATE listings SET status = $2, buyer = $3, buyer_agent = $4, updated_at = now()
WHERE listing_id = $1
RETURNING `+listingColumns,
		listingID, status, lowerAddr(buyer), buyerAgent,
	)
	return scanListing(row)
}

// ListListings returns one page of listings, newest first, plus the total
// number of matching rows.
func (s *Store) ListListings(ctx context.Context, f ListingFilter) ([]Listing, int, error) {
	limit, offset := pageParams(f.Limit, f.Offset)
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Category != "" {
		w.add("category = ?", f.Category)
	}
	if f.Seller != "" {
		w.add("seller = ?", lowerAddr(f.Seller))
	}
	if f.MinPrice != "" {
		w.add("price >= ?::numeric", f.MinPrice)
	}
	if f.MaxPrice != "" {
		w.add("price <= ?::numeric", f.MaxPrice)
	}
	if f.Search != "" {
		w.add("to_tsvector('simple', title || ' ' || description) @@ plainto_tsquery('simple', ?)", f.Search)
	}

	var total int
	if err := s.db(ctx).QueryRow(ctx, `SELECT count(*) FROM listings`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args := append(w.args, limit, offset)
	rows, err := s.db(ctx).Query(ctx,
		`SELECT `+listingColumns+` FROM listings`+w.sql()+
			` ORDER BY created_at DESC, listing_id DESC LIMIT `+placeholder(len(args)-1)+` OFFSET `+placeholder(len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Listing, 0, limit)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}
