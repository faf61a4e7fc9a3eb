package listing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"agent-marketplace/internal/app/page"
	"agent-marketplace/internal/market"
	"agent-marketplace/internal/store"
	"agent-marketplace/internal/validation"

	"github.com/shopspring/decimal"
)

// Reader is the read side of the listing store.
type Reader interface {
	GetListing(ctx context.Context, id int64) (*store.Listing, error)
	ListListings(ctx context.Context, f store.ListingFilter) ([]store.Listing, int, error)
}

type Service struct {
	machine *market.Machine
	reader  Reader
}

func NewService(machine *market.Machine, reader Reader) *Service {
	return &Service{machine: machine, reader: reader}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*ListingResponse, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	price, err := canonicalPrice(in.Price)
	if err != nil {
		return nil, err
	}
	images := in.Images
	if images == nil {
		images = []string{}
	}
	l, err := s.machine.CreateListing(ctx, market.NewListing{
		ListingID:   *in.ListingID,
		Seller:      in.Seller,
		SellerAgent: in.SellerAgent,
		Title:       in.Title,
		Description: in.Description,
		Price:       price,
		Category:    in.Category,
		Location:    in.Location,
		Images:      images,
		TxHash:      strings.ToLower(in.TxHash),
		Metadata:    in.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return &ListingResponse{Success: true, Listing: l}, nil
}

// canonicalPrice drops insignificant zeros and a leading plus so the same
// amount is always stored the same way. Negative prices are refused.
func canonicalPrice(raw json.Number) (string, error) {
	d, err := decimal.NewFromString(raw.String())
	if err != nil {
		return "", &validation.Error{Fields: []validation.FieldError{{Field: "price", Rule: "numeric"}}}
	}
	if d.IsNegative() {
		return "", &validation.Error{Fields: []validation.FieldError{{Field: "price", Rule: "gte"}}}
	}
	return d.String(), nil
}

// Browse lists listings newest first. Status defaults to active.
func (s *Service) Browse(ctx context.Context, q BrowseQuery) (*BrowseResponse, error) {
	p, perr := page.Parse(q.Page, q.Limit)
	if err := validation.Join(validation.Struct(q), perr); err != nil {
		return nil, err
	}
	status := q.Status
	if status == "" {
		status = store.ListingActive
	}
	items, total, err := s.reader.ListListings(ctx, store.ListingFilter{
		Status:   status,
		Category: q.Category,
		Seller:   strings.ToLower(q.Seller),
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
		Search:   strings.TrimSpace(q.Search),
		Limit:    p.Limit,
		Offset:   p.Offset(),
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []store.Listing{}
	}
	return &BrowseResponse{Success: true, Listings: items, Pagination: page.New(p, total)}, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*ListingResponse, error) {
	if id < 0 {
		return nil, ErrInvalidListingID
	}
	l, err := s.reader.GetListing(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, market.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ListingResponse{Success: true, Listing: l}, nil
}

func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*ListingResponse, error) {
	if id < 0 {
		return nil, ErrInvalidListingID
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	l, err := s.machine.UpdateListing(ctx, id, market.ListingUpdate{
		Status:     in.Status,
		Buyer:      in.Buyer,
		BuyerAgent: in.BuyerAgent,
	})
	if err != nil {
		return nil, err
	}
	return &ListingResponse{Success: true, Listing: l}, nil
}
