package marketplace

import (
	"fmt"
	"math/big"
)

// Listing is an offer to sell an invoice at a discount. At most one active
// listing exists per invoice at any time, enforced through the
// invoice-to-listing lookup which is deleted when the listing deactivates.
type Listing struct {
	ID            string
	InvoiceID     string
	Seller        string
	AskingPrice   *big.Int
	MinPrice      *big.Int
	InvoiceAmount *big.Int
	DueDate       int64
	CreatedAt     int64
	ExpiresAt     int64
	Active        bool
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.AskingPrice != nil {
		clone.AskingPrice = new(big.Int).Set(l.AskingPrice)
	} else {
		clone.AskingPrice = big.NewInt(0)
	}
	if l.MinPrice != nil {
		clone.MinPrice = new(big.Int).Set(l.MinPrice)
	}
	if l.InvoiceAmount != nil {
		clone.InvoiceAmount = new(big.Int).Set(l.InvoiceAmount)
	} else {
		clone.InvoiceAmount = big.NewInt(0)
	}
	return &clone
}

// SanitizeListing validates the listing record and returns a cloned instance
// with non-nil price fields. The original value is not mutated.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("nil listing")
	}
	clone := l.Clone()
	if clone.ID == "" {
		return nil, fmt.Errorf("listing id required")
	}
	if clone.InvoiceID == "" {
		return nil, fmt.Errorf("listing invoice id required")
	}
	if clone.AskingPrice.Sign() < 0 || clone.InvoiceAmount.Sign() < 0 {
		return nil, fmt.Errorf("listing amounts must be non-negative")
	}
	return clone, nil
}

// Bid is a counter-offer against a listing. Bids are append-only: they are
// deactivated, never deleted, preserving the audit trail.
type Bid struct {
	ID        string
	ListingID string
	Bidder    string
	Amount    *big.Int
	CreatedAt int64
	Active    bool
}

// Clone returns a deep copy of the bid.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Amount != nil {
		clone.Amount = new(big.Int).Set(b.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// ListingView decorates a listing with display calculations for buyers. The
// derived fields are cosmetic and play no part in settlement.
type ListingView struct {
	Listing            *Listing
	DiscountPercentage float64
	DaysUntilDue       int64
	AnnualizedYield    float64
}
