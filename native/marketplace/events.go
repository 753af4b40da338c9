package marketplace

import (
	"math/big"
	"strconv"

	"factorhub/core/events"
)

const (
	EventTypeListingCreated    = "marketplace.listing_created"
	EventTypeListingCancelled  = "marketplace.listing_cancelled"
	EventTypePurchased         = "marketplace.purchased"
	EventTypeSettlementPending = "marketplace.settlement_pending"
	EventTypeBidPlaced         = "marketplace.bid_placed"
	EventTypeBidAccepted       = "marketplace.bid_accepted"
	EventTypeBidCancelled      = "marketplace.bid_cancelled"
	EventTypeBidRefundFlagged  = "marketplace.bid_refund_flagged"
)

// NewListingCreatedEvent returns the payload emitted when a listing goes
// live.
func NewListingCreatedEvent(l *Listing) *events.Event {
	return newListingEvent(EventTypeListingCreated, l)
}

// NewListingCancelledEvent returns the payload emitted when a seller cancels
// a listing.
func NewListingCancelledEvent(l *Listing) *events.Event {
	return newListingEvent(EventTypeListingCancelled, l)
}

// NewPurchasedEvent returns the payload emitted when a listing is bought at
// asking price.
func NewPurchasedEvent(l *Listing, buyer string, salePrice *big.Int) *events.Event {
	evt := newListingEvent(EventTypePurchased, l)
	evt.Attributes["buyer"] = buyer
	if salePrice != nil {
		evt.Attributes["salePrice"] = salePrice.String()
	}
	return evt
}

// NewSettlementPendingEvent returns the payload emitted when a settlement
// chain stalls after funds have moved and is left persisted for resumption.
func NewSettlementPendingEvent(in *SettlementIntent) *events.Event {
	attrs := make(map[string]string)
	if in != nil {
		attrs["intentId"] = in.ID
		attrs["listingId"] = in.ListingID
		attrs["invoiceId"] = in.InvoiceID
		attrs["seller"] = in.Seller
		attrs["buyer"] = in.Buyer
		attrs["step"] = in.Step.String()
		if in.SaleAmount != nil {
			attrs["saleAmount"] = in.SaleAmount.String()
		}
	}
	return &events.Event{Type: EventTypeSettlementPending, Attributes: attrs}
}

// NewBidPlacedEvent returns the payload emitted when a bid is recorded.
func NewBidPlacedEvent(b *Bid) *events.Event { return newBidEvent(EventTypeBidPlaced, b) }

// NewBidAcceptedEvent returns the payload emitted when a seller accepts a
// bid.
func NewBidAcceptedEvent(l *Listing, b *Bid) *events.Event {
	evt := newBidEvent(EventTypeBidAccepted, b)
	if l != nil {
		evt.Attributes["invoiceId"] = l.InvoiceID
		evt.Attributes["seller"] = l.Seller
	}
	return evt
}

// NewBidCancelledEvent returns the payload emitted when a bidder withdraws a
// bid.
func NewBidCancelledEvent(b *Bid) *events.Event { return newBidEvent(EventTypeBidCancelled, b) }

// NewBidRefundFlaggedEvent returns the payload emitted for each non-winning
// or orphaned active bid whose funds the custody collaborator must return.
func NewBidRefundFlaggedEvent(b *Bid) *events.Event {
	return newBidEvent(EventTypeBidRefundFlagged, b)
}

func newListingEvent(eventType string, l *Listing) *events.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = sanitized.ID
	attrs["invoiceId"] = sanitized.InvoiceID
	attrs["seller"] = sanitized.Seller
	attrs["askingPrice"] = sanitized.AskingPrice.String()
	attrs["invoiceAmount"] = sanitized.InvoiceAmount.String()
	attrs["dueDate"] = strconv.FormatInt(sanitized.DueDate, 10)
	attrs["active"] = strconv.FormatBool(sanitized.Active)
	return &events.Event{Type: eventType, Attributes: attrs}
}

func newBidEvent(eventType string, b *Bid) *events.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = b.ID
	attrs["listingId"] = b.ListingID
	attrs["bidder"] = b.Bidder
	if b.Amount != nil {
		attrs["amount"] = b.Amount.String()
	}
	attrs["active"] = strconv.FormatBool(b.Active)
	return &events.Event{Type: eventType, Attributes: attrs}
}
