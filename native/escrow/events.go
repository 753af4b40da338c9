package escrow

import (
	"math/big"
	"strconv"

	"factorhub/core/events"
)

const (
	EventTypeCreated         = "escrow.created"
	EventTypeFunded          = "escrow.funded"
	EventTypeDepositBuffered = "escrow.deposit_buffered"
	EventTypeReleased        = "escrow.released"
	EventTypeDisputed        = "escrow.disputed"
	EventTypeResolved        = "escrow.resolved"
	EventTypeDebtorPayment   = "escrow.debtor_payment"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// escrow.
func NewCreatedEvent(e *Escrow) *events.Event { return newEscrowEvent(EventTypeCreated, e) }

// NewFundedEvent returns the payload emitted when a matching custody deposit
// arrives. The attribute carries the delivered amount, which may exceed the
// sale amount.
func NewFundedEvent(e *Escrow, delivered *big.Int) *events.Event {
	evt := newEscrowEvent(EventTypeFunded, e)
	if evt.Attributes != nil && delivered != nil {
		evt.Attributes["deposited"] = delivered.String()
	}
	return evt
}

// NewDepositBufferedEvent returns the payload emitted when a deposit arrives
// for an invoice whose escrow does not exist yet and is held until it does.
func NewDepositBufferedEvent(invoiceID string, amount *big.Int) *events.Event {
	attrs := map[string]string{"invoiceId": invoiceID}
	if amount != nil {
		attrs["deposited"] = amount.String()
	}
	return &events.Event{Type: EventTypeDepositBuffered, Attributes: attrs}
}

// NewReleasedEvent returns the payload emitted when escrowed funds are
// released to the buyer.
func NewReleasedEvent(e *Escrow) *events.Event { return newEscrowEvent(EventTypeReleased, e) }

// NewDisputedEvent returns the payload emitted when an escrow is disputed.
func NewDisputedEvent(e *Escrow) *events.Event { return newEscrowEvent(EventTypeDisputed, e) }

// NewResolvedEvent returns the payload emitted when a dispute is resolved in
// favour of the winner.
func NewResolvedEvent(e *Escrow, winner string) *events.Event {
	evt := newEscrowEvent(EventTypeResolved, e)
	if evt.Attributes != nil && winner != "" {
		evt.Attributes["winner"] = winner
	}
	return evt
}

// NewDebtorPaymentEvent returns the payload recorded when a (simulated)
// debtor payment is observed.
func NewDebtorPaymentEvent(e *Escrow) *events.Event {
	return newEscrowEvent(EventTypeDebtorPayment, e)
}

func newEscrowEvent(eventType string, e *Escrow) *events.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := Sanitize(e)
	if err != nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = sanitized.ID
	attrs["invoiceId"] = sanitized.InvoiceID
	attrs["seller"] = sanitized.Seller
	attrs["buyer"] = sanitized.Buyer
	attrs["saleAmount"] = sanitized.SaleAmount.String()
	attrs["invoiceAmount"] = sanitized.InvoiceAmount.String()
	attrs["dueDate"] = strconv.FormatInt(sanitized.DueDate, 10)
	attrs["status"] = sanitized.Status.String()
	attrs["fundsDeposited"] = strconv.FormatBool(sanitized.FundsDeposited)
	if sanitized.DisputeReason != "" {
		attrs["disputeReason"] = sanitized.DisputeReason
	}
	return &events.Event{Type: eventType, Attributes: attrs}
}
