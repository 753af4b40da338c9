package invoice

import (
	"strconv"

	"factorhub/core/events"
)

const (
	EventTypeCreated     = "invoice.created"
	EventTypeListed      = "invoice.listed"
	EventTypeUnlisted    = "invoice.unlisted"
	EventTypeTransferred = "invoice.transferred"
	EventTypeSettled     = "invoice.settled"
	EventTypeCancelled   = "invoice.cancelled"
)

// NewCreatedEvent returns the canonical event payload for a newly registered
// invoice.
func NewCreatedEvent(inv *Invoice) *events.Event { return newInvoiceEvent(EventTypeCreated, inv) }

// NewListedEvent returns the payload emitted when an invoice moves to listed.
func NewListedEvent(inv *Invoice) *events.Event { return newInvoiceEvent(EventTypeListed, inv) }

// NewUnlistedEvent returns the payload emitted when a listing is withdrawn.
func NewUnlistedEvent(inv *Invoice) *events.Event { return newInvoiceEvent(EventTypeUnlisted, inv) }

// NewTransferredEvent returns the payload emitted on ownership transfer.
func NewTransferredEvent(inv *Invoice, previousOwner string) *events.Event {
	evt := newInvoiceEvent(EventTypeTransferred, inv)
	if evt.Attributes != nil && previousOwner != "" {
		evt.Attributes["previousOwner"] = previousOwner
	}
	return evt
}

// NewSettledEvent returns the payload emitted when an invoice is settled.
func NewSettledEvent(inv *Invoice) *events.Event { return newInvoiceEvent(EventTypeSettled, inv) }

// NewCancelledEvent returns the payload emitted when a draft is cancelled.
func NewCancelledEvent(inv *Invoice) *events.Event { return newInvoiceEvent(EventTypeCancelled, inv) }

func newInvoiceEvent(eventType string, inv *Invoice) *events.Event {
	attrs := make(map[string]string)
	if inv == nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := Sanitize(inv)
	if err != nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = sanitized.ID
	attrs["creator"] = sanitized.Creator
	attrs["owner"] = sanitized.Owner
	attrs["amount"] = sanitized.Amount.String()
	attrs["currency"] = sanitized.Currency
	attrs["dueDate"] = strconv.FormatInt(sanitized.DueDate, 10)
	attrs["status"] = sanitized.Status.String()
	attrs["riskScore"] = strconv.FormatUint(uint64(sanitized.RiskScore), 10)
	return &events.Event{Type: eventType, Attributes: attrs}
}
