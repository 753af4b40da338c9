package marketplace

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"factorhub/core/events"
	nativecommon "factorhub/native/common"
	"factorhub/native/custody"
)

const moduleName = "marketplace"

const dayMillis = 24 * 60 * 60 * 1000

// maxFeeBps caps the marketplace fee at 10%.
const maxFeeBps = 1000

var (
	errNilState   = errors.New("marketplace engine: state not configured")
	errNilCustody = errors.New("marketplace engine: custody ledger not configured")
	errNilInvoice = errors.New("marketplace engine: invoice service not configured")
	errNilEscrow  = errors.New("marketplace engine: escrow service not configured")
)

// EngineState is the persistence backend consumed by the listing ledger.
type EngineState interface {
	ListingPut(*Listing) error
	ListingGet(id string) (*Listing, bool, error)
	ListingDelete(id string) error
	ListingNextID() (string, error)
	ListingByInvoicePut(invoiceID, listingID string) error
	ListingByInvoiceGet(invoiceID string) (string, bool, error)
	ListingByInvoiceDelete(invoiceID string) error
	ListingScan(fn func(*Listing) bool) error
	BidNextID() (string, error)
	BidsGet(listingID string) ([]*Bid, error)
	BidsPut(listingID string, bids []*Bid) error
	IntentPut(*SettlementIntent) error
	IntentGet(id string) (*SettlementIntent, bool, error)
	IntentDelete(id string) error
	IntentScan(fn func(*SettlementIntent) bool) error
}

// InvoiceService is the invoice registry surface consumed by the listing
// ledger. Adapters bind the marketplace's caller identity.
type InvoiceService interface {
	MarkListed(invoiceID string) error
	Unlist(invoiceID string) error
	TransferOwnership(invoiceID, newOwner string) error
}

// EscrowService opens custodial records for completed sales.
type EscrowService interface {
	Create(invoiceID, seller, buyer string, saleAmount, invoiceAmount *big.Int, dueDate int64) (string, error)
}

// SettlementObserver receives settlement chain outcomes, typically backed by
// the process metrics registry.
type SettlementObserver interface {
	RecordIntentStarted()
	RecordIntentCompleted()
	RecordIntentStalled(step string)
	RecordCompensation()
}

// Engine owns sale listings and bids and orchestrates the purchase and
// bid-acceptance chains across the invoice registry, fund custody and the
// escrow engine. Each chain is persisted as a settlement intent so a failure
// after the listing has been deactivated can be compensated or resumed
// instead of silently leaving the ledgers inconsistent.
type Engine struct {
	state          EngineState
	invoices       InvoiceService
	escrows        EscrowService
	custodyLedger  custody.Ledger
	emitter        events.Emitter
	nowFn          func() int64
	escrowAccount  string
	custodyAccount string
	feeBps         uint32
	pauses         nativecommon.PauseView
	observer       SettlementObserver
}

// NewEngine creates a marketplace engine with a no-op emitter, a wall-clock
// time source (unix milliseconds) and the default 1% fee.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().UnixMilli() },
		feeBps:  100,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetInvoiceService configures the invoice registry collaborator.
func (e *Engine) SetInvoiceService(svc InvoiceService) { e.invoices = svc }

// SetEscrowService configures the escrow engine collaborator.
func (e *Engine) SetEscrowService(svc EscrowService) { e.escrows = svc }

// SetCustodyLedger configures the outbound fund-custody collaborator.
func (e *Engine) SetCustodyLedger(ledger custody.Ledger) { e.custodyLedger = ledger }

// SetEscrowAccount configures the account that receives escrow deposits.
func (e *Engine) SetEscrowAccount(account string) { e.escrowAccount = account }

// SetCustodyAccount configures the collaborator whose inbound notifications
// are trusted.
func (e *Engine) SetCustodyAccount(account string) { e.custodyAccount = account }

// SetFeeBasisPoints updates the marketplace fee. The fee is configuration
// carried on the ledger; it is not charged during settlement.
func (e *Engine) SetFeeBasisPoints(bps uint32) error {
	if bps > maxFeeBps {
		return fmt.Errorf("marketplace: fee cannot exceed 10%%: %w", nativecommon.ErrValidation)
	}
	e.feeBps = bps
	return nil
}

// FeeBasisPoints returns the configured marketplace fee.
func (e *Engine) FeeBasisPoints() uint32 { return e.feeBps }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().UnixMilli() }
		return
	}
	e.nowFn = now
}

// SetPauses installs the administrative pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetSettlementObserver installs the settlement outcome recorder. A nil
// observer disables recording.
func (e *Engine) SetSettlementObserver(obs SettlementObserver) { e.observer = obs }

func (e *Engine) emit(evt *events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().UnixMilli()
	}
	return e.nowFn()
}

func (e *Engine) loadListing(id string) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, fmt.Errorf("marketplace: listing id required: %w", nativecommon.ErrValidation)
	}
	listing, ok, err := e.state.ListingGet(trimmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", trimmed, nativecommon.ErrNotFound)
	}
	return listing, nil
}

// CreateListing registers a sale listing for an invoice and asks the invoice
// registry to mark it listed. If that remote call fails the listing and its
// invoice lookup are deleted again and the whole operation reports failure.
func (e *Engine) CreateListing(seller, invoiceID string, askingPrice, invoiceAmount *big.Int, dueDate int64, minPrice *big.Int, expiresAt int64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.invoices == nil {
		return nil, errNilInvoice
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	seller = strings.TrimSpace(seller)
	invoiceID = strings.TrimSpace(invoiceID)
	if seller == "" || invoiceID == "" {
		return nil, fmt.Errorf("marketplace: seller and invoice id required: %w", nativecommon.ErrValidation)
	}
	if askingPrice == nil || askingPrice.Sign() <= 0 {
		return nil, fmt.Errorf("marketplace: asking price must be greater than 0: %w", nativecommon.ErrValidation)
	}
	if invoiceAmount == nil || askingPrice.Cmp(invoiceAmount) > 0 {
		return nil, fmt.Errorf("marketplace: asking price cannot exceed invoice amount: %w", nativecommon.ErrValidation)
	}
	if _, ok, err := e.state.ListingByInvoiceGet(invoiceID); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("marketplace: invoice %s already listed: %w", invoiceID, nativecommon.ErrValidation)
	}
	id, err := e.state.ListingNextID()
	if err != nil {
		return nil, err
	}
	listing := &Listing{
		ID:            id,
		InvoiceID:     invoiceID,
		Seller:        seller,
		AskingPrice:   new(big.Int).Set(askingPrice),
		InvoiceAmount: new(big.Int).Set(invoiceAmount),
		DueDate:       dueDate,
		CreatedAt:     e.now(),
		ExpiresAt:     expiresAt,
		Active:        true,
	}
	if minPrice != nil {
		listing.MinPrice = new(big.Int).Set(minPrice)
	}
	if err := e.state.ListingPut(listing); err != nil {
		return nil, err
	}
	if err := e.state.ListingByInvoicePut(invoiceID, id); err != nil {
		return nil, err
	}
	if err := e.invoices.MarkListed(invoiceID); err != nil {
		if delErr := e.state.ListingDelete(id); delErr != nil {
			return nil, errors.Join(err, delErr)
		}
		if delErr := e.state.ListingByInvoiceDelete(invoiceID); delErr != nil {
			return nil, errors.Join(err, delErr)
		}
		return nil, fmt.Errorf("marketplace: failed to mark invoice %s as listed: %w", invoiceID, err)
	}
	e.emit(NewListingCreatedEvent(listing))
	return listing.Clone(), nil
}

// Purchase buys a listing at asking price with a direct payment. The excess
// above the asking price is returned to the caller synchronously; it never
// depends on the settlement chain completing.
func (e *Engine) Purchase(buyer, listingID string, payment *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	buyer = strings.TrimSpace(buyer)
	if buyer == "" {
		return nil, fmt.Errorf("marketplace: buyer required: %w", nativecommon.ErrValidation)
	}
	if !listing.Active {
		return nil, fmt.Errorf("listing %s: not active: %w", listing.ID, nativecommon.ErrInvalidState)
	}
	if listing.Seller == buyer {
		return nil, fmt.Errorf("listing %s: cannot buy your own listing: %w", listing.ID, nativecommon.ErrValidation)
	}
	if listing.ExpiresAt > 0 && e.now() >= listing.ExpiresAt {
		return nil, fmt.Errorf("listing %s: expired: %w", listing.ID, nativecommon.ErrInvalidState)
	}
	if payment == nil || payment.Cmp(listing.AskingPrice) < 0 {
		return nil, fmt.Errorf("listing %s: payment below asking price: %w", listing.ID, nativecommon.ErrInsufficientFunds)
	}
	excess := new(big.Int).Sub(payment, listing.AskingPrice)

	listing.Active = false
	if err := e.state.ListingPut(listing); err != nil {
		return nil, err
	}
	if err := e.state.ListingByInvoiceDelete(listing.InvoiceID); err != nil {
		return nil, err
	}

	intent := &SettlementIntent{
		ID:            intentID(listing.ID, buyer, listing.AskingPrice),
		ListingID:     listing.ID,
		InvoiceID:     listing.InvoiceID,
		Seller:        listing.Seller,
		Buyer:         buyer,
		SaleAmount:    new(big.Int).Set(listing.AskingPrice),
		InvoiceAmount: new(big.Int).Set(listing.InvoiceAmount),
		DueDate:       listing.DueDate,
		CreatedAt:     e.now(),
		Step:          StepPushDeposit,
	}
	if err := e.state.IntentPut(intent); err != nil {
		return nil, err
	}
	if e.observer != nil {
		e.observer.RecordIntentStarted()
	}
	if err := e.runIntent(intent); err != nil {
		return nil, err
	}
	e.emit(NewPurchasedEvent(listing, buyer, listing.AskingPrice))
	return excess, nil
}

// OnTokenReceived handles an inbound fund-custody notification for the
// marketplace. A "buy_listing:<listing_id>" memo triggers a purchase with the
// delivered amount as payment; the returned value is the unconsumed amount to
// hand back to the sender (the excess on success, everything on failure).
func (e *Engine) OnTokenReceived(notice custody.TransferNotice) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if notice.Sender != e.custodyAccount {
		return nil, fmt.Errorf("marketplace: only custody token transfers accepted: %w", nativecommon.ErrUnauthorized)
	}
	refundAll := func() *big.Int {
		if notice.Amount == nil {
			return big.NewInt(0)
		}
		return new(big.Int).Set(notice.Amount)
	}
	tag, err := custody.ParseTag(notice.Memo)
	if err != nil {
		return refundAll(), fmt.Errorf("marketplace: invalid transfer memo: %w", nativecommon.ErrValidation)
	}
	switch tag.Action {
	case custody.MemoBuyListing:
		excess, err := e.Purchase(notice.From, tag.Reference, notice.Amount)
		if err != nil {
			return refundAll(), err
		}
		return excess, nil
	case custody.MemoPlaceBid:
		return refundAll(), fmt.Errorf("marketplace: bidding with custody transfers not supported: %w", nativecommon.ErrValidation)
	default:
		return refundAll(), fmt.Errorf("marketplace: unknown transfer action %q: %w", tag.Action, nativecommon.ErrValidation)
	}
}

// runIntent executes the remaining steps of a settlement intent in order,
// persisting progress after each completed step. A failure on the initial
// deposit push compensates fully (the listing is restored and the intent
// dropped); a failure after funds have moved leaves the intent persisted so
// it can be resumed, and is surfaced to the caller.
func (e *Engine) runIntent(in *SettlementIntent) error {
	if e.custodyLedger == nil {
		return errNilCustody
	}
	if e.invoices == nil {
		return errNilInvoice
	}
	if e.escrows == nil {
		return errNilEscrow
	}
	for in.Step != StepDone {
		switch in.Step {
		case StepPushDeposit:
			memo := custody.FormatTag(custody.MemoEscrowDeposit, in.InvoiceID)
			if err := e.custodyLedger.Push(e.escrowAccount, in.SaleAmount, memo); err != nil {
				if cErr := e.compensate(in); cErr != nil {
					return errors.Join(err, cErr)
				}
				if e.observer != nil {
					e.observer.RecordCompensation()
				}
				return fmt.Errorf("marketplace: deposit push failed for listing %s: %w", in.ListingID, err)
			}
		case StepTransferOwnership:
			if err := e.invoices.TransferOwnership(in.InvoiceID, in.Buyer); err != nil {
				e.stall(in)
				return fmt.Errorf("marketplace: settlement for listing %s stalled at %s: %w", in.ListingID, in.Step, err)
			}
		case StepCreateEscrow:
			if _, err := e.escrows.Create(in.InvoiceID, in.Seller, in.Buyer, in.SaleAmount, in.InvoiceAmount, in.DueDate); err != nil {
				e.stall(in)
				return fmt.Errorf("marketplace: settlement for listing %s stalled at %s: %w", in.ListingID, in.Step, err)
			}
		default:
			return fmt.Errorf("marketplace: settlement intent %s in unknown step %d", in.ID, in.Step)
		}
		in.Step++
		if in.Step == StepDone {
			if err := e.state.IntentDelete(in.ID); err != nil {
				return err
			}
			if e.observer != nil {
				e.observer.RecordIntentCompleted()
			}
		} else if err := e.state.IntentPut(in); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) stall(in *SettlementIntent) {
	e.emit(NewSettlementPendingEvent(in))
	if e.observer != nil {
		e.observer.RecordIntentStalled(in.Step.String())
	}
}

// compensate undoes a purchase whose chain failed before any funds moved:
// the listing is reactivated, its invoice lookup restored and the intent
// dropped.
func (e *Engine) compensate(in *SettlementIntent) error {
	listing, ok, err := e.state.ListingGet(in.ListingID)
	if err != nil {
		return err
	}
	if ok {
		listing.Active = true
		if err := e.state.ListingPut(listing); err != nil {
			return err
		}
		if err := e.state.ListingByInvoicePut(in.InvoiceID, in.ListingID); err != nil {
			return err
		}
	}
	return e.state.IntentDelete(in.ID)
}

// ResumeSettlement retries the remaining steps of a stalled settlement
// intent. Completed steps are never re-run.
func (e *Engine) ResumeSettlement(intentID string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	in, ok, err := e.state.IntentGet(strings.TrimSpace(intentID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("settlement intent %s: %w", intentID, nativecommon.ErrNotFound)
	}
	return e.runIntent(in)
}

// PendingSettlements returns every persisted intent that has not completed.
func (e *Engine) PendingSettlements() ([]*SettlementIntent, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var out []*SettlementIntent
	err := e.state.IntentScan(func(in *SettlementIntent) bool {
		out = append(out, in)
		return true
	})
	return out, err
}

// PlaceBid records a counter-offer against an active listing.
func (e *Engine) PlaceBid(bidder, listingID string, amount *big.Int) (*Bid, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	bidder = strings.TrimSpace(bidder)
	if bidder == "" {
		return nil, fmt.Errorf("marketplace: bidder required: %w", nativecommon.ErrValidation)
	}
	if !listing.Active {
		return nil, fmt.Errorf("listing %s: not active: %w", listing.ID, nativecommon.ErrInvalidState)
	}
	if listing.Seller == bidder {
		return nil, fmt.Errorf("listing %s: cannot bid on your own listing: %w", listing.ID, nativecommon.ErrValidation)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("listing %s: bid amount must be greater than 0: %w", listing.ID, nativecommon.ErrValidation)
	}
	if listing.MinPrice != nil && amount.Cmp(listing.MinPrice) < 0 {
		return nil, fmt.Errorf("listing %s: bid below minimum price: %w", listing.ID, nativecommon.ErrValidation)
	}
	id, err := e.state.BidNextID()
	if err != nil {
		return nil, err
	}
	bid := &Bid{
		ID:        id,
		ListingID: listing.ID,
		Bidder:    bidder,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: e.now(),
		Active:    true,
	}
	bids, err := e.state.BidsGet(listing.ID)
	if err != nil {
		return nil, err
	}
	bids = append(bids, bid)
	if err := e.state.BidsPut(listing.ID, bids); err != nil {
		return nil, err
	}
	e.emit(NewBidPlacedEvent(bid))
	return bid.Clone(), nil
}

// AcceptBid deactivates the listing and every bid, then runs the
// ownership-transfer and escrow-creation chain seeded with the winning bid's
// amount. Refunding non-winning bids is delegated to the custody
// collaborator and only flagged here.
func (e *Engine) AcceptBid(caller, listingID, bidID string) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return err
	}
	if listing.Seller != caller {
		return fmt.Errorf("listing %s: only seller can accept bids: %w", listing.ID, nativecommon.ErrUnauthorized)
	}
	if !listing.Active {
		return fmt.Errorf("listing %s: not active: %w", listing.ID, nativecommon.ErrInvalidState)
	}
	bids, err := e.state.BidsGet(listing.ID)
	if err != nil {
		return err
	}
	var winner *Bid
	for _, b := range bids {
		if b.ID == bidID && b.Active {
			winner = b
			break
		}
	}
	if winner == nil {
		return fmt.Errorf("bid %s: not found or inactive: %w", bidID, nativecommon.ErrNotFound)
	}

	listing.Active = false
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if err := e.state.ListingByInvoiceDelete(listing.InvoiceID); err != nil {
		return err
	}
	for _, b := range bids {
		if b.Active && b.ID != winner.ID {
			e.emit(NewBidRefundFlaggedEvent(b))
		}
		b.Active = false
	}
	if err := e.state.BidsPut(listing.ID, bids); err != nil {
		return err
	}

	intent := &SettlementIntent{
		ID:            intentID(listing.ID, winner.Bidder, winner.Amount),
		ListingID:     listing.ID,
		InvoiceID:     listing.InvoiceID,
		Seller:        listing.Seller,
		Buyer:         winner.Bidder,
		SaleAmount:    new(big.Int).Set(winner.Amount),
		InvoiceAmount: new(big.Int).Set(listing.InvoiceAmount),
		DueDate:       listing.DueDate,
		CreatedAt:     e.now(),
		// Bids hold no custody funds, so the chain starts at the
		// ownership transfer; the escrow waits for a deposit
		// notification as usual.
		Step: StepTransferOwnership,
	}
	if err := e.state.IntentPut(intent); err != nil {
		return err
	}
	if e.observer != nil {
		e.observer.RecordIntentStarted()
	}
	if err := e.runIntent(intent); err != nil {
		return err
	}
	e.emit(NewBidAcceptedEvent(listing, winner))
	return nil
}

// CancelListing deactivates a listing and asks the invoice registry to
// unlist the invoice. Only the seller may cancel. Active bids are flagged for
// refund by the custody collaborator.
func (e *Engine) CancelListing(caller, listingID string) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.invoices == nil {
		return errNilInvoice
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return err
	}
	if listing.Seller != caller {
		return fmt.Errorf("listing %s: only seller can cancel: %w", listing.ID, nativecommon.ErrUnauthorized)
	}
	if !listing.Active {
		return fmt.Errorf("listing %s: not active: %w", listing.ID, nativecommon.ErrInvalidState)
	}
	listing.Active = false
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if err := e.state.ListingByInvoiceDelete(listing.InvoiceID); err != nil {
		return err
	}
	bids, err := e.state.BidsGet(listing.ID)
	if err != nil {
		return err
	}
	for _, b := range bids {
		if b.Active {
			e.emit(NewBidRefundFlaggedEvent(b))
		}
	}
	e.emit(NewListingCancelledEvent(listing))
	if err := e.invoices.Unlist(listing.InvoiceID); err != nil {
		return fmt.Errorf("marketplace: failed to unlist invoice %s: %w", listing.InvoiceID, err)
	}
	return nil
}

// CancelBid deactivates a bid. Only the bidder may cancel.
func (e *Engine) CancelBid(caller, listingID, bidID string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	bids, err := e.state.BidsGet(strings.TrimSpace(listingID))
	if err != nil {
		return err
	}
	var target *Bid
	for _, b := range bids {
		if b.ID == bidID {
			target = b
			break
		}
	}
	if target == nil {
		return fmt.Errorf("bid %s: %w", bidID, nativecommon.ErrNotFound)
	}
	if target.Bidder != caller {
		return fmt.Errorf("bid %s: only bidder can cancel: %w", bidID, nativecommon.ErrUnauthorized)
	}
	if !target.Active {
		return fmt.Errorf("bid %s: not active: %w", bidID, nativecommon.ErrInvalidState)
	}
	target.Active = false
	if err := e.state.BidsPut(strings.TrimSpace(listingID), bids); err != nil {
		return err
	}
	e.emit(NewBidCancelledEvent(target))
	return nil
}

// GetListing returns the listing with the given identifier.
func (e *Engine) GetListing(listingID string) (*Listing, error) {
	return e.loadListing(listingID)
}

// ListingByInvoice resolves the listing registered for an invoice, if any.
func (e *Engine) ListingByInvoice(invoiceID string) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listingID, ok, err := e.state.ListingByInvoiceGet(strings.TrimSpace(invoiceID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("listing for invoice %s: %w", invoiceID, nativecommon.ErrNotFound)
	}
	return e.loadListing(listingID)
}

// Bids returns the active bids for a listing.
func (e *Engine) Bids(listingID string) ([]*Bid, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	bids, err := e.state.BidsGet(strings.TrimSpace(listingID))
	if err != nil {
		return nil, err
	}
	out := make([]*Bid, 0, len(bids))
	for _, b := range bids {
		if b.Active {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

// ListingsBySeller returns every listing created by the seller.
func (e *Engine) ListingsBySeller(seller string) ([]*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var out []*Listing
	err := e.state.ListingScan(func(l *Listing) bool {
		if l.Seller == seller {
			out = append(out, l)
		}
		return true
	})
	return out, err
}

// ActiveListings returns active listings in identifier order, paginated by
// offset and limit, decorated with discount and yield figures for display.
func (e *Engine) ActiveListings(offset, limit int) ([]*ListingView, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if limit <= 0 {
		return nil, nil
	}
	now := e.now()
	var (
		out     []*ListingView
		skipped int
	)
	err := e.state.ListingScan(func(l *Listing) bool {
		if !l.Active {
			return true
		}
		if skipped < offset {
			skipped++
			return true
		}
		out = append(out, newListingView(l, now))
		return len(out) < limit
	})
	return out, err
}

func newListingView(l *Listing, now int64) *ListingView {
	view := &ListingView{Listing: l}
	if l.InvoiceAmount.Sign() > 0 {
		diff := new(big.Int).Sub(l.InvoiceAmount, l.AskingPrice)
		num, _ := new(big.Float).SetInt(diff).Float64()
		den, _ := new(big.Float).SetInt(l.InvoiceAmount).Float64()
		if den > 0 {
			view.DiscountPercentage = num / den * 100
		}
	}
	view.DaysUntilDue = (l.DueDate - now) / dayMillis
	if view.DaysUntilDue > 0 {
		view.AnnualizedYield = view.DiscountPercentage / float64(view.DaysUntilDue) * 365
	}
	return view
}
