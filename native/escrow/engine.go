package escrow

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

const moduleName = "escrow"

var (
	errNilState   = errors.New("escrow engine: state not configured")
	errNilCustody = errors.New("escrow engine: custody ledger not configured")
)

// EngineState is the persistence backend consumed by the engine. One invoice
// maps to at most one escrow for its lifetime, enforced through the
// invoice-to-escrow lookup.
type EngineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id string) (*Escrow, bool, error)
	EscrowNextID() (string, error)
	EscrowCount() (uint64, error)
	EscrowByInvoicePut(invoiceID, escrowID string) error
	EscrowByInvoiceGet(invoiceID string) (string, bool, error)
	PendingDepositAdd(invoiceID string, amount *big.Int) error
	PendingDepositTake(invoiceID string) (*big.Int, bool, error)
	EscrowBuyerIndexAdd(buyer, id string) error
	EscrowBuyerList(buyer string) ([]string, error)
	EscrowSellerIndexAdd(seller, id string) error
	EscrowSellerList(seller string) ([]string, error)
	EscrowScan(fn func(*Escrow) bool) error
}

// InvoiceSettler notifies the invoice registry that a receivable has been
// settled. The adapter binds the escrow engine's caller identity.
type InvoiceSettler interface {
	MarkSettled(invoiceID string) error
}

// Engine owns escrow records, their funding state and final disposition. It is
// the authoritative source of truth for whether the buyer's money has been
// received and who gets paid.
type Engine struct {
	state          EngineState
	custodyLedger  custody.Ledger
	invoices       InvoiceSettler
	emitter        events.Emitter
	nowFn          func() int64
	marketplace    string
	custodyAccount string
	admin          string
	pauses         nativecommon.PauseView
}

// NewEngine creates an escrow engine with a no-op emitter and wall-clock time
// source (unix milliseconds).
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().UnixMilli() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetCustodyLedger configures the outbound fund-custody collaborator.
func (e *Engine) SetCustodyLedger(ledger custody.Ledger) { e.custodyLedger = ledger }

// SetInvoiceSettler configures the invoice registry notifier.
func (e *Engine) SetInvoiceSettler(settler InvoiceSettler) { e.invoices = settler }

// SetMarketplaceAccount configures the account allowed to create escrows and
// originate deposits.
func (e *Engine) SetMarketplaceAccount(account string) { e.marketplace = account }

// SetCustodyAccount configures the collaborator whose inbound notifications
// are trusted.
func (e *Engine) SetCustodyAccount(account string) { e.custodyAccount = account }

// SetAdminAccount configures the administrator allowed to resolve disputes.
func (e *Engine) SetAdminAccount(account string) { e.admin = account }

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

func (e *Engine) load(id string) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, fmt.Errorf("escrow: id required: %w", nativecommon.ErrValidation)
	}
	esc, ok, err := e.state.EscrowGet(trimmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("escrow %s: %w", trimmed, nativecommon.ErrNotFound)
	}
	return esc, nil
}

// Create initialises and persists a new escrow record for a sold invoice.
// Only the marketplace or the administrator may create escrows, and an
// invoice can never have two escrow records simultaneously. A deposit
// notification buffered for the invoice before the escrow existed is applied
// here, so the record comes out funded when the deposit covers the sale
// amount.
func (e *Engine) Create(caller, invoiceID, seller, buyer string, saleAmount, invoiceAmount *big.Int, dueDate int64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller != e.marketplace && caller != e.admin {
		return nil, fmt.Errorf("escrow: only marketplace can create escrow: %w", nativecommon.ErrUnauthorized)
	}
	invoiceID = strings.TrimSpace(invoiceID)
	seller = strings.TrimSpace(seller)
	buyer = strings.TrimSpace(buyer)
	if invoiceID == "" || seller == "" || buyer == "" {
		return nil, fmt.Errorf("escrow: invoice id, seller and buyer required: %w", nativecommon.ErrValidation)
	}
	if saleAmount == nil || saleAmount.Sign() <= 0 {
		return nil, fmt.Errorf("escrow: sale amount must be positive: %w", nativecommon.ErrValidation)
	}
	if invoiceAmount == nil || invoiceAmount.Sign() <= 0 {
		return nil, fmt.Errorf("escrow: invoice amount must be positive: %w", nativecommon.ErrValidation)
	}
	if _, ok, err := e.state.EscrowByInvoiceGet(invoiceID); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("escrow: escrow already exists for invoice %s: %w", invoiceID, nativecommon.ErrValidation)
	}
	id, err := e.state.EscrowNextID()
	if err != nil {
		return nil, err
	}
	esc := &Escrow{
		ID:            id,
		InvoiceID:     invoiceID,
		Seller:        seller,
		Buyer:         buyer,
		SaleAmount:    new(big.Int).Set(saleAmount),
		InvoiceAmount: new(big.Int).Set(invoiceAmount),
		CreatedAt:     e.now(),
		DueDate:       dueDate,
		Status:        StatusActive,
	}
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	if err := e.state.EscrowByInvoicePut(invoiceID, id); err != nil {
		return nil, err
	}
	if err := e.state.EscrowBuyerIndexAdd(buyer, id); err != nil {
		return nil, err
	}
	if err := e.state.EscrowSellerIndexAdd(seller, id); err != nil {
		return nil, err
	}
	pending, hasPending, err := e.state.PendingDepositTake(invoiceID)
	if err != nil {
		return nil, err
	}
	if hasPending && pending.Cmp(esc.SaleAmount) >= 0 {
		esc.FundsDeposited = true
		if err := e.state.EscrowPut(esc); err != nil {
			return nil, err
		}
	}
	e.emit(NewCreatedEvent(esc))
	if esc.FundsDeposited {
		e.emit(NewFundedEvent(esc, pending))
	}
	return esc.Clone(), nil
}

// OnTokenReceived handles an inbound fund-custody notification tagged
// "escrow_deposit:<invoice_id>". It returns the amount to hand back to the
// sender; deposits are always swept in full, so the return value is zero even
// when the notification cannot be matched. A deposit naming an invoice with
// no escrow yet is buffered and applied when Create registers that invoice,
// since the marketplace pushes the deposit before the escrow record exists.
// Matching an escrow whose funds are already deposited is an idempotent
// no-op. The notification is rejected outright only when it does not come
// from the registered custody collaborator or the marketplace.
func (e *Engine) OnTokenReceived(notice custody.TransferNotice) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if notice.Sender != e.custodyAccount {
		return nil, fmt.Errorf("escrow: only custody token transfers accepted: %w", nativecommon.ErrUnauthorized)
	}
	if notice.From != e.marketplace {
		return nil, fmt.Errorf("escrow: only marketplace can deposit to escrow: %w", nativecommon.ErrUnauthorized)
	}
	keepAll := big.NewInt(0)
	tag, err := custody.ParseTag(notice.Memo)
	if err != nil || tag.Action != custody.MemoEscrowDeposit {
		return keepAll, nil
	}
	escrowID, ok, err := e.state.EscrowByInvoiceGet(tag.Reference)
	if err != nil {
		return nil, err
	}
	if !ok {
		if notice.Amount != nil && notice.Amount.Sign() > 0 {
			if err := e.state.PendingDepositAdd(tag.Reference, notice.Amount); err != nil {
				return nil, err
			}
			e.emit(NewDepositBufferedEvent(tag.Reference, notice.Amount))
		}
		return keepAll, nil
	}
	esc, ok, err := e.state.EscrowGet(escrowID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return keepAll, nil
	}
	if esc.FundsDeposited {
		return keepAll, nil
	}
	if notice.Amount == nil || notice.Amount.Cmp(esc.SaleAmount) < 0 {
		return keepAll, nil
	}
	esc.FundsDeposited = true
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	e.emit(NewFundedEvent(esc, notice.Amount))
	return keepAll, nil
}

// Settle releases the escrowed sale amount to the buyer and notifies the
// invoice registry. The seller, buyer or administrator may trigger
// settlement once funds are deposited.
func (e *Engine) Settle(caller, escrowID string) error {
	esc, err := e.load(escrowID)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != esc.Seller && caller != esc.Buyer && caller != e.admin {
		return fmt.Errorf("escrow %s: unauthorized settle caller: %w", esc.ID, nativecommon.ErrUnauthorized)
	}
	return e.settle(esc)
}

func (e *Engine) settle(esc *Escrow) error {
	if esc.Status != StatusActive {
		return fmt.Errorf("escrow %s: not active, is %s: %w", esc.ID, esc.Status, nativecommon.ErrInvalidState)
	}
	if !esc.FundsDeposited {
		return fmt.Errorf("escrow %s: no funds deposited: %w", esc.ID, nativecommon.ErrInvalidState)
	}
	if e.custodyLedger == nil {
		return errNilCustody
	}
	esc.Status = StatusReleased
	esc.SettledAt = e.now()
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	if err := e.custodyLedger.Push(esc.Buyer, esc.SaleAmount, custody.FormatTag(custody.MemoSettlement, esc.ID)); err != nil {
		return err
	}
	if e.invoices != nil {
		if err := e.invoices.MarkSettled(esc.InvoiceID); err != nil {
			return err
		}
	}
	e.emit(NewReleasedEvent(esc))
	return nil
}

// SimulateDebtorPayment stands in for an off-chain payment oracle: it records
// a debtor-payment event and immediately settles the escrow. A production
// deployment must replace this with a verified payment-confirmation feed.
func (e *Engine) SimulateDebtorPayment(escrowID string) error {
	esc, err := e.load(escrowID)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if esc.Status != StatusActive {
		return fmt.Errorf("escrow %s: not active, is %s: %w", esc.ID, esc.Status, nativecommon.ErrInvalidState)
	}
	e.emit(NewDebtorPaymentEvent(esc))
	return e.settle(esc)
}

// OpenDispute moves an active escrow to disputed. Only the buyer or seller
// may open a dispute, and a reason is required.
func (e *Engine) OpenDispute(caller, escrowID, reason string) error {
	esc, err := e.load(escrowID)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != esc.Buyer && caller != esc.Seller {
		return fmt.Errorf("escrow %s: only buyer or seller can open dispute: %w", esc.ID, nativecommon.ErrUnauthorized)
	}
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("escrow %s: dispute reason required: %w", esc.ID, nativecommon.ErrValidation)
	}
	return e.openDispute(esc, reason)
}

func (e *Engine) openDispute(esc *Escrow, reason string) error {
	if esc.Status != StatusActive {
		return fmt.Errorf("escrow %s: not active, is %s: %w", esc.ID, esc.Status, nativecommon.ErrInvalidState)
	}
	esc.Status = StatusDisputed
	esc.DisputeReason = reason
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewDisputedEvent(esc))
	return nil
}

// ResolveDispute settles a disputed escrow according to the administrator's
// determination. A buyer win refunds the sale amount and leaves the invoice
// sold; a seller win releases the sale amount to the seller and marks the
// invoice settled. Either disposition requires deposited funds.
func (e *Engine) ResolveDispute(caller, escrowID, winner string) error {
	esc, err := e.load(escrowID)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.admin {
		return fmt.Errorf("escrow %s: only admin can resolve disputes: %w", esc.ID, nativecommon.ErrUnauthorized)
	}
	if esc.Status != StatusDisputed {
		return fmt.Errorf("escrow %s: not disputed, is %s: %w", esc.ID, esc.Status, nativecommon.ErrInvalidState)
	}
	if winner != esc.Buyer && winner != esc.Seller {
		return fmt.Errorf("escrow %s: winner must be buyer or seller: %w", esc.ID, nativecommon.ErrValidation)
	}
	if !esc.FundsDeposited {
		return fmt.Errorf("escrow %s: no funds deposited: %w", esc.ID, nativecommon.ErrInvalidState)
	}
	if e.custodyLedger == nil {
		return errNilCustody
	}
	buyerWins := winner == esc.Buyer
	if buyerWins {
		esc.Status = StatusRefunded
	} else {
		esc.Status = StatusReleased
	}
	esc.SettledAt = e.now()
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	if err := e.custodyLedger.Push(winner, esc.SaleAmount, custody.FormatTag(custody.MemoDisputePayout, esc.ID)); err != nil {
		return err
	}
	if !buyerWins && e.invoices != nil {
		if err := e.invoices.MarkSettled(esc.InvoiceID); err != nil {
			return err
		}
	}
	e.emit(NewResolvedEvent(esc, winner))
	return nil
}

// CheckOverdue reports whether an active escrow is past its due date.
func (e *Engine) CheckOverdue(escrowID string) (bool, error) {
	esc, err := e.load(escrowID)
	if err != nil {
		return false, err
	}
	return esc.Status == StatusActive && e.now() > esc.DueDate, nil
}

// MarkOverdue opens an auto-generated dispute on an active escrow whose due
// date has elapsed. Anyone may invoke the transition.
func (e *Engine) MarkOverdue(escrowID string) error {
	esc, err := e.load(escrowID)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if esc.Status != StatusActive {
		return fmt.Errorf("escrow %s: not active, is %s: %w", esc.ID, esc.Status, nativecommon.ErrInvalidState)
	}
	if e.now() <= esc.DueDate {
		return fmt.Errorf("escrow %s: not overdue: %w", esc.ID, nativecommon.ErrInvalidState)
	}
	return e.openDispute(esc, fmt.Sprintf("Auto-dispute: Payment overdue since %d", esc.DueDate))
}

// Get returns the escrow with the given identifier.
func (e *Engine) Get(escrowID string) (*Escrow, error) {
	return e.load(escrowID)
}

// ByInvoice resolves the escrow attached to an invoice, if any.
func (e *Engine) ByInvoice(invoiceID string) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	escrowID, ok, err := e.state.EscrowByInvoiceGet(strings.TrimSpace(invoiceID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("escrow for invoice %s: %w", invoiceID, nativecommon.ErrNotFound)
	}
	return e.load(escrowID)
}

// ByBuyer returns every escrow where the account is the buyer.
func (e *Engine) ByBuyer(buyer string) ([]*Escrow, error) {
	return e.byIndex(buyer, e.state.EscrowBuyerList)
}

// BySeller returns every escrow where the account is the seller.
func (e *Engine) BySeller(seller string) ([]*Escrow, error) {
	return e.byIndex(seller, e.state.EscrowSellerList)
}

func (e *Engine) byIndex(account string, list func(string) ([]string, error)) ([]*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := list(strings.TrimSpace(account))
	if err != nil {
		return nil, err
	}
	out := make([]*Escrow, 0, len(ids))
	for _, id := range ids {
		esc, ok, err := e.state.EscrowGet(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, esc)
		}
	}
	return out, nil
}

// Active returns active escrows in identifier order, paginated by offset and
// limit.
func (e *Engine) Active(offset, limit int) ([]*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if limit <= 0 {
		return nil, nil
	}
	var (
		out     []*Escrow
		skipped int
	)
	err := e.state.EscrowScan(func(esc *Escrow) bool {
		if esc.Status != StatusActive {
			return true
		}
		if skipped < offset {
			skipped++
			return true
		}
		out = append(out, esc)
		return len(out) < limit
	})
	return out, err
}

// Disputed returns every disputed escrow.
func (e *Engine) Disputed() ([]*Escrow, error) {
	return e.filter(func(esc *Escrow) bool { return esc.Status == StatusDisputed })
}

// Overdue returns every active escrow past its due date.
func (e *Engine) Overdue() ([]*Escrow, error) {
	now := e.now()
	return e.filter(func(esc *Escrow) bool {
		return esc.Status == StatusActive && now > esc.DueDate
	})
}

func (e *Engine) filter(keep func(*Escrow) bool) ([]*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var out []*Escrow
	err := e.state.EscrowScan(func(esc *Escrow) bool {
		if keep(esc) {
			out = append(out, esc)
		}
		return true
	})
	return out, err
}

// GetStats computes aggregate counters and the total value locked in active
// escrows.
func (e *Engine) GetStats() (*Stats, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	total, err := e.state.EscrowCount()
	if err != nil {
		return nil, err
	}
	stats := &Stats{TotalEscrows: total, TotalValueLocked: big.NewInt(0)}
	err = e.state.EscrowScan(func(esc *Escrow) bool {
		switch esc.Status {
		case StatusActive:
			stats.ActiveEscrows++
			stats.TotalValueLocked.Add(stats.TotalValueLocked, esc.SaleAmount)
		case StatusReleased, StatusRefunded:
			stats.TotalSettled++
		case StatusDisputed:
			stats.TotalDisputed++
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
