package invoice

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"factorhub/core/events"
	nativecommon "factorhub/native/common"
)

const moduleName = "invoice"

const dayMillis = 24 * 60 * 60 * 1000

var (
	errNilState = errors.New("invoice registry: state not configured")
)

// RegistryState is the persistence backend consumed by the registry. Records
// are owned exclusively by this ledger; other components reference invoices by
// identifier only.
type RegistryState interface {
	InvoicePut(*Invoice) error
	InvoiceGet(id string) (*Invoice, bool, error)
	InvoiceNextID() (string, error)
	InvoiceCreatorIndexAdd(creator, id string) error
	InvoiceCreatorList(creator string) ([]string, error)
	InvoiceOwnerIndexAdd(owner, id string) error
	InvoiceOwnerIndexRemove(owner, id string) error
	InvoiceOwnerList(owner string) ([]string, error)
	InvoiceScan(fn func(*Invoice) bool) error
}

// Registry owns invoice records and their lifecycle status. Ownership transfer
// and status transitions are gated on the caller's role: the configured
// marketplace and escrow accounts act with elevated rights per the transition
// table.
type Registry struct {
	state       RegistryState
	emitter     events.Emitter
	nowFn       func() int64
	marketplace string
	escrow      string
	pauses      nativecommon.PauseView
}

// NewRegistry creates an invoice registry with a no-op emitter and wall-clock
// time source (unix milliseconds).
func NewRegistry() *Registry {
	return &Registry{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().UnixMilli() },
	}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state RegistryState) { r.state = state }

// SetMarketplaceAccount configures the account permitted to act as the
// marketplace collaborator.
func (r *Registry) SetMarketplaceAccount(account string) { r.marketplace = account }

// SetEscrowAccount configures the account permitted to mark invoices settled
// on behalf of the escrow engine.
func (r *Registry) SetEscrowAccount(account string) { r.escrow = account }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().UnixMilli() }
		return
	}
	r.nowFn = now
}

// SetPauses installs the administrative pause switches.
func (r *Registry) SetPauses(p nativecommon.PauseView) { r.pauses = p }

func (r *Registry) emit(evt *events.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(evt)
}

func (r *Registry) now() int64 {
	if r == nil || r.nowFn == nil {
		return time.Now().UnixMilli()
	}
	return r.nowFn()
}

func (r *Registry) load(id string) (*Invoice, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, fmt.Errorf("invoice: id required: %w", nativecommon.ErrValidation)
	}
	inv, ok, err := r.state.InvoiceGet(trimmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", trimmed, nativecommon.ErrNotFound)
	}
	return inv, nil
}

// Create registers a new draft invoice owned by its creator and returns the
// stored record. The risk score is a bucketed heuristic of the amount and the
// days until the due date with a time-derived jitter component; injecting a
// fixed time source makes it deterministic.
func (r *Registry) Create(creator string, amount *big.Int, debtorName, debtorEmail, description string, dueDate int64, documentsHash string) (*Invoice, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return nil, err
	}
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return nil, fmt.Errorf("invoice: creator required: %w", nativecommon.ErrValidation)
	}
	if strings.TrimSpace(debtorName) == "" {
		return nil, fmt.Errorf("invoice: debtor name required: %w", nativecommon.ErrValidation)
	}
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("invoice: description required: %w", nativecommon.ErrValidation)
	}
	if strings.TrimSpace(documentsHash) == "" {
		return nil, fmt.Errorf("invoice: documents hash required: %w", nativecommon.ErrValidation)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invoice: amount must be greater than 0: %w", nativecommon.ErrValidation)
	}
	now := r.now()
	if dueDate <= now {
		return nil, fmt.Errorf("invoice: due date must be in the future: %w", nativecommon.ErrValidation)
	}
	id, err := r.state.InvoiceNextID()
	if err != nil {
		return nil, err
	}
	daysUntilDue := (dueDate - now) / dayMillis
	inv := &Invoice{
		ID:            id,
		Creator:       creator,
		Owner:         creator,
		Amount:        new(big.Int).Set(amount),
		Currency:      Currency,
		DebtorName:    debtorName,
		DebtorEmail:   debtorEmail,
		Description:   description,
		DueDate:       dueDate,
		CreatedAt:     now,
		DocumentsHash: documentsHash,
		Status:        StatusDraft,
		RiskScore:     riskScore(amount, daysUntilDue, now),
	}
	if err := r.state.InvoicePut(inv); err != nil {
		return nil, err
	}
	if err := r.state.InvoiceCreatorIndexAdd(creator, id); err != nil {
		return nil, err
	}
	if err := r.state.InvoiceOwnerIndexAdd(creator, id); err != nil {
		return nil, err
	}
	r.emit(NewCreatedEvent(inv))
	return inv.Clone(), nil
}

// riskScore buckets the amount and term into a heuristic 0..99 score. The
// jitter term derives from the supplied timestamp so a fixed time source
// yields reproducible scores.
func riskScore(amount *big.Int, daysUntilDue, jitter int64) uint8 {
	if jitter < 0 {
		jitter = -jitter
	}
	var score int64
	switch {
	case amount.Cmp(big.NewInt(1_000_000_000)) < 0 && daysUntilDue < 30:
		score = 20 + jitter%10
	case amount.Cmp(big.NewInt(5_000_000_000)) < 0 && daysUntilDue < 60:
		score = 40 + jitter%15
	case amount.Cmp(big.NewInt(10_000_000_000)) < 0 && daysUntilDue < 90:
		score = 55 + jitter%15
	default:
		score = 70 + jitter%20
	}
	if score > 99 {
		score = 99
	}
	return uint8(score)
}

// MarkListed transitions a draft invoice to listed. The owner or the
// marketplace may perform the transition.
func (r *Registry) MarkListed(caller, id string) error {
	inv, err := r.load(id)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if caller != inv.Owner && caller != r.marketplace {
		return fmt.Errorf("invoice %s: only owner or marketplace can list: %w", inv.ID, nativecommon.ErrUnauthorized)
	}
	if inv.Status != StatusDraft {
		return fmt.Errorf("invoice %s: must be draft to list, is %s: %w", inv.ID, inv.Status, nativecommon.ErrInvalidState)
	}
	inv.Status = StatusListed
	if err := r.state.InvoicePut(inv); err != nil {
		return err
	}
	r.emit(NewListedEvent(inv))
	return nil
}

// Unlist reverts a listed invoice to draft. The owner or the marketplace may
// perform the transition.
func (r *Registry) Unlist(caller, id string) error {
	inv, err := r.load(id)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if caller != inv.Owner && caller != r.marketplace {
		return fmt.Errorf("invoice %s: only owner or marketplace can unlist: %w", inv.ID, nativecommon.ErrUnauthorized)
	}
	if inv.Status != StatusListed {
		return fmt.Errorf("invoice %s: must be listed to unlist, is %s: %w", inv.ID, inv.Status, nativecommon.ErrInvalidState)
	}
	inv.Status = StatusDraft
	if err := r.state.InvoicePut(inv); err != nil {
		return err
	}
	r.emit(NewUnlistedEvent(inv))
	return nil
}

// TransferOwnership moves a listed invoice to a new owner and marks it sold.
// Only the marketplace may invoke the transfer.
func (r *Registry) TransferOwnership(caller, id, newOwner string) error {
	inv, err := r.load(id)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if caller != r.marketplace {
		return fmt.Errorf("invoice %s: only marketplace can transfer: %w", inv.ID, nativecommon.ErrUnauthorized)
	}
	newOwner = strings.TrimSpace(newOwner)
	if newOwner == "" {
		return fmt.Errorf("invoice %s: new owner required: %w", inv.ID, nativecommon.ErrValidation)
	}
	if inv.Status != StatusListed {
		return fmt.Errorf("invoice %s: must be listed to transfer, is %s: %w", inv.ID, inv.Status, nativecommon.ErrInvalidState)
	}
	oldOwner := inv.Owner
	inv.Owner = newOwner
	inv.Status = StatusSold
	if err := r.state.InvoicePut(inv); err != nil {
		return err
	}
	if err := r.state.InvoiceOwnerIndexRemove(oldOwner, inv.ID); err != nil {
		return err
	}
	if err := r.state.InvoiceOwnerIndexAdd(newOwner, inv.ID); err != nil {
		return err
	}
	r.emit(NewTransferredEvent(inv, oldOwner))
	return nil
}

// MarkSettled finalises a sold invoice. Only the escrow engine or the
// marketplace may invoke the transition.
func (r *Registry) MarkSettled(caller, id string) error {
	inv, err := r.load(id)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if caller != r.escrow && caller != r.marketplace {
		return fmt.Errorf("invoice %s: only escrow or marketplace can settle: %w", inv.ID, nativecommon.ErrUnauthorized)
	}
	if inv.Status != StatusSold {
		return fmt.Errorf("invoice %s: must be sold to settle, is %s: %w", inv.ID, inv.Status, nativecommon.ErrInvalidState)
	}
	inv.Status = StatusSettled
	if err := r.state.InvoicePut(inv); err != nil {
		return err
	}
	r.emit(NewSettledEvent(inv))
	return nil
}

// Cancel terminates a draft invoice. Only the owner may cancel.
func (r *Registry) Cancel(caller, id string) error {
	inv, err := r.load(id)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if caller != inv.Owner {
		return fmt.Errorf("invoice %s: only owner can cancel: %w", inv.ID, nativecommon.ErrUnauthorized)
	}
	if inv.Status != StatusDraft {
		return fmt.Errorf("invoice %s: can only cancel draft invoices, is %s: %w", inv.ID, inv.Status, nativecommon.ErrInvalidState)
	}
	inv.Status = StatusCancelled
	if err := r.state.InvoicePut(inv); err != nil {
		return err
	}
	r.emit(NewCancelledEvent(inv))
	return nil
}

// Get returns the invoice with the given identifier.
func (r *Registry) Get(id string) (*Invoice, error) {
	return r.load(id)
}

// ByCreator returns every invoice created by the account.
func (r *Registry) ByCreator(creator string) ([]*Invoice, error) {
	return r.byIndex(creator, r.state.InvoiceCreatorList)
}

// ByOwner returns every invoice currently owned by the account.
func (r *Registry) ByOwner(owner string) ([]*Invoice, error) {
	return r.byIndex(owner, r.state.InvoiceOwnerList)
}

func (r *Registry) byIndex(account string, list func(string) ([]string, error)) ([]*Invoice, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	ids, err := list(strings.TrimSpace(account))
	if err != nil {
		return nil, err
	}
	out := make([]*Invoice, 0, len(ids))
	for _, id := range ids {
		inv, ok, err := r.state.InvoiceGet(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, inv)
		}
	}
	return out, nil
}

// ByStatus returns every invoice in the given status. Full scan; acceptable
// while the record set is bounded.
func (r *Registry) ByStatus(status Status) ([]*Invoice, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	var out []*Invoice
	err := r.state.InvoiceScan(func(inv *Invoice) bool {
		if inv.Status == status {
			out = append(out, inv)
		}
		return true
	})
	return out, err
}

// List returns invoices in identifier order, paginated by offset and limit.
func (r *Registry) List(offset, limit int) ([]*Invoice, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	if limit <= 0 {
		return nil, nil
	}
	var (
		out     []*Invoice
		skipped int
	)
	err := r.state.InvoiceScan(func(inv *Invoice) bool {
		if skipped < offset {
			skipped++
			return true
		}
		out = append(out, inv)
		return len(out) < limit
	})
	return out, err
}
