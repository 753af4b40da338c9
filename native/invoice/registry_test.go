package invoice

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"factorhub/core/events"
	nativecommon "factorhub/native/common"
)

type mockState struct {
	invoices   map[string]*Invoice
	seq        uint64
	creatorIdx map[string][]string
	ownerIdx   map[string][]string
}

func newMockState() *mockState {
	return &mockState{
		invoices:   make(map[string]*Invoice),
		creatorIdx: make(map[string][]string),
		ownerIdx:   make(map[string][]string),
	}
}

func (m *mockState) InvoicePut(inv *Invoice) error {
	m.invoices[inv.ID] = inv.Clone()
	return nil
}

func (m *mockState) InvoiceGet(id string) (*Invoice, bool, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, false, nil
	}
	return inv.Clone(), true, nil
}

func (m *mockState) InvoiceNextID() (string, error) {
	m.seq++
	return fmt.Sprintf("INV-%06d", m.seq), nil
}

func (m *mockState) InvoiceCreatorIndexAdd(creator, id string) error {
	m.creatorIdx[creator] = append(m.creatorIdx[creator], id)
	return nil
}

func (m *mockState) InvoiceCreatorList(creator string) ([]string, error) {
	return m.creatorIdx[creator], nil
}

func (m *mockState) InvoiceOwnerIndexAdd(owner, id string) error {
	m.ownerIdx[owner] = append(m.ownerIdx[owner], id)
	return nil
}

func (m *mockState) InvoiceOwnerIndexRemove(owner, id string) error {
	ids := m.ownerIdx[owner]
	filtered := ids[:0]
	for _, existing := range ids {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	m.ownerIdx[owner] = filtered
	return nil
}

func (m *mockState) InvoiceOwnerList(owner string) ([]string, error) {
	return m.ownerIdx[owner], nil
}

func (m *mockState) InvoiceScan(fn func(*Invoice) bool) error {
	for _, inv := range m.invoices {
		if !fn(inv.Clone()) {
			return nil
		}
	}
	return nil
}

type capturingEmitter struct {
	events []*events.Event
}

func (c *capturingEmitter) Emit(evt *events.Event) { c.events = append(c.events, evt) }

type pauseAll struct{}

func (pauseAll) IsPaused(string) bool { return true }

const testNow = int64(1_700_000_000_000)

func newTestRegistry() (*Registry, *mockState, *capturingEmitter) {
	state := newMockState()
	emitter := &capturingEmitter{}
	registry := NewRegistry()
	registry.SetState(state)
	registry.SetMarketplaceAccount("marketplace.test")
	registry.SetEscrowAccount("escrow.test")
	registry.SetEmitter(emitter)
	registry.SetNowFunc(func() int64 { return testNow })
	return registry, state, emitter
}

func mustCreate(t *testing.T, r *Registry, creator string, amount int64, days int64) *Invoice {
	t.Helper()
	inv, err := r.Create(creator, big.NewInt(amount), "Debtor Corp", "ap@debtor.example", "Services rendered", testNow+days*dayMillis, "0xabc123")
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func TestCreateAssignsFields(t *testing.T) {
	registry, _, emitter := newTestRegistry()

	inv := mustCreate(t, registry, "acme.example", 2_000_000_000, 45)
	if inv.ID != "INV-000001" {
		t.Fatalf("unexpected id %s", inv.ID)
	}
	if inv.Owner != "acme.example" || inv.Creator != "acme.example" {
		t.Fatalf("creator should own the new invoice: %+v", inv)
	}
	if inv.Status != StatusDraft {
		t.Fatalf("expected draft status, got %s", inv.Status)
	}
	if inv.Currency != Currency {
		t.Fatalf("expected %s currency, got %s", Currency, inv.Currency)
	}
	if inv.CreatedAt != testNow {
		t.Fatalf("expected createdAt %d, got %d", testNow, inv.CreatedAt)
	}
	if len(emitter.events) != 1 || emitter.events[0].Type != EventTypeCreated {
		t.Fatalf("expected a single created event, got %+v", emitter.events)
	}
}

func TestCreateValidation(t *testing.T) {
	registry, _, _ := newTestRegistry()

	future := testNow + 30*dayMillis
	tests := []struct {
		name    string
		creator string
		amount  *big.Int
		debtor  string
		desc    string
		dueDate int64
		docs    string
	}{
		{"missing creator", "", big.NewInt(100), "Debtor", "desc", future, "0xabc"},
		{"missing debtor name", "acme", big.NewInt(100), "", "desc", future, "0xabc"},
		{"missing description", "acme", big.NewInt(100), "Debtor", "", future, "0xabc"},
		{"missing documents hash", "acme", big.NewInt(100), "Debtor", "desc", future, ""},
		{"nil amount", "acme", nil, "Debtor", "desc", future, "0xabc"},
		{"zero amount", "acme", big.NewInt(0), "Debtor", "desc", future, "0xabc"},
		{"due date in the past", "acme", big.NewInt(100), "Debtor", "desc", testNow - 1, "0xabc"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := registry.Create(tc.creator, tc.amount, tc.debtor, "", tc.desc, tc.dueDate, tc.docs)
			if !errors.Is(err, nativecommon.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRiskScoreBuckets(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		days   int64
		jitter int64
		want   uint8
	}{
		{"small short invoice", 900_000_000, 20, 0, 20},
		{"small short with jitter", 900_000_000, 20, 7, 27},
		{"mid invoice", 4_000_000_000, 45, 0, 40},
		{"large invoice", 9_000_000_000, 80, 0, 55},
		{"very large invoice", 20_000_000_000, 10, 0, 70},
		{"jitter wraps per bucket", 20_000_000_000, 10, 19, 89},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := riskScore(big.NewInt(tc.amount), tc.days, tc.jitter)
			if got != tc.want {
				t.Fatalf("riskScore(%d, %d, %d) = %d, want %d", tc.amount, tc.days, tc.jitter, got, tc.want)
			}
		})
	}
}

func TestMarkListedAuthorization(t *testing.T) {
	registry, _, _ := newTestRegistry()
	inv := mustCreate(t, registry, "acme.example", 100, 30)

	if err := registry.MarkListed("mallory.example", inv.ID); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := registry.MarkListed("marketplace.test", inv.ID); err != nil {
		t.Fatalf("marketplace should be allowed to list: %v", err)
	}
	// Listing twice violates the transition table.
	if err := registry.MarkListed("acme.example", inv.ID); !errors.Is(err, nativecommon.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestUnlistRestoresDraft(t *testing.T) {
	registry, _, _ := newTestRegistry()
	inv := mustCreate(t, registry, "acme.example", 100, 30)

	if err := registry.Unlist("acme.example", inv.ID); !errors.Is(err, nativecommon.ErrInvalidState) {
		t.Fatalf("unlisting a draft should fail, got %v", err)
	}
	if err := registry.MarkListed("acme.example", inv.ID); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := registry.Unlist("acme.example", inv.ID); err != nil {
		t.Fatalf("unlist: %v", err)
	}
	got, err := registry.Get(inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusDraft {
		t.Fatalf("expected draft after unlist, got %s", got.Status)
	}
}

func TestTransferOwnership(t *testing.T) {
	registry, _, _ := newTestRegistry()
	inv := mustCreate(t, registry, "acme.example", 100, 30)

	if err := registry.TransferOwnership("acme.example", inv.ID, "fund.example"); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("only marketplace may transfer, got %v", err)
	}
	if err := registry.TransferOwnership("marketplace.test", inv.ID, "fund.example"); !errors.Is(err, nativecommon.ErrInvalidState) {
		t.Fatalf("transferring a draft should fail, got %v", err)
	}
	if err := registry.MarkListed("acme.example", inv.ID); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := registry.TransferOwnership("marketplace.test", inv.ID, "fund.example"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	got, err := registry.Get(inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Owner != "fund.example" || got.Status != StatusSold {
		t.Fatalf("unexpected record after transfer: %+v", got)
	}
	if got.Creator != "acme.example" {
		t.Fatalf("creator must be immutable, got %s", got.Creator)
	}

	sellerOwned, err := registry.ByOwner("acme.example")
	if err != nil {
		t.Fatalf("by owner: %v", err)
	}
	if len(sellerOwned) != 0 {
		t.Fatalf("seller should no longer own the invoice: %+v", sellerOwned)
	}
	buyerOwned, err := registry.ByOwner("fund.example")
	if err != nil {
		t.Fatalf("by owner: %v", err)
	}
	if len(buyerOwned) != 1 || buyerOwned[0].ID != inv.ID {
		t.Fatalf("buyer should own the invoice: %+v", buyerOwned)
	}
	created, err := registry.ByCreator("acme.example")
	if err != nil {
		t.Fatalf("by creator: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("creator index must survive the transfer: %+v", created)
	}
}

func TestMarkSettled(t *testing.T) {
	registry, _, _ := newTestRegistry()
	inv := mustCreate(t, registry, "acme.example", 100, 30)

	if err := registry.MarkListed("acme.example", inv.ID); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := registry.MarkSettled("escrow.test", inv.ID); !errors.Is(err, nativecommon.ErrInvalidState) {
		t.Fatalf("settling a listed invoice should fail, got %v", err)
	}
	if err := registry.TransferOwnership("marketplace.test", inv.ID, "fund.example"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := registry.MarkSettled("fund.example", inv.ID); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("owner cannot settle directly, got %v", err)
	}
	if err := registry.MarkSettled("escrow.test", inv.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	got, _ := registry.Get(inv.ID)
	if got.Status != StatusSettled {
		t.Fatalf("expected settled, got %s", got.Status)
	}
}

func TestCancelOnlyDraft(t *testing.T) {
	registry, _, _ := newTestRegistry()
	inv := mustCreate(t, registry, "acme.example", 100, 30)

	if err := registry.Cancel("mallory.example", inv.ID); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := registry.MarkListed("acme.example", inv.ID); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := registry.Cancel("acme.example", inv.ID); !errors.Is(err, nativecommon.ErrInvalidState) {
		t.Fatalf("cancelling a listed invoice should fail, got %v", err)
	}
	if err := registry.Unlist("acme.example", inv.ID); err != nil {
		t.Fatalf("unlist: %v", err)
	}
	if err := registry.Cancel("acme.example", inv.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := registry.Get(inv.ID)
	if got.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestByStatusAndList(t *testing.T) {
	registry, _, _ := newTestRegistry()
	first := mustCreate(t, registry, "acme.example", 100, 30)
	mustCreate(t, registry, "acme.example", 200, 30)
	if err := registry.MarkListed("acme.example", first.ID); err != nil {
		t.Fatalf("list: %v", err)
	}

	listed, err := registry.ByStatus(StatusListed)
	if err != nil {
		t.Fatalf("by status: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != first.ID {
		t.Fatalf("unexpected listed set: %+v", listed)
	}

	page, err := registry.List(0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected both invoices, got %d", len(page))
	}
	empty, err := registry.List(0, 0)
	if err != nil || empty != nil {
		t.Fatalf("zero limit should return nothing, got %v %v", empty, err)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	registry, _, _ := newTestRegistry()
	inv := mustCreate(t, registry, "acme.example", 100, 30)
	registry.SetPauses(pauseAll{})

	if _, err := registry.Create("acme.example", big.NewInt(100), "Debtor", "", "desc", testNow+dayMillis, "0xabc"); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected pause error, got %v", err)
	}
	if err := registry.MarkListed("acme.example", inv.ID); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected pause error, got %v", err)
	}
	// Reads stay available while paused.
	if _, err := registry.Get(inv.ID); err != nil {
		t.Fatalf("get should work while paused: %v", err)
	}
}

func TestGetUnknownInvoice(t *testing.T) {
	registry, _, _ := newTestRegistry()
	if _, err := registry.Get("INV-999999"); !errors.Is(err, nativecommon.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := registry.Get("  "); !errors.Is(err, nativecommon.ErrValidation) {
		t.Fatalf("expected validation error for blank id, got %v", err)
	}
}
