package marketplace

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"testing"

	"factorhub/core/events"
	nativecommon "factorhub/native/common"
	"factorhub/native/custody"
)

type mockState struct {
	listings  map[string]*Listing
	seq       uint64
	byInvoice map[string]string
	bids      map[string][]*Bid
	bidSeq    uint64
	intents   map[string]*SettlementIntent
}

func newMockState() *mockState {
	return &mockState{
		listings:  make(map[string]*Listing),
		byInvoice: make(map[string]string),
		bids:      make(map[string][]*Bid),
		intents:   make(map[string]*SettlementIntent),
	}
}

func (m *mockState) ListingPut(l *Listing) error {
	m.listings[l.ID] = l.Clone()
	return nil
}

func (m *mockState) ListingGet(id string) (*Listing, bool, error) {
	l, ok := m.listings[id]
	if !ok {
		return nil, false, nil
	}
	return l.Clone(), true, nil
}

func (m *mockState) ListingDelete(id string) error {
	delete(m.listings, id)
	return nil
}

func (m *mockState) ListingNextID() (string, error) {
	m.seq++
	return fmt.Sprintf("LST-%06d", m.seq), nil
}

func (m *mockState) ListingByInvoicePut(invoiceID, listingID string) error {
	m.byInvoice[invoiceID] = listingID
	return nil
}

func (m *mockState) ListingByInvoiceGet(invoiceID string) (string, bool, error) {
	id, ok := m.byInvoice[invoiceID]
	return id, ok, nil
}

func (m *mockState) ListingByInvoiceDelete(invoiceID string) error {
	delete(m.byInvoice, invoiceID)
	return nil
}

func (m *mockState) ListingScan(fn func(*Listing) bool) error {
	ids := make([]string, 0, len(m.listings))
	for id := range m.listings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !fn(m.listings[id].Clone()) {
			return nil
		}
	}
	return nil
}

func (m *mockState) BidNextID() (string, error) {
	m.bidSeq++
	return fmt.Sprintf("BID-%06d", m.bidSeq), nil
}

func (m *mockState) BidsGet(listingID string) ([]*Bid, error) {
	bids := m.bids[listingID]
	out := make([]*Bid, 0, len(bids))
	for _, b := range bids {
		out = append(out, b.Clone())
	}
	return out, nil
}

func (m *mockState) BidsPut(listingID string, bids []*Bid) error {
	stored := make([]*Bid, 0, len(bids))
	for _, b := range bids {
		stored = append(stored, b.Clone())
	}
	m.bids[listingID] = stored
	return nil
}

func (m *mockState) IntentPut(in *SettlementIntent) error {
	m.intents[in.ID] = in.Clone()
	return nil
}

func (m *mockState) IntentGet(id string) (*SettlementIntent, bool, error) {
	in, ok := m.intents[id]
	if !ok {
		return nil, false, nil
	}
	return in.Clone(), true, nil
}

func (m *mockState) IntentDelete(id string) error {
	delete(m.intents, id)
	return nil
}

func (m *mockState) IntentScan(fn func(*SettlementIntent) bool) error {
	ids := make([]string, 0, len(m.intents))
	for id := range m.intents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !fn(m.intents[id].Clone()) {
			return nil
		}
	}
	return nil
}

type ownerChange struct {
	invoiceID string
	newOwner  string
}

type mockInvoices struct {
	listed       []string
	unlisted     []string
	transfers    []ownerChange
	failListed   error
	failTransfer error
}

func (m *mockInvoices) MarkListed(invoiceID string) error {
	if m.failListed != nil {
		return m.failListed
	}
	m.listed = append(m.listed, invoiceID)
	return nil
}

func (m *mockInvoices) Unlist(invoiceID string) error {
	m.unlisted = append(m.unlisted, invoiceID)
	return nil
}

func (m *mockInvoices) TransferOwnership(invoiceID, newOwner string) error {
	if m.failTransfer != nil {
		return m.failTransfer
	}
	m.transfers = append(m.transfers, ownerChange{invoiceID, newOwner})
	return nil
}

type escrowCreate struct {
	invoiceID  string
	seller     string
	buyer      string
	saleAmount *big.Int
}

type mockEscrows struct {
	created []escrowCreate
	fail    error
}

func (m *mockEscrows) Create(invoiceID, seller, buyer string, saleAmount, invoiceAmount *big.Int, dueDate int64) (string, error) {
	if m.fail != nil {
		return "", m.fail
	}
	m.created = append(m.created, escrowCreate{invoiceID, seller, buyer, new(big.Int).Set(saleAmount)})
	return fmt.Sprintf("ESC-%06d", len(m.created)), nil
}

type ledgerPush struct {
	recipient string
	amount    *big.Int
	memo      string
}

type mockLedger struct {
	pushes []ledgerPush
	fail   error
}

func (m *mockLedger) Push(recipient string, amount *big.Int, memo string) error {
	if m.fail != nil {
		return m.fail
	}
	m.pushes = append(m.pushes, ledgerPush{recipient, new(big.Int).Set(amount), memo})
	return nil
}

type capturingEmitter struct {
	events []*events.Event
}

func (c *capturingEmitter) Emit(evt *events.Event) { c.events = append(c.events, evt) }

func (c *capturingEmitter) count(eventType string) int {
	n := 0
	for _, evt := range c.events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

const testNow = int64(1_700_000_000_000)

const (
	sellerAccount  = "acme.example"
	buyerAccount   = "fund.example"
	escrowAccount  = "escrow.test"
	custodyAccount = "custody.test"
)

type fixture struct {
	engine   *Engine
	state    *mockState
	invoices *mockInvoices
	escrows  *mockEscrows
	ledger   *mockLedger
	emitter  *capturingEmitter
}

func newFixture() *fixture {
	f := &fixture{
		state:    newMockState(),
		invoices: &mockInvoices{},
		escrows:  &mockEscrows{},
		ledger:   &mockLedger{},
		emitter:  &capturingEmitter{},
	}
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetInvoiceService(f.invoices)
	f.engine.SetEscrowService(f.escrows)
	f.engine.SetCustodyLedger(f.ledger)
	f.engine.SetEscrowAccount(escrowAccount)
	f.engine.SetCustodyAccount(custodyAccount)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetNowFunc(func() int64 { return testNow })
	return f
}

func mustList(t *testing.T, f *fixture) *Listing {
	t.Helper()
	listing, err := f.engine.CreateListing(sellerAccount, "INV-000001",
		big.NewInt(1_850_000_000), big.NewInt(2_000_000_000), testNow+60*dayMillis, nil, 0)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return listing
}

func TestCreateListing(t *testing.T) {
	f := newFixture()
	listing := mustList(t, f)

	if listing.ID != "LST-000001" || !listing.Active {
		t.Fatalf("unexpected listing: %+v", listing)
	}
	if len(f.invoices.listed) != 1 || f.invoices.listed[0] != "INV-000001" {
		t.Fatalf("invoice registry not asked to list: %+v", f.invoices.listed)
	}
	if f.emitter.count(EventTypeListingCreated) != 1 {
		t.Fatalf("expected listing created event")
	}

	// The same invoice cannot be listed twice.
	if _, err := f.engine.CreateListing(sellerAccount, "INV-000001",
		big.NewInt(1), big.NewInt(2), testNow+dayMillis, nil, 0); !errors.Is(err, nativecommon.ErrValidation) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestCreateListingValidation(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name    string
		seller  string
		asking  *big.Int
		invoice *big.Int
	}{
		{"missing seller", "", big.NewInt(100), big.NewInt(200)},
		{"nil asking price", sellerAccount, nil, big.NewInt(200)},
		{"zero asking price", sellerAccount, big.NewInt(0), big.NewInt(200)},
		{"asking above invoice amount", sellerAccount, big.NewInt(300), big.NewInt(200)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateListing(tc.seller, "INV-000009", tc.asking, tc.invoice, testNow+dayMillis, nil, 0)
			if !errors.Is(err, nativecommon.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateListingRollsBackWhenMarkListedFails(t *testing.T) {
	f := newFixture()
	f.invoices.failListed = errors.New("registry unavailable")

	_, err := f.engine.CreateListing(sellerAccount, "INV-000001",
		big.NewInt(1_850_000_000), big.NewInt(2_000_000_000), testNow+60*dayMillis, nil, 0)
	if err == nil {
		t.Fatal("expected error when registry call fails")
	}
	if len(f.state.listings) != 0 {
		t.Fatalf("listing must be deleted on rollback: %+v", f.state.listings)
	}
	if len(f.state.byInvoice) != 0 {
		t.Fatalf("invoice lookup must be deleted on rollback: %+v", f.state.byInvoice)
	}
}

func TestPurchaseHappyPath(t *testing.T) {
	f := newFixture()
	listing := mustList(t, f)

	excess, err := f.engine.Purchase(buyerAccount, listing.ID, big.NewInt(2_000_000_000))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if excess.Cmp(big.NewInt(150_000_000)) != 0 {
		t.Fatalf("expected excess 150000000, got %s", excess)
	}

	got, _, _ := f.state.ListingGet(listing.ID)
	if got.Active {
		t.Fatal("listing must deactivate on purchase")
	}
	if _, ok, _ := f.state.ListingByInvoiceGet("INV-000001"); ok {
		t.Fatal("invoice lookup must be removed on purchase")
	}

	if len(f.ledger.pushes) != 1 {
		t.Fatalf("expected one deposit push, got %d", len(f.ledger.pushes))
	}
	push := f.ledger.pushes[0]
	if push.recipient != escrowAccount || push.amount.Cmp(big.NewInt(1_850_000_000)) != 0 {
		t.Fatalf("deposit must carry the sale amount to escrow: %+v", push)
	}
	if push.memo != "escrow_deposit:INV-000001" {
		t.Fatalf("unexpected memo %q", push.memo)
	}

	if len(f.invoices.transfers) != 1 || f.invoices.transfers[0] != (ownerChange{"INV-000001", buyerAccount}) {
		t.Fatalf("ownership transfer missing: %+v", f.invoices.transfers)
	}
	if len(f.escrows.created) != 1 || f.escrows.created[0].buyer != buyerAccount {
		t.Fatalf("escrow creation missing: %+v", f.escrows.created)
	}
	if len(f.state.intents) != 0 {
		t.Fatalf("completed intent must be deleted: %+v", f.state.intents)
	}
	if f.emitter.count(EventTypePurchased) != 1 {
		t.Fatal("expected purchased event")
	}
}

func TestPurchaseValidation(t *testing.T) {
	f := newFixture()
	listing := mustList(t, f)

	if _, err := f.engine.Purchase(sellerAccount, listing.ID, big.NewInt(2_000_000_000)); !errors.Is(err, nativecommon.ErrValidation) {
		t.Fatalf("buying your own listing must fail, got %v", err)
	}
	if _, err := f.engine.Purchase(buyerAccount, listing.ID, big.NewInt(1)); !errors.Is(err, nativecommon.ErrInsufficientFunds) {
		t.Fatalf("underpayment must fail, got %v", err)
	}
	if _, err := f.engine.Purchase(buyerAccount, "LST-999999", big.NewInt(1)); !errors.Is(err, nativecommon.ErrNotFound) {
		t.Fatalf("unknown listing must fail, got %v", err)
	}

	expired, err := f.engine.CreateListing(sellerAccount, "INV-000002",
		big.NewInt(100), big.NewInt(200), testNow+60*dayMillis, nil, testNow-1)
	if err != nil {
		t.Fatalf("create expired listing: %v", err)
	}
	if _, err := f.engine.Purchase(buyerAccount, expired.ID, big.NewInt(100)); !errors.Is(err, nativecommon.ErrInvalidState) {
		t.Fatalf("expired listing must fail, got %v", err)
	}
}

func TestPurchaseCompensatesWhenDepositFails(t *testing.T) {
	f := newFixture()
	listing := mustList(t, f)
	f.ledger.fail = errors.New("custody unavailable")

	_, err := f.engine.Purchase(buyerAccount, listing.ID, big.NewInt(1_850_000_000))
	if err == nil {
		t.Fatal("expected purchase failure")
	}

	got, _, _ := f.state.ListingGet(listing.ID)
	if !got.Active {
		t.Fatal("listing must be reactivated after compensation")
	}
	if id, ok, _ := f.state.ListingByInvoiceGet("INV-000001"); !ok || id != listing.ID {
		t.Fatal("invoice lookup must be restored after compensation")
	}
	if len(f.state.intents) != 0 {
		t.Fatalf("compensated intent must be dropped: %+v", f.state.intents)
	}
	if len(f.invoices.transfers) != 0 || len(f.escrows.created) != 0 {
		t.Fatal("no downstream calls may run after a failed deposit")
	}

	// The listing is buyable again once custody recovers.
	f.ledger.fail = nil
	if _, err := f.engine.Purchase(buyerAccount, listing.ID, big.NewInt(1_850_000_000)); err != nil {
		t.Fatalf("retry after compensation: %v", err)
	}
}

func TestPurchaseStallsAndResumes(t *testing.T) {
	f := newFixture()
	listing := mustList(t, f)
	f.invoices.failTransfer = errors.New("registry unavailable")

	_, err := f.engine.Purchase(buyerAccount, listing.ID, big.NewInt(1_850_000_000))
	if err == nil {
		t.Fatal("expected stalled purchase to report failure")
	}

	// Funds moved, so there is no rollback: the listing stays sold and the
	// intent is persisted at the failed step.
	got, _, _ := f.state.ListingGet(listing.ID)
	if got.Active {
		t.Fatal("listing must stay deactivated once funds moved")
	}
	pending, err := f.engine.PendingSettlements()
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending intent: %v %v", pending, err)
	}
	in := pending[0]
	if in.Step != StepTransferOwnership {
		t.Fatalf("intent should stall at transfer, is %s", in.Step)
	}
	if f.emitter.count(EventTypeSettlementPending) != 1 {
		t.Fatal("expected settlement pending event")
	}
	if len(f.ledger.pushes) != 1 {
		t.Fatalf("deposit must not be re-pushed, got %d", len(f.ledger.pushes))
	}

	// Resume still fails while the registry is down.
	if err := f.engine.ResumeSettlement(in.ID); err == nil {
		t.Fatal("resume should fail while the registry is down")
	}

	f.invoices.failTransfer = nil
	if err := f.engine.ResumeSettlement(in.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(f.state.intents) != 0 {
		t.Fatalf("resumed intent must complete and be dropped: %+v", f.state.intents)
	}
	if len(f.ledger.pushes) != 1 {
		t.Fatal("completed steps must never re-run")
	}
	if len(f.invoices.transfers) != 1 || len(f.escrows.created) != 1 {
		t.Fatalf("remaining steps must run exactly once: %+v %+v", f.invoices.transfers, f.escrows.created)
	}

	if err := f.engine.ResumeSettlement(in.ID); !errors.Is(err, nativecommon.ErrNotFound) {
		t.Fatalf("resuming a completed intent must report not found, got %v", err)
	}
}

func TestOnTokenReceived(t *testing.T) {
	f := newFixture()
	listing := mustList(t, f)

	if _, err := f.engine.OnTokenReceived(custody.TransferNotice{
		Sender: "stranger.test", From: buyerAccount, Amount: big.NewInt(1), Memo: "buy_listing:" + listing.ID,
	}); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("expected unauthorized sender, got %v", err)
	}

	returned, err := f.engine.OnTokenReceived(custody.TransferNotice{
		Sender: custodyAccount, From: buyerAccount, Amount: big.NewInt(1_900_000_000), Memo: "buy_listing:" + listing.ID,
	})
	if err != nil {
		t.Fatalf("custody purchase: %v", err)
	}
	if returned.Cmp(big.NewInt(50_000_000)) != 0 {
		t.Fatalf("expected excess 50000000 returned, got %s", returned)
	}

	// Failure paths hand the full amount back.
	returned, err = f.engine.OnTokenReceived(custody.TransferNotice{
		Sender: custodyAccount, From: buyerAccount, Amount: big.NewInt(500), Memo: "place_bid:" + listing.ID,
	})
	if err == nil {
		t.Fatal("bidding via custody transfer is unsupported")
	}
	if returned.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected full refund, got %s", returned)
	}

	returned, err = f.engine.OnTokenReceived(custody.TransferNotice{
		Sender: custodyAccount, From: buyerAccount, Amount: big.NewInt(700), Memo: "garbled",
	})
	if !errors.Is(err, nativecommon.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if returned.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("expected full refund, got %s", returned)
	}
}

func TestPlaceBid(t *testing.T) {
	f := newFixture()
	listing, err := f.engine.CreateListing(sellerAccount, "INV-000001",
		big.NewInt(1_850_000_000), big.NewInt(2_000_000_000), testNow+60*dayMillis, big.NewInt(1_700_000_000), 0)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}

	if _, err := f.engine.PlaceBid(sellerAccount, listing.ID, big.NewInt(1_750_000_000)); !errors.Is(err, nativecommon.ErrValidation) {
		t.Fatalf("bidding on your own listing must fail, got %v", err)
	}
	if _, err := f.engine.PlaceBid(buyerAccount, listing.ID, big.NewInt(1_600_000_000)); !errors.Is(err, nativecommon.ErrValidation) {
		t.Fatalf("bid below minimum must fail, got %v", err)
	}

	bid, err := f.engine.PlaceBid(buyerAccount, listing.ID, big.NewInt(1_750_000_000))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if bid.ID != "BID-000001" || !bid.Active {
		t.Fatalf("unexpected bid: %+v", bid)
	}
	if f.emitter.count(EventTypeBidPlaced) != 1 {
		t.Fatal("expected bid placed event")
	}

	bids, err := f.engine.Bids(listing.ID)
	if err != nil || len(bids) != 1 {
		t.Fatalf("bids: %v %v", bids, err)
	}
}

func TestAcceptBid(t *testing.T) {
	f := newFixture()
	listing := mustList(t, f)
	winner, err := f.engine.PlaceBid(buyerAccount, listing.ID, big.NewInt(1_750_000_000))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	loser, err := f.engine.PlaceBid("desk.example", listing.ID, big.NewInt(1_700_000_000))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}

	if err := f.engine.AcceptBid(buyerAccount, listing.ID, winner.ID); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("only the seller accepts bids, got %v", err)
	}
	if err := f.engine.AcceptBid(sellerAccount, listing.ID, "BID-999999"); !errors.Is(err, nativecommon.ErrNotFound) {
		t.Fatalf("unknown bid must fail, got %v", err)
	}
	if err := f.engine.AcceptBid(sellerAccount, listing.ID, winner.ID); err != nil {
		t.Fatalf("accept bid: %v", err)
	}

	got, _, _ := f.state.ListingGet(listing.ID)
	if got.Active {
		t.Fatal("listing must deactivate on acceptance")
	}
	// Bids hold no custody funds, so acceptance pushes no deposit.
	if len(f.ledger.pushes) != 0 {
		t.Fatalf("no deposit push expected: %+v", f.ledger.pushes)
	}
	if len(f.invoices.transfers) != 1 || f.invoices.transfers[0].newOwner != buyerAccount {
		t.Fatalf("ownership must move to the winning bidder: %+v", f.invoices.transfers)
	}
	if len(f.escrows.created) != 1 || f.escrows.created[0].saleAmount.Cmp(winner.Amount) != 0 {
		t.Fatalf("escrow must be seeded with the winning amount: %+v", f.escrows.created)
	}

	bids, _ := f.state.BidsGet(listing.ID)
	for _, b := range bids {
		if b.Active {
			t.Fatalf("all bids deactivate on acceptance: %+v", b)
		}
	}
	if f.emitter.count(EventTypeBidRefundFlagged) != 1 {
		t.Fatalf("losing bid %s must be flagged for refund", loser.ID)
	}
	if f.emitter.count(EventTypeBidAccepted) != 1 {
		t.Fatal("expected bid accepted event")
	}
}

func TestCancelListing(t *testing.T) {
	f := newFixture()
	listing := mustList(t, f)
	if _, err := f.engine.PlaceBid(buyerAccount, listing.ID, big.NewInt(1_000_000_000)); err != nil {
		t.Fatalf("place bid: %v", err)
	}

	if err := f.engine.CancelListing(buyerAccount, listing.ID); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("only the seller cancels, got %v", err)
	}
	if err := f.engine.CancelListing(sellerAccount, listing.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, _, _ := f.state.ListingGet(listing.ID)
	if got.Active {
		t.Fatal("listing must deactivate on cancel")
	}
	if len(f.invoices.unlisted) != 1 || f.invoices.unlisted[0] != "INV-000001" {
		t.Fatalf("invoice must be unlisted: %+v", f.invoices.unlisted)
	}
	if f.emitter.count(EventTypeBidRefundFlagged) != 1 {
		t.Fatal("open bids must be flagged for refund on cancel")
	}
	if err := f.engine.CancelListing(sellerAccount, listing.ID); !errors.Is(err, nativecommon.ErrInvalidState) {
		t.Fatalf("cancelling twice must fail, got %v", err)
	}
}

func TestCancelBid(t *testing.T) {
	f := newFixture()
	listing := mustList(t, f)
	bid, err := f.engine.PlaceBid(buyerAccount, listing.ID, big.NewInt(1_000_000_000))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}

	if err := f.engine.CancelBid(sellerAccount, listing.ID, bid.ID); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("only the bidder cancels, got %v", err)
	}
	if err := f.engine.CancelBid(buyerAccount, listing.ID, bid.ID); err != nil {
		t.Fatalf("cancel bid: %v", err)
	}
	if err := f.engine.CancelBid(buyerAccount, listing.ID, bid.ID); !errors.Is(err, nativecommon.ErrInvalidState) {
		t.Fatalf("cancelling twice must fail, got %v", err)
	}
	bids, _ := f.engine.Bids(listing.ID)
	if len(bids) != 0 {
		t.Fatalf("cancelled bids leave the active set: %+v", bids)
	}
}

func TestActiveListingsYieldMath(t *testing.T) {
	f := newFixture()
	mustList(t, f)

	views, err := f.engine.ActiveListings(0, 10)
	if err != nil || len(views) != 1 {
		t.Fatalf("active listings: %v %v", views, err)
	}
	view := views[0]
	if view.DaysUntilDue != 60 {
		t.Fatalf("expected 60 days until due, got %d", view.DaysUntilDue)
	}
	if view.DiscountPercentage < 7.49 || view.DiscountPercentage > 7.51 {
		t.Fatalf("expected 7.5%% discount, got %f", view.DiscountPercentage)
	}
	want := 7.5 / 60 * 365
	if view.AnnualizedYield < want-0.01 || view.AnnualizedYield > want+0.01 {
		t.Fatalf("expected annualized yield near %f, got %f", want, view.AnnualizedYield)
	}

	// Purchased listings leave the active set.
	if _, err := f.engine.Purchase(buyerAccount, view.Listing.ID, big.NewInt(1_850_000_000)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	views, err = f.engine.ActiveListings(0, 10)
	if err != nil || len(views) != 0 {
		t.Fatalf("expected empty active set: %v %v", views, err)
	}
}

func TestFeeBasisPointsCap(t *testing.T) {
	f := newFixture()
	if err := f.engine.SetFeeBasisPoints(250); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	if f.engine.FeeBasisPoints() != 250 {
		t.Fatalf("fee not stored")
	}
	if err := f.engine.SetFeeBasisPoints(1001); !errors.Is(err, nativecommon.ErrValidation) {
		t.Fatalf("fee above 10%% must fail, got %v", err)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	f := newFixture()
	listing := mustList(t, f)
	f.engine.SetPauses(pauseAll{})

	if _, err := f.engine.CreateListing(sellerAccount, "INV-000009",
		big.NewInt(1), big.NewInt(2), testNow+dayMillis, nil, 0); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected pause error, got %v", err)
	}
	if _, err := f.engine.Purchase(buyerAccount, listing.ID, big.NewInt(1_850_000_000)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected pause error, got %v", err)
	}
	if _, err := f.engine.GetListing(listing.ID); err != nil {
		t.Fatalf("reads stay available while paused: %v", err)
	}
}

type pauseAll struct{}

func (pauseAll) IsPaused(string) bool { return true }

type recordingObserver struct {
	started       int
	completed     int
	stalled       map[string]int
	compensations int
}

func (r *recordingObserver) RecordIntentStarted()   { r.started++ }
func (r *recordingObserver) RecordIntentCompleted() { r.completed++ }
func (r *recordingObserver) RecordIntentStalled(step string) {
	if r.stalled == nil {
		r.stalled = make(map[string]int)
	}
	r.stalled[step]++
}
func (r *recordingObserver) RecordCompensation() { r.compensations++ }

func TestSettlementObserverRecordsOutcomes(t *testing.T) {
	f := newFixture()
	obs := &recordingObserver{}
	f.engine.SetSettlementObserver(obs)
	listing := mustList(t, f)

	if _, err := f.engine.Purchase(buyerAccount, listing.ID, big.NewInt(1_850_000_000)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if obs.started != 1 || obs.completed != 1 {
		t.Fatalf("expected one completed chain, got %+v", obs)
	}

	// A deposit-push failure compensates and records the rollback.
	f2 := newFixture()
	obs2 := &recordingObserver{}
	f2.engine.SetSettlementObserver(obs2)
	listing2 := mustList(t, f2)
	f2.ledger.fail = errors.New("custody offline")
	if _, err := f2.engine.Purchase(buyerAccount, listing2.ID, big.NewInt(1_850_000_000)); err == nil {
		t.Fatalf("expected purchase failure")
	}
	if obs2.started != 1 || obs2.completed != 0 || obs2.compensations != 1 {
		t.Fatalf("expected one compensation, got %+v", obs2)
	}

	// A post-deposit failure stalls at the ownership transfer.
	f3 := newFixture()
	obs3 := &recordingObserver{}
	f3.engine.SetSettlementObserver(obs3)
	listing3 := mustList(t, f3)
	f3.invoices.failTransfer = errors.New("registry offline")
	if _, err := f3.engine.Purchase(buyerAccount, listing3.ID, big.NewInt(1_850_000_000)); err == nil {
		t.Fatalf("expected purchase failure")
	}
	if obs3.stalled["transfer_ownership"] != 1 || obs3.compensations != 0 {
		t.Fatalf("expected stall at transfer_ownership, got %+v", obs3)
	}
}
