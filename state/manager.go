// Package state persists the ledgers of the invoice registry, the
// marketplace and the escrow engine on a shared key-value database. Records
// are stored as JSON under per-module key prefixes; identifiers come from
// per-module sequence counters.
package state

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"

	"factorhub/native/escrow"
	"factorhub/native/invoice"
	"factorhub/native/marketplace"
	"factorhub/storage"
)

const (
	invoicePrefix        = "invoice/record/"
	invoiceSeqKey        = "invoice/seq"
	invoiceCreatorPrefix = "invoice/creator/"
	invoiceOwnerPrefix   = "invoice/owner/"

	listingPrefix          = "market/listing/"
	listingSeqKey          = "market/listing-seq"
	listingByInvoicePrefix = "market/by-invoice/"
	bidsPrefix             = "market/bids/"
	bidSeqKey              = "market/bid-seq"
	intentPrefix           = "market/intent/"

	escrowPrefix          = "escrow/record/"
	escrowSeqKey          = "escrow/seq"
	escrowByInvoicePrefix = "escrow/by-invoice/"
	escrowPendingPrefix   = "escrow/pending-deposit/"
	escrowBuyerPrefix     = "escrow/buyer/"
	escrowSellerPrefix    = "escrow/seller/"
)

// Manager implements the state interfaces of all three engines over a single
// storage.Database. A process-wide mutex serialises counter increments and
// index read-modify-write cycles.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

// NewManager wraps the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) putJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.db.Put([]byte(key), raw)
}

func (m *Manager) getJSON(key string, v any) (bool, error) {
	raw, err := m.db.Get([]byte(key))
	if err == storage.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

// nextID increments the counter stored at seqKey and formats the result with
// the module's identifier pattern, e.g. "INV-%06d".
func (m *Manager) nextID(seqKey, format string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var seq uint64
	raw, err := m.db.Get([]byte(seqKey))
	switch err {
	case nil:
		seq, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return "", fmt.Errorf("state: corrupt counter %s: %w", seqKey, err)
		}
	case storage.ErrKeyNotFound:
	default:
		return "", err
	}
	seq++
	if err := m.db.Put([]byte(seqKey), []byte(strconv.FormatUint(seq, 10))); err != nil {
		return "", err
	}
	return fmt.Sprintf(format, seq), nil
}

func (m *Manager) counter(seqKey string) (uint64, error) {
	raw, err := m.db.Get([]byte(seqKey))
	if err == storage.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

func (m *Manager) indexAdd(key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	if _, err := m.getJSON(key, &ids); err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	sort.Strings(ids)
	return m.putJSON(key, ids)
}

func (m *Manager) indexRemove(key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	ok, err := m.getJSON(key, &ids)
	if err != nil || !ok {
		return err
	}
	filtered := ids[:0]
	for _, existing := range ids {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == 0 {
		err := m.db.Delete([]byte(key))
		if err == storage.ErrKeyNotFound {
			return nil
		}
		return err
	}
	return m.putJSON(key, filtered)
}

func (m *Manager) indexList(key string) ([]string, error) {
	var ids []string
	if _, err := m.getJSON(key, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// --- invoice.RegistryState ---

func (m *Manager) InvoicePut(inv *invoice.Invoice) error {
	if inv == nil || inv.ID == "" {
		return fmt.Errorf("state: invoice with id required")
	}
	return m.putJSON(invoicePrefix+inv.ID, inv)
}

func (m *Manager) InvoiceGet(id string) (*invoice.Invoice, bool, error) {
	var inv invoice.Invoice
	ok, err := m.getJSON(invoicePrefix+id, &inv)
	if err != nil || !ok {
		return nil, false, err
	}
	return &inv, true, nil
}

func (m *Manager) InvoiceNextID() (string, error) {
	return m.nextID(invoiceSeqKey, "INV-%06d")
}

func (m *Manager) InvoiceCreatorIndexAdd(creator, id string) error {
	return m.indexAdd(invoiceCreatorPrefix+creator, id)
}

func (m *Manager) InvoiceCreatorList(creator string) ([]string, error) {
	return m.indexList(invoiceCreatorPrefix + creator)
}

func (m *Manager) InvoiceOwnerIndexAdd(owner, id string) error {
	return m.indexAdd(invoiceOwnerPrefix+owner, id)
}

func (m *Manager) InvoiceOwnerIndexRemove(owner, id string) error {
	return m.indexRemove(invoiceOwnerPrefix+owner, id)
}

func (m *Manager) InvoiceOwnerList(owner string) ([]string, error) {
	return m.indexList(invoiceOwnerPrefix + owner)
}

func (m *Manager) InvoiceScan(fn func(*invoice.Invoice) bool) error {
	return m.db.Iterate([]byte(invoicePrefix), func(_, value []byte) bool {
		var inv invoice.Invoice
		if err := json.Unmarshal(value, &inv); err != nil {
			return true
		}
		return fn(&inv)
	})
}

// --- marketplace.EngineState ---

func (m *Manager) ListingPut(l *marketplace.Listing) error {
	if l == nil || l.ID == "" {
		return fmt.Errorf("state: listing with id required")
	}
	return m.putJSON(listingPrefix+l.ID, l)
}

func (m *Manager) ListingGet(id string) (*marketplace.Listing, bool, error) {
	var l marketplace.Listing
	ok, err := m.getJSON(listingPrefix+id, &l)
	if err != nil || !ok {
		return nil, false, err
	}
	return &l, true, nil
}

func (m *Manager) ListingDelete(id string) error {
	err := m.db.Delete([]byte(listingPrefix + id))
	if err == storage.ErrKeyNotFound {
		return nil
	}
	return err
}

func (m *Manager) ListingNextID() (string, error) {
	return m.nextID(listingSeqKey, "LST-%06d")
}

func (m *Manager) ListingByInvoicePut(invoiceID, listingID string) error {
	return m.db.Put([]byte(listingByInvoicePrefix+invoiceID), []byte(listingID))
}

func (m *Manager) ListingByInvoiceGet(invoiceID string) (string, bool, error) {
	raw, err := m.db.Get([]byte(listingByInvoicePrefix + invoiceID))
	if err == storage.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

func (m *Manager) ListingByInvoiceDelete(invoiceID string) error {
	err := m.db.Delete([]byte(listingByInvoicePrefix + invoiceID))
	if err == storage.ErrKeyNotFound {
		return nil
	}
	return err
}

func (m *Manager) ListingScan(fn func(*marketplace.Listing) bool) error {
	return m.db.Iterate([]byte(listingPrefix), func(_, value []byte) bool {
		var l marketplace.Listing
		if err := json.Unmarshal(value, &l); err != nil {
			return true
		}
		return fn(&l)
	})
}

func (m *Manager) BidNextID() (string, error) {
	return m.nextID(bidSeqKey, "BID-%06d")
}

func (m *Manager) BidsGet(listingID string) ([]*marketplace.Bid, error) {
	var bids []*marketplace.Bid
	if _, err := m.getJSON(bidsPrefix+listingID, &bids); err != nil {
		return nil, err
	}
	return bids, nil
}

func (m *Manager) BidsPut(listingID string, bids []*marketplace.Bid) error {
	return m.putJSON(bidsPrefix+listingID, bids)
}

func (m *Manager) IntentPut(in *marketplace.SettlementIntent) error {
	if in == nil || in.ID == "" {
		return fmt.Errorf("state: settlement intent with id required")
	}
	return m.putJSON(intentPrefix+in.ID, in)
}

func (m *Manager) IntentGet(id string) (*marketplace.SettlementIntent, bool, error) {
	var in marketplace.SettlementIntent
	ok, err := m.getJSON(intentPrefix+id, &in)
	if err != nil || !ok {
		return nil, false, err
	}
	return &in, true, nil
}

func (m *Manager) IntentDelete(id string) error {
	err := m.db.Delete([]byte(intentPrefix + id))
	if err == storage.ErrKeyNotFound {
		return nil
	}
	return err
}

func (m *Manager) IntentScan(fn func(*marketplace.SettlementIntent) bool) error {
	return m.db.Iterate([]byte(intentPrefix), func(_, value []byte) bool {
		var in marketplace.SettlementIntent
		if err := json.Unmarshal(value, &in); err != nil {
			return true
		}
		return fn(&in)
	})
}

// --- escrow.EngineState ---

func (m *Manager) EscrowPut(e *escrow.Escrow) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("state: escrow with id required")
	}
	return m.putJSON(escrowPrefix+e.ID, e)
}

func (m *Manager) EscrowGet(id string) (*escrow.Escrow, bool, error) {
	var e escrow.Escrow
	ok, err := m.getJSON(escrowPrefix+id, &e)
	if err != nil || !ok {
		return nil, false, err
	}
	return &e, true, nil
}

func (m *Manager) EscrowNextID() (string, error) {
	return m.nextID(escrowSeqKey, "ESC-%06d")
}

func (m *Manager) EscrowCount() (uint64, error) {
	return m.counter(escrowSeqKey)
}

func (m *Manager) EscrowByInvoicePut(invoiceID, escrowID string) error {
	return m.db.Put([]byte(escrowByInvoicePrefix+invoiceID), []byte(escrowID))
}

func (m *Manager) EscrowByInvoiceGet(invoiceID string) (string, bool, error) {
	raw, err := m.db.Get([]byte(escrowByInvoicePrefix + invoiceID))
	if err == storage.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

// PendingDepositAdd accumulates a deposit that arrived before its escrow was
// created, stored as a decimal string keyed by invoice id.
func (m *Manager) PendingDepositAdd(invoiceID string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := new(big.Int)
	raw, err := m.db.Get([]byte(escrowPendingPrefix + invoiceID))
	switch err {
	case nil:
		if _, ok := total.SetString(string(raw), 10); !ok {
			return fmt.Errorf("state: corrupt pending deposit for %s", invoiceID)
		}
	case storage.ErrKeyNotFound:
	default:
		return err
	}
	total.Add(total, amount)
	return m.db.Put([]byte(escrowPendingPrefix+invoiceID), []byte(total.String()))
}

// PendingDepositTake returns and clears the buffered deposit for an invoice.
func (m *Manager) PendingDepositTake(invoiceID string) (*big.Int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.db.Get([]byte(escrowPendingPrefix + invoiceID))
	if err == storage.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	amount, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, false, fmt.Errorf("state: corrupt pending deposit for %s", invoiceID)
	}
	if err := m.db.Delete([]byte(escrowPendingPrefix + invoiceID)); err != nil {
		return nil, false, err
	}
	return amount, true, nil
}

func (m *Manager) EscrowBuyerIndexAdd(buyer, id string) error {
	return m.indexAdd(escrowBuyerPrefix+buyer, id)
}

func (m *Manager) EscrowBuyerList(buyer string) ([]string, error) {
	return m.indexList(escrowBuyerPrefix + buyer)
}

func (m *Manager) EscrowSellerIndexAdd(seller, id string) error {
	return m.indexAdd(escrowSellerPrefix+seller, id)
}

func (m *Manager) EscrowSellerList(seller string) ([]string, error) {
	return m.indexList(escrowSellerPrefix + seller)
}

func (m *Manager) EscrowScan(fn func(*escrow.Escrow) bool) error {
	return m.db.Iterate([]byte(escrowPrefix), func(_, value []byte) bool {
		var e escrow.Escrow
		if err := json.Unmarshal(value, &e); err != nil {
			return true
		}
		return fn(&e)
	})
}
