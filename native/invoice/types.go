package invoice

import (
	"fmt"
	"math/big"
)

// Status represents the lifecycle states of a tokenized receivable.
type Status uint8

const (
	StatusDraft Status = iota
	StatusListed
	StatusSold
	StatusSettled
	StatusDisputed
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusListed, StatusSold, StatusSettled, StatusDisputed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusListed:
		return "listed"
	case StatusSold:
		return "sold"
	case StatusSettled:
		return "settled"
	case StatusDisputed:
		return "disputed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseStatus maps a status label back to its value.
func ParseStatus(label string) (Status, error) {
	switch label {
	case "draft":
		return StatusDraft, nil
	case "listed":
		return StatusListed, nil
	case "sold":
		return StatusSold, nil
	case "settled":
		return StatusSettled, nil
	case "disputed":
		return StatusDisputed, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("unknown invoice status %q", label)
	}
}

// Currency is the settlement currency for all invoices. Amounts are integer
// base units of this token.
const Currency = "USDC"

// Invoice captures a tokenized receivable. The creator is immutable; the
// owner changes only through an authorized transfer, and the status moves
// monotonically along the registry's transition table.
type Invoice struct {
	ID            string
	Creator       string
	Owner         string
	Amount        *big.Int
	Currency      string
	DebtorName    string
	DebtorEmail   string
	Description   string
	DueDate       int64
	CreatedAt     int64
	DocumentsHash string
	Status        Status
	RiskScore     uint8
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the stored instance.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	clone := *inv
	if inv.Amount != nil {
		clone.Amount = new(big.Int).Set(inv.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Sanitize validates the invoice record and returns a cloned instance with a
// non-nil amount. The original value is not mutated.
func Sanitize(inv *Invoice) (*Invoice, error) {
	if inv == nil {
		return nil, fmt.Errorf("nil invoice")
	}
	clone := inv.Clone()
	if clone.ID == "" {
		return nil, fmt.Errorf("invoice id required")
	}
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("invoice amount must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid invoice status: %d", clone.Status)
	}
	if clone.RiskScore > 99 {
		clone.RiskScore = 99
	}
	return clone, nil
}
