package escrow

import (
	"fmt"
	"math/big"
)

// Status represents the lifecycle states of an escrow record. Active may move
// to Released, Disputed or Refunded; Disputed may move to Released or
// Refunded. Released and Refunded are terminal.
type Status uint8

const (
	StatusActive Status = iota
	StatusReleased
	StatusDisputed
	StatusRefunded
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusReleased, StatusDisputed, StatusRefunded:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusReleased:
		return "released"
	case StatusDisputed:
		return "disputed"
	case StatusRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Escrow is the custodial record holding sale funds pending settlement or a
// dispute outcome. SaleAmount is what the buyer paid; InvoiceAmount is the
// face value the debtor owes. FundsDeposited flips to true exactly once when
// a matching custody notification arrives.
type Escrow struct {
	ID             string
	InvoiceID      string
	Seller         string
	Buyer          string
	SaleAmount     *big.Int
	InvoiceAmount  *big.Int
	CreatedAt      int64
	DueDate        int64
	Status         Status
	SettledAt      int64
	DisputeReason  string
	FundsDeposited bool
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.SaleAmount != nil {
		clone.SaleAmount = new(big.Int).Set(e.SaleAmount)
	} else {
		clone.SaleAmount = big.NewInt(0)
	}
	if e.InvoiceAmount != nil {
		clone.InvoiceAmount = new(big.Int).Set(e.InvoiceAmount)
	} else {
		clone.InvoiceAmount = big.NewInt(0)
	}
	return &clone
}

// Sanitize validates the escrow record and returns a cloned instance with
// non-nil amount fields. The original value is not mutated.
func Sanitize(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	if clone.ID == "" {
		return nil, fmt.Errorf("escrow id required")
	}
	if clone.InvoiceID == "" {
		return nil, fmt.Errorf("escrow invoice id required")
	}
	if clone.SaleAmount.Sign() < 0 || clone.InvoiceAmount.Sign() < 0 {
		return nil, fmt.Errorf("escrow amounts must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid escrow status: %d", clone.Status)
	}
	return clone, nil
}

// Stats aggregates the escrow ledger. Computed by full scan; acceptable while
// the record set is bounded.
type Stats struct {
	TotalEscrows     uint64
	ActiveEscrows    uint64
	TotalValueLocked *big.Int
	TotalSettled     uint64
	TotalDisputed    uint64
}
