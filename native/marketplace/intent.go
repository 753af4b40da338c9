package marketplace

import (
	"encoding/hex"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// IntentStep identifies the next remote call a settlement intent must
// complete. Steps advance strictly forward; a persisted intent resumes from
// its recorded step.
type IntentStep uint8

const (
	// StepPushDeposit forwards the sale amount to the escrow engine's
	// custody, tagged with the invoice id.
	StepPushDeposit IntentStep = iota
	// StepTransferOwnership asks the invoice registry to move the invoice to
	// the buyer.
	StepTransferOwnership
	// StepCreateEscrow asks the escrow engine to open the custodial record.
	StepCreateEscrow
	// StepDone marks the chain complete.
	StepDone
)

func (s IntentStep) String() string {
	switch s {
	case StepPushDeposit:
		return "push_deposit"
	case StepTransferOwnership:
		return "transfer_ownership"
	case StepCreateEscrow:
		return "create_escrow"
	case StepDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// SettlementIntent is the persisted saga record for a purchase or
// bid-acceptance chain. The listing is already deactivated when the intent is
// created; the intent captures everything needed to finish (or compensate)
// the cross-ledger sequence after a partial failure.
type SettlementIntent struct {
	ID            string
	ListingID     string
	InvoiceID     string
	Seller        string
	Buyer         string
	SaleAmount    *big.Int
	InvoiceAmount *big.Int
	DueDate       int64
	CreatedAt     int64
	Step          IntentStep
}

// Clone returns a deep copy of the intent.
func (in *SettlementIntent) Clone() *SettlementIntent {
	if in == nil {
		return nil
	}
	clone := *in
	if in.SaleAmount != nil {
		clone.SaleAmount = new(big.Int).Set(in.SaleAmount)
	} else {
		clone.SaleAmount = big.NewInt(0)
	}
	if in.InvoiceAmount != nil {
		clone.InvoiceAmount = new(big.Int).Set(in.InvoiceAmount)
	} else {
		clone.InvoiceAmount = big.NewInt(0)
	}
	return &clone
}

// intentID derives a deterministic identifier from the listing, buyer and
// sale amount so a retried purchase maps onto the same intent record.
func intentID(listingID, buyer string, saleAmount *big.Int) string {
	amount := saleAmount
	if amount == nil {
		amount = big.NewInt(0)
	}
	hash := ethcrypto.Keccak256Hash([]byte(listingID), []byte(buyer), amount.Bytes())
	return hex.EncodeToString(hash[:])
}
