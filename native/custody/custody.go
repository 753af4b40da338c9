package custody

import (
	"fmt"
	"math/big"
	"strings"
)

// Memo tags carried on fund-custody transfers. The wire format is
// colon-delimited: "<action>:<reference>".
const (
	MemoEscrowDeposit = "escrow_deposit"
	MemoBuyListing    = "buy_listing"
	MemoPlaceBid      = "place_bid"
	MemoSettlement    = "settlement"
	MemoDisputePayout = "dispute_resolution"
	MemoRefund        = "refund"
)

// Ledger is the external value-transfer collaborator. Implementations debit
// this service's custody balance and credit the recipient; delivery is
// fire-and-forget from the caller's perspective.
type Ledger interface {
	Push(recipient string, amount *big.Int, memo string) error
}

// TransferNotice describes an inbound transfer notification. Sender is the
// custody collaborator that delivered the funds; From is the account whose
// balance was debited.
type TransferNotice struct {
	Sender string
	From   string
	Amount *big.Int
	Memo   string
}

// Tag couples a memo action with its reference identifier.
type Tag struct {
	Action    string
	Reference string
}

// FormatTag renders the canonical colon-delimited memo for a transfer.
func FormatTag(action, reference string) string {
	return action + ":" + reference
}

// ParseTag splits a memo into action and reference. Memos with additional
// colon-separated segments keep only the first two, matching the permissive
// behaviour expected of inbound notifications.
func ParseTag(memo string) (Tag, error) {
	parts := strings.SplitN(strings.TrimSpace(memo), ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Tag{}, fmt.Errorf("custody: malformed memo %q", memo)
	}
	return Tag{Action: parts[0], Reference: parts[1]}, nil
}
