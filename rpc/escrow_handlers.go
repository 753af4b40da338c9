package rpc

import (
	"factorhub/native/escrow"
)

// EscrowResult is the RPC projection of an escrow record.
type EscrowResult struct {
	ID             string `json:"id"`
	InvoiceID      string `json:"invoiceId"`
	Seller         string `json:"seller"`
	Buyer          string `json:"buyer"`
	SaleAmount     string `json:"saleAmount"`
	InvoiceAmount  string `json:"invoiceAmount"`
	CreatedAt      int64  `json:"createdAt"`
	DueDate        int64  `json:"dueDate"`
	Status         string `json:"status"`
	SettledAt      int64  `json:"settledAt,omitempty"`
	DisputeReason  string `json:"disputeReason,omitempty"`
	FundsDeposited bool   `json:"fundsDeposited"`
}

// EscrowStatsResult is the RPC projection of aggregate custody statistics.
type EscrowStatsResult struct {
	TotalEscrows     uint64 `json:"totalEscrows"`
	ActiveEscrows    uint64 `json:"activeEscrows"`
	TotalValueLocked string `json:"totalValueLocked"`
	TotalSettled     uint64 `json:"totalSettled"`
	TotalDisputed    uint64 `json:"totalDisputed"`
}

func escrowResult(e *escrow.Escrow) *EscrowResult {
	if e == nil {
		return nil
	}
	return &EscrowResult{
		ID:             e.ID,
		InvoiceID:      e.InvoiceID,
		Seller:         e.Seller,
		Buyer:          e.Buyer,
		SaleAmount:     formatAmount(e.SaleAmount),
		InvoiceAmount:  formatAmount(e.InvoiceAmount),
		CreatedAt:      e.CreatedAt,
		DueDate:        e.DueDate,
		Status:         e.Status.String(),
		SettledAt:      e.SettledAt,
		DisputeReason:  e.DisputeReason,
		FundsDeposited: e.FundsDeposited,
	}
}

func escrowResults(list []*escrow.Escrow) []*EscrowResult {
	out := make([]*EscrowResult, 0, len(list))
	for _, e := range list {
		out = append(out, escrowResult(e))
	}
	return out
}

func (s *Server) handleEscrowSettle(caller string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		EscrowID string `json:"escrowId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.escrows.Settle(caller, params.EscrowID); err != nil {
		return nil, errorFromEngine(err)
	}
	return map[string]string{"status": "released"}, nil
}

func (s *Server) handleEscrowOpenDispute(caller string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		EscrowID string `json:"escrowId"`
		Reason   string `json:"reason"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.escrows.OpenDispute(caller, params.EscrowID, params.Reason); err != nil {
		return nil, errorFromEngine(err)
	}
	return map[string]string{"status": "disputed"}, nil
}

func (s *Server) handleEscrowResolveDispute(caller string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		EscrowID string `json:"escrowId"`
		Winner   string `json:"winner"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.escrows.ResolveDispute(caller, params.EscrowID, params.Winner); err != nil {
		return nil, errorFromEngine(err)
	}
	return map[string]string{"status": "resolved", "winner": params.Winner}, nil
}

func (s *Server) handleEscrowSimulateDebtorPayment(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		EscrowID string `json:"escrowId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.escrows.SimulateDebtorPayment(params.EscrowID); err != nil {
		return nil, errorFromEngine(err)
	}
	return map[string]string{"status": "settled"}, nil
}

func (s *Server) handleEscrowMarkOverdue(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		EscrowID string `json:"escrowId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.escrows.MarkOverdue(params.EscrowID); err != nil {
		return nil, errorFromEngine(err)
	}
	return map[string]string{"status": "disputed"}, nil
}

func (s *Server) handleEscrowGet(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		EscrowID string `json:"escrowId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	esc, err := s.escrows.Get(params.EscrowID)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return escrowResult(esc), nil
}

func (s *Server) handleEscrowGetByInvoice(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		InvoiceID string `json:"invoiceId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	esc, err := s.escrows.ByInvoice(params.InvoiceID)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return escrowResult(esc), nil
}

func (s *Server) handleEscrowListActive(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.Limit <= 0 {
		params.Limit = 50
	}
	list, err := s.escrows.Active(params.Offset, params.Limit)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return escrowResults(list), nil
}

func (s *Server) handleEscrowListDisputed(_ string, req *RPCRequest) (interface{}, *RPCError) {
	list, err := s.escrows.Disputed()
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return escrowResults(list), nil
}

func (s *Server) handleEscrowListOverdue(_ string, req *RPCRequest) (interface{}, *RPCError) {
	list, err := s.escrows.Overdue()
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return escrowResults(list), nil
}

func (s *Server) handleEscrowListByBuyer(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Buyer string `json:"buyer"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	list, err := s.escrows.ByBuyer(params.Buyer)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return escrowResults(list), nil
}

func (s *Server) handleEscrowListBySeller(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Seller string `json:"seller"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	list, err := s.escrows.BySeller(params.Seller)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return escrowResults(list), nil
}

func (s *Server) handleEscrowStats(_ string, req *RPCRequest) (interface{}, *RPCError) {
	stats, err := s.escrows.GetStats()
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return &EscrowStatsResult{
		TotalEscrows:     stats.TotalEscrows,
		ActiveEscrows:    stats.ActiveEscrows,
		TotalValueLocked: formatAmount(stats.TotalValueLocked),
		TotalSettled:     stats.TotalSettled,
		TotalDisputed:    stats.TotalDisputed,
	}, nil
}
