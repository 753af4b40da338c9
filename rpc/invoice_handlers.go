package rpc

import (
	"factorhub/native/invoice"
)

// InvoiceResult is the RPC projection of an invoice record.
type InvoiceResult struct {
	ID            string `json:"id"`
	Creator       string `json:"creator"`
	Owner         string `json:"owner"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	DebtorName    string `json:"debtorName"`
	DebtorEmail   string `json:"debtorEmail,omitempty"`
	Description   string `json:"description,omitempty"`
	DueDate       int64  `json:"dueDate"`
	CreatedAt     int64  `json:"createdAt"`
	DocumentsHash string `json:"documentsHash,omitempty"`
	Status        string `json:"status"`
	RiskScore     uint8  `json:"riskScore"`
}

func invoiceResult(inv *invoice.Invoice) *InvoiceResult {
	if inv == nil {
		return nil
	}
	return &InvoiceResult{
		ID:            inv.ID,
		Creator:       inv.Creator,
		Owner:         inv.Owner,
		Amount:        formatAmount(inv.Amount),
		Currency:      inv.Currency,
		DebtorName:    inv.DebtorName,
		DebtorEmail:   inv.DebtorEmail,
		Description:   inv.Description,
		DueDate:       inv.DueDate,
		CreatedAt:     inv.CreatedAt,
		DocumentsHash: inv.DocumentsHash,
		Status:        inv.Status.String(),
		RiskScore:     inv.RiskScore,
	}
}

func invoiceResults(list []*invoice.Invoice) []*InvoiceResult {
	out := make([]*InvoiceResult, 0, len(list))
	for _, inv := range list {
		out = append(out, invoiceResult(inv))
	}
	return out
}

func (s *Server) handleInvoiceCreate(caller string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Amount        string `json:"amount"`
		DebtorName    string `json:"debtorName"`
		DebtorEmail   string `json:"debtorEmail"`
		Description   string `json:"description"`
		DueDate       int64  `json:"dueDate"`
		DocumentsHash string `json:"documentsHash"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	inv, err := s.invoices.Create(caller, amount, params.DebtorName, params.DebtorEmail, params.Description, params.DueDate, params.DocumentsHash)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return invoiceResult(inv), nil
}

func (s *Server) handleInvoiceCancel(caller string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ID string `json:"id"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.invoices.Cancel(caller, params.ID); err != nil {
		return nil, errorFromEngine(err)
	}
	return map[string]string{"status": "cancelled"}, nil
}

func (s *Server) handleInvoiceGet(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ID string `json:"id"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	inv, err := s.invoices.Get(params.ID)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return invoiceResult(inv), nil
}

func (s *Server) handleInvoiceListByCreator(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Creator string `json:"creator"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	list, err := s.invoices.ByCreator(params.Creator)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return invoiceResults(list), nil
}

func (s *Server) handleInvoiceListByOwner(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Owner string `json:"owner"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	list, err := s.invoices.ByOwner(params.Owner)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return invoiceResults(list), nil
}

func (s *Server) handleInvoiceListByStatus(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Status string `json:"status"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	status, err := invoice.ParseStatus(params.Status)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	list, err := s.invoices.ByStatus(status)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return invoiceResults(list), nil
}

func (s *Server) handleInvoiceList(_ string, req *RPCRequest) (interface{}, *RPCError) {
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
	list, err := s.invoices.List(params.Offset, params.Limit)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return invoiceResults(list), nil
}
