package rpc

import (
	"math/big"

	"factorhub/native/marketplace"
)

// ListingResult is the RPC projection of a listing.
type ListingResult struct {
	ID            string `json:"id"`
	InvoiceID     string `json:"invoiceId"`
	Seller        string `json:"seller"`
	AskingPrice   string `json:"askingPrice"`
	MinPrice      string `json:"minPrice,omitempty"`
	InvoiceAmount string `json:"invoiceAmount"`
	DueDate       int64  `json:"dueDate"`
	CreatedAt     int64  `json:"createdAt"`
	ExpiresAt     int64  `json:"expiresAt,omitempty"`
	Active        bool   `json:"active"`
}

// ListingViewResult decorates a listing with display yields.
type ListingViewResult struct {
	ListingResult
	DiscountPercentage float64 `json:"discountPercentage"`
	DaysUntilDue       int64   `json:"daysUntilDue"`
	AnnualizedYield    float64 `json:"annualizedYield"`
}

// BidResult is the RPC projection of a bid.
type BidResult struct {
	ID        string `json:"id"`
	ListingID string `json:"listingId"`
	Bidder    string `json:"bidder"`
	Amount    string `json:"amount"`
	CreatedAt int64  `json:"createdAt"`
	Active    bool   `json:"active"`
}

// IntentResult is the RPC projection of a persisted settlement intent.
type IntentResult struct {
	ID         string `json:"id"`
	ListingID  string `json:"listingId"`
	InvoiceID  string `json:"invoiceId"`
	Seller     string `json:"seller"`
	Buyer      string `json:"buyer"`
	SaleAmount string `json:"saleAmount"`
	CreatedAt  int64  `json:"createdAt"`
	Step       string `json:"step"`
}

func listingResult(l *marketplace.Listing) *ListingResult {
	if l == nil {
		return nil
	}
	out := &ListingResult{
		ID:            l.ID,
		InvoiceID:     l.InvoiceID,
		Seller:        l.Seller,
		AskingPrice:   formatAmount(l.AskingPrice),
		InvoiceAmount: formatAmount(l.InvoiceAmount),
		DueDate:       l.DueDate,
		CreatedAt:     l.CreatedAt,
		ExpiresAt:     l.ExpiresAt,
		Active:        l.Active,
	}
	if l.MinPrice != nil {
		out.MinPrice = l.MinPrice.String()
	}
	return out
}

func bidResult(b *marketplace.Bid) *BidResult {
	if b == nil {
		return nil
	}
	return &BidResult{
		ID:        b.ID,
		ListingID: b.ListingID,
		Bidder:    b.Bidder,
		Amount:    formatAmount(b.Amount),
		CreatedAt: b.CreatedAt,
		Active:    b.Active,
	}
}

func intentResult(in *marketplace.SettlementIntent) *IntentResult {
	if in == nil {
		return nil
	}
	return &IntentResult{
		ID:         in.ID,
		ListingID:  in.ListingID,
		InvoiceID:  in.InvoiceID,
		Seller:     in.Seller,
		Buyer:      in.Buyer,
		SaleAmount: formatAmount(in.SaleAmount),
		CreatedAt:  in.CreatedAt,
		Step:       in.Step.String(),
	}
}

func (s *Server) handleMarketCreateListing(caller string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		InvoiceID     string `json:"invoiceId"`
		AskingPrice   string `json:"askingPrice"`
		InvoiceAmount string `json:"invoiceAmount"`
		DueDate       int64  `json:"dueDate"`
		MinPrice      string `json:"minPrice"`
		ExpiresAt     int64  `json:"expiresAt"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	asking, err := parseAmount(params.AskingPrice)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	invoiceAmount, err := parseAmount(params.InvoiceAmount)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	var minPrice *big.Int
	if params.MinPrice != "" {
		minPrice, err = parseAmount(params.MinPrice)
		if err != nil {
			return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
		}
	}
	listing, err := s.market.CreateListing(caller, params.InvoiceID, asking, invoiceAmount, params.DueDate, minPrice, params.ExpiresAt)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return listingResult(listing), nil
}

func (s *Server) handleMarketPurchase(caller string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ListingID string `json:"listingId"`
		Payment   string `json:"payment"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	payment, err := parseAmount(params.Payment)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	excess, err := s.market.Purchase(caller, params.ListingID, payment)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return map[string]string{"excess": formatAmount(excess)}, nil
}

func (s *Server) handleMarketPlaceBid(caller string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ListingID string `json:"listingId"`
		Amount    string `json:"amount"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	bid, err := s.market.PlaceBid(caller, params.ListingID, amount)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return bidResult(bid), nil
}

func (s *Server) handleMarketAcceptBid(caller string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ListingID string `json:"listingId"`
		BidID     string `json:"bidId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.market.AcceptBid(caller, params.ListingID, params.BidID); err != nil {
		return nil, errorFromEngine(err)
	}
	return map[string]string{"status": "accepted"}, nil
}

func (s *Server) handleMarketCancelListing(caller string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ListingID string `json:"listingId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.market.CancelListing(caller, params.ListingID); err != nil {
		return nil, errorFromEngine(err)
	}
	return map[string]string{"status": "cancelled"}, nil
}

func (s *Server) handleMarketCancelBid(caller string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ListingID string `json:"listingId"`
		BidID     string `json:"bidId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.market.CancelBid(caller, params.ListingID, params.BidID); err != nil {
		return nil, errorFromEngine(err)
	}
	return map[string]string{"status": "cancelled"}, nil
}

func (s *Server) handleMarketResumeSettlement(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		IntentID string `json:"intentId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.market.ResumeSettlement(params.IntentID); err != nil {
		return nil, errorFromEngine(err)
	}
	return map[string]string{"status": "completed"}, nil
}

func (s *Server) handleMarketGetListing(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ListingID string `json:"listingId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	listing, err := s.market.GetListing(params.ListingID)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return listingResult(listing), nil
}

func (s *Server) handleMarketGetByInvoice(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		InvoiceID string `json:"invoiceId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	listing, err := s.market.ListingByInvoice(params.InvoiceID)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	return listingResult(listing), nil
}

func (s *Server) handleMarketListActive(_ string, req *RPCRequest) (interface{}, *RPCError) {
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
	views, err := s.market.ActiveListings(params.Offset, params.Limit)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	out := make([]*ListingViewResult, 0, len(views))
	for _, view := range views {
		out = append(out, &ListingViewResult{
			ListingResult:      *listingResult(view.Listing),
			DiscountPercentage: view.DiscountPercentage,
			DaysUntilDue:       view.DaysUntilDue,
			AnnualizedYield:    view.AnnualizedYield,
		})
	}
	return out, nil
}

func (s *Server) handleMarketListBids(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ListingID string `json:"listingId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	bids, err := s.market.Bids(params.ListingID)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	out := make([]*BidResult, 0, len(bids))
	for _, b := range bids {
		out = append(out, bidResult(b))
	}
	return out, nil
}

func (s *Server) handleMarketListBySeller(_ string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Seller string `json:"seller"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	listings, err := s.market.ListingsBySeller(params.Seller)
	if err != nil {
		return nil, errorFromEngine(err)
	}
	out := make([]*ListingResult, 0, len(listings))
	for _, l := range listings {
		out = append(out, listingResult(l))
	}
	return out, nil
}

func (s *Server) handleMarketPendingSettlements(_ string, req *RPCRequest) (interface{}, *RPCError) {
	intents, err := s.market.PendingSettlements()
	if err != nil {
		return nil, errorFromEngine(err)
	}
	out := make([]*IntentResult, 0, len(intents))
	for _, in := range intents {
		out = append(out, intentResult(in))
	}
	return out, nil
}

func (s *Server) handleMarketGetFee(_ string, req *RPCRequest) (interface{}, *RPCError) {
	return map[string]uint32{"feeBasisPoints": s.market.FeeBasisPoints()}, nil
}
