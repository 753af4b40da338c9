// Package rpc exposes the invoice registry, marketplace and escrow engine
// over JSON-RPC 2.0. Amounts are decimal strings; callers authenticate with
// bearer tokens whose subject is their account.
package rpc

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"factorhub/native/escrow"
	"factorhub/native/invoice"
	"factorhub/native/marketplace"
	"factorhub/observability"
)

const maxRequestBytes = 1 << 20

type handlerFunc func(caller string, req *RPCRequest) (interface{}, *RPCError)

type methodSpec struct {
	handler handlerFunc
	// open methods are read-only queries that skip caller resolution.
	open bool
}

// Server binds the three engines to the JSON-RPC surface.
type Server struct {
	invoices *invoice.Registry
	market   *marketplace.Engine
	escrows  *escrow.Engine

	authSecret    []byte
	allowInsecure bool
	log           *slog.Logger
	methods       map[string]methodSpec
}

// NewServer wires the engines into a server. Secret may be empty only when
// insecure mode is enabled.
func NewServer(invoices *invoice.Registry, market *marketplace.Engine, escrows *escrow.Engine, secret []byte, allowInsecure bool, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		invoices:      invoices,
		market:        market,
		escrows:       escrows,
		authSecret:    secret,
		allowInsecure: allowInsecure,
		log:           log,
	}
	s.methods = map[string]methodSpec{
		"invoice_create":        {handler: s.handleInvoiceCreate},
		"invoice_cancel":        {handler: s.handleInvoiceCancel},
		"invoice_get":           {handler: s.handleInvoiceGet, open: true},
		"invoice_listByCreator": {handler: s.handleInvoiceListByCreator, open: true},
		"invoice_listByOwner":   {handler: s.handleInvoiceListByOwner, open: true},
		"invoice_listByStatus":  {handler: s.handleInvoiceListByStatus, open: true},
		"invoice_list":          {handler: s.handleInvoiceList, open: true},

		"market_createListing":      {handler: s.handleMarketCreateListing},
		"market_purchase":           {handler: s.handleMarketPurchase},
		"market_placeBid":           {handler: s.handleMarketPlaceBid},
		"market_acceptBid":          {handler: s.handleMarketAcceptBid},
		"market_cancelListing":      {handler: s.handleMarketCancelListing},
		"market_cancelBid":          {handler: s.handleMarketCancelBid},
		"market_resumeSettlement":   {handler: s.handleMarketResumeSettlement},
		"market_getListing":         {handler: s.handleMarketGetListing, open: true},
		"market_getByInvoice":       {handler: s.handleMarketGetByInvoice, open: true},
		"market_listActive":         {handler: s.handleMarketListActive, open: true},
		"market_listBids":           {handler: s.handleMarketListBids, open: true},
		"market_listBySeller":       {handler: s.handleMarketListBySeller, open: true},
		"market_pendingSettlements": {handler: s.handleMarketPendingSettlements, open: true},
		"market_getFee":             {handler: s.handleMarketGetFee, open: true},

		"escrow_settle":                {handler: s.handleEscrowSettle},
		"escrow_openDispute":           {handler: s.handleEscrowOpenDispute},
		"escrow_resolveDispute":        {handler: s.handleEscrowResolveDispute},
		"escrow_simulateDebtorPayment": {handler: s.handleEscrowSimulateDebtorPayment},
		"escrow_markOverdue":           {handler: s.handleEscrowMarkOverdue},
		"escrow_get":                   {handler: s.handleEscrowGet, open: true},
		"escrow_getByInvoice":          {handler: s.handleEscrowGetByInvoice, open: true},
		"escrow_listActive":            {handler: s.handleEscrowListActive, open: true},
		"escrow_listDisputed":          {handler: s.handleEscrowListDisputed, open: true},
		"escrow_listOverdue":           {handler: s.handleEscrowListOverdue, open: true},
		"escrow_listByBuyer":           {handler: s.handleEscrowListByBuyer, open: true},
		"escrow_listBySeller":          {handler: s.handleEscrowListBySeller, open: true},
		"escrow_stats":                 {handler: s.handleEscrowStats, open: true},

		"custody_notify": {handler: s.handleCustodyNotify},
	}
	return s
}

// Router builds the HTTP routing tree: JSON-RPC on POST /, liveness on
// /healthz and Prometheus metrics on /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start serves the router on addr and blocks.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	correlationID := uuid.NewString()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "unable to read request body", nil)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
		return
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON request", nil)
		return
	}

	method := strings.TrimSpace(req.Method)
	spec, ok := s.methods[method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", method)
		return
	}

	caller := ""
	if !spec.open {
		identity, rpcErr := s.callerIdentity(r)
		if rpcErr != nil {
			s.observe(method, http.StatusUnauthorized, started)
			writeError(w, http.StatusUnauthorized, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
		caller = identity
	}

	result, rpcErr := spec.handler(caller, &req)
	status := http.StatusOK
	if rpcErr != nil {
		status = httpStatus(rpcErr.Code)
		s.log.Error("rpc request failed",
			"method", method,
			"caller", caller,
			"correlationId", correlationID,
			"code", rpcErr.Code,
			"err", rpcErr.Message,
		)
		s.observe(method, status, started)
		writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	s.log.Info("rpc request",
		"method", method,
		"caller", caller,
		"correlationId", correlationID,
		"durationMs", time.Since(started).Milliseconds(),
	)
	s.observe(method, status, started)
	writeResult(w, req.ID, result)
}

func (s *Server) observe(method string, status int, started time.Time) {
	module := "rpc"
	if idx := strings.Index(method, "_"); idx > 0 {
		module = method[:idx]
	}
	observability.ModuleMetrics().Observe(module, method, status, time.Since(started))
}

func httpStatus(code int) int {
	switch code {
	case codeParseError, codeInvalidRequest, codeInvalidParams:
		return http.StatusBadRequest
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeNotFound:
		return http.StatusNotFound
	case codeInvalidState, codeInsufficientFunds:
		return http.StatusConflict
	case codeModulePaused:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// decodeParams unmarshals the single positional parameter object every
// mutating method takes.
func decodeParams(req *RPCRequest, dst interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single params object"}
	}
	if err := json.Unmarshal(req.Params[0], dst); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}
