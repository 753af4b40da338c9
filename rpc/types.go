package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	nativecommon "factorhub/native/common"
)

// JSON-RPC 2.0 protocol codes plus the domain range used by the engines.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603

	codeUnauthorized      = -32001
	codeNotFound          = -32002
	codeInvalidState      = -32003
	codeInsufficientFunds = -32004
	codeModulePaused      = -32005
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      interface{}       `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// errorFromEngine maps a domain error onto the JSON-RPC code space. The
// sentinel in the chain decides the code; everything unrecognised is an
// internal error.
func errorFromEngine(err error) *RPCError {
	if err == nil {
		return nil
	}
	code := codeInternal
	switch {
	case errors.Is(err, nativecommon.ErrValidation):
		code = codeInvalidParams
	case errors.Is(err, nativecommon.ErrUnauthorized):
		code = codeUnauthorized
	case errors.Is(err, nativecommon.ErrNotFound):
		code = codeNotFound
	case errors.Is(err, nativecommon.ErrInvalidState):
		code = codeInvalidState
	case errors.Is(err, nativecommon.ErrInsufficientFunds):
		code = codeInsufficientFunds
	case errors.Is(err, nativecommon.ErrModulePaused):
		code = codeModulePaused
	}
	return &RPCError{Code: code, Message: err.Error()}
}

// parseAmount decodes a decimal string into a non-negative big integer.
// Amounts travel as strings so precision never depends on JSON number
// handling.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
