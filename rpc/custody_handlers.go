package rpc

import (
	"factorhub/native/custody"
)

// handleCustodyNotify routes an inbound fund-custody transfer notification to
// the module named as recipient. The authenticated caller becomes the
// notification sender, so only the configured custody account passes the
// engines' trust checks. The result carries the amount the recipient refused
// and expects returned to the transfer originator.
func (s *Server) handleCustodyNotify(caller string, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Recipient string `json:"recipient"`
		From      string `json:"from"`
		Amount    string `json:"amount"`
		Memo      string `json:"memo"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	notice := custody.TransferNotice{
		Sender: caller,
		From:   params.From,
		Amount: amount,
		Memo:   params.Memo,
	}
	switch params.Recipient {
	case "escrow":
		returned, err := s.escrows.OnTokenReceived(notice)
		if err != nil {
			return nil, errorFromEngine(err)
		}
		return map[string]string{"returned": formatAmount(returned)}, nil
	case "marketplace":
		returned, err := s.market.OnTokenReceived(notice)
		if err != nil {
			return nil, errorFromEngine(err)
		}
		return map[string]string{"returned": formatAmount(returned)}, nil
	default:
		return nil, &RPCError{Code: codeInvalidParams, Message: "recipient must be \"escrow\" or \"marketplace\""}
	}
}
