package main

import (
	"log/slog"
	"math/big"

	"factorhub/config"
	"factorhub/core/events"
	"factorhub/native/custody"
	"factorhub/native/escrow"
	"factorhub/native/invoice"
)

// invoiceService lets the marketplace act on the invoice registry under its
// configured service account.
type invoiceService struct {
	registry *invoice.Registry
	caller   string
}

func (a *invoiceService) MarkListed(invoiceID string) error {
	return a.registry.MarkListed(a.caller, invoiceID)
}

func (a *invoiceService) Unlist(invoiceID string) error {
	return a.registry.Unlist(a.caller, invoiceID)
}

func (a *invoiceService) TransferOwnership(invoiceID, newOwner string) error {
	return a.registry.TransferOwnership(a.caller, invoiceID, newOwner)
}

// invoiceSettler lets the escrow engine mark invoices settled under its
// configured service account.
type invoiceSettler struct {
	registry *invoice.Registry
	caller   string
}

func (a *invoiceSettler) MarkSettled(invoiceID string) error {
	return a.registry.MarkSettled(a.caller, invoiceID)
}

// escrowService lets the marketplace open escrows under its configured
// service account.
type escrowService struct {
	engine *escrow.Engine
	caller string
}

func (a *escrowService) Create(invoiceID, seller, buyer string, saleAmount, invoiceAmount *big.Int, dueDate int64) (string, error) {
	esc, err := a.engine.Create(a.caller, invoiceID, seller, buyer, saleAmount, invoiceAmount, dueDate)
	if err != nil {
		return "", err
	}
	return esc.ID, nil
}

// loopbackLedger is the in-process stand-in for the external fund custody.
// Pushes addressed to the escrow service account are redelivered to the
// escrow engine as deposit notifications; every other push is only logged,
// the way an external custodian would acknowledge an outbound transfer.
type loopbackLedger struct {
	log            *slog.Logger
	escrows        *escrow.Engine
	escrowAccount  string
	custodyAccount string
	marketAccount  string
}

func newLoopbackLedger(log *slog.Logger, escrows *escrow.Engine, accounts config.Accounts) *loopbackLedger {
	return &loopbackLedger{
		log:            log,
		escrows:        escrows,
		escrowAccount:  accounts.Escrow,
		custodyAccount: accounts.Custody,
		marketAccount:  accounts.Marketplace,
	}
}

var _ custody.Ledger = (*loopbackLedger)(nil)

func (l *loopbackLedger) Push(recipient string, amount *big.Int, memo string) error {
	if recipient == l.escrowAccount {
		returned, err := l.escrows.OnTokenReceived(custody.TransferNotice{
			Sender: l.custodyAccount,
			From:   l.marketAccount,
			Amount: amount,
			Memo:   memo,
		})
		if err != nil {
			return err
		}
		if returned != nil && returned.Sign() > 0 {
			l.log.Warn("escrow returned part of a deposit",
				slog.String("memo", memo),
				slog.String("returned", returned.String()),
			)
		}
		return nil
	}
	l.log.Info("custody transfer",
		slog.String("recipient", recipient),
		slog.String("amount", amount.String()),
		slog.String("memo", memo),
	)
	return nil
}

// logEmitter writes every engine event to the structured log.
type logEmitter struct {
	log *slog.Logger
}

func newLogEmitter(log *slog.Logger) events.Emitter {
	return &logEmitter{log: log}
}

func (l *logEmitter) Emit(evt *events.Event) {
	if evt == nil {
		return
	}
	attrs := make([]any, 0, len(evt.Attributes)*2+2)
	attrs = append(attrs, slog.String("type", evt.Type))
	for key, value := range evt.Attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	l.log.Info("ledger event", attrs...)
}
