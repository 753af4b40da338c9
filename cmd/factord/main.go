package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"factorhub/config"
	"factorhub/native/escrow"
	"factorhub/native/invoice"
	"factorhub/native/marketplace"
	"factorhub/observability"
	"factorhub/observability/logging"
	"factorhub/rpc"
	"factorhub/state"
	"factorhub/storage"
)

func main() {
	configFile := flag.String("config", "./factord.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("factord", cfg.Logging.Environment, logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	pauses := pauseSet(cfg.PausedModules())
	emitter := observability.NewCountingEmitter(newLogEmitter(logger))

	invoices := invoice.NewRegistry()
	invoices.SetState(manager)
	invoices.SetMarketplaceAccount(cfg.Accounts.Marketplace)
	invoices.SetEscrowAccount(cfg.Accounts.Escrow)
	invoices.SetEmitter(emitter)
	invoices.SetPauses(pauses)

	escrows := escrow.NewEngine()
	escrows.SetState(manager)
	escrows.SetInvoiceSettler(&invoiceSettler{registry: invoices, caller: cfg.Accounts.Escrow})
	escrows.SetMarketplaceAccount(cfg.Accounts.Marketplace)
	escrows.SetCustodyAccount(cfg.Accounts.Custody)
	escrows.SetAdminAccount(cfg.Accounts.Admin)
	escrows.SetEmitter(emitter)
	escrows.SetPauses(pauses)

	market := marketplace.NewEngine()
	market.SetState(manager)
	market.SetInvoiceService(&invoiceService{registry: invoices, caller: cfg.Accounts.Marketplace})
	market.SetEscrowService(&escrowService{engine: escrows, caller: cfg.Accounts.Marketplace})
	market.SetEscrowAccount(cfg.Accounts.Escrow)
	market.SetCustodyAccount(cfg.Accounts.Custody)
	market.SetEmitter(emitter)
	market.SetPauses(pauses)
	if err := market.SetFeeBasisPoints(cfg.FeeBasisPoints); err != nil {
		logger.Error("Invalid fee configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ledger := newLoopbackLedger(logger, escrows, cfg.Accounts)
	escrows.SetCustodyLedger(ledger)
	market.SetCustodyLedger(ledger)

	settlement := observability.Settlement()
	market.SetSettlementObserver(settlement)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats, err := escrows.GetStats()
			if err != nil {
				logger.Warn("Escrow stats refresh failed", slog.Any("error", err))
				continue
			}
			locked, _ := new(big.Float).SetInt(stats.TotalValueLocked).Float64()
			settlement.RecordCustody(stats.ActiveEscrows, locked)
		}
	}()

	server := rpc.NewServer(invoices, market, escrows, []byte(cfg.AuthSecret), cfg.AllowInsecure, logger)
	logger.Info("factord listening", slog.String("addr", cfg.RPCAddress))
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// pauseSet adapts the configured pause list to the engines' guard interface.
type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }
