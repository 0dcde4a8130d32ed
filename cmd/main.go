package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/amirphl/intraday-backtest/internal/backtest"
	"github.com/amirphl/intraday-backtest/internal/config"
	"github.com/amirphl/intraday-backtest/internal/db"
	"github.com/amirphl/intraday-backtest/internal/journal"
	"github.com/amirphl/intraday-backtest/internal/sim"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main | Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("main | Received signal %v, shutting down", sig)
		cancel()
	}()

	var storage db.Storage
	if cfg.DBConnStr != "" {
		pg, err := db.NewPostgres(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
		if err != nil {
			log.Fatalf("main | Failed to connect to postgres: %v", err)
		}
		storage = pg
	} else {
		storage = db.NewMemory()
	}
	defer storage.Close()

	if cfg.DataGlob != "" {
		n, err := db.ImportCSVGlob(ctx, storage, cfg.DataGlob)
		if err != nil {
			log.Fatalf("main | Failed to import data files: %v", err)
		}
		log.Printf("main | Imported %d 1m candles from %s", n, cfg.DataGlob)
	}

	tradeLog, err := journal.NewCSVTradeLog(cfg.TradeLogDir)
	if err != nil {
		log.Fatalf("main | Failed to create trade log: %v", err)
	}
	defer tradeLog.Close()
	log.Printf("main | Run %s, trade log at %s", tradeLog.RunID(), tradeLog.Path())

	results, err := backtest.Run(ctx, cfg, storage, tradeLog)
	if err != nil {
		if errors.Is(err, sim.ErrCapitalExhausted) {
			log.Fatalf("main | Run halted: %v", err)
		}
		log.Fatalf("main | Backtest failed: %v", err)
	}

	backtest.PrintSummary(results)
}
