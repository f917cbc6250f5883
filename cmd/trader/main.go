package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lattice-q/spotrader/internal/basesignal"
	"github.com/lattice-q/spotrader/internal/config"
	"github.com/lattice-q/spotrader/internal/decision"
	"github.com/lattice-q/spotrader/internal/execution"
	"github.com/lattice-q/spotrader/internal/gateway"
	"github.com/lattice-q/spotrader/internal/indicator"
	"github.com/lattice-q/spotrader/internal/macro"
	"github.com/lattice-q/spotrader/internal/marketdata"
	"github.com/lattice-q/spotrader/internal/mtf"
	"github.com/lattice-q/spotrader/internal/notify"
	"github.com/lattice-q/spotrader/internal/paper"
	"github.com/lattice-q/spotrader/internal/ranking"
	"github.com/lattice-q/spotrader/internal/registry"
	"github.com/lattice-q/spotrader/internal/risk"
	"github.com/lattice-q/spotrader/internal/scheduler"
)

// Exit codes, per the external interfaces contract: 0 clean shutdown,
// 1 configuration error, 2 exchange authentication failure.
const (
	exitOK          = 0
	exitConfigError = 1
	exitAuthFailure = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "simulate fills against a paper balance instead of the live exchange")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		log.Printf("config file %s not usable (%v), using defaults", *cfgPath, err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	if cfg.ExchangeAPIKey == "" || cfg.ExchangeSecret == "" {
		log.Println("EXCHANGE_API_KEY and EXCHANGE_SECRET are required")
		return exitConfigError
	}
	if cfg.Gateway.BaseURL == "" {
		log.Println("gateway.base_url is required")
		return exitConfigError
	}

	log.Printf("spotrader starting: polling_interval=%s max_positions=%d max_symbols_per_cycle=%d",
		cfg.PollingInterval, cfg.MaxPositions, cfg.MaxSymbolsPerCycle)

	var gw gateway.Client = gateway.NewRESTClient(cfg.Gateway, cfg.ExchangeAPIKey, cfg.ExchangeSecret, cfg.ExchangePassphrase)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := gw.FetchBalance(ctx); err != nil {
		log.Printf("exchange authentication check failed: %v", err)
		return exitAuthFailure
	}

	if *dryRun {
		log.Println("dry-run mode: orders fill against a simulated paper balance, never the live exchange")
		gw = paper.NewDryRunGateway(gw, paper.NewSimulator(paper.Config{InitialBalanceUSDC: cfg.Risk.EquityUSDC}))
	}

	reg := registry.New(gw, cfg.Registry)
	if err := reg.Bootstrap(ctx); err != nil {
		log.Printf("registry bootstrap: %v", err)
		return exitConfigError
	}
	if err := reg.CheckInvariants(); err != nil {
		log.Printf("registry invariants violated after bootstrap: %v", err)
		return exitConfigError
	}

	md := marketdata.New(gw, cfg.MarketData)
	classifier := ranking.NewClassifier(ranking.DefaultClassification())
	noData := macro.NoneProvider{}
	rank := ranking.New(gw, md, classifier, noData, noData, cfg.Ranking)

	mom := indicator.NewMomentum(14, 0.05)
	synth := mtf.New(gw, mom, cfg.MTF)
	base := basesignal.New(gw, mom, "15m", cfg.MTF.MinCandles)

	dec := decision.New(cfg.Decision)
	sizer := risk.NewSizer(cfg.Risk)
	exec := execution.New(gw, sizer, reg, cfg.Executor)
	riskMgr := risk.NewManager(risk.ExposureConfig{
		MaxOpenOrders:        cfg.MaxPositions,
		AccountCapitalUSDC:   cfg.Risk.EquityUSDC,
		MaxPositionPerSymbol: cfg.Risk.MaxMarketOrderNotional,
		MaxConsecutiveLosses: 5,
	})

	notifier := notify.NewNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)

	sched := scheduler.New(cfg, scheduler.Dependencies{
		Gateway:  gw,
		Registry: reg,
		Ranking:  rank,
		MTF:      synth,
		Base:     base,
		Macro:    noData,
		Decision: dec,
		Sizer:    sizer,
		Executor: exec,
		RiskMgr:  riskMgr,
		Notifier: notifier,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received, finishing in-flight cycle")
		cancel()
	}()

	log.Println("pipeline scheduler started")
	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("scheduler stopped: %v", err)
	}
	log.Println("shutdown complete")
	return exitOK
}
