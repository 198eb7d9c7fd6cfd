package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reward-center/internal/api"
	"reward-center/internal/fixtures"
	"reward-center/internal/settlement"
)

const (
	shutdownTimeout   = 30 * time.Second
	poolStatsInterval = 15 * time.Second
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the HTTP API, settlement engine and receipt feed",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "http-addr", Usage: "HTTP listen address (overrides HTTP_ADDR)"},
		&cli.BoolFlag{Name: "demo", Usage: "seed the ledger with a demo marketplace and an open listing"},
		&cli.Uint64Flag{Name: "demo-price", Value: 1_000_000, Usage: "price of the demo listing"},
	},
	Action: runServe,
}

func runServe(c *cli.Context) error {
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	rt, err := openRuntime(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	addr := rt.cfg.HTTPAddr
	if c.IsSet("http-addr") {
		addr = c.String("http-addr")
	}

	hub := api.NewHub(logger.Named("feed"))
	engine := settlement.NewEngine(rt.ledger, rt.ah,
		settlement.WithProgramID(rt.rewardCenterID),
		settlement.WithReceiptStore(rt.receipts),
		settlement.WithPublisher(hub),
		settlement.WithLogger(logger.Named("settlement")),
	)

	if c.Bool("demo") {
		if err := seedDemo(ctx, rt, c.Uint64("demo-price")); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(engine, rt.rewards, rt.receipts, hub, logger.Named("api")).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
			cancel()
		case <-done:
			return
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-time.After(shutdownTimeout):
			logger.Error("graceful shutdown timed out, forcing exit", zap.Duration("timeout", shutdownTimeout))
			os.Exit(1)
		case <-done:
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	})
	if rt.pool != nil || rt.ch != nil {
		g.Go(func() error {
			ticker := time.NewTicker(poolStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if rt.pool != nil {
						rt.pool.ReportStats()
					}
					if rt.ch != nil {
						rt.ch.ReportStats()
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// seedDemo loads a funded marketplace with one open listing and logs the
// addresses needed to buy it.
func seedDemo(ctx context.Context, rt *runtime, price uint64) error {
	market, err := fixtures.LoadMarketplace(ctx, rt.ledger, rt.ah, rt.rewards, fixtures.DefaultOptions())
	if err != nil {
		return err
	}
	listing, err := market.List(ctx, rt.rewards, price)
	if err != nil {
		return err
	}
	rt.logger.Info("demo marketplace loaded",
		zap.Stringer("auction_house", market.AuctionHouse.Address),
		zap.Stringer("reward_center", market.RewardCenter.Address),
		zap.Stringer("listing", listing.Address),
		zap.Stringer("buyer", market.Buyer),
		zap.Uint64("price", listing.Price),
	)
	return nil
}
