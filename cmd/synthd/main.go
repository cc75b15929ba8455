package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"synthmint/config"
	"synthmint/crypto"
	"synthmint/native/synth"
	"synthmint/observability/logging"
	"synthmint/rpc"
	"synthmint/state"
	"synthmint/storage"
	"synthmint/token"
)

func main() {
	configFile := flag.String("config", "./synthmint.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SYNTHMINT_ENV"))
	logger := logging.Setup("synthd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "synthmint.db"))
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	engine, err := buildEngine(cfg, db)
	if err != nil {
		logger.Error("Failed to build engine", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(engine, cfg.Synthetic, logger)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API listening", slog.String("address", cfg.ListenAddress))
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Error("Shutdown failed", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

func buildEngine(cfg *config.Config, db storage.Database) (*synth.Engine, error) {
	synthetic := token.NewLedger(db, cfg.Synthetic)

	assets := make([]synth.CollateralAsset, 0, len(cfg.Assets))
	feeds := make([]synth.PriceFeed, 0, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		feed, err := buildFeed(asset)
		if err != nil {
			return nil, err
		}
		assets = append(assets, synth.CollateralAsset{
			Symbol: asset.Symbol,
			Token:  token.NewLedger(db, asset.Symbol),
		})
		feeds = append(feeds, feed)
	}

	engine, err := synth.NewEngine(
		crypto.ModuleAddress("synth"),
		synthetic,
		assets,
		feeds,
		cfg.Engine.RiskParameters(),
	)
	if err != nil {
		return nil, err
	}
	engine.SetState(state.NewPositionStore(db))
	return engine, nil
}

func buildFeed(asset config.Asset) (synth.PriceFeed, error) {
	switch asset.Feed {
	case config.FeedKindManual:
		feed := synth.NewManualFeed()
		if err := feed.SetDecimal(asset.ManualPrice, time.Now()); err != nil {
			return nil, fmt.Errorf("asset %s: %w", asset.Symbol, err)
		}
		return feed, nil
	case config.FeedKindHTTP:
		client := &http.Client{Timeout: 10 * time.Second}
		return synth.NewHTTPFeed(client, asset.FeedURL), nil
	default:
		return nil, fmt.Errorf("asset %s: unknown feed kind %q", asset.Symbol, asset.Feed)
	}
}
