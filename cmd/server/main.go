package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/auction-backend/internal/auction"
	"github.com/DoyleJ11/auction-backend/internal/auth"
	"github.com/DoyleJ11/auction-backend/internal/config"
	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/DoyleJ11/auction-backend/internal/httpapi"
	"github.com/DoyleJ11/auction-backend/internal/hub"
	"github.com/DoyleJ11/auction-backend/internal/roster"
	"github.com/DoyleJ11/auction-backend/internal/store"
)

type saleStore interface {
	auction.Store
	auction.SaleSource
	Close() error
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.LogDev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := roster.Load(cfg.RosterPath)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, logger.Named("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	rules := engine.Rules{BidTimerTicks: cfg.BidTimerTicks, RTMTimerTicks: cfg.RTMTimerTicks}
	initial, err := auction.Recover(ctx, catalog, rules, st)
	if err != nil {
		return err
	}
	logger.Info("auction recovered",
		zap.Int("teams", len(catalog.TeamIDs())),
		zap.Int("players", len(catalog.Players())),
		zap.Int("sales", len(initial.Sales)),
	)

	h := hub.NewHub(ctx, logger.Named("hub"))
	a := auction.New(ctx, initial, h, st, auction.Options{
		Tick:           cfg.Tick,
		PersistTimeout: cfg.PersistTimeout,
		PersistRetries: cfg.PersistRetries,
		PersistBackoff: cfg.PersistBackoff,
	}, logger.Named("auction"))

	tokens := auth.Tokens{Admin: cfg.AdminToken, Teams: cfg.TeamTokens}
	if tokens.TeamsOpen() {
		logger.Warn("AUCTION_TEAM_TOKENS not set, any caller may act for any team")
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(a, h, tokens, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		select {
		case a.Inbox() <- auction.Shutdown{}:
		case <-a.Done():
		}
		h.Send(hub.ShutdownHub{})
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (saleStore, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, sales are kept in memory only")
		return store.NewMemory(), nil
	}
	pg, err := store.OpenPostgres(ctx, store.PostgresConfig{DSN: cfg.DatabaseURL, MaxConns: cfg.MaxConns}, logger)
	if err != nil {
		return nil, err
	}
	return pg, nil
}
