// Command server runs the commercial paper trading network node: the HTTP
// API, the ledger store, and the event pipeline.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"papernet/internal/company"
	"papernet/internal/events"
	"papernet/internal/events/kafka"
	"papernet/internal/identity"
	"papernet/internal/ledger"
	"papernet/internal/platform/config"
	"papernet/internal/platform/httpserver"
	"papernet/internal/platform/logger"
	"papernet/internal/platform/metrics"
	"papernet/internal/platform/otel"
	"papernet/internal/trading"
	httptransport "papernet/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "papernet")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(context.Background()) }()

	publisher, err := openPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	worker := events.NewWorker(publisher, 256, log)
	defer func() { _ = worker.Close() }()

	maxBalance, err := decimal.NewFromString(cfg.MaxAccountBalance)
	if err != nil {
		return err
	}
	discountPolicy, err := trading.ParseDiscountPolicy(cfg.DiscountPolicy)
	if err != nil {
		return err
	}

	engine := trading.NewEngine(store, worker, log,
		trading.WithMaxRetries(cfg.TxMaxRetries),
		trading.WithDiscountPolicy(discountPolicy),
		trading.WithMaxAccountBalance(maxBalance),
		trading.WithMetrics(metrics.New()),
	)
	companies := company.NewService(store, worker, log, cfg.TxMaxRetries)
	resolver := identity.NewJWTResolver(cfg.JWTSigningKey, "papernet")

	router := httptransport.NewRouter(httptransport.Deps{
		Trading:   engine,
		Companies: companies,
		Resolver:  resolver,
		Logger:    log,
	})
	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := worker.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		log.Info("starting papernet", "addr", cfg.Addr, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// openStore selects the ledger backend.
func openStore(ctx context.Context, cfg config.Server) (ledger.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		return ledger.NewPostgres(ctx, cfg.PostgresDSN)
	case "redis":
		return ledger.NewRedis(ctx, cfg.RedisAddr)
	default:
		return ledger.NewMemory(), nil
	}
}

// openPublisher connects the kafka publisher when brokers are configured and
// falls back to logging events otherwise.
func openPublisher(ctx context.Context, cfg config.Server, log *slog.Logger) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewLog(log), nil
	}
	return kafka.New(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, log)
}
