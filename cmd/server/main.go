package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/clock"
	"github.com/iliyamo/ticket-admission/internal/config"
	"github.com/iliyamo/ticket-admission/internal/database"
	"github.com/iliyamo/ticket-admission/internal/handler"
	"github.com/iliyamo/ticket-admission/internal/memstore"
	"github.com/iliyamo/ticket-admission/internal/notify"
	"github.com/iliyamo/ticket-admission/internal/pool"
	"github.com/iliyamo/ticket-admission/internal/queue"
	"github.com/iliyamo/ticket-admission/internal/repository"
	"github.com/iliyamo/ticket-admission/internal/router"
	"github.com/iliyamo/ticket-admission/internal/service"
	"github.com/iliyamo/ticket-admission/internal/sweep"
)

// backend is everything the process needs from a record store.
type backend interface {
	admission.Store
	sweep.MatcherStore
	sweep.ReclaimerStore
	sweep.NotifierStore
	CommittedSeats(ctx context.Context) (map[uint64]int, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Config) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if cfg.Prod() {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewExample()
	}
	return log.With(zap.String("env", cfg.Env))
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (backend, func(), error) {
	if cfg.Store == config.StoreMemory {
		st := memstore.New()
		memstore.SeedDemo(st, time.Now().UTC())
		log.Warn("using in-memory store; data is lost on exit")
		return st, func() {}, nil
	}
	db, err := database.Open(database.Options{
		User:     cfg.DBUser,
		Password: cfg.DBPass,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("schema applied")
	}
	return repository.NewStore(db), func() { _ = db.Close() }, nil
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	tiers, err := st.ListTiers(ctx)
	if err != nil {
		return fmt.Errorf("load tiers: %w", err)
	}
	var committed map[uint64]int
	if cfg.PoolReconcile {
		if committed, err = st.CommittedSeats(ctx); err != nil {
			return fmt.Errorf("reconcile pools: %w", err)
		}
	}

	// pools outlive the HTTP server and sweeps so in-flight work can finish
	poolCtx, stopPools := context.WithCancel(context.Background())
	defer stopPools()
	direct := pool.NewDirect(pool.DirectSeed(tiers, committed), cfg.PoolQueueSize, log)
	recycled := pool.NewRecycled(pool.TierIDs(tiers), cfg.PoolQueueSize, log)
	go direct.Run(poolCtx)
	go recycled.Run(poolCtx)
	log.Info("pools started", zap.Int("tiers", len(tiers)), zap.Bool("reconciled", cfg.PoolReconcile))

	var (
		gw     notify.Gateway
		events admission.EventPublisher
	)
	switch cfg.NotifyGateway {
	case config.GatewayAMQP:
		amqpGW := notify.NewAMQPGateway(cfg.AMQPURL, cfg.NotifySender, log)
		defer func() { _ = amqpGW.Close() }()
		gw = amqpGW
		events = service.NewPublisher(cfg.AMQPURL, log)

		consumer := queue.NewSMSConsumer(cfg.AMQPURL, cfg.SMSLogPath, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("sms consumer stopped", zap.Error(err))
			}
		}()
	default:
		gw = notify.NewLogGateway(log)
	}

	clk := clock.Real()
	svc := admission.NewService(st, direct, admission.Options{
		OfferValidity: cfg.OfferValidity,
		Clock:         clk,
		Gateway:       gw,
		Events:        events,
		Logger:        log,
	})

	runners := []*sweep.Runner{
		sweep.NewRunner(sweep.NewReclaimer(st, recycled, clk, log), log, cfg.SweepInterval, cfg.SweepTimeout),
		sweep.NewRunner(sweep.NewMatcher(st, recycled, gw, clk, cfg.OfferValidity, log), log, cfg.SweepInterval, cfg.SweepTimeout),
		sweep.NewRunner(sweep.NewNotifier(st, gw, log), log, cfg.SweepInterval, cfg.SweepTimeout),
	}
	for _, r := range runners {
		r.Start(ctx)
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and caching disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(requestLogger(log))
	router.Register(e, router.Deps{
		Groups:       handler.NewGroupHandler(svc, log),
		Availability: handler.NewAvailabilityHandler(st, direct, recycled, log),
		JWTSecret:    cfg.JWTSecret,
		RateLimit:    config.LoadRateLimitConfig(),
		Cache:        config.LoadCacheConfig(),
		Redis:        rdb,
		Demo:         !cfg.Prod(),
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("store", cfg.Store))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	for _, r := range runners {
		r.Stop()
	}
	return nil
}

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				log.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	})
}
