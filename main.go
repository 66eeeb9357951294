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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	appcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/application/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/notify"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/stock"
	"github.com/Zhima-Mochi/minishop-checkout/internal/config"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/session"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/gormstore"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/mpesa"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/sandbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/redisstore"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	httppresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/http"
)

type stores struct {
	items  domcatalog.Repository
	alerts domcatalog.AlertRepository
	orders domorder.Repository
	db     *gorm.DB
}

type sessions struct {
	store  session.Store
	locker session.Locker
	rdb    *redis.Client
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := zaplogger.New(zaplogger.Options{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Fields: []observability.Field{observability.F("service", cfg.ServiceName), observability.F("env", cfg.Env)},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() {
		if s, ok := logger.(observability.Flusher); ok {
			_ = s.Sync()
		}
	}()
	systemLogger := logger.With(observability.F("component", "system"))

	tel := infraobs.NewWithPrometheus("", prometheus.DefaultRegisterer, oteltrace.New(cfg.ServiceName), logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(rootCtx, cfg)
	if err != nil {
		systemLogger.Error("store_open_failed", observability.Err(err))
		os.Exit(1)
	}
	defer func() {
		if st.db != nil {
			_ = gormstore.Close(st.db)
		}
	}()

	sess, err := openSessions(rootCtx, cfg)
	if err != nil {
		systemLogger.Error("session_store_open_failed", observability.Err(err))
		os.Exit(1)
	}
	defer func() {
		if sess.rdb != nil {
			_ = sess.rdb.Close()
		}
	}()

	bus := outbox.NewBus(logger, outbox.Options{})
	bus.Start(rootCtx)

	notify.New(bus, tel).Start()

	var relay *kafka.Relay
	if len(cfg.Kafka.Brokers) > 0 {
		relay = kafka.NewRelay(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), cfg.Kafka.Topic, tel)
		relay.Register(bus)
		systemLogger.Info("kafka_relay_enabled", observability.F("topic", cfg.Kafka.Topic))
	}

	ids := id.NewUUIDGenerator()
	carts := appcart.NewStore(sess.store)
	reconciler := stock.NewReconciler(st.items, st.alerts, ids, bus, tel)
	callback := checkout.NewHandleCallbackUseCase(st.orders, reconciler, mpesa.CallbackParser{}, bus, tel)

	var gateway dompayment.Gateway
	var simulator *sandbox.Gateway
	switch cfg.Payment.Provider {
	case config.ProviderMpesa:
		gateway = mpesa.New(mpesa.Config{
			BaseURL:        cfg.Mpesa.BaseURL,
			ConsumerKey:    cfg.Mpesa.ConsumerKey,
			ConsumerSecret: cfg.Mpesa.ConsumerSecret,
			ShortCode:      cfg.Mpesa.ShortCode,
			PassKey:        cfg.Mpesa.PassKey,
			CallbackURL:    cfg.Mpesa.CallbackURL,
			Timeout:        cfg.Payment.Timeout,
		}, logger)
	default:
		simulator = sandbox.New(sandbox.Options{
			SuccessRate:   cfg.Payment.SandboxSuccessRate,
			CallbackDelay: cfg.Payment.SandboxDelay,
		}, logger)
		simulator.SetSink(func(ctx context.Context, res dompayment.CallbackResult) error {
			_, err := callback.Execute(ctx, res)
			return err
		})
		gateway = simulator
	}
	systemLogger.Info("payment_provider_selected", observability.F("provider", cfg.Payment.Provider))

	handler := httppresentation.NewHandler(httppresentation.Services{
		Catalog: appcatalog.NewService(st.items, st.alerts, st.orders, ids, tel),
		Cart:    appcart.NewService(st.items, carts, sess.locker, tel),
		Checkout: checkout.NewInitiateCheckoutUseCase(st.items, st.orders, carts, sess.locker, gateway, ids, bus, tel,
			checkout.Options{
				PaymentTimeout:    cfg.Payment.Timeout,
				LookupConcurrency: cfg.Checkout.Concurrency,
			}),
		Callback: callback,
		Orders:   checkout.NewOrderAdmin(st.orders, st.items, st.alerts, reconciler, tel),
	}, httppresentation.Options{
		JWTSecret:     []byte(cfg.Auth.JWTSecret),
		SecureCookies: cfg.HTTP.SecureCookies,
		Metrics:       promhttp.Handler(),
	}, logger, tel)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", observability.Err(err))
			stop()
		}
	}()

	<-rootCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.Err(err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	if simulator != nil {
		simulator.Wait()
	}
	bus.Stop(shutdownCtx)
	if relay != nil {
		if err := relay.Close(); err != nil {
			systemLogger.Warn("kafka_relay_close_failed", observability.Err(err))
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.DB.DSN == "" {
		items, orders := memory.NewCatalogRepository(), memory.NewOrderRepository()
		memory.Link(items, orders)
		return &stores{
			items:  items,
			alerts: memory.NewAlertRepository(),
			orders: orders,
		}, nil
	}
	db, err := gormstore.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	return &stores{
		items:  gormstore.NewCatalogRepository(db),
		alerts: gormstore.NewAlertRepository(db),
		orders: gormstore.NewOrderRepository(db),
		db:     db,
	}, nil
}

func openSessions(ctx context.Context, cfg *config.Config) (*sessions, error) {
	if cfg.Redis.Addr == "" {
		return &sessions{store: memory.NewSessionStore(), locker: memory.NewKeyedLocker()}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &sessions{
		store:  redisstore.NewSessionStore(rdb, cfg.Redis.SessionTTL),
		locker: redisstore.NewLocker(rdb, cfg.SessionLockTTL()),
	}, nil
}
