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

	appcart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	appcheckout "github.com/Zhima-Mochi/minishop-storefront/internal/application/checkout"
	appinventory "github.com/Zhima-Mochi/minishop-storefront/internal/application/inventory"
	appinvoice "github.com/Zhima-Mochi/minishop-storefront/internal/application/invoice"
	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	apprefund "github.com/Zhima-Mochi/minishop-storefront/internal/application/refund"
	"github.com/Zhima-Mochi/minishop-storefront/internal/config"
	domcheckout "github.com/Zhima-Mochi/minishop-storefront/internal/domain/checkout"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	kafkasink "github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/pdf"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/provider/hitpay"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/provider/nets"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/provider/paypal"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/redisstore"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sqlstore"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	httppresentation "github.com/Zhima-Mochi/minishop-storefront/internal/presentation/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	sweepInterval  = time.Minute
	qrImageSize    = 256
	amountEpsilon  = "0.01"
	dbReadyRetries = 10
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath, flags.envFiles...)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply the schema before serving")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, migrate bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl, err := zaplogger.New(zaplogger.Options{
		Service: cfg.Service.Name,
		Env:     cfg.Service.Env,
		Level:   cfg.Service.LogLevel,
		File:    cfg.Service.LogFile,
	})
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl.Zap())

	tel := infraobs.New(
		oteltrace.New(cfg.Service.Name),
		zl,
		prometrics.Instruments(prometrics.New("")),
	)
	systemLogger := zl.With(observability.F("component", "bootstrap"))

	store, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.WaitReady(ctx, dbReadyRetries, time.Second); err != nil {
		return err
	}
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	sessions, closeSessions, err := selectionStore(ctx, cfg.Redis, systemLogger)
	if err != nil {
		return err
	}
	defer closeSessions()

	bus := outbox.NewBus(zl)
	var sink *kafkasink.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		sink = kafkasink.NewSink(kafkasink.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), tel)
		sink.Register(bus, kafkasink.Events()...)
		systemLogger.Info("kafka_sink_enabled",
			observability.F("brokers", cfg.Kafka.Brokers),
			observability.F("topic", cfg.Kafka.Topic),
		)
	}

	paypalClient := paypal.New(paypal.Config{
		BaseURL:      cfg.PayPal.BaseURL,
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
	}, &http.Client{Timeout: cfg.PayPal.Timeout}, tel)
	netsClient := nets.New(nets.Config{
		BaseURL:      cfg.NETS.BaseURL,
		APIKey:       cfg.NETS.APIKey,
		ProjectID:    cfg.NETS.ProjectID,
		NotifyMobile: cfg.NETS.NotifyMobile,
	}, &http.Client{Timeout: cfg.NETS.Timeout}, tel)
	hitpayClient := hitpay.New(hitpay.Config{
		BaseURL: cfg.HitPay.BaseURL,
		APIKey:  cfg.HitPay.APIKey,
	}, &http.Client{Timeout: cfg.HitPay.Timeout}, tel)

	commit := apporder.NewCommitOrderUseCase(store, store, store, bus, tel,
		apporder.WithAmountPolicy(apporder.AmountPolicy(cfg.Checkout.AmountPolicy), decimal.RequireFromString(amountEpsilon)),
	)
	checkout := appcheckout.NewService(sessions, store, cfg.Checkout.SelectionTTL, tel)
	payments := appcheckout.NewPayments(checkout, commit,
		apppay.NewCaptureAdapter(paypalClient, cfg.Checkout.Currency, tel),
		apppay.NewQRAdapter(netsClient, store, cfg.Checkout.Currency, tel,
			apppay.WithQRWindow(cfg.NETS.QRTimeout),
			apppay.WithQRRenderer(func(payload string) ([]byte, error) {
				return qrcode.Encode(payload, qrcode.Medium, qrImageSize)
			}),
		),
		apppay.NewHostedAdapter(hitpayClient, cfg.Checkout.Currency, cfg.HitPay.ReturnURL, tel,
			apppay.WithConfirmRetry(cfg.HitPay.ConfirmAttempts, cfg.HitPay.ConfirmDelay),
		),
		tel,
	)
	refunds := apprefund.NewService(store, store, store, map[payment.Method]apprefund.Refunder{
		payment.MethodPayPal: paypalClient,
		payment.MethodHitPay: hitpayClient,
	}, bus, tel)
	invoices := appinvoice.NewService(store, pdf.NewInvoiceRenderer(pdf.WithCurrency(cfg.Checkout.Currency)), tel)

	appinventory.NewWorker(bus,
		appinventory.NewWatchStockUseCase(store, bus, appinventory.DefaultLowStockThreshold, tel),
		tel,
	).Start()
	bus.Start(ctx)

	limiter := httppresentation.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
	go limiter.RunSweeper(ctx, sweepInterval)

	handler := httppresentation.NewHandler(httppresentation.Services{
		Cart:     appcart.NewService(store, store, tel),
		Checkout: checkout,
		Payments: payments,
		Refunds:  refunds,
		Invoices: invoices,
	}, httppresentation.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.AdminRole), tel,
		httppresentation.WithRateLimiter(limiter),
		httppresentation.WithHealthCheck(store.Ping),
		httppresentation.WithMetricsHandler(promhttp.Handler()),
	)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httppresentation.CORS(cfg.HTTP.AllowedOrigins, handler.Router()),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			systemLogger.Error("http_server_error", observability.F("error", err.Error()))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		systemLogger.Warn("outbox_drain_incomplete", observability.F("error", err.Error()))
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			systemLogger.Warn("kafka_sink_close_error", observability.F("error", err.Error()))
		}
	}
	return nil
}

// selectionStore keeps checkout selections in Redis when configured, in memory otherwise.
func selectionStore(ctx context.Context, cfg config.Redis, logger observability.Logger) (domcheckout.Store, func(), error) {
	if cfg.Addr == "" {
		sessions := memory.NewSelectionStore()
		go sessions.RunSweeper(ctx, sweepInterval)
		logger.Info("selection_store", observability.F("backend", "memory"))
		return sessions, func() {}, nil
	}
	client, err := redisstore.NewClient(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("selection store: %w", err)
	}
	logger.Info("selection_store", observability.F("backend", "redis"), observability.F("addr", cfg.Addr))
	return redisstore.NewSelectionStore(client), func() { _ = client.Close() }, nil
}
