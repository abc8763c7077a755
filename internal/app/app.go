package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-store/internal/domain/cart"
	"github.com/xenking/kart-store/internal/domain/checkout"
	"github.com/xenking/kart-store/internal/domain/order"
	"github.com/xenking/kart-store/internal/domain/product"
	"github.com/xenking/kart-store/internal/handler"
	"github.com/xenking/kart-store/internal/relay"
	"github.com/xenking/kart-store/internal/storage/kafka"
	"github.com/xenking/kart-store/internal/storage/postgres"
	"github.com/xenking/kart-store/pkg/health"
	"github.com/xenking/kart-store/pkg/httpmiddleware"
)

// Deps are the process-wide dependencies the HTTP stack is built from.
type Deps struct {
	Pool           *pgxpool.Pool
	Health         *health.Health
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// NewHandler builds the complete HTTP handler: health endpoints, the /api router and
// the middleware chain. Middleware background work stops when ctx is done.
func NewHandler(ctx context.Context, cfg *Config, d Deps) (http.Handler, error) {
	// Repositories.
	productRepo := postgres.NewProductRepository(d.Pool)
	cartRepo := postgres.NewCartRepository(d.Pool)
	orderRepo := postgres.NewOrderRepository(d.Pool)
	apikeyRepo := postgres.NewAPIKeyRepository(d.Pool)

	// Domain services.
	checkoutSvc, err := checkout.NewService(
		postgres.NewTxManager(d.Pool, cfg.Checkout.LockTimeout, cfg.Checkout.Timeout),
		d.TracerProvider,
		d.MeterProvider,
	)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout service")
	}
	h := handler.New(
		product.NewService(productRepo),
		cart.NewService(cartRepo, productRepo),
		checkoutSvc,
		order.NewService(orderRepo),
	)
	authn := handler.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", d.Health.LiveEndpoint)
	mux.HandleFunc("/readyz", d.Health.ReadyEndpoint)
	mux.Handle("/api/", h.Routes(authn.Middleware))

	return httpmiddleware.Wrap(mux,
		httpmiddleware.InjectLogger(d.Logger),
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins:          cfg.CORS.Origins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.Instrument("kart-api", d.TracerProvider, d.MeterProvider),
		httpmiddleware.LogRequests(),
	), nil
}

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	h, err := NewHandler(ctx, cfg, Deps{
		Pool:           pool,
		Health:         healthSvc,
		Logger:         lg,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Checkout.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           h,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg.Named("kafka"))
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		outbox := relay.New(postgres.NewOutboxRepository(pool), publisher, cfg.Kafka.RelayInterval, cfg.Kafka.BatchSize)
		g.Go(func() error {
			return outbox.Run(zctx.Base(gCtx, lg))
		})
		lg.Info("Outbox relay enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		defer healthSvc.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	healthSvc.SetReady(true)
	return g.Wait()
}
