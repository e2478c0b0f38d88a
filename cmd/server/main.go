package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrymomot/billingsync/pkg/api"
	"github.com/dmitrymomot/billingsync/pkg/authn"
	"github.com/dmitrymomot/billingsync/pkg/billing"
	"github.com/dmitrymomot/billingsync/pkg/config"
	"github.com/dmitrymomot/billingsync/pkg/httpserver"
	"github.com/dmitrymomot/billingsync/pkg/logger"
	"github.com/dmitrymomot/billingsync/pkg/metrics"
	"github.com/dmitrymomot/billingsync/pkg/pg"
	"github.com/dmitrymomot/billingsync/pkg/ratelimit"
	"github.com/dmitrymomot/billingsync/pkg/redis"
)

// AppConfig holds process-level settings that belong to no single package.
type AppConfig struct {
	Store               string        `env:"BILLING_STORE" envDefault:"postgres"`         // Store selects "postgres" or "memory".
	OperationTimeout    time.Duration `env:"BILLING_OPERATION_TIMEOUT" envDefault:"30s"`  // OperationTimeout bounds each processor-facing operation.
	WebhookMaxBodyBytes int64         `env:"WEBHOOK_MAX_BODY_BYTES" envDefault:"1048576"` // WebhookMaxBodyBytes caps inbound webhook payloads.
	WebhookLedgerTTL    time.Duration `env:"WEBHOOK_LEDGER_TTL" envDefault:"72h"`         // WebhookLedgerTTL is how long processed event ids are remembered.
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		appCfg      AppConfig
		logCfg      logger.Config
		httpCfg     httpserver.Config
		stripeCfg   billing.StripeConfig
		catalogCfg  billing.CatalogConfig
		checkoutCfg billing.CheckoutConfig
		authCfg     authn.Config
		limitCfg    ratelimit.Config
		redisCfg    redis.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&logCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&stripeCfg)
	config.MustLoad(&catalogCfg)
	config.MustLoad(&checkoutCfg)
	config.MustLoad(&authCfg)
	config.MustLoad(&limitCfg)
	config.MustLoad(&redisCfg)

	log := logger.NewFromConfig(logCfg, logger.WithContextExtractors(api.RequestIDExtractor))
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var readiness []httpserver.Check

	store, storeRes, err := openStore(ctx, appCfg, log)
	if err != nil {
		return err
	}
	defer storeRes.Close()
	readiness = append(readiness, storeRes.checks...)

	opts := []billing.Option{
		billing.WithLogger(log),
		billing.WithTimeout(appCfg.OperationTimeout),
	}
	if redisCfg.Enabled() {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		opts = append(opts,
			billing.WithLocker(redis.NewLocker(client)),
			billing.WithEventLedger(billing.NewRedisEventLedger(client, appCfg.WebhookLedgerTTL)),
		)
		readiness = append(readiness, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	} else {
		log.WarnContext(ctx, "REDIS_URL not set, locks and webhook ledger are process-local")
		opts = append(opts, billing.WithEventLedger(billing.NewMemoryEventLedger(appCfg.WebhookLedgerTTL)))
	}

	processor, err := billing.NewStripeProcessor(stripeCfg, log)
	if err != nil {
		return fmt.Errorf("stripe: %w", err)
	}
	catalog, err := billing.LoadCatalog(catalogCfg)
	if err != nil {
		return fmt.Errorf("billing plans: %w", err)
	}
	checkout, err := billing.NewCheckoutInitiator(processor, store, catalog, checkoutCfg, opts...)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	methods, err := billing.NewPaymentMethodManager(processor, checkoutCfg, opts...)
	if err != nil {
		return fmt.Errorf("payment methods: %w", err)
	}

	auth, err := authn.New(authCfg)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	limiter, err := ratelimit.NewTokenBucket(limitCfg)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	handler := api.Router(api.Deps{
		Logger:              log,
		Auth:                auth,
		Customers:           billing.NewCustomerResolver(processor, opts...),
		Coupons:             billing.NewCouponValidator(processor, catalog, opts...),
		Checkout:            checkout,
		PaymentMethods:      methods,
		Lifecycle:           billing.NewLifecycleManager(processor, store, opts...),
		Webhooks:            billing.NewWebhookProcessor(processor, store, catalog, methods, opts...),
		Metrics:             metrics.New(),
		CouponLimiter:       limiter,
		Readiness:           readiness,
		WebhookMaxBodyBytes: appCfg.WebhookMaxBodyBytes,
	})

	srv := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithStopHook(func(l *slog.Logger) { l.Info("billing service stopping") }),
	)
	return srv.Run(ctx, handler)
}

// storeResources releases the store's connections and carries its readiness checks.
type storeResources struct {
	close  func()
	checks []httpserver.Check
}

func (c storeResources) Close() {
	if c.close != nil {
		c.close()
	}
}

func openStore(ctx context.Context, cfg AppConfig, log *slog.Logger) (billing.Store, storeResources, error) {
	switch cfg.Store {
	case "memory":
		log.WarnContext(ctx, "using in-memory subscription store; records are lost on restart")
		return billing.NewMemoryStore(), storeResources{}, nil
	case "postgres", "":
	default:
		return nil, storeResources{}, fmt.Errorf("unknown BILLING_STORE %q", cfg.Store)
	}

	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return nil, storeResources{}, fmt.Errorf("postgres config: %w", err)
	}
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, storeResources{}, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.Migrate(ctx, pool, billing.Migrations, billing.MigrationsDir, pgCfg, log); err != nil {
		pool.Close()
		return nil, storeResources{}, fmt.Errorf("migrate: %w", err)
	}
	return billing.NewPGStore(pool), storeResources{
		close:  pool.Close,
		checks: []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}},
	}, nil
}
