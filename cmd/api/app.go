package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/voicecommerce-backend/api/controllers"
	"github.com/angelmondragon/voicecommerce-backend/api/routes"
	"github.com/angelmondragon/voicecommerce-backend/internal/cart"
	"github.com/angelmondragon/voicecommerce-backend/internal/catalog"
	"github.com/angelmondragon/voicecommerce-backend/internal/checkout"
	"github.com/angelmondragon/voicecommerce-backend/internal/coupons"
	"github.com/angelmondragon/voicecommerce-backend/internal/cron"
	"github.com/angelmondragon/voicecommerce-backend/internal/functions"
	"github.com/angelmondragon/voicecommerce-backend/internal/intent"
	"github.com/angelmondragon/voicecommerce-backend/internal/llm"
	"github.com/angelmondragon/voicecommerce-backend/internal/orchestrator"
	"github.com/angelmondragon/voicecommerce-backend/internal/orders"
	"github.com/angelmondragon/voicecommerce-backend/internal/payments"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	"github.com/angelmondragon/voicecommerce-backend/internal/statemachine"
	"github.com/angelmondragon/voicecommerce-backend/internal/uisync"
	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
	"github.com/angelmondragon/voicecommerce-backend/pkg/db"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
	"github.com/angelmondragon/voicecommerce-backend/pkg/metrics"
	"github.com/angelmondragon/voicecommerce-backend/pkg/migrate"
	"github.com/angelmondragon/voicecommerce-backend/pkg/pubsub"
	pkgredis "github.com/angelmondragon/voicecommerce-backend/pkg/redis"
)

// app holds the process-wide singletons. Everything is built once here and
// injected; no package keeps mutable globals.
type app struct {
	Handler http.Handler
	Cron    *cron.Service

	logg     *logger.Logger
	pubsub   *pubsub.Client
	closers  []func() error
	shutdown []func()
}

func (a *app) Close(ctx context.Context) {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.closers[i]())
	}
	if errs != nil {
		a.logg.Error(ctx, "error releasing resources", errs)
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*app, error) {
	a := &app{logg: logg}
	fail := func(err error) (*app, error) {
		a.Close(context.Background())
		return nil, err
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fail(fmt.Errorf("bootstrap database: %w", err))
	}
	a.closers = append(a.closers, dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fail(fmt.Errorf("run dev migrations: %w", err))
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Configured() {
		redisClient, err = pkgredis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fail(fmt.Errorf("bootstrap redis: %w", err))
		}
		a.closers = append(a.closers, redisClient.Close)
	}

	currency, err := enums.ParseCurrency(cfg.App.Currency)
	if err != nil {
		return fail(err)
	}

	orchMetrics := metrics.NewOrchestratorMetrics(prometheus.DefaultRegisterer)
	commerceMetrics := metrics.NewCommerceMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	var store sessions.Store = sessions.NewMemoryStore()
	if cfg.Session.Store == config.SessionStoreRedis {
		store, err = sessions.NewRedisStore(redisClient, nil)
		if err != nil {
			return fail(err)
		}
	}
	sessSvc, err := sessions.NewService(sessions.ServiceParams{
		Store:    store,
		TTL:      cfg.Session.TTL,
		Currency: currency,
		Logger:   logg,
	})
	if err != nil {
		return fail(err)
	}

	emitter, bus, err := buildEmitter(ctx, cfg, logg, a)
	if err != nil {
		return fail(err)
	}
	toasts, err := uisync.NewToasts(cfg.App.Locale, cfg.UISync.ToastDuration)
	if err != nil {
		return fail(err)
	}

	catalogRepo := catalog.NewRepository(dbClient.DB())
	catalogSvc, err := catalog.NewService(catalogRepo)
	if err != nil {
		return fail(err)
	}
	couponRepo := coupons.NewRepository(dbClient.DB())

	cartSvc, err := cart.NewService(sessSvc, catalogSvc, couponRepo, cart.Policy{
		MaxDiscounts:           cfg.Discounts.MaxDiscounts,
		MaxPercentageDiscounts: cfg.Discounts.MaxPercentageDiscounts,
	}, nil)
	if err != nil {
		return fail(err)
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(dbClient.DB()),
		Tx:        dbClient,
		Inventory: catalogRepo,
		Coupons:   couponRepo,
		Locations: catalogSvc,
		Sessions:  sessSvc,
		Delivery:  cfg.Delivery,
		Metrics:   commerceMetrics,
		Logger:    logg,
	})
	if err != nil {
		return fail(err)
	}

	paySvc, err := payments.NewService(payments.ServiceParams{
		Store:           payments.NewStore(),
		Orders:          orderSvc,
		Simulator:       payments.NewSimulator(cfg.Payments.SuccessRate, payments.ParseOutcome(cfg.Payments.ForcedOutcome), uint64(time.Now().UnixNano())),
		TTL:             cfg.Payments.SessionTTL,
		ProcessingDelay: cfg.Payments.ProcessingDelay,
		Metrics:         commerceMetrics,
		Logger:          logg,
	})
	if err != nil {
		return fail(err)
	}
	a.shutdown = append(a.shutdown, paySvc.Shutdown)

	driver := statemachine.NewDriver(statemachine.New(
		statemachine.WithEmitter(emitter),
		statemachine.WithMetrics(orchMetrics),
		statemachine.WithLogger(logg),
	), sessSvc)

	reconciler, err := checkout.NewReconciler(checkout.ReconcilerParams{
		Payments:     paySvc,
		Orders:       orderSvc,
		Driver:       driver,
		Locks:        sessSvc.Locks(),
		Emitter:      emitter,
		Toasts:       toasts,
		Receipts:     cfg.Receipts,
		PollInterval: cfg.Payments.PollInterval,
		PollAttempts: cfg.Payments.PollAttempts,
		Logger:       logg,
	})
	if err != nil {
		return fail(err)
	}
	a.shutdown = append(a.shutdown, reconciler.Shutdown)

	dispatcher, err := functions.NewDispatcher(functions.Deps{
		Catalog:     catalogSvc,
		Carts:       cartSvc,
		Orders:      orderSvc,
		Payments:    paySvc,
		Settlements: reconciler,
		Sessions:    sessSvc,
		Driver:      driver,
	}, emitter, toasts, orchMetrics, logg)
	if err != nil {
		return fail(err)
	}

	terms, err := catalogSvc.ProductTerms(ctx)
	if err != nil {
		return fail(fmt.Errorf("load product vocabulary: %w", err))
	}

	var model llm.Client
	if cfg.LLM.Enabled() {
		model = llm.NewOpenAIClient(cfg.LLM)
	} else {
		logg.Warn(ctx, "no model api key configured, serving turns through intent rules")
	}

	conv, err := orchestrator.New(orchestrator.Params{
		Config:     cfg.Orchestrator,
		Sampling:   &llm.SamplingOptions{Temperature: cfg.LLM.Temperature, MaxTokens: cfg.LLM.MaxTokens},
		Client:     model,
		Functions:  dispatcher,
		Classifier: intent.NewClassifier(terms),
		Sessions:   sessSvc,
		Locks:      sessSvc.Locks(),
		Driver:     driver,
		Emitter:    emitter,
		Toasts:     toasts,
		Metrics:    orchMetrics,
		Logger:     logg,
	})
	if err != nil {
		return fail(err)
	}
	a.shutdown = append(a.shutdown, conv.Close)

	if cfg.Cron.RunInAPI {
		a.Cron, err = buildCron(cfg, logg, redisClient, paySvc, reconciler, sessSvc, conv, cronMetrics)
		if err != nil {
			return fail(err)
		}
	}

	deps := routes.Deps{
		Config:       cfg,
		Logger:       logg,
		Sessions:     sessSvc,
		Locks:        sessSvc.Locks(),
		Conversation: conv,
		Carts:        cartSvc,
		Orders:       orderSvc,
		Payments:     paySvc,
		Functions:    dispatcher,
		Readiness:    []controllers.NamedPinger{{Name: "database", Pinger: dbClient}},
	}
	if bus != nil {
		deps.Events = bus
	}
	if a.pubsub != nil {
		deps.Readiness = append(deps.Readiness, controllers.NamedPinger{Name: "pubsub", Pinger: a.pubsub})
	}
	if redisClient != nil {
		deps.Idempotency = redisClient
		deps.Readiness = append(deps.Readiness, controllers.NamedPinger{Name: "redis", Pinger: redisClient})
	}
	a.Handler = routes.NewRouter(deps)
	return a, nil
}

// buildEmitter returns the UI event sink. The local bus doubles as the
// source of the session event stream.
func buildEmitter(ctx context.Context, cfg *config.Config, logg *logger.Logger, a *app) (uisync.Emitter, *uisync.LocalBus, error) {
	if cfg.UISync.Sink == config.UISinkPubSub {
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap pubsub: %w", err)
		}
		a.pubsub = client
		a.closers = append(a.closers, client.Close)
		sink, err := uisync.NewPubSubEmitter(client.UIEventsPublisher(), nil)
		if err != nil {
			return nil, nil, err
		}
		return uisync.NewBestEffort(sink, logg), nil, nil
	}
	bus := uisync.NewLocalBus(cfg.UISync.BufferSize, nil)
	a.closers = append(a.closers, bus.Close)
	return uisync.NewBestEffort(bus, logg), bus, nil
}

func buildCron(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *pkgredis.Client,
	paySvc *payments.Service,
	reconciler *checkout.Reconciler,
	sessSvc *sessions.Service,
	conv *orchestrator.Orchestrator,
	cronMetrics *metrics.CronJobMetrics,
) (*cron.Service, error) {
	paymentJob, err := cron.NewPaymentExpiryJob(cron.PaymentExpiryJobParams{
		Logger:   logg,
		Payments: paySvc,
		Settler:  reconciler,
		Metrics:  cronMetrics,
	})
	if err != nil {
		return nil, err
	}
	sessionJob, err := cron.NewSessionExpiryJob(cron.SessionExpiryJobParams{
		Logger:   logg,
		Sessions: sessSvc,
		Runtimes: conv,
		Metrics:  cronMetrics,
	})
	if err != nil {
		return nil, err
	}

	// payment sessions live in this process, so the payment sweep always
	// runs here; a redis lock only keeps replicas from sweeping twice
	var lock cron.Lock = &cron.LocalLock{}
	if redisClient != nil {
		lock, err = cron.NewRedisLock(redisClient, redisClient.LockKey("api-cron:"+cfg.App.Env), cfg.Cron.LockTTL)
		if err != nil {
			return nil, err
		}
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(paymentJob, sessionJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
}
