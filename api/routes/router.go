package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/voicecommerce-backend/api/controllers"
	"github.com/angelmondragon/voicecommerce-backend/api/middleware"
	"github.com/angelmondragon/voicecommerce-backend/internal/functions"
	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/voicecommerce-backend/pkg/redis"
)

// Deps carries the singletons the HTTP surface is built from.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	Sessions     controllers.SessionService
	Locks        controllers.SessionLocker
	Conversation controllers.Conversation
	Carts        controllers.CartReader
	Orders       controllers.OrderService
	Payments     controllers.PaymentReader
	Functions    controllers.FunctionRunner
	Events       controllers.EventSubscriber // nil disables the event stream
	Idempotency  pkgredis.IdempotencyStore   // nil disables replay
	Gatherer     prometheus.Gatherer
	Readiness    []controllers.NamedPinger
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness...))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		if deps.Idempotency != nil {
			r.Use(middleware.Idempotency(deps.Idempotency, logg))
		}

		r.Post("/sessions", controllers.SessionStart(deps.Sessions, logg))
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(middleware.SessionScope(logg))
			r.Get("/", controllers.SessionFetch(deps.Sessions, logg))
			r.Delete("/", controllers.SessionEnd(deps.Sessions, deps.Conversation, logg))
			r.Post("/transcripts", controllers.SessionTranscript(deps.Sessions, deps.Conversation, logg))
			r.Post("/intents", controllers.SessionIntent(deps.Sessions, deps.Conversation, logg))
			r.Get("/cart", controllers.SessionCart(deps.Sessions, deps.Carts, logg))
			r.Get("/orders", controllers.SessionOrders(deps.Orders, logg))
			if deps.Events != nil {
				r.Get("/events", controllers.SessionEvents(deps.Sessions, deps.Events, logg))
			}
		})

		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Get("/", controllers.OrderFetch(deps.Orders, logg))
			r.Patch("/status", controllers.OrderStatusUpdate(deps.Orders, deps.Locks, logg))
			r.Post("/payment-sessions", controllers.OrderPaymentSessionCreate(deps.Orders, deps.Functions, deps.Locks, logg))
		})

		r.Route("/payment-sessions/{paymentSessionID}", func(r chi.Router) {
			r.Get("/", controllers.PaymentSessionFetch(deps.Payments, logg))
			r.Post("/process", controllers.PaymentSessionAction(functions.ProcessPayment, deps.Payments, deps.Orders, deps.Functions, deps.Locks, logg))
			r.Post("/cancel", controllers.PaymentSessionAction(functions.CancelPayment, deps.Payments, deps.Orders, deps.Functions, deps.Locks, logg))
			r.Post("/retry", controllers.PaymentSessionAction(functions.RetryPayment, deps.Payments, deps.Orders, deps.Functions, deps.Locks, logg))
		})
	})

	return r
}
