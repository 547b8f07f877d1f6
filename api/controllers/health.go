package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/voicecommerce-backend/api/responses"
	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is a dependency that must answer before the service reports ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NamedPinger pairs a dependency with the name used in readiness output.
type NamedPinger struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-VoiceCommerce-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, deps ...NamedPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-VoiceCommerce-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := map[string]string{}
		for _, dep := range deps {
			if dep.Pinger == nil {
				continue
			}
			if err := dep.Pinger.Ping(ctx); err != nil {
				checks[dep.Name] = "down"
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, dep.Name+" unavailable").WithDetails(checks))
				return
			}
			checks[dep.Name] = "up"
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
