package gateway

import (
	"eventhub/internal/apiclient"
	"eventhub/internal/auth"
	"eventhub/internal/events"
	"eventhub/internal/journal"
	"eventhub/internal/notifications"
	"eventhub/internal/payments"
	"eventhub/internal/reservations"
	"eventhub/internal/session"
	"eventhub/internal/shared/config"
	"eventhub/internal/workflow"
	"eventhub/pkg/cache"
	"eventhub/pkg/idempotency"
	"eventhub/pkg/logger"
)

// WorkflowFactory builds the workflow client of one gateway session
type WorkflowFactory func(sessionID string) *workflow.Client

// Shared holds the collaborators every session's workflow client uses
type Shared struct {
	Config    *config.Config
	Sessions  session.Factory
	Cache     cache.Service
	Journal   journal.Repository
	Publisher notifications.Publisher
	Logger    *logger.Logger
}

// NewWorkflowFactory wires a transport, the typed services and a session
// context per session id. Only the session store is per session; cache,
// journal and publisher are shared.
func NewWorkflowFactory(shared Shared) WorkflowFactory {
	cfg := shared.Config
	log := shared.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	return func(sessionID string) *workflow.Client {
		sc := session.NewContext(shared.Sessions(sessionID), session.WithLogger(log))

		apiOpts := []apiclient.Option{
			apiclient.WithTokenSource(sc),
			apiclient.WithUnauthorizedHandler(sc.HandleUnauthorized),
			apiclient.WithLogger(log),
		}
		api := apiclient.New(backendConfig(cfg, "primary"), apiOpts...)

		eventService := events.NewService(api, events.RetryConfig{
			MaxAttempts: cfg.Workflow.ReadMaxAttempts,
			Backoff:     cfg.Workflow.ReadBackoff,
		})
		if shared.Cache != nil {
			eventService.SetCacheService(shared.Cache, cfg.Cache.EventsTTL)
		}

		deps := workflow.Deps{
			Auth:         auth.NewService(api, sc),
			Events:       eventService,
			Reservations: reservations.NewService(api),
			Payments:     payments.NewService(api),
			Session:      sc,
			Keys:         idempotency.UUIDGenerator{},
			Journal:      shared.Journal,
			Publisher:    shared.Publisher,
		}
		if cfg.Workflow.ReservationFallback {
			deps.Fallback = reservations.NewService(apiclient.NewFallback(backendConfig(cfg, "fallback"), apiOpts...))
		}

		return workflow.NewClient(deps,
			workflow.WithRetryPolicy(workflow.RetryPolicy{
				MaxAttempts:         cfg.Workflow.ReservationMaxAttempts,
				StateChangeAttempts: cfg.Workflow.StateChangeMaxAttempts,
				Backoff:             cfg.Workflow.ReadBackoff,
				Fallback:            cfg.Workflow.ReservationFallback,
			}),
			workflow.WithPaymentDefaults(cfg.Workflow.DefaultCurrency, cfg.Workflow.DefaultPaymentMethod),
			workflow.WithSessionID(sessionID),
			workflow.WithLogger(log),
		)
	}
}

// NewHealthCheck returns an anonymous events client for health checks
func NewHealthCheck(cfg *config.Config) events.Service {
	return events.NewService(apiclient.New(backendConfig(cfg, "health")), events.RetryConfig{MaxAttempts: 1})
}

func backendConfig(cfg *config.Config, name string) apiclient.Config {
	return apiclient.Config{
		Name:          name,
		BaseURL:       cfg.BackendURL(),
		Timeout:       cfg.Backend.Timeout,
		SlowThreshold: cfg.Backend.SlowThreshold,
	}
}
