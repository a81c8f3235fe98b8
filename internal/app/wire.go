// Package app wires repositories, services and handlers into the HTTP router.
package app

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trustplane/platform/internal/anomaly"
	"github.com/trustplane/platform/internal/audit"
	"github.com/trustplane/platform/internal/auth"
	"github.com/trustplane/platform/internal/guard"
	"github.com/trustplane/platform/internal/handler"
	"github.com/trustplane/platform/internal/infra"
	"github.com/trustplane/platform/internal/registry"
	"github.com/trustplane/platform/internal/repository"
	"github.com/trustplane/platform/internal/service"
	"github.com/trustplane/platform/internal/session"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	ZeroTrustPool *pgxpool.Pool
	AuditPool     *pgxpool.Pool
	Ledger        *audit.Ledger
	Cache         *repository.SessionCache // nil disables the revocation fast path
	JWTMgr        *auth.JWTManager
	Logger        *slog.Logger
	Cfg           *infra.Config
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	pool := deps.ZeroTrustPool
	logger := deps.Logger
	cfg := deps.Cfg

	// Repositories
	userRepo := repository.NewUserRepository()
	deviceRepo := repository.NewDeviceRepository()
	sessionRepo := repository.NewSessionRepository()
	accessRepo := repository.NewAccessRequestRepository()
	baselineRepo := repository.NewBaselineRepository()
	anomalyRepo := repository.NewAnomalyRepository()

	// Core services
	deviceRegistry := registry.New(pool, deviceRepo)
	anomalyRecorder := anomaly.NewRecorder(pool, anomalyRepo, logger)

	var cache session.Cache
	if deps.Cache != nil {
		cache = deps.Cache
	}
	sessionMgr := session.NewManager(pool, sessionRepo, deviceRepo, deviceRegistry,
		accessRepo, baselineRepo, anomalyRecorder, deps.Ledger, cache,
		session.Config{Risk: cfg.Risk, MaxAge: cfg.SessionMaxAge}, logger)

	lockout := guard.NewLockout(deps.Ledger, cfg.LockoutMaxAttempts, cfg.LockoutWindow)
	authSvc := service.NewAuthService(pool, userRepo, deviceRegistry, sessionMgr,
		deps.Ledger, lockout, deps.JWTMgr)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(pool, accessRepo, sessionMgr)
	deviceHandler := handler.NewDeviceHandler(deviceRegistry, deps.Ledger)
	anomalyHandler := handler.NewAnomalyHandler(anomalyRecorder, deps.Ledger)
	auditHandler := handler.NewAuditHandler(deps.Ledger)

	limiter := guard.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	idem := guard.NewIdempotencyGuard()

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS(cfg.CORSAllowedOrigins))
	r.Use(handler.JSONContentType)
	r.Use(handler.RateLimit(limiter))

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(deps.ZeroTrustPool, deps.AuditPool))

	// Auth routes (no auth)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// Token-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(deps.JWTMgr))

		// Logout skips continuous verification on purpose: leaving a risky
		// session must always be possible.
		r.Post("/auth/logout", authHandler.Logout)

		// Continuously verified routes: every request is re-scored.
		r.Group(func(r chi.Router) {
			r.Use(handler.ContinuousVerification(sessionMgr))

			r.Get("/me/risk-profile", sessionHandler.MyRiskProfile)
			r.Get("/devices", deviceHandler.ListMine)
			r.Get("/sessions/{sessionID}/requests", sessionHandler.ListRequests)

			// Analyst/admin operations
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.WriteRoles()...))
				r.Use(handler.Idempotency(idem))

				r.Delete("/sessions/{sessionID}", sessionHandler.Terminate)
				r.Post("/devices/{deviceID}/block", deviceHandler.Block)
				r.Patch("/anomalies/{id}/resolve", anomalyHandler.Resolve)

				r.Get("/users/{userID}/devices", deviceHandler.ListByUser)
				r.Get("/users/{userID}/anomalies", anomalyHandler.ListByUser)
				r.Get("/users/{userID}/risk-profile", sessionHandler.UserRiskProfile)

				r.Route("/audit", func(r chi.Router) {
					r.Get("/events", auditHandler.Search)
					// Verification is a POST: detection appends to the chain.
					r.Post("/verify", auditHandler.VerifyChain)
					r.Post("/verify/{eventID}", auditHandler.VerifyEntry)
					r.Get("/failed-logins", auditHandler.FailedLogins)
					r.Post("/failed-logins", auditHandler.IngestFailedLogin)
				})
			})
		})
	})

	return r
}
