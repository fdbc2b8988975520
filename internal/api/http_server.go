package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"skillconnect/internal/config"
	"skillconnect/internal/domain"
	"skillconnect/internal/realtime"
	"skillconnect/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Pinger reports whether the database answers.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Users         *service.UserService
	Marketplace   *service.MarketplaceService
	Reviews       *service.ReviewService
	Notifications *service.NotificationService
	Reports       *service.ReportService
	Hub           *realtime.Hub
	Idempotency   domain.IdempotencyStore
	DB            Pinger
}

// HTTPServer exposes the marketplace REST API and the realtime websocket.
type HTTPServer struct {
	cfg    config.APIConfig
	deps   Deps
	server *http.Server
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{cfg: cfg, deps: deps, logger: logger}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	return srv
}

// Handler returns the root handler, mostly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger(s.logger))
	r.Use(recoverPanics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, replayedHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(rateLimit(newRateLimiter(s.cfg.RateLimit)))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	// Browsers cannot set headers on websocket upgrades, so the token may come as ?token=.
	r.Get("/ws", s.handleWebsocket)

	r.Group(func(pr chi.Router) {
		pr.Use(requireAuth(s.deps.Users))
		pr.Use(idempotent(s.deps.Idempotency))

		pr.Get("/user/me", s.handleMe)
		pr.Put("/user/me", s.handleUpdateMe)
		pr.Get("/user/providers", s.handleProviders)
		pr.Get("/user/available-service-requests", s.handleAvailableRequests)
		pr.Get("/user/{id}", s.handlePublicProfile)

		pr.Post("/service-request", s.handleCreateRequest)
		pr.Get("/service-request/mine", s.handleMyRequests)
		pr.Get("/service-request/{requestId}", s.handleGetRequest)
		pr.Post("/service-request/{requestId}/accept-offer", s.handleAcceptOffer)
		pr.Post("/service-request/{requestId}/reject-offer", s.handleRejectOffer)
		pr.Put("/service-request/{requestId}/cancel", s.handleCancelRequest)

		pr.Get("/booking/mine", s.handleMyBookings)
		pr.Get("/booking/{id}", s.handleGetBooking)
		pr.Put("/booking/{id}/complete", s.handleCompleteBooking)

		pr.Post("/reviews", s.handleCreateReview)
		pr.Get("/reviews/user/{userId}", s.handleUserReviews)

		pr.Get("/notifications", s.handleNotifications)
		pr.Put("/notifications/read-all", s.handleReadAllNotifications)
		pr.Put("/notifications/{id}/read", s.handleReadNotification)

		pr.Group(func(ar chi.Router) {
			ar.Use(requireAdmin)

			ar.Get("/admin/users", s.handleAdminUsers)
			ar.Put("/admin/users/{id}/ban", s.handleBanUser)
			ar.Put("/admin/users/{id}/verify", s.handleVerifyUser)
			ar.Get("/admin/service-requests", s.handleAdminRequests)
			ar.Put("/admin/service-requests/{id}/target", s.handleRetargetRequest)

			ar.Get("/reports/totals", s.handleReportTotals)
			ar.Get("/reports/demographics", s.handleReportDemographics)
			ar.Get("/reports/skills", s.handleReportSkills)
			ar.Get("/reports/skilled-per-trade", s.handleReportSkilledPerTrade)
			ar.Get("/reports/most-booked-services", s.handleReportMostBooked)
			ar.Get("/reports/totals-over-time", s.handleReportTotalsOverTime)
			ar.Get("/reports/export", s.handleReportExport)
		})
	})

	return r
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": time.Now().UTC().Format(time.RFC3339)})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.DB.PingContext(ctx); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("readiness check failed")
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
