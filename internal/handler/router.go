package handler

import (
	"net/http"

	"cardhub/internal/domain"
	"cardhub/internal/middleware"
	"cardhub/pkg/logger"

	"github.com/gorilla/mux"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Auth      *AuthHandler
	Dashboard *DashboardHandler
	Cards     *CardHandler
	Checkout  *CheckoutHandler
	Profile   *ProfileHandler
	Admin     *AdminHandler
	System    *SystemHandler

	Sessions    *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
	Idempotency *middleware.IdempotencyMiddleware
	Audit       *middleware.AuditMiddleware

	CORSOrigins []string
	Logger      logger.Logger
}

// NewRouter builds the portal's HTTP surface. CORS wraps the router so
// preflight requests are answered even for routes that only accept other
// methods.
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Log)
	r.Use(middleware.BodyLimit(maxBodyBytes))

	r.HandleFunc("/health", cfg.System.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	// Public
	public := api.PathPrefix("/auth").Subrouter()
	public.Use(cfg.RateLimiter.Limit)
	public.HandleFunc("/login", cfg.Auth.Login).Methods(http.MethodPost)
	public.HandleFunc("/register", cfg.Auth.Register).Methods(http.MethodPost)
	public.HandleFunc("/logout", cfg.Auth.Logout).Methods(http.MethodPost)

	// Session
	protected := api.NewRoute().Subrouter()
	protected.Use(cfg.Sessions.Authenticate)
	protected.Use(cfg.RateLimiter.Limit)
	protected.Use(cfg.Audit.Audit)

	protected.HandleFunc("/auth/me", cfg.Auth.Me).Methods(http.MethodGet)

	protected.HandleFunc("/dashboard", cfg.Dashboard.Dashboard).Methods(http.MethodGet)
	protected.HandleFunc("/transactions", cfg.Dashboard.Transactions).Methods(http.MethodGet)
	protected.HandleFunc("/transactions/summary", cfg.Dashboard.Summary).Methods(http.MethodGet)
	protected.HandleFunc("/stats/stream", cfg.Dashboard.Stream).Methods(http.MethodGet)

	protected.HandleFunc("/cards", cfg.Cards.List).Methods(http.MethodGet)
	protected.HandleFunc("/cards/apply", cfg.Cards.Apply).Methods(http.MethodPost)
	protected.HandleFunc("/cards/{id:[0-9]+}/block", cfg.Cards.Block).Methods(http.MethodPatch)
	protected.HandleFunc("/cards/{id:[0-9]+}/unblock", cfg.Cards.Unblock).Methods(http.MethodPatch)
	protected.HandleFunc("/cards/{id:[0-9]+}/activate", cfg.Cards.Activate).Methods(http.MethodPatch)

	protected.Handle("/purchases", cfg.Idempotency.Require(http.HandlerFunc(cfg.Checkout.Purchase))).Methods(http.MethodPost)
	protected.Handle("/payments", cfg.Idempotency.Require(http.HandlerFunc(cfg.Checkout.Pay))).Methods(http.MethodPost)

	protected.HandleFunc("/profile", cfg.Profile.Get).Methods(http.MethodGet)
	protected.HandleFunc("/profile", cfg.Profile.Update).Methods(http.MethodPut)

	// Admin
	admin := protected.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireRole(domain.RoleAdmin))
	admin.HandleFunc("/dashboard", cfg.Admin.Dashboard).Methods(http.MethodGet)
	admin.HandleFunc("/reports", cfg.Admin.Reports).Methods(http.MethodGet)
	admin.HandleFunc("/customers", cfg.Admin.Customers).Methods(http.MethodGet)
	admin.HandleFunc("/customers/{id:[0-9]+}", cfg.Admin.UpdateCustomer).Methods(http.MethodPut)
	admin.HandleFunc("/customers/{id:[0-9]+}", cfg.Admin.DeleteCustomer).Methods(http.MethodDelete)
	admin.HandleFunc("/customers/{id:[0-9]+}/status", cfg.Admin.UpdateCustomerStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/cards", cfg.Admin.Cards).Methods(http.MethodGet)
	admin.HandleFunc("/cards", cfg.Admin.IssueCard).Methods(http.MethodPost)
	admin.HandleFunc("/cards/{id:[0-9]+}/block", cfg.Cards.Block).Methods(http.MethodPatch)
	admin.HandleFunc("/cards/{id:[0-9]+}/unblock", cfg.Cards.Unblock).Methods(http.MethodPatch)
	admin.HandleFunc("/cards/{id:[0-9]+}/activate", cfg.Cards.Activate).Methods(http.MethodPatch)
	admin.HandleFunc("/cards/{id:[0-9]+}/credit-limit", cfg.Admin.UpdateCreditLimit).Methods(http.MethodPatch)
	admin.HandleFunc("/cards/{id:[0-9]+}/daily-limit", cfg.Admin.UpdateDailyLimit).Methods(http.MethodPatch)
	admin.HandleFunc("/transactions", cfg.Admin.Transactions).Methods(http.MethodGet)
	admin.HandleFunc("/transactions/{id:[0-9]+}/reverse", cfg.Admin.ReverseTransaction).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return middleware.CORS(cfg.CORSOrigins)(r)
}
