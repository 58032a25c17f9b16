// Package api exposes the transfer pipeline over HTTP. Each transfer
// under construction is a server-side session owned by the
// authenticated user; the session commands map one-to-one onto the
// processor's command surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/jwtauth/v5"

	"github.com/traversefi/traverse/internal/account"
	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/pending"
	"github.com/traversefi/traverse/internal/processor"
	"github.com/traversefi/traverse/pkg/config"
	"github.com/traversefi/traverse/pkg/errors"
	"github.com/traversefi/traverse/pkg/health"
	"github.com/traversefi/traverse/pkg/logging"
	"github.com/traversefi/traverse/pkg/metrics"
)

// Directory resolves account IDs to live accounts for the
// authenticated user.
type Directory interface {
	Account(ctx context.Context, userID, accountID string) (account.Account, error)
}

// Pinger reports reachability of a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front end of the transfer pipeline.
type Server struct {
	config           *config.Config
	router           *chi.Mux
	directory        Directory
	registry         *engine.Registry
	deps             engine.Deps
	caches           processor.CacheInvalidator
	custody          Pinger
	tokenAuth        *jwtauth.JWTAuth
	server           *http.Server
	logger           *logging.Logger
	metricsCollector *metrics.Metrics
	healthRegistry   *health.Registry
	sessions         *sessionStore
}

// NewServer creates the API server. The directory, registry and deps
// together are everything needed to build an engine per transfer.
func NewServer(cfg *config.Config, directory Directory, registry *engine.Registry, deps engine.Deps, caches processor.CacheInvalidator, custody Pinger, logger *logging.Logger) *Server {
	r := chi.NewRouter()
	tokenAuth := jwtauth.New("HS256", []byte(cfg.Auth.JWTSecret), nil)

	metricsCollector := metrics.New(metrics.Config{
		Namespace:   cfg.Metrics.Namespace,
		Subsystem:   "api",
		ServiceName: "api",
	})

	healthRegistry := health.NewRegistry(logger)

	s := &Server{
		config:           cfg,
		router:           r,
		directory:        directory,
		registry:         registry,
		deps:             deps,
		caches:           caches,
		custody:          custody,
		tokenAuth:        tokenAuth,
		logger:           logger,
		metricsCollector: metricsCollector,
		healthRegistry:   healthRegistry,
		sessions:         newSessionStore(),
		server: &http.Server{
			Addr:         ":" + cfg.API.Port,
			Handler:      r,
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
		},
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupHealthChecks()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(SecureHeaders)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(MetricsMiddleware(s.metricsCollector, "api"))
	s.router.Use(RecovererWithMetrics(s.logger, s.metricsCollector, "api"))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Use(httprate.LimitByIP(s.config.API.RateLimit, 1*time.Minute))
}

func (s *Server) setupRoutes() {
	s.router.Group(func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.metricsCollector.Handler().ServeHTTP)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(s.tokenAuth))
		r.Use(jwtauth.Authenticator)

		r.Route("/transfers", func(r chi.Router) {
			r.Post("/", s.handleCreateTransfer)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTransfer)
				r.Put("/amount", s.handleUpdateAmount)
				r.Put("/fee", s.handleUpdateFeeLevel)
				r.Put("/options", s.handleSetOption)
				r.Post("/validate", s.handleValidate)
				r.Post("/execute", s.handleExecute)
				r.Delete("/", s.handleCancelTransfer)
			})
		})
	})
}

func (s *Server) setupHealthChecks() {
	s.healthRegistry.Register("api", health.PingChecker("api", func(ctx context.Context) error {
		return nil
	}))
	if s.custody != nil {
		s.healthRegistry.Register("redis", health.PingChecker("redis", s.custody.Ping))
	}
}

// Start starts the API server.
func (s *Server) Start() {
	s.logger.Info("starting API server", "port", s.config.API.Port)

	uptimeDone := make(chan struct{})
	s.metricsCollector.RecordUptime(uptimeDone)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("error starting server", "error", err)
		close(uptimeDone)
	}
}

// Shutdown gracefully shuts down the server and cancels every live
// transfer session.
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("shutting down API server")
	s.sessions.cancelAll(ctx)
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
	}
}

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := s.healthRegistry.RunChecks(r.Context())

	status := health.Overall(checks)

	httpStatus := http.StatusOK
	if status == health.StatusDown {
		httpStatus = http.StatusServiceUnavailable
	}

	s.renderJSON(w, Response{
		Success: status == health.StatusUp,
		Message: "Service health status: " + string(status),
		Data: map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().Unix(),
			"version":   s.config.API.Version,
			"checks":    checks,
			"system": map[string]interface{}{
				"go_version":    runtime.Version(),
				"go_goroutines": runtime.NumGoroutine(),
			},
		},
	}, httpStatus)
}

// handleCreateTransfer builds the engine for the requested combination
// and initialises a new transfer session. Unsupported combinations fail
// here, before any session exists.
func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticatedUser(w, r)
	if !ok {
		return
	}

	var req struct {
		SourceAccount string `json:"source_account"`
		TargetAccount string `json:"target_account,omitempty"`
		Address       string `json:"address,omitempty"`
		Action        string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.SourceAccount == "" || req.Action == "" {
		s.renderError(w, "source_account and action are required", http.StatusBadRequest)
		return
	}
	if (req.TargetAccount == "") == (req.Address == "") {
		s.renderError(w, "exactly one of target_account and address is required", http.StatusBadRequest)
		return
	}

	source, err := s.directory.Account(r.Context(), userID, req.SourceAccount)
	if err != nil {
		s.renderError(w, "Source account not found", http.StatusNotFound)
		return
	}

	target := engine.Target{Address: req.Address}
	if req.TargetAccount != "" {
		targetAcc, err := s.directory.Account(r.Context(), userID, req.TargetAccount)
		if err != nil {
			s.renderError(w, "Target account not found", http.StatusNotFound)
			return
		}
		target.Account = targetAcc
	}

	action := engine.Action(strings.ToUpper(req.Action))
	eng, err := s.registry.New(s.deps, source, target, action)
	if err != nil {
		s.renderError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	proc := processor.New(eng, s.logger,
		processor.WithMetrics(s.metricsCollector),
		processor.WithCacheInvalidator(s.caches),
	)
	if err := proc.Initialise(r.Context()); err != nil {
		s.renderTransferError(w, err)
		return
	}

	sess := s.sessions.create(userID, source, proc)
	snap, _ := proc.Snapshot()

	s.renderJSON(w, Response{
		Success: true,
		Data: map[string]interface{}{
			"transfer_id": sess.id,
			"snapshot":    snap,
		},
	}, http.StatusCreated)
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	snap, err := sess.proc.Snapshot()
	if err != nil {
		s.renderTransferError(w, err)
		return
	}
	s.renderSnapshot(w, snap)
}

func (s *Server) handleUpdateAmount(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	currency := sess.source.Asset().Currency
	if req.Currency != "" && req.Currency != currency.Code {
		a, err := s.deps.Catalogue.Lookup(r.Context(), req.Currency)
		if err != nil {
			s.renderError(w, "Unknown currency", http.StatusBadRequest)
			return
		}
		currency = a.Currency
	}

	amount, err := money.Parse(req.Amount, currency)
	if err != nil {
		s.renderError(w, "Invalid amount", http.StatusBadRequest)
		return
	}

	if err := sess.proc.UpdateAmount(r.Context(), amount); err != nil {
		s.renderTransferError(w, err)
		return
	}

	snap, err := sess.proc.Snapshot()
	if err != nil {
		s.renderTransferError(w, err)
		return
	}
	s.renderSnapshot(w, snap)
}

func (s *Server) handleUpdateFeeLevel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Level        string `json:"level"`
		CustomAmount string `json:"custom_amount,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	level := pending.FeeLevel(strings.ToUpper(req.Level))

	var custom *money.Money
	if level == pending.FeeCustom {
		if req.CustomAmount == "" {
			s.renderError(w, "custom_amount is required for the custom level", http.StatusBadRequest)
			return
		}
		amount, err := money.Parse(req.CustomAmount, sess.source.Asset().FeeCurrency)
		if err != nil {
			s.renderError(w, "Invalid custom amount", http.StatusBadRequest)
			return
		}
		custom = &amount
	}

	if err := sess.proc.UpdateFeeLevel(r.Context(), level, custom); err != nil {
		s.renderTransferError(w, err)
		return
	}

	snap, err := sess.proc.Snapshot()
	if err != nil {
		s.renderTransferError(w, err)
		return
	}
	s.renderSnapshot(w, snap)
}

func (s *Server) handleSetOption(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Tag   string `json:"tag"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	opt := pending.Confirmation{
		Tag:   pending.Tag(strings.ToUpper(req.Tag)),
		Value: req.Value,
	}
	if err := sess.proc.SetOption(r.Context(), opt); err != nil {
		s.renderTransferError(w, err)
		return
	}

	snap, err := sess.proc.Snapshot()
	if err != nil {
		s.renderTransferError(w, err)
		return
	}
	s.renderSnapshot(w, snap)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := sess.proc.ValidateAll(r.Context()); err != nil {
		s.renderTransferError(w, err)
		return
	}

	snap, err := sess.proc.Snapshot()
	if err != nil {
		s.renderTransferError(w, err)
		return
	}
	s.renderSnapshot(w, snap)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req struct {
		SecondaryCredential string `json:"secondary_credential,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.renderError(w, "Invalid request", http.StatusBadRequest)
			return
		}
	}

	result, err := sess.proc.Execute(r.Context(), req.SecondaryCredential)
	if err != nil {
		var approval *errors.ApprovalRequired
		if errors.As(err, &approval) {
			// The transfer waits on an out-of-band approval; the
			// session stays live so it can be executed again after.
			s.renderJSON(w, Response{
				Success: false,
				Message: "Approval required",
				Data: map[string]interface{}{
					"approval_url": approval.ApprovalURL,
					"payment_id":   approval.PaymentID,
				},
			}, http.StatusAccepted)
			return
		}
		s.renderTransferError(w, err)
		return
	}

	s.renderJSON(w, Response{
		Success: true,
		Message: "Transfer executed",
		Data:    result,
	}, http.StatusOK)
}

func (s *Server) handleCancelTransfer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	sess.proc.Cancel(r.Context())
	s.sessions.remove(sess.id)

	s.renderJSON(w, Response{
		Success: true,
		Message: "Transfer cancelled",
	}, http.StatusOK)
}

// session resolves the transfer session from the URL and checks the
// caller owns it.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	userID, ok := s.authenticatedUser(w, r)
	if !ok {
		return nil, false
	}

	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.get(id)
	if !ok {
		s.renderError(w, "Transfer not found", http.StatusNotFound)
		return nil, false
	}
	if sess.owner != userID {
		s.renderError(w, "Transfer not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (s *Server) authenticatedUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		s.renderError(w, "Authentication error", http.StatusUnauthorized)
		return "", false
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		s.renderError(w, "Invalid token claims", http.StatusBadRequest)
		return "", false
	}
	return userID, true
}

func (s *Server) renderSnapshot(w http.ResponseWriter, snap pending.Tx) {
	s.renderJSON(w, Response{Success: true, Data: snap}, http.StatusOK)
}

// renderTransferError maps pipeline errors onto HTTP statuses. Domain
// errors from the closed transfer taxonomy surface their message; all
// other failures are opaque.
func (s *Server) renderTransferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrNotInitialised),
		errors.Is(err, errors.ErrAlreadyInitialised),
		errors.Is(err, errors.ErrProcessorClosed):
		s.renderError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, errors.ErrTransferInFlight):
		s.renderError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pending.ErrFeeLevelUnavailable),
		errors.Is(err, errors.ErrOptionNotOffered),
		errors.Is(err, errors.ErrFiatInputUnsupported):
		s.renderError(w, err.Error(), http.StatusBadRequest)
	default:
		var domainErr *errors.Error
		if errors.As(err, &domainErr) && domainErr.Domain == errors.TransferDomain {
			s.renderError(w, domainErr.Message, http.StatusUnprocessableEntity)
			return
		}
		s.logger.Error("transfer command failed", "error", err)
		s.renderError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) renderJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("error encoding JSON response", "error", err)
	}
}

func (s *Server) renderError(w http.ResponseWriter, message string, status int) {
	s.metricsCollector.RecordError("api", "http", http.StatusText(status))
	s.renderJSON(w, Response{Success: false, Error: message}, status)
}
