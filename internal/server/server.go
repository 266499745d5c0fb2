// Package server is the composition root: it builds the store, the OAuth
// adapters, the services and the handlers, mounts the routes and runs the
// HTTP server until a shutdown signal arrives.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → sqlite.DB, oauth.Registry, auth.TokenService, storage.Uploader, metrics
//	            → services (session, account, follow, rewards), chat.Room
//	            → handlers → chi routes
//
// NewRouter takes already-built dependencies so tests can hand it fake
// OAuth adapters and an in-memory database.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/codeofclans/internal/auth"
	"github.com/sakif/codeofclans/internal/chat"
	"github.com/sakif/codeofclans/internal/config"
	"github.com/sakif/codeofclans/internal/handler"
	"github.com/sakif/codeofclans/internal/metrics"
	"github.com/sakif/codeofclans/internal/middleware"
	"github.com/sakif/codeofclans/internal/oauth"
	sqliteRepo "github.com/sakif/codeofclans/internal/repository/sqlite"
	"github.com/sakif/codeofclans/internal/service"
	"github.com/sakif/codeofclans/internal/storage"
)

// Deps are the long-lived components the routes are built from.
type Deps struct {
	DB        *sqliteRepo.DB
	Providers *oauth.Registry
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	Uploader  storage.Uploader // nil disables uploads
	Metrics   metrics.Recorder // nil records nothing

	// ChatOrigins are the cross-origin hosts allowed to open /ws/chat.
	ChatOrigins []string
}

// Server owns the database and the HTTP listener.
type Server struct {
	router http.Handler
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database and builds every dependency from cfg.
// cfg must already have passed Validate.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	var uploader storage.Uploader
	if cfg.S3.Enabled() {
		s3, err := storage.NewS3(ctx, cfg.S3)
		if err != nil {
			db.Close()
			return nil, err
		}
		uploader = s3
	} else {
		logger.Warn("S3_BUCKET not set, avatar and banner uploads are disabled")
	}

	var rec metrics.Recorder = metrics.NewNoop()
	if cfg.MetricsEnabled {
		rec = metrics.New()
	}

	providers := NewProviders(cfg)
	if len(providers.Names()) == 0 {
		logger.Warn("no OAuth provider configured, only admin login is available")
	}

	deps := Deps{
		DB:        db,
		Providers: providers,
		Tokens:    tokens,
		Passwords: auth.NewPasswordService(),
		Uploader:  uploader,
		Metrics:   rec,

		ChatOrigins: cfg.ChatOrigins,
	}

	return &Server{
		router: NewRouter(deps, logger),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}, nil
}

// NewProviders registers an adapter for every provider with a client id.
func NewProviders(cfg *config.Config) *oauth.Registry {
	opt := oauth.WithTimeout(cfg.OAuthTimeout)
	conf := func(p config.Provider) oauth.Config {
		return oauth.Config{ClientID: p.ClientID, ClientSecret: p.ClientSecret, RedirectURL: p.RedirectURI}
	}

	var adapters []oauth.Adapter
	if cfg.GitHub.Enabled() {
		adapters = append(adapters, oauth.NewGitHub(conf(cfg.GitHub), opt))
	}
	if cfg.Google.Enabled() {
		adapters = append(adapters, oauth.NewGoogle(conf(cfg.Google), opt))
	}
	if cfg.Discord.Enabled() {
		adapters = append(adapters, oauth.NewDiscord(conf(cfg.Discord), opt))
	}
	return oauth.NewRegistry(adapters...)
}

// NewRouter wires services, handlers and middleware.
//
// ROUTES:
//
//	GET    /healthz
//	GET    /metrics
//	POST   /api/auth/refresh
//	POST   /api/auth/admin/login
//	POST   /api/auth/logout                          (auth)
//	GET    /api/auth/user                            (auth)
//	PATCH  /api/auth/user/update                     (auth)
//	POST   /api/auth/user/redeem-referral            (auth)
//	DELETE /api/auth/user/delete                     (auth)
//	GET    /api/auth/users/{username}                (optional auth)
//	POST   /api/auth/users/{username}/follow         (auth)
//	GET    /api/auth/users/{username}/followers      (optional auth)
//	GET    /api/auth/users/{username}/following      (optional auth)
//	GET    /api/auth/admin/users                     (staff)
//	POST   /api/auth/admin/users/{username}/toggle-block (staff)
//	GET    /api/auth/{provider}
//	POST   /api/auth/{provider}/callback
//	POST   /api/rewards/check-in                     (auth)
//	GET    /api/rewards/check-in                     (auth)
//	GET    /ws/chat?token=                           (auth via query)
//
// Static segments win over {provider} in chi, so /api/auth/user never
// reaches the provider routes.
func NewRouter(d Deps, logger *slog.Logger) http.Handler {
	rec := d.Metrics
	if rec == nil {
		rec = metrics.NewNoop()
	}
	passwords := d.Passwords
	if passwords == nil {
		passwords = auth.NewPasswordService()
	}

	resolver := service.NewIdentityResolver(d.DB, logger)
	credentials := service.NewPasswordCredentials(d.DB, passwords)
	sessions := service.NewSessionService(d.Providers, resolver, d.DB, d.Tokens, credentials, rec, logger)
	accounts := service.NewAccountService(d.DB, d.Uploader, logger)
	follows := service.NewFollowService(d.DB, logger)
	rewards := service.NewRewardService(d.DB, logger)
	room := chat.NewRoom(d.DB, rec, logger)

	authH := handler.NewAuthHandler(sessions, accounts, logger)
	accountH := handler.NewAccountHandler(accounts, follows, logger)
	adminH := handler.NewAdminHandler(accounts, logger)
	rewardsH := handler.NewRewardsHandler(rewards, logger)
	healthH := handler.NewHealthHandler(d.DB)
	chatH := chat.NewHandler(room, d.ChatOrigins, logger)

	authn := auth.NewAuthenticator(d.Tokens, d.DB, rec)

	r := chi.NewRouter()

	// Order matters: the request id must exist before Logger reads it, and
	// Recoverer sits inside Logger so a panic is still logged as a 500.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware(rec))

	r.Get("/healthz", healthH.HandleHealth)
	r.Handle("/metrics", rec.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/refresh", authH.HandleRefresh)
		r.Post("/admin/login", authH.HandleAdminLogin)

		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth)
			r.Post("/logout", authH.HandleLogout)
			r.Get("/user", authH.HandleMe)
			r.Patch("/user/update", accountH.HandleUpdate)
			r.Post("/user/redeem-referral", accountH.HandleRedeemReferral)
			r.Delete("/user/delete", accountH.HandleDelete)
			r.Post("/users/{username}/follow", accountH.HandleFollow)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn.OptionalAuth)
			r.Get("/users/{username}", accountH.HandleProfile)
			r.Get("/users/{username}/followers", accountH.HandleFollowers)
			r.Get("/users/{username}/following", accountH.HandleFollowing)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth)
			r.Use(auth.RequireStaff)
			r.Get("/admin/users", adminH.HandleList)
			r.Post("/admin/users/{username}/toggle-block", adminH.HandleToggleBlock)
		})

		r.Get("/{provider}", authH.HandleAuthURL)
		r.Post("/{provider}/callback", authH.HandleCallback)
	})

	r.Route("/api/rewards", func(r chi.Router) {
		r.Use(authn.RequireAuth)
		r.Post("/check-in", rewardsH.HandleCheckIn)
		r.Get("/check-in", rewardsH.HandleStatus)
	})

	r.With(authn.RequireQueryToken("token")).Get("/ws/chat", chatH.ServeHTTP)

	return r
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
			slog.Bool("metrics", s.cfg.MetricsEnabled),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
