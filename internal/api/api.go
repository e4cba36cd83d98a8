package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/susu3304/dailytap/internal/config"
	"github.com/susu3304/dailytap/internal/geourl"
	"github.com/susu3304/dailytap/internal/kv"
	"github.com/susu3304/dailytap/internal/player"
	"github.com/susu3304/dailytap/internal/share"
	"github.com/susu3304/dailytap/internal/telemetry"
)

type API struct {
	router    *mux.Router
	players   *player.Registry
	config    *config.Config
	jwtSecret []byte
	resolver  *geourl.Resolver
	share     share.Formatter
	sink      telemetry.Sink
	checks    map[string]kv.Pinger
	log       zerolog.Logger
}

type Option func(*API)

// WithResolver sets how map links in guesses are resolved.
func WithResolver(r *geourl.Resolver) Option {
	return func(a *API) { a.resolver = r }
}

// WithSink receives share events.
func WithSink(s telemetry.Sink) Option {
	return func(a *API) { a.sink = s }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *API) { a.log = l }
}

// WithHealthCheck adds a backend to /healthz.
func WithHealthCheck(name string, p kv.Pinger) Option {
	return func(a *API) { a.checks[name] = p }
}

func New(cfg *config.Config, players *player.Registry, opts ...Option) *API {
	api := &API{
		router:    mux.NewRouter(),
		players:   players,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		resolver:  geourl.NewResolver(),
		share:     share.Formatter{Site: cfg.ShareSite, Now: players.Clock().Today},
		sink:      telemetry.Nop{},
		checks:    make(map[string]kv.Pinger),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(api)
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")

	// Public endpoints
	a.router.HandleFunc("/api/session", a.handleSession).Methods("POST")
	a.router.HandleFunc("/api/locations", a.handleLocations).Methods("GET")

	// Protected endpoints
	protected := a.router.PathPrefix("/api/game").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("", a.handleGame).Methods("GET")
	protected.HandleFunc("/guess", a.handleGuess).Methods("POST")
	protected.HandleFunc("/advance", a.handleAdvance).Methods("POST")
	protected.HandleFunc("/share", a.handleShare).Methods("GET")
}

// Handler returns the router wrapped in CORS handling.
func (a *API) Handler() http.Handler {
	origins := a.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	// Tokens travel in the Authorization header, so credentials stay off.
	corsOptions := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.config.WebBind).Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
