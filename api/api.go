package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/heist/game"
	"github.com/jmcleod/heist/session"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	puzzles  *game.PuzzleService
	vault    *game.VaultService
	sessions *session.Manager
	logger   *slog.Logger
	alertFn  AlertFunc
	audit    *auditLogger
}

//go:embed openapi.yaml
var openapiDoc []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events and store failures.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithAlertFunc registers a callback for anomaly alerts such as answer
// guessing spikes.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates a new API instance.
func New(puzzles *game.PuzzleService, vault *game.VaultService, sessions *session.Manager, opts ...Option) *API {
	a := &API{
		puzzles:  puzzles,
		vault:    vault,
		sessions: sessions,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.audit = newAuditLogger(a.logger)
	if a.alertFn != nil {
		a.audit.metrics = newMetricsCollector(a.alertFn)
	}
	return a
}

// Router returns a chi.Router with all API routes. It is meant to be mounted
// at /api.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiDoc)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(a.SessionMiddleware)

		r.Get("/puzzles", a.ListPuzzles)
		r.Get("/puzzle/{id}", a.GetPuzzle)
		r.Post("/submit_answer/{id}", a.SubmitAnswer)
		r.Post("/submit_flag", a.SubmitFlag)
		r.Get("/flags", a.ListFlags)
		r.Get("/check_vault", a.CheckVault)
		r.Delete("/session", a.ResetSession)
	})

	return r
}
