// Package http provides the HTTP delivery layer: it exposes the registry's
// operations, the event log viewer endpoints, and the short-code redirect
// route.
package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/vadimbarashkov/linkhub/internal/eventlog"
	"github.com/vadimbarashkov/linkhub/internal/models"
)

// LinkService defines the registry operations the handlers depend on.
type LinkService interface {
	// Shorten registers originalURL under customCode, or under a generated
	// code when customCode is empty.
	Shorten(ctx context.Context, originalURL, customCode string) (*models.LinkRecord, error)

	// Lookup returns the record for shortCode without touching click state.
	Lookup(ctx context.Context, shortCode string) (*models.LinkRecord, error)

	// RecordClick accounts one visit to shortCode and reports whether the
	// code exists.
	RecordClick(ctx context.Context, shortCode, userAgent, referrer string) bool

	// ListAll returns every record, newest first.
	ListAll(ctx context.Context) []*models.LinkRecord

	// ComputeStats aggregates totals, top links, and recent activity.
	ComputeStats(ctx context.Context) *models.Stats

	// Delete removes the record for shortCode and reports whether it existed.
	Delete(ctx context.Context, shortCode string) bool
}

// LogService defines the event log operations the handlers depend on.
type LogService interface {
	// GetAll returns every log entry, newest first.
	GetAll() []eventlog.Entry

	// Clear empties the log and erases its snapshot.
	Clear(ctx context.Context)
}

// NewRouter initializes a router with all routes and middleware configured.
func NewRouter(logger *httplog.Logger, linkSvc LinkService, logSvc LogService) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/swagger.yml"),
	))

	r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger.yml")
	})

	r.Route("/api/v1", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)

		r.Route("/shorten", func(r chi.Router) {
			r.Post("/", handleShortenURL(linkSvc, validate))

			r.Route("/{shortCode}", func(r chi.Router) {
				r.Get("/", handleResolveShortCode(linkSvc))
				r.Delete("/", handleDeleteShortCode(linkSvc))
			})
		})

		r.Get("/urls", handleListURLs(linkSvc))
		r.Get("/stats", handleGetStats(linkSvc))

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", handleGetLogs(logSvc))
			r.Delete("/", handleClearLogs(logSvc))
		})
	})

	// The navigation route: one click-counted redirect per short code.
	r.Get("/{shortCode}", handleRedirect(linkSvc))

	return r
}

// getValidate initializes the request validator, reporting field names from
// JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}
