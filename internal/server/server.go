// Package server exposes the matching engine, the observatory rollups, and
// account/profile persistence over an HTTP JSON API.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redecaete/matupiri/internal/account"
	"github.com/redecaete/matupiri/internal/analytics"
	"github.com/redecaete/matupiri/internal/catalog"
	"github.com/redecaete/matupiri/internal/geo"
	"github.com/redecaete/matupiri/internal/rules"
)

// Options carries the loaded data and stores the server serves from. Catalog,
// rules, and schema are read-only for the process lifetime.
type Options struct {
	Catalog        *catalog.Catalog
	Rules          *rules.Map
	Schema         map[string]rules.FieldSpec
	Events         analytics.Store
	Accounts       *account.Store
	Resolver       *geo.Resolver
	TopN           int
	AllowedOrigins []string
}

// Server is the HTTP API. All state is injected; handlers never load files.
type Server struct {
	catalog  *catalog.Catalog
	rules    *rules.Map
	schema   map[string]rules.FieldSpec
	events   analytics.Store
	recorder *analytics.Recorder
	accounts *account.Store
	resolver *geo.Resolver
	topN     int
	origins  []string
	log      *zap.Logger
}

// New creates a Server from pre-loaded application state.
func New(opts Options) *Server {
	return &Server{
		catalog:  opts.Catalog,
		rules:    opts.Rules,
		schema:   opts.Schema,
		events:   opts.Events,
		recorder: analytics.NewRecorder(opts.Events),
		accounts: opts.Accounts,
		resolver: opts.Resolver,
		topN:     opts.TopN,
		origins:  opts.AllowedOrigins,
		log:      zap.L().With(zap.String("component", "server")),
	}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/policies", s.handleListPolicies)
		r.Get("/policies/{idx}", s.handleGetPolicy)
		r.Post("/policies/{idx}/view", s.handleViewPolicy)
		r.Post("/policies/{idx}/match", s.handleMatchPolicy)
		r.Post("/match", s.handleMatch)
		r.Get("/observatory", s.handleObservatory)
		r.Get("/schema", s.handleSchema)

		r.Post("/accounts/person", s.handleCreatePerson)
		r.Post("/accounts/collective", s.handleCreateCollective)
		r.Post("/login/person", s.handleLoginPerson)
		r.Post("/login/collective", s.handleLoginCollective)

		r.Post("/profiles", s.handleSaveProfile)
		r.Put("/profiles/{id}", s.handleUpdateProfile)
		r.Get("/profiles", s.handleListProfiles)
		r.Get("/profiles/{id}", s.handleLoadProfile)
	})

	return r
}

const requestIDHeader = "X-Request-ID"

// requestID stamps every request with a UUID, honoring one supplied by the
// caller.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", ww.Header().Get(requestIDHeader)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
