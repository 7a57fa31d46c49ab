package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/giselles-ai/giselle-sub007/internal/auth"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
	"github.com/giselles-ai/giselle-sub007/internal/metrics"
	"github.com/giselles-ai/giselle-sub007/internal/services"
	"github.com/giselles-ai/giselle-sub007/internal/services/live"
)

// Deps are the services behind the HTTP API. Metrics and Tokens are
// optional.
type Deps struct {
	Workspaces  *services.WorkspaceService
	Acts        *services.ActService
	Generations *services.GenerationService
	Triggers    *services.TriggerService
	Apps        *services.AppService
	Secrets     *services.SecretService
	Live        *live.Distributor
	Authorizer  ports.Authorizer
	Tokens      *auth.Tokens
	Metrics     *metrics.Metrics
}

type Server struct {
	workspaces  *services.WorkspaceService
	acts        *services.ActService
	generations *services.GenerationService
	triggers    *services.TriggerService
	apps        *services.AppService
	secrets     *services.SecretService
	live        *live.Distributor
	authz       ports.Authorizer
	tokens      *auth.Tokens
	metrics     *metrics.Metrics
	validate    *validator.Validate
}

func NewServer(d Deps) *Server {
	authz := d.Authorizer
	if authz == nil {
		authz = auth.AllowAll{}
	}
	return &Server{
		workspaces:  d.Workspaces,
		acts:        d.Acts,
		generations: d.Generations,
		triggers:    d.Triggers,
		apps:        d.Apps,
		secrets:     d.Secrets,
		live:        d.Live,
		authz:       authz,
		tokens:      d.Tokens,
		metrics:     d.Metrics,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	if s.metrics != nil {
		r.Use(s.instrument)
	}

	r.Route("/api", func(r chi.Router) {
		// authenticated by the webhook signature, not a bearer token
		r.Post("/hooks/github/{triggerID}", s.handleGitHubHook)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.tokens))

			r.Post("/workflows/compile", s.compileWorkflow)
			r.Post("/workflows/slice", s.sliceWorkflow)

			r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
				r.Get("/", s.getWorkspace)
				r.Put("/", s.saveWorkspace)
				r.Get("/acts", s.listActs)
				r.Post("/acts", s.createAct)
				r.Get("/triggers", s.listTriggers)
				r.Get("/apps", s.listApps)
				r.Get("/secrets", s.listSecrets)
				r.Post("/secrets", s.addSecret)
				r.Delete("/secrets/{secretID}", s.deleteSecret)
			})
			r.Route("/acts/{actID}", func(r chi.Router) {
				r.Get("/", s.getAct)
				r.Post("/start", s.startAct)
				r.Post("/cancel", s.cancelAct)
				r.Get("/stream", s.streamAct)
			})
			r.Route("/generations/{generationID}", func(r chi.Router) {
				r.Get("/", s.getGeneration)
				r.Post("/cancel", s.cancelGeneration)
				r.Get("/chunks", s.getGenerationChunks)
			})
			r.Route("/triggers", func(r chi.Router) {
				r.Post("/", s.configureTrigger)
				r.Get("/{triggerID}", s.getTrigger)
				r.Delete("/{triggerID}", s.deleteTrigger)
				r.Post("/{triggerID}/fire", s.fireTrigger)
			})
			r.Route("/apps/{appID}", func(r chi.Router) {
				r.Get("/", s.getApp)
				r.Put("/", s.saveApp)
				r.Delete("/", s.deleteApp)
				r.Post("/run", s.runApp)
			})
		})
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// instrument records every request under its route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.metrics.RecordHTTPRequest(r.Method, route, ww.Status(), time.Since(start))
	})
}
