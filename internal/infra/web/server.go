package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chat-ai-orchestrator/internal/infra/logging"
	"chat-ai-orchestrator/internal/infra/registry"
	"chat-ai-orchestrator/internal/usecase"
)

// PromptLimiter throttles prompt submissions per client key.
type PromptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Server is the HTTP gateway in front of the provider registry and the chat
// use case. Its routes mirror the caller-facing surface of the core.
type Server struct {
	chat     *usecase.ChatUseCase
	reg      *registry.Registry
	auth     *AuthManager  // nil disables auth (dev)
	limiter  PromptLimiter // nil disables prompt throttling
	adminKey string
	log      *zerolog.Logger
}

func NewServer(chat *usecase.ChatUseCase, reg *registry.Registry, auth *AuthManager, limiter PromptLimiter, adminKey string, logger *zerolog.Logger) *Server {
	return &Server{
		chat:     chat,
		reg:      reg,
		auth:     auth,
		limiter:  limiter,
		adminKey: adminKey,
		log:      logger,
	}
}

// Routes assembles the chi router.
func (s *Server) Routes(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			if s.auth != nil {
				r.Use(s.requireAuth)
			}
			r.Get("/providers", s.handleListProviders)
			r.Post("/providers/detect", s.handleDetect)
			r.Post("/providers/auto", s.handleAutoSelect)
			r.Get("/providers/active", s.handleGetActive)
			r.Put("/providers/active", s.handleSetActive)

			r.Post("/sessions", s.handleCreateSession)
			r.Delete("/sessions/{id}", s.handleDestroySession)
			r.Post("/sessions/{id}/clone", s.handleCloneSession)
			r.Post("/sessions/{id}/prompt", s.handlePrompt)

			r.Post("/recovery/reset", s.handleReset)
		})
	})
	return r
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ulid.Make().String()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.VerifyRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
