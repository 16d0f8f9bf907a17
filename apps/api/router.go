package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bazarya/chat-core/pkg/auth"
	"github.com/bazarya/chat-core/pkg/store"
)

// Handlers bundles the API's collaborators. The redis client is optional;
// without it the presence snapshot is served as empty.
type Handlers struct {
	store     store.Store
	summaries store.SummaryStore
	verifier  *auth.Verifier
	redis     *redis.Client
	log       zerolog.Logger
}

func NewHandlers(st store.Store, summaries store.SummaryStore, verifier *auth.Verifier, rdb *redis.Client, log zerolog.Logger) *Handlers {
	return &Handlers{store: st, summaries: summaries, verifier: verifier, redis: rdb, log: log}
}

// NewRouter wires the REST surface: login, conversation management,
// history pagination and the presence snapshot.
func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(h.log))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(h.verifier))

		r.Get("/conversations", h.ListConversations)
		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations/{id}/messages", h.ListMessages)
		r.Post("/conversations/{id}/read", h.MarkRead)
		r.Get("/presence/online", h.OnlineUsers)
	})

	return r
}
