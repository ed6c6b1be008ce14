package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cwrk-planet/lofi-relay/pkg/httputil"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(h *Handler, wsHandler http.HandlerFunc, cfg RouterConfig) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(httputil.MiddlewareRequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.MiddlewareLogging)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", httputil.HeaderRequestID},
		ExposedHeaders: []string{httputil.HeaderRequestID},
		MaxAge:         300,
	}))

	// WS endpoint: живёт дольше любого таймаута запроса
	r.Get("/ws/{room_id}/{user_id}/{username}", wsHandler)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewareChi.Timeout(cfg.RequestTimeout))

		api.Get("/", h.Index)
		api.Post("/init-default-rooms", h.InitDefaultRooms)
		api.Get("/stats", h.Stats)

		api.Route("/rooms", func(rm chi.Router) {
			rm.Post("/", h.CreateRoom)
			rm.Get("/", h.ListRooms)

			rm.Route("/{id}", func(rr chi.Router) {
				rr.Get("/", h.GetRoom)
				rr.Delete("/", h.DeleteRoom)
				rr.Get("/messages", h.GetMessages)
				rr.Get("/participants", h.GetParticipants)
			})
		})
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
