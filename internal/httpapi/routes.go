package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/wordhex-backend/internal/auth"
	"github.com/DoyleJ11/wordhex-backend/internal/hub"
	"github.com/DoyleJ11/wordhex-backend/internal/ws"
)

type Deps struct {
	Hub            *hub.Hub
	Issuer         *auth.Issuer
	Logger         *zap.Logger
	OriginPatterns []string
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(d.Logger.Named("http")))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Post("/session", CreateSession(d.Issuer))
		r.Get("/lobbies/{code}", GetLobby(d.Hub))
	})
	// no handler timeout: the socket lives as long as the game
	r.Get("/ws", ws.Handler(d.Hub, ws.Options{Issuer: d.Issuer, Logger: d.Logger, OriginPatterns: d.OriginPatterns}))
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}
