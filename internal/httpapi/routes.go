package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/handshape-backend/internal/lobby"
	"github.com/DoyleJ11/handshape-backend/internal/prompt"
	"github.com/DoyleJ11/handshape-backend/internal/ws"
)

type Deps struct {
	Lobby     *lobby.Lobby
	Catalog   prompt.Catalog
	PublicURL string // encoded into the join QR; empty derives it from the request
	WS        ws.Options
	Logger    *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger.Named("http")))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz(d.Lobby))
	r.Get("/qr", JoinQR(d.PublicURL))
	r.Get("/prompts", Prompts(d.Catalog))
	r.Get("/state", State(d.Lobby))
	r.Get("/ws", ws.Handler(d.Lobby, d.WS))
	return r
}

func requestLogger(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Debug("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
