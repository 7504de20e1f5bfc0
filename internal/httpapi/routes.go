package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/hub"
	"github.com/DoyleJ11/hat-tag-backend/internal/store"
	"github.com/DoyleJ11/hat-tag-backend/internal/ws"
)

type Deps struct {
	Hub        *hub.Hub
	Results    store.ResultStore
	RoomBuffer int
	Logger     *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Post("/rooms", CreateRoom(d.Hub, log))
	r.Get("/rooms", ListRooms(d.Hub))
	r.Get("/rooms/{code}", GetRoom(d.Hub))
	r.Get("/results", ListResults(d.Results))
	r.Get("/results/{id}", GetResult(d.Results))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.RoomBuffer, log))
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
