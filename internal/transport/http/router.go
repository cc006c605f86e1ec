package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the REST API and the ranking websocket.
func NewRouter(h *Handler, ws *WSHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/healthz/quiz", h.QuizHealth)
	r.Get("/ws/rankings", ws.ServeRankings)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/quizzes", func(r chi.Router) {
			r.Post("/", h.GenerateQuiz)
			r.Get("/{quizID}/replay", h.ReplayQuiz)
			r.Post("/{quizID}/attempts", h.SubmitAttempt)
		})
		r.Get("/students/{studentID}/modules/{moduleID}/stats", h.StudentStats)
		r.Delete("/students/{studentID}/score", h.ResetScore)

		r.Route("/classes/{classID}", func(r chi.Router) {
			r.Get("/ranking", h.GetRanking)
			r.Post("/ranking/rebuild", h.RebuildRanking)
			r.Get("/ranking/verify", h.VerifyRanking)
			r.Get("/ranking.xlsx", h.ExportRanking)
		})

		r.Get("/rankings/stats", h.RankingStats)
		r.Post("/rankings/regenerate", h.RegenerateRankings)
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()))
		})
	}
}
