package resthttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sir_venger/mediarelay/internal/auth"
	"github.com/sir_venger/mediarelay/internal/config"
	"github.com/sir_venger/mediarelay/internal/logging"
	"github.com/sir_venger/mediarelay/internal/usecase/filesvc"
	"github.com/sir_venger/mediarelay/pkg/httperrors"
	"github.com/sir_venger/mediarelay/pkg/relayproto"
)

const corsMaxAge = 300

// Server обслуживает публичный HTTP API релея: загрузку, скачивание и health.
type Server struct {
	Files filesvc.Service
	Cfg   *config.Config
	Log   logging.Logger

	gate *auth.Gate
	now  func() time.Time
}

// NewServer конструктор
func NewServer(cfg *config.Config, files filesvc.Service, log logging.Logger) (http.Handler, *Server) {
	if log == nil {
		log = logging.Discard()
	}

	srv := &Server{
		Files: files,
		Cfg:   cfg,
		Log:   log,
		gate:  auth.NewGate(cfg.UploadToken),
		now:   time.Now,
	}

	return srv.routes(), srv
}

// routes регистрирует middleware и обработчики.
func (s *Server) routes() http.Handler {
	rtr := chi.NewRouter()

	if s.Cfg.TrustProxy {
		rtr.Use(middleware.RealIP)
	}
	rtr.Use(s.requestID)
	rtr.Use(s.accessLog)
	rtr.Use(middleware.Recoverer)
	rtr.Use(middleware.GetHead)
	rtr.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.Cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", relayproto.HeaderRequestID},
		ExposedHeaders: []string{"Content-Disposition", relayproto.HeaderRequestID},
		MaxAge:         corsMaxAge,
	}))

	rtr.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteJSON(w, http.StatusNotFound, httperrors.Body{Error: "not found"})
	})
	rtr.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteJSON(w, http.StatusMethodNotAllowed, httperrors.Body{Error: "method not allowed"})
	})

	rtr.With(s.gate.Middleware).Post(relayproto.PathUpload, s.postUpload)
	rtr.Get(relayproto.PathDownload, s.getDownload)
	rtr.Get(relayproto.PathHealth, s.health)

	return rtr
}

// writeError отдаёт JSON-ошибку и логирует серверные сбои вместе с причиной.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if status := httperrors.Write(w, err); status >= http.StatusInternalServerError {
		s.reqLog(r).Error(r.Context(), msg, "error", err)
	}
}
