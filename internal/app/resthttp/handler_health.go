package resthttp

import (
	"net/http"

	"github.com/sir_venger/mediarelay/internal/models"
	"github.com/sir_venger/mediarelay/pkg/httperrors"
)

const healthTimeLayout = "2006-01-02T15:04:05.000Z"

// health отвечает, что процесс жив. Хранилище при этом не проверяется.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httperrors.WriteJSON(w, http.StatusOK, models.Health{
		Status:    "ok",
		Service:   s.Cfg.ServiceName,
		Timestamp: s.now().UTC().Format(healthTimeLayout),
	})
}
