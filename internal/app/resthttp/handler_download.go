package resthttp

import (
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sir_venger/mediarelay/internal/usecase/filesvc"
	"github.com/sir_venger/mediarelay/pkg/httperrors"
)

const defaultContentType = "application/octet-stream"

// getDownload отдаёт сохранённый файл как вложение.
// Обрыв соединения клиентом штатная ситуация: ни лога ошибки, ни ответа.
func (s *Server) getDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	// chi matches on RawPath when the request path carries escapes.
	if r.URL.RawPath != "" {
		if u, err := url.PathUnescape(name); err == nil {
			name = u
		}
	}

	dl, err := s.Files.Open(r.Context(), name)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.writeError(w, r, err, "download")
		return
	}
	defer dl.Body.Close()

	h := w.Header()
	h.Set("Content-Type", contentType(dl.File.Name))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.File.Name}))
	h.Set("Content-Length", strconv.FormatInt(dl.File.Size, 10))
	h.Set("X-Content-Type-Options", "nosniff")

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	tr := filesvc.Copy(r.Context(), w, dl.Body)
	switch tr.Outcome {
	case filesvc.Completed, filesvc.ClientAborted:
		return
	}

	s.reqLog(r).Error(r.Context(), "download",
		"filename", dl.File.Name,
		"written", tr.Written,
		"error", tr.Err,
	)
	if tr.Written == 0 {
		h.Del("Content-Disposition")
		h.Del("Content-Length")
		httperrors.Write(w, tr.Err)
	}
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return defaultContentType
}
