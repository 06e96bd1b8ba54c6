package resthttp

import (
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/sir_venger/mediarelay/internal/models"
	"github.com/sir_venger/mediarelay/pkg/httperrors"
	"github.com/sir_venger/mediarelay/pkg/relayproto"
)

// multipartOverhead is the slack allowed on top of the file limit for
// boundaries, part headers and small form fields.
const multipartOverhead = 1 << 20

// postUpload принимает multipart/form-data с файлом в поле "file"
// и сохраняет его потоково, не буферизуя целиком в памяти.
func (s *Server) postUpload(w http.ResponseWriter, r *http.Request) {
	if limit := s.Files.MaxFileSize(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, bodyLimit(limit))
	}

	part, err := filePart(r)
	if err != nil {
		s.uploadError(w, r, err)
		return
	}
	defer part.Close()

	sf, err := s.Files.Upload(r.Context(), part.FileName(), part)
	if err != nil {
		s.uploadError(w, r, err)
		return
	}

	s.reqLog(r).Info(r.Context(), "file uploaded",
		"filename", sf.Name,
		"original_name", sf.OriginalName,
		"size", sf.Size,
	)

	url := relayproto.DownloadPath(sf.Name)
	httperrors.WriteJSON(w, http.StatusOK, models.UploadResult{
		Success:      true,
		Message:      "file uploaded successfully",
		Filename:     sf.Name,
		OriginalName: sf.OriginalName,
		Size:         sf.Size,
		URL:          url,
		FullURL:      s.baseURL(r) + url,
	})
}

// uploadError reports an exhausted request body as the file size limit.
func (s *Server) uploadError(w http.ResponseWriter, r *http.Request, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		err = models.TooLarge(s.Files.MaxFileSize())
	}
	s.writeError(w, r, err, "upload")
}

// bodyLimit is the request body cap for a file limit, saturating at math.MaxInt64.
func bodyLimit(fileLimit int64) int64 {
	if fileLimit > math.MaxInt64-multipartOverhead {
		return math.MaxInt64
	}
	return fileLimit + multipartOverhead
}

// filePart advances the multipart stream to the first file part of the upload field.
// Other fields are skipped.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, models.ErrNoFile
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, models.ErrNoFile
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrMalformedUpload, err)
		}

		if part.FormName() == relayproto.FormFieldFile && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

// baseURL восстанавливает схему и хост, по которым клиент обратился к сервису.
func (s *Server) baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host

	if s.Cfg.TrustProxy {
		if v := firstValue(r.Header.Get("X-Forwarded-Proto")); v != "" {
			scheme = v
		}
		if v := firstValue(r.Header.Get("X-Forwarded-Host")); v != "" {
			host = v
		}
	}

	return scheme + "://" + host
}

func firstValue(h string) string {
	v, _, _ := strings.Cut(h, ",")
	return strings.TrimSpace(v)
}
