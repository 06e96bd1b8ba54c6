// Package relayclient is a Go client for the relay HTTP API.
package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/sir_venger/mediarelay/internal/models"
	"github.com/sir_venger/mediarelay/pkg/relayproto"
)

const errorBodyLimit = 4 << 10

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay: %d %s", e.Status, e.Message)
}

// UploadRequest describes one file to send. Size is only used for progress reporting
// and may be zero when unknown.
type UploadRequest struct {
	Filename string
	Reader   io.Reader
	Size     int64
}

type Client interface {
	// Upload Отправить файл в релей
	Upload(ctx context.Context, req UploadRequest) (models.UploadResult, error)
	// Download Получить поток с содержимым сохранённого файла
	Download(ctx context.Context, storedName string) (io.ReadCloser, error)
	// Health Проверить, что релей отвечает
	Health(ctx context.Context) (models.Health, error)
}

// Options настраивают клиент. Progress, если задан, получает ASCII-индикатор передачи.
type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Progress   io.Writer
}

type httpClient struct {
	base     string
	token    string
	c        *http.Client
	progress io.Writer
}

// New создаёт HTTP-клиент релея.
func New(opts Options) Client {
	c := opts.HTTPClient
	if c == nil {
		c = &http.Client{}
	}

	return &httpClient{
		base:     strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		c:        c,
		progress: opts.Progress,
	}
}

// Upload стримит multipart-тело через io.Pipe, не собирая его в памяти.
func (h *httpClient) Upload(ctx context.Context, req UploadRequest) (models.UploadResult, error) {
	var res models.UploadResult
	if req.Reader == nil {
		return res, errors.New("relayclient: nil upload reader")
	}

	bar := newProgressBar(h.progress, "Uploading "+req.Filename, req.Size)
	src := io.TeeReader(req.Reader, progressWriter{bar: bar})

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		fw, err := mw.CreateFormFile(relayproto.FormFieldFile, req.Filename)
		if err == nil {
			_, err = io.Copy(fw, src)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+relayproto.PathUpload, pr)
	if err != nil {
		bar.Fail(err)
		return res, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if h.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.c.Do(httpReq)
	if err != nil {
		bar.Fail(err)
		return res, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = statusError(resp)
		bar.Fail(err)
		return res, err
	}

	if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
		bar.Fail(err)
		return res, fmt.Errorf("relayclient: decode upload response: %w", err)
	}

	bar.Finish()
	return res, nil
}

// Download скачивает файл и возвращает поток с телом. Вызывающий закрывает поток.
func (h *httpClient) Download(ctx context.Context, storedName string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+relayproto.DownloadPath(storedName), nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	bar := newProgressBar(h.progress, "Downloading "+storedName, resp.ContentLength)
	return newProgressReadCloser(resp.Body, bar), nil
}

func (h *httpClient) Health(ctx context.Context) (models.Health, error) {
	var out models.Health

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+relayproto.PathHealth, nil)
	if err != nil {
		return out, err
	}

	resp, err := h.c.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, statusError(resp)
	}

	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

// statusError builds a StatusError from the relay's JSON error body, falling back
// to the status text when the body is not JSON.
func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}

	return &StatusError{Status: resp.StatusCode, Message: body.Error}
}
