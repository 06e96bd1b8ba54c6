package resthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sir_venger/mediarelay/internal/config"
	"github.com/sir_venger/mediarelay/internal/logging"
	"github.com/sir_venger/mediarelay/internal/models"
	"github.com/sir_venger/mediarelay/internal/storage"
	"github.com/sir_venger/mediarelay/internal/usecase/filesvc"
	"github.com/sir_venger/mediarelay/pkg/httperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const testToken = "secret-token"

type testEnv struct {
	handler http.Handler
	srv     *Server
	store   *storage.Store
	logs    *bytes.Buffer
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.UploadToken = testToken
	cfg.MaxFileSize = 1 << 20
	cfg.UploadDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	store, err := storage.NewStore(cfg.UploadDir)
	require.NoError(t, err)

	var logs bytes.Buffer
	log, err := logging.New(&logs, "debug", "json")
	require.NoError(t, err)

	files := filesvc.New(filesvc.Deps{Store: store, MaxFileSize: cfg.MaxFileSize})
	h, srv := NewServer(cfg, files, log)

	return &testEnv{handler: h, srv: srv, store: store, logs: &logs}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, token, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, ct := multipartBody(t, "file", filename, content)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) committed(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.store.Root())
	require.NoError(t, err)

	var names []string
	for _, de := range entries {
		if de.Name() != ".partial" {
			names = append(names, de.Name())
		}
	}
	return names
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httperrors.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestUpload_Auth(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing header", "", http.StatusUnauthorized, "authentication token not provided"},
		{"wrong scheme", "Basic " + testToken, http.StatusUnauthorized, "authentication token not provided"},
		{"wrong token", "Bearer nope", http.StatusForbidden, "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			body, ct := multipartBody(t, "file", "a.txt", []byte("hello"))
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", ct)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec))
			assert.Empty(t, env.committed(t))
		})
	}
}

func TestUpload_NoFile(t *testing.T) {
	env := newTestEnv(t, nil)

	body, ct := multipartBody(t, "attachment", "a.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no file was uploaded", decodeError(t, rec))

	req = httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no file was uploaded", decodeError(t, rec))
	assert.Empty(t, env.committed(t))
}

func TestUpload_Malformed(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("--b\r\nno-colon-here\r\n\r\ndata\r\n--b--\r\n"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(decodeError(t, rec), "upload error"), rec.Body.String())
}

func TestUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.MaxFileSize = 1024 })

	rec := env.upload(t, testToken, "big.bin", make([]byte, 2048))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file too large: maximum allowed size is 0.0009765625MB", decodeError(t, rec))
	assert.Empty(t, env.committed(t))
}

func TestUpload_UnboundedLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.MaxFileSize = math.MaxInt64 })

	rec := env.upload(t, testToken, "tiny.txt", []byte("hi"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, env.committed(t), 1)
}

func TestUpload_OversizedFormFieldIsTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.MaxFileSize = 1024 })

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", strings.Repeat("n", 2<<20)))
	fw, err := mw.CreateFormFile("file", "small.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("small"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file too large: maximum allowed size is 0.0009765625MB", decodeError(t, rec))
	assert.Empty(t, env.committed(t))
}

func TestUpload_LongOriginalName(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.upload(t, testToken, strings.Repeat("ж", 150)+".txt", []byte("long"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res models.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.LessOrEqual(t, len(res.Filename), storage.MaxNameBytes)
	assert.True(t, strings.HasSuffix(res.Filename, ".txt"), res.Filename)

	dl := httptest.NewRecorder()
	env.handler.ServeHTTP(dl, httptest.NewRequest(http.MethodGet, res.URL, nil))
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "long", dl.Body.String())
}

func TestUpload_ThenDownload(t *testing.T) {
	env := newTestEnv(t, nil)
	payload := bytes.Repeat([]byte("x"), 5000)

	rec := env.upload(t, testToken, "report.pdf", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res models.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "file uploaded successfully", res.Message)
	assert.Regexp(t, `^report-\d+-\d+\.pdf$`, res.Filename)
	assert.Equal(t, "report.pdf", res.OriginalName)
	assert.Equal(t, int64(5000), res.Size)
	assert.Equal(t, "/download/"+res.Filename, res.URL)
	assert.Equal(t, "http://example.com/download/"+res.Filename, res.FullURL)
	assert.Equal(t, []string{res.Filename}, env.committed(t))

	req := httptest.NewRequest(http.MethodGet, res.URL, nil)
	dl := httptest.NewRecorder()
	env.handler.ServeHTTP(dl, req)

	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, payload, dl.Body.Bytes())
	assert.Equal(t, "application/pdf", dl.Header().Get("Content-Type"))
	assert.Equal(t, "5000", dl.Header().Get("Content-Length"))
	assert.Equal(t, "attachment; filename="+res.Filename, dl.Header().Get("Content-Disposition"))
}

func TestUpload_NameWithSpaces(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.upload(t, testToken, "my photo.jpg", []byte("jpeg"))
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Regexp(t, `^my photo-\d+-\d+\.jpg$`, res.Filename)
	assert.True(t, strings.HasPrefix(res.URL, "/download/my%20photo-"), res.URL)

	dl := httptest.NewRecorder()
	env.handler.ServeHTTP(dl, httptest.NewRequest(http.MethodGet, res.URL, nil))
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "jpeg", dl.Body.String())
}

func TestUpload_FullURLBehindProxy(t *testing.T) {
	for _, trust := range []bool{false, true} {
		t.Run(fmt.Sprint("trust=", trust), func(t *testing.T) {
			env := newTestEnv(t, func(c *config.Config) { c.TrustProxy = trust })

			body, ct := multipartBody(t, "file", "a.txt", []byte("a"))
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", ct)
			req.Header.Set("Authorization", "Bearer "+testToken)
			req.Header.Set("X-Forwarded-Proto", "https, http")
			req.Header.Set("X-Forwarded-Host", "media.example")
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)

			var res models.UploadResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			if trust {
				assert.Equal(t, "https://media.example"+res.URL, res.FullURL)
			} else {
				assert.Equal(t, "http://example.com"+res.URL, res.FullURL)
			}
		})
	}
}

func TestUpload_ConcurrentNamesAreDistinct(t *testing.T) {
	env := newTestEnv(t, nil)
	const n = 16

	names := make([]string, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			rec := env.upload(t, testToken, "same.txt", []byte(fmt.Sprint("payload ", i)))
			if rec.Code != http.StatusOK {
				return fmt.Errorf("upload %d: %d %s", i, rec.Code, rec.Body.String())
			}
			var res models.UploadResult
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				return err
			}
			names[i] = res.Filename
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := map[string]bool{}
	for _, name := range names {
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
	assert.Len(t, env.committed(t), n)
}

func TestDownload_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, target := range []string{
		"/download/ghost.txt",
		"/download/..%2F..%2Fetc%2Fpasswd",
		"/download/..%2F.partial",
		"/download/.partial",
	} {
		t.Run(target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "file not found", decodeError(t, rec))
		})
	}
}

func TestDownload_Head(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.upload(t, testToken, "report.pdf", bytes.Repeat([]byte("x"), 5000))
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	head := httptest.NewRecorder()
	env.handler.ServeHTTP(head, httptest.NewRequest(http.MethodHead, res.URL, nil))

	assert.Equal(t, http.StatusOK, head.Code)
	assert.Equal(t, "5000", head.Header().Get("Content-Length"))
	assert.Equal(t, "application/pdf", head.Header().Get("Content-Type"))
	assert.Zero(t, head.Body.Len())

	head = httptest.NewRecorder()
	env.handler.ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/download/ghost.txt", nil))
	assert.Equal(t, http.StatusNotFound, head.Code)

	head = httptest.NewRecorder()
	env.handler.ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/health", nil))
	assert.Equal(t, http.StatusOK, head.Code)
}

type brokenResponseWriter struct {
	header http.Header
	status int
}

func (w *brokenResponseWriter) Header() http.Header { return w.header }

func (w *brokenResponseWriter) WriteHeader(status int) { w.status = status }

func (w *brokenResponseWriter) Write([]byte) (int, error) { return 0, syscall.ECONNRESET }

func TestDownload_ClientAbortIsSilent(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.upload(t, testToken, "movie.mp4", bytes.Repeat([]byte("f"), 100_000))
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	env.logs.Reset()

	t.Run("connection reset", func(t *testing.T) {
		w := &brokenResponseWriter{header: http.Header{}}
		env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, res.URL, nil))

		assert.NotEqual(t, http.StatusInternalServerError, w.status)
	})

	t.Run("canceled request", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, res.URL, nil).WithContext(ctx))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, rec.Body.Len())
	})

	assert.NotContains(t, env.logs.String(), `"level":"ERROR"`)
}

type fakeFiles struct {
	body io.ReadSeekCloser
}

func (f fakeFiles) Upload(context.Context, string, io.Reader) (models.StoredFile, error) {
	return models.StoredFile{}, errors.New("not used")
}

func (f fakeFiles) Open(context.Context, string) (*filesvc.Download, error) {
	return &filesvc.Download{File: models.StoredFile{Name: "disk.bin", Size: 10}, Body: f.body}, nil
}

func (f fakeFiles) MaxFileSize() int64 { return 0 }

type unreadable struct{}

func (unreadable) Read([]byte) (int, error) { return 0, syscall.EIO }

func (unreadable) Seek(int64, int) (int64, error) { return 0, nil }

func (unreadable) Close() error { return nil }

func TestDownload_ReadFailure(t *testing.T) {
	var logs bytes.Buffer
	log, err := logging.New(&logs, "info", "json")
	require.NoError(t, err)

	h, _ := NewServer(config.Default(), fakeFiles{body: unreadable{}}, log)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/disk.bin", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error processing file download", decodeError(t, rec))
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, logs.String(), `"level":"ERROR"`)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.ServiceName = "midiaservice" })
	env.srv.now = func() time.Time {
		return time.Date(2024, 1, 2, 3, 4, 5, 678_000_000, time.FixedZone("X", 3600))
	}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"midiaservice","timestamp":"2024-01-02T02:04:05.678Z"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set("Origin", "https://cms.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, env.committed(t))
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Regexp(t, `^[0-9a-f-]{36}$`, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "edge-42")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "edge-42", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, env.logs.String(), `"request_id":"edge-42"`)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
