package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aanand-mishra/student-records/internal/config"
	"github.com/aanand-mishra/student-records/internal/filestore"
	"github.com/aanand-mishra/student-records/internal/filestore/local"
	"github.com/aanand-mishra/student-records/internal/storage/sqlite"
	"github.com/aanand-mishra/student-records/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR fake image body")

type app struct {
	srv       *httptest.Server
	photosDir string
}

func newApp(t *testing.T) *app {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{
		Env: "dev",
		Database: config.Database{
			Driver:       config.DriverSQLite,
			Path:         filepath.Join(root, "students.db"),
			QueryTimeout: 5 * time.Second,
		},
		FileStore: config.FileStore{
			Backend:        config.BackendLocal,
			Dir:            filepath.Join(root, "static"),
			URLPrefix:      "/static/",
			MaxUploadBytes: 1 << 20,
		},
		CORS: config.CORS{AllowedOrigins: []string{"*"}},
	}

	db, err := sqlite.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	files, err := local.New(cfg.FileStore.Dir)
	require.NoError(t, err)
	photos := filestore.NewPhotos(files, cfg.FileStore.URLPrefix, cfg.FileStore.MaxUploadBytes)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(routes(cfg, log, db, photos))
	t.Cleanup(srv.Close)

	return &app{srv: srv, photosDir: files.Dir()}
}

func (a *app) do(t *testing.T, method, path, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (a *app) postJSON(t *testing.T, body string) *http.Response {
	return a.do(t, http.MethodPost, "/api/students", "application/json", strings.NewReader(body))
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func photoForm(t *testing.T, fields map[string]string, photo []byte, photoType string) (string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="photo"; filename="me.png"`)
	h.Set("Content-Type", photoType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(photo)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

func TestScenario(t *testing.T) {
	a := newApp(t)

	resp := a.postJSON(t, `{"full_name":"Ana Gomez","email":"ana@example.com"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[types.Student](t, resp)
	assert.EqualValues(t, 1, created.ID)
	assert.Equal(t, "Ana Gomez", created.FullName)

	resp = a.postJSON(t, `{"full_name":"Ana Again","email":"ana@example.com"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/students/1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ana Gomez", decode[types.Student](t, resp).FullName)

	resp = a.do(t, http.MethodDelete, "/api/students/1", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/students/1", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPhotoLifecycle(t *testing.T) {
	a := newApp(t)

	ct, body := photoForm(t, map[string]string{
		"full_name": "Ana Gomez",
		"email":     "ana@example.com",
		"age":       "21",
	}, pngBytes, "image/png")
	resp := a.do(t, http.MethodPost, "/api/students", ct, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[types.Student](t, resp)
	require.NotNil(t, created.PhotoPath)
	require.NotNil(t, created.Age)
	assert.Equal(t, 21, *created.Age)
	assert.Equal(t, "/static/"+*created.PhotoPath, created.PhotoURL)

	resp = a.do(t, http.MethodGet, created.PhotoURL, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got)

	resp = a.do(t, http.MethodDelete, "/api/students/1", "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = a.do(t, http.MethodGet, created.PhotoURL, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	entries, err := os.ReadDir(a.photosDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPatchAndPut(t *testing.T) {
	a := newApp(t)

	resp := a.postJSON(t, `{"full_name":"Ana Gomez","email":"ana@example.com","phone":"555-1234"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = a.do(t, http.MethodPatch, "/api/students/1", "application/json", strings.NewReader(`{"age":22}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[types.Student](t, resp)
	require.NotNil(t, updated.Age)
	assert.Equal(t, 22, *updated.Age)
	require.NotNil(t, updated.Phone)
	assert.Equal(t, "555-1234", *updated.Phone)

	resp = a.do(t, http.MethodPut, "/api/students/1", "application/json", strings.NewReader(`{"email":"ana@example.com"}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListEmpty(t *testing.T) {
	a := newApp(t)

	resp := a.do(t, http.MethodGet, "/api/students", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(body)))
}

func TestIndexAndHealth(t *testing.T) {
	a := newApp(t)

	resp := a.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	h := decode[map[string]any](t, resp)
	assert.Equal(t, "healthy", h["status"])

	resp = a.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	a := newApp(t)

	resp := a.do(t, http.MethodGet, "/api/students/7", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body),
		`student_records_http_requests_total{method="GET",route="GET /api/students/{id}",status="404"} 1`)
}

func TestMiddlewareHeaders(t *testing.T) {
	a := newApp(t)

	req, err := http.NewRequest(http.MethodGet, a.srv.URL+"/api/students", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	a := newApp(t)

	req, err := http.NewRequest(http.MethodOptions, a.srv.URL+"/api/students/1", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPatch)
}

func TestSetupLogger(t *testing.T) {
	for _, env := range []string{"dev", "staging", "prod"} {
		assert.NotNil(t, setupLogger(env), env)
	}
	assert.False(t, setupLogger("prod").Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, setupLogger("dev").Enabled(context.Background(), slog.LevelDebug))
}
