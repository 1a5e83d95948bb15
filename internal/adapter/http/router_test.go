package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chiwei-platform/phost/internal/adapter/archive/archivetest"
	"github.com/chiwei-platform/phost/internal/adapter/artifact"
	"github.com/chiwei-platform/phost/internal/adapter/auth"
	"github.com/chiwei-platform/phost/internal/adapter/repository"
	"github.com/chiwei-platform/phost/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context) {}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	catalog := repository.NewStore(repository.OpenTestDB(t))
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	authn := auth.New(auth.Config{
		APIToken:      testAPIKey,
		Username:      "admin",
		Password:      "pw",
		SessionSecret: "secret",
		SessionTTL:    time.Hour,
	})
	handler := NewRouter(
		NewDeploymentHandler(service.NewDeploymentService(catalog, store, nopNotifier{}), "https", "example.com"),
		NewProxyRouteHandler(service.NewProxyRouteService(catalog, nopNotifier{})),
		NewAuthHandler(authn),
		NewNotFoundHandler(service.NewNotFoundResolver(catalog, store, "/hosted")),
		authn,
		catalog,
		64<<20,
	)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func multipartBody(t *testing.T, fields map[string]string, archive []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if archive != nil {
		fw, err := mw.CreateFormFile("file", "site.tar.gz")
		require.NoError(t, err)
		_, err = fw.Write(archive)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func do(t *testing.T, srv *httptest.Server, method, path string, body io.Reader, contentType string) (int, apiResponse) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out apiResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func createSite(t *testing.T, srv *httptest.Server) {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{
		"name":               "Demo Site",
		"subdomain":          "demo",
		"version":            "0.1.0",
		"categories":         "docs,blog",
		"not_found_document": "404.html",
	}, archivetest.TarGz(t, map[string]string{"index.html": "v1", "404.html": "custom missing"}))
	status, resp := do(t, srv, http.MethodPost, "/api/v1/deployments", body, ct)
	require.Equal(t, http.StatusCreated, status, resp.Error)
}

func TestDeploymentLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	createSite(t, srv)

	status, resp := do(t, srv, http.MethodGet, "/api/v1/deployments/demo?lookup=subdomain", nil, "")
	require.Equal(t, http.StatusOK, status)
	var d struct {
		ID         string   `json:"id"`
		URL        string   `json:"url"`
		Categories []string `json:"categories"`
		Versions   []struct {
			Version string `json:"version"`
			Active  bool   `json:"active"`
		} `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &d))
	assert.Equal(t, "https://demo.example.com/", d.URL)
	assert.Equal(t, []string{"blog", "docs"}, d.Categories)
	require.Len(t, d.Versions, 1)
	assert.True(t, d.Versions[0].Active)

	body, ct := multipartBody(t, nil, archivetest.TarGz(t, map[string]string{"index.html": "v2"}))
	status, resp = do(t, srv, http.MethodPost, "/api/v1/deployments/"+d.ID+"/versions/0.2.0", body, ct)
	require.Equal(t, http.StatusCreated, status, resp.Error)

	body, ct = multipartBody(t, nil, archivetest.TarGz(t, map[string]string{"index.html": "dup"}))
	status, resp = do(t, srv, http.MethodPost, "/api/v1/deployments/"+d.ID+"/versions/0.2.0", body, ct)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp.Error, "already exists")

	status, _ = do(t, srv, http.MethodPost, "/api/v1/deployments/demo/versions/0.1.0/activate?lookup=subdomain", nil, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, srv, http.MethodGet, "/api/v1/deployments/Demo%20Site/versions/0.2.0?lookup=name", nil, "")
	assert.Equal(t, http.StatusOK, status)

	status, resp = do(t, srv, http.MethodDelete, "/api/v1/deployments/"+d.ID+"/versions/0.2.0", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"deleted":"0.2.0","deployment_deleted":false}`, string(resp.Data))

	status, _ = do(t, srv, http.MethodDelete, "/api/v1/deployments/"+d.ID, nil, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, srv, http.MethodGet, "/api/v1/deployments/"+d.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = do(t, srv, http.MethodGet, "/api/v1/categories", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), "docs")
}

func TestCreateDeployment_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	body, ct := multipartBody(t, map[string]string{"name": "Demo", "subdomain": "demo", "version": "1"}, nil)
	status, resp := do(t, srv, http.MethodPost, "/api/v1/deployments", body, ct)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp.Error, "file is required")

	body, ct = multipartBody(t, map[string]string{"name": "Demo", "subdomain": "demo", "version": "1"}, []byte("garbage"))
	status, _ = do(t, srv, http.MethodPost, "/api/v1/deployments", body, ct)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodGet, "/api/v1/deployments/x?lookup=created_on", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAuthGate(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/deployments")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/login", "application/json", strings.NewReader(`{"username":"admin","password":"pw"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		Data loginResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/deployments", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.Token)
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	authed.Body.Close()
	assert.Equal(t, http.StatusOK, authed.StatusCode)

	bad, err := http.Post(srv.URL+"/login", "application/json", strings.NewReader(`{"username":"admin","password":"nope"}`))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusForbidden, bad.StatusCode)
}

func TestNotFoundDocumentEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createSite(t, srv)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/404", nil)
	req.Header.Set("X-Original-URI", "/hosted/demo/does/not/exist")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "custom missing", string(body))
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	resp2, err := http.Get(srv.URL + "/404?path=/hosted/unknown/x")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestProxyRoutesOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	status, resp := do(t, srv, http.MethodPost, "/api/v1/proxy-routes",
		strings.NewReader(`{"name":"api","subdomain":"api","destination_address":"http://127.0.0.1:9000","use_cors_headers":true}`),
		"application/json")
	require.Equal(t, http.StatusCreated, status, resp.Error)

	status, _ = do(t, srv, http.MethodGet, "/api/v1/proxy-routes/api?lookup=subdomain", nil, "")
	assert.Equal(t, http.StatusOK, status)

	status, resp = do(t, srv, http.MethodGet, "/api/v1/proxy-routes", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), "use_cors_headers")

	status, _ = do(t, srv, http.MethodPost, "/api/v1/proxy-routes", strings.NewReader(`{bad json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodDelete, "/api/v1/proxy-routes/api?lookup=name", nil, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, srv, http.MethodDelete, "/api/v1/proxy-routes/api?lookup=name", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	status, resp := do(t, srv, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Data))
}

func TestHealthzReportsCatalogFailure(t *testing.T) {
	db := repository.OpenTestDB(t)
	catalog := repository.NewStore(db)
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	authn := auth.New(auth.Config{APIToken: testAPIKey})
	handler := NewRouter(
		NewDeploymentHandler(service.NewDeploymentService(catalog, store, nopNotifier{}), "https", "example.com"),
		NewProxyRouteHandler(service.NewProxyRouteService(catalog, nopNotifier{})),
		NewAuthHandler(authn),
		NewNotFoundHandler(service.NewNotFoundResolver(catalog, store, "/hosted")),
		authn,
		catalog,
		1<<20,
	)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}
