// Package client is the HTTP client behind the phost CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/google/uuid"
)

// Deployment is a deployment as returned by the API, including its site URL.
type Deployment struct {
	domain.Deployment
	URL string `json:"url"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Login exchanges admin credentials for a session token used by later calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/login", bytes.NewReader(body), "application/json", &out); err != nil {
		return err
	}
	c.token = out.Token
	return nil
}

func (c *Client) ListDeployments(ctx context.Context) ([]Deployment, error) {
	var out []Deployment
	err := c.do(ctx, http.MethodGet, "/api/v1/deployments", nil, "", &out)
	return out, err
}

func (c *Client) GetDeployment(ctx context.Context, ref domain.Ref) (*Deployment, error) {
	var out Deployment
	if err := c.do(ctx, http.MethodGet, refPath("/api/v1/deployments", ref), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type CreateDeploymentParams struct {
	Name             string
	Subdomain        string
	Version          string
	Categories       []string
	NotFoundDocument string
}

func (c *Client) CreateDeployment(ctx context.Context, p CreateDeploymentParams, archive []byte) (*Deployment, error) {
	fields := map[string]string{
		"name":               p.Name,
		"subdomain":          p.Subdomain,
		"version":            p.Version,
		"categories":         strings.Join(p.Categories, ","),
		"not_found_document": p.NotFoundDocument,
	}
	body, contentType, err := multipartArchive(fields, archive)
	if err != nil {
		return nil, err
	}
	var out Deployment
	if err := c.do(ctx, http.MethodPost, "/api/v1/deployments", body, contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddVersion(ctx context.Context, ref domain.Ref, version string, archive []byte) (*domain.Version, error) {
	body, contentType, err := multipartArchive(nil, archive)
	if err != nil {
		return nil, err
	}
	var out domain.Version
	if err := c.do(ctx, http.MethodPost, versionPath(ref, version, ""), body, contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ActivateVersion(ctx context.Context, ref domain.Ref, version string) (*domain.Version, error) {
	var out domain.Version
	if err := c.do(ctx, http.MethodPost, versionPath(ref, version, "/activate"), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteDeployment(ctx context.Context, ref domain.Ref) error {
	return c.do(ctx, http.MethodDelete, refPath("/api/v1/deployments", ref), nil, "", nil)
}

// DeleteVersion reports whether the deployment was removed along with its last version.
func (c *Client) DeleteVersion(ctx context.Context, ref domain.Ref, version string) (bool, error) {
	var out struct {
		DeploymentDeleted bool `json:"deployment_deleted"`
	}
	err := c.do(ctx, http.MethodDelete, versionPath(ref, version, ""), nil, "", &out)
	return out.DeploymentDeleted, err
}

func (c *Client) ListProxyRoutes(ctx context.Context) ([]domain.ProxyRoute, error) {
	var out []domain.ProxyRoute
	err := c.do(ctx, http.MethodGet, "/api/v1/proxy-routes", nil, "", &out)
	return out, err
}

type CreateProxyRouteParams struct {
	Name               string `json:"name"`
	Subdomain          string `json:"subdomain"`
	DestinationAddress string `json:"destination_address"`
	UseCORSHeaders     bool   `json:"use_cors_headers"`
}

func (c *Client) CreateProxyRoute(ctx context.Context, p CreateProxyRouteParams) (*domain.ProxyRoute, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var out domain.ProxyRoute
	if err := c.do(ctx, http.MethodPost, "/api/v1/proxy-routes", bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProxyRoute(ctx context.Context, ref domain.Ref) error {
	return c.do(ctx, http.MethodDelete, refPath("/api/v1/proxy-routes", ref), nil, "", nil)
}

// RandomSubdomain returns a 16 character hex label for unlisted deployments.
func RandomSubdomain() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func refPath(collection string, ref domain.Ref) string {
	p := collection + "/" + url.PathEscape(ref.Value)
	if ref.Field != "" && ref.Field != domain.LookupByID {
		p += "?lookup=" + url.QueryEscape(string(ref.Field))
	}
	return p
}

func versionPath(ref domain.Ref, version, suffix string) string {
	p := "/api/v1/deployments/" + url.PathEscape(ref.Value) + "/versions/" + url.PathEscape(version) + suffix
	if ref.Field != "" && ref.Field != domain.LookupByID {
		p += "?lookup=" + url.QueryEscape(string(ref.Field))
	}
	return p
}

func multipartArchive(fields map[string]string, archive []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	fw, err := mw.CreateFormFile("file", "site.tar.gz")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(archive); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("communicating with %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	var env struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &env) == nil && env.Error != "" {
			msg = env.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
