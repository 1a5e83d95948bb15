package gateway

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/chiwei-platform/phost/internal/domain"
)

// Gateway reverse-proxies /<subdomain>/<rest> (or Host: <subdomain>.<base>)
// to the route's destination address.
type Gateway struct {
	table      *Table
	baseDomain string
	transport  http.RoundTripper
}

// New creates a Gateway that waits at most timeout for upstream response headers.
func New(table *Table, baseDomain string, timeout time.Duration) *Gateway {
	return &Gateway{
		table:      table,
		baseDomain: strings.ToLower(baseDomain),
		transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// match extracts the subdomain and the remaining path. redirect is set when
// the path is exactly "/<subdomain>" and needs a trailing slash.
func (g *Gateway) match(r *http.Request) (subdomain, rest string, redirect bool, err error) {
	if sub, ok := g.subdomainFromHost(r.Host); ok {
		return sub, strings.TrimPrefix(r.URL.Path, "/"), false, nil
	}
	p := strings.TrimPrefix(r.URL.Path, "/")
	if p == "" {
		return "", "", false, fmt.Errorf("%w: path must start with /<subdomain>/", domain.ErrInvalidInput)
	}
	sub, rest, found := strings.Cut(p, "/")
	if !found {
		return domain.NormalizeSubdomain(sub), "", true, nil
	}
	return domain.NormalizeSubdomain(sub), rest, false, nil
}

func (g *Gateway) subdomainFromHost(host string) (string, bool) {
	if g.baseDomain == "" {
		return "", false
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	sub, ok := strings.CutSuffix(host, "."+g.baseDomain)
	if !ok || sub == "" || strings.Contains(sub, ".") {
		return "", false
	}
	return sub, true
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subdomain, rest, redirect, err := g.match(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if domain.ValidateSubdomain(subdomain) != nil {
		http.Error(w, "bad request: invalid subdomain", http.StatusBadRequest)
		return
	}
	target, ok := g.table.Lookup(subdomain)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if redirect {
		location := r.URL.Path + "/"
		if r.URL.RawQuery != "" {
			location += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, location, http.StatusMovedPermanently)
		return
	}

	cors := target.Route.UseCORSHeaders
	if cors && r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		setCORSHeaders(w.Header())
		w.WriteHeader(http.StatusNoContent)
		return
	}

	dest := &url.URL{
		Scheme:   target.Destination.Scheme,
		Host:     target.Destination.Host,
		Path:     joinPath(target.Destination.Path, rest),
		RawQuery: r.URL.RawQuery,
	}

	proxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL = dest
			req.Host = dest.Host
			if _, ok := req.Header["User-Agent"]; !ok {
				req.Header.Set("User-Agent", "")
			}
		},
		Transport: g.transport,
		ModifyResponse: func(resp *http.Response) error {
			if cors {
				setCORSHeaders(resp.Header)
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("proxy error",
				"subdomain", subdomain,
				"target", dest.String(),
				"error", err,
			)
			http.Error(w, fmt.Sprintf("bad gateway: %s", err), http.StatusBadGateway)
		},
	}

	proxy.ServeHTTP(w, r)
}

func joinPath(base, rest string) string {
	return strings.TrimSuffix(base, "/") + "/" + rest
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
}
