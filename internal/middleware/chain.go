// Package middleware holds the plain net/http middlewares used by the proxy sidecar.
package middleware

import "net/http"

type Middleware func(http.Handler) http.Handler

// Wrap decorates h so that mws[0] sees each request first.
func Wrap(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
