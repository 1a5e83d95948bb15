package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/service"
)

type ProxyRouteHandler struct {
	svc *service.ProxyRouteService
}

func NewProxyRouteHandler(svc *service.ProxyRouteService) *ProxyRouteHandler {
	return &ProxyRouteHandler{svc: svc}
}

func (h *ProxyRouteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateProxyRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	route, err := h.svc.CreateProxyRoute(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, route)
}

func (h *ProxyRouteHandler) List(w http.ResponseWriter, r *http.Request) {
	routes, err := h.svc.ListProxyRoutes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

func (h *ProxyRouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	route, err := h.svc.GetProxyRoute(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (h *ProxyRouteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.DeleteProxyRoute(r.Context(), ref); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": ref.Value})
}
