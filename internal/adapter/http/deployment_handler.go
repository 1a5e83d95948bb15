package http

import (
	"net/http"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/service"
	"github.com/go-chi/chi/v5"
)

type DeploymentHandler struct {
	svc        *service.DeploymentService
	protocol   string
	baseDomain string
}

func NewDeploymentHandler(svc *service.DeploymentService, protocol, baseDomain string) *DeploymentHandler {
	return &DeploymentHandler{svc: svc, protocol: protocol, baseDomain: baseDomain}
}

// deploymentView 在 Deployment 上附加站点访问地址。
type deploymentView struct {
	*domain.Deployment
	URL string `json:"url"`
}

func (h *DeploymentHandler) view(d *domain.Deployment) deploymentView {
	return deploymentView{Deployment: d, URL: d.URL(h.protocol, h.baseDomain)}
}

func (h *DeploymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := h.svc.CreateDeployment(r.Context(), service.CreateDeploymentRequest{
		Name:             formValue(r, "name"),
		Subdomain:        formValue(r, "subdomain"),
		Version:          formValue(r, "version"),
		Categories:       formList(r, "categories"),
		NotFoundDocument: formValue(r, "not_found_document"),
		Filename:         up.Filename,
		Archive:          up.Data,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(d))
}

func (h *DeploymentHandler) List(w http.ResponseWriter, r *http.Request) {
	deployments, err := h.svc.ListDeployments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]deploymentView, 0, len(deployments))
	for _, d := range deployments {
		views = append(views, h.view(d))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *DeploymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := h.svc.GetDeployment(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(d))
}

func (h *DeploymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.DeleteDeployment(r.Context(), ref); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": ref.Value})
}

func (h *DeploymentHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := h.svc.GetVersion(r.Context(), ref, chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *DeploymentHandler) AddVersion(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	up, err := readUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := h.svc.AddVersion(r.Context(), ref, service.AddVersionRequest{
		Version:  chi.URLParam(r, "version"),
		Filename: up.Filename,
		Archive:  up.Data,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *DeploymentHandler) ActivateVersion(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := h.svc.ActivateVersion(r.Context(), ref, chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *DeploymentHandler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	version := chi.URLParam(r, "version")
	deploymentDeleted, err := h.svc.DeleteVersion(r.Context(), ref, version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":            domain.NormalizeVersion(version),
		"deployment_deleted": deploymentDeleted,
	})
}

func (h *DeploymentHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}
