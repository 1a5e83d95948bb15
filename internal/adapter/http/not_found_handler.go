package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/service"
)

// originalURIHeader 由前置 Web 服务器在 error_page 内部跳转时设置。
const originalURIHeader = "X-Original-URI"

type NotFoundHandler struct {
	resolver *service.NotFoundResolver
}

func NewNotFoundHandler(resolver *service.NotFoundResolver) *NotFoundHandler {
	return &NotFoundHandler{resolver: resolver}
}

// Serve 返回 Deployment 的自定义 404 文档，状态码始终为 404（错误除外）。
func (h *NotFoundHandler) Serve(w http.ResponseWriter, r *http.Request) {
	path := r.Header.Get(originalURIHeader)
	if path == "" {
		path = r.URL.Query().Get("path")
	}
	doc, err := h.resolver.Resolve(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "404 page not found", http.StatusNotFound)
			return
		}
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(doc.Body)
}
