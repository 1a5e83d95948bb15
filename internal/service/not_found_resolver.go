package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/metrics"
	"github.com/chiwei-platform/phost/internal/port"
)

// MaxNotFoundDocumentSize 自定义 404 文档的大小上限。
const MaxNotFoundDocumentSize = 128 << 20

const defaultContentType = "application/octet-stream"

// Document 是解析出的自定义 404 文档，调用方以 404 状态码返回。
type Document struct {
	Path        string
	ContentType string
	Body        []byte
}

// NotFoundResolver 把一次失败请求的原始路径映射到对应 Deployment 的自定义 404 文档。
type NotFoundResolver struct {
	catalog port.Catalog
	store   port.ArtifactStore
	pattern *regexp.Regexp
}

// NewNotFoundResolver 以 prefix（如 /hosted）构造解析器；请求路径需形如 <prefix>/<subdomain>/...
func NewNotFoundResolver(catalog port.Catalog, store port.ArtifactStore, prefix string) *NotFoundResolver {
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	return &NotFoundResolver{
		catalog: catalog,
		store:   store,
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `/([^/?#]+)(/|$)`),
	}
}

// Resolve 返回 originalPath 所属 Deployment 的 not_found_document。
// 文档必须在规范化（解析符号链接）后仍位于 <subdomain>/latest 指向的目录内。
func (r *NotFoundResolver) Resolve(ctx context.Context, originalPath string) (doc *Document, err error) {
	defer func() {
		switch {
		case err == nil:
			metrics.NotFoundDocuments.WithLabelValues("served").Inc()
		case errors.Is(err, domain.ErrSandboxViolation):
			metrics.NotFoundDocuments.WithLabelValues("sandbox_violation").Inc()
		default:
			metrics.NotFoundDocuments.WithLabelValues("miss").Inc()
		}
	}()

	originalPath, _, _ = strings.Cut(originalPath, "?")
	m := r.pattern.FindStringSubmatch(originalPath)
	if m == nil {
		return nil, fmt.Errorf("%w: path %q does not name a deployment", domain.ErrNotFound, originalPath)
	}
	subdomain := domain.NormalizeSubdomain(m[1])
	if err := domain.ValidateSubdomain(subdomain); err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrDeploymentNotFound, subdomain)
	}

	d, err := r.catalog.Deployments().Find(ctx, domain.Ref{Field: domain.LookupBySubdomain, Value: subdomain})
	if err != nil {
		return nil, err
	}
	if d.NotFoundDocument == "" {
		return nil, fmt.Errorf("%w: deployment %s has no not_found_document", domain.ErrNotFound, subdomain)
	}

	root := filepath.Join(r.store.DeploymentRoot(subdomain), domain.LatestLink)
	target := filepath.Join(root, filepath.FromSlash(d.NotFoundDocument))
	if !within(root, target) {
		return nil, fmt.Errorf("%w: %q escapes deployment %s", domain.ErrSandboxViolation, d.NotFoundDocument, subdomain)
	}

	canonicalRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: deployment %s has no active version", domain.ErrNotFound, subdomain)
		}
		return nil, err
	}
	canonicalTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", domain.ErrNotFound, d.NotFoundDocument)
		}
		return nil, err
	}
	if !within(canonicalRoot, canonicalTarget) {
		return nil, fmt.Errorf("%w: %q resolves outside deployment %s", domain.ErrSandboxViolation, d.NotFoundDocument, subdomain)
	}

	info, err := os.Stat(canonicalTarget)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %q is a directory", domain.ErrNotFound, d.NotFoundDocument)
	}
	if info.Size() > MaxNotFoundDocumentSize {
		return nil, fmt.Errorf("%w: %q is %d bytes", domain.ErrDocumentTooLarge, d.NotFoundDocument, info.Size())
	}
	body, err := os.ReadFile(canonicalTarget)
	if err != nil {
		return nil, err
	}

	contentType := mime.TypeByExtension(filepath.Ext(canonicalTarget))
	if contentType == "" {
		contentType = defaultContentType
	}
	return &Document{Path: canonicalTarget, ContentType: contentType, Body: body}, nil
}

// within 判断 path 是否等于 root 或位于 root 之下（纯词法比较）。
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
