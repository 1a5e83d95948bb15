package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/port"
	"github.com/google/uuid"
)

// ProxyRouteService 管理反向代理路由；只写 catalog，成功后通知代理重新加载。
type ProxyRouteService struct {
	catalog  port.Catalog
	notifier port.ProxyNotifier
}

func NewProxyRouteService(catalog port.Catalog, notifier port.ProxyNotifier) *ProxyRouteService {
	return &ProxyRouteService{catalog: catalog, notifier: notifier}
}

type CreateProxyRouteRequest struct {
	Name               string `json:"name" validate:"required,max=255"`
	Subdomain          string `json:"subdomain" validate:"required,max=63"`
	DestinationAddress string `json:"destination_address" validate:"required,url"`
	UseCORSHeaders     bool   `json:"use_cors_headers"`
}

func (s *ProxyRouteService) CreateProxyRoute(ctx context.Context, req CreateProxyRouteRequest) (_ *domain.ProxyRoute, err error) {
	defer observe("create_proxy_route", time.Now(), &err)

	req.Subdomain = domain.NormalizeSubdomain(req.Subdomain)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := domain.ValidateName(req.Name); err != nil {
		return nil, err
	}
	if err := domain.ValidateSubdomain(req.Subdomain); err != nil {
		return nil, err
	}
	if err := domain.ValidateDestinationAddress(req.DestinationAddress); err != nil {
		return nil, err
	}
	route := &domain.ProxyRoute{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Subdomain:          req.Subdomain,
		DestinationAddress: req.DestinationAddress,
		UseCORSHeaders:     req.UseCORSHeaders,
		CreatedOn:          time.Now().UTC(),
	}
	if err := s.catalog.ProxyRoutes().Save(ctx, route); err != nil {
		return nil, err
	}
	slog.Info("proxy route created", "subdomain", route.Subdomain, "destination", route.DestinationAddress)
	s.notifier.Notify(ctx)
	return route, nil
}

func (s *ProxyRouteService) GetProxyRoute(ctx context.Context, ref domain.Ref) (*domain.ProxyRoute, error) {
	return s.catalog.ProxyRoutes().Find(ctx, ref)
}

func (s *ProxyRouteService) ListProxyRoutes(ctx context.Context) ([]*domain.ProxyRoute, error) {
	return s.catalog.ProxyRoutes().FindAll(ctx)
}

func (s *ProxyRouteService) DeleteProxyRoute(ctx context.Context, ref domain.Ref) (err error) {
	defer observe("delete_proxy_route", time.Now(), &err)

	route, err := s.catalog.ProxyRoutes().Find(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.catalog.ProxyRoutes().Delete(ctx, route.ID); err != nil {
		return err
	}
	slog.Info("proxy route deleted", "subdomain", route.Subdomain)
	s.notifier.Notify(ctx)
	return nil
}
