package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/port"
	"gorm.io/gorm"
)

var _ port.ProxyRouteRepository = (*ProxyRouteRepo)(nil)

type ProxyRouteRepo struct {
	db *gorm.DB
}

func NewProxyRouteRepo(db *gorm.DB) *ProxyRouteRepo {
	return &ProxyRouteRepo{db: db}
}

func (r *ProxyRouteRepo) Save(ctx context.Context, route *domain.ProxyRoute) error {
	m := &ProxyRouteModel{
		ID:                 route.ID,
		Name:               route.Name,
		Subdomain:          route.Subdomain,
		DestinationAddress: route.DestinationAddress,
		UseCORSHeaders:     route.UseCORSHeaders,
		CreatedOn:          route.CreatedOn,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("proxy route name or subdomain: %w", domain.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

func (r *ProxyRouteRepo) Find(ctx context.Context, ref domain.Ref) (*domain.ProxyRoute, error) {
	col, err := lookupColumn(ref.Field)
	if err != nil {
		return nil, err
	}
	var m ProxyRouteModel
	if err := r.db.WithContext(ctx).First(&m, col+" = ?", ref.Value).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProxyRouteNotFound, ref)
		}
		return nil, err
	}
	return modelToProxyRoute(&m), nil
}

func (r *ProxyRouteRepo) FindAll(ctx context.Context) ([]*domain.ProxyRoute, error) {
	var models []ProxyRouteModel
	if err := r.db.WithContext(ctx).Order("created_on ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	routes := make([]*domain.ProxyRoute, 0, len(models))
	for i := range models {
		routes = append(routes, modelToProxyRoute(&models[i]))
	}
	return routes, nil
}

func (r *ProxyRouteRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&ProxyRouteModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: id=%s", domain.ErrProxyRouteNotFound, id)
	}
	return nil
}

func modelToProxyRoute(m *ProxyRouteModel) *domain.ProxyRoute {
	return &domain.ProxyRoute{
		ID:                 m.ID,
		Name:               m.Name,
		Subdomain:          m.Subdomain,
		DestinationAddress: m.DestinationAddress,
		UseCORSHeaders:     m.UseCORSHeaders,
		CreatedOn:          m.CreatedOn,
	}
}
