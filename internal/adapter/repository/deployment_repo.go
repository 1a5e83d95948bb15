package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/port"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ port.DeploymentRepository = (*DeploymentRepo)(nil)

type DeploymentRepo struct {
	db *gorm.DB
}

func NewDeploymentRepo(db *gorm.DB) *DeploymentRepo {
	return &DeploymentRepo{db: db}
}

// Save 只写入 Deployment 行；版本与分类由各自仓储写入。
func (r *DeploymentRepo) Save(ctx context.Context, d *domain.Deployment) error {
	m := deploymentToModel(d)
	result := r.db.WithContext(ctx).Omit(clause.Associations).Create(m)
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return fmt.Errorf("deployment name or subdomain: %w", domain.ErrAlreadyExists)
		}
		return result.Error
	}
	return nil
}

func (r *DeploymentRepo) Find(ctx context.Context, ref domain.Ref) (*domain.Deployment, error) {
	col, err := lookupColumn(ref.Field)
	if err != nil {
		return nil, err
	}
	var m DeploymentModel
	result := r.db.WithContext(ctx).
		Preload("Versions", orderByCreated).
		First(&m, col+" = ?", ref.Value)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDeploymentNotFound, ref)
		}
		return nil, result.Error
	}
	d := modelToDeployment(&m)
	cats, err := r.categoriesFor(ctx, []string{d.ID})
	if err != nil {
		return nil, err
	}
	d.Categories = cats[d.ID]
	return d, nil
}

func (r *DeploymentRepo) FindAllWithVersions(ctx context.Context) ([]*domain.Deployment, error) {
	var models []DeploymentModel
	if err := r.db.WithContext(ctx).
		Preload("Versions", orderByCreated).
		Order("created_on ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(models))
	for i := range models {
		ids = append(ids, models[i].ID)
	}
	cats, err := r.categoriesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	deployments := make([]*domain.Deployment, 0, len(models))
	for i := range models {
		d := modelToDeployment(&models[i])
		d.Categories = cats[d.ID]
		deployments = append(deployments, d)
	}
	return deployments, nil
}

// Delete 删除 Deployment 及其版本与分类关联；分类本身保留。
func (r *DeploymentRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&DeploymentCategoryModel{}, "deployment_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&VersionModel{}, "deployment_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&DeploymentModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: id=%s", domain.ErrDeploymentNotFound, id)
		}
		return nil
	})
}

type deploymentCategoryRow struct {
	DeploymentID string
	Category     string
}

func (r *DeploymentRepo) categoriesFor(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []deploymentCategoryRow
	if err := r.db.WithContext(ctx).
		Table("deployment_categories").
		Select("deployment_categories.deployment_id, categories.category").
		Joins("JOIN categories ON categories.id = deployment_categories.category_id").
		Where("deployment_categories.deployment_id IN ?", ids).
		Order("categories.category ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.DeploymentID] = append(out[row.DeploymentID], row.Category)
	}
	return out, nil
}

func orderByCreated(db *gorm.DB) *gorm.DB {
	return db.Order("created_on ASC")
}

func deploymentToModel(d *domain.Deployment) *DeploymentModel {
	return &DeploymentModel{
		ID:               d.ID,
		Name:             d.Name,
		Subdomain:        d.Subdomain,
		NotFoundDocument: d.NotFoundDocument,
		CreatedOn:        d.CreatedOn,
	}
}

func modelToDeployment(m *DeploymentModel) *domain.Deployment {
	versions := make([]*domain.Version, 0, len(m.Versions))
	for i := range m.Versions {
		versions = append(versions, modelToVersion(&m.Versions[i]))
	}
	return &domain.Deployment{
		ID:               m.ID,
		Name:             m.Name,
		Subdomain:        m.Subdomain,
		NotFoundDocument: m.NotFoundDocument,
		Categories:       []string{},
		Versions:         versions,
		CreatedOn:        m.CreatedOn,
	}
}
