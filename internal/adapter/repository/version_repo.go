package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/port"
	"gorm.io/gorm"
)

var _ port.VersionRepository = (*VersionRepo)(nil)

type VersionRepo struct {
	db *gorm.DB
}

func NewVersionRepo(db *gorm.DB) *VersionRepo {
	return &VersionRepo{db: db}
}

func (r *VersionRepo) Save(ctx context.Context, v *domain.Version) error {
	m := versionToModel(v)
	result := r.db.WithContext(ctx).Create(m)
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return fmt.Errorf("version %q: %w", v.Version, domain.ErrAlreadyExists)
		}
		return result.Error
	}
	return nil
}

func (r *VersionRepo) FindByLabel(ctx context.Context, deploymentID, version string) (*domain.Version, error) {
	var m VersionModel
	result := r.db.WithContext(ctx).
		Where("deployment_id = ? AND version = ?", deploymentID, version).
		First(&m)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %q", domain.ErrVersionNotFound, version)
		}
		return nil, result.Error
	}
	return modelToVersion(&m), nil
}

// SetActive 先取消其它版本的激活状态，再激活目标版本；须在事务内调用。
func (r *VersionRepo) SetActive(ctx context.Context, deploymentID, version string) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&VersionModel{}).
		Where("deployment_id = ? AND active = ? AND version <> ?", deploymentID, true, version).
		Update("active", false).Error; err != nil {
		return err
	}
	result := db.Model(&VersionModel{}).
		Where("deployment_id = ? AND version = ?", deploymentID, version).
		Update("active", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %q", domain.ErrVersionNotFound, version)
	}
	return nil
}

func (r *VersionRepo) Delete(ctx context.Context, deploymentID, version string) error {
	result := r.db.WithContext(ctx).
		Delete(&VersionModel{}, "deployment_id = ? AND version = ?", deploymentID, version)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %q", domain.ErrVersionNotFound, version)
	}
	return nil
}

func (r *VersionRepo) CountByDeployment(ctx context.Context, deploymentID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&VersionModel{}).
		Where("deployment_id = ?", deploymentID).
		Count(&n).Error
	return n, err
}

func versionToModel(v *domain.Version) *VersionModel {
	return &VersionModel{
		ID:           v.ID,
		DeploymentID: v.DeploymentID,
		Version:      v.Version,
		Active:       v.Active,
		CreatedOn:    v.CreatedOn,
	}
}

func modelToVersion(m *VersionModel) *domain.Version {
	return &domain.Version{
		ID:           m.ID,
		DeploymentID: m.DeploymentID,
		Version:      m.Version,
		Active:       m.Active,
		CreatedOn:    m.CreatedOn,
	}
}
