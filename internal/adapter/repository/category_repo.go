package repository

import (
	"context"
	"sort"
	"strings"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/port"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ port.CategoryRepository = (*CategoryRepo)(nil)

type CategoryRepo struct {
	db *gorm.DB
}

func NewCategoryRepo(db *gorm.DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

// Attach 去重后逐个 FirstOrCreate 分类，再写入关联行；重复关联会被忽略。
func (r *CategoryRepo) Attach(ctx context.Context, deploymentID string, categories []string) error {
	db := r.db.WithContext(ctx)
	for _, label := range normalizeCategories(categories) {
		var m CategoryModel
		if err := db.Where(CategoryModel{Category: label}).FirstOrCreate(&m).Error; err != nil {
			return err
		}
		link := DeploymentCategoryModel{DeploymentID: deploymentID, CategoryID: m.ID}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *CategoryRepo) FindAll(ctx context.Context) ([]*domain.Category, error) {
	var models []CategoryModel
	if err := r.db.WithContext(ctx).Order("category ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Category, 0, len(models))
	for _, m := range models {
		out = append(out, &domain.Category{ID: m.ID, Category: m.Category})
	}
	return out, nil
}

func normalizeCategories(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
