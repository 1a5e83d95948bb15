package repository

import (
	"context"

	"github.com/chiwei-platform/phost/internal/port"
	"gorm.io/gorm"
)

var _ port.Catalog = (*Store)(nil)

// Store 是基于 gorm 的 catalog，所有仓储共享同一个 *gorm.DB。
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Deployments() port.DeploymentRepository { return NewDeploymentRepo(s.db) }
func (s *Store) Versions() port.VersionRepository { return NewVersionRepo(s.db) }
func (s *Store) Categories() port.CategoryRepository { return NewCategoryRepo(s.db) }
func (s *Store) ProxyRoutes() port.ProxyRouteRepository { return NewProxyRouteRepo(s.db) }

// Transaction 在单个数据库事务中执行 fn。fn 必须只通过传入的 tx 访问 catalog；
// SQLite 单连接下在 fn 中使用外层 Store 会死锁。
func (s *Store) Transaction(ctx context.Context, fn func(tx port.Catalog) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping 用于健康检查。
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
