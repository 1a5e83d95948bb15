package port

import (
	"context"

	"github.com/chiwei-platform/phost/internal/domain"
)

type DeploymentRepository interface {
	Save(ctx context.Context, d *domain.Deployment) error
	Find(ctx context.Context, ref domain.Ref) (*domain.Deployment, error)
	// FindAllWithVersions 返回所有 Deployment，附带 Versions 与 Categories。
	FindAllWithVersions(ctx context.Context) ([]*domain.Deployment, error)
	Delete(ctx context.Context, id string) error
}

type VersionRepository interface {
	Save(ctx context.Context, v *domain.Version) error
	// FindByLabel 按（已归一化的）版本号查找。
	FindByLabel(ctx context.Context, deploymentID, version string) (*domain.Version, error)
	// SetActive 把 deploymentID 下的 version 设为唯一激活版本。
	SetActive(ctx context.Context, deploymentID, version string) error
	Delete(ctx context.Context, deploymentID, version string) error
	CountByDeployment(ctx context.Context, deploymentID string) (int64, error)
}

type CategoryRepository interface {
	// Attach 把分类关联到 Deployment，不存在的分类会被创建。
	Attach(ctx context.Context, deploymentID string, categories []string) error
	FindAll(ctx context.Context) ([]*domain.Category, error)
}

type ProxyRouteRepository interface {
	Save(ctx context.Context, route *domain.ProxyRoute) error
	Find(ctx context.Context, ref domain.Ref) (*domain.ProxyRoute, error)
	FindAll(ctx context.Context) ([]*domain.ProxyRoute, error)
	Delete(ctx context.Context, id string) error
}

// Catalog 聚合所有仓储，并提供事务边界。
// Transaction 内的 fn 拿到的是绑定到同一事务的 Catalog；fn 返回错误或提交失败时整体回滚。
type Catalog interface {
	Deployments() DeploymentRepository
	Versions() VersionRepository
	Categories() CategoryRepository
	ProxyRoutes() ProxyRouteRepository
	Transaction(ctx context.Context, fn func(tx Catalog) error) error
}
