package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/metrics"
	"github.com/chiwei-platform/phost/internal/port"
	"github.com/google/uuid"
)

// DeploymentService 协调 catalog、制品目录与代理进程三方资源。
// 每个写操作遵循：校验 → 开启事务 → catalog 写入 → 文件系统写入 → 提交 → 通知代理。
// 提交前失败时删除本次尝试创建的目录；补偿本身失败则返回 ErrInconsistent。
type DeploymentService struct {
	catalog  port.Catalog
	store    port.ArtifactStore
	notifier port.ProxyNotifier
}

func NewDeploymentService(catalog port.Catalog, store port.ArtifactStore, notifier port.ProxyNotifier) *DeploymentService {
	return &DeploymentService{catalog: catalog, store: store, notifier: notifier}
}

type CreateDeploymentRequest struct {
	Name             string   `json:"name" validate:"required,max=255"`
	Subdomain        string   `json:"subdomain" validate:"required,max=63"`
	Version          string   `json:"version" validate:"required,max=32"`
	Categories       []string `json:"categories" validate:"dive,max=255"`
	NotFoundDocument string   `json:"not_found_document" validate:"max=1024"`
	// Filename 仅用于推断压缩格式。
	Filename string `json:"-"`
	Archive  []byte `json:"-" validate:"min=1"`
}

func (s *DeploymentService) CreateDeployment(ctx context.Context, req CreateDeploymentRequest) (_ *domain.Deployment, err error) {
	defer observe("create_deployment", time.Now(), &err)

	req.Subdomain = domain.NormalizeSubdomain(req.Subdomain)
	req.Version = domain.NormalizeVersion(req.Version)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := domain.ValidateName(req.Name); err != nil {
		return nil, err
	}
	if err := domain.ValidateSubdomain(req.Subdomain); err != nil {
		return nil, err
	}
	if err := domain.ValidateVersion(req.Version); err != nil {
		return nil, err
	}
	if err := domain.ValidateNotFoundDocument(req.NotFoundDocument); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	d := &domain.Deployment{
		ID:               uuid.NewString(),
		Name:             req.Name,
		Subdomain:        req.Subdomain,
		NotFoundDocument: req.NotFoundDocument,
		CreatedOn:        now,
	}
	v := &domain.Version{
		ID:           uuid.NewString(),
		DeploymentID: d.ID,
		Version:      req.Version,
		Active:       true,
		CreatedOn:    now,
	}

	// 子域名目录若在本次尝试前已存在（残留目录），补偿时只能删除版本目录。
	preexisting := s.store.Exists(d.Subdomain)
	var extractBegan, extracted bool
	err = s.catalog.Transaction(ctx, func(tx port.Catalog) error {
		if err := tx.Deployments().Save(ctx, d); err != nil {
			return err
		}
		if err := tx.Categories().Attach(ctx, d.ID, req.Categories); err != nil {
			return err
		}
		if err := tx.Versions().Save(ctx, v); err != nil {
			return err
		}
		extractBegan = true
		if _, err := s.store.Extract(ctx, req.Archive, req.Filename, d.Subdomain, v.Version); err != nil {
			return err
		}
		extracted = true
		return s.store.Activate(d.Subdomain, v.Version)
	})
	if err != nil {
		if extractBegan {
			undo := func() error { return s.store.DeleteDeployment(d.Subdomain) }
			if preexisting {
				if !extracted {
					return nil, err
				}
				undo = func() error { return s.store.DeleteVersion(d.Subdomain, v.Version) }
			}
			if cerr := s.compensate("create_deployment", d.Subdomain, v.Version, err, undo); cerr != nil {
				return nil, cerr
			}
		}
		return nil, err
	}

	slog.Info("deployment created", "id", d.ID, "subdomain", d.Subdomain, "version", v.Version)
	s.notifier.Notify(ctx)

	// 已提交即为成功；回读只为带上归一化后的分类，失败时返回内存中的结果。
	created, err := s.catalog.Deployments().Find(ctx, domain.Ref{Field: domain.LookupByID, Value: d.ID})
	if err != nil {
		slog.Warn("re-read created deployment", "id", d.ID, "subdomain", d.Subdomain, "error", err)
		d.Versions = []*domain.Version{v}
		d.Categories = req.Categories
		if d.Categories == nil {
			d.Categories = []string{}
		}
		return d, nil
	}
	return created, nil
}

type AddVersionRequest struct {
	Version  string `json:"version" validate:"required,max=32"`
	Filename string `json:"-"`
	Archive  []byte `json:"-" validate:"min=1"`
}

// AddVersion 解压新版本并把它设为激活版本；latest 在事务提交后才切换。
func (s *DeploymentService) AddVersion(ctx context.Context, ref domain.Ref, req AddVersionRequest) (_ *domain.Version, err error) {
	defer observe("add_version", time.Now(), &err)

	req.Version = domain.NormalizeVersion(req.Version)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := domain.ValidateVersion(req.Version); err != nil {
		return nil, err
	}

	d, err := s.catalog.Deployments().Find(ctx, ref)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.Versions().FindByLabel(ctx, d.ID, req.Version); err == nil {
		return nil, fmt.Errorf("version %q of deployment %s: %w", req.Version, d.Subdomain, domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// 解压失败时 Store 自行清理目标目录。
	if _, err := s.store.Extract(ctx, req.Archive, req.Filename, d.Subdomain, req.Version); err != nil {
		return nil, err
	}

	v := &domain.Version{
		ID:           uuid.NewString(),
		DeploymentID: d.ID,
		Version:      req.Version,
		CreatedOn:    time.Now().UTC(),
	}
	err = s.catalog.Transaction(ctx, func(tx port.Catalog) error {
		if err := tx.Versions().Save(ctx, v); err != nil {
			return err
		}
		return tx.Versions().SetActive(ctx, d.ID, v.Version)
	})
	if err != nil {
		undo := func() error { return s.store.DeleteVersion(d.Subdomain, v.Version) }
		if cerr := s.compensate("add_version", d.Subdomain, v.Version, err, undo); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	v.Active = true

	if err := s.store.Activate(d.Subdomain, v.Version); err != nil {
		return nil, s.inconsistent("add_version", d.Subdomain, v.Version, err)
	}

	slog.Info("version added", "deployment", d.Subdomain, "version", v.Version)
	s.notifier.Notify(ctx)
	return v, nil
}

// ActivateVersion 切换激活版本。并发激活同一 Deployment 时以最后提交者为准。
func (s *DeploymentService) ActivateVersion(ctx context.Context, ref domain.Ref, version string) (_ *domain.Version, err error) {
	defer observe("activate_version", time.Now(), &err)

	version = domain.NormalizeVersion(version)
	if err := domain.ValidateVersion(version); err != nil {
		return nil, err
	}
	d, err := s.catalog.Deployments().Find(ctx, ref)
	if err != nil {
		return nil, err
	}
	var v *domain.Version
	err = s.catalog.Transaction(ctx, func(tx port.Catalog) error {
		if err := tx.Versions().SetActive(ctx, d.ID, version); err != nil {
			return err
		}
		found, err := tx.Versions().FindByLabel(ctx, d.ID, version)
		if err != nil {
			return err
		}
		v = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.Activate(d.Subdomain, version); err != nil {
		return nil, s.inconsistent("activate_version", d.Subdomain, version, err)
	}

	slog.Info("version activated", "deployment", d.Subdomain, "version", version)
	s.notifier.Notify(ctx)
	return v, nil
}

// DeleteVersion 删除一个版本；删除最后一个版本时连同 Deployment 一起删除。
// 删除激活版本后不会自动激活其它版本。返回值表示 Deployment 是否也被删除。
func (s *DeploymentService) DeleteVersion(ctx context.Context, ref domain.Ref, version string) (deploymentDeleted bool, err error) {
	defer observe("delete_version", time.Now(), &err)

	version = domain.NormalizeVersion(version)
	if err := domain.ValidateVersion(version); err != nil {
		return false, err
	}
	var d *domain.Deployment
	err = s.catalog.Transaction(ctx, func(tx port.Catalog) error {
		found, err := tx.Deployments().Find(ctx, ref)
		if err != nil {
			return err
		}
		d = found
		if err := tx.Versions().Delete(ctx, d.ID, version); err != nil {
			return err
		}
		remaining, err := tx.Versions().CountByDeployment(ctx, d.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			deploymentDeleted = true
			return tx.Deployments().Delete(ctx, d.ID)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	// 已提交的删除不回滚；目录残留优于复活已删除的 catalog 记录。
	if deploymentDeleted {
		if err := s.store.DeleteDeployment(d.Subdomain); err != nil {
			slog.Error("remove deployment directory after commit", "subdomain", d.Subdomain, "path", s.store.DeploymentRoot(d.Subdomain), "error", err)
		}
	} else if err := s.store.DeleteVersion(d.Subdomain, version); err != nil {
		slog.Error("remove version directory after commit", "subdomain", d.Subdomain, "version", version, "error", err)
	}

	slog.Info("version deleted", "deployment", d.Subdomain, "version", version, "deployment_deleted", deploymentDeleted)
	s.notifier.Notify(ctx)
	return deploymentDeleted, nil
}

func (s *DeploymentService) DeleteDeployment(ctx context.Context, ref domain.Ref) (err error) {
	defer observe("delete_deployment", time.Now(), &err)

	var d *domain.Deployment
	err = s.catalog.Transaction(ctx, func(tx port.Catalog) error {
		found, err := tx.Deployments().Find(ctx, ref)
		if err != nil {
			return err
		}
		d = found
		return tx.Deployments().Delete(ctx, d.ID)
	})
	if err != nil {
		return err
	}

	if err := s.store.DeleteDeployment(d.Subdomain); err != nil {
		slog.Error("remove deployment directory after commit", "subdomain", d.Subdomain, "path", s.store.DeploymentRoot(d.Subdomain), "error", err)
	}

	slog.Info("deployment deleted", "id", d.ID, "subdomain", d.Subdomain)
	s.notifier.Notify(ctx)
	return nil
}

func (s *DeploymentService) GetDeployment(ctx context.Context, ref domain.Ref) (*domain.Deployment, error) {
	return s.catalog.Deployments().Find(ctx, ref)
}

func (s *DeploymentService) ListDeployments(ctx context.Context) ([]*domain.Deployment, error) {
	return s.catalog.Deployments().FindAllWithVersions(ctx)
}

func (s *DeploymentService) GetVersion(ctx context.Context, ref domain.Ref, version string) (*domain.Version, error) {
	d, err := s.catalog.Deployments().Find(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.catalog.Versions().FindByLabel(ctx, d.ID, domain.NormalizeVersion(version))
}

func (s *DeploymentService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	return s.catalog.Categories().FindAll(ctx)
}

// compensate 撤销本次尝试的文件系统副作用。撤销成功返回 nil，调用方继续返回原始错误。
func (s *DeploymentService) compensate(op, subdomain, version string, cause error, undo func() error) error {
	if err := undo(); err != nil {
		metrics.Compensations.WithLabelValues("inconsistent").Inc()
		slog.Error("compensation failed",
			"op", op,
			"subdomain", subdomain,
			"version", version,
			"path", s.store.DeploymentRoot(subdomain),
			"cause", cause,
			"error", err,
		)
		return fmt.Errorf("%w: %s %s/%s: cleanup failed: %v (after: %v)", domain.ErrInconsistent, op, subdomain, version, err, cause)
	}
	metrics.Compensations.WithLabelValues("clean").Inc()
	slog.Warn("compensated failed operation", "op", op, "subdomain", subdomain, "version", version, "cause", cause)
	return nil
}

// inconsistent 用于提交后 latest 切换失败：catalog 已指向新版本而文件系统没有，不重试。
func (s *DeploymentService) inconsistent(op, subdomain, version string, err error) error {
	slog.Error("catalog and filesystem diverged",
		"op", op,
		"subdomain", subdomain,
		"version", version,
		"path", s.store.DeploymentRoot(subdomain),
		"error", err,
	)
	return fmt.Errorf("%w: %s %s/%s: repoint latest: %v", domain.ErrInconsistent, op, subdomain, version, err)
}
