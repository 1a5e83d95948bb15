package repository

import "time"

// DeploymentModel 是 Deployment 的数据库持久化模型。
type DeploymentModel struct {
	ID               string `gorm:"primaryKey;size:36"`
	Name             string `gorm:"size:255;not null;uniqueIndex"`
	Subdomain        string `gorm:"size:255;not null;uniqueIndex"`
	NotFoundDocument string `gorm:"size:1024"`
	CreatedOn        time.Time
	Versions         []VersionModel `gorm:"foreignKey:DeploymentID;constraint:OnDelete:CASCADE"`
}

func (DeploymentModel) TableName() string { return "deployments" }

// VersionModel 是 Version 的数据库持久化模型。
// 唯一约束：DeploymentID + Version。
type VersionModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	DeploymentID string `gorm:"size:36;not null;uniqueIndex:idx_deployment_version"`
	Version      string `gorm:"size:32;not null;uniqueIndex:idx_deployment_version"`
	Active       bool   `gorm:"not null"`
	CreatedOn    time.Time
}

func (VersionModel) TableName() string { return "versions" }

// CategoryModel 是 Category 的数据库持久化模型。
type CategoryModel struct {
	ID       uint   `gorm:"primaryKey"`
	Category string `gorm:"size:255;not null;uniqueIndex"`
}

func (CategoryModel) TableName() string { return "categories" }

// DeploymentCategoryModel 是 Deployment 与 Category 的多对多关联表。
type DeploymentCategoryModel struct {
	DeploymentID string `gorm:"primaryKey;size:36"`
	CategoryID   uint   `gorm:"primaryKey"`
}

func (DeploymentCategoryModel) TableName() string { return "deployment_categories" }

// ProxyRouteModel 是 ProxyRoute 的数据库持久化模型。
type ProxyRouteModel struct {
	ID                 string `gorm:"primaryKey;size:36"`
	Name               string `gorm:"size:255;not null;uniqueIndex"`
	Subdomain          string `gorm:"size:255;not null;uniqueIndex"`
	DestinationAddress string `gorm:"size:2048;not null"`
	UseCORSHeaders     bool   `gorm:"column:use_cors_headers;not null"`
	CreatedOn          time.Time
}

func (ProxyRouteModel) TableName() string { return "proxy_routes" }
