package domain

import (
	"fmt"
	"time"
)

// Deployment 代表一个绑定到子域名的静态站点，拥有一个或多个版本。
// 文件系统布局：<host_root>/<subdomain>/<version>/...，<host_root>/<subdomain>/latest 指向当前激活版本。
type Deployment struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Subdomain        string     `json:"subdomain"`
	NotFoundDocument string     `json:"not_found_document,omitempty"`
	Categories       []string   `json:"categories"`
	Versions         []*Version `json:"versions,omitempty"`
	CreatedOn        time.Time  `json:"created_on"`
}

// URL 拼出站点的访问地址：<protocol>://<subdomain>.<base_domain>/
func (d *Deployment) URL(protocol, baseDomain string) string {
	return fmt.Sprintf("%s://%s.%s/", protocol, d.Subdomain, baseDomain)
}

// ActiveVersion 返回当前激活的版本；删除激活版本后可能不存在。
func (d *Deployment) ActiveVersion() (*Version, bool) {
	for _, v := range d.Versions {
		if v.Active {
			return v, true
		}
	}
	return nil, false
}

// Version 是 Deployment 的一份不可变制品。同一 Deployment 下最多一个 Active。
type Version struct {
	ID           string    `json:"id"`
	DeploymentID string    `json:"deployment_id"`
	Version      string    `json:"version"`
	Active       bool      `json:"active"`
	CreatedOn    time.Time `json:"created_on"`
}

// Category 用于给 Deployment 分组，首次引用时创建，不会被生命周期引擎删除。
type Category struct {
	ID       uint   `json:"id"`
	Category string `json:"category"`
}
