package port

import "context"

// ArtifactStore 负责 <host_root>/<subdomain>/<version> 目录布局，不接触 catalog。
type ArtifactStore interface {
	// Extract 把归档解压到 <subdomain>/<version>，返回目标目录。
	Extract(ctx context.Context, archive []byte, filename, subdomain, version string) (string, error)
	// Activate 原子地把 <subdomain>/latest 指向 version 目录。
	Activate(subdomain, version string) error
	DeleteVersion(subdomain, version string) error
	DeleteDeployment(subdomain string) error
	Exists(subdomain string) bool
	DeploymentRoot(subdomain string) string
}
