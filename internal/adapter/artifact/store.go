// Package artifact owns the on-disk hosting layout:
//
//	<root>/<subdomain>/<version>/...   extracted archive contents
//	<root>/<subdomain>/latest          symlink to the active version directory
//
// It never touches the catalog.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chiwei-platform/phost/internal/adapter/archive"
	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/port"
	"github.com/google/uuid"
)

var _ port.ArtifactStore = (*Store)(nil)

// scratchDir holds uploaded archives while they are extracted. Subdomains are
// DNS labels and can never start with a dot, so it cannot collide with one.
const scratchDir = ".tmp"

type Store struct {
	root string
}

// NewStore prepares root (and its scratch directory) and returns a Store on it.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve host root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, scratchDir), 0o755); err != nil {
		return nil, fmt.Errorf("create host root: %w", err)
	}
	return &Store{root: abs}, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) DeploymentRoot(subdomain string) string {
	return filepath.Join(s.root, subdomain)
}

func (s *Store) VersionDir(subdomain, version string) string {
	return filepath.Join(s.root, subdomain, version)
}

func (s *Store) latestPath(subdomain string) string {
	return filepath.Join(s.root, subdomain, domain.LatestLink)
}

func (s *Store) Exists(subdomain string) bool {
	_, err := os.Lstat(s.DeploymentRoot(subdomain))
	return err == nil
}

// Extract writes archiveData to a scratch file and unpacks it into
// <root>/<subdomain>/<version>. The version directory must not exist yet.
// A failed extraction removes whatever it wrote below the version directory.
func (s *Store) Extract(ctx context.Context, archiveData []byte, filename, subdomain, version string) (string, error) {
	if err := checkSegments(subdomain, version); err != nil {
		return "", err
	}
	if len(archiveData) == 0 {
		return "", fmt.Errorf("%w: no archive supplied", domain.ErrArchive)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := s.VersionDir(subdomain, version)
	if _, err := os.Lstat(dst); err == nil {
		return "", fmt.Errorf("%w: version directory %s/%s", domain.ErrAlreadyExists, subdomain, version)
	}

	scratch := filepath.Join(s.root, scratchDir, uuid.NewString())
	if err := os.WriteFile(scratch, archiveData, 0o600); err != nil {
		return "", fmt.Errorf("write scratch archive: %w", err)
	}
	defer os.Remove(scratch)

	f, err := os.Open(scratch)
	if err != nil {
		return "", fmt.Errorf("open scratch archive: %w", err)
	}
	defer f.Close()

	if err := archive.Extract(f, dst, archive.FormatFromFilename(filename)); err != nil {
		if rmErr := os.RemoveAll(dst); rmErr != nil {
			return "", errors.Join(err, fmt.Errorf("%w: remove partial extraction %s: %v", domain.ErrInconsistent, dst, rmErr))
		}
		return "", err
	}
	return dst, nil
}

// Activate atomically repoints <subdomain>/latest at the version directory:
// the new link is created under a temporary name and renamed over the old
// one, so readers always see either the old or the new target.
func (s *Store) Activate(subdomain, version string) error {
	if err := checkSegments(subdomain, version); err != nil {
		return err
	}
	fi, err := os.Stat(s.VersionDir(subdomain, version))
	if err != nil {
		return fmt.Errorf("activate %s/%s: %w", subdomain, version, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("activate %s/%s: not a directory", subdomain, version)
	}

	tmp := filepath.Join(s.DeploymentRoot(subdomain), ".latest-"+uuid.NewString())
	if err := os.Symlink(version, tmp); err != nil {
		return fmt.Errorf("create temporary link: %w", err)
	}
	if err := os.Rename(tmp, s.latestPath(subdomain)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace latest link: %w", err)
	}
	return nil
}

// ActiveVersion reports which version directory latest currently points at.
func (s *Store) ActiveVersion(subdomain string) (string, error) {
	target, err := os.Readlink(s.latestPath(subdomain))
	if err != nil {
		return "", err
	}
	return filepath.Base(target), nil
}

// DeleteVersion removes one version tree. Missing directories are not an error.
func (s *Store) DeleteVersion(subdomain, version string) error {
	if err := checkSegments(subdomain, version); err != nil {
		return err
	}
	if err := os.RemoveAll(s.VersionDir(subdomain, version)); err != nil {
		return fmt.Errorf("delete version %s/%s: %w", subdomain, version, err)
	}
	return nil
}

// DeleteDeployment removes the whole subdomain tree, latest included.
func (s *Store) DeleteDeployment(subdomain string) error {
	if err := checkSegments(subdomain); err != nil {
		return err
	}
	if err := os.RemoveAll(s.DeploymentRoot(subdomain)); err != nil {
		return fmt.Errorf("delete deployment %s: %w", subdomain, err)
	}
	return nil
}

// checkSegments guards every path built from caller input: an empty or
// multi-level segment would widen a RemoveAll to the wrong tree.
func checkSegments(segments ...string) error {
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." || filepath.Base(seg) != seg {
			return fmt.Errorf("%w: invalid path segment %q", domain.ErrInvalidInput, seg)
		}
	}
	return nil
}
