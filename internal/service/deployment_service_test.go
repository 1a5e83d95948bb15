package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chiwei-platform/phost/internal/adapter/archive/archivetest"
	"github.com/chiwei-platform/phost/internal/adapter/artifact"
	"github.com/chiwei-platform/phost/internal/adapter/repository"
	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// --- stubs ---

type recordingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *recordingNotifier) Notify(_ context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// commitFailCatalog 让 fn 正常执行完，再以 err 中止事务，模拟提交时才发现的冲突。
type commitFailCatalog struct {
	port.Catalog
	err error
}

func (c *commitFailCatalog) Transaction(ctx context.Context, fn func(tx port.Catalog) error) error {
	return c.Catalog.Transaction(ctx, func(tx port.Catalog) error {
		if err := fn(tx); err != nil {
			return err
		}
		return c.err
	})
}

// rereadFailCatalog 的事务照常提交，但事务外的 Deployment 查询失败。
type rereadFailCatalog struct {
	port.Catalog
}

func (c *rereadFailCatalog) Deployments() port.DeploymentRepository {
	return failingFindRepo{c.Catalog.Deployments()}
}

type failingFindRepo struct {
	port.DeploymentRepository
}

func (failingFindRepo) Find(context.Context, domain.Ref) (*domain.Deployment, error) {
	return nil, errors.New("connection reset")
}

// brokenCleanupStore 的删除操作总是失败。
type brokenCleanupStore struct {
	port.ArtifactStore
}

func (s *brokenCleanupStore) DeleteDeployment(string) error { return errors.New("disk on fire") }
func (s *brokenCleanupStore) DeleteVersion(string, string) error { return errors.New("disk on fire") }

type fixture struct {
	db       *gorm.DB
	catalog  *repository.Store
	store    *artifact.Store
	notifier *recordingNotifier
	svc      *DeploymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	db := repository.OpenTestDB(t)
	f := &fixture{
		db:       db,
		catalog:  repository.NewStore(db),
		store:    store,
		notifier: &recordingNotifier{},
	}
	f.svc = NewDeploymentService(f.catalog, f.store, f.notifier)
	return f
}

func site(t *testing.T, marker string) []byte {
	return archivetest.TarGz(t, map[string]string{
		"index.html":  "<h1>" + marker + "</h1>",
		"404.html":    "missing " + marker,
		"css/app.css": "body{}",
	})
}

func bySubdomain(s string) domain.Ref {
	return domain.Ref{Field: domain.LookupBySubdomain, Value: s}
}

func readLatest(t *testing.T, store *artifact.Store, subdomain, file string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(store.DeploymentRoot(subdomain), domain.LatestLink, file))
	require.NoError(t, err)
	return string(b)
}

func versionDirs(t *testing.T, store *artifact.Store, subdomain string) []string {
	t.Helper()
	entries, err := os.ReadDir(store.DeploymentRoot(subdomain))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}

func createDemo(t *testing.T, f *fixture) *domain.Deployment {
	t.Helper()
	d, err := f.svc.CreateDeployment(context.Background(), CreateDeploymentRequest{
		Name:       "Demo Site",
		Subdomain:  "demo",
		Version:    "0.1.0",
		Categories: []string{"docs"},
		Filename:   "site.tar.gz",
		Archive:    site(t, "v1"),
	})
	require.NoError(t, err)
	return d
}

// --- create ---

func TestCreateDeployment_Success(t *testing.T) {
	f := newFixture(t)
	d := createDemo(t, f)

	assert.Equal(t, "https://demo.example.com/", d.URL("https", "example.com"))
	assert.Equal(t, []string{"docs"}, d.Categories)
	require.Len(t, d.Versions, 1)
	assert.True(t, d.Versions[0].Active)
	assert.Equal(t, "<h1>v1</h1>", readLatest(t, f.store, "demo", "index.html"))

	active, err := f.store.ActiveVersion("demo")
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", active)
	assert.Equal(t, 1, f.notifier.count())
}

func TestCreateDeployment_NormalizesInput(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.CreateDeployment(context.Background(), CreateDeploymentRequest{
		Name:      "Demo",
		Subdomain: " DEMO ",
		Version:   "V1",
		Archive:   site(t, "v1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "demo", d.Subdomain)
	assert.Equal(t, "v1", d.Versions[0].Version)
}

func TestCreateDeployment_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  CreateDeploymentRequest
	}{
		{"bad name", CreateDeploymentRequest{Name: "demo.site", Subdomain: "demo", Version: "1"}},
		{"bad subdomain", CreateDeploymentRequest{Name: "Demo", Subdomain: "-demo", Version: "1"}},
		{"reserved version", CreateDeploymentRequest{Name: "Demo", Subdomain: "demo", Version: "latest"}},
		{"escaping document", CreateDeploymentRequest{Name: "Demo", Subdomain: "demo", Version: "1", NotFoundDocument: "../../etc/passwd"}},
		{"missing archive", CreateDeploymentRequest{Name: "Demo", Subdomain: "demo", Version: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.name != "missing archive" {
				tt.req.Archive = site(t, "x")
			}
			_, err := f.svc.CreateDeployment(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Empty(t, versionDirs(t, f.store, "demo"))
			assert.Zero(t, f.notifier.count())
		})
	}
}

func TestCreateDeployment_DuplicateSubdomainLeavesOriginal(t *testing.T) {
	f := newFixture(t)
	createDemo(t, f)

	_, err := f.svc.CreateDeployment(context.Background(), CreateDeploymentRequest{
		Name:      "Other",
		Subdomain: "demo",
		Version:   "9.9.9",
		Archive:   site(t, "other"),
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, []string{"0.1.0"}, versionDirs(t, f.store, "demo"))
	assert.Equal(t, "<h1>v1</h1>", readLatest(t, f.store, "demo", "index.html"))
}

func TestCreateDeployment_CorruptArchiveRollsBack(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateDeployment(context.Background(), CreateDeploymentRequest{
		Name:      "Demo",
		Subdomain: "demo",
		Version:   "0.1.0",
		Archive:   []byte("definitely not an archive"),
	})
	assert.ErrorIs(t, err, domain.ErrArchive)
	assert.False(t, f.store.Exists("demo"))

	all, err := f.svc.ListDeployments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateDeployment_CommitTimeAbortCompensates(t *testing.T) {
	f := newFixture(t)
	conflict := errors.New("commit aborted")
	svc := NewDeploymentService(&commitFailCatalog{Catalog: f.catalog, err: conflict}, f.store, f.notifier)

	_, err := svc.CreateDeployment(context.Background(), CreateDeploymentRequest{
		Name:      "Demo",
		Subdomain: "demo",
		Version:   "0.1.0",
		Archive:   site(t, "v1"),
	})
	assert.ErrorIs(t, err, conflict)
	assert.False(t, f.store.Exists("demo"), "extracted tree must be removed")

	all, err := f.catalog.Deployments().FindAllWithVersions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Zero(t, f.notifier.count())
}

func TestCreateDeployment_FailedCompensationIsInconsistent(t *testing.T) {
	f := newFixture(t)
	svc := NewDeploymentService(
		&commitFailCatalog{Catalog: f.catalog, err: errors.New("commit aborted")},
		&brokenCleanupStore{ArtifactStore: f.store},
		f.notifier,
	)
	_, err := svc.CreateDeployment(context.Background(), CreateDeploymentRequest{
		Name:      "Demo",
		Subdomain: "demo",
		Version:   "0.1.0",
		Archive:   site(t, "v1"),
	})
	assert.ErrorIs(t, err, domain.ErrInconsistent)
}

// --- add / activate ---

func TestAddVersion_SwitchesActive(t *testing.T) {
	f := newFixture(t)
	createDemo(t, f)
	ctx := context.Background()

	v, err := f.svc.AddVersion(ctx, bySubdomain("demo"), AddVersionRequest{Version: "0.2.0", Archive: site(t, "v2")})
	require.NoError(t, err)
	assert.True(t, v.Active)
	assert.Equal(t, "<h1>v2</h1>", readLatest(t, f.store, "demo", "index.html"))

	d, err := f.svc.GetDeployment(ctx, bySubdomain("demo"))
	require.NoError(t, err)
	active, ok := d.ActiveVersion()
	require.True(t, ok)
	assert.Equal(t, "0.2.0", active.Version)
	for _, ver := range d.Versions {
		if ver.Version == "0.1.0" {
			assert.False(t, ver.Active)
		}
	}
	assert.ElementsMatch(t, []string{"0.1.0", "0.2.0"}, versionDirs(t, f.store, "demo"))
	assert.Equal(t, 2, f.notifier.count())
}

func TestAddVersion_CaseInsensitiveConflict(t *testing.T) {
	f := newFixture(t)
	createDemo(t, f)

	_, err := f.svc.AddVersion(context.Background(), bySubdomain("demo"), AddVersionRequest{Version: "0.1.0", Archive: site(t, "dup")})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = f.svc.CreateDeployment(context.Background(), CreateDeploymentRequest{
		Name: "Upper", Subdomain: "upper", Version: "V1", Archive: site(t, "u"),
	})
	require.NoError(t, err)
	_, err = f.svc.AddVersion(context.Background(), bySubdomain("upper"), AddVersionRequest{Version: "v1", Archive: site(t, "u2")})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	assert.Equal(t, []string{"0.1.0"}, versionDirs(t, f.store, "demo"))
	assert.Equal(t, "<h1>v1</h1>", readLatest(t, f.store, "demo", "index.html"))
}

func TestAddVersion_UnknownDeployment(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddVersion(context.Background(), bySubdomain("ghost"), AddVersionRequest{Version: "1", Archive: site(t, "x")})
	assert.ErrorIs(t, err, domain.ErrDeploymentNotFound)
	assert.False(t, f.store.Exists("ghost"))
}

func TestAddVersion_TransactionFailureRemovesDirectory(t *testing.T) {
	f := newFixture(t)
	createDemo(t, f)
	svc := NewDeploymentService(&commitFailCatalog{Catalog: f.catalog, err: errors.New("serialization failure")}, f.store, f.notifier)

	_, err := svc.AddVersion(context.Background(), bySubdomain("demo"), AddVersionRequest{Version: "0.2.0", Archive: site(t, "v2")})
	require.Error(t, err)
	assert.Equal(t, []string{"0.1.0"}, versionDirs(t, f.store, "demo"))
	assert.Equal(t, "<h1>v1</h1>", readLatest(t, f.store, "demo", "index.html"))

	_, err = f.svc.GetVersion(context.Background(), bySubdomain("demo"), "0.2.0")
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
}

func TestActivateVersion_Rollback(t *testing.T) {
	f := newFixture(t)
	createDemo(t, f)
	ctx := context.Background()
	_, err := f.svc.AddVersion(ctx, bySubdomain("demo"), AddVersionRequest{Version: "0.2.0", Archive: site(t, "v2")})
	require.NoError(t, err)

	v, err := f.svc.ActivateVersion(ctx, bySubdomain("demo"), "0.1.0")
	require.NoError(t, err)
	assert.True(t, v.Active)
	assert.Equal(t, "<h1>v1</h1>", readLatest(t, f.store, "demo", "index.html"))

	_, err = f.svc.ActivateVersion(ctx, bySubdomain("demo"), "7.7.7")
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
}

func TestActivateVersion_MissingDirectoryIsInconsistent(t *testing.T) {
	f := newFixture(t)
	createDemo(t, f)
	ctx := context.Background()
	_, err := f.svc.AddVersion(ctx, bySubdomain("demo"), AddVersionRequest{Version: "0.2.0", Archive: site(t, "v2")})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(f.store.VersionDir("demo", "0.1.0")))

	_, err = f.svc.ActivateVersion(ctx, bySubdomain("demo"), "0.1.0")
	assert.ErrorIs(t, err, domain.ErrInconsistent)
}

// --- delete ---

func TestDeleteVersion_NonLastKeepsDeployment(t *testing.T) {
	f := newFixture(t)
	createDemo(t, f)
	ctx := context.Background()
	_, err := f.svc.AddVersion(ctx, bySubdomain("demo"), AddVersionRequest{Version: "0.2.0", Archive: site(t, "v2")})
	require.NoError(t, err)

	deleted, err := f.svc.DeleteVersion(ctx, bySubdomain("demo"), "0.1.0")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, []string{"0.2.0"}, versionDirs(t, f.store, "demo"))
	assert.Equal(t, "<h1>v2</h1>", readLatest(t, f.store, "demo", "index.html"))
}

func TestDeleteVersion_ActiveIsNotPromoted(t *testing.T) {
	f := newFixture(t)
	createDemo(t, f)
	ctx := context.Background()
	_, err := f.svc.AddVersion(ctx, bySubdomain("demo"), AddVersionRequest{Version: "0.2.0", Archive: site(t, "v2")})
	require.NoError(t, err)

	_, err = f.svc.DeleteVersion(ctx, bySubdomain("demo"), "0.2.0")
	require.NoError(t, err)

	d, err := f.svc.GetDeployment(ctx, bySubdomain("demo"))
	require.NoError(t, err)
	_, ok := d.ActiveVersion()
	assert.False(t, ok)
}

func TestDeleteVersion_LastRemovesDeployment(t *testing.T) {
	f := newFixture(t)
	createDemo(t, f)
	ctx := context.Background()

	deleted, err := f.svc.DeleteVersion(ctx, bySubdomain("demo"), "0.1.0")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, f.store.Exists("demo"))

	_, err = f.svc.GetDeployment(ctx, bySubdomain("demo"))
	assert.ErrorIs(t, err, domain.ErrDeploymentNotFound)
}

func TestDeleteVersion_MissingDirectoryIsNoop(t *testing.T) {
	f := newFixture(t)
	createDemo(t, f)
	ctx := context.Background()
	_, err := f.svc.AddVersion(ctx, bySubdomain("demo"), AddVersionRequest{Version: "0.2.0", Archive: site(t, "v2")})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(f.store.VersionDir("demo", "0.1.0")))

	_, err = f.svc.DeleteVersion(ctx, bySubdomain("demo"), "0.1.0")
	assert.NoError(t, err)
}

func TestDeleteVersion_Unknown(t *testing.T) {
	f := newFixture(t)
	createDemo(t, f)
	_, err := f.svc.DeleteVersion(context.Background(), bySubdomain("demo"), "9.9.9")
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
	assert.Equal(t, []string{"0.1.0"}, versionDirs(t, f.store, "demo"))
}

func TestDeleteDeployment(t *testing.T) {
	f := newFixture(t)
	d := createDemo(t, f)
	ctx := context.Background()

	require.NoError(t, f.svc.DeleteDeployment(ctx, domain.Ref{Field: domain.LookupByID, Value: d.ID}))
	assert.False(t, f.store.Exists("demo"))

	err := f.svc.DeleteDeployment(ctx, domain.Ref{Field: domain.LookupByID, Value: d.ID})
	assert.ErrorIs(t, err, domain.ErrDeploymentNotFound)

	cats, err := f.svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 1)
}

func TestDeleteDeployment_CleanupFailureStillCommits(t *testing.T) {
	f := newFixture(t)
	createDemo(t, f)
	svc := NewDeploymentService(f.catalog, &brokenCleanupStore{ArtifactStore: f.store}, f.notifier)

	require.NoError(t, svc.DeleteDeployment(context.Background(), domain.Ref{Field: domain.LookupByName, Value: "Demo Site"}))
	_, err := f.svc.GetDeployment(context.Background(), bySubdomain("demo"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, f.store.Exists("demo"), "orphaned tree is left in place")
}

func TestCreateDeployment_RereadFailureStillReportsSuccess(t *testing.T) {
	f := newFixture(t)
	svc := NewDeploymentService(&rereadFailCatalog{Catalog: f.catalog}, f.store, f.notifier)

	d, err := svc.CreateDeployment(context.Background(), CreateDeploymentRequest{
		Name:       "Demo Site",
		Subdomain:  "demo",
		Version:    "0.1.0",
		Categories: []string{"docs"},
		Archive:    site(t, "v1"),
	})
	require.NoError(t, err)
	require.Len(t, d.Versions, 1)
	assert.True(t, d.Versions[0].Active)
	assert.Equal(t, []string{"docs"}, d.Categories)
	assert.Equal(t, 1, f.notifier.count())

	stored, err := f.catalog.Deployments().Find(context.Background(), bySubdomain("demo"))
	require.NoError(t, err)
	assert.Equal(t, d.ID, stored.ID)
}
