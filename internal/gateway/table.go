package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"

	"github.com/chiwei-platform/phost/internal/domain"
)

// RouteSource lists the proxy routes to serve.
type RouteSource interface {
	FindAll(ctx context.Context) ([]*domain.ProxyRoute, error)
}

// Target is a parsed proxy route.
type Target struct {
	Route       *domain.ProxyRoute
	Destination *url.URL
}

// Table caches the proxy routes keyed by subdomain. Reload swaps the whole
// snapshot, so readers never see a half-built table.
type Table struct {
	source RouteSource

	mu      sync.RWMutex
	targets map[string]Target
}

func NewTable(source RouteSource) *Table {
	return &Table{source: source, targets: make(map[string]Target)}
}

// Reload re-reads every route. On error the previous snapshot stays in place.
func (t *Table) Reload(ctx context.Context) error {
	routes, err := t.source.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("load proxy routes: %w", err)
	}
	next := make(map[string]Target, len(routes))
	for _, r := range routes {
		dest, err := url.Parse(r.DestinationAddress)
		if err != nil || dest.Host == "" {
			slog.Warn("skipping proxy route with bad destination", "subdomain", r.Subdomain, "destination", r.DestinationAddress, "error", err)
			continue
		}
		next[r.Subdomain] = Target{Route: r, Destination: dest}
	}

	t.mu.Lock()
	t.targets = next
	t.mu.Unlock()
	slog.Info("proxy routes loaded", "count", len(next))
	return nil
}

func (t *Table) Lookup(subdomain string) (Target, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	target, ok := t.targets[subdomain]
	return target, ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.targets)
}

// Watch reloads the table on every value from reload until ctx is done.
// Register reload with signal.Notify before the initial Reload so that a
// notification sent during startup is buffered instead of dropped.
func (t *Table) Watch(ctx context.Context, reload <-chan os.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reload:
			// 重新加载失败时保留旧路由表，等待下一次通知。
			if err := t.Reload(ctx); err != nil {
				slog.Error("route reload failed", "error", err)
			}
		}
	}
}
