package out

import (
	"context"

	"github.com/bnema/proxied/internal/domain"
)

// HTTPSConfig carries what the https server block needs.
type HTTPSConfig struct {
	Certificate string
	PrivateKey  string
}

// ProxyConfig owns the per-route configuration directory tree.
type ProxyConfig interface {
	// EnsureRouteDir creates the route's directory if missing.
	EnsureRouteDir(name string) error
	// RemoveRouteDir recursively removes the route's directory.
	RemoveRouteDir(name string) error
	// RenameRouteDir moves a directory from oldName to newName if present.
	RenameRouteDir(oldName, newName string) (bool, error)
	// ListRouteDirs returns the directory names under the servers root.
	ListRouteDirs() ([]string, error)
	// RemoveStaleDir removes a directory returned by ListRouteDirs,
	// whether or not its name is a valid route name.
	RemoveStaleDir(name string) error
	// ReadDeployed parses the route's configuration files on disk.
	ReadDeployed(name string) (*domain.DeployedConfig, error)

	WriteUpstream(route *domain.Route) error
	WriteHTTP(route *domain.Route, redirectHTTPS bool) error
	WriteHTTPS(route *domain.Route, cfg HTTPSConfig) error
	// RemoveHTTPS deletes a stale https.conf. A missing file is not an error.
	RemoveHTTPS(name string) error
	// RemoveRouteConfs deletes every conf file of a route but keeps its directory.
	RemoveRouteConfs(name string) error

	// RemoveRouteLogs deletes rotated log files belonging to name and
	// returns the removed paths.
	RemoveRouteLogs(name string) ([]string, error)
}

// ProxyProcess controls the running proxy.
type ProxyProcess interface {
	// Test validates the on-disk configuration.
	Test(ctx context.Context) (*ExecResult, error)
	// Reload asks the running proxy to load its configuration.
	Reload(ctx context.Context) (*ExecResult, error)
	// Version returns the proxy version string, e.g. "1.25.3".
	Version(ctx context.Context) (string, error)
}

// ProxyStatusReader fetches live proxy counters.
type ProxyStatusReader interface {
	ReadStatus(ctx context.Context) (*domain.ProxyStatus, error)
}

// ProxyBootstrap prepares the directories and shared include files every
// route configuration depends on.
type ProxyBootstrap interface {
	// EnsureDirectories creates every configured directory and returns them.
	EnsureDirectories() ([]string, error)
	// WriteIncludes writes proxy.conf, ssl.conf and default.conf and returns
	// their paths. legacySSLOn adds the "ssl on" directive to ssl.conf.
	WriteIncludes(legacySSLOn bool) ([]string, error)
}
