package nginx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/pkg/fsutil"
	"github.com/bnema/proxied/pkg/validation"
)

// Route configuration file names.
const (
	UpstreamConf = "upstream.conf"
	HTTPConf     = "http.conf"
	HTTPSConf    = "https.conf"
)

var routeConfs = []string{UpstreamConf, HTTPConf, HTTPSConf}

// Layout implements out.ProxyConfig on a servers directory.
type Layout struct {
	serversRoot string
	logsRoot    string
	renderer    *Renderer
}

var _ out.ProxyConfig = (*Layout)(nil)

// NewLayout creates a layout rooted at serversRoot.
func NewLayout(serversRoot, logsRoot string, renderer *Renderer) *Layout {
	return &Layout{serversRoot: serversRoot, logsRoot: logsRoot, renderer: renderer}
}

// routeDir resolves the directory of a route, refusing unsafe names.
func (l *Layout) routeDir(name string) (string, error) {
	if err := validation.ValidateRouteName(name); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnsafeRouteName, err)
	}
	return validation.ChildDir(l.serversRoot, name)
}

func (l *Layout) EnsureRouteDir(name string) error {
	dir, err := l.routeDir(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &domain.IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

func (l *Layout) RemoveRouteDir(name string) error {
	dir, err := l.routeDir(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return &domain.IOError{Op: "remove", Path: dir, Err: err}
	}
	return nil
}

// RenameRouteDir moves oldName to newName. It reports false when there was
// nothing to move. An existing target is replaced.
func (l *Layout) RenameRouteDir(oldName, newName string) (bool, error) {
	from, err := l.routeDir(oldName)
	if err != nil {
		return false, err
	}
	to, err := l.routeDir(newName)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(from); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(to); err != nil {
		return false, &domain.IOError{Op: "remove", Path: to, Err: err}
	}
	if err := os.Rename(from, to); err != nil {
		return false, &domain.IOError{Op: "rename", Path: from, Err: err}
	}
	return true, nil
}

// ListRouteDirs returns the sorted directory names under the servers root.
// A missing root yields an empty list.
func (l *Layout) ListRouteDirs() ([]string, error) {
	entries, err := os.ReadDir(l.serversRoot)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.IOError{Op: "readdir", Path: l.serversRoot, Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RemoveStaleDir removes a directory listed by ListRouteDirs. Any single
// path element below the servers root is accepted, including names no
// route could carry.
func (l *Layout) RemoveStaleDir(name string) error {
	dir, err := validation.ChildDir(l.serversRoot, name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return &domain.IOError{Op: "remove", Path: dir, Err: err}
	}
	return nil
}

// ReadDeployed parses the configuration files of a route as they are on
// disk. A route without http.conf yields Present false.
func (l *Layout) ReadDeployed(name string) (*domain.DeployedConfig, error) {
	dir, err := l.routeDir(name)
	if err != nil {
		return nil, err
	}
	deployed := &domain.DeployedConfig{}

	http, err := l.readConf(dir, HTTPConf)
	if err != nil {
		return nil, err
	}
	if http != nil {
		deployed.Present = true
		deployed.ServerNames = parseServerNames(http)
	}

	upstream, err := l.readConf(dir, UpstreamConf)
	if err != nil {
		return nil, err
	}
	deployed.Upstreams = parseUpstreamServers(upstream)

	https, err := l.readConf(dir, HTTPSConf)
	if err != nil {
		return nil, err
	}
	deployed.HTTPS = https != nil
	return deployed, nil
}

// readConf returns nil for a missing file.
func (l *Layout) readConf(dir, file string) ([]byte, error) {
	path := filepath.Join(dir, file)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

func (l *Layout) write(name, file string, data []byte) error {
	dir, err := l.routeDir(name)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, file)
	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return &domain.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func (l *Layout) WriteUpstream(route *domain.Route) error {
	data, err := l.renderer.Upstream(route)
	if err != nil {
		return err
	}
	return l.write(route.Name, UpstreamConf, data)
}

func (l *Layout) WriteHTTP(route *domain.Route, redirectHTTPS bool) error {
	data, err := l.renderer.HTTP(route, redirectHTTPS)
	if err != nil {
		return err
	}
	return l.write(route.Name, HTTPConf, data)
}

func (l *Layout) WriteHTTPS(route *domain.Route, cfg out.HTTPSConfig) error {
	data, err := l.renderer.HTTPS(route, cfg.Certificate, cfg.PrivateKey)
	if err != nil {
		return err
	}
	return l.write(route.Name, HTTPSConf, data)
}

func (l *Layout) removeConf(name, file string) error {
	dir, err := l.routeDir(name)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, file)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &domain.IOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

func (l *Layout) RemoveHTTPS(name string) error {
	return l.removeConf(name, HTTPSConf)
}

func (l *Layout) RemoveRouteConfs(name string) error {
	for _, file := range routeConfs {
		if err := l.removeConf(name, file); err != nil {
			return err
		}
	}
	return nil
}

// RemoveRouteLogs deletes <name>.access.log* and <name>.error.log* below
// the logs root. The shared access.log and error.log are never matched.
// name may be any directory listed by ListRouteDirs.
func (l *Layout) RemoveRouteLogs(name string) ([]string, error) {
	if _, err := validation.ChildDir(l.logsRoot, name); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsafeRouteName, err)
	}
	if strings.ContainsAny(name, `*?[\`) {
		return nil, fmt.Errorf("%w: %q contains glob characters", domain.ErrUnsafeRouteName, name)
	}
	var removed []string
	var errs []error
	for _, pattern := range []string{name + ".access.log*", name + ".error.log*"} {
		matches, err := filepath.Glob(filepath.Join(l.logsRoot, pattern))
		if err != nil {
			return removed, err
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, &domain.IOError{Op: "remove", Path: m, Err: err})
				continue
			}
			removed = append(removed, m)
		}
	}
	return removed, errors.Join(errs...)
}
