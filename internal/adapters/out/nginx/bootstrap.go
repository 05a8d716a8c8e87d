package nginx

import (
	"os"
	"path/filepath"

	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/pkg/fsutil"
)

// Shared include file names.
const (
	ProxyIncludeConf  = "proxy.conf"
	SSLIncludeConf    = "ssl.conf"
	DefaultServerConf = "default.conf"
)

// BootstrapConfig locates the shared files.
type BootstrapConfig struct {
	IncludesRoot string
	ConfRoot     string
	// Directories are created in order, in addition to the two roots.
	Directories []string
}

// Bootstrap implements out.ProxyBootstrap.
type Bootstrap struct {
	cfg      BootstrapConfig
	renderer *Renderer
}

var _ out.ProxyBootstrap = (*Bootstrap)(nil)

// NewBootstrap creates a bootstrapper writing with renderer.
func NewBootstrap(cfg BootstrapConfig, renderer *Renderer) *Bootstrap {
	return &Bootstrap{cfg: cfg, renderer: renderer}
}

func (b *Bootstrap) EnsureDirectories() ([]string, error) {
	dirs := append([]string{b.cfg.IncludesRoot, b.cfg.ConfRoot}, b.cfg.Directories...)
	created := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return created, &domain.IOError{Op: "mkdir", Path: dir, Err: err}
		}
		created = append(created, dir)
	}
	return created, nil
}

func (b *Bootstrap) WriteIncludes(legacySSLOn bool) ([]string, error) {
	files := []struct {
		path   string
		render func() ([]byte, error)
	}{
		{filepath.Join(b.cfg.IncludesRoot, ProxyIncludeConf), b.renderer.ProxyInclude},
		{filepath.Join(b.cfg.IncludesRoot, SSLIncludeConf), func() ([]byte, error) { return b.renderer.SSLInclude(legacySSLOn) }},
		{filepath.Join(b.cfg.ConfRoot, DefaultServerConf), b.renderer.DefaultServer},
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		data, err := f.render()
		if err != nil {
			return written, err
		}
		if err := fsutil.WriteFileAtomic(f.path, data, 0644); err != nil {
			return written, &domain.IOError{Op: "write", Path: f.path, Err: err}
		}
		written = append(written, f.path)
	}
	return written, nil
}
