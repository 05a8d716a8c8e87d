package nginx

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/internal/testutils"
)

func TestBootstrap_WritesIncludes(t *testing.T) {
	root := t.TempDir()
	b := NewBootstrap(BootstrapConfig{
		IncludesRoot: filepath.Join(root, "includes"),
		ConfRoot:     filepath.Join(root, "conf"),
		Directories:  []string{filepath.Join(root, "servers"), ""},
	}, newTestRenderer(t))

	dirs, err := b.EnsureDirectories()
	require.NoError(t, err)
	assert.Len(t, dirs, 3)
	for _, d := range dirs {
		assert.DirExists(t, d)
	}

	files, err := b.WriteIncludes(true)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Contains(t, testutils.ReadFile(t, files[1]), "ssl on;")
	assert.Contains(t, testutils.ReadFile(t, files[2]), "stub_status on;")

	files, err = b.WriteIncludes(false)
	require.NoError(t, err)
	assert.NotContains(t, testutils.ReadFile(t, files[1]), "ssl on;")
}

func TestBootstrap_WriteWithoutDirectories(t *testing.T) {
	root := t.TempDir()
	b := NewBootstrap(BootstrapConfig{
		IncludesRoot: filepath.Join(root, "missing"),
		ConfRoot:     filepath.Join(root, "conf"),
	}, newTestRenderer(t))

	_, err := b.WriteIncludes(false)

	var ioErr *domain.IOError
	assert.ErrorAs(t, err, &ioErr)
}
