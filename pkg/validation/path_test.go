package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathWithinRoot(t *testing.T) {
	tests := []struct {
		name    string
		root    string
		path    string
		wantErr bool
	}{
		{name: "child", root: "/etc/letsencrypt/live", path: "/etc/letsencrypt/live/example.com"},
		{name: "root itself", root: "/srv", path: "/srv/"},
		{name: "nested", root: "/srv", path: "/srv/a/b"},
		{name: "traversal", root: "/srv", path: "/srv/../etc", wantErr: true},
		{name: "sibling with shared prefix", root: "/srv", path: "/srvx/a", wantErr: true},
		{name: "outside", root: "/srv", path: "/etc/passwd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := PathWithinRoot(tt.root, tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestChildDir(t *testing.T) {
	dir, err := ChildDir("/etc/letsencrypt/live", "example.com")
	require.NoError(t, err)
	assert.Equal(t, "/etc/letsencrypt/live/example.com", dir)

	for _, bad := range []string{"", ".", "..", "a/b", "../x"} {
		_, err := ChildDir("/srv", bad)
		assert.Error(t, err, bad)
	}
}
