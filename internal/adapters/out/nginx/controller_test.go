package nginx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/proxied/internal/testutils"
)

func TestController_DefaultCommands(t *testing.T) {
	exec := testutils.NewFakeExecutor().On("nginx -t", 1, "", "emerg")
	c := NewController(exec, Commands{})

	res, err := c.Test(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)

	_, err = c.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"nginx -t", "nginx -s reload"}, exec.Calls())
}

func TestController_CustomCommands(t *testing.T) {
	exec := testutils.NewFakeExecutor()
	c := NewController(exec, Commands{
		Test:   []string{"/usr/sbin/nginx", "-t", "-q"},
		Reload: []string{"systemctl", "reload", "nginx"},
	})

	_, _ = c.Test(context.Background())
	_, _ = c.Reload(context.Background())
	assert.Equal(t, []string{"/usr/sbin/nginx -t -q", "systemctl reload nginx"}, exec.Calls())
}

func TestController_Version(t *testing.T) {
	exec := testutils.NewFakeExecutor().On("nginx -v", 0, "", "nginx version: nginx/1.14.2\n")
	c := NewController(exec, Commands{})

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.14.2", v)
}

func TestController_VersionErrors(t *testing.T) {
	exec := testutils.NewFakeExecutor().On("nginx -v", 0, "openresty", "")
	_, err := NewController(exec, Commands{}).Version(context.Background())
	assert.Error(t, err)

	exec = testutils.NewFakeExecutor().OnError("nginx -v", errors.New("not found"))
	_, err = NewController(exec, Commands{}).Version(context.Background())
	assert.Error(t, err)
}
