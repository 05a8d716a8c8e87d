package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/proxied/internal/adapters/out/acme"
	"github.com/bnema/proxied/internal/adapters/out/lego"
	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/config"
	"github.com/bnema/proxied/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	v := config.NewViper()
	v.Set("paths.servers_root", filepath.Join(root, "servers"))
	v.Set("paths.includes_root", filepath.Join(root, "includes"))
	v.Set("paths.conf_root", filepath.Join(root, "conf"))
	v.Set("paths.certs_root", filepath.Join(root, "live"))
	v.Set("paths.manual_certs_root", filepath.Join(root, "manual"))
	v.Set("paths.selfsigned_certs_root", filepath.Join(root, "selfsigned"))
	v.Set("paths.challenge_doc_root", filepath.Join(root, "challenge"))
	v.Set("paths.logs_root", filepath.Join(root, "logs"))
	v.Set("store.path", filepath.Join(root, "data", "proxied.db"))
	v.Set("lock.path", filepath.Join(root, "proxied.lock"))
	v.Set("proxy.test_command", []string{"true"})
	v.Set("proxy.reload_command", []string{"true"})
	v.Set("proxy.version_command", []string{"true"})
	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

func TestNewKernel(t *testing.T) {
	cfg := testConfig(t)

	kernel, err := NewKernel(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, kernel.Close()) })

	require.NotNil(t, kernel.Routes())
	require.NotNil(t, kernel.Build())
	require.NotNil(t, kernel.Reconcile())
	require.NotNil(t, kernel.Setup())
	require.NotNil(t, kernel.Status())
	require.NotNil(t, kernel.Certificates())
}

func TestKernel_AddAndBuild(t *testing.T) {
	cfg := testConfig(t)
	kernel, err := NewKernel(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kernel.Close() })
	ctx := context.Background()

	_, err = kernel.Setup().Run(ctx)
	require.NoError(t, err)

	name := "app"
	_, err = kernel.Routes().Add(ctx, in.RouteInput{
		Name:      &name,
		Domains:   []string{"app.example.com"},
		Upstreams: []in.UpstreamInput{{IP: "127.0.0.1", Port: 3000}},
	})
	require.NoError(t, err)

	report, err := kernel.Build().Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, report.Built)
	assert.True(t, report.Activated)
	assert.FileExists(t, filepath.Join(cfg.Paths.ServersRoot, "app", "http.conf"))
}

func TestNewScheduler_RegistersTasks(t *testing.T) {
	kernel, err := NewKernel(context.Background(), testConfig(t), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kernel.Close() })

	sched, err := kernel.NewScheduler()
	require.NoError(t, err)

	var ids []string
	for _, e := range sched.List() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{TaskBuild, TaskReconcile, TaskSetup}, ids)
}

func TestNewACMEClient_Driver(t *testing.T) {
	cfg := testConfig(t)

	assert.IsType(t, &acme.Client{}, newACMEClient(cfg.ACME, logger.Nop()))

	cfg.ACME.Driver = config.DriverLego
	assert.IsType(t, &lego.Client{}, newACMEClient(cfg.ACME, logger.Nop()))
}
