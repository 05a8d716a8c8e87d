package cli

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/proxied/internal/domain"
)

func TestBuildCmd_Report(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	fc := newFakeController()
	fc.build.On("Build", mockCtx).Return(&domain.BuildReport{
		Started:        start,
		Finished:       start.Add(1500 * time.Millisecond),
		Processed:      []string{"app", "old", "off"},
		Built:          []string{"app"},
		Deleted:        []string{"old"},
		Disabled:       []string{"off"},
		Activated:      true,
		ReloadWarnings: "nginx: [warn] duplicate MIME type\n",
	}, nil)

	out, err := run(t, fc, "build")
	require.NoError(t, err)
	assert.Contains(t, out, "built app")
	assert.Contains(t, out, "deleted old")
	assert.Contains(t, out, "disabled off")
	assert.Contains(t, out, "duplicate MIME type")
	assert.Contains(t, out, "nginx reloaded in 1.5s")
}

func TestBuildCmd_NothingChanged(t *testing.T) {
	fc := newFakeController()
	fc.build.On("Build", mockCtx).Return(&domain.BuildReport{}, nil)

	out, err := run(t, fc, "build")
	require.NoError(t, err)
	assert.Contains(t, out, "No changed routes")
}

func TestBuildCmd_FailuresExitNonZero(t *testing.T) {
	t.Run("route errors", func(t *testing.T) {
		fc := newFakeController()
		fc.build.On("Build", mockCtx).Return(&domain.BuildReport{
			Processed: []string{"app", "bad"},
			Built:     []string{"app"},
			Errored:   []string{"bad"},
			Activated: true,
		}, nil)

		out, err := run(t, fc, "build")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 route(s) failed")
		assert.Contains(t, out, "failed bad")
	})

	t.Run("activation error", func(t *testing.T) {
		actErr := &domain.ActivationError{Command: "nginx -t", ExitCode: 1, Output: "emerg"}
		fc := newFakeController()
		fc.build.On("Build", mockCtx).Return(&domain.BuildReport{
			Processed: []string{"app"},
			Built:     []string{"app"},
		}, actErr)

		out, err := run(t, fc, "build")
		var target *domain.ActivationError
		require.True(t, errors.As(err, &target))
		assert.Contains(t, out, "built app")
		assert.NotContains(t, out, "nginx reloaded")
	})
}

func TestReconcileCmd(t *testing.T) {
	fc := newFakeController()
	fc.reconcile.On("Reconcile", mockCtx).Return(&domain.ReconcileReport{
		Removed:     []string{"stale"},
		LogsRemoved: []string{"stale"},
		Failed:      []string{"bad.name"},
		Reloaded:    true,
	}, nil)

	out, err := run(t, fc, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "removed stale")
	assert.Contains(t, out, "removed logs stale")
	assert.Contains(t, out, "could not remove bad.name")
	assert.Contains(t, out, "nginx reloaded")
}

func TestReconcileCmd_NoDrift(t *testing.T) {
	fc := newFakeController()
	fc.reconcile.On("Reconcile", mockCtx).Return(&domain.ReconcileReport{}, nil)

	out, err := run(t, fc, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to reconcile")
}

func TestSetupCmd(t *testing.T) {
	fc := newFakeController()
	fc.setup.On("Run", mockCtx).Return(&domain.SetupReport{
		Directories: []string{"/etc/nginx/proxied/servers"},
		Files:       []string{"/etc/nginx/proxied/includes/proxy.conf"},
		Reloaded:    true,
	}, nil)

	out, err := run(t, fc, "setup")
	require.NoError(t, err)
	assert.Contains(t, out, "nginx version: unknown")
	assert.Contains(t, out, "/etc/nginx/proxied/servers/")
	assert.Contains(t, out, "includes/proxy.conf")
}

func TestStatusCmd(t *testing.T) {
	counts := &domain.RouteCounts{Total: 3, Changed: 1, Errored: 1}

	t.Run("proxy reachable", func(t *testing.T) {
		fc := newFakeController()
		fc.routes.On("Count", mockCtx).Return(counts, nil)
		fc.status.On("Status", mockCtx).Return(&domain.ProxyStatus{ActiveConnections: 4, Requests: 99, Reading: 1, Writing: 2, Waiting: 3}, nil)

		out, err := run(t, fc, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Total: 3")
		assert.Contains(t, out, "Active connections: 4")
		assert.Contains(t, out, "1/2/3")
	})

	t.Run("proxy unreachable is not fatal", func(t *testing.T) {
		fc := newFakeController()
		fc.routes.On("Count", mockCtx).Return(counts, nil)
		fc.status.On("Status", mockCtx).Return(nil, errors.New("read proxy status: connection refused"))

		out, err := run(t, fc, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "connection refused")
	})
}

func TestRouteState(t *testing.T) {
	tests := []struct {
		name  string
		route domain.Route
		want  string
	}{
		{name: "active", route: domain.Route{Enabled: true}, want: "active"},
		{name: "pending", route: domain.Route{Enabled: true, HasChange: true}, want: "pending"},
		{name: "disabled", route: domain.Route{HasChange: true}, want: "disabled"},
		{name: "error wins over disabled", route: domain.Route{HasError: true}, want: "error"},
		{name: "deleting wins over everything", route: domain.Route{Delete: true, HasError: true}, want: "deleting"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, routeState(&tt.route))
		})
	}
}
