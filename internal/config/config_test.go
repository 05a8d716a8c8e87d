package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "/etc/nginx/proxied/servers", cfg.Paths.ServersRoot)
	assert.Equal(t, "/usr/share/nginx/html/letsencrypt", cfg.Paths.ChallengeDocRoot)
	assert.Equal(t, DriverNative, cfg.ACME.Driver)
	assert.Equal(t, 30*24*time.Hour, cfg.ACME.RenewalWindow())
	assert.Equal(t, time.Hour, cfg.ACME.RenewalRetry)
	assert.Equal(t, 5*time.Minute, cfg.ACME.Timeout)
	assert.Equal(t, 8, cfg.ACME.PollAttempts)
	assert.Equal(t, 64*time.Second, cfg.ACME.PollMaxInterval)
	assert.Equal(t, []string{"nginx", "-t"}, cfg.Proxy.TestCommand)
	assert.Equal(t, []string{"nginx", "-s", "reload"}, cfg.Proxy.ReloadCommand)
	assert.True(t, cfg.Build.ClearErrorOnSuccess)
	assert.Equal(t, 5*time.Second, cfg.Schedule.BuildInterval)
	assert.Equal(t, time.Minute, cfg.Schedule.ReconcileInterval)
	assert.Equal(t, "127.0.0.1:8089", cfg.HTTP.Listen)
	assert.Empty(t, cfg.ACME.ContactEmail)
}

func TestLoad_FileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "proxied.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
paths:
  servers_root: /srv/nginx/servers
acme:
  driver: lego
  contact_email:
    - ops@example.com
  renewal_window_days: 20
schedule:
  build_interval: 10s
proxy:
  reload_command: [systemctl, reload, nginx]
`), 0644))
	t.Setenv("PROXIED_ACME_TIMEOUT", "90s")
	t.Setenv("PROXIED_LOG_LEVEL", "debug")

	v := NewViper()
	require.NoError(t, ReadInConfig(v, file))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/srv/nginx/servers", cfg.Paths.ServersRoot)
	assert.Equal(t, DriverLego, cfg.ACME.Driver)
	assert.Equal(t, []string{"ops@example.com"}, cfg.ACME.ContactEmail)
	assert.Equal(t, 20, cfg.ACME.RenewalWindowDays)
	assert.Equal(t, 10*time.Second, cfg.Schedule.BuildInterval)
	assert.Equal(t, []string{"systemctl", "reload", "nginx"}, cfg.Proxy.ReloadCommand)
	assert.Equal(t, 90*time.Second, cfg.ACME.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestReadInConfig_MissingSearchFileIsFine(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	v := NewViper()
	assert.NoError(t, ReadInConfig(v, ""))
}

func TestReadInConfig_ExplicitMissingFile(t *testing.T) {
	v := NewViper()
	assert.Error(t, ReadInConfig(v, filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty servers root",
			mutate:  func(c *Config) { c.Paths.ServersRoot = " " },
			wantErr: "paths.servers_root must not be empty",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.ACME.Driver = "certbot" },
			wantErr: "acme.driver must be one of",
		},
		{
			name:    "bad key type",
			mutate:  func(c *Config) { c.ACME.DomainKeyType = "ed25519" },
			wantErr: `acme.domain_key_type "ed25519" is not supported`,
		},
		{
			name:    "negative renewal retry",
			mutate:  func(c *Config) { c.ACME.RenewalRetry = -time.Minute },
			wantErr: "acme.renewal_retry must not be negative",
		},
		{
			name:    "renewal window too long",
			mutate:  func(c *Config) { c.ACME.RenewalWindowDays = 90 },
			wantErr: "acme.renewal_window_days must be between 1 and 89",
		},
		{
			name:    "empty test command",
			mutate:  func(c *Config) { c.Proxy.TestCommand = nil },
			wantErr: "proxy.test_command must not be empty",
		},
		{
			name:    "bad body size",
			mutate:  func(c *Config) { c.Proxy.ClientMaxBodySize = "huge" },
			wantErr: "proxy.client_max_body_size",
		},
		{
			name:    "zero build interval",
			mutate:  func(c *Config) { c.Schedule.BuildInterval = 0 },
			wantErr: "schedule.build_interval must be positive",
		},
		{
			name:    "bad contact",
			mutate:  func(c *Config) { c.ACME.ContactEmail = []string{"ops"} },
			wantErr: `acme.contact_email "ops"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(NewViper())
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
