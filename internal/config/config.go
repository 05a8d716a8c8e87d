// Package config loads proxied settings from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/proxied/pkg/bytesize"
	"github.com/bnema/proxied/pkg/certutil"
	"github.com/bnema/proxied/pkg/logger"
)

// EnvPrefix prefixes every environment override, e.g. PROXIED_ACME_DRIVER.
const EnvPrefix = "PROXIED"

// ACME drivers.
const (
	DriverNative = "native"
	DriverLego   = "lego"
)

type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	ACME     ACMEConfig     `mapstructure:"acme"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Build    BuildConfig    `mapstructure:"build"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Store    StoreConfig    `mapstructure:"store"`
	Lock     LockConfig     `mapstructure:"lock"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type PathsConfig struct {
	ServersRoot         string `mapstructure:"servers_root"`
	IncludesRoot        string `mapstructure:"includes_root"`
	ConfRoot            string `mapstructure:"conf_root"`
	CertsRoot           string `mapstructure:"certs_root"`
	ManualCertsRoot     string `mapstructure:"manual_certs_root"`
	SelfSignedCertsRoot string `mapstructure:"selfsigned_certs_root"`
	ChallengeDocRoot    string `mapstructure:"challenge_doc_root"`
	WebRoot             string `mapstructure:"web_root"`
	LogsRoot            string `mapstructure:"logs_root"`
}

type ACMEConfig struct {
	Driver            string        `mapstructure:"driver"`
	DirectoryURL      string        `mapstructure:"directory_url"`
	ContactEmail      []string      `mapstructure:"contact_email"`
	AccountKeyType    string        `mapstructure:"account_key_type"`
	DomainKeyType     string        `mapstructure:"domain_key_type"`
	RenewalWindowDays int           `mapstructure:"renewal_window_days"`
	RenewalRetry      time.Duration `mapstructure:"renewal_retry"`
	Timeout           time.Duration `mapstructure:"timeout"`
	PollAttempts      int           `mapstructure:"poll_attempts"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	PollMaxInterval   time.Duration `mapstructure:"poll_max_interval"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	SkipSelfCheck     bool          `mapstructure:"skip_self_check"`
}

// RenewalWindow returns the renewal window as a duration.
func (c ACMEConfig) RenewalWindow() time.Duration {
	return time.Duration(c.RenewalWindowDays) * 24 * time.Hour
}

type ProxyConfig struct {
	TestCommand       []string `mapstructure:"test_command"`
	ReloadCommand     []string `mapstructure:"reload_command"`
	VersionCommand    []string `mapstructure:"version_command"`
	StatusURL         string   `mapstructure:"status_url"`
	ClientMaxBodySize string   `mapstructure:"client_max_body_size"`
}

type BuildConfig struct {
	ClearErrorOnSuccess bool `mapstructure:"clear_error_on_success"`
}

type ScheduleConfig struct {
	BuildInterval     time.Duration `mapstructure:"build_interval"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LockConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Logger converts the section into a logger configuration.
func (c LogConfig) Logger() logger.Config {
	return logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}

type HTTPConfig struct {
	// Listen is the status endpoint address. Empty disables it.
	Listen string `mapstructure:"listen"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.servers_root", "/etc/nginx/proxied/servers")
	v.SetDefault("paths.includes_root", "/etc/nginx/proxied/includes")
	v.SetDefault("paths.conf_root", "/etc/nginx/proxied/conf")
	v.SetDefault("paths.certs_root", "/etc/letsencrypt/live")
	v.SetDefault("paths.manual_certs_root", "/etc/nginx/proxied/certs/manual")
	v.SetDefault("paths.selfsigned_certs_root", "/etc/nginx/proxied/certs/selfsigned")
	v.SetDefault("paths.challenge_doc_root", "/usr/share/nginx/html/letsencrypt")
	v.SetDefault("paths.web_root", "/usr/share/nginx/html")
	v.SetDefault("paths.logs_root", "/var/log/nginx")

	v.SetDefault("acme.driver", DriverNative)
	v.SetDefault("acme.directory_url", "https://acme-v02.api.letsencrypt.org/directory")
	v.SetDefault("acme.contact_email", []string{})
	v.SetDefault("acme.account_key_type", string(certutil.RSA4096))
	v.SetDefault("acme.domain_key_type", string(certutil.RSA4096))
	v.SetDefault("acme.renewal_window_days", 30)
	v.SetDefault("acme.renewal_retry", time.Hour)
	v.SetDefault("acme.timeout", 5*time.Minute)
	v.SetDefault("acme.poll_attempts", 8)
	v.SetDefault("acme.poll_interval", time.Second)
	v.SetDefault("acme.poll_max_interval", 64*time.Second)
	v.SetDefault("acme.requests_per_second", 10.0)
	v.SetDefault("acme.skip_self_check", false)

	v.SetDefault("proxy.test_command", []string{"nginx", "-t"})
	v.SetDefault("proxy.reload_command", []string{"nginx", "-s", "reload"})
	v.SetDefault("proxy.version_command", []string{"nginx", "-v"})
	v.SetDefault("proxy.status_url", "http://127.0.0.1/nginx_status")
	v.SetDefault("proxy.client_max_body_size", "256M")

	v.SetDefault("build.clear_error_on_success", true)

	v.SetDefault("schedule.build_interval", 5*time.Second)
	v.SetDefault("schedule.reconcile_interval", 60*time.Second)

	v.SetDefault("store.path", "/var/lib/proxied/proxied.db")
	v.SetDefault("lock.path", "/run/proxied.lock")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("http.listen", "127.0.0.1:8089")
}

// NewViper returns a viper instance with defaults and environment
// overrides configured.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SearchPaths returns the directories searched for proxied.{yaml,toml,json}.
func SearchPaths() []string {
	paths := []string{"."}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "proxied"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "proxied"))
	}
	return append(paths, "/etc/proxied")
}

// ReadInConfig reads file, or searches the default locations when file is
// empty. A missing file in the search path is not an error.
func ReadInConfig(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
		return nil
	}

	v.SetConfigName("proxied")
	for _, p := range SearchPaths() {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validKeyTypes = []certutil.KeyType{certutil.RSA2048, certutil.RSA4096, certutil.EC256, certutil.EC384}

func validKeyType(kt string) bool {
	for _, v := range validKeyTypes {
		if string(v) == kt {
			return true
		}
	}
	return false
}

// Validate checks the settings that cannot be defaulted sensibly.
func (c *Config) Validate() error {
	var errs []error

	roots := map[string]string{
		"paths.servers_root":          c.Paths.ServersRoot,
		"paths.includes_root":         c.Paths.IncludesRoot,
		"paths.conf_root":             c.Paths.ConfRoot,
		"paths.certs_root":            c.Paths.CertsRoot,
		"paths.manual_certs_root":     c.Paths.ManualCertsRoot,
		"paths.selfsigned_certs_root": c.Paths.SelfSignedCertsRoot,
		"paths.challenge_doc_root":    c.Paths.ChallengeDocRoot,
		"paths.logs_root":             c.Paths.LogsRoot,
		"store.path":                  c.Store.Path,
		"lock.path":                   c.Lock.Path,
	}
	keys := make([]string, 0, len(roots))
	for k := range roots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if strings.TrimSpace(roots[key]) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", key))
		}
	}

	if c.ACME.Driver != DriverNative && c.ACME.Driver != DriverLego {
		errs = append(errs, fmt.Errorf("acme.driver must be one of: %s, %s", DriverNative, DriverLego))
	}
	if c.ACME.DirectoryURL == "" {
		errs = append(errs, fmt.Errorf("acme.directory_url must not be empty"))
	}
	if !validKeyType(c.ACME.AccountKeyType) {
		errs = append(errs, fmt.Errorf("acme.account_key_type %q is not supported", c.ACME.AccountKeyType))
	}
	if !validKeyType(c.ACME.DomainKeyType) {
		errs = append(errs, fmt.Errorf("acme.domain_key_type %q is not supported", c.ACME.DomainKeyType))
	}
	if c.ACME.RenewalWindowDays < 1 || c.ACME.RenewalWindowDays > 89 {
		errs = append(errs, fmt.Errorf("acme.renewal_window_days must be between 1 and 89"))
	}
	if c.ACME.RenewalRetry < 0 {
		errs = append(errs, fmt.Errorf("acme.renewal_retry must not be negative"))
	}
	if c.ACME.PollAttempts < 1 {
		errs = append(errs, fmt.Errorf("acme.poll_attempts must be positive"))
	}
	for _, email := range c.ACME.ContactEmail {
		if !strings.Contains(email, "@") {
			errs = append(errs, fmt.Errorf("acme.contact_email %q is not an email address", email))
		}
	}

	if len(c.Proxy.TestCommand) == 0 {
		errs = append(errs, fmt.Errorf("proxy.test_command must not be empty"))
	}
	if len(c.Proxy.ReloadCommand) == 0 {
		errs = append(errs, fmt.Errorf("proxy.reload_command must not be empty"))
	}
	if _, err := bytesize.Parse(c.Proxy.ClientMaxBodySize); err != nil {
		errs = append(errs, fmt.Errorf("proxy.client_max_body_size: %w", err))
	}

	if c.Schedule.BuildInterval <= 0 {
		errs = append(errs, fmt.Errorf("schedule.build_interval must be positive"))
	}
	if c.Schedule.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("schedule.reconcile_interval must be positive"))
	}

	return errors.Join(errs...)
}
