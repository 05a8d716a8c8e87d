// Package setup bootstraps the proxy directory tree and shared includes.
package setup

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/internal/usecase/activation"
	"github.com/bnema/proxied/pkg/logger"
)

// Ensure Service implements in.SetupService.
var _ in.SetupService = (*Service)(nil)

// nginx dropped the "ssl" directive in 1.15.0.
var sslDirectiveRemoved = semver.MustParse("1.15.0")

// Service implements the SetupService interface.
type Service struct {
	bootstrap out.ProxyBootstrap
	proc      out.ProxyProcess
	log       *logger.Logger
}

// NewService creates a new setup service.
func NewService(bootstrap out.ProxyBootstrap, proc out.ProxyProcess, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{bootstrap: bootstrap, proc: proc, log: log.With("component", "setup")}
}

// Run creates the directory tree, writes the include files for the
// running nginx version and reloads when the configuration tests clean.
func (s *Service) Run(ctx context.Context) (*domain.SetupReport, error) {
	report := &domain.SetupReport{}

	dirs, err := s.bootstrap.EnsureDirectories()
	report.Directories = dirs
	if err != nil {
		return report, fmt.Errorf("create directories: %w", err)
	}

	legacy := false
	version, err := s.proc.Version(ctx)
	if err != nil {
		s.log.Warn("could not determine nginx version, assuming >= 1.15", "error", err)
	} else {
		report.Version = version
		legacy = legacySSLOn(version)
	}

	files, err := s.bootstrap.WriteIncludes(legacy)
	report.Files = files
	if err != nil {
		return report, fmt.Errorf("write includes: %w", err)
	}
	s.log.Info("includes written", "files", len(files), "nginx_version", version, "legacy_ssl_on", legacy)

	if _, err := activation.TestAndReload(ctx, s.proc, s.log); err != nil {
		return report, err
	}
	report.Reloaded = true
	return report, nil
}

// legacySSLOn reports whether version still needs "ssl on;".
func legacySSLOn(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return v.LessThan(sslDirectiveRemoved)
}
