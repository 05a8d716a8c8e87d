// Package build regenerates the proxy configuration of changed routes and
// activates it in one test-gated reload per pass.
package build

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/internal/usecase/activation"
	"github.com/bnema/proxied/pkg/logger"
	"github.com/bnema/proxied/pkg/validation"
)

// Ensure Service implements in.BuildService.
var _ in.BuildService = (*Service)(nil)

// Config holds build pass settings.
type Config struct {
	// ClearErrorOnSuccess resets has_error when a route builds cleanly.
	ClearErrorOnSuccess bool
	// RenewalWindow also selects unchanged letsencrypt routes whose
	// certificate expires within it. Zero disables scheduled renewal.
	RenewalWindow time.Duration
	// RenewalRetry is the delay before an errored renewal is attempted again.
	RenewalRetry time.Duration
}

// Service implements the BuildService interface.
type Service struct {
	store  out.RouteStore
	proxy  out.ProxyConfig
	proc   out.ProxyProcess
	certs  in.CertificateService
	locker out.Locker
	cfg    Config
	log    *logger.Logger
	nowFn  func() time.Time
}

// NewService creates a new build service.
func NewService(
	store out.RouteStore,
	proxy out.ProxyConfig,
	proc out.ProxyProcess,
	certs in.CertificateService,
	locker out.Locker,
	cfg Config,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:  store,
		proxy:  proxy,
		proc:   proc,
		certs:  certs,
		locker: locker,
		cfg:    cfg,
		log:    log.With("component", "build"),
		nowFn:  time.Now,
	}
}

type outcome int

const (
	outcomeBuilt outcome = iota
	outcomeErrored
	outcomeDeleted
	outcomeDisabled
)

// Build processes every route flagged has_change, and every letsencrypt
// route due for renewal, in id order. Per-route failures are recorded on
// the route and never abort the pass. The returned error is reserved for
// store, lock and activation failures.
func (s *Service) Build(ctx context.Context) (*domain.BuildReport, error) {
	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire build lock: %w", err)
	}
	defer unlock()

	report := &domain.BuildReport{Started: s.nowFn()}
	routes, err := s.store.ListRoutes(ctx, s.filter(report.Started))
	if err != nil {
		return nil, fmt.Errorf("list changed routes: %w", err)
	}
	if len(routes) == 0 {
		report.Finished = s.nowFn()
		return report, nil
	}

	s.log.Info("build pass started", "routes", len(routes))
	for _, route := range routes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed = append(report.Processed, route.Name)
		switch s.buildRoute(ctx, route) {
		case outcomeBuilt:
			report.Built = append(report.Built, route.Name)
		case outcomeErrored:
			report.Errored = append(report.Errored, route.Name)
		case outcomeDeleted:
			report.Deleted = append(report.Deleted, route.Name)
		case outcomeDisabled:
			report.Disabled = append(report.Disabled, route.Name)
		}
	}

	warnings, err := activation.TestAndReload(ctx, s.proc, s.log)
	report.Finished = s.nowFn()
	if err != nil {
		s.log.Error("build pass not activated", "processed", len(report.Processed), "error", err)
		return report, err
	}
	report.Activated = true
	report.ReloadWarnings = warnings
	s.log.Info("build pass finished",
		"built", len(report.Built),
		"errored", len(report.Errored),
		"deleted", len(report.Deleted),
		"disabled", len(report.Disabled),
	)
	return report, nil
}

func (s *Service) filter(now time.Time) domain.RouteFilter {
	f := domain.RouteFilter{OnlyChanged: true}
	if s.cfg.RenewalWindow > 0 {
		f.RenewBefore = now.Add(s.cfg.RenewalWindow)
		if s.cfg.RenewalRetry > 0 {
			f.RetryBefore = now.Add(-s.cfg.RenewalRetry)
		}
	}
	return f
}

// routeRun accumulates the first failure of one route.
type routeRun struct {
	route *domain.Route
	log   *logger.Logger
	err   error
}

func (r *routeRun) fail(step string, err error) {
	r.log.Error("route step failed", "step", step, "error", err)
	if r.err == nil {
		r.err = fmt.Errorf("%s: %w", step, err)
	}
}

func (s *Service) buildRoute(ctx context.Context, route *domain.Route) outcome {
	run := &routeRun{route: route, log: s.log.With("route", route.Name)}

	if err := validation.ValidateRouteName(route.Name); err != nil {
		run.fail("validate", fmt.Errorf("%w: %v", domain.ErrUnsafeRouteName, err))
		return s.finish(ctx, run)
	}

	if route.Delete {
		return s.deleteRoute(ctx, run)
	}

	if route.Rename != "" {
		moved, err := s.proxy.RenameRouteDir(route.Rename, route.Name)
		if err != nil {
			run.fail("rename", err)
			return s.finish(ctx, run)
		}
		if moved {
			run.log.Info("route directory renamed", "from", route.Rename)
		}
		route.Rename = ""
	}

	if err := s.proxy.EnsureRouteDir(route.Name); err != nil {
		run.fail("mkdir", err)
		return s.finish(ctx, run)
	}

	if !route.Enabled {
		if err := s.proxy.RemoveRouteConfs(route.Name); err != nil {
			run.fail("disable", err)
			return s.finish(ctx, run)
		}
		run.log.Info("route disabled, configuration removed")
		if o := s.finish(ctx, run); o == outcomeErrored {
			return o
		}
		return outcomeDisabled
	}

	if route.SSLType == domain.SSLLetsEncrypt && s.certs.NeedsIssuance(route) {
		s.stageChallenge(ctx, run)
	}
	https := s.resolveCertificate(ctx, run)
	s.render(run, https)
	o := s.finish(ctx, run)
	if o == outcomeBuilt {
		run.log.Info("route built", "https", https != nil)
	}
	return o
}

// stageChallenge makes nginx answer http-01 challenges for every domain of
// the route before the ACME exchange starts. The http server block is
// written and activated unless the one on disk already names every domain.
func (s *Service) stageChallenge(ctx context.Context, run *routeRun) {
	route := run.route
	deployed, err := s.proxy.ReadDeployed(route.Name)
	if err != nil {
		run.fail("stage", err)
		return
	}
	if deployed.Serves(route.DomainNames()) {
		return
	}
	if err := s.proxy.WriteUpstream(route); err != nil {
		run.fail("upstream", err)
		return
	}
	if err := s.proxy.WriteHTTP(route, route.ForceSSL && deployed.HTTPS); err != nil {
		run.fail("http", err)
		return
	}
	if _, err := activation.TestAndReload(ctx, s.proc, run.log); err != nil {
		run.fail("stage", err)
		return
	}
	run.log.Info("challenge location activated")
}

// resolveCertificate returns the https settings when a usable certificate
// exists, even if renewing it just failed.
func (s *Service) resolveCertificate(ctx context.Context, run *routeRun) *out.HTTPSConfig {
	route := run.route
	if !route.SSLEnabled() {
		return nil
	}
	result, err := s.certs.Ensure(ctx, route)
	if err != nil {
		run.fail("certificate", err)
	}
	if result == nil || !result.Usable {
		return nil
	}
	return &out.HTTPSConfig{
		Certificate: result.Paths.FullChain,
		PrivateKey:  result.Paths.PrivateKey,
	}
}

func (s *Service) render(run *routeRun, https *out.HTTPSConfig) {
	route := run.route
	if err := s.proxy.WriteUpstream(route); err != nil {
		run.fail("upstream", err)
		return
	}
	redirect := route.ForceSSL && https != nil
	if err := s.proxy.WriteHTTP(route, redirect); err != nil {
		run.fail("http", err)
		return
	}
	if https == nil {
		if err := s.proxy.RemoveHTTPS(route.Name); err != nil {
			run.fail("https", err)
		}
		return
	}
	if err := s.proxy.WriteHTTPS(route, *https); err != nil {
		run.fail("https", err)
	}
}

func (s *Service) deleteRoute(ctx context.Context, run *routeRun) outcome {
	route := run.route
	if err := s.proxy.RemoveRouteDir(route.Name); err != nil {
		run.fail("delete", err)
		return s.finish(ctx, run)
	}
	if removed, err := s.proxy.RemoveRouteLogs(route.Name); err != nil {
		run.log.Warn("could not remove route logs", "error", err)
	} else if len(removed) > 0 {
		run.log.Debug("route logs removed", "files", len(removed))
	}
	if err := s.store.DeleteRoute(ctx, route.ID); err != nil {
		run.fail("delete", err)
		return s.finish(ctx, run)
	}
	run.log.Info("route deleted")
	return outcomeDeleted
}

// finish clears has_change, records the outcome and persists the route.
func (s *Service) finish(ctx context.Context, run *routeRun) outcome {
	route := run.route
	route.HasChange = false

	result := outcomeBuilt
	if run.err != nil {
		route.HasError = true
		route.Error = domain.DescribeError(run.err)
		result = outcomeErrored
	} else if s.cfg.ClearErrorOnSuccess {
		route.HasError = false
		route.Error = ""
	}

	if err := s.store.SaveRoute(ctx, route); err != nil {
		run.log.Error("could not save route", "error", err)
		return outcomeErrored
	}
	return result
}
