// Package reconcile removes proxy configuration that no route declares.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/internal/usecase/activation"
	"github.com/bnema/proxied/pkg/logger"
)

// Ensure Service implements in.ReconcileService.
var _ in.ReconcileService = (*Service)(nil)

// Service implements the ReconcileService interface.
type Service struct {
	store  out.RouteStore
	proxy  out.ProxyConfig
	proc   out.ProxyProcess
	locker out.Locker
	log    *logger.Logger
	nowFn  func() time.Time
}

// NewService creates a new reconcile service.
func NewService(store out.RouteStore, proxy out.ProxyConfig, proc out.ProxyProcess, locker out.Locker, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:  store,
		proxy:  proxy,
		proc:   proc,
		locker: locker,
		log:    log.With("component", "reconcile"),
		nowFn:  time.Now,
	}
}

// Reconcile deletes route directories and logs absent from the store. The
// desired set is read while holding the lock shared with the build pass, so a
// route created by a concurrent build is never seen as stale.
func (s *Service) Reconcile(ctx context.Context) (*domain.ReconcileReport, error) {
	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire reconcile lock: %w", err)
	}
	defer unlock()

	report := &domain.ReconcileReport{Started: s.nowFn()}
	routes, err := s.store.ListRoutes(ctx, domain.RouteFilter{ExcludeDeleted: true})
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	desired := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		desired[r.Name] = struct{}{}
		report.Desired = append(report.Desired, r.Name)
	}

	report.Active, err = s.proxy.ListRouteDirs()
	if err != nil {
		return nil, err
	}

	for _, name := range report.Active {
		if _, ok := desired[name]; ok {
			continue
		}
		log := s.log.With("route", name)
		if err := s.proxy.RemoveStaleDir(name); err != nil {
			log.Error("could not remove stale route directory", "error", err)
			report.Failed = append(report.Failed, name)
			continue
		}
		report.Removed = append(report.Removed, name)
		log.Info("stale route directory removed")

		removed, err := s.proxy.RemoveRouteLogs(name)
		report.LogsRemoved = append(report.LogsRemoved, removed...)
		if err != nil {
			log.Warn("could not remove all route logs", "error", err)
		}
	}

	if len(report.Removed) == 0 {
		report.Finished = s.nowFn()
		return report, nil
	}

	_, err = activation.TestAndReload(ctx, s.proc, s.log)
	report.Finished = s.nowFn()
	if err != nil {
		return report, err
	}
	report.Reloaded = true
	return report, nil
}
