package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	statushttp "github.com/bnema/proxied/internal/adapters/in/http/status"
	"github.com/bnema/proxied/internal/adapters/out/ratelimit"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/internal/usecase/cron"
)

// Scheduler task ids.
const (
	TaskSetup     = "setup"
	TaskBuild     = "build"
	TaskReconcile = "reconcile"
)

const shutdownTimeout = 10 * time.Second

// NewScheduler registers the setup, build and reconcile tasks.
func (k *Kernel) NewScheduler() (*cron.Scheduler, error) {
	sched := cron.NewScheduler(k.log)
	tasks := []struct {
		id, name string
		interval time.Duration
		job      func(ctx context.Context) error
	}{
		{TaskSetup, "Bootstrap nginx includes", 0, func(ctx context.Context) error {
			_, err := k.setupSvc.Run(ctx)
			return err
		}},
		{TaskBuild, "Build changed routes", k.cfg.Schedule.BuildInterval, func(ctx context.Context) error {
			_, err := k.buildSvc.Build(ctx)
			return err
		}},
		{TaskReconcile, "Remove stale configuration", k.cfg.Schedule.ReconcileInterval, func(ctx context.Context) error {
			_, err := k.reconcileSvc.Reconcile(ctx)
			return err
		}},
	}
	for _, t := range tasks {
		if err := sched.Add(t.id, t.name, domain.CronSchedule{Interval: t.interval}, t.job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// Serve runs setup once, then the build and reconcile schedule and the
// status endpoint until ctx is cancelled.
func Serve(ctx context.Context, k *Kernel) error {
	sched, err := k.NewScheduler()
	if err != nil {
		return err
	}

	// setup completes before the first build so the includes exist
	if err := sched.RunNow(ctx, TaskSetup); err != nil {
		k.log.Error("setup failed, continuing with existing includes", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start(ctx)
		<-ctx.Done()
		sched.Stop()
		return nil
	})

	if addr := k.cfg.HTTP.Listen; addr != "" {
		srv := statushttp.NewServer(statushttp.Deps{
			Routes:   k.routeSvc,
			Proxy:    k.statusSvc,
			Schedule: sched,
			Limiter:  ratelimit.NewMemoryStore(5, 20, k.log),
		}, k.log)

		g.Go(func() error {
			return srv.Start(addr)
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	k.log.Info("proxied running",
		"build_interval", k.cfg.Schedule.BuildInterval,
		"reconcile_interval", k.cfg.Schedule.ReconcileInterval,
		"status_listen", k.cfg.HTTP.Listen,
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	k.log.Info("proxied stopped")
	return nil
}
