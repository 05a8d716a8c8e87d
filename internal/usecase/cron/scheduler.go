// Package cron runs the controller's recurring passes on fixed intervals.
package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/pkg/logger"
)

// ErrAlreadyRunning is returned when a job is triggered while its previous
// run has not finished.
var ErrAlreadyRunning = errors.New("job is already running")

// DefaultTick is how often the scheduler looks for due entries.
const DefaultTick = time.Second

// Scheduler runs registered jobs on their interval. A job never runs
// concurrently with itself; fires that land on a running job are skipped.
type Scheduler struct {
	entries map[string]*entry
	mu      sync.RWMutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	log     *logger.Logger
	nowFn   func() time.Time
	tick    time.Duration
	started atomic.Bool
}

type entry struct {
	id       string
	name     string
	schedule domain.CronSchedule
	job      func(ctx context.Context) error
	lastRun  time.Time
	nextRun  time.Time
	lastErr  string
	runs     int
	skipped  int
	done     bool
	running  atomic.Bool
}

// NewScheduler creates a scheduler instance.
func NewScheduler(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
		log:     log.With("component", "scheduler"),
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
		tick: DefaultTick,
	}
}

// Add registers a job. It first fires on the next tick; a schedule without
// interval fires only that once.
func (s *Scheduler) Add(id, name string, sched domain.CronSchedule, job func(ctx context.Context) error) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if job == nil {
		return fmt.Errorf("job is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return fmt.Errorf("schedule %q already exists", id)
	}

	s.entries[id] = &entry{
		id:       id,
		name:     name,
		schedule: sched,
		job:      job,
		nextRun:  s.nowFn(),
	}
	return nil
}

// Remove unregisters a scheduled job.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Start begins the scheduler loop. Due entries run right away. Starting a
// stopped or already started scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	select {
	case <-s.stopCh:
		return
	default:
	}
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	ticker := time.NewTicker(s.tick)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		s.runDue(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
}

// Stop stops the scheduler loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
}

// List returns current scheduler entries ordered by id.
func (s *Scheduler) List() []domain.CronEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.CronEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, domain.CronEntry{
			ID:       e.id,
			Name:     e.name,
			Schedule: e.schedule,
			LastRun:  e.lastRun,
			NextRun:  e.nextRun,
			LastErr:  e.lastErr,
			Running:  e.running.Load(),
			Runs:     e.runs,
			Skipped:  e.skipped,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// RunNow triggers a registered job immediately and waits for it.
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	e := s.getEntry(id)
	if e == nil {
		return fmt.Errorf("schedule %q not found", id)
	}
	return s.executeEntry(ctx, e)
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := s.nowFn()
	for _, e := range s.snapshotEntries() {
		s.mu.RLock()
		due := !e.done && !now.Before(e.nextRun)
		s.mu.RUnlock()
		// a run still in progress is left alone until it finishes
		if !due || !e.running.CompareAndSwap(false, true) {
			continue
		}

		e := e
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.execute(ctx, e); err != nil {
				s.log.Warn("scheduled job failed", "schedule_id", e.id, "error", err)
			}
		}()
	}
}

func (s *Scheduler) executeEntry(ctx context.Context, e *entry) error {
	if !e.running.CompareAndSwap(false, true) {
		s.mu.Lock()
		e.skipped++
		s.mu.Unlock()
		return fmt.Errorf("schedule %q: %w", e.id, ErrAlreadyRunning)
	}
	return s.execute(ctx, e)
}

// execute runs e, which the caller has already marked running.
func (s *Scheduler) execute(ctx context.Context, e *entry) error {
	defer e.running.Store(false)

	start := s.nowFn()
	err := runJob(ctx, e.job)
	finish := s.nowFn()

	s.mu.Lock()
	e.lastRun = start
	e.runs++
	e.lastErr = ""
	if err != nil {
		e.lastErr = err.Error()
	}
	if e.schedule.Once() {
		e.done = true
		e.nextRun = time.Time{}
	} else {
		e.nextRun = finish.Add(e.schedule.Interval)
	}
	s.mu.Unlock()

	return err
}

func runJob(ctx context.Context, job func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(ctx)
}

func (s *Scheduler) getEntry(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

func (s *Scheduler) snapshotEntries() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	return entries
}
