package domain

import "time"

// CronSchedule represents a recurring schedule. A zero Interval runs the
// job once, on the first tick after it is added.
type CronSchedule struct {
	Interval time.Duration
}

// Once reports whether the schedule fires a single time.
func (s CronSchedule) Once() bool {
	return s.Interval <= 0
}

// CronEntry represents a registered cron job.
type CronEntry struct {
	ID       string
	Name     string
	Schedule CronSchedule
	LastRun  time.Time
	NextRun  time.Time
	LastErr  string
	Running  bool
	Runs     int
	Skipped  int
}
