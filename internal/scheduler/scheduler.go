// Package scheduler runs the library's periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/libdesk/libdesk/internal/config"
	"github.com/libdesk/libdesk/internal/tasks"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether expr is a five-field cron expression.
func ValidateSchedule(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// Enqueuer hands a task to the background queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task backlite.Task) error
}

// ScheduleRecorder records the outcome of a scheduled run.
type ScheduleRecorder interface {
	LogSchedule(action, description string, err error)
}

// Options configures a Scheduler. Queue may be nil, in which case jobs run inline.
type Options struct {
	Schedules     config.Schedules
	RetentionDays int
	Queue         Enqueuer
	Scanner       *tasks.OverdueScanner
	Cleaner       tasks.AuditEventCleaner
	Recorder      ScheduleRecorder
	Logger        logrus.FieldLogger
	Now           func() time.Time
}

// Scheduler triggers the overdue scan and audit cleanup.
type Scheduler struct {
	opts Options
	cron *cron.Cron

	mu         sync.RWMutex
	entries    map[string]cron.EntryID
	isRunning  bool
	cancelFunc context.CancelFunc
}

func New(opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		opts:    opts,
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers both jobs and starts the cron loop. An empty schedule skips its job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if !s.opts.Schedules.Enabled {
		s.opts.Logger.Info("Scheduler: disabled")
		return nil
	}

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{"overdue_scan", s.opts.Schedules.OverdueScan, s.RunOverdueScan},
		{"audit_cleanup", s.opts.Schedules.AuditCleanup, s.RunAuditCleanup},
	}

	var runCtx context.Context
	runCtx, s.cancelFunc = context.WithCancel(ctx)

	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		if err := ValidateSchedule(job.schedule); err != nil {
			s.cancelFunc()
			return fmt.Errorf("invalid cron schedule '%s' for %s: %w", job.schedule, job.name, err)
		}

		job := job
		id, err := s.cron.AddFunc(job.schedule, func() {
			if err := job.run(runCtx); err != nil {
				s.opts.Logger.WithError(err).WithField("job", job.name).Error("Scheduled job failed")
			}
		})
		if err != nil {
			s.cancelFunc()
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
		s.entries[job.name] = id
	}

	s.cron.Start()
	s.isRunning = true

	for name, id := range s.entries {
		s.opts.Logger.WithFields(logrus.Fields{
			"job":      name,
			"next_run": s.cron.Entry(id).Next,
		}).Info("Scheduler: job registered")
	}

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop stops accepting new runs and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	done := s.cron.Stop()
	<-done.Done()

	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	s.opts.Logger.Info("Scheduler: stopped")
}

// IsRunning returns whether the scheduler is active
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns when the named job fires next, or nil when it is not scheduled.
func (s *Scheduler) NextRun(job string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entries[job]
	if !ok || !s.isRunning {
		return nil
	}
	next := s.cron.Entry(id).Next
	return &next
}

// RunOverdueScan enqueues an overdue scan, or runs it inline without a queue.
func (s *Scheduler) RunOverdueScan(ctx context.Context) error {
	if s.opts.Queue != nil {
		err := s.opts.Queue.Enqueue(ctx, tasks.OverdueNoticesTask{})
		s.record("overdue_scan", "Overdue scan enqueued", err)
		return err
	}

	if s.opts.Scanner == nil {
		return fmt.Errorf("overdue scanner not configured")
	}
	summary, err := s.opts.Scanner.Scan(ctx, s.opts.Now())
	s.record("overdue_scan", fmt.Sprintf("Notified %d of %d overdue loans", summary.Notified, summary.Overdue), err)
	return err
}

// RunAuditCleanup enqueues audit cleanup, or runs it inline without a queue.
func (s *Scheduler) RunAuditCleanup(ctx context.Context) error {
	if s.opts.Queue != nil {
		err := s.opts.Queue.Enqueue(ctx, tasks.CleanupAuditEventsTask{RetentionDays: s.opts.RetentionDays})
		s.record("audit_cleanup", "Audit cleanup enqueued", err)
		return err
	}

	deleted, err := tasks.CleanupAuditEvents(ctx, s.opts.Cleaner, s.opts.RetentionDays)
	s.record("audit_cleanup", fmt.Sprintf("Deleted %d audit events", deleted), err)
	return err
}

func (s *Scheduler) record(action, description string, err error) {
	if s.opts.Recorder == nil {
		return
	}
	s.opts.Recorder.LogSchedule(action, description, err)
}
