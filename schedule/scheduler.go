// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package schedule runs the deployment pipeline and the reconciliation
// jobs as an in-process scheduler: compute the soonest trigger across
// all tasks, sleep until it, run the due tasks sequentially, and
// reschedule. Task failures are logged and the scheduler keeps going —
// a failed deploy at 05:30 must not stop the 05:45 DNS check.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gyantal/RqCore/lib/clock"
	"github.com/gyantal/RqCore/lib/cron"
)

// Task is one scheduled unit of work.
type Task interface {
	// Name identifies the task in logs.
	Name() string

	// Next returns the task's earliest trigger strictly after t.
	Next(t time.Time) (time.Time, error)

	// Run performs the work.
	Run(ctx context.Context) error
}

// CronTask triggers on a cron schedule.
type CronTask struct {
	name     string
	schedule cron.Schedule
	run      func(ctx context.Context) error
}

// NewCronTask parses the cron expression and wraps the function as a
// Task.
func NewCronTask(name, expression string, run func(ctx context.Context) error) (*CronTask, error) {
	schedule, err := cron.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", name, err)
	}
	return &CronTask{name: name, schedule: schedule, run: run}, nil
}

func (t *CronTask) Name() string { return t.name }

func (t *CronTask) Next(after time.Time) (time.Time, error) {
	return t.schedule.Next(after)
}

func (t *CronTask) Run(ctx context.Context) error { return t.run(ctx) }

// IntervalTask triggers on a fixed interval. The scheduler's heartbeat
// is one of these.
type IntervalTask struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

// NewIntervalTask wraps the function as a Task firing every interval.
func NewIntervalTask(name string, interval time.Duration, run func(ctx context.Context) error) (*IntervalTask, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("task %s: interval must be positive, got %v", name, interval)
	}
	return &IntervalTask{name: name, interval: interval, run: run}, nil
}

func (t *IntervalTask) Name() string { return t.name }

func (t *IntervalTask) Next(after time.Time) (time.Time, error) {
	return after.Add(t.interval), nil
}

func (t *IntervalTask) Run(ctx context.Context) error { return t.run(ctx) }

// Scheduler drives a set of tasks on an injected clock.
type Scheduler struct {
	tasks  []Task
	clock  clock.Clock
	logger *slog.Logger
}

// NewScheduler returns a Scheduler over the given tasks.
func NewScheduler(tasks []Task, clk clock.Clock, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{tasks: tasks, clock: clk, logger: logger}
}

// pending is a task with its computed next trigger.
type pending struct {
	task Task
	at   time.Time
}

// Run blocks, firing tasks until ctx is cancelled. Tasks due at the
// same instant run sequentially in registration order. A task whose
// Next computation fails is dropped with an error log; a task whose Run
// fails is logged and rescheduled.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.tasks) == 0 {
		return fmt.Errorf("scheduler has no tasks")
	}

	now := s.clock.Now()
	queue := make([]pending, 0, len(s.tasks))
	for _, task := range s.tasks {
		at, err := task.Next(now)
		if err != nil {
			return fmt.Errorf("task %s: %w", task.Name(), err)
		}
		s.logger.Info("task scheduled", "task", task.Name(), "at", at)
		queue = append(queue, pending{task: task, at: at})
	}

	for {
		soonest := queue[0].at
		for _, entry := range queue[1:] {
			if entry.at.Before(soonest) {
				soonest = entry.at
			}
		}

		now = s.clock.Now()
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-s.clock.After(soonest.Sub(now)):
		}

		now = s.clock.Now()
		for i := range queue {
			if queue[i].at.After(now) {
				continue
			}
			s.runTask(ctx, queue[i].task)

			next, err := queue[i].task.Next(now)
			if err != nil {
				// Should not happen for a schedule that parsed; drop
				// the task rather than spin on it.
				s.logger.Error("task rescheduling failed, dropping task",
					"task", queue[i].task.Name(), "error", err)
				next = now.AddDate(100, 0, 0)
			}
			queue[i].at = next
		}
	}
}

// runTask runs one task and logs its outcome. Panics are not
// recovered; a panicking task is a bug, not an operational state.
func (s *Scheduler) runTask(ctx context.Context, task Task) {
	logger := s.logger.With("task", task.Name())
	logger.Info("task starting")

	start := s.clock.Now()
	if err := task.Run(ctx); err != nil {
		logger.Error("task failed", "error", err, "elapsed", s.clock.Now().Sub(start))
		return
	}
	logger.Info("task finished", "elapsed", s.clock.Now().Sub(start))
}
