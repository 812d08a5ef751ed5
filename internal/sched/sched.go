// Package sched runs the monitor's fixed task set cooperatively on a single
// goroutine.
//
// A step runs to completion before any other step starts, so state touched
// only from steps needs no locking. Steps must not block; every suspension is
// the scheduler's own tick.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one cooperative unit of periodic work.
type Task interface {
	// Name identifies the task in logs and stats.
	Name() string
	// Period is the normal interval between steps.
	Period() time.Duration
	// Step performs one iteration. A returned error is a fault: it is
	// logged and the next step is delayed by the task's backoff.
	Step(now time.Time) error
}

// Retrier is implemented by tasks that cap their own fault retry delay
// below the scheduler-wide maximum. Output tasks return their period so a
// faulting line never stalls the rest of the bank.
type Retrier interface {
	MaxBackoff() time.Duration
}

// Result is the outcome of one step.
type Result int

const (
	ResultOK Result = iota
	ResultFault
)

func (r Result) String() string {
	if r == ResultFault {
		return "FAULT"
	}
	return "OK"
}

// TaskStats is a point-in-time view of one task's history.
type TaskStats struct {
	Name              string
	Runs              uint64
	Faults            uint64
	ConsecutiveFaults int
	LastResult        Result
	LastError         string
	LastRun           time.Time
	NextDue           time.Time
}

type entry struct {
	task    Task
	backoff *Backoff
	next    time.Time
	stats   TaskStats
}

// Scheduler owns the task set. Tasks are registered before Run and never
// removed.
type Scheduler struct {
	log        *zap.SugaredLogger
	maxBackoff time.Duration

	entries []*entry

	mu    sync.RWMutex
	stats []TaskStats
}

// New creates a scheduler. maxBackoff caps the retry delay of faulted tasks.
func New(log *zap.SugaredLogger, maxBackoff time.Duration) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scheduler{log: log, maxBackoff: maxBackoff}
}

// Add registers a task. It is first stepped on the first tick after Run
// starts.
func (s *Scheduler) Add(t Task) {
	limit := s.maxBackoff
	if r, ok := t.(Retrier); ok {
		limit = r.MaxBackoff()
	}
	s.entries = append(s.entries, &entry{
		task:    t,
		backoff: NewBackoff(t.Period(), limit),
		stats:   TaskStats{Name: t.Name()},
	})
	s.publishStats()
}

// Run steps due tasks on every tick until ctx is done. Tasks run in
// registration order within a tick.
func (s *Scheduler) Run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick:
			s.RunDue(now)
		}
	}
}

// RunDue steps every task whose next due time is at or before now.
func (s *Scheduler) RunDue(now time.Time) {
	for _, e := range s.entries {
		if !e.next.IsZero() && now.Before(e.next) {
			continue
		}
		s.step(e, now)
	}
	s.publishStats()
}

func (s *Scheduler) step(e *entry, now time.Time) {
	err := safeStep(e.task, now)

	e.stats.Runs++
	e.stats.LastRun = now
	if err == nil {
		e.backoff.Success()
		e.stats.LastResult = ResultOK
		e.stats.ConsecutiveFaults = 0
		e.next = now.Add(e.task.Period())
	} else {
		delay := e.backoff.Fault()
		e.stats.Faults++
		e.stats.LastResult = ResultFault
		e.stats.LastError = err.Error()
		e.stats.ConsecutiveFaults = e.backoff.Faults()
		e.next = now.Add(delay)
		s.log.Warnw("task fault", "task", e.task.Name(), "err", err,
			"consecutive", e.backoff.Faults(), "retry_in", delay)
	}
	e.stats.NextDue = e.next
}

// safeStep converts a panicking step into a fault so no task can take the
// scheduler down.
func safeStep(t Task, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", t.Name(), r)
		}
	}()
	return t.Step(now)
}

func (s *Scheduler) publishStats() {
	out := make([]TaskStats, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.stats
	}
	s.mu.Lock()
	s.stats = out
	s.mu.Unlock()
}

// Stats returns a copy of every task's stats. Safe from any goroutine.
func (s *Scheduler) Stats() []TaskStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TaskStats, len(s.stats))
	copy(out, s.stats)
	return out
}
