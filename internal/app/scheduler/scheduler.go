// Package scheduler runs the periodic KPI, alert and retention jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// Job is one periodic task. A zero Timeout means the run is bounded only by
// the scheduler's context.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler fires each job on its own ticker. A tick that arrives while the
// previous run of the same job is still going is skipped, never queued.
// When a Locker is set, a run also needs the job's cross-instance lock.
type Scheduler struct {
	jobs   []Job
	locker ports.Locker
	obs    ports.Observability

	wg sync.WaitGroup
}

func New(obs ports.Observability, locker ports.Locker, jobs ...Job) (*Scheduler, error) {
	seen := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		switch {
		case j.Name == "":
			return nil, errors.New("scheduler: job name required")
		case seen[j.Name]:
			return nil, fmt.Errorf("scheduler: duplicate job %q", j.Name)
		case j.Interval <= 0:
			return nil, fmt.Errorf("scheduler: job %q needs a positive interval", j.Name)
		case j.Run == nil:
			return nil, fmt.Errorf("scheduler: job %q has no run func", j.Name)
		}
		seen[j.Name] = true
	}
	return &Scheduler{jobs: jobs, locker: locker, obs: obs}, nil
}

// Run blocks until ctx is cancelled, then waits for in-flight runs.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go func(j Job) {
			defer s.wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	<-ctx.Done()
	s.wg.Wait()
	return nil
}

// loop fires once at start, then on every tick.
func (s *Scheduler) loop(ctx context.Context, j Job) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	var running atomic.Bool
	fire := func() {
		if !running.CompareAndSwap(false, true) {
			s.obs.RecordJobSkipped(j.Name, "running")
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer running.Store(false)
			s.runOnce(ctx, j)
		}()
	}

	fire()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire()
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) {
	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, "thermocity:"+j.Name)
		if err != nil {
			s.obs.LogError("job_lock_failed", err, ports.Field{Key: "job", Value: j.Name})
			s.obs.RecordJobSkipped(j.Name, "lock_error")
			return
		}
		if !ok {
			s.obs.RecordJobSkipped(j.Name, "locked")
			return
		}
		defer unlock()
	}

	runCtx := ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.safeRun(runCtx, j)
	s.obs.RecordJob(j.Name, time.Since(start).Seconds(), err)
	if err != nil {
		s.obs.LogError("job_failed", err, ports.Field{Key: "job", Value: j.Name})
	}
}

func (s *Scheduler) safeRun(ctx context.Context, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.obs.LogCritical("job_panicked", err, ports.Field{Key: "job", Value: j.Name})
		}
	}()
	return j.Run(ctx)
}
