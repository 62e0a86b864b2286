// Package scheduler runs named jobs on independent fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is one recurring unit of work. A job never runs concurrently with
// itself: ticks that arrive while it is still running are dropped.
type Job struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool
	Run            func(ctx context.Context)
}

type Config struct {
	// OnPanic is called after a job panics. The job keeps its schedule
	// unless OnPanic stops the process.
	OnPanic func(job string, recovered any)
}

type Scheduler struct {
	cfg  Config
	jobs []Job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	busy    map[string]*sync.Mutex
}

func New(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg, busy: make(map[string]*sync.Mutex)}
}

// Add registers a job. Jobs added after Start are ignored until the next Start.
func (s *Scheduler) Add(j Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
	s.busy[j.Name] = &sync.Mutex{}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Warn().Str("component", "scheduler").Msg("already running")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	for _, j := range jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
		log.Info().Str("component", "scheduler").Str("job", j.Name).Dur("every", j.Interval).Msg("job scheduled")
	}
}

// Stop cancels every job and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	log.Info().Str("component", "scheduler").Msg("stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow runs a job synchronously outside its schedule. It reports false
// if the job is unknown or already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	var job *Job
	for i := range s.jobs {
		if s.jobs[i].Name == name {
			job = &s.jobs[i]
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		return false, fmt.Errorf("unknown job %q", name)
	}
	return s.runOnce(ctx, *job), nil
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()

	if j.RunImmediately {
		s.runOnce(ctx, j)
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) (ran bool) {
	s.mu.Lock()
	lock := s.busy[j.Name]
	s.mu.Unlock()
	if !lock.TryLock() {
		log.Debug().Str("component", "scheduler").Str("job", j.Name).Msg("previous run still active, skipping")
		return false
	}
	defer lock.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("component", "scheduler").Str("job", j.Name).
				Interface("panic", r).Bytes("stack", debug.Stack()).Msg("job panicked")
			if s.cfg.OnPanic != nil {
				s.cfg.OnPanic(j.Name, r)
			}
		}
	}()

	if ctx.Err() != nil {
		return false
	}
	j.Run(ctx)
	return true
}
