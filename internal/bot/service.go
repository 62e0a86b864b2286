package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/config"
	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/kjannette/bsc-meme-trader/internal/scheduler"
	"github.com/rs/zerolog/log"
)

const (
	JobScan    = "scan"
	JobMonitor = "monitor"
	JobStats   = "stats"
	JobBalance = "balance"
)

type Intervals struct {
	Scan    time.Duration
	Monitor time.Duration
	Stats   time.Duration
	Balance time.Duration
}

func IntervalsFrom(cfg *config.Config) Intervals {
	return Intervals{
		Scan:    time.Duration(cfg.TokenScanSeconds) * time.Second,
		Monitor: time.Duration(cfg.PositionCheckSeconds) * time.Second,
		Stats:   time.Duration(cfg.StatsUpdateSeconds) * time.Second,
		Balance: time.Duration(cfg.BalanceCheckSeconds) * time.Second,
	}
}

// Service owns the trading loops and their schedule.
type Service struct {
	mu        sync.Mutex
	deps      Deps
	trader    *Trader
	monitor   *Monitor
	reporter  *Reporter
	sched     *scheduler.Scheduler
	intervals Intervals
	paper     bool
	jobsAdded bool
	startedAt time.Time
}

// NewService builds the loops. onPanic is handed to the scheduler.
func NewService(cfg *config.Config, deps Deps, onPanic func(job string, recovered any)) *Service {
	if deps.Locks == nil {
		deps.Locks = NewKeyedMutex()
	}
	return &Service{
		deps:      deps,
		trader:    NewTrader(TraderConfigFrom(cfg), deps),
		monitor:   NewMonitor(MonitorConfigFrom(cfg), deps),
		reporter:  NewReporter(deps),
		sched:     scheduler.New(scheduler.Config{OnPanic: onPanic}),
		intervals: IntervalsFrom(cfg),
		paper:     cfg.PaperTradingEnabled,
	}
}

func (s *Service) Trader() *Trader { return s.trader }

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sched.Running() {
		log.Warn().Str("component", "bot").Msg("already running")
		return nil
	}

	balance, err := s.deps.Venue.Balance(ctx)
	if err != nil {
		log.Warn().Str("component", "bot").Err(err).Msg("initial balance unavailable")
	}
	if err := s.deps.Store.SaveSystemStatus(ctx, models.SystemStatus{
		State:      models.StateStarting,
		Wallet:     s.deps.Venue.WalletAddress(),
		BalanceBNB: balance,
	}); err != nil {
		return fmt.Errorf("save starting status: %w", err)
	}

	mode := "LIVE MODE"
	if s.paper {
		mode = "PAPER MODE"
	}
	s.deps.Notify.Send(fmt.Sprintf("Starting BSC meme trader - %s | wallet %s | %.4f BNB",
		mode, shortAddr(s.deps.Venue.WalletAddress()), balance))

	if !s.jobsAdded {
		s.sched.Add(scheduler.Job{Name: JobScan, Interval: s.intervals.Scan, RunImmediately: true, Run: s.trader.Scan})
		s.sched.Add(scheduler.Job{Name: JobMonitor, Interval: s.intervals.Monitor, Run: s.monitor.Tick})
		s.sched.Add(scheduler.Job{Name: JobStats, Interval: s.intervals.Stats, Run: s.reporter.UpdateStats})
		s.sched.Add(scheduler.Job{Name: JobBalance, Interval: s.intervals.Balance, Run: s.reporter.RefreshBalance})
		s.jobsAdded = true
	}
	s.sched.Start(ctx)

	if err := s.deps.Store.SetState(ctx, models.StateOnline); err != nil {
		log.Error().Str("component", "bot").Err(err).Msg("set online")
	}
	s.startedAt = time.Now()
	log.Info().Str("component", "bot").Msg("started, watching BSC for new tokens")
	return nil
}

// Stop halts every job, waits for in-flight runs and marks the bot offline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sched.Stop()
	if err := s.deps.Store.SetState(ctx, models.StateOffline); err != nil {
		log.Error().Str("component", "bot").Err(err).Msg("set offline")
	}
	s.deps.Notify.Send("BSC meme trader shutting down")
	log.Info().Str("component", "bot").Msg("stopped")
}

func (s *Service) Running() bool { return s.sched.Running() }

// Uptime is zero until Start succeeds.
func (s *Service) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// RunNow triggers a named job outside its schedule.
func (s *Service) RunNow(ctx context.Context, job string) (bool, error) {
	return s.sched.RunNow(ctx, job)
}
