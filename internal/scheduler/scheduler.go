// Package scheduler triggers digest runs on a cron spec.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "digestd/pkg/logx"
)

type Config struct {
	Enabled bool
	// Spec is a cron expression; descriptors like "@daily" work too.
	Spec     string
	Timezone string
}

// RunFunc is invoked on every tick.
type RunFunc func(ctx context.Context)

// Service wraps robfig/cron around a single recurring digest job.
//
// Ticks never overlap: if a run is still in flight when the next tick
// fires, the tick is skipped and logged. A digest run that outlives its
// interval signals a deeper problem; queueing more runs would only pile on.
type Service struct {
	log    logx.Logger
	run    RunFunc
	parser cron.Parser

	mu   sync.Mutex
	cfg  Config
	c    *cron.Cron
	loc  *time.Location
	ctx  context.Context
	busy atomic.Bool
}

func New(cfg Config, run RunFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		run: run,
		log: log,
		// SecondOptional allows both 5-field and 6-field cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate checks a config without starting anything. Used by the config
// manager before committing a reload.
func (s *Service) Validate(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Spec) == "" {
		return fmt.Errorf("scheduler.spec is required when enabled")
	}
	if _, err := s.parser.Parse(cfg.Spec); err != nil {
		return fmt.Errorf("scheduler.spec: %w", err)
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx = ctx
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("loading timezone %q: %w", tz, err)
		}
		loc = l
	}
	s.loc = loc

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(s.cfg.Spec, s.tick); err != nil {
		return fmt.Errorf("registering spec %q: %w", s.cfg.Spec, err)
	}
	c.Start()
	s.c = c
	s.log.Info("scheduler started",
		logx.String("spec", s.cfg.Spec), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) tick() {
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Warn("previous run still in flight; skipping tick")
		return
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.run(ctx)
}

// Apply swaps the schedule at runtime. A disabled config stops the cron; a
// changed spec or timezone restarts it.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg

	unchanged := old.Enabled == cfg.Enabled &&
		strings.TrimSpace(old.Spec) == strings.TrimSpace(cfg.Spec) &&
		strings.TrimSpace(old.Timezone) == strings.TrimSpace(cfg.Timezone)
	if unchanged {
		return nil
	}

	s.stopLocked()
	if !cfg.Enabled {
		s.log.Info("scheduler disabled by reload")
		return nil
	}
	return s.startLocked()
}

// NextRun reports the next scheduled tick, if the scheduler is running.
func (s *Service) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}, false
	}
	entries := s.c.Entries()
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

func (s *Service) stopLocked() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
}
