// Package scheduler runs named periodic tasks one after another on a fixed
// tick inside the control process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cur1osus/manager-for-userbot/internal/metrics"
)

const DefaultTick = time.Second

var (
	ErrDuplicateTask = errors.New("scheduler: task already registered")
	ErrInvalidTask   = errors.New("scheduler: invalid task")
)

type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	lastRun  time.Time
}

func (t *task) due(now time.Time) bool {
	return t.lastRun.IsZero() || now.Sub(t.lastRun) >= t.interval
}

type Scheduler struct {
	tick    time.Duration
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	tasks   []*task
	byName  map[string]*task
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Scheduler)

func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(log zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		tick:   DefaultTick,
		log:    log.With().Str("component", "scheduler").Logger(),
		byName: make(map[string]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Every registers fn to run at most once per interval. Tasks run in
// registration order.
func (s *Scheduler) Every(name string, interval time.Duration, fn TaskFunc) error {
	if name == "" || interval <= 0 || fn == nil {
		return fmt.Errorf("%w: %q every %s", ErrInvalidTask, name, interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, name)
	}
	t := &task{name: name, interval: interval, fn: fn}
	s.tasks = append(s.tasks, t)
	s.byName[name] = t
	return nil
}

// Tasks returns the registered task names in run order.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		names = append(names, t.name)
	}
	return names
}

// RunPending runs every task due at now, sequentially. A failing or panicking
// task is logged and does not stop the others. It returns how many ran.
func (s *Scheduler) RunPending(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	due := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.due(now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	ran := 0
	for _, t := range due {
		if ctx.Err() != nil {
			break
		}
		err := s.runTask(ctx, t)
		s.mu.Lock()
		t.lastRun = now
		s.mu.Unlock()
		ran++

		status := "ok"
		if err != nil {
			status = "error"
			s.log.Error().Err(err).Str("task", t.name).Msg("task failed")
		}
		if s.metrics != nil {
			s.metrics.SchedulerRuns.WithLabelValues(t.name, status).Inc()
		}
	}
	return ran
}

func (s *Scheduler) runTask(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", t.name, r)
		}
	}()
	return t.fn(ctx)
}

// Run blocks, checking for due tasks every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.RunPending(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.RunPending(ctx, now)
		}
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.log.Info().Strs("tasks", s.Tasks()).Dur("tick", s.tick).Msg("scheduler started")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
}

// Stop cancels the loop and waits for the task in flight to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}
