// Package dispatch hands tasks to worker processes through the jobs table
// and polls for their answers with a bounded number of retries.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cur1osus/manager-for-userbot/internal/codec"
	"github.com/cur1osus/manager-for-userbot/internal/metrics"
	"github.com/cur1osus/manager-for-userbot/types"
)

var (
	ErrNotAvailable = errors.New("worker answer not available")
	ErrUnknownTask  = errors.New("task kind is not serviced by workers")
)

// DefaultFrames cycle once per retry.
var DefaultFrames = []string{"", ".", "..", "...", "...."}

// JobQueue is the part of the job store the dispatcher relies on.
type JobQueue interface {
	ReplacePending(ctx context.Context, botID int64, kind types.TaskKind, metadata []byte) (int64, error)
	LatestJob(ctx context.Context, botID int64, kind types.TaskKind) (*types.Job, error)
}

// Progress shows the operator that a request is still in flight.
type Progress interface {
	Update(ctx context.Context, frame string) error
}

type ProgressFunc func(ctx context.Context, frame string) error

func (f ProgressFunc) Update(ctx context.Context, frame string) error { return f(ctx, frame) }

type Options struct {
	MaxRetries   int
	PollInterval time.Duration
	Frames       []string
}

func DefaultOptions() Options {
	return Options{MaxRetries: 3, PollInterval: 500 * time.Millisecond, Frames: DefaultFrames}
}

// Budget is the longest AwaitResult waits for an answer.
func (o Options) Budget() time.Duration {
	return time.Duration(o.MaxRetries*len(o.Frames)) * o.PollInterval
}

type Result struct {
	Job       *types.Job
	Available bool
}

// Decode unpacks the worker answer into v.
func (r Result) Decode(v any) error {
	if !r.Available || r.Job == nil {
		return ErrNotAvailable
	}
	env, err := codec.OpenEnvelope(r.Job.Answer)
	if err != nil {
		return err
	}
	return env.Decode(v)
}

type Dispatcher struct {
	jobs    JobQueue
	opts    Options
	wait    func(ctx context.Context, d time.Duration) error
	metrics *metrics.Metrics
	log     zerolog.Logger
}

type Option func(*Dispatcher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithWait replaces the sleep between polls.
func WithWait(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.wait = fn }
}

func New(jobs JobQueue, opts Options, log zerolog.Logger, options ...Option) *Dispatcher {
	def := DefaultOptions()
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if len(opts.Frames) == 0 {
		opts.Frames = def.Frames
	}
	d := &Dispatcher{
		jobs: jobs,
		opts: opts,
		wait: sleep,
		log:  log.With().Str("component", "dispatch").Logger(),
	}
	for _, o := range options {
		o(d)
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Dispatcher) Options() Options { return d.opts }

// Enqueue replaces any earlier job of the same bot and kind with a new
// pending one carrying payload.
func (d *Dispatcher) Enqueue(ctx context.Context, botID int64, kind types.TaskKind, payload any) (int64, error) {
	if !kind.ServicedByWorker() {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTask, kind)
	}
	var metadata []byte
	if payload != nil {
		b, err := codec.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		metadata = b
	}
	id, err := d.jobs.ReplacePending(ctx, botID, kind, metadata)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s for bot %d: %w", kind, botID, err)
	}
	d.log.Debug().Int64("bot_id", botID).Str("task", kind.String()).Int64("job_id", id).Msg("job enqueued")
	return id, nil
}

// AwaitResult polls the newest job of the bot and kind until it is
// answered, showing one frame per poll. After MaxRetries full frame cycles
// it returns a Result with Available unset.
func (d *Dispatcher) AwaitResult(ctx context.Context, botID int64, kind types.TaskKind, progress Progress) (Result, error) {
	started := time.Now()
	for attempt := 0; attempt < d.opts.MaxRetries; attempt++ {
		for _, frame := range d.opts.Frames {
			if progress != nil {
				if err := progress.Update(ctx, frame); err != nil {
					d.log.Debug().Err(err).Msg("progress update failed")
				}
			}
			if err := d.wait(ctx, d.opts.PollInterval); err != nil {
				d.observe(kind, "cancelled", started)
				return Result{}, err
			}
			job, err := d.jobs.LatestJob(ctx, botID, kind)
			if err != nil {
				d.observe(kind, "error", started)
				return Result{}, fmt.Errorf("poll %s for bot %d: %w", kind, botID, err)
			}
			if job != nil && !job.Pending() {
				d.observe(kind, "answered", started)
				return Result{Job: job, Available: true}, nil
			}
		}
	}
	d.log.Info().Int64("bot_id", botID).Str("task", kind.String()).Int("retries", d.opts.MaxRetries).Msg("worker did not answer in time")
	d.observe(kind, "timeout", started)
	return Result{}, nil
}

// Request enqueues a job and awaits its answer.
func (d *Dispatcher) Request(ctx context.Context, botID int64, kind types.TaskKind, payload any, progress Progress) (Result, error) {
	if _, err := d.Enqueue(ctx, botID, kind, payload); err != nil {
		return Result{}, err
	}
	return d.AwaitResult(ctx, botID, kind, progress)
}

func (d *Dispatcher) observe(kind types.TaskKind, outcome string, started time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.DispatchOutcomes.WithLabelValues(kind.String(), outcome).Inc()
	d.metrics.DispatchWait.Observe(time.Since(started).Seconds())
}
