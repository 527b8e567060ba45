// Package worker is the job loop of a worker process: it claims jobs queued
// for its bot, runs them against the userbot and writes the answers back.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cur1osus/manager-for-userbot/internal/codec"
	"github.com/cur1osus/manager-for-userbot/internal/metrics"
	"github.com/cur1osus/manager-for-userbot/internal/supervisor"
	"github.com/cur1osus/manager-for-userbot/types"
)

// Tasks is what a connected userbot can do on request of the panel.
type Tasks interface {
	GetMeName(ctx context.Context) (string, error)
	GetFolders(ctx context.Context) ([]types.Folder, error)
	ProcessedUsers(ctx context.Context, folderIDs []int) ([]types.ProcessedUser, error)
	GetChatTitle(ctx context.Context, username string) (string, error)
}

type Jobs interface {
	ClaimNextJob(ctx context.Context, botID int64, kinds []types.TaskKind, claimer string, staleAfter time.Duration) (*types.Job, error)
	AnswerJob(ctx context.Context, id int64, answer []byte) (bool, error)
	InsertJob(ctx context.Context, botID int64, kind types.TaskKind, metadata []byte) (int64, error)
}

type Bots interface {
	GetBotByPhone(ctx context.Context, phone string) (*types.Bot, error)
	SetConnected(ctx context.Context, id int64, connected bool) error
	SetName(ctx context.Context, id int64, name string) error
}

type Config struct {
	Phone        string
	PollInterval time.Duration
	ClaimTTL     time.Duration
}

type Runtime struct {
	jobs    Jobs
	bots    Bots
	cfg     Config
	claimer string
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func New(jobs Jobs, bots Bots, cfg Config, log zerolog.Logger, m *metrics.Metrics) *Runtime {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 2 * time.Minute
	}
	return &Runtime{
		jobs:    jobs,
		bots:    bots,
		cfg:     cfg,
		claimer: cfg.Phone + "/" + uuid.NewString(),
		metrics: m,
		log:     log.With().Str("component", "worker").Str("phone", cfg.Phone).Logger(),
	}
}

func (r *Runtime) Claimer() string {
	return r.claimer
}

// Bot resolves the bot row this worker serves.
func (r *Runtime) Bot(ctx context.Context) (*types.Bot, error) {
	b, err := r.bots.GetBotByPhone(ctx, r.cfg.Phone)
	if err != nil {
		return nil, fmt.Errorf("bot %s: %w", r.cfg.Phone, err)
	}
	return b, nil
}

// AcquirePID writes the PID file at path and returns the function that
// removes it. The supervisor waits for this file right after spawning, so it
// is written before the process connects to anything.
func AcquirePID(path string, log zerolog.Logger) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	if err := supervisor.WritePIDFile(path); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return func() {
		if err := supervisor.RemovePIDFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove pid file")
		}
	}, nil
}

// Run serves jobs for botID until ctx is done, keeping the bot marked
// connected meanwhile.
func (r *Runtime) Run(ctx context.Context, botID int64, tasks Tasks) error {
	if err := r.bots.SetConnected(ctx, botID, true); err != nil {
		r.log.Warn().Err(err).Msg("failed to mark bot connected")
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.bots.SetConnected(cctx, botID, false); err != nil {
			r.log.Warn().Err(err).Msg("failed to mark bot disconnected")
		}
	}()

	r.log.Info().Int64("bot_id", botID).Str("claimer", r.claimer).Msg("worker serving jobs")
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := r.drain(ctx, botID, tasks); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, ErrDisconnected) {
				return err
			}
			r.log.Error().Err(err).Msg("job loop error")
		}
		select {
		case <-ctx.Done():
			r.log.Info().Msg("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runtime) drain(ctx context.Context, botID int64, tasks Tasks) error {
	for {
		handled, err := r.HandleNext(ctx, botID, tasks)
		if err != nil || !handled {
			return err
		}
	}
}

// HandleNext claims one job and answers it. It reports false when nothing
// was claimable.
func (r *Runtime) HandleNext(ctx context.Context, botID int64, tasks Tasks) (bool, error) {
	job, err := r.jobs.ClaimNextJob(ctx, botID, types.WorkerTaskKinds(), r.claimer, r.cfg.ClaimTTL)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	log := r.log.With().Int64("job_id", job.ID).Str("task", job.Task.String()).Logger()
	answer, taskErr := r.execute(ctx, *job, tasks)
	status := "ok"
	if taskErr != nil {
		status = "failed"
		log.Warn().Err(taskErr).Msg("task failed")
		answer = codec.Failure(taskErr)
	}

	won, err := r.jobs.AnswerJob(ctx, job.ID, answer)
	if err != nil {
		return true, fmt.Errorf("answer job %d: %w", job.ID, err)
	}
	switch {
	case !won:
		status = "duplicate"
		log.Debug().Msg("job already answered")
	case taskErr != nil:
		// only the worker whose answer landed reports the failure
		r.report(ctx, botID, taskErr)
	}
	if r.metrics != nil {
		r.metrics.WorkerAnswers.WithLabelValues(job.Task.String(), status).Inc()
	}
	if errors.Is(taskErr, ErrDisconnected) {
		return true, taskErr
	}
	return true, nil
}

func (r *Runtime) execute(ctx context.Context, job types.Job, tasks Tasks) ([]byte, error) {
	switch job.Task {
	case types.TaskGetMeName:
		name, err := tasks.GetMeName(ctx)
		if err != nil {
			return nil, err
		}
		if name != "" {
			if err := r.bots.SetName(ctx, job.BotID, name); err != nil {
				r.log.Warn().Err(err).Int64("bot_id", job.BotID).Msg("failed to store account name")
			}
		}
		return codec.Success(name)

	case types.TaskGetFolders:
		folders, err := tasks.GetFolders(ctx)
		if err != nil {
			return nil, err
		}
		return codec.Success(folders)

	case types.TaskProcessedUsers:
		var req types.ProcessedUsersRequest
		if len(job.TaskMetadata) > 0 {
			if err := codec.Unmarshal(job.TaskMetadata, &req); err != nil {
				return nil, fmt.Errorf("decode request: %w", err)
			}
		}
		users, err := tasks.ProcessedUsers(ctx, req.Folders)
		if err != nil {
			return nil, err
		}
		return codec.Success(users)

	case types.TaskGetChatTitle:
		var req types.ChatTitleRequest
		if err := codec.Unmarshal(job.TaskMetadata, &req); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		title, err := tasks.GetChatTitle(ctx, req.Username)
		if err != nil {
			return nil, err
		}
		return codec.Success(title)

	case types.TaskDeletePrivateChannel, types.TaskConnectionError, types.TaskFloodWaitError:
		return nil, fmt.Errorf("%w: %s is handled by the panel", ErrUnsupportedTask, job.Task)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedTask, job.Task)
}

// report raises a control job for failures the manager has to act on.
func (r *Runtime) report(ctx context.Context, botID int64, err error) {
	var (
		flood   *FloodWaitError
		private *PrivateChannelError
	)
	switch {
	case errors.As(err, &flood):
		r.raise(ctx, botID, types.TaskFloodWaitError, types.FloodWaitReport{Time: flood.Seconds})
	case errors.As(err, &private):
		r.raise(ctx, botID, types.TaskDeletePrivateChannel, types.PrivateChannelReport{Channel: private.Channel})
	case errors.Is(err, ErrDisconnected):
		r.raise(ctx, botID, types.TaskConnectionError, nil)
	}
}

// ReportConnectionError tells the panel the userbot could not connect.
func (r *Runtime) ReportConnectionError(ctx context.Context, botID int64) {
	r.raise(ctx, botID, types.TaskConnectionError, nil)
}

func (r *Runtime) raise(ctx context.Context, botID int64, kind types.TaskKind, payload any) {
	var meta []byte
	if payload != nil {
		b, err := codec.Marshal(payload)
		if err != nil {
			r.log.Error().Err(err).Str("task", kind.String()).Msg("encode report")
			return
		}
		meta = b
	}
	if _, err := r.jobs.InsertJob(ctx, botID, kind, meta); err != nil {
		r.log.Error().Err(err).Str("task", kind.String()).Msg("failed to report to panel")
		return
	}
	r.log.Info().Str("task", kind.String()).Msg("reported to panel")
}
