package background

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cur1osus/manager-for-userbot/internal/codec"
	"github.com/cur1osus/manager-for-userbot/internal/messages"
	"github.com/cur1osus/manager-for-userbot/internal/metrics"
	"github.com/cur1osus/manager-for-userbot/internal/notify"
	"github.com/cur1osus/manager-for-userbot/types"
)

const JobSweepTaskName = "userbot_job_sweep"

type ControlJobs interface {
	PendingControlJobs(ctx context.Context, limit int) ([]types.JobRecord, error)
	AnswerJob(ctx context.Context, id int64, answer []byte) (bool, error)
}

type BotStarter interface {
	SetStarted(ctx context.Context, id int64, started bool) error
}

// JobSweep acknowledges jobs raised by workers and tells the owning manager.
type JobSweep struct {
	jobs  ControlJobs
	bots  BotStarter
	out   *deliverer
	batch int
	log   zerolog.Logger
}

func NewJobSweep(jobs ControlJobs, bots BotStarter, sender notify.Sender, cfg Config, log zerolog.Logger, m *metrics.Metrics) *JobSweep {
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = DefaultConfig().SweepBatch
	}
	log = log.With().Str("component", JobSweepTaskName).Logger()
	return &JobSweep{
		jobs: jobs,
		bots: bots,
		out: &deliverer{
			name:    "control_jobs",
			sender:  sender,
			limiter: newLimiter(cfg.SendDelay),
			metrics: m,
			log:     log,
		},
		batch: cfg.SweepBatch,
		log:   log,
	}
}

// Run acknowledges each pending control job before notifying, so a job is
// reported at most once even when delivery fails.
func (s *JobSweep) Run(ctx context.Context) (Stats, error) {
	var st Stats
	recs, err := s.jobs.PendingControlJobs(ctx, s.batch)
	if err != nil {
		return st, fmt.Errorf("fetch control jobs: %w", err)
	}
	st.Fetched = len(recs)

	for _, rec := range recs {
		won, err := s.jobs.AnswerJob(ctx, rec.Job.ID, codec.Ack)
		if err != nil {
			return st, fmt.Errorf("ack job %d: %w", rec.Job.ID, err)
		}
		if !won {
			st.Skipped++
			s.out.skip("already_answered")
			continue
		}

		if rec.Job.Task == types.TaskFloodWaitError && rec.Bot != nil {
			if err := s.bots.SetStarted(ctx, rec.Bot.ID, false); err != nil {
				s.log.Error().Err(err).Int64("bot_id", rec.Bot.ID).Msg("failed to stop bot after flood wait")
			}
		}

		if rec.Bot == nil || rec.Manager == nil {
			st.Skipped++
			s.out.skip("orphan")
			s.log.Warn().Int64("job_id", rec.Job.ID).Str("task", rec.Job.Task.String()).Msg("control job without bot or manager")
			continue
		}

		text, ok := s.compose(rec)
		if !ok {
			st.Skipped++
			s.out.skip("unknown_task")
			continue
		}
		delivered, err := s.out.deliver(ctx, notify.Message{ChatID: rec.Manager.TelegramID, Text: text})
		if err != nil {
			return st, err
		}
		if delivered {
			st.Delivered++
		} else {
			st.Failed++
		}
	}
	return st, nil
}

func (s *JobSweep) compose(rec types.JobRecord) (string, bool) {
	switch rec.Job.Task {
	case types.TaskDeletePrivateChannel:
		return messages.DeletePrivateChannel(channelFromMetadata(rec.Job.TaskMetadata)), true
	case types.TaskConnectionError:
		return messages.ConnectionError(*rec.Bot), true
	case types.TaskFloodWaitError:
		return messages.FloodWait(*rec.Bot, floodSeconds(rec.Job.TaskMetadata)), true
	default:
		s.log.Warn().Str("task", rec.Job.Task.String()).Msg("unexpected control task")
		return "", false
	}
}

func channelFromMetadata(meta []byte) string {
	var v any
	if err := codec.Unmarshal(meta, &v); err != nil {
		return ""
	}
	switch c := v.(type) {
	case string:
		return c
	case map[string]any:
		if title, ok := c["channel"]; ok {
			return fmt.Sprint(title)
		}
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func floodSeconds(meta []byte) int64 {
	m, err := codec.DecodeMap(meta)
	if err != nil {
		return 0
	}
	switch t := m["time"].(type) {
	case int64:
		return t
	case uint64:
		return int64(t)
	case float64:
		return int64(t)
	case int:
		return int64(t)
	}
	return 0
}
