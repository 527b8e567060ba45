package background

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cur1osus/manager-for-userbot/internal/codec"
	"github.com/cur1osus/manager-for-userbot/types"
)

type fakeControlJobs struct {
	recs     []types.JobRecord
	answered map[int64][]byte
	started  map[int64]bool
}

func newFakeControlJobs(recs ...types.JobRecord) *fakeControlJobs {
	return &fakeControlJobs{recs: recs, answered: map[int64][]byte{}, started: map[int64]bool{}}
}

func (f *fakeControlJobs) PendingControlJobs(_ context.Context, limit int) ([]types.JobRecord, error) {
	var out []types.JobRecord
	for _, r := range f.recs {
		if _, done := f.answered[r.Job.ID]; done {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeControlJobs) AnswerJob(_ context.Context, id int64, answer []byte) (bool, error) {
	if _, done := f.answered[id]; done {
		return false, nil
	}
	f.answered[id] = answer
	return true, nil
}

func (f *fakeControlJobs) SetStarted(_ context.Context, id int64, started bool) error {
	f.started[id] = started
	return nil
}

func controlJob(t *testing.T, id int64, kind types.TaskKind, meta any) types.JobRecord {
	t.Helper()
	raw, err := codec.Marshal(meta)
	require.NoError(t, err)
	bot, mgr := testBot, testManager
	return types.JobRecord{
		Job:     types.Job{ID: id, BotID: bot.ID, Task: kind, TaskMetadata: raw},
		Bot:     &bot,
		Manager: &mgr,
	}
}

func TestJobSweepNotifiesOncePerJob(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeControlJobs(
		controlJob(t, 1, types.TaskDeletePrivateChannel, "Secret chat"),
		controlJob(t, 2, types.TaskConnectionError, nil),
		controlJob(t, 3, types.TaskFloodWaitError, map[string]any{"time": 125}),
	)
	sender := &fakeSender{}
	s := NewJobSweep(jobs, jobs, sender, testConfig(), zerolog.Nop(), nil)

	st, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Delivered)
	require.Len(t, sender.sent, 3)
	assert.Contains(t, sender.sent[0].Text, "Secret chat")
	assert.Contains(t, sender.sent[1].Text, "Ошибка подключения")
	assert.Contains(t, sender.sent[2].Text, "2 мин. 5 сек.")
	for _, m := range sender.sent {
		assert.Equal(t, testManager.TelegramID, m.ChatID)
	}

	assert.Equal(t, codec.Ack, jobs.answered[1])
	started, ok := jobs.started[testBot.ID]
	assert.True(t, ok)
	assert.False(t, started)

	st, err = s.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Fetched)
	assert.Len(t, sender.sent, 3)
}

func TestJobSweepDeliveryFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeControlJobs(controlJob(t, 1, types.TaskConnectionError, nil))
	sender := &fakeSender{failOn: map[string]bool{"Ошибка": true}}
	s := NewJobSweep(jobs, jobs, sender, testConfig(), zerolog.Nop(), nil)

	st, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Failed)
	assert.Contains(t, jobs.answered, int64(1))
}

func TestJobSweepOrphanIsAcknowledgedSilently(t *testing.T) {
	ctx := context.Background()
	orphan := controlJob(t, 9, types.TaskConnectionError, nil)
	orphan.Bot = nil
	orphan.Manager = nil
	jobs := newFakeControlJobs(orphan)
	sender := &fakeSender{}
	s := NewJobSweep(jobs, jobs, sender, testConfig(), zerolog.Nop(), nil)

	st, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Skipped)
	assert.Empty(t, sender.sent)
	assert.Contains(t, jobs.answered, int64(9))
}

func TestChannelFromMetadata(t *testing.T) {
	raw, err := codec.Marshal(map[string]any{"channel": "News"})
	require.NoError(t, err)
	assert.Equal(t, "News", channelFromMetadata(raw))

	raw, err = codec.Marshal("Plain")
	require.NoError(t, err)
	assert.Equal(t, "Plain", channelFromMetadata(raw))

	assert.Equal(t, "", channelFromMetadata(nil))
}
