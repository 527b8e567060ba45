package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cur1osus/manager-for-userbot/internal/codec"
	"github.com/cur1osus/manager-for-userbot/types"
)

type memQueue struct {
	mu     sync.Mutex
	nextID int64
	jobs   []types.Job
	err    error
}

func (q *memQueue) ReplacePending(_ context.Context, botID int64, kind types.TaskKind, metadata []byte) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.jobs[:0]
	for _, j := range q.jobs {
		if !(j.BotID == botID && j.Task == kind) {
			kept = append(kept, j)
		}
	}
	q.jobs = kept
	q.nextID++
	q.jobs = append(q.jobs, types.Job{ID: q.nextID, BotID: botID, Task: kind, TaskMetadata: metadata})
	return q.nextID, nil
}

func (q *memQueue) LatestJob(_ context.Context, botID int64, kind types.TaskKind) (*types.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	var latest *types.Job
	for i := range q.jobs {
		j := q.jobs[i]
		if j.BotID == botID && j.Task == kind && (latest == nil || j.ID > latest.ID) {
			latest = &j
		}
	}
	return latest, nil
}

func (q *memQueue) answer(id int64, answer []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.jobs {
		if q.jobs[i].ID == id {
			q.jobs[i].Answer = answer
		}
	}
}

func (q *memQueue) pending(botID int64, kind types.TaskKind) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.jobs {
		if j.BotID == botID && j.Task == kind && j.Pending() {
			n++
		}
	}
	return n
}

// virtualClock records sleeps instead of performing them.
type virtualClock struct {
	elapsed time.Duration
	polls   int
	onPoll  func(n int)
}

func (c *virtualClock) wait(_ context.Context, d time.Duration) error {
	c.elapsed += d
	c.polls++
	if c.onPoll != nil {
		c.onPoll(c.polls)
	}
	return nil
}

func newTestDispatcher(q JobQueue, clock *virtualClock) *Dispatcher {
	return New(q, DefaultOptions(), zerolog.Nop(), WithWait(clock.wait))
}

func TestEnqueueKeepsOneLivePendingJob(t *testing.T) {
	q := &memQueue{}
	d := newTestDispatcher(q, &virtualClock{})
	ctx := context.Background()

	_, err := d.Enqueue(ctx, 5, types.TaskGetFolders, nil)
	require.NoError(t, err)
	_, err = d.Enqueue(ctx, 5, types.TaskGetFolders, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, q.pending(5, types.TaskGetFolders))
}

func TestEnqueueEncodesPayload(t *testing.T) {
	q := &memQueue{}
	d := newTestDispatcher(q, &virtualClock{})

	id, err := d.Enqueue(context.Background(), 5, types.TaskProcessedUsers, []int{2, 3})
	require.NoError(t, err)

	job, err := q.LatestJob(context.Background(), 5, types.TaskProcessedUsers)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)
	var folders []int
	require.NoError(t, codec.Unmarshal(job.TaskMetadata, &folders))
	assert.Equal(t, []int{2, 3}, folders)
}

func TestEnqueueRejectsControlKinds(t *testing.T) {
	d := newTestDispatcher(&memQueue{}, &virtualClock{})
	_, err := d.Enqueue(context.Background(), 5, types.TaskFloodWaitError, nil)
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestAwaitResultIsBounded(t *testing.T) {
	q := &memQueue{}
	clock := &virtualClock{}
	d := newTestDispatcher(q, clock)
	var frames []string
	progress := ProgressFunc(func(_ context.Context, frame string) error {
		frames = append(frames, frame)
		return nil
	})

	res, err := d.Request(context.Background(), 5, types.TaskGetFolders, nil, progress)
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.ErrorIs(t, res.Decode(&struct{}{}), ErrNotAvailable)

	assert.Equal(t, 7500*time.Millisecond, clock.elapsed)
	assert.Equal(t, d.Options().Budget(), clock.elapsed)
	assert.Equal(t, 15, clock.polls)
	require.Len(t, frames, 15)
	assert.Equal(t, DefaultFrames, frames[:5])
	assert.Equal(t, DefaultFrames, frames[10:])
}

func TestAwaitResultReturnsAnswerAsSoonAsWritten(t *testing.T) {
	q := &memQueue{}
	clock := &virtualClock{}
	d := newTestDispatcher(q, clock)
	ctx := context.Background()

	id, err := d.Enqueue(ctx, 5, types.TaskGetMeName, nil)
	require.NoError(t, err)
	answer, err := codec.Success("Alice")
	require.NoError(t, err)
	clock.onPoll = func(n int) {
		if n == 4 {
			q.answer(id, answer)
		}
	}

	res, err := d.AwaitResult(ctx, 5, types.TaskGetMeName, nil)
	require.NoError(t, err)
	require.True(t, res.Available)
	assert.Equal(t, 4, clock.polls)

	var name string
	require.NoError(t, res.Decode(&name))
	assert.Equal(t, "Alice", name)
}

func TestAwaitResultReadsNewestRow(t *testing.T) {
	q := &memQueue{}
	clock := &virtualClock{}
	d := newTestDispatcher(q, clock)
	ctx := context.Background()

	old := types.Job{ID: 1, BotID: 5, Task: types.TaskGetMeName, Answer: codec.Failure(errors.New("stale"))}
	q.jobs = append(q.jobs, old)
	q.nextID = 1
	newID, err := d.Enqueue(ctx, 5, types.TaskGetMeName, nil)
	require.NoError(t, err)
	q.jobs = append(q.jobs, old)

	fresh, _ := codec.Success("fresh")
	q.answer(newID, fresh)

	res, err := d.AwaitResult(ctx, 5, types.TaskGetMeName, nil)
	require.NoError(t, err)
	require.True(t, res.Available)
	assert.Equal(t, newID, res.Job.ID)
}

func TestAwaitResultSurfacesFailedTask(t *testing.T) {
	q := &memQueue{}
	d := newTestDispatcher(q, &virtualClock{})
	ctx := context.Background()

	id, err := d.Enqueue(ctx, 5, types.TaskGetFolders, nil)
	require.NoError(t, err)
	q.answer(id, codec.Failure(errors.New("not connected")))

	res, err := d.AwaitResult(ctx, 5, types.TaskGetFolders, nil)
	require.NoError(t, err)
	require.True(t, res.Available)
	assert.ErrorIs(t, res.Decode(&[]types.Folder{}), codec.ErrTaskFailed)
}

func TestAwaitResultStoreError(t *testing.T) {
	q := &memQueue{err: errors.New("db down")}
	d := newTestDispatcher(q, &virtualClock{})

	_, err := d.AwaitResult(context.Background(), 5, types.TaskGetFolders, nil)
	assert.Error(t, err)
}

func TestAwaitResultHonoursCancellation(t *testing.T) {
	q := &memQueue{}
	d := New(q, Options{MaxRetries: 3, PollInterval: time.Hour, Frames: DefaultFrames}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.AwaitResult(ctx, 5, types.TaskGetFolders, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwaitResultRealTimeBound(t *testing.T) {
	q := &memQueue{}
	opts := Options{MaxRetries: 2, PollInterval: 10 * time.Millisecond, Frames: DefaultFrames}
	d := New(q, opts, zerolog.Nop())

	started := time.Now()
	res, err := d.Request(context.Background(), 5, types.TaskGetFolders, nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Available)
	elapsed := time.Since(started)
	assert.GreaterOrEqual(t, elapsed, opts.Budget())
	assert.Less(t, elapsed, opts.Budget()+time.Second)
}
