package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cur1osus/manager-for-userbot/internal/metrics"
)

func TestEveryRejectsDuplicatesAndInvalid(t *testing.T) {
	s := New(zerolog.Nop())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Every("drain", time.Second, noop))
	assert.ErrorIs(t, s.Every("drain", time.Second, noop), ErrDuplicateTask)
	assert.ErrorIs(t, s.Every("", time.Second, noop), ErrInvalidTask)
	assert.ErrorIs(t, s.Every("zero", 0, noop), ErrInvalidTask)
	assert.ErrorIs(t, s.Every("nil", time.Second, nil), ErrInvalidTask)
	assert.Equal(t, []string{"drain"}, s.Tasks())
}

func TestRunPendingHonoursIntervals(t *testing.T) {
	s := New(zerolog.Nop())
	var fast, slow int
	require.NoError(t, s.Every("fast", time.Second, func(context.Context) error { fast++; return nil }))
	require.NoError(t, s.Every("slow", 5*time.Second, func(context.Context) error { slow++; return nil }))

	start := time.Unix(1_700_000_000, 0)
	ctx := context.Background()
	for i := 0; i <= 10; i++ {
		s.RunPending(ctx, start.Add(time.Duration(i)*time.Second))
	}
	assert.Equal(t, 11, fast)
	assert.Equal(t, 3, slow)
}

func TestRunPendingRunsInRegistrationOrder(t *testing.T) {
	s := New(zerolog.Nop())
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		require.NoError(t, s.Every(name, time.Second, func(context.Context) error {
			order = append(order, name)
			return nil
		}))
	}
	s.RunPending(context.Background(), time.Now())
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFailingTaskDoesNotStopOthers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := New(zerolog.Nop(), WithMetrics(m))

	var after int
	require.NoError(t, s.Every("boom", time.Second, func(context.Context) error { panic("kaput") }))
	require.NoError(t, s.Every("err", time.Second, func(context.Context) error { return errors.New("nope") }))
	require.NoError(t, s.Every("ok", time.Second, func(context.Context) error { after++; return nil }))

	ran := s.RunPending(context.Background(), time.Now())
	assert.Equal(t, 3, ran)
	assert.Equal(t, 1, after)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerRuns.WithLabelValues("boom", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerRuns.WithLabelValues("ok", "ok")))
}

func TestStartStop(t *testing.T) {
	s := New(zerolog.Nop(), WithTick(10*time.Millisecond))
	var runs atomic.Int32
	require.NoError(t, s.Every("tick", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start(context.Background())
	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	n := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, runs.Load())
}
