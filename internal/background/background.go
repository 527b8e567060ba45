// Package background holds the periodic tasks of the control process:
// notification drains driven by Redis cursors and the sweep of jobs that
// workers report back to the panel.
package background

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cur1osus/manager-for-userbot/internal/metrics"
	"github.com/cur1osus/manager-for-userbot/internal/notify"
)

type Config struct {
	Batch      int
	SweepBatch int
	SendDelay  time.Duration
}

func DefaultConfig() Config {
	return Config{Batch: 30, SweepBatch: 100, SendDelay: time.Second}
}

// Stats describes one run of a drain or sweep.
type Stats struct {
	Fetched   int
	Delivered int
	Failed    int
	Skipped   int
	Cursor    int64
	Advanced  bool
}

// newLimiter spaces outgoing messages at least delay apart.
func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

type deliverer struct {
	name    string
	sender  notify.Sender
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// deliver waits for the rate limiter and sends msg. A send failure is logged
// and reported as false; only cancellation is returned as an error.
func (d *deliverer) deliver(ctx context.Context, msg notify.Message) (bool, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return false, err
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		d.log.Warn().Err(err).Int64("chat_id", msg.ChatID).Msg("notification not delivered")
		if d.metrics != nil {
			d.metrics.NotificationsFailed.WithLabelValues(d.name).Inc()
		}
		return false, nil
	}
	if d.metrics != nil {
		d.metrics.NotificationsSent.WithLabelValues(d.name).Inc()
	}
	return true, nil
}

func (d *deliverer) skip(reason string) {
	if d.metrics != nil {
		d.metrics.NotificationsSkip.WithLabelValues(d.name, reason).Inc()
	}
}

func (d *deliverer) cursor(v int64) {
	if d.metrics != nil {
		d.metrics.DrainCursor.WithLabelValues(d.name).Set(float64(v))
	}
}
