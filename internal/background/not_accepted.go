package background

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cur1osus/manager-for-userbot/internal/codec"
	"github.com/cur1osus/manager-for-userbot/internal/keyboards"
	"github.com/cur1osus/manager-for-userbot/internal/messages"
	"github.com/cur1osus/manager-for-userbot/internal/metrics"
	"github.com/cur1osus/manager-for-userbot/internal/notify"
	"github.com/cur1osus/manager-for-userbot/store"
	"github.com/cur1osus/manager-for-userbot/types"
)

const NotAcceptedTaskName = "not_accepted_drain"

type NotAcceptedSource interface {
	LatestNotAccepted(ctx context.Context) ([]types.AnalyzedRecord, error)
	NotAcceptedAfter(ctx context.Context, afterID int64, limit int) ([]types.AnalyzedRecord, error)
}

// NotAcceptedDrain notifies managers about messages their workers declined.
type NotAcceptedDrain struct {
	source    NotAcceptedSource
	cursors   types.CursorStore
	out       *deliverer
	batch     int
	key       string
	legacyKey string
	log       zerolog.Logger
}

func NewNotAcceptedDrain(source NotAcceptedSource, cursors types.CursorStore, sender notify.Sender, cfg Config, log zerolog.Logger, m *metrics.Metrics) *NotAcceptedDrain {
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultConfig().Batch
	}
	log = log.With().Str("component", NotAcceptedTaskName).Logger()
	key, legacy := store.NotAcceptedCursorKeys()
	return &NotAcceptedDrain{
		source:  source,
		cursors: cursors,
		out: &deliverer{
			name:    "not_accepted",
			sender:  sender,
			limiter: newLimiter(cfg.SendDelay),
			metrics: m,
			log:     log,
		},
		batch:     cfg.Batch,
		key:       key,
		legacyKey: legacy,
		log:       log,
	}
}

// Run delivers one batch. Without a stored cursor only the newest row is
// sent. The cursor moves to the highest id fetched once the batch has been
// walked, whether or not every delivery succeeded.
func (d *NotAcceptedDrain) Run(ctx context.Context) (Stats, error) {
	var st Stats

	last, ok, err := d.cursors.LoadCursor(ctx, d.key, d.legacyKey)
	if err != nil {
		return st, err
	}
	st.Cursor = last

	var rows []types.AnalyzedRecord
	if !ok {
		rows, err = d.source.LatestNotAccepted(ctx)
	} else {
		rows, err = d.source.NotAcceptedAfter(ctx, last, d.batch)
	}
	if err != nil {
		return st, fmt.Errorf("fetch not accepted: %w", err)
	}
	st.Fetched = len(rows)
	if len(rows) == 0 {
		return st, nil
	}

	maxID := last
	for _, rec := range rows {
		if rec.Message.ID > maxID {
			maxID = rec.Message.ID
		}
		msg, reason := d.compose(rec)
		if reason != "" {
			st.Skipped++
			d.out.skip(reason)
			d.log.Debug().Int64("id", rec.Message.ID).Str("reason", reason).Msg("row skipped")
			continue
		}
		delivered, err := d.out.deliver(ctx, msg)
		if err != nil {
			return st, err
		}
		if delivered {
			st.Delivered++
		} else {
			st.Failed++
		}
	}

	if err := d.cursors.AdvanceCursor(ctx, d.key, maxID); err != nil {
		return st, err
	}
	st.Cursor = maxID
	st.Advanced = true
	d.out.cursor(maxID)
	if st.Delivered > 0 || st.Failed > 0 {
		d.log.Info().Int("delivered", st.Delivered).Int("failed", st.Failed).Int("skipped", st.Skipped).Int64("last_id", maxID).Msg("drain finished")
	}
	return st, nil
}

// compose returns the notification for rec or the reason it is skipped.
func (d *NotAcceptedDrain) compose(rec types.AnalyzedRecord) (notify.Message, string) {
	if rec.Bot == nil {
		return notify.Message{}, "no_bot"
	}
	if rec.Manager == nil {
		return notify.Message{}, "no_manager"
	}
	if rec.Manager.IsAntifloodMode {
		return notify.Message{}, "antiflood"
	}
	decision, err := codec.DecodeMap(rec.Message.Decision)
	if err != nil {
		d.log.Warn().Err(err).Int64("id", rec.Message.ID).Msg("undecodable decision, treating as empty")
		decision = map[string]any{}
	}
	if rec.UsernameBanned || messages.IsBanned(decision) {
		return notify.Message{}, "banned"
	}
	return notify.Message{
		ChatID:  rec.Manager.TelegramID,
		Text:    messages.NotAccepted(rec.Message, *rec.Bot, decision),
		Silent:  true,
		Buttons: keyboards.NotAccepted(rec.Message.ID),
	}, ""
}
