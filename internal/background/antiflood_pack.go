package background

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cur1osus/manager-for-userbot/internal/keyboards"
	"github.com/cur1osus/manager-for-userbot/internal/messages"
	"github.com/cur1osus/manager-for-userbot/internal/metrics"
	"github.com/cur1osus/manager-for-userbot/internal/notify"
	"github.com/cur1osus/manager-for-userbot/store"
	"github.com/cur1osus/manager-for-userbot/types"
)

const AntifloodPackTaskName = "antiflood_pack"

type PackSource interface {
	ListAntifloodBots(ctx context.Context) ([]types.BotManager, error)
	AcceptedUnsentAfter(ctx context.Context, botID, afterID int64, limit int) ([]types.AnalyzedMessage, error)
}

// AntifloodPack groups accepted messages of antiflood managers into packs of
// limit_pack entries, one cursor per bot.
type AntifloodPack struct {
	source  PackSource
	cursors types.CursorStore
	out     *deliverer
	log     zerolog.Logger
}

func NewAntifloodPack(source PackSource, cursors types.CursorStore, sender notify.Sender, cfg Config, log zerolog.Logger, m *metrics.Metrics) *AntifloodPack {
	log = log.With().Str("component", AntifloodPackTaskName).Logger()
	return &AntifloodPack{
		source:  source,
		cursors: cursors,
		out: &deliverer{
			name:    "antiflood_pack",
			sender:  sender,
			limiter: newLimiter(cfg.SendDelay),
			metrics: m,
			log:     log,
		},
		log: log,
	}
}

// Run sends at most one pack per bot. A partial page waits for more rows and
// the cursor only moves after a successful send.
func (p *AntifloodPack) Run(ctx context.Context) (Stats, error) {
	var st Stats
	pairs, err := p.source.ListAntifloodBots(ctx)
	if err != nil {
		return st, fmt.Errorf("list antiflood bots: %w", err)
	}

	var errs []error
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if err := p.runBot(ctx, pair, &st); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return st, err
			}
			p.log.Error().Err(err).Int64("bot_id", pair.Bot.ID).Msg("pack failed")
			errs = append(errs, err)
		}
	}
	return st, errors.Join(errs...)
}

func (p *AntifloodPack) runBot(ctx context.Context, pair types.BotManager, st *Stats) error {
	limit := pair.Manager.LimitPack
	if limit <= 0 {
		st.Skipped++
		p.out.skip("no_limit")
		return nil
	}

	key, legacy := store.AntifloodCursorKeys(pair.Bot.ID)
	last, _, err := p.cursors.LoadCursor(ctx, key, legacy)
	if err != nil {
		return err
	}

	rows, err := p.source.AcceptedUnsentAfter(ctx, pair.Bot.ID, last, limit)
	if err != nil {
		return fmt.Errorf("fetch accepted for bot %d: %w", pair.Bot.ID, err)
	}
	st.Fetched += len(rows)
	if len(rows) < limit {
		return nil
	}

	delivered, err := p.out.deliver(ctx, notify.Message{
		ChatID:  pair.Manager.TelegramID,
		Text:    messages.Pack(pair.Bot, rows),
		Buttons: keyboards.Pack(pair.Bot.ID),
	})
	if err != nil {
		return err
	}
	if !delivered {
		st.Failed++
		return nil
	}
	st.Delivered++

	next := rows[len(rows)-1].ID
	if err := p.cursors.AdvanceCursor(ctx, key, next); err != nil {
		return err
	}
	st.Cursor = next
	st.Advanced = true
	p.out.cursor(next)
	return nil
}
