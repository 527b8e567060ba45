package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cur1osus/manager-for-userbot/types"
)

const analyzedColumns = `id, bot_id, username, additional_message, decision, accepted, sended`

const analyzedJoinSelect = `
SELECT ua.id, ua.bot_id, ua.username, ua.additional_message, ua.decision, ua.accepted, ua.sended,
       b.phone AS bot_phone, b.name AS bot_name, b.manager_id AS bot_manager_id,
       m.user_id AS manager_user_id, m.is_antiflood_mode AS manager_is_antiflood_mode,
       m.limit_pack AS manager_limit_pack,
       EXISTS (
           SELECT 1 FROM banned_users bu
           WHERE bu.manager_id = b.manager_id AND bu.username = ua.username
       ) AS username_banned
FROM user_analyzed ua
LEFT JOIN bots b ON b.id = ua.bot_id
LEFT JOIN managers m ON m.id = b.manager_id
WHERE ua.accepted = FALSE`

type analyzedRow struct {
	types.AnalyzedMessage
	BotPhone         sql.NullString `db:"bot_phone"`
	BotName          sql.NullString `db:"bot_name"`
	BotManagerID     sql.NullInt64  `db:"bot_manager_id"`
	ManagerTelegram  sql.NullInt64  `db:"manager_user_id"`
	ManagerAntiflood sql.NullBool   `db:"manager_is_antiflood_mode"`
	ManagerLimitPack sql.NullInt64  `db:"manager_limit_pack"`
	UsernameBanned   bool           `db:"username_banned"`
}

func (r analyzedRow) record() types.AnalyzedRecord {
	rec := types.AnalyzedRecord{Message: r.AnalyzedMessage, UsernameBanned: r.UsernameBanned}
	if r.BotPhone.Valid && r.AnalyzedMessage.BotID != nil {
		rec.Bot = &types.Bot{
			ID:        *r.AnalyzedMessage.BotID,
			ManagerID: r.BotManagerID.Int64,
			Phone:     r.BotPhone.String,
		}
		if r.BotName.Valid {
			name := r.BotName.String
			rec.Bot.Name = &name
		}
	}
	if r.ManagerTelegram.Valid {
		rec.Manager = &types.Manager{
			ID:              r.BotManagerID.Int64,
			TelegramID:      r.ManagerTelegram.Int64,
			IsAntifloodMode: r.ManagerAntiflood.Bool,
			LimitPack:       int(r.ManagerLimitPack.Int64),
		}
	}
	return rec
}

func (s *PostgresStore) selectAnalyzed(ctx context.Context, query string, args ...any) ([]types.AnalyzedRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var rows []analyzedRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]types.AnalyzedRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

// LatestNotAccepted returns at most one row: the newest not-accepted message.
func (s *PostgresStore) LatestNotAccepted(ctx context.Context) ([]types.AnalyzedRecord, error) {
	return s.selectAnalyzed(ctx, analyzedJoinSelect+`
ORDER BY ua.id DESC
LIMIT 1`)
}

func (s *PostgresStore) NotAcceptedAfter(ctx context.Context, afterID int64, limit int) ([]types.AnalyzedRecord, error) {
	return s.selectAnalyzed(ctx, analyzedJoinSelect+`
  AND ua.id > $1
ORDER BY ua.id
LIMIT $2`, afterID, limit)
}

func (s *PostgresStore) AcceptedUnsentAfter(ctx context.Context, botID, afterID int64, limit int) ([]types.AnalyzedMessage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var msgs []types.AnalyzedMessage
	err := s.db.SelectContext(ctx, &msgs, `
SELECT `+analyzedColumns+`
FROM user_analyzed
WHERE accepted = TRUE AND sended = FALSE AND bot_id = $1 AND id > $2
ORDER BY id
LIMIT $3`, botID, afterID, limit)
	return msgs, err
}

func (s *PostgresStore) GetAnalyzed(ctx context.Context, id int64) (*types.AnalyzedMessage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var m types.AnalyzedMessage
	err := s.db.GetContext(ctx, &m, `SELECT `+analyzedColumns+` FROM user_analyzed WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analyzed message %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) SetAccepted(ctx context.Context, id int64, accepted bool) error {
	return s.execOne(ctx, `UPDATE user_analyzed SET accepted = $2 WHERE id = $1`, id, accepted)
}
