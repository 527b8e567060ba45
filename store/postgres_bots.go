package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cur1osus/manager-for-userbot/types"
)

const botColumns = `id, manager_id, phone, api_id, api_hash, path_session, name, is_connected, is_started, created_at`

func (s *PostgresStore) CreateBot(ctx context.Context, b *types.Bot) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.db.QueryRowxContext(ctx, `
INSERT INTO bots (manager_id, phone, api_id, api_hash, path_session)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+botColumns, b.ManagerID, b.Phone, b.APIID, b.APIHash, b.SessionPath).StructScan(b)
}

func (s *PostgresStore) GetBot(ctx context.Context, id int64) (*types.Bot, error) {
	return s.getBot(ctx, `SELECT `+botColumns+` FROM bots WHERE id = $1`, id)
}

func (s *PostgresStore) GetBotByPhone(ctx context.Context, phone string) (*types.Bot, error) {
	return s.getBot(ctx, `SELECT `+botColumns+` FROM bots WHERE phone = $1`, phone)
}

func (s *PostgresStore) getBot(ctx context.Context, query string, arg any) (*types.Bot, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var b types.Bot
	err := s.db.GetContext(ctx, &b, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bot %v: %w", arg, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) ListBots(ctx context.Context, managerID int64) ([]types.Bot, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var bots []types.Bot
	err := s.db.SelectContext(ctx, &bots, `SELECT `+botColumns+` FROM bots WHERE manager_id = $1 ORDER BY id`, managerID)
	return bots, err
}

type botManagerRow struct {
	types.Bot
	ManagerTelegramID int64 `db:"manager_user_id"`
	ManagerUsername   string `db:"manager_username"`
	ManagerAntiflood  bool   `db:"manager_is_antiflood_mode"`
	ManagerLimitPack  int    `db:"manager_limit_pack"`
}

// ListAntifloodBots returns started bots whose manager is in antiflood mode.
func (s *PostgresStore) ListAntifloodBots(ctx context.Context) ([]types.BotManager, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var rows []botManagerRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT b.id, b.manager_id, b.phone, b.api_id, b.api_hash, b.path_session, b.name,
       b.is_connected, b.is_started, b.created_at,
       m.user_id AS manager_user_id, m.username AS manager_username,
       m.is_antiflood_mode AS manager_is_antiflood_mode, m.limit_pack AS manager_limit_pack
FROM bots b
JOIN managers m ON m.id = b.manager_id
WHERE b.is_started AND m.is_antiflood_mode
ORDER BY b.id`)
	if err != nil {
		return nil, err
	}
	out := make([]types.BotManager, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.BotManager{
			Bot: r.Bot,
			Manager: types.Manager{
				ID:              r.Bot.ManagerID,
				TelegramID:      r.ManagerTelegramID,
				Username:        r.ManagerUsername,
				IsAntifloodMode: r.ManagerAntiflood,
				LimitPack:       r.ManagerLimitPack,
			},
		})
	}
	return out, nil
}

func (s *PostgresStore) SetConnected(ctx context.Context, id int64, connected bool) error {
	return s.execOne(ctx, `UPDATE bots SET is_connected = $2 WHERE id = $1`, id, connected)
}

func (s *PostgresStore) SetStarted(ctx context.Context, id int64, started bool) error {
	return s.execOne(ctx, `UPDATE bots SET is_started = $2 WHERE id = $1`, id, started)
}

func (s *PostgresStore) SetName(ctx context.Context, id int64, name string) error {
	return s.execOne(ctx, `UPDATE bots SET name = $2 WHERE id = $1`, id, name)
}

func (s *PostgresStore) DeleteBot(ctx context.Context, id int64) error {
	return s.execOne(ctx, `DELETE FROM bots WHERE id = $1`, id)
}
