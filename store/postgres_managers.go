package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cur1osus/manager-for-userbot/types"
)

const managerColumns = `id, user_id, username, is_antiflood_mode, limit_pack, created_at`

func (s *PostgresStore) UpsertManager(ctx context.Context, m *types.Manager) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.db.QueryRowxContext(ctx, `
INSERT INTO managers (user_id, username)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET username = EXCLUDED.username
RETURNING `+managerColumns, m.TelegramID, strings.TrimSpace(m.Username)).StructScan(m)
}

func (s *PostgresStore) GetManagerByTelegramID(ctx context.Context, telegramID int64) (*types.Manager, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var m types.Manager
	err := s.db.GetContext(ctx, &m, `SELECT `+managerColumns+` FROM managers WHERE user_id = $1`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manager %d: %w", telegramID, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) SetAntifloodMode(ctx context.Context, managerID int64, enabled bool) error {
	return s.execOne(ctx, `UPDATE managers SET is_antiflood_mode = $2 WHERE id = $1`, managerID, enabled)
}

func (s *PostgresStore) BanUsername(ctx context.Context, managerID int64, username string) error {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return fmt.Errorf("ban: empty username")
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO banned_users (manager_id, username)
VALUES ($1, $2)
ON CONFLICT (manager_id, username) DO NOTHING`, managerID, username)
	return err
}

// execOne returns types.ErrNotFound when the statement touched no row.
func (s *PostgresStore) execOne(ctx context.Context, query string, args ...any) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}
