package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cur1osus/manager-for-userbot/types"
)

type RedisSessionStore struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisSessionStore(client *RedisClient, ttlHours int) *RedisSessionStore {
	ttl := time.Duration(ttlHours) * time.Hour
	if ttlHours <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) key(managerID int64) string {
	return s.client.Key("panel", strconv.FormatInt(managerID, 10))
}

// GetPanelSession returns a fresh session when none is stored.
func (s *RedisSessionStore) GetPanelSession(ctx context.Context, managerID int64) (*types.PanelSession, error) {
	var sess types.PanelSession
	if err := s.client.GetJSON(ctx, s.key(managerID), &sess); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return &types.PanelSession{ManagerID: managerID, BackTo: types.BackToMain}, nil
		}
		return nil, err
	}
	return &sess, nil
}

func (s *RedisSessionStore) SavePanelSession(ctx context.Context, sess *types.PanelSession) error {
	sess.UpdatedAt = time.Now()
	return s.client.SetJSON(ctx, s.key(sess.ManagerID), sess, s.ttl)
}

func (s *RedisSessionStore) ClearPanelSession(ctx context.Context, managerID int64) error {
	return s.client.Del(ctx, s.key(managerID))
}
