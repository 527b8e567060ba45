package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cur1osus/manager-for-userbot/types"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisClientFromConn(rdb)
}

func TestCursorKeys(t *testing.T) {
	key, legacy := NotAcceptedCursorKeys()
	assert.Equal(t, "manager_for_userbot:not_accepted:last_id", key)
	assert.Equal(t, "fsm:0:0:0:default:last_id", legacy)

	key, legacy = AntifloodCursorKeys(42)
	assert.Equal(t, "manager_for_userbot:antiflood:last_id:42", key)
	assert.Equal(t, "fsm:0:0:0:default:antiflood_last_id:42", legacy)
}

func TestLoadCursorAbsent(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisCursorStore(client, zerolog.Nop())
	key, legacy := NotAcceptedCursorKeys()

	v, ok, err := s.LoadCursor(context.Background(), key, legacy)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestLoadCursorMigratesLegacyOnce(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisCursorStore(client, zerolog.Nop())
	ctx := context.Background()
	key, legacy := NotAcceptedCursorKeys()
	require.NoError(t, mr.Set(legacy, "12"))

	v, ok, err := s.LoadCursor(ctx, key, legacy)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(12), v)

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "12", got)

	// Later runs read the new key even if the legacy one changes.
	require.NoError(t, mr.Set(legacy, "3"))
	require.NoError(t, s.AdvanceCursor(ctx, key, 14))
	v, ok, err = s.LoadCursor(ctx, key, legacy)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(14), v)
}

func TestAdvanceCursorNeverDecreases(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisCursorStore(client, zerolog.Nop())
	ctx := context.Background()
	key, _ := AntifloodCursorKeys(7)

	require.NoError(t, s.AdvanceCursor(ctx, key, 20))
	require.NoError(t, s.AdvanceCursor(ctx, key, 15))

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "20", got)
}

func TestLoadCursorTreatsGarbageAsAbsent(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisCursorStore(client, zerolog.Nop())
	ctx := context.Background()
	key, legacy := NotAcceptedCursorKeys()
	require.NoError(t, mr.Set(key, "abc"))

	_, ok, err := s.LoadCursor(ctx, key, legacy)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mr.Set(legacy, "8"))
	v, ok, err := s.LoadCursor(ctx, key, legacy)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(8), v)
	got, _ := mr.Get(key)
	assert.Equal(t, "8", got)
}

func TestPanelSessionRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisSessionStore(client, 1)
	ctx := context.Background()

	fresh, err := s.GetPanelSession(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), fresh.ManagerID)
	assert.Equal(t, types.BackToMain, fresh.BackTo)

	fresh.SelectedBotID = 3
	fresh.Folders = []types.Folder{{ID: 1, Title: "Work"}}
	fresh.SelectedFolders = []int{1}
	require.NoError(t, s.SavePanelSession(ctx, fresh))
	assert.Equal(t, time.Hour, mr.TTL("manager_for_userbot:panel:9"))

	got, err := s.GetPanelSession(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.SelectedBotID)
	assert.Equal(t, []types.Folder{{ID: 1, Title: "Work"}}, got.Folders)

	require.NoError(t, s.ClearPanelSession(ctx, 9))
	assert.False(t, mr.Exists("manager_for_userbot:panel:9"))
}
