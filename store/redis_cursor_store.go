package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// NotAcceptedCursorKeys returns the current and legacy keys of the
// not-accepted drain cursor.
func NotAcceptedCursorKeys() (key, legacy string) {
	return KeyPrefix + ":not_accepted:last_id", "fsm:0:0:0:default:last_id"
}

// AntifloodCursorKeys returns the current and legacy keys of the pack cursor of one bot.
func AntifloodCursorKeys(botID int64) (key, legacy string) {
	return fmt.Sprintf("%s:antiflood:last_id:%d", KeyPrefix, botID),
		fmt.Sprintf("fsm:0:0:0:default:antiflood_last_id:%d", botID)
}

type RedisCursorStore struct {
	client *RedisClient
	log    zerolog.Logger
}

func NewRedisCursorStore(client *RedisClient, log zerolog.Logger) *RedisCursorStore {
	return &RedisCursorStore{
		client: client,
		log:    log.With().Str("component", "cursor_store").Logger(),
	}
}

// LoadCursor reads key, falling back to legacyKey once and copying its value
// forward. ok is false when neither key holds an integer.
func (s *RedisCursorStore) LoadCursor(ctx context.Context, key, legacyKey string) (int64, bool, error) {
	v, ok, err := s.readInt(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("read cursor %s: %w", key, err)
	}
	if ok || legacyKey == "" {
		return v, ok, nil
	}

	v, ok, err = s.readInt(ctx, legacyKey)
	if err != nil {
		return 0, false, fmt.Errorf("read legacy cursor %s: %w", legacyKey, err)
	}
	if !ok {
		return 0, false, nil
	}
	if err := s.client.SetInt64(ctx, key, v); err != nil {
		return 0, false, fmt.Errorf("migrate cursor %s: %w", key, err)
	}
	s.log.Info().Str("key", key).Str("legacy_key", legacyKey).Int64("last_id", v).Msg("cursor migrated from legacy key")
	return v, true, nil
}

// readInt treats a non-integer value as absent.
func (s *RedisCursorStore) readInt(ctx context.Context, key string) (int64, bool, error) {
	v, ok, err := s.client.GetInt64(ctx, key)
	if errors.Is(err, ErrNotInteger) {
		s.log.Warn().Err(err).Str("key", key).Msg("ignoring corrupt cursor")
		return 0, false, nil
	}
	return v, ok, err
}

// AdvanceCursor moves the cursor forward to id. A smaller id is ignored.
func (s *RedisCursorStore) AdvanceCursor(ctx context.Context, key string, id int64) error {
	held, err := s.client.SetMax(ctx, key, id)
	if err != nil {
		return fmt.Errorf("advance cursor %s: %w", key, err)
	}
	if held > id {
		s.log.Debug().Str("key", key).Int64("requested", id).Int64("held", held).Msg("cursor already ahead")
	}
	return nil
}
