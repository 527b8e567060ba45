package middleware

import (
	"context"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cur1osus/manager-for-userbot/internal/contextkeys"
	"github.com/cur1osus/manager-for-userbot/types"
)

type memManagers struct {
	byTelegram map[int64]*types.Manager
	upserted   []int64
}

func (m *memManagers) GetManagerByTelegramID(_ context.Context, telegramID int64) (*types.Manager, error) {
	mgr, ok := m.byTelegram[telegramID]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *mgr
	return &cp, nil
}

func (m *memManagers) UpsertManager(_ context.Context, mgr *types.Manager) error {
	m.upserted = append(m.upserted, mgr.TelegramID)
	mgr.ID = int64(len(m.byTelegram) + 1)
	cp := *mgr
	m.byTelegram[mgr.TelegramID] = &cp
	return nil
}

func textFrom(userID int64, text string) *models.Update {
	return &models.Update{Message: &models.Message{
		Text: text,
		From: &models.User{ID: userID, Username: "u"},
		Chat: models.Chat{ID: userID},
	}}
}

// resolve runs ResolveManager on update and returns the manager the next
// handler saw, or nil when it was not reached.
func resolve(t *testing.T, mw *Middlewares, update *models.Update) *types.Manager {
	t.Helper()
	var got *types.Manager
	reached := false
	h := mw.ResolveManager(func(ctx context.Context, _ *bot.Bot, _ *models.Update) {
		reached = true
		mgr, ok := contextkeys.GetManager(ctx)
		require.True(t, ok)
		got = mgr
	})
	h(context.Background(), nil, update)
	if !reached {
		return nil
	}
	return got
}

func TestResolveManagerKnownManager(t *testing.T) {
	store := &memManagers{byTelegram: map[int64]*types.Manager{7: {ID: 3, TelegramID: 7}}}
	mw := New(store, Access{}, zerolog.Nop())

	mgr := resolve(t, mw, textFrom(7, "/start"))
	require.NotNil(t, mgr)
	assert.Equal(t, int64(3), mgr.ID)
	assert.Empty(t, store.upserted)
}

func TestResolveManagerDropsStrangers(t *testing.T) {
	store := &memManagers{byTelegram: map[int64]*types.Manager{}}
	mw := New(store, Access{AdminIDs: []int64{1}, Secret: "s3cret"}, zerolog.Nop())

	for _, update := range []*models.Update{
		textFrom(424242, "/add 79990001122"),
		textFrom(424242, "/start"),
		textFrom(424242, "/start wrong"),
		textFrom(424242, "s3cret"),
		{CallbackQuery: &models.CallbackQuery{
			From: models.User{ID: 424242},
			Data: "menu:main",
			Message: models.MaybeInaccessibleMessage{
				Message: &models.Message{Chat: models.Chat{ID: 424242}},
			},
		}},
	} {
		assert.Nil(t, resolve(t, mw, update))
	}
	assert.Empty(t, store.upserted)
}

func TestResolveManagerRegistersWithSecret(t *testing.T) {
	store := &memManagers{byTelegram: map[int64]*types.Manager{}}
	mw := New(store, Access{Secret: "s3cret"}, zerolog.Nop())

	mgr := resolve(t, mw, textFrom(55, "/start s3cret"))
	require.NotNil(t, mgr)
	assert.Equal(t, int64(55), mgr.TelegramID)
	assert.Equal(t, []int64{55}, store.upserted)

	mgr = resolve(t, mw, textFrom(55, "/menu"))
	require.NotNil(t, mgr)
	assert.Equal(t, []int64{55}, store.upserted)
}

func TestResolveManagerWithoutSecretOnlyAdmins(t *testing.T) {
	store := &memManagers{byTelegram: map[int64]*types.Manager{}}
	mw := New(store, Access{AdminIDs: []int64{9}}, zerolog.Nop())

	assert.Nil(t, resolve(t, mw, textFrom(10, "/start ")))
	require.NotNil(t, resolve(t, mw, textFrom(9, "/start")))
	assert.Equal(t, []int64{9}, store.upserted)
}

func TestResolveManagerIgnoresBotsAndServiceMessages(t *testing.T) {
	store := &memManagers{byTelegram: map[int64]*types.Manager{777000: {ID: 1, TelegramID: 777000}}}
	mw := New(store, Access{AdminIDs: []int64{8}}, zerolog.Nop())

	botUpdate := textFrom(8, "/start")
	botUpdate.Message.From.IsBot = true
	assert.Nil(t, resolve(t, mw, botUpdate))
	assert.Nil(t, resolve(t, mw, textFrom(777000, "/start")))
	assert.Empty(t, store.upserted)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	cb := &models.Update{CallbackQuery: &models.CallbackQuery{Data: "menu:main"}}
	got := Classify(ctx, cb)
	mt, _ := contextkeys.GetMessageType(got)
	assert.Equal(t, contextkeys.MessageTypeClickButton, mt)
	data, _ := contextkeys.GetCallbackData(got)
	assert.Equal(t, "menu:main", data)

	cmd := &models.Update{Message: &models.Message{Text: "/add 79990001122"}}
	mt, _ = contextkeys.GetMessageType(Classify(ctx, cmd))
	assert.Equal(t, contextkeys.MessageTypeCommand, mt)

	text := &models.Update{Message: &models.Message{Text: "hi"}}
	mt, _ = contextkeys.GetMessageType(Classify(ctx, text))
	assert.Equal(t, contextkeys.MessageTypeText, mt)

	mt, _ = contextkeys.GetMessageType(Classify(ctx, &models.Update{Message: &models.Message{}}))
	assert.Equal(t, contextkeys.MessageTypeUnknown, mt)
}

func TestSenderOf(t *testing.T) {
	msg := &models.Update{Message: &models.Message{
		From: &models.User{ID: 7, Username: "boss"},
		Chat: models.Chat{ID: 70},
	}}
	s, ok := SenderOf(msg)
	assert.True(t, ok)
	assert.Equal(t, Sender{UserID: 7, ChatID: 70, Username: "boss"}, s)

	cb := &models.Update{CallbackQuery: &models.CallbackQuery{
		From: models.User{ID: 8},
		Message: models.MaybeInaccessibleMessage{
			Message: &models.Message{Chat: models.Chat{ID: 80}},
		},
	}}
	s, ok = SenderOf(cb)
	assert.True(t, ok)
	assert.Equal(t, int64(80), s.ChatID)

	_, ok = SenderOf(&models.Update{})
	assert.False(t, ok)
}
