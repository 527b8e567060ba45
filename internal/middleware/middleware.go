package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/cur1osus/manager-for-userbot/internal/contextkeys"
	"github.com/cur1osus/manager-for-userbot/internal/messages"
	"github.com/cur1osus/manager-for-userbot/types"
)

// tgServiceUserID sends Telegram's own service messages.
const tgServiceUserID = 777000

type ManagerStore interface {
	GetManagerByTelegramID(ctx context.Context, telegramID int64) (*types.Manager, error)
	UpsertManager(ctx context.Context, m *types.Manager) error
}

// Access decides who may register as a manager.
type Access struct {
	AdminIDs []int64
	Secret   string
}

type Middlewares struct {
	managers ManagerStore
	access   Access
	log      zerolog.Logger
}

func New(managers ManagerStore, access Access, log zerolog.Logger) *Middlewares {
	return &Middlewares{
		managers: managers,
		access:   access,
		log:      log.With().Str("component", "middleware").Logger(),
	}
}

// Sender identifies who sent an update and where to answer.
type Sender struct {
	UserID   int64
	ChatID   int64
	Username string
	IsBot    bool
}

func SenderOf(update *models.Update) (Sender, bool) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return Sender{
			UserID:   update.Message.From.ID,
			ChatID:   update.Message.Chat.ID,
			Username: update.Message.From.Username,
			IsBot:    update.Message.From.IsBot,
		}, true
	case update.CallbackQuery != nil:
		chatID := ChatIDOf(update.CallbackQuery.Message)
		if chatID == 0 {
			chatID = update.CallbackQuery.From.ID
		}
		return Sender{
			UserID:   update.CallbackQuery.From.ID,
			ChatID:   chatID,
			Username: update.CallbackQuery.From.Username,
			IsBot:    update.CallbackQuery.From.IsBot,
		}, true
	}
	return Sender{}, false
}

func ChatIDOf(m models.MaybeInaccessibleMessage) int64 {
	if m.Message != nil {
		return m.Message.Chat.ID
	}
	if m.InaccessibleMessage != nil {
		return m.InaccessibleMessage.Chat.ID
	}
	return 0
}

// ResolveManager puts the sender's manager row into the context. Updates
// from users who are not managers are dropped unless they may register.
func (m *Middlewares) ResolveManager(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		sender, ok := SenderOf(update)
		if !ok || sender.UserID == 0 || sender.ChatID == 0 {
			return
		}
		if sender.IsBot || sender.UserID == tgServiceUserID {
			return
		}

		mgr, err := m.managers.GetManagerByTelegramID(ctx, sender.UserID)
		if errors.Is(err, types.ErrNotFound) {
			if !m.mayRegister(sender, update) {
				m.log.Warn().Int64("user_id", sender.UserID).Str("username", sender.Username).Msg("stranger tried to access the panel")
				return
			}
			mgr = &types.Manager{TelegramID: sender.UserID, Username: sender.Username}
			err = m.managers.UpsertManager(ctx, mgr)
			if err == nil {
				m.log.Info().Int64("user_id", sender.UserID).Str("username", sender.Username).Msg("manager registered")
			}
		}
		if err != nil {
			m.log.Error().Err(err).Int64("user_id", sender.UserID).Msg("failed to resolve manager")
			_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
				ChatID:    sender.ChatID,
				Text:      messages.ErrorDefault(),
				ParseMode: messages.ParseModeHTML,
			})
			return
		}

		next(contextkeys.WithManager(ctx, mgr), b, update)
	}
}

// mayRegister admits configured admins and "/start <secret>" messages.
func (m *Middlewares) mayRegister(sender Sender, update *models.Update) bool {
	for _, id := range m.access.AdminIDs {
		if id == sender.UserID {
			return true
		}
	}
	if m.access.Secret == "" || update.Message == nil {
		return false
	}
	fields := strings.Fields(update.Message.Text)
	if len(fields) != 2 {
		return false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	if cmd != "/start" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(fields[1]), []byte(m.access.Secret)) == 1
}

func (m *Middlewares) AnalyzeMessageMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		next(Classify(ctx, update), b, update)
	}
}

// Classify tags ctx with the kind of update the panel received.
func Classify(ctx context.Context, update *models.Update) context.Context {
	if update.CallbackQuery != nil && update.CallbackQuery.Data != "" {
		ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeClickButton)
		return contextkeys.WithCallbackData(ctx, update.CallbackQuery.Data)
	}
	if update.Message != nil && strings.HasPrefix(update.Message.Text, "/") {
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeCommand)
	}
	if update.Message != nil && update.Message.Text != "" {
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeText)
	}
	return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeUnknown)
}
