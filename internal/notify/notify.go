// Package notify delivers messages to managers through the control bot.
package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/cur1osus/manager-for-userbot/internal/messages"
	"github.com/cur1osus/manager-for-userbot/internal/utils"
)

type Message struct {
	ChatID  int64
	Text    string
	Silent  bool
	Buttons [][]utils.Button
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type TelegramSender struct {
	bot *bot.Bot
}

func NewTelegramSender(b *bot.Bot) *TelegramSender {
	return &TelegramSender{bot: b}
}

func (s *TelegramSender) Send(ctx context.Context, msg Message) error {
	params := &bot.SendMessageParams{
		ChatID:              msg.ChatID,
		Text:                msg.Text,
		ParseMode:           messages.ParseModeHTML,
		DisableNotification: msg.Silent,
	}
	if len(msg.Buttons) > 0 {
		kb := utils.BuildInlineKeyboard(msg.Buttons)
		params.ReplyMarkup = &kb
	}
	if _, err := s.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send to %d: %w", msg.ChatID, err)
	}
	return nil
}

// MessageProgress animates a loading line by editing one message in place.
type MessageProgress struct {
	bot       *bot.Bot
	chatID    int64
	messageID int
	last      string
}

func NewMessageProgress(b *bot.Bot, chatID int64, messageID int) *MessageProgress {
	return &MessageProgress{bot: b, chatID: chatID, messageID: messageID}
}

func (p *MessageProgress) Update(ctx context.Context, frame string) error {
	text := messages.Loading(frame)
	if text == p.last {
		return nil
	}
	_, err := p.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    p.chatID,
		MessageID: p.messageID,
		Text:      text,
	})
	if err != nil {
		return err
	}
	p.last = text
	return nil
}
