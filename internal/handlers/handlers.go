package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/cur1osus/manager-for-userbot/internal/contextkeys"
	"github.com/cur1osus/manager-for-userbot/internal/dispatch"
	"github.com/cur1osus/manager-for-userbot/internal/keyboards"
	"github.com/cur1osus/manager-for-userbot/internal/messages"
	"github.com/cur1osus/manager-for-userbot/internal/middleware"
	"github.com/cur1osus/manager-for-userbot/internal/notify"
	"github.com/cur1osus/manager-for-userbot/internal/utils"
	"github.com/cur1osus/manager-for-userbot/types"
)

type Handlers struct {
	panel *Panel
	log   zerolog.Logger
}

func NewHandlers(panel *Panel, log zerolog.Logger) *Handlers {
	return &Handlers{
		panel: panel,
		log:   log.With().Str("component", "handlers").Logger(),
	}
}

func (bh *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	mgr, ok := contextkeys.GetManager(ctx)
	if !ok {
		bh.log.Error().Msg("manager not found in context")
		return
	}
	sender, ok := middleware.SenderOf(update)
	if !ok {
		return
	}

	messageType, _ := contextkeys.GetMessageType(ctx)
	switch messageType {
	case contextkeys.MessageTypeCommand:
		bh.HandleCommand(ctx, b, update, mgr, sender.ChatID)
	case contextkeys.MessageTypeClickButton:
		bh.HandleClickButton(ctx, b, update, mgr, sender.ChatID)
	default:
		bh.send(ctx, b, sender.ChatID, View{Text: messages.ErrorUnknownCommand()})
	}
}

func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	cmd, args, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(strings.TrimPrefix(cmd, "/")), strings.TrimSpace(args)
}

func (bh *Handlers) HandleCommand(ctx context.Context, b *bot.Bot, update *models.Update, mgr *types.Manager, chatID int64) {
	cmd, args := splitCommand(update.Message.Text)

	var (
		view View
		err  error
	)
	switch cmd {
	case "start", "menu":
		view, err = bh.panel.MainMenu(ctx, mgr)
	case "add":
		view, err = bh.panel.AddBot(ctx, mgr, args)
	case "title":
		msg, sendErr := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: messages.Loading("")})
		if sendErr != nil {
			bh.log.Error().Err(sendErr).Msg("send loading message")
			return
		}
		progress := notify.NewMessageProgress(b, chatID, msg.ID)
		view, err = bh.panel.ChatTitle(ctx, mgr, args, progress)
		if err != nil {
			view = bh.failure(err)
		}
		bh.edit(ctx, b, chatID, msg.ID, view)
		return
	default:
		view = View{Text: messages.ErrorUnknownCommand()}
	}
	if err != nil {
		view = bh.failure(err)
	}
	bh.send(ctx, b, chatID, view)
}

func (bh *Handlers) HandleClickButton(ctx context.Context, b *bot.Bot, update *models.Update, mgr *types.Manager, chatID int64) {
	cq := update.CallbackQuery
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID})

	data, _ := contextkeys.GetCallbackData(ctx)
	if data == "" {
		data = cq.Data
	}
	messageID := 0
	messageText := ""
	if cq.Message.Message != nil {
		messageID = cq.Message.Message.ID
		messageText = cq.Message.Message.Text
	}

	cb, err := keyboards.Parse(data)
	if err != nil {
		bh.log.Warn().Err(err).Msg("bad callback")
		bh.reply(ctx, b, chatID, messageID, View{Text: messages.ErrorUnknownCommand()})
		return
	}

	var progress dispatch.Progress
	if messageID != 0 {
		progress = notify.NewMessageProgress(b, chatID, messageID)
	}

	view, err := bh.route(ctx, mgr, cb, messageText, progress)
	if err != nil {
		view = bh.failure(err)
	}
	bh.reply(ctx, b, chatID, messageID, view)
}

func (bh *Handlers) route(ctx context.Context, mgr *types.Manager, cb keyboards.Callback, messageText string, progress dispatch.Progress) (View, error) {
	p := bh.panel
	switch cb.Scope {
	case keyboards.ScopeMenu:
		switch cb.Action {
		case keyboards.ActionMain:
			return p.MainMenu(ctx, mgr)
		case keyboards.ActionAntiflood:
			return p.ToggleAntiflood(ctx, mgr)
		}
	case keyboards.ScopeBot:
		switch cb.Action {
		case keyboards.ActionOpen:
			return p.OpenBot(ctx, mgr, cb.ID)
		case keyboards.ActionConnect:
			return p.Connect(ctx, mgr, cb.ID)
		case keyboards.ActionDisconnect:
			return p.Disconnect(ctx, mgr, cb.ID)
		case keyboards.ActionStart:
			return p.SetStarted(ctx, mgr, cb.ID, true)
		case keyboards.ActionStop:
			return p.SetStarted(ctx, mgr, cb.ID, false)
		case keyboards.ActionDelete:
			return p.DeleteBot(ctx, mgr, cb.ID)
		case keyboards.ActionName:
			return p.RefreshName(ctx, mgr, cb.ID, progress)
		case keyboards.ActionFolders:
			return p.Folders(ctx, mgr, cb.ID, progress)
		}
	case keyboards.ScopeFolder:
		switch cb.Action {
		case keyboards.ActionToggle:
			return p.ToggleFolder(ctx, mgr, int(cb.ID))
		case keyboards.ActionDone:
			return p.ProcessedUsers(ctx, mgr, progress)
		}
	case keyboards.ScopeNav:
		if cb.Action == keyboards.ActionBack {
			return p.Back(ctx, mgr)
		}
	case keyboards.ScopeNotif:
		switch cb.Action {
		case keyboards.ActionFull:
			return p.ShowAnalyzed(ctx, mgr, cb.ID)
		case keyboards.ActionAccept:
			return p.AcceptAnalyzed(ctx, mgr, cb.ID)
		case keyboards.ActionBan:
			return p.BanAnalyzed(ctx, mgr, cb.ID)
		}
	case keyboards.ScopePack:
		if cb.Action == keyboards.ActionSeen {
			return View{Text: messages.PackSeen(messages.Escape(messageText))}, nil
		}
	}
	return View{Text: messages.ErrorUnknownCommand()}, nil
}

func (bh *Handlers) failure(err error) View {
	bh.log.Warn().Err(err).Msg("panel action failed")
	return ErrorView(err)
}

func markup(buttons [][]utils.Button) models.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	kb := utils.BuildInlineKeyboard(buttons)
	return &kb
}

func (bh *Handlers) send(ctx context.Context, b *bot.Bot, chatID int64, v View) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        v.Text,
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: markup(v.Buttons),
	})
	if err != nil {
		bh.log.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}

func (bh *Handlers) edit(ctx context.Context, b *bot.Bot, chatID int64, messageID int, v View) {
	_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        v.Text,
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: markup(v.Buttons),
	})
	if err != nil {
		bh.log.Debug().Err(err).Int64("chat_id", chatID).Int("message_id", messageID).Msg("edit message")
	}
}

// reply edits the message a button belongs to, or sends a new one when the
// message is no longer accessible.
func (bh *Handlers) reply(ctx context.Context, b *bot.Bot, chatID int64, messageID int, v View) {
	if messageID == 0 {
		bh.send(ctx, b, chatID, v)
		return
	}
	bh.edit(ctx, b, chatID, messageID, v)
}
