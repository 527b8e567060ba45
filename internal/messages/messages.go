package messages

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cur1osus/manager-for-userbot/types"
)

const ParseModeHTML = "HTML"

const (
	maxDecisionItems = 6
	shortTextLimit   = 200
	packTextLimit    = 10
)

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(s)
}

// Truncate keeps at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func oneLine(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

// Username renders a username with a leading @, or "@нет" when empty.
func Username(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		u = "нет"
	}
	if !strings.HasPrefix(u, "@") {
		u = "@" + u
	}
	return u
}

// IsBanned reports whether an analyzer decision marks its subject as banned.
func IsBanned(decision map[string]any) bool {
	v, ok := decision["banned"]
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case uint64:
		return b != 0
	case float64:
		return b != 0
	case string:
		return b != ""
	default:
		return true
	}
}

// DecisionSummary lists up to six scalar entries of a decision, sorted by key.
func DecisionSummary(decision map[string]any) string {
	keys := make([]string, 0, len(decision))
	for k := range decision {
		if k == "banned" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]string, 0, maxDecisionItems)
	for _, k := range keys {
		switch v := decision[k].(type) {
		case string:
			if v == "" {
				continue
			}
			items = append(items, k+"="+v)
		case bool, int64, uint64, float64, float32, int, int8, int16, int32, uint8, uint16, uint32:
			items = append(items, fmt.Sprintf("%s=%v", k, v))
		default:
			continue
		}
		if len(items) >= maxDecisionItems {
			break
		}
	}
	return strings.Join(items, ", ")
}

// NotAccepted is the short review notification for one analyzed message.
func NotAccepted(msg types.AnalyzedMessage, bot types.Bot, decision map[string]any) string {
	lines := []string{
		fmt.Sprintf("<b>Не принято</b> <code>id:%d</code>", msg.ID),
		fmt.Sprintf("<b>Бот:</b> %s <code>%s</code>", Escape(bot.DisplayName()), Escape(bot.Phone)),
		fmt.Sprintf("<b>Юзер:</b> %s", Escape(Username(msg.UsernameOrEmpty()))),
	}
	if summary := DecisionSummary(decision); summary != "" {
		lines = append(lines, "<b>Решение:</b> "+Escape(summary))
	}
	if text := Truncate(oneLine(msg.AdditionalMessage), shortTextLimit); text != "" {
		lines = append(lines, fmt.Sprintf("<b>Текст:</b> <code>%s</code>", Escape(text)))
	}
	return strings.Join(lines, "\n")
}

// FullView shows the whole message and every decision entry.
func FullView(msg types.AnalyzedMessage, decision map[string]any) string {
	keys := make([]string, 0, len(decision))
	for k := range decision {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Сообщение</b> <code>id:%d</code>\n", msg.ID)
	fmt.Fprintf(&sb, "<b>Юзер:</b> %s\n", Escape(Username(msg.UsernameOrEmpty())))
	for _, k := range keys {
		fmt.Fprintf(&sb, "<b>%s:</b> %s\n", Escape(k), Escape(fmt.Sprint(decision[k])))
	}
	fmt.Fprintf(&sb, "\n%s", Escape(msg.AdditionalMessage))
	return sb.String()
}

func Accepted(view string) string {
	return view + "\n<b>Сообщение поставлено в очередь на отправку ✅</b>"
}

func Banned(username string) string {
	return fmt.Sprintf("🚫 %s добавлен в бан-лист", Escape(Username(username)))
}

func botLabel(bot types.Bot) string {
	return fmt.Sprintf("%s[%s]", Escape(bot.DisplayName()), Escape(bot.Phone))
}

// Pack lists a full page of accepted messages of one bot.
func Pack(bot types.Bot, msgs []types.AnalyzedMessage) string {
	rows := make([]string, 0, len(msgs))
	for _, m := range msgs {
		short := Escape(Truncate(oneLine(m.AdditionalMessage), packTextLimit))
		rows = append(rows, fmt.Sprintf("<code>%s</code> - %s", short, Escape(Username(m.UsernameOrEmpty()))))
	}
	return "Пак от " + botLabel(bot) + "\n\n" + strings.Join(rows, "\n\n")
}

func PackSeen(text string) string {
	return text + "\n\n<b>Пак просмотрен ✅</b>"
}

func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%d сек.", seconds)
	}
	minutes, sec := seconds/60, seconds%60
	if minutes < 60 {
		return fmt.Sprintf("%d мин. %d сек.", minutes, sec)
	}
	return fmt.Sprintf("%d ч. %d мин.", minutes/60, minutes%60)
}

func DeletePrivateChannel(channel string) string {
	return fmt.Sprintf("Удалите канал (%s), так как вы были в нем забанены или удалены; это мешает корректной работе бота.", Escape(channel))
}

func ConnectionError(bot types.Bot) string {
	return "Ошибка подключения к серверу для бота " + botLabel(bot)
}

func FloodWait(bot types.Bot, seconds int64) string {
	return fmt.Sprintf("Ошибка FloodWait (до %s) для %s, бот был остановлен.", FormatDuration(seconds), botLabel(bot))
}

func Loading(frame string) string {
	return "Получаю данные" + frame
}

func ErrorNoData() string {
	return "🚫 <b>Не удалось получить данные</b>\nПопробуйте ещё раз."
}

func ErrorDefault() string {
	return "🚫 <b>Ошибка</b>\nПопробуйте ещё раз."
}

func ErrorUnknownCommand() string {
	return "❓ <b>Команда не найдена</b>"
}

func ErrorNotFound() string {
	return "Не найдена запись"
}

func MainMenu(bots []types.Bot, antiflood bool) string {
	mode := "выключен"
	if antiflood {
		mode = "включен"
	}
	if len(bots) == 0 {
		return "👋 <b>Ботов пока нет</b>\nДобавьте: <code>/add телефон [api_id api_hash]</code>\n\nАнтифлуд: " + mode
	}
	return fmt.Sprintf("🤖 <b>Боты:</b> %d\nАнтифлуд: %s", len(bots), mode)
}

func BotCard(bot types.Bot, running bool) string {
	yesNo := func(v bool) string {
		if v {
			return "✅"
		}
		return "❌"
	}
	return fmt.Sprintf("<b>%s</b> <code>%s</code>\nПроцесс: %s\nПодключен: %s\nЗапущен: %s",
		Escape(bot.DisplayName()), Escape(bot.Phone), yesNo(running), yesNo(bot.IsConnected), yesNo(bot.IsStarted))
}

func AddUsage() string {
	return "Использование: <code>/add телефон [api_id api_hash]</code>"
}

func BotAdded(bot types.Bot, pid int) string {
	if pid < 0 {
		return fmt.Sprintf("Бот <code>%s</code> добавлен, но процесс не запустился. Проверьте сессию.", Escape(bot.Phone))
	}
	return fmt.Sprintf("Бот <code>%s</code> добавлен, процесс %d.", Escape(bot.Phone), pid)
}

func ConnectFailed(bot types.Bot) string {
	return fmt.Sprintf("Не удалось запустить процесс для <code>%s</code>.", Escape(bot.Phone))
}

func Folders(folders []types.Folder, selected map[int]bool) string {
	if len(folders) == 0 {
		return "Папок нет"
	}
	var sb strings.Builder
	sb.WriteString("<b>Папки</b>\n")
	for _, f := range folders {
		mark := "▫️"
		if selected[f.ID] {
			mark = "✅"
		}
		fmt.Fprintf(&sb, "%s %s\n", mark, Escape(f.Title))
	}
	return sb.String()
}

func ProcessedUsers(users []types.ProcessedUser) string {
	if len(users) == 0 {
		return "Пользователей не найдено"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Пользователи:</b> %d\n", len(users))
	for _, u := range users {
		if u.Username != "" {
			fmt.Fprintf(&sb, "%s\n", Escape(Username(u.Username)))
			continue
		}
		fmt.Fprintf(&sb, "<code>%d</code>\n", u.ID)
	}
	return sb.String()
}

func BotExists(phone string) string {
	return fmt.Sprintf("Бот <code>%s</code> уже добавлен.", Escape(phone))
}

func BotDeleted(phone string) string {
	return fmt.Sprintf("Бот <code>%s</code> удалён.", Escape(phone))
}

func InvalidCredentials(err error) string {
	return "🚫 <b>Неверные данные</b>\n" + Escape(err.Error())
}

func ChatTitle(username, title string) string {
	return fmt.Sprintf("%s: <b>%s</b>", Escape(Username(username)), Escape(title))
}

func TitleUsage() string {
	return "Откройте бота и отправьте: <code>/title @username</code>"
}
