// Package keyboards builds inline keyboards and parses their callback data.
package keyboards

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cur1osus/manager-for-userbot/internal/utils"
	"github.com/cur1osus/manager-for-userbot/types"
)

const (
	ScopeMenu   = "menu"
	ScopeBot    = "bot"
	ScopeFolder = "folder"
	ScopeNav    = "nav"
	ScopeNotif  = "notif"
	ScopePack   = "pack"
)

const (
	ActionMain      = "main"
	ActionAntiflood = "antiflood"

	ActionOpen       = "open"
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
	ActionStart      = "start"
	ActionStop       = "stop"
	ActionDelete     = "delete"
	ActionName       = "name"
	ActionFolders    = "folders"

	ActionToggle = "toggle"
	ActionDone   = "done"
	ActionBack   = "back"

	ActionFull   = "full"
	ActionAccept = "accept"
	ActionBan    = "ban"

	ActionSeen = "seen"
)

// Callback is parsed callback data of the form scope:action[:id].
type Callback struct {
	Scope  string
	Action string
	ID     int64
}

func (c Callback) String() string {
	if c.ID == 0 {
		return c.Scope + ":" + c.Action
	}
	return fmt.Sprintf("%s:%s:%d", c.Scope, c.Action, c.ID)
}

func Parse(data string) (Callback, error) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return Callback{}, fmt.Errorf("malformed callback data %q", data)
	}
	c := Callback{Scope: parts[0], Action: parts[1]}
	if len(parts) == 3 {
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Callback{}, fmt.Errorf("malformed callback id in %q: %w", data, err)
		}
		c.ID = id
	}
	return c, nil
}

func button(text string, c Callback) utils.Button {
	return utils.Button{Text: text, Data: c.String()}
}

func Back() []utils.Button {
	return utils.Row(button("⬅️ Назад", Callback{Scope: ScopeNav, Action: ActionBack}))
}

func MainMenu(bots []types.Bot, antiflood bool) [][]utils.Button {
	items := make([]utils.Button, 0, len(bots))
	for _, b := range bots {
		items = append(items, button(b.DisplayName()+" "+b.Phone, Callback{Scope: ScopeBot, Action: ActionOpen, ID: b.ID}))
	}
	rows := utils.Grid(items, 2)
	label := "🛡 Антифлуд: выкл"
	if antiflood {
		label = "🛡 Антифлуд: вкл"
	}
	return append(rows, utils.Row(button(label, Callback{Scope: ScopeMenu, Action: ActionAntiflood})))
}

func BotMenu(b types.Bot) [][]utils.Button {
	cb := func(action string) Callback { return Callback{Scope: ScopeBot, Action: action, ID: b.ID} }
	var rows [][]utils.Button
	if b.IsConnected {
		rows = append(rows, utils.Row(button("🔌 Отключить", cb(ActionDisconnect))))
		if b.IsStarted {
			rows = append(rows, utils.Row(button("⏸ Остановить", cb(ActionStop))))
		} else {
			rows = append(rows, utils.Row(button("▶️ Запустить", cb(ActionStart))))
		}
		rows = append(rows, utils.Row(
			button("📁 Папки", cb(ActionFolders)),
			button("🔄 Имя", cb(ActionName)),
		))
	} else {
		rows = append(rows, utils.Row(button("🔌 Подключить", cb(ActionConnect))))
	}
	rows = append(rows, utils.Row(button("🗑 Удалить", cb(ActionDelete))))
	return append(rows, Back())
}

func Folders(folders []types.Folder, selected map[int]bool) [][]utils.Button {
	items := make([]utils.Button, 0, len(folders))
	for _, f := range folders {
		mark := ""
		if selected[f.ID] {
			mark = "✅ "
		}
		items = append(items, button(mark+f.Title, Callback{Scope: ScopeFolder, Action: ActionToggle, ID: int64(f.ID)}))
	}
	rows := utils.Grid(items, 2)
	rows = append(rows, utils.Row(button("👥 Пользователи", Callback{Scope: ScopeFolder, Action: ActionDone})))
	return append(rows, Back())
}

func BackOnly() [][]utils.Button {
	return [][]utils.Button{Back()}
}

func NotAccepted(analyzedID int64) [][]utils.Button {
	cb := func(action string) Callback { return Callback{Scope: ScopeNotif, Action: action, ID: analyzedID} }
	return [][]utils.Button{
		utils.Row(button("📖 Полностью", cb(ActionFull))),
		utils.Row(button("✅ Отправить", cb(ActionAccept)), button("🚫 Бан", cb(ActionBan))),
	}
}

func Pack(botID int64) [][]utils.Button {
	return [][]utils.Button{
		utils.Row(button("✅ Просмотрено", Callback{Scope: ScopePack, Action: ActionSeen, ID: botID})),
	}
}
