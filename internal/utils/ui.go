package utils

import (
	"github.com/go-telegram/bot/models"
)

type Button struct {
	Text string
	Data string
}

func Row(buttons ...Button) []Button {
	return buttons
}

// Grid lays buttons out perRow to a line.
func Grid(buttons []Button, perRow int) [][]Button {
	if perRow <= 0 {
		perRow = 1
	}
	rows := make([][]Button, 0, (len(buttons)+perRow-1)/perRow)
	for i := 0; i < len(buttons); i += perRow {
		end := i + perRow
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

func BuildInlineKeyboard(rows [][]Button) models.InlineKeyboardMarkup {
	pad := func(s string) string { return " " + s + " " }
	out := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, r := range rows {
		if len(r) == 0 {
			continue
		}
		row := make([]models.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			row = append(row, models.InlineKeyboardButton{
				Text:         pad(b.Text),
				CallbackData: b.Data,
			})
		}
		out = append(out, row)
	}
	return models.InlineKeyboardMarkup{InlineKeyboard: out}
}
