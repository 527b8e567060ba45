package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid(t *testing.T) {
	bs := []Button{{Text: "1"}, {Text: "2"}, {Text: "3"}, {Text: "4"}, {Text: "5"}}
	rows := Grid(bs, 2)
	require.Len(t, rows, 3)
	assert.Len(t, rows[2], 1)
	assert.Len(t, Grid(bs, 0), 5)
}

func TestBuildInlineKeyboardSkipsEmptyRows(t *testing.T) {
	kb := BuildInlineKeyboard([][]Button{
		Row(Button{Text: "Да", Data: "yes"}, Button{Text: "Нет", Data: "no"}),
		{},
		Row(Button{Text: "Назад", Data: "back"}),
	})
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, " Да ", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "no", kb.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "back", kb.InlineKeyboard[1][0].CallbackData)
}
