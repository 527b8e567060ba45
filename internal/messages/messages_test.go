package messages

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cur1osus/manager-for-userbot/types"
)

func strPtr(s string) *string { return &s }

func TestNotAccepted(t *testing.T) {
	msg := types.AnalyzedMessage{
		ID:                13,
		Username:          strPtr("bob"),
		AdditionalMessage: "line one\nline <two>",
	}
	bot := types.Bot{Phone: "79990001122"}
	decision := map[string]any{"banned": false, "reason": "price", "score": int64(3), "nested": map[string]any{"a": 1}}

	got := NotAccepted(msg, bot, decision)
	want := strings.Join([]string{
		"<b>Не принято</b> <code>id:13</code>",
		"<b>Бот:</b> 🌀 <code>79990001122</code>",
		"<b>Юзер:</b> @bob",
		"<b>Решение:</b> reason=price, score=3",
		"<b>Текст:</b> <code>line one line &lt;two&gt;</code>",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestNotAcceptedOmitsEmptyParts(t *testing.T) {
	got := NotAccepted(types.AnalyzedMessage{ID: 1}, types.Bot{Phone: "1"}, nil)
	assert.Contains(t, got, "@нет")
	assert.NotContains(t, got, "Решение")
	assert.NotContains(t, got, "Текст")
}

func TestDecisionSummaryCapsAtSix(t *testing.T) {
	d := map[string]any{}
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		d[k] = true
	}
	d["empty"] = ""
	assert.Equal(t, "a=true, b=true, c=true, d=true, e=true, f=true", DecisionSummary(d))
}

func TestIsBanned(t *testing.T) {
	assert.False(t, IsBanned(nil))
	assert.False(t, IsBanned(map[string]any{"banned": false}))
	assert.False(t, IsBanned(map[string]any{"banned": int64(0)}))
	assert.True(t, IsBanned(map[string]any{"banned": true}))
	assert.True(t, IsBanned(map[string]any{"banned": int64(1)}))
	assert.True(t, IsBanned(map[string]any{"banned": "yes"}))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0 сек.", FormatDuration(-5))
	assert.Equal(t, "59 сек.", FormatDuration(59))
	assert.Equal(t, "2 мин. 5 сек.", FormatDuration(125))
	assert.Equal(t, "1 ч. 1 мин.", FormatDuration(3660))
}

func TestPack(t *testing.T) {
	name := "Alice"
	got := Pack(types.Bot{Name: &name, Phone: "7"}, []types.AnalyzedMessage{
		{AdditionalMessage: "hello world, long text", Username: strPtr("@bob")},
		{AdditionalMessage: "hi"},
	})
	assert.Equal(t, "Пак от Alice[7]\n\n<code>hello worl</code> - @bob\n\n<code>hi</code> - @нет", got)
}

func TestTruncateIsRuneSafe(t *testing.T) {
	assert.Equal(t, "при", Truncate("привет", 3))
	assert.Equal(t, "ok", Truncate("ok", 3))
}

func TestFloodWait(t *testing.T) {
	got := FloodWait(types.Bot{Phone: "7"}, 90)
	assert.Equal(t, "Ошибка FloodWait (до 1 мин. 30 сек.) для 🌀[7], бот был остановлен.", got)
}
