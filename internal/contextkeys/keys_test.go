package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cur1osus/manager-for-userbot/types"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	_, ok := GetManager(ctx)
	assert.False(t, ok)
	mt, ok := GetMessageType(ctx)
	assert.False(t, ok)
	assert.Equal(t, MessageTypeUnknown, mt)

	m := &types.Manager{ID: 3}
	ctx = WithManager(ctx, m)
	ctx = WithMessageType(ctx, MessageTypeClickButton)
	ctx = WithCallbackData(ctx, "bot:open:3")

	got, ok := GetManager(ctx)
	assert.True(t, ok)
	assert.Same(t, m, got)
	mt, _ = GetMessageType(ctx)
	assert.Equal(t, MessageTypeClickButton, mt)
	data, _ := GetCallbackData(ctx)
	assert.Equal(t, "bot:open:3", data)
}
