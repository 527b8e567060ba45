package contextkeys

import (
	"context"

	"github.com/cur1osus/manager-for-userbot/types"
)

type messageTypeKey struct{}
type managerKey struct{}
type callbackDataKey struct{}

type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeCommand     MessageType = "command"
	MessageTypeClickButton MessageType = "clickButton"
	MessageTypeUnknown     MessageType = "unknown"
)

func WithMessageType(ctx context.Context, msgType MessageType) context.Context {
	return context.WithValue(ctx, messageTypeKey{}, msgType)
}

func GetMessageType(ctx context.Context) (MessageType, bool) {
	v, ok := ctx.Value(messageTypeKey{}).(MessageType)
	if !ok {
		return MessageTypeUnknown, false
	}
	return v, true
}

func WithManager(ctx context.Context, m *types.Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, m)
}

func GetManager(ctx context.Context) (*types.Manager, bool) {
	v, ok := ctx.Value(managerKey{}).(*types.Manager)
	return v, ok && v != nil
}

func WithCallbackData(ctx context.Context, data string) context.Context {
	return context.WithValue(ctx, callbackDataKey{}, data)
}

func GetCallbackData(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(callbackDataKey{}).(string)
	return v, ok
}
