package userbot

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/tgerr"

	"github.com/cur1osus/manager-for-userbot/internal/worker"
)

var ErrUnauthorized = errors.New("userbot session is not authorized")

// classify maps Telegram RPC errors onto the conditions the worker reports.
// channel names the chat involved in the call, if any.
func classify(err error, op, channel string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) && rpcErr.Code == 420 {
		return &worker.FloodWaitError{Seconds: int64(rpcErr.Argument), Err: err}
	}
	if channel != "" && tgerr.Is(err, "CHANNEL_PRIVATE", "CHANNEL_INVALID", "CHAT_FORBIDDEN") {
		return &worker.PrivateChannelError{Channel: channel, Err: err}
	}
	if tgerr.Is(err, "AUTH_KEY_UNREGISTERED", "SESSION_REVOKED", "USER_DEACTIVATED", "USER_DEACTIVATED_BAN") {
		return fmt.Errorf("%s: %w: %v", op, worker.ErrDisconnected, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
