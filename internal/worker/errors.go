package worker

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedTask = errors.New("unsupported task")
	ErrDisconnected    = errors.New("userbot disconnected")
)

// FloodWaitError means Telegram asked the userbot to pause for Seconds.
type FloodWaitError struct {
	Seconds int64
	Err     error
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %ds: %v", e.Seconds, e.Err)
}

func (e *FloodWaitError) Unwrap() error { return e.Err }

// PrivateChannelError means the userbot lost access to Channel.
type PrivateChannelError struct {
	Channel string
	Err     error
}

func (e *PrivateChannelError) Error() string {
	return fmt.Sprintf("channel %s is private: %v", e.Channel, e.Err)
}

func (e *PrivateChannelError) Unwrap() error { return e.Err }
