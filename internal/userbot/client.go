// Package userbot wraps the MTProto client a worker process drives.
package userbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cur1osus/manager-for-userbot/internal/worker"
	"github.com/cur1osus/manager-for-userbot/types"
)

type Client struct {
	client  *telegram.Client
	api     *tg.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func New(creds types.Credentials, log zerolog.Logger) *Client {
	c := telegram.NewClient(creds.APIID, creds.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: creds.SessionPath},
	})
	return &Client{
		client:  c,
		limiter: rate.NewLimiter(rate.Every(time.Second), 10),
		log:     log.With().Str("component", "userbot").Logger(),
	}
}

// Run connects with the stored session and calls fn while the connection is
// up. The session must already be authorized.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return ErrUnauthorized
		}
		c.api = c.client.API()
		c.log.Info().Msg("session restored")
		return fn(ctx)
	})
}

func (c *Client) wait(ctx context.Context) error {
	if c.api == nil {
		return worker.ErrDisconnected
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) GetMeName(ctx context.Context) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	self, err := c.client.Self(ctx)
	if err != nil {
		return "", classify(err, "get self", "")
	}
	return displayName(self), nil
}

func displayName(u *tg.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = types.DefaultBotName
	}
	return name
}

func (c *Client) dialogFilters(ctx context.Context) ([]tg.DialogFilterClass, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.api.MessagesGetDialogFilters(ctx)
	if err != nil {
		return nil, classify(err, "get dialog filters", "")
	}
	return filtersOf(res), nil
}

// filtersOf accepts both the bare vector and the wrapped result of
// messages.getDialogFilters, the shape depends on the API layer.
func filtersOf(res any) []tg.DialogFilterClass {
	switch v := res.(type) {
	case []tg.DialogFilterClass:
		return v
	case interface{ GetFilters() []tg.DialogFilterClass }:
		return v.GetFilters()
	}
	return nil
}

func (c *Client) GetFolders(ctx context.Context) ([]types.Folder, error) {
	filters, err := c.dialogFilters(ctx)
	if err != nil {
		return nil, err
	}
	folders := make([]types.Folder, 0, len(filters))
	for _, f := range filters {
		if id, title, _, ok := filterInfo(f); ok {
			folders = append(folders, types.Folder{ID: id, Title: title})
		}
	}
	return folders, nil
}

func filterInfo(f tg.DialogFilterClass) (int, string, []tg.InputPeerClass, bool) {
	switch v := f.(type) {
	case *tg.DialogFilter:
		return v.ID, v.Title, v.IncludePeers, true
	case *tg.DialogFilterChatlist:
		return v.ID, v.Title, v.IncludePeers, true
	}
	return 0, "", nil, false
}

// ProcessedUsers lists the private chats included in the given folders.
func (c *Client) ProcessedUsers(ctx context.Context, folderIDs []int) ([]types.ProcessedUser, error) {
	filters, err := c.dialogFilters(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[int]bool, len(folderIDs))
	for _, id := range folderIDs {
		wanted[id] = true
	}

	seen := map[int64]bool{}
	var inputs []tg.InputUserClass
	for _, f := range filters {
		id, _, peers, ok := filterInfo(f)
		if !ok || (len(wanted) > 0 && !wanted[id]) {
			continue
		}
		for _, p := range peers {
			u, ok := p.(*tg.InputPeerUser)
			if !ok || seen[u.UserID] {
				continue
			}
			seen[u.UserID] = true
			inputs = append(inputs, &tg.InputUser{UserID: u.UserID, AccessHash: u.AccessHash})
		}
	}
	if len(inputs) == 0 {
		return []types.ProcessedUser{}, nil
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	users, err := c.api.UsersGetUsers(ctx, inputs)
	if err != nil {
		return nil, classify(err, "get users", "")
	}
	out := make([]types.ProcessedUser, 0, len(users))
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			out = append(out, types.ProcessedUser{ID: user.ID, Username: user.Username})
		}
	}
	return out, nil
}

func (c *Client) GetChatTitle(ctx context.Context, username string) (string, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	resolved, err := c.api.ContactsResolveUsername(ctx, username)
	if err != nil {
		return "", classify(err, "resolve "+username, username)
	}
	for _, chat := range resolved.Chats {
		switch v := chat.(type) {
		case *tg.Channel:
			return v.Title, nil
		case *tg.Chat:
			return v.Title, nil
		case *tg.ChannelForbidden:
			return "", &worker.PrivateChannelError{Channel: v.Title, Err: fmt.Errorf("channel %s forbidden", username)}
		}
	}
	return "", fmt.Errorf("%s is not a chat", username)
}

var _ worker.Tasks = (*Client)(nil)
