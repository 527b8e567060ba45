package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cur1osus/manager-for-userbot/internal/codec"
	"github.com/cur1osus/manager-for-userbot/internal/dispatch"
	"github.com/cur1osus/manager-for-userbot/internal/keyboards"
	"github.com/cur1osus/manager-for-userbot/internal/messages"
	"github.com/cur1osus/manager-for-userbot/internal/utils"
	"github.com/cur1osus/manager-for-userbot/types"
)

// View is what the panel shows in reply to an action.
type View struct {
	Text    string
	Buttons [][]utils.Button
}

type Store interface {
	types.ManagerStore
	types.BotStore
	GetAnalyzed(ctx context.Context, id int64) (*types.AnalyzedMessage, error)
	SetAccepted(ctx context.Context, id int64, accepted bool) error
	LatestJob(ctx context.Context, botID int64, kind types.TaskKind) (*types.Job, error)
	DeleteJobs(ctx context.Context, botID int64) error
	DeleteJobsByKind(ctx context.Context, botID int64, kind types.TaskKind) error
}

type Supervisor interface {
	Start(ctx context.Context, creds types.Credentials) (int, error)
	IsRunning(phone string) bool
	Stop(phone string, deleteSession bool) error
	SessionPath(phone string) string
}

type Dispatcher interface {
	Enqueue(ctx context.Context, botID int64, kind types.TaskKind, payload any) (int64, error)
	Request(ctx context.Context, botID int64, kind types.TaskKind, payload any, progress dispatch.Progress) (dispatch.Result, error)
}

type PanelConfig struct {
	DefaultAPIID   int
	DefaultAPIHash string
}

// Panel implements the manager-facing actions independently of Telegram.
type Panel struct {
	store      Store
	sessions   types.SessionStore
	supervisor Supervisor
	dispatcher Dispatcher
	cfg        PanelConfig
	log        zerolog.Logger
}

func NewPanel(store Store, sessions types.SessionStore, sup Supervisor, disp Dispatcher, cfg PanelConfig, log zerolog.Logger) *Panel {
	return &Panel{
		store:      store,
		sessions:   sessions,
		supervisor: sup,
		dispatcher: disp,
		cfg:        cfg,
		log:        log.With().Str("component", "panel").Logger(),
	}
}

func noData() View {
	return View{Text: messages.ErrorNoData(), Buttons: keyboards.BackOnly()}
}

// ErrorView renders err for the manager.
func ErrorView(err error) View {
	switch {
	case errors.Is(err, dispatch.ErrNotAvailable), errors.Is(err, codec.ErrTaskFailed):
		return noData()
	case errors.Is(err, types.ErrNotFound):
		return View{Text: messages.ErrorNotFound(), Buttons: keyboards.BackOnly()}
	case errors.Is(err, types.ErrInvalidCredentials):
		return View{Text: messages.InvalidCredentials(err)}
	}
	return View{Text: messages.ErrorDefault(), Buttons: keyboards.BackOnly()}
}

func (p *Panel) session(ctx context.Context, mgr *types.Manager) (*types.PanelSession, error) {
	return p.sessions.GetPanelSession(ctx, mgr.ID)
}

func (p *Panel) save(ctx context.Context, s *types.PanelSession) error {
	s.UpdatedAt = time.Now()
	return p.sessions.SavePanelSession(ctx, s)
}

// ownBot loads a bot and checks it belongs to mgr.
func (p *Panel) ownBot(ctx context.Context, mgr *types.Manager, botID int64) (*types.Bot, error) {
	b, err := p.store.GetBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	if b.ManagerID != mgr.ID {
		return nil, fmt.Errorf("bot %d: %w", botID, types.ErrNotFound)
	}
	return b, nil
}

func (p *Panel) MainMenu(ctx context.Context, mgr *types.Manager) (View, error) {
	bots, err := p.store.ListBots(ctx, mgr.ID)
	if err != nil {
		return View{}, err
	}
	s, err := p.session(ctx, mgr)
	if err != nil {
		return View{}, err
	}
	s.SelectedBotID = 0
	s.BackTo = types.BackToMain
	s.Folders, s.SelectedFolders, s.ProcessedUsers = nil, nil, nil
	if err := p.save(ctx, s); err != nil {
		return View{}, err
	}
	p.requestMissingNames(ctx, bots)
	return View{
		Text:    messages.MainMenu(bots, mgr.IsAntifloodMode),
		Buttons: keyboards.MainMenu(bots, mgr.IsAntifloodMode),
	}, nil
}

// requestMissingNames asks running workers for the account name of bots that
// still have none, unless such a request is already pending.
func (p *Panel) requestMissingNames(ctx context.Context, bots []types.Bot) {
	for _, b := range bots {
		if b.DisplayName() != types.DefaultBotName || !p.supervisor.IsRunning(b.Phone) {
			continue
		}
		job, err := p.store.LatestJob(ctx, b.ID, types.TaskGetMeName)
		if err != nil {
			p.log.Warn().Err(err).Int64("bot_id", b.ID).Msg("failed to look up name request")
			continue
		}
		if job != nil && job.Pending() {
			continue
		}
		if _, err := p.dispatcher.Enqueue(ctx, b.ID, types.TaskGetMeName, nil); err != nil {
			p.log.Warn().Err(err).Int64("bot_id", b.ID).Msg("failed to request account name")
		}
	}
}

// AddBot registers a bot from "/add phone [api_id api_hash]" arguments,
// asks its worker for the account name and launches the worker.
func (p *Panel) AddBot(ctx context.Context, mgr *types.Manager, args string) (View, error) {
	fields := strings.Fields(args)
	if len(fields) != 1 && len(fields) != 3 {
		return View{Text: messages.AddUsage()}, nil
	}
	phone := strings.TrimPrefix(fields[0], "+")
	apiID, apiHash := p.cfg.DefaultAPIID, p.cfg.DefaultAPIHash
	if len(fields) == 3 {
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return View{}, fmt.Errorf("%w: api id %q", types.ErrInvalidCredentials, fields[1])
		}
		apiID, apiHash = id, fields[2]
	}
	creds := types.Credentials{
		Phone:       phone,
		APIID:       apiID,
		APIHash:     apiHash,
		SessionPath: p.supervisor.SessionPath(phone),
	}
	if err := creds.Validate(); err != nil {
		return View{}, err
	}

	if existing, err := p.store.GetBotByPhone(ctx, phone); err == nil && existing != nil {
		return View{Text: messages.BotExists(phone), Buttons: keyboards.BackOnly()}, nil
	} else if err != nil && !errors.Is(err, types.ErrNotFound) {
		return View{}, err
	}

	b := &types.Bot{
		ManagerID:   mgr.ID,
		Phone:       creds.Phone,
		APIID:       creds.APIID,
		APIHash:     creds.APIHash,
		SessionPath: creds.SessionPath,
	}
	if err := p.store.CreateBot(ctx, b); err != nil {
		return View{}, err
	}
	if _, err := p.dispatcher.Enqueue(ctx, b.ID, types.TaskGetMeName, nil); err != nil {
		p.log.Warn().Err(err).Int64("bot_id", b.ID).Msg("failed to request account name")
	}
	pid, err := p.supervisor.Start(ctx, creds)
	if err != nil {
		p.log.Error().Err(err).Int64("bot_id", b.ID).Msg("failed to start worker")
		pid = -1
	}
	return View{Text: messages.BotAdded(*b, pid), Buttons: keyboards.BotMenu(*b)}, nil
}

func (p *Panel) botCard(ctx context.Context, mgr *types.Manager, b *types.Bot) (View, error) {
	s, err := p.session(ctx, mgr)
	if err != nil {
		return View{}, err
	}
	s.SelectedBotID = b.ID
	s.BackTo = types.BackToMain
	if err := p.save(ctx, s); err != nil {
		return View{}, err
	}
	return View{
		Text:    messages.BotCard(*b, p.supervisor.IsRunning(b.Phone)),
		Buttons: keyboards.BotMenu(*b),
	}, nil
}

func (p *Panel) OpenBot(ctx context.Context, mgr *types.Manager, botID int64) (View, error) {
	b, err := p.ownBot(ctx, mgr, botID)
	if err != nil {
		return View{}, err
	}
	return p.botCard(ctx, mgr, b)
}

func (p *Panel) Connect(ctx context.Context, mgr *types.Manager, botID int64) (View, error) {
	b, err := p.ownBot(ctx, mgr, botID)
	if err != nil {
		return View{}, err
	}
	pid, err := p.supervisor.Start(ctx, b.Credentials())
	if err != nil {
		return View{}, err
	}
	if pid < 0 {
		return View{Text: messages.ConnectFailed(*b), Buttons: keyboards.BotMenu(*b)}, nil
	}
	if err := p.store.SetConnected(ctx, b.ID, true); err != nil {
		return View{}, err
	}
	b.IsConnected = true
	return p.botCard(ctx, mgr, b)
}

func (p *Panel) Disconnect(ctx context.Context, mgr *types.Manager, botID int64) (View, error) {
	b, err := p.ownBot(ctx, mgr, botID)
	if err != nil {
		return View{}, err
	}
	if err := p.supervisor.Stop(b.Phone, false); err != nil {
		p.log.Warn().Err(err).Int64("bot_id", b.ID).Msg("stop worker")
	}
	if err := p.store.SetConnected(ctx, b.ID, false); err != nil {
		return View{}, err
	}
	if err := p.store.SetStarted(ctx, b.ID, false); err != nil {
		return View{}, err
	}
	if err := p.store.DeleteJobs(ctx, b.ID); err != nil {
		return View{}, err
	}
	b.IsConnected, b.IsStarted = false, false
	return p.botCard(ctx, mgr, b)
}

func (p *Panel) SetStarted(ctx context.Context, mgr *types.Manager, botID int64, started bool) (View, error) {
	b, err := p.ownBot(ctx, mgr, botID)
	if err != nil {
		return View{}, err
	}
	if err := p.store.SetStarted(ctx, b.ID, started); err != nil {
		return View{}, err
	}
	b.IsStarted = started
	return p.botCard(ctx, mgr, b)
}

func (p *Panel) DeleteBot(ctx context.Context, mgr *types.Manager, botID int64) (View, error) {
	b, err := p.ownBot(ctx, mgr, botID)
	if err != nil {
		return View{}, err
	}
	if err := p.supervisor.Stop(b.Phone, true); err != nil {
		p.log.Warn().Err(err).Int64("bot_id", b.ID).Msg("stop worker")
	}
	if err := p.store.DeleteBot(ctx, b.ID); err != nil {
		return View{}, err
	}
	if err := p.sessions.ClearPanelSession(ctx, mgr.ID); err != nil {
		p.log.Warn().Err(err).Int64("manager_id", mgr.ID).Msg("clear panel session")
	}
	menu, err := p.MainMenu(ctx, mgr)
	if err != nil {
		return View{}, err
	}
	menu.Text = messages.BotDeleted(b.Phone) + "\n\n" + menu.Text
	return menu, nil
}

func (p *Panel) request(ctx context.Context, botID int64, kind types.TaskKind, payload any, progress dispatch.Progress, out any) error {
	res, err := p.dispatcher.Request(ctx, botID, kind, payload, progress)
	if err != nil {
		return err
	}
	return res.Decode(out)
}

// RefreshName asks the worker for the account name and stores it.
func (p *Panel) RefreshName(ctx context.Context, mgr *types.Manager, botID int64, progress dispatch.Progress) (View, error) {
	b, err := p.ownBot(ctx, mgr, botID)
	if err != nil {
		return View{}, err
	}
	var name string
	if err := p.request(ctx, b.ID, types.TaskGetMeName, nil, progress, &name); err != nil {
		return View{}, err
	}
	if err := p.store.SetName(ctx, b.ID, name); err != nil {
		return View{}, err
	}
	b.Name = &name
	return p.botCard(ctx, mgr, b)
}

func (p *Panel) Folders(ctx context.Context, mgr *types.Manager, botID int64, progress dispatch.Progress) (View, error) {
	b, err := p.ownBot(ctx, mgr, botID)
	if err != nil {
		return View{}, err
	}
	var folders []types.Folder
	if err := p.request(ctx, b.ID, types.TaskGetFolders, nil, progress, &folders); err != nil {
		return View{}, err
	}
	s, err := p.session(ctx, mgr)
	if err != nil {
		return View{}, err
	}
	s.SelectedBotID = b.ID
	s.BackTo = types.BackToBot
	s.Folders = folders
	s.SelectedFolders = nil
	s.ProcessedUsers = nil
	if err := p.save(ctx, s); err != nil {
		return View{}, err
	}
	return foldersView(s), nil
}

func selection(s *types.PanelSession) map[int]bool {
	selected := make(map[int]bool, len(s.SelectedFolders))
	for _, id := range s.SelectedFolders {
		selected[id] = true
	}
	return selected
}

func foldersView(s *types.PanelSession) View {
	selected := selection(s)
	return View{
		Text:    messages.Folders(s.Folders, selected),
		Buttons: keyboards.Folders(s.Folders, selected),
	}
}

func (p *Panel) ToggleFolder(ctx context.Context, mgr *types.Manager, folderID int) (View, error) {
	s, err := p.session(ctx, mgr)
	if err != nil {
		return View{}, err
	}
	known := false
	for _, f := range s.Folders {
		if f.ID == folderID {
			known = true
			break
		}
	}
	if !known {
		return View{}, fmt.Errorf("folder %d: %w", folderID, types.ErrNotFound)
	}

	next := make([]int, 0, len(s.SelectedFolders)+1)
	removed := false
	for _, id := range s.SelectedFolders {
		if id == folderID {
			removed = true
			continue
		}
		next = append(next, id)
	}
	if !removed {
		next = append(next, folderID)
	}
	s.SelectedFolders = next
	if err := p.save(ctx, s); err != nil {
		return View{}, err
	}
	return foldersView(s), nil
}

// ProcessedUsers fetches the users of the selected folders, all folders
// when none are selected.
func (p *Panel) ProcessedUsers(ctx context.Context, mgr *types.Manager, progress dispatch.Progress) (View, error) {
	s, err := p.session(ctx, mgr)
	if err != nil {
		return View{}, err
	}
	if s.SelectedBotID == 0 {
		return View{}, fmt.Errorf("no bot selected: %w", types.ErrNotFound)
	}
	b, err := p.ownBot(ctx, mgr, s.SelectedBotID)
	if err != nil {
		return View{}, err
	}
	var users []types.ProcessedUser
	req := types.ProcessedUsersRequest{Folders: s.SelectedFolders}
	if err := p.request(ctx, b.ID, types.TaskProcessedUsers, req, progress, &users); err != nil {
		return View{}, err
	}
	s.ProcessedUsers = users
	s.BackTo = types.BackToFolders
	if err := p.save(ctx, s); err != nil {
		return View{}, err
	}
	return View{Text: messages.ProcessedUsers(users), Buttons: keyboards.BackOnly()}, nil
}

// Back returns to the screen recorded in the session and drops jobs the
// screen being left was waiting for.
func (p *Panel) Back(ctx context.Context, mgr *types.Manager) (View, error) {
	s, err := p.session(ctx, mgr)
	if err != nil {
		return View{}, err
	}
	if s.SelectedBotID != 0 {
		if err := p.store.DeleteJobsByKind(ctx, s.SelectedBotID, types.TaskProcessedUsers); err != nil {
			p.log.Warn().Err(err).Int64("bot_id", s.SelectedBotID).Msg("failed to clean processed users jobs")
		}
	}

	switch s.BackTo {
	case types.BackToFolders:
		s.BackTo = types.BackToBot
		s.ProcessedUsers = nil
		if err := p.save(ctx, s); err != nil {
			return View{}, err
		}
		return foldersView(s), nil
	case types.BackToBot:
		if s.SelectedBotID != 0 {
			return p.OpenBot(ctx, mgr, s.SelectedBotID)
		}
	}
	return p.MainMenu(ctx, mgr)
}

func (p *Panel) ToggleAntiflood(ctx context.Context, mgr *types.Manager) (View, error) {
	enabled := !mgr.IsAntifloodMode
	if err := p.store.SetAntifloodMode(ctx, mgr.ID, enabled); err != nil {
		return View{}, err
	}
	mgr.IsAntifloodMode = enabled
	return p.MainMenu(ctx, mgr)
}

// ChatTitle resolves a chat through the worker of the selected bot.
func (p *Panel) ChatTitle(ctx context.Context, mgr *types.Manager, username string, progress dispatch.Progress) (View, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	s, err := p.session(ctx, mgr)
	if err != nil {
		return View{}, err
	}
	if username == "" || s.SelectedBotID == 0 {
		return View{Text: messages.TitleUsage()}, nil
	}
	b, err := p.ownBot(ctx, mgr, s.SelectedBotID)
	if err != nil {
		return View{}, err
	}
	var title string
	if err := p.request(ctx, b.ID, types.TaskGetChatTitle, types.ChatTitleRequest{Username: username}, progress, &title); err != nil {
		return View{}, err
	}
	return View{Text: messages.ChatTitle(username, title), Buttons: keyboards.BackOnly()}, nil
}

// analyzed loads an analyzed message whose bot belongs to mgr.
func (p *Panel) analyzed(ctx context.Context, mgr *types.Manager, id int64) (*types.AnalyzedMessage, error) {
	msg, err := p.store.GetAnalyzed(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.BotID == nil {
		return nil, fmt.Errorf("analyzed %d has no bot: %w", id, types.ErrNotFound)
	}
	if _, err := p.ownBot(ctx, mgr, *msg.BotID); err != nil {
		return nil, err
	}
	return msg, nil
}

func fullView(msg *types.AnalyzedMessage) string {
	decision, err := codec.DecodeMap(msg.Decision)
	if err != nil {
		decision = map[string]any{}
	}
	return messages.FullView(*msg, decision)
}

func (p *Panel) ShowAnalyzed(ctx context.Context, mgr *types.Manager, id int64) (View, error) {
	msg, err := p.analyzed(ctx, mgr, id)
	if err != nil {
		return View{}, err
	}
	return View{Text: fullView(msg), Buttons: keyboards.NotAccepted(id)}, nil
}

func (p *Panel) AcceptAnalyzed(ctx context.Context, mgr *types.Manager, id int64) (View, error) {
	msg, err := p.analyzed(ctx, mgr, id)
	if err != nil {
		return View{}, err
	}
	if err := p.store.SetAccepted(ctx, id, true); err != nil {
		return View{}, err
	}
	return View{Text: messages.Accepted(fullView(msg))}, nil
}

func (p *Panel) BanAnalyzed(ctx context.Context, mgr *types.Manager, id int64) (View, error) {
	msg, err := p.analyzed(ctx, mgr, id)
	if err != nil {
		return View{}, err
	}
	username := msg.UsernameOrEmpty()
	if strings.TrimSpace(username) == "" {
		return View{}, fmt.Errorf("analyzed %d has no username: %w", id, types.ErrNotFound)
	}
	if err := p.store.BanUsername(ctx, mgr.ID, username); err != nil {
		return View{}, err
	}
	return View{Text: messages.Banned(username)}, nil
}
