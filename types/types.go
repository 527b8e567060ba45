package types

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Manager struct {
	ID              int64     `db:"id"`
	TelegramID      int64     `db:"user_id"`
	Username        string    `db:"username"`
	IsAntifloodMode bool      `db:"is_antiflood_mode"`
	LimitPack       int       `db:"limit_pack"`
	CreatedAt       time.Time `db:"created_at"`
}

type Bot struct {
	ID          int64     `db:"id"`
	ManagerID   int64     `db:"manager_id"`
	Phone       string    `db:"phone"`
	APIID       int       `db:"api_id"`
	APIHash     string    `db:"api_hash"`
	SessionPath string    `db:"path_session"`
	Name        *string   `db:"name"`
	IsConnected bool      `db:"is_connected"`
	IsStarted   bool      `db:"is_started"`
	CreatedAt   time.Time `db:"created_at"`
}

func (b Bot) DisplayName() string {
	if b.Name == nil || strings.TrimSpace(*b.Name) == "" {
		return DefaultBotName
	}
	return *b.Name
}

func (b Bot) Credentials() Credentials {
	return Credentials{
		Phone:       b.Phone,
		APIID:       b.APIID,
		APIHash:     b.APIHash,
		SessionPath: b.SessionPath,
	}
}

// Credentials are the arguments a worker process is launched with.
type Credentials struct {
	Phone       string
	APIID       int
	APIHash     string
	SessionPath string
}

func (c Credentials) Validate() error {
	phone := strings.TrimPrefix(c.Phone, "+")
	if phone == "" {
		return fmt.Errorf("%w: empty phone", ErrInvalidCredentials)
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: phone must contain digits only", ErrInvalidCredentials)
		}
	}
	if c.APIID <= 0 {
		return fmt.Errorf("%w: api id must be positive", ErrInvalidCredentials)
	}
	if len(c.APIHash) != 32 {
		return fmt.Errorf("%w: api hash must be 32 characters", ErrInvalidCredentials)
	}
	if filepath.Ext(c.SessionPath) != ".session" {
		return fmt.Errorf("%w: session path %q must end with .session", ErrInvalidCredentials, c.SessionPath)
	}
	return nil
}

// SessionPath is where the worker for phone keeps its session file.
func SessionPath(dir, phone string) string {
	return filepath.Join(dir, strings.TrimPrefix(phone, "+")+".session")
}

// Job is pending while Answer is nil.
type Job struct {
	ID           int64      `db:"id"`
	BotID        int64      `db:"bot_id"`
	Task         TaskKind   `db:"task"`
	TaskMetadata []byte     `db:"task_metadata"`
	Answer       []byte     `db:"answer"`
	ClaimedBy    *string    `db:"claimed_by"`
	ClaimedAt    *time.Time `db:"claimed_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

func (j Job) Pending() bool {
	return j.Answer == nil
}

// JobRecord is a job joined with its bot and the bot's manager, either may be absent.
type JobRecord struct {
	Job     Job
	Bot     *Bot
	Manager *Manager
}

// BotManager pairs a bot with its owning manager.
type BotManager struct {
	Bot     Bot
	Manager Manager
}

type AnalyzedMessage struct {
	ID                int64   `db:"id"`
	BotID             *int64  `db:"bot_id"`
	Username          *string `db:"username"`
	AdditionalMessage string  `db:"additional_message"`
	Decision          []byte  `db:"decision"`
	Accepted          *bool   `db:"accepted"`
	Sended            bool    `db:"sended"`
}

func (m AnalyzedMessage) UsernameOrEmpty() string {
	if m.Username == nil {
		return ""
	}
	return *m.Username
}

type AnalyzedRecord struct {
	Message AnalyzedMessage
	Bot     *Bot
	Manager *Manager
	// UsernameBanned is set when the bot's manager banned the sender.
	UsernameBanned bool
}

type Folder struct {
	ID    int    `msgpack:"id" json:"id"`
	Title string `msgpack:"title" json:"title"`
}

type ProcessedUser struct {
	ID       int64  `msgpack:"id" json:"id"`
	Username string `msgpack:"username" json:"username"`
}

// ProcessedUsersRequest is the payload of a processed_users job.
type ProcessedUsersRequest struct {
	Folders []int `msgpack:"folders"`
}

type ChatTitleRequest struct {
	Username string `msgpack:"username"`
}

// FloodWaitReport is the payload of a flood_wait_error job.
type FloodWaitReport struct {
	Time int64 `msgpack:"time"`
}

type PrivateChannelReport struct {
	Channel string `msgpack:"channel"`
}

// PanelSession is the per-manager navigation state of the control panel.
type PanelSession struct {
	ManagerID       int64           `json:"manager_id"`
	SelectedBotID   int64           `json:"selected_bot_id,omitempty"`
	BackTo          string          `json:"back_to,omitempty"`
	Folders         []Folder        `json:"folders,omitempty"`
	SelectedFolders []int           `json:"selected_folders,omitempty"`
	ProcessedUsers  []ProcessedUser `json:"processed_users,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type ManagerStore interface {
	UpsertManager(ctx context.Context, m *Manager) error
	GetManagerByTelegramID(ctx context.Context, telegramID int64) (*Manager, error)
	SetAntifloodMode(ctx context.Context, managerID int64, enabled bool) error
	BanUsername(ctx context.Context, managerID int64, username string) error
}

type BotStore interface {
	CreateBot(ctx context.Context, b *Bot) error
	GetBot(ctx context.Context, id int64) (*Bot, error)
	GetBotByPhone(ctx context.Context, phone string) (*Bot, error)
	ListBots(ctx context.Context, managerID int64) ([]Bot, error)
	ListAntifloodBots(ctx context.Context) ([]BotManager, error)
	SetConnected(ctx context.Context, id int64, connected bool) error
	SetStarted(ctx context.Context, id int64, started bool) error
	SetName(ctx context.Context, id int64, name string) error
	DeleteBot(ctx context.Context, id int64) error
}

type JobStore interface {
	ReplacePending(ctx context.Context, botID int64, kind TaskKind, metadata []byte) (int64, error)
	InsertJob(ctx context.Context, botID int64, kind TaskKind, metadata []byte) (int64, error)
	LatestJob(ctx context.Context, botID int64, kind TaskKind) (*Job, error)
	ClaimNextJob(ctx context.Context, botID int64, kinds []TaskKind, claimer string, staleAfter time.Duration) (*Job, error)
	AnswerJob(ctx context.Context, id int64, answer []byte) (bool, error)
	PendingControlJobs(ctx context.Context, limit int) ([]JobRecord, error)
	DeleteJobs(ctx context.Context, botID int64) error
	DeleteJobsByKind(ctx context.Context, botID int64, kind TaskKind) error
}

type AnalyzedStore interface {
	LatestNotAccepted(ctx context.Context) ([]AnalyzedRecord, error)
	NotAcceptedAfter(ctx context.Context, afterID int64, limit int) ([]AnalyzedRecord, error)
	AcceptedUnsentAfter(ctx context.Context, botID, afterID int64, limit int) ([]AnalyzedMessage, error)
	GetAnalyzed(ctx context.Context, id int64) (*AnalyzedMessage, error)
	SetAccepted(ctx context.Context, id int64, accepted bool) error
}

type CursorStore interface {
	LoadCursor(ctx context.Context, key, legacyKey string) (int64, bool, error)
	AdvanceCursor(ctx context.Context, key string, id int64) error
}

type SessionStore interface {
	GetPanelSession(ctx context.Context, managerID int64) (*PanelSession, error)
	SavePanelSession(ctx context.Context, s *PanelSession) error
	ClearPanelSession(ctx context.Context, managerID int64) error
}
