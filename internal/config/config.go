package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var DefaultEnvFiles = []string{"config.env", ".env"}

type Config struct {
	BotToken string `env:"BOT_TOKEN"`

	PostgresDSN   string `env:"POSTGRES_DSN"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SessionsDir  string        `env:"SESSIONS_DIR" envDefault:"./sessions"`
	WorkerBinary string        `env:"WORKER_BINARY"`
	PIDWait      time.Duration `env:"PID_WAIT" envDefault:"1s"`

	// Who may register as a manager: listed ids on first contact, anyone
	// else through "/start <REGISTRATION_SECRET>".
	AdminIDs           []int64 `env:"ADMIN_IDS" envSeparator:","`
	RegistrationSecret string  `env:"REGISTRATION_SECRET"`

	// Defaults offered by /add when only a phone is given.
	APIID   int    `env:"API_ID"`
	APIHash string `env:"API_HASH"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsAddr string `env:"METRICS_ADDR"`

	DrainInterval time.Duration `env:"DRAIN_INTERVAL" envDefault:"1s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1s"`
	PackInterval  time.Duration `env:"PACK_INTERVAL" envDefault:"5s"`
	DrainBatch    int           `env:"DRAIN_BATCH" envDefault:"30"`
	SweepBatch    int           `env:"SWEEP_BATCH" envDefault:"100"`
	SendDelay     time.Duration `env:"SEND_DELAY" envDefault:"1s"`

	PollMaxRetries int           `env:"POLL_MAX_RETRIES" envDefault:"3"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`

	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"1s"`
	JobClaimTTL        time.Duration `env:"JOB_CLAIM_TTL" envDefault:"2m"`
}

// Load reads the first env files that exist, then parses the environment.
// Variables already set in the environment win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, f := range files {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if c.WorkerBinary == "" {
		if exe, err := os.Executable(); err == nil {
			c.WorkerBinary = exe
		}
	}
	return c, nil
}

func (c Config) validateShared() error {
	var errs []error
	if strings.TrimSpace(c.PostgresDSN) == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required"))
	}
	if strings.TrimSpace(c.SessionsDir) == "" {
		errs = append(errs, errors.New("SESSIONS_DIR is required"))
	}
	return errors.Join(errs...)
}

// ValidateBotProcess checks the settings the control panel cannot run without.
func (c Config) ValidateBotProcess() error {
	errs := []error{c.validateShared()}
	if strings.TrimSpace(c.BotToken) == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.PollMaxRetries <= 0 {
		errs = append(errs, errors.New("POLL_MAX_RETRIES must be positive"))
	}
	if c.DrainBatch <= 0 {
		errs = append(errs, errors.New("DRAIN_BATCH must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) ValidateWorkerProcess() error {
	errs := []error{c.validateShared()}
	if c.WorkerPollInterval <= 0 {
		errs = append(errs, errors.New("WORKER_POLL_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}
