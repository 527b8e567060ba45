package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cur1osus/manager-for-userbot/internal/config"
	"github.com/cur1osus/manager-for-userbot/internal/logger"
	"github.com/cur1osus/manager-for-userbot/internal/metrics"
	"github.com/cur1osus/manager-for-userbot/internal/userbot"
	"github.com/cur1osus/manager-for-userbot/internal/worker"
	"github.com/cur1osus/manager-for-userbot/store"
	"github.com/cur1osus/manager-for-userbot/types"
)

// openWorkerStore leaves migrations to the bot process.
var openWorkerStore = store.OpenPostgresStore

type workerFlags struct {
	envFile string
	session string
	apiID   int
	apiHash string
	pidFile string
}

func newWorkerProcessCommand() *cobra.Command {
	var f workerFlags
	cmd := &cobra.Command{
		Use:   "worker-process <phone>",
		Short: "Serve jobs for one userbot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f.envFile)
			if err != nil {
				return err
			}
			if err := cfg.ValidateWorkerProcess(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			creds, pidFile := workerSettings(cfg, f, args[0])
			if err := creds.Validate(); err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel).With().Str("process", "worker").Logger()
			return runWorkerProcess(cmd.Context(), cfg, creds, pidFile, log)
		},
	}
	cmd.Flags().StringVar(&f.envFile, "env-file", "", "env file to load before the environment")
	cmd.Flags().StringVar(&f.session, "session", "", "session file (default <SESSIONS_DIR>/<phone>.session)")
	cmd.Flags().IntVar(&f.apiID, "api-id", 0, "Telegram API id (default API_ID)")
	cmd.Flags().StringVar(&f.apiHash, "api-hash", "", "Telegram API hash (default API_HASH)")
	cmd.Flags().StringVar(&f.pidFile, "pid-file", "", "PID file (default <SESSIONS_DIR>/<phone>.pid)")
	return cmd
}

// workerSettings merges flags over configuration.
func workerSettings(cfg config.Config, f workerFlags, phone string) (types.Credentials, string) {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "+")
	creds := types.Credentials{
		Phone:       phone,
		APIID:       cfg.APIID,
		APIHash:     cfg.APIHash,
		SessionPath: types.SessionPath(cfg.SessionsDir, phone),
	}
	if f.apiID != 0 {
		creds.APIID = f.apiID
	}
	if f.apiHash != "" {
		creds.APIHash = f.apiHash
	}
	if f.session != "" {
		creds.SessionPath = f.session
	}
	pidFile := filepath.Join(cfg.SessionsDir, phone+".pid")
	if f.pidFile != "" {
		pidFile = f.pidFile
	}
	return creds, pidFile
}

func runWorkerProcess(ctx context.Context, cfg config.Config, creds types.Credentials, pidFile string, log zerolog.Logger) error {
	release, err := worker.AcquirePID(pidFile, log)
	if err != nil {
		return err
	}
	defer release()

	pg, err := openWorkerStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	rt := worker.New(pg, pg, worker.Config{
		Phone:        creds.Phone,
		PollInterval: cfg.WorkerPollInterval,
		ClaimTTL:     cfg.JobClaimTTL,
	}, log, metrics.Default())

	b, err := rt.Bot(ctx)
	if err != nil {
		return err
	}

	client := userbot.New(creds, log)
	err = client.Run(ctx, func(ctx context.Context) error {
		return rt.Run(ctx, b.ID, client)
	})
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if !errors.Is(err, worker.ErrDisconnected) {
		reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		rt.ReportConnectionError(reportCtx, b.ID)
	}
	return fmt.Errorf("userbot %s: %w", creds.Phone, err)
}
