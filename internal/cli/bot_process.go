package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cur1osus/manager-for-userbot/internal/background"
	"github.com/cur1osus/manager-for-userbot/internal/config"
	"github.com/cur1osus/manager-for-userbot/internal/dispatch"
	"github.com/cur1osus/manager-for-userbot/internal/handlers"
	"github.com/cur1osus/manager-for-userbot/internal/logger"
	"github.com/cur1osus/manager-for-userbot/internal/metrics"
	"github.com/cur1osus/manager-for-userbot/internal/middleware"
	"github.com/cur1osus/manager-for-userbot/internal/notify"
	"github.com/cur1osus/manager-for-userbot/internal/scheduler"
	"github.com/cur1osus/manager-for-userbot/internal/supervisor"
	"github.com/cur1osus/manager-for-userbot/store"
)

const panelSessionTTLHours = 24

func newBotProcessCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "bot-process",
		Short: "Run the control panel bot and its periodic tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			if err := cfg.ValidateBotProcess(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runBotProcess(cmd.Context(), cfg, logger.New(cfg.LogLevel))
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", "", "env file to load before the environment (default config.env, .env)")
	return cmd
}

func loadConfig(envFile string) (config.Config, error) {
	if envFile != "" {
		return config.Load(envFile)
	}
	return config.Load()
}

// backgroundTask adapts a drain to the scheduler and logs what it did.
func backgroundTask(name string, run func(ctx context.Context) (background.Stats, error), log zerolog.Logger) scheduler.TaskFunc {
	return func(ctx context.Context) error {
		st, err := run(ctx)
		if st.Delivered > 0 || st.Failed > 0 {
			log.Debug().Str("task", name).Int("delivered", st.Delivered).Int("failed", st.Failed).Int("skipped", st.Skipped).Msg("task run")
		}
		return err
	}
}

func runBotProcess(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	m := metrics.Default()

	pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	rc, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rc.Close()

	cursors := store.NewRedisCursorStore(rc, log)
	sessions := store.NewRedisSessionStore(rc, panelSessionTTLHours)

	sup := supervisor.New(cfg.SessionsDir, cfg.WorkerBinary, log,
		supervisor.WithPIDWait(cfg.PIDWait),
		supervisor.WithMetrics(m),
	)
	dispOpts := dispatch.DefaultOptions()
	dispOpts.MaxRetries = cfg.PollMaxRetries
	dispOpts.PollInterval = cfg.PollInterval
	disp := dispatch.New(pg, dispOpts, log, dispatch.WithMetrics(m))

	panel := handlers.NewPanel(pg, sessions, sup, disp, handlers.PanelConfig{
		DefaultAPIID:   cfg.APIID,
		DefaultAPIHash: cfg.APIHash,
	}, log)
	h := handlers.NewHandlers(panel, log)
	if len(cfg.AdminIDs) == 0 && cfg.RegistrationSecret == "" {
		log.Warn().Msg("neither ADMIN_IDS nor REGISTRATION_SECRET is set, no new managers can register")
	}
	mw := middleware.New(pg, middleware.Access{
		AdminIDs: cfg.AdminIDs,
		Secret:   cfg.RegistrationSecret,
	}, log)

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	pollTimeout := 50 * time.Second
	b, err := bot.New(cfg.BotToken, bot.WithHTTPClient(pollTimeout, httpClient))
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	handlerChain := mw.ResolveManager(mw.AnalyzeMessageMiddleware(h.MainHandler))
	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, handlerChain)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, handlerChain)

	sender := notify.NewTelegramSender(b)
	bgCfg := background.Config{
		Batch:      cfg.DrainBatch,
		SweepBatch: cfg.SweepBatch,
		SendDelay:  cfg.SendDelay,
	}
	drain := background.NewNotAcceptedDrain(pg, cursors, sender, bgCfg, log, m)
	sweep := background.NewJobSweep(pg, pg, sender, bgCfg, log, m)
	pack := background.NewAntifloodPack(pg, cursors, sender, bgCfg, log, m)

	sched := scheduler.New(log, scheduler.WithMetrics(m))
	for _, t := range []struct {
		name     string
		interval time.Duration
		run      func(ctx context.Context) (background.Stats, error)
	}{
		{background.NotAcceptedTaskName, cfg.DrainInterval, drain.Run},
		{background.JobSweepTaskName, cfg.SweepInterval, sweep.Run},
		{background.AntifloodPackTaskName, cfg.PackInterval, pack.Run},
	} {
		if err := sched.Every(t.name, t.interval, backgroundTask(t.name, t.run, log)); err != nil {
			return err
		}
	}

	if cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, cfg.MetricsAddr, log)
	}

	sched.Start(ctx)
	defer sched.Stop()

	log.Info().Msg("bot started, press Ctrl+C to stop")
	b.Start(ctx)
	log.Info().Msg("bot stopped")
	return nil
}
