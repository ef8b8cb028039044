package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ltzehan/thermobot/core/bootstrap"
	coreconfig "github.com/ltzehan/thermobot/core/config"
	"github.com/ltzehan/thermobot/core/logger"
	"github.com/ltzehan/thermobot/core/scheduler"
	coretelegram "github.com/ltzehan/thermobot/core/telegram"
	"github.com/ltzehan/thermobot/core/telegram/commands"
	"github.com/ltzehan/thermobot/core/telegram/router"
	"github.com/ltzehan/thermobot/core/webhook"
)

const shutdownTimeout = 15 * time.Second

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(cfg *coreconfig.Config) (*bootstrap.Result, error)

	ShutdownLogger func() error
}

// Run loads configuration, bootstraps the app, and serves until SIGINT/SIGTERM.
func Run(opts Options) error {
	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = coreconfig.Load
	}
	boot := opts.Bootstrap
	if boot == nil {
		boot = func(cfg *coreconfig.Config) (*bootstrap.Result, error) {
			return bootstrap.Run(bootstrap.Options{Config: cfg})
		}
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}
	if cfgPath == "" {
		return fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	startedAt := time.Now()
	res, err := boot(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer func() {
		if err := res.Close(); err != nil {
			log.Printf("resource shutdown error: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sched, err := startScheduler(cfg, res)
	if err != nil {
		return fmt.Errorf("cmd: scheduler: %w", err)
	}
	if sched != nil {
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			sched.Stop(stopCtx)
		}()
	}

	appLog := logger.Component(logger.CompApp)
	ready := func() {
		appLog.Info("app ready",
			slog.String("event", "ready"),
			slog.String("run_mode", cfg.Telegram.RunMode),
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
	}

	if cfg.Telegram.RunMode == coreconfig.RunModeLongpoll {
		err := coretelegram.RunPolling(ctx, res.Bot, coretelegram.PollOptions{
			Middlewares: coretelegram.DefaultMiddlewares(cfg, nil),
			Routes:      router.MessageRoutes(res.App.Handle),
			Commands:    commands.Default,
			Ready:       ready,
		})
		appLog.Info("shutting down...", slog.String("event", "shutdown"))
		return err
	}
	return serveWebhook(ctx, cfg, res, ready)
}

func serveWebhook(ctx context.Context, cfg *coreconfig.Config, res *bootstrap.Result, ready func()) error {
	handler := webhook.NewRouter(res.App, res.Gateway, webhook.Options{
		Token:     cfg.Telegram.Token,
		PublicURL: cfg.Webhook.URL,
		Debug:     cfg.Telegram.Debug,
	})
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.TG.Info("webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", "webhook"),
			slog.String("addr", srv.Addr),
		)
		errCh <- srv.ListenAndServe()
	}()
	ready()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("cmd: http server: %w", err)
	case <-ctx.Done():
	}

	logger.Component(logger.CompApp).Info("shutting down...", slog.String("event", "shutdown"))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("cmd: http shutdown: %w", err)
	}
	return nil
}

func startScheduler(cfg *coreconfig.Config, res *bootstrap.Result) (*scheduler.Scheduler, error) {
	if cfg.Schedule.Disabled {
		logger.Component(logger.CompScheduler).Info("scheduler disabled", slog.String("event", "scheduler.disabled"))
		return nil, nil
	}
	s := scheduler.New(res.Clock.Location())
	jobs := []scheduler.Job{
		{
			Name:    "remind",
			Spec:    cfg.Schedule.RemindSpec,
			Timeout: 30 * time.Minute,
			Run: func(ctx context.Context, now time.Time) error {
				_, err := res.App.Remind(ctx, now)
				return err
			},
		},
		{
			Name:    "rollover",
			Spec:    cfg.Schedule.RolloverSpec,
			Timeout: 5 * time.Minute,
			Run: func(ctx context.Context, now time.Time) error {
				_, err := res.App.Rollover(ctx, now)
				return err
			},
		},
	}
	for _, job := range jobs {
		if err := s.Add(job); err != nil {
			return nil, err
		}
	}
	s.Start()
	return s, nil
}
