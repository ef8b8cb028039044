package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/ltzehan/thermobot/core/app"
	coreconfig "github.com/ltzehan/thermobot/core/config"
	"github.com/ltzehan/thermobot/core/conversation"
	coredatabase "github.com/ltzehan/thermobot/core/database"
	"github.com/ltzehan/thermobot/core/directory"
	"github.com/ltzehan/thermobot/core/fanout"
	"github.com/ltzehan/thermobot/core/i18n"
	"github.com/ltzehan/thermobot/core/logger"
	"github.com/ltzehan/thermobot/core/session"
	"github.com/ltzehan/thermobot/core/telegram"
	tgsender "github.com/ltzehan/thermobot/core/telegram/sender"
	"github.com/ltzehan/thermobot/core/timefmt"
)

// Options control the bootstrap pipeline. Nil hooks use the real
// implementations.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(coreconfig.DatabaseConfig) error
	NewBot     func(cfg *coreconfig.Config, client *http.Client) (*tele.Bot, error)
}

// Result exposes everything the runner needs.
type Result struct {
	Config *coreconfig.Config
	// DB is nil for the memory driver.
	DB         *sqlx.DB
	Store      session.Store
	Strings    *i18n.Strings
	Clock      *timefmt.Clock
	Directory  *directory.Client
	Engine     *conversation.Engine
	Bot        *tele.Bot
	Gateway    *telegram.Gateway
	Dispatcher *tgsender.Dispatcher
	App        *app.Service
}

// Close drains pending replies and releases the database.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	if r.Dispatcher != nil {
		r.Dispatcher.Close()
	}
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// Run initializes the logger, storage, collaborators and the application service.
func Run(opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{Config: cfg}
	if err := openStore(res, opts); err != nil {
		return nil, err
	}

	strs, err := i18n.Load(cfg.Strings.Locale, cfg.Strings.Override)
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("bootstrap: strings: %w", err)
	}
	res.Strings = strs
	res.Clock = timefmt.NewClock(cfg.Schedule.UTCOffsetHours)

	dirClient := telegram.BuildHTTPClient(
		telegram.WithTimeout(time.Duration(cfg.Directory.TimeoutSeconds)*time.Second),
		telegram.WithRetries(1, 500*time.Millisecond),
	)
	res.Directory = directory.New(dirClient, cfg.Directory.BaseURL)
	res.Engine = conversation.New(conversation.Options{
		Directory: res.Directory,
		Submitter: res.Directory,
		Strings:   strs,
		Clock:     res.Clock,
	})

	newBot := opts.NewBot
	if newBot == nil {
		newBot = defaultBot
	}
	bot, err := newBot(cfg, telegram.BuildHTTPClient())
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	res.Bot = bot
	res.Gateway = telegram.NewGateway(bot)
	res.Dispatcher = tgsender.NewDispatcher(tgsender.Options{MaxRetries: 2})

	svc, err := app.New(app.Options{
		Store:      res.Store,
		Engine:     res.Engine,
		Gateway:    res.Gateway,
		Dispatcher: res.Dispatcher,
		Fanout: fanout.Options{
			Workers:     cfg.Fanout.Workers,
			Limiter:     fanout.NewLimiter(cfg.Fanout.RatePerSec),
			SendTimeout: time.Duration(cfg.Fanout.SendTimeoutMS) * time.Millisecond,
		},
		Clock: res.Clock,
		Debug: cfg.Telegram.Debug,
	})
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	res.App = svc

	logger.Component(logger.CompApp).Info("bootstrap complete",
		slog.String("event", "bootstrap"),
		slog.String("run_mode", cfg.Telegram.RunMode),
		slog.String("db_driver", cfg.Database.Driver),
		slog.String("locale", strs.Tag().String()),
	)
	return res, nil
}

func openStore(res *Result, opts Options) error {
	dbCfg := res.Config.Database
	if dbCfg.Driver == coreconfig.DriverMemory {
		res.Store = session.NewMemoryStore()
		logger.Component(logger.CompDB).Warn("using in-memory session store",
			slog.String("event", "db.memory"),
		)
		return nil
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}

	db, err := connect(dbCfg)
	if err != nil {
		return fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	if db == nil {
		return errors.New("bootstrap: connect returned nil database")
	}
	if err := migrate(dbCfg); err != nil {
		_ = db.Close()
		return fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	res.DB = db
	res.Store = session.NewSQLStore(db)
	return nil
}

// defaultBot builds an offline bot for webhook mode, where updates arrive
// over HTTP, and a polling bot otherwise.
func defaultBot(cfg *coreconfig.Config, client *http.Client) (*tele.Bot, error) {
	if cfg.Telegram.RunMode == coreconfig.RunModeLongpoll {
		return telegram.NewBot(cfg.Telegram.Token, telegram.BuildPoller(cfg.Telegram.LongPollTimeoutSeconds), client, false)
	}
	return telegram.NewBot(cfg.Telegram.Token, nil, client, true)
}
