package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lugondev/dex-order-alert/internal/config"
	"github.com/lugondev/dex-order-alert/internal/exchange"
	"github.com/lugondev/dex-order-alert/internal/handler"
	"github.com/lugondev/dex-order-alert/internal/logger"
	intRedis "github.com/lugondev/dex-order-alert/internal/redis"
	"github.com/lugondev/dex-order-alert/internal/telegram"
	"github.com/lugondev/dex-order-alert/internal/web"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

// Application holds all application components
type Application struct {
	cfg          *config.Config
	log          logger.Logger
	redisClient  *intRedis.Client
	watcher      *exchange.Watcher
	notifier     *telegram.Notifier
	bot          *telegram.Bot
	eventHandler *handler.EventHandler
	webServer    *web.Server

	wg sync.WaitGroup
}

func main() {
	flag.Parse()

	if v := os.Getenv("CONFIG_PATH"); v != "" {
		*configPath = v
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", logger.F("error", err))
	}

	log, err := initLogger(cfg)
	if err != nil {
		logger.Fatal("failed to initialize logger", logger.F("error", err))
	}
	log.Info("starting dex-order-alert",
		logger.F("app", cfg.App.Name),
		logger.F("env", cfg.App.Environment),
		logger.F("version", cfg.App.Version),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := &Application{
		cfg: cfg,
		log: log,
	}

	if err := app.initialize(ctx); err != nil {
		log.Fatal("failed to initialize application", logger.F("error", err))
	}

	watchErr := app.start(ctx)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		log.Info("shutdown signal received", logger.F("signal", sig.String()))
	case err := <-watchErr:
		log.Error("order watcher stopped", logger.F("error", err))
	}

	app.shutdown(cancel)
}

// initialize creates all application components
func (app *Application) initialize(ctx context.Context) error {
	cfg := app.cfg
	log := app.log

	var cache exchange.TokenCache = exchange.NewMemoryTokenCache()
	if cfg.IsRedisEnabled() {
		redisClient, err := intRedis.NewClient(ctx, intRedis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		app.redisClient = redisClient
		cache = intRedis.NewTokenCache(redisClient.GetClient(), cfg.Redis.TokenTTL, log)
	}

	watcher, err := exchange.Dial(ctx, exchange.Config{
		NodeURL:           cfg.Node.URL,
		ContractAddress:   cfg.Node.ContractAddress,
		ReconnectInterval: cfg.Node.ReconnectInterval,
		MaxRetries:        cfg.Node.MaxRetries,
		Version:           cfg.App.Version,
	}, cache, log)
	if err != nil {
		return err
	}
	app.watcher = watcher

	app.notifier = telegram.NewNotifier(telegram.Config{
		BotToken:  cfg.Telegram.BotToken,
		ChannelID: cfg.Telegram.ChannelID,
		RateLimit: cfg.Telegram.RateLimit,
		Timeout:   cfg.Telegram.Timeout,
	}, log)

	formatter := telegram.NewFormatter(cfg.Trade.BaseURL)

	app.eventHandler = handler.NewEventHandler(app.notifier, formatter, log, handler.Config{
		SendTimeout: cfg.Telegram.SendTimeout,
	})

	if cfg.Telegram.CommandsEnabled {
		app.bot = telegram.NewBot(app.notifier, formatter, watcher, telegram.BotConfig{}, log)
	}

	if cfg.Web.Enabled {
		app.webServer = web.NewServer(web.Config{
			Port:       cfg.Web.Port,
			AccessLogs: cfg.App.Environment == "development",
		}, watcher, log)
	}

	log.Info("components initialized",
		logger.F("channel", cfg.Telegram.ChannelID),
		logger.F("redis_enabled", cfg.IsRedisEnabled()),
		logger.F("commands_enabled", cfg.Telegram.CommandsEnabled),
		logger.F("web_enabled", cfg.Web.Enabled),
	)

	return nil
}

// start launches the watcher and the optional surfaces. The returned channel
// yields the watcher error if it gives up.
func (app *Application) start(ctx context.Context) <-chan error {
	watchErr := make(chan error, 1)

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.watcher.WatchOrderPlacement(ctx, app.eventHandler); err != nil {
			watchErr <- err
		}
	}()

	if app.bot != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				app.log.Error("bot stopped", logger.F("error", err))
			}
		}()
	}

	if app.webServer != nil {
		go func() {
			if err := app.webServer.Start(); err != nil {
				app.log.Error("web server error", logger.F("error", err))
			}
		}()
	}

	app.log.Info("application started")
	return watchErr
}

// shutdown performs graceful shutdown of all components
func (app *Application) shutdown(cancel context.CancelFunc) {
	app.log.Info("starting graceful shutdown")

	// stops the watcher and the bot
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if app.webServer != nil {
		if err := app.webServer.Shutdown(shutdownCtx); err != nil {
			app.log.Error("error shutting down web server", logger.F("error", err))
		}
	}

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		app.log.Warn("timed out waiting for watcher to stop")
	}

	// let in-flight announcements finish
	if app.eventHandler != nil {
		app.eventHandler.Stop(3 * time.Second)
	}

	if app.watcher != nil {
		app.watcher.Close()
	}

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.log.Error("error closing redis client", logger.F("error", err))
		}
	}

	app.log.Info("graceful shutdown completed")
}

// initLogger initializes the logger based on configuration
func initLogger(cfg *config.Config) (logger.Logger, error) {
	output, err := logger.OpenOutput(cfg.Logger.Output)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:      logger.ParseLevel(cfg.Logger.Level),
		Format:     cfg.Logger.Format,
		Output:     output,
		TimeFormat: cfg.Logger.TimeFormat,
		AppName:    cfg.App.Name,
	})

	logger.SetGlobal(log)
	return log, nil
}
