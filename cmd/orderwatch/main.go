// Command orderwatch prints order announcements to stdout instead of posting
// them to Telegram.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lugondev/dex-order-alert/internal/config"
	"github.com/lugondev/dex-order-alert/internal/exchange"
	"github.com/lugondev/dex-order-alert/internal/handler"
	"github.com/lugondev/dex-order-alert/internal/logger"
	"github.com/lugondev/dex-order-alert/internal/telegram"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadWatchOnly(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", logger.F("error", err))
	}

	// stdout carries the announcements
	log := logger.New(logger.Config{
		Level:      logger.ParseLevel(cfg.Logger.Level),
		Format:     "text",
		Output:     os.Stderr,
		TimeFormat: time.Kitchen,
		AppName:    "orderwatch",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := exchange.Dial(ctx, exchange.Config{
		NodeURL:           cfg.Node.URL,
		ContractAddress:   cfg.Node.ContractAddress,
		ReconnectInterval: cfg.Node.ReconnectInterval,
		MaxRetries:        cfg.Node.MaxRetries,
		Version:           cfg.App.Version,
	}, exchange.NewMemoryTokenCache(), log)
	if err != nil {
		log.Fatal("failed to connect", logger.F("error", err))
	}
	defer watcher.Close()

	if about, err := watcher.GetAbout(ctx); err == nil {
		log.Info("watching",
			logger.F("network", about.NetworkID),
			logger.F("block", about.BlockNumber),
			logger.F("node", about.NodeInfo),
		)
	}

	h := handler.NewEventHandler(
		handler.NewWriterNotifier(os.Stdout),
		telegram.NewFormatter(cfg.Trade.BaseURL),
		log,
		handler.Config{},
	)

	err = watcher.WatchOrderPlacement(ctx, h)
	h.Stop(time.Second)
	if err != nil {
		log.Fatal("order watcher stopped", logger.F("error", err))
	}
}
