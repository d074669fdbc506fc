package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"maintbot/internal/bot"
	"maintbot/internal/config"
	"maintbot/internal/logger"
	"maintbot/internal/scheduler"
	"maintbot/internal/store"
	"maintbot/internal/timer"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	zlog, err := logger.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	cfg, err := config.Load(zlog)
	if err != nil {
		zlog.Fatal("failed to load config", zap.Error(err))
	}
	// The bootstrap logger only saw the environment; honor the configured
	// level now that the file is loaded.
	if cfg.LogLevel != "" && cfg.LogLevel != os.Getenv("LOG_LEVEL") {
		if rebuilt, err := logger.New(cfg.LogLevel); err == nil {
			zlog = rebuilt
		}
	}

	// Restore the full state from the data file; a missing or damaged
	// file degrades to defaults rather than failing startup.
	st := store.New(cfg.Storage.DataFile, zlog)
	settings, timers := st.Load(timer.Settings{ReminderRepeatDays: cfg.Reminders.RepeatDays})
	registry := timer.NewRegistry(settings, timers)

	discordBot, err := bot.New(cfg, zlog, registry, st)
	if err != nil {
		zlog.Fatal("failed to create bot", zap.Error(err))
	}

	checkInterval := time.Duration(cfg.Reminders.CheckIntervalSeconds) * time.Second
	discordBot.SetScheduler(scheduler.New(registry, st, discordBot, zlog, checkInterval))

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		s := <-signals
		zlog.Info("received signal", zap.String("signal", s.String()))
		cancel()
	}()

	if err := discordBot.Start(ctx); err != nil && err != context.Canceled {
		zlog.Error("error running bot", zap.Error(err))
		os.Exit(1)
	}
	zlog.Info("application shutdown complete")
}
