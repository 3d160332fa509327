package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/pv/gameserver-status-bot/internal/api"
	"github.com/pv/gameserver-status-bot/internal/artifact"
	"github.com/pv/gameserver-status-bot/internal/bot"
	"github.com/pv/gameserver-status-bot/internal/config"
	"github.com/pv/gameserver-status-bot/internal/discord"
	"github.com/pv/gameserver-status-bot/internal/display"
	"github.com/pv/gameserver-status-bot/internal/logger"
	"github.com/pv/gameserver-status-bot/internal/poller"
	"github.com/pv/gameserver-status-bot/internal/stats"
	"github.com/pv/gameserver-status-bot/internal/storage"
)

const readyTimeout = 30 * time.Second

func main() {
	// .env не обязателен
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Failed to parse configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	level, _ := logger.ParseLevel(cfg.Log.Level)
	logger.Init(cfg.Log.Format, level)

	// Create storage
	store, err := storage.Open(storage.Type(cfg.State.Storage), cfg.State.Path)
	if err != nil {
		log.Fatalf("Failed to open state storage: %v", err)
	}
	defer store.Close()
	logger.Info("State storage ready", "type", cfg.State.Storage, "path", cfg.State.Path)

	fetcher, err := newFetcher(cfg)
	if err != nil {
		log.Fatalf("Failed to create stats fetcher: %v", err)
	}

	formatter := display.New(display.Options{
		Title:      cfg.Display.EmbedTitle,
		Label:      cfg.Display.PresenceLabel,
		MaxPlayers: cfg.Display.MaxPlayers,
		Overflow:   display.OverflowPolicy(cfg.Display.Overflow),
	})

	client, err := discord.New(discord.Config{
		Token:        cfg.Discord.Token,
		ActivityType: cfg.Discord.ActivityType,
	})
	if err != nil {
		log.Fatalf("Failed to create Discord client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// триггеры стартуют только после Ready
	if err := client.Connect(ctx, readyTimeout); err != nil {
		log.Fatalf("Failed to connect to Discord: %v", err)
	}
	defer client.Close()

	tracker := artifact.NewTracker(cfg.ChannelID(), cfg.Display.EmbedTitle, client, store)
	b := bot.New(fetcher, formatter, tracker, client)
	b.TickTimeout = tickTimeout(cfg)

	sched := poller.New()
	if err := sched.Add(bot.TickStatus, cfg.StatusInterval(), b.UpdateStatus); err != nil {
		log.Fatalf("Failed to schedule status updates: %v", err)
	}
	if err := sched.Add(bot.TickPlayers, cfg.PlayerListInterval(), b.UpdatePlayerList); err != nil {
		log.Fatalf("Failed to schedule player list updates: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	logger.Info("Status bot started",
		"source", cfg.Source,
		"channel", cfg.ChannelID().String(),
		"status_interval", cfg.StatusInterval(),
		"playerlist_interval", cfg.PlayerListInterval(),
	)

	var httpServer *http.Server
	if cfg.Health.Addr != "" {
		handlers := api.NewHandlers(b, sched, bot.TickStatus, bot.TickPlayers)
		httpServer = &http.Server{
			Addr:              cfg.Health.Addr,
			Handler:           handlers.Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("Starting health server", "addr", cfg.Health.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Health server failed", "error", err)
			}
		}()
	}

	<-ctx.Done()

	logger.Info("Shutting down...")
	sched.Stop()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Health server shutdown error", "error", err)
		}
		cancel()
	}

	for _, name := range []string{bot.TickStatus, bot.TickPlayers} {
		st := b.Status(name)
		logger.Info("Tick summary", "tick", name, "runs", st.Runs, "consecutive_failures", st.ConsecutiveFailures)
	}
	logger.Info("Status bot stopped")
}

func newFetcher(cfg *config.Config) (stats.Fetcher, error) {
	switch cfg.Source {
	case config.SourceFTP:
		return stats.NewFileFetcher(stats.FTPConfig{
			Host:         cfg.FTP.Host,
			Port:         cfg.FTP.Port,
			User:         cfg.FTP.User,
			Password:     cfg.FTP.Password,
			FilePath:     cfg.FTP.FilePath,
			PlayersField: cfg.FTP.PlayersField,
			MaxPlayers:   cfg.Display.MaxPlayers,
		})
	default:
		return stats.NewA2SFetcher(stats.A2SConfig{
			Host:    cfg.A2S.Host,
			Port:    cfg.A2S.Port,
			Timeout: cfg.QueryTimeout(),
		})
	}
}

// tickTimeout не даёт зависшему тику пережить собственный интервал
func tickTimeout(cfg *config.Config) time.Duration {
	d := cfg.StatusInterval()
	if p := cfg.PlayerListInterval(); p < d {
		d = p
	}
	return d
}
