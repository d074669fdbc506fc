package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"maintbot/internal/config"
	"maintbot/internal/scheduler"
	"maintbot/internal/store"
	"maintbot/internal/timer"
)

// Commands that are allowed outside a guild. Everything that touches timer
// state needs a server context.
var dmAllowedCommands = map[string]bool{
	"get_reminder_interval": true,
}

// Bot owns the Discord session and the command surface. All timer state
// lives in the registry; the bot only translates interactions into registry
// operations and persists after each mutation.
type Bot struct {
	config   *config.Config
	log      *zap.Logger
	registry *timer.Registry
	store    *store.Store
	session  *discordgo.Session
	sched    *scheduler.Scheduler

	shutdownCh chan struct{}
	isShutdown bool
	mu         sync.Mutex
	wg         sync.WaitGroup
}

func New(cfg *config.Config, log *zap.Logger, registry *timer.Registry, st *store.Store) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	return &Bot{
		config:     cfg,
		log:        log,
		registry:   registry,
		store:      st,
		session:    session,
		shutdownCh: make(chan struct{}),
	}, nil
}

// SetScheduler attaches the due-check loop started once the session is up.
func (b *Bot) SetScheduler(s *scheduler.Scheduler) {
	b.sched = s
}

func (b *Bot) Start(ctx context.Context) error {
	b.log.Info("starting maintbot")

	// Register handlers before opening so the first gateway events are
	// not lost.
	b.session.AddHandler(b.handleReady)
	b.session.AddHandler(b.handleGuildCreate)
	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			b.handleCommand(s, i)
		case discordgo.InteractionApplicationCommandAutocomplete:
			b.handleAutocomplete(s, i)
		}
	})

	// Keep trying to open the session until successful.
	for {
		err := b.session.Open()
		if err == nil {
			break
		}
		b.log.Error("error opening Discord session, retrying in 5 seconds", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	b.log.Info("session opened", zap.String("session_id", b.session.State.SessionID))

	for _, guild := range b.session.State.Guilds {
		if err := b.registerGuildCommands(guild.ID); err != nil {
			b.log.Error("error registering commands for guild",
				zap.String("guild_id", guild.ID), zap.Error(err))
		}
	}

	if b.sched != nil {
		go b.sched.Run(ctx)
	}

	b.log.Info("bot is now running")
	<-ctx.Done()
	return b.Shutdown()
}

// Shutdown performs a graceful shutdown of the bot.
func (b *Bot) Shutdown() error {
	b.mu.Lock()
	if b.isShutdown {
		b.mu.Unlock()
		return nil
	}
	b.isShutdown = true
	close(b.shutdownCh)
	b.mu.Unlock()

	b.log.Info("waiting for active handlers to complete")
	b.wg.Wait()

	b.log.Info("closing Discord session")
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("error closing Discord session: %w", err)
	}
	b.log.Info("shutdown complete")
	return nil
}

func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("bot is ready", zap.Int("guilds", len(r.Guilds)))
}

func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	// Fires for every guild on connect and again when the bot is invited
	// somewhere new; registration is idempotent either way.
	b.log.Info("guild available", zap.String("guild_id", g.ID), zap.String("guild", g.Name))
	if err := b.registerGuildCommands(g.ID); err != nil {
		b.log.Error("error registering commands for guild",
			zap.String("guild_id", g.ID), zap.Error(err))
	}
}

// registerGuildCommands registers the slash commands for a guild, retrying
// a few times since command registration right after connect is flaky.
func (b *Bot) registerGuildCommands(guildID string) error {
	const maxRetries = 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := b.registerGuildCommandsOnce(guildID)
		if err == nil {
			return nil
		}
		lastErr = err
		b.log.Warn("command registration attempt failed",
			zap.String("guild_id", guildID), zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	return fmt.Errorf("failed to register commands after %d attempts: %w", maxRetries, lastErr)
}

func (b *Bot) registerGuildCommandsOnce(guildID string) error {
	appID := b.config.Discord.ClientID
	if appID == "" && b.session.State.User != nil {
		appID = b.session.State.User.ID
	}

	for _, cmd := range commands {
		if _, err := b.session.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
			return fmt.Errorf("error creating command %s: %w", cmd.Name, err)
		}
	}
	b.log.Info("commands registered", zap.String("guild_id", guildID), zap.Int("count", len(commands)))
	return nil
}

// persist writes the full current state to the data file. A save failure is
// logged, not surfaced to the user: memory remains the source of truth and
// the next mutation or dirty tick retries the write.
func (b *Bot) persist() {
	settings, timers := b.registry.Export()
	if err := b.store.Save(settings, timers); err != nil {
		b.log.Error("failed to persist state after command", zap.Error(err))
	}
}
