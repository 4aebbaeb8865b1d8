package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/config"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/diff"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/discord"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/dispatch"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/lang"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/poller"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/resilience"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/source"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/storage"
)

// Bot represents the Discord bot instance
type Bot struct {
	config   *config.Config
	session  *discordgo.Session
	repo     *storage.Repository
	langs    *lang.Manager
	fetcher  *source.Client
	poller   *poller.Poller
	commands []*discordgo.ApplicationCommand
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Set intents
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Load locales
	langs, err := lang.NewManager(repo)
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}

	b := &Bot{
		config:  cfg,
		session: session,
		repo:    repo,
		langs:   langs,
		fetcher: source.NewClient(cfg.CodesAPIBase),
	}

	// Register event handlers
	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and starts the code check poller
func (b *Bot) Start(ctx context.Context) error {
	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	// Wire the cycle: fetch → diff → dispatch → resilience
	client := discord.NewClient(b.session)
	cycle := poller.NewCycle(
		b.fetcher,
		diff.NewEngine(b.repo),
		b.repo,
		dispatch.New(client, b.langs),
		resilience.NewHandler(b.repo, client, b.langs),
	)

	b.poller = poller.New(cycle, time.Duration(b.config.PollIntervalSeconds)*time.Second)
	go b.poller.Start(ctx)

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	// Stop the poller
	if b.poller != nil {
		b.poller.Stop()
	}

	// Close storage
	if b.repo != nil {
		b.repo.Close()
	}

	// Close Discord session
	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
	b.session.AddHandler(b.handleGuildDelete)
}

// handleGuildDelete cleans up all tenant records when the bot is
// removed from a guild. An unavailable guild is a Discord outage, not
// a removal, and keeps its data.
func (b *Bot) handleGuildDelete(s *discordgo.Session, gd *discordgo.GuildDelete) {
	if gd.Unavailable {
		return
	}

	if err := b.repo.DeleteGuildData(gd.ID); err != nil {
		slog.Error("Failed to clean up removed guild", "guildID", gd.ID, "error", err)
		return
	}
	b.langs.Invalidate(gd.ID)
	slog.Info("Guild removed, data cleaned up", "guildID", gd.ID)
}

// handleInteraction processes slash command interactions
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	switch data.Name {
	case "setup":
		b.handleSetup(s, i)
	case "deletesetup":
		b.handleDeleteSetup(s, i)
	case "toggleautosend":
		b.handleToggleAutoSend(s, i)
	case "togglegame":
		b.handleToggleGame(s, i)
	case "listcodes":
		b.handleListCodes(s, i)
	case "postcode":
		b.handlePostCode(s, i)
	case "setlang":
		b.handleSetLang(s, i)
	case "about":
		b.handleAbout(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}
