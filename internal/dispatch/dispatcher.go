package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/game"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/source"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/storage"
)

// Sender is the message-send surface. The production implementation
// wraps a discordgo session.
type Sender interface {
	SendChannelMessage(channelID, content string, embed *discordgo.MessageEmbed) error
	// CanMentionRoles reports whether the bot may ping roles in the
	// channel; callers fall back to an unmentioned send when it cannot
	CanMentionRoles(channelID string) bool
}

// Localizer resolves guild-facing strings
type Localizer interface {
	GetString(key, guildID string, params map[string]string) string
	GetRewardString(raw, guildID string) string
}

// Target is one guild's view of a dispatch cycle. Settings may be nil
// when the guild never configured them; such guilds are skipped.
type Target struct {
	Config   *storage.GuildConfig
	Settings *storage.GuildSettings
}

// Failure records one guild's failed send for the resilience layer
type Failure struct {
	GuildID   string
	ChannelID string
	Err       error
}

// Dispatcher fans new codes out to every configured guild
type Dispatcher struct {
	sender Sender
	loc    Localizer
}

// New creates a dispatcher
func New(sender Sender, loc Localizer) *Dispatcher {
	return &Dispatcher{sender: sender, loc: loc}
}

// Dispatch sends every game's new codes to every eligible guild. Guilds
// are processed concurrently and failures are collected, never
// propagated: one guild's dead channel must not block the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, targets []Target, newByGame map[game.ID][]source.Candidate) []Failure {
	if len(newByGame) == 0 || len(targets) == 0 {
		return nil
	}

	var (
		mu       sync.Mutex
		failures []Failure
		wg       sync.WaitGroup
	)

	for _, target := range targets {
		target := target
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, f := range d.dispatchToGuild(ctx, target, newByGame) {
				mu.Lock()
				failures = append(failures, f)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return failures
}

// dispatchToGuild applies the guild's filters and sends one message per
// game that has new codes
func (d *Dispatcher) dispatchToGuild(ctx context.Context, target Target, newByGame map[game.ID][]source.Candidate) []Failure {
	cfg := target.Config
	if cfg.ChannelID == "" {
		return nil
	}
	if target.Settings == nil || !target.Settings.AutoSendEnabled {
		return nil
	}

	var failures []Failure
	for _, g := range game.All() {
		codes := newByGame[g]
		if len(codes) == 0 {
			continue
		}
		if ctx.Err() != nil {
			return failures
		}
		if !target.Settings.WantsGame(g) {
			continue
		}

		content := d.mentionPrefix(cfg, g)
		embed := d.buildEmbed(cfg.GuildID, g, codes)

		if err := d.sender.SendChannelMessage(cfg.ChannelID, content, embed); err != nil {
			slog.Error("Failed to send codes", "guildID", cfg.GuildID, "channelID", cfg.ChannelID, "game", g, "error", err)
			failures = append(failures, Failure{GuildID: cfg.GuildID, ChannelID: cfg.ChannelID, Err: err})
			continue
		}

		slog.Info("Sent new codes", "guildID", cfg.GuildID, "game", g, "count", len(codes))
	}

	return failures
}

// mentionPrefix returns the role ping for a game, or "" when no role is
// configured or the bot may not mention roles in the channel
func (d *Dispatcher) mentionPrefix(cfg *storage.GuildConfig, g game.ID) string {
	roleID := cfg.RoleFor(g)
	if roleID == "" {
		return ""
	}
	if !d.sender.CanMentionRoles(cfg.ChannelID) {
		return ""
	}
	return fmt.Sprintf("<@&%s> ", roleID)
}

// buildEmbed combines all of one game's new codes into a single message
func (d *Dispatcher) buildEmbed(guildID string, g game.ID, codes []source.Candidate) *discordgo.MessageEmbed {
	gameName := d.loc.GetString("games."+string(g), guildID, nil)
	title := d.loc.GetString("commands.listcodes.newCodes", guildID, map[string]string{"game": gameName})
	redeemText := d.loc.GetString("commands.listcodes.redeemButton", guildID, nil)

	lines := make([]string, len(codes))
	for i, c := range codes {
		reward := d.loc.GetRewardString(c.Rewards, guildID)
		lines[i] = fmt.Sprintf("**%s**\n[%s](%s)\n└ %s", c.Code, redeemText, g.RedeemURL(c.Code), reward)
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: strings.Join(lines, "\n\n"),
		Color:       0x00ff00,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}
