package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/game"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/storage"
)

const botVersion = "2.1.0"

// requiredChannelPermissions must hold in the notification channel for
// setup to succeed
const requiredChannelPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionEmbedLinks

// buildGameChoices creates the game selection choices for slash commands
func buildGameChoices() []*discordgo.ApplicationCommandOptionChoice {
	games := game.All()
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(games))
	for i, g := range games {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{
			Name:  g.Name(),
			Value: string(g),
		}
	}
	return choices
}

// buildLanguageChoices creates the language selection choices
func (b *Bot) buildLanguageChoices() []*discordgo.ApplicationCommandOptionChoice {
	codes := b.langs.Available()
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(codes))
	for i, code := range codes {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{Name: code, Value: code}
	}
	return choices
}

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	adminOnly := int64(discordgo.PermissionAdministrator)

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "setup",
			Description:              "Setup roles and channel for code notifications",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "Channel for code notifications",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "genshin_role",
					Description: "Role for Genshin Impact notifications",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "hsr_role",
					Description: "Role for Honkai: Star Rail notifications",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "zzz_role",
					Description: "Role for Zenless Zone Zero notifications",
					Required:    false,
				},
			},
		},
		{
			Name:                     "deletesetup",
			Description:              "Delete all bot configuration for this server",
			DefaultMemberPermissions: &adminOnly,
		},
		{
			Name:                     "toggleautosend",
			Description:              "Enable/disable automatic code sending",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Enable or disable auto-send",
					Required:    true,
				},
			},
		},
		{
			Name:                     "togglegame",
			Description:              "Enable/disable notifications for specific games",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "game",
					Description: "Select game",
					Required:    true,
					Choices:     buildGameChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Enable or disable notifications",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "mention_role",
					Description: "Role to mention (optional)",
					Required:    false,
				},
			},
		},
		{
			Name:        "listcodes",
			Description: "List all currently active codes for a game",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "game",
					Description: "Select game",
					Required:    true,
					Choices:     buildGameChoices(),
				},
			},
		},
		{
			Name:                     "postcode",
			Description:              "Post redemption codes to the notification channel",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "game",
					Description: "Select game",
					Required:    true,
					Choices:     buildGameChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "codes",
					Description: "One or more codes, separated by spaces",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message",
					Description: "Additional message (optional)",
					Required:    false,
				},
			},
		},
		{
			Name:                     "setlang",
			Description:              "Set the bot language for this server",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "language",
					Description: "Select language",
					Required:    true,
					Choices:     b.buildLanguageChoices(),
				},
			},
		},
		{
			Name:        "about",
			Description: "About this bot",
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string = global command
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// respondEphemeral sends an immediate ephemeral reply
func (b *Bot) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Error("Failed to respond to interaction", "error", err)
	}
}

// deferEphemeral acknowledges the interaction so a slow handler can
// edit the response later
func (b *Bot) deferEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Error("Failed to defer interaction", "error", err)
	}
}

// editResponse updates a deferred interaction response
func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	if err != nil {
		slog.Error("Failed to edit interaction response", "error", err)
	}
}

// editResponseEmbed updates a deferred interaction response with an embed
func (b *Bot) editResponseEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		slog.Error("Failed to edit interaction response", "error", err)
	}
}

// commandOptions maps option names to their values
func commandOptions(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

// handleSetup handles the /setup command
func (b *Bot) handleSetup(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := commandOptions(i)

	channel := opts["channel"].ChannelValue(s)
	if channel == nil {
		b.respondEphemeral(s, i, b.langs.GetString("commands.setup.error", i.GuildID, nil))
		return
	}

	// Validate the bot can actually deliver to the chosen channel
	perms, err := s.State.UserChannelPermissions(s.State.User.ID, channel.ID)
	if err == nil && perms&requiredChannelPermissions != requiredChannelPermissions {
		b.respondEphemeral(s, i, b.langs.GetString("commands.setup.permissionsError", i.GuildID, nil))
		return
	}

	cfg := &storage.GuildConfig{
		GuildID:   i.GuildID,
		ChannelID: channel.ID,
	}
	if opt, ok := opts["genshin_role"]; ok {
		cfg.GenshinRole = opt.RoleValue(s, i.GuildID).ID
	}
	if opt, ok := opts["hsr_role"]; ok {
		cfg.StarRailRole = opt.RoleValue(s, i.GuildID).ID
	}
	if opt, ok := opts["zzz_role"]; ok {
		cfg.ZenlessRole = opt.RoleValue(s, i.GuildID).ID
	}

	// Upsert re-validates the config and clears any problem flags
	if err := b.repo.UpsertGuildConfig(cfg); err != nil {
		slog.Error("Failed to save guild config", "guildID", i.GuildID, "error", err)
		b.respondEphemeral(s, i, b.langs.GetString("commands.setup.error", i.GuildID, nil))
		return
	}
	if err := b.repo.EnsureGuildSettings(i.GuildID); err != nil {
		slog.Error("Failed to create guild settings", "guildID", i.GuildID, "error", err)
	}

	b.respondEphemeral(s, i, b.langs.GetString("commands.setup.success", i.GuildID, nil))
}

// handleDeleteSetup handles the /deletesetup command
func (b *Bot) handleDeleteSetup(s *discordgo.Session, i *discordgo.InteractionCreate) {
	// Resolve the goodbye text before the language row disappears
	success := b.langs.GetString("commands.deletesetup.success", i.GuildID, nil)

	if err := b.repo.DeleteGuildData(i.GuildID); err != nil {
		slog.Error("Failed to delete guild data", "guildID", i.GuildID, "error", err)
		b.respondEphemeral(s, i, b.langs.GetString("commands.deletesetup.error", i.GuildID, nil))
		return
	}
	b.langs.Invalidate(i.GuildID)

	b.respondEphemeral(s, i, success)
}

// handleToggleAutoSend handles the /toggleautosend command
func (b *Bot) handleToggleAutoSend(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := commandOptions(i)
	enabled := opts["enabled"].BoolValue()

	if err := b.repo.SetAutoSend(i.GuildID, enabled); err != nil {
		slog.Error("Failed to set auto-send", "guildID", i.GuildID, "error", err)
		b.respondEphemeral(s, i, b.langs.GetString("commands.toggleautosend.error", i.GuildID, nil))
		return
	}

	status := b.langs.GetString("common.disabled", i.GuildID, nil)
	if enabled {
		status = b.langs.GetString("common.enabled", i.GuildID, nil)
	}
	b.respondEphemeral(s, i, b.langs.GetString("commands.toggleautosend.success", i.GuildID, map[string]string{"status": status}))
}

// handleToggleGame handles the /togglegame command
func (b *Bot) handleToggleGame(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := commandOptions(i)

	g, err := game.Parse(opts["game"].StringValue())
	if err != nil {
		b.respondEphemeral(s, i, b.langs.GetString("commands.togglegame.error", i.GuildID, nil))
		return
	}
	enabled := opts["enabled"].BoolValue()

	if opt, ok := opts["mention_role"]; ok {
		role := opt.RoleValue(s, i.GuildID)
		if err := b.repo.SetGameRole(i.GuildID, g, role.ID); err != nil {
			slog.Error("Failed to set game role", "guildID", i.GuildID, "game", g, "error", err)
		}
	}

	if err := b.repo.SetGameEnabled(i.GuildID, g, enabled); err != nil {
		slog.Error("Failed to toggle game", "guildID", i.GuildID, "game", g, "error", err)
		b.respondEphemeral(s, i, b.langs.GetString("commands.togglegame.error", i.GuildID, nil))
		return
	}

	gameName := b.langs.GetString("games."+string(g), i.GuildID, nil)
	key := "commands.togglegame.disabled"
	if enabled {
		key = "commands.togglegame.enabled"
	}
	b.respondEphemeral(s, i, b.langs.GetString(key, i.GuildID, map[string]string{"game": gameName}))
}

// handleListCodes handles the /listcodes command
func (b *Bot) handleListCodes(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := commandOptions(i)

	g, err := game.Parse(opts["game"].StringValue())
	if err != nil {
		b.respondEphemeral(s, i, b.langs.GetString("commands.listcodes.fetchError", i.GuildID, nil))
		return
	}

	b.deferEphemeral(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	candidates, err := b.fetcher.Fetch(ctx, g)
	if err != nil {
		slog.Error("Failed to fetch codes", "game", g, "error", err)
		b.editResponse(s, i, b.langs.GetString("commands.listcodes.fetchError", i.GuildID, nil))
		return
	}

	gameName := b.langs.GetString("games."+string(g), i.GuildID, nil)
	redeemText := b.langs.GetString("commands.listcodes.redeemButton", i.GuildID, nil)

	var lines []string
	for _, c := range candidates {
		if !c.Active() {
			continue
		}
		reward := b.langs.GetRewardString(c.Rewards, i.GuildID)
		lines = append(lines, fmt.Sprintf("**%s**\n[%s](%s)\n└ %s", c.Code, redeemText, g.RedeemURL(c.Code), reward))
	}

	if len(lines) == 0 {
		b.editResponse(s, i, b.langs.GetString("commands.listcodes.noCodes", i.GuildID, map[string]string{"game": gameName}))
		return
	}

	b.editResponseEmbed(s, i, &discordgo.MessageEmbed{
		Title:       b.langs.GetString("commands.listcodes.title", i.GuildID, map[string]string{"game": gameName}),
		Description: strings.Join(lines, "\n\n"),
		Color:       0x00ff00,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// handlePostCode handles the /postcode command
func (b *Bot) handlePostCode(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := commandOptions(i)

	g, err := game.Parse(opts["game"].StringValue())
	if err != nil {
		b.respondEphemeral(s, i, b.langs.GetString("commands.postcode.error", i.GuildID, nil))
		return
	}

	cfg, err := b.repo.GetGuildConfig(i.GuildID)
	if err != nil || cfg.ChannelID == "" {
		b.respondEphemeral(s, i, b.langs.GetString("commands.postcode.noChannel", i.GuildID, nil))
		return
	}

	gameName := b.langs.GetString("games."+string(g), i.GuildID, nil)
	redeemText := b.langs.GetString("commands.listcodes.redeemButton", i.GuildID, nil)

	var lines []string
	for _, code := range strings.Fields(opts["codes"].StringValue()) {
		lines = append(lines, fmt.Sprintf("**%s**\n[%s](%s)", code, redeemText, g.RedeemURL(code)))
	}
	if opt, ok := opts["message"]; ok {
		lines = append(lines, opt.StringValue())
	}

	content := ""
	if roleID := cfg.RoleFor(g); roleID != "" {
		content = fmt.Sprintf("<@&%s> ", roleID)
	}

	_, err = s.ChannelMessageSendComplex(cfg.ChannelID, &discordgo.MessageSend{
		Content: content,
		Embeds: []*discordgo.MessageEmbed{{
			Title:       b.langs.GetString("commands.listcodes.newCodes", i.GuildID, map[string]string{"game": gameName}),
			Description: strings.Join(lines, "\n\n"),
			Color:       0x00ff00,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	})
	if err != nil {
		slog.Error("Failed to post codes", "guildID", i.GuildID, "error", err)
		b.respondEphemeral(s, i, b.langs.GetString("commands.postcode.error", i.GuildID, nil))
		return
	}

	b.respondEphemeral(s, i, b.langs.GetString("commands.postcode.success", i.GuildID, nil))
}

// handleSetLang handles the /setlang command
func (b *Bot) handleSetLang(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := commandOptions(i)
	code := opts["language"].StringValue()

	if !b.langs.Supported(code) {
		b.respondEphemeral(s, i, b.langs.GetString("commands.setlang.invalid", i.GuildID, map[string]string{"language": code}))
		return
	}

	if err := b.repo.SetGuildLanguage(i.GuildID, code); err != nil {
		slog.Error("Failed to set guild language", "guildID", i.GuildID, "error", err)
		b.respondEphemeral(s, i, b.langs.GetString("commands.setlang.error", i.GuildID, nil))
		return
	}
	// Drop the cached preference so the reply already uses the new language
	b.langs.Invalidate(i.GuildID)

	b.respondEphemeral(s, i, b.langs.GetString("commands.setlang.success", i.GuildID, map[string]string{"language": code}))
}

// handleAbout handles the /about command
func (b *Bot) handleAbout(s *discordgo.Session, i *discordgo.InteractionCreate) {
	games := make([]string, 0, len(game.All()))
	for _, g := range game.All() {
		games = append(games, g.Name())
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{{
				Title: "HoYo Code Sender",
				Description: "Automatically delivers new redemption codes for " +
					strings.Join(games, ", ") + " to your server.",
				Color: 0x00b0f4,
				Fields: []*discordgo.MessageEmbedField{
					{Name: "Version", Value: botVersion, Inline: true},
					{Name: "Languages", Value: strings.Join(b.langs.Available(), ", "), Inline: true},
				},
			}},
		},
	})
	if err != nil {
		slog.Error("Failed to respond to interaction", "error", err)
	}
}
