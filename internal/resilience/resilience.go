package resilience

import (
	"errors"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/dispatch"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/storage"
)

// Class is the failure taxonomy for send errors
type Class string

const (
	ClassChannelMissing    Class = "channelMissing"
	ClassPermissionMissing Class = "permissionMissing"
	ClassTenantRemoved     Class = "tenantRemoved"
	ClassUnknown           Class = "unknown"
)

// Classify maps a send error onto the failure taxonomy. For permission
// problems the second return value names the missing permission.
func Classify(err error) (Class, string) {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return ClassUnknown, ""
	}

	switch restErr.Message.Code {
	case discordgo.ErrCodeUnknownChannel:
		return ClassChannelMissing, ""
	case discordgo.ErrCodeMissingPermissions:
		return ClassPermissionMissing, "Send Messages"
	case discordgo.ErrCodeMissingAccess:
		return ClassPermissionMissing, "View Channel"
	case discordgo.ErrCodeUnknownGuild:
		return ClassTenantRemoved, ""
	}
	return ClassUnknown, ""
}

// FlagStore persists per-guild problem flags and tenant removal
type FlagStore interface {
	MarkChannelMissingNotified(guildID string) error
	MarkPermissionMissingNotified(guildID, permission string) error
	DeleteGuildData(guildID string) error
}

// GuildLookup resolves guild metadata for owner alerts. An unknown
// guild answer confirms the bot was removed from it.
type GuildLookup interface {
	// GuildInfo returns the guild's owner id and display name
	GuildInfo(guildID string) (ownerID, name string, err error)
	SendDirectMessage(userID, content string) error
}

// Localizer is the subset of the language manager the handler needs
type Localizer interface {
	GetString(key, guildID string, params map[string]string) string
	Invalidate(guildID string)
}

// Handler turns dispatch failures into at-most-once owner alerts and
// dead-tenant cleanup
type Handler struct {
	flags   FlagStore
	discord GuildLookup
	loc     Localizer
}

// NewHandler creates a resilience handler
func NewHandler(flags FlagStore, discord GuildLookup, loc Localizer) *Handler {
	return &Handler{flags: flags, discord: discord, loc: loc}
}

// Handle processes every failure from one dispatch cycle. configs must
// be the same snapshot the dispatcher used, keyed by guild id, so the
// notified flags reflect the state before this cycle.
func (h *Handler) Handle(failures []dispatch.Failure, configs map[string]*storage.GuildConfig) {
	// A guild failing for several games in one cycle is one problem
	handled := make(map[string]bool, len(failures))

	for _, f := range failures {
		class, permission := Classify(f.Err)

		key := f.GuildID + "/" + string(class)
		if handled[key] {
			continue
		}
		handled[key] = true

		cfg := configs[f.GuildID]

		switch class {
		case ClassTenantRemoved:
			h.cleanup(f.GuildID)
		case ClassChannelMissing:
			if cfg == nil || cfg.ChannelMissing.Notified {
				continue
			}
			h.alertOwner(f.GuildID, class, "")
		case ClassPermissionMissing:
			if cfg == nil || cfg.PermissionMissing.Notified {
				continue
			}
			h.alertOwner(f.GuildID, class, permission)
		default:
			slog.Error("Unclassified send failure", "guildID", f.GuildID, "channelID", f.ChannelID, "error", f.Err)
		}
	}
}

// cleanup removes every record for a guild the bot is no longer in
func (h *Handler) cleanup(guildID string) {
	if err := h.flags.DeleteGuildData(guildID); err != nil {
		slog.Error("Failed to clean up removed guild", "guildID", guildID, "error", err)
		return
	}
	h.loc.Invalidate(guildID)
	slog.Info("Removed guild data cleaned up", "guildID", guildID)
}

// alertOwner sends a one-time direct message to the guild owner and
// records the notification. A removed guild discovered during lookup is
// cleaned up instead of alerted.
func (h *Handler) alertOwner(guildID string, class Class, permission string) {
	ownerID, guildName, err := h.discord.GuildInfo(guildID)
	if err != nil {
		if cls, _ := Classify(err); cls == ClassTenantRemoved {
			h.cleanup(guildID)
			return
		}
		slog.Error("Failed to look up guild owner", "guildID", guildID, "error", err)
		return
	}

	var message string
	switch class {
	case ClassChannelMissing:
		message = h.loc.GetString("alerts.channelMissing", guildID, map[string]string{"guild": guildName})
	case ClassPermissionMissing:
		message = h.loc.GetString("alerts.permissionMissing", guildID, map[string]string{
			"guild":      guildName,
			"permission": permission,
		})
	}

	// DM failures (owner has DMs off) are swallowed; the flag stays
	// unset so a later cycle can try again
	if err := h.discord.SendDirectMessage(ownerID, message); err != nil {
		slog.Debug("Owner alert not delivered", "guildID", guildID, "ownerID", ownerID, "error", err)
		return
	}

	var markErr error
	switch class {
	case ClassChannelMissing:
		markErr = h.flags.MarkChannelMissingNotified(guildID)
	case ClassPermissionMissing:
		markErr = h.flags.MarkPermissionMissingNotified(guildID, permission)
	}
	if markErr != nil {
		slog.Error("Failed to record owner alert", "guildID", guildID, "class", class, "error", markErr)
		return
	}

	slog.Info("Guild owner alerted", "guildID", guildID, "class", class)
}
