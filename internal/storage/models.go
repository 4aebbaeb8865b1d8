package storage

import (
	"time"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/game"
)

// Code is one entry in the code ledger. Identity is (Game, Code) and
// never changes after creation; only IsExpired is mutable.
type Code struct {
	Game      game.ID
	Code      string
	Reward    string
	IsExpired bool
	CreatedAt time.Time
}

// ProblemFlag tracks whether the guild owner has already been alerted
// about a recurring delivery problem
type ProblemFlag struct {
	Notified     bool
	LastNotified *time.Time
	// Permission is set only for the permission-missing class
	Permission string
}

// GuildConfig stores per-server notification configuration
type GuildConfig struct {
	GuildID      string
	ChannelID    string
	GenshinRole  string
	StarRailRole string
	ZenlessRole  string

	ChannelMissing    ProblemFlag
	PermissionMissing ProblemFlag
}

// RoleFor returns the configured mention role for a game, or "" when none is set
func (c *GuildConfig) RoleFor(g game.ID) string {
	switch g {
	case game.Genshin:
		return c.GenshinRole
	case game.StarRail:
		return c.StarRailRole
	case game.Zenless:
		return c.ZenlessRole
	}
	return ""
}

// GuildSettings stores per-server notification preferences
type GuildSettings struct {
	GuildID              string
	AutoSendEnabled      bool
	FavoriteGamesEnabled bool
	GameFilter           map[game.ID]bool
}

// WantsGame reports whether the guild accepts notifications for a game.
// The per-game filter only applies when favorite-games mode is enabled;
// games missing from the filter default to enabled.
func (s *GuildSettings) WantsGame(g game.ID) bool {
	if !s.FavoriteGamesEnabled {
		return true
	}
	enabled, ok := s.GameFilter[g]
	return !ok || enabled
}
