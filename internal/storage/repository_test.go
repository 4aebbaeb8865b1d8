package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/game"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestInsertCodesAndSnapshot(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.InsertCodes([]*Code{
		{Game: game.Genshin, Code: "ABC123", Reward: "Primogem x60"},
		{Game: game.StarRail, Code: "RAIL1", Reward: ""},
	})
	require.NoError(t, err)

	codes, err := repo.GetAllCodes()
	require.NoError(t, err)
	require.Len(t, codes, 2)

	for _, c := range codes {
		assert.False(t, c.IsExpired)
	}
}

func TestInsertCodesIgnoresDuplicates(t *testing.T) {
	repo := newTestRepo(t)

	first := []*Code{{Game: game.Genshin, Code: "ABC123", Reward: "Primogem x60"}}
	require.NoError(t, repo.InsertCodes(first))
	// Re-inserting the same identity must not error or duplicate
	require.NoError(t, repo.InsertCodes(first))

	codes, err := repo.GetAllCodes()
	require.NoError(t, err)
	assert.Len(t, codes, 1)
}

func TestSetCodesExpired(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.InsertCodes([]*Code{
		{Game: game.Genshin, Code: "ABC123"},
		{Game: game.Genshin, Code: "DEF456"},
		{Game: game.StarRail, Code: "ABC123"},
	}))

	require.NoError(t, repo.SetCodesExpired(game.Genshin, []string{"ABC123"}, true))

	codes, err := repo.GetAllCodes()
	require.NoError(t, err)

	expired := map[string]bool{}
	for _, c := range codes {
		expired[string(c.Game)+"/"+c.Code] = c.IsExpired
	}
	assert.True(t, expired["genshin/ABC123"])
	assert.False(t, expired["genshin/DEF456"])
	// Same code string under another game is a different identity
	assert.False(t, expired["hkrpg/ABC123"])

	// Reactivation flips it back
	require.NoError(t, repo.SetCodesExpired(game.Genshin, []string{"ABC123"}, false))
	codes, err = repo.GetAllCodes()
	require.NoError(t, err)
	for _, c := range codes {
		assert.False(t, c.IsExpired)
	}
}

func TestGuildConfigRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	cfg := &GuildConfig{
		GuildID:     "guild-1",
		ChannelID:   "chan-1",
		GenshinRole: "role-g",
	}
	require.NoError(t, repo.UpsertGuildConfig(cfg))

	got, err := repo.GetGuildConfig("guild-1")
	require.NoError(t, err)
	assert.Equal(t, "chan-1", got.ChannelID)
	assert.Equal(t, "role-g", got.RoleFor(game.Genshin))
	assert.Empty(t, got.RoleFor(game.StarRail))
	assert.False(t, got.ChannelMissing.Notified)
}

func TestProblemFlags(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertGuildConfig(&GuildConfig{GuildID: "guild-1", ChannelID: "chan-1"}))

	require.NoError(t, repo.MarkChannelMissingNotified("guild-1"))
	require.NoError(t, repo.MarkPermissionMissingNotified("guild-1", "SendMessages"))

	got, err := repo.GetGuildConfig("guild-1")
	require.NoError(t, err)
	assert.True(t, got.ChannelMissing.Notified)
	require.NotNil(t, got.ChannelMissing.LastNotified)
	assert.True(t, got.PermissionMissing.Notified)
	assert.Equal(t, "SendMessages", got.PermissionMissing.Permission)

	require.NoError(t, repo.ClearProblemFlags("guild-1"))
	got, err = repo.GetGuildConfig("guild-1")
	require.NoError(t, err)
	assert.False(t, got.ChannelMissing.Notified)
	assert.Nil(t, got.ChannelMissing.LastNotified)
	assert.False(t, got.PermissionMissing.Notified)
	assert.Empty(t, got.PermissionMissing.Permission)
}

func TestUpsertGuildConfigClearsProblemFlags(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertGuildConfig(&GuildConfig{GuildID: "guild-1", ChannelID: "chan-1"}))
	require.NoError(t, repo.MarkChannelMissingNotified("guild-1"))

	// Re-running setup re-validates the config: flags reset
	require.NoError(t, repo.UpsertGuildConfig(&GuildConfig{GuildID: "guild-1", ChannelID: "chan-2"}))

	got, err := repo.GetGuildConfig("guild-1")
	require.NoError(t, err)
	assert.Equal(t, "chan-2", got.ChannelID)
	assert.False(t, got.ChannelMissing.Notified)
}

func TestGuildSettingsDefaults(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.EnsureGuildSettings("guild-1"))

	s, err := repo.GetGuildSettings("guild-1")
	require.NoError(t, err)
	assert.True(t, s.AutoSendEnabled)
	assert.False(t, s.FavoriteGamesEnabled)
	for _, g := range game.All() {
		assert.True(t, s.WantsGame(g))
	}
}

func TestSetGameEnabledSwitchesToFavoriteMode(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.SetGameEnabled("guild-1", game.Genshin, false))

	s, err := repo.GetGuildSettings("guild-1")
	require.NoError(t, err)
	assert.True(t, s.FavoriteGamesEnabled)
	assert.False(t, s.WantsGame(game.Genshin))
	assert.True(t, s.WantsGame(game.StarRail))
	assert.True(t, s.WantsGame(game.Zenless))
}

func TestDeleteGuildData(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertGuildConfig(&GuildConfig{GuildID: "guild-1", ChannelID: "chan-1"}))
	require.NoError(t, repo.EnsureGuildSettings("guild-1"))
	require.NoError(t, repo.SetGuildLanguage("guild-1", "vi"))

	require.NoError(t, repo.DeleteGuildData("guild-1"))

	_, err := repo.GetGuildConfig("guild-1")
	assert.Error(t, err)
	_, err = repo.GetGuildSettings("guild-1")
	assert.Error(t, err)
	lang, err := repo.GetGuildLanguage("guild-1")
	require.NoError(t, err)
	assert.Empty(t, lang)
}

func TestGetAllLoadsEveryGuild(t *testing.T) {
	repo := newTestRepo(t)

	for _, id := range []string{"g1", "g2", "g3"} {
		require.NoError(t, repo.UpsertGuildConfig(&GuildConfig{GuildID: id, ChannelID: "c-" + id}))
		require.NoError(t, repo.EnsureGuildSettings(id))
	}

	configs, err := repo.GetAllGuildConfigs()
	require.NoError(t, err)
	assert.Len(t, configs, 3)

	settings, err := repo.GetAllGuildSettings()
	require.NoError(t, err)
	assert.Len(t, settings, 3)
	assert.Contains(t, settings, "g2")
}
