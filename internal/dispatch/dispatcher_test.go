package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/game"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/source"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/storage"
)

type sentMessage struct {
	channelID string
	content   string
	embed     *discordgo.MessageEmbed
}

type fakeSender struct {
	mu          sync.Mutex
	sent        []sentMessage
	failChannel map[string]error
	noMentions  bool
}

func (f *fakeSender) SendChannelMessage(channelID, content string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failChannel[channelID]; ok {
		return err
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, content: content, embed: embed})
	return nil
}

func (f *fakeSender) CanMentionRoles(channelID string) bool {
	return !f.noMentions
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// passthroughLoc echoes keys and raw rewards, like an unresolved locale
type passthroughLoc struct{}

func (passthroughLoc) GetString(key, guildID string, params map[string]string) string { return key }
func (passthroughLoc) GetRewardString(raw, guildID string) string                     { return raw }

func defaultSettings(guildID string) *storage.GuildSettings {
	return &storage.GuildSettings{
		GuildID:         guildID,
		AutoSendEnabled: true,
		GameFilter:      map[game.ID]bool{},
	}
}

func genshinCodes(codes ...string) map[game.ID][]source.Candidate {
	cands := make([]source.Candidate, len(codes))
	for i, c := range codes {
		cands[i] = source.Candidate{Code: c, Status: source.StatusOK}
	}
	return map[game.ID][]source.Candidate{game.Genshin: cands}
}

func TestDispatchSendsSingleCombinedMessage(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, passthroughLoc{})

	targets := []Target{{
		Config:   &storage.GuildConfig{GuildID: "g1", ChannelID: "c1"},
		Settings: defaultSettings("g1"),
	}}

	failures := d.Dispatch(context.Background(), targets, genshinCodes("ABC123", "DEF456"))
	require.Empty(t, failures)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "c1", msgs[0].channelID)
	assert.Empty(t, msgs[0].content) // no role configured, no mention
	assert.Contains(t, msgs[0].embed.Description, "ABC123")
	assert.Contains(t, msgs[0].embed.Description, "DEF456")
	assert.Contains(t, msgs[0].embed.Description, "https://genshin.hoyoverse.com/en/gift?code=ABC123")
}

func TestDispatchMentionsConfiguredRole(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, passthroughLoc{})

	targets := []Target{{
		Config:   &storage.GuildConfig{GuildID: "g1", ChannelID: "c1", GenshinRole: "role-9"},
		Settings: defaultSettings("g1"),
	}}

	d.Dispatch(context.Background(), targets, genshinCodes("ABC123"))

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "<@&role-9> ", msgs[0].content)
}

func TestDispatchDropsMentionWithoutPermission(t *testing.T) {
	sender := &fakeSender{noMentions: true}
	d := New(sender, passthroughLoc{})

	targets := []Target{{
		Config:   &storage.GuildConfig{GuildID: "g1", ChannelID: "c1", GenshinRole: "role-9"},
		Settings: defaultSettings("g1"),
	}}

	failures := d.Dispatch(context.Background(), targets, genshinCodes("ABC123"))
	require.Empty(t, failures)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].content)
	assert.Contains(t, msgs[0].embed.Description, "ABC123")
}

func TestDispatchSkipsAutoSendDisabled(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, passthroughLoc{})

	off := defaultSettings("g1")
	off.AutoSendEnabled = false

	targets := []Target{
		{Config: &storage.GuildConfig{GuildID: "g1", ChannelID: "c1"}, Settings: off},
		{Config: &storage.GuildConfig{GuildID: "g2", ChannelID: "c2"}, Settings: nil},
	}

	d.Dispatch(context.Background(), targets, genshinCodes("ABC123"))
	assert.Empty(t, sender.messages())
}

func TestDispatchHonorsFavoriteGamesFilter(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, passthroughLoc{})

	settings := &storage.GuildSettings{
		GuildID:              "g1",
		AutoSendEnabled:      true,
		FavoriteGamesEnabled: true,
		GameFilter: map[game.ID]bool{
			game.Genshin:  false,
			game.StarRail: true,
		},
	}
	targets := []Target{{
		Config:   &storage.GuildConfig{GuildID: "g1", ChannelID: "c1"},
		Settings: settings,
	}}

	newByGame := map[game.ID][]source.Candidate{
		game.Genshin:  {{Code: "GEN1", Status: source.StatusOK}},
		game.StarRail: {{Code: "RAIL1", Status: source.StatusOK}},
	}

	d.Dispatch(context.Background(), targets, newByGame)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].embed.Description, "RAIL1")
	assert.NotContains(t, msgs[0].embed.Description, "GEN1")
}

func TestDispatchIsolatesTenantFailures(t *testing.T) {
	sender := &fakeSender{failChannel: map[string]error{
		"c1": errors.New("channel gone"),
	}}
	d := New(sender, passthroughLoc{})

	targets := []Target{
		{Config: &storage.GuildConfig{GuildID: "g1", ChannelID: "c1"}, Settings: defaultSettings("g1")},
		{Config: &storage.GuildConfig{GuildID: "g2", ChannelID: "c2"}, Settings: defaultSettings("g2")},
	}

	failures := d.Dispatch(context.Background(), targets, genshinCodes("ABC123"))

	require.Len(t, failures, 1)
	assert.Equal(t, "g1", failures[0].GuildID)
	assert.Equal(t, "c1", failures[0].ChannelID)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "c2", msgs[0].channelID)
}

func TestDispatchManyTenantsAllReceive(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, passthroughLoc{})

	var targets []Target
	for _, id := range []string{"g1", "g2", "g3", "g4", "g5"} {
		targets = append(targets, Target{
			Config:   &storage.GuildConfig{GuildID: id, ChannelID: "chan-" + id},
			Settings: defaultSettings(id),
		})
	}

	failures := d.Dispatch(context.Background(), targets, genshinCodes("ABC123"))
	require.Empty(t, failures)
	assert.Len(t, sender.messages(), 5)
}

func TestDispatchNoNewCodesNoSends(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, passthroughLoc{})

	targets := []Target{{
		Config:   &storage.GuildConfig{GuildID: "g1", ChannelID: "c1"},
		Settings: defaultSettings("g1"),
	}}

	failures := d.Dispatch(context.Background(), targets, nil)
	assert.Empty(t, failures)
	assert.Empty(t, sender.messages())
}

func TestBuildEmbedUsesLocalizedRewards(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, passthroughLoc{})

	embed := d.buildEmbed("g1", game.StarRail, []source.Candidate{
		{Code: "RAIL1", Status: source.StatusOK, Rewards: "Stellar Jade x50"},
	})

	assert.True(t, strings.Contains(embed.Description, "Stellar Jade x50"))
	assert.True(t, strings.Contains(embed.Description, "https://hsr.hoyoverse.com/gift?code=RAIL1"))
}
