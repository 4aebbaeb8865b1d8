package discord

import (
	"github.com/bwmarrin/discordgo"
)

// Client adapts a discordgo session to the send and lookup surfaces the
// dispatch and resilience packages consume
type Client struct {
	session *discordgo.Session
}

// NewClient wraps an open discordgo session
func NewClient(session *discordgo.Session) *Client {
	return &Client{session: session}
}

// SendChannelMessage sends a content/embed payload to a channel
func (c *Client) SendChannelMessage(channelID, content string, embed *discordgo.MessageEmbed) error {
	msg := &discordgo.MessageSend{Content: content}
	if embed != nil {
		msg.Embeds = []*discordgo.MessageEmbed{embed}
	}
	_, err := c.session.ChannelMessageSendComplex(channelID, msg)
	return err
}

// CanMentionRoles reports whether the bot may ping arbitrary roles in
// the channel. Unresolvable permissions default to true; the send
// itself is the authority.
func (c *Client) CanMentionRoles(channelID string) bool {
	if c.session.State == nil || c.session.State.User == nil {
		return true
	}
	perms, err := c.session.State.UserChannelPermissions(c.session.State.User.ID, channelID)
	if err != nil {
		return true
	}
	return perms&discordgo.PermissionMentionEveryone != 0
}

// GuildInfo resolves a guild's owner and name, preferring the session
// state cache over a REST round-trip
func (c *Client) GuildInfo(guildID string) (string, string, error) {
	if guild, err := c.session.State.Guild(guildID); err == nil {
		return guild.OwnerID, guild.Name, nil
	}

	guild, err := c.session.Guild(guildID)
	if err != nil {
		return "", "", err
	}
	return guild.OwnerID, guild.Name, nil
}

// SendDirectMessage delivers a DM to a user
func (c *Client) SendDirectMessage(userID, content string) error {
	channel, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = c.session.ChannelMessageSend(channel.ID, content)
	return err
}
