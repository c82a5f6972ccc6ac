package bot

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bwmarrin/discordgo"
)

var errNoGreetingChannel = errors.New("no text channel the bot can send to")

// greet welcomes a user who entered the monitored channel.
func (b *Bot) greet(ev voiceEvent) error {
	channelID, err := b.greetingChannel()
	if err != nil {
		return err
	}
	_, err = b.session.ChannelMessageSend(channelID, fmt.Sprintf("💖 Hi, <@%s>! Glad to see you again!", ev.UserID))
	return err
}

// greetingChannel returns the configured welcome channel, or the first text
// channel of the guild the bot may send messages to.
func (b *Bot) greetingChannel() (string, error) {
	if b.cfg.WelcomeChannelID != "" {
		return b.cfg.WelcomeChannelID, nil
	}

	guild, err := b.session.State.Guild(b.cfg.GuildID)
	if err != nil {
		return "", err
	}
	b.session.State.RLock()
	channels := make([]discordgo.Channel, 0, len(guild.Channels))
	for _, c := range guild.Channels {
		if c != nil {
			channels = append(channels, *c)
		}
	}
	b.session.State.RUnlock()

	if b.session.State.User == nil {
		return "", errNoGreetingChannel
	}
	botID := b.session.State.User.ID
	channelID := pickTextChannel(channels, func(channelID string) bool {
		perms, err := b.session.State.UserChannelPermissions(botID, channelID)
		return err == nil && perms&discordgo.PermissionSendMessages != 0 && perms&discordgo.PermissionViewChannel != 0
	})
	if channelID == "" {
		return "", errNoGreetingChannel
	}
	return channelID, nil
}

// pickTextChannel returns the ID of the top-most text channel canSend
// accepts, or "".
func pickTextChannel(channels []discordgo.Channel, canSend func(channelID string) bool) string {
	text := make([]discordgo.Channel, 0, len(channels))
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildText {
			text = append(text, c)
		}
	}
	sort.SliceStable(text, func(i, j int) bool {
		return text[i].Position < text[j].Position
	})

	for _, c := range text {
		if canSend(c.ID) {
			return c.ID
		}
	}
	return ""
}
