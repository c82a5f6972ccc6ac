package bot

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-5/VoiceTimeBot/ledger"
)

func TestCommandsDefinitions(t *testing.T) {
	names := map[string]*discordgo.ApplicationCommand{}
	for _, cmd := range commands() {
		names[cmd.Name] = cmd
	}

	require.Len(t, names, 4)
	require.Contains(t, names, "reset")
	require.NotNil(t, names["reset"].DefaultMemberPermissions)
	assert.Equal(t, int64(discordgo.PermissionAdministrator), *names["reset"].DefaultMemberPermissions)
	assert.Nil(t, names["time"].DefaultMemberPermissions)
}

func TestIsAdmin(t *testing.T) {
	assert.False(t, isAdmin(nil))
	assert.False(t, isAdmin(&discordgo.Member{Permissions: discordgo.PermissionSendMessages}))
	assert.True(t, isAdmin(&discordgo.Member{Permissions: discordgo.PermissionAdministrator | discordgo.PermissionSendMessages}))
}

func TestInteractionUser(t *testing.T) {
	member := &discordgo.User{ID: "m"}
	direct := &discordgo.User{ID: "d"}

	assert.Equal(t, "m", interactionUser(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: &discordgo.Member{User: member}}}).ID)
	assert.Equal(t, "d", interactionUser(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{User: direct}}).ID)
	assert.Empty(t, interactionUser(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}).ID)
}

func TestTimeEmbed(t *testing.T) {
	embed := timeEmbed("42", "Alice", "https://cdn.example/avatar.png", 3*day, true)

	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "With Alice", embed.Fields[0].Name)
	assert.Contains(t, embed.Fields[0].Value, "3 days 0 hours 0 minutes")
	assert.Contains(t, embed.Fields[1].Value, "**10.0%**")
	require.NotNil(t, embed.Footer)
	assert.Contains(t, timeFooters, embed.Footer.Text)
	require.NotNil(t, embed.Thumbnail)
	assert.Equal(t, "https://cdn.example/avatar.png", embed.Thumbnail.URL)
	assert.Contains(t, embed.Description, "🔊")
}

func TestTimeEmbedShortTotalHasNoFooter(t *testing.T) {
	embed := timeEmbed("42", "Alice", "", 20*time.Minute, false)

	assert.Empty(t, embed.Description)
	assert.Nil(t, embed.Footer)
	assert.Nil(t, embed.Thumbnail)
}

func TestStatusEmbed(t *testing.T) {
	disconnected := statusEmbed(statusInfo{ChannelID: "123", Seed: "u"})
	assert.Contains(t, disconnected.Fields[0].Value, "Connecting")
	assert.Contains(t, disconnected.Fields[0].Value, "123")
	assert.Contains(t, disconnected.Fields[1].Value, "Last save: never")

	connected := statusEmbed(statusInfo{
		Connected:   true,
		ChannelName: "Lounge",
		Present:     3,
		Stats: ledger.Stats{
			TrackedUsers: 7,
			ActiveUsers:  3,
			Folded:       90 * time.Minute,
			LastFlush:    time.Unix(1767225600, 0),
		},
		Latency: 42 * time.Millisecond,
		Uptime:  time.Hour + 1500*time.Millisecond,
		Seed:    "u",
	})
	assert.Contains(t, connected.Fields[0].Value, "Lounge")
	assert.Contains(t, connected.Fields[0].Value, "People in channel: 3")
	assert.Contains(t, connected.Fields[1].Value, "Tracked: 7")
	assert.Contains(t, connected.Fields[1].Value, "1.5 hours")
	assert.Contains(t, connected.Fields[1].Value, "<t:1767225600:R>")
	assert.Contains(t, connected.Fields[2].Value, "Ping: 42ms")
	assert.Contains(t, connected.Fields[2].Value, "Uptime: 1h0m1s")
}

func TestTopEmbed(t *testing.T) {
	empty := topEmbed(nil)
	assert.Contains(t, empty.Description, "Nobody")

	embed := topEmbed([]ledger.Entry{
		{UserID: "1", Total: 2 * time.Hour, Active: true},
		{UserID: "2", Total: 30 * time.Minute},
	})
	assert.Equal(t, "1. <@1> · 2 hours 0 minutes 🔊\n2. <@2> · 0 hours 30 minutes\n", embed.Description)
}
