package bot

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-5/VoiceTimeBot/config"
	"github.com/CS-5/VoiceTimeBot/ledger"
)

const guildID = "1454493732262117545"

func newTestBot(t *testing.T, store *memStore) (*Bot, *ledger.Ledger) {
	t.Helper()

	cfg := &config.Config{
		Token:            "token",
		GuildID:          guildID,
		VoiceChannelID:   monitored,
		GreetingCooldown: time.Minute,
	}
	l := ledger.New(store)
	b, err := New(cfg, l, nil)
	require.NoError(t, err)
	b.presence.greet = nil

	require.NoError(t, b.session.State.GuildAdd(&discordgo.Guild{ID: guildID}))
	return b, l
}

func voiceUpdate(userID, channelID string) *discordgo.VoiceStateUpdate {
	return &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{
			GuildID:   guildID,
			ChannelID: channelID,
			UserID:    userID,
			Member:    &discordgo.Member{User: &discordgo.User{ID: userID, Username: "alice"}},
		},
	}
}

// cache applies an update to the state cache the way the gateway does
// before any handler sees it.
func cache(t *testing.T, b *Bot, vsu *discordgo.VoiceStateUpdate) {
	t.Helper()
	require.NoError(t, b.session.State.OnInterface(b.session, vsu))
}

func TestNewDispatchesEventsInOrder(t *testing.T) {
	b, _ := newTestBot(t, &memStore{})

	assert.True(t, b.session.SyncEvents)
	assert.Equal(t, discordgo.IntentsGuilds|discordgo.IntentsGuildVoiceStates, b.session.Identify.Intents)
}

func TestVoiceStateUpdateEnterThenLeave(t *testing.T) {
	store := &memStore{}
	b, l := newTestBot(t, store)

	enter := voiceUpdate("u", monitored)
	cache(t, b, enter)
	b.voiceStateUpdate(b.session, enter)
	assert.True(t, l.IsTracking("u"))

	leave := voiceUpdate("u", "")
	cache(t, b, leave)
	require.NotNil(t, leave.BeforeUpdate)
	b.voiceStateUpdate(b.session, leave)

	assert.False(t, l.IsTracking("u"))
	assert.Contains(t, store.data, "u")
}

func TestVoiceStateUpdateLeaveHandledBeforeEnter(t *testing.T) {
	b, l := newTestBot(t, &memStore{})

	enter := voiceUpdate("u", monitored)
	leave := voiceUpdate("u", "")
	cache(t, b, enter)
	cache(t, b, leave)

	b.voiceStateUpdate(b.session, leave)
	b.voiceStateUpdate(b.session, enter)

	assert.False(t, l.IsTracking("u"), "a join seen after the user already left opens nothing")
	assert.Zero(t, l.Total("u", time.Now().Add(time.Hour)))
}

func TestVoiceStateUpdateOtherGuildIgnored(t *testing.T) {
	b, l := newTestBot(t, &memStore{})

	vsu := voiceUpdate("u", monitored)
	vsu.GuildID = "other"
	b.voiceStateUpdate(b.session, vsu)

	assert.False(t, l.IsTracking("u"))
}

func TestLoopSavesBeforePanicking(t *testing.T) {
	store := &memStore{}
	b, l := newTestBot(t, store)
	l.Enter("u", time.Now().Add(-time.Minute))

	assert.PanicsWithValue(t, "tick failed", func() {
		b.loop(context.Background(), time.Millisecond, func(time.Time) {
			panic("tick failed")
		})
	})

	assert.False(t, l.IsTracking("u"))
	assert.InDelta(t, 60.0, store.data["u"], 5)
}

func TestLoopStopsWithContext(t *testing.T) {
	b, _ := newTestBot(t, &memStore{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NotPanics(t, func() {
		b.loop(ctx, time.Hour, func(time.Time) { panic("unreachable") })
	})
}
