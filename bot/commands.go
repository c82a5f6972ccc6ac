package bot

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/CS-5/VoiceTimeBot/ledger"
)

const (
	defaultTopCount = 10
	maxTopCount     = 25

	colorPink    = 0xFF69B4
	colorGreen   = 0x57F287 // Green
	colorBlurple = 0x5865F2 // Discord Blurple
)

var adminPermission int64 = discordgo.PermissionAdministrator

func commands() []*discordgo.ApplicationCommand {
	minCount := float64(1)
	return []*discordgo.ApplicationCommand{
		{
			Name:        "time",
			Description: "Show how much time you have spent in the voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Show someone else's time instead",
					Required:    false,
				},
			},
		},
		{
			Name:        "status",
			Description: "Show the bot's connection and tracking status",
		},
		{
			Name:        "top",
			Description: "Show who spent the most time in the voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "count",
					Description: "How many users to list",
					Required:    false,
					MinValue:    &minCount,
					MaxValue:    maxTopCount,
				},
			},
		},
		{
			Name:                     "reset",
			Description:              "Reset all accumulated voice time (administrators only)",
			DefaultMemberPermissions: &adminPermission,
		},
	}
}

func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	switch i.ApplicationCommandData().Name {
	case "time":
		b.handleTime(s, i)
	case "status":
		b.handleStatus(s, i)
	case "top":
		b.handleTop(s, i)
	case "reset":
		b.handleReset(s, i)
	}
}

func (b *Bot) handleTime(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	name := user.Username
	if i.Member != nil && i.Member.User != nil && i.Member.User.ID == user.ID {
		name = displayName(i.Member)
	}

	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "user" {
			if u := opt.UserValue(s); u != nil {
				user = u
				name = u.Username
				if m, err := b.member(i.GuildID, u.ID); err == nil {
					name = displayName(m)
				}
			}
		}
	}

	total := b.ledger.Total(user.ID, time.Now())
	respondEmbed(s, i, timeEmbed(user.ID, name, user.AvatarURL("128"), total, b.ledger.IsTracking(user.ID)))
}

func (b *Bot) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	now := time.Now()
	info := statusInfo{
		ChannelID: b.cfg.VoiceChannelID,
		Stats:     b.ledger.Aggregate(now),
		Latency:   s.HeartbeatLatency(),
		Uptime:    now.Sub(b.startedAt),
		Seed:      interactionUser(i).ID,
	}
	if _, ok := b.voiceConnection(); ok {
		info.Connected = true
		info.ChannelName = b.channelName(b.cfg.VoiceChannelID)
		if roster, ok := b.roster(); ok {
			info.Present = len(roster)
		}
	}
	respondEmbed(s, i, statusEmbed(info))
}

func (b *Bot) handleTop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	count := defaultTopCount
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "count" {
			count = int(opt.IntValue())
		}
	}
	if count < 1 || count > maxTopCount {
		count = defaultTopCount
	}

	respondEmbed(s, i, topEmbed(b.ledger.Top(count, time.Now())))
}

func (b *Bot) handleReset(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(i.Member) {
		respondText(s, i, "❌ Only administrators can reset the statistics", true)
		return
	}

	if err := b.ledger.Reset(); err != nil {
		log.Printf("Error saving voice time after reset: %v", err)
		respondText(s, i, "⚠️ Statistics were reset but could not be saved yet, the next save will retry", true)
		return
	}
	log.Printf("Voice time reset by %s", interactionUser(i).ID)
	respondText(s, i, "✅ Statistics reset! A new story starts now 💖", false)
}

func isAdmin(m *discordgo.Member) bool {
	return m != nil && m.Permissions&discordgo.PermissionAdministrator != 0
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	if i.User != nil {
		return i.User
	}
	return &discordgo.User{}
}

func respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
	if err != nil {
		log.Printf("Error responding to interaction: %v", err)
	}
}

func respondText(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		log.Printf("Error responding to interaction: %v", err)
	}
}

func timeEmbed(userID, name, avatarURL string, total time.Duration, active bool) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "💖 Your time together",
		Color: colorPink,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  fmt.Sprintf("With %s", name),
				Value: timeBreakdown(total),
			},
			{
				Name:  "📊 Stats",
				Value: fmt.Sprintf("That is **%.1f%%** of a month together!", monthShare(total)),
			},
		},
	}
	if active {
		embed.Description = "🔊 In the voice channel right now"
	}
	if total > time.Hour {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: pickMessage(userID, timeFooters)}
	}
	if avatarURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: avatarURL}
	}
	return embed
}

type statusInfo struct {
	Connected   bool
	ChannelID   string
	ChannelName string
	Present     int
	Stats       ledger.Stats
	Latency     time.Duration
	Uptime      time.Duration
	Seed        string
}

func statusEmbed(info statusInfo) *discordgo.MessageEmbed {
	voice := fmt.Sprintf("🔄 Connecting...\nChannel ID: %s", info.ChannelID)
	if info.Connected {
		voice = fmt.Sprintf("✅ Connected\nChannel: %s\nPeople in channel: %d", info.ChannelName, info.Present)
	}

	lastSave := "never"
	if !info.Stats.LastFlush.IsZero() {
		lastSave = fmt.Sprintf("<t:%d:R>", info.Stats.LastFlush.Unix())
	}

	return &discordgo.MessageEmbed{
		Title: "🤖 Bot status",
		Color: colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Voice connection", Value: voice},
			{
				Name: "📊 Stats",
				Value: fmt.Sprintf("Tracked: %d\nActive now: %d\nTotal time: %s\nLast save: %s",
					info.Stats.TrackedUsers, info.Stats.ActiveUsers, formatHours(info.Stats.Folded), lastSave),
				Inline: true,
			},
			{
				Name:   "⚙️ System",
				Value:  fmt.Sprintf("Ping: %dms\nUptime: %s", info.Latency.Milliseconds(), info.Uptime.Truncate(time.Second)),
				Inline: true,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: pickMessage(info.Seed, statusFooters)},
	}
}

func topEmbed(entries []ledger.Entry) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "🏆 Most time in voice",
		Color: colorBlurple,
	}
	if len(entries) == 0 {
		embed.Description = "ℹ️ Nobody has been tracked yet"
		return embed
	}

	var sb strings.Builder
	for idx, e := range entries {
		live := ""
		if e.Active {
			live = " 🔊"
		}
		fmt.Fprintf(&sb, "%d. <@%s> · %s%s\n", idx+1, e.UserID, formatDuration(e.Total), live)
	}
	embed.Description = sb.String()
	return embed
}
