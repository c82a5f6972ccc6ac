package bot

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/CS-5/VoiceTimeBot/metrics"
)

type (
	// ConnectStatus is the outcome of a voice connection attempt.
	ConnectStatus int

	ConnectResult struct {
		Status ConnectStatus
		Err    error // set when Status is ConnectFailed
	}
)

const (
	Connected ConnectStatus = iota
	AlreadyConnected
	ConnectFailed
)

func (c ConnectStatus) String() string {
	switch c {
	case Connected:
		return metrics.OutcomeConnected
	case AlreadyConnected:
		return metrics.OutcomeAlreadyConnected
	default:
		return metrics.OutcomeFailed
	}
}

// voiceConnection returns the guild's voice connection if it is ready and
// sitting in the monitored channel.
func (b *Bot) voiceConnection() (*discordgo.VoiceConnection, bool) {
	b.session.RLock()
	vc, ok := b.session.VoiceConnections[b.cfg.GuildID]
	b.session.RUnlock()
	if !ok || vc == nil {
		return nil, false
	}

	vc.RLock()
	ready := vc.Ready && vc.ChannelID == b.cfg.VoiceChannelID
	vc.RUnlock()
	return vc, ready
}

// ensureVoice joins the monitored channel unless already connected to it.
func (b *Bot) ensureVoice() ConnectResult {
	b.voiceMu.Lock()
	defer b.voiceMu.Unlock()

	if _, ok := b.voiceConnection(); ok {
		return ConnectResult{Status: AlreadyConnected}
	}

	// Joined muted and deafened: presence is all the bot needs.
	if _, err := b.session.ChannelVoiceJoin(b.cfg.GuildID, b.cfg.VoiceChannelID, true, true); err != nil {
		return ConnectResult{Status: ConnectFailed, Err: err}
	}
	return ConnectResult{Status: Connected}
}

// connect runs one connection attempt and, on a fresh connection, hands the
// current roster to the ledger.
func (b *Bot) connect() ConnectResult {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()

	res := b.ensureVoice()
	b.metrics.VoiceConnect(res.Status.String())

	switch res.Status {
	case Connected:
		b.failedConnects = 0
		log.Printf("Connected to voice channel %s", b.channelName(b.cfg.VoiceChannelID))
		b.resync()
	case ConnectFailed:
		b.failedConnects++
		if b.failedConnects == 1 || b.failedConnects%10 == 0 {
			log.Printf("Cannot connect to voice channel (attempt %d): %v", b.failedConnects, res.Err)
		}
	}
	return res
}

// disconnectVoice drops the voice connection, if any. Open sessions are left
// alone: losing the connection is not the same as users leaving.
func (b *Bot) disconnectVoice() error {
	b.voiceMu.Lock()
	defer b.voiceMu.Unlock()

	b.session.RLock()
	vc, ok := b.session.VoiceConnections[b.cfg.GuildID]
	b.session.RUnlock()
	if !ok || vc == nil {
		return nil
	}
	if err := vc.Disconnect(); err != nil {
		return fmt.Errorf("disconnect voice: %w", err)
	}
	return nil
}

// resync hands the current roster to the ledger. Without the guild in the
// state cache there is no roster to trust, and nothing changes.
func (b *Bot) resync() {
	roster, ok := b.roster()
	if !ok {
		log.Printf("Guild %s not in state yet, roster sync skipped", b.cfg.GuildID)
		return
	}
	dropped := b.ledger.Resync(roster, time.Now())
	log.Printf("Roster synced: %d users present, %d stale sessions closed", len(roster), dropped)
}

// roster lists the non-bot users currently in the monitored channel
// according to the state cache.
func (b *Bot) roster() ([]string, bool) {
	guild, err := b.session.State.Guild(b.cfg.GuildID)
	if err != nil {
		return nil, false
	}

	// Copy under the state lock; member lookups below take it again.
	b.session.State.RLock()
	states := make([]discordgo.VoiceState, 0, len(guild.VoiceStates))
	for _, vs := range guild.VoiceStates {
		if vs != nil {
			states = append(states, *vs)
		}
	}
	b.session.State.RUnlock()

	return rosterOf(states, b.cfg.VoiceChannelID, b.isBot), true
}

// rosterOf filters states down to the sorted IDs of non-bot users in
// channelID.
func rosterOf(states []discordgo.VoiceState, channelID string, isBot func(discordgo.VoiceState) bool) []string {
	var users []string
	for _, vs := range states {
		if vs.ChannelID != channelID || isBot(vs) {
			continue
		}
		users = append(users, vs.UserID)
	}
	sort.Strings(users)
	return users
}

// isBot resolves the bot flag of a voice state's user, preferring the
// member embedded in the state, then the cache, then the API.
func (b *Bot) isBot(vs discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	if b.session.State.User != nil && vs.UserID == b.session.State.User.ID {
		return true
	}
	member, err := b.member(vs.GuildID, vs.UserID)
	if err != nil {
		log.Printf("Error getting member info for %s: %v", vs.UserID, err)
		return false
	}
	return member.User != nil && member.User.Bot
}

func (b *Bot) member(guildID, userID string) (*discordgo.Member, error) {
	if m, err := b.session.State.Member(guildID, userID); err == nil {
		return m, nil
	}
	return b.session.GuildMember(guildID, userID)
}

// checkIdle drops the voice connection when nobody but the bot has been in
// the channel for longer than the idle timeout, so the reconnect loop
// rebuilds a fresh one.
func (b *Bot) checkIdle(now time.Time) {
	if _, ok := b.voiceConnection(); !ok {
		return
	}
	if roster, ok := b.roster(); !ok || len(roster) > 0 {
		b.lastOccupied = now
		return
	}
	if b.lastOccupied.IsZero() {
		b.lastOccupied = now
		return
	}
	if now.Sub(b.lastOccupied) <= b.cfg.IdleTimeout {
		return
	}

	log.Printf("Voice channel empty for %s, refreshing the connection", now.Sub(b.lastOccupied).Truncate(time.Second))
	if err := b.disconnectVoice(); err != nil {
		log.Printf("Error refreshing voice connection: %v", err)
	}
	b.lastOccupied = now
}
