package bot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/CS-5/VoiceTimeBot/config"
	"github.com/CS-5/VoiceTimeBot/ledger"
	"github.com/CS-5/VoiceTimeBot/metrics"
)

type Bot struct {
	session  *discordgo.Session
	cfg      *config.Config
	ledger   *ledger.Ledger
	metrics  *metrics.Collectors
	presence *presence

	mu               sync.RWMutex
	registeredCmdIds map[string][]*discordgo.ApplicationCommand // guildID -> commands

	voiceMu        sync.Mutex
	connectMu      sync.Mutex
	failedConnects int
	lastOccupied   time.Time

	startedAt time.Time
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

func New(cfg *config.Config, l *ledger.Ledger, m *metrics.Collectors) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	// Handlers run one at a time in gateway order, so the enter and leave of
	// a short visit reach the ledger in the order they happened.
	dg.SyncEvents = true

	if m == nil {
		m = metrics.New(nil)
	}

	bot := &Bot{
		session:          dg,
		cfg:              cfg,
		ledger:           l,
		metrics:          m,
		registeredCmdIds: make(map[string][]*discordgo.ApplicationCommand),
	}
	bot.presence = newPresence(l, cfg.VoiceChannelID, ledger.NewCooldown(cfg.GreetingCooldown), bot.greet)

	// Ready handler registers commands in the monitored guild
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		defer bot.saveOnPanic()
		bot.ready(s, r)
	})

	// Voice state update handler (Notified when user joins, leaves, or moves voice channels)
	dg.AddHandler(func(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
		defer bot.saveOnPanic()
		bot.voiceStateUpdate(s, vsu)
	})

	// Interaction create handler (Handles slash commands)
	dg.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		defer bot.saveOnPanic()
		bot.interactionCreate(s, i)
	})

	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		defer bot.saveOnPanic()
		bot.guildCreate(g)
	})

	dg.AddHandler(func(s *discordgo.Session, d *discordgo.Disconnect) {
		defer bot.saveOnPanic()
		log.Printf("Disconnected from Discord gateway, open sessions are kept")
		if err := bot.ledger.Flush(); err != nil {
			log.Printf("Error saving voice time on disconnect: %v", err)
		}
	})

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Resumed) {
		defer bot.saveOnPanic()
		log.Printf("Gateway session resumed")
		bot.connectAsync(false)
	})

	return bot, nil
}

// Start opens the gateway and launches the background loops. They stop when
// ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.startedAt = time.Now()
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}

	b.every(ctx, b.cfg.TickInterval, func(now time.Time) {
		b.ledger.Tick(now)
	})
	b.every(ctx, b.cfg.FlushInterval, b.flushLoop())
	b.every(ctx, b.cfg.ReconnectInterval, func(time.Time) {
		b.connect()
	})
	b.every(ctx, b.cfg.IdleTimeout, b.checkIdle)
	return nil
}

// Stop leaves Discord, then folds every open session into the ledger and
// saves it. The gateway is closed first so no event can open a session
// after the final save. It is safe to call more than once.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		// Unregister all commands from all guilds
		b.mu.Lock()
		appID := ""
		if b.session.State.User != nil {
			appID = b.session.State.User.ID
		}
		for guildId, commands := range b.registeredCmdIds {
			for _, cmd := range commands {
				err := b.session.ApplicationCommandDelete(appID, guildId, cmd.ID)
				if err != nil {
					log.Printf("Failed to delete command %v in guild %v: %v", cmd.Name, guildId, err)
				}
			}
		}
		b.registeredCmdIds = make(map[string][]*discordgo.ApplicationCommand)
		b.mu.Unlock()

		if err := b.disconnectVoice(); err != nil {
			log.Printf("Error leaving voice channel: %v", err)
		}
		if err := b.session.Close(); err != nil {
			log.Printf("Error closing gateway: %v", err)
		}
		b.wg.Wait()

		if err := b.ledger.Shutdown(time.Now()); err != nil {
			log.Printf("Error saving voice time: %v", err)
		}
	})
}

// saveOnPanic is deferred at the top of every goroutine the bot owns. A
// panic still crashes the process, but open sessions are folded and saved
// first.
func (b *Bot) saveOnPanic() {
	r := recover()
	if r == nil {
		return
	}
	log.Printf("Panic: %v, saving voice time before exit", r)
	if err := b.ledger.Shutdown(time.Now()); err != nil {
		log.Printf("Error saving voice time: %v", err)
	}
	panic(r)
}

// every runs fn on a ticker in its own goroutine until ctx is done.
func (b *Bot) every(ctx context.Context, interval time.Duration, fn func(now time.Time)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.loop(ctx, interval, fn)
	}()
}

func (b *Bot) loop(ctx context.Context, interval time.Duration, fn func(now time.Time)) {
	defer b.saveOnPanic()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fn(now)
		}
	}
}

// flushLoop returns the flush loop body. Every fifth successful flush logs a
// summary of the accumulated time.
func (b *Bot) flushLoop() func(time.Time) {
	count := 0
	return func(now time.Time) {
		if err := b.ledger.Flush(); err != nil {
			log.Printf("Error saving voice time, retrying next cycle: %v", err)
			return
		}
		count++
		if count%5 == 0 {
			stats := b.ledger.Aggregate(now)
			log.Printf("Voice time saved: %d users, %s accumulated, %d in channel", stats.TrackedUsers, formatHours(stats.Folded), stats.ActiveUsers)
		}
	}
}

func (b *Bot) ready(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("Logged in as: %v#%v", s.State.User.Username, s.State.User.Discriminator)
	log.Printf("Monitoring voice channel %s in guild %s", b.cfg.VoiceChannelID, b.cfg.GuildID)

	err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: string(discordgo.StatusOnline),
		Activities: []*discordgo.Activity{
			{Name: "voice time", Type: discordgo.ActivityTypeWatching},
		},
	})
	if err != nil {
		log.Printf("Error setting presence: %v", err)
	}

	for _, guild := range r.Guilds {
		if guild.ID == b.cfg.GuildID {
			b.registerCommands(s, guild.ID)
		}
	}
}

// guildCreate fires once the guild's state, voice states included, is
// available after every (re)identify. It carries the authoritative roster
// even when the voice connection survived.
func (b *Bot) guildCreate(g *discordgo.GuildCreate) {
	if g.ID != b.cfg.GuildID {
		return
	}
	b.connectAsync(true)
}

// connectAsync runs connect outside the event goroutine. Joining a voice
// channel waits for gateway events, which synchronous dispatch would hold
// back until the join timed out. With resync set, a connection that
// survived still gets the fresh roster.
func (b *Bot) connectAsync(resync bool) {
	go func() {
		defer b.saveOnPanic()
		if res := b.connect(); resync && res.Status == AlreadyConnected {
			b.resync()
		}
	}()
}

func (b *Bot) registerCommands(s *discordgo.Session, guildId string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.registeredCmdIds[guildId]) > 0 {
		return
	}

	for _, cmd := range commands() {
		registeredCmd, err := s.ApplicationCommandCreate(s.State.User.ID, guildId, cmd)
		if err != nil {
			log.Printf("Cannot create '%v' command in guild %v: %v", cmd.Name, guildId, err)
			continue
		}
		// Store registered command IDs for cleanup
		b.registeredCmdIds[guildId] = append(b.registeredCmdIds[guildId], registeredCmd)
	}
}

func (b *Bot) voiceStateUpdate(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != b.cfg.GuildID {
		return
	}

	ev := voiceEvent{
		UserID:    vsu.UserID,
		After:     vsu.ChannelID,
		Timestamp: time.Now(),
	}
	if vsu.BeforeUpdate != nil {
		ev.Before = vsu.BeforeUpdate.ChannelID
	}
	t := classify(b.cfg.VoiceChannelID, ev.Before, ev.After)
	if t == transitionNone {
		return
	}
	if t == transitionEnter && b.leftSince(s.State, vsu.UserID) {
		log.Printf("Ignoring stale join of %s, no longer in the channel", vsu.UserID)
		return
	}

	// Get the member info
	member := vsu.Member
	if member == nil || member.User == nil {
		var err error
		member, err = b.member(vsu.GuildID, vsu.UserID)
		if err != nil {
			log.Printf("Error getting member info for %s: %v", vsu.UserID, err)
			member = nil
		}
	}

	if member != nil && member.User != nil {
		ev.Bot = member.User.Bot
		ev.Username = displayName(member)
	} else {
		// Still apply the event so a leave is never lost.
		ev.Bot = s.State.User != nil && vsu.UserID == s.State.User.ID
		ev.Username = vsu.UserID
	}

	b.presence.apply(ev)
}

// leftSince reports whether the state cache, which is updated before
// handlers run, already shows userID outside the monitored channel. A guild
// missing from the cache tells nothing.
func (b *Bot) leftSince(state *discordgo.State, userID string) bool {
	if state == nil {
		return false
	}
	if _, err := state.Guild(b.cfg.GuildID); err != nil {
		return false
	}
	vs, err := state.VoiceState(b.cfg.GuildID, userID)
	if err != nil {
		return true
	}
	return vs.ChannelID != b.cfg.VoiceChannelID
}

// channelName fetches the channel name or returns the ID if fetching fails
func (b *Bot) channelName(channelID string) string {
	if channel, err := b.session.State.Channel(channelID); err == nil {
		return channel.Name
	}
	if channel, err := b.session.Channel(channelID); err == nil {
		return channel.Name
	}
	return channelID
}

func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}
