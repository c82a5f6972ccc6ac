package bot

import (
	"log"
	"time"

	"github.com/CS-5/VoiceTimeBot/ledger"
)

type (
	transition int

	// voiceEvent is the part of a voice state update the tracker needs.
	voiceEvent struct {
		UserID    string
		Username  string
		Bot       bool
		Before    string // channel before the update, empty if none
		After     string // channel after the update, empty if none
		Timestamp time.Time
	}

	// presence applies voice events for one monitored channel to a ledger.
	presence struct {
		ledger    *ledger.Ledger
		channelID string
		cooldown  *ledger.Cooldown
		greet     func(ev voiceEvent) error
	}
)

const (
	transitionNone transition = iota
	transitionEnter
	transitionLeave
)

func (t transition) String() string {
	switch t {
	case transitionEnter:
		return "enter"
	case transitionLeave:
		return "leave"
	default:
		return "none"
	}
}

// classify maps a channel change onto the monitored channel. Updates that
// stay inside the channel (mute, deafen, stream) are not transitions.
func classify(monitored, before, after string) transition {
	wasIn := before != "" && before == monitored
	isIn := after != "" && after == monitored

	switch {
	case isIn && !wasIn:
		return transitionEnter
	case wasIn && !isIn:
		return transitionLeave
	default:
		return transitionNone
	}
}

func newPresence(l *ledger.Ledger, channelID string, cooldown *ledger.Cooldown, greet func(voiceEvent) error) *presence {
	return &presence{
		ledger:    l,
		channelID: channelID,
		cooldown:  cooldown,
		greet:     greet,
	}
}

// apply feeds one voice event into the ledger and returns the transition it
// produced. Bot accounts are ignored.
func (p *presence) apply(ev voiceEvent) transition {
	if ev.Bot {
		return transitionNone
	}

	t := classify(p.channelID, ev.Before, ev.After)
	switch t {
	case transitionEnter:
		p.ledger.Enter(ev.UserID, ev.Timestamp)
		log.Printf("%s joined the monitored channel", ev.Username)
		p.maybeGreet(ev)
	case transitionLeave:
		elapsed, ok := p.ledger.Leave(ev.UserID, ev.Timestamp)
		if ok {
			log.Printf("%s left after %s", ev.Username, formatClock(elapsed))
		}
	}
	return t
}

func (p *presence) maybeGreet(ev voiceEvent) {
	if p.greet == nil || !p.cooldown.Allow(ev.UserID, ev.Timestamp) {
		return
	}
	if err := p.greet(ev); err != nil {
		log.Printf("Error sending greeting for %s: %v", ev.UserID, err)
		p.cooldown.Forget(ev.UserID)
	}
}
