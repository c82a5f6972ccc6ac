// Package ledger accumulates the time users spend in a monitored voice
// channel and persists the totals through a Store.
package ledger

import (
	"log"
	"math"
	"sort"
	"sync"
	"time"
)

type (
	// Ledger owns the accumulated totals (seconds per user) and the open
	// sessions of users currently present. All mutation is serialized by mu.
	Ledger struct {
		store    Store
		observer Observer

		mu          sync.Mutex
		accumulated map[string]float64   // userID -> seconds
		sessions    map[string]time.Time // userID -> session start
		lastFlush   time.Time

		flushMu sync.Mutex
	}

	// Stats is a point-in-time aggregate over the ledger.
	Stats struct {
		TrackedUsers int
		ActiveUsers  int
		// Folded is the durable total, excluding open sessions.
		Folded time.Duration
		// InFlight is the time of open sessions not yet folded.
		InFlight  time.Duration
		LastFlush time.Time
	}

	// Entry is one leaderboard row.
	Entry struct {
		UserID string
		Total  time.Duration
		Active bool
	}

	// Option configures a Ledger.
	Option func(*Ledger)
)

// WithObserver attaches an Observer notified about folds, flushes and
// session counts.
func WithObserver(o Observer) Option {
	return func(l *Ledger) {
		if o != nil {
			l.observer = o
		}
	}
}

// New builds a ledger from the store's persisted totals. A missing or
// unreadable store yields an empty ledger; construction never fails.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		observer:    nopObserver{},
		accumulated: make(map[string]float64),
		sessions:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}

	data, err := store.Load()
	if err != nil {
		log.Printf("Warning: Failed to load voice time data, starting empty: %v", err)
		data = nil
	}
	for userID, seconds := range data {
		if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			log.Printf("Warning: Dropping invalid total %v for user %s", seconds, userID)
			continue
		}
		l.accumulated[userID] = seconds
	}
	log.Printf("Loaded voice time for %d users", len(l.accumulated))

	l.observer.TrackedUsers(len(l.accumulated))
	return l
}

// Enter opens a session for userID at now. An already open session is
// restarted at now rather than counted twice.
func (l *Ledger) Enter(userID string, now time.Time) {
	l.mu.Lock()
	l.sessions[userID] = now
	active := len(l.sessions)
	l.mu.Unlock()

	l.observer.ActiveSessions(active)
}

// Leave closes the open session of userID, folds its elapsed time into the
// total and flushes. It reports false when no session was open.
func (l *Ledger) Leave(userID string, now time.Time) (time.Duration, bool) {
	l.mu.Lock()
	start, ok := l.sessions[userID]
	if !ok {
		l.mu.Unlock()
		return 0, false
	}
	elapsed := l.fold(userID, start, now)
	delete(l.sessions, userID)
	active, tracked := len(l.sessions), len(l.accumulated)
	l.mu.Unlock()

	l.observer.ActiveSessions(active)
	l.observer.TrackedUsers(tracked)

	if err := l.Flush(); err != nil {
		log.Printf("Error saving voice time after leave of %s: %v", userID, err)
	}
	return secondsToDuration(elapsed), true
}

// Tick checkpoints every open session: elapsed time is folded into the
// totals and the session restarts at now. Sessions that started after now
// are left alone so a start never moves backwards. It returns the number of
// sessions checkpointed.
func (l *Ledger) Tick(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	checkpointed := 0
	for userID, start := range l.sessions {
		if !now.After(start) {
			continue
		}
		l.fold(userID, start, now)
		l.sessions[userID] = now
		checkpointed++
	}
	l.observer.TrackedUsers(len(l.accumulated))
	return checkpointed
}

// Resync applies the roster of users present in the channel after a
// (re)connect. The roster is authoritative: each listed user gets a session
// starting at now, and sessions of users missing from it are closed. In both
// cases the interval since the last checkpoint is dropped rather than
// guessed, so nothing is ever counted twice. It returns the number of
// sessions dropped.
func (l *Ledger) Resync(roster []string, now time.Time) int {
	present := make(map[string]struct{}, len(roster))
	for _, userID := range roster {
		present[userID] = struct{}{}
	}

	l.mu.Lock()
	dropped := 0
	for userID := range l.sessions {
		if _, ok := present[userID]; !ok {
			delete(l.sessions, userID)
			dropped++
		}
	}
	for userID := range present {
		if start, ok := l.sessions[userID]; ok && start.After(now) {
			continue
		}
		l.sessions[userID] = now
	}
	active := len(l.sessions)
	l.mu.Unlock()

	if dropped > 0 {
		log.Printf("Dropped %d sessions of users no longer in the channel", dropped)
	}
	l.observer.ActiveSessions(active)
	return dropped
}

// Total returns the accumulated time of userID including its open session,
// without mutating anything.
func (l *Ledger) Total(userID string, now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	return secondsToDuration(l.totalLocked(userID, now))
}

// IsTracking reports whether userID currently has an open session.
func (l *Ledger) IsTracking(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.sessions[userID]
	return ok
}

// Aggregate summarises the ledger at now.
func (l *Ledger) Aggregate(now time.Time) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var folded, inFlight float64
	for _, seconds := range l.accumulated {
		folded += seconds
	}
	for _, start := range l.sessions {
		inFlight += elapsedSeconds(start, now)
	}

	return Stats{
		TrackedUsers: len(l.accumulated),
		ActiveUsers:  len(l.sessions),
		Folded:       secondsToDuration(folded),
		InFlight:     secondsToDuration(inFlight),
		LastFlush:    l.lastFlush,
	}
}

// Top returns up to n users with the largest totals at now, open sessions
// included. Ties are ordered by user ID. n <= 0 returns every user.
func (l *Ledger) Top(n int, now time.Time) []Entry {
	l.mu.Lock()
	users := make(map[string]struct{}, len(l.accumulated)+len(l.sessions))
	for userID := range l.accumulated {
		users[userID] = struct{}{}
	}
	for userID := range l.sessions {
		users[userID] = struct{}{}
	}

	entries := make([]Entry, 0, len(users))
	for userID := range users {
		_, active := l.sessions[userID]
		entries = append(entries, Entry{
			UserID: userID,
			Total:  secondsToDuration(l.totalLocked(userID, now)),
			Active: active,
		})
	}
	l.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Total != entries[j].Total {
			return entries[i].Total > entries[j].Total
		}
		return entries[i].UserID < entries[j].UserID
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Reset clears every accumulated total and persists the empty state. Open
// sessions survive and keep counting from their current start.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	l.accumulated = make(map[string]float64)
	l.mu.Unlock()

	l.observer.TrackedUsers(0)
	return l.Flush()
}

// Flush writes the accumulated totals to the store. In-memory state is never
// modified by a failed write; the next flush retries with fresher data.
func (l *Ledger) Flush() error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	if err := l.store.Save(l.Snapshot()); err != nil {
		l.observer.Flushed(err)
		return err
	}

	l.mu.Lock()
	l.lastFlush = time.Now()
	l.mu.Unlock()

	l.observer.Flushed(nil)
	return nil
}

// Shutdown folds and closes every open session, then flushes once.
func (l *Ledger) Shutdown(now time.Time) error {
	l.mu.Lock()
	closed := len(l.sessions)
	for userID, start := range l.sessions {
		l.fold(userID, start, now)
		delete(l.sessions, userID)
	}
	tracked := len(l.accumulated)
	l.mu.Unlock()

	l.observer.ActiveSessions(0)
	l.observer.TrackedUsers(tracked)

	log.Printf("Closed %d open voice sessions before shutdown", closed)
	return l.Flush()
}

// Snapshot returns a copy of the accumulated totals in seconds.
func (l *Ledger) Snapshot() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]float64, len(l.accumulated))
	for userID, seconds := range l.accumulated {
		out[userID] = seconds
	}
	return out
}

// fold adds the time between start and now to userID's total and returns
// the seconds added. Callers hold mu.
func (l *Ledger) fold(userID string, start, now time.Time) float64 {
	elapsed := elapsedSeconds(start, now)
	l.accumulated[userID] += elapsed
	l.observer.Folded(elapsed)
	return elapsed
}

func (l *Ledger) totalLocked(userID string, now time.Time) float64 {
	total := l.accumulated[userID]
	if start, ok := l.sessions[userID]; ok {
		total += elapsedSeconds(start, now)
	}
	return total
}

// elapsedSeconds clamps at zero: events may be delivered with timestamps
// taken before the session start they race with.
func elapsedSeconds(start, now time.Time) float64 {
	d := now.Sub(start).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
