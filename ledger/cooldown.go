package ledger

import (
	"sync"
	"time"
)

// DefaultGreetingCooldown is the minimum gap between two greetings of the
// same user.
const DefaultGreetingCooldown = 10 * time.Minute

// Cooldown throttles per-user notifications.
type Cooldown struct {
	interval time.Duration
	mu       sync.Mutex
	last     map[string]time.Time // userID -> last notification
}

func NewCooldown(interval time.Duration) *Cooldown {
	if interval <= 0 {
		interval = DefaultGreetingCooldown
	}
	return &Cooldown{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Allow reports whether userID may be notified at now and, if so, records
// now as its last notification.
func (c *Cooldown) Allow(userID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[userID]; ok && now.Sub(last) < c.interval {
		return false
	}
	c.last[userID] = now
	return true
}

// Forget drops userID's record, used when a notification could not be
// delivered so the next enter retries.
func (c *Cooldown) Forget(userID string) {
	c.mu.Lock()
	delete(c.last, userID)
	c.mu.Unlock()
}
