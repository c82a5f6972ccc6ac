package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownAllow(t *testing.T) {
	c := NewCooldown(10 * time.Minute)

	assert.True(t, c.Allow("u", at(0)))
	assert.False(t, c.Allow("u", at(60)))
	assert.True(t, c.Allow("other", at(60)), "cooldown is per user")
	assert.False(t, c.Allow("u", at(599)))
	assert.True(t, c.Allow("u", at(600)))
	assert.False(t, c.Allow("u", at(601)))
}

func TestCooldownForget(t *testing.T) {
	c := NewCooldown(time.Hour)

	assert.True(t, c.Allow("u", at(0)))
	c.Forget("u")
	assert.True(t, c.Allow("u", at(1)))
}

func TestCooldownDefault(t *testing.T) {
	c := NewCooldown(0)

	assert.True(t, c.Allow("u", at(0)))
	assert.False(t, c.Allow("u", at(int(DefaultGreetingCooldown/time.Second)-1)))
	assert.True(t, c.Allow("u", at(int(DefaultGreetingCooldown/time.Second))))
}
