package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChatThrottle_BurstThenDeny(t *testing.T) {
	th := NewChatThrottle(1, 2)
	now := time.Unix(1_700_000_000, 0)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow(1))
	assert.True(t, th.Allow(1))
	assert.False(t, th.Allow(1))

	// Other chats have their own bucket.
	assert.True(t, th.Allow(2))

	now = now.Add(time.Second)
	assert.True(t, th.Allow(1))
}

func TestChatThrottle_MinimumBurst(t *testing.T) {
	th := NewChatThrottle(1, 0)
	assert.Equal(t, 1, th.burst)
}

func TestChatThrottle_Prune(t *testing.T) {
	th := NewChatThrottle(1, 1)
	now := time.Unix(1_700_000_000, 0)
	th.now = func() time.Time { return now }

	th.Allow(1)
	now = now.Add(10 * time.Minute)
	th.Allow(2)

	removed := th.Prune(5 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.Len(t, th.limiters, 1)
	_, ok := th.limiters[2]
	assert.True(t, ok)
}
