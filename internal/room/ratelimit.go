// internal/room/ratelimit.go
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agraham02/family-games/internal/apperr"
)

// DefaultJoinRequestCooldown is the minimum gap between join requests from
// the same requester to the same room.
const DefaultJoinRequestCooldown = 30 * time.Second

// JoinRequestLimiter rate-limits join requests per requester+room pair.
// Entries expire implicitly once their cooldown lapses; Reset exists for
// tests rather than implicit global mutation.
type JoinRequestLimiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[limiterKey]time.Time
	now      func() time.Time
}

type limiterKey struct {
	roomID      uuid.UUID
	requesterID uuid.UUID
}

func NewJoinRequestLimiter(cooldown time.Duration) *JoinRequestLimiter {
	if cooldown <= 0 {
		cooldown = DefaultJoinRequestCooldown
	}
	return &JoinRequestLimiter{
		cooldown: cooldown,
		last:     make(map[limiterKey]time.Time),
		now:      time.Now,
	}
}

// Allow records an attempt, rejecting with TooManyRequests when the previous
// attempt for the same pair is still inside the cooldown window.
func (l *JoinRequestLimiter) Allow(roomID, requesterID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := limiterKey{roomID: roomID, requesterID: requesterID}
	if prev, ok := l.last[key]; ok && now.Sub(prev) < l.cooldown {
		return apperr.TooManyRequests("join request cooldown active, retry in %s", (l.cooldown - now.Sub(prev)).Round(time.Second))
	}

	// Opportunistically drop expired entries so the map stays bounded.
	for k, t := range l.last {
		if now.Sub(t) >= l.cooldown {
			delete(l.last, k)
		}
	}
	l.last[key] = now
	return nil
}

// Reset clears all recorded attempts.
func (l *JoinRequestLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = make(map[limiterKey]time.Time)
}
