package brick

import (
	"log/slog"
	"time"
)

type shadowState int

const (
	shadowInactive shadowState = iota
	shadowActive
	shadowExpired
)

// shadow is the game's record of a slap mute. While active, it marks its user
// as incapacitated, and if drop is set, the game suppresses their messages.
type shadow struct {
	state shadowState
	until time.Time
	drop  bool
	timer *time.Timer
}

// cancel stops the shadow's expiry timer and marks it expired.
// The guild must be locked.
func (m *shadow) cancel() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.state = shadowExpired
}

// incapacitate records a mute on user in guild for d starting at now.
// An existing mute for the same user is replaced.
func (g *Game) incapacitate(guild, user string, now time.Time, d time.Duration, drop bool) {
	s := g.guild(guild)
	m := &shadow{state: shadowActive, until: now.Add(d), drop: drop}
	s.mu.Lock()
	if old := s.shadows[user]; old != nil {
		old.cancel()
	}
	s.shadows[user] = m
	m.timer = time.AfterFunc(d, func() { g.expire(s, guild, user, m) })
	s.mu.Unlock()
}

// expire ends a mute when its timer fires.
func (g *Game) expire(s *guild, guild, user string, m *shadow) {
	s.mu.Lock()
	if m.state != shadowActive {
		s.mu.Unlock()
		return
	}
	m.state = shadowExpired
	if s.shadows[user] == m {
		delete(s.shadows, user)
	}
	s.mu.Unlock()
	g.Log.Info("mute expired", slog.String("guild", guild), slog.String("user", user))
}
