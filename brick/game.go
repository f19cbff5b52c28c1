// Package brick implements the brick game: users craft bricks out of the
// chatter of others and spend them to slap people into temporary silence.
package brick

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/zephyrtronium/brick/ledger"
	"github.com/zephyrtronium/brick/metrics"
	"github.com/zephyrtronium/brick/syncmap"
)

// Muter is the host capability to mute a user within a guild.
type Muter interface {
	Mute(ctx context.Context, id ledger.Identity, d time.Duration) error
}

// Game is the session registry and rules of the brick game.
// Exported fields may be set after New and before first use.
type Game struct {
	// Mute is the host mute capability. If nil, mutes are only enforced by
	// local suppression unless the shadow mode is off.
	Mute Muter
	// Rand is the source of randomness for slap outcomes, mute durations,
	// and claim gains.
	Rand *Source
	// Log is the game's logger.
	Log *slog.Logger
	// Metrics receives observations about game events.
	Metrics *metrics.Metrics

	cfg    Config
	store  ledger.Store
	guilds *syncmap.Map[string, *guild]
}

// guild is the transient state of the game within one guild.
type guild struct {
	mu sync.Mutex
	// crafts is the active crafting sessions by user ID.
	crafts map[string]*craft
	// shadows is the active mutes by user ID.
	shadows map[string]*shadow
}

// New creates a new game with the given configuration and ledger.
// The configuration should be validated beforehand.
func New(cfg Config, store ledger.Store) *Game {
	if cfg.Shadow == "" {
		cfg.Shadow = ShadowFallback
	}
	if cfg.Claim.Location == nil {
		cfg.Claim.Location = time.UTC
	}
	return &Game{
		Rand:    NewSource(rand.Uint64()),
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: metrics.New(),
		cfg:     cfg,
		store:   store,
		guilds:  syncmap.New[string, *guild](),
	}
}

// Config returns the game's configuration.
func (g *Game) Config() Config {
	return g.cfg
}

// guild returns the state for a guild, creating it on first use.
func (g *Game) guild(id string) *guild {
	if s, ok := g.guilds.Load(id); ok {
		return s
	}
	s, _ := g.guilds.LoadOrStore(id, &guild{
		crafts:  make(map[string]*craft),
		shadows: make(map[string]*shadow),
	})
	return s
}

// Balance returns the ledger record for an identity.
// If the identity has never played, ok is false.
func (g *Game) Balance(ctx context.Context, id ledger.Identity) (rec ledger.Record, ok bool, err error) {
	return g.store.Get(ctx, id)
}

// Crafting reports whether an identity has an active crafting session.
func (g *Game) Crafting(id ledger.Identity) bool {
	s, ok := g.guilds.Load(id.Guild)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crafts[id.User] != nil
}

// Incapacitated reports whether an identity is currently muted by a slap.
func (g *Game) Incapacitated(id ledger.Identity) bool {
	_, ok := g.MutedUntil(id)
	return ok
}

// MutedUntil returns the time at which an identity's slap mute ends.
// If the identity is not muted, ok is false.
func (g *Game) MutedUntil(id ledger.Identity) (until time.Time, ok bool) {
	s, ok := g.guilds.Load(id.Guild)
	if !ok {
		return time.Time{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.shadows[id.User]
	if m == nil {
		return time.Time{}, false
	}
	return m.until, true
}

// Suppressed reports whether an identity is shadow muted. The host should
// drop everything a suppressed user does, commands included.
func (g *Game) Suppressed(id ledger.Identity) bool {
	s, ok := g.guilds.Load(id.Guild)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.shadows[id.User]
	return m != nil && m.drop
}

// Recover clears persisted crafting flags left behind by a previous process.
// Crafting sessions do not survive restarts.
func (g *Game) Recover(ctx context.Context) error {
	return g.store.ResetBurning(ctx)
}

// Close ends all transient state. Pending mute expirations are cancelled and
// crafting sessions are abandoned.
func (g *Game) Close() {
	for id, s := range g.guilds.All() {
		s.mu.Lock()
		for user, m := range s.shadows {
			m.cancel()
			delete(s.shadows, user)
		}
		n := len(s.crafts)
		clear(s.crafts)
		s.mu.Unlock()
		if n != 0 {
			g.Log.Info("abandoned crafting sessions", slog.String("guild", id), slog.Int("count", n))
		}
	}
}
