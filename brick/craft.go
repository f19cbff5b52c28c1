package brick

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zephyrtronium/brick/ledger"
)

type craftState int

const (
	craftInactive craftState = iota
	craftCounting
	craftCompleted
)

// craft is a crafting session. It counts messages from users other than its
// owner and the bot until it reaches its cost.
type craft struct {
	state craftState
	// owner is the user crafting.
	owner string
	// where is the host location where the session started, e.g. a channel.
	where string
	need  int
	seen  int
}

// observe feeds a message to the session. It reports whether the message
// completed the session.
func (c *craft) observe(sender, self string) bool {
	if c.state != craftCounting || sender == c.owner || sender == self {
		return false
	}
	c.seen++
	if c.seen < c.need {
		return false
	}
	c.state = craftCompleted
	return true
}

// StartCraft begins a crafting session for an identity.
// where is an opaque host location returned with the completion.
func (g *Game) StartCraft(ctx context.Context, id ledger.Identity, where string) error {
	s := g.guild(id.Guild)
	s.mu.Lock()
	active := s.crafts[id.User] != nil
	s.mu.Unlock()
	if active {
		return ErrAlreadyCrafting
	}
	rec, ok, err := g.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("couldn't start crafting: %w", err)
	}
	if !ok {
		err := g.store.Create(ctx, id, 0)
		if err != nil && !errors.Is(err, ledger.ErrExists) {
			return fmt.Errorf("couldn't start crafting: %w", err)
		}
	} else if rec.Bricks >= g.cfg.Max {
		return ErrBalanceAtMax
	}

	c := &craft{state: craftCounting, owner: id.User, where: where, need: g.cfg.Cost}
	s.mu.Lock()
	if s.crafts[id.User] != nil {
		s.mu.Unlock()
		return ErrAlreadyCrafting
	}
	s.crafts[id.User] = c
	s.mu.Unlock()
	if err := g.store.SetBurning(ctx, id, true); err != nil {
		s.mu.Lock()
		if s.crafts[id.User] == c {
			delete(s.crafts, id.User)
		}
		s.mu.Unlock()
		return fmt.Errorf("couldn't start crafting: %w", err)
	}
	g.Log.InfoContext(ctx, "start crafting",
		slog.String("guild", id.Guild),
		slog.String("user", id.User),
		slog.Int("cost", g.cfg.Cost),
	)
	return nil
}

// Observation is the effect of a guild message on the game.
type Observation struct {
	// Drop indicates that the message's sender is shadow muted and the host
	// should discard the message.
	Drop bool
	// Crafted is the crafting sessions the message completed.
	Crafted []Crafted
}

// Crafted is a completed crafting session.
type Crafted struct {
	ID ledger.Identity
	// Where is the location given when the session started.
	Where string
	// Bricks is the identity's balance after crediting the brick.
	Bricks int
	// Err is an error crediting the brick, if any.
	Err error
}

// Observe feeds a guild message from sender to the game.
// self is the bot's own user ID, whose messages never count toward crafting.
func (g *Game) Observe(ctx context.Context, guild, sender, self string) Observation {
	s, ok := g.guilds.Load(guild)
	if !ok {
		return Observation{}
	}
	var done []*craft
	s.mu.Lock()
	if m := s.shadows[sender]; m != nil && m.drop {
		s.mu.Unlock()
		return Observation{Drop: true}
	}
	for user, c := range s.crafts {
		if c.observe(sender, self) {
			done = append(done, c)
			delete(s.crafts, user)
		}
	}
	s.mu.Unlock()
	if len(done) == 0 {
		return Observation{}
	}
	r := Observation{Crafted: make([]Crafted, 0, len(done))}
	for _, c := range done {
		r.Crafted = append(r.Crafted, g.credit(ctx, ledger.Identity{User: c.owner, Guild: guild}, c.where))
	}
	return r
}

// credit finishes a completed crafting session.
func (g *Game) credit(ctx context.Context, id ledger.Identity, where string) Crafted {
	r := Crafted{ID: id, Where: where}
	n, err := g.store.Adjust(ctx, id, 1, g.cfg.Max)
	if err != nil {
		g.Log.ErrorContext(ctx, "couldn't credit brick",
			slog.String("guild", id.Guild),
			slog.String("user", id.User),
			slog.Any("err", err),
		)
		r.Err = fmt.Errorf("couldn't credit brick: %w", err)
		return r
	}
	r.Bricks = n
	if err := g.store.SetBurning(ctx, id, false); err != nil {
		// The brick is already credited, so just log.
		g.Log.ErrorContext(ctx, "couldn't clear crafting flag",
			slog.String("guild", id.Guild),
			slog.String("user", id.User),
			slog.Any("err", err),
		)
	}
	g.Metrics.CraftCount.Observe(1)
	g.Log.InfoContext(ctx, "crafted",
		slog.String("guild", id.Guild),
		slog.String("user", id.User),
		slog.Int("bricks", n),
	)
	return r
}
