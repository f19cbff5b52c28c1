package brick

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zephyrtronium/brick/ledger"
)

// Outcome is the result of a slap.
type Outcome struct {
	// Actor is the user who slapped.
	Actor ledger.Identity
	// Target is the user who was meant to be slapped.
	Target ledger.Identity
	// Backfire indicates that the actor was muted instead of the target.
	Backfire bool
	// Duration is the length of the mute.
	Duration time.Duration
	// Bricks is the actor's balance after the slap.
	Bricks int
	// Shadowed indicates that the game is suppressing the victim's messages
	// locally.
	Shadowed bool
	// MuteErr is the error from the host mute capability, if any.
	MuteErr error
}

// Victim returns the identity that was muted.
func (o *Outcome) Victim() ledger.Identity {
	if o.Backfire {
		return o.Actor
	}
	return o.Target
}

// Slap spends one of the actor's bricks to mute target, who is a user in the
// actor's guild. With the configured backfire chance, the actor is muted
// instead. now is the time of the slap.
func (g *Game) Slap(ctx context.Context, actor ledger.Identity, target string, now time.Time) (*Outcome, error) {
	rec, ok, err := g.store.Get(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("couldn't slap: %w", err)
	}
	if !ok || rec.Bricks <= 0 {
		return nil, ErrNoBalance
	}
	if !rec.LastSlap.IsZero() {
		elapsed := max(now.Sub(rec.LastSlap).Truncate(time.Second), 0)
		if elapsed < g.cfg.Cooldown {
			return nil, &CooldownError{Remaining: g.cfg.Cooldown - elapsed}
		}
	}
	tid := ledger.Identity{User: target, Guild: actor.Guild}
	if g.Incapacitated(tid) {
		return nil, ErrTargetIncapacitated
	}
	left, ok, err := g.store.Spend(ctx, actor, now)
	if err != nil {
		return nil, fmt.Errorf("couldn't slap: %w", err)
	}
	if !ok {
		// Someone else spent the last brick since we checked.
		return nil, ErrNoBalance
	}

	o := Outcome{
		Actor:    actor,
		Target:   tid,
		Backfire: g.Rand.Chance(g.cfg.backfire(target)),
		Duration: g.muteDuration(),
		Bricks:   left,
	}
	victim := o.Victim()
	if g.Mute != nil {
		o.MuteErr = g.Mute.Mute(ctx, victim, o.Duration)
		if o.MuteErr != nil {
			g.Metrics.MuteFailures.Observe(1)
			g.Log.WarnContext(ctx, "host mute failed",
				slog.String("guild", victim.Guild),
				slog.String("user", victim.User),
				slog.Any("err", o.MuteErr),
			)
		}
	}
	switch g.cfg.Shadow {
	case ShadowAlways:
		o.Shadowed = true
	case ShadowOff:
		o.Shadowed = false
	default:
		o.Shadowed = g.Mute == nil || o.MuteErr != nil
	}
	g.incapacitate(victim.Guild, victim.User, now, o.Duration, o.Shadowed)

	outcome := "hit"
	if o.Backfire {
		outcome = "backfire"
	}
	g.Metrics.SlapCount.Observe(1, outcome)
	g.Metrics.MuteSeconds.Observe(o.Duration.Seconds())
	g.Log.InfoContext(ctx, "slap",
		slog.String("guild", actor.Guild),
		slog.String("actor", actor.User),
		slog.String("target", target),
		slog.String("outcome", outcome),
		slog.Duration("duration", o.Duration),
		slog.Bool("shadowed", o.Shadowed),
	)
	return &o, nil
}

// RandomSlap slaps a uniformly chosen user among members.
func (g *Game) RandomSlap(ctx context.Context, actor ledger.Identity, members []string, now time.Time) (*Outcome, error) {
	if len(members) == 0 {
		return nil, ErrNoTarget
	}
	return g.Slap(ctx, actor, members[g.Rand.Index(len(members))], now)
}

// muteDuration draws a mute duration in whole seconds.
func (g *Game) muteDuration() time.Duration {
	lo := int(g.cfg.MinMute / time.Second)
	hi := int(g.cfg.MaxMute / time.Second)
	return time.Duration(g.Rand.Between(lo, hi)) * time.Second
}
