package brick

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zephyrtronium/brick/ledger"
)

// Day returns the calendar day key of t in loc.
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.DateOnly)
}

// Claimed is the result of a daily claim.
type Claimed struct {
	// Gain is the number of bricks actually granted.
	Gain int
	// Bricks is the balance after the claim.
	Bricks int
	// Day is the day key of the claim.
	Day string
}

// Claim grants the daily bricks to an identity.
func (g *Game) Claim(ctx context.Context, id ledger.Identity, now time.Time) (*Claimed, error) {
	if !g.cfg.Claim.Enabled {
		return nil, ErrClaimDisabled
	}
	today := Day(now, g.cfg.Claim.Location)
	gain := g.Rand.Between(g.cfg.Claim.MinGain, g.cfg.Claim.MaxGain)
	rec, ok, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("couldn't claim: %w", err)
	}
	if !ok {
		n := ledger.Clamp(gain, g.cfg.Max)
		err := g.store.Create(ctx, id, n)
		switch {
		case err == nil:
			if err := g.store.SetClaimDay(ctx, id, today); err != nil {
				return nil, fmt.Errorf("couldn't record claim: %w", err)
			}
			return g.claimed(ctx, id, &Claimed{Gain: n, Bricks: n, Day: today}), nil
		case errors.Is(err, ledger.ErrExists):
			// Created concurrently. Reread and treat it as an existing record.
			rec, _, err = g.store.Get(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("couldn't claim: %w", err)
			}
		default:
			return nil, fmt.Errorf("couldn't claim: %w", err)
		}
	}
	if rec.ClaimDay == today {
		return nil, ErrAlreadyClaimed
	}
	if rec.Bricks >= g.cfg.Max {
		return nil, ErrBalanceAtMax
	}
	n, err := g.store.Adjust(ctx, id, gain, g.cfg.Max)
	if err != nil {
		return nil, fmt.Errorf("couldn't claim: %w", err)
	}
	if err := g.store.SetClaimDay(ctx, id, today); err != nil {
		return nil, fmt.Errorf("couldn't record claim: %w", err)
	}
	return g.claimed(ctx, id, &Claimed{Gain: max(n-rec.Bricks, 0), Bricks: n, Day: today}), nil
}

func (g *Game) claimed(ctx context.Context, id ledger.Identity, c *Claimed) *Claimed {
	g.Metrics.ClaimCount.Observe(1)
	g.Log.InfoContext(ctx, "claim",
		slog.String("guild", id.Guild),
		slog.String("user", id.User),
		slog.Int("gain", c.Gain),
		slog.Int("bricks", c.Bricks),
	)
	return c
}
