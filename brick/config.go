package brick

import (
	"fmt"
	"time"
)

// ShadowMode determines when the game suppresses a muted user's messages
// itself rather than relying only on the host.
type ShadowMode string

const (
	// ShadowFallback suppresses locally only when there is no host mute
	// capability or the host fails to mute.
	ShadowFallback ShadowMode = "fallback"
	// ShadowAlways suppresses locally in addition to the host mute.
	ShadowAlways ShadowMode = "always"
	// ShadowOff never suppresses locally.
	ShadowOff ShadowMode = "off"
)

// Config is the game configuration.
type Config struct {
	// Max is the maximum number of bricks a user may hold in a guild.
	Max int
	// Cost is the number of messages from other users needed to craft a brick.
	Cost int
	// Cooldown is the minimum time between slaps by the same user.
	// It is applied with second granularity.
	Cooldown time.Duration
	// MinMute and MaxMute bound the mute duration of a slap.
	// Durations are drawn uniformly in whole seconds, inclusive.
	MinMute, MaxMute time.Duration
	// Reverse is the percent chance that a slap backfires onto its actor.
	Reverse float64
	// Overrides maps target user IDs to a backfire percentage used instead of
	// Reverse when they are slapped.
	Overrides map[string]float64
	// Shadow is the local suppression mode. The empty string means
	// ShadowFallback.
	Shadow ShadowMode
	// Claim is the daily claim configuration.
	Claim Claim
}

// Claim is the daily claim configuration.
type Claim struct {
	// Enabled turns on the daily claim.
	Enabled bool
	// MinGain and MaxGain bound the number of bricks granted, inclusive.
	MinGain, MaxGain int
	// Location is the time zone which defines calendar days.
	// If nil, days are in UTC.
	Location *time.Location
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Max < 1 {
		return fmt.Errorf("max bricks must be at least 1, have %d", c.Max)
	}
	if c.Cost < 1 {
		return fmt.Errorf("cost must be at least 1 message, have %d", c.Cost)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, have %v", c.Cooldown)
	}
	if c.MinMute < time.Second || c.MaxMute < c.MinMute {
		return fmt.Errorf("mute time must satisfy 1s <= min <= max, have min %v and max %v", c.MinMute, c.MaxMute)
	}
	if c.Reverse < 0 || c.Reverse > 100 {
		return fmt.Errorf("reverse must be a percentage, have %g", c.Reverse)
	}
	for k, v := range c.Overrides {
		if v < 0 || v > 100 {
			return fmt.Errorf("override for %q must be a percentage, have %g", k, v)
		}
	}
	switch c.Shadow {
	case "", ShadowFallback, ShadowAlways, ShadowOff: // do nothing
	default:
		return fmt.Errorf("unknown shadow mode %q", c.Shadow)
	}
	if c.Claim.Enabled {
		if c.Claim.MinGain < 0 || c.Claim.MaxGain < c.Claim.MinGain {
			return fmt.Errorf("claim gain must satisfy 0 <= min <= max, have min %d and max %d", c.Claim.MinGain, c.Claim.MaxGain)
		}
	}
	return nil
}

// backfire returns the backfire percentage for slapping a target.
func (c *Config) backfire(target string) float64 {
	if p, ok := c.Overrides[target]; ok {
		return p
	}
	return c.Reverse
}
