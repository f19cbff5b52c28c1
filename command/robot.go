package command

import (
	"context"
	"log/slog"

	"github.com/zephyrtronium/brick/brick"
)

// Robot is the bot state as is visible to commands.
type Robot struct {
	Log  *slog.Logger
	Game *brick.Game
	// Self is the bot's own user ID.
	Self string
	// Members lists the user IDs of the members of a guild.
	// If nil or it fails, commands fall back to recent chatters.
	Members func(ctx context.Context, guild string) ([]string, error)
}
