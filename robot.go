package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/zephyrtronium/brick/brick"
	"github.com/zephyrtronium/brick/channel"
	"github.com/zephyrtronium/brick/command"
	"github.com/zephyrtronium/brick/metrics"
	"github.com/zephyrtronium/brick/syncmap"
)

// Robot is the overall state of the bot.
type Robot struct {
	// game is the brick game.
	game *brick.Game
	// channels are the configured guilds by ID.
	channels *syncmap.Map[string, *channel.Channel]
	// works is the worker pool.
	works chan chan func(context.Context)
	// metrics are the bot's metrics.
	metrics *metrics.Metrics
	// name is the name by which text commands address the bot.
	name string
	// discord is the Discord host. It may be nil if there is no Discord
	// configuration.
	discord *discordHost
}

// New creates a new robot instance. Use SetGuilds and InitDiscord to
// configure it.
func New(game *brick.Game, poolSize int) *Robot {
	m := metrics.New()
	game.Metrics = m
	game.Log = slog.Default()
	return &Robot{
		game:     game,
		channels: syncmap.New[string, *channel.Channel](),
		works:    make(chan chan func(context.Context), poolSize),
		metrics:  m,
		name:     "brick",
	}
}

// Run runs the bot until the context is canceled.
func (robo *Robot) Run(ctx context.Context, listen string) error {
	if err := robo.game.Recover(ctx); err != nil {
		return fmt.Errorf("couldn't reset crafting sessions: %w", err)
	}
	defer robo.game.Close()
	group, ctx := errgroup.WithContext(ctx)
	if listen != "" {
		group.Go(func() error { return robo.api(ctx, listen, new(http.ServeMux), robo.metrics.Collectors()) })
	}
	if robo.discord != nil {
		group.Go(func() error { return robo.runDiscord(ctx) })
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		// If the first error is context canceled, then we are shutting down
		// normally in response to a sigint.
		err = nil
	}
	return err
}

// commandRobot returns the bot state as visible to commands.
func (robo *Robot) commandRobot(self string) *command.Robot {
	r := command.Robot{
		Log:  slog.Default(),
		Game: robo.game,
		Self: self,
	}
	if robo.discord != nil {
		r.Members = robo.discord.members
	}
	return &r
}

func (robo *Robot) enqueue(ctx context.Context, work func(context.Context)) {
	var w chan func(context.Context)
	// Get a worker if one exists. Otherwise, spawn a new one.
	select {
	case w = <-robo.works:
	default:
		w = make(chan func(context.Context), 1)
		go worker(ctx, robo.works, w)
	}
	// Send it work.
	select {
	case <-ctx.Done():
		return
	case w <- work:
	}
}

// worker runs works for a while. The provided context is passed to each work.
func worker(ctx context.Context, works chan chan func(context.Context), ch chan func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case work := <-ch:
			work(ctx)
			// Replace ourselves in the pool if it needs additional capacity.
			// Otherwise, we're done.
			select {
			case works <- ch:
			default:
				return
			}
		}
	}
}
