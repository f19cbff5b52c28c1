package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/urfave/cli/v3"

	"github.com/zephyrtronium/brick/brick"
	"github.com/zephyrtronium/brick/ledger"
)

var app = cli.Command{
	Name:  "brick",
	Usage: "Discord brick slapping game bot",

	Flags: []cli.Flag{
		&flagConfig,
		&flagLog,
		&flagLogFormat,
	},
	Commands: []*cli.Command{
		{
			Name:   "init",
			Usage:  "Create the ledger if it does not exist",
			Action: cliInit,
		},
		{
			Name:    "show",
			Aliases: []string{"balance"},
			Usage:   "Print a user's ledger record",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "guild",
					Usage:    "Guild ID",
					Required: true,
				},
				&cli.StringFlag{
					Name:     "user",
					Usage:    "User ID",
					Required: true,
				},
			},
			Action: cliShow,
		},
	},
	Action: cliRun,

	Authors: []any{
		"Branden J Brown  @zephyrtronium",
	},
	Copyright: "Copyright 2024 Branden J Brown",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	err := app.Run(ctx, os.Args)
	if err != nil {
		fmt.Println(err)
	}
}

func cliRun(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, md, err := loadConfig(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	gcfg, err := cfg.Brick.Game()
	if err != nil {
		return err
	}
	store, closer, err := openLedger(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer(); err != nil {
			slog.ErrorContext(ctx, "couldn't close ledger", slog.Any("err", err))
		}
	}()
	game := brick.New(gcfg, store)
	if cfg.Brick.Seed != 0 {
		game.Rand = brick.NewSource(cfg.Brick.Seed)
	}
	robo := New(game, runtime.GOMAXPROCS(0))
	if md.IsDefined("discord") {
		if err := robo.InitDiscord(ctx, cfg.Discord); err != nil {
			return err
		}
	}
	if err := robo.SetGuilds(ctx, cfg.Global, cfg.Guilds); err != nil {
		return err
	}
	return robo.Run(ctx, cfg.HTTP.Listen)
}

func cliInit(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, _, err := loadConfig(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	// Opening the ledger creates it.
	_, closer, err := openLedger(ctx, cfg.DB)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "ledger ready")
	return closer()
}

func cliShow(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, _, err := loadConfig(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	store, closer, err := openLedger(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer closer()
	id := ledger.Identity{User: cmd.String("user"), Guild: cmd.String("guild")}
	rec, ok, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no record for user %s in guild %s", id.User, id.Guild)
	}
	v := apiRecord{
		Guild:    rec.Guild,
		User:     rec.User,
		Bricks:   rec.Bricks,
		Max:      cfg.Brick.Max,
		Burning:  rec.Burning,
		ClaimDay: rec.ClaimDay,
	}
	if !rec.LastSlap.IsZero() {
		v.LastSlap = rec.LastSlap.UTC().Format(timeFormat)
	}
	if err := json.MarshalWrite(os.Stdout, &v, jsontext.WithIndent("\t")); err != nil {
		return err
	}
	fmt.Println()
	return nil
}

var (
	flagConfig = cli.StringFlag{
		Name:       "config",
		Required:   true,
		Usage:      "TOML config file",
		Persistent: true,
		Action: func(ctx context.Context, cmd *cli.Command, s string) error {
			i, err := os.Stat(s)
			if err != nil {
				return err
			}
			if !i.Mode().IsRegular() {
				return errors.New("config must be a regular file")
			}
			return nil
		},
	}

	flagLog = cli.StringFlag{
		Name:       "log",
		Usage:      "Logging level, one of debug, info, warn, error",
		Value:      "info",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			var l slog.Level
			return l.UnmarshalText([]byte(s))
		},
	}

	flagLogFormat = cli.StringFlag{
		Name:       "log-format",
		Usage:      "Logging format, either text or json",
		Value:      "text",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			switch strings.ToLower(s) {
			case "text", "json":
				return nil
			default:
				return errors.New("unknown logging format")
			}
		},
	}
)

func loggerFromFlags(cmd *cli.Command) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cmd.String("log"))); err != nil {
		panic(err)
	}
	var h slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	case "json":
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	}
	return slog.New(h)
}
