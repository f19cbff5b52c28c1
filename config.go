package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"gitlab.com/zephyrtronium/pick"
	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/brick/brick"
	"github.com/zephyrtronium/brick/channel"
	"github.com/zephyrtronium/brick/ledger"
	"github.com/zephyrtronium/brick/ledger/kvledger"
	"github.com/zephyrtronium/brick/ledger/sqlledger"
	"github.com/zephyrtronium/brick/message"
)

// Load loads configuration from TOML. Environment variables are expanded in
// paths, and then variables named in env tags override their fields.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	expandcfg(&cfg, os.Getenv)
	if err := env.Parse(&cfg); err != nil {
		return nil, nil, fmt.Errorf("couldn't apply environment overrides: %w", err)
	}
	return &cfg, &md, nil
}

// loadConfig loads the config file at path.
func loadConfig(ctx context.Context, path string) (*Config, *toml.MetaData, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't open config file: %w", err)
	}
	defer r.Close()
	cfg, md, err := Load(ctx, r)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't load config: %w", err)
	}
	return cfg, md, nil
}

// SetGuilds initializes guild configuration.
// It must be called after InitDiscord if Discord is configured.
func (robo *Robot) SetGuilds(ctx context.Context, global Global, guilds map[string]*GuildCfg) error {
	for nm, g := range guilds {
		if g.Rate.Num <= 0 || g.Rate.Every <= 0 {
			return fmt.Errorf("bad rate limit for guilds.%s", nm)
		}
		emotes := pick.New(pick.FromMap(mergemaps(global.Emotes, g.Emotes)))
		var ign map[string]bool
		for _, id := range global.Ignore {
			if ign == nil {
				ign = make(map[string]bool)
			}
			ign[id] = true
		}
		for _, p := range g.Privileges {
			if strings.EqualFold(p.Level, "ignore") {
				if ign == nil {
					ign = make(map[string]bool)
				}
				ign[p.ID] = true
			}
		}
		for _, id := range g.Guilds {
			v := &channel.Channel{
				ID:      id,
				Name:    nm,
				Rate:    rate.NewLimiter(rate.Every(fseconds(g.Rate.Every)), g.Rate.Num),
				Ignore:  ign,
				Emotes:  emotes,
				History: channel.NewHistory(),
			}
			v.Message = func(ctx context.Context, msg message.Sent) {
				robo.sendDiscord(ctx, msg)
			}
			if _, dup := robo.channels.LoadOrStore(id, v); dup {
				return fmt.Errorf("guild %s configured more than once", id)
			}
			slog.DebugContext(ctx, "guild", slog.String("id", id), slog.String("group", nm))
		}
	}
	return nil
}

// openLedger opens the configured ledger backend.
// The returned function closes its database.
func openLedger(ctx context.Context, cfg DBCfg) (ledger.Store, func() error, error) {
	switch {
	case cfg.KVLedger != "" && cfg.SQLLedger != "":
		return nil, nil, fmt.Errorf("multiple ledger backends requested; use exactly one")
	case cfg.KVLedger != "":
		slog.DebugContext(ctx, "using kvledger", slog.String("path", cfg.KVLedger), slog.String("flags", cfg.KVFlag))
		opts := badger.DefaultOptions(cfg.KVLedger)
		opts = opts.WithLogger(nil)
		opts = opts.WithCompression(options.None)
		kv, err := badger.Open(opts.FromSuperFlag(cfg.KVFlag))
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't open kvledger db: %w", err)
		}
		return kvledger.New(kv), kv.Close, nil
	case cfg.SQLLedger != "":
		slog.DebugContext(ctx, "using sqlledger", slog.String("path", cfg.SQLLedger))
		db, err := sqlitex.NewPool(cfg.SQLLedger, sqlitex.PoolOptions{PrepareConn: sqlledger.RecommendedPrep})
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't open sqlledger db: %w", err)
		}
		l, err := sqlledger.Open(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return l, l.Close, nil
	default:
		return nil, nil, fmt.Errorf("no ledger backends requested; use exactly one")
	}
}

func mergemaps(ms ...map[string]int) map[string]int {
	u := make(map[string]int)
	for _, m := range ms {
		for k, v := range m {
			u[k] += v
		}
	}
	return u
}

func fseconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Config is the marshaled structure of the bot's configuration.
type Config struct {
	// DB is the table of database connection strings.
	DB DBCfg `toml:"db"`
	// HTTP is the configuration for the HTTP API.
	HTTP HTTPCfg `toml:"http"`
	// Discord is the configuration for connecting to Discord.
	Discord DiscordCfg `toml:"discord"`
	// Brick is the game configuration.
	Brick BrickCfg `toml:"brick"`
	// Global is the table of global settings.
	Global Global `toml:"global"`
	// Guilds is the set of guild configurations. Each key represents a group
	// of one or more guilds sharing a config.
	Guilds map[string]*GuildCfg `toml:"guilds"`
}

// DBCfg is the configuration of databases.
type DBCfg struct {
	SQLLedger string `toml:"sqlledger" env:"BRICK_SQLLEDGER"`
	KVLedger  string `toml:"kvledger" env:"BRICK_KVLEDGER"`
	KVFlag    string `toml:"kvflag"`
}

// HTTPCfg is the configuration for the HTTP API.
type HTTPCfg struct {
	// Listen is the address on which to serve. If empty, there is no API.
	Listen string `toml:"listen" env:"BRICK_HTTP_LISTEN"`
}

// DiscordCfg is the configuration for the Discord host.
type DiscordCfg struct {
	// TokenFile is the path to a file containing the bot token.
	TokenFile string `toml:"token"`
	// Token is the bot token. It is only settable from the environment and
	// takes precedence over TokenFile.
	Token string `toml:"-" env:"BRICK_DISCORD_TOKEN"`
	// Name is the name by which text commands address the bot.
	// Defaults to brick.
	Name string `toml:"name"`
	// Slash indicates whether to register slash commands.
	Slash bool `toml:"slash"`
	// Rate is the global rate limit for sending messages.
	Rate Rate `toml:"rate"`
}

// token returns the bot token.
func (cfg *DiscordCfg) token() (string, error) {
	if cfg.Token != "" {
		return cfg.Token, nil
	}
	if cfg.TokenFile == "" {
		return "", fmt.Errorf("no Discord token")
	}
	b, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return "", fmt.Errorf("couldn't read Discord token: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// BrickCfg is the game configuration.
type BrickCfg struct {
	// Max is the maximum number of bricks a user can hold.
	Max int `toml:"max"`
	// Cost is the number of messages by others to craft a brick.
	Cost int `toml:"cost"`
	// Cooldown is the time between slaps in seconds.
	Cooldown float64 `toml:"cooldown"`
	// MinMute and MaxMute are the bounds of mute durations in seconds.
	MinMute float64 `toml:"min_mute"`
	MaxMute float64 `toml:"max_mute"`
	// Reverse is the percent chance of a slap backfiring.
	Reverse float64 `toml:"reverse"`
	// Overrides maps user IDs to their own backfire percentages.
	Overrides map[string]float64 `toml:"overrides"`
	// Shadow is the local suppression mode, one of fallback, always, or off.
	Shadow string `toml:"shadow"`
	// Seed seeds the game's randomness. Zero means a random seed.
	Seed uint64 `toml:"seed"`
	// Claim is the daily claim configuration.
	Claim ClaimCfg `toml:"claim"`
}

// ClaimCfg is the daily claim configuration.
type ClaimCfg struct {
	Enabled bool `toml:"enabled"`
	Min     int  `toml:"min"`
	Max     int  `toml:"max"`
	// TZ is the IANA time zone which defines days. Defaults to UTC.
	TZ string `toml:"tz"`
}

// Game converts the configuration to a validated game configuration.
func (cfg *BrickCfg) Game() (brick.Config, error) {
	loc := time.UTC
	if cfg.Claim.TZ != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Claim.TZ)
		if err != nil {
			return brick.Config{}, fmt.Errorf("bad claim time zone: %w", err)
		}
	}
	r := brick.Config{
		Max:       cfg.Max,
		Cost:      cfg.Cost,
		Cooldown:  fseconds(cfg.Cooldown),
		MinMute:   fseconds(cfg.MinMute),
		MaxMute:   fseconds(cfg.MaxMute),
		Reverse:   cfg.Reverse,
		Overrides: cfg.Overrides,
		Shadow:    brick.ShadowMode(strings.ToLower(cfg.Shadow)),
		Claim: brick.Claim{
			Enabled:  cfg.Claim.Enabled,
			MinGain:  cfg.Claim.Min,
			MaxGain:  cfg.Claim.Max,
			Location: loc,
		},
	}
	if err := r.Validate(); err != nil {
		return brick.Config{}, fmt.Errorf("bad game config: %w", err)
	}
	return r, nil
}

// Global is the configuration for globally applied options.
type Global struct {
	// Emotes is the emotes and their weights to use everywhere.
	Emotes map[string]int `toml:"emotes"`
	// Ignore is user IDs whose commands are ignored everywhere.
	Ignore []string `toml:"ignore"`
}

// GuildCfg is the configuration for a group of guilds.
type GuildCfg struct {
	// Guilds is the list of guild IDs using this config.
	Guilds []string `toml:"guilds"`
	// Rate is the rate limit for command replies in each guild.
	Rate Rate `toml:"rate"`
	// Emotes is the emotes and their weights for the guilds.
	Emotes map[string]int `toml:"emotes"`
	// Privileges is the user access controls for the guilds.
	Privileges []Privilege `toml:"privileges"`
}

type Privilege struct {
	// ID is the user ID.
	ID string `toml:"id"`
	// Level is the access level granted to the user.
	// Valid values are the empty string as the default capability
	// or "ignore" to disable access to all commands.
	Level string `toml:"level"`
}

// Rate is a rate limit configuration.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.DB.SQLLedger,
		&cfg.DB.KVLedger,
		&cfg.DB.KVFlag,
		&cfg.HTTP.Listen,
		&cfg.Discord.TokenFile,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
	for _, v := range cfg.Guilds {
		for i, s := range v.Guilds {
			v.Guilds[i] = os.Expand(s, expand)
		}
	}
}
