package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/brick/brick"
	"github.com/zephyrtronium/brick/channel"
	"github.com/zephyrtronium/brick/ledger"
	"github.com/zephyrtronium/brick/ledger/sqlledger"
	"github.com/zephyrtronium/brick/message"
)

var dbcount atomic.Uint64

type fixture struct {
	robo  *Robot
	ch    *channel.Channel
	store ledger.Store
	sent  []message.Sent
}

func newFixture(t *testing.T, cfg brick.Config) *fixture {
	t.Helper()
	k := dbcount.Add(1)
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:command-%d.db?mode=memory&cache=shared", k), sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory | sqlite.OpenSharedCache | sqlite.OpenURI})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pool.Close() })
	l, err := sqlledger.Open(context.Background(), pool)
	if err != nil {
		t.Fatal(err)
	}
	g := brick.New(cfg, l)
	g.Rand = brick.NewSource(1)
	t.Cleanup(g.Close)
	f := &fixture{
		robo: &Robot{
			Log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			Game: g,
			Self: "1000",
		},
		ch: &channel.Channel{
			ID:      "kessoku",
			History: channel.NewHistory(),
		},
		store: l,
	}
	f.ch.Message = func(ctx context.Context, msg message.Sent) { f.sent = append(f.sent, msg) }
	return f
}

func (f *fixture) call(sender string, args map[string]string) *Invocation {
	return &Invocation{
		Channel: f.ch,
		Message: &message.Received{
			ID:        "msg",
			To:        "kessoku",
			Channel:   "general",
			Sender:    sender,
			Timestamp: time.Unix(1700000000, 0).UnixMilli(),
		},
		Args:  args,
		Reply: f.ch.Message,
	}
}

// last returns the text of the most recent sent message.
func (f *fixture) last(t *testing.T) message.Sent {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func config() brick.Config {
	return brick.Config{
		Max:      2,
		Cost:     1,
		Cooldown: time.Minute,
		MinMute:  10 * time.Second,
		MaxMute:  10 * time.Second,
		Claim:    brick.Claim{Enabled: true, MinGain: 1, MaxGain: 1},
	}
}

func contains(t *testing.T, msg message.Sent, subs ...string) {
	t.Helper()
	for _, s := range subs {
		if !strings.Contains(msg.Text, s) {
			t.Errorf("%q does not contain %q", msg.Text, s)
		}
	}
}

func TestCraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config())
	Craft(ctx, f.robo, f.call("1", nil))
	msg := f.last(t)
	contains(t, msg, "start crafting", "1 messages")
	if msg.Reply != "msg" || msg.To != "general" {
		t.Errorf("wrong reply addressing: %+v", msg)
	}
	Craft(ctx, f.robo, f.call("1", nil))
	contains(t, f.last(t), "already crafting")

	obs := f.robo.Game.Observe(ctx, "kessoku", "2", f.robo.Self)
	if len(obs.Crafted) != 1 {
		t.Fatalf("no completion: %+v", obs)
	}
	AnnounceCraft(ctx, f.robo, f.ch, obs.Crafted[0])
	msg = f.last(t)
	contains(t, msg, "<@1>", "1/2")
	if msg.To != "general" {
		t.Errorf("announcement in wrong channel: %+v", msg)
	}

	AnnounceCraft(ctx, f.robo, f.ch, brick.Crafted{ID: ledger.Identity{User: "1", Guild: "kessoku"}, Where: "general", Err: errors.New("disk on fire")})
	contains(t, f.last(t), "<@1>", "crumbled")
}

func TestCraftAtMax(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config())
	if err := f.store.Create(ctx, ledger.Identity{User: "1", Guild: "kessoku"}, 2); err != nil {
		t.Fatal(err)
	}
	Craft(ctx, f.robo, f.call("1", nil))
	contains(t, f.last(t), "can't carry")
}

func TestSlap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config())
	Slap(ctx, f.robo, f.call("1", map[string]string{"target": "<@2>"}))
	contains(t, f.last(t), "don't have any bricks")
	if err := f.store.Create(ctx, ledger.Identity{User: "1", Guild: "kessoku"}, 2); err != nil {
		t.Fatal(err)
	}
	Slap(ctx, f.robo, f.call("1", map[string]string{"target": "someone"}))
	contains(t, f.last(t), "who do you want to slap")
	Slap(ctx, f.robo, f.call("1", map[string]string{"target": "<@1000>"}))
	contains(t, f.last(t), "nice try")

	Slap(ctx, f.robo, f.call("1", map[string]string{"target": "<@!2>"}))
	contains(t, f.last(t), "<@1>", "<@2>", "10 seconds")
	if !f.robo.Game.Incapacitated(ledger.Identity{User: "2", Guild: "kessoku"}) {
		t.Errorf("target not incapacitated")
	}
	Slap(ctx, f.robo, f.call("1", map[string]string{"target": "3"}))
	contains(t, f.last(t), "arm is tired", "60 more seconds")
}

func TestSlapIncapacitated(t *testing.T) {
	ctx := context.Background()
	cfg := config()
	cfg.Cooldown = 0
	f := newFixture(t, cfg)
	if err := f.store.Create(ctx, ledger.Identity{User: "1", Guild: "kessoku"}, 2); err != nil {
		t.Fatal(err)
	}
	Slap(ctx, f.robo, f.call("1", map[string]string{"target": "2"}))
	Slap(ctx, f.robo, f.call("1", map[string]string{"target": "2"}))
	contains(t, f.last(t), "already down")
}

func TestRandomSlap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config())
	if err := f.store.Create(ctx, ledger.Identity{User: "1", Guild: "kessoku"}, 2); err != nil {
		t.Fatal(err)
	}
	RandomSlap(ctx, f.robo, f.call("1", nil))
	contains(t, f.last(t), "nobody around")

	// Falls back to chatters when the host can't list members.
	f.robo.Members = func(ctx context.Context, guild string) ([]string, error) {
		return nil, errors.New("missing intent")
	}
	f.ch.History.Add("a", "3", "nijika")
	RandomSlap(ctx, f.robo, f.call("1", nil))
	contains(t, f.last(t), "<@3>")
}

func TestRandomSlapMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config())
	if err := f.store.Create(ctx, ledger.Identity{User: "1", Guild: "kessoku"}, 2); err != nil {
		t.Fatal(err)
	}
	f.robo.Members = func(ctx context.Context, guild string) ([]string, error) {
		if guild != "kessoku" {
			t.Errorf("members of wrong guild %q", guild)
		}
		return []string{"4"}, nil
	}
	f.ch.History.Add("a", "3", "nijika")
	RandomSlap(ctx, f.robo, f.call("1", nil))
	contains(t, f.last(t), "<@4>")
}

func TestBricks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config())
	Bricks(ctx, f.robo, f.call("1", nil))
	contains(t, f.last(t), "don't have any bricks")
	Craft(ctx, f.robo, f.call("1", nil))
	Bricks(ctx, f.robo, f.call("1", nil))
	contains(t, f.last(t), "don't have any bricks", "on the way")
	f.robo.Game.Observe(ctx, "kessoku", "2", f.robo.Self)
	Bricks(ctx, f.robo, f.call("1", nil))
	contains(t, f.last(t), "1/2")
}

func TestClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config())
	Claim(ctx, f.robo, f.call("1", nil))
	contains(t, f.last(t), "found 1 bricks", "1/2")
	Claim(ctx, f.robo, f.call("1", nil))
	contains(t, f.last(t), "already got your bricks")

	cfg := config()
	cfg.Claim.Enabled = false
	f = newFixture(t, cfg)
	Claim(ctx, f.robo, f.call("1", nil))
	contains(t, f.last(t), "no free bricks")
}

func TestHelp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config())
	Help(ctx, f.robo, f.call("1", nil))
	contains(t, f.last(t), "1 messages", "10 to 10 seconds", "0%")
}
