package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/brick/brick"
	"github.com/zephyrtronium/brick/channel"
	"github.com/zephyrtronium/brick/ledger"
	"github.com/zephyrtronium/brick/ledger/sqlledger"
	"github.com/zephyrtronium/brick/message"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name string
		me   string
		in   string
		text string
		ok   bool
	}{
		{"empty", "Bocchi", "", "", false},
		{"exact", "Bocchi", "Bocchi", "", true},
		{"case", "Bocchi", "bOCCHI", "", true},
		{"prespace", "Bocchi", " Bocchi", "", true},
		{"postspace", "Bocchi", "Bocchi ", "", true},
		{"at", "Bocchi", "@Bocchi", "", true},
		{"punct", "Bocchi", "Bocchi...", "", true},
		{"prefix", "Bocchi", "Bocchi3", "", false},
		{"suffix", "Bocchi", "9Bocchi", "", false},
		{"text-after", "Bocchi", "Bocchi the Rock!", "the Rock!", true},
		{"text-before", "Bocchi", "Hitori Bocchi", "Hitori", true},
		{"middle", "Bocchi", "Hitori Bocchi Tokyo", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := parseCommand(c.me, c.in)
			if got != c.text {
				t.Errorf("wrong command text: want %q, got %q", c.text, got)
			}
			if ok != c.ok {
				t.Errorf("wrong commandness: want %t, got %t", c.ok, ok)
			}
		})
	}
}

func TestAddressed(t *testing.T) {
	cases := []struct {
		name string
		in   string
		text string
		ok   bool
	}{
		{"mention", "<@1000> slap <@2>", "slap <@2>", true},
		{"nick-mention", "<@!1000> craft", "craft", true},
		{"mention-only", "<@1000>", "", true},
		{"other-mention", "<@2> craft", "", false},
		{"name", "brick craft", "craft", true},
		{"name-after", "craft brick", "craft", true},
		{"none", "hello", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := addressed("brick", "1000", c.in)
			if got != c.text {
				t.Errorf("wrong command text: want %q, got %q", c.text, got)
			}
			if ok != c.ok {
				t.Errorf("wrong commandness: want %t, got %t", c.ok, ok)
			}
		})
	}
}

func TestFindCommand(t *testing.T) {
	cases := []struct {
		in   string
		name string
		args map[string]string
	}{
		{"craft", "craft", nil},
		{"craft a brick", "craft", nil},
		{"BAKE BRICKS", "craft", nil},
		{"slap <@2>", "slap", map[string]string{"target": "<@2>"}},
		{"slap", "slap", map[string]string{"target": ""}},
		{"throw a brick at 2", "slap", map[string]string{"target": "2"}},
		{"random slap", "randomslap", nil},
		{"randomslap", "randomslap", nil},
		{"bricks", "bricks", nil},
		{"balance", "bricks", nil},
		{"claim", "claim", nil},
		{"daily", "claim", nil},
		{"", "help", nil},
		{"help", "help", nil},
		{"how do i play?", "help", nil},
		{"sing a song", "", nil},
		{"slap <@2> <@3>", "", nil},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			cmd, args := findCommand(brickCommands, c.in)
			if c.name == "" {
				if cmd != nil {
					t.Errorf("matched %s", cmd.name)
				}
				return
			}
			if cmd == nil {
				t.Fatalf("no match")
			}
			if cmd.name != c.name {
				t.Errorf("wrong command: want %s, got %s", c.name, cmd.name)
			}
			if len(args) != len(c.args) {
				t.Errorf("wrong args: want %v, got %v", c.args, args)
			}
			for k, v := range c.args {
				if args[k] != v {
					t.Errorf("wrong arg %s: want %q, got %q", k, v, args[k])
				}
			}
		})
	}
}

var dbcount atomic.Uint64

type testRobot struct {
	robo  *Robot
	ch    *channel.Channel
	store ledger.Store
	sent  []message.Sent
	drops []string
	n     int
}

func newTestRobot(t *testing.T, cfg brick.Config) *testRobot {
	t.Helper()
	k := dbcount.Add(1)
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:main-%d.db?mode=memory&cache=shared", k), sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory | sqlite.OpenSharedCache | sqlite.OpenURI})
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
	r := &testRobot{
		robo: New(g, 1),
		ch:   &channel.Channel{
			ID:      "kessoku",
			Name:    "kessoku",
			Rate:    rate.NewLimiter(rate.Inf, 1),
			History: channel.NewHistory(),
		},
		store: l,
	}
	r.ch.Message = func(ctx context.Context, msg message.Sent) { r.sent = append(r.sent, msg) }
	return r
}

func (r *testRobot) say(ctx context.Context, sender, text string) {
	r.n++
	m := &message.Received{
		ID:        fmt.Sprintf("msg%d", r.n),
		To:        "kessoku",
		Channel:   "general",
		Sender:    sender,
		Name:      "user" + sender,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
	drop := func(ctx context.Context, m *message.Received) error {
		r.drops = append(r.drops, m.ID)
		return nil
	}
	r.robo.onMessage(ctx, r.ch, m, "1000", drop)
}

func (r *testRobot) last(t *testing.T) string {
	t.Helper()
	if len(r.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return r.sent[len(r.sent)-1].Text
}

func dispatchConfig() brick.Config {
	return brick.Config{
		Max:      3,
		Cost:     2,
		Cooldown: time.Minute,
		MinMute:  time.Minute,
		MaxMute:  time.Minute,
	}
}

func TestOnMessageCraftAndSlap(t *testing.T) {
	ctx := context.Background()
	r := newTestRobot(t, dispatchConfig())
	r.say(ctx, "1", "<@1000> craft")
	if len(r.sent) != 1 || !strings.Contains(r.last(t), "start crafting") {
		t.Fatalf("wrong craft reply: %+v", r.sent)
	}
	// Our own messages don't count.
	r.say(ctx, "1", "hello")
	r.say(ctx, "2", "hi")
	if len(r.sent) != 1 {
		t.Errorf("craft finished early: %+v", r.sent)
	}
	r.say(ctx, "3", "hey")
	if len(r.sent) != 2 || !strings.Contains(r.last(t), "brick is done") {
		t.Fatalf("no craft announcement: %+v", r.sent)
	}
	rec, ok, err := r.store.Get(ctx, ledger.Identity{User: "1", Guild: "kessoku"})
	if err != nil || !ok || rec.Bricks != 1 {
		t.Fatalf("wrong record after craft: %+v %t %v", rec, ok, err)
	}

	r.say(ctx, "1", "brick slap <@2>")
	if !strings.Contains(r.last(t), "<@2>") {
		t.Errorf("slap reply doesn't mention target: %q", r.last(t))
	}
	if !r.robo.game.Incapacitated(ledger.Identity{User: "2", Guild: "kessoku"}) {
		t.Fatalf("target not incapacitated")
	}
	// Without a host, the target is shadow muted, so their messages drop.
	n := len(r.sent)
	r.say(ctx, "2", "brick bricks")
	if len(r.drops) != 1 || r.drops[0] != fmt.Sprintf("msg%d", r.n) {
		t.Errorf("wrong drops: %v", r.drops)
	}
	if len(r.sent) != n {
		t.Errorf("muted user's command ran: %+v", r.sent[n:])
	}
}

func TestOnMessageIgnored(t *testing.T) {
	ctx := context.Background()
	r := newTestRobot(t, dispatchConfig())
	r.ch.Ignore = map[string]bool{"1": true}
	r.say(ctx, "1", "brick craft")
	if len(r.sent) != 0 {
		t.Errorf("ignored user's command ran: %+v", r.sent)
	}
	// Ignored users still count toward others' crafting.
	r.say(ctx, "2", "brick craft")
	r.say(ctx, "1", "a")
	r.say(ctx, "3", "b")
	if !strings.Contains(r.last(t), "brick is done") {
		t.Errorf("no craft announcement: %+v", r.sent)
	}
}

func TestOnMessageRateLimited(t *testing.T) {
	ctx := context.Background()
	r := newTestRobot(t, dispatchConfig())
	r.ch.Rate = rate.NewLimiter(rate.Every(time.Hour), 1)
	r.say(ctx, "1", "brick bricks")
	r.say(ctx, "1", "brick bricks")
	if len(r.sent) != 1 {
		t.Errorf("wrong number of replies: want 1, got %d", len(r.sent))
	}
}

func TestOnMessageBots(t *testing.T) {
	ctx := context.Background()
	r := newTestRobot(t, dispatchConfig())
	r.say(ctx, "1", "brick craft")
	m := &message.Received{
		ID:        "bot",
		To:        "kessoku",
		Channel:   "general",
		Sender:    "9",
		Text:      "brick bricks",
		Timestamp: time.Now().UnixMilli(),
		IsBot:     true,
	}
	r.robo.onMessage(ctx, r.ch, m, "1000", nil)
	if len(r.sent) != 1 {
		t.Errorf("bot command ran: %+v", r.sent)
	}
	if got := r.ch.History.Chatters(0); len(got) != 1 || got[0] != "1" {
		t.Errorf("wrong chatters: %v", got)
	}
}
