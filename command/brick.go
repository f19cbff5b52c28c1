package command

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"time"

	"gitlab.com/zephyrtronium/pick"

	"github.com/zephyrtronium/brick/brick"
	"github.com/zephyrtronium/brick/channel"
	"github.com/zephyrtronium/brick/ledger"
	"github.com/zephyrtronium/brick/message"
)

var hits = pick.New([]pick.Case[string]{
	{E: "slapped", W: 20},
	{E: "bonked", W: 10},
	{E: "smacked", W: 10},
	{E: "bricked", W: 5},
})

var bounces = pick.New([]pick.Case[string]{
	{E: "but the brick bounced right back", W: 20},
	{E: "but missed and hit themselves", W: 10},
	{E: "but tripped over the brick", W: 5},
})

// mention formats a user mention.
func mention(user string) string {
	return "<@" + user + ">"
}

func emote(ch *channel.Channel) string {
	if ch.Emotes == nil {
		return ""
	}
	return ch.Emotes.Pick(rand.Uint32())
}

func identity(call *Invocation) ledger.Identity {
	return ledger.Identity{User: call.Message.Sender, Guild: call.Message.To}
}

func reply(ctx context.Context, call *Invocation, msg message.Sent) {
	call.Reply(ctx, msg.AsReply(call.Message.ID))
}

// seconds formats a duration as a whole number of seconds.
func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// failed reports a storage or host failure to the user and logs it.
func failed(ctx context.Context, robo *Robot, call *Invocation, what string, err error) {
	robo.Log.ErrorContext(ctx, what,
		slog.String("guild", call.Message.To),
		slog.String("user", call.Message.Sender),
		slog.Any("err", err),
	)
	reply(ctx, call, message.Format(call.Message.Channel, "something went wrong with the bricks, try again later %s", emote(call.Channel)))
}

// Craft starts crafting a brick.
// No arguments.
func Craft(ctx context.Context, robo *Robot, call *Invocation) {
	cfg := robo.Game.Config()
	err := robo.Game.StartCraft(ctx, identity(call), call.Message.Channel)
	switch {
	case err == nil:
		reply(ctx, call, message.Format(call.Message.Channel, "you start crafting a brick. it'll be done after %d messages from others %s", cfg.Cost, emote(call.Channel)))
	case errors.Is(err, brick.ErrAlreadyCrafting):
		reply(ctx, call, message.Format(call.Message.Channel, "you're already crafting a brick"))
	case errors.Is(err, brick.ErrBalanceAtMax):
		reply(ctx, call, message.Format(call.Message.Channel, "you already have %d bricks, you can't carry any more", cfg.Max))
	default:
		failed(ctx, robo, call, "couldn't start crafting", err)
	}
}

// AnnounceCraft notifies a user that their brick is finished.
func AnnounceCraft(ctx context.Context, robo *Robot, ch *channel.Channel, c brick.Crafted) {
	if c.Err != nil {
		ch.Message(ctx, message.Format(c.Where, "%s your brick crumbled while it was baking. try again later", mention(c.ID.User)))
		return
	}
	cfg := robo.Game.Config()
	ch.Message(ctx, message.Format(c.Where, "%s your brick is done! you have %d/%d bricks %s", mention(c.ID.User), c.Bricks, cfg.Max, emote(ch)))
}

// userArg matches a user mention or a bare user ID.
var userArg = regexp.MustCompile(`^(?:<@!?(\d+)>|(\d+))$`)

// Slap throws a brick at someone.
//   - target: User to slap, as a mention or ID.
func Slap(ctx context.Context, robo *Robot, call *Invocation) {
	m := userArg.FindStringSubmatch(call.Args["target"])
	if m == nil {
		reply(ctx, call, message.Format(call.Message.Channel, "who do you want to slap? mention them"))
		return
	}
	target := m[1] + m[2]
	if target == robo.Self {
		reply(ctx, call, message.Format(call.Message.Channel, "nice try %s", emote(call.Channel)))
		return
	}
	o, err := robo.Game.Slap(ctx, identity(call), target, call.Message.Time())
	slapped(ctx, robo, call, o, err)
}

// RandomSlap throws a brick at a random member of the guild.
// No arguments.
func RandomSlap(ctx context.Context, robo *Robot, call *Invocation) {
	var members []string
	if robo.Members != nil {
		var err error
		members, err = robo.Members(ctx, call.Message.To)
		if err != nil {
			robo.Log.WarnContext(ctx, "couldn't list members, using recent chatters",
				slog.String("guild", call.Message.To),
				slog.Any("err", err),
			)
			members = nil
		}
	}
	if len(members) == 0 && call.Channel.History != nil {
		members = call.Channel.History.Chatters(0, robo.Self)
	}
	o, err := robo.Game.RandomSlap(ctx, identity(call), members, call.Message.Time())
	slapped(ctx, robo, call, o, err)
}

func slapped(ctx context.Context, robo *Robot, call *Invocation, o *brick.Outcome, err error) {
	var cd *brick.CooldownError
	switch {
	case err == nil:
		// do nothing
	case errors.As(err, &cd):
		reply(ctx, call, message.Format(call.Message.Channel, "your arm is tired. wait %d more seconds", seconds(cd.Remaining)))
		return
	case errors.Is(err, brick.ErrNoBalance):
		reply(ctx, call, message.Format(call.Message.Channel, "you don't have any bricks. craft one first"))
		return
	case errors.Is(err, brick.ErrTargetIncapacitated):
		reply(ctx, call, message.Format(call.Message.Channel, "they're already down, leave them alone"))
		return
	case errors.Is(err, brick.ErrNoTarget):
		reply(ctx, call, message.Format(call.Message.Channel, "there's nobody around to slap"))
		return
	default:
		failed(ctx, robo, call, "couldn't slap", err)
		return
	}
	actor, target := mention(o.Actor.User), mention(o.Target.User)
	if o.Backfire {
		call.Reply(ctx, message.Format(call.Message.Channel, "%s swung a brick at %s %s! %s is out for %d seconds %s", actor, target, bounces.Pick(rand.Uint32()), actor, seconds(o.Duration), emote(call.Channel)))
		return
	}
	call.Reply(ctx, message.Format(call.Message.Channel, "%s %s %s with a brick! %s is out for %d seconds %s", actor, hits.Pick(rand.Uint32()), target, target, seconds(o.Duration), emote(call.Channel)))
}

// Bricks reports the invoker's brick balance.
// No arguments.
func Bricks(ctx context.Context, robo *Robot, call *Invocation) {
	id := identity(call)
	rec, ok, err := robo.Game.Balance(ctx, id)
	if err != nil {
		failed(ctx, robo, call, "couldn't get balance", err)
		return
	}
	crafting := ""
	if robo.Game.Crafting(id) {
		crafting = " and one on the way"
	}
	if !ok || rec.Bricks == 0 {
		reply(ctx, call, message.Format(call.Message.Channel, "you don't have any bricks%s", crafting))
		return
	}
	reply(ctx, call, message.Format(call.Message.Channel, "you have %d/%d bricks%s %s", rec.Bricks, robo.Game.Config().Max, crafting, emote(call.Channel)))
}

// Claim collects the daily bricks.
// No arguments.
func Claim(ctx context.Context, robo *Robot, call *Invocation) {
	c, err := robo.Game.Claim(ctx, identity(call), call.Message.Time())
	switch {
	case err == nil:
		reply(ctx, call, message.Format(call.Message.Channel, "you found %d bricks lying around. now you have %d/%d %s", c.Gain, c.Bricks, robo.Game.Config().Max, emote(call.Channel)))
	case errors.Is(err, brick.ErrClaimDisabled):
		reply(ctx, call, message.Format(call.Message.Channel, "there are no free bricks here"))
	case errors.Is(err, brick.ErrAlreadyClaimed):
		reply(ctx, call, message.Format(call.Message.Channel, "you already got your bricks today. come back tomorrow"))
	case errors.Is(err, brick.ErrBalanceAtMax):
		reply(ctx, call, message.Format(call.Message.Channel, "you already have %d bricks, you can't carry any more", robo.Game.Config().Max))
	default:
		failed(ctx, robo, call, "couldn't claim", err)
	}
}

// Help describes the game.
// No arguments.
func Help(ctx context.Context, robo *Robot, call *Invocation) {
	cfg := robo.Game.Config()
	reply(ctx, call, message.Format(call.Message.Channel,
		"craft a brick from %d messages by others, then slap someone to mute them for %d to %d seconds. careful, it backfires %g%% of the time. commands: craft, slap @user, random slap, bricks, claim",
		cfg.Cost, seconds(cfg.MinMute), seconds(cfg.MaxMute), cfg.Reverse,
	))
}
