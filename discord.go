package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/zephyrtronium/brick/brick"
	"github.com/zephyrtronium/brick/command"
	"github.com/zephyrtronium/brick/ledger"
	"github.com/zephyrtronium/brick/message"
)

// discordHost is the bot's connection to Discord.
// It implements brick.Muter with member timeouts.
type discordHost struct {
	session *discordgo.Session
	// rate is the global rate limit for sending messages.
	rate *rate.Limiter
	// slash indicates whether to register slash commands.
	slash bool
}

// InitDiscord creates the Discord session.
// The connection opens when the robot runs.
func (robo *Robot) InitDiscord(ctx context.Context, cfg DiscordCfg) error {
	token, err := cfg.token()
	if err != nil {
		return err
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("couldn't create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.Rate.Every > 0 && cfg.Rate.Num > 0 {
		lim = rate.NewLimiter(rate.Every(fseconds(cfg.Rate.Every)), cfg.Rate.Num)
	}
	robo.discord = &discordHost{
		session: session,
		rate:    lim,
		slash:   cfg.Slash,
	}
	if cfg.Name != "" {
		robo.name = cfg.Name
	}
	robo.game.Mute = robo.discord
	return nil
}

// runDiscord connects to Discord and handles events until the context
// is canceled.
func (robo *Robot) runDiscord(ctx context.Context) error {
	s := robo.discord.session
	rm := []func(){
		s.AddHandler(func(s *discordgo.Session, ev *discordgo.Ready) {
			robo.discordReady(ctx, s, ev)
		}),
		s.AddHandler(func(s *discordgo.Session, ev *discordgo.MessageCreate) {
			robo.discordMessage(ctx, s, ev)
		}),
		s.AddHandler(func(s *discordgo.Session, ev *discordgo.InteractionCreate) {
			robo.discordInteraction(ctx, s, ev)
		}),
	}
	defer func() {
		for _, f := range rm {
			f()
		}
	}()
	if err := s.Open(); err != nil {
		return fmt.Errorf("couldn't connect to Discord: %w", err)
	}
	<-ctx.Done()
	if err := s.Close(); err != nil {
		slog.ErrorContext(ctx, "couldn't close Discord connection", slog.Any("err", err))
	}
	return ctx.Err()
}

var slashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "craft",
		Description: "Start crafting a brick from the chatter of others",
	},
	{
		Name:        "slap",
		Description: "Throw a brick at someone",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "target",
				Description: "Who to slap",
				Required:    true,
			},
		},
	},
	{
		Name:        "randomslap",
		Description: "Throw a brick at someone random",
	},
	{
		Name:        "bricks",
		Description: "Check how many bricks you have",
	},
	{
		Name:        "claim",
		Description: "Collect your daily bricks",
	},
	{
		Name:        "help",
		Description: "Learn how to play",
	},
}

var slashFuncs = map[string]command.Func{
	"craft":      command.Craft,
	"slap":       command.Slap,
	"randomslap": command.RandomSlap,
	"bricks":     command.Bricks,
	"claim":      command.Claim,
	"help":       command.Help,
}

func (robo *Robot) discordReady(ctx context.Context, s *discordgo.Session, ev *discordgo.Ready) {
	slog.InfoContext(ctx, "Discord ready",
		slog.String("user", ev.User.ID),
		slog.String("name", ev.User.Username),
		slog.Int("guilds", len(ev.Guilds)),
	)
	if !robo.discord.slash {
		return
	}
	_, err := s.ApplicationCommandBulkOverwrite(ev.Application.ID, "", slashCommands, discordgo.WithContext(ctx))
	if err != nil {
		slog.ErrorContext(ctx, "couldn't update slash commands", slog.Any("err", err))
	}
}

func (robo *Robot) discordMessage(ctx context.Context, s *discordgo.Session, ev *discordgo.MessageCreate) {
	if ev.GuildID == "" || ev.Author == nil {
		// Direct message or system message.
		return
	}
	self := s.State.User.ID
	if ev.Author.ID == self {
		return
	}
	ch, _ := robo.channels.Load(ev.GuildID)
	if ch == nil {
		return
	}
	m := message.FromDiscord(ev)
	// Run the rest in a worker so that we don't block the event loop.
	robo.enqueue(ctx, func(ctx context.Context) {
		robo.onMessage(ctx, ch, m, self, robo.discord.drop)
	})
}

func (robo *Robot) discordInteraction(ctx context.Context, s *discordgo.Session, ev *discordgo.InteractionCreate) {
	if ev.Type != discordgo.InteractionApplicationCommand || ev.GuildID == "" || ev.Member == nil || ev.Member.User == nil {
		return
	}
	ch, _ := robo.channels.Load(ev.GuildID)
	if ch == nil {
		return
	}
	data := ev.ApplicationCommandData()
	fn := slashFuncs[data.Name]
	if fn == nil {
		return
	}
	log := slog.With(slog.String("trace", ev.ID), slog.String("in", ch.Name))
	respond := func(ctx context.Context, text string, flags discordgo.MessageFlags) {
		err := s.InteractionRespond(ev.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: text,
				Flags:   flags,
				AllowedMentions: &discordgo.MessageAllowedMentions{
					Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
				},
			},
		}, discordgo.WithContext(ctx))
		if err != nil {
			log.ErrorContext(ctx, "couldn't respond to interaction", slog.Any("err", err))
		}
	}
	if ch.Ignore[ev.Member.User.ID] {
		respond(ctx, "no", discordgo.MessageFlagsEphemeral)
		return
	}
	if robo.game.Suppressed(ledger.Identity{User: ev.Member.User.ID, Guild: ev.GuildID}) {
		log.InfoContext(ctx, "drop slash command from muted user", slog.String("user", ev.Member.User.ID))
		respond(ctx, "you're still seeing stars from that brick", discordgo.MessageFlagsEphemeral)
		return
	}
	if !ch.Rate.Allow() {
		log.InfoContext(ctx, "rate limited", slog.String("action", "slash"))
		respond(ctx, "slow down", discordgo.MessageFlagsEphemeral)
		return
	}
	args := make(map[string]string, len(data.Options))
	for _, o := range data.Options {
		if o.Type == discordgo.ApplicationCommandOptionUser {
			// Format as a mention so the command sees the same syntax as text.
			args[o.Name] = "<@" + o.UserValue(nil).ID + ">"
		}
	}
	name := ev.Member.Nick
	if name == "" {
		name = ev.Member.User.Username
	}
	m := &message.Received{
		ID:        ev.ID,
		To:        ev.GuildID,
		Channel:   ev.ChannelID,
		Sender:    ev.Member.User.ID,
		Name:      name,
		Timestamp: time.Now().UnixMilli(),
	}
	robo.metrics.CommandCount.Observe(1, data.Name)
	log.InfoContext(ctx, "slash command",
		slog.String("name", data.Name),
		slog.Any("args", args),
		slog.String("user", m.Sender),
	)
	inv := command.Invocation{
		Channel: ch,
		Message: m,
		Args:    args,
		Reply: func(ctx context.Context, msg message.Sent) {
			respond(ctx, msg.Text, 0)
		},
	}
	fn(ctx, robo.commandRobot(s.State.User.ID), &inv)
}

// sendDiscord sends a message to Discord after waiting for the global rate
// limit.
func (robo *Robot) sendDiscord(ctx context.Context, msg message.Sent) {
	if robo.discord == nil {
		slog.WarnContext(ctx, "no Discord connection to send message", slog.String("to", msg.To))
		return
	}
	if err := robo.discord.rate.Wait(ctx); err != nil {
		return
	}
	_, err := robo.discord.session.ChannelMessageSendComplex(msg.To, message.ToDiscord(msg), discordgo.WithContext(ctx))
	if err != nil {
		slog.ErrorContext(ctx, "couldn't send Discord message", slog.String("to", msg.To), slog.Any("err", err))
	}
}

// Mute times out a guild member.
func (d *discordHost) Mute(ctx context.Context, id ledger.Identity, dur time.Duration) error {
	until := time.Now().Add(dur)
	if err := d.session.GuildMemberTimeout(id.Guild, id.User, &until, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("couldn't time out member: %w", err)
	}
	return nil
}

// maxMemberPages limits how many pages of guild members to list.
const maxMemberPages = 10

// members lists the user IDs of non-bot members of a guild.
func (d *discordHost) members(ctx context.Context, guild string) ([]string, error) {
	var r []string
	after := ""
	for range maxMemberPages {
		ms, err := d.session.GuildMembers(guild, after, 1000, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("couldn't list guild members: %w", err)
		}
		last := ""
		for _, m := range ms {
			if m.User == nil {
				continue
			}
			last = m.User.ID
			if m.User.Bot {
				continue
			}
			r = append(r, m.User.ID)
		}
		if len(ms) < 1000 || last == "" {
			break
		}
		after = last
	}
	return r, nil
}

// drop deletes a message from a shadow muted user.
func (d *discordHost) drop(ctx context.Context, m *message.Received) error {
	if err := d.session.ChannelMessageDelete(m.Channel, m.ID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("couldn't delete message: %w", err)
	}
	return nil
}

var _ brick.Muter = (*discordHost)(nil)
