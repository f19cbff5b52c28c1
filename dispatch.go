package main

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/zephyrtronium/brick/channel"
	"github.com/zephyrtronium/brick/command"
	"github.com/zephyrtronium/brick/message"
)

// onMessage processes a guild message. self is the bot's user ID.
func (robo *Robot) onMessage(ctx context.Context, ch *channel.Channel, m *message.Received, self string, drop func(context.Context, *message.Received) error) {
	log := slog.With(slog.String("trace", m.ID), slog.String("in", ch.Name))
	robo.metrics.MessagesCount.Observe(1)
	obs := robo.game.Observe(ctx, m.To, m.Sender, self)
	if len(obs.Crafted) != 0 {
		r := robo.commandRobot(self)
		for _, c := range obs.Crafted {
			command.AnnounceCraft(ctx, r, ch, c)
		}
	}
	if obs.Drop {
		log.InfoContext(ctx, "drop message from muted user", slog.String("user", m.Sender))
		if drop != nil {
			if err := drop(ctx, m); err != nil {
				log.WarnContext(ctx, "couldn't drop message", slog.Any("err", err))
			}
		}
		return
	}
	if m.IsBot {
		return
	}
	ch.History.Add(m.ID, m.Sender, m.Name)
	text := norm.NFKC.String(m.Text)
	cmd, ok := addressed(robo.name, self, text)
	if !ok {
		return
	}
	if ch.Ignore[m.Sender] {
		log.DebugContext(ctx, "ignored user", slog.String("user", m.Sender))
		return
	}
	c, args := findCommand(brickCommands, cmd)
	if c == nil {
		return
	}
	t := time.Now()
	r := ch.Rate.ReserveN(t, 1)
	if d := r.DelayFrom(t); d > 0 {
		log.InfoContext(ctx, "rate limited",
			slog.String("action", "command"),
			slog.String("delay", d.String()),
		)
		r.CancelAt(t)
		return
	}
	robo.metrics.CommandCount.Observe(1, c.name)
	log.InfoContext(ctx, "command",
		slog.String("name", c.name),
		slog.Any("args", args),
		slog.String("user", m.Sender),
	)
	inv := command.Invocation{
		Channel: ch,
		Message: m,
		Args:    args,
		Reply:   ch.Message,
	}
	c.fn(ctx, robo.commandRobot(self), &inv)
}

// addressed determines whether text is a command to the bot, either by name
// or by a leading mention, and returns the command text.
func addressed(name, self, text string) (string, bool) {
	if self != "" {
		text = strings.TrimSpace(text)
		for _, p := range []string{"<@" + self + ">", "<@!" + self + ">"} {
			if s, ok := strings.CutPrefix(text, p); ok {
				return strings.TrimSpace(s), true
			}
		}
	}
	return parseCommand(name, text)
}

func parseCommand(name, text string) (string, bool) {
	text = strings.TrimSpace(text)
	text, _ = strings.CutPrefix(text, "@")
	// TODO(zeph): not quite right if our name contains one of those handful of
	// code points that has a different size between cases
	if len(text) < len(name) {
		return "", false
	}
	if strings.EqualFold(text[:len(name)], name) {
		text = text[len(name):]
		r, _ := utf8.DecodeRuneInString(text)
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			// Our name is a prefix of a word.
			return "", false
		}
		// This is a command. Skip to the next whitespace to get the text. If
		// there is no whitespace, the text is empty.
		k := strings.IndexFunc(text, unicode.IsSpace)
		if k < 0 {
			k = len(text)
		}
		return strings.TrimSpace(text[k:]), true
	}
	if strings.EqualFold(text[len(text)-len(name):], name) {
		text = text[:len(text)-len(name)]
		r, _ := utf8.DecodeLastRuneInString(text)
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			// Our name is a suffix of a word.
			return "", false
		}
		// This is a command. Trim off after the preceding whitespace to get
		// the text. Even though we already checked the start-of-text case,
		// there can still be no preceding whitespace in a case like "...name".
		k := strings.LastIndexFunc(text, unicode.IsSpace)
		if k < 0 {
			k = 0
		}
		return strings.TrimSpace(text[:k]), true
	}
	return "", false
}

type textCommand struct {
	parse *regexp.Regexp
	fn    command.Func
	name  string
}

func findCommand(cmds []textCommand, text string) (*textCommand, map[string]string) {
	for i := range cmds {
		c := &cmds[i]
		u := c.parse.FindStringSubmatch(text)
		switch len(u) {
		case 0:
			continue
		case 1:
			return c, nil
		default:
			m := make(map[string]string, len(u)-1)
			s := c.parse.SubexpNames()
			for k, v := range u[1:] {
				m[s[k+1]] = v
			}
			return c, m
		}
	}
	return nil, nil
}

var brickCommands = []textCommand{
	{
		parse: regexp.MustCompile(`(?i)^(?:craft|make|bake)(?:\s+(?:a\s+)?bricks?)?$`),
		fn:    command.Craft,
		name:  "craft",
	},
	{
		parse: regexp.MustCompile(`(?i)^random\s*slap$`),
		fn:    command.RandomSlap,
		name:  "randomslap",
	},
	{
		parse: regexp.MustCompile(`(?i)^(?:slap|bonk|throw\s+(?:a\s+)?brick\s+at)(?:\s+(?<target>\S+))?$`),
		fn:    command.Slap,
		name:  "slap",
	},
	{
		parse: regexp.MustCompile(`(?i)^(?:bricks|balance|inventory)$`),
		fn:    command.Bricks,
		name:  "bricks",
	},
	{
		parse: regexp.MustCompile(`(?i)^(?:claim|daily)$`),
		fn:    command.Claim,
		name:  "claim",
	},
	{
		parse: regexp.MustCompile(`(?i)^(?:help|how\s+do\s+i\s+play\??)?$`),
		fn:    command.Help,
		name:  "help",
	},
}
