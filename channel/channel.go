package channel

import (
	"context"

	"gitlab.com/zephyrtronium/pick"
	"golang.org/x/time/rate"

	"github.com/zephyrtronium/brick/message"
)

// Channel is the chat context of one guild.
type Channel struct {
	// ID is the guild ID.
	ID string
	// Name is the configured name of the guild group.
	Name string
	// Message sends a message to a text channel in the guild.
	Message func(ctx context.Context, msg message.Sent)
	// Rate is the rate limiter for command replies. Commands in excess of the
	// rate limit are dropped.
	Rate *rate.Limiter
	// Ignore is the set of user IDs whose commands are ignored.
	// Their messages still count toward crafting.
	Ignore map[string]bool
	// Emotes is the distribution of emotes appended to replies.
	Emotes *pick.Dist[string]
	// History is the recent senders in the guild.
	History *History
}
