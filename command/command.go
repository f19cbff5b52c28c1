package command

import (
	"context"

	"github.com/zephyrtronium/brick/channel"
	"github.com/zephyrtronium/brick/message"
)

// Invocation is a command invocation. An Invocation and its fields must not
// be modified or retained by any command.
type Invocation struct {
	// Channel is the guild where the invocation occurred.
	Channel *channel.Channel
	// Message is the message which triggered the invocation. It is always
	// non-nil, but not all fields are guaranteed to be populated.
	Message *message.Received
	// Args is the parsed arguments to the command.
	Args map[string]string
	// Reply sends the response to the invocation.
	Reply func(ctx context.Context, msg message.Sent)
}

// Func executes a command.
type Func func(ctx context.Context, robo *Robot, call *Invocation)
