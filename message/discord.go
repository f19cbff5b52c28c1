package message

import "github.com/bwmarrin/discordgo"

// FromDiscord adapts a Discord message creation event.
func FromDiscord(ev *discordgo.MessageCreate) *Received {
	r := Received{
		ID:        ev.ID,
		To:        ev.GuildID,
		Channel:   ev.ChannelID,
		Text:      ev.Content,
		Timestamp: ev.Timestamp.UnixMilli(),
	}
	if ev.Author != nil {
		r.Sender = ev.Author.ID
		r.Name = ev.Author.Username
		if ev.Author.GlobalName != "" {
			r.Name = ev.Author.GlobalName
		}
		r.IsBot = ev.Author.Bot
	}
	if ev.Member != nil && ev.Member.Nick != "" {
		r.Name = ev.Member.Nick
	}
	return &r
}

// ToDiscord creates a message to send to Discord.
// Only user mentions in the text notify anyone.
func ToDiscord(msg Sent) *discordgo.MessageSend {
	r := discordgo.MessageSend{
		Content: msg.Text,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}
	if msg.Reply != "" {
		r.Reference = &discordgo.MessageReference{MessageID: msg.Reply, ChannelID: msg.To}
	}
	return &r
}
