package bot

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"maintbot/internal/scheduler"
)

// The Bot is the scheduler's notification dispatcher: it resolves channels
// and renders reminders as Discord embeds.
var _ scheduler.Dispatcher = (*Bot)(nil)

// ResolveChannel checks that the timer's channel is currently deliverable.
// The state cache answers for every guild the bot is in; the REST fallback
// covers a cold cache right after connect.
func (b *Bot) ResolveChannel(channelID string) error {
	if _, err := b.session.State.Channel(channelID); err == nil {
		return nil
	}
	if _, err := b.session.Channel(channelID); err != nil {
		return fmt.Errorf("%w: %s", scheduler.ErrChannelNotFound, channelID)
	}
	return nil
}

// Send delivers one reminder to its channel.
func (b *Bot) Send(channelID string, n scheduler.Notification) error {
	msg := &discordgo.MessageSend{}
	switch n.Kind {
	case scheduler.KindDue:
		msg.Embeds = []*discordgo.MessageEmbed{{
			Title: "🚨 Maintenance Due: " + n.Timer.Name,
			Description: fmt.Sprintf(
				"**Task:** %s\n**Owner:** %s\n\nPlease complete the task and use `/done %s`",
				n.Timer.Description, n.Timer.Owner, n.Timer.Name),
			Color:     colorOrange,
			Timestamp: n.Now.Format("2006-01-02T15:04:05Z07:00"),
		}}
	case scheduler.KindRepeat:
		msg.Content = "cc: " + n.Timer.Owner
		msg.Embeds = []*discordgo.MessageEmbed{{
			Title: "🔁 Maintenance Still Pending: " + n.Timer.Name,
			Description: fmt.Sprintf(
				"**Task:** %s\n**Owner:** %s\n\nThis is a reminder (repeats every %d days until done).\nPlease complete the task and use `/done %s`",
				n.Timer.Description, n.Timer.Owner, n.RepeatDays, n.Timer.Name),
			Color:     colorRed,
			Timestamp: n.Now.Format("2006-01-02T15:04:05Z07:00"),
		}}
	default:
		return fmt.Errorf("unknown notification kind %d", n.Kind)
	}

	if _, err := b.session.ChannelMessageSendComplex(channelID, msg); err != nil {
		return translateSendError(err)
	}
	return nil
}

// translateSendError maps Discord API failures onto the scheduler's
// sentinel errors so it can decide retry behavior without knowing discordgo.
func translateSendError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return fmt.Errorf("%w: %s", scheduler.ErrForbidden, restErr.Message.Message)
		case discordgo.ErrCodeUnknownChannel:
			return fmt.Errorf("%w: %s", scheduler.ErrChannelNotFound, restErr.Message.Message)
		}
	}
	return err
}
