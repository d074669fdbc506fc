package bot

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	colorBlue   = 0x3498DB
	colorOrange = 0xE67E22
	colorRed    = 0xE74C3C

	maxEmbedFields = 25
	maxEmbedChars  = 5900
)

func (b *Bot) handleListTimers(s *discordgo.Session, i *discordgo.InteractionCreate, log *zap.Logger) {
	timers := b.registry.List(i.GuildID)
	if len(timers) == 0 {
		respondWithMessage(s, i, "ℹ️ No maintenance timers are set up.")
		return
	}

	guildName := i.GuildID
	if g, err := s.State.Guild(i.GuildID); err == nil {
		guildName = g.Name
	}

	embed := &discordgo.MessageEmbed{
		Title: "Maintenance Timers for " + guildName,
		Color: colorBlue,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Global pending reminder interval: %d days", b.registry.ReminderRepeatDays()),
		},
	}

	now := time.Now().UTC()
	total := len(embed.Title) + len(embed.Footer.Text)
	truncated := false
	for _, t := range timers {
		status := "⏳ Active"
		if t.IsPending {
			status = "🚨 PENDING"
		}
		field := &discordgo.MessageEmbedField{
			Name: fmt.Sprintf("%s - %s", status, t.Name),
			Value: fmt.Sprintf("**Owner:** %s\n**Task:** %s\n**When:** %s\n**Channel:** %s",
				t.Owner, t.Description, whenDisplay(t.NextDue, t.IsPending, now),
				b.channelDisplay(t.ChannelID)),
		}

		total += len(field.Name) + len(field.Value)
		if len(embed.Fields) >= maxEmbedFields || total > maxEmbedChars {
			truncated = true
			break
		}
		embed.Fields = append(embed.Fields, field)
	}
	if truncated {
		embed.Description = "⚠️ Too many timers to display, showing the first ones."
	}

	respondWithEmbed(s, i, embed)
	log.Info("timers listed", zap.Int("count", len(timers)), zap.Bool("truncated", truncated))
}

// whenDisplay renders the due line of a list entry. A pending timer keeps
// showing when it was originally due and for how long it has been waiting.
func whenDisplay(nextDue *time.Time, isPending bool, now time.Time) string {
	if nextDue == nil {
		return "Next due date not set."
	}
	ts := nextDue.Format("2006-01-02 15:04 UTC")
	if isPending {
		return fmt.Sprintf("Originally due: %s (%s ago)", ts, formatDelta(now.Sub(*nextDue)))
	}
	if remaining := nextDue.Sub(now); remaining > 0 {
		return fmt.Sprintf("Next due: %s (in %s)", ts, formatDelta(remaining))
	}
	return fmt.Sprintf("Due: %s (Overdue!)", ts)
}

// channelDisplay renders a channel mention, falling back to the raw id
// (and the configured default channel, if any) when the channel is gone.
func (b *Bot) channelDisplay(channelID string) string {
	if _, err := b.session.State.Channel(channelID); err == nil {
		return "<#" + channelID + ">"
	}
	if fallback := b.config.Reminders.DefaultChannelID; fallback != "" {
		return fmt.Sprintf("ID: %s (unresolved, default <#%s>)", channelID, fallback)
	}
	return "ID: " + channelID
}
