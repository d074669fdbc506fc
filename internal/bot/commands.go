package bot

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"maintbot/internal/timer"
)

var unitChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "Days", Value: string(timer.UnitDays)},
	{Name: "Weeks", Value: string(timer.UnitWeeks)},
	{Name: "Months", Value: string(timer.UnitMonths)},
}

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "create_timer",
		Description: "Creates a new maintenance timer",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "name",
				Description: "A unique name for this timer (no spaces)",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "interval_value",
				Description: "How often the task repeats (e.g., 7, 2, 1)",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "interval_unit",
				Description: "The unit for the interval",
				Required:    true,
				Choices:     unitChoices,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "owner",
				Description: "The primary person responsible. Including an @ will tag this person/group.",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "description",
				Description: "What needs to be done (can include spaces)",
				Required:    true,
			},
		},
	},
	{
		Name:        "edit_timer",
		Description: "Changes fields of an existing maintenance timer",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionString,
				Name:         "name",
				Description:  "The timer to edit",
				Required:     true,
				Autocomplete: true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "interval_value",
				Description: "New repeat interval value",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "interval_unit",
				Description: "New repeat interval unit",
				Required:    false,
				Choices:     unitChoices,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "owner",
				Description: "New owner",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "description",
				Description: "New task description",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "channel",
				Description: "New channel for reminders",
				Required:    false,
			},
		},
	},
	{
		Name:        "done",
		Description: "Marks a pending maintenance timer as completed",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionString,
				Name:         "name",
				Description:  "The name of the timer to mark as done",
				Required:     true,
				Autocomplete: true,
			},
		},
	},
	{
		Name:        "list_timers",
		Description: "Lists all active maintenance timers",
	},
	{
		Name:        "delete_timer",
		Description: "Permanently deletes a maintenance timer",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionString,
				Name:         "name",
				Description:  "The name of the timer to delete",
				Required:     true,
				Autocomplete: true,
			},
		},
	},
	{
		Name:        "get_reminder_interval",
		Description: "Shows the global interval for pending reminders",
	},
	{
		Name:        "set_reminder_interval",
		Description: "Sets the global interval (days) for pending reminders",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "days",
				Description: "The number of days between reminders for pending tasks",
				Required:    true,
			},
		},
	},
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	select {
	case <-b.shutdownCh:
		return
	default:
	}
	b.wg.Add(1)
	defer b.wg.Done()

	commandName := i.ApplicationCommandData().Name
	requestID := uuid.New().String()
	log := b.log.With(
		zap.String("request_id", requestID),
		zap.String("command", commandName),
		zap.String("guild_id", i.GuildID),
		zap.String("user", usernameOf(i)))

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			log.Error("panic in command handler",
				zap.Any("panic", r), zap.ByteString("stack", buf[:n]))
			respondWithError(s, i, "An internal error occurred")
		}
	}()

	if i.GuildID == "" && !dmAllowedCommands[commandName] {
		respondWithError(s, i, fmt.Sprintf("The `/%s` command can only be used in a server", commandName))
		return
	}

	log.Info("command received")

	switch commandName {
	case "create_timer":
		b.handleCreateTimer(s, i, log)
	case "edit_timer":
		b.handleEditTimer(s, i, log)
	case "done":
		b.handleDone(s, i, log)
	case "list_timers":
		b.handleListTimers(s, i, log)
	case "delete_timer":
		b.handleDeleteTimer(s, i, log)
	case "get_reminder_interval":
		b.handleGetReminderInterval(s, i)
	case "set_reminder_interval":
		b.handleSetReminderInterval(s, i, log)
	default:
		log.Warn("unknown command")
		respondWithError(s, i, "Unknown command")
	}
}

func (b *Bot) handleCreateTimer(s *discordgo.Session, i *discordgo.InteractionCreate, log *zap.Logger) {
	opts := optionMap(i)
	name := opts["name"].StringValue()
	intervalValue := int(opts["interval_value"].IntValue())
	unit, err := timer.ParseUnit(opts["interval_unit"].StringValue())
	if err != nil {
		respondWithError(s, i, err.Error())
		return
	}

	created, err := b.registry.Create(timer.CreateParams{
		GuildID:       i.GuildID,
		Name:          name,
		IntervalValue: intervalValue,
		IntervalUnit:  unit,
		Owner:         opts["owner"].StringValue(),
		Description:   opts["description"].StringValue(),
		ChannelID:     i.ChannelID,
	})
	if err != nil {
		respondWithError(s, i, err.Error())
		return
	}
	b.persist()

	respondWithMessage(s, i, fmt.Sprintf(
		"✅ Timer **%s** created!\nIt will first trigger on %s.\nPending reminders repeat every %d days (global setting).",
		created.Name,
		created.NextDue.Format("2006-01-02 15:04:05 UTC"),
		b.registry.ReminderRepeatDays()))
	log.Info("timer created", zap.String("timer", created.Name))
}

func (b *Bot) handleEditTimer(s *discordgo.Session, i *discordgo.InteractionCreate, log *zap.Logger) {
	opts := optionMap(i)
	name := opts["name"].StringValue()

	var params timer.EditParams
	if opt, ok := opts["interval_value"]; ok {
		v := int(opt.IntValue())
		params.IntervalValue = &v
	}
	if opt, ok := opts["interval_unit"]; ok {
		unit, err := timer.ParseUnit(opt.StringValue())
		if err != nil {
			respondWithError(s, i, err.Error())
			return
		}
		params.IntervalUnit = &unit
	}
	if opt, ok := opts["owner"]; ok {
		v := opt.StringValue()
		params.Owner = &v
	}
	if opt, ok := opts["description"]; ok {
		v := opt.StringValue()
		params.Description = &v
	}
	if opt, ok := opts["channel"]; ok {
		v := opt.ChannelValue(nil).ID
		params.ChannelID = &v
	}

	edited, err := b.registry.Edit(i.GuildID, name, params)
	if err != nil {
		respondWithError(s, i, err.Error())
		return
	}
	b.persist()

	msg := fmt.Sprintf("✅ Timer **%s** updated.", edited.Name)
	if edited.NextDue != nil && !edited.IsPending {
		msg += fmt.Sprintf(" Next due %s.", edited.NextDue.Format("2006-01-02 15:04:05 UTC"))
	}
	respondWithMessage(s, i, msg)
	log.Info("timer edited", zap.String("timer", name))
}

func (b *Bot) handleDone(s *discordgo.Session, i *discordgo.InteractionCreate, log *zap.Logger) {
	name := optionMap(i)["name"].StringValue()

	done, err := b.registry.MarkDone(i.GuildID, name)
	switch {
	case errors.Is(err, timer.ErrNotPending):
		// Soft rejection, not a fault: nothing was waiting on completion.
		respondWithMessage(s, i, fmt.Sprintf("ℹ️ Timer **%s** was not pending completion.", name))
		return
	case err != nil:
		respondWithError(s, i, err.Error())
		return
	}
	b.persist()

	respondWithMessage(s, i, fmt.Sprintf(
		"✅ Timer **%s** marked as done by %s!\nIt will trigger again around %s.",
		done.Name, mentionOf(i), done.NextDue.Format("2006-01-02 15:04:05 UTC")))
	log.Info("timer marked done", zap.String("timer", name))
}

func (b *Bot) handleDeleteTimer(s *discordgo.Session, i *discordgo.InteractionCreate, log *zap.Logger) {
	if !hasManageServer(i) {
		respondWithError(s, i, "You need 'Manage Server' permission to use this command")
		return
	}
	name := optionMap(i)["name"].StringValue()

	if err := b.registry.Delete(i.GuildID, name); err != nil {
		respondWithError(s, i, err.Error())
		return
	}
	b.persist()

	respondWithMessage(s, i, fmt.Sprintf("🗑️ Timer **%s** has been deleted.", name))
	log.Info("timer deleted", zap.String("timer", name))
}

func (b *Bot) handleGetReminderInterval(s *discordgo.Session, i *discordgo.InteractionCreate) {
	respondWithMessage(s, i, fmt.Sprintf(
		"ℹ️ Pending tasks are reminded every **%d** days globally.",
		b.registry.ReminderRepeatDays()))
}

func (b *Bot) handleSetReminderInterval(s *discordgo.Session, i *discordgo.InteractionCreate, log *zap.Logger) {
	if !hasManageServer(i) {
		respondWithError(s, i, "You need 'Manage Server' permission to use this command")
		return
	}
	days := int(optionMap(i)["days"].IntValue())

	if err := b.registry.SetReminderRepeatDays(days); err != nil {
		respondWithError(s, i, "Interval must be positive")
		return
	}
	b.persist()

	respondWithMessage(s, i, fmt.Sprintf("✅ Global reminder interval set to **%d** days.", days))
	log.Info("global reminder interval changed", zap.Int("days", days))
}

// handleAutocomplete suggests timer names for the currently focused name
// option, filtered by what the user typed so far.
func (b *Bot) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		return
	}
	var partial string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Focused && opt.Name == "name" {
			partial = strings.ToLower(opt.StringValue())
			break
		}
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, 25)
	for _, t := range b.registry.List(i.GuildID) {
		if partial != "" && !strings.Contains(strings.ToLower(t.Name), partial) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  t.Name,
			Value: t.Name,
		})
		if len(choices) == 25 {
			break
		}
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		b.log.Warn("error responding to autocomplete", zap.Error(err))
	}
}
