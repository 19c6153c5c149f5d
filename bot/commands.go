package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"wysibot/clock"
	"wysibot/discordutils"
	"wysibot/models"
	"wysibot/reminders"
	"wysibot/selfroles"
)

var adminPermissions int64 = discordgo.PermissionAdministrator

var reminderTypeOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionString,
	Name:        "reminder",
	Description: "Which reminder.",
	Required:    true,
	Choices: []*discordgo.ApplicationCommandOptionChoice{
		{Name: "WYSI", Value: string(models.ReminderWYSI)},
		{Name: "Femboy Friday", Value: string(models.ReminderFemboyFriday)},
	},
}

var botCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "remind-subscribe",
		Description: "Get a DM whenever a reminder fires.",
		Options:     []*discordgo.ApplicationCommandOption{reminderTypeOption},
	}, {
		Name:        "remind-unsubscribe",
		Description: "Stop getting DMs for a reminder.",
		Options:     []*discordgo.ApplicationCommandOption{reminderTypeOption},
	}, {
		Name:        "remind-status",
		Description: "Shows when reminders fire next and how their last run went.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "reminder",
				Description: "Which reminder. Defaults to all of them.",
				Required:    false,
				Choices:     reminderTypeOption.Choices,
			},
		},
	}, {
		Name:        "timezone",
		Description: "Sets the timezone and DM preference used for your reminder DMs.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "zone",
				Description: "An IANA timezone, for example Europe/London.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "dms",
				Description: "Whether to receive reminder DMs at all.",
				Required:    false,
			},
		},
	}, {
		Name:                     "remind-test",
		Description:              "Sends a reminder right now without touching its schedule.",
		DefaultMemberPermissions: &adminPermissions,
		Options:                  []*discordgo.ApplicationCommandOption{reminderTypeOption},
	}, {
		Name:                     "remind-setup",
		Description:              "Creates or updates a reminder.",
		DefaultMemberPermissions: &adminPermissions,
		Options: []*discordgo.ApplicationCommandOption{
			reminderTypeOption,
			{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         "channel",
				Description:  "The channel to post in.",
				Required:     true,
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "enabled",
				Description: "Whether the reminder fires. Defaults to on.",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "timezone",
				Description: "IANA timezone the schedule follows.",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "message",
				Description: "Message text. Use {roles} to place the role mentions.",
			},
			{
				Type:        discordgo.ApplicationCommandOptionRole,
				Name:        "role",
				Description: "Role to ping.",
			},
		},
	}, {
		Name:                     "selfrole-deploy",
		Description:              "Posts a self-role menu, or refreshes it if already posted.",
		DefaultMemberPermissions: &adminPermissions,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "menu",
				Description: "The menu's ID.",
				Required:    true,
			},
		},
	},
}

var reminderNames = map[models.ReminderType]string{
	models.ReminderWYSI:         "WYSI",
	models.ReminderFemboyFriday: "Femboy Friday",
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

func (o options) str(name string) (string, bool) {
	opt, ok := o[name]
	if !ok {
		return "", false
	}
	s, ok := opt.Value.(string)
	return s, ok
}

func (o options) boolean(name string) (bool, bool) {
	opt, ok := o[name]
	if !ok {
		return false, false
	}
	b, ok := opt.Value.(bool)
	return b, ok
}

func (o options) integer(name string) (int64, bool) {
	opt, ok := o[name]
	if !ok {
		return 0, false
	}
	f, ok := opt.Value.(float64)
	return int64(f), ok
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func (bot *Bot) isAdmin(i *discordgo.InteractionCreate) bool {
	var roles []*discordgo.Role
	if guild, err := bot.session.State.Guild(i.GuildID); err == nil {
		roles = guild.Roles
	}
	return discordutils.MemberHasAdminPermissions(i.Member, roles)
}

// findReminder looks up the guild's reminder named by the "reminder" option.
// It replies and returns nil if there is none.
func (bot *Bot) findReminder(ctx context.Context, i *discordgo.InteractionCreate, opts options) *models.ReminderConfig {
	value, _ := opts.str("reminder")
	reminderType := models.ReminderType(value)
	cfg, err := bot.reminders.Find(ctx, i.GuildID, reminderType)
	if errors.Is(err, reminders.ErrConfigNotFound) {
		discordutils.SendFollowup(
			fmt.Sprintf("This server has no %s reminder set up.", reminderName(reminderType)),
			i.Interaction, bot.session,
		)
		return nil
	}
	if err != nil {
		bot.replyError(err, "look up reminder", i)
		return nil
	}
	return cfg
}

func (bot *Bot) replyError(err error, action string, i *discordgo.InteractionCreate) {
	log.Error().Err(err).Str("guild_id", i.GuildID).Msgf("Failed to %s.", action)
	discordutils.SendFollowup(fmt.Sprintf("Failed to %s: %v", action, err), i.Interaction, bot.session)
}

// RemindSubscribe opts the invoking user into DMs for a reminder.
func (bot *Bot) RemindSubscribe(ctx context.Context, i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, true, bot.session)

	cfg := bot.findReminder(ctx, i, optionMap(i.ApplicationCommandData().Options))
	if cfg == nil {
		return
	}
	if err := bot.reminders.Subscribe(ctx, interactionUser(i).ID, cfg.ID); err != nil {
		bot.replyError(err, "subscribe", i)
		return
	}
	discordutils.SendFollowup(
		fmt.Sprintf("You'll get a DM whenever the %s reminder fires. Use /timezone to set your timezone.",
			reminderName(cfg.ReminderType)),
		i.Interaction, bot.session,
	)
}

// RemindUnsubscribe opts the invoking user out of DMs for a reminder.
func (bot *Bot) RemindUnsubscribe(ctx context.Context, i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, true, bot.session)

	cfg := bot.findReminder(ctx, i, optionMap(i.ApplicationCommandData().Options))
	if cfg == nil {
		return
	}
	removed, err := bot.reminders.Unsubscribe(ctx, interactionUser(i).ID, cfg.ID)
	if err != nil {
		bot.replyError(err, "unsubscribe", i)
		return
	}

	reply := fmt.Sprintf("You won't get DMs for the %s reminder any more.", reminderName(cfg.ReminderType))
	if !removed {
		reply = fmt.Sprintf("You weren't subscribed to the %s reminder.", reminderName(cfg.ReminderType))
	}
	discordutils.SendFollowup(reply, i.Interaction, bot.session)
}

// RemindTest fires a reminder immediately.
func (bot *Bot) RemindTest(ctx context.Context, i *discordgo.InteractionCreate) {
	if !bot.isAdmin(i) {
		discordutils.RespondEphemeral("Only admins can do that.", i.Interaction, bot.session)
		return
	}
	discordutils.AckInteraction(i.Interaction, true, bot.session)
	cfg := bot.findReminder(ctx, i, optionMap(i.ApplicationCommandData().Options))
	if cfg == nil {
		return
	}

	outcome, err := bot.reminders.TriggerNow(ctx, cfg.ID)
	if err != nil {
		bot.replyError(err, "trigger reminder", i)
		return
	}
	discordutils.SendFollowup(formatOutcome(outcome), i.Interaction, bot.session)
}

// RemindStatus describes one or all of the guild's reminders in the
// invoking user's timezone.
func (bot *Bot) RemindStatus(ctx context.Context, i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, true, bot.session)

	opts := optionMap(i.ApplicationCommandData().Options)
	var configs []models.ReminderConfig
	if _, ok := opts.str("reminder"); ok {
		cfg := bot.findReminder(ctx, i, opts)
		if cfg == nil {
			return
		}
		configs = append(configs, *cfg)
	} else {
		all, err := bot.reminders.ListByGuild(ctx, i.GuildID)
		if err != nil {
			bot.replyError(err, "list reminders", i)
			return
		}
		configs = all
	}
	if len(configs) == 0 {
		discordutils.SendFollowup("This server has no reminders set up.", i.Interaction, bot.session)
		return
	}

	loc := time.UTC
	if settings, err := bot.reminders.UserSettings(ctx, interactionUser(i).ID); err == nil {
		if l, err := clock.LoadLocation(settings.Timezone); err == nil {
			loc = l
		}
	}

	now := time.Now()
	var sections []string
	for _, cfg := range configs {
		st, err := bot.reminders.Status(ctx, cfg.ID)
		if err != nil {
			bot.replyError(err, "load reminder status", i)
			return
		}
		sections = append(sections, formatStatus(st, loc, now))
	}
	discordutils.SendFollowup(strings.Join(sections, "\n\n"), i.Interaction, bot.session)
}

// Timezone shows or updates the invoking user's reminder settings.
func (bot *Bot) Timezone(ctx context.Context, i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, true, bot.session)

	userID := interactionUser(i).ID
	settings, err := bot.reminders.UserSettings(ctx, userID)
	if err != nil {
		bot.replyError(err, "load your settings", i)
		return
	}

	opts := optionMap(i.ApplicationCommandData().Options)
	zone, zoneSet := opts.str("zone")
	dms, dmsSet := opts.boolean("dms")
	if zoneSet || dmsSet {
		if !zoneSet {
			zone = settings.Timezone
		}
		if !dmsSet {
			dms = settings.DMRemindersEnabled
		}
		settings, err = bot.reminders.SetUserSettings(ctx, userID, zone, dms)
		if errors.Is(err, reminders.ErrInvalidTimezone) {
			discordutils.SendFollowup(
				fmt.Sprintf("I don't know the timezone %q. Try something like Europe/London or America/New_York.", zone),
				i.Interaction, bot.session,
			)
			return
		}
		if err != nil {
			bot.replyError(err, "save your settings", i)
			return
		}
	}

	discordutils.SendFollowup(formatSettings(settings), i.Interaction, bot.session)
}

// RemindSetup creates or updates one of the guild's reminders.
func (bot *Bot) RemindSetup(ctx context.Context, i *discordgo.InteractionCreate) {
	if !bot.isAdmin(i) {
		discordutils.RespondEphemeral("Only admins can do that.", i.Interaction, bot.session)
		return
	}
	discordutils.AckInteraction(i.Interaction, true, bot.session)

	opts := optionMap(i.ApplicationCommandData().Options)
	value, _ := opts.str("reminder")
	reminderType := models.ReminderType(value)
	channelID, _ := opts.str("channel")

	cfg, err := bot.reminders.Find(ctx, i.GuildID, reminderType)
	switch {
	case errors.Is(err, reminders.ErrConfigNotFound):
		cfg = reminders.NewConfig(i.GuildID, reminderType, channelID)
	case err != nil:
		bot.replyError(err, "look up reminder", i)
		return
	}

	cfg.ChannelID = channelID
	cfg.Enabled = true
	if enabled, ok := opts.boolean("enabled"); ok {
		cfg.Enabled = enabled
	}
	if zone, ok := opts.str("timezone"); ok {
		cfg.Timezone = zone
	}
	if message, ok := opts.str("message"); ok {
		cfg.MessageContent = message
	}

	pingRoleIDs := make([]string, 0, len(cfg.PingRoles))
	for _, role := range cfg.PingRoles {
		pingRoleIDs = append(pingRoleIDs, role.RoleID)
	}
	if roleID, ok := opts.str("role"); ok {
		pingRoleIDs = []string{roleID}
	}

	if err := bot.reminders.Save(ctx, cfg, pingRoleIDs); err != nil {
		bot.replyError(err, "save reminder", i)
		return
	}
	log.Info().
		Str("guild_id", i.GuildID).
		Uint("config_id", cfg.ID).
		Str("type", string(cfg.ReminderType)).
		Bool("enabled", cfg.Enabled).
		Msg("Saved reminder config.")

	st, err := bot.reminders.Status(ctx, cfg.ID)
	if err != nil {
		bot.replyError(err, "load reminder status", i)
		return
	}
	loc, err := clock.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	discordutils.SendFollowup("Saved.\n\n"+formatStatus(st, loc, time.Now()), i.Interaction, bot.session)
}

// SelfRoleDeploy posts or refreshes a self-role menu.
func (bot *Bot) SelfRoleDeploy(ctx context.Context, i *discordgo.InteractionCreate) {
	if !bot.isAdmin(i) {
		discordutils.RespondEphemeral("Only admins can do that.", i.Interaction, bot.session)
		return
	}
	discordutils.AckInteraction(i.Interaction, true, bot.session)

	id, _ := optionMap(i.ApplicationCommandData().Options).integer("menu")
	menu, err := bot.selfRoles.Get(ctx, uint(id))
	if errors.Is(err, selfroles.ErrConfigNotFound) || (err == nil && menu.GuildID != i.GuildID) {
		discordutils.SendFollowup(fmt.Sprintf("There is no self-role menu %d in this server.", id), i.Interaction, bot.session)
		return
	}
	if err != nil {
		bot.replyError(err, "load self-role menu", i)
		return
	}

	messageID, err := bot.selfRoles.Deploy(ctx, menu.ID)
	if err != nil {
		bot.replyError(err, "deploy self-role menu", i)
		return
	}
	discordutils.SendFollowup(
		fmt.Sprintf("Menu %q is live: https://discord.com/channels/%s/%s/%s", menu.Title, menu.GuildID, menu.ChannelID, messageID),
		i.Interaction, bot.session,
	)
}

// SelfRolePress applies a self-role button press and answers the presser
// privately.
func (bot *Bot) SelfRolePress(ctx context.Context, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	if i.GuildID == "" || user == nil || i.Message == nil {
		discordutils.RespondEphemeral("Self-role buttons only work inside a server.", i.Interaction, bot.session)
		return
	}
	discordutils.AckInteraction(i.Interaction, true, bot.session)

	res := bot.presses.Handle(ctx, selfroles.Press{
		GuildID:   i.GuildID,
		UserID:    user.ID,
		MessageID: i.Message.ID,
		CustomID:  i.MessageComponentData().CustomID,
		At:        time.Now(),
	})
	discordutils.SendFollowup(res.Message, i.Interaction, bot.session)
}

func reminderName(t models.ReminderType) string {
	if name, ok := reminderNames[t]; ok {
		return name
	}
	return string(t)
}

func formatOutcome(o reminders.Outcome) string {
	switch o.Status {
	case models.StatusSuccess:
		return fmt.Sprintf("Sent! %s notified by DM.", pluralUsers(o.Notified))
	case models.StatusPartial:
		return fmt.Sprintf("Sent, but some DMs failed (%s notified): %v", pluralUsers(o.Notified), o.Err)
	default:
		return fmt.Sprintf("Failed to send the reminder: %v", o.Err)
	}
}

func pluralUsers(n int) string {
	if n == 1 {
		return "1 user"
	}
	return fmt.Sprintf("%s users", humanize.Comma(int64(n)))
}

func formatStatus(st *reminders.Status, loc *time.Location, now time.Time) string {
	cfg := st.Config
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** in <#%s>", reminderName(cfg.ReminderType), cfg.ChannelID)
	if !cfg.Enabled {
		b.WriteString(" (disabled)")
	}

	if st.NextDue != nil {
		fmt.Fprintf(&b, "\nNext: %s (%s)",
			clock.InZone(*st.NextDue, loc),
			humanize.RelTime(*st.NextDue, now, "ago", "from now"))
	}

	if st.LastRun == nil {
		b.WriteString("\nLast run: never")
		return b.String()
	}
	last := st.LastRun
	fmt.Fprintf(&b, "\nLast run: %s (%s, %s), %s, %s notified",
		clock.InZone(last.ExecutedAt, loc),
		humanize.RelTime(last.ExecutedAt, now, "ago", "from now"),
		last.TriggeredBy,
		last.Status,
		pluralUsers(last.UsersNotified))
	if last.ErrorMessage != nil && *last.ErrorMessage != "" {
		fmt.Fprintf(&b, "\nError: %s", *last.ErrorMessage)
	}
	return b.String()
}

func formatSettings(s models.UserSettings) string {
	dms := "on"
	if !s.DMRemindersEnabled {
		dms = "off"
	}
	return fmt.Sprintf("Your timezone is %s and reminder DMs are %s.", s.Timezone, dms)
}
