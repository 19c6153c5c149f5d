// Package bot wires the reminder scheduler and self-role menus to a Discord
// session.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"wysibot/config"
	"wysibot/discordutils"
	"wysibot/reminders"
	"wysibot/selfroles"
)

type commandHandler = func(context.Context, *discordgo.InteractionCreate)

// Bot represents a running instance of the reminder and self-role bot.
type Bot struct {
	cfg                config.Config
	db                 *gorm.DB
	session            *discordgo.Session
	scheduler          *reminders.Scheduler
	reminders          *reminders.Service
	selfRoles          *selfroles.Service
	presses            *selfroles.Handler
	registeredCommands []*discordgo.ApplicationCommand
	commandHandlers    map[string]commandHandler
	ctx                context.Context
}

// New opens a Discord session, registers the slash commands and returns
// the bot. Background loops are not started until Run.
func New(ctx context.Context, cfg config.Config, db *gorm.DB) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	client := discordutils.NewClient(session, cfg.SendTimeout, cfg.DMRate, cfg.DMBurst)
	executor := reminders.NewExecutor(db, client, cfg.DMConcurrency)
	scheduler := reminders.NewScheduler(db, executor, reminders.WithInterval(cfg.PollInterval))

	bot := &Bot{
		cfg:       cfg,
		db:        db,
		session:   session,
		scheduler: scheduler,
		reminders: &reminders.Service{DB: db, Scheduler: scheduler},
		selfRoles: &selfroles.Service{DB: db, Publisher: client, Guild: client},
		presses:   selfroles.NewHandler(db, client, cfg.SelfRoleCooldown),
		ctx:       ctx,
	}
	bot.commandHandlers = map[string]commandHandler{
		"remind-subscribe":   bot.RemindSubscribe,
		"remind-unsubscribe": bot.RemindUnsubscribe,
		"remind-test":        bot.RemindTest,
		"remind-status":      bot.RemindStatus,
		"timezone":           bot.Timezone,
		"remind-setup":       bot.RemindSetup,
		"selfrole-deploy":    bot.SelfRoleDeploy,
	}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("Bot is up!")
	})
	session.AddHandler(bot.onInteraction)
	session.AddHandler(bot.onMessageDelete)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if err := bot.registerCommands(); err != nil {
		_ = session.Close()
		return nil, err
	}
	return bot, nil
}

func (bot *Bot) registerCommands() error {
	for _, command := range botCommands {
		newCommand, err := bot.session.ApplicationCommandCreate(
			bot.session.State.User.ID,
			bot.cfg.GuildID,
			command,
		)
		if err != nil {
			return fmt.Errorf("create %s command: %w", command.Name, err)
		}
		bot.registeredCommands = append(bot.registeredCommands, newCommand)
		log.Info().Str("command", command.Name).Msg("Created command.")
	}
	return nil
}

func (bot *Bot) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if handler, ok := bot.commandHandlers[i.ApplicationCommandData().Name]; ok {
			handler(bot.ctx, i)
		}
	case discordgo.InteractionMessageComponent:
		if strings.HasPrefix(i.MessageComponentData().CustomID, selfroles.CustomIDPrefix) {
			bot.SelfRolePress(bot.ctx, i)
		}
	}
}

func (bot *Bot) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	forgotten, err := bot.selfRoles.ForgetMessage(bot.ctx, m.ID)
	if err != nil {
		log.Error().Err(err).Str("message_id", m.ID).Msg("Failed to forget deleted self-role menu.")
		return
	}
	if forgotten {
		log.Info().Str("message_id", m.ID).Str("guild_id", m.GuildID).Msg("Self-role menu message deleted, removed its config.")
	}
}

// Shutdown removes the registered commands and closes the session.
func (bot *Bot) Shutdown() {
	log.Info().Msg("Shutting down.")

	for _, command := range bot.registeredCommands {
		err := bot.session.ApplicationCommandDelete(
			bot.session.State.User.ID,
			bot.cfg.GuildID,
			command.ID,
		)
		if err != nil {
			log.Warn().Err(err).Str("command", command.Name).Msg("Failed to delete command.")
		} else {
			log.Info().Str("command", command.Name).Msg("Deleted command.")
		}
	}

	if err := bot.session.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close session.")
	}
}
