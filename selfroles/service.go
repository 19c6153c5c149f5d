package selfroles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"wysibot/dal"
	"wysibot/discordutils"
	"wysibot/models"
)

// Menu layout limits imposed by Discord message components.
const (
	ButtonsPerRow = 5
	MaxRows       = 5
	MaxRoles      = ButtonsPerRow * MaxRows
)

// MenuColor is the accent colour of deployed menus.
const MenuColor = 0x667EEA

// Publisher posts and edits menu messages.
type Publisher interface {
	SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (string, error)
	EditMessage(ctx context.Context, edit *discordgo.MessageEdit) error
}

// Service manages self-role menus.
type Service struct {
	DB        *gorm.DB
	Publisher Publisher
	Guild     Guild
}

// Validate normalises cfg and reports the first problem with it.
func Validate(cfg *models.SelfRoleConfig) error {
	cfg.ChannelID = strings.TrimSpace(cfg.ChannelID)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.SelectionType == "" {
		cfg.SelectionType = models.SelectionMultiple
	}

	if cfg.ChannelID == "" {
		return ErrMissingChannel
	}
	if cfg.Title == "" {
		return ErrMissingTitle
	}
	switch cfg.SelectionType {
	case models.SelectionRadio, models.SelectionMultiple:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSelectionPolicy, cfg.SelectionType)
	}
	if len(cfg.Roles) == 0 {
		return ErrNoRoles
	}
	if len(cfg.Roles) > MaxRoles {
		return fmt.Errorf("%w: %d, at most %d", ErrTooManyRoles, len(cfg.Roles), MaxRoles)
	}

	emojis := make(map[string]bool, len(cfg.Roles))
	roles := make(map[string]bool, len(cfg.Roles))
	for i := range cfg.Roles {
		r := &cfg.Roles[i]
		r.Emoji = strings.TrimSpace(r.Emoji)
		r.RoleID = strings.TrimSpace(r.RoleID)
		if r.Emoji == "" {
			return ErrMissingEmoji
		}
		if emojis[r.Emoji] {
			return fmt.Errorf("%w: %s", ErrDuplicateEmoji, r.Emoji)
		}
		if r.RoleID == "" || roles[r.RoleID] {
			return fmt.Errorf("%w: %q", ErrDuplicateRole, r.RoleID)
		}
		emojis[r.Emoji] = true
		roles[r.RoleID] = true
	}
	return nil
}

// Create validates and stores a new menu. It is not posted until Deploy.
func (s *Service) Create(ctx context.Context, cfg *models.SelfRoleConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	cfg.ID = 0
	cfg.MessageID = nil
	return dal.CreateSelfRoleConfig(ctx, cfg, s.DB)
}

// Update replaces a menu's text, policy and roles. A deployed menu keeps its
// message; call Deploy to refresh it.
func (s *Service) Update(ctx context.Context, cfg *models.SelfRoleConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	return translate(dal.UpdateSelfRoleConfig(ctx, cfg, s.DB))
}

// Delete removes a menu. Its posted message, if any, is left in place and
// its buttons become stale.
func (s *Service) Delete(ctx context.Context, id uint) error {
	return translate(dal.DeleteSelfRoleConfig(ctx, id, s.DB))
}

// Get returns one menu with its roles.
func (s *Service) Get(ctx context.Context, id uint) (*models.SelfRoleConfig, error) {
	cfg, err := dal.GetSelfRoleConfig(ctx, id, s.DB)
	return cfg, translate(err)
}

// ListByGuild returns a guild's menus, newest first.
func (s *Service) ListByGuild(ctx context.Context, guildID string) ([]models.SelfRoleConfig, error) {
	return dal.ListGuildSelfRoleConfigs(ctx, guildID, s.DB)
}

// Deploy posts a menu, or edits its existing message in place. A menu whose
// message was deleted is posted again. It returns the message ID.
func (s *Service) Deploy(ctx context.Context, id uint) (string, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	guildRoles, err := s.Guild.Roles(ctx, cfg.GuildID)
	if err != nil {
		return "", fmt.Errorf("guild roles: %w", err)
	}
	embeds := []*discordgo.MessageEmbed{MenuEmbed(cfg)}
	components := MenuComponents(cfg, guildRoles)

	logger := log.With().Uint("config_id", cfg.ID).Str("guild_id", cfg.GuildID).Logger()

	if cfg.MessageID != nil {
		edit := discordgo.NewMessageEdit(cfg.ChannelID, *cfg.MessageID)
		edit.Embeds = &embeds
		edit.Components = &components
		err := s.Publisher.EditMessage(ctx, edit)
		if err == nil {
			logger.Info().Str("message_id", *cfg.MessageID).Msg("Updated self-role menu.")
			return *cfg.MessageID, nil
		}
		if !errors.Is(err, discordutils.ErrUnknownMessage) {
			return "", fmt.Errorf("edit menu: %w", err)
		}
		logger.Info().Str("message_id", *cfg.MessageID).Msg("Self-role menu message is gone, posting a new one.")
	}

	messageID, err := s.Publisher.SendMessage(ctx, cfg.ChannelID, &discordgo.MessageSend{
		Embeds:     embeds,
		Components: components,
	})
	if err != nil {
		return "", fmt.Errorf("post menu: %w", err)
	}
	if err := dal.SetSelfRoleMessageID(ctx, cfg.ID, messageID, s.DB); err != nil {
		return "", translate(err)
	}
	logger.Info().Str("message_id", messageID).Msg("Deployed self-role menu.")
	return messageID, nil
}

// ForgetMessage deletes the menu deployed as messageID. It reports whether
// there was one.
func (s *Service) ForgetMessage(ctx context.Context, messageID string) (bool, error) {
	return dal.DeleteSelfRoleConfigByMessageID(ctx, messageID, s.DB)
}

// MenuEmbed renders the menu's message embed.
func MenuEmbed(cfg *models.SelfRoleConfig) *discordgo.MessageEmbed {
	hint := "Pick as many roles as you like. Press again to remove one."
	if cfg.SelectionType == models.SelectionRadio {
		hint = "Pick one role. Picking another replaces it."
	}
	return &discordgo.MessageEmbed{
		Title:       cfg.Title,
		Description: cfg.Body,
		Color:       MenuColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: hint},
	}
}

// MenuComponents lays the menu's buttons out in rows. Roles missing from
// guildRoles are left out.
func MenuComponents(cfg *models.SelfRoleConfig, guildRoles []*discordgo.Role) []discordgo.MessageComponent {
	var (
		rows    []discordgo.MessageComponent
		current []discordgo.MessageComponent
	)
	for _, mapping := range cfg.Roles {
		role, found := discordutils.FindRole(mapping.RoleID, guildRoles)
		if !found {
			log.Warn().Uint("config_id", cfg.ID).Str("role_id", mapping.RoleID).Msg("Self-role menu references a missing role.")
			continue
		}
		current = append(current, discordgo.Button{
			Label:    strings.TrimSpace(mapping.Emoji + " " + role.Name),
			Style:    discordgo.SecondaryButton,
			CustomID: CustomID(cfg.ID, mapping.RoleID),
		})
		if len(current) == ButtonsPerRow {
			rows = append(rows, discordgo.ActionsRow{Components: current})
			current = nil
		}
	}
	if len(current) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: current})
	}
	if len(rows) > MaxRows {
		rows = rows[:MaxRows]
	}
	return rows
}

func translate(err error) error {
	if errors.Is(err, dal.ErrNotFound) {
		return ErrConfigNotFound
	}
	return err
}
