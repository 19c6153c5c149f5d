package reminders

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"

	"wysibot/clock"
	"wysibot/models"
)

// RolesToken marks where role mentions go in a text reminder. Without it the
// mentions are put on a line before the content.
const RolesToken = "{roles}"

// DefaultEmbedColor is used for embeds that leave the colour unset.
const DefaultEmbedColor = 0x667EEA

var defaultContent = map[models.ReminderType]string{
	models.ReminderWYSI:         "When you see it! It's 7:27.",
	models.ReminderFemboyFriday: "Happy Femboy Friday!",
}

func content(cfg *models.ReminderConfig) string {
	if c := strings.TrimSpace(cfg.MessageContent); c != "" {
		return c
	}
	if c, ok := defaultContent[cfg.ReminderType]; ok {
		return c
	}
	return cfg.Name
}

func pingRoleIDs(cfg *models.ReminderConfig) []string {
	ids := make([]string, 0, len(cfg.PingRoles))
	for _, r := range cfg.PingRoles {
		ids = append(ids, r.RoleID)
	}
	return ids
}

func mentions(roleIDs []string) string {
	parts := make([]string, len(roleIDs))
	for i, id := range roleIDs {
		parts[i] = "<@&" + id + ">"
	}
	return strings.Join(parts, " ")
}

// withMentions substitutes the roles token, or prefixes the mentions when
// the text has none.
func withMentions(text, mention string) string {
	if strings.Contains(text, RolesToken) {
		return strings.TrimSpace(strings.ReplaceAll(text, RolesToken, mention))
	}
	if mention == "" {
		return text
	}
	return mention + "\n" + text
}

func embed(cfg *models.ReminderConfig) *discordgo.MessageEmbed {
	color := cfg.EmbedColor
	if color == 0 {
		color = DefaultEmbedColor
	}
	e := &discordgo.MessageEmbed{
		Title:       cfg.EmbedTitle,
		Description: cfg.EmbedDescription,
		Color:       color,
	}
	if cfg.EmbedImageURL != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: cfg.EmbedImageURL}
	}
	return e
}

// Render builds the channel message for a reminder. Only the configured
// ping roles may be mentioned.
func Render(cfg *models.ReminderConfig) *discordgo.MessageSend {
	roleIDs := pingRoleIDs(cfg)
	msg := &discordgo.MessageSend{
		AllowedMentions: &discordgo.MessageAllowedMentions{Roles: roleIDs},
	}

	switch cfg.MessageType {
	case models.MessageEmbed:
		msg.Content = mentions(roleIDs)
		msg.Embeds = []*discordgo.MessageEmbed{embed(cfg)}
	default:
		msg.Content = withMentions(content(cfg), mentions(roleIDs))
	}
	return msg
}

// RenderDirect builds the DM sent to one subscriber. Role mentions are
// dropped and a footer shows the next occurrence in the subscriber's zone.
// A zero next omits the footer.
func RenderDirect(cfg *models.ReminderConfig, next time.Time, loc *time.Location, now time.Time) *discordgo.MessageSend {
	msg := &discordgo.MessageSend{
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}

	var footer string
	if !next.IsZero() {
		footer = fmt.Sprintf("Next reminder: %s (%s)",
			clock.InZone(next, loc),
			humanize.RelTime(next, now, "ago", "from now"))
	}

	switch cfg.MessageType {
	case models.MessageEmbed:
		e := embed(cfg)
		if footer != "" {
			e.Footer = &discordgo.MessageEmbedFooter{Text: footer}
		}
		msg.Embeds = []*discordgo.MessageEmbed{e}
	default:
		msg.Content = withMentions(content(cfg), "")
		if footer != "" {
			msg.Content += "\n\n-# " + footer
		}
	}
	return msg
}
