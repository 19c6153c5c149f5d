// Package selfroles lets members pick their own roles from button menus.
//
// Each button press is handled on its own. Membership is read from Discord
// right before mutating, and a store-backed cooldown per (user, role, guild)
// is claimed atomically before any mutation, so concurrent presses for the
// same role cannot both act.
package selfroles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"wysibot/dal"
	"wysibot/discordutils"
	"wysibot/metrics"
	"wysibot/models"
)

// DefaultCooldown is the time a member must wait before toggling the same
// role again.
const DefaultCooldown = 5 * time.Second

// Guild reads and changes role membership on Discord.
type Guild interface {
	MemberRoleIDs(ctx context.Context, guildID, userID string) ([]string, error)
	Roles(ctx context.Context, guildID string) ([]*discordgo.Role, error)
	BotAuthority(ctx context.Context, guildID string) (discordutils.Authority, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

// Outcome classifies the result of a press.
type Outcome string

// Known outcomes.
const (
	OutcomeAdded     Outcome = "added"
	OutcomeRemoved   Outcome = "removed"
	OutcomeSwapped   Outcome = "swapped"
	OutcomeStale     Outcome = "stale"
	OutcomeCooldown  Outcome = "cooldown"
	OutcomeHierarchy Outcome = "hierarchy"
	OutcomeFailed    Outcome = "failed"
)

// User-facing replies.
const (
	msgStale     = "This menu is no longer valid."
	msgHierarchy = "I can't manage that role. Ask an admin to move my role above it."
	msgFailed    = "Something went wrong while updating your roles. Please try again later."
)

// Press is one click on a self-role button.
type Press struct {
	GuildID   string
	UserID    string
	MessageID string
	CustomID  string
	At        time.Time
}

// Result is what happened and what to tell the member.
type Result struct {
	Outcome Outcome
	Message string
	// Removed lists roles taken away to keep a radio menu exclusive.
	Removed []string
	// Err is set when Discord or the store failed.
	Err error
}

// Handler resolves button presses into role changes.
type Handler struct {
	db       *gorm.DB
	guild    Guild
	cooldown time.Duration
}

// NewHandler returns a Handler enforcing the given per-role cooldown.
func NewHandler(db *gorm.DB, guild Guild, cooldown time.Duration) *Handler {
	return &Handler{db: db, guild: guild, cooldown: cooldown}
}

// Handle processes one press. It never panics on Discord or store errors;
// every failure is turned into a Result.
func (h *Handler) Handle(ctx context.Context, p Press) Result {
	if p.At.IsZero() {
		p.At = time.Now()
	}
	logger := log.With().
		Str("guild_id", p.GuildID).
		Str("user_id", p.UserID).
		Str("custom_id", p.CustomID).
		Logger()

	res := h.handle(ctx, logger, p)
	metrics.SelfRolePresses.WithLabelValues(string(res.Outcome)).Inc()

	switch res.Outcome {
	case OutcomeFailed:
		logger.Error().Err(res.Err).Msg("Self-role press failed.")
	case OutcomeStale, OutcomeCooldown, OutcomeHierarchy:
		logger.Debug().Str("outcome", string(res.Outcome)).Msg("Self-role press rejected.")
	default:
		logger.Info().Str("outcome", string(res.Outcome)).Strs("removed", res.Removed).Msg("Self-role press handled.")
	}
	return res
}

func (h *Handler) handle(ctx context.Context, logger zerolog.Logger, p Press) Result {
	cfg, mapping, err := h.resolve(ctx, p)
	if errors.Is(err, ErrConfigNotFound) {
		return Result{Outcome: OutcomeStale, Message: msgStale}
	}
	if err != nil {
		return failed(err)
	}
	roleID := mapping.RoleID

	release, res, ok := h.acquire(ctx, p, roleID)
	if !ok {
		return res
	}

	authority, err := h.guild.BotAuthority(ctx, p.GuildID)
	if err != nil {
		release()
		return failed(fmt.Errorf("bot authority: %w", err))
	}
	guildRoles, err := h.guild.Roles(ctx, p.GuildID)
	if err != nil {
		release()
		return failed(fmt.Errorf("guild roles: %w", err))
	}
	target, found := discordutils.FindRole(roleID, guildRoles)
	if !found {
		release()
		return Result{Outcome: OutcomeStale, Message: msgStale}
	}
	if !authority.CanManage(target) {
		release()
		return Result{Outcome: OutcomeHierarchy, Message: msgHierarchy}
	}

	held, err := h.guild.MemberRoleIDs(ctx, p.GuildID, p.UserID)
	if err != nil {
		release()
		return failed(fmt.Errorf("member roles: %w", err))
	}

	if discordutils.MemberHasRole(held, roleID) {
		if err := h.guild.RemoveRole(ctx, p.GuildID, p.UserID, roleID); err != nil {
			release()
			return failed(fmt.Errorf("remove role %s: %w", roleID, err))
		}
		return Result{
			Outcome: OutcomeRemoved,
			Message: fmt.Sprintf("Removed %s.", target.Mention()),
		}
	}

	var removed, notRemoved []string
	if cfg.SelectionType == models.SelectionRadio {
		removed, notRemoved = h.clearOthers(ctx, logger, p, cfg, roleID, held, guildRoles, authority)
	}

	if err := h.guild.AddRole(ctx, p.GuildID, p.UserID, roleID); err != nil {
		if len(removed) == 0 {
			release()
		}
		return failed(fmt.Errorf("add role %s: %w", roleID, err))
	}

	res = Result{
		Outcome: OutcomeAdded,
		Message: fmt.Sprintf("Added %s.", target.Mention()),
		Removed: removed,
	}
	if len(removed) > 0 {
		res.Outcome = OutcomeSwapped
		res.Message = fmt.Sprintf("Swapped %s for %s.", roleMentions(removed), target.Mention())
	}
	if len(notRemoved) > 0 {
		res.Message += fmt.Sprintf(" I couldn't remove %s.", roleMentions(notRemoved))
	}
	return res
}

// resolve maps the press to its config and role mapping. Presses on menus
// that were deleted, redeployed elsewhere or edited return ErrConfigNotFound.
func (h *Handler) resolve(ctx context.Context, p Press) (*models.SelfRoleConfig, *models.SelfRoleRole, error) {
	configID, roleID, ok := ParseCustomID(p.CustomID)
	if !ok {
		return nil, nil, ErrConfigNotFound
	}
	cfg, err := dal.GetSelfRoleConfig(ctx, configID, h.db)
	if errors.Is(err, dal.ErrNotFound) {
		return nil, nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if cfg.GuildID != p.GuildID {
		return nil, nil, ErrConfigNotFound
	}
	if p.MessageID != "" && (cfg.MessageID == nil || *cfg.MessageID != p.MessageID) {
		return nil, nil, ErrConfigNotFound
	}
	for i := range cfg.Roles {
		if cfg.Roles[i].RoleID == roleID {
			return cfg, &cfg.Roles[i], nil
		}
	}
	return nil, nil, ErrConfigNotFound
}

// acquire claims the cooldown for the pressed role. The returned release
// func gives it back when the press ends without a mutation.
func (h *Handler) acquire(ctx context.Context, p Press, roleID string) (func(), Result, bool) {
	if h.cooldown <= 0 {
		return func() {}, Result{}, true
	}

	now := p.At.UTC()
	expiresAt := now.Add(h.cooldown)
	ok, err := dal.AcquireCooldown(ctx, p.UserID, roleID, p.GuildID, now, expiresAt, h.db)
	if err != nil {
		return nil, failed(fmt.Errorf("acquire cooldown: %w", err)), false
	}
	if !ok {
		until := expiresAt
		if cd, err := dal.GetCooldown(ctx, p.UserID, roleID, p.GuildID, now, h.db); err == nil {
			until = cd.ExpiresAt
		}
		return nil, Result{
			Outcome: OutcomeCooldown,
			Message: fmt.Sprintf("You're doing that too quickly! Try again %s.",
				humanize.RelTime(until, now, "ago", "from now")),
		}, false
	}

	release := func() {
		err := dal.ReleaseCooldown(context.WithoutCancel(ctx), p.UserID, roleID, p.GuildID, expiresAt, h.db)
		if err != nil {
			log.Warn().Err(err).Str("user_id", p.UserID).Str("role_id", roleID).Msg("Failed to release cooldown.")
		}
	}
	return release, Result{}, true
}

// clearOthers removes the member's other roles from a radio menu. Removals
// are independent. Roles out of the bot's reach and failed removals are
// reported in notRemoved but do not stop the grant.
func (h *Handler) clearOthers(
	ctx context.Context,
	logger zerolog.Logger,
	p Press,
	cfg *models.SelfRoleConfig,
	keep string,
	held []string,
	guildRoles []*discordgo.Role,
	authority discordutils.Authority,
) (removed, notRemoved []string) {
	for _, mapping := range cfg.Roles {
		if mapping.RoleID == keep || !discordutils.MemberHasRole(held, mapping.RoleID) {
			continue
		}
		role, found := discordutils.FindRole(mapping.RoleID, guildRoles)
		if !found || !authority.CanManage(role) {
			logger.Debug().Str("role_id", mapping.RoleID).Msg("Skipping role the bot cannot manage.")
			notRemoved = append(notRemoved, mapping.RoleID)
			continue
		}
		if err := h.guild.RemoveRole(ctx, p.GuildID, p.UserID, mapping.RoleID); err != nil {
			logger.Warn().Err(err).Str("role_id", mapping.RoleID).Msg("Failed to remove exclusive role.")
			notRemoved = append(notRemoved, mapping.RoleID)
			continue
		}
		removed = append(removed, mapping.RoleID)
	}
	return removed, notRemoved
}

func failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Message: msgFailed, Err: err}
}

func roleMentions(ids []string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "<@&" + id + ">"
	}
	return strings.Join(parts, ", ")
}
