package discordutils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

var (
	// ErrUnreachable means a user can no longer be messaged or is gone:
	// DMs are closed, or the user or member is unknown.
	ErrUnreachable = errors.New("recipient unreachable")
	// ErrUnknownMessage means the referenced message no longer exists.
	ErrUnknownMessage = errors.New("unknown message")
)

// Authority describes what the bot may do to roles in a guild.
type Authority struct {
	// TopPosition is the position of the bot's highest role. The bot can
	// only manage roles positioned strictly below it.
	TopPosition    int
	CanManageRoles bool
}

// CanManage reports whether a role is within the bot's reach.
func (a Authority) CanManage(role *discordgo.Role) bool {
	return a.CanManageRoles && !role.Managed && role.Position < a.TopPosition
}

// Client performs outbound Discord calls with a bounded timeout on each
// request. Direct messages are additionally paced by a token bucket.
type Client struct {
	session   *discordgo.Session
	timeout   time.Duration
	dmLimiter *rate.Limiter
}

// NewClient wraps a session. dmRate is in messages per second.
func NewClient(session *discordgo.Session, timeout time.Duration, dmRate float64, dmBurst int) *Client {
	return &Client{
		session:   session,
		timeout:   timeout,
		dmLimiter: rate.NewLimiter(rate.Limit(dmRate), dmBurst),
	}
}

func (c *Client) request(ctx context.Context) (discordgo.RequestOption, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return discordgo.WithContext(ctx), cancel
}

// SendMessage posts msg to a channel and returns the new message's ID.
func (c *Client) SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (string, error) {
	opt, cancel := c.request(ctx)
	defer cancel()

	sent, err := c.session.ChannelMessageSendComplex(channelID, msg, opt)
	if err != nil {
		return "", Classify(err)
	}
	return sent.ID, nil
}

// SendChannelMessage posts msg to a channel.
func (c *Client) SendChannelMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) error {
	_, err := c.SendMessage(ctx, channelID, msg)
	return err
}

// EditMessage replaces the content of an existing message.
func (c *Client) EditMessage(ctx context.Context, edit *discordgo.MessageEdit) error {
	opt, cancel := c.request(ctx)
	defer cancel()

	_, err := c.session.ChannelMessageEditComplex(edit, opt)
	return Classify(err)
}

// SendDirectMessage opens a DM channel with a user and posts msg to it.
func (c *Client) SendDirectMessage(ctx context.Context, userID string, msg *discordgo.MessageSend) error {
	if err := c.dmLimiter.Wait(ctx); err != nil {
		return err
	}

	opt, cancel := c.request(ctx)
	defer cancel()

	channel, err := c.session.UserChannelCreate(userID, opt)
	if err != nil {
		return fmt.Errorf("open DM channel: %w", Classify(err))
	}
	if _, err := c.session.ChannelMessageSendComplex(channel.ID, msg, opt); err != nil {
		return Classify(err)
	}
	return nil
}

// MemberRoleIDs fetches a member's current roles from the API rather than
// the gateway cache.
func (c *Client) MemberRoleIDs(ctx context.Context, guildID, userID string) ([]string, error) {
	opt, cancel := c.request(ctx)
	defer cancel()

	member, err := c.session.GuildMember(guildID, userID, opt)
	if err != nil {
		return nil, Classify(err)
	}
	return member.Roles, nil
}

// Roles fetches a guild's roles.
func (c *Client) Roles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	opt, cancel := c.request(ctx)
	defer cancel()

	roles, err := c.session.GuildRoles(guildID, opt)
	return roles, Classify(err)
}

// BotAuthority works out the bot's role permissions and highest role
// position in a guild.
func (c *Client) BotAuthority(ctx context.Context, guildID string) (Authority, error) {
	roles, err := c.Roles(ctx, guildID)
	if err != nil {
		return Authority{}, err
	}
	roleIDs, err := c.MemberRoleIDs(ctx, guildID, c.session.State.User.ID)
	if err != nil {
		return Authority{}, err
	}

	perms := MemberPermissions(guildID, roleIDs, roles)
	return Authority{
		TopPosition:    HighestRolePosition(roleIDs, roles),
		CanManageRoles: perms&(discordgo.PermissionAdministrator|discordgo.PermissionManageRoles) != 0,
	}, nil
}

// AddRole grants a role to a member.
func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	opt, cancel := c.request(ctx)
	defer cancel()
	return Classify(c.session.GuildMemberRoleAdd(guildID, userID, roleID, opt))
}

// RemoveRole revokes a role from a member.
func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	opt, cancel := c.request(ctx)
	defer cancel()
	return Classify(c.session.GuildMemberRoleRemove(guildID, userID, roleID, opt))
}

// Classify wraps Discord API errors whose codes carry meaning for callers
// in ErrUnreachable or ErrUnknownMessage. Other errors pass through.
func Classify(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return err
	}
	switch restErr.Message.Code {
	case discordgo.ErrCodeCannotSendMessagesToThisUser,
		discordgo.ErrCodeUnknownUser,
		discordgo.ErrCodeUnknownMember:
		return fmt.Errorf("%w: %s", ErrUnreachable, restErr.Message.Message)
	case discordgo.ErrCodeUnknownMessage:
		return fmt.Errorf("%w: %s", ErrUnknownMessage, restErr.Message.Message)
	}
	return err
}
