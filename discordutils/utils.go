package discordutils

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// MemberHasAdminPermissions reports whether member is an administrator,
// either as resolved on an interaction or through @everyone or one of the
// member's guild roles.
func MemberHasAdminPermissions(member *discordgo.Member, guildRoles []*discordgo.Role) bool {
	if member == nil {
		return false
	}
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	for _, role := range guildRoles {
		if role.ID != member.GuildID && !MemberHasRole(member.Roles, role.ID) {
			continue
		}
		if RoleAllowsAdminPermissions(role) {
			return true
		}
	}
	return false
}

// RoleAllowsAdminPermissions reports whether role grants Administrator.
func RoleAllowsAdminPermissions(role *discordgo.Role) bool {
	return role != nil && role.Permissions&discordgo.PermissionAdministrator != 0
}

// MemberPermissions folds the permissions of the @everyone role and every
// role in roleIDs.
func MemberPermissions(guildID string, roleIDs []string, guildRoles []*discordgo.Role) int64 {
	held := make(map[string]bool, len(roleIDs)+1)
	held[guildID] = true // @everyone shares the guild's ID
	for _, id := range roleIDs {
		held[id] = true
	}

	var perms int64
	for _, role := range guildRoles {
		if held[role.ID] {
			perms |= role.Permissions
		}
	}
	return perms
}

// HighestRolePosition returns the highest position among roleIDs, or 0 if
// the member holds no roles.
func HighestRolePosition(roleIDs []string, guildRoles []*discordgo.Role) int {
	held := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		held[id] = true
	}

	top := 0
	for _, role := range guildRoles {
		if held[role.ID] && role.Position > top {
			top = role.Position
		}
	}
	return top
}

// FindRole returns the role with the given ID.
func FindRole(roleID string, guildRoles []*discordgo.Role) (*discordgo.Role, bool) {
	for _, role := range guildRoles {
		if role.ID == roleID {
			return role, true
		}
	}
	return nil, false
}

// MemberHasRole returns true if roleIDs contains roleID.
func MemberHasRole(roleIDs []string, roleID string) bool {
	for _, id := range roleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// AckInteraction sends a deferred response for the given interaction. Ephemeral
// defers keep the eventual followup visible to the invoking user only.
func AckInteraction(
	interaction *discordgo.Interaction,
	ephemeral bool,
	session *discordgo.Session,
) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
	if err != nil {
		log.Warn().Err(err).Str("interaction_id", interaction.ID).Msg("Failed to acknowledge interaction.")
	}
}

// SendFollowup creates a followup message with the given content.
func SendFollowup(
	content string,
	interaction *discordgo.Interaction,
	session *discordgo.Session,
) {
	_, err := session.FollowupMessageCreate(
		interaction,
		true,
		&discordgo.WebhookParams{
			Content:         content,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	)
	if err != nil {
		log.Warn().Err(err).Str("interaction_id", interaction.ID).Msg("Failed to send followup.")
	}
}

// RespondEphemeral answers an interaction immediately with a message only the
// invoking user can see.
func RespondEphemeral(
	content string,
	interaction *discordgo.Interaction,
	session *discordgo.Session,
) {
	err := session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Flags:           discordgo.MessageFlagsEphemeral,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("interaction_id", interaction.ID).Msg("Failed to respond to interaction.")
	}
}
