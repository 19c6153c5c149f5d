package models

import "time"

// SelectionType governs whether a self-role menu allows several roles.
type SelectionType string

// Known selection types.
const (
	// SelectionRadio keeps at most one of the menu's roles on a member.
	SelectionRadio SelectionType = "radio"
	// SelectionMultiple lets members hold any subset of the menu's roles.
	SelectionMultiple SelectionType = "multiple"
)

// SelfRoleConfig is a button menu that lets members pick their own roles.
// MessageID is set once the menu has been posted.
type SelfRoleConfig struct {
	ID            uint          `gorm:"primaryKey"`
	GuildID       string        `gorm:"type:varchar(32);not null;index"`
	ChannelID     string        `gorm:"type:varchar(32);not null"`
	MessageID     *string       `gorm:"type:varchar(32);uniqueIndex"`
	Title         string        `gorm:"type:varchar(256);not null"`
	Body          string        `gorm:"type:text;not null"`
	SelectionType SelectionType `gorm:"type:varchar(16);not null;default:'multiple';check:selection_type IN ('radio','multiple')"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Roles []SelfRoleRole `gorm:"foreignKey:ConfigID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SelfRoleConfig.
func (SelfRoleConfig) TableName() string { return "selfrole_configs" }

// SelfRoleRole maps a menu button, keyed by its emoji, to a role.
type SelfRoleRole struct {
	ID       uint   `gorm:"primaryKey"`
	ConfigID uint   `gorm:"not null;uniqueIndex:ux_selfrole_config_emoji,priority:1;uniqueIndex:ux_selfrole_config_role,priority:1"`
	RoleID   string `gorm:"type:varchar(32);not null;uniqueIndex:ux_selfrole_config_role,priority:2"`
	Emoji    string `gorm:"type:varchar(64);not null;uniqueIndex:ux_selfrole_config_emoji,priority:2"`
}

// TableName returns the database table name for SelfRoleRole.
func (SelfRoleRole) TableName() string { return "selfrole_roles" }

// SelfRoleCooldown throttles a member toggling one role. Rows whose
// ExpiresAt has passed carry no meaning and may be purged at any time.
type SelfRoleCooldown struct {
	UserID    string    `gorm:"type:varchar(32);primaryKey"`
	RoleID    string    `gorm:"type:varchar(32);primaryKey"`
	GuildID   string    `gorm:"type:varchar(32);primaryKey"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName returns the database table name for SelfRoleCooldown.
func (SelfRoleCooldown) TableName() string { return "selfrole_cooldowns" }
