package models

import "time"

// ReminderType identifies which built-in schedule a reminder follows.
type ReminderType string

// Known reminder types.
const (
	// ReminderWYSI fires twice a day at two configured local times.
	ReminderWYSI ReminderType = "wysi"
	// ReminderFemboyFriday fires at local midnight on a configured weekday.
	ReminderFemboyFriday ReminderType = "femboy_friday"
	// ReminderCustom is reserved for named reminders; it has no schedule yet.
	ReminderCustom ReminderType = "custom"
)

// MessageType selects how a reminder is rendered.
type MessageType string

// Known message types.
const (
	MessageText  MessageType = "text"
	MessageEmbed MessageType = "embed"
)

// ReminderConfig is a guild's configuration for one reminder.
//
// Only custom reminders carry a Name; the unique index therefore allows a
// single WYSI and a single Femboy Friday config per guild.
type ReminderConfig struct {
	ID           uint         `gorm:"primaryKey"`
	GuildID      string       `gorm:"type:varchar(32);not null;uniqueIndex:ux_reminder_guild_type_name,priority:1"`
	ReminderType ReminderType `gorm:"type:varchar(32);not null;uniqueIndex:ux_reminder_guild_type_name,priority:2"`
	Name         string       `gorm:"type:varchar(100);not null;default:'';uniqueIndex:ux_reminder_guild_type_name,priority:3"`
	Enabled      bool         `gorm:"not null;default:false;index"`
	ChannelID    string       `gorm:"type:varchar(32);not null"`

	MessageType      MessageType `gorm:"type:varchar(16);not null;default:'text'"`
	MessageContent   string      `gorm:"type:text"`
	EmbedTitle       string      `gorm:"type:varchar(256)"`
	EmbedDescription string      `gorm:"type:text"`
	EmbedColor       int
	EmbedImageURL    string `gorm:"type:text"`

	WysiMorningTime string `gorm:"type:varchar(5);default:'07:27'"`
	WysiEveningTime string `gorm:"type:varchar(5);default:'19:27'"`
	Weekday         int    `gorm:"not null"`
	Timezone        string `gorm:"type:varchar(64);not null;default:'UTC'"`

	LastTriggeredAt *time.Time
	NextTriggerAt   *time.Time `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time

	PingRoles []ReminderPingRole `gorm:"foreignKey:ConfigID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ReminderConfig.
func (ReminderConfig) TableName() string { return "reminder_configs" }

// ReminderPingRole is a role mentioned whenever its reminder fires.
type ReminderPingRole struct {
	ID       uint   `gorm:"primaryKey"`
	ConfigID uint   `gorm:"not null;uniqueIndex:ux_ping_role_config_role,priority:1"`
	RoleID   string `gorm:"type:varchar(32);not null;uniqueIndex:ux_ping_role_config_role,priority:2"`
}

// TableName returns the database table name for ReminderPingRole.
func (ReminderPingRole) TableName() string { return "reminder_ping_roles" }

// ReminderSubscription opts a user into direct-message delivery of a reminder.
type ReminderSubscription struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"type:varchar(32);not null;uniqueIndex:ux_subscription_user_config,priority:1"`
	ConfigID  uint   `gorm:"not null;index;uniqueIndex:ux_subscription_user_config,priority:2"`
	CreatedAt time.Time

	Config ReminderConfig `gorm:"foreignKey:ConfigID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ReminderSubscription.
func (ReminderSubscription) TableName() string { return "reminder_subscriptions" }

// Trigger records what caused a reminder execution.
type Trigger string

// Known triggers.
const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// LogStatus is the aggregate outcome of one execution.
type LogStatus string

// Known log statuses.
const (
	StatusSuccess LogStatus = "success"
	StatusPartial LogStatus = "partial"
	StatusError   LogStatus = "error"
	// StatusPending marks a claimed scheduled run that has not finished.
	StatusPending LogStatus = "pending"
)

// ReminderLog is an append-only record of one execution attempt.
//
// DueAt is set for scheduled runs only. A scheduled run's entry is written
// as pending when its due instant is claimed and completed afterwards. The (config_id, due_at) unique index
// stops a due instant from being logged twice; manual runs leave it NULL and
// never collide.
type ReminderLog struct {
	ID            uint       `gorm:"primaryKey"`
	RunID         string     `gorm:"type:char(36);not null;uniqueIndex"`
	ConfigID      uint       `gorm:"not null;index;uniqueIndex:ux_reminder_log_config_due,priority:1"`
	TriggeredBy   Trigger    `gorm:"type:varchar(16);not null;check:triggered_by IN ('scheduled','manual')"`
	DueAt         *time.Time `gorm:"uniqueIndex:ux_reminder_log_config_due,priority:2"`
	ExecutedAt    time.Time  `gorm:"not null;index"`
	Status        LogStatus  `gorm:"type:varchar(16);not null;check:status IN ('success','partial','error','pending')"`
	ErrorMessage  *string    `gorm:"type:text"`
	UsersNotified int        `gorm:"not null;default:0"`

	Config ReminderConfig `gorm:"foreignKey:ConfigID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ReminderLog.
func (ReminderLog) TableName() string { return "reminder_logs" }

// UserSettings holds per-user preferences for reminder delivery.
type UserSettings struct {
	UserID             string `gorm:"type:varchar(32);primaryKey"`
	Timezone           string `gorm:"type:varchar(64);not null;default:'UTC'"`
	DMRemindersEnabled bool   `gorm:"not null"`
	UpdatedAt          time.Time
}

// TableName returns the database table name for UserSettings.
func (UserSettings) TableName() string { return "user_settings" }

// DefaultUserSettings returns the settings assumed for users who never saved any.
func DefaultUserSettings(userID string) UserSettings {
	return UserSettings{UserID: userID, Timezone: "UTC", DMRemindersEnabled: true}
}
