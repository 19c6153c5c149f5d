package dal

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wysibot/models"
)

// GetReminderConfig returns the reminder config with the given ID and its
// ping roles.
func GetReminderConfig(
	ctx context.Context,
	id uint,
	db *gorm.DB,
) (*models.ReminderConfig, error) {
	var config models.ReminderConfig
	err := db.WithContext(ctx).
		Preload("PingRoles").
		Where("id = ?", id).
		Take(&config).Error
	if err != nil {
		return nil, translate(err)
	}
	return &config, nil
}

// FindReminderConfig returns a guild's config of the given type. Name is
// only meaningful for custom reminders.
func FindReminderConfig(
	ctx context.Context,
	guildID string,
	reminderType models.ReminderType,
	name string,
	db *gorm.DB,
) (*models.ReminderConfig, error) {
	var config models.ReminderConfig
	err := db.WithContext(ctx).
		Preload("PingRoles").
		Where("guild_id = ? AND reminder_type = ? AND name = ?", guildID, reminderType, name).
		Take(&config).Error
	if err != nil {
		return nil, translate(err)
	}
	return &config, nil
}

// ListEnabledReminderConfigs returns every enabled reminder config.
func ListEnabledReminderConfigs(
	ctx context.Context,
	db *gorm.DB,
) ([]models.ReminderConfig, error) {
	var configs []models.ReminderConfig
	err := db.WithContext(ctx).
		Preload("PingRoles").
		Where("enabled = ?", true).
		Order("id").
		Find(&configs).Error
	return configs, err
}

// ListGuildReminderConfigs returns all reminder configs of a guild.
func ListGuildReminderConfigs(
	ctx context.Context,
	guildID string,
	db *gorm.DB,
) ([]models.ReminderConfig, error) {
	var configs []models.ReminderConfig
	err := db.WithContext(ctx).
		Preload("PingRoles").
		Where(&models.ReminderConfig{GuildID: guildID}).
		Order("id").
		Find(&configs).Error
	return configs, err
}

// SaveReminderConfig inserts or updates config and replaces its ping roles.
func SaveReminderConfig(
	ctx context.Context,
	config *models.ReminderConfig,
	pingRoleIDs []string,
	db *gorm.DB,
) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		config.PingRoles = nil
		if err := tx.Omit(clause.Associations).Save(config).Error; err != nil {
			return translate(err)
		}

		if err := tx.Where("config_id = ?", config.ID).
			Delete(&models.ReminderPingRole{}).Error; err != nil {
			return err
		}
		roles := make([]models.ReminderPingRole, 0, len(pingRoleIDs))
		seen := make(map[string]bool, len(pingRoleIDs))
		for _, roleID := range pingRoleIDs {
			if roleID == "" || seen[roleID] {
				continue
			}
			seen[roleID] = true
			roles = append(roles, models.ReminderPingRole{ConfigID: config.ID, RoleID: roleID})
		}
		if len(roles) > 0 {
			if err := tx.Create(&roles).Error; err != nil {
				return translate(err)
			}
		}
		config.PingRoles = roles
		return nil
	})
}

// DeleteReminderConfig removes a reminder config together with its ping
// roles, subscriptions and logs.
func DeleteReminderConfig(ctx context.Context, id uint, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, child := range []any{
			&models.ReminderPingRole{},
			&models.ReminderSubscription{},
			&models.ReminderLog{},
		} {
			if err := tx.Where("config_id = ?", id).Delete(child).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&models.ReminderConfig{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CacheNextTrigger stores next as the config's next due instant if none is
// cached yet. It reports whether the row was updated.
func CacheNextTrigger(
	ctx context.Context,
	configID uint,
	next time.Time,
	db *gorm.DB,
) (bool, error) {
	res := db.WithContext(ctx).
		Model(&models.ReminderConfig{}).
		Where("id = ? AND next_trigger_at IS NULL", configID).
		Update("next_trigger_at", next.UTC())
	return res.RowsAffected == 1, res.Error
}

// ClaimDueInstant marks due as handled for the config, advances its
// schedule to next and writes a pending log entry under runID. Only one
// caller can claim a given due instant: the claim fails if a log already
// exists for it or if the cached next due instant no longer equals due.
func ClaimDueInstant(
	ctx context.Context,
	configID uint,
	due time.Time,
	next time.Time,
	runID string,
	db *gorm.DB,
) (bool, error) {
	due, next = due.UTC(), next.UTC()
	claimed := false

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		logged, err := hasReminderLog(configID, due, tx)
		if err != nil || logged {
			return err
		}

		res := tx.Model(&models.ReminderConfig{}).
			Where("id = ? AND enabled = ? AND next_trigger_at = ?", configID, true, due).
			Updates(map[string]any{
				"last_triggered_at": due,
				"next_trigger_at":   next,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}

		entry := &models.ReminderLog{
			RunID:       runID,
			ConfigID:    configID,
			TriggeredBy: models.TriggerScheduled,
			DueAt:       &due,
			ExecutedAt:  time.Now().UTC(),
			Status:      models.StatusPending,
		}
		if err := tx.Omit(clause.Associations).Create(entry).Error; err != nil {
			return translate(err)
		}
		claimed = true
		return nil
	})
	return claimed, err
}

// ResetNextTrigger clears the cached next due instant so the scheduler
// recomputes it from the current schedule.
func ResetNextTrigger(ctx context.Context, configID uint, db *gorm.DB) error {
	return db.WithContext(ctx).
		Model(&models.ReminderConfig{}).
		Where("id = ?", configID).
		Update("next_trigger_at", nil).Error
}

func hasReminderLog(configID uint, due time.Time, db *gorm.DB) (bool, error) {
	var count int64
	err := db.Model(&models.ReminderLog{}).
		Where("config_id = ? AND due_at = ?", configID, due).
		Count(&count).Error
	return count > 0, err
}

// InsertReminderLog appends an execution log entry. A second entry for the
// same scheduled due instant yields ErrDuplicate.
func InsertReminderLog(
	ctx context.Context,
	entry *models.ReminderLog,
	db *gorm.DB,
) error {
	return translate(db.WithContext(ctx).Omit(clause.Associations).Create(entry).Error)
}

// CompleteReminderLog fills in the outcome of the run logged under runID.
func CompleteReminderLog(
	ctx context.Context,
	runID string,
	status models.LogStatus,
	errorMessage *string,
	usersNotified int,
	executedAt time.Time,
	db *gorm.DB,
) error {
	res := db.WithContext(ctx).
		Model(&models.ReminderLog{}).
		Where("run_id = ?", runID).
		Updates(map[string]any{
			"status":         status,
			"error_message":  errorMessage,
			"users_notified": usersNotified,
			"executed_at":    executedAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestReminderLog returns the most recent log entry of a config.
func LatestReminderLog(
	ctx context.Context,
	configID uint,
	db *gorm.DB,
) (*models.ReminderLog, error) {
	var entry models.ReminderLog
	err := db.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("executed_at DESC, id DESC").
		Take(&entry).Error
	if err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

// ListReminderLogs returns up to limit log entries of a config, newest first.
func ListReminderLogs(
	ctx context.Context,
	configID uint,
	limit int,
	db *gorm.DB,
) ([]models.ReminderLog, error) {
	var entries []models.ReminderLog
	err := db.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("executed_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// ListSubscriptions returns the DM subscriptions of a config.
func ListSubscriptions(
	ctx context.Context,
	configID uint,
	db *gorm.DB,
) ([]models.ReminderSubscription, error) {
	var subs []models.ReminderSubscription
	err := db.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("id").
		Find(&subs).Error
	return subs, err
}

// ListUserSubscriptions returns every subscription held by a user.
func ListUserSubscriptions(
	ctx context.Context,
	userID string,
	db *gorm.DB,
) ([]models.ReminderSubscription, error) {
	var subs []models.ReminderSubscription
	err := db.WithContext(ctx).
		Preload("Config").
		Where("user_id = ?", userID).
		Order("id").
		Find(&subs).Error
	return subs, err
}

// Subscribe opts a user into DMs for a config. Subscribing twice is a no-op.
func Subscribe(ctx context.Context, userID string, configID uint, db *gorm.DB) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "config_id"}},
		DoNothing: true,
	}).Omit(clause.Associations).Create(&models.ReminderSubscription{
		UserID:   userID,
		ConfigID: configID,
	}).Error
}

// Unsubscribe removes a user's subscription. It reports whether one existed.
func Unsubscribe(ctx context.Context, userID string, configID uint, db *gorm.DB) (bool, error) {
	res := db.WithContext(ctx).
		Where("user_id = ? AND config_id = ?", userID, configID).
		Delete(&models.ReminderSubscription{})
	return res.RowsAffected > 0, res.Error
}

// GetUserSettings returns a user's settings, or the defaults if none were
// saved.
func GetUserSettings(
	ctx context.Context,
	userID string,
	db *gorm.DB,
) (models.UserSettings, error) {
	settings := models.DefaultUserSettings(userID)
	err := db.WithContext(ctx).Where("user_id = ?", userID).Take(&settings).Error
	if errors.Is(translate(err), ErrNotFound) {
		return models.DefaultUserSettings(userID), nil
	}
	return settings, err
}

// GetUserSettingsFor returns settings for each of userIDs, filling in
// defaults for users without saved settings.
func GetUserSettingsFor(
	ctx context.Context,
	userIDs []string,
	db *gorm.DB,
) (map[string]models.UserSettings, error) {
	result := make(map[string]models.UserSettings, len(userIDs))
	for _, id := range userIDs {
		result[id] = models.DefaultUserSettings(id)
	}
	if len(userIDs) == 0 {
		return result, nil
	}

	var saved []models.UserSettings
	if err := db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&saved).Error; err != nil {
		return nil, err
	}
	for _, s := range saved {
		result[s.UserID] = s
	}
	return result, nil
}

// UpsertUserSettings inserts or updates the given user settings.
func UpsertUserSettings(ctx context.Context, settings models.UserSettings, db *gorm.DB) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"timezone", "dm_reminders_enabled", "updated_at"}),
	}).Create(&settings).Error
}
