package dal

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wysibot/models"
)

// CreateSelfRoleConfig inserts a self-role config and its role mappings.
func CreateSelfRoleConfig(
	ctx context.Context,
	config *models.SelfRoleConfig,
	db *gorm.DB,
) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roles := config.Roles
		config.Roles = nil
		if err := tx.Omit(clause.Associations).Create(config).Error; err != nil {
			return translate(err)
		}
		if err := insertSelfRoleRoles(config.ID, roles, tx); err != nil {
			return err
		}
		config.Roles = roles
		return nil
	})
}

// UpdateSelfRoleConfig saves the config's text and policy and replaces its
// role mappings. The deployed message ID is left untouched.
func UpdateSelfRoleConfig(
	ctx context.Context,
	config *models.SelfRoleConfig,
	db *gorm.DB,
) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SelfRoleConfig{}).
			Where("id = ?", config.ID).
			Updates(map[string]any{
				"channel_id":     config.ChannelID,
				"title":          config.Title,
				"body":           config.Body,
				"selection_type": config.SelectionType,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Where("config_id = ?", config.ID).
			Delete(&models.SelfRoleRole{}).Error; err != nil {
			return err
		}
		return insertSelfRoleRoles(config.ID, config.Roles, tx)
	})
}

func insertSelfRoleRoles(configID uint, roles []models.SelfRoleRole, tx *gorm.DB) error {
	if len(roles) == 0 {
		return nil
	}
	for i := range roles {
		roles[i].ID = 0
		roles[i].ConfigID = configID
	}
	return translate(tx.Create(&roles).Error)
}

// GetSelfRoleConfig returns the self-role config with the given ID and its
// role mappings.
func GetSelfRoleConfig(
	ctx context.Context,
	id uint,
	db *gorm.DB,
) (*models.SelfRoleConfig, error) {
	var config models.SelfRoleConfig
	err := db.WithContext(ctx).
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("id = ?", id).
		Take(&config).Error
	if err != nil {
		return nil, translate(err)
	}
	return &config, nil
}

// GetSelfRoleConfigByMessageID returns the config deployed as messageID.
func GetSelfRoleConfigByMessageID(
	ctx context.Context,
	messageID string,
	db *gorm.DB,
) (*models.SelfRoleConfig, error) {
	var config models.SelfRoleConfig
	err := db.WithContext(ctx).
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("message_id = ?", messageID).
		Take(&config).Error
	if err != nil {
		return nil, translate(err)
	}
	return &config, nil
}

// ListGuildSelfRoleConfigs returns a guild's self-role configs, newest first.
func ListGuildSelfRoleConfigs(
	ctx context.Context,
	guildID string,
	db *gorm.DB,
) ([]models.SelfRoleConfig, error) {
	var configs []models.SelfRoleConfig
	err := db.WithContext(ctx).
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("guild_id = ?", guildID).
		Order("created_at DESC, id DESC").
		Find(&configs).Error
	return configs, err
}

// SetSelfRoleMessageID records the message a config was deployed as.
func SetSelfRoleMessageID(
	ctx context.Context,
	configID uint,
	messageID string,
	db *gorm.DB,
) error {
	res := db.WithContext(ctx).
		Model(&models.SelfRoleConfig{}).
		Where("id = ?", configID).
		Update("message_id", messageID)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSelfRoleConfig removes a config and its role mappings.
func DeleteSelfRoleConfig(ctx context.Context, id uint, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("config_id = ?", id).Delete(&models.SelfRoleRole{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.SelfRoleConfig{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteSelfRoleConfigByMessageID removes the config deployed as messageID.
// It reports whether one existed.
func DeleteSelfRoleConfigByMessageID(
	ctx context.Context,
	messageID string,
	db *gorm.DB,
) (bool, error) {
	config, err := GetSelfRoleConfigByMessageID(ctx, messageID, db)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := DeleteSelfRoleConfig(ctx, config.ID, db); err != nil {
		return false, err
	}
	return true, nil
}

// AcquireCooldown atomically starts a cooldown for (user, role, guild)
// lasting until expiresAt, unless an unexpired one already exists at now.
// It reports whether the cooldown was acquired.
func AcquireCooldown(
	ctx context.Context,
	userID string,
	roleID string,
	guildID string,
	now time.Time,
	expiresAt time.Time,
	db *gorm.DB,
) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO selfrole_cooldowns (user_id, role_id, guild_id, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, role_id, guild_id)
		DO UPDATE SET expires_at = excluded.expires_at
		WHERE selfrole_cooldowns.expires_at <= ?`,
		userID, roleID, guildID, expiresAt.UTC(), now.UTC(),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseCooldown drops a cooldown previously acquired with expiresAt. A
// cooldown acquired later by someone else is left alone.
func ReleaseCooldown(
	ctx context.Context,
	userID string,
	roleID string,
	guildID string,
	expiresAt time.Time,
	db *gorm.DB,
) error {
	return db.WithContext(ctx).
		Where("user_id = ? AND role_id = ? AND guild_id = ? AND expires_at = ?",
			userID, roleID, guildID, expiresAt.UTC()).
		Delete(&models.SelfRoleCooldown{}).Error
}

// GetCooldown returns the unexpired cooldown for (user, role, guild), or
// ErrNotFound.
func GetCooldown(
	ctx context.Context,
	userID string,
	roleID string,
	guildID string,
	now time.Time,
	db *gorm.DB,
) (*models.SelfRoleCooldown, error) {
	var cooldown models.SelfRoleCooldown
	err := db.WithContext(ctx).
		Where("user_id = ? AND role_id = ? AND guild_id = ? AND expires_at > ?",
			userID, roleID, guildID, now.UTC()).
		Take(&cooldown).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cooldown, nil
}

// PurgeExpiredCooldowns deletes cooldowns that expired at or before now.
func PurgeExpiredCooldowns(ctx context.Context, now time.Time, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&models.SelfRoleCooldown{})
	return res.RowsAffected, res.Error
}
