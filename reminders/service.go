package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"wysibot/clock"
	"wysibot/dal"
	"wysibot/models"
)

// Status summarises a reminder for display.
type Status struct {
	Config *models.ReminderConfig
	// NextDue is nil for disabled and custom reminders.
	NextDue *time.Time
	// LastRun is nil if the reminder never ran.
	LastRun *models.ReminderLog
}

// Service validates and persists reminder configs, subscriptions and user
// settings.
type Service struct {
	DB        *gorm.DB
	Scheduler *Scheduler
}

// Save validates cfg and inserts or updates it with the given ping roles.
// The cached next due instant is dropped so the scheduler recomputes it
// from the saved schedule.
func (s *Service) Save(ctx context.Context, cfg *models.ReminderConfig, pingRoleIDs []string) error {
	cfg.ChannelID = strings.TrimSpace(cfg.ChannelID)
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.ReminderType != models.ReminderCustom {
		cfg.Name = ""
	}
	if cfg.MessageType == "" {
		cfg.MessageType = models.MessageText
	}
	if strings.TrimSpace(cfg.Timezone) == "" {
		cfg.Timezone = DefaultTimezone
	}
	if err := ValidateSchedule(cfg); err != nil {
		return err
	}

	if cfg.ID != 0 {
		existing, err := dal.GetReminderConfig(ctx, cfg.ID, s.DB)
		if err != nil {
			return s.translate(err)
		}
		cfg.LastTriggeredAt = existing.LastTriggeredAt
		cfg.CreatedAt = existing.CreatedAt
	}
	cfg.NextTriggerAt = nil

	return s.translate(dal.SaveReminderConfig(ctx, cfg, pingRoleIDs, s.DB))
}

// Delete removes a reminder and everything attached to it.
func (s *Service) Delete(ctx context.Context, id uint) error {
	return s.translate(dal.DeleteReminderConfig(ctx, id, s.DB))
}

// Get returns one reminder config.
func (s *Service) Get(ctx context.Context, id uint) (*models.ReminderConfig, error) {
	cfg, err := dal.GetReminderConfig(ctx, id, s.DB)
	return cfg, s.translate(err)
}

// Find returns a guild's config of a built-in type.
func (s *Service) Find(ctx context.Context, guildID string, reminderType models.ReminderType) (*models.ReminderConfig, error) {
	cfg, err := dal.FindReminderConfig(ctx, guildID, reminderType, "", s.DB)
	return cfg, s.translate(err)
}

// ListByGuild returns a guild's reminder configs.
func (s *Service) ListByGuild(ctx context.Context, guildID string) ([]models.ReminderConfig, error) {
	return dal.ListGuildReminderConfigs(ctx, guildID, s.DB)
}

// Status reports when a reminder fires next and how its last run went.
func (s *Service) Status(ctx context.Context, id uint) (*Status, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	st := &Status{Config: cfg}

	if cfg.Enabled && cfg.ReminderType != models.ReminderCustom {
		if cfg.NextTriggerAt != nil {
			next := cfg.NextTriggerAt.UTC()
			st.NextDue = &next
		} else if next, err := NextTrigger(cfg, time.Now()); err == nil {
			st.NextDue = &next
		}
	}

	last, err := dal.LatestReminderLog(ctx, id, s.DB)
	switch {
	case err == nil:
		st.LastRun = last
	case !errors.Is(err, dal.ErrNotFound):
		return nil, err
	}
	return st, nil
}

// History returns up to limit past executions, newest first.
func (s *Service) History(ctx context.Context, id uint, limit int) ([]models.ReminderLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return dal.ListReminderLogs(ctx, id, limit, s.DB)
}

// TriggerNow runs a reminder immediately as a test.
func (s *Service) TriggerNow(ctx context.Context, id uint) (Outcome, error) {
	return s.Scheduler.TriggerNow(ctx, id)
}

// Subscribe opts a user into DMs for a reminder.
func (s *Service) Subscribe(ctx context.Context, userID string, configID uint) error {
	if _, err := s.Get(ctx, configID); err != nil {
		return err
	}
	return dal.Subscribe(ctx, userID, configID, s.DB)
}

// Unsubscribe opts a user out of DMs for a reminder. It reports whether the
// user was subscribed.
func (s *Service) Unsubscribe(ctx context.Context, userID string, configID uint) (bool, error) {
	return dal.Unsubscribe(ctx, userID, configID, s.DB)
}

// Subscriptions returns a user's subscriptions with their configs.
func (s *Service) Subscriptions(ctx context.Context, userID string) ([]models.ReminderSubscription, error) {
	return dal.ListUserSubscriptions(ctx, userID, s.DB)
}

// UserSettings returns a user's settings, or the defaults.
func (s *Service) UserSettings(ctx context.Context, userID string) (models.UserSettings, error) {
	return dal.GetUserSettings(ctx, userID, s.DB)
}

// SetUserSettings stores a user's timezone and DM preference. The timezone
// is stored under its canonical name.
func (s *Service) SetUserSettings(ctx context.Context, userID, timezone string, dmEnabled bool) (models.UserSettings, error) {
	loc, err := clock.LoadLocation(timezone)
	if err != nil {
		return models.UserSettings{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, timezone)
	}
	settings := models.UserSettings{
		UserID:             userID,
		Timezone:           loc.String(),
		DMRemindersEnabled: dmEnabled,
	}
	if err := dal.UpsertUserSettings(ctx, settings, s.DB); err != nil {
		return models.UserSettings{}, err
	}
	return settings, nil
}

func (s *Service) translate(err error) error {
	switch {
	case errors.Is(err, dal.ErrNotFound):
		return ErrConfigNotFound
	case errors.Is(err, dal.ErrDuplicate):
		return ErrDuplicateConfig
	}
	return err
}
