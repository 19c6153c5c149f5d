// Package reminders schedules and delivers recurring guild reminders.
//
// A Scheduler polls the store, claims each due instant exactly once and hands
// the config to an Executor, which posts to the guild channel and fans out
// direct messages to subscribers. Service is the read/write surface used by
// commands.
package reminders

import (
	"fmt"
	"strings"
	"time"

	"wysibot/clock"
	"wysibot/models"
)

// Schedule defaults applied to new configs.
const (
	DefaultMorningTime = "07:27"
	DefaultEveningTime = "19:27"
	DefaultWeekday     = time.Friday
	DefaultTimezone    = "UTC"
)

// NewConfig returns a disabled config of the given type with the default
// schedule filled in.
func NewConfig(guildID string, reminderType models.ReminderType, channelID string) *models.ReminderConfig {
	return &models.ReminderConfig{
		GuildID:         guildID,
		ReminderType:    reminderType,
		ChannelID:       channelID,
		MessageType:     models.MessageText,
		WysiMorningTime: DefaultMorningTime,
		WysiEveningTime: DefaultEveningTime,
		Weekday:         int(DefaultWeekday),
		Timezone:        DefaultTimezone,
	}
}

// NextTrigger returns the first instant strictly after ref at which cfg is
// due, in UTC.
func NextTrigger(cfg *models.ReminderConfig, ref time.Time) (time.Time, error) {
	loc, err := location(cfg.Timezone)
	if err != nil {
		return time.Time{}, err
	}

	switch cfg.ReminderType {
	case models.ReminderWYSI:
		morning, err := timeOfDay(cfg.WysiMorningTime, DefaultMorningTime)
		if err != nil {
			return time.Time{}, err
		}
		evening, err := timeOfDay(cfg.WysiEveningTime, DefaultEveningTime)
		if err != nil {
			return time.Time{}, err
		}
		return clock.NextDaily(ref, loc, morning, evening)

	case models.ReminderFemboyFriday:
		if cfg.Weekday < 0 || cfg.Weekday > 6 {
			return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidWeekday, cfg.Weekday)
		}
		return clock.NextWeekdayMidnight(ref, loc, time.Weekday(cfg.Weekday)), nil

	case models.ReminderCustom:
		return time.Time{}, ErrCustomNotImplemented
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownType, cfg.ReminderType)
}

// ValidateSchedule reports the first configuration error in cfg. Custom
// configs are only rejected when enabled.
func ValidateSchedule(cfg *models.ReminderConfig) error {
	if strings.TrimSpace(cfg.ChannelID) == "" {
		return ErrMissingChannel
	}
	if cfg.MessageType == models.MessageEmbed &&
		strings.TrimSpace(cfg.EmbedTitle) == "" &&
		strings.TrimSpace(cfg.EmbedDescription) == "" {
		return ErrEmptyMessage
	}
	if cfg.ReminderType == models.ReminderCustom {
		if strings.TrimSpace(cfg.Name) == "" {
			return ErrMissingName
		}
		if cfg.Enabled {
			return ErrCustomNotImplemented
		}
		_, err := location(cfg.Timezone)
		return err
	}
	_, err := NextTrigger(cfg, time.Now())
	return err
}

func location(name string) (*time.Location, error) {
	loc, err := clock.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

func timeOfDay(s, def string) (clock.TimeOfDay, error) {
	if strings.TrimSpace(s) == "" {
		s = def
	}
	tod, err := clock.ParseTimeOfDay(s)
	if err != nil {
		return clock.TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return tod, nil
}
