package reminders

import "errors"

// Configuration errors, returned when a config is saved.
var (
	// ErrInvalidTimezone is returned for timezone names the tz database does
	// not know.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidTimeOfDay is returned for reminder times that are not HH:MM.
	ErrInvalidTimeOfDay = errors.New("invalid time of day")

	// ErrInvalidWeekday is returned for weekdays outside 0 (Sunday) to 6.
	ErrInvalidWeekday = errors.New("weekday must be between 0 (Sunday) and 6 (Saturday)")

	// ErrMissingChannel is returned when no target channel is configured.
	ErrMissingChannel = errors.New("channel is required")

	// ErrEmptyMessage is returned for embed reminders with neither a title
	// nor a description.
	ErrEmptyMessage = errors.New("embed needs a title or a description")

	// ErrCustomNotImplemented is returned when a custom reminder would have
	// to be scheduled. Custom reminders can be stored but not enabled.
	ErrCustomNotImplemented = errors.New("custom reminders are not supported yet")

	// ErrMissingName is returned for custom reminders without a name.
	ErrMissingName = errors.New("custom reminders need a name")

	// ErrUnknownType is returned for reminder types the bot does not know.
	ErrUnknownType = errors.New("unknown reminder type")
)

// Lookup errors.
var (
	// ErrConfigNotFound indicates that the requested reminder config does
	// not exist.
	ErrConfigNotFound = errors.New("reminder config not found")

	// ErrDuplicateConfig is returned when a guild already has a config of
	// the same type.
	ErrDuplicateConfig = errors.New("reminder config already exists")
)
