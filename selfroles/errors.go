package selfroles

import "errors"

var (
	// ErrConfigNotFound indicates that the requested self-role config does
	// not exist.
	ErrConfigNotFound = errors.New("self-role config not found")

	// ErrInvalidSelectionPolicy is returned for selection types other than
	// radio and multiple.
	ErrInvalidSelectionPolicy = errors.New("selection type must be radio or multiple")

	// ErrMissingChannel is returned when no channel is configured.
	ErrMissingChannel = errors.New("channel is required")

	// ErrMissingTitle is returned when the menu has no title.
	ErrMissingTitle = errors.New("title is required")

	// ErrNoRoles is returned for menus without any role.
	ErrNoRoles = errors.New("at least one role is required")

	// ErrTooManyRoles is returned when a menu has more roles than fit in a
	// message's buttons.
	ErrTooManyRoles = errors.New("too many roles")

	// ErrMissingEmoji is returned for a role mapping without an emoji.
	ErrMissingEmoji = errors.New("every role needs an emoji")

	// ErrDuplicateEmoji is returned when two roles of a menu share an emoji.
	ErrDuplicateEmoji = errors.New("emoji used twice")

	// ErrDuplicateRole is returned when a role appears twice in a menu.
	ErrDuplicateRole = errors.New("role used twice")
)
