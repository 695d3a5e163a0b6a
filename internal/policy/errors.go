package policy

import "errors"

var (
	// ErrConfigurationUnreadable means no policy could be loaded and the
	// built-in table was disabled.
	ErrConfigurationUnreadable = errors.New("policy configuration unreadable")
	// ErrMalformedPolicySource means a policy source exists but does not parse
	// into a valid table.
	ErrMalformedPolicySource = errors.New("malformed policy source")
)
