package types

import (
	"errors"
)

// Validation sentinels. These are rejected synchronously before any
// persistence and must never be retried automatically by callers.
var (
	ErrMissingAgentID   = errors.New("agent_id is required")
	ErrInvalidEventType = errors.New("invalid event type")
	ErrAgentNotFound    = errors.New("agent story not found")
	ErrStoryExists      = errors.New("agent story already exists")
	ErrEventNotFound    = errors.New("story event not found")
	ErrThreadNotFound   = errors.New("narrative thread not found")
	ErrCrossAgentRef    = errors.New("cross-agent reference not permitted")
)

// IsValidation reports whether err is one of the synchronous validation
// sentinels (as opposed to an infrastructure failure).
func IsValidation(err error) bool {
	for _, sentinel := range []error{
		ErrMissingAgentID, ErrInvalidEventType, ErrAgentNotFound,
		ErrStoryExists, ErrEventNotFound, ErrThreadNotFound, ErrCrossAgentRef,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
