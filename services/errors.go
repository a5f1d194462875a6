package services

import "errors"

// Validation errors: reported to the caller, no state change.
var (
	ErrUnknownTwist     = errors.New("unknown twist")
	ErrTargetRequired   = errors.New("twist requires a target")
	ErrTargetNotInArena = errors.New("target is not in the arena")
	ErrInvalidTarget    = errors.New("invalid target for this twist")
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownViewer    = errors.New("unknown viewer")
	ErrInvalidSettings  = errors.New("invalid settings")
)

// Resource-constraint errors: reported, no state change.
var (
	ErrArenaFull         = errors.New("arena is full")
	ErrAlreadyInArena    = errors.New("already in the arena")
	ErrNotInArena        = errors.New("not in the arena")
	ErrNotEligible       = errors.New("not eligible for the arena")
	ErrInsufficientFunds = errors.New("insufficient points")
	ErrNotQueued         = errors.New("not in the queue")
	ErrQueueBlocked      = errors.New("blocked from the queue")
	ErrNotFan            = errors.New("fan status required")
	ErrNoInventory       = errors.New("no twist charges left")
	ErrNoEligibleTarget  = errors.New("no eligible target")
)

// Round-state errors.
var (
	ErrRoundActive        = errors.New("a round is already live")
	ErrRoundNotLive       = errors.New("no live round")
	ErrRoundInProgress    = errors.New("round has not ended yet")
	ErrTwistUsedThisRound = errors.New("twist already used this round")
	ErrSessionInactive    = errors.New("no active session")
)

// Idempotency rejections: never fatal.
var (
	ErrDuplicateEvent = errors.New("duplicate event")
	ErrAlreadyQueued  = errors.New("already in the queue")
	ErrInboxFull      = errors.New("event inbox full")
)
