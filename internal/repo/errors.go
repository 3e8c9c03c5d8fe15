package repo

import "errors"

// ErrAccessDenied indicates that the caller user id does not match the
// owning user id of the named conversation.
var ErrAccessDenied = errors.New("access denied")

// ErrInvalidTransition indicates a conversation state transition that the
// state machine does not allow (e.g. archived -> active, or any transition
// attempted from a non-active state).
var ErrInvalidTransition = errors.New("invalid conversation state transition")

// ErrDuplicate indicates a unique-constraint violation on insert (e.g. a
// message provider SID that already exists).
var ErrDuplicate = errors.New("duplicate record")
