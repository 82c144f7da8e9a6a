package services

import "errors"

// User-facing conditions of the membership and messaging core. Handlers map
// them to HTTP statuses with errors.Is; nothing here is fatal to the process.
var (
	ErrUnauthenticated  = errors.New("not authenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrNotAdmin         = errors.New("user is not a group admin")
	ErrNotMember        = errors.New("user is not a group member")
	ErrAlreadyMember    = errors.New("user is already a group member")
	ErrAlreadyRequested = errors.New("join request already pending")
	ErrNoSuchRequest    = errors.New("no pending join request for user")
	ErrGroupNotFound    = errors.New("group not found")
	ErrInvalidGroupName = errors.New("group name must be 1-50 characters")
	ErrEmptyMessage     = errors.New("message content must not be empty")
)
