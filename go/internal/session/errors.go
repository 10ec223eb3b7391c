package session

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrSessionClosed    = errors.New("session closed")
	ErrInvalidTask      = errors.New("invalid task")
	ErrUnknownCharacter = errors.New("unknown character")
	ErrInvalidProfile   = errors.New("invalid profile")
)
