package core

import "errors"

var (
	ErrInvalidHandshake = errors.New("invalid handshake")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrPersistence      = errors.New("persistence failure")
	ErrSessionClosed    = errors.New("session closed")
)
