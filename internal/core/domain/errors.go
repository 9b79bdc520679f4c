package domain

import "errors"

var (
	ErrInvalidSignalFormat = errors.New("signal is not valid connection-setup data")
	ErrSignalRoleMismatch  = errors.New("signal kind does not match session role")
	ErrAlreadyNegotiating  = errors.New("session is already processing a remote signal")
	ErrSessionTerminal     = errors.New("session has ended and cannot be reused")
	ErrChannelNotConnected = errors.New("channel is not connected")
)
