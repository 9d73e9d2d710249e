package session

import "errors"

var (
	// ErrSessionNotFound is returned for unknown, closed, or vanished
	// session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrBlocked is returned when a command matched a block rule and never
	// reached the terminal.
	ErrBlocked = errors.New("command blocked by policy")

	// ErrTransferTimeout is returned when marker polling exhausted its
	// attempt budget during a file transfer.
	ErrTransferTimeout = errors.New("file transfer timed out")

	// ErrMultiplexer wraps failures of the tmux control surface itself.
	ErrMultiplexer = errors.New("multiplexer failure")
)
