package instance

import "errors"

var (
	// ErrConfigRequired is returned by Run before a configuration was set.
	ErrConfigRequired = errors.New("configuration required before run")
	ErrAlreadyRunning = errors.New("instance is already running")
	ErrUnknownHandle  = errors.New("unknown instance handle")
)
